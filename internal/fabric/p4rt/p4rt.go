package p4rt

import (
	"context"
	"io/ioutil"
	"runtime/debug"
	"sync"
	"time"

	p4config "github.com/p4lang/p4runtime/go/p4/config/v1"
	p4 "github.com/p4lang/p4runtime/go/p4/v1"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/free5gc/go-l2agent/internal/fabric"
	"github.com/free5gc/go-l2agent/internal/logger"
	"github.com/free5gc/go-l2agent/pkg/factory"
)

type switchConn struct {
	id     fabric.SwitchID
	name   string
	ports  []fabric.PortID
	conn   *grpc.ClientConn
	client runtimeClient
	stream p4.P4Runtime_StreamChannelClient
	sendMu sync.Mutex // gRPC streams do not allow concurrent Send
	log    *logrus.Entry
}

func (s *switchConn) send(msg *p4.StreamMessageRequest) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.stream.Send(msg)
}

type installKey struct {
	sw    fabric.SwitchID
	match fabric.FlowMatch
}

// Driver programs a set of switches over P4Runtime: one stream channel per
// switch for packet-in/out and arbitration, unary calls for table writes and
// counter reads.
type Driver struct {
	cfg        *factory.Fabric
	p4info     *p4config.P4Info
	l2         *Operator
	packetIn   *p4config.ControllerPacketMetadata
	packetOut  *p4config.ControllerPacketMetadata
	inPortID   uint32
	electionID *p4.Uint128
	switches   map[fabric.SwitchID]*switchConn

	installMu sync.Mutex
	installed map[installKey]time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     *sync.WaitGroup
	now    func() time.Time
	log    *logrus.Entry
}

var _ fabric.Driver = (*Driver)(nil)

// Open loads the P4Info, connects to every configured switch and becomes
// primary controller on their stream channels.
func Open(wg *sync.WaitGroup, cfg *factory.Fabric) (*Driver, error) {
	p4info, err := loadP4Info(cfg.P4Info)
	if err != nil {
		return nil, err
	}
	d, err := newDriver(wg, cfg, p4info)
	if err != nil {
		return nil, err
	}

	var deviceConfig []byte
	if cfg.DeviceConfig != "" {
		deviceConfig, err = ioutil.ReadFile(cfg.DeviceConfig)
		if err != nil {
			return nil, errors.Wrapf(err, "read device config %q", cfg.DeviceConfig)
		}
	}

	for _, swCfg := range cfg.Switches {
		sw, err := d.connect(swCfg, deviceConfig)
		if err != nil {
			d.Close()
			return nil, errors.Wrapf(err, "switch %q", swCfg.Name)
		}
		d.switches[sw.id] = sw
	}
	return d, nil
}

func newDriver(wg *sync.WaitGroup, cfg *factory.Fabric, p4info *p4config.P4Info) (*Driver, error) {
	l2, err := NewOperator(cfg.L2Table, p4info)
	if err != nil {
		return nil, err
	}
	if len(l2.table.GetMatchFields()) != l2FieldCount {
		return nil, errors.Errorf("table %s must match on (ingress port, destination address)", cfg.L2Table)
	}
	if findAction(p4info, cfg.OutputAction) == nil {
		return nil, errors.Errorf("action %q not found in p4info", cfg.OutputAction)
	}

	packetIn := findPacketMetadata(p4info, cfg.PacketInMeta)
	if packetIn == nil {
		return nil, errors.Errorf("controller header %q not found in p4info", cfg.PacketInMeta)
	}
	inPort := findMetadataField(packetIn, IngressPortMeta)
	if inPort == nil {
		return nil, errors.Errorf("controller header %q has no %s", cfg.PacketInMeta, IngressPortMeta)
	}
	packetOut := findPacketMetadata(p4info, cfg.PacketOutMeta)
	if packetOut == nil {
		return nil, errors.Errorf("controller header %q not found in p4info", cfg.PacketOutMeta)
	}
	if findMetadataField(packetOut, EgressPortMeta) == nil {
		return nil, errors.Errorf("controller header %q has no %s", cfg.PacketOutMeta, EgressPortMeta)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Driver{
		cfg:        cfg,
		p4info:     p4info,
		l2:         l2,
		packetIn:   packetIn,
		packetOut:  packetOut,
		inPortID:   inPort.GetId(),
		electionID: &p4.Uint128{High: 0, Low: cfg.ElectionID},
		switches:   make(map[fabric.SwitchID]*switchConn),
		installed:  make(map[installKey]time.Time),
		ctx:        ctx,
		cancel:     cancel,
		wg:         wg,
		now:        time.Now,
		log:        logger.FabricLog,
	}, nil
}

func (d *Driver) connect(swCfg factory.Switch, deviceConfig []byte) (*switchConn, error) {
	sw := &switchConn{
		id:   fabric.SwitchID(swCfg.DeviceID),
		name: swCfg.Name,
		log:  d.log.WithField(logger.FieldSwitch, swCfg.Name),
	}
	for _, p := range swCfg.Ports {
		sw.ports = append(sw.ports, fabric.PortID(p))
	}

	conn, err := grpc.Dial(swCfg.GRPC, grpc.WithInsecure())
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", swCfg.GRPC)
	}
	sw.conn = conn
	client := p4.NewP4RuntimeClient(conn)
	sw.client = client

	stream, err := client.StreamChannel(d.ctx)
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "open stream channel")
	}
	sw.stream = stream

	// the switch answers on the stream, the receiver logs the outcome
	err = sw.send(&p4.StreamMessageRequest{
		Update: &p4.StreamMessageRequest_Arbitration{
			Arbitration: &p4.MasterArbitrationUpdate{
				DeviceId:   swCfg.DeviceID,
				ElectionId: d.electionID,
			},
		},
	})
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "send arbitration")
	}

	if deviceConfig != nil {
		ctx, cancel := context.WithTimeout(d.ctx, WRITE_TIMEOUT*time.Second)
		defer cancel()
		_, err = client.SetForwardingPipelineConfig(ctx, &p4.SetForwardingPipelineConfigRequest{
			DeviceId:   swCfg.DeviceID,
			ElectionId: d.electionID,
			Action:     p4.SetForwardingPipelineConfigRequest_VERIFY_AND_COMMIT,
			Config: &p4.ForwardingPipelineConfig{
				P4Info:         d.p4info,
				P4DeviceConfig: deviceConfig,
			},
		})
		if err != nil {
			conn.Close()
			return nil, errors.Wrap(err, "set forwarding pipeline config")
		}
		sw.log.Infoln("forwarding pipeline config pushed")
	}

	sw.log.Infof("connected to %s, device id %d", swCfg.GRPC, swCfg.DeviceID)
	return sw, nil
}

// Start runs one receiver per switch and the statistics poller. Events are
// handed to h from those goroutines.
func (d *Driver) Start(h fabric.EventHandler) error {
	if h == nil {
		return errors.New("nil event handler")
	}
	for _, sw := range d.switches {
		d.wg.Add(1)
		go d.receiver(sw, h)
	}
	d.wg.Add(1)
	go d.statsPoller(h)
	d.log.Infof("fabric started with %d switches", len(d.switches))
	return nil
}

func (d *Driver) Close() {
	d.cancel()
	for _, sw := range d.switches {
		if sw.stream != nil {
			if err := sw.stream.CloseSend(); err != nil {
				sw.log.Warnf("close stream: %v", err)
			}
		}
		if sw.conn != nil {
			if err := sw.conn.Close(); err != nil {
				sw.log.Warnf("close connection: %v", err)
			}
		}
	}
}

func (d *Driver) DecodeFrame(raw []byte) (*fabric.Frame, error) {
	return fabric.DecodeFrame(raw)
}

func (d *Driver) UpPorts(id fabric.SwitchID) []fabric.PortID {
	sw, ok := d.switches[id]
	if !ok {
		return nil
	}
	ports := make([]fabric.PortID, len(sw.ports))
	copy(ports, sw.ports)
	return ports
}

func (d *Driver) InstallFlow(id fabric.SwitchID, rule *fabric.FlowRule) error {
	sw, ok := d.switches[id]
	if !ok {
		return errors.Errorf("unknown switch %d", id)
	}
	entry, err := d.l2Entry(rule)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(d.ctx, WRITE_TIMEOUT*time.Second)
	defer cancel()
	if err := InsertTableEntry(ctx, sw.client, uint64(id), d.electionID, entry); err != nil {
		return err
	}

	d.installMu.Lock()
	d.installed[installKey{sw: id, match: rule.Match}] = d.now()
	d.installMu.Unlock()
	return nil
}

func (d *Driver) l2Entry(rule *fabric.FlowRule) (*p4.TableEntry, error) {
	if len(rule.Actions) != 1 || rule.Actions[0].Type != fabric.ActionOutput {
		return nil, errors.Errorf("%s: only a single output action is supported", rule)
	}
	matchKeys := []*MatchKey{
		l2InPortField: {ExactValue: encodeUint(uint64(rule.Match.InPort), d.l2.FieldBitwidth(l2InPortField))},
		l2EthDstField: {ExactValue: encodeUint(uint64(rule.Match.EthDst), d.l2.FieldBitwidth(l2EthDstField))},
	}
	params := [][]byte{
		encodeUint(uint64(rule.Actions[0].Port), d.l2.ActionParamBitwidth(d.cfg.OutputAction, 0)),
	}
	return d.l2.EntryBuilder(matchKeys, d.cfg.OutputAction, params, int32(rule.Priority))
}

func (d *Driver) Transmit(id fabric.SwitchID, port fabric.PortID, frame []byte) error {
	sw, ok := d.switches[id]
	if !ok {
		return errors.Errorf("unknown switch %d", id)
	}

	var metadata []*p4.PacketMetadata
	for _, m := range d.packetOut.GetMetadata() {
		var v uint64
		if m.GetName() == EgressPortMeta {
			v = uint64(port)
		}
		metadata = append(metadata, &p4.PacketMetadata{
			MetadataId: m.GetId(),
			Value:      encodeUint(v, m.GetBitwidth()),
		})
	}
	err := sw.send(&p4.StreamMessageRequest{
		Update: &p4.StreamMessageRequest_Packet{
			Packet: &p4.PacketOut{
				Payload:  frame,
				Metadata: metadata,
			},
		},
	})
	if err != nil {
		return errors.Wrapf(err, "switch %d: packet-out on port %d", id, port)
	}
	return nil
}

func (d *Driver) receiver(sw *switchConn, h fabric.EventHandler) {
	defer func() {
		if p := recover(); p != nil {
			// Print stack for panic to log. Fatalf() will let program exit.
			sw.log.Fatalf("panic: %v\n%s", p, string(debug.Stack()))
		}

		sw.log.Infoln("stream receiver stopped")
		d.wg.Done()
	}()

	for {
		msg, err := sw.stream.Recv()
		if err != nil {
			if d.ctx.Err() == nil {
				sw.log.Errorf("stream: %+v", err)
			}
			return
		}
		if err := d.dispatch(sw, msg, h); err != nil {
			sw.log.Warnln(err)
		}
	}
}

func (d *Driver) dispatch(sw *switchConn, msg *p4.StreamMessageResponse, h fabric.EventHandler) error {
	switch update := msg.GetUpdate().(type) {
	case *p4.StreamMessageResponse_Packet:
		pkt, err := d.packetInEvent(sw.id, update.Packet)
		if err != nil {
			return err
		}
		h.HandlePacketIn(pkt)
	case *p4.StreamMessageResponse_Arbitration:
		if code := update.Arbitration.GetStatus().GetCode(); code != 0 {
			sw.log.Warnf("not primary controller (status %d): %s",
				code, update.Arbitration.GetStatus().GetMessage())
		} else {
			sw.log.Infoln("primary controller")
		}
	case *p4.StreamMessageResponse_Error:
		sw.log.Warnf("stream error: %v", update.Error)
	default:
		return errors.Errorf("unknown stream message type: %T", update)
	}
	return nil
}

func (d *Driver) packetInEvent(id fabric.SwitchID, pkt *p4.PacketIn) (*fabric.PacketIn, error) {
	for _, m := range pkt.GetMetadata() {
		if m.GetMetadataId() != d.inPortID {
			continue
		}
		port, err := decodeUint(m.GetValue())
		if err != nil {
			return nil, errors.Wrapf(err, "packet-in %s", IngressPortMeta)
		}
		return &fabric.PacketIn{
			Switch: id,
			InPort: fabric.PortID(port),
			Frame:  pkt.GetPayload(),
		}, nil
	}
	return nil, errors.Errorf("packet-in without %s metadata", IngressPortMeta)
}

func (d *Driver) statsPoller(h fabric.EventHandler) {
	defer func() {
		if p := recover(); p != nil {
			// Print stack for panic to log. Fatalf() will let program exit.
			d.log.Fatalf("panic: %v\n%s", p, string(debug.Stack()))
		}

		d.log.Infoln("stats poller stopped")
		d.wg.Done()
	}()

	interval := d.cfg.StatsInterval
	if interval <= 0 {
		interval = factory.L2aDefaultStatsInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, sw := range d.switches {
				if err := d.pollStats(sw, h); err != nil {
					sw.log.Warnf("poll stats: %v", err)
				}
			}
		case <-d.ctx.Done():
			return
		}
	}
}

func (d *Driver) pollStats(sw *switchConn, h fabric.EventHandler) error {
	ctx, cancel := context.WithTimeout(d.ctx, READ_TIMEOUT*time.Second)
	defer cancel()
	counters, err := ReadDirectCounters(ctx, sw.client, uint64(sw.id), d.l2.TableID())
	if err != nil {
		return err
	}

	for _, c := range counters {
		match, err := d.flowMatch(c.GetTableEntry())
		if err != nil {
			sw.log.Debugf("skip counter: %v", err)
			continue
		}
		elapsed := d.elapsed(installKey{sw: sw.id, match: match})
		h.HandleFlowStats(fabric.FlowStatsReport{
			Switch:              sw.id,
			Match:               match,
			ByteCount:           uint64(c.GetData().GetByteCount()),
			PacketCount:         uint64(c.GetData().GetPacketCount()),
			DurationSeconds:     uint32(elapsed / time.Second),
			DurationNanoseconds: uint32(elapsed % time.Second),
		})
	}
	return nil
}

func (d *Driver) flowMatch(entry *p4.TableEntry) (fabric.FlowMatch, error) {
	values, err := d.l2.ExactValues(entry)
	if err != nil {
		return fabric.FlowMatch{}, err
	}
	if values[l2InPortField] == nil || values[l2EthDstField] == nil {
		return fabric.FlowMatch{}, errors.New("entry does not match on both port and address")
	}
	port, err := decodeUint(values[l2InPortField])
	if err != nil {
		return fabric.FlowMatch{}, err
	}
	dst, err := decodeUint(values[l2EthDstField])
	if err != nil {
		return fabric.FlowMatch{}, err
	}
	return fabric.FlowMatch{
		InPort: fabric.PortID(port),
		EthDst: fabric.HardwareAddr(dst),
	}, nil
}

// elapsed is the time since the entry was installed. Entries this controller
// did not install are timed from the first time they are seen.
func (d *Driver) elapsed(key installKey) time.Duration {
	now := d.now()
	d.installMu.Lock()
	defer d.installMu.Unlock()
	t, ok := d.installed[key]
	if !ok {
		d.installed[key] = now
		return 0
	}
	return now.Sub(t)
}
