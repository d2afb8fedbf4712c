package forwarder

import (
	"github.com/sirupsen/logrus"

	"github.com/free5gc/go-l2agent/internal/fabric"
	"github.com/free5gc/go-l2agent/internal/logger"
	"github.com/free5gc/go-l2agent/internal/metrics"
)

const DefaultFlowPriority uint16 = 1

// Fabric is the subset of fabric.Driver the engine needs.
type Fabric interface {
	DecodeFrame([]byte) (*fabric.Frame, error)
	UpPorts(fabric.SwitchID) []fabric.PortID
	InstallFlow(fabric.SwitchID, *fabric.FlowRule) error
	Transmit(fabric.SwitchID, fabric.PortID, []byte) error
}

// Result is the decision taken for one packet-in event.
type Result int

const (
	ResultIgnored Result = iota
	ResultInstalled
	ResultInstallFailed
	ResultFlooded
)

func (r Result) String() string {
	switch r {
	case ResultIgnored:
		return "ignored"
	case ResultInstalled:
		return "installed"
	case ResultInstallFailed:
		return "install_failed"
	case ResultFlooded:
		return "flooded"
	default:
		return "unknown"
	}
}

// Engine is a reactive learning switch: it learns source addresses from
// packet-ins and either programs a unicast flow or floods the frame.
type Engine struct {
	fabric    Fabric
	table     *AddressTable
	installer *FlowInstaller
	priority  uint16
	log       *logrus.Entry
}

type Option func(*Engine)

func WithFlowPriority(priority uint16) Option {
	return func(e *Engine) {
		e.priority = priority
	}
}

// WithAddressTable lets the caller share or pre-populate the learning table.
func WithAddressTable(t *AddressTable) Option {
	return func(e *Engine) {
		e.table = t
	}
}

func NewEngine(f Fabric, opts ...Option) *Engine {
	e := &Engine{
		fabric:    f,
		table:     NewAddressTable(),
		installer: NewFlowInstaller(f),
		priority:  DefaultFlowPriority,
		log:       logger.FwderLog,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) HandlePacketIn(pkt *fabric.PacketIn) Result {
	result := e.handlePacketIn(pkt)
	metrics.RecordPacketIn(result.String())
	return result
}

func (e *Engine) handlePacketIn(pkt *fabric.PacketIn) Result {
	if pkt == nil {
		return ResultIgnored
	}
	log := e.log.WithField(logger.FieldSwitch, pkt.Switch)
	log.Tracef("Received a frame of size: %d on port %d", len(pkt.Frame), pkt.InPort)

	frame, err := e.fabric.DecodeFrame(pkt.Frame)
	if err != nil {
		log.Tracef("ignored frame: %v", err)
		return ResultIgnored
	}

	if e.table.Learn(pkt.Switch, frame.Src, pkt.InPort) {
		metrics.IncLearnedAddresses()
		log.Infof("Learned %s on port %d", frame.Src, pkt.InPort)
	}

	outPort, ok := e.table.Lookup(pkt.Switch, frame.Dst)
	if !ok {
		e.flood(pkt)
		return ResultFlooded
	}

	rule := &fabric.FlowRule{
		Match: fabric.FlowMatch{
			InPort: pkt.InPort,
			EthDst: frame.Dst,
		},
		Actions:  []fabric.Action{fabric.Output(outPort)},
		Priority: e.priority,
	}
	// The frame is dropped when the install fails.
	if err := e.installer.Install(pkt.Switch, rule); err != nil {
		return ResultInstallFailed
	}
	return ResultInstalled
}

// flood sends a copy of the frame out of every up port but the ingress one.
// A port that fails is skipped.
func (e *Engine) flood(pkt *fabric.PacketIn) {
	log := e.log.WithField(logger.FieldSwitch, pkt.Switch)
	for _, port := range e.fabric.UpPorts(pkt.Switch) {
		if port == pkt.InPort {
			continue
		}
		out := make([]byte, len(pkt.Frame))
		copy(out, pkt.Frame)
		if err := e.fabric.Transmit(pkt.Switch, port, out); err != nil {
			metrics.RecordFloodTransmit(metrics.OutcomeFailure)
			log.Debugf("flood: skip port %d: %v", port, err)
			continue
		}
		metrics.RecordFloodTransmit(metrics.OutcomeSuccess)
	}
}

// LookupOutputPort reports the port addr was learned on, without learning
// or deciding anything.
func (e *Engine) LookupOutputPort(sw fabric.SwitchID, addr fabric.HardwareAddr) (fabric.PortID, bool) {
	port, ok := e.table.Lookup(sw, addr)
	e.log.Debugf("lookup_output_port: switch = %d, dst = %s, port = %d, found = %t", sw, addr, port, ok)
	return port, ok
}
