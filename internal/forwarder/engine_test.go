package forwarder

import (
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/free5gc/go-l2agent/internal/fabric"
)

type transmission struct {
	sw    fabric.SwitchID
	port  fabric.PortID
	frame []byte
}

type installation struct {
	sw   fabric.SwitchID
	rule *fabric.FlowRule
}

// fakeFabric decodes frames of the form [src(1 byte), dst(1 byte), ...].
type fakeFabric struct {
	mu         sync.Mutex
	ports      []fabric.PortID
	failPorts  map[fabric.PortID]bool
	installErr error
	sent       []transmission
	installed  []installation
}

func (f *fakeFabric) DecodeFrame(raw []byte) (*fabric.Frame, error) {
	if len(raw) < 2 {
		return nil, fabric.ErrNotEthernet
	}
	return &fabric.Frame{
		Src: fabric.HardwareAddr(raw[0]),
		Dst: fabric.HardwareAddr(raw[1]),
	}, nil
}

func (f *fakeFabric) UpPorts(fabric.SwitchID) []fabric.PortID {
	return f.ports
}

func (f *fakeFabric) InstallFlow(sw fabric.SwitchID, rule *fabric.FlowRule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.installErr != nil {
		return f.installErr
	}
	f.installed = append(f.installed, installation{sw: sw, rule: rule})
	return nil
}

func (f *fakeFabric) Transmit(sw fabric.SwitchID, port fabric.PortID, frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPorts[port] {
		return errors.Errorf("port %d is down", port)
	}
	f.sent = append(f.sent, transmission{sw: sw, port: port, frame: frame})
	return nil
}

func TestHandlePacketInFloodsUnknownDestination(t *testing.T) {
	fab := &fakeFabric{ports: []fabric.PortID{1, 2, 3, 4}}
	e := NewEngine(fab)

	frame := []byte{0x0a, 0x0b, 0xff}
	result := e.HandlePacketIn(&fabric.PacketIn{Switch: 1, InPort: 2, Frame: frame})

	assert.Equal(t, ResultFlooded, result)
	assert.Empty(t, fab.installed)
	require.Len(t, fab.sent, 3)
	for _, tx := range fab.sent {
		assert.NotEqual(t, fabric.PortID(2), tx.port)
		assert.Equal(t, frame, tx.frame)
	}
	// each port gets its own copy
	fab.sent[0].frame[2] = 0x00
	assert.Equal(t, byte(0xff), fab.sent[1].frame[2])
	assert.Equal(t, byte(0xff), frame[2])

	port, ok := e.LookupOutputPort(1, 0x0a)
	require.True(t, ok)
	assert.Equal(t, fabric.PortID(2), port)
}

func TestHandlePacketInFloodSkipsFailingPorts(t *testing.T) {
	fab := &fakeFabric{
		ports:     []fabric.PortID{1, 2, 3, 4},
		failPorts: map[fabric.PortID]bool{3: true},
	}
	e := NewEngine(fab)

	result := e.HandlePacketIn(&fabric.PacketIn{Switch: 1, InPort: 1, Frame: []byte{0x0a, 0x0b}})

	assert.Equal(t, ResultFlooded, result)
	require.Len(t, fab.sent, 2)
	assert.Equal(t, fabric.PortID(2), fab.sent[0].port)
	assert.Equal(t, fabric.PortID(4), fab.sent[1].port)
}

func TestHandlePacketInInstallsKnownDestination(t *testing.T) {
	fab := &fakeFabric{ports: []fabric.PortID{1, 2, 3}}
	e := NewEngine(fab, WithFlowPriority(7))

	// b says hello from port 3, then a answers from port 1.
	assert.Equal(t, ResultFlooded, e.HandlePacketIn(&fabric.PacketIn{Switch: 5, InPort: 3, Frame: []byte{0x0b, 0x0a}}))
	fab.sent = nil
	result := e.HandlePacketIn(&fabric.PacketIn{Switch: 5, InPort: 1, Frame: []byte{0x0a, 0x0b}})

	assert.Equal(t, ResultInstalled, result)
	assert.Empty(t, fab.sent)
	require.Len(t, fab.installed, 1)
	got := fab.installed[0]
	assert.Equal(t, fabric.SwitchID(5), got.sw)
	assert.Equal(t, fabric.FlowMatch{InPort: 1, EthDst: 0x0b}, got.rule.Match)
	assert.Equal(t, []fabric.Action{fabric.Output(3)}, got.rule.Actions)
	assert.Equal(t, uint16(7), got.rule.Priority)
}

func TestHandlePacketInInstallFailureDoesNotFlood(t *testing.T) {
	fab := &fakeFabric{ports: []fabric.PortID{1, 2, 3}}
	tbl := NewAddressTable()
	tbl.Learn(1, 0x0b, 2)
	e := NewEngine(fab, WithAddressTable(tbl))
	fab.installErr = errors.New("device busy")

	result := e.HandlePacketIn(&fabric.PacketIn{Switch: 1, InPort: 1, Frame: []byte{0x0a, 0x0b}})

	assert.Equal(t, ResultInstallFailed, result)
	assert.Empty(t, fab.sent)
	port, ok := tbl.Lookup(1, 0x0a)
	require.True(t, ok)
	assert.Equal(t, fabric.PortID(1), port)
}

func TestHandlePacketInIgnoresUndecodableFrames(t *testing.T) {
	fab := &fakeFabric{ports: []fabric.PortID{1, 2}}
	e := NewEngine(fab)

	assert.Equal(t, ResultIgnored, e.HandlePacketIn(&fabric.PacketIn{Switch: 1, InPort: 1, Frame: []byte{0x01}}))
	assert.Equal(t, ResultIgnored, e.HandlePacketIn(nil))
	assert.Empty(t, fab.sent)
	assert.Empty(t, fab.installed)
	assert.Equal(t, 0, e.table.Len(1))
}

func TestHandlePacketInDoesNotRelearn(t *testing.T) {
	fab := &fakeFabric{ports: []fabric.PortID{1, 2, 3}}
	e := NewEngine(fab)

	e.HandlePacketIn(&fabric.PacketIn{Switch: 1, InPort: 1, Frame: []byte{0x0a, 0x0c}})
	// a flooded copy of a's frame comes back on port 3
	e.HandlePacketIn(&fabric.PacketIn{Switch: 1, InPort: 3, Frame: []byte{0x0a, 0x0c}})

	port, ok := e.LookupOutputPort(1, 0x0a)
	require.True(t, ok)
	assert.Equal(t, fabric.PortID(1), port)
}
