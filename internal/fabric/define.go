package fabric

import (
	"fmt"
	"net"

	"github.com/pkg/errors"
)

// SwitchID is the P4Runtime device id of a switch.
type SwitchID uint64

// PortID is a switch-local port number.
type PortID uint32

// HardwareAddr is a 48-bit link-layer address packed into the low bits.
type HardwareAddr uint64

// ProtocolID is an 8-bit IP protocol number.
type ProtocolID uint8

// ProtocolAny stands for "any/unspecified protocol" in flow statistics.
const ProtocolAny ProtocolID = 0xff

const hardwareAddrLen = 6

func HardwareAddrFromBytes(b []byte) (HardwareAddr, error) {
	if len(b) != hardwareAddrLen {
		return 0, errors.Errorf("hardware address must be %d bytes, got %d", hardwareAddrLen, len(b))
	}
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return HardwareAddr(v), nil
}

func ParseHardwareAddr(s string) (HardwareAddr, error) {
	mac, err := net.ParseMAC(s)
	if err != nil {
		return 0, errors.Wrapf(err, "parse hardware address %q", s)
	}
	return HardwareAddrFromBytes(mac)
}

func (a HardwareAddr) Bytes() []byte {
	b := make([]byte, hardwareAddrLen)
	for i := hardwareAddrLen - 1; i >= 0; i-- {
		b[i] = byte(a)
		a >>= 8
	}
	return b
}

func (a HardwareAddr) String() string {
	return net.HardwareAddr(a.Bytes()).String()
}

type ActionType int

const (
	ActionOutput ActionType = iota
)

func (t ActionType) String() string {
	switch t {
	case ActionOutput:
		return "output"
	default:
		return fmt.Sprintf("action(%d)", int(t))
	}
}

// Action is one step of a flow rule's action list.
type Action struct {
	Type ActionType
	Port PortID
}

func Output(port PortID) Action {
	return Action{Type: ActionOutput, Port: port}
}

// FlowMatch is the match predicate of a learned L2 flow. It also serves as
// the identity of the flow in statistics reports.
type FlowMatch struct {
	InPort PortID
	EthDst HardwareAddr
}

func (m FlowMatch) String() string {
	return fmt.Sprintf("in_port=%d,dl_dst=%s", m.InPort, m.EthDst)
}

type FlowRule struct {
	Match    FlowMatch
	Actions  []Action
	Priority uint16
}

func (r *FlowRule) String() string {
	return fmt.Sprintf("Flow[%s actions=%v priority=%d]", r.Match, r.Actions, r.Priority)
}

// PacketIn is a frame punted to the controller by a switch.
type PacketIn struct {
	Switch SwitchID
	InPort PortID
	Frame  []byte
}

// FlowStatsReport carries the counters of one installed flow. A nil Protocol
// means the flow does not match on a protocol.
type FlowStatsReport struct {
	Switch              SwitchID
	Match               FlowMatch
	Protocol            *ProtocolID
	ByteCount           uint64
	PacketCount         uint64
	DurationSeconds     uint32
	DurationNanoseconds uint32
}
