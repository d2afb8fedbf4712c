package fabric

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
)

var ErrNotEthernet = errors.New("not an ethernet frame")

// Frame is the decoded link-layer header of a punted packet.
type Frame struct {
	Src       HardwareAddr
	Dst       HardwareAddr
	EtherType layers.EthernetType
}

// DecodeFrame decodes raw as an Ethernet frame. Anything else, including a
// truncated header, yields ErrNotEthernet.
func DecodeFrame(raw []byte) (*Frame, error) {
	if len(raw) == 0 {
		return nil, ErrNotEthernet
	}
	pkt := gopacket.NewPacket(raw, layers.LayerTypeEthernet, gopacket.DecodeOptions{
		Lazy:   true,
		NoCopy: true,
	})
	eth, ok := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	if !ok {
		return nil, ErrNotEthernet
	}

	src, err := HardwareAddrFromBytes(eth.SrcMAC)
	if err != nil {
		return nil, errors.Wrap(ErrNotEthernet, err.Error())
	}
	dst, err := HardwareAddrFromBytes(eth.DstMAC)
	if err != nil {
		return nil, errors.Wrap(ErrNotEthernet, err.Error())
	}
	return &Frame{
		Src:       src,
		Dst:       dst,
		EtherType: eth.EthernetType,
	}, nil
}
