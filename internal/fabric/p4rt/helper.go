package p4rt

import (
	"io/ioutil"

	"github.com/golang/protobuf/proto"
	p4config "github.com/p4lang/p4runtime/go/p4/config/v1"
	"github.com/pkg/errors"
)

// encodeUint writes v big-endian into the number of bytes a field of
// bitwidth bits takes.
func encodeUint(v uint64, bitwidth int32) []byte {
	n := (bitwidth + 7) / 8
	if n <= 0 {
		n = 1
	}
	b := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

func decodeUint(b []byte) (uint64, error) {
	if len(b) > 8 {
		// leading zero bytes are allowed, anything else overflows
		for _, x := range b[:len(b)-8] {
			if x != 0 {
				return 0, errors.Errorf("value of %d bytes overflows uint64", len(b))
			}
		}
		b = b[len(b)-8:]
	}
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v, nil
}

func loadP4Info(path string) (*p4config.P4Info, error) {
	content, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read p4info %q", path)
	}
	p4info := &p4config.P4Info{}
	if err := proto.UnmarshalText(string(content), p4info); err != nil {
		return nil, errors.Wrapf(err, "decode p4info %q", path)
	}
	return p4info, nil
}

func findAction(p4info *p4config.P4Info, name string) *p4config.Action {
	for _, item := range p4info.GetActions() {
		if item.GetPreamble().GetName() == name {
			return item
		}
	}
	return nil
}

func findPacketMetadata(p4info *p4config.P4Info, name string) *p4config.ControllerPacketMetadata {
	for _, item := range p4info.GetControllerPacketMetadata() {
		if item.GetPreamble().GetName() == name {
			return item
		}
	}
	return nil
}

func findMetadataField(header *p4config.ControllerPacketMetadata, name string) *p4config.ControllerPacketMetadata_Metadata {
	for _, m := range header.GetMetadata() {
		if m.GetName() == name {
			return m
		}
	}
	return nil
}
