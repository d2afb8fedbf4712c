package p4rt

// Packet metadata carried in the controller headers of the L2 pipeline.
const (
	IngressPortMeta string = "ingress_port"
	EgressPortMeta  string = "egress_port"
)

// Positions of the match fields of the L2 table. The table must match on the
// ingress port first and on the destination address second.
const (
	l2InPortField = iota
	l2EthDstField
	l2FieldCount
)

const (
	WRITE_TIMEOUT = 5  // seconds
	READ_TIMEOUT  = 10 // seconds
)

// MatchKey holds the value of one match field, for any of the four match
// kinds: exact, lpm, ternary and range.
type MatchKey struct {
	ExactValue   []byte
	LpmValue     []byte
	LpmPrefixLen int32
	TernaryValue []byte
	TernaryMask  []byte
	RangeLow     []byte
	RangeHigh    []byte
	DontCare     bool
}
