package p4rt

import (
	"context"
	"testing"

	p4config "github.com/p4lang/p4runtime/go/p4/config/v1"
	p4 "github.com/p4lang/p4runtime/go/p4/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testL2Table      = "IngressPipeImpl.l2_exact_table"
	testL2TableID    = 33605373
	testOutputAction = "IngressPipeImpl.set_egress_port"
	testOutputID     = 16812802
)

func testP4Info(t *testing.T) *p4config.P4Info {
	t.Helper()
	p4info, err := loadP4Info("testdata/l2.p4info.txt")
	require.NoError(t, err)
	return p4info
}

func TestLoadP4Info(t *testing.T) {
	p4info := testP4Info(t)
	require.Len(t, p4info.GetTables(), 1)
	assert.Equal(t, uint32(testL2TableID), p4info.GetTables()[0].GetPreamble().GetId())
	assert.NotNil(t, findAction(p4info, testOutputAction))
	assert.NotNil(t, findPacketMetadata(p4info, "packet_in"))

	_, err := loadP4Info("testdata/missing.txt")
	assert.Error(t, err)
}

func TestNewOperatorUnknownTable(t *testing.T) {
	_, err := NewOperator("IngressPipeImpl.nope", testP4Info(t))
	assert.Error(t, err)
}

func TestEntryBuilderExact(t *testing.T) {
	opt, err := NewOperator(testL2Table, testP4Info(t))
	require.NoError(t, err)
	assert.False(t, opt.NeedsPriority())
	assert.Equal(t, int32(9), opt.FieldBitwidth(0))
	assert.Equal(t, int32(48), opt.FieldBitwidth(1))
	assert.Equal(t, int32(0), opt.FieldBitwidth(2))

	entry, err := opt.EntryBuilder([]*MatchKey{
		{ExactValue: []byte{0x00, 0x03}},
		{ExactValue: []byte{0x0a, 0x1b, 0x2c, 0x3d, 0x4e, 0x5f}},
	}, testOutputAction, [][]byte{{0x00, 0x07}}, 10)
	require.NoError(t, err)

	assert.Equal(t, uint32(testL2TableID), entry.GetTableId())
	assert.Equal(t, int32(0), entry.GetPriority())
	require.Len(t, entry.GetMatch(), 2)
	assert.Equal(t, uint32(1), entry.GetMatch()[0].GetFieldId())
	assert.Equal(t, []byte{0x00, 0x03}, entry.GetMatch()[0].GetExact().GetValue())
	action := entry.GetAction().GetAction()
	require.NotNil(t, action)
	assert.Equal(t, uint32(testOutputID), action.GetActionId())
	require.Len(t, action.GetParams(), 1)
	assert.Equal(t, []byte{0x00, 0x07}, action.GetParams()[0].GetValue())

	values, err := opt.ExactValues(entry)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{0x00, 0x03}, {0x0a, 0x1b, 0x2c, 0x3d, 0x4e, 0x5f}}, values)
}

func TestEntryBuilderErrors(t *testing.T) {
	opt, err := NewOperator(testL2Table, testP4Info(t))
	require.NoError(t, err)

	_, err = opt.EntryBuilder([]*MatchKey{{ExactValue: []byte{1}}}, testOutputAction, [][]byte{{1}}, 0)
	assert.Error(t, err, "too few match keys")

	keys := []*MatchKey{{ExactValue: []byte{1}}, {ExactValue: []byte{2}}}
	_, err = opt.EntryBuilder(keys, "IngressPipeImpl.nope", nil, 0)
	assert.Error(t, err, "unknown action")
	_, err = opt.EntryBuilder(keys, testOutputAction, nil, 0)
	assert.Error(t, err, "missing action param")
}

func TestEntryBuilderTernaryPriority(t *testing.T) {
	p4info := &p4config.P4Info{
		Tables: []*p4config.Table{
			{
				Preamble: &p4config.Preamble{Id: 1, Name: "acl"},
				MatchFields: []*p4config.MatchField{
					{
						Id:       1,
						Name:     "hdr.ethernet.ether_type",
						Bitwidth: 16,
						Match:    &p4config.MatchField_MatchType_{MatchType: p4config.MatchField_TERNARY},
					},
					{
						Id:       2,
						Name:     "hdr.ipv4.dst_addr",
						Bitwidth: 32,
						Match:    &p4config.MatchField_MatchType_{MatchType: p4config.MatchField_LPM},
					},
				},
			},
		},
		Actions: []*p4config.Action{
			{Preamble: &p4config.Preamble{Id: 2, Name: "drop"}},
		},
	}
	opt, err := NewOperator("acl", p4info)
	require.NoError(t, err)
	assert.True(t, opt.NeedsPriority())

	entry, err := opt.EntryBuilder([]*MatchKey{
		{TernaryValue: []byte{0x08, 0x00}, TernaryMask: []byte{0xff, 0xff}},
		{DontCare: true},
	}, "drop", nil, 42)
	require.NoError(t, err)
	assert.Equal(t, int32(42), entry.GetPriority())
	require.Len(t, entry.GetMatch(), 1)
	assert.Equal(t, []byte{0xff, 0xff}, entry.GetMatch()[0].GetTernary().GetMask())

	_, err = opt.ExactValues(entry)
	assert.Error(t, err)
}

func TestEncodeDecodeUint(t *testing.T) {
	assert.Equal(t, []byte{0x01, 0xff}, encodeUint(511, 9))
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x0b}, encodeUint(0x0b, 48))
	assert.Equal(t, []byte{0x05}, encodeUint(5, 0))

	v, err := decodeUint([]byte{0x01, 0xff})
	require.NoError(t, err)
	assert.Equal(t, uint64(511), v)

	v, err = decodeUint([]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0x2a})
	require.NoError(t, err)
	assert.Equal(t, uint64(42), v)

	_, err = decodeUint([]byte{1, 0, 0, 0, 0, 0, 0, 0, 0})
	assert.Error(t, err)
}

func TestInsertTableEntryRequest(t *testing.T) {
	client := &fakeClient{}
	entry := &p4.TableEntry{TableId: testL2TableID}

	require.NoError(t, InsertTableEntry(context.Background(), client, 3, &p4.Uint128{Low: 9}, entry))
	require.Len(t, client.writes, 1)
	req := client.writes[0]
	assert.Equal(t, uint64(3), req.GetDeviceId())
	assert.Equal(t, uint64(9), req.GetElectionId().GetLow())
	require.Len(t, req.GetUpdates(), 1)
	assert.Equal(t, p4.Update_INSERT, req.GetUpdates()[0].GetType())
	assert.Equal(t, entry, req.GetUpdates()[0].GetEntity().GetTableEntry())
}
