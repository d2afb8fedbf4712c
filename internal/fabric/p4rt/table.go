package p4rt

import (
	"context"
	"io"

	p4config "github.com/p4lang/p4runtime/go/p4/config/v1"
	p4 "github.com/p4lang/p4runtime/go/p4/v1"
	"github.com/pkg/errors"
	"google.golang.org/grpc"
)

// runtimeClient is the part of p4.P4RuntimeClient used after the pipeline
// has been pushed.
type runtimeClient interface {
	Write(ctx context.Context, in *p4.WriteRequest, opts ...grpc.CallOption) (*p4.WriteResponse, error)
	Read(ctx context.Context, in *p4.ReadRequest, opts ...grpc.CallOption) (p4.P4Runtime_ReadClient, error)
}

// Operator builds entries of one table, resolving field and action ids from
// the P4Info by name.
type Operator struct {
	table  *p4config.Table
	p4info *p4config.P4Info
}

func NewOperator(tableName string, p4info *p4config.P4Info) (*Operator, error) {
	for _, item := range p4info.GetTables() {
		if item.GetPreamble().GetName() == tableName {
			return &Operator{
				table:  item,
				p4info: p4info,
			}, nil
		}
	}
	return nil, errors.Errorf("table %q not found in p4info", tableName)
}

func (opt *Operator) TableID() uint32 {
	return opt.table.GetPreamble().GetId()
}

func (opt *Operator) TableName() string {
	return opt.table.GetPreamble().GetName()
}

// NeedsPriority reports whether entries of the table carry a priority, which
// is the case when any field is ternary or range matched.
func (opt *Operator) NeedsPriority() bool {
	for _, field := range opt.table.GetMatchFields() {
		switch field.GetMatchType() {
		case p4config.MatchField_TERNARY, p4config.MatchField_RANGE:
			return true
		}
	}
	return false
}

// FieldBitwidth returns the width of the i-th match field, 0 if out of range.
func (opt *Operator) FieldBitwidth(i int) int32 {
	fields := opt.table.GetMatchFields()
	if i < 0 || i >= len(fields) {
		return 0
	}
	return fields[i].GetBitwidth()
}

func (opt *Operator) ActionParamBitwidth(actionName string, i int) int32 {
	params := findAction(opt.p4info, actionName).GetParams()
	if i < 0 || i >= len(params) {
		return 0
	}
	return params[i].GetBitwidth()
}

// EntryBuilder builds a table entry from match keys given in the order of the
// table's match fields.
func (opt *Operator) EntryBuilder(matchKeys []*MatchKey, actionName string, params [][]byte, priority int32) (*p4.TableEntry, error) {
	matchFields, err := opt.matchFieldBuilder(matchKeys)
	if err != nil {
		return nil, err
	}
	entryAction, err := opt.entryActionBuilder(actionName, params)
	if err != nil {
		return nil, err
	}
	entry := &p4.TableEntry{
		TableId: opt.TableID(),
		Match:   matchFields,
		Action:  entryAction,
	}
	if opt.NeedsPriority() {
		entry.Priority = priority
	}
	return entry, nil
}

func (opt *Operator) matchFieldBuilder(matchKeys []*MatchKey) ([]*p4.FieldMatch, error) {
	fields := opt.table.GetMatchFields()
	if len(matchKeys) != len(fields) {
		return nil, errors.Errorf("table %s: %d match keys given, %d expected",
			opt.TableName(), len(matchKeys), len(fields))
	}

	var matches []*p4.FieldMatch
	for index, field := range fields {
		matchKey := matchKeys[index]
		if matchKey == nil || matchKey.DontCare {
			continue
		}
		switch field.GetMatchType() {
		case p4config.MatchField_EXACT:
			matches = append(matches, &p4.FieldMatch{
				FieldId: field.GetId(),
				FieldMatchType: &p4.FieldMatch_Exact_{
					Exact: &p4.FieldMatch_Exact{
						Value: matchKey.ExactValue,
					},
				},
			})
		case p4config.MatchField_LPM:
			matches = append(matches, &p4.FieldMatch{
				FieldId: field.GetId(),
				FieldMatchType: &p4.FieldMatch_Lpm{
					Lpm: &p4.FieldMatch_LPM{
						Value:     matchKey.LpmValue,
						PrefixLen: matchKey.LpmPrefixLen,
					},
				},
			})
		case p4config.MatchField_TERNARY:
			matches = append(matches, &p4.FieldMatch{
				FieldId: field.GetId(),
				FieldMatchType: &p4.FieldMatch_Ternary_{
					Ternary: &p4.FieldMatch_Ternary{
						Value: matchKey.TernaryValue,
						Mask:  matchKey.TernaryMask,
					},
				},
			})
		case p4config.MatchField_RANGE:
			matches = append(matches, &p4.FieldMatch{
				FieldId: field.GetId(),
				FieldMatchType: &p4.FieldMatch_Range_{
					Range: &p4.FieldMatch_Range{
						Low:  matchKey.RangeLow,
						High: matchKey.RangeHigh,
					},
				},
			})
		default:
			return nil, errors.Errorf("table %s: field %s has unsupported match type %s",
				opt.TableName(), field.GetName(), field.GetMatchType())
		}
	}
	return matches, nil
}

func (opt *Operator) entryActionBuilder(actionName string, params [][]byte) (*p4.TableAction, error) {
	action := findAction(opt.p4info, actionName)
	if action == nil {
		return nil, errors.Errorf("action %q not found in p4info", actionName)
	}
	if len(params) != len(action.GetParams()) {
		return nil, errors.Errorf("action %s: %d params given, %d expected",
			actionName, len(params), len(action.GetParams()))
	}

	paramsSlice := make([]*p4.Action_Param, 0, len(params))
	for index, actionParam := range action.GetParams() {
		paramsSlice = append(paramsSlice, &p4.Action_Param{
			ParamId: actionParam.GetId(),
			Value:   params[index],
		})
	}
	return &p4.TableAction{
		Type: &p4.TableAction_Action{
			Action: &p4.Action{
				ActionId: action.GetPreamble().GetId(),
				Params:   paramsSlice,
			},
		},
	}, nil
}

// ExactValues returns the exact match values of entry in the order of the
// table's match fields. Fields left out of the entry are nil.
func (opt *Operator) ExactValues(entry *p4.TableEntry) ([][]byte, error) {
	fields := opt.table.GetMatchFields()
	values := make([][]byte, len(fields))
	for _, m := range entry.GetMatch() {
		index := -1
		for i, field := range fields {
			if field.GetId() == m.GetFieldId() {
				index = i
				break
			}
		}
		if index < 0 {
			return nil, errors.Errorf("table %s: unknown field id %d", opt.TableName(), m.GetFieldId())
		}
		exact := m.GetExact()
		if exact == nil {
			return nil, errors.Errorf("table %s: field %s is not exact matched",
				opt.TableName(), fields[index].GetName())
		}
		values[index] = exact.GetValue()
	}
	return values, nil
}

func InsertTableEntry(ctx context.Context, client runtimeClient, deviceID uint64,
	electionID *p4.Uint128, entry *p4.TableEntry) error {
	req := &p4.WriteRequest{
		DeviceId:   deviceID,
		ElectionId: electionID,
		Updates: []*p4.Update{
			{
				Type: p4.Update_INSERT,
				Entity: &p4.Entity{
					Entity: &p4.Entity_TableEntry{
						TableEntry: entry,
					},
				},
			},
		},
	}
	if _, err := client.Write(ctx, req); err != nil {
		return errors.Wrapf(err, "insert entry into table %d", entry.GetTableId())
	}
	return nil
}

// ReadDirectCounters reads the direct counter of every entry of a table.
func ReadDirectCounters(ctx context.Context, client runtimeClient, deviceID uint64,
	tableID uint32) ([]*p4.DirectCounterEntry, error) {
	req := &p4.ReadRequest{
		DeviceId: deviceID,
		Entities: []*p4.Entity{
			{
				Entity: &p4.Entity_DirectCounterEntry{
					DirectCounterEntry: &p4.DirectCounterEntry{
						TableEntry: &p4.TableEntry{
							TableId: tableID,
						},
					},
				},
			},
		},
	}
	stream, err := client.Read(ctx, req)
	if err != nil {
		return nil, errors.Wrapf(err, "read direct counters of table %d", tableID)
	}

	var counters []*p4.DirectCounterEntry
	for {
		rsp, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "read direct counters of table %d", tableID)
		}
		for _, entity := range rsp.GetEntities() {
			if c := entity.GetDirectCounterEntry(); c != nil {
				counters = append(counters, c)
			}
		}
	}
	return counters, nil
}
