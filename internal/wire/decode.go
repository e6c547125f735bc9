package wire

import (
	"fmt"

	"github.com/loro-dev/loro-go/internal/errs"
	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/internal/op"
	"github.com/loro-dev/loro-go/internal/oplog"
)

// ImportJSONUpdates is the inverse of ExportJSONUpdates: it must accept
// any JSON this (or an earlier, same-major-release) version produced
// (spec.md §6.3).
func ImportJSONUpdates(raw []byte) ([]*oplog.Change, error) {
	var in []jsonChange
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrDecode, err)
	}
	out := make([]*oplog.Change, len(in))
	for i, jc := range in {
		c, err := changeFromJSON(jc)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

func changeFromJSON(jc jsonChange) (*oplog.Change, error) {
	ops := make([]op.Op, len(jc.Ops))
	for i, jo := range jc.Ops {
		o, err := opFromJSON(jo)
		if err != nil {
			return nil, err
		}
		ops[i] = o
	}
	return &oplog.Change{
		ID:        fromJSONID(jc.ID),
		Lamport:   jc.Lamport,
		Timestamp: jc.Timestamp,
		Deps:      id.Frontiers(fromJSONIDs(jc.Deps)),
		Message:   jc.Message,
		Ops:       ops,
	}, nil
}

func opFromJSON(jo jsonOp) (op.Op, error) {
	cid := fromJSONContainerID(jo.Container)
	var content op.Content
	switch jo.Kind {
	case "Map.Set":
		content = op.MapSet{Key: jo.Key, Value: valueFromJSON(derefJV(jo.Value))}
	case "Map.Delete":
		content = op.MapDelete{Key: jo.Key}
	case "List.Insert":
		listVal := valueFromJSON(derefJV(jo.Value))
		content = op.ListInsert{Pos: jo.Pos, Values: listVal.List}
	case "List.Delete":
		content = op.ListDelete{Pos: jo.Pos, Len: jo.Len, TargetIDs: fromJSONIDs(jo.TargetIDs)}
	case "Text.Insert":
		content = op.TextInsert{Pos: jo.Pos, Text: jo.Text, UnicodeLen: len([]rune(jo.Text))}
	case "Text.Delete":
		content = op.TextDelete{Pos: jo.Pos, Len: jo.Len, TargetIDs: fromJSONIDs(jo.TargetIDs)}
	case "Text.StyleStart":
		content = op.StyleStart{Start: jo.Pos, End: jo.Len, Key: jo.Key, Value: valueFromJSON(derefJV(jo.Value)), Expand: op.ExpandPolicy(jo.Expand), ToDelete: jo.ToDelete}
	case "Text.StyleEnd":
		content = op.StyleEnd{}
	case "MovableList.Move":
		content = op.MovableListMove{ElemID: fromJSONID(derefJID(jo.ElemID)), From: jo.From, To: jo.To}
	case "MovableList.Set":
		content = op.MovableListSet{ElemID: fromJSONID(derefJID(jo.ElemID)), Value: valueFromJSON(derefJV(jo.Value))}
	case "Tree.Create":
		content = op.TreeCreate{Target: fromJSONID(derefJID(jo.Target)), Parent: parentFromJSON(jo.Parent), Position: jo.Position}
	case "Tree.Move":
		content = op.TreeMove{Target: fromJSONID(derefJID(jo.Target)), Parent: parentFromJSON(jo.Parent), Position: jo.Position}
	case "Tree.Delete":
		content = op.TreeDelete{Target: fromJSONID(derefJID(jo.Target))}
	case "Counter.Add":
		content = op.CounterAdd{Delta: jo.Delta}
	default:
		return op.Op{}, fmt.Errorf("%w: unknown op kind %q", errs.ErrDecode, jo.Kind)
	}
	return op.Op{Container: cid, Content: content}, nil
}

func derefJV(jv *jsonValue) jsonValue {
	if jv == nil {
		return jsonValue{Kind: "null"}
	}
	return *jv
}

func derefJID(j *jsonID) jsonID {
	if j == nil {
		return jsonID{}
	}
	return *j
}

func parentFromJSON(j *jsonID) *id.ID {
	if j == nil {
		return nil
	}
	v := fromJSONID(*j)
	return &v
}
