// Package wire implements the logical update-blob contract of spec.md
// §6.2/§6.3: two compatible encodings (an updates blob and a snapshot
// blob) that must round-trip, plus a stable JSON projection of the same
// data for export_json_updates/import_json_updates.
package wire

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/loro-dev/loro-go/internal/errs"
	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/internal/op"
	"github.com/loro-dev/loro-go/internal/oplog"
	"github.com/loro-dev/loro-go/internal/value"
	"github.com/loro-dev/loro-go/internal/version"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// BlobKind discriminates the two compatible encodings of spec.md §6.2.
type BlobKind uint8

const (
	KindUpdates BlobKind = iota
	KindSnapshot
)

// UpdateBlob is the logical (pre-byte-encoding) shape shared by both the
// updates blob and the snapshot blob: a self-describing set of Changes,
// each carrying enough dependency information that an importer at any
// version can tell which changes are new (spec.md §6.2). A snapshot
// blob holds every change in the log plus StartVV/StartFrontiers; it
// carries no materialized state, and Document.Import replays its
// changes like those of an updates blob.
//
// The actual byte-level wire codec (varint framing, compression,
// columnar op encoding as in `original_source`'s `encoding/` crate) is
// out of this module's scope per spec.md §1; UpdateBlob is the logical
// contract that EncodeBlob/DecodeBlob serialize as JSON.
type UpdateBlob struct {
	Kind    BlobKind
	Changes []*oplog.Change

	// Snapshot-only: FromSnapshot sets StartVV to an empty vector and
	// StartFrontiers to the exporter's frontiers. They are encoded and
	// decoded; the import path does not read them.
	StartVV        version.VersionVector
	StartFrontiers id.Frontiers
}

// FromExport builds an updates blob covering every change with
// counter >= vv[peer], mirroring OpLog.ExportFrom.
func FromExport(l *oplog.OpLog, vv version.VersionVector) *UpdateBlob {
	return &UpdateBlob{Kind: KindUpdates, Changes: l.ExportFrom(vv)}
}

// FromSnapshot builds a snapshot blob: every change in l plus the
// current version, so a fresh recipient can import it as a single
// bootstrap rather than an incremental update.
func FromSnapshot(l *oplog.OpLog) *UpdateBlob {
	var all []*oplog.Change
	for _, p := range l.AllPeers() {
		all = append(all, l.ChangesOf(p)...)
	}
	return &UpdateBlob{Kind: KindSnapshot, Changes: all, StartVV: version.VersionVector{}, StartFrontiers: l.Frontiers()}
}

// --- JSON projection (spec.md §6.3) ---

type jsonID struct {
	Peer    id.PeerID  `json:"peer"`
	Counter id.Counter `json:"counter"`
}

type jsonValue struct {
	Kind string        `json:"kind"`
	Bool bool          `json:"bool,omitempty"`
	I64  int64         `json:"i64,omitempty"`
	F64  float64       `json:"f64,omitempty"`
	Str  string        `json:"str,omitempty"`
	Bin  []byte        `json:"bin,omitempty"`
	List []jsonValue   `json:"list,omitempty"`
	Map  map[string]jsonValue `json:"map,omitempty"`
	Cid  string        `json:"cid,omitempty"`
}

func valueToJSON(v value.Value) jsonValue {
	switch v.Kind {
	case value.KindNull:
		return jsonValue{Kind: "null"}
	case value.KindBool:
		return jsonValue{Kind: "bool", Bool: v.Bool}
	case value.KindI64:
		return jsonValue{Kind: "i64", I64: v.I64}
	case value.KindDouble:
		return jsonValue{Kind: "f64", F64: v.Double}
	case value.KindString:
		return jsonValue{Kind: "str", Str: v.Str}
	case value.KindBinary:
		return jsonValue{Kind: "bin", Bin: v.Bin}
	case value.KindList:
		out := make([]jsonValue, len(v.List))
		for i, e := range v.List {
			out[i] = valueToJSON(e)
		}
		return jsonValue{Kind: "list", List: out}
	case value.KindMap:
		out := make(map[string]jsonValue, len(v.Map))
		for k, e := range v.Map {
			out[k] = valueToJSON(e)
		}
		return jsonValue{Kind: "map", Map: out}
	case value.KindContainer:
		return jsonValue{Kind: "container", Cid: v.Container.String()}
	}
	return jsonValue{Kind: "null"}
}

func valueFromJSON(jv jsonValue) value.Value {
	switch jv.Kind {
	case "bool":
		return value.Bool(jv.Bool)
	case "i64":
		return value.I64(jv.I64)
	case "f64":
		return value.Double(jv.F64)
	case "str":
		return value.String(jv.Str)
	case "bin":
		return value.Binary(jv.Bin)
	case "list":
		out := make([]value.Value, len(jv.List))
		for i, e := range jv.List {
			out[i] = valueFromJSON(e)
		}
		return value.List(out)
	case "map":
		out := make(map[string]value.Value, len(jv.Map))
		for k, e := range jv.Map {
			out[k] = valueFromJSON(e)
		}
		return value.Map(out)
	default:
		return value.Null()
	}
}

// jsonOp is the JSON shape of one op inside a jsonChange (spec.md §6.3):
// the op's container as a jsonContainerID, its Kind string, and one flat
// struct of optional type-specific fields that opToJSON fills per
// op.Content variant — no bespoke JSON struct per variant, at the cost
// of a runtime switch on Kind in opFromJSON.
type jsonContainerID struct {
	IsRoot  bool              `json:"isRoot"`
	Name    string            `json:"name,omitempty"`
	Peer    id.PeerID         `json:"peer,omitempty"`
	Counter id.Counter        `json:"counter,omitempty"`
	Type    id.ContainerType  `json:"type"`
}

func toJSONContainerID(c id.ContainerID) jsonContainerID {
	return jsonContainerID{IsRoot: c.IsRoot, Name: c.Name, Peer: c.Peer, Counter: c.Counter, Type: c.Type}
}

func fromJSONContainerID(j jsonContainerID) id.ContainerID {
	return id.ContainerID{IsRoot: j.IsRoot, Name: j.Name, Peer: j.Peer, Counter: j.Counter, Type: j.Type}
}

type jsonOp struct {
	Container jsonContainerID `json:"container"`
	Kind      string      `json:"kind"`
	Pos       int         `json:"pos,omitempty"`
	Len       int         `json:"len,omitempty"`
	Key       string      `json:"key,omitempty"`
	Value     *jsonValue  `json:"value,omitempty"`
	Text      string      `json:"text,omitempty"`
	TargetIDs []jsonID    `json:"targetIds,omitempty"`
	ElemID    *jsonID     `json:"elemId,omitempty"`
	From      int         `json:"from,omitempty"`
	To        int         `json:"to,omitempty"`
	Target    *jsonID     `json:"target,omitempty"`
	Parent    *jsonID     `json:"parent,omitempty"`
	Position  string      `json:"position,omitempty"`
	Expand    uint8       `json:"expand,omitempty"`
	ToDelete  bool        `json:"toDelete,omitempty"`
	Delta     float64     `json:"delta,omitempty"`
}

type jsonChange struct {
	ID        jsonID   `json:"id"`
	Deps      []jsonID `json:"deps"`
	Lamport   id.Lamport `json:"lamport"`
	Timestamp int64    `json:"timestamp"`
	Message   string   `json:"message,omitempty"`
	Ops       []jsonOp `json:"ops"`
}

func toJSONID(i id.ID) jsonID { return jsonID{Peer: i.Peer, Counter: i.Counter} }
func fromJSONID(j jsonID) id.ID { return id.ID{Peer: j.Peer, Counter: j.Counter} }

func toJSONIDs(ids []id.ID) []jsonID {
	out := make([]jsonID, len(ids))
	for i, v := range ids {
		out[i] = toJSONID(v)
	}
	return out
}

func fromJSONIDs(ids []jsonID) []id.ID {
	out := make([]id.ID, len(ids))
	for i, v := range ids {
		out[i] = fromJSONID(v)
	}
	return out
}

// ExportJSONUpdates renders every change not covered by from (per
// OpLog.ExportFrom) as the stable JSON shape of spec.md §6.3.
func ExportJSONUpdates(l *oplog.OpLog, from version.VersionVector) ([]byte, error) {
	changes := l.ExportFrom(from)
	out := make([]jsonChange, len(changes))
	for i, c := range changes {
		out[i] = changeToJSON(c)
	}
	return json.MarshalIndent(out, "", "  ")
}

func changeToJSON(c *oplog.Change) jsonChange {
	deps := make([]jsonID, len(c.Deps))
	for i, d := range c.Deps {
		deps[i] = toJSONID(d)
	}
	ops := make([]jsonOp, len(c.Ops))
	for i, o := range c.Ops {
		ops[i] = opToJSON(o)
	}
	return jsonChange{ID: toJSONID(c.ID), Deps: deps, Lamport: c.Lamport, Timestamp: c.Timestamp, Message: c.Message, Ops: ops}
}

// vvToJSON/vvFromJSON render a VersionVector as a peer/counter pair list
// (a bare map[id.PeerID]id.Counter doesn't round-trip through
// encoding/json-compatible codecs, which require string map keys).
func vvToJSON(vv version.VersionVector) []jsonID {
	peers := vv.Peers()
	out := make([]jsonID, len(peers))
	for i, p := range peers {
		out[i] = jsonID{Peer: p, Counter: vv.Get(p)}
	}
	return out
}

func vvFromJSON(in []jsonID) version.VersionVector {
	vv := version.New()
	for _, j := range in {
		vv[j.Peer] = j.Counter
	}
	return vv
}

// jsonBlob is the document-level byte encoding of an UpdateBlob: JSON
// doubles as the "byte codec" here, since the varint/columnar wire
// format `original_source`'s `encoding/` crate implements is out of this
// module's scope (spec.md §1) and UpdateBlob's round-trip contract
// (spec.md §6.2) only requires A.export_from -> B.import to converge, not
// any particular byte layout.
type jsonBlob struct {
	Kind           BlobKind   `json:"kind"`
	Changes        []jsonChange `json:"changes"`
	StartVV        []jsonID   `json:"startVV,omitempty"`
	StartFrontiers []jsonID   `json:"startFrontiers,omitempty"`
}

// EncodeBlob renders b as self-contained bytes for Document.ExportFrom /
// Document.ExportSnapshot.
func EncodeBlob(b *UpdateBlob) ([]byte, error) {
	jb := jsonBlob{
		Kind:           b.Kind,
		StartVV:        vvToJSON(b.StartVV),
		StartFrontiers: toJSONIDs(b.StartFrontiers),
	}
	jb.Changes = make([]jsonChange, len(b.Changes))
	for i, c := range b.Changes {
		jb.Changes[i] = changeToJSON(c)
	}
	return json.Marshal(jb)
}

// DecodeBlob is the inverse of EncodeBlob, used by Document.Import.
func DecodeBlob(raw []byte) (*UpdateBlob, error) {
	var jb jsonBlob
	if err := json.Unmarshal(raw, &jb); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrDecode, err)
	}
	out := &UpdateBlob{
		Kind:           jb.Kind,
		StartVV:        vvFromJSON(jb.StartVV),
		StartFrontiers: id.Frontiers(fromJSONIDs(jb.StartFrontiers)),
	}
	out.Changes = make([]*oplog.Change, len(jb.Changes))
	for i, jc := range jb.Changes {
		c, err := changeFromJSON(jc)
		if err != nil {
			return nil, err
		}
		out.Changes[i] = c
	}
	return out, nil
}

func opToJSON(o op.Op) jsonOp {
	jo := jsonOp{Container: toJSONContainerID(o.Container), Kind: o.Content.Kind()}
	switch content := o.Content.(type) {
	case op.MapSet:
		jv := valueToJSON(content.Value)
		jo.Key, jo.Value = content.Key, &jv
	case op.MapDelete:
		jo.Key = content.Key
	case op.ListInsert:
		jo.Pos = content.Pos
		list := valueToJSON(value.List(content.Values))
		jo.Value = &list
	case op.ListDelete:
		jo.Pos, jo.Len = content.Pos, content.Len
		jo.TargetIDs = toJSONIDs(content.TargetIDs)
	case op.TextInsert:
		jo.Pos, jo.Text = content.Pos, content.Text
	case op.TextDelete:
		jo.Pos, jo.Len = content.Pos, content.Len
		jo.TargetIDs = toJSONIDs(content.TargetIDs)
	case op.StyleStart:
		jo.Pos, jo.Len = content.Start, content.End
		jo.Key = content.Key
		jv := valueToJSON(content.Value)
		jo.Value = &jv
		jo.Expand = uint8(content.Expand)
		jo.ToDelete = content.ToDelete
	case op.StyleEnd:
	case op.MovableListMove:
		eid := toJSONID(content.ElemID)
		jo.ElemID = &eid
		jo.From, jo.To = content.From, content.To
	case op.MovableListSet:
		eid := toJSONID(content.ElemID)
		jo.ElemID = &eid
		jv := valueToJSON(content.Value)
		jo.Value = &jv
	case op.TreeCreate:
		target := toJSONID(content.Target)
		jo.Target = &target
		if content.Parent != nil {
			p := toJSONID(*content.Parent)
			jo.Parent = &p
		}
		jo.Position = content.Position
	case op.TreeMove:
		target := toJSONID(content.Target)
		jo.Target = &target
		if content.Parent != nil {
			p := toJSONID(*content.Parent)
			jo.Parent = &p
		}
		jo.Position = content.Position
	case op.TreeDelete:
		target := toJSONID(content.Target)
		jo.Target = &target
	case op.CounterAdd:
		jo.Delta = content.Delta
	}
	return jo
}
