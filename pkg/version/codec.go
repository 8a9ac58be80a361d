package version

import (
	"encoding/json"
	"fmt"
	"time"

	"vaultcore/pkg/schema"
)

// Snapshot is the JSON form of a ValueSet. Values are keyed by field name so a
// stored snapshot stays readable when slots are renumbered.
type Snapshot struct {
	Schema  string                     `json:"schema"`
	Version int                        `json:"version"`
	Deleted bool                       `json:"deleted,omitempty"`
	Values  map[string]json.RawMessage `json:"values"`
}

// Clone returns a copy that shares no memory with s.
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.Values != nil {
		out.Values = make(map[string]json.RawMessage, len(s.Values))
		for k, v := range s.Values {
			out.Values[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

// Encode converts vs into a Snapshot. Nil slots are omitted.
func Encode(vs *ValueSet) (Snapshot, error) {
	snap := Snapshot{
		Schema:  vs.schema.Name(),
		Version: vs.version,
		Deleted: vs.deleted,
		Values:  make(map[string]json.RawMessage, len(vs.values)),
	}
	for _, f := range vs.schema.VersionedFields() {
		v := vs.values[f.Slot()]
		if v == nil {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return Snapshot{}, fmt.Errorf("encode %s: %w", f, err)
		}
		snap.Values[f.Name()] = raw
	}
	return snap, nil
}

// Decode rebuilds a ValueSet of fs from snap, restoring typed values from each
// field's Kind.
func Decode(fs *schema.FieldSet, snap Snapshot) (*ValueSet, error) {
	if snap.Schema != "" && snap.Schema != fs.Name() {
		return nil, fmt.Errorf("decode: snapshot of %s into %s", snap.Schema, fs.Name())
	}
	vs := NewValueSet(fs)
	vs.version = snap.Version
	vs.deleted = snap.Deleted
	for name, raw := range snap.Values {
		f, ok := fs.Field(name)
		if !ok || !f.IsVersioned() {
			return nil, fmt.Errorf("decode: %s has no versioned field %q", fs.Name(), name)
		}
		v, err := decodeValue(f.Kind(), raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", f, err)
		}
		vs.values[f.Slot()] = v
	}
	return vs, nil
}

func decodeValue(kind schema.Kind, raw json.RawMessage) (any, error) {
	if string(raw) == "null" {
		return nil, nil
	}
	switch kind {
	case schema.KindString:
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	case schema.KindInt:
		var n int64
		err := json.Unmarshal(raw, &n)
		return n, err
	case schema.KindFloat:
		var f float64
		err := json.Unmarshal(raw, &f)
		return f, err
	case schema.KindBool:
		var b bool
		err := json.Unmarshal(raw, &b)
		return b, err
	case schema.KindBytes:
		var b []byte
		err := json.Unmarshal(raw, &b)
		return b, err
	case schema.KindTime:
		var t time.Time
		err := json.Unmarshal(raw, &t)
		return t, err
	default:
		return decodeAny(raw)
	}
}
