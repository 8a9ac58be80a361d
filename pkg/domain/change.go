package domain

import (
	"bytes"
	"encoding/json"
	"fmt"

	"vaultcore/pkg/version"
)

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate the modifications captured in the audit trail.
const (
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionRecover Action = "recover"
)

// Change describes one field-level modification of an item.
type Change struct {
	ItemID  int64         `json:"item_id"`
	Version int           `json:"version"`
	Action  Action        `json:"action"`
	Field   string        `json:"field"`
	Before  ChangePayload `json:"before"`
	After   ChangePayload `json:"after"`
}

// ChangesFromDelta converts a delta into audit records. The deletion entry
// becomes a delete or recover action; every other entry is an update, or a
// create when the item has never been committed.
func ChangesFromDelta(itemID int64, d *version.Delta, pending bool) ([]Change, error) {
	diffs := d.Differences()
	out := make([]Change, 0, len(diffs))
	for _, diff := range diffs {
		action := ActionUpdate
		switch {
		case diff.Deletion && diff.New == true:
			action = ActionDelete
		case diff.Deletion:
			action = ActionRecover
		case pending:
			action = ActionCreate
		}
		change := Change{
			ItemID:  itemID,
			Version: d.Version(),
			Action:  action,
			Field:   diff.Name,
		}
		var err error
		if diff.Old != nil && !pending {
			if change.Before, err = encodePayload(diff.Old); err != nil {
				return nil, fmt.Errorf("encode %s before: %w", diff.Name, err)
			}
		}
		if diff.New != nil {
			if change.After, err = encodePayload(diff.New); err != nil {
				return nil, fmt.Errorf("encode %s after: %w", diff.Name, err)
			}
		}
		out = append(out, change)
	}
	return out, nil
}

// ChangePayload is the JSON encoding of one side of a Change. The zero value is
// undefined: the field held no value on that side, or the item was never
// committed and has no stored side. Undefined payloads encode as null.
type ChangePayload struct {
	raw json.RawMessage
}

func encodePayload(v any) (ChangePayload, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return ChangePayload{}, err
	}
	return ChangePayload{raw: raw}, nil
}

// Defined reports whether the side carried a value.
func (p ChangePayload) Defined() bool { return p.raw != nil }

// Raw returns a copy of the encoded value, nil when undefined.
func (p ChangePayload) Raw() json.RawMessage {
	if p.raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), p.raw...)
}

// Decode unmarshals the value into dst. Undefined payloads leave dst alone.
func (p ChangePayload) Decode(dst any) error {
	if p.raw == nil {
		return nil
	}
	return json.Unmarshal(p.raw, dst)
}

func (p ChangePayload) MarshalJSON() ([]byte, error) {
	if p.raw == nil {
		return []byte("null"), nil
	}
	return p.Raw(), nil
}

func (p *ChangePayload) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		p.raw = nil
		return nil
	}
	p.raw = append(json.RawMessage(nil), data...)
	return nil
}
