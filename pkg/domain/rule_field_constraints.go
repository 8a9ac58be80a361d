package domain

import (
	"context"
	"fmt"
	"unicode/utf8"

	"vaultcore/pkg/schema"
)

const (
	maxLengthRuleName = "field_max_length"
	requiredRuleName  = "field_required"
)

// MaxLengthRule blocks string and byte fields longer than their MaxLength.
type MaxLengthRule struct{}

// NewMaxLengthRule returns the built-in length rule.
func NewMaxLengthRule() MaxLengthRule { return MaxLengthRule{} }

func (MaxLengthRule) Name() string { return maxLengthRuleName }

func (r MaxLengthRule) Evaluate(_ context.Context, item ItemView) (Result, error) {
	var res Result
	for _, f := range item.Schema().Fields() {
		if f.MaxLength() == 0 || f.Storage() == schema.Calculated {
			continue
		}
		n, ok := valueLength(item.Get(f))
		if !ok || n <= f.MaxLength() {
			continue
		}
		res.Violations = append(res.Violations, Violation{
			Rule:     r.Name(),
			Severity: SeverityBlock,
			Message:  fmt.Sprintf("%s is %d long, limit %d", f.Name(), n, f.MaxLength()),
			Field:    f.Name(),
			ItemID:   item.ID(),
		})
	}
	return res, nil
}

func valueLength(v any) (int, bool) {
	switch t := v.(type) {
	case string:
		return utf8.RuneCountInString(t), true
	case []byte:
		return len(t), true
	default:
		return 0, false
	}
}

// RequiredRule reports fields that are nil or empty.
type RequiredRule struct {
	severity Severity
	fields   []*schema.FieldDefinition
}

// NewRequiredRule returns a rule requiring every listed field to carry a value.
func NewRequiredRule(severity Severity, fields ...*schema.FieldDefinition) RequiredRule {
	return RequiredRule{severity: severity, fields: fields}
}

func (RequiredRule) Name() string { return requiredRuleName }

func (r RequiredRule) Evaluate(_ context.Context, item ItemView) (Result, error) {
	if item.State() == StateDeleted || item.State() == StateDelNew {
		return Result{}, nil
	}
	var res Result
	for _, f := range r.fields {
		if !item.Schema().Contains(f) {
			continue
		}
		if n, ok := valueLength(item.Get(f)); item.Get(f) != nil && (!ok || n > 0) {
			continue
		}
		res.Violations = append(res.Violations, Violation{
			Rule:     r.Name(),
			Severity: r.severity,
			Message:  fmt.Sprintf("%s is required", f.Name()),
			Field:    f.Name(),
			ItemID:   item.ID(),
		})
	}
	return res, nil
}
