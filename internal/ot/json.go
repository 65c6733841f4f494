package ot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// MarshalJSON encodes the operation in its wire form.
func (o *Operation) MarshalJSON() ([]byte, error) {
	out := make([]any, 0, len(o.steps))
	for _, s := range o.steps {
		switch s.Kind {
		case KindRetain:
			out = append(out, s.N)
		case KindInsert:
			out = append(out, s.Text)
		case KindDelete:
			out = append(out, -s.N)
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the wire form, normalizing steps as they are added.
func (o *Operation) UnmarshalJSON(data []byte) error {
	op, err := ParseOperation(data)
	if err != nil {
		return err
	}
	*o = *op
	return nil
}

// ParseOperation decodes an operation from its JSON wire form. Zero,
// fractional and non-scalar elements are rejected with ErrInvalidArgument.
func ParseOperation(data []byte) (*Operation, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw []any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: operation must be an array", ErrInvalidArgument)
	}
	op := New()
	for _, el := range raw {
		switch v := el.(type) {
		case string:
			op.Insert(v)
		case json.Number:
			n, err := v.Int64()
			if err != nil {
				return nil, fmt.Errorf("%w: step %s is not an integer", ErrInvalidArgument, v)
			}
			if n > math.MaxInt || n < -math.MaxInt {
				return nil, fmt.Errorf("%w: step %s is out of range", ErrInvalidArgument, v)
			}
			switch {
			case n > 0:
				op.Retain(int(n))
			case n < 0:
				op.Delete(int(-n))
			default:
				return nil, fmt.Errorf("%w: unknown step 0", ErrInvalidArgument)
			}
		default:
			return nil, fmt.Errorf("%w: unknown step %v", ErrInvalidArgument, el)
		}
		if op.err != nil {
			return nil, op.err
		}
	}
	return op, nil
}

type editWire struct {
	Operation *Operation `json:"operation"`
	Selection *Selection `json:"selection"`
}

// MarshalEdit encodes an edit as {"operation": [...], "selection": {...}}.
func MarshalEdit(e Edit) ([]byte, error) {
	return json.Marshal(editWire{Operation: e.Op, Selection: e.Meta})
}

// UnmarshalEdit decodes the form produced by MarshalEdit.
func UnmarshalEdit(data []byte) (Edit, error) {
	var w editWire
	if err := json.Unmarshal(data, &w); err != nil {
		return Edit{}, err
	}
	if w.Operation == nil {
		return Edit{}, fmt.Errorf("%w: edit without operation", ErrInvalidArgument)
	}
	return Edit{Op: w.Operation, Meta: w.Selection}, nil
}
