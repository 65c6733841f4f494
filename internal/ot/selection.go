package ot

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Range is a selection span. Anchor is where the selection started and Head
// is where the cursor is; they are equal for a caret.
type Range struct {
	Anchor int `json:"anchor"`
	Head   int `json:"head"`
}

// Empty reports whether the range is a caret.
func (r Range) Empty() bool { return r.Anchor == r.Head }

// Transform maps the range onto the document produced by op.
func (r Range) Transform(op *Operation) Range {
	anchor := transformIndex(r.Anchor, op)
	if r.Empty() {
		return Range{Anchor: anchor, Head: anchor}
	}
	return Range{Anchor: anchor, Head: transformIndex(r.Head, op)}
}

func transformIndex(index int, op *Operation) int {
	newIndex := index
	for _, s := range op.steps {
		switch s.Kind {
		case KindRetain:
			index -= s.N
		case KindInsert:
			newIndex += s.N
		case KindDelete:
			newIndex -= min(index, s.N)
			index -= s.N
		}
		if index < 0 {
			break
		}
	}
	return newIndex
}

// Selection is an ordered list of ranges. A nil *Selection means the client
// sent no selection; its methods accept a nil receiver.
type Selection struct {
	Ranges []Range `json:"ranges"`
}

// Cursor returns a selection holding a single caret.
func Cursor(pos int) *Selection {
	return &Selection{Ranges: []Range{{Anchor: pos, Head: pos}}}
}

// SomethingSelected reports whether any range is non-empty.
func (s *Selection) SomethingSelected() bool {
	if s == nil {
		return false
	}
	for _, r := range s.Ranges {
		if !r.Empty() {
			return true
		}
	}
	return false
}

// Equal compares ranges pairwise.
func (s *Selection) Equal(other *Selection) bool {
	if s == nil || other == nil {
		return s == other
	}
	if len(s.Ranges) != len(other.Ranges) {
		return false
	}
	for i := range s.Ranges {
		if s.Ranges[i] != other.Ranges[i] {
			return false
		}
	}
	return true
}

// Compose keeps the later selection.
func (s *Selection) Compose(other *Selection) *Selection { return other }

// Transform maps every range through op, preserving order and count.
func (s *Selection) Transform(op *Operation) *Selection {
	if s == nil {
		return nil
	}
	out := &Selection{Ranges: make([]Range, len(s.Ranges))}
	for i, r := range s.Ranges {
		out.Ranges[i] = r.Transform(op)
	}
	return out
}

// MarshalJSON always emits a ranges array, never null.
func (s Selection) MarshalJSON() ([]byte, error) {
	type wire Selection
	if s.Ranges == nil {
		s.Ranges = []Range{}
	}
	return json.Marshal(wire(s))
}

// UnmarshalJSON accepts {"ranges":[...]} as well as a bare range array.
func (s *Selection) UnmarshalJSON(data []byte) error {
	var ranges []Range
	if err := json.Unmarshal(data, &ranges); err == nil {
		s.Ranges = ranges
		return nil
	}
	var wire struct {
		Ranges []Range `json:"ranges"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("%w: selection: %v", ErrInvalidArgument, err)
	}
	s.Ranges = wire.Ranges
	return nil
}

// ParseSelection decodes an optional selection. Empty input and JSON null
// yield a nil selection.
func ParseSelection(data []byte) (*Selection, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var s Selection
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if s.Ranges == nil {
		s.Ranges = []Range{}
	}
	return &s, nil
}
