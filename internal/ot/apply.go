package ot

import (
	"fmt"
	"strings"
)

// Apply runs the operation against doc and returns the resulting text.
func (o *Operation) Apply(doc string) (string, error) {
	if o.err != nil {
		return "", o.err
	}
	runes := []rune(doc)
	if len(runes) != o.baseLen {
		return "", fmt.Errorf("%w: base length %d, document length %d", ErrLengthMismatch, o.baseLen, len(runes))
	}
	var b strings.Builder
	b.Grow(len(doc))
	idx := 0
	for _, s := range o.steps {
		switch s.Kind {
		case KindRetain:
			if idx+s.N > len(runes) {
				return "", fmt.Errorf("%w: retain past end of document", ErrLengthMismatch)
			}
			b.WriteString(string(runes[idx : idx+s.N]))
			idx += s.N
		case KindInsert:
			b.WriteString(s.Text)
		case KindDelete:
			if idx+s.N > len(runes) {
				return "", fmt.Errorf("%w: delete past end of document", ErrLengthMismatch)
			}
			idx += s.N
		}
	}
	if idx != len(runes) {
		return "", fmt.Errorf("%w: operation did not consume the whole document", ErrLengthMismatch)
	}
	return b.String(), nil
}

// Invert returns the operation that undoes o. doc must be the document o was
// applied to.
func (o *Operation) Invert(doc string) (*Operation, error) {
	if o.err != nil {
		return nil, o.err
	}
	runes := []rune(doc)
	if len(runes) != o.baseLen {
		return nil, fmt.Errorf("%w: base length %d, document length %d", ErrLengthMismatch, o.baseLen, len(runes))
	}
	inv := New()
	idx := 0
	for _, s := range o.steps {
		switch s.Kind {
		case KindRetain:
			inv.Retain(s.N)
			idx += s.N
		case KindInsert:
			inv.Delete(s.N)
		case KindDelete:
			inv.Insert(string(runes[idx : idx+s.N]))
			idx += s.N
		}
	}
	return inv, nil
}
