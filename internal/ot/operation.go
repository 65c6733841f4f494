package ot

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Kind identifies the type of a Step.
type Kind uint8

const (
	KindRetain Kind = iota + 1
	KindInsert
	KindDelete
)

func (k Kind) String() string {
	switch k {
	case KindRetain:
		return "retain"
	case KindInsert:
		return "insert"
	case KindDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Step is a single component of an Operation. N is the length of the step in
// code points; for inserts it is the length of Text.
type Step struct {
	Kind Kind
	N    int
	Text string
}

func insertStep(text string) Step {
	return Step{Kind: KindInsert, N: utf8.RuneCountInString(text), Text: text}
}

// Operation is a normalized sequence of steps. The zero value is an empty
// operation ready to use.
//
// Builder methods return the receiver so calls can be chained. An invalid
// argument does not panic; it is recorded and reported by Err and by every
// method that consumes the operation.
type Operation struct {
	steps     []Step
	baseLen   int
	targetLen int
	err       error
}

// New returns an empty operation.
func New() *Operation { return &Operation{} }

// Err returns the first builder error, if any.
func (o *Operation) Err() error { return o.err }

func (o *Operation) fail(format string, args ...any) *Operation {
	if o.err == nil {
		o.err = fmt.Errorf("%w: "+format, append([]any{ErrInvalidArgument}, args...)...)
	}
	return o
}

func (o *Operation) last() *Step {
	if len(o.steps) == 0 {
		return nil
	}
	return &o.steps[len(o.steps)-1]
}

// Retain skips over n code points. Zero is a no-op.
func (o *Operation) Retain(n int) *Operation {
	if n < 0 {
		return o.fail("retain expects a non-negative length, got %d", n)
	}
	if n == 0 {
		return o
	}
	if n > math.MaxInt-max(o.baseLen, o.targetLen) {
		return o.fail("retain of %d overflows the operation length", n)
	}
	o.baseLen += n
	o.targetLen += n
	if l := o.last(); l != nil && l.Kind == KindRetain {
		l.N += n
		return o
	}
	o.steps = append(o.steps, Step{Kind: KindRetain, N: n})
	return o
}

// Insert inserts text at the current position. The empty string is a no-op.
func (o *Operation) Insert(text string) *Operation {
	if !utf8.ValidString(text) {
		return o.fail("insert expects valid UTF-8")
	}
	if text == "" {
		return o
	}
	s := insertStep(text)
	if s.N > math.MaxInt-o.targetLen {
		return o.fail("insert of %d code points overflows the operation length", s.N)
	}
	o.targetLen += s.N
	n := len(o.steps)
	switch {
	case n > 0 && o.steps[n-1].Kind == KindInsert:
		o.steps[n-1] = insertStep(o.steps[n-1].Text + text)
	case n > 0 && o.steps[n-1].Kind == KindDelete:
		// Inserts always go before deletes at the same position.
		if n > 1 && o.steps[n-2].Kind == KindInsert {
			o.steps[n-2] = insertStep(o.steps[n-2].Text + text)
		} else {
			del := o.steps[n-1]
			o.steps[n-1] = s
			o.steps = append(o.steps, del)
		}
	default:
		o.steps = append(o.steps, s)
	}
	return o
}

// Delete removes n code points at the current position. Zero is a no-op.
func (o *Operation) Delete(n int) *Operation {
	if n < 0 {
		return o.fail("delete expects a non-negative length, got %d", n)
	}
	if n == 0 {
		return o
	}
	if n > math.MaxInt-o.baseLen {
		return o.fail("delete of %d overflows the operation length", n)
	}
	o.baseLen += n
	if l := o.last(); l != nil && l.Kind == KindDelete {
		l.N += n
		return o
	}
	o.steps = append(o.steps, Step{Kind: KindDelete, N: n})
	return o
}

// DeleteString deletes as many code points as text contains.
func (o *Operation) DeleteString(text string) *Operation {
	return o.Delete(utf8.RuneCountInString(text))
}

// Steps returns a copy of the normalized steps.
func (o *Operation) Steps() []Step {
	return append([]Step(nil), o.steps...)
}

// BaseLength is the length of documents this operation applies to.
func (o *Operation) BaseLength() int { return o.baseLen }

// TargetLength is the length of the document after applying the operation.
func (o *Operation) TargetLength() int { return o.targetLen }

// IsNoop reports whether the operation leaves every document unchanged.
func (o *Operation) IsNoop() bool {
	return len(o.steps) == 0 || (len(o.steps) == 1 && o.steps[0].Kind == KindRetain)
}

// Equal reports whether both operations have identical steps.
func (o *Operation) Equal(other *Operation) bool {
	if o == nil || other == nil {
		return o == other
	}
	if len(o.steps) != len(other.steps) {
		return false
	}
	for i := range o.steps {
		if o.steps[i] != other.steps[i] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the operation.
func (o *Operation) Clone() *Operation {
	c := *o
	c.steps = o.Steps()
	return &c
}

func (o *Operation) String() string {
	parts := make([]string, 0, len(o.steps))
	for _, s := range o.steps {
		switch s.Kind {
		case KindRetain:
			parts = append(parts, "retain "+strconv.Itoa(s.N))
		case KindInsert:
			parts = append(parts, "insert '"+s.Text+"'")
		case KindDelete:
			parts = append(parts, "delete "+strconv.Itoa(s.N))
		}
	}
	return strings.Join(parts, ", ")
}

// simpleStep returns the single non-retain step of operations shaped like
// [step], [retain, step], [step, retain] or [retain, step, retain].
func (o *Operation) simpleStep() (Step, bool) {
	s := o.steps
	switch len(s) {
	case 1:
		return s[0], true
	case 2:
		if s[0].Kind == KindRetain {
			return s[1], true
		}
		if s[1].Kind == KindRetain {
			return s[0], true
		}
	case 3:
		if s[0].Kind == KindRetain && s[2].Kind == KindRetain {
			return s[1], true
		}
	}
	return Step{}, false
}

func (o *Operation) startIndex() int {
	if len(o.steps) > 0 && o.steps[0].Kind == KindRetain {
		return o.steps[0].N
	}
	return 0
}

// ShouldBeComposedWith reports whether other directly continues this
// operation, such as typing consecutive characters or pressing backspace
// repeatedly. Undo managers use it to group edits.
func (o *Operation) ShouldBeComposedWith(other *Operation) bool {
	if o.IsNoop() || other.IsNoop() {
		return true
	}
	a, okA := o.simpleStep()
	b, okB := other.simpleStep()
	if !okA || !okB {
		return false
	}
	startA, startB := o.startIndex(), other.startIndex()
	switch {
	case a.Kind == KindInsert && b.Kind == KindInsert:
		return startA+a.N == startB
	case a.Kind == KindDelete && b.Kind == KindDelete:
		// backspace or forward delete
		return startB+b.N == startA || startA == startB
	}
	return false
}

// ShouldBeComposedWithInverted is ShouldBeComposedWith for operations that
// are stored inverted on an undo stack.
func (o *Operation) ShouldBeComposedWithInverted(other *Operation) bool {
	if o.IsNoop() || other.IsNoop() {
		return true
	}
	a, okA := o.simpleStep()
	b, okB := other.simpleStep()
	if !okA || !okB {
		return false
	}
	startA, startB := o.startIndex(), other.startIndex()
	switch {
	case a.Kind == KindInsert && b.Kind == KindInsert:
		return startA+a.N == startB || startA == startB
	case a.Kind == KindDelete && b.Kind == KindDelete:
		return startB+b.N == startA
	}
	return false
}
