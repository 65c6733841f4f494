package ot

import "fmt"

// stepIter walks a step slice. Steps are copied out so callers can shorten
// the current step in place.
type stepIter struct {
	steps []Step
	i     int
}

func (it *stepIter) next() (Step, bool) {
	if it.i >= len(it.steps) {
		return Step{}, false
	}
	s := it.steps[it.i]
	it.i++
	return s, true
}

// splitInsert cuts an insert step after n code points.
func splitInsert(s Step, n int) (Step, Step) {
	r := []rune(s.Text)
	return insertStep(string(r[:n])), insertStep(string(r[n:]))
}

// Compose merges a and b into one operation with the same effect as applying
// a and then b.
func Compose(a, b *Operation) (*Operation, error) {
	if a.err != nil {
		return nil, a.err
	}
	if b.err != nil {
		return nil, b.err
	}
	if a.targetLen != b.baseLen {
		return nil, fmt.Errorf("%w: target length %d does not match base length %d", ErrIncompatibleLengths, a.targetLen, b.baseLen)
	}

	out := New()
	it1 := &stepIter{steps: a.steps}
	it2 := &stepIter{steps: b.steps}
	op1, ok1 := it1.next()
	op2, ok2 := it2.next()
	for ok1 || ok2 {
		if ok1 && op1.Kind == KindDelete {
			out.Delete(op1.N)
			op1, ok1 = it1.next()
			continue
		}
		if ok2 && op2.Kind == KindInsert {
			out.Insert(op2.Text)
			op2, ok2 = it2.next()
			continue
		}
		if !ok1 {
			return nil, fmt.Errorf("%w: first operation is too short", ErrIncompatibleLengths)
		}
		if !ok2 {
			return nil, fmt.Errorf("%w: first operation is too long", ErrIncompatibleLengths)
		}

		switch {
		case op1.Kind == KindRetain && op2.Kind == KindRetain:
			switch {
			case op1.N > op2.N:
				out.Retain(op2.N)
				op1.N -= op2.N
				op2, ok2 = it2.next()
			case op1.N == op2.N:
				out.Retain(op1.N)
				op1, ok1 = it1.next()
				op2, ok2 = it2.next()
			default:
				out.Retain(op1.N)
				op2.N -= op1.N
				op1, ok1 = it1.next()
			}
		case op1.Kind == KindInsert && op2.Kind == KindDelete:
			switch {
			case op1.N > op2.N:
				_, op1 = splitInsert(op1, op2.N)
				op2, ok2 = it2.next()
			case op1.N == op2.N:
				op1, ok1 = it1.next()
				op2, ok2 = it2.next()
			default:
				op2.N -= op1.N
				op1, ok1 = it1.next()
			}
		case op1.Kind == KindInsert && op2.Kind == KindRetain:
			switch {
			case op1.N > op2.N:
				var head Step
				head, op1 = splitInsert(op1, op2.N)
				out.Insert(head.Text)
				op2, ok2 = it2.next()
			case op1.N == op2.N:
				out.Insert(op1.Text)
				op1, ok1 = it1.next()
				op2, ok2 = it2.next()
			default:
				out.Insert(op1.Text)
				op2.N -= op1.N
				op1, ok1 = it1.next()
			}
		case op1.Kind == KindRetain && op2.Kind == KindDelete:
			switch {
			case op1.N > op2.N:
				out.Delete(op2.N)
				op1.N -= op2.N
				op2, ok2 = it2.next()
			case op1.N == op2.N:
				out.Delete(op2.N)
				op1, ok1 = it1.next()
				op2, ok2 = it2.next()
			default:
				out.Delete(op1.N)
				op2.N -= op1.N
				op1, ok1 = it1.next()
			}
		default:
			return nil, fmt.Errorf("%w: cannot compose %s with %s", ErrInvariant, op1.Kind, op2.Kind)
		}
	}
	return out, nil
}

// Compose is shorthand for Compose(o, next).
func (o *Operation) Compose(next *Operation) (*Operation, error) {
	return Compose(o, next)
}
