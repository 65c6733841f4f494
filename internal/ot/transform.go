package ot

import "fmt"

// Transform takes two operations a and b that apply to the same document and
// returns a' and b' such that apply(apply(doc, a), b') equals
// apply(apply(doc, b), a').
//
// When a and b insert at the same offset, a's text ends up before b's. Both
// the server and every client must call Transform with the same argument
// order for concurrent edits to converge.
func Transform(a, b *Operation) (*Operation, *Operation, error) {
	if a.err != nil {
		return nil, nil, a.err
	}
	if b.err != nil {
		return nil, nil, b.err
	}
	if a.baseLen != b.baseLen {
		return nil, nil, fmt.Errorf("%w: base lengths %d and %d differ", ErrIncompatibleLengths, a.baseLen, b.baseLen)
	}

	aPrime, bPrime := New(), New()
	it1 := &stepIter{steps: a.steps}
	it2 := &stepIter{steps: b.steps}
	op1, ok1 := it1.next()
	op2, ok2 := it2.next()
	for ok1 || ok2 {
		if ok1 && op1.Kind == KindInsert {
			aPrime.Insert(op1.Text)
			bPrime.Retain(op1.N)
			op1, ok1 = it1.next()
			continue
		}
		if ok2 && op2.Kind == KindInsert {
			aPrime.Retain(op2.N)
			bPrime.Insert(op2.Text)
			op2, ok2 = it2.next()
			continue
		}
		if !ok1 {
			return nil, nil, fmt.Errorf("%w: first operation is too short", ErrIncompatibleLengths)
		}
		if !ok2 {
			return nil, nil, fmt.Errorf("%w: first operation is too long", ErrIncompatibleLengths)
		}

		var minl int
		switch {
		case op1.Kind == KindRetain && op2.Kind == KindRetain:
			switch {
			case op1.N > op2.N:
				minl = op2.N
				op1.N -= op2.N
				op2, ok2 = it2.next()
			case op1.N == op2.N:
				minl = op2.N
				op1, ok1 = it1.next()
				op2, ok2 = it2.next()
			default:
				minl = op1.N
				op2.N -= op1.N
				op1, ok1 = it1.next()
			}
			aPrime.Retain(minl)
			bPrime.Retain(minl)
		case op1.Kind == KindDelete && op2.Kind == KindDelete:
			// Both sides deleted the same span; neither prime needs to.
			switch {
			case op1.N > op2.N:
				op1.N -= op2.N
				op2, ok2 = it2.next()
			case op1.N == op2.N:
				op1, ok1 = it1.next()
				op2, ok2 = it2.next()
			default:
				op2.N -= op1.N
				op1, ok1 = it1.next()
			}
		case op1.Kind == KindDelete && op2.Kind == KindRetain:
			switch {
			case op1.N > op2.N:
				minl = op2.N
				op1.N -= op2.N
				op2, ok2 = it2.next()
			case op1.N == op2.N:
				minl = op2.N
				op1, ok1 = it1.next()
				op2, ok2 = it2.next()
			default:
				minl = op1.N
				op2.N -= op1.N
				op1, ok1 = it1.next()
			}
			aPrime.Delete(minl)
		case op1.Kind == KindRetain && op2.Kind == KindDelete:
			switch {
			case op1.N > op2.N:
				minl = op2.N
				op1.N -= op2.N
				op2, ok2 = it2.next()
			case op1.N == op2.N:
				minl = op1.N
				op1, ok1 = it1.next()
				op2, ok2 = it2.next()
			default:
				minl = op1.N
				op2.N -= op1.N
				op1, ok1 = it1.next()
			}
			bPrime.Delete(minl)
		default:
			return nil, nil, fmt.Errorf("%w: cannot transform %s against %s", ErrInvariant, op1.Kind, op2.Kind)
		}
	}
	return aPrime, bPrime, nil
}
