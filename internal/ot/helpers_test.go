package ot

import "math/rand"

const alphabet = "abcdefghijklmnopqrstuvwxyzé日 "

func randomString(r *rand.Rand, n int) string {
	chars := []rune(alphabet)
	out := make([]rune, n)
	for i := range out {
		out[i] = chars[r.Intn(len(chars))]
	}
	return string(out)
}

func randomOperation(r *rand.Rand, doc string) *Operation {
	op := New()
	left := len([]rune(doc))
	for left > 0 {
		n := 1 + r.Intn(min(left, 20))
		switch r.Intn(4) {
		case 0:
			op.Insert(randomString(r, 1+r.Intn(5)))
		case 1:
			op.Delete(n)
			left -= n
		default:
			op.Retain(n)
			left -= n
		}
	}
	if r.Intn(3) == 0 {
		op.Insert(randomString(r, 1+r.Intn(5)))
	}
	return op
}
