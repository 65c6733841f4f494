// Package ot implements the plain-text operational transformation algebra
// used by coedit.
//
// # Overview
//
// An Operation is an ordered list of steps (retain, insert, delete) that
// walks a document from left to right. Lengths are counted in Unicode code
// points. Operations are normalized as they are built: adjacent steps of the
// same kind merge and an insert that follows a delete is moved in front of it,
// so two operations with the same effect have the same steps.
//
//	op := ot.New().Retain(1).Insert("X").Retain(2)
//	out, err := op.Apply("abc") // "aXbc"
//
// Transform is the core of the package. For operations a and b built against
// the same document it returns a' and b' such that applying a then b' yields
// the same text as applying b then a'. When both sides insert at the same
// offset the insert of the first argument is placed first.
//
// Selection and Range carry cursor state through the same operations, and
// Wrapped pairs an operation with metadata that is composed and transformed
// alongside it.
//
// # Wire form
//
// Operations marshal to a JSON array where a positive integer retains, a
// string inserts and a negative integer deletes:
//
//	[1, "X", -2, 3]
//
// Selections marshal to {"ranges":[{"anchor":0,"head":2}]}.
package ot
