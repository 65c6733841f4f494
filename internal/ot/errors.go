package ot

import "errors"

var (
	// ErrInvalidArgument is returned for malformed steps or wire payloads.
	ErrInvalidArgument = errors.New("ot: invalid argument")
	// ErrLengthMismatch is returned when an operation is applied to a
	// document whose length differs from the operation's base length.
	ErrLengthMismatch = errors.New("ot: length mismatch")
	// ErrIncompatibleLengths is returned by Compose and Transform when the
	// operands do not line up.
	ErrIncompatibleLengths = errors.New("ot: incompatible lengths")
	// ErrInvariant signals a step pairing that normalized operations never
	// produce.
	ErrInvariant = errors.New("ot: invariant violation")
)
