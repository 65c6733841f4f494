package ot

// Metadata is the capability a type needs to travel with an operation.
// Compose merges metadata of two consecutive operations and Transform maps it
// across a concurrent operation.
//
// *Selection implements Metadata. Types without these capabilities can be
// carried as Opaque values.
type Metadata[M any] interface {
	Compose(next M) M
	Transform(op *Operation) M
}

// Opaque wraps metadata that has no compose or transform behavior. Composing
// keeps the later value and transforming leaves it unchanged.
type Opaque[T any] struct {
	Value T
}

func (o Opaque[T]) Compose(next Opaque[T]) Opaque[T] { return next }

func (o Opaque[T]) Transform(*Operation) Opaque[T] { return o }

// Wrapped pairs an operation with metadata so both move through compose and
// transform together.
type Wrapped[M Metadata[M]] struct {
	Op   *Operation
	Meta M
}

// Wrap is a convenience constructor.
func Wrap[M Metadata[M]](op *Operation, meta M) Wrapped[M] {
	return Wrapped[M]{Op: op, Meta: meta}
}

// Apply applies the wrapped operation to doc.
func (w Wrapped[M]) Apply(doc string) (string, error) { return w.Op.Apply(doc) }

// Invert inverts the operation against doc. Metadata is kept as is.
func (w Wrapped[M]) Invert(doc string) (Wrapped[M], error) {
	inv, err := w.Op.Invert(doc)
	if err != nil {
		return Wrapped[M]{}, err
	}
	return Wrapped[M]{Op: inv, Meta: w.Meta}, nil
}

// ComposeWrapped composes the operations of a and b and their metadata.
func ComposeWrapped[M Metadata[M]](a, b Wrapped[M]) (Wrapped[M], error) {
	op, err := Compose(a.Op, b.Op)
	if err != nil {
		return Wrapped[M]{}, err
	}
	return Wrapped[M]{Op: op, Meta: a.Meta.Compose(b.Meta)}, nil
}

// TransformWrapped transforms a and b against each other. Each side's
// metadata is mapped through the other side's original operation.
func TransformWrapped[M Metadata[M]](a, b Wrapped[M]) (Wrapped[M], Wrapped[M], error) {
	ap, bp, err := Transform(a.Op, b.Op)
	if err != nil {
		return Wrapped[M]{}, Wrapped[M]{}, err
	}
	return Wrapped[M]{Op: ap, Meta: a.Meta.Transform(b.Op)},
		Wrapped[M]{Op: bp, Meta: b.Meta.Transform(a.Op)}, nil
}

// Edit is an operation carrying the sender's selection, the unit exchanged
// with clients and stored in document history.
type Edit = Wrapped[*Selection]
