package login

import "github.com/mesmerverse/vettid-dev/loginkit/box"

type fieldOp uint8

const (
	fieldKeep fieldOp = iota
	fieldSet
	fieldClear
)

// Field is a three-state update of one node field. The zero value leaves the
// field untouched.
type Field[T any] struct {
	op    fieldOp
	value T
}

// Set returns a Field that overwrites the target with v.
func Set[T any](v T) Field[T] {
	return Field[T]{op: fieldSet, value: v}
}

// Clear returns a Field that resets the target to its zero value.
func Clear[T any]() Field[T] {
	return Field[T]{op: fieldClear}
}

// IsSet reports whether the field overwrites its target.
func (f Field[T]) IsSet() bool { return f.op == fieldSet }

// IsClear reports whether the field resets its target.
func (f Field[T]) IsClear() bool { return f.op == fieldClear }

// Value returns the value written by a Set field.
func (f Field[T]) Value() (T, bool) {
	return f.value, f.op == fieldSet
}

func (f Field[T]) apply(dst *T) {
	switch f.op {
	case fieldSet:
		*dst = f.value
	case fieldClear:
		var zero T
		*dst = zero
	}
}

// StashPatch is the PIN field group merged into a stash node.
type StashPatch struct {
	Pin2Key     Field[[]byte]
	Pin2TextBox Field[*box.Box]
}

// TreePatch is the PIN field group merged into a tree node.
type TreePatch struct {
	Pin2Key Field[[]byte]
	Pin     Field[string]
}

// Apply merges p into the node; fields p does not mention are kept.
func (s *LoginStash) Apply(p StashPatch) {
	p.Pin2Key.apply(&s.Pin2Key)
	p.Pin2TextBox.apply(&s.Pin2TextBox)
}

// Apply merges p into the node; fields p does not mention are kept.
func (t *LoginTree) Apply(p TreePatch) {
	p.Pin2Key.apply(&t.Pin2Key)
	p.Pin.apply(&t.Pin)
}
