package domain

type fieldState uint8

const (
	fieldUnset fieldState = iota
	fieldSet
	fieldAbsent
)

// Field is a set-once value. The first Set wins and later calls are ignored.
// An unset field can instead be marked absent, which is also final.
type Field[T any] struct {
	value T
	state fieldState
}

// Set stores v if the field has not been decided yet and reports whether it did.
func (f *Field[T]) Set(v T) bool {
	if f.state != fieldUnset {
		return false
	}
	f.value = v
	f.state = fieldSet
	return true
}

// MarkAbsent records that no value was found. It has no effect on a set field.
func (f *Field[T]) MarkAbsent() {
	if f.state == fieldUnset {
		f.state = fieldAbsent
	}
}

// Get returns the value and whether it was set.
func (f Field[T]) Get() (T, bool) {
	return f.value, f.state == fieldSet
}

// IsSet reports whether a value was stored.
func (f Field[T]) IsSet() bool { return f.state == fieldSet }

// Absent reports whether the field was explicitly marked as having no value.
func (f Field[T]) Absent() bool { return f.state == fieldAbsent }

// OrZero returns the value, or the zero value of T when unset.
func (f Field[T]) OrZero() T {
	if f.state == fieldSet {
		return f.value
	}
	var zero T
	return zero
}

// Of returns a field already holding v.
func Of[T any](v T) Field[T] {
	var f Field[T]
	f.Set(v)
	return f
}
