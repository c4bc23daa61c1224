package abi

import (
	"encoding/binary"
	"iter"

	"cmdhelper/internal/memory"
)

// VectorSize is sizeof(std::vector<T>): three pointers.
const VectorSize = 3 * memory.PtrSize

// Layout describes how to decode one T stored in host memory.
type Layout[T any] interface {
	Size() uintptr
	Decode(r memory.Reader, addr uintptr) (T, error)
}

// ForeignArray is a std::vector<T> overlay: [First, Last) holds the elements,
// End marks the end of the allocation.
type ForeignArray[T any] struct {
	First, Last, End uintptr
	layout           Layout[T]
}

// NewForeignArray builds an array view from its three pointers.
func NewForeignArray[T any](first, last, end uintptr, layout Layout[T]) ForeignArray[T] {
	return ForeignArray[T]{First: first, Last: last, End: end, layout: layout}
}

// DecodeForeignArray interprets raw as the object representation of a vector.
func DecodeForeignArray[T any](raw [VectorSize]byte, layout Layout[T]) ForeignArray[T] {
	return NewForeignArray(
		uintptr(binary.LittleEndian.Uint32(raw[0:])),
		uintptr(binary.LittleEndian.Uint32(raw[4:])),
		uintptr(binary.LittleEndian.Uint32(raw[8:])),
		layout,
	)
}

// ReadForeignArray reads the vector object at addr.
func ReadForeignArray[T any](r memory.Reader, addr uintptr, layout Layout[T]) (ForeignArray[T], error) {
	var raw [VectorSize]byte
	if err := r.Read(addr, raw[:]); err != nil {
		return ForeignArray[T]{}, err
	}
	return DecodeForeignArray(raw, layout), nil
}

func (a ForeignArray[T]) span(to uintptr) int {
	if a.layout == nil || a.layout.Size() == 0 || to < a.First {
		return 0
	}
	return int((to - a.First) / a.layout.Size())
}

// Len is (Last-First)/sizeof(T). Inverted ranges have length zero.
func (a ForeignArray[T]) Len() int { return a.span(a.Last) }

// Cap is (End-First)/sizeof(T).
func (a ForeignArray[T]) Cap() int { return a.span(a.End) }

// All yields the index and address of every element in [First, Last).
// The sequence is computed from the three pointers alone and can be ranged over again.
func (a ForeignArray[T]) All() iter.Seq2[int, uintptr] {
	return func(yield func(int, uintptr) bool) {
		n := a.Len()
		for i := range n {
			if !yield(i, a.First+uintptr(i)*a.layout.Size()) {
				return
			}
		}
	}
}

// Values decodes elements lazily. A decode error is yielded alongside a zero T
// and iteration continues with the next element.
func (a ForeignArray[T]) Values(r memory.Reader) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for _, addr := range a.All() {
			if !yield(a.layout.Decode(r, addr)) {
				return
			}
		}
	}
}
