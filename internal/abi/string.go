// Package abi decodes C++ standard library objects that live in host memory.
//
// The layouts are those of the 32-bit MSVC runtime the host and its plugins are built
// with. Decoding always copies into Go-owned values right away; the backing memory
// belongs to the host and can be freed at any time after the call returns.
package abi

import (
	"encoding/binary"

	"cmdhelper/internal/memory"
)

// Unknown is the placeholder for names that cannot be decoded.
const Unknown = "unknown"

const (
	// StringSize is sizeof(std::string).
	StringSize = 24
	// StringInlineCap is the size of the small-string buffer. Strings shorter than
	// this are stored inline.
	StringInlineCap = 16

	stringSizeOff = 16
	stringCapOff  = 20

	// maxHeapString bounds out-of-line reads when the size field looks corrupt.
	maxHeapString = 1 << 16
)

// ForeignString is the raw object representation of a std::string:
//
//	+0  union { char buf[16]; char *ptr; }
//	+16 size_t size
//	+20 size_t capacity
type ForeignString [StringSize]byte

// Size returns the stored length.
func (s ForeignString) Size() uint32 {
	return binary.LittleEndian.Uint32(s[stringSizeOff:])
}

// Capacity returns the stored capacity.
func (s ForeignString) Capacity() uint32 {
	return binary.LittleEndian.Uint32(s[stringCapOff:])
}

// Inline reports whether the characters live in the object itself.
func (s ForeignString) Inline() bool {
	return s.Size() < StringInlineCap
}

// Ptr returns the heap pointer of an out-of-line string.
func (s ForeignString) Ptr() uintptr {
	return uintptr(binary.LittleEndian.Uint32(s[:4]))
}

// Decode copies the string into Go memory. Content stops at the first NUL and
// invalid UTF-8 is replaced. An unreadable heap buffer yields Unknown.
func (s ForeignString) Decode(r memory.Reader) string {
	if s.Inline() {
		return memory.Text(s[:StringInlineCap])
	}
	limit := int(s.Size())
	if limit > maxHeapString {
		limit = maxHeapString
	}
	b, err := memory.ReadCString(r, s.Ptr(), limit)
	if err != nil {
		return Unknown
	}
	return memory.Text(b)
}

// ReadForeignString reads the object representation at addr.
func ReadForeignString(r memory.Reader, addr uintptr) (ForeignString, error) {
	var s ForeignString
	if err := r.Read(addr, s[:]); err != nil {
		return s, err
	}
	return s, nil
}

// ReadString reads and decodes the std::string at addr, degrading to Unknown.
func ReadString(r memory.Reader, addr uintptr) string {
	s, err := ReadForeignString(r, addr)
	if err != nil {
		return Unknown
	}
	return s.Decode(r)
}

// InlineString builds the object representation of a short string.
// It is used by fixtures and by callers that receive a std::string by value.
func InlineString(str string) ForeignString {
	var s ForeignString
	n := copy(s[:StringInlineCap-1], str)
	binary.LittleEndian.PutUint32(s[stringSizeOff:], uint32(n))
	binary.LittleEndian.PutUint32(s[stringCapOff:], StringInlineCap-1)
	return s
}

// HeapString builds the object representation of a string stored at ptr.
func HeapString(ptr uintptr, size uint32) ForeignString {
	var s ForeignString
	binary.LittleEndian.PutUint32(s[:4], uint32(ptr))
	binary.LittleEndian.PutUint32(s[stringSizeOff:], size)
	binary.LittleEndian.PutUint32(s[stringCapOff:], size|0xF)
	return s
}
