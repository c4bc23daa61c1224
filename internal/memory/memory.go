// Package memory provides fallible access to foreign memory owned by the host process.
//
// Nothing in this module dereferences host pointers directly. Every field access goes
// through a Reader, so a stale pointer or an unmapped page surfaces as an error instead
// of a crash. Layouts are 32-bit x86: pointers are four bytes, little endian.
package memory

import (
	"encoding/binary"
	"errors"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// PtrSize is the pointer width of the host process.
const PtrSize = 4

// Page protection values, as understood by VirtualProtect.
const (
	PageNoAccess         uint32 = 0x01
	PageReadOnly         uint32 = 0x02
	PageReadWrite        uint32 = 0x04
	PageWriteCopy        uint32 = 0x08
	PageExecute          uint32 = 0x10
	PageExecuteRead      uint32 = 0x20
	PageExecuteReadWrite uint32 = 0x40
	PageExecuteWriteCopy uint32 = 0x80
)

// maxStringScan bounds every NUL-terminated scan over foreign memory.
const maxStringScan = 4096

// Reader reads host memory.
type Reader interface {
	// Read fills buf with the bytes at addr or fails without partial results.
	Read(addr uintptr, buf []byte) error
}

// Memory reads and writes host memory and changes page protection.
type Memory interface {
	Reader
	Write(addr uintptr, data []byte) error
	// Protect sets the protection of the pages covering [addr, addr+size) and returns the previous value.
	Protect(addr, size uintptr, prot uint32) (uint32, error)
}

// Writable reports whether prot permits writes.
func Writable(prot uint32) bool {
	switch prot &^ 0x700 { // strip PAGE_GUARD, PAGE_NOCACHE, PAGE_WRITECOMBINE
	case PageReadWrite, PageWriteCopy, PageExecuteReadWrite, PageExecuteWriteCopy:
		return true
	}
	return false
}

// ReadBytes reads n bytes at addr.
func ReadBytes(r Reader, addr uintptr, n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := r.Read(addr, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadU8 reads one byte.
func ReadU8(r Reader, addr uintptr) (uint8, error) {
	var b [1]byte
	if err := r.Read(addr, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadU16 reads a little-endian uint16.
func ReadU16(r Reader, addr uintptr) (uint16, error) {
	var b [2]byte
	if err := r.Read(addr, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

// ReadU32 reads a little-endian uint32.
func ReadU32(r Reader, addr uintptr) (uint32, error) {
	var b [4]byte
	if err := r.Read(addr, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

// ReadI32 reads a little-endian int32.
func ReadI32(r Reader, addr uintptr) (int32, error) {
	v, err := ReadU32(r, addr)
	return int32(v), err
}

// ReadPtr reads a host pointer.
func ReadPtr(r Reader, addr uintptr) (uintptr, error) {
	v, err := ReadU32(r, addr)
	return uintptr(v), err
}

// ReadCString reads bytes at addr up to, not including, the first NUL.
// At most limit bytes are returned; limit <= 0 means the package default.
// The scan stops quietly at the end of readable memory once at least one byte was read.
func ReadCString(r Reader, addr uintptr, limit int) ([]byte, error) {
	if limit <= 0 {
		limit = maxStringScan
	}
	const chunk = 64
	var out []byte
	for len(out) < limit {
		n := min(chunk, limit-len(out))
		buf := make([]byte, n)
		if err := r.Read(addr+uintptr(len(out)), buf); err != nil {
			// the chunk may straddle the end of a mapping; retry byte by byte
			for i := range n {
				b, berr := ReadU8(r, addr+uintptr(len(out)))
				if berr != nil {
					if len(out) == 0 && i == 0 {
						return nil, berr
					}
					return out, nil
				}
				if b == 0 {
					return out, nil
				}
				out = append(out, b)
			}
			continue
		}
		if i := indexNUL(buf); i >= 0 {
			return append(out, buf[:i]...), nil
		}
		out = append(out, buf...)
	}
	return out, nil
}

// ReadUTF16String reads a NUL-terminated UTF-16LE string, replacing unpaired surrogates.
func ReadUTF16String(r Reader, addr uintptr, limit int) (string, error) {
	if addr == 0 {
		return "", errors.New("nil utf-16 string pointer")
	}
	if limit <= 0 {
		limit = maxStringScan / 2
	}
	units := make([]uint16, 0, 64)
	for len(units) < limit {
		u, err := ReadU16(r, addr+uintptr(2*len(units)))
		if err != nil {
			if len(units) == 0 {
				return "", err
			}
			break
		}
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return string(utf16.Decode(units)), nil
}

// Text converts foreign bytes to a string, stopping at the first NUL and
// replacing invalid UTF-8 sequences with U+FFFD.
func Text(b []byte) string {
	if i := indexNUL(b); i >= 0 {
		b = b[:i]
	}
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), string(utf8.RuneError))
}

func indexNUL(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return -1
}
