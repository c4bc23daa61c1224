// Package hosterr defines the failure taxonomy shared by every component that touches
// the host process. Sentinels are matched with errors.Is; the typed errors carry the
// address, component or entry point that caused the failure so log lines stay useful.
package hosterr

import (
	"errors"
	"fmt"
)

var (
	// ErrVersionMismatch reports a host binary whose entry point is not in a build table.
	ErrVersionMismatch = errors.New("version not recognized")
	// ErrLibraryNotLoaded reports a module that is not mapped into the host process.
	ErrLibraryNotLoaded = errors.New("library not loaded")
	// ErrSymbolNotFound reports a missing export in a loaded module.
	ErrSymbolNotFound = errors.New("symbol not found")
	// ErrHostAPI reports a failed operating system call.
	ErrHostAPI = errors.New("host api failure")
	// ErrUnexpectedMemoryState reports host memory that does not hold what the build table promised.
	ErrUnexpectedMemoryState = errors.New("unexpected memory state")
)

// VersionMismatchError is returned by the version resolver when no build matches.
type VersionMismatchError struct {
	Component  string
	EntryPoint uint32
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("%s: entry point 0x%X: %v", e.Component, e.EntryPoint, ErrVersionMismatch)
}

// Is reports whether target is ErrVersionMismatch.
func (e *VersionMismatchError) Is(target error) bool {
	return target == ErrVersionMismatch
}

// LibraryError is returned when a module or one of its exports cannot be found.
type LibraryError struct {
	Library string
	Symbol  string // empty when the library itself is missing
	Err     error
}

func (e *LibraryError) Error() string {
	if e.Symbol == "" {
		return fmt.Sprintf("%s: %v", e.Library, ErrLibraryNotLoaded)
	}
	return fmt.Sprintf("%s!%s: %v", e.Library, e.Symbol, ErrSymbolNotFound)
}

// Is matches ErrLibraryNotLoaded or ErrSymbolNotFound depending on which lookup failed.
func (e *LibraryError) Is(target error) bool {
	if e.Symbol == "" {
		return target == ErrLibraryNotLoaded
	}
	return target == ErrSymbolNotFound
}

func (e *LibraryError) Unwrap() error {
	return e.Err
}

// APIError wraps a failed operating system call.
type APIError struct {
	Op   string
	Addr uintptr
	Err  error
}

func (e *APIError) Error() string {
	if e.Addr != 0 {
		return fmt.Sprintf("%s at 0x%X: %v: %v", e.Op, e.Addr, ErrHostAPI, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrHostAPI, e.Err)
}

// Is reports whether target is ErrHostAPI.
func (e *APIError) Is(target error) bool {
	return target == ErrHostAPI
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// MemoryStateError describes a byte pattern that did not match expectations,
// typically a patch site that no longer holds a call instruction.
type MemoryStateError struct {
	Addr   uintptr
	Reason string
}

func (e *MemoryStateError) Error() string {
	return fmt.Sprintf("0x%X: %s: %v", e.Addr, e.Reason, ErrUnexpectedMemoryState)
}

// Is reports whether target is ErrUnexpectedMemoryState.
func (e *MemoryStateError) Is(target error) bool {
	return target == ErrUnexpectedMemoryState
}

// API wraps err as an APIError. A nil err yields nil.
func API(op string, addr uintptr, err error) error {
	if err == nil {
		return nil
	}
	return &APIError{Op: op, Addr: addr, Err: err}
}

// MemoryState builds a MemoryStateError with a formatted reason.
func MemoryState(addr uintptr, format string, args ...any) error {
	return &MemoryStateError{Addr: addr, Reason: fmt.Sprintf(format, args...)}
}

// Recoverable reports whether err only disables an optional feature.
// Missing optional libraries and symbols are recoverable; everything else aborts initialization.
func Recoverable(err error) bool {
	return errors.Is(err, ErrLibraryNotLoaded) || errors.Is(err, ErrSymbolNotFound)
}
