// Package native calls into host code and lets host code call back into Go.
//
// Everything that needs a real x86 calling convention sits behind Runtime, so the rest
// of the module can be exercised against the simulated runtime in this package.
package native

import "fmt"

// Convention is a 32-bit x86 calling convention.
type Convention int

const (
	// Cdecl: caller cleans the stack.
	Cdecl Convention = iota
	// Stdcall: callee cleans the stack. COM methods and window procedures use it.
	Stdcall
)

func (c Convention) String() string {
	switch c {
	case Cdecl:
		return "cdecl"
	case Stdcall:
		return "stdcall"
	default:
		return fmt.Sprintf("Convention(%d)", int(c))
	}
}

// MaxArgs is the largest argument count NewCallback accepts.
const MaxArgs = 6

// Callback is Go code invoked by the host. args has exactly the registered arity.
type Callback func(args []uintptr) uintptr

// Runtime bridges Go and host code.
type Runtime interface {
	// NewCallback returns a host-callable function pointer that runs fn.
	// Callbacks live for the rest of the process.
	NewCallback(conv Convention, argc int, fn Callback) (uintptr, error)
	// Call invokes a cdecl or stdcall function pointer.
	Call(fn uintptr, args ...uintptr) (uintptr, error)
	// ThisCall invokes an MSVC member function with this in ECX.
	ThisCall(fn, this uintptr, args ...uintptr) (uintptr, error)
	// Alloc reserves size bytes of host-readable scratch memory.
	Alloc(size int) (uintptr, error)
}

// Loader resolves modules and exports that are already mapped into the host.
// It never loads anything.
type Loader interface {
	ModuleHandle(name string) (uintptr, error)
	Symbol(module uintptr, name string) (uintptr, error)
}
