//go:build windows && 386

package native

import (
	"fmt"
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"

	"cmdhelper/internal/hosterr"
)

const getModuleHandleUnchangedRefcount = 0x2

// Windows is the in-process Runtime and Loader.
type Windows struct {
	mu     sync.Mutex
	thunks map[int]uintptr
}

// NewWindows returns the in-process runtime.
func NewWindows() *Windows {
	return &Windows{thunks: make(map[int]uintptr)}
}

// NewCallback implements Runtime.
func (w *Windows) NewCallback(conv Convention, argc int, fn Callback) (uintptr, error) {
	f, err := fixedArity(argc, fn)
	if err != nil {
		return 0, err
	}
	if conv == Cdecl {
		return syscall.NewCallbackCDecl(f), nil
	}
	return syscall.NewCallback(f), nil
}

// fixedArity adapts fn to the uintptr-only signature syscall.NewCallback requires.
func fixedArity(argc int, fn Callback) (any, error) {
	switch argc {
	case 0:
		return func() uintptr { return fn(nil) }, nil
	case 1:
		return func(a uintptr) uintptr { return fn([]uintptr{a}) }, nil
	case 2:
		return func(a, b uintptr) uintptr { return fn([]uintptr{a, b}) }, nil
	case 3:
		return func(a, b, c uintptr) uintptr { return fn([]uintptr{a, b, c}) }, nil
	case 4:
		return func(a, b, c, d uintptr) uintptr { return fn([]uintptr{a, b, c, d}) }, nil
	case 5:
		return func(a, b, c, d, e uintptr) uintptr { return fn([]uintptr{a, b, c, d, e}) }, nil
	case 6:
		return func(a, b, c, d, e, f uintptr) uintptr { return fn([]uintptr{a, b, c, d, e, f}) }, nil
	default:
		return nil, fmt.Errorf("callback arity %d out of range", argc)
	}
}

// Call implements Runtime. The Go runtime restores ESP after the call, so both
// cdecl and stdcall targets are safe.
func (w *Windows) Call(fn uintptr, args ...uintptr) (uintptr, error) {
	if fn == 0 {
		return 0, hosterr.MemoryState(0, "call through nil function pointer")
	}
	r1, _, _ := syscall.SyscallN(fn, args...)
	return r1, nil
}

// ThisCall implements Runtime through a small generated thunk that moves the
// object pointer into ECX and re-pushes the stack arguments.
func (w *Windows) ThisCall(fn, this uintptr, args ...uintptr) (uintptr, error) {
	if fn == 0 {
		return 0, hosterr.MemoryState(0, "call through nil method pointer")
	}
	thunk, err := w.thunk(len(args))
	if err != nil {
		return 0, err
	}
	r1, _, _ := syscall.SyscallN(thunk, append([]uintptr{fn, this}, args...)...)
	return r1, nil
}

func (w *Windows) thunk(argc int) (uintptr, error) {
	if argc > MaxArgs {
		return 0, fmt.Errorf("thiscall arity %d out of range", argc)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.thunks[argc]; ok {
		return t, nil
	}

	code := []byte{
		0x8B, 0x44, 0x24, 0x04, // mov eax, [esp+4]  target
		0x8B, 0x4C, 0x24, 0x08, // mov ecx, [esp+8]  this
	}
	// every push shifts esp by 4, so the same displacement walks the arguments backwards
	disp := byte(8 + 4*argc)
	for range argc {
		code = append(code, 0xFF, 0x74, 0x24, disp) // push dword [esp+disp]
	}
	code = append(code,
		0xFF, 0xD0, // call eax
		0xC3, // ret
	)

	addr, err := windows.VirtualAlloc(0, uintptr(len(code)), windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_EXECUTE_READWRITE)
	if err != nil {
		return 0, hosterr.API("VirtualAlloc", 0, err)
	}
	copy(unsafe.Slice((*byte)(unsafe.Pointer(addr)), len(code)), code)
	w.thunks[argc] = addr
	return addr, nil
}

// Alloc implements Runtime.
func (w *Windows) Alloc(size int) (uintptr, error) {
	addr, err := windows.VirtualAlloc(0, uintptr(size), windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return 0, hosterr.API("VirtualAlloc", 0, err)
	}
	return addr, nil
}

// ModuleHandle implements Loader without touching the module's reference count.
func (w *Windows) ModuleHandle(name string) (uintptr, error) {
	p, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return 0, err
	}
	var h windows.Handle
	if err := windows.GetModuleHandleEx(getModuleHandleUnchangedRefcount, p, &h); err != nil {
		return 0, &hosterr.LibraryError{Library: name, Err: err}
	}
	return uintptr(h), nil
}

// Symbol implements Loader.
func (w *Windows) Symbol(module uintptr, name string) (uintptr, error) {
	addr, err := windows.GetProcAddress(windows.Handle(module), name)
	if err != nil {
		return 0, &hosterr.LibraryError{Library: fmt.Sprintf("0x%X", module), Symbol: name, Err: err}
	}
	return addr, nil
}
