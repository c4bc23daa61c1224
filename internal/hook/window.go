package hook

import (
	"fmt"
	"sync"
)

// Window messages the hooks care about.
const (
	WMLButtonDown uint32 = 0x0201
)

// WindowAPI is the window-procedure surface of user32.
type WindowAPI interface {
	// SetWindowProc replaces GWLP_WNDPROC and returns the previous procedure.
	SetWindowProc(hwnd, proc uintptr) (uintptr, error)
	// CallWindowProc passes a message to a previous procedure.
	CallWindowProc(prev, hwnd uintptr, msg uint32, wParam, lParam uintptr) uintptr
}

// SimWindows is a WindowAPI for tests: a table of window procedures whose
// messages are dispatched to Go functions registered by address.
type SimWindows struct {
	mu    sync.Mutex
	procs map[uintptr]uintptr
	impls map[uintptr]func(hwnd uintptr, msg uint32, wParam, lParam uintptr) uintptr
}

// NewSimWindows returns an empty window table.
func NewSimWindows() *SimWindows {
	return &SimWindows{
		procs: make(map[uintptr]uintptr),
		impls: make(map[uintptr]func(uintptr, uint32, uintptr, uintptr) uintptr),
	}
}

// AddWindow creates hwnd with the procedure at addr implemented by fn.
func (w *SimWindows) AddWindow(hwnd, addr uintptr, fn func(hwnd uintptr, msg uint32, wParam, lParam uintptr) uintptr) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.procs[hwnd] = addr
	w.impls[addr] = fn
}

// Bind implements the procedure at addr, typically a callback created by the runtime.
func (w *SimWindows) Bind(addr uintptr, fn func(hwnd uintptr, msg uint32, wParam, lParam uintptr) uintptr) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.impls[addr] = fn
}

// Proc returns the current procedure of hwnd.
func (w *SimWindows) Proc(hwnd uintptr) uintptr {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.procs[hwnd]
}

// SetWindowProc implements WindowAPI.
func (w *SimWindows) SetWindowProc(hwnd, proc uintptr) (uintptr, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	prev, ok := w.procs[hwnd]
	if !ok {
		return 0, fmt.Errorf("invalid window handle 0x%X", hwnd)
	}
	w.procs[hwnd] = proc
	return prev, nil
}

// CallWindowProc implements WindowAPI.
func (w *SimWindows) CallWindowProc(prev, hwnd uintptr, msg uint32, wParam, lParam uintptr) uintptr {
	w.mu.Lock()
	fn := w.impls[prev]
	w.mu.Unlock()
	if fn == nil {
		return 0
	}
	return fn(hwnd, msg, wParam, lParam)
}

// Dispatch delivers a message to the current procedure of hwnd.
func (w *SimWindows) Dispatch(hwnd uintptr, msg uint32, wParam, lParam uintptr) uintptr {
	return w.CallWindowProc(w.Proc(hwnd), hwnd, msg, wParam, lParam)
}
