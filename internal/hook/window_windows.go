//go:build windows && 386

package hook

import (
	"syscall"

	"github.com/lxn/win"
	"golang.org/x/sys/windows"
)

const errInvalidWindowHandle = syscall.Errno(1400)

// The ANSI entry points keep the game window ANSI: samp.dll's chat input
// expects WM_CHAR in the active code page. On x86 SetWindowLongPtrA is a
// macro over SetWindowLongA.
var (
	user32              = windows.NewLazySystemDLL("user32.dll")
	procSetWindowLongA  = user32.NewProc("SetWindowLongA")
	procCallWindowProcA = user32.NewProc("CallWindowProcA")
)

// User32 is the real WindowAPI.
type User32 struct{}

// SetWindowProc implements WindowAPI. Every window has a procedure, so a zero
// previous value means the call failed.
func (User32) SetWindowProc(hwnd, proc uintptr) (uintptr, error) {
	if !win.IsWindow(win.HWND(hwnd)) {
		return 0, errInvalidWindowHandle
	}
	gwlpWndProc := int32(win.GWLP_WNDPROC)
	prev, _, err := procSetWindowLongA.Call(hwnd, uintptr(gwlpWndProc), proc)
	if prev == 0 {
		if errno, ok := err.(syscall.Errno); ok && errno != 0 {
			return 0, errno
		}
		return 0, syscall.Errno(win.GetLastError())
	}
	return prev, nil
}

// CallWindowProc implements WindowAPI.
func (User32) CallWindowProc(prev, hwnd uintptr, msg uint32, wParam, lParam uintptr) uintptr {
	r, _, _ := procCallWindowProcA.Call(prev, hwnd, uintptr(msg), wParam, lParam)
	return r
}
