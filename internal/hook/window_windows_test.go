//go:build windows && 386

package hook

import (
	"runtime"
	"syscall"
	"testing"

	"github.com/lxn/win"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var procIsWindowUnicode = user32.NewProc("IsWindowUnicode")

func TestUser32SubclassesAsANSI(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	class, err := syscall.UTF16PtrFromString("STATIC")
	require.NoError(t, err)
	hwnd := win.CreateWindowEx(0, class, nil, 0, 0, 0, 10, 10, 0, 0, win.GetModuleHandle(nil), nil)
	require.NotZero(t, hwnd)
	defer win.DestroyWindow(hwnd)

	var api User32
	var prev uintptr
	var seen []uint32
	proc := syscall.NewCallback(func(h, msg, wParam, lParam uintptr) uintptr {
		seen = append(seen, uint32(msg))
		return api.CallWindowProc(prev, h, uint32(msg), wParam, lParam)
	})

	prev, err = api.SetWindowProc(uintptr(hwnd), proc)
	require.NoError(t, err)
	require.NotZero(t, prev)

	unicode, _, _ := procIsWindowUnicode.Call(uintptr(hwnd))
	assert.Zero(t, unicode, "subclassed window receives ANSI messages")

	win.SendMessage(hwnd, win.WM_USER+1, 0, 0)
	assert.Contains(t, seen, uint32(win.WM_USER+1))

	back, err := api.SetWindowProc(uintptr(hwnd), prev)
	require.NoError(t, err)
	assert.Equal(t, proc, back)

	_, err = api.SetWindowProc(0, proc)
	assert.ErrorIs(t, err, errInvalidWindowHandle)
}
