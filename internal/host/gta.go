// Package host knows where things live in the game process: fixed gta_sa.exe
// addresses and the samp.dll chat input object.
package host

import (
	"cmdhelper/internal/memory"
)

// Fixed gta_sa.exe (1.0 US) addresses.
const (
	// IdleCallSite is the call to CGame::DefinedState inside the idle loop.
	IdleCallSite uintptr = 0x53EA8E
	// WindowHandlePtr holds a pointer to the main window handle.
	WindowHandlePtr uintptr = 0xC17054
	// DevicePtr holds the IDirect3DDevice9 the game renders with.
	DevicePtr uintptr = 0xC97C28
	// MenuActiveFlag is non-zero while the pause menu is open.
	MenuActiveFlag uintptr = 0xBA67A4
)

// Direct3D 9 device vtable indices.
const (
	DeviceResetSlot   = 16
	DevicePresentSlot = 17
)

// WindowHandle reads the game's main window handle (double indirection).
func WindowHandle(r memory.Reader) (uintptr, error) {
	p, err := memory.ReadPtr(r, WindowHandlePtr)
	if err != nil {
		return 0, err
	}
	return memory.ReadPtr(r, p)
}

// Device reads the game's IDirect3DDevice9 pointer.
func Device(r memory.Reader) (uintptr, error) {
	return memory.ReadPtr(r, DevicePtr)
}

// MenuActive reports whether the pause menu is open.
func MenuActive(r memory.Reader) (bool, error) {
	b, err := memory.ReadU8(r, MenuActiveFlag)
	return b != 0, err
}
