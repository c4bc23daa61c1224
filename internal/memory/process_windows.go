//go:build windows

package memory

import (
	"errors"
	"unsafe"

	"golang.org/x/sys/windows"

	"cmdhelper/internal/hosterr"
)

// Process accesses the memory of the process this module is loaded into.
// Reads and writes go through ReadProcessMemory/WriteProcessMemory on the
// current-process pseudo handle, so an unmapped page returns an error.
type Process struct {
	handle windows.Handle
}

// Current returns the in-process Memory backend.
func Current() *Process {
	return &Process{handle: windows.CurrentProcess()}
}

// Read implements Reader.
func (p *Process) Read(addr uintptr, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	var n uintptr
	if err := windows.ReadProcessMemory(p.handle, addr, &buf[0], uintptr(len(buf)), &n); err != nil {
		return hosterr.API("ReadProcessMemory", addr, err)
	}
	if n != uintptr(len(buf)) {
		return hosterr.API("ReadProcessMemory", addr, errors.New("short read"))
	}
	return nil
}

// Write implements Memory.
func (p *Process) Write(addr uintptr, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var n uintptr
	if err := windows.WriteProcessMemory(p.handle, addr, &data[0], uintptr(len(data)), &n); err != nil {
		return hosterr.API("WriteProcessMemory", addr, err)
	}
	if n != uintptr(len(data)) {
		return hosterr.API("WriteProcessMemory", addr, errors.New("short write"))
	}
	return nil
}

// Protect implements Memory.
func (p *Process) Protect(addr, size uintptr, prot uint32) (uint32, error) {
	var old uint32
	if err := windows.VirtualProtect(addr, size, prot, &old); err != nil {
		return 0, hosterr.API("VirtualProtect", addr, err)
	}
	return old, nil
}

// Toolhelp lists modules through a toolhelp snapshot of one process.
type Toolhelp struct {
	PID uint32
}

// CurrentModules returns a lister for the current process.
func CurrentModules() Toolhelp {
	return Toolhelp{PID: windows.GetCurrentProcessId()}
}

// Modules implements ModuleLister. The snapshot handle is closed on every path.
func (t Toolhelp) Modules() ([]Module, error) {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPMODULE|windows.TH32CS_SNAPMODULE32, t.PID)
	if err != nil {
		return nil, hosterr.API("CreateToolhelp32Snapshot", 0, err)
	}
	defer func() { _ = windows.CloseHandle(snap) }()

	var me windows.ModuleEntry32
	me.Size = uint32(unsafe.Sizeof(me))
	if err := windows.Module32First(snap, &me); err != nil {
		return nil, hosterr.API("Module32First", 0, err)
	}

	var mods []Module
	for {
		mods = append(mods, Module{
			Name: windows.UTF16ToString(me.Module[:]),
			Base: me.ModBaseAddr,
			Size: me.ModBaseSize,
		})
		me.Size = uint32(unsafe.Sizeof(me))
		if err := windows.Module32Next(snap, &me); err != nil {
			if errors.Is(err, windows.ERROR_NO_MORE_FILES) {
				break
			}
			return nil, hosterr.API("Module32Next", 0, err)
		}
	}
	return mods, nil
}
