// Package simhost assembles a simulated game process: gta_sa.exe data, a samp.dll
// image with a CInput command table, and optionally SAMPFUNCS and MoonLoader.
//
// Everything lives in a memory.Sim and a native.Sim, so the same code that patches
// and reads the real game can be driven frame by frame in tests and in
// `cmdhelperctl simulate`.
package simhost

import (
	"encoding/binary"
	"fmt"
	"sync"

	"cmdhelper/internal/buildid"
	"cmdhelper/internal/hook"
	"cmdhelper/internal/host"
	"cmdhelper/internal/memory"
	"cmdhelper/internal/native"
)

// Module bases and heap regions of the simulated process.
const (
	GTABase     uintptr = 0x00400000
	GTASize     uint32  = 0x00900000
	SampBase    uintptr = 0x10000000
	SampSize    uint32  = 0x00300000
	CompanionAt uintptr = 0x20000000
	LoaderBase  uintptr = 0x30000000
	LoaderSize  uint32  = 0x00100000

	heapBase uintptr = 0x40000000
	heapSize         = 0x00100000

	// Window is the handle of the game window.
	Window uintptr = 0x000A0B0C

	deviceVTableLen = 119
	peEntryOffset   = 0x80 + 0x28
)

// Host is a simulated game process.
type Host struct {
	Mem     *memory.Sim
	RT      *native.Sim
	Windows *hook.SimWindows

	mu      sync.Mutex
	modules memory.ModuleList
	heap    uintptr

	device     uintptr
	gameProc   uintptr
	idleOrig   uintptr
	idleCalls  int
	presents   int
	resets     int
	messages   []uint32
	input      uintptr
	editBox    uintptr
	editText   string
	sampBuild  buildid.Entry[buildid.SampOffsets]
	loader     *loaderState
	sf         *sfState
	extraSpace uintptr
}

// New builds a process with gta_sa.exe only: the idle call, window, device and
// menu flag. Attach samp.dll, SAMPFUNCS and MoonLoader with the With* methods.
func New() *Host {
	mem := memory.NewSim()
	h := &Host{
		Mem:        mem,
		RT:         native.NewSim(mem),
		Windows:    hook.NewSimWindows(),
		heap:       heapBase,
		extraSpace: 0x50000000,
	}
	mem.Map(heapBase, heapSize, memory.PageReadWrite)
	h.addModule("gta_sa.exe", GTABase, GTASize)

	// code page with the idle loop's call
	page := host.IdleCallSite &^ 0xFFF
	mem.Map(page, 0x1000, memory.PageExecuteRead)
	h.idleOrig = h.RT.Define(0, func([]uintptr) uintptr {
		h.mu.Lock()
		h.idleCalls++
		h.mu.Unlock()
		return 0
	})
	mem.Poke(host.IdleCallSite, callInsn(host.IdleCallSite, h.idleOrig))

	// data pages
	for _, addr := range []uintptr{host.WindowHandlePtr, host.DevicePtr, host.MenuActiveFlag} {
		if mem.Protection(addr) == 0 {
			mem.Map(addr&^0xFFF, 0x1000, memory.PageReadWrite)
		}
	}

	hwndCell := h.alloc(4)
	mem.PokePtr(hwndCell, Window)
	mem.PokePtr(host.WindowHandlePtr, hwndCell)
	h.gameProc = h.RT.Define(4, func(args []uintptr) uintptr { return 0 })
	h.Windows.AddWindow(Window, h.gameProc, func(_ uintptr, msg uint32, _, _ uintptr) uintptr {
		h.mu.Lock()
		h.messages = append(h.messages, msg)
		h.mu.Unlock()
		return 0
	})

	h.device = h.newDevice()
	mem.PokePtr(host.DevicePtr, h.device)
	return h
}

func callInsn(site, target uintptr) []byte {
	b := make([]byte, 5)
	b[0] = 0xE8
	binary.LittleEndian.PutUint32(b[1:], uint32(target-(site+5)))
	return b
}

// alloc carves zeroed memory from the simulated heap.
func (h *Host) alloc(n int) uintptr {
	h.mu.Lock()
	defer h.mu.Unlock()
	n = (n + 7) &^ 7
	if h.heap+uintptr(n) > heapBase+heapSize {
		panic("simhost: heap exhausted")
	}
	addr := h.heap
	h.heap += uintptr(n)
	return addr
}

// AllocCString stores s in the simulated heap.
func (h *Host) AllocCString(s string) uintptr {
	addr := h.alloc(len(s) + 1)
	h.Mem.PokeCString(addr, s)
	return addr
}

// AllocUTF16String stores s as UTF-16 in the simulated heap.
func (h *Host) AllocUTF16String(s string) uintptr {
	addr := h.alloc(2*len(s) + 2)
	h.Mem.PokeUTF16String(addr, s)
	return addr
}

func (h *Host) addModule(name string, base uintptr, size uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.modules = append(h.modules, memory.Module{Name: name, Base: base, Size: size})
	h.RT.AddModule(name, base)
}

// AddModule maps an empty module that command procedures can point into.
func (h *Host) AddModule(name string, size uint32) memory.Module {
	h.mu.Lock()
	base := h.extraSpace
	h.extraSpace += (uintptr(size) + 0xFFFF) &^ 0xFFFF
	h.mu.Unlock()

	h.addModule(name, base, size)
	return memory.Module{Name: name, Base: base, Size: size}
}

// Module looks a loaded module up by name.
func (h *Host) Module(name string) (memory.Module, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return memory.Find(h.modules, name)
}

// Modules implements memory.ModuleLister.
func (h *Host) Modules() ([]memory.Module, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.modules.Modules()
}

// mapImage maps a PE image whose headers carry entryPoint.
func (h *Host) mapImage(base uintptr, size uint32, prot uint32, entryPoint uint32) {
	h.Mem.Map(base, int(size), prot)
	hdr := make([]byte, 0x100)
	hdr[0], hdr[1] = 'M', 'Z'
	binary.LittleEndian.PutUint32(hdr[0x3C:], 0x80)
	copy(hdr[0x80:], "PE\x00\x00")
	binary.LittleEndian.PutUint32(hdr[peEntryOffset:], entryPoint)
	h.Mem.Poke(base, hdr)
}

func (h *Host) newDevice() uintptr {
	vtable := h.alloc(deviceVTableLen * memory.PtrSize)
	for i := range deviceVTableLen {
		h.Mem.PokePtr(vtable+uintptr(i)*memory.PtrSize, h.RT.Define(0, func([]uintptr) uintptr { return 0 }))
	}
	// IDirect3DDevice9::Reset(this, params) and Present(this, src, dst, hwnd, dirty)
	h.Mem.PokePtr(vtable+host.DeviceResetSlot*memory.PtrSize, h.RT.Define(2, func([]uintptr) uintptr {
		h.mu.Lock()
		h.resets++
		h.mu.Unlock()
		return 0
	}))
	h.Mem.PokePtr(vtable+host.DevicePresentSlot*memory.PtrSize, h.RT.Define(5, func([]uintptr) uintptr {
		h.mu.Lock()
		h.presents++
		h.mu.Unlock()
		return 0
	}))

	dev := h.alloc(16)
	h.Mem.PokePtr(dev, vtable)
	return dev
}

// Device returns the simulated IDirect3DDevice9.
func (h *Host) Device() uintptr { return h.device }

// SetMenuActive toggles the pause menu flag.
func (h *Host) SetMenuActive(active bool) {
	var b byte
	if active {
		b = 1
	}
	h.Mem.Poke(host.MenuActiveFlag, []byte{b})
}

// Stats counts what reached the game's own code.
type Stats struct {
	IdleCalls int
	Presents  int
	Resets    int
	Messages  []uint32
}

// Stats returns a copy of the counters.
func (h *Host) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{
		IdleCalls: h.idleCalls,
		Presents:  h.presents,
		Resets:    h.resets,
		Messages:  append([]uint32(nil), h.messages...),
	}
}

// IdleTarget decodes the idle call site the way the CPU would.
func (h *Host) IdleTarget() (uintptr, error) {
	insn, err := memory.ReadBytes(h.Mem, host.IdleCallSite, 5)
	if err != nil {
		return 0, err
	}
	if insn[0] != 0xE8 {
		return 0, fmt.Errorf("idle call site holds 0x%02X", insn[0])
	}
	return host.IdleCallSite + 5 + uintptr(int32(binary.LittleEndian.Uint32(insn[1:]))), nil
}

// OriginalIdle is the game's own idle target.
func (h *Host) OriginalIdle() uintptr { return h.idleOrig }

// Frame runs one iteration of the game loop: the idle call, then Present.
func (h *Host) Frame() error {
	target, err := h.IdleTarget()
	if err != nil {
		return err
	}
	if _, err := h.RT.Call(target); err != nil {
		return fmt.Errorf("idle: %w", err)
	}
	present, err := h.vtableEntry(host.DevicePresentSlot)
	if err != nil {
		return err
	}
	if _, err := h.RT.Call(present, h.device, 0, 0, 0, 0); err != nil {
		return fmt.Errorf("present: %w", err)
	}
	return nil
}

// Reset calls IDirect3DDevice9::Reset through the vtable.
func (h *Host) Reset() error {
	reset, err := h.vtableEntry(host.DeviceResetSlot)
	if err != nil {
		return err
	}
	_, err = h.RT.Call(reset, h.device, 0)
	return err
}

func (h *Host) vtableEntry(slot int) (uintptr, error) {
	vtable, err := memory.ReadPtr(h.Mem, h.device)
	if err != nil {
		return 0, err
	}
	return memory.ReadPtr(h.Mem, vtable+uintptr(slot)*memory.PtrSize)
}

// SendMessage dispatches a window message to the current window procedure,
// which is either the game's own or a callback installed through the runtime.
func (h *Host) SendMessage(msg uint32, wParam, lParam uintptr) (uintptr, error) {
	proc := h.Windows.Proc(Window)
	if proc == h.gameProc {
		return h.Windows.Dispatch(Window, msg, wParam, lParam), nil
	}
	return h.RT.Call(proc, Window, uintptr(msg), wParam, lParam)
}
