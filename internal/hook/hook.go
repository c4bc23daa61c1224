// Package hook redirects host control flow into Go.
//
// Three kinds of redirection are supported: rewriting the displacement of a relative
// call instruction, swapping an absolute pointer slot (vtable entries, immediate
// operands), and replacing a window procedure. Every write is bracketed by a
// protection change to PAGE_EXECUTE_READWRITE and a restore of the previous value.
package hook

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"cmdhelper/internal/hosterr"
	"cmdhelper/internal/memory"
)

const (
	opCallRel32 = 0xE8
	callLen     = 5
)

// Kind is the redirection technique used by a Hook.
type Kind int

const (
	CallSite Kind = iota
	PointerSlot
	WindowProc
)

func (k Kind) String() string {
	switch k {
	case CallSite:
		return "call"
	case PointerSlot:
		return "slot"
	case WindowProc:
		return "wndproc"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Hook records one installed redirection.
type Hook struct {
	Kind        Kind
	Site        uintptr
	Original    uintptr
	Replacement uintptr
}

// Engine installs hooks into host memory and remembers what it replaced.
type Engine struct {
	mem memory.Memory

	mu    sync.Mutex
	hooks map[uintptr]Hook
}

// NewEngine returns an engine writing through mem.
func NewEngine(mem memory.Memory) *Engine {
	return &Engine{mem: mem, hooks: make(map[uintptr]Hook)}
}

// Hooks lists the installed hooks ordered by site.
func (e *Engine) Hooks() []Hook {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Hook, 0, len(e.hooks))
	for _, h := range e.hooks {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Site < out[j].Site })
	return out
}

// installed returns the original of an earlier identical hook. A different
// replacement at a hooked site is refused: its current target is our own code.
func (e *Engine) installed(kind Kind, site, replacement uintptr) (uintptr, bool, error) {
	h, ok := e.hooks[site]
	if !ok {
		return 0, false, nil
	}
	if h.Kind != kind || h.Replacement != replacement {
		return 0, false, hosterr.MemoryState(site, "already hooked (%s -> 0x%X)", h.Kind, h.Replacement)
	}
	return h.Original, true, nil
}

// PatchCall redirects the relative call at site to replacement and returns the
// function it used to call.
func (e *Engine) PatchCall(site, replacement uintptr) (uintptr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if orig, ok, err := e.installed(CallSite, site, replacement); ok || err != nil {
		return orig, err
	}

	var insn [callLen]byte
	if err := e.mem.Read(site, insn[:]); err != nil {
		return 0, hosterr.MemoryState(site, "unreadable call site: %v", err)
	}
	if insn[0] != opCallRel32 {
		return 0, hosterr.MemoryState(site, "opcode 0x%02X is not a relative call", insn[0])
	}

	next := site + callLen
	original := next + uintptr(int32(binary.LittleEndian.Uint32(insn[1:])))

	var rel [4]byte
	binary.LittleEndian.PutUint32(rel[:], uint32(replacement-next))
	if err := e.protectedWrite(site+1, rel[:]); err != nil {
		return 0, err
	}

	e.hooks[site] = Hook{Kind: CallSite, Site: site, Original: original, Replacement: replacement}
	return original, nil
}

// ReplaceSlot swaps the 4-byte pointer stored at slot and returns the previous value.
func (e *Engine) ReplaceSlot(slot, replacement uintptr) (uintptr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if orig, ok, err := e.installed(PointerSlot, slot, replacement); ok || err != nil {
		return orig, err
	}

	original, err := memory.ReadPtr(e.mem, slot)
	if err != nil {
		return 0, hosterr.MemoryState(slot, "unreadable pointer slot: %v", err)
	}

	var ptr [memory.PtrSize]byte
	binary.LittleEndian.PutUint32(ptr[:], uint32(replacement))
	if err := e.protectedWrite(slot, ptr[:]); err != nil {
		return 0, err
	}

	e.hooks[slot] = Hook{Kind: PointerSlot, Site: slot, Original: original, Replacement: replacement}
	return original, nil
}

// ReplaceVTable replaces entry index of the vtable the COM object iface points to.
// The vtable is patched in place and is shared by every object of the class.
func (e *Engine) ReplaceVTable(iface uintptr, index int, replacement uintptr) (uintptr, error) {
	if iface == 0 {
		return 0, hosterr.MemoryState(0, "nil interface")
	}
	vtable, err := memory.ReadPtr(e.mem, iface)
	if err != nil {
		return 0, hosterr.MemoryState(iface, "unreadable vtable pointer: %v", err)
	}
	if vtable == 0 {
		return 0, hosterr.MemoryState(iface, "nil vtable")
	}
	return e.ReplaceSlot(vtable+uintptr(index)*memory.PtrSize, replacement)
}

// ReplaceWindowProc installs proc as the window procedure of hwnd and returns the
// previous one, which proc must chain to through WindowAPI.CallWindowProc.
func (e *Engine) ReplaceWindowProc(api WindowAPI, hwnd, proc uintptr) (uintptr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if orig, ok, err := e.installed(WindowProc, hwnd, proc); ok || err != nil {
		return orig, err
	}
	if hwnd == 0 {
		return 0, hosterr.MemoryState(0, "nil window handle")
	}

	prev, err := api.SetWindowProc(hwnd, proc)
	if err != nil {
		return 0, hosterr.API("SetWindowLongPtr", hwnd, err)
	}

	e.hooks[hwnd] = Hook{Kind: WindowProc, Site: hwnd, Original: prev, Replacement: proc}
	return prev, nil
}

func (e *Engine) protectedWrite(addr uintptr, data []byte) error {
	size := uintptr(len(data))
	old, err := e.mem.Protect(addr, size, memory.PageExecuteReadWrite)
	if err != nil {
		return hosterr.API("VirtualProtect", addr, err)
	}
	werr := e.mem.Write(addr, data)
	_, perr := e.mem.Protect(addr, size, old)
	if werr != nil {
		return hosterr.API("WriteProcessMemory", addr, werr)
	}
	if perr != nil {
		return hosterr.API("VirtualProtect", addr, perr)
	}
	return nil
}
