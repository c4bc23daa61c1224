package native

import (
	"fmt"
	"strings"
	"sync"

	"cmdhelper/internal/hosterr"
	"cmdhelper/internal/memory"
)

const (
	simCodeBase    uintptr = 0x7F000000
	simCodeStride  uintptr = 0x10
	simScratchBase uintptr = 0x60000000
	simPage        uintptr = 0x1000
)

type simFunc struct {
	argc int
	this bool
	fn   func(this uintptr, args []uintptr) uintptr
}

// Sim is a Runtime and Loader backed by Go functions. Host functions and Go
// callbacks share one address space, so a patched call site can be followed
// exactly like the real CPU would.
type Sim struct {
	mu          sync.Mutex
	mem         *memory.Sim
	nextCode    uintptr
	nextScratch uintptr
	funcs       map[uintptr]simFunc
	modules     map[string]uintptr
	symbols     map[uintptr]map[string]uintptr
	calls       map[uintptr]int
}

// NewSim returns a runtime whose scratch allocations land in mem.
func NewSim(mem *memory.Sim) *Sim {
	return &Sim{
		mem:         mem,
		nextCode:    simCodeBase,
		nextScratch: simScratchBase,
		funcs:       make(map[uintptr]simFunc),
		modules:     make(map[string]uintptr),
		symbols:     make(map[uintptr]map[string]uintptr),
		calls:       make(map[uintptr]int),
	}
}

func (s *Sim) define(f simFunc) uintptr {
	s.mu.Lock()
	defer s.mu.Unlock()
	addr := s.nextCode
	s.nextCode += simCodeStride
	s.funcs[addr] = f
	return addr
}

func (s *Sim) defineAt(addr uintptr, f simFunc) uintptr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.funcs[addr]; taken {
		panic(fmt.Sprintf("sim: function already defined at 0x%X", addr))
	}
	s.funcs[addr] = f
	return addr
}

// DefineAt registers a host function at a fixed address, typically inside a
// simulated module image.
func (s *Sim) DefineAt(addr uintptr, argc int, fn Callback) uintptr {
	return s.defineAt(addr, simFunc{argc: argc, fn: func(_ uintptr, args []uintptr) uintptr { return fn(args) }})
}

// DefineMethodAt registers a host member function at a fixed address.
func (s *Sim) DefineMethodAt(addr uintptr, argc int, fn func(this uintptr, args []uintptr) uintptr) uintptr {
	return s.defineAt(addr, simFunc{argc: argc, this: true, fn: fn})
}

// Define registers a host function taking argc stack arguments.
func (s *Sim) Define(argc int, fn Callback) uintptr {
	return s.define(simFunc{argc: argc, fn: func(_ uintptr, args []uintptr) uintptr { return fn(args) }})
}

// DefineMethod registers a host member function.
func (s *Sim) DefineMethod(argc int, fn func(this uintptr, args []uintptr) uintptr) uintptr {
	return s.define(simFunc{argc: argc, this: true, fn: fn})
}

// NewCallback implements Runtime.
func (s *Sim) NewCallback(_ Convention, argc int, fn Callback) (uintptr, error) {
	if argc < 0 || argc > MaxArgs {
		return 0, fmt.Errorf("callback arity %d out of range", argc)
	}
	return s.Define(argc, fn), nil
}

func (s *Sim) lookup(fn uintptr) (simFunc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.funcs[fn]
	if !ok {
		return simFunc{}, hosterr.MemoryState(fn, "no code at call target")
	}
	s.calls[fn]++
	return f, nil
}

// Call implements Runtime.
func (s *Sim) Call(fn uintptr, args ...uintptr) (uintptr, error) {
	f, err := s.lookup(fn)
	if err != nil {
		return 0, err
	}
	if f.this {
		return 0, fmt.Errorf("0x%X is a member function", fn)
	}
	if len(args) != f.argc {
		return 0, fmt.Errorf("0x%X takes %d arguments, got %d", fn, f.argc, len(args))
	}
	return f.fn(0, args), nil
}

// ThisCall implements Runtime.
func (s *Sim) ThisCall(fn, this uintptr, args ...uintptr) (uintptr, error) {
	f, err := s.lookup(fn)
	if err != nil {
		return 0, err
	}
	if len(args) != f.argc {
		return 0, fmt.Errorf("0x%X takes %d arguments, got %d", fn, f.argc, len(args))
	}
	return f.fn(this, args), nil
}

// Alloc implements Runtime by mapping fresh pages into the simulated memory.
func (s *Sim) Alloc(size int) (uintptr, error) {
	if size <= 0 {
		return 0, fmt.Errorf("invalid allocation size %d", size)
	}
	s.mu.Lock()
	addr := s.nextScratch
	pages := (uintptr(size) + simPage - 1) / simPage
	s.nextScratch += pages * simPage
	s.mu.Unlock()

	s.mem.Map(addr, int(pages*simPage), memory.PageReadWrite)
	return addr, nil
}

// Calls returns how many times fn was invoked through the runtime.
func (s *Sim) Calls(fn uintptr) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[fn]
}

// AddModule makes name resolvable to base.
func (s *Sim) AddModule(name string, base uintptr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modules[strings.ToLower(name)] = base
	if s.symbols[base] == nil {
		s.symbols[base] = make(map[string]uintptr)
	}
}

// AddSymbol exports name from the module at base.
func (s *Sim) AddSymbol(base uintptr, name string, addr uintptr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.symbols[base] == nil {
		s.symbols[base] = make(map[string]uintptr)
	}
	s.symbols[base][name] = addr
}

// ModuleHandle implements Loader.
func (s *Sim) ModuleHandle(name string) (uintptr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	base, ok := s.modules[strings.ToLower(name)]
	if !ok {
		return 0, &hosterr.LibraryError{Library: name}
	}
	return base, nil
}

// Symbol implements Loader.
func (s *Sim) Symbol(module uintptr, name string) (uintptr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	addr, ok := s.symbols[module][name]
	if !ok {
		return 0, &hosterr.LibraryError{Library: fmt.Sprintf("0x%X", module), Symbol: name}
	}
	return addr, nil
}
