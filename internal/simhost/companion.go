package simhost

import (
	"encoding/binary"
	"slices"

	"cmdhelper/internal/abi"
	"cmdhelper/internal/companion"
	"cmdhelper/internal/memory"
)

// Plugin is a SAMPFUNCS plugin and the commands it registered.
type Plugin struct {
	Name     string   `yaml:"name"`
	Commands []string `yaml:"commands"`
}

// Script is a CLEO thread and the commands it registered.
type Script struct {
	Thread   string   `yaml:"thread"`
	Commands []string `yaml:"commands"`
}

// CompanionSpec describes the SAMPFUNCS state.
type CompanionSpec struct {
	Plugins []Plugin `yaml:"plugins"`
	Scripts []Script `yaml:"scripts"`
	// Orphans are commands without an owner.
	Orphans []string `yaml:"orphans"`
	// Missing lists exports to leave out.
	Missing []string `yaml:"missing"`
}

type sfState struct {
	vector       [3]uintptr
	chatCommands int
}

const (
	companionSize       = 0x1000
	getChatCommandsRVA  = 0x100
	getPluginNameRVA    = 0x110
	getThreadNameRVA    = 0x120
	threadStructSize    = 0x20
	pluginInfoSize      = 4 + abi.StringSize
	threadNameFieldSize = abi.ThreadNameLen
)

// foreignString builds a std::string object, spilling to the heap when long.
func (h *Host) foreignString(s string) abi.ForeignString {
	if len(s) < abi.StringInlineCap {
		return abi.InlineString(s)
	}
	return abi.HeapString(h.AllocCString(s), uint32(len(s)))
}

// WithCompanion loads SAMPFUNCS with the given commands.
func (h *Host) WithCompanion(spec CompanionSpec) *Host {
	h.Mem.Map(CompanionAt, companionSize, memory.PageExecuteRead)
	h.addModule(companion.Library, CompanionAt, companionSize)
	sf := &sfState{}
	h.sf = sf

	type cmd struct {
		name  string
		typ   abi.OwnerType
		owner uintptr
	}
	var cmds []cmd
	for _, p := range spec.Plugins {
		info := h.alloc(pluginInfoSize)
		name := h.foreignString(p.Name)
		h.Mem.Poke(info+abi.PluginNameOffset, name[:])
		for _, n := range p.Commands {
			cmds = append(cmds, cmd{n, abi.OwnerPlugin, info})
		}
	}
	for _, s := range spec.Scripts {
		thread := h.alloc(threadStructSize)
		field := make([]byte, threadNameFieldSize)
		copy(field[:threadNameFieldSize-1], s.Thread)
		h.Mem.Poke(thread+abi.ThreadNameOffset, field)
		for _, n := range s.Commands {
			cmds = append(cmds, cmd{n, abi.OwnerScript, thread})
		}
	}
	for _, n := range spec.Orphans {
		cmds = append(cmds, cmd{n, abi.OwnerNone, 0})
	}

	first := h.alloc(max(len(cmds), 1) * abi.CommandInfoSize)
	for i, e := range cmds {
		raw := abi.EncodeCommandInfo(h.foreignString(e.name), e.typ, e.owner)
		h.Mem.Poke(first+uintptr(i)*abi.CommandInfoSize, raw[:])
	}
	last := first + uintptr(len(cmds))*abi.CommandInfoSize
	sf.vector = [3]uintptr{first, last, last}

	ret := func(dst uintptr, obj []byte) uintptr {
		h.Mem.Poke(dst, obj)
		return dst
	}
	exports := []struct {
		sym string
		rva uintptr
		fn  func(this uintptr, args []uintptr) uintptr
	}{
		{companion.SymChatCommands, getChatCommandsRVA, func(_ uintptr, args []uintptr) uintptr {
			h.mu.Lock()
			sf.chatCommands++
			h.mu.Unlock()
			var v [abi.VectorSize]byte
			for i, p := range sf.vector {
				binary.LittleEndian.PutUint32(v[i*4:], uint32(p))
			}
			return ret(args[0], v[:])
		}},
		{companion.SymPluginName, getPluginNameRVA, func(this uintptr, args []uintptr) uintptr {
			obj, err := memory.ReadBytes(h.Mem, this+abi.PluginNameOffset, abi.StringSize)
			if err != nil {
				return 0
			}
			return ret(args[0], obj)
		}},
		{companion.SymThreadName, getThreadNameRVA, func(this uintptr, args []uintptr) uintptr {
			name, err := abi.ReadThreadName(h.Mem, this)
			if err != nil {
				return 0
			}
			obj := h.foreignString(name)
			return ret(args[0], obj[:])
		}},
	}
	for _, e := range exports {
		addr := h.RT.DefineMethodAt(CompanionAt+e.rva, 1, e.fn)
		if !slices.Contains(spec.Missing, e.sym) {
			h.RT.AddSymbol(CompanionAt, e.sym, addr)
		}
	}
	return h
}

// ChatCommandCalls counts getChatCommands invocations.
func (h *Host) ChatCommandCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sf == nil {
		return 0
	}
	return h.sf.chatCommands
}
