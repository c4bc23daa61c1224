package simhost

import (
	"fmt"

	"cmdhelper/internal/buildid"
	"cmdhelper/internal/memory"
	"cmdhelper/internal/moonloader"
)

// LuaScript is a MoonLoader script identified by its path.
type LuaScript struct {
	Path     string   `yaml:"path"`
	Commands []string `yaml:"commands"`
}

type loaderState struct {
	build      buildid.Entry[buildid.LoaderOffsets]
	userdata   map[string]uintptr
	registered map[string]int
	unregs     int
}

const userdataSize = 0x40

// MoonLoaderBuild finds a MoonLoader build by id.
func MoonLoaderBuild(id string) (buildid.Entry[buildid.LoaderOffsets], error) {
	for _, e := range buildid.MoonLoaderBuilds.Entries() {
		if e.Build.ID == id {
			return e, nil
		}
	}
	return buildid.Entry[buildid.LoaderOffsets]{}, fmt.Errorf("unknown MoonLoader build %q", id)
}

// WithMoonLoader maps MoonLoader.asi with build's layout. Its two register
// operands point at the samp.dll routines, which here only count calls.
// A non-zero entryPoint overrides the fingerprint.
func (h *Host) WithMoonLoader(build buildid.Entry[buildid.LoaderOffsets], entryPoint uint32) *Host {
	if entryPoint == 0 {
		entryPoint = build.Build.EntryPoint
	}
	h.mapImage(LoaderBase, LoaderSize, memory.PageExecuteRead, entryPoint)
	h.addModule(moonloader.Library, LoaderBase, LoaderSize)

	st := &loaderState{
		build:      build,
		userdata:   make(map[string]uintptr),
		registered: make(map[string]int),
	}
	h.loader = st

	reg := h.RT.Define(6, func(args []uintptr) uintptr {
		cmd, _ := memory.ReadCString(h.Mem, args[1], 0)
		h.mu.Lock()
		st.registered[string(cmd)]++
		h.mu.Unlock()
		return 1
	})
	unreg := h.RT.Define(2, func([]uintptr) uintptr {
		h.mu.Lock()
		st.unregs++
		h.mu.Unlock()
		return 1
	})
	h.Mem.PokePtr(LoaderBase+build.Offsets.Register, reg)
	h.Mem.PokePtr(LoaderBase+build.Offsets.Unregister, unreg)
	return h
}

func (h *Host) scriptUserdata(path string) uintptr {
	h.mu.Lock()
	ud, ok := h.loader.userdata[path]
	h.mu.Unlock()
	if ok {
		return ud
	}
	ud = h.alloc(userdataSize)
	h.Mem.PokePtr(ud+h.loader.build.Offsets.ScriptName, h.AllocUTF16String(path))
	h.mu.Lock()
	h.loader.userdata[path] = ud
	h.mu.Unlock()
	return ud
}

// RegisterLua performs sampRegisterChatCommand the way MoonLoader does: an
// indirect call through the register operand.
func (h *Host) RegisterLua(script, cmd string) (uintptr, error) {
	if h.loader == nil {
		return 0, fmt.Errorf("MoonLoader not loaded")
	}
	target, err := memory.ReadPtr(h.Mem, LoaderBase+h.loader.build.Offsets.Register)
	if err != nil {
		return 0, err
	}
	return h.RT.Call(target, h.scriptUserdata(script), h.AllocCString(cmd), 0, 0, 0, 0)
}

// UnregisterLua performs sampUnregisterChatCommand through the unregister operand.
func (h *Host) UnregisterLua(script, cmd string) (uintptr, error) {
	if h.loader == nil {
		return 0, fmt.Errorf("MoonLoader not loaded")
	}
	target, err := memory.ReadPtr(h.Mem, LoaderBase+h.loader.build.Offsets.Unregister)
	if err != nil {
		return 0, err
	}
	return h.RT.Call(target, h.scriptUserdata(script), h.AllocCString(cmd))
}

// RawRegisterLua registers a command given as raw bytes, e.g. invalid UTF-8.
func (h *Host) RawRegisterLua(script string, cmd []byte) (uintptr, error) {
	if h.loader == nil {
		return 0, fmt.Errorf("MoonLoader not loaded")
	}
	target, err := memory.ReadPtr(h.Mem, LoaderBase+h.loader.build.Offsets.Register)
	if err != nil {
		return 0, err
	}
	buf := h.alloc(len(cmd) + 1)
	h.Mem.Poke(buf, append(append([]byte(nil), cmd...), 0))
	return h.RT.Call(target, h.scriptUserdata(script), buf, 0, 0, 0, 0)
}

// LoaderCalls reports how often the samp.dll routines behind MoonLoader ran.
func (h *Host) LoaderCalls() (registered map[string]int, unregistered int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.loader == nil {
		return nil, 0
	}
	out := make(map[string]int, len(h.loader.registered))
	for k, v := range h.loader.registered {
		out[k] = v
	}
	return out, h.loader.unregs
}
