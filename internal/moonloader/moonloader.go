// Package moonloader tracks chat commands registered by MoonLoader Lua scripts.
//
// MoonLoader calls the samp.dll register/unregister routines through absolute
// addresses embedded in its own code. Swapping those operands routes every
// registration through Go first; the original routine is always called afterwards
// with the same arguments, so MoonLoader behaves exactly as before.
package moonloader

import (
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"cmdhelper/internal/abi"
	"cmdhelper/internal/buildid"
	"cmdhelper/internal/hook"
	"cmdhelper/internal/logger"
	"cmdhelper/internal/memory"
	"cmdhelper/internal/native"
)

// Library is the MoonLoader module name.
const Library = "MoonLoader.asi"

const (
	registerArgc   = 6
	unregisterArgc = 2
	maxCommandLen  = 256
	maxPathLen     = 260
)

// Sink receives live registration events.
type Sink interface {
	AddLive(script, cmd string)
	RemoveLive(script, cmd string)
}

// Interceptor is an installed MoonLoader interception.
type Interceptor struct {
	mem  memory.Reader
	rt   native.Runtime
	sink Sink
	log  *log.Logger

	build          buildid.Entry[buildid.LoaderOffsets]
	base           uintptr
	origRegister   uintptr
	origUnregister uintptr
}

// Install resolves the loaded MoonLoader build and redirects its two command
// entry points. A missing MoonLoader is a hosterr.LibraryError; an unknown
// build is a version mismatch and nothing is patched.
func Install(ldr native.Loader, rt native.Runtime, mem memory.Memory, eng *hook.Engine, sink Sink) (*Interceptor, error) {
	base, err := ldr.ModuleHandle(Library)
	if err != nil {
		return nil, err
	}
	build, err := buildid.MoonLoaderBuilds.Resolve(mem, base)
	if err != nil {
		return nil, err
	}

	i := &Interceptor{
		mem:   mem,
		rt:    rt,
		sink:  sink,
		log:   logger.NewStyledLogger("moonloader"),
		build: build,
		base:  base,
	}

	reg, err := rt.NewCallback(native.Cdecl, registerArgc, i.onRegister)
	if err != nil {
		return nil, err
	}
	unreg, err := rt.NewCallback(native.Cdecl, unregisterArgc, i.onUnregister)
	if err != nil {
		return nil, err
	}

	if i.origRegister, err = eng.ReplaceSlot(base+build.Offsets.Register, reg); err != nil {
		return nil, err
	}
	logger.HookInstalled("sampRegisterChatCommand", hook.PointerSlot.String(), base+build.Offsets.Register, i.origRegister)
	if i.origUnregister, err = eng.ReplaceSlot(base+build.Offsets.Unregister, unreg); err != nil {
		return nil, err
	}
	logger.HookInstalled("sampUnregisterChatCommand", hook.PointerSlot.String(), base+build.Offsets.Unregister, i.origUnregister)

	i.log.Info("MoonLoader interception installed", "build", build.Build.ID)
	return i, nil
}

// Build returns the resolved MoonLoader build.
func (i *Interceptor) Build() buildid.Build { return i.build.Build }

// ScriptName returns the file name of the script owning userdata, or "unknown".
func (i *Interceptor) ScriptName(userdata uintptr) string {
	p, err := memory.ReadPtr(i.mem, userdata+i.build.Offsets.ScriptName)
	if err != nil {
		return abi.Unknown
	}
	path, err := memory.ReadUTF16String(i.mem, p, maxPathLen)
	if err != nil {
		return abi.Unknown
	}
	return FileName(path)
}

// FileName returns the last element of a Windows or slash-separated path, or
// "unknown" when the path names no file.
func FileName(path string) string {
	name := path[strings.LastIndexAny(path, `\/`)+1:]
	if name == "" || name == "." || name == ".." {
		return abi.Unknown
	}
	return name
}

// command decodes the command argument. ok is false for unreadable pointers
// and for text that is not valid UTF-8.
func (i *Interceptor) command(ptr uintptr) (string, bool) {
	b, err := memory.ReadCString(i.mem, ptr, maxCommandLen)
	if err != nil || !utf8.Valid(b) {
		return "", false
	}
	return string(b), true
}

// onRegister stands in for sampRegisterChatCommand(userdata, cmd, func, ...).
func (i *Interceptor) onRegister(args []uintptr) uintptr {
	if cmd, ok := i.command(args[1]); ok {
		i.sink.AddLive(i.ScriptName(args[0]), cmd)
	}
	return i.chain(i.origRegister, args)
}

// onUnregister stands in for sampUnregisterChatCommand(userdata, cmd).
func (i *Interceptor) onUnregister(args []uintptr) uintptr {
	if cmd, ok := i.command(args[1]); ok {
		i.sink.RemoveLive(i.ScriptName(args[0]), cmd)
	}
	return i.chain(i.origUnregister, args)
}

// chain calls the original routine. Both return a bool in AL.
func (i *Interceptor) chain(orig uintptr, args []uintptr) uintptr {
	r, err := i.rt.Call(orig, args...)
	if err != nil {
		i.log.Error("Original command routine failed", "addr", logger.Addr(orig), "error", err)
		return 0
	}
	return r & 0xFF
}
