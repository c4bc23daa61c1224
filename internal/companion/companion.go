// Package companion reads the command list of the SAMPFUNCS library.
//
// SAMPFUNCS exports C++ member functions that return std::vector and std::string by
// value. Under the MSVC x86 ABI such a call receives the object in ECX and a hidden
// pointer to caller-owned storage as its first stack argument; the callee constructs
// the result there and returns the same pointer.
package companion

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/charmbracelet/log"

	"cmdhelper/internal/abi"
	"cmdhelper/internal/hosterr"
	"cmdhelper/internal/logger"
	"cmdhelper/internal/memory"
	"cmdhelper/internal/native"
)

// Library is the companion module name.
const Library = "SAMPFUNCS.asi"

// Exported member functions.
const (
	SymChatCommands = "?getChatCommands@SAMPFUNCS@@QAE?AV?$vector@UstCommandInfo@@V?$allocator@UstCommandInfo@@@std@@@std@@XZ"
	SymPluginName   = "?getPluginName@SFPluginInfo@@QAE?AV?$basic_string@DU?$char_traits@D@std@@V?$allocator@D@2@@std@@XZ"
	SymThreadName   = "?GetThreadName@CScriptThread@@QAE?AV?$basic_string@DU?$char_traits@D@std@@V?$allocator@D@2@@std@@XZ"
)

// Symbols lists every export the companion must provide.
var Symbols = []string{SymChatCommands, SymPluginName, SymThreadName}

// ScriptSuffix is appended to CLEO thread names.
const ScriptSuffix = ".cs"

// Companion is a bound SAMPFUNCS instance.
type Companion struct {
	mem memory.Memory
	rt  native.Runtime
	log *log.Logger

	base            uintptr
	getChatCommands uintptr
	getPluginName   uintptr
	getThreadName   uintptr

	// scratch receives by-value results. Returned objects are never destroyed:
	// their buffers belong to the companion's allocator.
	scratch uintptr
}

// Open binds the already-loaded companion. A missing library or export is a
// hosterr.LibraryError, which callers treat as recoverable.
func Open(ldr native.Loader, rt native.Runtime, mem memory.Memory) (*Companion, error) {
	base, err := ldr.ModuleHandle(Library)
	if err != nil {
		return nil, err
	}

	c := &Companion{mem: mem, rt: rt, base: base, log: logger.NewStyledLogger("sampfuncs")}
	targets := []*uintptr{&c.getChatCommands, &c.getPluginName, &c.getThreadName}
	for i, sym := range Symbols {
		addr, err := ldr.Symbol(base, sym)
		if err != nil {
			var le *hosterr.LibraryError
			if errors.As(err, &le) {
				le.Library = Library
			}
			return nil, err
		}
		*targets[i] = addr
	}

	if c.scratch, err = rt.Alloc(abi.VectorSize + abi.StringSize); err != nil {
		return nil, fmt.Errorf("companion scratch: %w", err)
	}

	c.log.Debug("Companion bound", "base", logger.Addr(base))
	return c, nil
}

// Base returns the module base of the companion.
func (c *Companion) Base() uintptr { return c.base }

// ChatCommands returns a view over the companion's command vector. Elements are
// decoded lazily; the view is only valid until the companion changes its list.
func (c *Companion) ChatCommands() (abi.ForeignArray[abi.CommandInfo], error) {
	ret := c.scratch
	if err := c.byValue(c.getChatCommands, 0, ret); err != nil {
		return abi.ForeignArray[abi.CommandInfo]{}, err
	}
	arr, err := abi.ReadForeignArray(c.mem, ret, abi.CommandInfoLayout{})
	if err != nil {
		return arr, hosterr.MemoryState(ret, "command vector: %v", err)
	}
	return arr, nil
}

// byValue calls a member function returning an object into ret. The callee
// must hand back ret itself.
func (c *Companion) byValue(fn, this, ret uintptr) error {
	r, err := c.rt.ThisCall(fn, this, ret)
	if err != nil {
		return err
	}
	if r != ret {
		return hosterr.MemoryState(fn, "returned 0x%X instead of the result slot", r)
	}
	return nil
}

func (c *Companion) stringCall(fn, this uintptr) (string, error) {
	ret := c.scratch + abi.VectorSize
	if err := c.byValue(fn, this, ret); err != nil {
		return "", err
	}
	s, err := abi.ReadForeignString(c.mem, ret)
	if err != nil {
		return "", err
	}
	return s.Decode(c.mem), nil
}

// PluginName returns the name of the plugin described by info.
func (c *Companion) PluginName(info uintptr) string {
	name, err := c.stringCall(c.getPluginName, info)
	if err == nil {
		return name
	}
	c.log.Debug("getPluginName failed, reading the struct", "addr", logger.Addr(info), "error", err)
	return abi.ReadPluginName(c.mem, info)
}

// ThreadName returns the name of the CLEO thread.
func (c *Companion) ThreadName(thread uintptr) string {
	name, err := c.stringCall(c.getThreadName, thread)
	if err == nil {
		return name
	}
	c.log.Debug("GetThreadName failed, reading the struct", "addr", logger.Addr(thread), "error", err)
	if name, err = abi.ReadThreadName(c.mem, thread); err != nil {
		return abi.Unknown
	}
	return name
}

// OwnerName names the module that registered a command: plugins by their
// plugin name, scripts by their trimmed thread name plus ".cs".
func (c *Companion) OwnerName(o abi.Owner) string {
	switch o := o.(type) {
	case abi.ScriptOwner:
		return strings.TrimRightFunc(c.ThreadName(o.Thread), unicode.IsSpace) + ScriptSuffix
	case abi.PluginOwner:
		return c.PluginName(o.Info)
	default:
		return abi.Unknown
	}
}
