// Package plugin is the process-scoped context of cmdhelper inside the game.
//
// Attach patches the game's idle call and nothing else. Every further step runs
// on the game thread from the idle callback, driven by the initialization state
// machine: binding the samp.dll chat input, probing SAMPFUNCS, hooking
// Direct3D and the window procedure, intercepting MoonLoader, and finally
// aggregating the command registry once the settle delay has passed.
package plugin

import (
	"errors"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"cmdhelper/internal/buildid"
	"cmdhelper/internal/commands"
	"cmdhelper/internal/companion"
	"cmdhelper/internal/config"
	"cmdhelper/internal/hook"
	"cmdhelper/internal/host"
	"cmdhelper/internal/hosterr"
	"cmdhelper/internal/logger"
	"cmdhelper/internal/memory"
	"cmdhelper/internal/moonloader"
	"cmdhelper/internal/native"
	"cmdhelper/internal/statemachine"
)

// SampLibrary is the SA-MP client module name.
const SampLibrary = "samp.dll"

// ErrNotReady is returned by presentation calls before the chat input is bound.
var ErrNotReady = errors.New("chat input not bound yet")

// Runtime calls host code and resolves loaded modules.
type Runtime interface {
	native.Runtime
	native.Loader
}

// Overlay is the presentation layer. All methods run on the game thread.
type Overlay interface {
	// Present is called before the frame is presented.
	Present(device uintptr)
	// PreReset is called before the device is reset; release device resources.
	PreReset(device uintptr)
	// HandleMessage sees every window message first and reports whether the
	// overlay consumed it.
	HandleMessage(hwnd uintptr, msg uint32, wParam, lParam uintptr) bool
}

// Deps is everything Attach needs from the process.
type Deps struct {
	Mem     memory.Memory
	RT      Runtime
	Modules memory.ModuleLister
	Windows hook.WindowAPI
	// Clock defaults to the wall clock.
	Clock   clock.Clock
	Config  config.Config
	// Overlay may be nil.
	Overlay Overlay
}

// Plugin owns the hooks, the registry and the state machine.
type Plugin struct {
	deps     Deps
	session  uuid.UUID
	log      *log.Logger
	engine   *hook.Engine
	registry *commands.Registry
	machine  *statemachine.Machine

	samp     buildid.Entry[buildid.SampOffsets]
	sampBase uintptr
	origIdle uintptr

	mu          sync.RWMutex
	input       *host.Input
	companion   *companion.Companion
	loader      *moonloader.Interceptor
	origPresent uintptr
	origReset   uintptr
	origWndProc uintptr
}

// Attach verifies the game, resolves the samp.dll build and redirects the idle
// call. An unknown samp.dll build is refused before anything is patched.
func Attach(deps Deps) (*Plugin, error) {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Overlay == nil {
		deps.Overlay = noOverlay{}
	}

	p := &Plugin{
		deps:     deps,
		session:  uuid.New(),
		engine:   hook.NewEngine(deps.Mem),
		registry: commands.NewRegistry(),
	}
	p.log = logger.NewStyledLogger("plugin").With("session", p.session.String())

	op, err := memory.ReadU8(deps.Mem, host.IdleCallSite)
	if err != nil {
		return nil, hosterr.MemoryState(host.IdleCallSite, "unreadable idle call site: %v", err)
	}
	if op != 0xE8 {
		return nil, hosterr.MemoryState(host.IdleCallSite, "expected a call, found opcode 0x%02X; unsupported gta_sa.exe", op)
	}

	if p.sampBase, err = deps.RT.ModuleHandle(SampLibrary); err != nil {
		return nil, fmt.Errorf("SA-MP is not loaded: %w", err)
	}
	if p.samp, err = buildid.SampBuilds.Resolve(deps.Mem, p.sampBase); err != nil {
		return nil, err
	}
	p.log.Info("SA-MP detected", "build", p.samp.Build.ID, "addr", logger.Addr(p.sampBase))

	p.machine = statemachine.New(p, deps.Clock, deps.Config.SettleDelay)

	idle, err := deps.RT.NewCallback(native.Cdecl, 0, p.onIdle)
	if err != nil {
		return nil, err
	}
	if p.origIdle, err = p.engine.PatchCall(host.IdleCallSite, idle); err != nil {
		return nil, err
	}
	logger.HookInstalled("idle", hook.CallSite.String(), host.IdleCallSite, p.origIdle)
	return p, nil
}

// Session identifies this attach in log lines.
func (p *Plugin) Session() uuid.UUID { return p.session }

// Build returns the resolved samp.dll build.
func (p *Plugin) Build() buildid.Build { return p.samp.Build }

// State returns the initialization state.
func (p *Plugin) State() statemachine.State { return p.machine.State() }

// Err returns the error that stopped initialization, if any.
func (p *Plugin) Err() error { return p.machine.Err() }

// Hooks lists every installed redirection.
func (p *Plugin) Hooks() []hook.Hook { return p.engine.Hooks() }

// Install implements statemachine.Steps.
func (p *Plugin) Install() error {
	input, err := host.BindInput(p.deps.Mem, p.deps.RT, p.sampBase, p.samp.Offsets)
	if err != nil {
		return err
	}

	var sf *companion.Companion
	if p.deps.Config.SampFuncs {
		if sf, err = optional(p, "SAMPFUNCS", func() (*companion.Companion, error) {
			return companion.Open(p.deps.RT, p.deps.RT, p.deps.Mem)
		}); err != nil {
			return err
		}
	}

	if err := p.hookDevice(); err != nil {
		return err
	}
	if err := p.hookWindow(); err != nil {
		return err
	}

	var ml *moonloader.Interceptor
	if p.deps.Config.MoonLoader {
		if ml, err = optional(p, "MoonLoader", func() (*moonloader.Interceptor, error) {
			return moonloader.Install(p.deps.RT, p.deps.RT, p.deps.Mem, p.engine, p.registry)
		}); err != nil {
			return err
		}
	}

	p.mu.Lock()
	p.input, p.companion, p.loader = input, sf, ml
	p.mu.Unlock()

	p.log.Info("Hooks installed", "hooks", len(p.engine.Hooks()), "sampfuncs", sf != nil, "moonloader", ml != nil)
	return nil
}

// optional runs open and downgrades a missing library or an unknown build to
// a warning.
func optional[T any](p *Plugin, name string, open func() (*T, error)) (*T, error) {
	v, err := open()
	switch {
	case err == nil:
		return v, nil
	case hosterr.Recoverable(err), errors.Is(err, hosterr.ErrVersionMismatch):
		p.log.Warn(name+" unavailable", "error", err)
		return nil, nil
	default:
		return nil, fmt.Errorf("%s: %w", name, err)
	}
}

func (p *Plugin) hookDevice() error {
	dev, err := host.Device(p.deps.Mem)
	if err != nil {
		return err
	}
	if dev == 0 {
		return hosterr.MemoryState(host.DevicePtr, "no Direct3D device")
	}

	present, err := p.deps.RT.NewCallback(native.Stdcall, 5, p.onPresent)
	if err != nil {
		return err
	}
	reset, err := p.deps.RT.NewCallback(native.Stdcall, 2, p.onReset)
	if err != nil {
		return err
	}

	// each original is stored before the next slot is touched, so a failure
	// part way leaves every installed hook chaining to the game
	origPresent, err := p.engine.ReplaceVTable(dev, host.DevicePresentSlot, present)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.origPresent = origPresent
	p.mu.Unlock()
	logger.HookInstalled("IDirect3DDevice9::Present", hook.PointerSlot.String(), dev, origPresent)

	origReset, err := p.engine.ReplaceVTable(dev, host.DeviceResetSlot, reset)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.origReset = origReset
	p.mu.Unlock()
	logger.HookInstalled("IDirect3DDevice9::Reset", hook.PointerSlot.String(), dev, origReset)
	return nil
}

func (p *Plugin) hookWindow() error {
	hwnd, err := host.WindowHandle(p.deps.Mem)
	if err != nil {
		return err
	}
	proc, err := p.deps.RT.NewCallback(native.Stdcall, 4, p.onWndProc)
	if err != nil {
		return err
	}
	orig, err := p.engine.ReplaceWindowProc(p.deps.Windows, hwnd, proc)
	if err != nil {
		return err
	}
	logger.HookInstalled("WndProc", hook.WindowProc.String(), hwnd, orig)

	p.mu.Lock()
	p.origWndProc = orig
	p.mu.Unlock()
	return nil
}

// Aggregate implements statemachine.Steps.
func (p *Plugin) Aggregate() error {
	p.mu.RLock()
	src := commands.Sources{Mem: p.deps.Mem, Slots: p.input, Modules: p.deps.Modules}
	if p.companion != nil {
		src.Companion = p.companion
	}
	p.mu.RUnlock()
	return p.registry.Refresh(src)
}

// Snapshot returns the current command categories.
func (p *Plugin) Snapshot() *commands.Categories { return p.registry.Snapshot() }

func (p *Plugin) chatInput() (*host.Input, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.input == nil {
		return nil, ErrNotReady
	}
	return p.input, nil
}

// ChatState reads the chat input and the pause menu flag.
func (p *Plugin) ChatState() (host.ChatState, error) {
	in, err := p.chatInput()
	if err != nil {
		return host.ChatState{}, err
	}
	return in.State()
}

// SetInput puts cmd into the chat box, as when a command is clicked.
func (p *Plugin) SetInput(cmd string) error {
	in, err := p.chatInput()
	if err != nil {
		return err
	}
	return in.SetText(commands.WithPrefix(cmd))
}

// SelectRecall puts history entry i into the chat box.
func (p *Plugin) SelectRecall(i int) error {
	in, err := p.chatInput()
	if err != nil {
		return err
	}
	return in.SelectRecall(i)
}

type noOverlay struct{}

func (noOverlay) Present(uintptr)                                       {}
func (noOverlay) PreReset(uintptr)                                      {}
func (noOverlay) HandleMessage(uintptr, uint32, uintptr, uintptr) bool { return false }
