package plugin

import (
	"cmdhelper/internal/buildid"
	"cmdhelper/internal/hook"
	"cmdhelper/internal/logger"
)

// onIdle replaces the game's idle call. The original always runs afterwards,
// whatever state initialization is in.
func (p *Plugin) onIdle([]uintptr) uintptr {
	p.machine.Tick()
	r, err := p.deps.RT.Call(p.origIdle)
	if err != nil {
		p.log.Error("Original idle call failed", "addr", logger.Addr(p.origIdle), "error", err)
	}
	return r
}

// onPresent stands in for IDirect3DDevice9::Present(this, src, dst, hwnd, dirty).
func (p *Plugin) onPresent(args []uintptr) uintptr {
	p.deps.Overlay.Present(args[0])
	return p.chain("Present", p.original(&p.origPresent), args)
}

// onReset stands in for IDirect3DDevice9::Reset(this, params).
func (p *Plugin) onReset(args []uintptr) uintptr {
	p.deps.Overlay.PreReset(args[0])
	return p.chain("Reset", p.original(&p.origReset), args)
}

// onWndProc sees every game window message first. A left click the overlay
// consumed is swallowed so the click does not close the chat box.
func (p *Plugin) onWndProc(args []uintptr) uintptr {
	hwnd, msg, wParam, lParam := args[0], uint32(args[1]), args[2], args[3]
	if p.deps.Overlay.HandleMessage(hwnd, msg, wParam, lParam) && msg == hook.WMLButtonDown {
		return 1
	}
	return p.deps.Windows.CallWindowProc(p.original(&p.origWndProc), hwnd, msg, wParam, lParam)
}

func (p *Plugin) original(field *uintptr) uintptr {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return *field
}

func (p *Plugin) chain(name string, orig uintptr, args []uintptr) uintptr {
	r, err := p.deps.RT.Call(orig, args...)
	if err != nil {
		p.log.Error("Original "+name+" failed", "addr", logger.Addr(orig), "error", err)
		return 0
	}
	return r
}

// MoonLoader returns the intercepted MoonLoader build.
func (p *Plugin) MoonLoader() (buildid.Build, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.loader == nil {
		return buildid.Build{}, false
	}
	return p.loader.Build(), true
}

// SampFuncs reports whether the SAMPFUNCS command list is read.
func (p *Plugin) SampFuncs() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.companion != nil
}
