package plugin

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cmdhelper/internal/commands"
	"cmdhelper/internal/config"
	"cmdhelper/internal/hook"
	"cmdhelper/internal/host"
	"cmdhelper/internal/hosterr"
	"cmdhelper/internal/memory"
	"cmdhelper/internal/simhost"
	"cmdhelper/internal/statemachine"
)

const gameYAML = `
modules:
  - {name: helper.asi, size: 4096}
samp:
  build: 0.3.7-R1
  commands:
    - {name: pm, module: samp.dll}
    - {name: hi, module: helper.asi}
  chat:
    open: true
sampfuncs:
  plugins:
    - {name: sftools, commands: [tools]}
  scripts:
    - {thread: autolog, commands: [al]}
  orphans: [ghost]
moonloader:
  build: 0.26.5-beta (installer)
  scripts:
    - {path: 'C:\games\samp\moonloader\hud.lua', commands: [hud, hudreset]}
`

const missingExportYAML = `
samp: {build: 0.3.7-R1}
sampfuncs:
  plugins: [{name: sftools, commands: [tools]}]
  missing: ['?getPluginName@SFPluginInfo@@QAE?AV?$basic_string@DU?$char_traits@D@std@@V?$allocator@D@2@@std@@XZ']
moonloader: {build: 0.26.5-beta (archive)}
`

type recordingOverlay struct {
	mu       sync.Mutex
	presents int
	resets   int
	messages []uint32
	consume  bool
}

func (o *recordingOverlay) Present(uintptr) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.presents++
}

func (o *recordingOverlay) PreReset(uintptr) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resets++
}

func (o *recordingOverlay) HandleMessage(_ uintptr, msg uint32, _, _ uintptr) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = append(o.messages, msg)
	return o.consume
}

type fixture struct {
	sc  *simhost.Scenario
	h   *simhost.Host
	clk *clock.Mock
	ov  *recordingOverlay
	p   *Plugin
}

func build(t *testing.T, doc string) (*simhost.Scenario, *simhost.Host) {
	t.Helper()
	sc, err := simhost.Parse([]byte(doc))
	require.NoError(t, err)
	h, err := sc.Build()
	require.NoError(t, err)
	return sc, h
}

func deps(h *simhost.Host, clk clock.Clock, cfg config.Config, ov Overlay) Deps {
	return Deps{Mem: h.Mem, RT: h.RT, Modules: h, Windows: h.Windows, Clock: clk, Config: cfg, Overlay: ov}
}

func attach(t *testing.T, doc string, cfg config.Config) *fixture {
	t.Helper()
	sc, h := build(t, doc)
	f := &fixture{sc: sc, h: h, clk: clock.NewMock(), ov: &recordingOverlay{}}
	p, err := Attach(deps(h, f.clk, cfg, f.ov))
	require.NoError(t, err)
	f.p = p
	return f
}

func (f *fixture) frames(t *testing.T, n int) {
	t.Helper()
	for range n {
		require.NoError(t, f.h.Frame())
	}
}

func TestEndToEnd(t *testing.T) {
	f := attach(t, gameYAML, config.Defaults())
	assert.Equal(t, "0.3.7-R1", f.p.Build().ID)
	assert.Equal(t, statemachine.BeforeHostInit, f.p.State())

	f.frames(t, 1)
	assert.Equal(t, statemachine.AfterHostInit, f.p.State())
	f.frames(t, 1)
	require.Equal(t, statemachine.Settling, f.p.State(), f.p.Err())
	assert.True(t, f.p.SampFuncs())
	ml, ok := f.p.MoonLoader()
	require.True(t, ok)
	assert.Equal(t, "0.26.5-beta (installer)", ml.ID)

	// scripts load while the helper settles
	require.NoError(t, f.sc.RegisterScripts(f.h))
	assert.True(t, f.p.Snapshot().Get(commands.Lua).Visible)

	f.clk.Add(statemachine.DefaultSettleDelay)
	f.frames(t, 1)
	require.Equal(t, statemachine.Done, f.p.State())

	snap := f.p.Snapshot()
	assert.Equal(t, commands.ModuleMap{
		"samp.dll":   {"/pm": ""},
		"helper.asi": {"/hi": ""},
	}, snap.Get(commands.SAMP).Modules)
	assert.Equal(t, commands.ModuleMap{"sftools": {"/tools": ""}}, snap.Get(commands.SF).Modules)
	assert.Equal(t, commands.ModuleMap{"autolog.cs": {"/al": ""}}, snap.Get(commands.CLEO).Modules)
	assert.Equal(t, commands.ModuleMap{"hud.lua": {"/hud": "", "/hudreset": ""}}, snap.Get(commands.Lua).Modules)
	for cat := range snap.All() {
		assert.True(t, cat.Visible, cat.Name)
	}

	// every call reached the game
	stats := f.h.Stats()
	assert.Equal(t, 3, stats.IdleCalls)
	assert.Equal(t, 3, stats.Presents)
	assert.Equal(t, 2, f.ov.presents)
	registered, _ := f.h.LoaderCalls()
	assert.Equal(t, map[string]int{"hud": 1, "hudreset": 1}, registered)

	// idle, Present, Reset, WndProc and the two MoonLoader operands
	assert.Len(t, f.p.Hooks(), 6)
}

func TestLiveUnregisterAfterDone(t *testing.T) {
	f := attach(t, gameYAML, config.Defaults())
	f.frames(t, 2)
	require.NoError(t, f.sc.RegisterScripts(f.h))
	f.clk.Add(time.Hour)
	f.frames(t, 1)
	require.Equal(t, statemachine.Done, f.p.State())

	before := f.p.Snapshot()
	_, err := f.h.UnregisterLua(`C:\games\samp\moonloader\hud.lua`, "hud")
	require.NoError(t, err)
	_, err = f.h.UnregisterLua(`C:\games\samp\moonloader\hud.lua`, "hudreset")
	require.NoError(t, err)

	after := f.p.Snapshot()
	assert.False(t, after.Get(commands.Lua).Visible)
	assert.Empty(t, after.Get(commands.Lua).Modules)
	assert.Len(t, before.Get(commands.Lua).Modules["hud.lua"], 2, "published snapshots are immutable")
	assert.Equal(t, before.Get(commands.SAMP).Modules, after.Get(commands.SAMP).Modules)
}

func TestAttachRefusals(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) *simhost.Host
		is    error
	}{
		{
			name:  "no samp.dll",
			setup: func(*testing.T) *simhost.Host { return simhost.New() },
			is:    hosterr.ErrLibraryNotLoaded,
		},
		{
			name: "unknown samp.dll build",
			setup: func(t *testing.T) *simhost.Host {
				_, h := build(t, "samp: {build: 0.3.7-R1, entry_point: 0xDEAD}")
				return h
			},
			is: hosterr.ErrVersionMismatch,
		},
		{
			name: "unsupported game executable",
			setup: func(t *testing.T) *simhost.Host {
				_, h := build(t, "samp: {build: 0.3.7-R1}")
				h.Mem.Poke(host.IdleCallSite, []byte{0x90})
				return h
			},
			is: hosterr.ErrUnexpectedMemoryState,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := tt.setup(t)
			before, _ := h.IdleTarget()
			_, err := Attach(deps(h, clock.NewMock(), config.Defaults(), nil))
			require.ErrorIs(t, err, tt.is)

			after, _ := h.IdleTarget()
			assert.Equal(t, before, after, "nothing patched")
			assert.Empty(t, h.Mem.ProtectCalls())
		})
	}
}

func TestInstallFailureKeepsGameRunning(t *testing.T) {
	_, h := build(t, "samp: {build: 0.3.DL-R1}")
	h.Mem.PokePtr(host.DevicePtr, 0)
	p, err := Attach(deps(h, clock.NewMock(), config.Defaults(), nil))
	require.NoError(t, err)

	for range 5 {
		require.NoError(t, h.Frame())
	}
	assert.Equal(t, statemachine.Failed, p.State())
	assert.ErrorIs(t, p.Err(), hosterr.ErrUnexpectedMemoryState)
	assert.Equal(t, 5, h.Stats().IdleCalls, "the idle original runs in every state")
	assert.Empty(t, p.Snapshot().Get(commands.SAMP).Modules)
}

// lockedSlot refuses to change the protection of one address.
type lockedSlot struct {
	memory.Memory
	addr uintptr
}

func (m lockedSlot) Protect(addr, size uintptr, prot uint32) (uint32, error) {
	if m.addr >= addr && m.addr < addr+size {
		return 0, errors.New("access denied")
	}
	return m.Memory.Protect(addr, size, prot)
}

func TestPartialDeviceHookKeepsPresenting(t *testing.T) {
	_, h := build(t, "samp: {build: 0.3.7-R1}")
	vtable, err := memory.ReadPtr(h.Mem, h.Device())
	require.NoError(t, err)

	d := deps(h, clock.NewMock(), config.Defaults(), nil)
	d.Mem = lockedSlot{Memory: h.Mem, addr: vtable + uintptr(host.DeviceResetSlot)*memory.PtrSize}
	p, err := Attach(d)
	require.NoError(t, err)

	for range 5 {
		require.NoError(t, h.Frame())
	}
	assert.Equal(t, statemachine.Failed, p.State())
	assert.ErrorIs(t, p.Err(), hosterr.ErrHostAPI)
	require.Len(t, p.Hooks(), 2, "idle and Present stay installed")
	assert.Equal(t, 5, h.Stats().Presents, "the game's Present runs on every frame")
	assert.Equal(t, 5, h.Stats().IdleCalls)
}

func TestOptionalLibraries(t *testing.T) {
	tests := []struct {
		name          string
		doc           string
		cfg           func(*config.Config)
		wantSampFuncs bool
		wantLoader    bool
	}{
		{"none loaded", "samp: {build: 0.3.7-R5}", nil, false, false},
		{"missing export", missingExportYAML, nil, false, true},
		{"unknown loader", "samp: {build: 0.3.7-R4}\nmoonloader: {build: 0.27.0-preview3, entry_point: 0x1234}", nil, false, false},
		{"disabled", gameYAML, func(c *config.Config) { c.SampFuncs, c.MoonLoader = false, false }, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Defaults()
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			f := attach(t, tt.doc, cfg)
			f.frames(t, 2)
			require.Equal(t, statemachine.Settling, f.p.State(), f.p.Err())
			assert.Equal(t, tt.wantSampFuncs, f.p.SampFuncs())
			_, loader := f.p.MoonLoader()
			assert.Equal(t, tt.wantLoader, loader)

			f.clk.Add(statemachine.DefaultSettleDelay)
			f.frames(t, 1)
			require.Equal(t, statemachine.Done, f.p.State())
			snap := f.p.Snapshot()
			assert.True(t, snap.Get(commands.SAMP).Visible)
			if !tt.wantSampFuncs {
				assert.False(t, snap.Get(commands.SF).Visible)
				assert.False(t, snap.Get(commands.CLEO).Visible)
			}
		})
	}
}

func TestWindowProcClickThrough(t *testing.T) {
	f := attach(t, gameYAML, config.Defaults())
	f.frames(t, 2)

	r, err := f.h.SendMessage(0x0100, 0, 0)
	require.NoError(t, err)
	assert.Zero(t, r)
	r, err = f.h.SendMessage(hook.WMLButtonDown, 0, 0)
	require.NoError(t, err)
	assert.Zero(t, r)

	f.ov.consume = true
	r, err = f.h.SendMessage(hook.WMLButtonDown, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, uintptr(1), r)
	_, err = f.h.SendMessage(0x0100, 0, 0)
	require.NoError(t, err)

	assert.Equal(t, []uint32{0x0100, hook.WMLButtonDown, hook.WMLButtonDown, 0x0100}, f.ov.messages)
	assert.Equal(t, []uint32{0x0100, hook.WMLButtonDown, 0x0100}, f.h.Stats().Messages, "a consumed click never reaches the game")
}

func TestDeviceReset(t *testing.T) {
	f := attach(t, gameYAML, config.Defaults())
	f.frames(t, 2)
	require.NoError(t, f.h.Reset())
	assert.Equal(t, 1, f.ov.resets)
	assert.Equal(t, 1, f.h.Stats().Resets)
}

func TestPresentationBoundary(t *testing.T) {
	f := attach(t, gameYAML, config.Defaults())

	_, err := f.p.ChatState()
	assert.ErrorIs(t, err, ErrNotReady)
	assert.ErrorIs(t, f.p.SetInput("pm"), ErrNotReady)
	assert.ErrorIs(t, f.p.SelectRecall(0), ErrNotReady)
	_, err = f.p.View()
	assert.ErrorIs(t, err, ErrNotReady)

	f.frames(t, 2)
	f.clk.Add(statemachine.DefaultSettleDelay)
	f.frames(t, 1)

	require.NoError(t, f.p.SetInput("pm"))
	assert.Equal(t, "/pm", f.h.Text())
	require.NoError(t, f.p.SetInput("/tools"))
	assert.Equal(t, "/tools", f.h.Text())

	f.h.SetText("/h")
	v, err := f.p.View()
	require.NoError(t, err)
	assert.Equal(t, CommandList, v.Mode)
	require.Len(t, v.Categories, 3, "Lua is empty until scripts register")

	f.h.SetRecalls([]string{"/pm 1 hi"})
	require.NoError(t, f.p.SelectRecall(0))
	st, err := f.p.ChatState()
	require.NoError(t, err)
	assert.Equal(t, "/pm 1 hi", st.Text)
	assert.Equal(t, int32(0), st.CurrentRecall)
}

func TestSessionIsUnique(t *testing.T) {
	a := attach(t, "samp: {build: 0.3.7-R2}", config.Defaults())
	b := attach(t, "samp: {build: 0.3.7-R2}", config.Defaults())
	assert.NotEqual(t, a.p.Session(), b.p.Session())
}
