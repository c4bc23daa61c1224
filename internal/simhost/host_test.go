package simhost

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cmdhelper/internal/buildid"
	"cmdhelper/internal/host"
	"cmdhelper/internal/memory"
)

const scenarioYAML = `
menu: false
modules:
  - {name: helper.asi, size: 4096}
samp:
  build: 0.3.7-R3
  commands:
    - {name: pm, module: samp.dll}
    - {name: hi, module: helper.asi}
  chat:
    open: true
    text: /p
    recalls: [/pm 1 hey]
sampfuncs:
  plugins:
    - {name: sftools, commands: [tools]}
  scripts:
    - {thread: autolog, commands: [al]}
moonloader:
  build: 0.27.0-preview3
  scripts:
    - {path: 'C:\games\samp\moonloader\hud.lua', commands: [hud, hudreset]}
`

func TestScenarioBuild(t *testing.T) {
	sc, err := Parse([]byte(scenarioYAML))
	require.NoError(t, err)
	h, err := sc.Build()
	require.NoError(t, err)

	for _, name := range []string{"gta_sa.exe", "samp.dll", "helper.asi", "SAMPFUNCS.asi", "MoonLoader.asi"} {
		_, ok := h.Module(name)
		assert.True(t, ok, name)
	}

	base, err := h.RT.ModuleHandle("samp.dll")
	require.NoError(t, err)
	build, err := buildid.SampBuilds.Resolve(h.Mem, base)
	require.NoError(t, err)
	assert.Equal(t, "0.3.7-R3", build.Build.ID)

	slots, err := host.ReadCommandTable(h.Mem, h.Input())
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, "pm", slots[0].Name)
	mods, err := h.Modules()
	require.NoError(t, err)
	owner, ok := memory.Owner(mods, slots[1].Proc)
	require.True(t, ok)
	assert.Equal(t, "helper.asi", owner)

	assert.Equal(t, "/p", h.Text())
	require.NoError(t, sc.RegisterScripts(h))
	registered, _ := h.LoaderCalls()
	assert.Equal(t, map[string]int{"hud": 1, "hudreset": 1}, registered)
}

func TestScenarioErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown samp build", "samp: {build: 0.3.9}"},
		{"unknown loader build", "moonloader: {build: '1.0'}"},
		{"missing module", "samp: {build: 0.3.7-R1, commands: [{name: x, module: nope.asi}]}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc, err := Parse([]byte(tt.doc))
			require.NoError(t, err)
			_, err = sc.Build()
			assert.Error(t, err)
		})
	}

	_, err := Parse([]byte("samp: [1, 2"))
	assert.Error(t, err)
}

func TestFrameFollowsIdleCall(t *testing.T) {
	h := New()
	target, err := h.IdleTarget()
	require.NoError(t, err)
	assert.Equal(t, h.OriginalIdle(), target)

	require.NoError(t, h.Frame())
	require.NoError(t, h.Frame())
	require.NoError(t, h.Reset())

	s := h.Stats()
	assert.Equal(t, 2, s.IdleCalls)
	assert.Equal(t, 2, s.Presents)
	assert.Equal(t, 1, s.Resets)
}

func TestGameGlobals(t *testing.T) {
	h := New()
	hwnd, err := host.WindowHandle(h.Mem)
	require.NoError(t, err)
	assert.Equal(t, Window, hwnd)

	dev, err := host.Device(h.Mem)
	require.NoError(t, err)
	assert.Equal(t, h.Device(), dev)

	h.SetMenuActive(true)
	active, err := host.MenuActive(h.Mem)
	require.NoError(t, err)
	assert.True(t, active)

	_, err = h.SendMessage(0x0100, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0x0100}, h.Stats().Messages)
}

func TestSetCommandsRejectsOversizedInput(t *testing.T) {
	build, err := SampBuild("0.3.7-R1")
	require.NoError(t, err)
	h := New().WithSamp(build, 0)

	long := Command{Name: "abcdefghijklmnopqrstuvwxyz0123456789", Module: "samp.dll"}
	assert.Error(t, h.SetCommands([]Command{long}))

	many := make([]Command, host.MaxClientCommands+1)
	assert.Error(t, h.SetCommands(many))
}

func TestLuaWithoutMoonLoader(t *testing.T) {
	h := New()
	_, err := h.RegisterLua("a.lua", "x")
	assert.Error(t, err)
	reg, unreg := h.LoaderCalls()
	assert.Nil(t, reg)
	assert.Zero(t, unreg)
}
