package host_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cmdhelper/internal/abi"
	"cmdhelper/internal/host"
	"cmdhelper/internal/hosterr"
	"cmdhelper/internal/native"
	"cmdhelper/internal/simhost"
)

// countingRuntime counts scratch allocations.
type countingRuntime struct {
	native.Runtime
	allocs int
}

func (c *countingRuntime) Alloc(size int) (uintptr, error) {
	c.allocs++
	return c.Runtime.Alloc(size)
}

func sampHost(t *testing.T) (*simhost.Host, *host.Input) {
	t.Helper()
	build, err := simhost.SampBuild("0.3.7-R1")
	require.NoError(t, err)
	h := simhost.New().WithSamp(build, 0)
	in, err := host.BindInput(h.Mem, h.RT, simhost.SampBase, build.Offsets)
	require.NoError(t, err)
	return h, in
}

func TestReadCommandTableClampsCount(t *testing.T) {
	h, in := sampHost(t)
	require.NoError(t, h.SetCommands([]simhost.Command{
		{Name: "pm", Module: "samp.dll"},
		{Name: "q", Module: "samp.dll"},
	}))

	tests := []struct {
		name  string
		count int32
		want  int
	}{
		{"live", 2, 2},
		{"negative", -5, 0},
		{"zero", 0, 0},
		{"beyond table", 100000, host.MaxClientCommands},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.SetCommandCount(tt.count)
			slots, err := in.Commands()
			require.NoError(t, err)
			assert.Len(t, slots, tt.want)
		})
	}
}

func TestReadCommandTableUnterminatedName(t *testing.T) {
	h, in := sampHost(t)
	require.NoError(t, h.SetCommands([]simhost.Command{{Name: "ok", Module: "samp.dll"}}))

	// fill the whole name slot with non-NUL bytes
	name := make([]byte, host.MaxCommandLength+1)
	for i := range name {
		name[i] = 'x'
	}
	h.Mem.Poke(in.Addr()+0x24C, name)

	slots, err := in.Commands()
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, abi.Unknown, slots[0].Name)
}

func TestBindInputBeforeInit(t *testing.T) {
	build, err := simhost.SampBuild("0.3.7-R1")
	require.NoError(t, err)
	h := simhost.New().WithSamp(build, 0)
	h.Mem.PokePtr(simhost.SampBase+build.Offsets.Input, 0)

	_, err = host.BindInput(h.Mem, h.RT, simhost.SampBase, build.Offsets)
	assert.ErrorIs(t, err, hosterr.ErrUnexpectedMemoryState)
}

func TestInputText(t *testing.T) {
	h, in := sampHost(t)
	h.SetText("/pm 12 hello")

	text, err := in.Text()
	require.NoError(t, err)
	assert.Equal(t, "/pm 12 hello", text)

	require.NoError(t, in.SetText("/q"))
	assert.Equal(t, "/q", h.Text())
}

func TestInputState(t *testing.T) {
	h, in := sampHost(t)
	h.SetText("/p")
	h.SetRecalls([]string{"/pm 1 hi", "/q"})
	h.SetEditBox(host.EditBox{X: 10, Y: 20, Width: 300, Height: 18})

	st, err := in.State()
	require.NoError(t, err)
	assert.True(t, st.Enabled)
	assert.False(t, st.MenuActive)
	assert.Equal(t, "/p", st.Text)
	assert.Equal(t, []string{"/pm 1 hi", "/q"}, st.Recalls)
	assert.Equal(t, int32(-1), st.CurrentRecall)
	assert.Equal(t, host.EditBox{X: 10, Y: 20, Width: 300, Height: 18}, st.EditBox)

	h.SetChat(false, -1)
	st, err = in.State()
	require.NoError(t, err)
	assert.False(t, st.Enabled)
	assert.Empty(t, st.Text)
}

func TestSelectRecall(t *testing.T) {
	h, in := sampHost(t)
	h.SetRecalls([]string{"/pm 1 hi", "/q"})

	require.NoError(t, in.SelectRecall(1))
	assert.Equal(t, "/q", h.Text())
	st, err := in.State()
	require.NoError(t, err)
	assert.Equal(t, int32(1), st.CurrentRecall)

	assert.Error(t, in.SelectRecall(2))
	assert.Error(t, in.SelectRecall(-1))
}

func TestSetTextReusesScratch(t *testing.T) {
	build, err := simhost.SampBuild("0.3.7-R1")
	require.NoError(t, err)
	h := simhost.New().WithSamp(build, 0)
	rt := &countingRuntime{Runtime: h.RT}
	in, err := host.BindInput(h.Mem, rt, simhost.SampBase, build.Offsets)
	require.NoError(t, err)
	bound := rt.allocs

	h.SetRecalls([]string{"/pm 1 hi"})
	for i := range 100 {
		require.NoError(t, in.SetText(strings.Repeat("x", i%host.MaxChatInput)))
	}
	require.NoError(t, in.SetText("/pm 1 hello"))
	require.NoError(t, in.SelectRecall(0))
	assert.Equal(t, "/pm 1 hi", h.Text())
	assert.Equal(t, bound, rt.allocs)
}

func TestSetTextLimit(t *testing.T) {
	h, in := sampHost(t)
	full := strings.Repeat("a", host.MaxChatInput)
	require.NoError(t, in.SetText(full))
	assert.Equal(t, full, h.Text())

	assert.Error(t, in.SetText(full+"a"))
	assert.Equal(t, full, h.Text())
}
