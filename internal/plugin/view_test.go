package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cmdhelper/internal/commands"
	"cmdhelper/internal/host"
	"cmdhelper/internal/memory"
)

type noSlots struct{}

func (noSlots) Commands() ([]host.CommandSlot, error) { return nil, nil }

// sampleCategories is an aggregated pass with an empty client table plus one
// Lua script.
func sampleCategories(t *testing.T) *commands.Categories {
	t.Helper()
	r := commands.NewRegistry()
	require.NoError(t, r.Refresh(commands.Sources{Slots: noSlots{}, Modules: memory.ModuleList{}}))
	r.AddLive("hud.lua", "hud")
	r.AddLive("hud.lua", "pm")
	return r.Snapshot()
}

func TestBuildView(t *testing.T) {
	box := host.EditBox{X: 40, Y: 300, Width: 500, Height: 24}
	open := host.ChatState{Enabled: true, CurrentRecall: -1, EditBox: box}
	cats := sampleCategories(t)

	tests := []struct {
		name  string
		state func(st *host.ChatState)
		cats  *commands.Categories
		want  Mode
	}{
		{"chat closed", func(st *host.ChatState) { st.Enabled = false; st.Text = "/h" }, cats, Hidden},
		{"menu open", func(st *host.ChatState) { st.MenuActive = true; st.Text = "/h" }, cats, Hidden},
		{"plain text without history", func(st *host.ChatState) { st.Text = "hello" }, cats, Hidden},
		{"command without commands", func(st *host.ChatState) { st.Text = "/h" }, commands.NewCategories(), Hidden},
		{"command", func(st *host.ChatState) { st.Text = "/h" }, cats, CommandList},
		{"history", func(st *host.ChatState) { st.Recalls = []string{"hi"} }, cats, RecallList},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := open
			tt.state(&st)
			v := BuildView(st, tt.cats)
			assert.Equal(t, tt.want, v.Mode)
			if v.Mode != Hidden {
				assert.Equal(t, int32(40), v.X)
				assert.Equal(t, int32(329), v.Y)
			}
		})
	}
}

func TestBuildViewDimsNonMatching(t *testing.T) {
	st := host.ChatState{Enabled: true, Text: "/h", CurrentRecall: -1}
	v := BuildView(st, sampleCategories(t))

	assert.Equal(t, []CategoryView{
		{Name: "SA-MP"},
		{Name: "Lua", Modules: []ModuleView{{
			Name:    "hud.lua",
			Entries: []Entry{{Text: "/hud"}, {Text: "/pm", Dim: true}},
		}}},
	}, v.Categories)
}

func TestBuildViewRecalls(t *testing.T) {
	st := host.ChatState{Enabled: true, Recalls: []string{"a", "b", "c"}, CurrentRecall: 1}
	v := BuildView(st, commands.NewCategories())
	assert.Equal(t, []Entry{{Text: "a", Dim: true}, {Text: "b"}, {Text: "c", Dim: true}}, v.Recalls)

	st.CurrentRecall = -1
	v = BuildView(st, commands.NewCategories())
	for _, e := range v.Recalls {
		assert.False(t, e.Dim)
	}
}
