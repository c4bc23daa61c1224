package plugin

import (
	"strings"

	"cmdhelper/internal/commands"
	"cmdhelper/internal/host"
)

// Mode is what the overlay shows under the chat box.
type Mode int

const (
	// Hidden draws nothing.
	Hidden Mode = iota
	// CommandList shows the categories while a command is being typed.
	CommandList
	// RecallList shows the chat history.
	RecallList
)

// popupGap separates the chat box from the popup, in pixels.
const popupGap = 5

// Entry is one clickable line. Dim entries are drawn weak: they do not match
// what is typed or are not the selected recall.
type Entry struct {
	Text string
	Dim  bool
}

// ModuleView is one collapsible module group.
type ModuleView struct {
	Name    string
	Entries []Entry
}

// CategoryView is one visible category column.
type CategoryView struct {
	Name    string
	Modules []ModuleView
}

// View is a renderer-independent description of the popup.
type View struct {
	Mode       Mode
	X, Y       int32
	Categories []CategoryView
	Recalls    []Entry
}

// BuildView decides what to draw for chat state st and snapshot cats.
func BuildView(st host.ChatState, cats *commands.Categories) View {
	if st.MenuActive || !st.Enabled {
		return View{}
	}
	typing := strings.HasPrefix(st.Text, commands.Prefix)
	if (!typing && len(st.Recalls) == 0) || (typing && cats.Empty()) {
		return View{}
	}

	v := View{X: st.EditBox.X, Y: st.EditBox.Y + st.EditBox.Height + popupGap}
	if !typing {
		v.Mode = RecallList
		for i, line := range st.Recalls {
			v.Recalls = append(v.Recalls, Entry{Text: line, Dim: st.CurrentRecall != -1 && int32(i) != st.CurrentRecall})
		}
		return v
	}

	v.Mode = CommandList
	for cat := range cats.All() {
		if !cat.Visible {
			continue
		}
		cv := CategoryView{Name: cat.Name}
		for _, name := range cat.Modules.Names() {
			mv := ModuleView{Name: name}
			for _, cmd := range cat.Modules[name].Commands() {
				mv.Entries = append(mv.Entries, Entry{Text: cmd, Dim: !commands.Matches(st.Text, cmd)})
			}
			cv.Modules = append(cv.Modules, mv)
		}
		v.Categories = append(v.Categories, cv)
	}
	return v
}

// View reads the chat state and builds the popup for the current snapshot.
func (p *Plugin) View() (View, error) {
	st, err := p.ChatState()
	if err != nil {
		return View{}, err
	}
	return BuildView(st, p.Snapshot()), nil
}
