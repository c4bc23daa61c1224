package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"cmdhelper/internal/commands"
	"cmdhelper/internal/config"
	"cmdhelper/internal/host"
	"cmdhelper/internal/plugin"
	"cmdhelper/internal/simhost"
	"cmdhelper/internal/statemachine"
)

var (
	simText     string
	simMarkdown bool
	simConfig   string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate <scenario.yaml>",
	Short: "Run the plugin against a simulated game and print the command list",
	Long: `Builds a simulated gta_sa.exe with the samp.dll, SAMPFUNCS and MoonLoader
builds named in the scenario, attaches the plugin, drives the game loop
through initialization and prints the resulting categories.`,
	Args: cobra.ExactArgs(1),
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().StringVar(&simText, "text", "", "Chat text to type before rendering, e.g. /p")
	simulateCmd.Flags().BoolVar(&simMarkdown, "markdown", false, "Render the command list as markdown")
	simulateCmd.Flags().StringVar(&simConfig, "config-dir", ".", "Directory holding cmdhelper.yaml and cmdhelper.env")
	simulateCmd.Flags().Bool("moonloader", true, "Intercept MoonLoader registrations")
	simulateCmd.Flags().Bool("sampfuncs", true, "Read the SAMPFUNCS command list")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	v, err := config.New(simConfig)
	if err != nil {
		return err
	}
	if err := v.BindPFlag(config.KeyMoonLoader, cmd.Flags().Lookup("moonloader")); err != nil {
		return err
	}
	if err := v.BindPFlag(config.KeySampFuncs, cmd.Flags().Lookup("sampfuncs")); err != nil {
		return err
	}
	cfg, err := config.Decode(v, simConfig)
	if err != nil {
		return err
	}

	sc, err := simhost.Load(args[0])
	if err != nil {
		return err
	}
	sim, err := simulate(sc, cfg)
	if err != nil {
		return err
	}

	view, err := sim.view(simText)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if simMarkdown {
		return renderMarkdown(out, view)
	}
	renderTerminal(out, view)
	return nil
}

// simulation is one plugin attached to a simulated game.
type simulation struct {
	host   *simhost.Host
	plugin *plugin.Plugin
	clock  *clock.Mock
}

// simulate runs the game loop until the plugin has aggregated or failed.
// Lua scripts register after the hooks are in place, the way MoonLoader loads
// them after the plugin.
func simulate(sc *simhost.Scenario, cfg config.Config) (*simulation, error) {
	h, err := sc.Build()
	if err != nil {
		return nil, err
	}
	s := &simulation{host: h, clock: clock.NewMock()}
	s.plugin, err = plugin.Attach(plugin.Deps{
		Mem:     h.Mem,
		RT:      h.RT,
		Modules: h,
		Windows: h.Windows,
		Clock:   s.clock,
		Config:  cfg,
	})
	if err != nil {
		return nil, fmt.Errorf("attach refused: %w", err)
	}

	if err := s.frames(2); err != nil {
		return nil, err
	}
	if s.plugin.State() == statemachine.Settling {
		if err := sc.RegisterScripts(h); err != nil {
			return nil, err
		}
	}
	s.clock.Add(cfg.SettleDelay)
	if err := s.frames(1); err != nil {
		return nil, err
	}

	if st := s.plugin.State(); st != statemachine.Done {
		if err := s.plugin.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("initialization stopped in state %s", st)
	}
	return s, nil
}

func (s *simulation) frames(n int) error {
	for range n {
		if err := s.host.Frame(); err != nil {
			return fmt.Errorf("frame: %w", err)
		}
	}
	return nil
}

// view types text into the chat box and builds the popup. Without text the
// whole snapshot is shown undimmed.
func (s *simulation) view(text string) (plugin.View, error) {
	if text == "" {
		return plugin.BuildView(host.ChatState{Enabled: true, Text: commands.Prefix, CurrentRecall: -1}, s.plugin.Snapshot()), nil
	}
	if err := s.plugin.SetInput(text); err != nil {
		return plugin.View{}, err
	}
	return s.plugin.View()
}

func renderTerminal(w io.Writer, v plugin.View) {
	switch v.Mode {
	case plugin.Hidden:
		fmt.Fprintln(w, dimStyle.Render("(popup hidden)"))
	case plugin.RecallList:
		for _, e := range v.Recalls {
			fmt.Fprintln(w, entryText(e))
		}
	case plugin.CommandList:
		for _, cat := range v.Categories {
			fmt.Fprintln(w, headerStyle.Render(cat.Name))
			for _, m := range cat.Modules {
				fmt.Fprintf(w, "  %s\n", okStyle.Render(m.Name))
				for _, e := range m.Entries {
					fmt.Fprintf(w, "    %s\n", entryText(e))
				}
			}
		}
	}
}

func entryText(e plugin.Entry) string {
	if e.Dim {
		return dimStyle.Render(e.Text)
	}
	return e.Text
}

// markdown writes the popup as a markdown document; dimmed entries are struck through.
func markdown(v plugin.View) string {
	var b strings.Builder
	item := func(e plugin.Entry) {
		if e.Dim {
			fmt.Fprintf(&b, "- ~~`%s`~~\n", e.Text)
		} else {
			fmt.Fprintf(&b, "- `%s`\n", e.Text)
		}
	}
	switch v.Mode {
	case plugin.Hidden:
		b.WriteString("_Popup hidden._\n")
	case plugin.RecallList:
		b.WriteString("## History\n\n")
		for _, e := range v.Recalls {
			item(e)
		}
	case plugin.CommandList:
		for _, cat := range v.Categories {
			fmt.Fprintf(&b, "## %s\n\n", cat.Name)
			for _, m := range cat.Modules {
				fmt.Fprintf(&b, "### %s\n\n", m.Name)
				for _, e := range m.Entries {
					item(e)
				}
				b.WriteString("\n")
			}
		}
	}
	return b.String()
}

func renderMarkdown(w io.Writer, v plugin.View) error {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	out, err := r.Render(markdown(v))
	if err != nil {
		return fmt.Errorf("failed to render markdown: %w", err)
	}
	_, err = io.WriteString(w, out)
	return err
}
