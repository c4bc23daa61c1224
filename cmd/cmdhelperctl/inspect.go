package main

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/Binject/debug/pe"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"cmdhelper/internal/buildid"
	"cmdhelper/internal/companion"
	"cmdhelper/internal/hosterr"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("33"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	badStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle    = lipgloss.NewStyle().Faint(true)
)

var buildsCmd = &cobra.Command{
	Use:   "builds",
	Short: "List the supported samp.dll and MoonLoader builds",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		writeBuilds(cmd.OutOrStdout())
	},
}

var identifyCmd = &cobra.Command{
	Use:   "identify <file>...",
	Short: "Fingerprint samp.dll or MoonLoader.asi files by entry point",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var failed error
		for _, path := range args {
			b, err := identifyFile(path)
			if err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", path, badStyle.Render(err.Error()))
				failed = errors.Join(failed, err)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", path, okStyle.Render(b.String()))
		}
		return failed
	},
}

var exportsCmd = &cobra.Command{
	Use:   "exports <SAMPFUNCS.asi>",
	Short: "Check that a SAMPFUNCS build exports what the plugin calls",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := exportNames(args[0])
		if err != nil {
			return err
		}
		missing := missingExports(names)
		for _, sym := range companion.Symbols {
			mark := okStyle.Render("ok     ")
			if slices.Contains(missing, sym) {
				mark = badStyle.Render("missing")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", mark, sym)
		}
		if len(missing) > 0 {
			return &hosterr.LibraryError{Library: companion.Library, Symbol: missing[0]}
		}
		return nil
	},
}

func writeBuilds(w io.Writer) {
	fmt.Fprintln(w, headerStyle.Render(string(buildid.SampBuilds.Component())))
	for _, e := range buildid.SampBuilds.Entries() {
		fmt.Fprintf(w, "  %-24s %s\n", e.Build.ID, dimStyle.Render(fmt.Sprintf("entry 0x%06X  input 0x%06X", e.Build.EntryPoint, e.Offsets.Input)))
	}
	fmt.Fprintln(w, headerStyle.Render(string(buildid.MoonLoaderBuilds.Component())))
	for _, e := range buildid.MoonLoaderBuilds.Entries() {
		fmt.Fprintf(w, "  %-24s %s\n", e.Build.ID, dimStyle.Render(fmt.Sprintf("entry 0x%06X  register 0x%06X", e.Build.EntryPoint, e.Offsets.Register)))
	}
}

// identify matches an entry point against every build table.
func identify(entryPoint uint32) (buildid.Build, error) {
	if e, err := buildid.SampBuilds.Lookup(entryPoint); err == nil {
		return e.Build, nil
	}
	if e, err := buildid.MoonLoaderBuilds.Lookup(entryPoint); err == nil {
		return e.Build, nil
	}
	return buildid.Build{}, &hosterr.VersionMismatchError{Component: "samp.dll or MoonLoader.asi", EntryPoint: entryPoint}
}

func identifyFile(path string) (buildid.Build, error) {
	f, err := pe.Open(path)
	if err != nil {
		return buildid.Build{}, fmt.Errorf("failed to open PE image: %w", err)
	}
	defer f.Close()

	oh, ok := f.OptionalHeader.(*pe.OptionalHeader32)
	if !ok {
		return buildid.Build{}, fmt.Errorf("not a 32-bit image")
	}
	return identify(oh.AddressOfEntryPoint)
}

func exportNames(path string) ([]string, error) {
	f, err := pe.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PE image: %w", err)
	}
	defer f.Close()

	exports, err := f.Exports()
	if err != nil {
		return nil, fmt.Errorf("failed to read exports: %w", err)
	}
	names := make([]string, 0, len(exports))
	for _, e := range exports {
		if e.Name != "" {
			names = append(names, e.Name)
		}
	}
	return names, nil
}

// missingExports lists the companion symbols absent from names.
func missingExports(names []string) []string {
	var missing []string
	for _, sym := range companion.Symbols {
		if !slices.Contains(names, sym) {
			missing = append(missing, sym)
		}
	}
	return missing
}
