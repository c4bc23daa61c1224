package simhost

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is a YAML description of a simulated game process.
//
//	samp:
//	  build: 0.3.7-R1
//	  commands:
//	    - {name: pm, module: samp.dll}
//	modules:
//	  - {name: helper.asi, size: 4096}
//	sampfuncs:
//	  plugins:
//	    - {name: sftools, commands: [tools]}
//	moonloader:
//	  build: 0.26.5-beta (archive)
//	  scripts:
//	    - {path: 'C:\game\moonloader\hud.lua', commands: [hud]}
type Scenario struct {
	Samp       *SampScenario    `yaml:"samp"`
	Modules    []ModuleScenario `yaml:"modules"`
	SampFuncs  *CompanionSpec   `yaml:"sampfuncs"`
	MoonLoader *LoaderScenario  `yaml:"moonloader"`
	Menu       bool             `yaml:"menu"`
}

// SampScenario configures samp.dll.
type SampScenario struct {
	Build string `yaml:"build"`
	// EntryPoint overrides the build's fingerprint to model an unknown client.
	EntryPoint uint32    `yaml:"entry_point"`
	Commands   []Command `yaml:"commands"`
	Chat       struct {
		Open    bool     `yaml:"open"`
		Text    string   `yaml:"text"`
		Recalls []string `yaml:"recalls"`
	} `yaml:"chat"`
}

// ModuleScenario is an extra loaded module.
type ModuleScenario struct {
	Name string `yaml:"name"`
	Size uint32 `yaml:"size"`
}

// LoaderScenario configures MoonLoader and the scripts that register once
// it is intercepted.
type LoaderScenario struct {
	Build      string      `yaml:"build"`
	EntryPoint uint32      `yaml:"entry_point"`
	Scripts    []LuaScript `yaml:"scripts"`
}

// Load reads a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	return Parse(data)
}

// Parse decodes a scenario document.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	return &s, nil
}

// Build assembles the process. Lua scripts are not registered yet: call
// RegisterScripts once MoonLoader is intercepted, as the game would load them
// after the helper.
func (s *Scenario) Build() (*Host, error) {
	h := New()
	h.SetMenuActive(s.Menu)
	for _, m := range s.Modules {
		h.AddModule(m.Name, max(m.Size, 0x1000))
	}

	if s.Samp != nil {
		build, err := SampBuild(s.Samp.Build)
		if err != nil {
			return nil, err
		}
		h.WithSamp(build, s.Samp.EntryPoint)
		if err := h.SetCommands(s.Samp.Commands); err != nil {
			return nil, err
		}
		h.SetChat(s.Samp.Chat.Open, -1)
		h.SetRecalls(s.Samp.Chat.Recalls)
		h.SetText(s.Samp.Chat.Text)
	}

	if s.SampFuncs != nil {
		h.WithCompanion(*s.SampFuncs)
	}

	if s.MoonLoader != nil {
		build, err := MoonLoaderBuild(s.MoonLoader.Build)
		if err != nil {
			return nil, err
		}
		h.WithMoonLoader(build, s.MoonLoader.EntryPoint)
	}
	return h, nil
}

// RegisterScripts replays every Lua registration of the scenario.
func (s *Scenario) RegisterScripts(h *Host) error {
	if s.MoonLoader == nil {
		return nil
	}
	for _, sc := range s.MoonLoader.Scripts {
		for _, c := range sc.Commands {
			if _, err := h.RegisterLua(sc.Path, c); err != nil {
				return fmt.Errorf("register %s from %s: %w", c, sc.Path, err)
			}
		}
	}
	return nil
}
