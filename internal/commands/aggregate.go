package commands

import (
	"fmt"

	"github.com/charmbracelet/log"

	"cmdhelper/internal/abi"
	"cmdhelper/internal/host"
	"cmdhelper/internal/memory"
)

// SlotSource yields the samp.dll client command table.
type SlotSource interface {
	Commands() ([]host.CommandSlot, error)
}

// CompanionSource yields the SAMPFUNCS command list.
type CompanionSource interface {
	ChatCommands() (abi.ForeignArray[abi.CommandInfo], error)
	OwnerName(o abi.Owner) string
}

// Sources are the polled command sources of one aggregation pass.
type Sources struct {
	// Mem reads the companion's command vector.
	Mem memory.Reader
	// Slots is required.
	Slots SlotSource
	// Modules resolves command procedures to module names.
	Modules memory.ModuleLister
	// Companion is nil when SAMPFUNCS is not loaded.
	Companion CompanionSource
}

// Aggregate runs one polling pass over sources. The Lua category is left empty;
// it is owned by the live tracker in Registry.
func Aggregate(src Sources, logger *log.Logger) (*Categories, error) {
	cats := NewCategories()

	samp, err := collectSlots(src, logger)
	if err != nil {
		return nil, err
	}
	cats.set(SAMP, samp)
	// The client table is the baseline source: its header is shown even when empty.
	cats.list[SAMP].Visible = true

	if src.Companion != nil {
		sf, cleo, err := collectCompanion(src, logger)
		if err != nil {
			logger.Warn("SAMPFUNCS commands unavailable", "error", err)
		} else {
			cats.set(SF, sf)
			cats.set(CLEO, cleo)
		}
	}

	return cats, nil
}

func collectSlots(src Sources, logger *log.Logger) (ModuleMap, error) {
	slots, err := src.Slots.Commands()
	if err != nil {
		return nil, fmt.Errorf("client command table: %w", err)
	}

	var mods []memory.Module
	if src.Modules != nil && len(slots) > 0 {
		if mods, err = src.Modules.Modules(); err != nil {
			logger.Warn("Module snapshot failed, owners unresolved", "error", err)
		}
	}

	out := make(ModuleMap)
	for _, slot := range slots {
		owner, ok := memory.Owner(mods, slot.Proc)
		if !ok {
			owner = abi.Unknown
		}
		out.Add(owner, slot.Name)
	}
	logger.Debug("Client commands collected", "count", len(slots), "modules", len(out))
	return out, nil
}

func collectCompanion(src Sources, logger *log.Logger) (sf, cleo ModuleMap, err error) {
	arr, err := src.Companion.ChatCommands()
	if err != nil {
		return nil, nil, err
	}

	sf, cleo = make(ModuleMap), make(ModuleMap)
	for info, err := range arr.Values(src.Mem) {
		if err != nil {
			logger.Debug("Skipping undecodable command", "error", err)
			continue
		}
		switch info.Owner.(type) {
		case abi.PluginOwner:
			sf.Add(src.Companion.OwnerName(info.Owner), info.Name)
		case abi.ScriptOwner:
			cleo.Add(src.Companion.OwnerName(info.Owner), info.Name)
		}
	}
	logger.Debug("SAMPFUNCS commands collected", "entries", arr.Len(), "plugins", len(sf), "scripts", len(cleo))
	return sf, cleo, nil
}
