// Package buildid identifies which build of a host component is loaded.
//
// A PE image's AddressOfEntryPoint differs between builds even when most other
// offsets coincide, so it serves as a cheap fingerprint. Resolution is exact-match
// only: an unknown entry point is a VersionMismatch, never a best guess.
package buildid

import (
	"fmt"

	"cmdhelper/internal/hosterr"
	"cmdhelper/internal/memory"
)

const (
	dosMagic      = 0x5A4D     // "MZ"
	ntSignature   = 0x00004550 // "PE\0\0"
	lfanewOffset  = 0x3C
	entryRVAOff   = 0x28 // Signature(4) + FileHeader(20) + OptionalHeader.AddressOfEntryPoint(16)
	maxNTHeaderAt = 0x1000
)

// Component names a host module that carries its own build table.
type Component string

const (
	SAMP       Component = "samp.dll"
	MoonLoader Component = "MoonLoader.asi"
)

// Build is one known binary.
type Build struct {
	ID         string
	Component  Component
	EntryPoint uint32
}

func (b Build) String() string {
	return fmt.Sprintf("%s %s", b.Component, b.ID)
}

// Entry pairs a build with its offset table.
type Entry[O any] struct {
	Build   Build
	Offsets O
}

// Table is the finite set of builds supported for one component.
type Table[O any] struct {
	component Component
	entries   []Entry[O]
}

// NewTable builds a table; entry points must be unique.
func NewTable[O any](component Component, entries ...Entry[O]) Table[O] {
	seen := make(map[uint32]string, len(entries))
	for i := range entries {
		entries[i].Build.Component = component
		ep := entries[i].Build.EntryPoint
		if prev, dup := seen[ep]; dup {
			panic(fmt.Sprintf("buildid: %s builds %s and %s share entry point 0x%X", component, prev, entries[i].Build.ID, ep))
		}
		seen[ep] = entries[i].Build.ID
	}
	return Table[O]{component: component, entries: entries}
}

// Component returns the module this table describes.
func (t Table[O]) Component() Component { return t.component }

// Entries returns the known builds in declaration order.
func (t Table[O]) Entries() []Entry[O] {
	return append([]Entry[O](nil), t.entries...)
}

// Lookup matches an entry point exactly.
func (t Table[O]) Lookup(entryPoint uint32) (Entry[O], error) {
	for _, e := range t.entries {
		if e.Build.EntryPoint == entryPoint {
			return e, nil
		}
	}
	return Entry[O]{}, &hosterr.VersionMismatchError{Component: string(t.component), EntryPoint: entryPoint}
}

// Resolve fingerprints the image mapped at base.
func (t Table[O]) Resolve(r memory.Reader, base uintptr) (Entry[O], error) {
	ep, err := EntryPoint(r, base)
	if err != nil {
		return Entry[O]{}, fmt.Errorf("%s: %w", t.component, err)
	}
	return t.Lookup(ep)
}

// EntryPoint walks DOS header -> NT headers -> optional header and returns
// AddressOfEntryPoint. Headers that are not a PE image are an unexpected memory state.
func EntryPoint(r memory.Reader, base uintptr) (uint32, error) {
	magic, err := memory.ReadU16(r, base)
	if err != nil {
		return 0, hosterr.MemoryState(base, "unreadable DOS header: %v", err)
	}
	if magic != dosMagic {
		return 0, hosterr.MemoryState(base, "DOS magic 0x%04X", magic)
	}

	lfanew, err := memory.ReadU32(r, base+lfanewOffset)
	if err != nil {
		return 0, hosterr.MemoryState(base+lfanewOffset, "unreadable e_lfanew: %v", err)
	}
	if lfanew == 0 || lfanew > maxNTHeaderAt {
		return 0, hosterr.MemoryState(base+lfanewOffset, "e_lfanew 0x%X out of range", lfanew)
	}

	nt := base + uintptr(lfanew)
	sig, err := memory.ReadU32(r, nt)
	if err != nil {
		return 0, hosterr.MemoryState(nt, "unreadable NT headers: %v", err)
	}
	if sig != ntSignature {
		return 0, hosterr.MemoryState(nt, "NT signature 0x%08X", sig)
	}

	ep, err := memory.ReadU32(r, nt+entryRVAOff)
	if err != nil {
		return 0, hosterr.MemoryState(nt+entryRVAOff, "unreadable entry point: %v", err)
	}
	return ep, nil
}
