package memory

import "strings"

// Module is one loaded image in the host process.
type Module struct {
	Name string
	Base uintptr
	Size uint32
}

// Contains reports whether addr lies inside the module image.
func (m Module) Contains(addr uintptr) bool {
	return addr >= m.Base && addr-m.Base < uintptr(m.Size)
}

// ModuleLister enumerates the modules loaded into the host process.
// Each call takes a fresh snapshot.
type ModuleLister interface {
	Modules() ([]Module, error)
}

// ModuleList is a fixed ModuleLister.
type ModuleList []Module

// Modules returns a copy of the list.
func (l ModuleList) Modules() ([]Module, error) {
	out := make([]Module, len(l))
	copy(out, l)
	return out, nil
}

// Owner returns the name of the module whose image contains addr.
func Owner(mods []Module, addr uintptr) (string, bool) {
	for _, m := range mods {
		if m.Contains(addr) {
			return m.Name, true
		}
	}
	return "", false
}

// Find returns the module with the given name, compared case-insensitively.
func Find(mods []Module, name string) (Module, bool) {
	for _, m := range mods {
		if strings.EqualFold(m.Name, name) {
			return m, true
		}
	}
	return Module{}, false
}
