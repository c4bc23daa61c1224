// Package commands builds the categorized chat command snapshot shown by the overlay.
//
// Commands come from three places: the samp.dll client command table, the SAMPFUNCS
// command list (plugins and CLEO scripts) and, when MoonLoader is intercepted, Lua
// script registrations. Each source fills its own Category; categories are never
// merged or deduplicated against each other.
package commands

import (
	"fmt"
	"iter"
	"maps"
	"slices"
	"strings"
)

// Prefix is the chat command marker.
const Prefix = "/"

// WithPrefix returns cmd with exactly one leading Prefix; repeated markers
// collapse to one.
func WithPrefix(cmd string) string {
	return Prefix + strings.TrimLeft(cmd, Prefix)
}

// Matches reports whether command is a completion of the typed chat text.
// An empty input matches everything.
func Matches(input, command string) bool {
	return input == "" || strings.HasPrefix(command, input)
}

// CommandMap maps prefixed command text to a description. Descriptions are
// reserved and currently always empty.
type CommandMap map[string]string

// Commands returns the command texts in sorted order.
func (c CommandMap) Commands() []string {
	return slices.Sorted(maps.Keys(c))
}

// ModuleMap maps a module, script or plugin display name to its commands.
type ModuleMap map[string]CommandMap

// Add records cmd for module unless it is already there; an existing
// description is kept. It reports whether anything was inserted.
func (m ModuleMap) Add(module, cmd string) bool {
	cmd = WithPrefix(cmd)
	cm, ok := m[module]
	if !ok {
		cm = make(CommandMap)
		m[module] = cm
	}
	if _, exists := cm[cmd]; exists {
		return false
	}
	cm[cmd] = ""
	return true
}

// Remove deletes cmd from module and drops the module once it has no commands left.
func (m ModuleMap) Remove(module, cmd string) bool {
	cm, ok := m[module]
	if !ok {
		return false
	}
	cmd = WithPrefix(cmd)
	if _, exists := cm[cmd]; !exists {
		return false
	}
	delete(cm, cmd)
	if len(cm) == 0 {
		delete(m, module)
	}
	return true
}

// Names returns the module names in sorted order.
func (m ModuleMap) Names() []string {
	return slices.Sorted(maps.Keys(m))
}

// Len counts commands across all modules.
func (m ModuleMap) Len() int {
	n := 0
	for _, cm := range m {
		n += len(cm)
	}
	return n
}

// Clone deep-copies the map.
func (m ModuleMap) Clone() ModuleMap {
	out := make(ModuleMap, len(m))
	for name, cm := range m {
		out[name] = maps.Clone(cm)
	}
	return out
}

// Key identifies a command source.
type Key int

const (
	// SAMP is the samp.dll client command table.
	SAMP Key = iota
	// SF holds SAMPFUNCS plugin commands.
	SF
	// CLEO holds commands of CLEO scripts running under SAMPFUNCS.
	CLEO
	// Lua holds commands registered by MoonLoader scripts.
	Lua

	numKeys
)

// Keys lists every category in display order.
var Keys = []Key{SAMP, SF, CLEO, Lua}

// Name is the category header.
func (k Key) Name() string {
	switch k {
	case SAMP:
		return "SA-MP"
	case SF:
		return "SF"
	case CLEO:
		return "CLEO"
	case Lua:
		return "Lua"
	default:
		return fmt.Sprintf("Key(%d)", int(k))
	}
}

func (k Key) String() string { return k.Name() }

// Category is one column of the overlay.
type Category struct {
	Key     Key
	Name    string
	Visible bool
	Modules ModuleMap
}

// Categories is a complete snapshot in display order. A published snapshot is
// never modified; readers must not modify it either.
type Categories struct {
	list [numKeys]Category
}

// NewCategories returns empty, invisible categories.
func NewCategories() *Categories {
	c := &Categories{}
	for _, k := range Keys {
		c.list[k] = Category{Key: k, Name: k.Name(), Modules: make(ModuleMap)}
	}
	return c
}

// Get returns one category.
func (c *Categories) Get(k Key) Category {
	return c.list[k]
}

// All yields the categories in display order.
func (c *Categories) All() iter.Seq[Category] {
	return func(yield func(Category) bool) {
		for _, cat := range c.list {
			if !yield(cat) {
				return
			}
		}
	}
}

// Empty reports whether no category holds any module.
func (c *Categories) Empty() bool {
	for _, cat := range c.list {
		if len(cat.Modules) > 0 {
			return false
		}
	}
	return true
}

// set replaces a category's modules; visibility follows non-emptiness.
func (c *Categories) set(k Key, modules ModuleMap) {
	c.list[k].Modules = modules
	c.list[k].Visible = len(modules) > 0
}

func (c *Categories) clone() *Categories {
	out := &Categories{list: c.list}
	for i := range out.list {
		out.list[i].Modules = c.list[i].Modules.Clone()
	}
	return out
}
