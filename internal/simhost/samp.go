package simhost

import (
	"encoding/binary"
	"fmt"

	"cmdhelper/internal/buildid"
	"cmdhelper/internal/host"
	"cmdhelper/internal/memory"
)

// CInput layout, mirrored for fixtures.
const (
	inputEditBox       = 0x08
	inputProcs         = 0x0C
	inputNames         = 0x24C
	inputCount         = 0x14DC
	inputEnabled       = 0x14E0
	inputRecalls       = 0x1565
	inputCurrentRecall = 0x1AF0
	inputTotalRecall   = 0x1AF4

	chatLine = host.MaxChatInput + 1
	nameLen  = host.MaxCommandLength + 1
)

// Command is one client command: its name and the module its handler lives in.
type Command struct {
	Name   string `yaml:"name"`
	Module string `yaml:"module"`
}

// SampBuild finds a samp.dll build by id.
func SampBuild(id string) (buildid.Entry[buildid.SampOffsets], error) {
	for _, e := range buildid.SampBuilds.Entries() {
		if e.Build.ID == id {
			return e, nil
		}
	}
	return buildid.Entry[buildid.SampOffsets]{}, fmt.Errorf("unknown samp.dll build %q", id)
}

// WithSamp maps samp.dll with build's layout and an empty command table.
// A non-zero entryPoint overrides the fingerprint, which is how an unsupported
// client is modelled.
func (h *Host) WithSamp(build buildid.Entry[buildid.SampOffsets], entryPoint uint32) *Host {
	if entryPoint == 0 {
		entryPoint = build.Build.EntryPoint
	}
	h.sampBuild = build
	h.mapImage(SampBase, SampSize, memory.PageExecuteReadWrite, entryPoint)
	h.addModule("samp.dll", SampBase, SampSize)

	h.input = h.alloc(host.InputSize)
	h.editBox = h.alloc(0x40)
	textBuf := h.alloc(chatLine)
	h.Mem.PokePtr(h.input+inputEditBox, h.editBox)
	h.Mem.PokePtr(SampBase+build.Offsets.Input, h.input)
	h.SetChat(true, -1)
	h.SetEditBox(host.EditBox{X: 40, Y: 300, Width: 500, Height: 24})

	off := build.Offsets
	h.RT.DefineMethodAt(SampBase+off.EditBoxGetText, 0, func(this uintptr, _ []uintptr) uintptr {
		h.mu.Lock()
		text := h.editText
		h.mu.Unlock()
		buf := make([]byte, chatLine)
		copy(buf[:chatLine-1], text)
		h.Mem.Poke(textBuf, buf)
		return textBuf
	})
	h.RT.DefineMethodAt(SampBase+off.EditBoxSetText, 2, func(this uintptr, args []uintptr) uintptr {
		b, err := memory.ReadCString(h.Mem, args[0], chatLine)
		if err != nil {
			return 0
		}
		h.mu.Lock()
		h.editText = string(b)
		h.mu.Unlock()
		return 0
	})
	return h
}

// Input returns the CInput address, or 0 before WithSamp.
func (h *Host) Input() uintptr { return h.input }

// SetCommands rewrites the client command table.
func (h *Host) SetCommands(cmds []Command) error {
	if len(cmds) > host.MaxClientCommands {
		return fmt.Errorf("%d commands exceed the table size", len(cmds))
	}
	for i, c := range cmds {
		mod, ok := h.Module(c.Module)
		if !ok {
			return fmt.Errorf("command %q: no module %q", c.Name, c.Module)
		}
		if len(c.Name) > host.MaxCommandLength {
			return fmt.Errorf("command %q is longer than %d bytes", c.Name, host.MaxCommandLength)
		}
		h.Mem.PokePtr(h.input+inputProcs+uintptr(i)*memory.PtrSize, mod.Base+uintptr(i*0x10)%uintptr(max(mod.Size, 1)))
		name := make([]byte, nameLen)
		copy(name, c.Name)
		h.Mem.Poke(h.input+inputNames+uintptr(i*nameLen), name)
	}
	h.Mem.PokeU32(h.input+inputCount, uint32(len(cmds)))
	return nil
}

// SetCommandCount overwrites the live count only, e.g. with a corrupt value.
func (h *Host) SetCommandCount(n int32) {
	h.Mem.PokeU32(h.input+inputCount, uint32(n))
}

// SetChat opens or closes the chat input and selects a recall entry (-1 for none).
func (h *Host) SetChat(enabled bool, currentRecall int32) {
	var v uint32
	if enabled {
		v = 1
	}
	h.Mem.PokeU32(h.input+inputEnabled, v)
	h.Mem.PokeU32(h.input+inputCurrentRecall, uint32(currentRecall))
}

// SetRecalls replaces the chat history.
func (h *Host) SetRecalls(lines []string) {
	n := min(len(lines), host.MaxRecallHistory)
	for i := range n {
		buf := make([]byte, chatLine)
		copy(buf[:chatLine-1], lines[i])
		h.Mem.Poke(h.input+inputRecalls+uintptr(i*chatLine), buf)
	}
	h.Mem.PokeU32(h.input+inputTotalRecall, uint32(n))
}

// SetEditBox places the chat box.
func (h *Host) SetEditBox(eb host.EditBox) {
	var b [16]byte
	binary.LittleEndian.PutUint32(b[0:], uint32(eb.X))
	binary.LittleEndian.PutUint32(b[4:], uint32(eb.Y))
	binary.LittleEndian.PutUint32(b[8:], uint32(eb.Width))
	binary.LittleEndian.PutUint32(b[12:], uint32(eb.Height))
	h.Mem.Poke(h.editBox+0x08, b[:])
}

// SetText types into the chat box.
func (h *Host) SetText(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.editText = text
}

// Text returns what the chat box holds.
func (h *Host) Text() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.editText
}
