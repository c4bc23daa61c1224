package host

import (
	"encoding/binary"
	"fmt"
	"sync"

	"cmdhelper/internal/abi"
	"cmdhelper/internal/buildid"
	"cmdhelper/internal/hosterr"
	"cmdhelper/internal/memory"
	"cmdhelper/internal/native"
)

// CInput limits.
const (
	MaxClientCommands = 144
	MaxCommandLength  = 32
	MaxChatInput      = 128
	MaxRecallHistory  = 10
)

// CInput field offsets. The struct is packed.
const (
	inputEditBoxOff       = 0x08
	inputCommandProcOff   = 0x0C
	inputCommandNameOff   = 0x24C
	inputCommandCountOff  = 0x14DC
	inputEnabledOff       = 0x14E0
	inputTextOff          = 0x14E4
	inputRecallBufferOff  = 0x1565
	inputCurrentBufferOff = 0x1A6F
	inputCurrentRecallOff = 0x1AF0
	inputTotalRecallOff   = 0x1AF4
	inputDefaultProcOff   = 0x1AF8

	// InputSize is sizeof(CInput).
	InputSize = inputDefaultProcOff + memory.PtrSize

	commandNameStride = MaxCommandLength + 1
	chatLineStride    = MaxChatInput + 1
)

// CDXUTEditBox geometry offsets.
const (
	editBoxPositionOff = 0x08
	editBoxWidthOff    = 0x10
	editBoxHeightOff   = 0x14
)

// CommandSlot is one entry of the samp.dll client command table.
type CommandSlot struct {
	Proc uintptr
	Name string
}

// ReadCommandTable decodes the command table of the CInput at input. The count
// is clamped to [0, MaxClientCommands]; names that cannot be read become abi.Unknown.
func ReadCommandTable(r memory.Reader, input uintptr) ([]CommandSlot, error) {
	count, err := memory.ReadI32(r, input+inputCommandCountOff)
	if err != nil {
		return nil, fmt.Errorf("command count: %w", err)
	}
	n := min(max(int(count), 0), MaxClientCommands)
	if n == 0 {
		return nil, nil
	}

	procs, err := memory.ReadBytes(r, input+inputCommandProcOff, n*memory.PtrSize)
	if err != nil {
		return nil, fmt.Errorf("command procs: %w", err)
	}

	slots := make([]CommandSlot, n)
	for i := range slots {
		slots[i].Proc = uintptr(binary.LittleEndian.Uint32(procs[i*memory.PtrSize:]))
		name, err := memory.ReadBytes(r, input+inputCommandNameOff+uintptr(i*commandNameStride), commandNameStride)
		if err != nil || indexNUL(name) < 0 {
			slots[i].Name = abi.Unknown
			continue
		}
		slots[i].Name = memory.Text(name)
	}
	return slots, nil
}

func indexNUL(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return -1
}

// EditBox is the chat box geometry in screen pixels.
type EditBox struct {
	X, Y          int32
	Width, Height int32
}

// ChatState is what the overlay needs to decide whether and where to draw.
type ChatState struct {
	MenuActive    bool
	Enabled       bool
	Text          string
	Recalls       []string
	CurrentRecall int32
	EditBox       EditBox
}

// Input is the samp.dll CInput object bound to one build.
type Input struct {
	mem     memory.Memory
	rt      native.Runtime
	addr    uintptr
	getText uintptr
	setText uintptr

	// scratch holds the C string handed to SetText; reused by every call.
	mu      sync.Mutex
	scratch uintptr
}

// BindInput dereferences the CInput global of the resolved samp.dll build.
// samp.dll only fills the global during its own initialization, so a nil
// pointer is reported as an unexpected memory state.
func BindInput(mem memory.Memory, rt native.Runtime, sampBase uintptr, off buildid.SampOffsets) (*Input, error) {
	addr, err := memory.ReadPtr(mem, sampBase+off.Input)
	if err != nil {
		return nil, hosterr.MemoryState(sampBase+off.Input, "unreadable CInput global: %v", err)
	}
	if addr == 0 {
		return nil, hosterr.MemoryState(sampBase+off.Input, "CInput not created yet")
	}
	scratch, err := rt.Alloc(chatLineStride)
	if err != nil {
		return nil, err
	}
	return &Input{
		mem:     mem,
		rt:      rt,
		addr:    addr,
		getText: sampBase + off.EditBoxGetText,
		setText: sampBase + off.EditBoxSetText,
		scratch: scratch,
	}, nil
}

// Addr returns the CInput address.
func (in *Input) Addr() uintptr { return in.addr }

// Commands reads the client command table.
func (in *Input) Commands() ([]CommandSlot, error) {
	return ReadCommandTable(in.mem, in.addr)
}

func (in *Input) editBox() (uintptr, error) {
	eb, err := memory.ReadPtr(in.mem, in.addr+inputEditBoxOff)
	if err != nil {
		return 0, err
	}
	if eb == 0 {
		return 0, hosterr.MemoryState(in.addr+inputEditBoxOff, "no edit box")
	}
	return eb, nil
}

// Text returns the chat box contents through CDXUTEditBox::GetText.
func (in *Input) Text() (string, error) {
	eb, err := in.editBox()
	if err != nil {
		return "", err
	}
	p, err := in.rt.ThisCall(in.getText, eb)
	if err != nil {
		return "", err
	}
	if p == 0 {
		return "", nil
	}
	b, err := memory.ReadCString(in.mem, p, chatLineStride)
	if err != nil {
		return "", err
	}
	return memory.Text(b), nil
}

// SetText replaces the chat box contents through CDXUTEditBox::SetText.
// The text is copied into the scratch buffer first; the edit box keeps its own
// copy. Text longer than MaxChatInput bytes is refused.
func (in *Input) SetText(text string) error {
	if len(text) > MaxChatInput {
		return fmt.Errorf("chat text is %d bytes, limit %d", len(text), MaxChatInput)
	}
	eb, err := in.editBox()
	if err != nil {
		return err
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if err := in.mem.Write(in.scratch, append([]byte(text), 0)); err != nil {
		return hosterr.API("write scratch", in.scratch, err)
	}
	_, err = in.rt.ThisCall(in.setText, eb, in.scratch, 0)
	return err
}

// SelectRecall makes history entry i current and copies it into the chat box.
func (in *Input) SelectRecall(i int) error {
	total, err := memory.ReadI32(in.mem, in.addr+inputTotalRecallOff)
	if err != nil {
		return err
	}
	if i < 0 || i >= min(int(total), MaxRecallHistory) {
		return fmt.Errorf("recall %d out of range [0, %d)", i, total)
	}
	line, err := in.recall(i)
	if err != nil {
		return err
	}
	var cur [4]byte
	binary.LittleEndian.PutUint32(cur[:], uint32(i))
	if err := in.mem.Write(in.addr+inputCurrentRecallOff, cur[:]); err != nil {
		return hosterr.API("write current recall", in.addr+inputCurrentRecallOff, err)
	}
	return in.SetText(line)
}

func (in *Input) recall(i int) (string, error) {
	b, err := memory.ReadBytes(in.mem, in.addr+inputRecallBufferOff+uintptr(i*chatLineStride), chatLineStride)
	if err != nil {
		return "", err
	}
	return memory.Text(b), nil
}

// State gathers the chat state. A disabled chat skips the edit box entirely.
func (in *Input) State() (ChatState, error) {
	var st ChatState
	var err error
	if st.MenuActive, err = MenuActive(in.mem); err != nil {
		return st, err
	}

	enabled, err := memory.ReadU32(in.mem, in.addr+inputEnabledOff)
	if err != nil {
		return st, err
	}
	st.Enabled = enabled != 0
	if !st.Enabled {
		return st, nil
	}

	if st.CurrentRecall, err = memory.ReadI32(in.mem, in.addr+inputCurrentRecallOff); err != nil {
		return st, err
	}
	total, err := memory.ReadI32(in.mem, in.addr+inputTotalRecallOff)
	if err != nil {
		return st, err
	}
	for i := range min(max(int(total), 0), MaxRecallHistory) {
		line, err := in.recall(i)
		if err != nil {
			return st, err
		}
		st.Recalls = append(st.Recalls, line)
	}

	if st.Text, err = in.Text(); err != nil {
		return st, err
	}

	eb, err := in.editBox()
	if err != nil {
		return st, err
	}
	geom, err := memory.ReadBytes(in.mem, eb+editBoxPositionOff, editBoxHeightOff+4-editBoxPositionOff)
	if err != nil {
		return st, err
	}
	field := func(off int) int32 {
		off -= editBoxPositionOff
		return int32(binary.LittleEndian.Uint32(geom[off:]))
	}
	st.EditBox = EditBox{
		X:      field(editBoxPositionOff),
		Y:      field(editBoxPositionOff + 4),
		Width:  field(editBoxWidthOff),
		Height: field(editBoxHeightOff),
	}
	return st, nil
}
