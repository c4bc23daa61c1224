package abi

import (
	"encoding/binary"
	"fmt"

	"cmdhelper/internal/memory"
)

// OwnerType tags the owner union of a CommandInfo.
type OwnerType int32

const (
	OwnerNone OwnerType = iota
	OwnerScript
	OwnerPlugin
)

func (t OwnerType) String() string {
	switch t {
	case OwnerNone:
		return "none"
	case OwnerScript:
		return "script"
	case OwnerPlugin:
		return "plugin"
	default:
		return fmt.Sprintf("OwnerType(%d)", int32(t))
	}
}

const (
	// CommandInfoSize is sizeof(stCommandInfo).
	CommandInfoSize = 32

	commandOwnerTypeOff = 24
	commandOwnerOff     = 28

	// ThreadNameOffset locates CScriptThread::thread_name after the next/prev links.
	ThreadNameOffset = 8
	// ThreadNameLen is the fixed width of a CLEO thread name.
	ThreadNameLen = 8
	// PluginNameOffset locates SFPluginInfo::name after the module handle.
	PluginNameOffset = 4
)

// Owner is the decoded owner of a companion command: NoOwner, ScriptOwner or PluginOwner.
type Owner interface {
	Type() OwnerType
}

// NoOwner marks a command without a known owner, or with an unrecognized tag.
type NoOwner struct{}

// ScriptOwner points at a CScriptThread.
type ScriptOwner struct{ Thread uintptr }

// PluginOwner points at an SFPluginInfo.
type PluginOwner struct{ Info uintptr }

func (NoOwner) Type() OwnerType     { return OwnerNone }
func (ScriptOwner) Type() OwnerType { return OwnerScript }
func (PluginOwner) Type() OwnerType { return OwnerPlugin }

// CommandInfo is a decoded stCommandInfo:
//
//	+0  std::string name
//	+24 int32 ownerType
//	+28 void *owner
type CommandInfo struct {
	Name  string
	Owner Owner
}

// CommandInfoLayout decodes CommandInfo elements of a ForeignArray.
type CommandInfoLayout struct{}

// Size implements Layout.
func (CommandInfoLayout) Size() uintptr { return CommandInfoSize }

// Decode implements Layout. The name degrades to Unknown; only an unreadable
// element is an error.
func (CommandInfoLayout) Decode(r memory.Reader, addr uintptr) (CommandInfo, error) {
	var raw [CommandInfoSize]byte
	if err := r.Read(addr, raw[:]); err != nil {
		return CommandInfo{}, fmt.Errorf("command info at 0x%X: %w", addr, err)
	}
	return DecodeCommandInfo(raw, r), nil
}

// DecodeCommandInfo interprets raw as a stCommandInfo.
func DecodeCommandInfo(raw [CommandInfoSize]byte, r memory.Reader) CommandInfo {
	var name ForeignString
	copy(name[:], raw[:StringSize])

	ptr := uintptr(binary.LittleEndian.Uint32(raw[commandOwnerOff:]))
	var owner Owner = NoOwner{}
	switch OwnerType(binary.LittleEndian.Uint32(raw[commandOwnerTypeOff:])) {
	case OwnerScript:
		owner = ScriptOwner{Thread: ptr}
	case OwnerPlugin:
		owner = PluginOwner{Info: ptr}
	}
	return CommandInfo{Name: name.Decode(r), Owner: owner}
}

// EncodeCommandInfo builds the object representation, for fixtures.
func EncodeCommandInfo(name ForeignString, typ OwnerType, owner uintptr) [CommandInfoSize]byte {
	var raw [CommandInfoSize]byte
	copy(raw[:], name[:])
	binary.LittleEndian.PutUint32(raw[commandOwnerTypeOff:], uint32(typ))
	binary.LittleEndian.PutUint32(raw[commandOwnerOff:], uint32(owner))
	return raw
}

// ReadThreadName reads CScriptThread::thread_name directly from the object.
func ReadThreadName(r memory.Reader, thread uintptr) (string, error) {
	b, err := memory.ReadBytes(r, thread+ThreadNameOffset, ThreadNameLen)
	if err != nil {
		return "", err
	}
	return memory.Text(b), nil
}

// ReadPluginName reads SFPluginInfo::name directly from the object.
func ReadPluginName(r memory.Reader, info uintptr) string {
	return ReadString(r, info+PluginNameOffset)
}
