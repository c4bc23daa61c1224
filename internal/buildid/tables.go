package buildid

// SampOffsets are base-relative addresses inside samp.dll.
type SampOffsets struct {
	// Input holds the CInput* global; its command table is the baseline command source.
	Input uintptr
	// EditBoxGetText is CDXUTEditBox::GetText.
	EditBoxGetText uintptr
	// EditBoxSetText is CDXUTEditBox::SetText.
	EditBoxSetText uintptr
}

// LoaderOffsets are base-relative addresses inside MoonLoader.asi.
type LoaderOffsets struct {
	// Register and Unregister locate the 4-byte absolute operands that hold
	// the addresses of sampRegisterChatCommand / sampUnregisterChatCommand.
	Register   uintptr
	Unregister uintptr
	// ScriptName is the offset of the script path (wchar_t*) inside the
	// userdata block passed as the first argument.
	ScriptName uintptr
}

// SampBuilds lists the supported samp.dll builds.
var SampBuilds = NewTable(SAMP,
	Entry[SampOffsets]{Build{ID: "0.3.7-R1", EntryPoint: 0x31DF13}, SampOffsets{Input: 0x21A0E8, EditBoxGetText: 0x81030, EditBoxSetText: 0x80F60}},
	Entry[SampOffsets]{Build{ID: "0.3.7-R2", EntryPoint: 0x3195DD}, SampOffsets{Input: 0x21A0F0, EditBoxGetText: 0x810D0, EditBoxSetText: 0x81000}},
	Entry[SampOffsets]{Build{ID: "0.3.7-R3", EntryPoint: 0xCC490}, SampOffsets{Input: 0x26E8CC, EditBoxGetText: 0x84F40, EditBoxSetText: 0x84E70}},
	Entry[SampOffsets]{Build{ID: "0.3.7-R3-1", EntryPoint: 0xCC4D0}, SampOffsets{Input: 0x26E8CC, EditBoxGetText: 0x84F40, EditBoxSetText: 0x84E70}},
	Entry[SampOffsets]{Build{ID: "0.3.7-R4", EntryPoint: 0xCBCD0}, SampOffsets{Input: 0x26E9FC, EditBoxGetText: 0x85680, EditBoxSetText: 0x855B0}},
	Entry[SampOffsets]{Build{ID: "0.3.7-R4-2", EntryPoint: 0xCBCB0}, SampOffsets{Input: 0x26E9FC, EditBoxGetText: 0x856B0, EditBoxSetText: 0x855E0}},
	Entry[SampOffsets]{Build{ID: "0.3.7-R5", EntryPoint: 0xCBC90}, SampOffsets{Input: 0x26EB84, EditBoxGetText: 0x85650, EditBoxSetText: 0x85580}},
	Entry[SampOffsets]{Build{ID: "0.3.DL-R1", EntryPoint: 0xFDB60}, SampOffsets{Input: 0x2ACA14, EditBoxGetText: 0x850D0, EditBoxSetText: 0x85000}},
)

// MoonLoaderBuilds lists the supported MoonLoader builds.
var MoonLoaderBuilds = NewTable(MoonLoader,
	Entry[LoaderOffsets]{Build{ID: "0.26.5-beta (archive)", EntryPoint: 0x13D2CF}, LoaderOffsets{Register: 0xF4438 + 0x4, Unregister: 0xF44FE + 0x4, ScriptName: 0x18}},
	Entry[LoaderOffsets]{Build{ID: "0.26.5-beta (installer)", EntryPoint: 0x13C2EE}, LoaderOffsets{Register: 0xF3918 + 0x4, Unregister: 0xF39DE + 0x4, ScriptName: 0x18}},
	// push imm32 in this build, operand right after the opcode
	Entry[LoaderOffsets]{Build{ID: "0.27.0-preview3", EntryPoint: 0x13F632}, LoaderOffsets{Register: 0xDF0A4 + 0x1, Unregister: 0xDF14C + 0x1, ScriptName: 0x34}},
)
