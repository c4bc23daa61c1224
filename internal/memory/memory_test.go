package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadScalars(t *testing.T) {
	sim := NewSim()
	sim.Map(0x1000, 16, PageReadOnly)
	sim.Poke(0x1000, []byte{0xE8, 0x34, 0x12, 0xFF, 0xFF, 0x78, 0x56, 0x34, 0x12})

	b, err := ReadU8(sim, 0x1000)
	require.NoError(t, err)
	assert.Equal(t, uint8(0xE8), b)

	rel, err := ReadI32(sim, 0x1001)
	require.NoError(t, err)
	assert.Equal(t, int32(-0xEDCC), rel)

	p, err := ReadPtr(sim, 0x1005)
	require.NoError(t, err)
	assert.Equal(t, uintptr(0x12345678), p)

	_, err = ReadU32(sim, 0x100E)
	assert.Error(t, err, "read crossing the region end must fail")

	_, err = ReadU8(sim, 0x2000)
	assert.Error(t, err)
}

func TestReadCString(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*Sim)
		addr  uintptr
		limit int
		want  string
		err   bool
	}{
		{
			name:  "terminated inside first chunk",
			setup: func(s *Sim) { s.Map(0x1000, 256, PageReadOnly); s.PokeCString(0x1000, "help") },
			addr:  0x1000,
			want:  "help",
		},
		{
			name: "spans several chunks",
			setup: func(s *Sim) {
				s.Map(0x1000, 512, PageReadOnly)
				s.PokeCString(0x1000, string(make200('a')))
			},
			addr: 0x1000,
			want: string(make200('a')),
		},
		{
			name: "stops at region end without terminator",
			setup: func(s *Sim) {
				s.MapBytes(0x1000, []byte("abc"), PageReadOnly)
			},
			addr: 0x1000,
			want: "abc",
		},
		{
			name:  "limit truncates",
			setup: func(s *Sim) { s.Map(0x1000, 64, PageReadOnly); s.PokeCString(0x1000, "truncated") },
			addr:  0x1000,
			limit: 5,
			want:  "trunc",
		},
		{
			name:  "unmapped start fails",
			setup: func(s *Sim) {},
			addr:  0x1000,
			err:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := NewSim()
			tt.setup(sim)
			got, err := ReadCString(sim, tt.addr, tt.limit)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func make200(c byte) []byte {
	b := make([]byte, 200)
	for i := range b {
		b[i] = c
	}
	return b
}

func TestReadUTF16String(t *testing.T) {
	sim := NewSim()
	sim.Map(0x1000, 256, PageReadWrite)
	sim.PokeUTF16String(0x1000, `C:\Games\GTA\moonloader\autoreboot.lua`)

	s, err := ReadUTF16String(sim, 0x1000, 0)
	require.NoError(t, err)
	assert.Equal(t, `C:\Games\GTA\moonloader\autoreboot.lua`, s)

	_, err = ReadUTF16String(sim, 0, 0)
	assert.Error(t, err)
}

func TestText(t *testing.T) {
	assert.Equal(t, "cmd", Text([]byte("cmd\x00garbage")))
	assert.Equal(t, "a\uFFFDb", Text([]byte{'a', 0xFF, 'b'}))
	assert.Equal(t, "", Text(nil))
}

func TestSimProtection(t *testing.T) {
	sim := NewSim()
	sim.Map(0x1000, 8, PageExecuteRead)

	assert.Error(t, sim.Write(0x1000, []byte{1}), "code pages are not writable")

	old, err := sim.Protect(0x1000, 4, PageExecuteReadWrite)
	require.NoError(t, err)
	assert.Equal(t, PageExecuteRead, old)
	require.NoError(t, sim.Write(0x1000, []byte{1}))

	_, err = sim.Protect(0x1000, 4, old)
	require.NoError(t, err)
	assert.Equal(t, PageExecuteRead, sim.Protection(0x1000))
	assert.Len(t, sim.ProtectCalls(), 2)
}

func TestSimOverlapPanics(t *testing.T) {
	sim := NewSim()
	sim.Map(0x1000, 0x100, PageReadOnly)
	assert.Panics(t, func() { sim.Map(0x10F0, 0x20, PageReadOnly) })
}

func TestOwner(t *testing.T) {
	mods := ModuleList{
		{Name: "gta_sa.exe", Base: 0x400000, Size: 0x1000000},
		{Name: "samp.dll", Base: 0x3000000, Size: 0x300000},
	}
	list, err := mods.Modules()
	require.NoError(t, err)

	name, ok := Owner(list, 0x3000000)
	assert.True(t, ok)
	assert.Equal(t, "samp.dll", name)

	_, ok = Owner(list, 0x3300000)
	assert.False(t, ok, "end of image is exclusive")

	m, ok := Find(list, "SAMP.DLL")
	assert.True(t, ok)
	assert.Equal(t, uintptr(0x3000000), m.Base)
}
