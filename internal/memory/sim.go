package memory

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
	"unicode/utf16"
)

// Region is one mapping inside a Sim.
type Region struct {
	Base uintptr
	Data []byte
	Prot uint32
}

func (r *Region) end() uintptr { return r.Base + uintptr(len(r.Data)) }

// ProtectCall records one Protect invocation against a Sim.
type ProtectCall struct {
	Addr uintptr
	Size uintptr
	Prot uint32
	Old  uint32
}

// Sim is an in-process stand-in for host memory. Regions behave like pages:
// writes fail unless the region is writable, and Protect changes the whole region.
type Sim struct {
	mu       sync.Mutex
	regions  []*Region
	protects []ProtectCall
}

// NewSim returns an empty address space.
func NewSim() *Sim {
	return &Sim{}
}

// Map creates a zero-filled region. It panics on overlap, which is a fixture bug.
func (s *Sim) Map(base uintptr, size int, prot uint32) *Region {
	return s.MapBytes(base, make([]byte, size), prot)
}

// MapBytes creates a region backed by data.
func (s *Sim) MapBytes(base uintptr, data []byte, prot uint32) *Region {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := &Region{Base: base, Data: data, Prot: prot}
	for _, o := range s.regions {
		if r.Base < o.end() && o.Base < r.end() {
			panic(fmt.Sprintf("sim: region 0x%X+0x%X overlaps 0x%X+0x%X", base, len(data), o.Base, len(o.Data)))
		}
	}
	s.regions = append(s.regions, r)
	sort.Slice(s.regions, func(i, j int) bool { return s.regions[i].Base < s.regions[j].Base })
	return r
}

func (s *Sim) locate(addr uintptr, n int) (*Region, int, error) {
	for _, r := range s.regions {
		if addr >= r.Base && addr < r.end() {
			off := int(addr - r.Base)
			if off+n > len(r.Data) {
				return nil, 0, fmt.Errorf("access violation at 0x%X (+%d crosses region end)", addr, n)
			}
			return r, off, nil
		}
	}
	return nil, 0, fmt.Errorf("access violation at 0x%X", addr)
}

// Read implements Reader.
func (s *Sim) Read(addr uintptr, buf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, off, err := s.locate(addr, len(buf))
	if err != nil {
		return err
	}
	if r.Prot == PageNoAccess {
		return fmt.Errorf("access violation at 0x%X (no access)", addr)
	}
	copy(buf, r.Data[off:])
	return nil
}

// Write implements Memory. It honours page protection.
func (s *Sim) Write(addr uintptr, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, off, err := s.locate(addr, len(data))
	if err != nil {
		return err
	}
	if !Writable(r.Prot) {
		return fmt.Errorf("access violation writing 0x%X (protection 0x%X)", addr, r.Prot)
	}
	copy(r.Data[off:], data)
	return nil
}

// Protect implements Memory.
func (s *Sim) Protect(addr, size uintptr, prot uint32) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, _, err := s.locate(addr, int(size))
	if err != nil {
		return 0, err
	}
	old := r.Prot
	r.Prot = prot
	s.protects = append(s.protects, ProtectCall{Addr: addr, Size: size, Prot: prot, Old: old})
	return old, nil
}

// Protection returns the protection of the region containing addr, or 0.
func (s *Sim) Protection(addr uintptr) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, _, err := s.locate(addr, 1)
	if err != nil {
		return 0
	}
	return r.Prot
}

// ProtectCalls returns every Protect invocation so far.
func (s *Sim) ProtectCalls() []ProtectCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ProtectCall(nil), s.protects...)
}

// Poke writes data ignoring protection. Fixture builders use it.
func (s *Sim) Poke(addr uintptr, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, off, err := s.locate(addr, len(data))
	if err != nil {
		panic(fmt.Sprintf("sim: poke: %v", err))
	}
	copy(r.Data[off:], data)
}

// PokeU32 writes a little-endian uint32 ignoring protection.
func (s *Sim) PokeU32(addr uintptr, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	s.Poke(addr, b[:])
}

// PokePtr writes a host pointer ignoring protection.
func (s *Sim) PokePtr(addr, v uintptr) {
	s.PokeU32(addr, uint32(v))
}

// PokeCString writes s followed by a NUL.
func (s *Sim) PokeCString(addr uintptr, str string) {
	s.Poke(addr, append([]byte(str), 0))
}

// PokeUTF16String writes str as NUL-terminated UTF-16LE.
func (s *Sim) PokeUTF16String(addr uintptr, str string) {
	units := append(utf16.Encode([]rune(str)), 0)
	b := make([]byte, 2*len(units))
	for i, u := range units {
		binary.LittleEndian.PutUint16(b[2*i:], u)
	}
	s.Poke(addr, b)
}
