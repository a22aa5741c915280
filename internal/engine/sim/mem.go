package sim

import (
	"fmt"

	"github.com/zboralski/reentry/internal/arch"
	"github.com/zboralski/reentry/internal/engine"
)

type region struct {
	engine.Region
	data []byte
}

type memory struct {
	regions []*region
}

func (m *memory) mapRegion(addr, size uint64, prot engine.Prot) error {
	if size == 0 || !arch.PageAligned(addr) || !arch.PageAligned(size) || addr+size < addr {
		return fmt.Errorf("%w: 0x%x+0x%x", engine.ErrInvalidRange, addr, size)
	}
	for _, r := range m.regions {
		if r.Overlaps(addr, size) {
			return fmt.Errorf("%w: 0x%x+0x%x overlaps 0x%x+0x%x", engine.ErrInvalidRange, addr, size, r.Addr, r.Size)
		}
	}
	m.regions = append(m.regions, &region{
		Region: engine.Region{Addr: addr, Size: size, Prot: prot},
		data:   make([]byte, size),
	})
	return nil
}

// find returns the region holding all of [addr, addr+size).
func (m *memory) find(addr, size uint64) *region {
	for _, r := range m.regions {
		if r.Contains(addr, size) {
			return r
		}
	}
	return nil
}

// need is the protection the access requires; ProtNone skips the check.
func (m *memory) read(addr, size uint64, need engine.Prot) ([]byte, error) {
	r := m.find(addr, size)
	if r == nil {
		return nil, fmt.Errorf("%w: read 0x%x+0x%x", engine.ErrUnmappedAddress, addr, size)
	}
	if r.Prot&need != need {
		return nil, fmt.Errorf("%w: %s at 0x%x", ErrProtection, r.Prot, addr)
	}
	off := addr - r.Addr
	out := make([]byte, size)
	copy(out, r.data[off:off+size])
	return out, nil
}

func (m *memory) write(addr uint64, data []byte, need engine.Prot) error {
	size := uint64(len(data))
	r := m.find(addr, size)
	if r == nil {
		return fmt.Errorf("%w: write 0x%x+0x%x", engine.ErrUnmappedAddress, addr, size)
	}
	if r.Prot&need != need {
		return fmt.Errorf("%w: %s at 0x%x", ErrProtection, r.Prot, addr)
	}
	copy(r.data[addr-r.Addr:], data)
	return nil
}
