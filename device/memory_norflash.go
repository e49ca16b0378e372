package device

import "fmt"

// MemoryNorFlash is an in-memory reference NorFlash, used by the unit
// tests of packages store and orchestrator. Its
// Torn hook lets a test simulate a power cut mid-write: when set, Torn is
// consulted before every Write, and if it returns a shorter length, only
// that many bytes are actually committed before Write returns an error,
// leaving the destination neither the old nor the new value - exactly
// the failure mode the store must survive.
type MemoryNorFlash struct {
	readSize  uint32
	writeSize uint32
	eraseSize uint32
	data      []byte

	// Torn, if non-nil, is called with the intended write length before
	// each Write and returns how many bytes actually land. Returning a
	// value equal to len(data) makes the write succeed normally.
	Torn func(offset uint32, data []byte) int
}

// NewMemoryNorFlash builds a MemoryNorFlash of capacity bytes, erased
// (all 0xFF) throughout.
func NewMemoryNorFlash(capacity, readSize, writeSize, eraseSize uint32) *MemoryNorFlash {
	data := make([]byte, capacity)
	for i := range data {
		data[i] = 0xFF
	}
	return &MemoryNorFlash{readSize: readSize, writeSize: writeSize, eraseSize: eraseSize, data: data}
}

func (m *MemoryNorFlash) ReadSize() uint32  { return m.readSize }
func (m *MemoryNorFlash) WriteSize() uint32 { return m.writeSize }
func (m *MemoryNorFlash) EraseSize() uint32 { return m.eraseSize }
func (m *MemoryNorFlash) Capacity() uint32  { return uint32(len(m.data)) }

// Read implements NorFlash.
func (m *MemoryNorFlash) Read(offset uint32, buf []byte) error {
	if err := m.bounds(offset, uint32(len(buf))); err != nil {
		return err
	}
	copy(buf, m.data[offset:offset+uint32(len(buf))])
	return nil
}

// Write implements NorFlash, consulting Torn if set.
func (m *MemoryNorFlash) Write(offset uint32, data []byte) error {
	if err := m.bounds(offset, uint32(len(data))); err != nil {
		return err
	}
	n := len(data)
	if m.Torn != nil {
		n = m.Torn(offset, data)
		if n < 0 || n > len(data) {
			return fmt.Errorf("device: Torn returned out-of-range length %d for %d-byte write", n, len(data))
		}
	}
	copy(m.data[offset:offset+uint32(n)], data[:n])
	if n < len(data) {
		return fmt.Errorf("device: simulated power loss during write at offset %d (%d of %d bytes landed)", offset, n, len(data))
	}
	return nil
}

// Erase implements NorFlash.
func (m *MemoryNorFlash) Erase(from, to uint32) error {
	if to <= from || to > uint32(len(m.data)) {
		return fmt.Errorf("device: erase range [%d,%d) out of bounds", from, to)
	}
	for i := from; i < to; i++ {
		m.data[i] = 0xFF
	}
	return nil
}

func (m *MemoryNorFlash) bounds(offset, length uint32) error {
	if uint64(offset)+uint64(length) > uint64(len(m.data)) {
		return fmt.Errorf("device: access [%d,%d) exceeds capacity %d", offset, uint64(offset)+uint64(length), len(m.data))
	}
	return nil
}

var _ NorFlash = (*MemoryNorFlash)(nil)
