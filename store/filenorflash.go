package store

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/iansmith/swapboot/device"
)

// FileNorFlash is a host-file-backed device.NorFlash, giving
// cmd/swapbootsim a persistent non-volatile region without a real flash
// chip underneath it. The backing file is memory-mapped with
// golang.org/x/sys/unix so Write and Erase are ordinary byte-slice
// mutations followed by an explicit Fsync, the same erase/program model a
// real NOR part exposes, without reimplementing that over plain
// *os.File reads and writes.
type FileNorFlash struct {
	file     *os.File
	data     []byte
	capacity uint32
}

const (
	fileNorReadSize  = 1
	fileNorWriteSize = 1
	fileNorEraseSize = 4096
)

// OpenFileNorFlash opens (creating if necessary) a file at path sized to
// capacity bytes, which must be a multiple of the simulated erase size.
// A freshly created file starts fully erased (all bytes == erasedByte);
// an existing file of the right size is reused as-is, so a simulator
// session can resume across process restarts.
func OpenFileNorFlash(path string, capacity uint32) (*FileNorFlash, error) {
	if capacity == 0 || capacity%fileNorEraseSize != 0 {
		return nil, fmt.Errorf("store: capacity %d must be a nonzero multiple of erase size %d", capacity, fileNorEraseSize)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("store: stat %s: %w", path, err)
	}
	fresh := info.Size() == 0
	if info.Size() != int64(capacity) {
		if err := f.Truncate(int64(capacity)); err != nil {
			f.Close()
			return nil, fmt.Errorf("store: truncate %s: %w", path, err)
		}
	}
	if fresh {
		erased := make([]byte, capacity)
		for i := range erased {
			erased[i] = erasedByte
		}
		if _, err := f.WriteAt(erased, 0); err != nil {
			f.Close()
			return nil, fmt.Errorf("store: format %s: %w", path, err)
		}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(capacity), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("store: mmap %s: %w", path, err)
	}

	return &FileNorFlash{file: f, data: data, capacity: capacity}, nil
}

// Close unmaps the region and closes the backing file.
func (f *FileNorFlash) Close() error {
	if err := unix.Munmap(f.data); err != nil {
		return fmt.Errorf("store: munmap: %w", err)
	}
	return f.file.Close()
}

func (f *FileNorFlash) ReadSize() uint32  { return fileNorReadSize }
func (f *FileNorFlash) WriteSize() uint32 { return fileNorWriteSize }
func (f *FileNorFlash) EraseSize() uint32 { return fileNorEraseSize }
func (f *FileNorFlash) Capacity() uint32  { return f.capacity }

// Read implements device.NorFlash.
func (f *FileNorFlash) Read(offset uint32, buf []byte) error {
	if err := f.checkBounds(offset, uint32(len(buf))); err != nil {
		return err
	}
	copy(buf, f.data[offset:offset+uint32(len(buf))])
	return nil
}

// Write implements device.NorFlash. It does not check that the
// destination was previously erased - that contract belongs to the
// caller (package store's own record/sector logic always upholds it).
func (f *FileNorFlash) Write(offset uint32, data []byte) error {
	if err := f.checkBounds(offset, uint32(len(data))); err != nil {
		return err
	}
	copy(f.data[offset:offset+uint32(len(data))], data)
	return unix.Fsync(int(f.file.Fd()))
}

// Erase implements device.NorFlash by resetting [from, to) to erasedByte.
func (f *FileNorFlash) Erase(from, to uint32) error {
	if to <= from || to > f.capacity {
		return fmt.Errorf("store: erase range [%d,%d) out of bounds for capacity %d", from, to, f.capacity)
	}
	if from%fileNorEraseSize != 0 || to%fileNorEraseSize != 0 {
		return fmt.Errorf("store: erase range [%d,%d) not aligned to erase size %d", from, to, fileNorEraseSize)
	}
	for i := from; i < to; i++ {
		f.data[i] = erasedByte
	}
	return unix.Fsync(int(f.file.Fd()))
}

func (f *FileNorFlash) checkBounds(offset, length uint32) error {
	if uint64(offset)+uint64(length) > uint64(f.capacity) {
		return fmt.Errorf("store: access [%d,%d) exceeds capacity %d", offset, uint64(offset)+uint64(length), f.capacity)
	}
	return nil
}

var _ device.NorFlash = (*FileNorFlash)(nil)
