//go:build linux && (amd64 || arm64)

package propmem

import (
	"fmt"
	"math"
	"os"
	"syscall"
)

func init() {
	// Set platform-specific function implementations
	unmapMemory = munmapImpl
}

// CreateArea creates a new property area file of the given capacity and
// maps it read-write. The file must not already exist; the writer role is
// expected to create the area exactly once per boot.
func CreateArea(path string, capacity uint64) (*Writable, error) {
	if capacity < MinAreaSize {
		return nil, fmt.Errorf("area capacity %d is below minimum %d", capacity, MinAreaSize)
	}
	// Internal references are 32-bit byte offsets; a larger arena could not
	// be addressed.
	if capacity > math.MaxUint32 {
		return nil, fmt.Errorf("area capacity %d exceeds maximum %d", capacity, uint64(math.MaxUint32))
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create area file %s: %w", path, err)
	}

	// Ensure cleanup on error
	cleanup := func() {
		file.Close()
		os.Remove(path)
	}

	if err := file.Truncate(int64(capacity)); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to resize area file: %w", err)
	}

	mem, err := mmapFile(file, int(capacity), syscall.PROT_READ|syscall.PROT_WRITE)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to mmap area: %w", err)
	}

	// A freshly truncated file is zero-filled, so the root node's links are
	// already nil; only the header needs explicit initialization.
	initArea(mem)

	w := &Writable{Area{file: file, mem: mem, path: path}}
	return w, nil
}

// OpenWritableArea maps an existing property area read-write. Used by the
// writer role to re-attach after a restart of the owning process.
func OpenWritableArea(path string) (*Writable, error) {
	file, mem, err := openAndMap(path, os.O_RDWR, syscall.PROT_READ|syscall.PROT_WRITE)
	if err != nil {
		return nil, err
	}
	return &Writable{Area{file: file, mem: mem, path: path}}, nil
}

// OpenArea maps an existing property area read-only. This is the entry
// point for every reader process; the returned handle has no mutation
// capability.
func OpenArea(path string) (*Area, error) {
	file, mem, err := openAndMap(path, os.O_RDONLY, syscall.PROT_READ)
	if err != nil {
		return nil, err
	}
	return &Area{file: file, mem: mem, path: path}, nil
}

// openAndMap opens, maps, and validates an existing area file.
func openAndMap(path string, fileFlags int, prot int) (*os.File, []byte, error) {
	file, err := os.OpenFile(path, fileFlags, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open area file %s: %w", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("failed to stat area file: %w", err)
	}

	size := info.Size()
	if size < AreaHeaderSize {
		file.Close()
		return nil, nil, fmt.Errorf("%w: area file too small (%d bytes)", ErrIncompatibleVersion, size)
	}

	mem, err := mmapFile(file, int(size), prot)
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("failed to mmap area: %w", err)
	}

	if err := validateHeader(mem); err != nil {
		munmapImpl(mem)
		file.Close()
		return nil, nil, err
	}

	return file, mem, nil
}

// mmapFile memory maps a file with the given protection.
func mmapFile(file *os.File, size int, prot int) ([]byte, error) {
	fd := int(file.Fd())

	data, err := syscall.Mmap(fd, 0, size, prot, syscall.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap failed: %w", err)
	}

	return data, nil
}

// munmapImpl unmaps a memory-mapped region
func munmapImpl(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	err := syscall.Munmap(data)
	if err != nil {
		return fmt.Errorf("munmap failed: %w", err)
	}

	return nil
}
