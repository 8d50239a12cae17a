package propmem

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"
)

// Memory layout constants
const (
	// Magic bytes identifying a property area file
	AreaMagic = "SYSPROP\x00"

	// Current area format version
	AreaVersion = uint32(1)

	// Area header size (aligned to 128 bytes)
	AreaHeaderSize = 128

	// Minimum area capacity
	MinAreaSize = 4096

	// Default area capacity (128KB, matching the historical platform size)
	DefaultAreaSize = 128 * 1024

	// Trie node header size; the segment name follows the header inline
	nodeHeaderSize = 16

	// InlineValueMax is the longest value stored inline in a record.
	// Longer values go through an out-of-line block chain.
	InlineValueMax = 92

	// MaxValueLen bounds the total value length, inline or chained.
	MaxValueLen = 4096

	// Out-of-line block geometry: 8-byte header + data, 128 bytes total
	longBlockSize     = 128
	longBlockDataSize = longBlockSize - 8

	// Offset of the trie root node (first allocation after the header)
	rootNodeOffset = AreaHeaderSize

	// serialDirty marks a record whose length/content are mid-update.
	// Stable serials are even; each completed write advances by 2.
	serialDirty = uint32(1)
)

var (
	// ErrOutOfSpace indicates the arena has no room for an allocation.
	ErrOutOfSpace = errors.New("property area out of space")

	// ErrIncompatibleVersion indicates the mapped file is not a property
	// area or carries a format version this code does not understand.
	ErrIncompatibleVersion = errors.New("incompatible property area format")

	// ErrInvalidName indicates a malformed or oversized property name.
	ErrInvalidName = errors.New("invalid property name")

	// ErrValueTooLong indicates a value exceeding MaxValueLen.
	ErrValueTooLong = errors.New("property value too long")

	// ErrTimedOut indicates a wait reached its deadline.
	ErrTimedOut = errors.New("wait timed out")
)

// areaHeader is the on-disk/in-memory header at offset 0 of the mapping.
// All mutable fields are accessed atomically.
type areaHeader struct {
	magic     [8]byte  // 0x00: "SYSPROP\0"
	version   uint32   // 0x08: format version
	flags     uint32   // 0x0C: reserved flags
	capacity  uint64   // 0x10: total mapped size in bytes
	allocated uint64   // 0x18: bump-allocation cursor (next free offset)
	serial    uint32   // 0x20: area-wide generation counter (futex word)
	pad       uint32   // 0x24: padding
	reserved  [88]byte // 0x28-0x7F: reserved/padding to 128B
}

// Version returns the area format version.
func (h *areaHeader) Version() uint32 {
	return atomic.LoadUint32(&h.version)
}

// Capacity returns the total area size in bytes.
func (h *areaHeader) Capacity() uint64 {
	return atomic.LoadUint64(&h.capacity)
}

// Allocated returns the bump-allocation cursor.
func (h *areaHeader) Allocated() uint64 {
	return atomic.LoadUint64(&h.allocated)
}

// SetAllocated advances the bump-allocation cursor. Writer-only.
func (h *areaHeader) SetAllocated(off uint64) {
	atomic.StoreUint64(&h.allocated, off)
}

// Serial returns the area-wide generation counter.
func (h *areaHeader) Serial() uint32 {
	return atomic.LoadUint32(&h.serial)
}

// BumpSerial advances the area-wide generation counter. Writer-only.
func (h *areaHeader) BumpSerial() uint32 {
	return atomic.AddUint32(&h.serial, 1)
}

// trieNode is one path segment of a dotted property name. The segment name
// (nameLen bytes) immediately follows the 16-byte header in the arena.
// Link fields hold arena offsets and are published with atomic stores so a
// concurrent reader walking the trie sees either the old link or a fully
// initialized node, never a partially written one. Links are never cleared
// or rewritten once set; the trie only grows.
type trieNode struct {
	nameLen     uint32 // immutable after initialization
	firstChild  uint32 // offset of first child node, 0 if none
	nextSibling uint32 // offset of next sibling node, 0 if none
	prop        uint32 // offset of the value record, 0 if never set
}

// propRecord is the versioned value slot for one property.
//
// serial is a seqlock word: bit 0 set means an update is in progress and
// length/content must not be trusted; stable serials are even and strictly
// increase with each completed write. It doubles as the futex word that
// waiters block on.
//
// Values up to InlineValueMax bytes live in the inline array and are
// rewritten in place under the seqlock. Longer values are stored as a chain
// of immutable longBlocks; the chain is built in fresh arena space and its
// head offset is swapped in under the same seqlock, so (valLen, longOff)
// always describe a single completed write.
type propRecord struct {
	serial  uint32
	valLen  uint32
	longOff uint32 // head of the out-of-line chain, 0 for inline values
	pad     uint32
	value   [InlineValueMax]byte
}

// recordSize is the allocation size of a propRecord: 16-byte header plus
// the inline value array.
const recordSize = 16 + InlineValueMax

// longBlock is one link of an out-of-line value chain. Blocks are fully
// written before the chain head is published and never mutated afterwards.
type longBlock struct {
	next uint32 // offset of the next block, 0 at the tail
	used uint32 // bytes of data valid in this block
	data [longBlockDataSize]byte
}

// align8 rounds a size up to an 8-byte boundary.
func align8(n uint32) uint32 {
	return (n + 7) &^ 7
}

// validateHeader checks that a mapping starts with a compatible area header.
func validateHeader(mem []byte) error {
	if len(mem) < AreaHeaderSize {
		return fmt.Errorf("%w: mapping smaller than header (%d bytes)", ErrIncompatibleVersion, len(mem))
	}
	h := (*areaHeader)(unsafe.Pointer(&mem[0]))
	if string(h.magic[:]) != AreaMagic {
		return fmt.Errorf("%w: bad magic", ErrIncompatibleVersion)
	}
	if v := h.Version(); v != AreaVersion {
		return fmt.Errorf("%w: version %d, expected %d", ErrIncompatibleVersion, v, AreaVersion)
	}
	if c := h.Capacity(); c != uint64(len(mem)) {
		return fmt.Errorf("%w: header capacity %d does not match mapping size %d", ErrIncompatibleVersion, c, len(mem))
	}
	if a := h.Allocated(); a < rootNodeOffset+nodeHeaderSize || a > h.Capacity() {
		return fmt.Errorf("%w: allocation cursor %d out of range", ErrIncompatibleVersion, a)
	}
	return nil
}
