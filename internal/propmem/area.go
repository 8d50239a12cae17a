package propmem

import (
	"os"
	"unsafe"
)

// Platform-specific functions (implemented in platform-specific files)
var (
	// unmapMemory unmaps a memory-mapped region
	unmapMemory func([]byte) error
)

// Area is a read-only handle to a mapped property area. It carries no
// mutation capability; every method is safe to call concurrently with a
// writer in another process.
type Area struct {
	file *os.File
	mem  []byte
	path string
}

// Writable is the writer-side handle to a property area. It adds the
// mutation primitives on top of Area's read surface. The caller must
// ensure only one goroutine mutates at a time; the area-level protocol
// assumes a single serialized writer.
type Writable struct {
	Area
}

// Path returns the file path the area was mapped from.
func (a *Area) Path() string {
	return a.path
}

// Close unmaps the area and closes the backing file. The handle must not
// be used afterwards.
func (a *Area) Close() error {
	var firstErr error

	if a.mem != nil {
		if err := unmapMemory(a.mem); err != nil && firstErr == nil {
			firstErr = err
		}
		a.mem = nil
	}

	if a.file != nil {
		if err := a.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		a.file = nil
	}

	return firstErr
}

// header returns the area header at offset 0 of the mapping.
func (a *Area) header() *areaHeader {
	return (*areaHeader)(unsafe.Pointer(&a.mem[0]))
}

// ptr translates an arena offset to an address, or nil if [off, off+size)
// does not lie inside the mapping. Offset 0 is the nil reference.
func (a *Area) ptr(off uint32, size uintptr) unsafe.Pointer {
	if off == 0 || uintptr(off)+size > uintptr(len(a.mem)) {
		return nil
	}
	return unsafe.Pointer(&a.mem[off])
}

// node returns the trie node at off, or nil if off is out of range.
func (a *Area) node(off uint32) *trieNode {
	return (*trieNode)(a.ptr(off, nodeHeaderSize))
}

// nodeName returns the segment name bytes of the node at off.
func (a *Area) nodeName(off uint32, n *trieNode) []byte {
	nameOff := off + nodeHeaderSize
	if uintptr(nameOff)+uintptr(n.nameLen) > uintptr(len(a.mem)) {
		return nil
	}
	return a.mem[nameOff : nameOff+n.nameLen]
}

// record returns the value record at off, or nil if off is out of range.
func (a *Area) record(off uint32) *propRecord {
	return (*propRecord)(a.ptr(off, recordSize))
}

// block returns the long-value block at off, or nil if off is out of range.
func (a *Area) block(off uint32) *longBlock {
	return (*longBlock)(a.ptr(off, longBlockSize))
}

// Serial returns the area-wide generation counter. It advances on every
// completed write to any property in the area.
func (a *Area) Serial() uint32 {
	return a.header().Serial()
}

// allocate carves size bytes out of the arena and returns their offset.
// Writer-only; allocation is monotonic and nothing is ever freed. The new
// space is not yet reachable from the trie, so the plain cursor update is
// safe with concurrent readers.
func (w *Writable) allocate(size uint32) (uint32, error) {
	hdr := w.header()
	cur := hdr.Allocated()
	next := cur + uint64(align8(size))
	if next > hdr.Capacity() {
		return 0, ErrOutOfSpace
	}
	hdr.SetAllocated(next)
	return uint32(cur), nil
}

// initArea writes a fresh header and root node into a zeroed mapping.
func initArea(mem []byte) {
	h := (*areaHeader)(unsafe.Pointer(&mem[0]))
	copy(h.magic[:], AreaMagic)
	h.version = AreaVersion
	h.capacity = uint64(len(mem))
	// The root node has an empty name and occupies the first allocation.
	h.allocated = rootNodeOffset + nodeHeaderSize
}
