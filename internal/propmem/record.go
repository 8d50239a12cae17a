package propmem

import (
	"fmt"
	"runtime"
	"sync/atomic"
)

// maxReadRetries bounds the seqlock retry loop. A reader that loses the
// race with a writer this many times in a row reports the property as
// unreadable rather than spinning forever. Internal tuning, not a contract.
const maxReadRetries = 1024

// wakeAll is the waiter count passed to futexWake to release every waiter.
const wakeAll = 1 << 30

// Ref is a stable handle to one property's value record. A Ref stays valid
// for the lifetime of the area: records are never moved or freed.
type Ref struct {
	a   *Area
	off uint32
}

// Valid reports whether the Ref points at a record.
func (r Ref) Valid() bool {
	return r.a != nil && r.off != 0
}

// Serial returns the record's last published (stable) serial number.
func (r Ref) Serial() uint32 {
	rec := r.a.record(r.off)
	if rec == nil {
		return 0
	}
	return atomic.LoadUint32(&rec.serial) &^ serialDirty
}

// Load reads the record's current value under the seqlock protocol and
// returns it with the serial it was published under. ok is false if the
// Ref is invalid or the retry bound was exhausted.
func (r Ref) Load() (value string, serial uint32, ok bool) {
	if !r.Valid() {
		return "", 0, false
	}
	return r.a.readRecord(r.off)
}

// Lookup resolves a dotted name to a Ref. The bool result distinguishes
// "property has never been set" (a normal outcome) from a found record.
func (a *Area) Lookup(name string) (Ref, bool) {
	nodeOff, found := a.findNode(name)
	if !found {
		return Ref{}, false
	}
	n := a.node(nodeOff)
	recOff := atomic.LoadUint32(&n.prop)
	if recOff == 0 {
		// Interior node with no value of its own.
		return Ref{}, false
	}
	return Ref{a: a, off: recOff}, true
}

// Get returns a property's current value, or ok=false if it has never
// been set (or a torn read could not be resolved within the retry bound).
func (a *Area) Get(name string) (string, bool) {
	ref, found := a.Lookup(name)
	if !found {
		return "", false
	}
	value, _, ok := ref.Load()
	return value, ok
}

// readRecord is the lock-free read path:
//
//  1. snapshot the serial; if the dirty bit is set a write is in flight,
//     so yield and retry
//  2. copy the length and content (inline bytes or the long-block chain)
//  3. re-read the serial; a change means the copy may mix two writes and
//     must be discarded
//
// The snapshot load acquires the content published before it; detecting an
// overlapping write relies on the writer setting the dirty bit with a fully
// ordered RMW before it touches any content, so a copy that starts from a
// clean serial and re-reads the same serial saw no concurrent publication.
func (a *Area) readRecord(off uint32) (string, uint32, bool) {
	rec := a.record(off)
	if rec == nil {
		return "", 0, false
	}

	for attempt := 0; attempt < maxReadRetries; attempt++ {
		s1 := atomic.LoadUint32(&rec.serial)
		if s1&serialDirty != 0 {
			runtime.Gosched()
			continue
		}

		valLen := atomic.LoadUint32(&rec.valLen)
		longOff := atomic.LoadUint32(&rec.longOff)

		var buf []byte
		if longOff == 0 {
			if valLen > InlineValueMax {
				continue // torn (length from a long write), retry
			}
			buf = make([]byte, valLen)
			copy(buf, rec.value[:valLen])
		} else {
			chain, ok := a.readChain(longOff, valLen)
			if !ok {
				continue // torn chain observation, retry
			}
			buf = chain
		}

		if atomic.LoadUint32(&rec.serial) == s1 {
			return string(buf), s1, true
		}
	}
	return "", 0, false
}

// readChain collects an out-of-line value of total bytes from the block
// chain at off. Chains are immutable once published, but a torn read may
// observe a (length, offset) pair from two different writes; any mismatch
// makes the caller retry under the seqlock.
func (a *Area) readChain(off uint32, total uint32) ([]byte, bool) {
	if total > MaxValueLen {
		return nil, false
	}
	buf := make([]byte, 0, total)
	for off != 0 && len(buf) < int(total) {
		b := a.block(off)
		if b == nil || b.used > longBlockDataSize {
			return nil, false
		}
		buf = append(buf, b.data[:b.used]...)
		off = b.next
	}
	if len(buf) != int(total) {
		return nil, false
	}
	return buf, true
}

// SetValue validates and applies one write to a property, creating the
// trie path and record on first use. Writer-only; callers serialize.
//
// Write ordering (the publication protocol readers depend on):
//
//  1. mark the record's serial dirty
//  2. store the new length, chain offset, and inline content
//  3. publish the next even serial, clearing the dirty bit
//  4. bump the area-wide generation counter
//  5. wake waiters on both the record's serial and the area counter
//
// Long values never mutate published blocks: a fresh chain is built in
// newly allocated space and only its head offset is swapped in under the
// seqlock. First writes build the whole record before linking it into the
// trie node, so readers never see a half-initialized record.
func (w *Writable) SetValue(name, value string) error {
	if err := CheckName(name); err != nil {
		return err
	}
	if len(value) > MaxValueLen {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrValueTooLong, len(value), MaxValueLen)
	}

	nodeOff, err := w.createPath(name)
	if err != nil {
		return err
	}
	n := w.node(nodeOff)

	recOff := atomic.LoadUint32(&n.prop)
	if recOff == 0 {
		recOff, err = w.newRecord(value)
		if err != nil {
			return err
		}
		// Publication point for the first write.
		atomic.StoreUint32(&n.prop, recOff)
	} else {
		if err := w.updateRecord(w.record(recOff), value); err != nil {
			return err
		}
	}

	hdr := w.header()
	hdr.BumpSerial()
	futexWake(&w.record(recOff).serial, wakeAll)
	futexWake(&hdr.serial, wakeAll)
	return nil
}

// newRecord allocates and fills a record for a property's first write.
// The record is unreachable until the caller links it, so plain stores
// suffice; the serial starts at the first stable (even, nonzero) value.
func (w *Writable) newRecord(value string) (uint32, error) {
	var longOff uint32
	if len(value) > InlineValueMax {
		var err error
		longOff, err = w.buildChain(value)
		if err != nil {
			return 0, err
		}
	}

	off, err := w.allocate(recordSize)
	if err != nil {
		return 0, err
	}
	rec := w.record(off)
	rec.valLen = uint32(len(value))
	rec.longOff = longOff
	if longOff == 0 {
		copy(rec.value[:], value)
	}
	atomic.StoreUint32(&rec.serial, 2)
	return off, nil
}

// updateRecord applies an in-place value update under the seqlock.
func (w *Writable) updateRecord(rec *propRecord, value string) error {
	var longOff uint32
	if len(value) > InlineValueMax {
		// Build the chain before dirtying the record so an allocation
		// failure leaves the old value untouched.
		var err error
		longOff, err = w.buildChain(value)
		if err != nil {
			return err
		}
	}

	// Setting the dirty bit must be fully ordered: a release store only
	// constrains the stores before it, so on weakly ordered hardware the
	// content stores below could become visible first and a reader could
	// copy mixed bytes around two clean serial loads. The RMW is compiled
	// as a fully ordered operation on every supported target. The serial
	// is even and only this writer mutates it, so adding 1 sets the bit.
	s := atomic.AddUint32(&rec.serial, 1)

	atomic.StoreUint32(&rec.valLen, uint32(len(value)))
	atomic.StoreUint32(&rec.longOff, longOff)
	if longOff == 0 {
		copy(rec.value[:], value)
	}

	// Next even serial, strictly above every previous one. A release store
	// suffices here: the content stores above cannot sink below it.
	atomic.StoreUint32(&rec.serial, s+1)
	return nil
}

// buildChain writes value into a fresh out-of-line block chain and returns
// the head offset. The blocks are unreachable until the caller publishes
// the offset, and are never touched again afterwards.
func (w *Writable) buildChain(value string) (uint32, error) {
	var head, prev uint32
	for start := 0; start < len(value); start += longBlockDataSize {
		end := start + longBlockDataSize
		if end > len(value) {
			end = len(value)
		}

		off, err := w.allocate(longBlockSize)
		if err != nil {
			return 0, err
		}
		b := w.block(off)
		b.next = 0
		b.used = uint32(end - start)
		copy(b.data[:], value[start:end])

		if prev == 0 {
			head = off
		} else {
			w.block(prev).next = off
		}
		prev = off
	}
	return head, nil
}
