package propmem

import (
	"bytes"
	"sync/atomic"
)

// nextSegment returns the segment starting at name[start] and the start of
// the following segment (len(name)+1 past the last one). Names are
// validated before trie operations, so segments are never empty.
func nextSegment(name string, start int) (string, int) {
	for i := start; i < len(name); i++ {
		if name[i] == '.' {
			return name[start:i], i + 1
		}
	}
	return name[start:], len(name) + 1
}

// findNode resolves a dotted name to a trie node offset. Not finding the
// name is a normal outcome, not an error. Safe for concurrent use with a
// writer: sibling and child links are only ever extended, and a link is
// published only after the node behind it is fully initialized.
func (a *Area) findNode(name string) (uint32, bool) {
	off := uint32(rootNodeOffset)
	for start := 0; start <= len(name); {
		var seg string
		seg, start = nextSegment(name, start)

		n := a.node(off)
		if n == nil {
			return 0, false
		}
		child := atomic.LoadUint32(&n.firstChild)
		for child != 0 {
			cn := a.node(child)
			if cn == nil {
				return 0, false
			}
			if bytes.Equal(a.nodeName(child, cn), []byte(seg)) {
				break
			}
			child = atomic.LoadUint32(&cn.nextSibling)
		}
		if child == 0 {
			return 0, false
		}
		off = child
	}
	return off, true
}

// createPath resolves a dotted name, appending any missing trie nodes.
// Idempotent: an existing path is returned as-is. Writer-only.
//
// A new node is allocated and fully initialized (name bytes, nil links)
// before its offset is stored into the parent's child link or the last
// sibling's next link, so a reader scanning the list mid-insert observes
// either the old list or the complete new node.
func (w *Writable) createPath(name string) (uint32, error) {
	if err := CheckName(name); err != nil {
		return 0, err
	}

	off := uint32(rootNodeOffset)
	for start := 0; start <= len(name); {
		var seg string
		seg, start = nextSegment(name, start)

		n := w.node(off)
		next, err := w.findOrAddChild(off, n, seg)
		if err != nil {
			return 0, err
		}
		off = next
	}
	return off, nil
}

// findOrAddChild scans parent's child list for seg, appending a new node
// when absent. Returns the child's offset.
func (w *Writable) findOrAddChild(parentOff uint32, parent *trieNode, seg string) (uint32, error) {
	var lastOff uint32
	child := atomic.LoadUint32(&parent.firstChild)
	for child != 0 {
		cn := w.node(child)
		if bytes.Equal(w.nodeName(child, cn), []byte(seg)) {
			return child, nil
		}
		lastOff = child
		child = atomic.LoadUint32(&cn.nextSibling)
	}

	newOff, err := w.newNode(seg)
	if err != nil {
		return 0, err
	}

	// Publication point: the node is complete, link it in.
	if lastOff == 0 {
		atomic.StoreUint32(&parent.firstChild, newOff)
	} else {
		atomic.StoreUint32(&w.node(lastOff).nextSibling, newOff)
	}
	return newOff, nil
}

// newNode allocates and initializes a trie node for one name segment.
// The node is not yet reachable, so plain stores suffice.
func (w *Writable) newNode(seg string) (uint32, error) {
	off, err := w.allocate(nodeHeaderSize + uint32(len(seg)))
	if err != nil {
		return 0, err
	}
	n := w.node(off)
	n.nameLen = uint32(len(seg))
	n.firstChild = 0
	n.nextSibling = 0
	n.prop = 0
	copy(w.mem[off+nodeHeaderSize:], seg)
	return off, nil
}

// Foreach walks the whole trie depth-first in sibling order, invoking fn
// with each property's dotted name and current value. fn returning false
// stops the walk. The order is stable for a static snapshot; values written
// concurrently may or may not be visited, but each visited value is
// individually consistent.
func (a *Area) Foreach(fn func(name, value string) bool) {
	root := a.node(rootNodeOffset)
	if root == nil {
		return
	}
	a.walk(atomic.LoadUint32(&root.firstChild), "", fn)
}

func (a *Area) walk(off uint32, prefix string, fn func(name, value string) bool) bool {
	for off != 0 {
		n := a.node(off)
		if n == nil {
			return true
		}
		name := prefix + string(a.nodeName(off, n))

		if recOff := atomic.LoadUint32(&n.prop); recOff != 0 {
			if value, _, ok := a.readRecord(recOff); ok {
				if !fn(name, value) {
					return false
				}
			}
		}

		if child := atomic.LoadUint32(&n.firstChild); child != 0 {
			if !a.walk(child, name+".", fn) {
				return false
			}
		}

		off = atomic.LoadUint32(&n.nextSibling)
	}
	return true
}
