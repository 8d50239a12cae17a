// Package sysprop is the client surface of a shared-memory system property
// store. Properties are short string values under dotted hierarchical names
// ("sys.boot.completed"), held in a memory-mapped area that any number of
// processes read lock-free while a single privileged writer publishes
// updates.
//
// A Store is an explicit handle to one mapped area. Readers call Open;
// the process that owns the writer role (or an offline/test harness
// constructing an area) calls Create or OpenWritable. Everyone else routes
// writes through the property service daemon via WithService.
package sysprop

import (
	"context"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/syspropkit/sysprop/internal/propmem"
	"github.com/syspropkit/sysprop/internal/propsvc"
)

// DefaultAreaSize is the default capacity for newly created areas.
const DefaultAreaSize = propmem.DefaultAreaSize

// MaxValueLen is the longest accepted property value in bytes.
const MaxValueLen = propmem.MaxValueLen

// Store is a handle to one property area. The zero value is not usable.
// Reads, iteration, and waits are safe for unlimited concurrency. Writes
// through a property service are serialized by the daemon; writes on a
// store holding the writer role itself follow the area's single-writer
// discipline and must not be issued concurrently.
type Store struct {
	area   *propmem.Area
	local  *propmem.Writable // non-nil when this process owns the writer role
	client *propsvc.Client   // non-nil when writes go through the daemon
}

// Open maps an existing property area read-only. The returned store can
// read, iterate, and wait, but Set fails with ErrReadOnly until a write
// path is attached with WithService.
func Open(path string) (*Store, error) {
	area, err := propmem.OpenArea(path)
	if err != nil {
		return nil, err
	}
	return &Store{area: area}, nil
}

// Create creates a new property area file of the given capacity and returns
// a store holding the writer role. Intended for the privileged daemon and
// for offline construction (tests, image builds). capacity <= 0 selects
// DefaultAreaSize.
func Create(path string, capacity int) (*Store, error) {
	if capacity <= 0 {
		capacity = DefaultAreaSize
	}
	w, err := propmem.CreateArea(path, uint64(capacity))
	if err != nil {
		return nil, err
	}
	return &Store{area: &w.Area, local: w}, nil
}

// OpenWritable maps an existing area with the writer role, for the area
// owner re-attaching after a restart.
func OpenWritable(path string) (*Store, error) {
	w, err := propmem.OpenWritableArea(path)
	if err != nil {
		return nil, err
	}
	return &Store{area: &w.Area, local: w}, nil
}

// WithService routes this store's writes through the property service
// daemon at socketPath and returns the store for chaining.
func (s *Store) WithService(socketPath string) *Store {
	s.client = propsvc.NewClient(socketPath)
	return s
}

// Close unmaps the area. Blocked Wait calls are not interrupted; they run
// to their own deadlines.
func (s *Store) Close() error {
	return s.area.Close()
}

// Lookup returns a property's current value and whether it has ever been
// set. Absence is a normal outcome, not an error.
func (s *Store) Lookup(name string) (string, bool) {
	return s.area.Get(name)
}

// Get returns the property's value, or def if it has never been set.
func (s *Store) Get(name, def string) string {
	if v, ok := s.area.Get(name); ok {
		return v
	}
	return def
}

// GetBool interprets the property as a boolean: "1", "y", "yes", "on", and
// "true" are true; "0", "n", "no", "off", and "false" are false. Unset or
// unparseable values yield def; parse failure is not an error.
func (s *Store) GetBool(name string, def bool) bool {
	v, ok := s.area.Get(name)
	if !ok {
		return def
	}
	b, ok := ParseBool(v)
	if !ok {
		return def
	}
	return b
}

// GetInt parses the property as a base-10 signed integer, returning def
// when the property is unset or unparseable.
func (s *Store) GetInt(name string, def int64) int64 {
	v, ok := s.area.Get(name)
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

// GetUint parses the property as a base-10 unsigned integer, returning def
// when the property is unset or unparseable.
func (s *Store) GetUint(name string, def uint64) uint64 {
	v, ok := s.area.Get(name)
	if !ok {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

// Set writes a property. The name and value are validated before any
// mutation or I/O: malformed names fail with ErrInvalidName, oversized
// values with ErrValueTooLong, and non-UTF-8 input with ErrInvalidEncoding,
// all with no side effects.
//
// Stores holding the writer role apply the write directly; stores attached
// to a property service forward it and surface the service's verdict
// verbatim. Read-only stores fail with ErrReadOnly.
func (s *Store) Set(ctx context.Context, name, value string) error {
	if err := propmem.CheckName(name); err != nil {
		return err
	}
	if len(value) > MaxValueLen {
		return fmt.Errorf("%w: %d bytes", ErrValueTooLong, len(value))
	}
	if !utf8.ValidString(name) || !utf8.ValidString(value) {
		return ErrInvalidEncoding
	}

	switch {
	case s.local != nil:
		return s.local.SetValue(name, value)
	case s.client != nil:
		return s.client.Set(ctx, name, value)
	default:
		return ErrReadOnly
	}
}

// Foreach invokes fn with every property in the area. Returning false stops
// the walk. The visit order is stable for a static snapshot but is not a
// cross-process ordering guarantee, and properties written during the walk
// may or may not be included; each visited value is individually consistent.
func (s *Store) Foreach(fn func(name, value string) bool) {
	s.area.Foreach(fn)
}

// Serial returns the area-wide generation counter, which advances on every
// completed write to any property.
func (s *Store) Serial() uint32 {
	return s.area.Serial()
}

// Wait blocks until the named property's serial number reaches or exceeds
// expected, returning the new serial. An empty name waits on the area-wide
// counter instead, i.e. for any property to change. Only the ctx deadline
// is honored: the blocking primitive is a futex wait, so a Cancel on a
// deadline-less context does not interrupt it, and such a wait can block
// until the next write. ErrTimedOut reports the deadline passing, a normal
// outcome. Waiting on a name that has never been set fails with ErrNotFound
// (use a Watcher to wait for creation).
func (s *Store) Wait(ctx context.Context, name string, expected uint32) (uint32, error) {
	deadline, _ := ctx.Deadline() // zero deadline waits indefinitely

	if name == "" {
		return s.area.WaitAny(expected, deadline)
	}
	ref, found := s.area.Lookup(name)
	if !found {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return ref.Wait(expected, deadline)
}

// waitAnyDeadline waits for the area counter to pass expected with an
// explicit deadline, shared by Watcher's creation wait.
func (s *Store) waitAnyDeadline(expected uint32, deadline time.Time) (uint32, error) {
	return s.area.WaitAny(expected, deadline)
}
