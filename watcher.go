package sysprop

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/syspropkit/sysprop/internal/propmem"
)

// Watcher tracks one named property: it reports the current value and waits
// for changes, recording the serial number of the last change it saw so a
// write landing between a read and a wait is never missed.
//
// A Watcher may be created before the property exists; Wait then first
// blocks on the area-wide counter until the property appears. A Watcher is
// not safe for concurrent use; each waiter should hold its own.
type Watcher struct {
	store  *Store
	name   string
	ref    propmem.Ref
	serial uint32
}

// Watcher returns a watcher for the named property.
func (s *Store) Watcher(name string) (*Watcher, error) {
	if err := propmem.CheckName(name); err != nil {
		return nil, err
	}
	w := &Watcher{store: s, name: name}
	w.resolve()
	return w, nil
}

// resolve lazily binds the watcher to the property's record once it exists.
// Records are never moved or freed, so the binding is permanent.
func (w *Watcher) resolve() bool {
	if w.ref.Valid() {
		return true
	}
	ref, found := w.store.area.Lookup(w.name)
	if !found {
		return false
	}
	w.ref = ref
	return true
}

// Read returns the property's current value and remembers its serial, so a
// following Wait only returns for changes after this read. Fails with
// ErrNotFound while the property does not exist and ErrInvalidEncoding if
// the stored bytes are not valid UTF-8.
func (w *Watcher) Read() (string, error) {
	if !w.resolve() {
		return "", fmt.Errorf("%w: %s", ErrNotFound, w.name)
	}
	value, serial, ok := w.ref.Load()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, w.name)
	}
	w.serial = serial
	if !utf8.ValidString(value) {
		return "", fmt.Errorf("%w: property %s", ErrInvalidEncoding, w.name)
	}
	return value, nil
}

// Wait blocks until the property changes past the last serial this watcher
// observed, or until the ctx deadline passes (ErrTimedOut). If the property
// does not exist yet, Wait returns once it is created. As with Store.Wait,
// only the ctx deadline is honored; a Cancel on a deadline-less context
// does not interrupt the underlying futex wait.
func (w *Watcher) Wait(ctx context.Context) error {
	deadline, _ := ctx.Deadline()

	if !w.ref.Valid() {
		return w.waitForCreation(deadline)
	}

	newSerial, err := w.ref.Wait(w.serial+1, deadline)
	if err != nil {
		return err
	}
	w.serial = newSerial
	return nil
}

// waitForCreation blocks until the property appears, re-checking after
// every advance of the area-wide counter. Wakes of that counter are hints
// about unrelated properties as often as not.
func (w *Watcher) waitForCreation(deadline time.Time) error {
	global := w.store.Serial()
	for {
		if w.resolve() {
			return nil
		}
		next, err := w.store.waitAnyDeadline(global+1, deadline)
		if err != nil {
			return err
		}
		global = next
	}
}

// WaitForValue blocks until the property exists and equals expected,
// re-reading after each change. Returns ErrTimedOut when the ctx deadline
// passes first.
func (w *Watcher) WaitForValue(ctx context.Context, expected string) error {
	for {
		if w.ref.Valid() || w.resolve() {
			current, err := w.Read()
			if err != nil {
				return err
			}
			if current == expected {
				return nil
			}
		}
		if err := w.Wait(ctx); err != nil {
			return err
		}
	}
}
