package propmem

import (
	"errors"
	"sync/atomic"
	"time"
)

// waitSerial blocks until the serial word at addr reaches or exceeds
// expected (ignoring the dirty bit), the deadline passes, or the wait
// primitive fails. A zero deadline means no timeout. Every wake is treated
// as a hint: the condition is always re-checked, since the word may be
// shared by unrelated changes and futexes wake spuriously.
func waitSerial(addr *uint32, expected uint32, deadline time.Time) (uint32, error) {
	for {
		cur := atomic.LoadUint32(addr)
		if stable := cur &^ serialDirty; stable >= expected {
			return stable, nil
		}

		var timeoutNs int64
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return 0, ErrTimedOut
			}
			timeoutNs = remaining.Nanoseconds()
		}

		if err := futexWaitTimeout(addr, cur, timeoutNs); err != nil {
			if errors.Is(err, ErrFutexTimeout) {
				// The value may have changed right at the deadline;
				// report success if the condition now holds.
				if stable := atomic.LoadUint32(addr) &^ serialDirty; stable >= expected {
					return stable, nil
				}
				return 0, ErrTimedOut
			}
			return 0, err
		}
	}
}

// Wait blocks until the record's stable serial reaches or exceeds expected,
// returning the new serial. Returns ErrTimedOut when the deadline passes
// first. A zero deadline waits indefinitely.
func (r Ref) Wait(expected uint32, deadline time.Time) (uint32, error) {
	rec := r.a.record(r.off)
	if rec == nil {
		return 0, errors.New("invalid record reference")
	}
	return waitSerial(&rec.serial, expected, deadline)
}

// WaitAny blocks until the area-wide generation counter reaches or exceeds
// expected, i.e. until any property in the area changes. Returns the new
// counter value, or ErrTimedOut when the deadline passes first.
func (a *Area) WaitAny(expected uint32, deadline time.Time) (uint32, error) {
	return waitSerial(&a.header().serial, expected, deadline)
}
