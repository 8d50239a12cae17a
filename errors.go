package sysprop

import (
	"errors"

	"github.com/syspropkit/sysprop/internal/propmem"
	"github.com/syspropkit/sysprop/internal/propsvc"
)

// Errors returned by the public API. Lookup misses are not errors: the
// typed getters fall back to the caller's default, and Lookup reports
// absence through its bool result. ErrNotFound only appears where an
// operation needs an existing property to act on (Wait, Watcher.Read).
var (
	// ErrInvalidName indicates a malformed or oversized property name.
	// Validation happens before any mutation; a rejected write has no effect.
	ErrInvalidName = propmem.ErrInvalidName

	// ErrValueTooLong indicates a value exceeding the area's maximum.
	ErrValueTooLong = propmem.ErrValueTooLong

	// ErrInvalidEncoding indicates a non-UTF-8 name or value.
	ErrInvalidEncoding = propsvc.ErrInvalidEncoding

	// ErrNotFound indicates an operation addressed a property that has
	// never been set.
	ErrNotFound = errors.New("property not found")

	// ErrOutOfSpace indicates the area's arena is exhausted. Allocation is
	// append-only; freeing or growing an area is not supported.
	ErrOutOfSpace = propmem.ErrOutOfSpace

	// ErrIncompatibleVersion indicates the area file cannot be opened
	// because its format is unknown or corrupt.
	ErrIncompatibleVersion = propmem.ErrIncompatibleVersion

	// ErrConnectFailed indicates the property service socket could not be
	// reached.
	ErrConnectFailed = propsvc.ErrConnectFailed

	// ErrPermissionDenied indicates the property service refused the write.
	ErrPermissionDenied = propsvc.ErrPermissionDenied

	// ErrTimedOut indicates a wait reached its deadline. A normal outcome,
	// not a fault.
	ErrTimedOut = propmem.ErrTimedOut

	// ErrReadOnly indicates a Set on a store with neither local write
	// ownership nor a configured property service.
	ErrReadOnly = errors.New("store has no write path")
)
