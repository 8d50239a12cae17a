// Package propmem implements the shared-memory property area: a
// memory-mapped, append-only arena holding a trie of dotted property names
// and seqlock-guarded value records.
//
// The area is created once by the writer process and mapped read-only by
// any number of reader processes. All internal references are byte offsets
// into the mapping, so the same area is valid at any base address. Readers
// never take locks; a reader that races with an in-place value update
// detects the conflict through the record's serial number and retries.
// Writers are assumed to be externally serialized (exactly one writer role
// exists per area).
package propmem
