//go:build linux && (amd64 || arm64)

package propmem

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// newTestArea creates a fresh writable area under t.TempDir.
func newTestArea(t *testing.T) *Writable {
	t.Helper()
	path := filepath.Join(t.TempDir(), fmt.Sprintf("props-%d", time.Now().UnixNano()))
	w, err := CreateArea(path, DefaultAreaSize)
	if err != nil {
		t.Fatalf("CreateArea failed: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

func TestSetGetRoundTrip(t *testing.T) {
	w := newTestArea(t)

	if err := w.SetValue("sys.boot.completed", "1"); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}

	got, ok := w.Get("sys.boot.completed")
	if !ok {
		t.Fatal("Get: property not found after SetValue")
	}
	if got != "1" {
		t.Fatalf("Get = %q, want %q", got, "1")
	}

	// Unset names stay absent, including prefixes of set names.
	if _, ok := w.Get("sys.boot"); ok {
		t.Error("interior node unexpectedly has a value")
	}
	if _, ok := w.Get("sys.boot.completed.extra"); ok {
		t.Error("unset child name unexpectedly found")
	}
}

func TestOverwriteInPlace(t *testing.T) {
	w := newTestArea(t)

	if err := w.SetValue("vold.decrypt", "trigger_restart"); err != nil {
		t.Fatalf("first SetValue failed: %v", err)
	}
	ref, found := w.Lookup("vold.decrypt")
	if !found {
		t.Fatal("Lookup failed after first write")
	}
	_, s1, ok := ref.Load()
	if !ok {
		t.Fatal("Load failed after first write")
	}

	if err := w.SetValue("vold.decrypt", "trigger_reset_main"); err != nil {
		t.Fatalf("second SetValue failed: %v", err)
	}
	val, s2, ok := ref.Load()
	if !ok {
		t.Fatal("Load failed after second write")
	}
	if val != "trigger_reset_main" {
		t.Fatalf("value = %q, want %q", val, "trigger_reset_main")
	}
	if s2 <= s1 {
		t.Fatalf("serial did not advance: %d -> %d", s1, s2)
	}
	if s2&serialDirty != 0 {
		t.Fatalf("published serial %d has dirty bit set", s2)
	}
}

func TestCreatePathIdempotent(t *testing.T) {
	w := newTestArea(t)

	off1, err := w.createPath("persist.sys.locale")
	if err != nil {
		t.Fatalf("createPath failed: %v", err)
	}
	allocatedAfterFirst := w.header().Allocated()

	off2, err := w.createPath("persist.sys.locale")
	if err != nil {
		t.Fatalf("repeated createPath failed: %v", err)
	}
	if off1 != off2 {
		t.Fatalf("createPath not idempotent: %d != %d", off1, off2)
	}
	if got := w.header().Allocated(); got != allocatedAfterFirst {
		t.Fatalf("repeated createPath allocated %d extra bytes", got-allocatedAfterFirst)
	}

	// Shared prefixes reuse existing nodes.
	if _, err := w.createPath("persist.sys.timezone"); err != nil {
		t.Fatalf("sibling createPath failed: %v", err)
	}
	if _, found := w.findNode("persist.sys"); !found {
		t.Fatal("shared prefix node missing")
	}
}

func TestLongValues(t *testing.T) {
	w := newTestArea(t)

	long := strings.Repeat("x", InlineValueMax*3+17)
	if err := w.SetValue("debug.trace.args", long); err != nil {
		t.Fatalf("SetValue(long) failed: %v", err)
	}
	got, ok := w.Get("debug.trace.args")
	if !ok || got != long {
		t.Fatalf("long value mismatch: ok=%v len=%d want len=%d", ok, len(got), len(long))
	}

	// Transition back to an inline value and out again.
	if err := w.SetValue("debug.trace.args", "short"); err != nil {
		t.Fatalf("SetValue(short) failed: %v", err)
	}
	if got, _ := w.Get("debug.trace.args"); got != "short" {
		t.Fatalf("after shrink: got %q", got)
	}

	long2 := strings.Repeat("y", MaxValueLen)
	if err := w.SetValue("debug.trace.args", long2); err != nil {
		t.Fatalf("SetValue(max) failed: %v", err)
	}
	if got, _ := w.Get("debug.trace.args"); got != long2 {
		t.Fatalf("max-length value mismatch: len=%d", len(got))
	}

	// One byte over the limit is rejected with no effect.
	err := w.SetValue("debug.trace.args", long2+"y")
	if !errors.Is(err, ErrValueTooLong) {
		t.Fatalf("oversized value: got %v, want ErrValueTooLong", err)
	}
	if got, _ := w.Get("debug.trace.args"); got != long2 {
		t.Fatal("rejected write mutated the value")
	}
}

func TestInvalidNameNoMutation(t *testing.T) {
	w := newTestArea(t)

	before := w.header().Allocated()
	serialBefore := w.Serial()

	if err := w.SetValue("sys..completed", "1"); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("got %v, want ErrInvalidName", err)
	}
	if got := w.header().Allocated(); got != before {
		t.Fatal("rejected name allocated arena space")
	}
	if got := w.Serial(); got != serialBefore {
		t.Fatal("rejected name bumped the area serial")
	}
}

func TestReaderSeesWriterUpdates(t *testing.T) {
	w := newTestArea(t)
	if err := w.SetValue("ro.hardware", "goldfish"); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}

	// A second, read-only mapping of the same file observes the write.
	r, err := OpenArea(w.Path())
	if err != nil {
		t.Fatalf("OpenArea failed: %v", err)
	}
	defer r.Close()

	if got, ok := r.Get("ro.hardware"); !ok || got != "goldfish" {
		t.Fatalf("reader mapping: got %q ok=%v", got, ok)
	}

	if err := w.SetValue("ro.hardware", "cutf"); err != nil {
		t.Fatalf("second SetValue failed: %v", err)
	}
	if got, _ := r.Get("ro.hardware"); got != "cutf" {
		t.Fatalf("reader mapping after update: got %q", got)
	}
}

func TestOpenRejectsIncompatibleArea(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-an-area")
	if err := os.WriteFile(path, make([]byte, MinAreaSize), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := OpenArea(path); !errors.Is(err, ErrIncompatibleVersion) {
		t.Fatalf("OpenArea on zeroed file: got %v, want ErrIncompatibleVersion", err)
	}
	if _, err := OpenWritableArea(path); !errors.Is(err, ErrIncompatibleVersion) {
		t.Fatalf("OpenWritableArea on zeroed file: got %v, want ErrIncompatibleVersion", err)
	}
}

func TestCreateRejectsBadCapacity(t *testing.T) {
	dir := t.TempDir()
	if _, err := CreateArea(filepath.Join(dir, "small"), MinAreaSize-1); err == nil {
		t.Fatal("CreateArea accepted a capacity below the minimum")
	}
	// Offsets are 32-bit; a larger capacity would truncate silently.
	if _, err := CreateArea(filepath.Join(dir, "huge"), math.MaxUint32+1); err == nil {
		t.Fatal("CreateArea accepted a capacity beyond 32-bit addressing")
	}
	if _, err := os.Stat(filepath.Join(dir, "huge")); !os.IsNotExist(err) {
		t.Fatal("rejected create left an area file behind")
	}
}

func TestOutOfSpace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiny")
	w, err := CreateArea(path, MinAreaSize)
	if err != nil {
		t.Fatalf("CreateArea failed: %v", err)
	}
	defer w.Close()

	// Exhaust the arena; every failure must be ErrOutOfSpace and the arena
	// must keep serving the values that did fit.
	var wrote int
	for i := 0; ; i++ {
		err := w.SetValue(fmt.Sprintf("stress.fill.key%04d", i), strings.Repeat("v", InlineValueMax))
		if err == nil {
			wrote++
			continue
		}
		if !errors.Is(err, ErrOutOfSpace) {
			t.Fatalf("unexpected error filling arena: %v", err)
		}
		break
	}
	if wrote == 0 {
		t.Fatal("no writes fit in the minimum-size arena")
	}
	if got, ok := w.Get("stress.fill.key0000"); !ok || got != strings.Repeat("v", InlineValueMax) {
		t.Fatal("earlier write lost after arena exhaustion")
	}
}

func TestForeach(t *testing.T) {
	w := newTestArea(t)

	want := map[string]string{
		"sys.boot.completed": "1",
		"sys.boot.reason":    "reboot",
		"ro.hardware":        "goldfish",
		"net.dns1":           "8.8.8.8",
	}
	for name, value := range want {
		if err := w.SetValue(name, value); err != nil {
			t.Fatalf("SetValue(%s) failed: %v", name, err)
		}
	}

	got := map[string]string{}
	w.Foreach(func(name, value string) bool {
		got[name] = value
		return true
	})
	if len(got) != len(want) {
		t.Fatalf("Foreach visited %d properties, want %d", len(got), len(want))
	}
	for name, value := range want {
		if got[name] != value {
			t.Errorf("Foreach: %s = %q, want %q", name, got[name], value)
		}
	}

	// Early stop.
	visits := 0
	w.Foreach(func(name, value string) bool {
		visits++
		return false
	})
	if visits != 1 {
		t.Fatalf("Foreach ignored stop signal, visited %d", visits)
	}
}
