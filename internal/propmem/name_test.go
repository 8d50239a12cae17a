package propmem

import (
	"strings"
	"testing"
)

func TestCheckNameAccepts(t *testing.T) {
	valid := []string{
		"sys.boot.completed",
		"a",
		"ro.build.version.sdk",
		"persist.vendor.radio-config",
		"init.svc.console:shell",
		"wlan.driver@1.0",
		"a.b.c.d.e.f.g.h",
	}
	for _, name := range valid {
		if err := CheckName(name); err != nil {
			t.Errorf("CheckName(%q) = %v, want nil", name, err)
		}
	}
}

func TestCheckNameRejects(t *testing.T) {
	invalid := []string{
		"",
		".",
		"sys..completed",
		".sys.boot",
		"sys.boot.",
		"sys boot",
		"sys/boot",
		"sys.boot\x00",
		strings.Repeat("a", MaxNameLen+1),
		strings.Repeat("a.", MaxSegments) + "a", // one segment over the limit
	}
	for _, name := range invalid {
		if err := CheckName(name); err != ErrInvalidName {
			t.Errorf("CheckName(%q) = %v, want ErrInvalidName", name, err)
		}
	}
}

func TestCheckNameLimits(t *testing.T) {
	// Exactly at the limits must pass.
	atLenLimit := strings.Repeat("a", MaxNameLen)
	if err := CheckName(atLenLimit); err != nil {
		t.Errorf("name of %d bytes rejected: %v", MaxNameLen, err)
	}

	atSegLimit := strings.TrimSuffix(strings.Repeat("a.", MaxSegments), ".")
	if err := CheckName(atSegLimit); err != nil {
		t.Errorf("name of %d segments rejected: %v", MaxSegments, err)
	}
}
