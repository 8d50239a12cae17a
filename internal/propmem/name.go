package propmem

// Name limits. These are platform-convention constants, not protocol
// invariants; areas written with different limits remain readable as long
// as the binary layout version matches.
const (
	// MaxNameLen is the longest accepted dotted property name in bytes.
	MaxNameLen = 91

	// MaxSegments is the most dot-separated segments a name may have.
	MaxSegments = 32
)

// legalNameByte reports whether c may appear inside a name segment.
func legalNameByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z':
		return true
	case c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return true
	case c == '_' || c == '-' || c == '@' || c == ':':
		return true
	}
	return false
}

// CheckName validates a dotted property name: non-empty segments separated
// by single dots, legal segment characters only, and within the segment and
// total length limits. Returns ErrInvalidName on any violation.
func CheckName(name string) error {
	if len(name) == 0 || len(name) > MaxNameLen {
		return ErrInvalidName
	}

	segments := 1
	segLen := 0
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c == '.' {
			if segLen == 0 {
				return ErrInvalidName // empty segment (leading, trailing, or "..")
			}
			segments++
			if segments > MaxSegments {
				return ErrInvalidName
			}
			segLen = 0
			continue
		}
		if !legalNameByte(c) {
			return ErrInvalidName
		}
		segLen++
	}
	if segLen == 0 {
		return ErrInvalidName // trailing dot
	}
	return nil
}
