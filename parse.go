package sysprop

import "strings"

// ParseBool interprets a property value as a boolean using the platform
// convention: "1", "y", "yes", "on", "true" are true; "0", "n", "no",
// "off", "false" are false. Anything else (including different casing)
// is not a boolean.
func ParseBool(v string) (value, ok bool) {
	switch v {
	case "1", "y", "yes", "on", "true":
		return true, true
	case "0", "n", "no", "off", "false":
		return false, true
	}
	return false, false
}

// FormatBool renders a boolean as "true" or "false".
func FormatBool(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

// FormatBoolAsInt renders a boolean as "1" or "0".
func FormatBoolAsInt(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

// ParseList splits a comma-separated property value into its items.
// A literal comma is escaped as `\,`; a backslash escapes the following
// character. An empty value is an empty list.
func ParseList(v string) []string {
	if v == "" {
		return nil
	}
	items := make([]string, 0, strings.Count(v, ",")+1)
	var cur strings.Builder
	escaped := false
	for _, r := range v {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == ',':
			items = append(items, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	items = append(items, cur.String())
	return items
}

// FormatList joins items into a comma-separated property value, escaping
// commas and backslashes so ParseList round-trips.
func FormatList(items []string) string {
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteByte(',')
		}
		for _, r := range item {
			if r == ',' || r == '\\' {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}
