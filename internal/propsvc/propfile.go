package propsvc

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/syspropkit/sysprop/internal/propmem"
)

// LoadPropFile reads a key=value property file and applies each entry to
// the writable area. Blank lines and lines starting with '#' are skipped;
// malformed or invalid entries are logged and skipped rather than aborting
// the load, matching how platform init treats build.prop files. Returns the
// number of properties applied.
func LoadPropFile(area *propmem.Writable, path string, log zerolog.Logger) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open prop file: %w", err)
	}
	defer f.Close()

	applied := 0
	lineNo := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			log.Warn().Str("file", path).Int("line", lineNo).Msg("skipping line without '='")
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		if err := area.SetValue(key, value); err != nil {
			log.Warn().Err(err).Str("file", path).Int("line", lineNo).Str("name", key).
				Msg("skipping property")
			continue
		}
		applied++
	}
	if err := scanner.Err(); err != nil {
		return applied, fmt.Errorf("failed to read prop file: %w", err)
	}

	log.Info().Str("file", path).Int("applied", applied).Msg("loaded property file")
	return applied, nil
}
