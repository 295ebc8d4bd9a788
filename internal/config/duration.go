package config

import (
	"fmt"
	"strings"
	"time"
)

// parseDuration reads a duration string such as "30s". Empty or zero
// yields def; negative values are rejected. key names the field in errors.
func parseDuration(key, raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: %q is not a duration: %w", key, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: negative duration %s", key, d)
	case d == 0:
		return def, nil
	}
	return d, nil
}
