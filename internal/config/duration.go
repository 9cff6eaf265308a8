package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// ParseDurationField parses raw as a non-negative Go duration. Empty is zero.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// Duration is ParseDurationOrDefault for values already checked by Validate.
func Duration(raw string, def time.Duration) time.Duration {
	d, err := ParseDurationOrDefault("", raw, def)
	if err != nil {
		return def
	}
	return d
}

const envPrefix = "env:"

// ResolveSecret expands an "env:NAME" reference. Other values are returned
// trimmed.
func ResolveSecret(path, raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, envPrefix) {
		return s, nil
	}
	name := strings.TrimSpace(s[len(envPrefix):])
	if name == "" {
		return "", fmt.Errorf("%s: empty env reference", path)
	}
	v, ok := os.LookupEnv(name)
	if !ok || strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("%s: environment variable %s is not set", path, name)
	}
	return strings.TrimSpace(v), nil
}
