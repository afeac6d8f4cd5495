package local

import (
	"strings"

	"github.com/secstore/secstore/internal/errors"
)

// Config holds all information needed to open a local backend.
type Config struct {
	Path string
}

// ParseConfig parses a local backend config from a location string. The
// location must be of the form "local:/path/to/store" or a bare path.
func ParseConfig(s string) (Config, error) {
	if p, ok := strings.CutPrefix(s, "local:"); ok {
		s = p
	}

	if s == "" {
		return Config{}, errors.New("local: invalid format, path not found")
	}

	return Config{Path: s}, nil
}
