package backend

import (
	"fmt"

	"github.com/secstore/secstore/internal/errors"
)

// FileType is the type of an object in the backend.
type FileType string

// These are the different object types a backend can store.
const (
	ConfigFile FileType = "config"
	KeyFile    FileType = "key"
	TreeFile   FileType = "tree"
	DataFile   FileType = "data"
)

// Handle is used to store and access data in a backend.
type Handle struct {
	Type FileType
	Name string
}

func (h Handle) String() string {
	name := h.Name
	if len(name) > 10 {
		name = name[:10]
	}
	return fmt.Sprintf("<%s/%s>", h.Type, name)
}

// Valid returns an error if h is not valid.
func (h Handle) Valid() error {
	if h.Type == "" {
		return errors.New("type is empty")
	}

	switch h.Type {
	case ConfigFile:
	case KeyFile:
	case TreeFile:
	case DataFile:
	default:
		return errors.Errorf("invalid Type %q", h.Type)
	}

	if h.Type == ConfigFile {
		return nil
	}

	if h.Name == "" {
		return errors.New("invalid Name")
	}

	return nil
}
