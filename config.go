package secstore

import (
	"github.com/secstore/secstore/internal/errors"
)

// Config contains the store-wide settings. It is stored sealed with the
// master key under the config handle on the backend.
type Config struct {
	Version   uint `json:"version"`
	ID        ID   `json:"id"`
	BlockSize int  `json:"block_size"`

	// Compression enables transparent zstd compression of blocks and
	// metadata before they are encrypted.
	Compression bool `json:"compression"`
}

// StoreVersion is the only store format version this code writes and
// understands.
const StoreVersion = 1

const (
	// DefaultBlockSize is the plaintext block size used for new stores.
	DefaultBlockSize = 64 << 10

	minBlockSize = 4 << 10
	maxBlockSize = 8 << 20
)

// createConfig creates a config for a new store.
func createConfig(blockSize int, compression bool) (Config, error) {
	if blockSize == 0 {
		blockSize = DefaultBlockSize
	}

	cfg := Config{
		Version:     StoreVersion,
		ID:          NewID(),
		BlockSize:   blockSize,
		Compression: compression,
	}

	return cfg, cfg.valid()
}

func (cfg Config) valid() error {
	if cfg.Version != StoreVersion {
		return errors.Errorf("unsupported store version %d", cfg.Version)
	}

	if cfg.BlockSize < minBlockSize || cfg.BlockSize > maxBlockSize {
		return errors.Errorf("invalid block size %d", cfg.BlockSize)
	}

	if cfg.ID.IsNull() {
		return errors.New("store has no ID")
	}

	return nil
}
