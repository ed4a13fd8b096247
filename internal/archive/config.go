package archive

import (
	"path/filepath"
	"time"

	"codeberg.org/mutker/anemone/internal/errors"
)

const (
	defaultDirPerm      = 0o755
	defaultBatchSize    = 256
	defaultBatchTimeout = 5 * time.Second
	backupDirName       = "backups"
)

type Config struct {
	DBPath string
	// BatchSize flushes the buffer once this many batches are pending
	BatchSize int
	// BatchTimeout flushes pending batches periodically when positive
	BatchTimeout time.Duration
	Enabled      bool
}

func DefaultConfig() Config {
	return Config{
		BatchSize:    defaultBatchSize,
		BatchTimeout: defaultBatchTimeout,
		Enabled:      false,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if !c.Enabled {
		return nil
	}
	if c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	if c.BatchSize < 1 {
		return errFactory.WithData(ErrInvalidConfig, c.BatchSize)
	}
	return nil
}

// backupDir sits next to the database file
func (c Config) backupDir() string {
	return filepath.Join(filepath.Dir(c.DBPath), backupDirName)
}
