package pkg

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/skillcheck/session-engine/internal/config"
	"github.com/skillcheck/session-engine/internal/store"
)

func NewBoltStore(cfg *config.Config) (*store.BoltStore, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return store.NewBoltStore(filepath.Join(cfg.DataDir, "progress.db"))
}
