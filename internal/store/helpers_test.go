package store

import (
	"path/filepath"
	"testing"

	"github.com/sniprx/assistant/backend/internal/config"
)

func configFor(t *testing.T, driver string) config.StoreConfig {
	t.Helper()
	return config.StoreConfig{
		Driver: driver,
		Path:   filepath.Join(t.TempDir(), "sessions.json"),
	}
}
