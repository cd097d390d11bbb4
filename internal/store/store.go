// Package store persists assistant sessions keyed by id.
package store

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/sniprx/assistant/backend/internal/config"
	"github.com/sniprx/assistant/backend/internal/model/chat"
)

// UpdateFunc derives a patch from the current record, which is nil when id is absent. It may be
// called more than once for a single Update and must not retain current.
type UpdateFunc func(current *chat.Session) (chat.Patch, error)

// Store is a key-value map of sessions. Save performs a shallow merge of the patch into any
// existing record. Update runs the read, fn and the write as one atomic step per id, so
// concurrent updates to the same record are never lost.
type Store interface {
	ReadAll(ctx context.Context) (map[string]chat.Session, error)
	Get(ctx context.Context, id string) (*chat.Session, error)
	Save(ctx context.Context, id string, patch chat.Patch) (chat.Session, error)
	Update(ctx context.Context, id string, fn UpdateFunc) (chat.Session, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// Open builds the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", config.StoreFile:
		return NewFileStore(cfg.Path), nil
	case config.StoreSQLite:
		return OpenSQLite(ctx, cfg.SQLiteDSN)
	case config.StoreRedis:
		return OpenRedis(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
	default:
		return nil, errors.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

func staticPatch(patch chat.Patch) UpdateFunc {
	return func(*chat.Session) (chat.Patch, error) { return patch, nil }
}

func merge(existing *chat.Session, id string, patch chat.Patch) chat.Session {
	var record chat.Session
	if existing != nil {
		record = existing.Clone()
	}
	patch.Apply(&record)
	record.ID = id
	return record
}
