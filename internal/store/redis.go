package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	redis "github.com/redis/go-redis/v9"

	"github.com/sniprx/assistant/backend/internal/model/chat"
)

// RedisOptions configures the redis backend.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RedisStore keeps all sessions in one hash. Update uses WATCH on the hash, so a concurrent
// write makes the transaction fail and the whole read-modify-write is retried.
type RedisStore struct {
	client *redis.Client
	key    string
}

const maxUpdateAttempts = 100

// hashGetter is satisfied by both *redis.Client and *redis.Tx.
type hashGetter interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
}

// OpenRedis connects and pings the server.
func OpenRedis(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	addr := opts.Addr
	if addr == "" {
		addr = "127.0.0.1:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "ping redis %s", addr)
	}

	return NewRedisStore(client, opts.Prefix), nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, key: prefix + "sessions"}
}

// ReadAll returns every session in the hash.
func (s *RedisStore) ReadAll(ctx context.Context) (map[string]chat.Session, error) {
	raw, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, errors.Wrap(err, "load sessions")
	}

	sessions := make(map[string]chat.Session, len(raw))
	for id, data := range raw {
		session, err := decodeSession(id, data)
		if err != nil {
			return nil, err
		}
		sessions[id] = session
	}
	return sessions, nil
}

// Get returns the record for id or nil.
func (s *RedisStore) Get(ctx context.Context, id string) (*chat.Session, error) {
	return s.get(ctx, s.client, id)
}

// Save merges patch into the stored record with an optimistic transaction.
func (s *RedisStore) Save(ctx context.Context, id string, patch chat.Patch) (chat.Session, error) {
	return s.Update(ctx, id, staticPatch(patch))
}

// Update applies fn to the stored record with an optimistic transaction.
func (s *RedisStore) Update(ctx context.Context, id string, fn UpdateFunc) (chat.Session, error) {
	var record chat.Session

	txf := func(tx *redis.Tx) error {
		existing, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		patch, err := fn(existing)
		if err != nil {
			return err
		}
		record = merge(existing, id, patch)

		data, err := json.Marshal(record)
		if err != nil {
			return errors.Wrap(err, "encode session")
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, s.key, id, data)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, s.key)
		if err == nil {
			return record, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return chat.Session{}, errors.Wrapf(err, "save session %s", id)
	}
	return chat.Session{}, errors.Errorf("save session %s: too much contention", id)
}

// Delete removes id when present.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return errors.Wrapf(s.client.HDel(ctx, s.key, id).Err(), "delete session %s", id)
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) get(ctx context.Context, c hashGetter, id string) (*chat.Session, error) {
	data, err := c.HGet(ctx, s.key, id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load session %s", id)
	}
	session, err := decodeSession(id, data)
	if err != nil {
		return nil, err
	}
	return &session, nil
}
