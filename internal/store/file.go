package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/sniprx/assistant/backend/internal/model/chat"
)

// FileStore keeps every session in one JSON object on disk. Each operation reads the whole
// file and mutations rewrite it. The mutex only serializes callers within this process.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store rooted at path. Nothing is touched until the first call.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file location.
func (s *FileStore) Path() string {
	return s.path
}

// ReadAll loads the mapping. A missing or unparsable file reads as empty.
func (s *FileStore) ReadAll(_ context.Context) (map[string]chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked(), nil
}

// WriteAll replaces the file contents with sessions.
func (s *FileStore) WriteAll(_ context.Context, sessions map[string]chat.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(sessions)
}

// Get returns the record for id or nil.
func (s *FileStore) Get(ctx context.Context, id string) (*chat.Session, error) {
	all, err := s.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	session, ok := all[id]
	if !ok {
		return nil, nil
	}
	return &session, nil
}

// Save merges patch into the record for id and persists the whole file.
func (s *FileStore) Save(ctx context.Context, id string, patch chat.Patch) (chat.Session, error) {
	return s.Update(ctx, id, staticPatch(patch))
}

// Update applies fn to the record for id while holding the store mutex.
func (s *FileStore) Update(_ context.Context, id string, fn UpdateFunc) (chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.readLocked()
	var existing *chat.Session
	if current, ok := all[id]; ok {
		existing = &current
	}
	patch, err := fn(existing)
	if err != nil {
		return chat.Session{}, err
	}
	record := merge(existing, id, patch)
	all[id] = record

	if err := s.writeLocked(all); err != nil {
		return chat.Session{}, err
	}
	return record.Clone(), nil
}

// Delete removes id. Missing ids are not an error; the file is rewritten either way.
func (s *FileStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.readLocked()
	delete(all, id)
	return s.writeLocked(all)
}

// Close is a no-op for the file backend.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) readLocked() map[string]chat.Session {
	sessions := make(map[string]chat.Session)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", s.path).Msg("session store unreadable, treating as empty")
		}
		return sessions
	}
	if len(data) == 0 {
		return sessions
	}

	if err := json.Unmarshal(data, &sessions); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("session store unparsable, treating as empty")
		return make(map[string]chat.Session)
	}
	for id, session := range sessions {
		if session.Messages == nil {
			session.Messages = []chat.Message{}
			sessions[id] = session
		}
	}
	return sessions
}

func (s *FileStore) writeLocked(sessions map[string]chat.Session) error {
	if sessions == nil {
		sessions = map[string]chat.Session{}
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create store directory %s", dir)
	}

	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode sessions")
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp store file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "write temp store file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "close temp store file")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "replace store file %s", s.path)
	}
	return nil
}
