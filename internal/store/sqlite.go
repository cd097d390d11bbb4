package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/sniprx/assistant/backend/internal/model/chat"
)

// SQLiteStore keeps one JSON document per session row. Update reads and writes inside one
// transaction on the single pooled connection, so writers to the same id serialize.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite connects to dsn and creates the sessions table when missing.
func OpenSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, errors.New("sqlite dsn must be provided")
	}
	if path := sqlitePath(dsn); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "create sqlite directory")
		}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite database")
	}
	// One writer avoids SQLITE_BUSY on concurrent saves.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping sqlite database")
	}

	const schema = `CREATE TABLE IF NOT EXISTS assistant_sessions (
		id TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	)`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrate sqlite database")
	}

	return &SQLiteStore{db: db}, nil
}

// ReadAll returns every stored session.
func (s *SQLiteStore) ReadAll(ctx context.Context) (map[string]chat.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, data FROM assistant_sessions`)
	if err != nil {
		return nil, errors.Wrap(err, "query sessions")
	}
	defer rows.Close()

	sessions := make(map[string]chat.Session)
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, errors.Wrap(err, "scan session")
		}
		session, err := decodeSession(id, data)
		if err != nil {
			return nil, err
		}
		sessions[id] = session
	}
	return sessions, errors.Wrap(rows.Err(), "iterate sessions")
}

// Get returns the record for id or nil.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*chat.Session, error) {
	return getRow(ctx, s.db, id)
}

// Save merges patch into the stored record inside a transaction.
func (s *SQLiteStore) Save(ctx context.Context, id string, patch chat.Patch) (chat.Session, error) {
	return s.Update(ctx, id, staticPatch(patch))
}

// Update applies fn to the stored record inside a transaction.
func (s *SQLiteStore) Update(ctx context.Context, id string, fn UpdateFunc) (chat.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return chat.Session{}, errors.Wrap(err, "begin transaction")
	}
	defer tx.Rollback()

	existing, err := getRow(ctx, tx, id)
	if err != nil {
		return chat.Session{}, err
	}
	patch, err := fn(existing)
	if err != nil {
		return chat.Session{}, err
	}
	record := merge(existing, id, patch)

	data, err := json.Marshal(record)
	if err != nil {
		return chat.Session{}, errors.Wrap(err, "encode session")
	}

	const upsert = `INSERT INTO assistant_sessions (id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`
	if _, err := tx.ExecContext(ctx, upsert, id, string(data), time.Now().UTC()); err != nil {
		return chat.Session{}, errors.Wrapf(err, "save session %s", id)
	}
	if err := tx.Commit(); err != nil {
		return chat.Session{}, errors.Wrap(err, "commit session")
	}
	return record, nil
}

// Delete removes id when present.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM assistant_sessions WHERE id = ?`, id)
	return errors.Wrapf(err, "delete session %s", id)
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRow(ctx context.Context, q queryer, id string) (*chat.Session, error) {
	var data string
	err := q.QueryRowContext(ctx, `SELECT data FROM assistant_sessions WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
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

func decodeSession(id, data string) (chat.Session, error) {
	var session chat.Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return chat.Session{}, errors.Wrapf(err, "decode session %s", id)
	}
	session.ID = id
	if session.Messages == nil {
		session.Messages = []chat.Message{}
	}
	return session, nil
}

// sqlitePath extracts the filesystem path from a file DSN, or "" for in-memory databases.
func sqlitePath(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return ""
	}
	return path
}
