// Package libsql provides a SQL-backed store on top of libSQL (local file,
// in-memory, or remote Turso database).
package libsql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/lowc1012/window-log-limiter/internal/store"
)

const driverName = "libsql"

var (
	_ store.Store   = (*Store)(nil)
	_ store.Pinger  = (*Store)(nil)
	_ store.Deleter = (*Store)(nil)
	_ store.Swapper = (*Store)(nil)
)

const schema = `
CREATE TABLE IF NOT EXISTS request_logs (
	client_key TEXT PRIMARY KEY,
	payload    BLOB NOT NULL,
	updated_at INTEGER NOT NULL
)`

type Config struct {
	// Path is a local database file, or ":memory:".
	Path string
	// URL points at a remote database and takes precedence over Path.
	URL       string
	AuthToken string
}

type Store struct {
	DB  *sql.DB
	now func() time.Time
}

// Open connects, pings and creates the request_logs table if needed.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open libsql store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping libsql store: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate libsql store: %w", err)
	}

	return &Store{DB: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var payload []byte
	row := s.DB.QueryRowContext(ctx, `SELECT payload FROM request_logs WHERE client_key = ?`, key)
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("fetch request log: %w", err)
	}
	return payload, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO request_logs (client_key, payload, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(client_key) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`, key, value, s.now().Unix())
	if err != nil {
		return fmt.Errorf("store request log: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM request_logs WHERE client_key = ?`, key); err != nil {
		return fmt.Errorf("delete request log: %w", err)
	}
	return nil
}

func (s *Store) CompareAndSwap(ctx context.Context, key string, prev, next []byte) (bool, error) {
	var (
		res sql.Result
		err error
	)
	if prev == nil {
		res, err = s.DB.ExecContext(ctx, `
			INSERT INTO request_logs (client_key, payload, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(client_key) DO NOTHING
		`, key, next, s.now().Unix())
	} else {
		res, err = s.DB.ExecContext(ctx, `
			UPDATE request_logs SET payload = ?, updated_at = ?
			WHERE client_key = ? AND payload = ?
		`, next, s.now().Unix(), key, prev)
	}
	if err != nil {
		return false, fmt.Errorf("swap request log: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("swap request log: %w", err)
	}
	return affected == 1, nil
}

func buildDSN(cfg Config) (string, error) {
	if raw := strings.TrimSpace(cfg.URL); raw != "" {
		token := strings.TrimSpace(cfg.AuthToken)
		if token == "" {
			return raw, nil
		}
		u, err := url.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("parse libsql url: %w", err)
		}
		q := u.Query()
		q.Set("authToken", token)
		u.RawQuery = q.Encode()
		return u.String(), nil
	}

	path := strings.TrimSpace(cfg.Path)
	switch {
	case path == "":
		return "", fmt.Errorf("libsql path or url is required")
	case path == ":memory:":
		return path, nil
	case strings.HasPrefix(path, "file:"):
		return path, nil
	default:
		return "file:" + path, nil
	}
}
