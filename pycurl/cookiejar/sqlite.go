package cookiejar

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// SQLStore is the default, durable Store implementation, backed by SQLite
// via database/sql. Schema and algorithm ported from
// pycurl_session/cache.py's CacheDB. The connection pool is pinned to a
// single connection (grounded on erndmrc-spider2's SQLite idiom) since
// SQLite only ever has one effective writer; this also makes reads
// consistent with in-flight writes from the same process without extra
// locking in this package.
type SQLStore struct {
	db *sql.DB
}

// OpenSQLStore opens (creating if necessary) a cookie database at dsn. Pass
// "file::memory:?cache=shared" for an ephemeral, in-process session shared
// across goroutines.
func OpenSQLStore(dsn string) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("cookiejar: open %s: %w", dsn, err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) init() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS cookie (
	session_id TEXT NOT NULL,
	name       TEXT NOT NULL,
	value      TEXT NOT NULL,
	domain     TEXT NOT NULL,
	path       TEXT NOT NULL,
	expires    INTEGER NOT NULL DEFAULT 0
);
CREATE UNIQUE INDEX IF NOT EXISTS cookie_unique
	ON cookie(session_id, name, domain, path);
`)
	if err != nil {
		return fmt.Errorf("cookiejar: init schema: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *SQLStore) Get(ctx context.Context, sessionID string, u *url.URL, seed map[string]string) (map[string]string, error) {
	if len(seed) > 0 {
		var rows []*Cookie
		for name, value := range seed {
			rows = append(rows, &Cookie{
				SessionID: sessionID,
				Name:      name,
				Value:     value,
				Domain:    effectiveHost(u),
				Path:      "/",
			})
		}
		if err := s.Save(ctx, rows); err != nil {
			return nil, err
		}
	}

	candidates := candidateDomains(effectiveHost(u))
	placeholders := make([]string, len(candidates))
	args := make([]any, 0, len(candidates)+2)
	args = append(args, sessionID)
	for i, c := range candidates {
		placeholders[i] = "?"
		args = append(args, c)
	}
	args = append(args, nowUnix())

	query := fmt.Sprintf(`
SELECT name, value, path FROM cookie
WHERE session_id = ? AND domain IN (%s) AND (expires = 0 OR expires > ?)
ORDER BY domain, path`, strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("cookiejar: get: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, value, path string
		if err := rows.Scan(&name, &value, &path); err != nil {
			return nil, fmt.Errorf("cookiejar: scan: %w", err)
		}
		if !strings.HasPrefix(u.Path, path) {
			continue
		}
		out[name] = value
	}
	return out, rows.Err()
}

// Save implements Store.
func (s *SQLStore) Save(ctx context.Context, rows []*Cookie) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cookiejar: save begin: %w", err)
	}
	defer tx.Rollback()

	del, err := tx.PrepareContext(ctx, `DELETE FROM cookie WHERE session_id=? AND name=? AND domain=? AND path=?`)
	if err != nil {
		return err
	}
	defer del.Close()

	upsert, err := tx.PrepareContext(ctx, `
INSERT INTO cookie (session_id, name, value, domain, path, expires)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(session_id, name, domain, path) DO UPDATE SET value=excluded.value, expires=excluded.expires`)
	if err != nil {
		return err
	}
	defer upsert.Close()

	for _, c := range rows {
		if c.Value == deleteSentinel {
			if _, err := del.ExecContext(ctx, c.SessionID, c.Name, c.Domain, c.Path); err != nil {
				return fmt.Errorf("cookiejar: delete-on-sentinel: %w", err)
			}
			continue
		}
		if _, err := upsert.ExecContext(ctx, c.SessionID, c.Name, c.Value, c.Domain, c.Path, c.Expires); err != nil {
			return fmt.Errorf("cookiejar: upsert: %w", err)
		}
	}
	return tx.Commit()
}

// Delete implements Store.
func (s *SQLStore) Delete(ctx context.Context, keys []CookieKey) error {
	stmt, err := s.db.PrepareContext(ctx, `DELETE FROM cookie WHERE session_id=? AND name=? AND domain=? AND path=?`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, k := range keys {
		if _, err := stmt.ExecContext(ctx, k.SessionID, k.Name, k.Domain, k.Path); err != nil {
			return fmt.Errorf("cookiejar: delete: %w", err)
		}
	}
	return nil
}

// Clear implements Store.
func (s *SQLStore) Clear(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cookie WHERE session_id=?`, sessionID)
	if err != nil {
		return fmt.Errorf("cookiejar: clear: %w", err)
	}
	return nil
}

// Unset implements Store.
func (s *SQLStore) Unset(ctx context.Context, sessionID string, keys []UnsetKey) error {
	for _, k := range keys {
		if k.Path == "" {
			_, err := s.db.ExecContext(ctx, `DELETE FROM cookie WHERE session_id=? AND name=? AND domain=?`, sessionID, k.Name, k.Domain)
			if err != nil {
				return fmt.Errorf("cookiejar: unset: %w", err)
			}
			continue
		}
		_, err := s.db.ExecContext(ctx, `DELETE FROM cookie WHERE session_id=? AND name=? AND domain=? AND path=?`, sessionID, k.Name, k.Domain, k.Path)
		if err != nil {
			return fmt.Errorf("cookiejar: unset: %w", err)
		}
	}
	return nil
}

// Close implements Store.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
