package localstate

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"webinar-directory/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS liked (
    record_id TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS legacy_likes (
    record_id TEXT PRIMARY KEY,
    count     INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS pending (
    pos  INTEGER PRIMARY KEY,
    body TEXT NOT NULL
);
`

const metaVersionToken = "version_token"

// SQLite is a Repository backed by a single-file database.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the state database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("localstate: mkdir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("localstate: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("localstate: %s: %w", pragma, err)
		}
	}
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("localstate schema: %w", err)
		}
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Load(ctx context.Context) (*State, error) {
	st := New()

	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, metaVersionToken).Scan(&st.VersionToken)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("localstate: load token: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT record_id FROM liked`)
	if err != nil {
		return nil, fmt.Errorf("localstate: load liked: %w", err)
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("localstate: scan liked: %w", err)
		}
		st.Liked[id] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("localstate: load liked: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `SELECT record_id, count FROM legacy_likes`)
	if err != nil {
		return nil, fmt.Errorf("localstate: load legacy likes: %w", err)
	}
	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("localstate: scan legacy likes: %w", err)
		}
		st.LegacyLikes[id] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("localstate: load legacy likes: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `SELECT body FROM pending ORDER BY pos`)
	if err != nil {
		return nil, fmt.Errorf("localstate: load pending: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("localstate: scan pending: %w", err)
		}
		var r domain.Record
		if err := json.Unmarshal([]byte(body), &r); err != nil {
			return nil, fmt.Errorf("localstate: decode pending: %w", err)
		}
		st.Pending = append(st.Pending, r)
	}
	return st, rows.Err()
}

// Save replaces the stored state with s in one transaction.
func (s *SQLite) Save(ctx context.Context, st *State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("localstate: begin: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{`DELETE FROM liked`, `DELETE FROM legacy_likes`, `DELETE FROM pending`} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("localstate: %s: %w", stmt, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		metaVersionToken, st.VersionToken,
	); err != nil {
		return fmt.Errorf("localstate: save token: %w", err)
	}
	for _, id := range st.LikedIDs() {
		if _, err := tx.ExecContext(ctx, `INSERT INTO liked (record_id) VALUES (?)`, id); err != nil {
			return fmt.Errorf("localstate: save liked: %w", err)
		}
	}
	for id, n := range st.LegacyLikes {
		if _, err := tx.ExecContext(ctx, `INSERT INTO legacy_likes (record_id, count) VALUES (?, ?)`, id, n); err != nil {
			return fmt.Errorf("localstate: save legacy likes: %w", err)
		}
	}
	for i, r := range st.Pending {
		body, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("localstate: encode pending %s: %w", r.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO pending (pos, body) VALUES (?, ?)`, i, string(body)); err != nil {
			return fmt.Errorf("localstate: save pending: %w", err)
		}
	}
	return tx.Commit()
}
