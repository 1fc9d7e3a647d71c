// Package store keeps numbered revisions of saved projects in a SQLite
// database. Each revision holds the canonical JSON layout produced by
// package persist.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/chazu/kerf/pkg/persist"
	"github.com/chazu/kerf/pkg/store/migrations"
)

// ErrNotFound is returned for unknown projects and revisions.
var ErrNotFound = errors.New("not found")

// Revision describes one stored revision.
type Revision struct {
	Project   string    `json:"project"`
	Number    int       `json:"number"`
	Version   int       `json:"version"`
	Kernel    string    `json:"kernel"`
	Message   string    `json:"message"`
	Features  int       `json:"features"`
	Digest    string    `json:"digest"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store is a revision database.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open opens or creates the database at path and applies pending
// migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, path: path, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations: %w", err)
	}
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}
		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(string(body)); err != nil {
			tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", name, err)
		}
	}
	return nil
}

// SchemaVersion returns the newest applied migration.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v)
	return v, err
}

// Commit stores rec as the next revision of project. When rec is identical
// to the latest revision nothing is written and the latest is returned.
func (s *Store) Commit(ctx context.Context, project, message string, rec *persist.Record) (Revision, error) {
	if project == "" {
		return Revision{}, errors.New("project name is empty")
	}
	body, err := persist.Marshal(rec, persist.JSON)
	if err != nil {
		return Revision{}, err
	}
	sum := sha256.Sum256(body)
	digest := hex.EncodeToString(sum[:])

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Revision{}, fmt.Errorf("beginning commit: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO projects (name, created_at) VALUES (?, ?) ON CONFLICT(name) DO NOTHING",
		project, now); err != nil {
		return Revision{}, fmt.Errorf("saving project: %w", err)
	}

	latest, err := scanRevision(tx.QueryRowContext(ctx, selectRevision+`
		WHERE project = ? ORDER BY number DESC LIMIT 1`, project))
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return Revision{}, err
	case latest.Digest == digest:
		return latest, nil
	}

	rev := Revision{
		Project:   project,
		Number:    latest.Number + 1,
		Version:   rec.Version,
		Kernel:    rec.Kernel,
		Message:   message,
		Features:  len(rec.Features),
		Digest:    digest,
		CreatedAt: now,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO revisions (project, number, version, kernel, message, features, body, digest, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rev.Project, rev.Number, rev.Version, rev.Kernel, rev.Message, rev.Features, string(body), rev.Digest, rev.CreatedAt)
	if err != nil {
		return Revision{}, fmt.Errorf("saving revision: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Revision{}, fmt.Errorf("committing revision: %w", err)
	}
	return rev, nil
}

const selectRevision = `
	SELECT project, number, version, kernel, message, features, digest, created_at
	FROM revisions`

func scanRevision(row interface{ Scan(...any) error }) (Revision, error) {
	var r Revision
	err := row.Scan(&r.Project, &r.Number, &r.Version, &r.Kernel, &r.Message, &r.Features, &r.Digest, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Revision{}, ErrNotFound
	}
	if err != nil {
		return Revision{}, fmt.Errorf("scanning revision: %w", err)
	}
	return r, nil
}

// List returns the revisions of project, oldest first.
func (s *Store) List(ctx context.Context, project string) ([]Revision, error) {
	rows, err := s.db.QueryContext(ctx, selectRevision+`
		WHERE project = ? ORDER BY number`, project)
	if err != nil {
		return nil, fmt.Errorf("listing revisions: %w", err)
	}
	defer rows.Close()

	var out []Revision
	for rows.Next() {
		r, err := scanRevision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing revisions: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("project %q: %w", project, ErrNotFound)
	}
	return out, nil
}

// Projects returns every project name in alphabetical order.
func (s *Store) Projects(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM projects ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scanning project: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// Get loads revision number of project. Number 0 selects the latest.
func (s *Store) Get(ctx context.Context, project string, number int) (*persist.Record, Revision, error) {
	query := selectRevision + " WHERE project = ? AND number = ?"
	args := []any{project, number}
	if number == 0 {
		query = selectRevision + " WHERE project = ? ORDER BY number DESC LIMIT 1"
		args = args[:1]
	}
	rev, err := scanRevision(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, Revision{}, fmt.Errorf("project %q revision %d: %w", project, number, ErrNotFound)
		}
		return nil, Revision{}, err
	}

	var body string
	if err := s.db.QueryRowContext(ctx,
		"SELECT body FROM revisions WHERE project = ? AND number = ?",
		rev.Project, rev.Number).Scan(&body); err != nil {
		return nil, Revision{}, fmt.Errorf("reading revision body: %w", err)
	}
	rec, err := persist.Unmarshal([]byte(body), persist.JSON)
	if err != nil {
		return nil, Revision{}, fmt.Errorf("project %q revision %d: %w", project, rev.Number, err)
	}
	return rec, rev, nil
}

// Delete removes a project and all its revisions.
func (s *Store) Delete(ctx context.Context, project string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM projects WHERE name = ?", project)
	if err != nil {
		return fmt.Errorf("deleting project: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting project: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("project %q: %w", project, ErrNotFound)
	}
	return nil
}
