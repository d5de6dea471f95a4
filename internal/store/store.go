// Package store persists saved story sessions in SQLite.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/dgallion1/folio/internal/story"
)

// ErrNotFound is returned when no save exists for an id.
var ErrNotFound = errors.New("save not found")

// Record is a saved session.
type Record struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Genre        string            `json:"genre"`
	Premise      string            `json:"premise,omitempty"`
	Mode         story.Mode        `json:"mode"`
	CreatedAt    time.Time         `json:"createdDate"`
	UpdatedAt    time.Time         `json:"updatedDate"`
	Fragments    []story.Fragment  `json:"fragmentHistory"`
	Characters   []story.Character `json:"characters"`
	StatsHistory []story.Stats     `json:"statsHistory"`
}

// Summary is the listing form of a Record.
type Summary struct {
	ID        string     `json:"id" db:"id"`
	Title     string     `json:"title" db:"title"`
	Genre     string     `json:"genre" db:"genre"`
	Mode      story.Mode `json:"mode" db:"mode"`
	Fragments int        `json:"fragments" db:"fragment_count"`
	CreatedAt time.Time  `json:"createdDate" db:"created_at"`
	UpdatedAt time.Time  `json:"updatedDate" db:"updated_at"`
}

type row struct {
	ID             string    `db:"id"`
	Title          string    `db:"title"`
	Genre          string    `db:"genre"`
	Premise        string    `db:"premise"`
	Mode           string    `db:"mode"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
	FragmentCount  int       `db:"fragment_count"`
	FragmentsJSON  string    `db:"fragments_json"`
	CharactersJSON string    `db:"characters_json"`
	StatsJSON      string    `db:"stats_json"`
}

// Store wraps a SQLite connection holding saved sessions.
type Store struct {
	conn *sqlx.DB
}

// Open opens or creates the database at path, creating parent directories.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &Store{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) migrate() error {
	_, err := s.conn.Exec(`
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		genre TEXT NOT NULL,
		premise TEXT NOT NULL DEFAULT '',
		mode TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		fragment_count INTEGER NOT NULL,
		fragments_json TEXT NOT NULL,
		characters_json TEXT NOT NULL,
		stats_json TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);
	`)
	return err
}

// Save inserts or replaces a record. UpdatedAt is set to now.
func (s *Store) Save(rec Record) error {
	if rec.ID == "" {
		return fmt.Errorf("save: record id is required")
	}
	fragments, err := json.Marshal(nonNil(rec.Fragments))
	if err != nil {
		return fmt.Errorf("marshal fragments: %w", err)
	}
	characters, err := json.Marshal(nonNil(rec.Characters))
	if err != nil {
		return fmt.Errorf("marshal characters: %w", err)
	}
	stats, err := json.Marshal(nonNil(rec.StatsHistory))
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}

	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}

	_, err = s.conn.NamedExec(`
	INSERT INTO sessions (id, title, genre, premise, mode, created_at, updated_at, fragment_count, fragments_json, characters_json, stats_json)
	VALUES (:id, :title, :genre, :premise, :mode, :created_at, :updated_at, :fragment_count, :fragments_json, :characters_json, :stats_json)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		genre = excluded.genre,
		premise = excluded.premise,
		mode = excluded.mode,
		updated_at = excluded.updated_at,
		fragment_count = excluded.fragment_count,
		fragments_json = excluded.fragments_json,
		characters_json = excluded.characters_json,
		stats_json = excluded.stats_json
	`, row{
		ID:             rec.ID,
		Title:          rec.Title,
		Genre:          rec.Genre,
		Premise:        rec.Premise,
		Mode:           string(rec.Mode),
		CreatedAt:      rec.CreatedAt.UTC(),
		UpdatedAt:      now,
		FragmentCount:  len(rec.Fragments),
		FragmentsJSON:  string(fragments),
		CharactersJSON: string(characters),
		StatsJSON:      string(stats),
	})
	if err != nil {
		return fmt.Errorf("save %s: %w", rec.ID, err)
	}
	return nil
}

// Load reads one record.
func (s *Store) Load(id string) (Record, error) {
	var r row
	err := s.conn.Get(&r, `SELECT * FROM sessions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("load %s: %w", id, err)
	}

	rec := Record{
		ID:        r.ID,
		Title:     r.Title,
		Genre:     r.Genre,
		Premise:   r.Premise,
		Mode:      story.Mode(r.Mode),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(r.FragmentsJSON), &rec.Fragments); err != nil {
		return Record{}, fmt.Errorf("unmarshal fragments: %w", err)
	}
	if err := json.Unmarshal([]byte(r.CharactersJSON), &rec.Characters); err != nil {
		return Record{}, fmt.Errorf("unmarshal characters: %w", err)
	}
	if err := json.Unmarshal([]byte(r.StatsJSON), &rec.StatsHistory); err != nil {
		return Record{}, fmt.Errorf("unmarshal stats: %w", err)
	}
	return rec, nil
}

// List returns every save, most recently updated first.
func (s *Store) List() ([]Summary, error) {
	var out []Summary
	err := s.conn.Select(&out, `
	SELECT id, title, genre, mode, fragment_count, created_at, updated_at
	FROM sessions ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list saves: %w", err)
	}
	return out, nil
}

// Delete removes a save.
func (s *Store) Delete(id string) error {
	res, err := s.conn.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
