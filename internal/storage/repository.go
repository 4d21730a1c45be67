package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	primaryName  = "primary"
	backupPrefix = "backup_"
)

// ErrNoState is returned when no primary snapshot has been written yet
var ErrNoState = errors.New("no persisted state")

// Backup describes one timestamped snapshot
type Backup struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Size      int       `json:"size"`
}

// Repository stores opaque state blobs in SQLite
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new repository with SQLite
func NewRepository(dbPath string) (*Repository, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	repo := &Repository{db: db}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// migrate creates the database schema
func (r *Repository) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS state_snapshots (
			name VARCHAR(64) PRIMARY KEY,
			data BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
	}

	for _, migration := range migrations {
		if _, err := r.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// SavePrimary overwrites the primary snapshot
func (r *Repository) SavePrimary(ctx context.Context, data []byte) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO state_snapshots (name, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		primaryName, data, time.Now().Unix(),
	)
	return err
}

// LoadPrimary returns the primary snapshot
func (r *Repository) LoadPrimary(ctx context.Context) ([]byte, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT data FROM state_snapshots WHERE name = ?`, primaryName,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoState
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// SaveBackup writes a new timestamped snapshot. Existing backups are never replaced.
func (r *Repository) SaveBackup(ctx context.Context, at time.Time, data []byte) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO state_snapshots (name, data, updated_at) VALUES (?, ?, ?)`,
		fmt.Sprintf("%s%d", backupPrefix, at.Unix()), data, at.Unix(),
	)
	return err
}

// Backups lists the timestamped snapshots, newest first
func (r *Repository) Backups(ctx context.Context) ([]Backup, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT name, updated_at, length(data) FROM state_snapshots WHERE name LIKE ? ORDER BY updated_at DESC`,
		backupPrefix+"%",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var backups []Backup
	for rows.Next() {
		var b Backup
		var ts int64
		if err := rows.Scan(&b.Name, &ts, &b.Size); err != nil {
			return nil, err
		}
		if !strings.HasPrefix(b.Name, backupPrefix) {
			continue
		}
		b.CreatedAt = time.Unix(ts, 0).UTC()
		backups = append(backups, b)
	}

	return backups, rows.Err()
}
