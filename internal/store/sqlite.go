package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rxbridge/rxmatch/internal/models"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes
// the schema. Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS resolutions (
		id TEXT PRIMARY KEY,
		query TEXT NOT NULL,
		generic TEXT,
		branded TEXT,
		attempts TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_resolutions_created_at ON resolutions(created_at);

	CREATE TABLE IF NOT EXISTS catalog_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_path TEXT NOT NULL,
		loaded INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		rejected INTEGER NOT NULL,
		concepts INTEGER NOT NULL,
		loaded_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_loaded_at ON catalog_snapshots(loaded_at);
	`
	_, err := db.Exec(schema)
	return err
}

// SaveResolution inserts a resolution audit record.
func (s *SQLiteStore) SaveResolution(ctx context.Context, res *models.Resolution) error {
	genericJSON, err := marshalNullable(res.Generic)
	if err != nil {
		return fmt.Errorf("failed to marshal generic concept: %w", err)
	}
	brandedJSON, err := marshalNullable(res.Branded)
	if err != nil {
		return fmt.Errorf("failed to marshal branded concept: %w", err)
	}
	attemptsJSON, err := json.Marshal(res.AttemptsLog)
	if err != nil {
		return fmt.Errorf("failed to marshal attempts log: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO resolutions (id, query, generic, branded, attempts, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		res.ID, res.Query, genericJSON, brandedJSON, string(attemptsJSON), time.Now(),
	)
	return err
}

// GetResolution returns a resolution by ID.
func (s *SQLiteStore) GetResolution(ctx context.Context, id string) (*models.Resolution, error) {
	var res models.Resolution
	var genericJSON, brandedJSON sql.NullString
	var attemptsJSON string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, query, generic, branded, attempts
		 FROM resolutions WHERE id = ?`, id,
	).Scan(&res.ID, &res.Query, &genericJSON, &brandedJSON, &attemptsJSON)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("resolution not found: %s", id)
	}
	if err != nil {
		return nil, err
	}

	if err := unmarshalResolution(&res, genericJSON, brandedJSON, attemptsJSON); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListResolutions returns resolutions newest first with offset and limit.
func (s *SQLiteStore) ListResolutions(ctx context.Context, offset, limit int) ([]*models.Resolution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, query, generic, branded, attempts
		 FROM resolutions ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Resolution
	for rows.Next() {
		var res models.Resolution
		var genericJSON, brandedJSON sql.NullString
		var attemptsJSON string
		if err := rows.Scan(&res.ID, &res.Query, &genericJSON, &brandedJSON, &attemptsJSON); err != nil {
			return nil, err
		}
		if err := unmarshalResolution(&res, genericJSON, brandedJSON, attemptsJSON); err != nil {
			return nil, err
		}
		out = append(out, &res)
	}
	return out, rows.Err()
}

// CountResolutions returns the total number of stored resolutions.
func (s *SQLiteStore) CountResolutions(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM resolutions`).Scan(&count)
	return count, err
}

// RecordSnapshot inserts a catalog snapshot record and fills in its ID.
func (s *SQLiteStore) RecordSnapshot(ctx context.Context, snap *Snapshot) error {
	if snap.LoadedAt.IsZero() {
		snap.LoadedAt = time.Now()
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO catalog_snapshots (source_path, loaded, skipped, rejected, concepts, loaded_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		snap.SourcePath, snap.Loaded, snap.Skipped, snap.Rejected, snap.Concepts, snap.LoadedAt,
	)
	if err != nil {
		return err
	}
	snap.ID, _ = result.LastInsertId()
	return nil
}

// LatestSnapshot returns the most recent catalog snapshot, or nil when the
// catalog has never been loaded.
func (s *SQLiteStore) LatestSnapshot(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	err := s.db.QueryRowContext(ctx,
		`SELECT id, source_path, loaded, skipped, rejected, concepts, loaded_at
		 FROM catalog_snapshots ORDER BY id DESC LIMIT 1`,
	).Scan(&snap.ID, &snap.SourcePath, &snap.Loaded, &snap.Skipped, &snap.Rejected, &snap.Concepts, &snap.LoadedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func marshalNullable(rc *models.ResolvedConcept) (sql.NullString, error) {
	if rc == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(rc)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalResolution(res *models.Resolution, genericJSON, brandedJSON sql.NullString, attemptsJSON string) error {
	if genericJSON.Valid {
		res.Generic = &models.ResolvedConcept{}
		if err := json.Unmarshal([]byte(genericJSON.String), res.Generic); err != nil {
			return fmt.Errorf("failed to unmarshal generic concept: %w", err)
		}
	}
	if brandedJSON.Valid {
		res.Branded = &models.ResolvedConcept{}
		if err := json.Unmarshal([]byte(brandedJSON.String), res.Branded); err != nil {
			return fmt.Errorf("failed to unmarshal branded concept: %w", err)
		}
	}
	if attemptsJSON != "" {
		if err := json.Unmarshal([]byte(attemptsJSON), &res.AttemptsLog); err != nil {
			return fmt.Errorf("failed to unmarshal attempts log: %w", err)
		}
	}
	return nil
}
