// Package store persists resolution audit records and catalog snapshot
// metadata.
package store

import (
	"context"
	"time"

	"github.com/rxbridge/rxmatch/internal/models"
)

// Snapshot records one catalog feed load.
type Snapshot struct {
	ID         int64     `json:"id"`
	SourcePath string    `json:"source_path"`
	Loaded     int       `json:"loaded"`
	Skipped    int       `json:"skipped"`
	Rejected   int       `json:"rejected"`
	Concepts   int       `json:"concepts"`
	LoadedAt   time.Time `json:"loaded_at"`
}

// Store is the persistence interface for resolutions and catalog snapshots.
type Store interface {
	SaveResolution(ctx context.Context, res *models.Resolution) error
	GetResolution(ctx context.Context, id string) (*models.Resolution, error)
	ListResolutions(ctx context.Context, offset, limit int) ([]*models.Resolution, error)
	CountResolutions(ctx context.Context) (int64, error)

	RecordSnapshot(ctx context.Context, snap *Snapshot) error
	LatestSnapshot(ctx context.Context) (*Snapshot, error)

	Close() error
}
