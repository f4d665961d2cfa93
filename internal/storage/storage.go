package storage

import (
	"context"
	"errors"

	"launchscope/internal/model"
	"launchscope/internal/registry"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateKey is returned when an insert hits an existing key.
	ErrDuplicateKey = errors.New("duplicate key")
)

// LaunchPublisher is the sole write path for launch records.
// With overwrite=false an existing record for the same chain and token is left
// untouched and UpsertLaunch reports inserted=false.
type LaunchPublisher interface {
	UpsertLaunch(ctx context.Context, rec model.LaunchRecord, overwrite bool) (inserted bool, err error)
	Exists(ctx context.Context, chain model.Chain, token string) (bool, error)
}

// StatsStore reads launches and replaces their mutable statistics.
type StatsStore interface {
	GetLaunch(ctx context.Context, id string) (model.LaunchRecord, error)
	ListLaunches(ctx context.Context, chain model.Chain) ([]model.LaunchRecord, error)
	UpdateStats(ctx context.Context, id string, stats model.TokenStats) error
}

// StatsHistory keeps every computed statistics snapshot.
type StatsHistory interface {
	AppendStats(ctx context.Context, rec model.LaunchRecord, stats model.TokenStats) error
}

// AuditSink persists data quality degradations.
type AuditSink interface {
	RecordDegradation(ctx context.Context, d model.Degradation) error
}

// CheckpointStore persists backfill progress by name.
type CheckpointStore interface {
	LoadCheckpoint(ctx context.Context, name string) (uint64, bool, error)
	SaveCheckpoint(ctx context.Context, name string, position uint64) error
}

// LaunchKey is the identity of a launch across stores.
func LaunchKey(chain model.Chain, token string) string {
	return string(chain) + ":" + registry.Normalize(chain, token)
}
