// Package memory provides in-process stores for tests and dry runs.
package memory

import (
	"context"
	"sort"
	"sync"

	"launchscope/internal/model"
	"launchscope/internal/storage"
)

// Store implements the storage interfaces in memory.
type Store struct {
	mu           sync.RWMutex
	byKey        map[string]model.LaunchRecord
	keyByID      map[string]string
	history      []model.TokenStats
	degradations []model.Degradation
	checkpoints  map[string]uint64
	upserts      int
}

func NewStore() *Store {
	return &Store{
		byKey:       make(map[string]model.LaunchRecord),
		keyByID:     make(map[string]string),
		checkpoints: make(map[string]uint64),
	}
}

// UpsertLaunch implements storage.LaunchPublisher.
func (s *Store) UpsertLaunch(_ context.Context, rec model.LaunchRecord, overwrite bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	key := storage.LaunchKey(rec.Chain, rec.Token)
	if _, ok := s.byKey[key]; ok && !overwrite {
		return false, nil
	}
	s.byKey[key] = rec
	s.keyByID[rec.ID] = key
	return true, nil
}

// Exists implements storage.LaunchPublisher.
func (s *Store) Exists(_ context.Context, chain model.Chain, token string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byKey[storage.LaunchKey(chain, token)]
	return ok, nil
}

// GetLaunch implements storage.StatsStore.
func (s *Store) GetLaunch(_ context.Context, id string) (model.LaunchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keyByID[id]
	if !ok {
		return model.LaunchRecord{}, storage.ErrNotFound
	}
	return s.byKey[key], nil
}

// ListLaunches implements storage.StatsStore.
func (s *Store) ListLaunches(_ context.Context, chain model.Chain) ([]model.LaunchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.LaunchRecord, 0, len(s.byKey))
	for _, rec := range s.byKey {
		if chain == "" || rec.Chain == chain {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LaunchedAt.Before(out[j].LaunchedAt) })
	return out, nil
}

// UpdateStats implements storage.StatsStore.
func (s *Store) UpdateStats(_ context.Context, id string, stats model.TokenStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.keyByID[id]
	if !ok {
		return storage.ErrNotFound
	}
	rec := s.byKey[key]
	rec.Stats = stats
	s.byKey[key] = rec
	return nil
}

// AppendStats implements storage.StatsHistory.
func (s *Store) AppendStats(_ context.Context, _ model.LaunchRecord, stats model.TokenStats) error {
	s.mu.Lock()
	s.history = append(s.history, stats)
	s.mu.Unlock()
	return nil
}

// RecordDegradation implements storage.AuditSink.
func (s *Store) RecordDegradation(_ context.Context, d model.Degradation) error {
	s.mu.Lock()
	s.degradations = append(s.degradations, d)
	s.mu.Unlock()
	return nil
}

// LoadCheckpoint implements storage.CheckpointStore.
func (s *Store) LoadCheckpoint(_ context.Context, name string) (uint64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.checkpoints[name]
	return pos, ok, nil
}

// SaveCheckpoint implements storage.CheckpointStore.
func (s *Store) SaveCheckpoint(_ context.Context, name string, position uint64) error {
	s.mu.Lock()
	s.checkpoints[name] = position
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored launches.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byKey)
}

// Upserts returns how many UpsertLaunch calls were made.
func (s *Store) Upserts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.upserts
}

// Degradations returns a copy of recorded degradations.
func (s *Store) Degradations() []model.Degradation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Degradation(nil), s.degradations...)
}

// History returns a copy of appended stats snapshots.
func (s *Store) History() []model.TokenStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.TokenStats(nil), s.history...)
}
