package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"launchscope/internal/model"
)

// JsonlPublisher appends launch records to a JSONL file. The latest line for a
// launch wins when the file is reloaded.
type JsonlPublisher struct {
	path string

	mu      sync.Mutex
	byKey   map[string]model.LaunchRecord
	keyByID map[string]string
}

// OpenJsonlPublisher loads existing records from path, if any.
func OpenJsonlPublisher(path string) (*JsonlPublisher, error) {
	p := &JsonlPublisher{
		path:    path,
		byKey:   make(map[string]model.LaunchRecord),
		keyByID: make(map[string]string),
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return p, nil
		}
		return nil, fmt.Errorf("open launches file: %w", err)
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	lineNo := 0
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			lineNo++
			var rec model.LaunchRecord
			if jsonErr := json.Unmarshal(line, &rec); jsonErr != nil {
				return nil, fmt.Errorf("parse launches line %d: %w", lineNo, jsonErr)
			}
			p.index(rec)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read launches file: %w", err)
		}
	}
	return p, nil
}

func (p *JsonlPublisher) index(rec model.LaunchRecord) {
	key := LaunchKey(rec.Chain, rec.Token)
	p.byKey[key] = rec
	p.keyByID[rec.ID] = key
}

// UpsertLaunch implements LaunchPublisher.
func (p *JsonlPublisher) UpsertLaunch(_ context.Context, rec model.LaunchRecord, overwrite bool) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := LaunchKey(rec.Chain, rec.Token)
	if _, ok := p.byKey[key]; ok && !overwrite {
		return false, nil
	}
	if err := appendLines(p.path, []any{rec}); err != nil {
		return false, err
	}
	p.index(rec)
	return true, nil
}

// Exists implements LaunchPublisher.
func (p *JsonlPublisher) Exists(_ context.Context, chain model.Chain, token string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.byKey[LaunchKey(chain, token)]
	return ok, nil
}

// GetLaunch implements StatsStore.
func (p *JsonlPublisher) GetLaunch(_ context.Context, id string) (model.LaunchRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key, ok := p.keyByID[id]
	if !ok {
		return model.LaunchRecord{}, ErrNotFound
	}
	return p.byKey[key], nil
}

// ListLaunches implements StatsStore. An empty chain lists every chain.
func (p *JsonlPublisher) ListLaunches(_ context.Context, chain model.Chain) ([]model.LaunchRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.LaunchRecord, 0, len(p.byKey))
	for _, rec := range p.byKey {
		if chain == "" || rec.Chain == chain {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LaunchedAt.Before(out[j].LaunchedAt) })
	return out, nil
}

// UpdateStats implements StatsStore by appending the updated record.
func (p *JsonlPublisher) UpdateStats(_ context.Context, id string, stats model.TokenStats) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	key, ok := p.keyByID[id]
	if !ok {
		return ErrNotFound
	}
	rec := p.byKey[key]
	rec.Stats = stats
	if err := appendLines(p.path, []any{rec}); err != nil {
		return err
	}
	p.index(rec)
	return nil
}

// JsonlAudit appends degradations to a JSONL file.
type JsonlAudit struct {
	path string
	mu   sync.Mutex
}

func NewJsonlAudit(path string) *JsonlAudit {
	return &JsonlAudit{path: path}
}

// RecordDegradation implements AuditSink.
func (a *JsonlAudit) RecordDegradation(_ context.Context, d model.Degradation) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return appendLines(a.path, []any{d})
}

func appendLines(path string, items []any) error {
	if len(items) == 0 {
		return nil
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, item := range items {
		line, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}

	return nil
}
