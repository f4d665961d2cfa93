package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"launchscope/internal/model"
)

func TestJsonlPublisherIdempotentAndReloadable(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "launches.jsonl")

	pub, err := OpenJsonlPublisher(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	rec := model.LaunchRecord{
		ID:         "id-1",
		Chain:      model.ChainSolana,
		Token:      "Mint111",
		Title:      "Dolphin Ai ($DOLPHIN)",
		LaunchedAt: time.Unix(1700000000, 0).UTC(),
	}
	inserted, err := pub.UpsertLaunch(ctx, rec, false)
	if err != nil || !inserted {
		t.Fatalf("first upsert = %v, %v", inserted, err)
	}
	inserted, err = pub.UpsertLaunch(ctx, rec, false)
	if err != nil || inserted {
		t.Fatalf("second upsert without overwrite = %v, %v", inserted, err)
	}

	stats := model.TokenStats{TokensHeld: "10", HoldingPercentage: "50.00"}
	if err := pub.UpdateStats(ctx, "id-1", stats); err != nil {
		t.Fatalf("update stats: %v", err)
	}

	reloaded, err := OpenJsonlPublisher(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	ok, err := reloaded.Exists(ctx, model.ChainSolana, "Mint111")
	if err != nil || !ok {
		t.Fatalf("exists after reload = %v, %v", ok, err)
	}
	got, err := reloaded.GetLaunch(ctx, "id-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Stats.HoldingPercentage != "50.00" {
		t.Fatalf("latest line should win, got %+v", got.Stats)
	}
	list, err := reloaded.ListLaunches(ctx, model.ChainEVM)
	if err != nil || len(list) != 0 {
		t.Fatalf("chain filter = %d, %v", len(list), err)
	}
}

func TestJsonlPublisherUpdateUnknown(t *testing.T) {
	pub, err := OpenJsonlPublisher(filepath.Join(t.TempDir(), "x.jsonl"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := pub.UpdateStats(context.Background(), "missing", model.TokenStats{}); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
