package evm

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"launchscope/internal/backfill"
	"launchscope/internal/model"
)

var (
	testLaunchpad = common.HexToAddress("0xF66DeA7b3e897cD44A5a231c61B6B4423d613259")
	testToken     = common.HexToAddress("0xAAA0000000000000000000000000000000000001")
	testPair      = common.HexToAddress("0xBBB0000000000000000000000000000000000002")
	testCreator   = common.HexToAddress("0xCCC0000000000000000000000000000000000003")
)

func newTestSource(t *testing.T, backend *fakeBackend) *Source {
	t.Helper()
	src, err := NewSource(backend, nil, SourceConfig{Launchpad: testLaunchpad.Hex(), BlockSpan: 100, PollInterval: 5 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	return src
}

func TestParseLaunchLog(t *testing.T) {
	supply := new(big.Int).Mul(big.NewInt(1_000_000_000), pow10(18))
	lg := launchedLog(testLaunchpad, testToken, testPair, supply, 10, 0, common.HexToHash("0x01"))

	got, ok := ParseLaunchLog(lg)
	if !ok {
		t.Fatalf("expected launch log to parse")
	}
	if got.Token != testToken || got.Pair != testPair || got.Supply.Cmp(supply) != 0 {
		t.Fatalf("unexpected launch: %+v", got)
	}

	other := transferLog(testToken, testCreator, testPair, big.NewInt(1), 10, common.HexToHash("0x02"))
	if _, ok := ParseLaunchLog(other); ok {
		t.Fatalf("transfer log must not parse as a launch")
	}
}

func TestSourcePageNewestFirstAndResolve(t *testing.T) {
	backend := newFakeBackend(1000)
	tx1 := common.HexToHash("0x01")
	tx2 := common.HexToHash("0x02")
	backend.logs = append(backend.logs,
		launchedLog(testLaunchpad, testToken, testPair, big.NewInt(1), 950, 0, tx1),
		launchedLog(testLaunchpad, common.HexToAddress("0x1234"), testPair, big.NewInt(1), 980, 3, tx2),
	)
	backend.senders[tx1] = testCreator
	backend.timestamps[950] = 1_700_000_000
	src := newTestSource(t, backend)

	page, err := src.Page(context.Background(), backfill.Window{From: 900, To: 1000}, "", 100)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(page.Candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(page.Candidates))
	}
	if page.Candidates[0].Position != 980 || page.Candidates[1].Position != 950 {
		t.Fatalf("candidates not newest first: %+v", page.Candidates)
	}
	if page.Done || page.Next != "900" {
		t.Fatalf("unexpected cursor: next=%q done=%v", page.Next, page.Done)
	}

	events, err := src.Resolve(context.Background(), page.Candidates[1])
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	ev := events[0]
	if ev.Chain != model.ChainEVM || ev.Token != testToken.Hex() || ev.Pair != testPair.Hex() || ev.Creator != testCreator.Hex() {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if !ev.Timestamp.Equal(time.Unix(1_700_000_000, 0)) {
		t.Fatalf("unexpected timestamp %v", ev.Timestamp)
	}

	// tx2 has no known sender: the event is kept but incomplete.
	events, err = src.Resolve(context.Background(), page.Candidates[0])
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if missing := events[0].Missing(); len(missing) != 2 {
		t.Fatalf("expected creator and timestamp missing, got %v", missing)
	}

	last, err := src.Page(context.Background(), backfill.Window{From: 900, To: 1000}, page.Next, 100)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if !last.Done {
		t.Fatalf("expected final page")
	}
}

func TestSourceShrinkable(t *testing.T) {
	backend := newFakeBackend(1000)
	backend.maxSpan = 10
	src := newTestSource(t, backend)

	_, err := src.Page(context.Background(), backfill.Window{From: 0, To: 1000}, "", 50)
	if err == nil || !src.Shrinkable(err) {
		t.Fatalf("expected shrinkable error, got %v", err)
	}
}

func TestSourcePollDeliversNewLaunches(t *testing.T) {
	backend := newFakeBackend(100)
	tx := common.HexToHash("0x0a")
	backend.senders[tx] = testCreator
	backend.timestamps[101] = 1_700_000_100
	src := newTestSource(t, backend)

	out := make(chan model.LaunchEvent, 1)
	sub, err := src.Subscribe(context.Background(), out)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	backend.mu.Lock()
	backend.logs = append(backend.logs, launchedLog(testLaunchpad, testToken, testPair, big.NewInt(1), 101, 0, tx))
	backend.head = 101
	backend.mu.Unlock()

	select {
	case ev := <-out:
		if ev.Token != testToken.Hex() || ev.Position != 101 {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for polled launch")
	}
}
