package launch

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"launchscope/internal/amount"
	"launchscope/internal/classify"
	"launchscope/internal/model"
	"launchscope/internal/registry"
	"launchscope/internal/storage/memory"
)

const (
	testToken   = "0xAAA0000000000000000000000000000000000001"
	testPair    = "0xBBB0000000000000000000000000000000000002"
	testCreator = "0xCCC0000000000000000000000000000000000003"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func whole(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), amount.Scale(18))
}

type fakeTokens struct {
	info  model.TokenInfo
	calls int
}

func (f *fakeTokens) TokenInfo(context.Context, string) (model.TokenInfo, error) {
	f.calls++
	return f.info, nil
}

type fakeBalances struct {
	initial model.Balance
	current model.Balance
}

func (f *fakeBalances) ResolveBalance(_ context.Context, q model.BalanceQuery) (model.Balance, error) {
	if q.Historical() {
		return f.initial, nil
	}
	return f.current, nil
}

type countingLister struct {
	calls int
	last  model.TransferQuery
}

func (l *countingLister) OutgoingTransfers(_ context.Context, q model.TransferQuery) ([]model.Transfer, error) {
	l.calls++
	l.last = q
	return nil, nil
}

type staticLister struct{ transfers []model.Transfer }

func (l staticLister) OutgoingTransfers(context.Context, model.TransferQuery) ([]model.Transfer, error) {
	return l.transfers, nil
}

type noContracts struct{}

func (noContracts) IsContract(context.Context, string) (bool, error) { return false, nil }

func testEvent() model.LaunchEvent {
	return model.LaunchEvent{
		Chain:     model.ChainEVM,
		Launchpad: "Virtuals",
		Token:     testToken,
		Creator:   testCreator,
		Pair:      testPair,
		TxID:      "0xfeed",
		Position:  1200,
		Timestamp: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		Name:      "Agent",
		Symbol:    "AGT",
		Supply:    whole(1_000_000_000),
	}
}

type fixture struct {
	store    *memory.Store
	tokens   *fakeTokens
	balances *fakeBalances
	registry *registry.Registry
	pipeline *Pipeline
}

func newFixture(t *testing.T, lister classify.TransferLister, initial, current *big.Int) *fixture {
	t.Helper()
	f := &fixture{
		store:    memory.NewStore(),
		tokens:   &fakeTokens{info: model.TokenInfo{Address: testToken, Decimals: 18, TotalSupply: whole(1_000_000_000)}},
		balances: &fakeBalances{
			initial: model.Balance{Raw: initial, Method: model.BalanceAtBlock},
			current: model.Balance{Raw: current, Method: model.BalanceLatest},
		},
		registry: registry.New(registry.Seed(model.ChainEVM)...),
	}
	p, err := NewPipeline(Deps{
		Chain:      model.ChainEVM,
		Tokens:     f.tokens,
		Balances:   f.balances,
		Classifier: classify.New(model.ChainEVM, f.registry, lister, noContracts{}, classify.Options{}),
		Registry:   f.registry,
		Publisher:  f.store,
		Audit:      f.store,
		Now:        func() time.Time { return testNow },
	})
	require.NoError(t, err)
	f.pipeline = p
	return f
}

func TestBuildAllocationScenario(t *testing.T) {
	ev := testEvent()
	rec := Build(Input{
		Event:   ev,
		Token:   model.TokenInfo{Decimals: 18, Name: "Agent", Symbol: "AGT", TotalSupply: whole(1_000_000_000)},
		Initial: model.Balance{Raw: whole(150_000_000), Method: model.BalanceAtBlock},
		Current: model.Balance{Raw: whole(150_000_000), Method: model.BalanceLatest},
		Now:     testNow,
	})

	require.Equal(t, "15.00%", rec.FormattedAllocation)
	require.Equal(t, "850000000", rec.TokensForSale)
	require.Equal(t, "1000000000", rec.TotalSupply)
	require.Equal(t, "150000000", rec.CreatorInitial)
	require.Equal(t, "Agent ($AGT)", rec.Title)
	require.Equal(t, "https://app.virtuals.io/prototypes/"+testToken, rec.URL)
	require.Equal(t, "100.00", rec.Stats.HoldingPercentage)
	require.Equal(t, LaunchID(model.ChainEVM, testToken), rec.ID)
}

func TestBuildIsDeterministic(t *testing.T) {
	in := Input{
		Event:   testEvent(),
		Token:   model.TokenInfo{Decimals: 18, TotalSupply: whole(1000)},
		Initial: model.Balance{Raw: whole(400)},
		Current: model.Balance{Raw: whole(100)},
		Now:     testNow,
	}
	a, b := Build(in), Build(in)
	if a.Description != b.Description || a.ID != b.ID || a.Stats != b.Stats {
		t.Fatalf("build is not deterministic:\n%+v\n%+v", a, b)
	}
}

func TestBuildClampsTokensForSale(t *testing.T) {
	rec := Build(Input{
		Event:   testEvent(),
		Token:   model.TokenInfo{Decimals: 18, TotalSupply: whole(100)},
		Initial: model.Balance{Raw: whole(150)},
		Current: model.Balance{Raw: whole(150)},
		Now:     testNow,
	})
	if rec.TokensForSale != "0" {
		t.Fatalf("tokens for sale = %s, want 0", rec.TokensForSale)
	}
}

func TestBuildFallsBackToEventSupply(t *testing.T) {
	rec := Build(Input{
		Event:   testEvent(),
		Token:   model.TokenInfo{Decimals: 18},
		Initial: model.Balance{Raw: whole(250_000_000)},
		Current: model.Balance{Raw: new(big.Int)},
		Now:     testNow,
	})
	if rec.TotalSupply != "1000000000" || rec.FormattedAllocation != "25.00%" {
		t.Fatalf("supply=%s allocation=%s", rec.TotalSupply, rec.FormattedAllocation)
	}
	if rec.Stats.HoldingPercentage != "0.00" {
		t.Fatalf("holding = %s, want 0.00", rec.Stats.HoldingPercentage)
	}
}

func TestLaunchIDNormalizesEVMCase(t *testing.T) {
	if LaunchID(model.ChainEVM, testToken) != LaunchID(model.ChainEVM, strings.ToLower(testToken)) {
		t.Fatalf("launch id depends on address case")
	}
	if LaunchID(model.ChainEVM, testToken) == LaunchID(model.ChainSolana, testToken) {
		t.Fatalf("launch id ignores chain")
	}
}

func TestTitleFallbacks(t *testing.T) {
	p := ProfileFor(model.ChainSolana)
	cases := []struct {
		name, symbol, want string
	}{
		{"Dolphin Ai", "DOLPHIN", "Dolphin Ai ($DOLPHIN)"},
		{"Dolphin Ai", "", "Dolphin Ai"},
		{"", "DOLPHIN", "$DOLPHIN"},
		{"", "", "mint"},
	}
	for _, tc := range cases {
		if got := p.Title(tc.name, tc.symbol, "mint"); got != tc.want {
			t.Fatalf("Title(%q, %q) = %q, want %q", tc.name, tc.symbol, got, tc.want)
		}
	}
	if got := p.URL("mint"); got != "https://pump.fun/coin/mint" {
		t.Fatalf("url = %s", got)
	}
}

func TestDescriptionSectionOrderAndParse(t *testing.T) {
	rec := Build(Input{
		Event:    testEvent(),
		Token:    model.TokenInfo{Decimals: 18, Name: "Agent", Symbol: "AGT", TotalSupply: whole(1_000_000_000)},
		Initial:  model.Balance{Raw: whole(150_000_000)},
		Current:  model.Balance{Raw: whole(75_000_000)},
		Movement: model.Movement{Narrative: "Sold 75000000 tokens."},
		Now:      testNow,
	})
	desc := rec.Description
	order := []string{"Agent ($AGT)", "Tokenomics:", "Creator Info:", "Recent Developments:", "Sold 75000000 tokens."}
	last := -1
	for _, s := range order {
		i := strings.Index(desc, s)
		if i <= last {
			t.Fatalf("section %q out of order in:\n%s", s, desc)
		}
		last = i
	}
	if !strings.Contains(desc, "- Current Holdings: 75000000 (50.00% of initial)") {
		t.Fatalf("missing holdings line:\n%s", desc)
	}

	got := ParseDescription(desc)
	if !strings.Contains(desc, "- Launch Block: 1200\n") {
		t.Fatalf("missing launch block line:\n%s", desc)
	}
	want := DescriptionFields{Token: testToken, Creator: testCreator, CreatorInitial: "150000000", Position: 1200}
	if got != want {
		t.Fatalf("parse = %+v, want %+v", got, want)
	}
}

func TestDescriptionWithoutMovement(t *testing.T) {
	rec := Build(Input{
		Event:   testEvent(),
		Token:   model.TokenInfo{Decimals: 18, TotalSupply: whole(10)},
		Initial: model.Balance{Raw: whole(1)},
		Current: model.Balance{Raw: whole(1)},
		Now:     testNow,
	})
	if !strings.HasSuffix(rec.Description, "Recent Developments:\n"+NoMovementText+"\n") {
		t.Fatalf("unexpected tail:\n%s", rec.Description)
	}
}

func TestParseDescriptionMissingFields(t *testing.T) {
	got := ParseDescription("Some title\nno structured fields here")
	if got != (DescriptionFields{}) {
		t.Fatalf("parse = %+v, want empty", got)
	}
}

func TestProcessIsIdempotent(t *testing.T) {
	lister := &countingLister{}
	f := newFixture(t, lister, whole(150_000_000), whole(150_000_000))
	ctx := context.Background()

	out, err := f.pipeline.Process(ctx, testEvent(), false)
	require.NoError(t, err)
	require.Equal(t, Published, out)

	out, err = f.pipeline.Process(ctx, testEvent(), false)
	require.NoError(t, err)
	require.Equal(t, Duplicate, out)

	require.Equal(t, 1, f.store.Len())
	require.Equal(t, 1, f.store.Upserts())
	require.Equal(t, 1, f.tokens.calls)
	require.Equal(t, 1, lister.calls)

	rec, err := f.store.GetLaunch(ctx, LaunchID(model.ChainEVM, testToken))
	require.NoError(t, err)
	require.Equal(t, "100.00", rec.Stats.HoldingPercentage)
	require.Empty(t, rec.Stats.MovementNarrative)
	require.Equal(t, "15.00%", rec.FormattedAllocation)
	require.Equal(t, "850000000", rec.TokensForSale)

	entry, ok := f.registry.Lookup(model.ChainEVM, strings.ToLower(testPair))
	require.True(t, ok)
	require.Equal(t, model.CategoryExchange, entry.Category)
}

func TestProcessOverwriteReplaces(t *testing.T) {
	f := newFixture(t, &countingLister{}, whole(10), whole(10))
	ctx := context.Background()
	_, err := f.pipeline.Process(ctx, testEvent(), false)
	require.NoError(t, err)

	out, err := f.pipeline.Process(ctx, testEvent(), true)
	require.NoError(t, err)
	require.Equal(t, Published, out)
	require.Equal(t, 2, f.store.Upserts())
	require.Equal(t, 1, f.store.Len())
}

func TestProcessDropsIncompleteEvent(t *testing.T) {
	f := newFixture(t, &countingLister{}, whole(10), whole(10))
	ev := testEvent()
	ev.Creator = ""

	out, err := f.pipeline.Process(context.Background(), ev, false)
	require.NoError(t, err)
	require.Equal(t, Dropped, out)
	require.Zero(t, f.store.Len())
	require.Zero(t, f.tokens.calls)

	degs := f.store.Degradations()
	require.Len(t, degs, 1)
	require.Equal(t, "event_incomplete", degs[0].Step)
	require.Contains(t, degs[0].Detail, "creator")
}

func TestProcessAuditsBalanceFallbacks(t *testing.T) {
	f := newFixture(t, &countingLister{}, whole(10), whole(10))
	f.balances.initial = model.Balance{
		Raw:         whole(10),
		Method:      model.BalanceLatest,
		Approximate: true,
		Fallbacks:   []model.Fallback{{Method: model.BalanceAtBlock, Reason: "missing trie node"}},
	}
	ctx := context.Background()

	out, err := f.pipeline.Process(ctx, testEvent(), false)
	require.NoError(t, err)
	require.Equal(t, Published, out)

	degs := f.store.Degradations()
	require.Len(t, degs, 1)
	require.Equal(t, model.BalanceAtBlock, degs[0].Step)
	require.Equal(t, model.ChainEVM, degs[0].Chain)

	rec, err := f.store.GetLaunch(ctx, LaunchID(model.ChainEVM, testToken))
	require.NoError(t, err)
	require.True(t, rec.Approximate)
	require.Contains(t, rec.Description, "approximate")
}

func TestProcessClassifiesMovements(t *testing.T) {
	lister := staticLister{transfers: []model.Transfer{
		{To: "0x000000000000000000000000000000000000dEaD", Amount: whole(50), TxID: "0x1"},
	}}
	f := newFixture(t, lister, whole(100), whole(50))
	ctx := context.Background()

	_, err := f.pipeline.Process(ctx, testEvent(), false)
	require.NoError(t, err)
	rec, err := f.store.GetLaunch(ctx, LaunchID(model.ChainEVM, testToken))
	require.NoError(t, err)
	require.True(t, rec.Stats.SentToBurnAddress)
	require.Equal(t, "50.00", rec.Stats.HoldingPercentage)
	require.Contains(t, rec.Description, classify.GraduationNote)
}

func TestRefreshTokenStats(t *testing.T) {
	f := newFixture(t, staticLister{transfers: []model.Transfer{
		{To: "0x1111111111111111111111111111111111111111", Amount: whole(60_000_000), TxID: "0x2"},
	}}, whole(150_000_000), whole(150_000_000))
	ctx := context.Background()
	_, err := f.pipeline.Process(ctx, testEvent(), false)
	require.NoError(t, err)

	f.balances.current = model.Balance{Raw: whole(90_000_000), Method: model.BalanceLatest}
	r, err := NewRefresher(RefresherDeps{
		Chain:      model.ChainEVM,
		Tokens:     f.tokens,
		Balances:   f.balances,
		Classifier: classify.New(model.ChainEVM, f.registry, staticLister{transfers: []model.Transfer{{To: "0x1111111111111111111111111111111111111111", Amount: whole(60_000_000), TxID: "0x2"}}}, noContracts{}, classify.Options{}),
		Stats:      f.store,
		History:    f.store,
		Now:        func() time.Time { return testNow.Add(time.Hour) },
	})
	require.NoError(t, err)

	id := LaunchID(model.ChainEVM, testToken)
	stats, err := r.RefreshTokenStats(ctx, RefreshRequest{
		LaunchID:             id,
		Token:                testToken,
		Creator:              testCreator,
		CreatorInitialTokens: "150000000",
	})
	require.NoError(t, err)
	require.Equal(t, "90000000", stats.TokensHeld)
	require.Equal(t, "60.00", stats.HoldingPercentage)
	require.NotEmpty(t, stats.MovementNarrative)
	require.Equal(t, testNow.Add(time.Hour), stats.UpdatedAt)

	rec, err := f.store.GetLaunch(ctx, id)
	require.NoError(t, err)
	require.Equal(t, stats, rec.Stats)
	require.Equal(t, testToken, rec.Token)
}

func TestRefreshUsesDescriptionFallback(t *testing.T) {
	f := newFixture(t, &countingLister{}, whole(150_000_000), whole(150_000_000))
	rec := Build(Input{
		Event:   testEvent(),
		Token:   f.tokens.info,
		Initial: model.Balance{Raw: whole(150_000_000)},
		Current: model.Balance{Raw: whole(150_000_000)},
		Now:     testNow,
	})
	r, err := NewRefresher(RefresherDeps{
		Chain:      model.ChainEVM,
		Tokens:     f.tokens,
		Balances:   f.balances,
		Classifier: classify.New(model.ChainEVM, f.registry, &countingLister{}, noContracts{}, classify.Options{}),
		Now:        func() time.Time { return testNow },
	})
	require.NoError(t, err)

	stats, err := r.RefreshTokenStats(context.Background(), RefreshRequest{Description: rec.Description})
	require.NoError(t, err)
	require.Equal(t, "150000000", stats.TokensHeld)
	require.Equal(t, "100.00", stats.HoldingPercentage)
}

func TestRefreshRequiresAddresses(t *testing.T) {
	f := newFixture(t, &countingLister{}, whole(1), whole(1))
	r, err := NewRefresher(RefresherDeps{
		Chain:      model.ChainEVM,
		Tokens:     f.tokens,
		Balances:   f.balances,
		Classifier: classify.New(model.ChainEVM, f.registry, &countingLister{}, noContracts{}, classify.Options{}),
	})
	require.NoError(t, err)
	if _, err := r.RefreshTokenStats(context.Background(), RefreshRequest{LaunchID: "x"}); err == nil {
		t.Fatalf("expected error without token and creator")
	}
}

func TestRefreshAllAppendsHistory(t *testing.T) {
	f := newFixture(t, &countingLister{}, whole(100), whole(100))
	ctx := context.Background()
	_, err := f.pipeline.Process(ctx, testEvent(), false)
	require.NoError(t, err)

	r, err := NewRefresher(RefresherDeps{
		Chain:      model.ChainEVM,
		Tokens:     f.tokens,
		Balances:   f.balances,
		Classifier: classify.New(model.ChainEVM, f.registry, &countingLister{}, noContracts{}, classify.Options{}),
		Stats:      f.store,
		History:    f.store,
		Now:        func() time.Time { return testNow },
	})
	require.NoError(t, err)

	n, err := r.RefreshAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Len(t, f.store.History(), 1)
}

func fractional() *big.Int {
	// 150,000,000.6 tokens at 18 decimals.
	v := whole(150_000_000)
	return v.Add(v, new(big.Int).Mul(big.NewInt(6), amount.Scale(17)))
}

func TestRefreshLaunchKeepsFractionalInitialExact(t *testing.T) {
	lister := &countingLister{}
	f := newFixture(t, lister, fractional(), fractional())
	ctx := context.Background()
	_, err := f.pipeline.Process(ctx, testEvent(), false)
	require.NoError(t, err)

	rec, err := f.store.GetLaunch(ctx, LaunchID(model.ChainEVM, testToken))
	require.NoError(t, err)
	require.Equal(t, "150000001", rec.CreatorInitial)
	require.Equal(t, fractional().String(), rec.CreatorInitialRaw)
	require.Empty(t, rec.Stats.MovementNarrative)

	r, err := NewRefresher(RefresherDeps{
		Chain:      model.ChainEVM,
		Tokens:     f.tokens,
		Balances:   f.balances,
		Classifier: classify.New(model.ChainEVM, f.registry, lister, noContracts{}, classify.Options{}),
		Stats:      f.store,
		Now:        func() time.Time { return testNow },
	})
	require.NoError(t, err)

	stats, err := r.RefreshLaunch(ctx, rec)
	require.NoError(t, err)
	require.Equal(t, "100.00", stats.HoldingPercentage)
	require.Empty(t, stats.MovementNarrative)
	require.Equal(t, uint64(1200), lister.last.After)
}

func TestRefreshWholeUnitInitialComparesWholeUnits(t *testing.T) {
	lister := &countingLister{}
	f := newFixture(t, lister, fractional(), fractional())
	r, err := NewRefresher(RefresherDeps{
		Chain:      model.ChainEVM,
		Tokens:     f.tokens,
		Balances:   f.balances,
		Classifier: classify.New(model.ChainEVM, f.registry, lister, noContracts{}, classify.Options{}),
		Now:        func() time.Time { return testNow },
	})
	require.NoError(t, err)

	stats, err := r.RefreshTokenStats(context.Background(), RefreshRequest{
		Token:                testToken,
		Creator:              testCreator,
		CreatorInitialTokens: "150000001",
		Since:                1200,
	})
	require.NoError(t, err)
	require.Equal(t, "100.00", stats.HoldingPercentage)
	require.Empty(t, stats.MovementNarrative)
}

func TestRefreshNeedsLaunchPosition(t *testing.T) {
	lister := &countingLister{}
	f := newFixture(t, lister, whole(10), whole(10))
	r, err := NewRefresher(RefresherDeps{
		Chain:      model.ChainEVM,
		Tokens:     f.tokens,
		Balances:   f.balances,
		Classifier: classify.New(model.ChainEVM, f.registry, lister, noContracts{}, classify.Options{}),
	})
	require.NoError(t, err)

	_, err = r.RefreshTokenStats(context.Background(), RefreshRequest{
		Token:                testToken,
		Creator:              testCreator,
		CreatorInitialTokens: "10",
	})
	require.ErrorIs(t, err, ErrUnknownLaunchPosition)
	require.Zero(t, lister.calls)
}

func TestRefreshTakesPositionFromStoredLaunch(t *testing.T) {
	lister := &countingLister{}
	f := newFixture(t, lister, whole(10), whole(10))
	ctx := context.Background()
	_, err := f.pipeline.Process(ctx, testEvent(), false)
	require.NoError(t, err)

	r, err := NewRefresher(RefresherDeps{
		Chain:      model.ChainEVM,
		Tokens:     f.tokens,
		Balances:   f.balances,
		Classifier: classify.New(model.ChainEVM, f.registry, lister, noContracts{}, classify.Options{}),
		Stats:      f.store,
	})
	require.NoError(t, err)

	_, err = r.RefreshTokenStats(ctx, RefreshRequest{Token: strings.ToLower(testToken), Creator: testCreator})
	require.NoError(t, err)
	require.Equal(t, uint64(1200), lister.last.After)
	require.Equal(t, "0xfeed", lister.last.ExcludeTx)
}
