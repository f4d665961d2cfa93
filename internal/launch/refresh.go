package launch

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"launchscope/internal/amount"
	"launchscope/internal/classify"
	"launchscope/internal/model"
	"launchscope/internal/observability"
	"launchscope/internal/storage"
)

// RefreshRequest identifies a stored launch whose statistics are recomputed.
// Description is a fallback source for empty address, allocation and position
// fields. CreatorInitialRaw, when set, is the exact initial balance and takes
// precedence over the whole-unit CreatorInitialTokens.
type RefreshRequest struct {
	LaunchID             string
	Token                string
	Creator              string
	CreatorInitialTokens string
	CreatorInitialRaw    string
	Since                uint64
	ExcludeTx            string
	Description          string
}

// RefresherDeps wires a Refresher. Stats and History are optional.
type RefresherDeps struct {
	Chain      model.Chain
	Tokens     TokenReader
	Balances   BalanceResolver
	Classifier MovementClassifier
	Stats      storage.StatsStore
	History    storage.StatsHistory
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	Now        func() time.Time
}

// Refresher recomputes creator statistics without the launch pipeline.
type Refresher struct {
	deps RefresherDeps
}

func NewRefresher(deps RefresherDeps) (*Refresher, error) {
	if deps.Tokens == nil || deps.Balances == nil || deps.Classifier == nil {
		return nil, errors.New("refresher needs token, balance and classifier dependencies")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Refresher{deps: deps}, nil
}

// ErrUnknownLaunchPosition is returned when a refresh cannot tell where the
// launch happened, so the transfer history would have no lower bound.
var ErrUnknownLaunchPosition = errors.New("launch position unknown")

// RefreshTokenStats recomputes the current balance, holding percentage and
// movement narrative. When a StatsStore is configured and LaunchID is set the
// result replaces the stored statistics.
func (r *Refresher) RefreshTokenStats(ctx context.Context, req RefreshRequest) (model.TokenStats, error) {
	chain := string(r.deps.Chain)
	req = r.complete(ctx, req)
	if req.Token == "" || req.Creator == "" {
		r.deps.Metrics.Refresh(chain, "invalid")
		return model.TokenStats{}, fmt.Errorf("refresh %s: token and creator are required", req.LaunchID)
	}
	if req.Since == 0 {
		r.deps.Metrics.Refresh(chain, "invalid")
		return model.TokenStats{}, fmt.Errorf("refresh %s: %w", req.Token, ErrUnknownLaunchPosition)
	}

	info, err := r.deps.Tokens.TokenInfo(ctx, req.Token)
	if err != nil {
		r.deps.Metrics.Refresh(chain, "error")
		return model.TokenStats{}, fmt.Errorf("token info %s: %w", req.Token, err)
	}
	initial, exact, err := initialBalance(req, info.Decimals)
	if err != nil {
		r.deps.Metrics.Refresh(chain, "invalid")
		return model.TokenStats{}, err
	}

	current, err := r.deps.Balances.ResolveBalance(ctx, model.BalanceQuery{Token: req.Token, Owner: req.Creator})
	if err != nil {
		r.deps.Metrics.Refresh(chain, "error")
		return model.TokenStats{}, fmt.Errorf("current balance %s: %w", req.Token, err)
	}
	r.deps.Metrics.BalanceResolved(chain, current.Method)

	// A whole-unit initial balance is only comparable with a whole-unit current one.
	held := amount.Sum(current.Raw)
	if !exact {
		held = amount.RoundWhole(held, info.Decimals)
	}

	mv, err := r.deps.Classifier.Classify(ctx, classify.Request{
		Token:     req.Token,
		Creator:   req.Creator,
		After:     req.Since,
		ExcludeTx: req.ExcludeTx,
		Decimals:  info.Decimals,
		Initial:   initial,
		Current:   held,
	})
	if err != nil {
		r.deps.Logger.Warn("classify token movements", zap.String("token", req.Token), zap.Error(err))
		mv = model.Movement{}
	}

	stats := Stats(held, initial, info.Decimals, mv, r.deps.Now())
	if r.deps.Stats != nil && req.LaunchID != "" {
		if err := r.deps.Stats.UpdateStats(ctx, req.LaunchID, stats); err != nil {
			r.deps.Metrics.Refresh(chain, "error")
			return stats, fmt.Errorf("update stats %s: %w", req.LaunchID, err)
		}
	}
	r.deps.Metrics.Refresh(chain, "ok")
	return stats, nil
}

// complete fills empty request fields from the description and then from the
// stored launch record, if one exists.
func (r *Refresher) complete(ctx context.Context, req RefreshRequest) RefreshRequest {
	if req.Description != "" {
		parsed := ParseDescription(req.Description)
		req.Token = firstNonEmpty(req.Token, parsed.Token)
		req.Creator = firstNonEmpty(req.Creator, parsed.Creator)
		req.CreatorInitialTokens = firstNonEmpty(req.CreatorInitialTokens, parsed.CreatorInitial)
		if req.Since == 0 {
			req.Since = parsed.Position
		}
	}
	if r.deps.Stats == nil || (req.LaunchID == "" && req.Token == "") {
		return req
	}
	if req.Since != 0 && req.CreatorInitialRaw != "" && req.ExcludeTx != "" {
		return req
	}

	id := req.LaunchID
	if id == "" {
		id = LaunchID(r.deps.Chain, req.Token)
	}
	rec, err := r.deps.Stats.GetLaunch(ctx, id)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			r.deps.Logger.Warn("load launch for refresh", zap.String("id", id), zap.Error(err))
		}
		return req
	}
	req.Token = firstNonEmpty(req.Token, rec.Token)
	req.Creator = firstNonEmpty(req.Creator, rec.Creator)
	req.ExcludeTx = firstNonEmpty(req.ExcludeTx, rec.TxID)
	if req.Since == 0 {
		req.Since = rec.Position
	}
	if req.CreatorInitialRaw == "" && (req.CreatorInitialTokens == "" || req.CreatorInitialTokens == rec.CreatorInitial) {
		req.CreatorInitialTokens = rec.CreatorInitial
		req.CreatorInitialRaw = rec.CreatorInitialRaw
	}
	return req
}

// initialBalance returns the initial balance in raw units and whether it is
// exact. A raw amount of zero is ignored when the whole-unit one is not.
func initialBalance(req RefreshRequest, decimals uint8) (*big.Int, bool, error) {
	whole, err := amount.FromWhole(firstNonEmpty(req.CreatorInitialTokens, "0"), decimals)
	if err != nil {
		return nil, false, fmt.Errorf("creator initial tokens %q: %w", req.CreatorInitialTokens, err)
	}
	if req.CreatorInitialRaw == "" {
		return whole, false, nil
	}
	raw, err := amount.ParseRaw(req.CreatorInitialRaw)
	if err != nil {
		return nil, false, fmt.Errorf("creator initial raw: %w", err)
	}
	if raw.Sign() == 0 && whole.Sign() > 0 {
		return whole, false, nil
	}
	return raw, true, nil
}

// RefreshLaunch refreshes a stored record and appends the snapshot to the
// history store.
func (r *Refresher) RefreshLaunch(ctx context.Context, rec model.LaunchRecord) (model.TokenStats, error) {
	stats, err := r.RefreshTokenStats(ctx, RefreshRequest{
		LaunchID:             rec.ID,
		Token:                rec.Token,
		Creator:              rec.Creator,
		CreatorInitialTokens: rec.CreatorInitial,
		CreatorInitialRaw:    rec.CreatorInitialRaw,
		Since:                rec.Position,
		ExcludeTx:            rec.TxID,
		Description:          rec.Description,
	})
	if err != nil {
		return stats, err
	}
	if r.deps.History != nil {
		if err := r.deps.History.AppendStats(ctx, rec, stats); err != nil {
			r.deps.Logger.Warn("append stats history", zap.String("id", rec.ID), zap.Error(err))
		}
	}
	return stats, nil
}

// RefreshAll refreshes every stored launch of the chain. Failures are logged
// and counted; the first one is returned after all launches were attempted.
func (r *Refresher) RefreshAll(ctx context.Context) (int, error) {
	if r.deps.Stats == nil {
		return 0, errors.New("refresh all needs a stats store")
	}
	launches, err := r.deps.Stats.ListLaunches(ctx, r.deps.Chain)
	if err != nil {
		return 0, fmt.Errorf("list launches: %w", err)
	}
	var (
		refreshed int
		firstErr  error
	)
	for _, rec := range launches {
		if ctx.Err() != nil {
			return refreshed, ctx.Err()
		}
		if _, err := r.RefreshLaunch(ctx, rec); err != nil {
			r.deps.Logger.Warn("refresh launch", zap.String("id", rec.ID), zap.String("token", rec.Token), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		refreshed++
	}
	r.deps.Logger.Info("refresh finished", zap.String("chain", string(r.deps.Chain)), zap.Int("launches", len(launches)), zap.Int("refreshed", refreshed))
	return refreshed, firstErr
}
