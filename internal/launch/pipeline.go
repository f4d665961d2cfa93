package launch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"launchscope/internal/classify"
	"launchscope/internal/model"
	"launchscope/internal/observability"
	"launchscope/internal/registry"
	"launchscope/internal/storage"
)

// TokenReader loads token metadata.
type TokenReader interface {
	TokenInfo(ctx context.Context, token string) (model.TokenInfo, error)
}

// BalanceResolver resolves raw balances, current or historical.
type BalanceResolver interface {
	ResolveBalance(ctx context.Context, q model.BalanceQuery) (model.Balance, error)
}

// MovementClassifier explains balance reductions.
type MovementClassifier interface {
	Classify(ctx context.Context, req classify.Request) (model.Movement, error)
}

// ImageFetcher resolves the image of an off-chain metadata document.
type ImageFetcher interface {
	ImageURL(ctx context.Context, uri string) (string, error)
}

// Outcome is the result of processing one event.
type Outcome int

const (
	Published Outcome = iota
	Duplicate
	Dropped
)

func (o Outcome) String() string {
	switch o {
	case Published:
		return "published"
	case Duplicate:
		return "duplicate"
	case Dropped:
		return "dropped"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Deps wires a Pipeline. Audit, Images, Metrics and Now are optional.
type Deps struct {
	Chain      model.Chain
	Source     string
	Tokens     TokenReader
	Balances   BalanceResolver
	Classifier MovementClassifier
	Registry   *registry.Registry
	Publisher  storage.LaunchPublisher
	Audit      storage.AuditSink
	Images     ImageFetcher
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	Now        func() time.Time
}

// Pipeline runs one launch event from raw data to a published record. The
// live listener and the backfill share it.
type Pipeline struct {
	deps Deps

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewPipeline(deps Deps) (*Pipeline, error) {
	if deps.Tokens == nil || deps.Balances == nil || deps.Classifier == nil {
		return nil, errors.New("pipeline needs token, balance and classifier dependencies")
	}
	if deps.Publisher == nil {
		return nil, errors.New("pipeline publisher is nil")
	}
	if deps.Registry == nil {
		deps.Registry = registry.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Source == "" {
		deps.Source = "pipeline"
	}
	return &Pipeline{deps: deps, inflight: make(map[string]struct{})}, nil
}

// Exists reports whether a record for token is already stored.
func (p *Pipeline) Exists(ctx context.Context, token string) (bool, error) {
	return p.deps.Publisher.Exists(ctx, p.deps.Chain, token)
}

// Process builds and publishes the record for ev. Incomplete events are
// dropped with a warning. With overwrite=false an already stored token is
// skipped before any enrichment RPC.
func (p *Pipeline) Process(ctx context.Context, ev model.LaunchEvent, overwrite bool) (Outcome, error) {
	chain := string(p.deps.Chain)
	logger := p.deps.Logger.With(zap.String("chain", chain), zap.String("token", ev.Token), zap.String("tx", ev.TxID))

	if missing := ev.Missing(); len(missing) > 0 {
		logger.Warn("drop incomplete launch event", zap.Strings("missing", missing))
		p.deps.Metrics.Event(chain, p.deps.Source, Dropped.String())
		p.audit(ctx, model.Degradation{
			Token:  ev.Token,
			Owner:  ev.Creator,
			TxID:   ev.TxID,
			Step:   "event_incomplete",
			Detail: "missing " + strings.Join(missing, ","),
		})
		return Dropped, nil
	}

	key := storage.LaunchKey(p.deps.Chain, ev.Token)
	if !p.claim(key) {
		logger.Debug("launch already in flight")
		p.deps.Metrics.Event(chain, p.deps.Source, Duplicate.String())
		return Duplicate, nil
	}
	defer p.release(key)

	if !overwrite {
		exists, err := p.deps.Publisher.Exists(ctx, p.deps.Chain, ev.Token)
		if err != nil {
			return Dropped, fmt.Errorf("check existing launch %s: %w", ev.Token, err)
		}
		if exists {
			logger.Debug("launch already stored")
			p.deps.Metrics.Event(chain, p.deps.Source, Duplicate.String())
			return Duplicate, nil
		}
	}

	if ev.Pair != "" {
		p.deps.Registry.Add(registry.Entry{
			Chain:    p.deps.Chain,
			Address:  ev.Pair,
			Label:    ProfileFor(p.deps.Chain).PairLabel + " for " + ev.Token,
			Category: model.CategoryExchange,
		})
	}

	info, err := p.deps.Tokens.TokenInfo(ctx, ev.Token)
	if err != nil {
		return Dropped, fmt.Errorf("token info %s: %w", ev.Token, err)
	}

	at := ev.Position
	initial, err := p.deps.Balances.ResolveBalance(ctx, model.BalanceQuery{Token: ev.Token, Owner: ev.Creator, At: &at, TxID: ev.TxID})
	if err != nil {
		return Dropped, fmt.Errorf("initial balance %s: %w", ev.Token, err)
	}
	p.recordBalance(ctx, ev, initial)

	current, err := p.deps.Balances.ResolveBalance(ctx, model.BalanceQuery{Token: ev.Token, Owner: ev.Creator})
	if err != nil {
		return Dropped, fmt.Errorf("current balance %s: %w", ev.Token, err)
	}
	p.deps.Metrics.BalanceResolved(chain, current.Method)

	mv, err := p.deps.Classifier.Classify(ctx, classify.Request{
		Token:     ev.Token,
		Creator:   ev.Creator,
		After:     ev.Position,
		ExcludeTx: ev.TxID,
		Decimals:  info.Decimals,
		Initial:   initial.Raw,
		Current:   current.Raw,
	})
	if err != nil {
		logger.Warn("classify token movements", zap.Error(err))
		p.audit(ctx, model.Degradation{
			Token:  ev.Token,
			Owner:  ev.Creator,
			TxID:   ev.TxID,
			Step:   "classify",
			Detail: err.Error(),
		})
		mv = model.Movement{}
	}

	var image string
	if p.deps.Images != nil && ev.URI != "" {
		image, err = p.deps.Images.ImageURL(ctx, ev.URI)
		if err != nil {
			logger.Debug("fetch token image", zap.String("uri", ev.URI), zap.Error(err))
			image = ""
		}
	}

	rec := Build(Input{
		Event:    ev,
		Token:    info,
		Initial:  initial,
		Current:  current,
		Movement: mv,
		ImageURL: image,
		Now:      p.deps.Now(),
	})

	inserted, err := p.deps.Publisher.UpsertLaunch(ctx, rec, overwrite)
	switch {
	case errors.Is(err, storage.ErrDuplicateKey), err == nil && !inserted:
		p.deps.Metrics.Published(chain, Duplicate.String())
		p.deps.Metrics.Event(chain, p.deps.Source, Duplicate.String())
		return Duplicate, nil
	case err != nil:
		p.deps.Metrics.Published(chain, "error")
		return Dropped, fmt.Errorf("publish launch %s: %w", ev.Token, err)
	}

	p.deps.Metrics.Published(chain, Published.String())
	p.deps.Metrics.Event(chain, p.deps.Source, Published.String())
	logger.Info("launch published",
		zap.String("id", rec.ID),
		zap.String("title", rec.Title),
		zap.String("allocation", rec.FormattedAllocation),
		zap.String("balance_method", rec.BalanceMethod),
		zap.Bool("approximate", rec.Approximate),
	)
	return Published, nil
}

func (p *Pipeline) recordBalance(ctx context.Context, ev model.LaunchEvent, b model.Balance) {
	p.deps.Metrics.BalanceResolved(string(p.deps.Chain), b.Method)
	for _, fb := range b.Fallbacks {
		p.audit(ctx, model.Degradation{
			Token:  ev.Token,
			Owner:  ev.Creator,
			TxID:   ev.TxID,
			Step:   fb.Method,
			Detail: fb.Reason,
		})
	}
}

func (p *Pipeline) audit(ctx context.Context, d model.Degradation) {
	if p.deps.Audit == nil {
		return
	}
	d.Chain = p.deps.Chain
	d.At = p.deps.Now().UTC()
	if err := p.deps.Audit.RecordDegradation(ctx, d); err != nil {
		p.deps.Logger.Warn("record degradation", zap.String("step", d.Step), zap.Error(err))
	}
}

func (p *Pipeline) claim(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.inflight[key]; ok {
		return false
	}
	p.inflight[key] = struct{}{}
	return true
}

func (p *Pipeline) release(key string) {
	p.mu.Lock()
	delete(p.inflight, key)
	p.mu.Unlock()
}
