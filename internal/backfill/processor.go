// Package backfill replays launchpad history through the launch pipeline.
package backfill

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"launchscope/internal/launch"
	"launchscope/internal/model"
	"launchscope/internal/observability"
	"launchscope/internal/storage"
)

// Handler is the single-event pipeline shared with the live listener.
type Handler interface {
	Process(ctx context.Context, ev model.LaunchEvent, overwrite bool) (launch.Outcome, error)
	Exists(ctx context.Context, token string) (bool, error)
}

// Config tunes a Processor.
type Config struct {
	Chain model.Chain
	// Name keys the checkpoint. It defaults to the chain.
	Name      string
	PageSize  int
	ItemDelay time.Duration
}

// Summary reports one backfill run.
type Summary struct {
	Window     Window
	Candidates int
	Events     int
	Published  int
	Duplicates int
	Skipped    int
	Dropped    int
	Failed     int
	Elapsed    time.Duration
}

// Processor drives a Sequence through the Handler.
type Processor struct {
	cfg         Config
	pager       Pager
	handler     Handler
	checkpoints storage.CheckpointStore
	logger      *zap.Logger
	metrics     *observability.Metrics
}

// NewProcessor builds a Processor. checkpoints may be nil.
func NewProcessor(cfg Config, pager Pager, handler Handler, checkpoints storage.CheckpointStore, logger *zap.Logger, metrics *observability.Metrics) *Processor {
	if cfg.Name == "" {
		cfg.Name = string(cfg.Chain)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		cfg:         cfg,
		pager:       pager,
		handler:     handler,
		checkpoints: checkpoints,
		logger:      logger,
		metrics:     metrics,
	}
}

// Run backfills window. A zero From resumes after the saved checkpoint and a
// zero To means the current head. Per-event failures are logged and counted;
// only paging failures end the run early. The checkpoint is saved just below
// the lowest failed position so the next run retries it.
func (p *Processor) Run(ctx context.Context, window Window, overwrite bool) (Summary, error) {
	started := time.Now()
	chain := string(p.cfg.Chain)
	if p.pager == nil || p.handler == nil {
		return Summary{}, fmt.Errorf("backfill %s: pager and handler are required", chain)
	}

	if window.From == 0 && p.checkpoints != nil {
		last, ok, err := p.checkpoints.LoadCheckpoint(ctx, p.cfg.Name)
		if err != nil {
			return Summary{}, fmt.Errorf("load checkpoint: %w", err)
		}
		if ok {
			window.From = last + 1
			p.logger.Info("resume from checkpoint", zap.String("name", p.cfg.Name), zap.Uint64("last_processed", last), zap.Uint64("from", window.From))
		}
	}
	if window.To == 0 {
		head, err := p.pager.Head(ctx)
		if err != nil {
			return Summary{}, fmt.Errorf("get head: %w", err)
		}
		window.To = head
	}

	sum := Summary{Window: window}
	if window.From > window.To {
		p.logger.Info("nothing to backfill", zap.String("chain", chain), zap.Stringer("window", window))
		return sum, nil
	}
	p.logger.Info("backfill started", zap.String("chain", chain), zap.Stringer("window", window), zap.Bool("overwrite", overwrite))

	seq := NewSequence(p.pager, window, p.cfg.PageSize, p.logger)
	seq.metrics = p.metrics
	seq.chain = chain

	var failed failures
	first := true
	for {
		ev, ok, err := seq.Next(ctx)
		if err != nil {
			sum.Candidates = seq.Candidates()
			sum.Elapsed = time.Since(started)
			return sum, fmt.Errorf("backfill %s %s: %w", chain, window, err)
		}
		if !ok {
			break
		}
		if !first {
			if err := sleep(ctx, p.cfg.ItemDelay); err != nil {
				return sum, err
			}
		}
		first = false
		sum.Events++
		if !p.handle(ctx, ev, overwrite, &sum) {
			failed.add(ev.Position)
		}
	}
	sum.Candidates = seq.Candidates()
	sum.Failed += seq.ResolveFailures()
	failed.merge(seq.failed)

	if p.checkpoints != nil {
		if err := p.saveCheckpoint(ctx, window, failed); err != nil {
			return sum, err
		}
	}
	sum.Elapsed = time.Since(started)
	p.logger.Info("backfill complete",
		zap.String("chain", chain),
		zap.Stringer("window", window),
		zap.Int("candidates", sum.Candidates),
		zap.Int("published", sum.Published),
		zap.Int("duplicates", sum.Duplicates),
		zap.Int("skipped", sum.Skipped),
		zap.Int("dropped", sum.Dropped),
		zap.Int("failed", sum.Failed),
		zap.Duration("elapsed", sum.Elapsed),
	)
	return sum, nil
}

func (p *Processor) saveCheckpoint(ctx context.Context, window Window, failed failures) error {
	last := window.To
	if failed.count > 0 {
		p.logger.Warn("checkpoint held back", zap.String("name", p.cfg.Name), zap.Uint64("failed_at", failed.lowest), zap.Int("failures", failed.count))
		if failed.lowest <= window.From {
			return nil
		}
		last = failed.lowest - 1
	}
	if err := p.checkpoints.SaveCheckpoint(ctx, p.cfg.Name, last); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// handle processes one event and reports false when it should be retried.
func (p *Processor) handle(ctx context.Context, ev model.LaunchEvent, overwrite bool, sum *Summary) bool {
	chain := string(p.cfg.Chain)
	if !overwrite && ev.Token != "" {
		exists, err := p.handler.Exists(ctx, ev.Token)
		if err != nil {
			p.logger.Warn("check existing launch", zap.String("token", ev.Token), zap.Error(err))
			p.metrics.BackfillCandidate(chain, "error")
			sum.Failed++
			return false
		}
		if exists {
			p.metrics.BackfillCandidate(chain, "skipped")
			sum.Skipped++
			return true
		}
	}

	out, err := p.handler.Process(ctx, ev, overwrite)
	if err != nil {
		p.logger.Warn("backfill event failed", zap.String("token", ev.Token), zap.String("tx", ev.TxID), zap.Error(err))
		p.metrics.BackfillCandidate(chain, "error")
		sum.Failed++
		return false
	}
	p.metrics.BackfillCandidate(chain, out.String())
	switch out {
	case launch.Published:
		sum.Published++
	case launch.Duplicate:
		sum.Duplicates++
	case launch.Dropped:
		sum.Dropped++
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
