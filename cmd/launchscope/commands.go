package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"launchscope/internal/backfill"
	"launchscope/internal/config"
	"launchscope/internal/launch"
	"launchscope/internal/listener"
	"launchscope/internal/model"
)

func runBackfill(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, "backfill", func(ctx context.Context, a *app) error {
		if err := checkWindow(a.cfg); err != nil {
			return err
		}
		return a.eachChain(ctx, func(ctx context.Context, rt *chainRuntime) error {
			_, err := a.backfill(ctx, rt, backfill.Window{From: a.cfg.Backfill.From, To: a.cfg.Backfill.To})
			return err
		})
	})
}

func runListen(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, "live", func(ctx context.Context, a *app) error {
		return a.eachChain(ctx, func(ctx context.Context, rt *chainRuntime) error {
			return a.listen(ctx, rt, nil)
		})
	})
}

// runAll backfills each chain from its checkpoint to the head and then hands
// the chain to the live listener. A failed backfill is logged and the
// listener still starts.
func runAll(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, "run", func(ctx context.Context, a *app) error {
		if err := checkWindow(a.cfg); err != nil {
			return err
		}
		return a.eachChain(ctx, a.backfillThenListen)
	})
}

// backfillThenListen runs the backfill, opens the live subscription and then
// backfills again from the end of the first window to the new head, so
// launches that landed while the first pass ran are not missed.
func (a *app) backfillThenListen(ctx context.Context, rt *chainRuntime) error {
	window := backfill.Window{From: a.cfg.Backfill.From, To: a.cfg.Backfill.To}
	sum, err := a.backfill(ctx, rt, window)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.logger.Error("backfill failed", zap.String("chain", string(rt.chain)), zap.Error(err))
	}
	if err != nil || window.To != 0 {
		return a.listen(ctx, rt, nil)
	}

	ready := make(chan struct{})
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.listen(ctx, rt, ready) })
	g.Go(func() error {
		select {
		case <-ctx.Done():
			return nil
		case <-ready:
		}
		if _, err := a.backfill(ctx, rt, backfill.Window{From: sum.Window.To + 1}); err != nil && ctx.Err() == nil {
			a.logger.Error("catch-up backfill failed", zap.String("chain", string(rt.chain)), zap.Error(err))
		}
		return nil
	})
	return g.Wait()
}

func runRefresh(cmd *cobra.Command, _ []string) error {
	all, _ := cmd.Flags().GetBool("all")
	interval, _ := cmd.Flags().GetDuration("interval")
	id, _ := cmd.Flags().GetString("id")
	since, _ := cmd.Flags().GetUint64("since")
	req := launch.RefreshRequest{LaunchID: id, Since: since}
	req.Token, _ = cmd.Flags().GetString("token")
	req.Creator, _ = cmd.Flags().GetString("creator")
	req.CreatorInitialTokens, _ = cmd.Flags().GetString("initial")
	req.Description, _ = cmd.Flags().GetString("description")
	req.ExcludeTx, _ = cmd.Flags().GetString("exclude-tx")

	return withApp(cmd, "refresh", func(ctx context.Context, a *app) error {
		if all {
			return a.refreshAll(ctx, interval)
		}
		stats, err := a.refreshOne(ctx, req)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), stats)
	})
}

// withApp loads the configuration, wires the app and runs fn with a context
// that ends on SIGINT or SIGTERM.
func withApp(cmd *cobra.Command, source string, fn func(context.Context, *app) error) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, cfg, logger, source)
	if err != nil {
		return err
	}
	defer a.Close()

	g, ctx := errgroup.WithContext(ctx)
	metricsCtx, stopMetrics := context.WithCancel(ctx)
	g.Go(func() error { return a.serveMetrics(metricsCtx) })
	g.Go(func() error {
		defer stopMetrics()
		return fn(ctx, a)
	})
	return exitErr(g.Wait())
}

// eachChain runs fn for every selected chain concurrently. The first failure
// cancels the others.
func (a *app) eachChain(ctx context.Context, fn func(context.Context, *chainRuntime) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, rt := range a.chains {
		rt := rt
		g.Go(func() error {
			if err := fn(ctx, rt); err != nil {
				return fmt.Errorf("%s: %w", rt.chain, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (a *app) backfill(ctx context.Context, rt *chainRuntime, window backfill.Window) (backfill.Summary, error) {
	proc := backfill.NewProcessor(backfill.Config{
		Chain:     rt.chain,
		PageSize:  rt.pageSize,
		ItemDelay: a.cfg.Backfill.ItemDelay,
	}, rt.pager, rt.pipeline, a.stores.checkpoints, a.logger.Named(string(rt.chain)), a.metrics)

	a.logger.Info("backfill start",
		zap.String("chain", string(rt.chain)),
		zap.Uint64("from", window.From),
		zap.Uint64("to", window.To),
		zap.Int("page_size", rt.pageSize),
		zap.Bool("overwrite", a.cfg.Backfill.Overwrite),
		zap.Bool("checkpoint_enabled", a.stores.checkpoints != nil),
	)
	return proc.Run(ctx, window, a.cfg.Backfill.Overwrite)
}

// listen runs the live listener until ctx ends. ready, if not nil, is closed
// once the first subscription is open.
func (a *app) listen(ctx context.Context, rt *chainRuntime, ready chan struct{}) error {
	l := listener.New(listener.Config{
		Chain:     rt.chain,
		BaseDelay: a.cfg.Listener.ReconnectBase,
		MaxDelay:  a.cfg.Listener.ReconnectMax,
		Ready:     ready,
	}, rt.subscriber, rt.pipeline, a.logger.Named(string(rt.chain)), a.metrics)

	a.logger.Info("listener start", zap.String("chain", string(rt.chain)))
	return l.Run(ctx)
}

// refreshAll refreshes every stored launch once, or every interval until ctx
// ends when interval is positive.
func (a *app) refreshAll(ctx context.Context, interval time.Duration) error {
	round := func(ctx context.Context) error {
		return a.eachChain(ctx, func(ctx context.Context, rt *chainRuntime) error {
			_, err := rt.refresher.RefreshAll(ctx)
			return err
		})
	}
	if interval <= 0 {
		return round(ctx)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := round(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Warn("refresh round failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// refreshOne refreshes a stored launch by id, or an ad hoc request on the
// single selected chain.
func (a *app) refreshOne(ctx context.Context, req launch.RefreshRequest) (model.TokenStats, error) {
	if req.LaunchID != "" && a.stores.stats != nil {
		rec, err := a.stores.stats.GetLaunch(ctx, req.LaunchID)
		if err != nil {
			return model.TokenStats{}, fmt.Errorf("load launch %s: %w", req.LaunchID, err)
		}
		rt, ok := a.runtime(rec.Chain)
		if !ok {
			return model.TokenStats{}, fmt.Errorf("launch %s is on %s, which is not selected", rec.ID, rec.Chain)
		}
		return rt.refresher.RefreshLaunch(ctx, rec)
	}
	if len(a.chains) != 1 {
		return model.TokenStats{}, fmt.Errorf("refresh without a stored launch needs a single --chain")
	}
	return a.chains[0].refresher.RefreshTokenStats(ctx, req)
}

// checkWindow rejects explicit block or slot bounds across both chains, since
// the numbers are not comparable between them.
func checkWindow(cfg config.Config) error {
	chains, err := cfg.Chains()
	if err != nil {
		return err
	}
	if len(chains) > 1 && (cfg.Backfill.From != 0 || cfg.Backfill.To != 0) {
		return fmt.Errorf("from and to need a single --chain")
	}
	return nil
}
