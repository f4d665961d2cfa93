package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"launchscope/internal/backfill"
	"launchscope/internal/cache"
	"launchscope/internal/chain/evm"
	"launchscope/internal/chain/solana"
	"launchscope/internal/classify"
	"launchscope/internal/config"
	"launchscope/internal/launch"
	"launchscope/internal/listener"
	"launchscope/internal/model"
	"launchscope/internal/observability"
	"launchscope/internal/ratelimit"
	"launchscope/internal/registry"
	"launchscope/internal/storage"
	"launchscope/internal/storage/clickhouse"
	"launchscope/internal/storage/kafka"
	"launchscope/internal/storage/memory"
	"launchscope/internal/storage/postgres"
)

const (
	tokenCacheTTL   = 24 * time.Hour
	metadataTimeout = 10 * time.Second
)

// stores groups the persistence roles. Any of them but publisher may be nil.
type stores struct {
	publisher   storage.LaunchPublisher
	stats       storage.StatsStore
	history     storage.StatsHistory
	audit       storage.AuditSink
	checkpoints storage.CheckpointStore
}

// chainRuntime is everything one chain needs to ingest and refresh launches.
type chainRuntime struct {
	chain      model.Chain
	pager      backfill.Pager
	subscriber listener.Subscriber
	pipeline   *launch.Pipeline
	refresher  *launch.Refresher
	pageSize   int
}

type app struct {
	cfg      config.Config
	logger   *zap.Logger
	gatherer *prometheus.Registry
	metrics  *observability.Metrics
	known    *registry.Registry
	stores   stores
	chains   []*chainRuntime
	closers  []func()
}

// newApp wires stores and every selected chain. source labels the event
// metrics of the pipelines.
func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger, source string) (*app, error) {
	reg := prometheus.NewRegistry()
	a := &app{
		cfg:      cfg,
		logger:   logger,
		gatherer: reg,
		metrics:  observability.NewMetrics(reg),
	}

	known, err := knownRegistry(cfg.KnownAddresses)
	if err != nil {
		return nil, err
	}
	a.known = known

	if err := a.openStores(ctx); err != nil {
		a.Close()
		return nil, err
	}

	tokenCache, err := a.tokenCache(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	chains, err := cfg.Chains()
	if err != nil {
		a.Close()
		return nil, err
	}
	for _, chain := range chains {
		var rt *chainRuntime
		switch chain {
		case model.ChainEVM:
			rt, err = a.buildEVM(ctx, tokenCache, source)
		case model.ChainSolana:
			rt, err = a.buildSolana(tokenCache, source)
		}
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("%s: %w", chain, err)
		}
		a.chains = append(a.chains, rt)
	}
	return a, nil
}

// Close releases clients and stores in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

func (a *app) runtime(chain model.Chain) (*chainRuntime, bool) {
	for _, rt := range a.chains {
		if rt.chain == chain {
			return rt, true
		}
	}
	return nil, false
}

func (a *app) openStores(ctx context.Context) error {
	cfg := a.cfg
	switch cfg.Store.Kind {
	case config.StoreMemory:
		s := memory.NewStore()
		a.stores = stores{publisher: s, stats: s, history: s, audit: s, checkpoints: s}
	case config.StoreJSONL:
		pub, err := storage.OpenJsonlPublisher(cfg.Store.Out)
		if err != nil {
			return err
		}
		a.stores = stores{publisher: pub, stats: pub}
		if cfg.Store.AuditOut != "" {
			a.stores.audit = storage.NewJsonlAudit(cfg.Store.AuditOut)
		}
		if cfg.Backfill.CheckpointEnabled && cfg.Backfill.Checkpoint != "" {
			a.stores.checkpoints = backfill.NewFileCheckpoints(cfg.Backfill.Checkpoint)
		}
	case config.StorePostgres:
		pg, err := postgres.NewStore(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		a.onClose(pg.Close)
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		a.stores = stores{publisher: pg, stats: pg, audit: pg}
		if cfg.Backfill.CheckpointEnabled {
			a.stores.checkpoints = pg
		}
	default:
		return fmt.Errorf("unknown store %q", cfg.Store.Kind)
	}

	if cfg.Store.ClickHouseDSN != "" {
		history, err := clickhouse.Open(ctx, cfg.Store.ClickHouseDSN)
		if err != nil {
			return fmt.Errorf("connect clickhouse: %w", err)
		}
		a.onClose(func() { _ = history.Close() })
		a.stores.history = history
	}

	if len(cfg.Store.KafkaBrokers) > 0 {
		notifier, err := kafka.NewNotifier(a.stores.publisher, kafka.Config{
			Brokers: cfg.Store.KafkaBrokers,
			Topic:   cfg.Store.KafkaTopic,
		}, a.logger.Named("kafka"))
		if err != nil {
			return err
		}
		a.onClose(func() { _ = notifier.Close() })
		a.stores.publisher = notifier
	}
	return nil
}

func (a *app) tokenCache(ctx context.Context) (cache.TokenCache, error) {
	if a.cfg.Store.RedisAddr == "" {
		return cache.NewMemory(), nil
	}
	rc := cache.NewRedis(a.cfg.Store.RedisAddr, "", 0, tokenCacheTTL, a.logger.Named("cache"))
	if err := rc.Ping(ctx); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.onClose(func() { _ = rc.Close() })
	return rc, nil
}

func (a *app) limiter(chain model.Chain, retryable func(error) bool) *ratelimit.Client {
	rpc := a.cfg.RPC
	limiter := ratelimit.New(ratelimit.Config{
		Name:              string(chain),
		RequestsPerSecond: rpc.RequestsPerSecond,
		MinInterval:       rpc.MinInterval,
		CallTimeout:       rpc.CallTimeout,
		Retry: ratelimit.Policy{
			InitialDelay: rpc.RetryInitial,
			Multiplier:   rpc.RetryMultiplier,
			MaxDelay:     rpc.RetryMaxDelay,
			MaxRetries:   rpc.MaxRetries,
		},
		Retryable: retryable,
	}, ratelimit.WithLogger(a.logger.Named(string(chain))), ratelimit.WithMetrics(a.metrics))
	a.onClose(limiter.Close)
	return limiter
}

func (a *app) buildEVM(ctx context.Context, tokenCache cache.TokenCache, source string) (*chainRuntime, error) {
	cfg := a.cfg.EVM
	logger := a.logger.Named("evm")
	limiter := a.limiter(model.ChainEVM, evm.Retryable)

	client, err := evm.NewClient(ctx, cfg.RPCURL, limiter)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}
	a.onClose(client.Close)

	var subscriber evm.LogSubscriber
	if cfg.WSURL != "" {
		ws, err := evm.NewClient(ctx, cfg.WSURL, limiter)
		if err != nil {
			return nil, fmt.Errorf("connect websocket: %w", err)
		}
		a.onClose(ws.Close)
		subscriber = ws
	}

	src, err := evm.NewSource(client, subscriber, evm.SourceConfig{
		Launchpad:    cfg.Launchpad,
		BlockSpan:    cfg.BlockSpan,
		PollInterval: cfg.PollInterval,
	}, logger)
	if err != nil {
		return nil, err
	}

	lister := evm.NewTransferLister(client, cfg.BlockSpan, logger)
	return a.assemble(model.ChainEVM, source, src, src, int(cfg.BlockSpan),
		evm.NewTokenReader(client, tokenCache, logger),
		evm.NewBalanceResolver(client, logger),
		lister, lister, nil)
}

func (a *app) buildSolana(tokenCache cache.TokenCache, source string) (*chainRuntime, error) {
	cfg := a.cfg.Solana
	logger := a.logger.Named("solana")
	limiter := a.limiter(model.ChainSolana, solana.Retryable)

	client, err := solana.NewClient(cfg.RPCURL, limiter)
	if err != nil {
		return nil, err
	}
	a.onClose(func() { _ = client.Close() })

	idl, err := solana.PumpFunIDL()
	if err != nil {
		return nil, err
	}
	decoder, err := solana.NewDecoder(idl)
	if err != nil {
		return nil, err
	}

	wsURL := cfg.WSURL
	if wsURL == "" {
		wsURL = websocketURL(cfg.RPCURL)
	}
	src, err := solana.NewSource(client, solana.WebsocketDialer(wsURL, solana.DefaultWSConfig()), cfg.Program, decoder, logger)
	if err != nil {
		return nil, err
	}

	var images launch.ImageFetcher
	if a.cfg.FetchMetadata {
		images = solana.NewMetadataFetcher(metadataTimeout)
	}

	lister := solana.NewTransferLister(client, logger)
	return a.assemble(model.ChainSolana, source, src, src, cfg.PageSize,
		solana.NewTokenReader(client, tokenCache, logger),
		solana.NewBalanceResolver(client, logger),
		lister, lister, images)
}

// assemble builds the classifier, pipeline and refresher shared by both chains.
func (a *app) assemble(
	chain model.Chain,
	source string,
	pager backfill.Pager,
	subscriber listener.Subscriber,
	pageSize int,
	tokens launch.TokenReader,
	balances launch.BalanceResolver,
	lister classify.TransferLister,
	checker classify.ContractChecker,
	images launch.ImageFetcher,
) (*chainRuntime, error) {
	logger := a.logger.Named(string(chain))
	classifier := classify.New(chain, a.known, lister, checker, classify.Options{
		TopN:    a.cfg.TopTransfers,
		Logger:  logger,
		Metrics: a.metrics,
	})

	pipeline, err := launch.NewPipeline(launch.Deps{
		Chain:      chain,
		Source:     source,
		Tokens:     tokens,
		Balances:   balances,
		Classifier: classifier,
		Registry:   a.known,
		Publisher:  a.stores.publisher,
		Audit:      a.stores.audit,
		Images:     images,
		Logger:     logger,
		Metrics:    a.metrics,
	})
	if err != nil {
		return nil, err
	}

	refresher, err := launch.NewRefresher(launch.RefresherDeps{
		Chain:      chain,
		Tokens:     tokens,
		Balances:   balances,
		Classifier: classifier,
		Stats:      a.stores.stats,
		History:    a.stores.history,
		Logger:     logger,
		Metrics:    a.metrics,
	})
	if err != nil {
		return nil, err
	}

	return &chainRuntime{
		chain:      chain,
		pager:      pager,
		subscriber: subscriber,
		pipeline:   pipeline,
		refresher:  refresher,
		pageSize:   pageSize,
	}, nil
}

// serveMetrics exposes the metrics endpoint until ctx ends. It returns at once
// when no address is configured.
func (a *app) serveMetrics(ctx context.Context) error {
	if a.cfg.MetricsAddr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler(a.gatherer))
	srv := &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	a.logger.Info("metrics endpoint", zap.String("addr", a.cfg.MetricsAddr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// knownRegistry seeds the address registry and adds the configured entries.
// Addresses starting with 0x belong to the EVM chain, all others to Solana.
func knownRegistry(entries []string) (*registry.Registry, error) {
	reg := registry.New(registry.SeedAll()...)
	for _, raw := range entries {
		chain := model.ChainSolana
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(raw)), "0x") {
			chain = model.ChainEVM
		}
		entry, err := registry.ParseEntry(chain, raw)
		if err != nil {
			return nil, err
		}
		reg.Add(entry)
	}
	return reg, nil
}

// websocketURL derives the pubsub endpoint of an HTTP RPC URL.
func websocketURL(rpcURL string) string {
	switch {
	case strings.HasPrefix(rpcURL, "https://"):
		return "wss://" + strings.TrimPrefix(rpcURL, "https://")
	case strings.HasPrefix(rpcURL, "http://"):
		return "ws://" + strings.TrimPrefix(rpcURL, "http://")
	default:
		return rpcURL
	}
}
