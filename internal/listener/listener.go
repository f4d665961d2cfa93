// Package listener keeps one live launch subscription per chain running.
package listener

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"launchscope/internal/launch"
	"launchscope/internal/model"
	"launchscope/internal/observability"
)

// Handler processes one live event.
type Handler interface {
	Process(ctx context.Context, ev model.LaunchEvent, overwrite bool) (launch.Outcome, error)
}

// Config tunes reconnects.
type Config struct {
	Chain     model.Chain
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Buffer    int
	// Ready, if set, is closed once the first subscription is open.
	Ready chan struct{}
}

// Listener owns the live path of one chain. Events are processed by a single
// worker, one at a time.
type Listener struct {
	cfg        Config
	subscriber Subscriber
	handler    Handler
	logger     *zap.Logger
	metrics    *observability.Metrics
}

func New(cfg Config, subscriber Subscriber, handler Handler, logger *zap.Logger, metrics *observability.Metrics) *Listener {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = 60 * time.Second
		if cfg.MaxDelay < cfg.BaseDelay {
			cfg.MaxDelay = cfg.BaseDelay
		}
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{
		cfg:        cfg,
		subscriber: subscriber,
		handler:    handler,
		logger:     logger.With(zap.String("chain", string(cfg.Chain))),
		metrics:    metrics,
	}
}

// Handle is the running subscription started by Start. Closing it tears the
// subscription and its worker down.
type Handle struct {
	sub    Subscription
	cancel context.CancelFunc
	errc   chan error
	done   chan struct{}
	once   sync.Once
	onStop func()
}

// Err delivers the error that ended the subscription.
func (h *Handle) Err() <-chan error {
	return h.errc
}

// Close unsubscribes and waits for the worker. It is safe to call more than once.
func (h *Handle) Close() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		h.sub.Unsubscribe()
		h.cancel()
		<-h.done
		if h.onStop != nil {
			h.onStop()
		}
	})
}

// Start retires prev, if any, and opens a new subscription.
func (l *Listener) Start(ctx context.Context, prev *Handle) (*Handle, error) {
	prev.Close()

	hctx, cancel := context.WithCancel(ctx)
	events := make(chan model.LaunchEvent, l.cfg.Buffer)
	sub, err := l.subscriber.Subscribe(hctx, events)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe %s: %w", l.cfg.Chain, err)
	}
	l.metrics.SubscriptionOpened(string(l.cfg.Chain))
	l.logger.Info("live subscription opened")

	h := &Handle{
		sub:    sub,
		cancel: cancel,
		errc:   make(chan error, 1),
		done:   make(chan struct{}),
		onStop: func() {
			l.metrics.SubscriptionClosed(string(l.cfg.Chain))
		},
	}
	go l.work(hctx, h, events)
	return h, nil
}

func (l *Listener) work(ctx context.Context, h *Handle, events <-chan model.LaunchEvent) {
	defer close(h.done)
	subErr := h.sub.Err()
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-subErr:
			if !ok || err == nil {
				err = errors.New("subscription closed")
			}
			h.errc <- err
			return
		case ev := <-events:
			out, err := l.handler.Process(ctx, ev, false)
			if err != nil {
				l.logger.Warn("live event failed", zap.String("token", ev.Token), zap.String("tx", ev.TxID), zap.Error(err))
				continue
			}
			l.logger.Debug("live event processed", zap.String("token", ev.Token), zap.Stringer("outcome", out))
		}
	}
}

// Run keeps a subscription open until ctx ends. Failed setups and broken
// streams are retried forever with a doubling, capped delay.
func (l *Listener) Run(ctx context.Context) error {
	bo := newReconnectBackOff(l.cfg.BaseDelay, l.cfg.MaxDelay)
	var (
		h     *Handle
		timer *time.Timer
		ready sync.Once
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
		h.Close()
	}()

	for {
		next, err := l.Start(ctx, h)
		h = next
		if err == nil {
			bo.Reset()
			if l.cfg.Ready != nil {
				ready.Do(func() { close(l.cfg.Ready) })
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case err = <-h.Err():
				l.logger.Warn("live subscription ended", zap.Error(err))
			}
		} else {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.logger.Warn("live subscription setup failed", zap.Error(err))
		}

		delay := bo.NextBackOff()
		l.metrics.Reconnect(string(l.cfg.Chain))
		l.logger.Info("reconnect scheduled", zap.Duration("delay", delay))
		if timer != nil {
			timer.Stop()
		}
		timer = time.NewTimer(delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// newReconnectBackOff doubles from base up to ceiling and never gives up.
func newReconnectBackOff(base, ceiling time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = ceiling
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
