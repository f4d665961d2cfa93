// Package ratelimit serializes RPC calls through a FIFO queue that enforces a
// requests-per-second ceiling over any rolling second and a minimum gap between
// dispatches, and retries rate-limited or timed-out attempts with backoff.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"launchscope/internal/observability"
)

// Config configures a Client.
type Config struct {
	// Name labels logs and metrics, usually the chain.
	Name              string
	RequestsPerSecond int
	MinInterval       time.Duration
	// CallTimeout bounds a single attempt. Zero disables it.
	CallTimeout time.Duration
	QueueSize   int
	Retry       Policy
	// Retryable classifies errors; nil means IsTransient.
	Retryable func(error) bool
}

// Option customizes a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithDispatchHook is called from the dispatcher with each dispatch time.
func WithDispatchHook(fn func(time.Time)) Option {
	return func(c *Client) { c.onDispatch = fn }
}

type ticket struct {
	ctx      context.Context
	queuedAt time.Time
	ready    chan struct{}
	err      error
}

// Client is a rate limited RPC gateway. All chain calls go through Submit or Do.
type Client struct {
	cfg        Config
	retryable  func(error) bool
	pacer      *rate.Limiter
	queue      chan *ticket
	window     []time.Time
	logger     *zap.Logger
	metrics    *observability.Metrics
	onDispatch func(time.Time)

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New starts the dispatcher goroutine. Call Close to stop it.
func New(cfg Config, opts ...Option) *Client {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.Retry == (Policy{}) {
		cfg.Retry = DefaultPolicy()
	}
	c := &Client{
		cfg:       cfg,
		retryable: cfg.Retryable,
		queue:     make(chan *ticket, cfg.QueueSize),
		logger:    zap.NewNop(),
		done:      make(chan struct{}),
	}
	if c.retryable == nil {
		c.retryable = IsTransient
	}
	if cfg.MinInterval > 0 {
		c.pacer = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	}
	if cfg.RequestsPerSecond > 0 {
		c.window = make([]time.Time, 0, cfg.RequestsPerSecond)
	}
	for _, opt := range opts {
		opt(c)
	}

	c.wg.Add(1)
	go c.dispatch()
	return c
}

// Close stops the dispatcher. Queued calls fail with ErrClosed.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	c.wg.Wait()
}

// Submit runs fn once a dispatch slot is granted, retrying per the policy.
func (c *Client) Submit(ctx context.Context, op string, fn func(context.Context) error) error {
	attempts, err := c.cfg.Retry.Retry(ctx, c.retryable, func(ctx context.Context, attempt int) error {
		if err := c.acquire(ctx); err != nil {
			return err
		}
		return c.call(ctx, fn)
	}, func(err error, wait time.Duration) {
		c.metrics.RPCRetry(c.cfg.Name, op)
		c.logger.Warn("rpc retry",
			zap.String("op", op),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
	if err != nil {
		c.metrics.RPCCall(c.cfg.Name, op, "error")
		return &RPCError{Op: op, Attempts: attempts, Err: err}
	}
	c.metrics.RPCCall(c.cfg.Name, op, "ok")
	return nil
}

// Do is Submit for calls that return a value.
func Do[T any](ctx context.Context, c *Client, op string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := c.Submit(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, fn func(context.Context) error) error {
	if c.cfg.CallTimeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()
	err := fn(callCtx)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrCallTimeout, err)
	}
	return err
}

func (c *Client) acquire(ctx context.Context) error {
	t := &ticket{ctx: ctx, queuedAt: time.Now(), ready: make(chan struct{})}
	select {
	case c.queue <- t:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
	select {
	case <-t.ready:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
}

func (c *Client) dispatch() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			c.drain()
			return
		case t := <-c.queue:
			t.err = c.waitSlot(t.ctx)
			if t.err == nil {
				c.metrics.QueueWait(c.cfg.Name, time.Since(t.queuedAt))
			}
			close(t.ready)
		}
	}
}

func (c *Client) drain() {
	for {
		select {
		case t := <-c.queue:
			t.err = ErrClosed
			close(t.ready)
		default:
			return
		}
	}
}

// waitSlot blocks until both the minimum interval and the rolling window allow a dispatch.
func (c *Client) waitSlot(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.pacer != nil {
		if err := c.pacer.Wait(ctx); err != nil {
			return err
		}
	}
	if n := c.cfg.RequestsPerSecond; n > 0 && len(c.window) >= n {
		oldest := c.window[len(c.window)-n]
		if wait := time.Until(oldest.Add(time.Second)); wait > 0 {
			if err := c.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}

	now := time.Now()
	if n := c.cfg.RequestsPerSecond; n > 0 {
		if len(c.window) >= n {
			copy(c.window, c.window[len(c.window)-n+1:])
			c.window = c.window[:n-1]
		}
		c.window = append(c.window, now)
	}
	if c.onDispatch != nil {
		c.onDispatch(now)
	}
	return nil
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	case <-timer.C:
		return nil
	}
}
