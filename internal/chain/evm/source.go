package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"launchscope/internal/backfill"
	"launchscope/internal/listener"
	"launchscope/internal/model"
)

// LaunchpadName labels records produced by the EVM source.
const LaunchpadName = "Virtuals"

// LaunchLog is a decoded Launched event.
type LaunchLog struct {
	Token  common.Address
	Pair   common.Address
	Supply *big.Int
}

// ParseLaunchLog decodes a Launched log. Logs with another signature or shape return false.
func ParseLaunchLog(lg types.Log) (LaunchLog, bool) {
	parsed, err := LaunchpadABI()
	if err != nil || lg.Removed || len(lg.Topics) != 3 {
		return LaunchLog{}, false
	}
	event := parsed.Events["Launched"]
	if lg.Topics[0] != event.ID {
		return LaunchLog{}, false
	}
	values, err := parsed.Unpack("Launched", lg.Data)
	if err != nil || len(values) != 1 {
		return LaunchLog{}, false
	}
	supply, err := asBigInt(values[0])
	if err != nil {
		return LaunchLog{}, false
	}
	return LaunchLog{
		Token:  common.BytesToAddress(lg.Topics[1].Bytes()),
		Pair:   common.BytesToAddress(lg.Topics[2].Bytes()),
		Supply: supply,
	}, true
}

// SourceConfig configures a Source.
type SourceConfig struct {
	Launchpad string
	// BlockSpan bounds live polling queries.
	BlockSpan    uint64
	PollInterval time.Duration
}

// Source is the EVM ChainEventSource. It pages Launched logs for backfill and
// streams them live, by subscription when a streaming backend is given and by
// polling otherwise.
type Source struct {
	backend    Backend
	subscriber LogSubscriber
	launchpad  common.Address
	cfg        SourceConfig
	logger     *zap.Logger
}

// NewSource builds a Source. subscriber may be nil.
func NewSource(backend Backend, subscriber LogSubscriber, cfg SourceConfig, logger *zap.Logger) (*Source, error) {
	if backend == nil {
		return nil, fmt.Errorf("chain backend is nil")
	}
	if !common.IsHexAddress(cfg.Launchpad) {
		return nil, fmt.Errorf("invalid launchpad address %q", cfg.Launchpad)
	}
	if cfg.BlockSpan == 0 {
		cfg.BlockSpan = 2000
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 12 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{
		backend:    backend,
		subscriber: subscriber,
		launchpad:  common.HexToAddress(cfg.Launchpad),
		cfg:        cfg,
		logger:     logger,
	}, nil
}

func (s *Source) query(from, to *big.Int) (ethereum.FilterQuery, error) {
	parsed, err := LaunchpadABI()
	if err != nil {
		return ethereum.FilterQuery{}, err
	}
	return ethereum.FilterQuery{
		FromBlock: from,
		ToBlock:   to,
		Addresses: []common.Address{s.launchpad},
		Topics:    [][]common.Hash{{parsed.Events["Launched"].ID}},
	}, nil
}

// Head returns the latest block.
func (s *Source) Head(ctx context.Context) (uint64, error) {
	return s.backend.BlockNumber(ctx)
}

// Page returns Launched logs from a block span ending at the cursor, newest
// first. limit is the span in blocks.
func (s *Source) Page(ctx context.Context, window backfill.Window, cursor string, limit int) (backfill.Page, error) {
	hi := window.To
	if cursor != "" {
		v, err := strconv.ParseUint(cursor, 10, 64)
		if err != nil {
			return backfill.Page{}, fmt.Errorf("parse cursor %q: %w", cursor, err)
		}
		hi = v
	}
	if hi < window.From {
		return backfill.Page{Done: true}, nil
	}
	if limit <= 0 {
		limit = int(s.cfg.BlockSpan)
	}
	br := spanBelow(hi, window.From, uint64(limit))

	q, err := s.query(new(big.Int).SetUint64(br.From), new(big.Int).SetUint64(br.To))
	if err != nil {
		return backfill.Page{}, err
	}
	logs, err := s.backend.FilterLogs(ctx, q)
	if err != nil {
		return backfill.Page{}, fmt.Errorf("filter launch logs %d-%d: %w", br.From, br.To, err)
	}
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber > logs[j].BlockNumber
		}
		return logs[i].Index > logs[j].Index
	})

	page := backfill.Page{Candidates: make([]backfill.Candidate, 0, len(logs))}
	for _, lg := range logs {
		page.Candidates = append(page.Candidates, backfill.Candidate{
			ID:       fmt.Sprintf("%s:%d", lg.TxHash.Hex(), lg.Index),
			Position: lg.BlockNumber,
			Ref:      lg,
		})
	}
	if br.From <= window.From || br.From == 0 {
		page.Done = true
	} else {
		page.Next = strconv.FormatUint(br.From-1, 10)
	}
	return page, nil
}

// Resolve turns a paged log into a launch event.
func (s *Source) Resolve(ctx context.Context, c backfill.Candidate) ([]model.LaunchEvent, error) {
	lg, ok := c.Ref.(types.Log)
	if !ok {
		return nil, fmt.Errorf("candidate %s: unexpected ref %T", c.ID, c.Ref)
	}
	ev, ok := s.eventFromLog(ctx, lg)
	if !ok {
		return nil, nil
	}
	return []model.LaunchEvent{ev}, nil
}

// Shrinkable reports provider errors that ask for a smaller block range.
func (s *Source) Shrinkable(err error) bool {
	return IsRangeTooLarge(err)
}

// eventFromLog builds the event. Lookup failures leave fields empty so the
// pipeline can drop the event as incomplete.
func (s *Source) eventFromLog(ctx context.Context, lg types.Log) (model.LaunchEvent, bool) {
	launch, ok := ParseLaunchLog(lg)
	if !ok {
		return model.LaunchEvent{}, false
	}
	ev := model.LaunchEvent{
		Chain:     model.ChainEVM,
		Launchpad: LaunchpadName,
		Token:     launch.Token.Hex(),
		Pair:      launch.Pair.Hex(),
		TxID:      lg.TxHash.Hex(),
		Position:  lg.BlockNumber,
		Supply:    launch.Supply,
	}

	creator, err := s.backend.TransactionSender(ctx, lg.TxHash)
	if err != nil {
		s.logger.Warn("resolve launch creator", zap.String("tx", ev.TxID), zap.Error(err))
	} else {
		ev.Creator = creator.Hex()
	}
	ts, err := s.backend.BlockTimestamp(ctx, lg.BlockNumber)
	if err != nil {
		s.logger.Warn("resolve launch timestamp", zap.Uint64("block", lg.BlockNumber), zap.Error(err))
	} else {
		ev.Timestamp = time.Unix(int64(ts), 0).UTC()
	}
	return ev, true
}

// Subscribe streams launches into out until the subscription ends.
func (s *Source) Subscribe(ctx context.Context, out chan<- model.LaunchEvent) (listener.Subscription, error) {
	if s.subscriber != nil {
		return s.subscribeStream(ctx, out)
	}
	return s.subscribePoll(ctx, out)
}

func (s *Source) subscribeStream(ctx context.Context, out chan<- model.LaunchEvent) (listener.Subscription, error) {
	q, err := s.query(nil, nil)
	if err != nil {
		return nil, err
	}
	logs := make(chan types.Log, 64)
	sub, err := s.subscriber.SubscribeFilterLogs(ctx, q, logs)
	if err != nil {
		return nil, fmt.Errorf("subscribe launch logs: %w", err)
	}

	ls := newLogSubscription(ctx)
	go func() {
		defer close(ls.done)
		defer sub.Unsubscribe()
		for {
			select {
			case <-ls.ctx.Done():
				return
			case err := <-sub.Err():
				if err == nil {
					err = errors.New("log subscription closed")
				}
				ls.fail(err)
				return
			case lg := <-logs:
				s.forward(ls.ctx, lg, out)
			}
		}
	}()
	return ls, nil
}

func (s *Source) subscribePoll(ctx context.Context, out chan<- model.LaunchEvent) (listener.Subscription, error) {
	last, err := s.backend.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("get latest block: %w", err)
	}
	s.logger.Info("polling launch logs", zap.Uint64("from_block", last+1), zap.Duration("interval", s.cfg.PollInterval))

	ls := newLogSubscription(ctx)
	go func() {
		defer close(ls.done)
		ticker := time.NewTicker(s.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ls.ctx.Done():
				return
			case <-ticker.C:
			}
			next, err := s.poll(ls.ctx, last, out)
			if err != nil {
				if ls.ctx.Err() != nil {
					return
				}
				ls.fail(err)
				return
			}
			last = next
		}
	}()
	return ls, nil
}

// poll forwards launches in blocks after last and returns the new high-water mark.
func (s *Source) poll(ctx context.Context, last uint64, out chan<- model.LaunchEvent) (uint64, error) {
	head, err := s.backend.BlockNumber(ctx)
	if err != nil {
		return last, fmt.Errorf("get latest block: %w", err)
	}
	if head <= last {
		return last, nil
	}
	ranges, err := SplitRange(last+1, head, s.cfg.BlockSpan)
	if err != nil {
		return last, err
	}
	for _, br := range ranges {
		q, err := s.query(new(big.Int).SetUint64(br.From), new(big.Int).SetUint64(br.To))
		if err != nil {
			return last, err
		}
		logs, err := s.backend.FilterLogs(ctx, q)
		if err != nil {
			return last, fmt.Errorf("filter launch logs %d-%d: %w", br.From, br.To, err)
		}
		for _, lg := range logs {
			s.forward(ctx, lg, out)
		}
		last = br.To
	}
	return last, nil
}

func (s *Source) forward(ctx context.Context, lg types.Log, out chan<- model.LaunchEvent) {
	ev, ok := s.eventFromLog(ctx, lg)
	if !ok {
		s.logger.Debug("skip non-launch log", zap.String("tx", lg.TxHash.Hex()))
		return
	}
	select {
	case out <- ev:
	case <-ctx.Done():
	}
}

// logSubscription owns the goroutine behind a live stream.
type logSubscription struct {
	ctx    context.Context
	cancel context.CancelFunc
	errc   chan error
	done   chan struct{}
	once   sync.Once
}

func newLogSubscription(parent context.Context) *logSubscription {
	ctx, cancel := context.WithCancel(parent)
	return &logSubscription{
		ctx:    ctx,
		cancel: cancel,
		errc:   make(chan error, 1),
		done:   make(chan struct{}),
	}
}

func (s *logSubscription) fail(err error) {
	select {
	case s.errc <- err:
	default:
	}
}

func (s *logSubscription) Err() <-chan error {
	return s.errc
}

func (s *logSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		close(s.errc)
	})
}
