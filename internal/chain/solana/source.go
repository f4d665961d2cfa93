package solana

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"launchscope/internal/backfill"
	"launchscope/internal/listener"
	"launchscope/internal/model"
)

const (
	// LaunchpadName labels records produced by the Solana source.
	LaunchpadName = "Pump.fun"
	// ProgramID is the launchpad program.
	ProgramID = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"

	launchLogMarker = "Instruction: Create"
)

// Dialer opens a log feed for the program.
type Dialer func(ctx context.Context, mentions []string) (LogFeed, error)

// WebsocketDialer returns a Dialer for a websocket endpoint.
func WebsocketDialer(endpoint string, cfg WSConfig) Dialer {
	return func(ctx context.Context, mentions []string) (LogFeed, error) {
		return DialLogs(ctx, endpoint, mentions, cfg)
	}
}

// Source is the Solana ChainEventSource. Live mode follows program logs and
// fetches transactions that announce a create; historical mode pages the
// program's signatures.
type Source struct {
	backend Backend
	dial    Dialer
	program solana.PublicKey
	decoder *Decoder
	logger  *zap.Logger
}

// NewSource builds a Source. dial may be nil when only backfill is used.
func NewSource(backend Backend, dial Dialer, program string, decoder *Decoder, logger *zap.Logger) (*Source, error) {
	if backend == nil {
		return nil, fmt.Errorf("solana backend is nil")
	}
	if decoder == nil {
		return nil, fmt.Errorf("instruction decoder is nil")
	}
	if program == "" {
		program = ProgramID
	}
	pk, err := solana.PublicKeyFromBase58(program)
	if err != nil {
		return nil, fmt.Errorf("parse program id: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{backend: backend, dial: dial, program: pk, decoder: decoder, logger: logger}, nil
}

// Head returns the latest confirmed slot.
func (s *Source) Head(ctx context.Context) (uint64, error) {
	return s.backend.Slot(ctx)
}

// Page lists program signatures before cursor, newest first. Failed
// transactions are left out.
func (s *Source) Page(ctx context.Context, window backfill.Window, cursor string, limit int) (backfill.Page, error) {
	page := SignaturePage{Limit: limit}
	if cursor != "" {
		sig, err := solana.SignatureFromBase58(cursor)
		if err != nil {
			return backfill.Page{}, fmt.Errorf("parse cursor: %w", err)
		}
		page.Before = sig
	}
	sigs, err := s.backend.Signatures(ctx, s.program, page)
	if err != nil {
		return backfill.Page{}, fmt.Errorf("list program signatures: %w", err)
	}

	out := backfill.Page{Candidates: make([]backfill.Candidate, 0, len(sigs))}
	for _, sig := range sigs {
		if sig == nil {
			continue
		}
		out.Next = sig.Signature.String()
		if sig.Err != nil {
			continue
		}
		c := backfill.Candidate{ID: sig.Signature.String(), Position: sig.Slot, Ref: sig.Signature}
		if sig.BlockTime != nil {
			c.Time = sig.BlockTime.Time().UTC()
		}
		out.Candidates = append(out.Candidates, c)
	}
	out.Done = len(sigs) < limit || out.Next == ""
	return out, nil
}

// Resolve fetches the candidate transaction and extracts its launches.
func (s *Source) Resolve(ctx context.Context, c backfill.Candidate) ([]model.LaunchEvent, error) {
	sig, ok := c.Ref.(solana.Signature)
	if !ok {
		return nil, fmt.Errorf("candidate %s: unexpected ref %T", c.ID, c.Ref)
	}
	return s.launchesInTx(ctx, sig)
}

// Shrinkable reports history errors that a smaller page may avoid.
func (s *Source) Shrinkable(err error) bool {
	return IsLongTermStorage(err)
}

func (s *Source) launchesInTx(ctx context.Context, sig solana.Signature) ([]model.LaunchEvent, error) {
	res, err := s.backend.Transaction(ctx, sig)
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", sig, err)
	}
	if res == nil || res.Meta == nil {
		return nil, fmt.Errorf("transaction %s has no meta", sig)
	}
	if res.Meta.Err != nil {
		return nil, nil
	}
	tx, err := DecodeTransaction(res)
	if err != nil {
		return nil, err
	}
	launches := ExtractLaunches(tx, res.Meta, s.program, s.decoder)
	if len(launches) == 0 {
		return nil, nil
	}

	ts, err := s.txTime(ctx, res)
	if err != nil {
		s.logger.Warn("resolve launch timestamp", zap.String("signature", sig.String()), zap.Uint64("slot", res.Slot), zap.Error(err))
	}
	events := make([]model.LaunchEvent, 0, len(launches))
	for _, l := range launches {
		events = append(events, model.LaunchEvent{
			Chain:     model.ChainSolana,
			Launchpad: LaunchpadName,
			Token:     l.Accounts.Mint.String(),
			Creator:   l.Accounts.Creator.String(),
			Pair:      pubkeyString(l.Accounts.BondingCurve),
			TxID:      sig.String(),
			Position:  res.Slot,
			Timestamp: ts,
			Name:      l.Name,
			Symbol:    l.Symbol,
			URI:       l.URI,
		})
	}
	return events, nil
}

// txTime takes the block time from the transaction, then from the slot.
func (s *Source) txTime(ctx context.Context, res *rpc.GetTransactionResult) (time.Time, error) {
	if res.BlockTime != nil {
		return res.BlockTime.Time().UTC(), nil
	}
	return s.backend.BlockTime(ctx, res.Slot)
}

func pubkeyString(pk solana.PublicKey) string {
	if pk.IsZero() {
		return ""
	}
	return pk.String()
}

// MentionsLaunch reports whether program logs announce a create instruction.
func MentionsLaunch(logs []string) bool {
	for _, line := range logs {
		if strings.Contains(line, launchLogMarker) {
			return true
		}
	}
	return false
}

// Subscribe follows program logs and emits launches into out.
func (s *Source) Subscribe(ctx context.Context, out chan<- model.LaunchEvent) (listener.Subscription, error) {
	if s.dial == nil {
		return nil, fmt.Errorf("no websocket endpoint configured")
	}
	feed, err := s.dial(ctx, []string{s.program.String()})
	if err != nil {
		return nil, fmt.Errorf("subscribe program logs: %w", err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &feedSubscription{cancel: cancel, feed: feed, errc: make(chan error, 1), done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		for {
			select {
			case <-subCtx.Done():
				return
			case err := <-feed.Err():
				if err == nil {
					err = errors.New("log feed closed")
				}
				sub.fail(err)
				return
			case n, ok := <-feed.Notifications():
				if !ok {
					// The feed closed its channel; wait for its error.
					select {
					case err := <-feed.Err():
						if err == nil {
							err = errors.New("log feed closed")
						}
						sub.fail(err)
					case <-subCtx.Done():
					}
					return
				}
				s.handleNotification(subCtx, n, out)
			}
		}
	}()
	return sub, nil
}

func (s *Source) handleNotification(ctx context.Context, n LogNotification, out chan<- model.LaunchEvent) {
	if n.Err != nil || !MentionsLaunch(n.Logs) {
		return
	}
	sig, err := solana.SignatureFromBase58(n.Signature)
	if err != nil {
		s.logger.Debug("skip notification with bad signature", zap.String("signature", n.Signature))
		return
	}
	events, err := s.launchesInTx(ctx, sig)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("resolve live launch", zap.String("signature", n.Signature), zap.Error(err))
		}
		return
	}
	for _, ev := range events {
		select {
		case out <- ev:
		case <-ctx.Done():
			return
		}
	}
}

type feedSubscription struct {
	cancel context.CancelFunc
	feed   LogFeed
	errc   chan error
	done   chan struct{}
	once   sync.Once
}

func (s *feedSubscription) fail(err error) {
	select {
	case s.errc <- err:
	default:
	}
}

func (s *feedSubscription) Err() <-chan error {
	return s.errc
}

func (s *feedSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		_ = s.feed.Close()
		<-s.done
		close(s.errc)
	})
}
