package backfill

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"launchscope/internal/model"
	"launchscope/internal/observability"
)

// State is the phase of a backfill sequence.
type State int

const (
	StateFetching State = iota
	StateFiltering
	StateProcessing
	StateDone
)

func (s State) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StateFiltering:
		return "filtering"
	case StateProcessing:
		return "processing"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Sequence is a lazy, finite and restartable walk over the launch events of
// a window, newest first. Pages are fetched on demand.
type Sequence struct {
	pager    Pager
	window   Window
	pageSize int
	logger   *zap.Logger
	metrics  *observability.Metrics
	chain    string

	state   State
	limit   int
	cursor  string
	last    bool
	pending []Candidate
	events  []model.LaunchEvent
	seen    int
	failed  failures
}

// failures counts unprocessed positions and remembers the lowest one.
type failures struct {
	count  int
	lowest uint64
}

func (f *failures) add(pos uint64) {
	if f.count == 0 || pos < f.lowest {
		f.lowest = pos
	}
	f.count++
}

func (f *failures) merge(o failures) {
	if o.count == 0 {
		return
	}
	if f.count == 0 || o.lowest < f.lowest {
		f.lowest = o.lowest
	}
	f.count += o.count
}

// NewSequence builds a sequence over window. window.To must already be resolved.
func NewSequence(pager Pager, window Window, pageSize int, logger *zap.Logger) *Sequence {
	if pageSize <= 0 {
		pageSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Sequence{pager: pager, window: window, pageSize: pageSize, logger: logger}
	s.Reset()
	return s
}

// Reset rewinds the sequence to the top of its window.
func (s *Sequence) Reset() {
	s.state = StateFetching
	s.limit = s.pageSize
	s.cursor = ""
	s.last = false
	s.pending = nil
	s.events = nil
	s.seen = 0
	s.failed = failures{}
}

// State returns the current phase.
func (s *Sequence) State() State {
	return s.state
}

// Limit returns the current page size. It shrinks after long-term storage errors.
func (s *Sequence) Limit() int {
	return s.limit
}

// Candidates returns how many in-window candidates were resolved so far.
func (s *Sequence) Candidates() int {
	return s.seen
}

// ResolveFailures returns how many candidates could not be resolved.
func (s *Sequence) ResolveFailures() int {
	return s.failed.count
}

// Next returns the next launch event. It returns false once the window is exhausted.
func (s *Sequence) Next(ctx context.Context) (model.LaunchEvent, bool, error) {
	for {
		if err := ctx.Err(); err != nil {
			return model.LaunchEvent{}, false, err
		}
		if len(s.events) > 0 {
			ev := s.events[0]
			s.events = s.events[1:]
			return ev, true, nil
		}
		switch s.state {
		case StateDone:
			return model.LaunchEvent{}, false, nil
		case StateFetching:
			if err := s.fetch(ctx); err != nil {
				return model.LaunchEvent{}, false, err
			}
		case StateFiltering:
			s.filter()
		case StateProcessing:
			s.resolveNext(ctx)
		}
	}
}

func (s *Sequence) fetch(ctx context.Context) error {
	for {
		page, err := s.pager.Page(ctx, s.window, s.cursor, s.limit)
		if err == nil {
			s.metrics.PageSize(s.chain, s.limit)
			s.pending = page.Candidates
			s.last = page.Done || page.Next == ""
			s.cursor = page.Next
			s.state = StateFiltering
			return nil
		}
		if !s.pager.Shrinkable(err) || s.limit <= 1 {
			return fmt.Errorf("page %s at cursor %q: %w", s.window, s.cursor, err)
		}
		next := s.limit / 2
		s.logger.Warn("shrink backfill page",
			zap.String("window", s.window.String()),
			zap.String("cursor", s.cursor),
			zap.Int("from_limit", s.limit),
			zap.Int("to_limit", next),
			zap.Error(err),
		)
		s.limit = next
	}
}

// filter keeps in-window candidates and ends paging at the first one older
// than the window.
func (s *Sequence) filter() {
	kept := make([]Candidate, 0, len(s.pending))
	for _, c := range s.pending {
		if c.Position > s.window.To {
			continue
		}
		if c.Position < s.window.From {
			s.last = true
			break
		}
		kept = append(kept, c)
	}
	s.pending = kept
	s.state = StateProcessing
}

func (s *Sequence) resolveNext(ctx context.Context) {
	if len(s.pending) == 0 {
		if s.last {
			s.state = StateDone
		} else {
			s.state = StateFetching
		}
		return
	}
	c := s.pending[0]
	s.pending = s.pending[1:]
	s.seen++
	events, err := s.pager.Resolve(ctx, c)
	if err != nil {
		s.logger.Warn("resolve backfill candidate", zap.String("id", c.ID), zap.Uint64("position", c.Position), zap.Error(err))
		s.metrics.BackfillCandidate(s.chain, "resolve_error")
		s.failed.add(c.Position)
		return
	}
	if len(events) == 0 {
		s.metrics.BackfillCandidate(s.chain, "not_launch")
	}
	s.events = append(s.events, events...)
}
