package backfill

import (
	"context"
	"fmt"
	"time"

	"launchscope/internal/model"
)

// Window is an inclusive block or slot range. To=0 means the current head.
type Window struct {
	From uint64
	To   uint64
}

func (w Window) String() string {
	return fmt.Sprintf("[%d, %d]", w.From, w.To)
}

// Contains reports whether pos lies in the window.
func (w Window) Contains(pos uint64) bool {
	return pos >= w.From && pos <= w.To
}

// Candidate is one signature or log found while paging history.
// Ref carries the chain-specific payload needed to resolve it.
type Candidate struct {
	ID       string
	Position uint64
	Time     time.Time
	Ref      any
}

// Page is one page of candidates, newest first.
type Page struct {
	Candidates []Candidate
	Next       string
	Done       bool
}

// Pager lists launchpad activity backwards through history for one chain.
type Pager interface {
	// Head returns the latest block or slot.
	Head(ctx context.Context) (uint64, error)
	// Page returns up to limit candidates older than cursor. An empty cursor starts at the window's upper bound.
	Page(ctx context.Context, window Window, cursor string, limit int) (Page, error)
	// Resolve turns a candidate into zero or more launch events.
	Resolve(ctx context.Context, c Candidate) ([]model.LaunchEvent, error)
	// Shrinkable reports whether a Page error should be retried with a smaller limit.
	Shrinkable(err error) bool
}
