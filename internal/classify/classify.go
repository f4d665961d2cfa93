// Package classify explains where a creator's tokens went after launch.
package classify

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"go.uber.org/zap"

	"launchscope/internal/amount"
	"launchscope/internal/model"
	"launchscope/internal/observability"
	"launchscope/internal/registry"
)

// NoTransfersNarrative is used when the balance fell but no outgoing transfer was found.
const NoTransfersNarrative = "No outgoing transfers found despite a balance reduction - possible contract interaction."

// GraduationNote follows any burn in the narrative.
const GraduationNote = "Tokens sent to a burn address commonly mean the launch graduated to a new token address, which is not necessarily a red flag."

const defaultTopN = 10

// TransferLister lists the creator's outgoing transfers.
type TransferLister interface {
	OutgoingTransfers(ctx context.Context, q model.TransferQuery) ([]model.Transfer, error)
}

// ContractChecker tells contracts from externally owned accounts.
type ContractChecker interface {
	IsContract(ctx context.Context, address string) (bool, error)
}

// Options tunes a Classifier.
type Options struct {
	// TopN bounds how many destinations are inspected. The rest is summed as untracked.
	TopN    int
	Logger  *zap.Logger
	Metrics *observability.Metrics
}

// Classifier is the TokenMovementClassifier for one chain.
type Classifier struct {
	chain    model.Chain
	registry *registry.Registry
	lister   TransferLister
	checker  ContractChecker
	topN     int
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// New builds a Classifier.
func New(chain model.Chain, reg *registry.Registry, lister TransferLister, checker ContractChecker, opts Options) *Classifier {
	if opts.TopN <= 0 {
		opts.TopN = defaultTopN
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Classifier{
		chain:    chain,
		registry: reg,
		lister:   lister,
		checker:  checker,
		topN:     opts.TopN,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
}

// Request describes one creator position to explain.
type Request struct {
	Token     string
	Creator   string
	After     uint64
	ExcludeTx string
	Decimals  uint8
	// Initial and Current are raw balances at launch and now.
	Initial *big.Int
	Current *big.Int
}

// Delta is Initial-Current.
func (r Request) Delta() *big.Int {
	return new(big.Int).Sub(amount.Sum(r.Initial), amount.Sum(r.Current))
}

type destination struct {
	address  string
	amount   *big.Int
	category model.Category
	label    string
}

// Classify lists the creator's outgoing transfers and sorts their
// destinations into burn, lock, sale and unknown buckets. Transfers are
// classified whatever the balance did; the balance delta only decides whether
// an absence of transfers is reported as an unexplained drop.
func (c *Classifier) Classify(ctx context.Context, req Request) (model.Movement, error) {
	mv := model.Movement{
		Burned:    new(big.Int),
		Locked:    new(big.Int),
		Sold:      new(big.Int),
		Unknown:   new(big.Int),
		Untracked: new(big.Int),
	}

	transfers, err := c.lister.OutgoingTransfers(ctx, model.TransferQuery{
		Token:     req.Token,
		Owner:     req.Creator,
		After:     req.After,
		ExcludeTx: req.ExcludeTx,
	})
	if err != nil {
		return mv, fmt.Errorf("list outgoing transfers: %w", err)
	}
	dests := aggregate(c.chain, transfers)
	mv.Total = len(dests)
	if len(dests) == 0 {
		if req.Delta().Sign() > 0 {
			mv.Narrative = NoTransfersNarrative
		}
		return mv, nil
	}

	var mainSell *destination
	for i := range dests {
		d := &dests[i]
		if i >= c.topN {
			mv.Untracked.Add(mv.Untracked, d.amount)
			continue
		}
		c.categorize(ctx, d)
		mv.Classified++
		c.metrics.TransferClassified(string(c.chain), string(d.category))

		switch d.category {
		case model.CategoryBurn:
			mv.Burned.Add(mv.Burned, d.amount)
			mv.SentToBurnAddress = true
		case model.CategoryLock:
			mv.Locked.Add(mv.Locked, d.amount)
		case model.CategoryExchange, model.CategoryContract:
			mv.Sold.Add(mv.Sold, d.amount)
			if mainSell == nil {
				mainSell = d
			}
		default:
			mv.Unknown.Add(mv.Unknown, d.amount)
		}
	}

	if mainSell != nil {
		mv.MainSellingAddress = mainSell.address
		if c.registry.Add(registry.Entry{
			Chain:    c.chain,
			Address:  mainSell.address,
			Label:    "Main selling address for " + req.Token,
			Category: model.CategoryExchange,
		}) {
			c.logger.Info("registered selling address", zap.String("address", mainSell.address), zap.String("token", req.Token))
		}
	}
	mv.Narrative = narrate(mv, dests, mainSell, req)
	return mv, nil
}

func (c *Classifier) categorize(ctx context.Context, d *destination) {
	if e, ok := c.registry.Lookup(c.chain, d.address); ok {
		d.category = e.Category
		d.label = e.Label
		return
	}
	if c.checker != nil {
		isContract, err := c.checker.IsContract(ctx, d.address)
		if err != nil {
			c.logger.Debug("contract check failed", zap.String("address", d.address), zap.Error(err))
		} else if isContract {
			d.category = model.CategoryContract
			return
		}
	}
	d.category = model.CategoryUnknown
}

// aggregate sums transfers per destination, largest first.
func aggregate(chain model.Chain, transfers []model.Transfer) []destination {
	index := make(map[string]int)
	var out []destination
	for _, t := range transfers {
		if t.Amount == nil || t.Amount.Sign() <= 0 {
			continue
		}
		k := registry.Normalize(chain, t.To)
		if i, ok := index[k]; ok {
			out[i].amount.Add(out[i].amount, t.Amount)
			continue
		}
		index[k] = len(out)
		out = append(out, destination{address: t.To, amount: new(big.Int).Set(t.Amount)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].amount.Cmp(out[j].amount) > 0
	})
	return out
}

func narrate(mv model.Movement, dests []destination, mainSell *destination, req Request) string {
	share := func(v *big.Int) string {
		whole := amount.FormatWhole(v, req.Decimals)
		if p, ok := amount.Percent(v, req.Initial); ok {
			return fmt.Sprintf("%s tokens (%s%% of initial)", whole, p)
		}
		return whole + " tokens"
	}

	var parts []string
	if mv.Burned.Sign() > 0 {
		parts = append(parts, fmt.Sprintf("Sent %s to %s.", share(mv.Burned), labelsOf(dests, model.CategoryBurn, "a burn address")), GraduationNote)
	}
	if mv.Locked.Sign() > 0 {
		parts = append(parts, fmt.Sprintf("Locked %s in %s.", share(mv.Locked), labelsOf(dests, model.CategoryLock, "a lock contract")))
	}
	if mv.Sold.Sign() > 0 {
		via := mainSell.label
		if via == "" {
			via = mainSell.address
		}
		parts = append(parts, fmt.Sprintf("Sold or added to liquidity %s, mainly via %s.", share(mv.Sold), via))
	}
	if mv.Unknown.Sign() > 0 {
		n := countOf(dests, model.CategoryUnknown)
		parts = append(parts, fmt.Sprintf("Transferred %s to %d unrecognized wallet%s.", share(mv.Unknown), n, plural(n)))
	}
	if mv.Untracked.Sign() > 0 {
		n := mv.Total - mv.Classified
		parts = append(parts, fmt.Sprintf("A further %s went to %d smaller destination%s.", share(mv.Untracked), n, plural(n)))
	}
	return strings.Join(parts, " ")
}

func labelsOf(dests []destination, category model.Category, fallback string) string {
	var labels []string
	seen := make(map[string]bool)
	for _, d := range dests {
		if d.category != category {
			continue
		}
		l := d.label
		if l == "" {
			l = d.address
		}
		if !seen[l] {
			seen[l] = true
			labels = append(labels, l)
		}
	}
	if len(labels) == 0 {
		return fallback
	}
	return strings.Join(labels, ", ")
}

func countOf(dests []destination, category model.Category) int {
	n := 0
	for _, d := range dests {
		if d.category == category {
			n++
		}
	}
	return n
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
