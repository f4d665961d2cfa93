// Package registry holds the process-wide table of known addresses.
package registry

import (
	"fmt"
	"strings"
	"sync"

	"launchscope/internal/model"
)

// Entry labels an address.
type Entry struct {
	Chain    model.Chain
	Address  string
	Label    string
	Category model.Category
}

// Registry maps addresses to labels. Entries are only ever appended.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// New builds a registry from initial entries. Later duplicates are ignored.
func New(entries ...Entry) *Registry {
	r := &Registry{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		r.Add(e)
	}
	return r
}

// Lookup returns the entry for address on chain.
func (r *Registry) Lookup(chain model.Chain, address string) (Entry, bool) {
	r.mu.RLock()
	e, ok := r.entries[key(chain, address)]
	r.mu.RUnlock()
	return e, ok
}

// Add appends e and reports whether it was new. An existing entry is never replaced.
func (r *Registry) Add(e Entry) bool {
	if e.Address == "" {
		return false
	}
	k := key(e.Chain, e.Address)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[k]; ok {
		return false
	}
	e.Address = Normalize(e.Chain, e.Address)
	r.entries[k] = e
	return true
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Normalize returns the canonical key form of an address on chain.
// EVM addresses are case-insensitive; Solana keys are case-sensitive base58.
func Normalize(chain model.Chain, address string) string {
	address = strings.TrimSpace(address)
	if chain == model.ChainEVM {
		return strings.ToLower(address)
	}
	return address
}

func key(chain model.Chain, address string) string {
	return string(chain) + ":" + Normalize(chain, address)
}

// ParseEntry parses "address=label:category". The category defaults to exchange.
func ParseEntry(chain model.Chain, s string) (Entry, error) {
	addr, rest, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(addr) == "" {
		return Entry{}, fmt.Errorf("invalid known address %q", s)
	}
	label, cat, _ := strings.Cut(rest, ":")
	category := model.CategoryExchange
	if cat = strings.TrimSpace(cat); cat != "" {
		category = model.Category(cat)
		switch category {
		case model.CategoryBurn, model.CategoryLock, model.CategoryExchange:
		default:
			return Entry{}, fmt.Errorf("invalid category %q in %q", cat, s)
		}
	}
	return Entry{
		Chain:    chain,
		Address:  strings.TrimSpace(addr),
		Label:    strings.TrimSpace(label),
		Category: category,
	}, nil
}
