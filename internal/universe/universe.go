// Package universe holds the priority-tiered instrument list the discovery
// step walks. Tiers are configuration data, not control flow: higher
// priority is scanned first, and the fallback pass uses the top tier only.
package universe

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Tier is one priority band of instruments.
type Tier struct {
	Priority int      // higher = scanned first, wins ranking ties
	Symbols  []string // tickers in scan order
}

// Universe is an ordered set of tiers, highest priority first.
type Universe struct {
	tiers []Tier
}

// Parse builds a Universe from a spec string of the form
// "3:EURUSD,GBPUSD;2:EURJPY;1:XAUUSD". Tiers are sorted by priority
// descending regardless of spec order. Duplicate symbols keep their
// first (highest-priority) occurrence.
func Parse(spec string) (*Universe, error) {
	var tiers []Tier

	for _, part := range strings.Split(spec, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pieces := strings.SplitN(part, ":", 2)
		if len(pieces) != 2 {
			return nil, fmt.Errorf("universe: malformed tier %q (want priority:SYM,SYM)", part)
		}
		prio, err := strconv.Atoi(strings.TrimSpace(pieces[0]))
		if err != nil || prio <= 0 {
			return nil, fmt.Errorf("universe: invalid priority in %q", part)
		}

		var symbols []string
		for _, s := range strings.Split(pieces[1], ",") {
			s = strings.ToUpper(strings.TrimSpace(s))
			if s == "" {
				continue
			}
			symbols = append(symbols, s)
		}
		if len(symbols) == 0 {
			continue
		}
		tiers = append(tiers, Tier{Priority: prio, Symbols: symbols})
	}

	if len(tiers) == 0 {
		return nil, fmt.Errorf("universe: no instruments in spec %q", spec)
	}

	sort.SliceStable(tiers, func(i, j int) bool {
		return tiers[i].Priority > tiers[j].Priority
	})

	// Dedup after sorting so a symbol listed in several tiers lands in the
	// highest-priority one, not wherever it first appeared in the spec string.
	seen := make(map[string]bool)
	out := tiers[:0]
	for _, t := range tiers {
		var kept []string
		for _, s := range t.Symbols {
			if seen[s] {
				continue
			}
			seen[s] = true
			kept = append(kept, s)
		}
		if len(kept) == 0 {
			continue
		}
		t.Symbols = kept
		out = append(out, t)
	}
	return &Universe{tiers: out}, nil
}

// Tiers returns the tiers in descending priority order.
func (u *Universe) Tiers() []Tier {
	return u.tiers
}

// Top returns the highest-priority tier (used by the fallback pass).
func (u *Universe) Top() Tier {
	return u.tiers[0]
}

// Size returns the total number of instruments across all tiers.
func (u *Universe) Size() int {
	n := 0
	for _, t := range u.tiers {
		n += len(t.Symbols)
	}
	return n
}
