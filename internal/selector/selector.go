// Package selector decides, per carrier line, which candidate IPs should be
// published on DNS. It balances proven incumbents against better newcomers
// under a stability margin, and never exceeds the line's record cap.
package selector

import (
	"bytes"
	"net"
	"sort"
	"strings"

	"github.com/talkincode/toughdns/internal/engine"
)

// Candidate is one scored IP competing for a line's record slots.
type Candidate struct {
	IP               string
	Score            float64 // blended score in [0,1]
	MeanLatencyMs    float64
	HardFilterPassed bool
	Bad              bool
}

// Select computes the desired record set for one line.
//
// Candidates that failed the hard filter or are flagged bad are excluded
// before ranking; an incumbent missing from the candidate list had no data
// this round and is therefore dropped. A newcomer displaces an incumbent
// only when its score beats the incumbent's by strictly more than margin.
// The result is ordered by rank and never longer than cap; under-filling is
// allowed, records are never manufactured.
func Select(line engine.Line, candidates []Candidate, incumbents []string, cap int, margin float64) []Candidate {
	if cap <= 0 {
		return nil
	}

	survivors := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.HardFilterPassed && !c.Bad {
			survivors = append(survivors, c)
		}
	}
	sortByRank(survivors)

	published := make(map[string]bool, len(incumbents))
	for _, ip := range incumbents {
		published[ip] = true
	}

	var incs, fresh []Candidate
	for _, c := range survivors {
		if published[c.IP] {
			incs = append(incs, c)
		} else {
			fresh = append(fresh, c)
		}
	}

	// Incumbents claim slots first, best ranked first.
	kept := make([]Candidate, 0, cap)
	keptIncumbent := make(map[string]bool)
	for _, c := range incs {
		if len(kept) == cap {
			break
		}
		kept = append(kept, c)
		keptIncumbent[c.IP] = true
	}

	// Newcomers fill spare capacity by rank, then challenge the weakest
	// remaining incumbent under the stability margin.
	for _, n := range fresh {
		if len(kept) < cap {
			kept = append(kept, n)
			continue
		}
		wi := weakestIncumbent(kept, keptIncumbent)
		if wi < 0 {
			break // slots held by stronger newcomers only
		}
		// Strictly beat the incumbent's raised bar. Comparing the score
		// difference instead loses the exact-margin case to float rounding.
		if n.Score > kept[wi].Score+margin {
			delete(keptIncumbent, kept[wi].IP)
			kept[wi] = n
		} else {
			// Weaker newcomers cannot beat the margin either.
			break
		}
	}

	sortByRank(kept)
	return kept
}

func weakestIncumbent(kept []Candidate, isIncumbent map[string]bool) int {
	idx := -1
	for i, c := range kept {
		if !isIncumbent[c.IP] {
			continue
		}
		if idx < 0 || less(kept[idx], c) {
			idx = i
		}
	}
	return idx
}

func sortByRank(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		return less(cs[i], cs[j])
	})
}

// less ranks i ahead of j: higher score, then lower latency, then smaller IP.
func less(i, j Candidate) bool {
	if i.Score != j.Score {
		return i.Score > j.Score
	}
	if i.MeanLatencyMs != j.MeanLatencyMs {
		return i.MeanLatencyMs < j.MeanLatencyMs
	}
	return compareIP(i.IP, j.IP) < 0
}

func compareIP(a, b string) int {
	ipa, ipb := net.ParseIP(a), net.ParseIP(b)
	if ipa != nil && ipb != nil {
		return bytes.Compare(ipa.To16(), ipb.To16())
	}
	return strings.Compare(a, b)
}
