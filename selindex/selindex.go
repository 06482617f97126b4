// Package selindex aggregates breeding values from several trait
// evaluations into a single economic selection index and ranks the
// candidates.
package selindex

import (
	"fmt"
	"math"
	"sort"

	"github.com/gonum/mathext"
)

// Weights maps trait names to their economic weights.
type Weights map[string]float64

// EBVs is one trait's breeding values by individual, typically taken
// from an evaluation result.
type EBVs map[int64]float64

// Entry is one ranked candidate.
type Entry struct {
	ID    int64   `json:"id"`
	Value float64 `json:"value"`
	Rank  int     `json:"rank"`
}

// Index is a computed selection index, ordered best first.
type Index struct {
	Traits  []string `json:"traits"`
	Entries []Entry  `json:"entries"`
}

// Compute builds the weighted index over all individuals present in
// every trait's breeding values. Traits named in the weights must all
// be present; individuals missing from any trait are an error rather
// than silently dropped, since a partial index would misrank.
func Compute(traits map[string]EBVs, w Weights) (*Index, error) {
	if len(w) == 0 {
		return nil, fmt.Errorf("no index weights given")
	}
	names := make([]string, 0, len(w))
	for name := range w {
		if _, ok := traits[name]; !ok {
			return nil, fmt.Errorf("no evaluation for trait %q", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	first := traits[names[0]]
	for _, name := range names[1:] {
		if len(traits[name]) != len(first) {
			return nil, fmt.Errorf("trait %q covers %d individuals, trait %q covers %d",
				name, len(traits[name]), names[0], len(first))
		}
	}
	entries := make([]Entry, 0, len(first))
	for id := range first {
		v := 0.0
		for _, name := range names {
			ebv, ok := traits[name][id]
			if !ok {
				return nil, fmt.Errorf("individual %d has no breeding value for trait %q", id, name)
			}
			v += w[name] * ebv
		}
		entries = append(entries, Entry{ID: id, Value: v})
	}

	sort.Slice(entries, func(a, b int) bool {
		if entries[a].Value != entries[b].Value {
			return entries[a].Value > entries[b].Value
		}
		return entries[a].ID < entries[b].ID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return &Index{Traits: names, Entries: entries}, nil
}

// Intensity returns the selection intensity for truncation selection
// of the best proportion p of candidates: i = φ(z)/p with z the
// truncation point of the standard normal.
func Intensity(p float64) (float64, error) {
	if p <= 0 || p >= 1 {
		return 0, fmt.Errorf("selected proportion must be in (0, 1), got %g", p)
	}
	z := mathext.NormalQuantile(1 - p)
	phi := math.Exp(-z*z/2) / math.Sqrt(2*math.Pi)
	return phi / p, nil
}

// FromResult extracts an EBVs map from parallel id/value slices.
func FromResult(ids []int64, ebv []float64) EBVs {
	m := make(EBVs, len(ids))
	for i, id := range ids {
		m[id] = ebv[i]
	}
	return m
}
