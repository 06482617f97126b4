package selindex

import (
	"math"
	"testing"
)

const smallDiff = 1e-3

func TestCompute(tst *testing.T) {
	traits := map[string]EBVs{
		"milk":      {1: 0.5, 2: 1.5, 3: -0.2},
		"fertility": {1: 0.8, 2: -0.3, 3: 0.6},
	}
	w := Weights{"milk": 1, "fertility": 2}

	idx, err := Compute(traits, w)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	// index values: 1 → 2.1, 2 → 0.9, 3 → 1.0
	wantOrder := []int64{1, 3, 2}
	for i, e := range idx.Entries {
		if e.ID != wantOrder[i] {
			tst.Errorf("rank %d: expected individual %d, got %d", i+1, wantOrder[i], e.ID)
		}
		if e.Rank != i+1 {
			tst.Errorf("entry %d has rank %d", i, e.Rank)
		}
	}
	if math.Abs(idx.Entries[0].Value-2.1) > 1e-12 {
		tst.Error("top index value: expected 2.1, got", idx.Entries[0].Value)
	}
}

func TestComputeTies(tst *testing.T) {
	traits := map[string]EBVs{"gain": {7: 1.0, 3: 1.0, 5: 2.0}}
	idx, err := Compute(traits, Weights{"gain": 1})
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	// ties break on the lower id
	if idx.Entries[1].ID != 3 || idx.Entries[2].ID != 7 {
		tst.Error("tied individuals not ordered by id:", idx.Entries)
	}
}

func TestComputeErrors(tst *testing.T) {
	traits := map[string]EBVs{"milk": {1: 0.5}}

	if _, err := Compute(traits, Weights{}); err == nil {
		tst.Error("expected error for empty weights")
	}
	if _, err := Compute(traits, Weights{"wool": 1}); err == nil {
		tst.Error("expected error for unevaluated trait")
	}
	partial := map[string]EBVs{
		"milk": {1: 0.5, 2: 0.1},
		"wool": {1: 0.2},
	}
	if _, err := Compute(partial, Weights{"milk": 1, "wool": 1}); err == nil {
		tst.Error("expected error for individual missing a trait")
	}
	// an individual present only in a later trait must not be dropped
	extra := map[string]EBVs{
		"milk": {1: 0.5},
		"wool": {1: 0.2, 2: 0.1},
	}
	if _, err := Compute(extra, Weights{"milk": 1, "wool": 1}); err == nil {
		tst.Error("expected error for individual missing from the first trait")
	}
}

func TestIntensity(tst *testing.T) {
	// textbook values for truncation selection
	checks := []struct{ p, want float64 }{
		{0.5, 0.798},
		{0.2, 1.400},
		{0.1, 1.755},
		{0.01, 2.665},
	}
	for _, c := range checks {
		i, err := Intensity(c.p)
		if err != nil {
			tst.Fatal("Error: ", err)
		}
		if math.Abs(i-c.want) > smallDiff {
			tst.Errorf("intensity(%v): expected %v, got %v", c.p, c.want, i)
		}
	}
	for _, p := range []float64{0, 1, -0.1} {
		if _, err := Intensity(p); err == nil {
			tst.Errorf("expected error for proportion %v", p)
		}
	}
}

func TestFromResult(tst *testing.T) {
	m := FromResult([]int64{4, 9}, []float64{1.5, -0.5})
	if m[4] != 1.5 || m[9] != -0.5 {
		tst.Error("unexpected map:", m)
	}
}
