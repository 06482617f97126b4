package pedigree

import (
	"testing"
)

// the five-individual example used throughout the matrix tests:
// founders 1 and 2, full sibs 3 and 4, and 5 = 3×4
var fiveRecords = []Record{
	{ID: 1},
	{ID: 2},
	{ID: 3, Sire: 1, Dam: 2},
	{ID: 4, Sire: 1, Dam: 2},
	{ID: 5, Sire: 3, Dam: 4},
}

func TestGenerations(tst *testing.T) {
	p, err := New(fiveRecords)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	want := []int{1, 1, 2, 2, 3}
	for i, g := range want {
		if p.At(i).Generation != g {
			tst.Errorf("individual %d: generation %d, expected %d", p.At(i).ID, p.At(i).Generation, g)
		}
	}
}

func TestFounders(tst *testing.T) {
	p, err := New(fiveRecords)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	f := p.Founders()
	if len(f) != 2 || f[0] != 1 || f[1] != 2 {
		tst.Error("expected founders [1 2], got", f)
	}
}

func TestGenerationOrder(tst *testing.T) {
	// records deliberately listed descendants first
	recs := []Record{
		{ID: 5, Sire: 3, Dam: 4},
		{ID: 4, Sire: 1, Dam: 2},
		{ID: 3, Sire: 1, Dam: 2},
		{ID: 2},
		{ID: 1},
	}
	p, err := New(recs)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	seen := make(map[int]bool)
	for _, i := range p.GenerationOrder() {
		s, d := p.ParentIndices(i)
		if s >= 0 && !seen[s] {
			tst.Errorf("individual %d ordered before its sire", p.At(i).ID)
		}
		if d >= 0 && !seen[d] {
			tst.Errorf("individual %d ordered before its dam", p.At(i).ID)
		}
		seen[i] = true
	}
}

func TestCycle(tst *testing.T) {
	recs := []Record{
		{ID: 1, Sire: 3},
		{ID: 2},
		{ID: 3, Sire: 1, Dam: 2},
	}
	_, err := New(recs)
	if err == nil {
		tst.Fatal("expected cycle error")
	}
	if _, ok := err.(*CyclicError); !ok {
		tst.Errorf("expected *CyclicError, got %T: %v", err, err)
	}
}

func TestInvalidRecords(tst *testing.T) {
	cases := []struct {
		name string
		recs []Record
	}{
		{"self parent", []Record{{ID: 1, Sire: 1}}},
		{"duplicate id", []Record{{ID: 1}, {ID: 1}}},
		{"missing sire", []Record{{ID: 1, Sire: 9}}},
		{"missing dam", []Record{{ID: 1, Dam: 9}}},
		{"zero id", []Record{{ID: 0}}},
	}
	for _, c := range cases {
		if _, err := New(c.recs); err == nil {
			tst.Errorf("%s: expected error", c.name)
		}
	}
}

func TestIndex(tst *testing.T) {
	p, err := New(fiveRecords)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if i, ok := p.Index(4); !ok || i != 3 {
		tst.Error("expected index 3 for individual 4, got", i)
	}
	if _, ok := p.Index(99); ok {
		tst.Error("unexpected hit for individual 99")
	}
}

func TestDeepPedigree(tst *testing.T) {
	// a thousand-generation chain; the iterative traversal must not
	// blow the stack
	n := 1000
	recs := make([]Record, n)
	for i := 0; i < n; i++ {
		recs[i].ID = int64(i + 1)
		if i > 0 {
			recs[i].Sire = int64(i)
		}
	}
	p, err := New(recs)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if g := p.At(n - 1).Generation; g != n {
		tst.Errorf("expected generation %d, got %d", n, g)
	}
}
