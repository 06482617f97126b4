// Package pedigree stores individuals and their parent links and
// computes a generation ordering suitable for relationship-matrix
// construction.
package pedigree

import (
	"fmt"
)

// Unknown is the identifier used for an unknown sire or dam.
const Unknown int64 = 0

// Record is a single raw pedigree entry. Sire and Dam are zero when
// the parent is not recorded.
type Record struct {
	ID   int64 `json:"id"`
	Sire int64 `json:"sire"`
	Dam  int64 `json:"dam"`
}

// Individual is a pedigree member with its derived generation number.
// Generation is 1 for founders and 1 + max(parent generations)
// otherwise, so it always exceeds both parents' generation numbers.
type Individual struct {
	ID   int64
	Sire int64
	Dam  int64
	// Generation is computed by New, starting from 1.
	Generation int
}

// CyclicError indicates that an individual is (transitively) its own
// ancestor. Such a pedigree cannot be evaluated.
type CyclicError struct {
	// ID is an individual on the cycle.
	ID int64
}

func (e *CyclicError) Error() string {
	return fmt.Sprintf("pedigree cycle detected through individual %d", e.ID)
}

// Pedigree is an immutable ordered collection of individuals with an
// identifier lookup. The order of Individuals matches the order of
// the records passed to New; matrix builders use generation numbers,
// not slice order, to process parents first.
type Pedigree struct {
	individuals []Individual
	index       map[int64]int
	// sire/dam as slice indices, -1 for unknown
	sireIdx []int
	damIdx  []int
}

// New builds a pedigree from raw records. It verifies identifier
// uniqueness, rejects self-parenting and references to unlisted
// parents, and computes generation numbers. A cyclic parent structure
// yields *CyclicError.
func New(records []Record) (*Pedigree, error) {
	p := &Pedigree{
		individuals: make([]Individual, len(records)),
		index:       make(map[int64]int, len(records)),
		sireIdx:     make([]int, len(records)),
		damIdx:      make([]int, len(records)),
	}

	for i, r := range records {
		if r.ID == Unknown {
			return nil, fmt.Errorf("individual identifier must be non-zero (record %d)", i)
		}
		if r.Sire == r.ID || r.Dam == r.ID {
			return nil, fmt.Errorf("individual %d is its own parent", r.ID)
		}
		if _, ok := p.index[r.ID]; ok {
			return nil, fmt.Errorf("duplicate individual identifier %d", r.ID)
		}
		p.index[r.ID] = i
		p.individuals[i] = Individual{ID: r.ID, Sire: r.Sire, Dam: r.Dam}
	}

	for i, ind := range p.individuals {
		p.sireIdx[i] = -1
		p.damIdx[i] = -1
		if ind.Sire != Unknown {
			j, ok := p.index[ind.Sire]
			if !ok {
				return nil, fmt.Errorf("individual %d references unknown sire %d", ind.ID, ind.Sire)
			}
			p.sireIdx[i] = j
		}
		if ind.Dam != Unknown {
			j, ok := p.index[ind.Dam]
			if !ok {
				return nil, fmt.Errorf("individual %d references unknown dam %d", ind.ID, ind.Dam)
			}
			p.damIdx[i] = j
		}
	}

	if err := p.computeGenerations(); err != nil {
		return nil, err
	}
	return p, nil
}

// computeGenerations assigns generation numbers with an explicit
// stack instead of recursion; deep pedigrees would overflow a
// recursive version. Cycle detection uses a visiting mark.
func (p *Pedigree) computeGenerations() error {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]uint8, len(p.individuals))

	for start := range p.individuals {
		if state[start] == done {
			continue
		}
		stack := []int{start}
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			switch state[i] {
			case unvisited:
				state[i] = visiting
				for _, par := range [2]int{p.sireIdx[i], p.damIdx[i]} {
					if par < 0 {
						continue
					}
					if state[par] == visiting {
						return &CyclicError{ID: p.individuals[par].ID}
					}
					if state[par] == unvisited {
						stack = append(stack, par)
					}
				}
			case visiting:
				// both parents resolved by now
				g := 0
				if s := p.sireIdx[i]; s >= 0 {
					g = p.individuals[s].Generation
				}
				if d := p.damIdx[i]; d >= 0 && p.individuals[d].Generation > g {
					g = p.individuals[d].Generation
				}
				p.individuals[i].Generation = g + 1
				state[i] = done
				stack = stack[:len(stack)-1]
			case done:
				stack = stack[:len(stack)-1]
			}
		}
	}
	return nil
}

// Len returns the number of individuals.
func (p *Pedigree) Len() int {
	return len(p.individuals)
}

// Index returns the slice position of an identifier.
func (p *Pedigree) Index(id int64) (int, bool) {
	i, ok := p.index[id]
	return i, ok
}

// At returns the individual at position i.
func (p *Pedigree) At(i int) Individual {
	return p.individuals[i]
}

// ParentIndices returns the slice positions of the parents of
// individual i, -1 for an unknown parent.
func (p *Pedigree) ParentIndices(i int) (sire, dam int) {
	return p.sireIdx[i], p.damIdx[i]
}

// Individuals returns a copy of the individual list.
func (p *Pedigree) Individuals() []Individual {
	res := make([]Individual, len(p.individuals))
	copy(res, p.individuals)
	return res
}

// IDs returns all identifiers in pedigree order.
func (p *Pedigree) IDs() []int64 {
	ids := make([]int64, len(p.individuals))
	for i, ind := range p.individuals {
		ids[i] = ind.ID
	}
	return ids
}

// Founders returns the identifiers of individuals with both parents
// unknown.
func (p *Pedigree) Founders() []int64 {
	var res []int64
	for i, ind := range p.individuals {
		if p.sireIdx[i] < 0 && p.damIdx[i] < 0 {
			res = append(res, ind.ID)
		}
	}
	return res
}

// GenerationOrder returns individual positions sorted so that every
// individual appears after both of its recorded parents.
func (p *Pedigree) GenerationOrder() []int {
	// counting sort on generation number; generations start at 1
	maxGen := 0
	for _, ind := range p.individuals {
		if ind.Generation > maxGen {
			maxGen = ind.Generation
		}
	}
	counts := make([]int, maxGen+1)
	for _, ind := range p.individuals {
		counts[ind.Generation]++
	}
	offsets := make([]int, maxGen+1)
	for g := 1; g <= maxGen; g++ {
		offsets[g] = offsets[g-1] + counts[g-1]
	}
	order := make([]int, len(p.individuals))
	for i, ind := range p.individuals {
		order[offsets[ind.Generation]] = i
		offsets[ind.Generation]++
	}
	return order
}
