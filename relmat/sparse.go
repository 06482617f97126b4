package relmat

import (
	"sort"

	"github.com/gonum/matrix/mat64"
)

// Sparse is a square sparse matrix accumulated as an append-only list
// of (row, column, value) triplets and compacted into row-major
// compressed form. Duplicate triplets are summed during compaction.
// Both triangles of a symmetric matrix are stored explicitly.
type Sparse struct {
	n int

	// triplet stage
	ti []int
	tj []int
	tv []float64

	// compressed stage
	rowPtr []int
	colIdx []int
	val    []float64

	compacted bool
}

// NewSparse creates an empty n×n sparse matrix in triplet stage.
func NewSparse(n int) *Sparse {
	return &Sparse{n: n}
}

// Dim returns the matrix order.
func (s *Sparse) Dim() int {
	return s.n
}

// Append adds a triplet contribution to entry (i, j).
func (s *Sparse) Append(i, j int, v float64) {
	if s.compacted {
		panic("relmat: append to a compacted matrix")
	}
	if i < 0 || i >= s.n || j < 0 || j >= s.n {
		panic("relmat: triplet index out of range")
	}
	s.ti = append(s.ti, i)
	s.tj = append(s.tj, j)
	s.tv = append(s.tv, v)
}

// AppendSym adds a contribution to (i, j) and its mirror (j, i).
func (s *Sparse) AppendSym(i, j int, v float64) {
	s.Append(i, j, v)
	if i != j {
		s.Append(j, i, v)
	}
}

// Compact sorts the triplets, sums duplicates and builds the
// compressed representation. It is a no-op on an already compacted
// matrix.
func (s *Sparse) Compact() {
	if s.compacted {
		return
	}
	idx := make([]int, len(s.ti))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		ia, ib := idx[a], idx[b]
		if s.ti[ia] != s.ti[ib] {
			return s.ti[ia] < s.ti[ib]
		}
		return s.tj[ia] < s.tj[ib]
	})

	s.rowPtr = make([]int, s.n+1)
	s.colIdx = s.colIdx[:0]
	s.val = s.val[:0]
	prevI, prevJ := -1, -1
	for _, k := range idx {
		i, j, v := s.ti[k], s.tj[k], s.tv[k]
		if i == prevI && j == prevJ {
			s.val[len(s.val)-1] += v
			continue
		}
		s.colIdx = append(s.colIdx, j)
		s.val = append(s.val, v)
		s.rowPtr[i+1]++
		prevI, prevJ = i, j
	}
	for i := 0; i < s.n; i++ {
		s.rowPtr[i+1] += s.rowPtr[i]
	}
	s.ti, s.tj, s.tv = nil, nil, nil
	s.compacted = true
}

// NNZ returns the number of stored entries after compaction.
func (s *Sparse) NNZ() int {
	s.Compact()
	return len(s.val)
}

// At returns entry (i, j).
func (s *Sparse) At(i, j int) float64 {
	s.Compact()
	lo, hi := s.rowPtr[i], s.rowPtr[i+1]
	row := s.colIdx[lo:hi]
	k := sort.SearchInts(row, j)
	if k < len(row) && row[k] == j {
		return s.val[lo+k]
	}
	return 0
}

// MulVec computes dst = S·x.
func (s *Sparse) MulVec(dst, x []float64) {
	s.Compact()
	if len(dst) != s.n || len(x) != s.n {
		panic("relmat: vector length mismatch")
	}
	for i := 0; i < s.n; i++ {
		sum := 0.0
		for k := s.rowPtr[i]; k < s.rowPtr[i+1]; k++ {
			sum += s.val[k] * x[s.colIdx[k]]
		}
		dst[i] = sum
	}
}

// Diag writes the diagonal into dst, allocating if dst is nil.
func (s *Sparse) Diag(dst []float64) []float64 {
	s.Compact()
	if dst == nil {
		dst = make([]float64, s.n)
	}
	for i := 0; i < s.n; i++ {
		dst[i] = s.At(i, i)
	}
	return dst
}

// Do calls f for every stored entry.
func (s *Sparse) Do(f func(i, j int, v float64)) {
	s.Compact()
	for i := 0; i < s.n; i++ {
		for k := s.rowPtr[i]; k < s.rowPtr[i+1]; k++ {
			f(i, s.colIdx[k], s.val[k])
		}
	}
}

// AddScaledSym adds scale·S into the symmetric matrix dst with both
// row and column shifted by off. Only upper-triangle entries are
// written; the mirror entries of S are skipped.
func (s *Sparse) AddScaledSym(dst *mat64.SymDense, scale float64, off int) {
	s.Do(func(i, j int, v float64) {
		if j < i {
			return
		}
		dst.SetSym(off+i, off+j, dst.At(off+i, off+j)+scale*v)
	})
}

// Sym returns a dense symmetric copy.
func (s *Sparse) Sym() *mat64.SymDense {
	res := mat64.NewSymDense(s.n, nil)
	s.Do(func(i, j int, v float64) {
		if j < i {
			return
		}
		res.SetSym(i, j, v)
	})
	return res
}

// FromSym converts a dense symmetric matrix into compacted sparse
// form, dropping exact zeros.
func FromSym(m *mat64.SymDense) *Sparse {
	n := m.Symmetric()
	s := NewSparse(n)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if v := m.At(i, j); v != 0 {
				s.AppendSym(i, j, v)
			}
		}
	}
	s.Compact()
	return s
}
