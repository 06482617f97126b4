package mme

import (
	"context"

	"github.com/gonum/matrix/mat64"

	"github.com/ovinelab/breedeval/relmat"
)

// assemble builds the dense coefficient matrix of the block system.
func assemble(ds *design, kin *relmat.Sparse, lambda float64) *mat64.SymDense {
	dim := ds.dim()
	c := mat64.NewSymDense(dim, nil)

	for r := 0; r < ds.nrec; r++ {
		row := ds.x[r*ds.p : (r+1)*ds.p]
		i := ds.p + ds.zidx[r]
		for a := 0; a < ds.p; a++ {
			for b := a; b < ds.p; b++ {
				c.SetSym(a, b, c.At(a, b)+row[a]*row[b])
			}
			c.SetSym(a, i, c.At(a, i)+row[a])
		}
		c.SetSym(i, i, c.At(i, i)+1)
	}
	kin.AddScaledSym(c, lambda, ds.p)
	return c
}

// solveDirect factorizes the assembled system and, unless stochastic
// reliability estimation was requested, also computes the exact
// inverse diagonal. The full inverse is O(dim³); for large systems
// the stochastic mode trades accuracy for probe-count many extra
// solves against the existing factorization.
func solveDirect(ctx context.Context, ds *design, kin *relmat.Sparse,
	lambda float64, opts *Options) (sol, relDiag []float64, err error) {

	c := assemble(ds, kin, lambda)
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	opts.progress("factorize", 0, 1)

	var chol mat64.Cholesky
	if ok := chol.Factorize(c); !ok {
		return nil, nil, &SingularSystemError{Dim: ds.dim()}
	}

	dim := ds.dim()
	b := mat64.NewVector(dim, ds.rhs())
	var x mat64.Vector
	if err := x.SolveCholeskyVec(&chol, b); err != nil {
		return nil, nil, &SingularSystemError{Dim: dim}
	}
	sol = make([]float64, dim)
	for i := 0; i < dim; i++ {
		sol[i] = x.At(i, 0)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	opts.progress("reliabilities", 0, 1)

	if opts.Reliability == Exact {
		inv := mat64.NewSymDense(dim, nil)
		if err := inv.InverseCholesky(&chol); err != nil {
			return nil, nil, &SingularSystemError{Dim: dim}
		}
		relDiag = make([]float64, dim)
		for i := 0; i < dim; i++ {
			relDiag[i] = inv.At(i, i)
		}
		return sol, relDiag, nil
	}

	relDiag, err = probeDiagonal(ctx, dim, opts, func(dst, v []float64) error {
		var s mat64.Vector
		if err := s.SolveCholeskyVec(&chol, mat64.NewVector(dim, v)); err != nil {
			return &SingularSystemError{Dim: dim}
		}
		for i := range dst {
			dst[i] = s.At(i, 0)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return sol, relDiag, nil
}
