package mme

import (
	"context"
	"math"
	"math/rand"

	"github.com/ovinelab/breedeval/relmat"
)

// pcgReport is how often iteration progress is emitted.
const pcgReport = 100

// pcg solves C·x = b with Jacobi-preconditioned conjugate gradients,
// applying C matrix-free through the design. It iterates until the
// relative residual drops below opts.Tol and returns *ConvergenceError
// when the budget is exhausted.
func pcg(ctx context.Context, ds *design, kin kinMul, diag []float64,
	lambda float64, b []float64, opts *Options) (x []float64, iters int, err error) {

	dim := len(b)
	x = make([]float64, dim)
	r := append([]float64(nil), b...)
	z := make([]float64, dim)
	p := make([]float64, dim)
	cp := make([]float64, dim)
	scratch := make([]float64, ds.n)

	bnorm := norm2(b)
	if bnorm == 0 {
		return x, 0, nil
	}

	for i := range z {
		z[i] = r[i] / diag[i]
	}
	copy(p, z)
	rz := dot(r, z)

	for iters = 1; iters <= opts.MaxIter; iters++ {
		ds.apply(kin, lambda, p, cp, scratch)
		alpha := rz / dot(p, cp)
		for i := range x {
			x[i] += alpha * p[i]
			r[i] -= alpha * cp[i]
		}
		res := norm2(r) / bnorm
		if iters%pcgReport == 0 {
			log.Debugf("pcg iteration %d, relative residual %.3e", iters, res)
			opts.progress("pcg", iters, opts.MaxIter)
			if err := ctx.Err(); err != nil {
				return nil, iters, err
			}
		}
		if res < opts.Tol {
			return x, iters, nil
		}
		for i := range z {
			z[i] = r[i] / diag[i]
		}
		rzNext := dot(r, z)
		beta := rzNext / rz
		rz = rzNext
		for i := range p {
			p[i] = z[i] + beta*p[i]
		}
	}
	return nil, opts.MaxIter, &ConvergenceError{
		Iterations: opts.MaxIter,
		Residual:   norm2(r) / bnorm,
		Tol:        opts.Tol,
	}
}

// solveIterative runs PCG for the solution vector and estimates the
// inverse diagonal stochastically; the exact diagonal would need the
// full inverse the iterative path exists to avoid.
func solveIterative(ctx context.Context, ds *design, kin *relmat.Sparse,
	lambda float64, opts *Options) (sol, relDiag []float64, iters int, err error) {

	diag := ds.jacobi(kin.Diag(nil), lambda)
	for i, d := range diag {
		if d <= 0 {
			// unobserved fixed-effect column or empty equation
			diag[i] = 1
		}
	}

	sol, iters, err = pcg(ctx, ds, kin, diag, lambda, ds.rhs(), opts)
	if err != nil {
		return nil, nil, iters, err
	}
	opts.progress("reliabilities", 0, opts.Probes)

	relDiag, err = probeDiagonal(ctx, ds.dim(), opts, func(dst, v []float64) error {
		s, _, err := pcg(ctx, ds, kin, diag, lambda, v, opts)
		if err != nil {
			return err
		}
		copy(dst, s)
		return nil
	})
	if err != nil {
		return nil, nil, iters, err
	}
	return sol, relDiag, iters, nil
}

// probeDiagonal estimates diag(C⁻¹) with Hutchinson probing: the
// expectation of v⊙C⁻¹v over Rademacher vectors v. solve must write
// C⁻¹v into its first argument.
func probeDiagonal(ctx context.Context, dim int, opts *Options,
	solve func(dst, v []float64) error) ([]float64, error) {

	rng := rand.New(rand.NewSource(opts.Seed))
	est := make([]float64, dim)
	v := make([]float64, dim)
	s := make([]float64, dim)

	for k := 0; k < opts.Probes; k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i := range v {
			if rng.Intn(2) == 0 {
				v[i] = 1
			} else {
				v[i] = -1
			}
		}
		if err := solve(s, v); err != nil {
			return nil, err
		}
		for i := range est {
			est[i] += v[i] * s[i]
		}
		opts.progress("reliabilities", k+1, opts.Probes)
	}
	for i := range est {
		est[i] /= float64(opts.Probes)
	}
	return est, nil
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i, v := range a {
		s += v * b[i]
	}
	return s
}

func norm2(a []float64) float64 {
	return math.Sqrt(dot(a, a))
}
