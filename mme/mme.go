// Package mme assembles and solves Henderson's mixed-model equations
// for a single-trait animal model, producing fixed-effect estimates,
// breeding values and reliabilities from phenotypes and a
// relationship-matrix inverse.
package mme

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/op/go-logging"

	"github.com/ovinelab/breedeval/relmat"
)

var log = logging.MustGetLogger("mme")

// PhenotypeRecord is one trait observation. Several records may share
// an ID (repeated measures); individuals without any record are still
// evaluated through their relationships.
type PhenotypeRecord struct {
	ID         int64     `json:"id"`
	Value      float64   `json:"value"`
	Covariates []float64 `json:"covariates,omitempty"`
}

// SolverKind selects the linear-system solver.
type SolverKind int

const (
	// Direct uses a dense Cholesky factorization; appropriate for
	// moderate system sizes.
	Direct SolverKind = iota
	// PCG uses Jacobi-preconditioned conjugate gradients on the
	// matrix-free system; the fallback for very large populations.
	PCG
)

func (s SolverKind) String() string {
	if s == PCG {
		return "pcg"
	}
	return "direct"
}

// ReliabilityMode selects how the inverse-diagonal of the coefficient
// matrix is obtained.
type ReliabilityMode int

const (
	// Exact computes the full inverse via the Cholesky factors.
	// O(n³), only available with the direct solver.
	Exact ReliabilityMode = iota
	// Stochastic estimates the diagonal with Hutchinson probing; the
	// cost is Probes extra system solves.
	Stochastic
)

// Options configures a solver run.
type Options struct {
	// Heritability is h², strictly between 0 and 1. The variance
	// ratio of the equations is λ = (1−h²)/h².
	Heritability float64
	Solver       SolverKind
	// Tol is the relative-residual convergence tolerance of PCG.
	Tol float64
	// MaxIter bounds PCG iterations.
	MaxIter int
	Reliability ReliabilityMode
	// Probes is the Hutchinson sample count for stochastic
	// reliability estimation.
	Probes int
	// Seed fixes the probe generator so identical runs produce
	// identical results.
	Seed int64
	// Method is recorded in the result metadata (blup, gblup, ...).
	Method string
	// Progress, when set, is called at stage boundaries and
	// periodically during long iterations. It must not block.
	Progress func(stage string, done, total int)
}

func (o *Options) defaults() {
	if o.Tol == 0 {
		o.Tol = 1e-8
	}
	if o.MaxIter == 0 {
		o.MaxIter = 10000
	}
	if o.Probes == 0 {
		o.Probes = 32
	}
	if o.Seed == 0 {
		o.Seed = 1
	}
	if o.Method == "" {
		o.Method = "blup"
	}
}

func (o *Options) progress(stage string, done, total int) {
	if o.Progress != nil {
		o.Progress(stage, done, total)
	}
}

// ConvergenceError reports that the iterative solver exhausted its
// iteration budget. Recoverable by switching to the direct solver or
// relaxing the tolerance.
type ConvergenceError struct {
	Iterations int
	Residual   float64
	Tol        float64
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("PCG did not converge in %d iterations (relative residual %.3e, tolerance %.3e)",
		e.Iterations, e.Residual, e.Tol)
}

// SingularSystemError reports a failed direct factorization of the
// mixed-model coefficient matrix.
type SingularSystemError struct {
	Dim int
}

func (e *SingularSystemError) Error() string {
	return fmt.Sprintf("mixed-model coefficient matrix (order %d) is not positive definite", e.Dim)
}

// Result is the outcome of one solver run. It is never mutated after
// creation; a re-evaluation produces a new Result.
type Result struct {
	Method       string    `json:"method"`
	IDs          []int64   `json:"ids"`
	FixedEffects []float64 `json:"fixedEffects"`
	// BreedingValues, Reliabilities and Accuracies are indexed like
	// IDs.
	BreedingValues []float64 `json:"breedingValues"`
	Reliabilities  []float64 `json:"reliabilities"`
	Accuracies     []float64 `json:"accuracies"`

	Heritability      float64 `json:"heritability"`
	Lambda            float64 `json:"lambda"`
	PhenotypicVar     float64 `json:"phenotypicVariance"`
	AdditiveVar       float64 `json:"additiveVariance"`
	ResidualVar       float64 `json:"residualVariance"`
	NRecords          int     `json:"nRecords"`
	NIndividuals      int     `json:"nIndividuals"`
	NFixed            int     `json:"nFixedEffects"`
	Solver            string  `json:"solver"`
	ReliabilityMethod string  `json:"reliabilityMethod"`
	Iterations        int     `json:"iterations,omitempty"`
	Time              float64 `json:"time"`
}

// Solve builds the design matrices, assembles the block system
//
//	[ X'X      X'Z      ] [β]   [X'y]
//	[ Z'X  Z'Z + λ·M⁻¹  ] [u] = [Z'y]
//
// and solves it. ids gives the individual order the relationship
// inverse kin is indexed by; every phenotype record must reference
// one of them.
func Solve(ctx context.Context, phenos []PhenotypeRecord, ids []int64,
	kin *relmat.Sparse, opts Options) (*Result, error) {

	start := time.Now()
	opts.defaults()

	if len(phenos) == 0 {
		return nil, fmt.Errorf("no phenotype records")
	}
	if opts.Heritability <= 0 || opts.Heritability >= 1 {
		return nil, fmt.Errorf("heritability must be in (0, 1), got %g", opts.Heritability)
	}
	if kin.Dim() != len(ids) {
		return nil, fmt.Errorf("relationship inverse order %d does not match %d individuals",
			kin.Dim(), len(ids))
	}

	lambda := (1 - opts.Heritability) / opts.Heritability

	ds, err := newDesign(phenos, ids)
	if err != nil {
		return nil, err
	}
	opts.progress("assemble", 0, 1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log.Infof("solving MME: %d records, %d individuals, %d fixed effects, lambda=%.4f, solver=%s",
		ds.nrec, ds.n, ds.p, lambda, opts.Solver)

	var sol []float64
	var relDiag []float64
	iterations := 0
	switch opts.Solver {
	case Direct:
		sol, relDiag, err = solveDirect(ctx, ds, kin, lambda, &opts)
	case PCG:
		sol, relDiag, iterations, err = solveIterative(ctx, ds, kin, lambda, &opts)
	default:
		err = fmt.Errorf("unknown solver kind %d", opts.Solver)
	}
	if err != nil {
		return nil, err
	}

	res := &Result{
		Method:       opts.Method,
		IDs:          append([]int64(nil), ids...),
		FixedEffects: append([]float64(nil), sol[:ds.p]...),
		Heritability: opts.Heritability,
		Lambda:       lambda,
		NRecords:     ds.nrec,
		NIndividuals: ds.n,
		NFixed:       ds.p,
		Solver:       opts.Solver.String(),
		Iterations:   iterations,
	}
	res.BreedingValues = append([]float64(nil), sol[ds.p:]...)

	// reliability r² = 1 − λ·c_ii, with c_ii the inverse-diagonal of
	// the λ-form coefficient matrix at the individual's equation
	res.Reliabilities = make([]float64, ds.n)
	res.Accuracies = make([]float64, ds.n)
	for i := 0; i < ds.n; i++ {
		r := 1 - lambda*relDiag[ds.p+i]
		if r < 0 {
			r = 0
		} else if r > 1 {
			r = 1
		}
		res.Reliabilities[i] = r
		res.Accuracies[i] = math.Sqrt(r)
	}
	if opts.Solver == Direct && opts.Reliability == Exact {
		res.ReliabilityMethod = "exact"
	} else {
		res.ReliabilityMethod = "stochastic"
	}

	res.PhenotypicVar = ds.phenotypicVariance()
	res.AdditiveVar = opts.Heritability * res.PhenotypicVar
	res.ResidualVar = (1 - opts.Heritability) * res.PhenotypicVar

	res.Time = time.Since(start).Seconds()
	log.Noticef("MME solved in %.3fs (%s, %d iterations)", res.Time, res.Solver, iterations)
	return res, nil
}
