package mme

import (
	"fmt"
	"math"

	"github.com/gonum/matrix/mat64"

	"github.com/ovinelab/breedeval/relmat"
)

// Profile evaluates the restricted log-likelihood of the animal model
// as a function of heritability, with the residual variance profiled
// out. It caches everything that does not depend on h²: the design,
// y'y and log|A| (obtained from the relationship inverse once).
type Profile struct {
	ds      *design
	kin     *relmat.Sparse
	yy      float64
	logDetA float64
}

// NewProfile prepares a restricted-likelihood profile for the given
// records and relationship inverse.
func NewProfile(phenos []PhenotypeRecord, ids []int64, kin *relmat.Sparse) (*Profile, error) {
	if kin.Dim() != len(ids) {
		return nil, fmt.Errorf("relationship inverse order %d does not match %d individuals",
			kin.Dim(), len(ids))
	}
	ds, err := newDesign(phenos, ids)
	if err != nil {
		return nil, err
	}
	if ds.nrec <= ds.p {
		return nil, fmt.Errorf("need more than %d records for %d fixed effects", ds.p, ds.p)
	}

	yy := 0.0
	for _, v := range ds.y {
		yy += v * v
	}

	// log|A| = −log|A⁻¹|, constant across h²
	var chol mat64.Cholesky
	if ok := chol.Factorize(kin.Sym()); !ok {
		return nil, fmt.Errorf("relationship inverse is not positive definite")
	}

	return &Profile{ds: ds, kin: kin, yy: yy, logDetA: -chol.LogDet()}, nil
}

// NegLogLik returns −logL_R(h²) up to an additive constant, using the
// λ-form mixed-model equations:
//
//	−2·logL = (N−p)(log σ̂e² + 1) − q·log λ + log|A| + log|C|
//
// with σ̂e² = (y'y − θ̂'W'y)/(N−p) the profiled residual variance.
func (pr *Profile) NegLogLik(h2 float64) (float64, error) {
	if h2 <= 0 || h2 >= 1 {
		return 0, fmt.Errorf("heritability out of range: %g", h2)
	}
	lambda := (1 - h2) / h2

	c := assemble(pr.ds, pr.kin, lambda)
	var chol mat64.Cholesky
	if ok := chol.Factorize(c); !ok {
		return 0, &SingularSystemError{Dim: pr.ds.dim()}
	}
	dim := pr.ds.dim()
	wy := pr.ds.rhs()
	var x mat64.Vector
	if err := x.SolveCholeskyVec(&chol, mat64.NewVector(dim, wy)); err != nil {
		return 0, &SingularSystemError{Dim: dim}
	}

	thWy := 0.0
	for i := 0; i < dim; i++ {
		thWy += x.At(i, 0) * wy[i]
	}
	np := float64(pr.ds.nrec - pr.ds.p)
	sse := pr.yy - thWy
	if sse <= 0 {
		return 0, fmt.Errorf("non-positive residual sum of squares at h²=%g", h2)
	}
	sigmaE := sse / np

	q := float64(pr.ds.n)
	m2ll := np*(math.Log(sigmaE)+1) - q*math.Log(lambda) + pr.logDetA + chol.LogDet()
	return m2ll / 2, nil
}

// ResidualVariance returns the profiled σ̂e² at the given h².
func (pr *Profile) ResidualVariance(h2 float64) (float64, error) {
	lambda := (1 - h2) / h2
	c := assemble(pr.ds, pr.kin, lambda)
	var chol mat64.Cholesky
	if ok := chol.Factorize(c); !ok {
		return 0, &SingularSystemError{Dim: pr.ds.dim()}
	}
	dim := pr.ds.dim()
	wy := pr.ds.rhs()
	var x mat64.Vector
	if err := x.SolveCholeskyVec(&chol, mat64.NewVector(dim, wy)); err != nil {
		return 0, &SingularSystemError{Dim: dim}
	}
	thWy := 0.0
	for i := 0; i < dim; i++ {
		thWy += x.At(i, 0) * wy[i]
	}
	return (pr.yy - thWy) / float64(pr.ds.nrec-pr.ds.p), nil
}
