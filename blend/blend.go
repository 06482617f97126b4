// Package blend merges pedigree and genomic relationship information
// into the single-step combined inverse H⁻¹, so genotyped and
// non-genotyped individuals are evaluated jointly.
package blend

import (
	"context"
	"fmt"

	"github.com/gonum/matrix/mat64"
	"github.com/op/go-logging"

	"github.com/ovinelab/breedeval/genomic"
	"github.com/ovinelab/breedeval/pedigree"
	"github.com/ovinelab/breedeval/relmat"
)

var log = logging.MustGetLogger("blend")

// Weights are the blending coefficients of the adjusted genomic
// matrix G* = (1−ω−τ)·G + ω·A22 + τ·I. ω pulls G toward the pedigree
// scale, τ regularizes the diagonal so G* stays invertible.
type Weights struct {
	Omega float64
	Tau   float64
}

// DefaultWeights are the blending defaults.
var DefaultWeights = Weights{Omega: 0.05, Tau: 0.02}

// SingularMatrixError reports a relationship matrix that is not
// invertible after the configured regularization. The caller may
// retry with a larger Tau.
type SingularMatrixError struct {
	// Block names the matrix that failed ("G*" or "A22").
	Block string
	Omega float64
	Tau   float64
}

func (e *SingularMatrixError) Error() string {
	return fmt.Sprintf("%s is singular (omega=%g, tau=%g); retry with larger tau",
		e.Block, e.Omega, e.Tau)
}

// CombinedInverse builds H⁻¹: A⁻¹ everywhere, with the
// genotyped×genotyped block incremented by (G*⁻¹ − A22⁻¹). All
// genotyped individuals must appear in the pedigree. The dense
// inversions are O(g³) in the genotyped count, the single largest
// cost of the engine.
func CombinedInverse(ctx context.Context, p *pedigree.Pedigree, g *genomic.Genotypes,
	w Weights, opts genomic.Options) (*relmat.Sparse, error) {

	if w.Omega < 0 || w.Tau < 0 || w.Omega+w.Tau >= 1 {
		return nil, fmt.Errorf("invalid blending weights omega=%g tau=%g", w.Omega, w.Tau)
	}

	gIdx := make([]int, g.Len())
	for k, id := range g.IDs {
		i, ok := p.Index(id)
		if !ok {
			return nil, fmt.Errorf("genotyped individual %d is not in the pedigree", id)
		}
		gIdx[k] = i
	}

	ainv := relmat.AdditiveInverse(p)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a22, err := relmat.AdditiveSubset(p, g.IDs)
	if err != nil {
		return nil, err
	}
	gm, err := genomic.Relationship(ctx, g, opts)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ng := g.Len()
	gstar := mat64.NewSymDense(ng, nil)
	for i := 0; i < ng; i++ {
		for j := i; j < ng; j++ {
			v := (1-w.Omega-w.Tau)*gm.At(i, j) + w.Omega*a22.At(i, j)
			if i == j {
				v += w.Tau
			}
			gstar.SetSym(i, j, v)
		}
	}

	gstarInv, err := invert(gstar, "G*", w)
	if err != nil {
		return nil, err
	}
	a22Inv, err := invert(a22, "A22", w)
	if err != nil {
		return nil, err
	}
	log.Infof("blending %d genotyped individuals into pedigree of %d", ng, p.Len())

	hinv := relmat.NewSparse(p.Len())
	ainv.Do(hinv.Append)
	for i := 0; i < ng; i++ {
		for j := i; j < ng; j++ {
			v := gstarInv.At(i, j) - a22Inv.At(i, j)
			if v != 0 {
				hinv.AppendSym(gIdx[i], gIdx[j], v)
			}
		}
	}
	hinv.Compact()
	return hinv, nil
}

// invert computes the inverse of a symmetric positive definite matrix
// via its Cholesky factorization.
func invert(m *mat64.SymDense, block string, w Weights) (*mat64.SymDense, error) {
	var chol mat64.Cholesky
	if ok := chol.Factorize(m); !ok {
		return nil, &SingularMatrixError{Block: block, Omega: w.Omega, Tau: w.Tau}
	}
	inv := mat64.NewSymDense(m.Symmetric(), nil)
	if err := inv.InverseCholesky(&chol); err != nil {
		return nil, &SingularMatrixError{Block: block, Omega: w.Omega, Tau: w.Tau}
	}
	return inv, nil
}
