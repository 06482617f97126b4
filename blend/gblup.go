package blend

import (
	"context"

	"github.com/ovinelab/breedeval/genomic"
	"github.com/ovinelab/breedeval/relmat"
)

// GenomicInverse inverts the genomic relationship matrix for a fully
// genotyped population (plain GBLUP, no pedigree). Tau is added to
// the diagonal before inversion; a failed factorization surfaces as
// *SingularMatrixError.
func GenomicInverse(ctx context.Context, g *genomic.Genotypes, tau float64,
	opts genomic.Options) (*relmat.Sparse, error) {

	gm, err := genomic.Relationship(ctx, g, opts)
	if err != nil {
		return nil, err
	}
	n := gm.Symmetric()
	if tau > 0 {
		for i := 0; i < n; i++ {
			gm.SetSym(i, i, gm.At(i, i)+tau)
		}
	}
	w := Weights{Tau: tau}
	inv, err := invert(gm, "G", w)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return relmat.FromSym(inv), nil
}
