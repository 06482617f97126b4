package reml

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/op/go-logging"

	"github.com/ovinelab/breedeval/mme"
	"github.com/ovinelab/breedeval/pedigree"
	"github.com/ovinelab/breedeval/relmat"
)

func init() {
	logging.SetLevel(logging.WARNING, "reml")
	logging.SetLevel(logging.WARNING, "mme")
	logging.SetLevel(logging.WARNING, "relmat")
}

// simulateFamilies builds a two-generation pedigree of unrelated
// founder pairs with full-sib families and simulates phenotypes under
// the animal model with the given heritability and unit phenotypic
// variance.
func simulateFamilies(tst *testing.T, rng *rand.Rand, families, sibs int,
	h2 float64) (*pedigree.Pedigree, []mme.PhenotypeRecord) {

	sa := math.Sqrt(h2)
	se := math.Sqrt(1 - h2)

	var recs []pedigree.Record
	var id int64
	type parent struct {
		id int64
		u  float64
	}
	parents := make([][2]parent, families)
	for f := 0; f < families; f++ {
		for k := 0; k < 2; k++ {
			id++
			recs = append(recs, pedigree.Record{ID: id})
			parents[f][k] = parent{id: id, u: sa * rng.NormFloat64()}
		}
	}
	breeding := make(map[int64]float64)
	for f := 0; f < families; f++ {
		breeding[parents[f][0].id] = parents[f][0].u
		breeding[parents[f][1].id] = parents[f][1].u
		for k := 0; k < sibs; k++ {
			id++
			recs = append(recs, pedigree.Record{
				ID:   id,
				Sire: parents[f][0].id,
				Dam:  parents[f][1].id,
			})
			// mid-parent plus Mendelian sampling, non-inbred parents
			breeding[id] = (parents[f][0].u+parents[f][1].u)/2 +
				sa*math.Sqrt(0.5)*rng.NormFloat64()
		}
	}

	p, err := pedigree.New(recs)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	phenos := make([]mme.PhenotypeRecord, 0, len(recs))
	for _, r := range recs {
		phenos = append(phenos, mme.PhenotypeRecord{
			ID:    r.ID,
			Value: 10 + breeding[r.ID] + se*rng.NormFloat64(),
		})
	}
	return p, phenos
}

func TestProfileFinite(tst *testing.T) {
	rng := rand.New(rand.NewSource(11))
	p, phenos := simulateFamilies(tst, rng, 10, 4, 0.4)

	pr, err := mme.NewProfile(phenos, p.IDs(), relmat.AdditiveInverse(p))
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	for _, h2 := range []float64{0.05, 0.3, 0.5, 0.7, 0.95} {
		v, err := pr.NegLogLik(h2)
		if err != nil {
			tst.Fatalf("likelihood failed at h2=%v: %v", h2, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			tst.Errorf("likelihood not finite at h2=%v: %v", h2, v)
		}
	}
	if _, err := pr.NegLogLik(1.5); err == nil {
		tst.Error("expected error for out-of-range heritability")
	}
}

// TestRecovery fits h² on a simulated full-sib design. The tolerance
// is loose; the point is that the estimate lands in the right region,
// not sampling-theory precision.
func TestRecovery(tst *testing.T) {
	if testing.Short() {
		tst.Skip("skipping likelihood maximization in short mode")
	}
	rng := rand.New(rand.NewSource(12))
	p, phenos := simulateFamilies(tst, rng, 60, 5, 0.5)

	est, err := EstimateHeritability(context.Background(), phenos, p.IDs(),
		relmat.AdditiveInverse(p), Options{})
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	tst.Logf("estimated h2=%.4f after %d evaluations", est.Heritability, est.Evaluations)

	if math.Abs(est.Heritability-0.5) > 0.25 {
		tst.Error("heritability estimate far from simulated value:", est.Heritability)
	}
	if est.Evaluations == 0 {
		tst.Error("no likelihood evaluations recorded")
	}
	if math.Abs(est.Lambda-(1-est.Heritability)/est.Heritability) > 1e-12 {
		tst.Error("lambda inconsistent with heritability")
	}
	if est.ResidualVariance <= 0 || est.AdditiveVariance <= 0 {
		tst.Error("variance components must be positive")
	}
}

// TestGradientAtBounds evaluates the numerical gradient at the
// optimizer's bound positions; the stencil must stay inside [lo, hi]
// so the optimizer never sees an infinite gradient.
func TestGradientAtBounds(tst *testing.T) {
	rng := rand.New(rand.NewSource(14))
	p, phenos := simulateFamilies(tst, rng, 10, 4, 0.4)

	pr, err := mme.NewProfile(phenos, p.IDs(), relmat.AdditiveInverse(p))
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	obj := &objective{pr: pr, lo: 0.01, hi: 0.99, dH: 1e-6}
	for _, h2 := range []float64{0.01 + 1e-5, 0.99 - 1e-5} {
		g := obj.EvaluateGradient([]float64{h2})
		if math.IsNaN(g[0]) || math.IsInf(g[0], 0) {
			tst.Errorf("gradient not finite at bound h2=%v: %v", h2, g[0])
		}
	}
	if obj.err != nil {
		tst.Error("gradient evaluation recorded an error:", obj.err)
	}
}

func TestTooFewRecords(tst *testing.T) {
	p, err := pedigree.New([]pedigree.Record{{ID: 1}})
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	phenos := []mme.PhenotypeRecord{{ID: 1, Value: 1}}
	_, err = EstimateHeritability(context.Background(), phenos, p.IDs(),
		relmat.AdditiveInverse(p), Options{})
	if err == nil {
		tst.Error("expected error for underdetermined profile")
	}
}

func TestCancelled(tst *testing.T) {
	rng := rand.New(rand.NewSource(13))
	p, phenos := simulateFamilies(tst, rng, 5, 3, 0.4)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := EstimateHeritability(ctx, phenos, p.IDs(),
		relmat.AdditiveInverse(p), Options{}); err == nil {
		tst.Error("expected cancellation error")
	}
}
