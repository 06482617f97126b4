// Package reml estimates the heritability of a trait by maximizing
// the restricted likelihood of the animal model over h², using the
// bounded LBFGS-B optimizer with numerical gradients.
package reml

import (
	"context"
	"math"

	lbfgsb "github.com/idavydov/go-lbfgsb"
	"github.com/op/go-logging"

	"github.com/ovinelab/breedeval/mme"
	"github.com/ovinelab/breedeval/relmat"
)

var log = logging.MustGetLogger("reml")

// Options bounds and tunes the likelihood maximization.
type Options struct {
	// Lo, Hi bound h²; defaults 0.01 and 0.99.
	Lo, Hi float64
	// FTol, GTol are the optimizer stopping tolerances.
	FTol, GTol float64
	// Start is the initial h²; default 0.3.
	Start float64
}

func (o *Options) defaults() {
	if o.Lo == 0 {
		o.Lo = 0.01
	}
	if o.Hi == 0 {
		o.Hi = 0.99
	}
	if o.FTol == 0 {
		o.FTol = 1e-9
	}
	if o.GTol == 0 {
		o.GTol = 1e-7
	}
	if o.Start == 0 {
		o.Start = 0.3
	}
}

// Estimate is the outcome of a heritability estimation.
type Estimate struct {
	Heritability     float64 `json:"heritability"`
	Lambda           float64 `json:"lambda"`
	ResidualVariance float64 `json:"residualVariance"`
	AdditiveVariance float64 `json:"additiveVariance"`
	NegLogLik        float64 `json:"negLogLik"`
	Evaluations      int     `json:"evaluations"`
}

// objective adapts a likelihood profile to the optimizer interface.
// The gradient is a central difference: the profile is cheap enough in
// one dimension that numerical differentiation is the pragmatic
// choice.
type objective struct {
	pr    *mme.Profile
	lo    float64
	hi    float64
	dH    float64
	calls int
	err   error
}

func (o *objective) EvaluateFunction(x []float64) float64 {
	h2 := x[0]
	if h2 < o.lo || h2 > o.hi {
		return math.Inf(+1)
	}
	v, err := o.pr.NegLogLik(h2)
	o.calls++
	if err != nil {
		if o.err == nil {
			o.err = err
		}
		return math.Inf(+1)
	}
	return v
}

func (o *objective) EvaluateGradient(x []float64) []float64 {
	l := o.EvaluateFunction([]float64{x[0] - o.dH})
	r := o.EvaluateFunction([]float64{x[0] + o.dH})
	return []float64{(r - l) / (2 * o.dH)}
}

// EstimateHeritability fits h² by derivative-free REML: for each
// candidate h² the mixed-model equations are factorized, the residual
// variance is profiled out and −logL_R is evaluated; LBFGS-B searches
// the bounded interval.
func EstimateHeritability(ctx context.Context, phenos []mme.PhenotypeRecord,
	ids []int64, kin *relmat.Sparse, opts Options) (*Estimate, error) {

	opts.defaults()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pr, err := mme.NewProfile(phenos, ids, kin)
	if err != nil {
		return nil, err
	}

	obj := &objective{pr: pr, lo: opts.Lo, hi: opts.Hi, dH: 1e-6}

	opt := new(lbfgsb.Lbfgsb)
	opt.SetApproximationSize(10)
	opt.SetFTolerance(opts.FTol)
	opt.SetGTolerance(opts.GTol)
	// the bound margin must exceed dH so the gradient stencil never
	// leaves [lo, hi]
	opt.SetBounds([][2]float64{{opts.Lo + 1e-5, opts.Hi - 1e-5}})
	opt.SetLogger(func(info *lbfgsb.OptimizationIterationInformation) {
		log.Debugf("reml iteration %d: h2=%.5f, -lnL=%.6f", info.Iteration, info.X[0], info.F)
	})

	minimum, exitStatus := opt.Minimize(obj, []float64{opts.Start})
	log.Infof("reml exit status: %v", exitStatus)
	if obj.err != nil && math.IsInf(minimum.F, +1) {
		return nil, obj.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h2 := minimum.X[0]
	lambda := (1 - h2) / h2
	sigmaE, err := pr.ResidualVariance(h2)
	if err != nil {
		return nil, err
	}

	est := &Estimate{
		Heritability:     h2,
		Lambda:           lambda,
		ResidualVariance: sigmaE,
		AdditiveVariance: sigmaE / lambda,
		NegLogLik:        minimum.F,
		Evaluations:      obj.calls,
	}
	log.Noticef("reml estimate: h2=%.4f (lambda=%.4f, %d likelihood evaluations)",
		est.Heritability, est.Lambda, est.Evaluations)
	return est, nil
}
