package mme

import (
	"fmt"
)

// design holds the compact form of the X and Z matrices: X as dense
// record rows (the fixed-effect count is small), Z as one individual
// index per record.
type design struct {
	nrec int
	n    int // individuals
	p    int // fixed effects, intercept included

	x    []float64 // nrec × p, row-major
	zidx []int     // record → individual
	y    []float64
}

// newDesign validates the records against the individual order and
// builds the compact design. An intercept column is always present;
// all records must carry the same covariate count.
func newDesign(phenos []PhenotypeRecord, ids []int64) (*design, error) {
	index := make(map[int64]int, len(ids))
	for i, id := range ids {
		if _, ok := index[id]; ok {
			return nil, fmt.Errorf("duplicate individual %d in evaluation order", id)
		}
		index[id] = i
	}

	ncov := len(phenos[0].Covariates)
	ds := &design{
		nrec: len(phenos),
		n:    len(ids),
		p:    1 + ncov,
		zidx: make([]int, len(phenos)),
		y:    make([]float64, len(phenos)),
	}
	ds.x = make([]float64, ds.nrec*ds.p)

	for r, ph := range phenos {
		i, ok := index[ph.ID]
		if !ok {
			return nil, fmt.Errorf("phenotype record %d references individual %d outside the evaluation", r, ph.ID)
		}
		if len(ph.Covariates) != ncov {
			return nil, fmt.Errorf("record %d has %d covariates, expected %d", r, len(ph.Covariates), ncov)
		}
		ds.zidx[r] = i
		ds.y[r] = ph.Value
		row := ds.x[r*ds.p : (r+1)*ds.p]
		row[0] = 1
		copy(row[1:], ph.Covariates)
	}
	return ds, nil
}

// dim is the order of the full block system.
func (ds *design) dim() int {
	return ds.p + ds.n
}

// rhs builds the right-hand side [X'y; Z'y].
func (ds *design) rhs() []float64 {
	b := make([]float64, ds.dim())
	for r := 0; r < ds.nrec; r++ {
		row := ds.x[r*ds.p : (r+1)*ds.p]
		for a, v := range row {
			b[a] += v * ds.y[r]
		}
		b[ds.p+ds.zidx[r]] += ds.y[r]
	}
	return b
}

// apply computes out = C·v without materializing C: the data part via
// the record rows, the genetic part via the sparse kinship inverse.
func (ds *design) apply(kin kinMul, lambda float64, v, out, scratch []float64) {
	for i := range out {
		out[i] = 0
	}
	for r := 0; r < ds.nrec; r++ {
		row := ds.x[r*ds.p : (r+1)*ds.p]
		s := v[ds.p+ds.zidx[r]]
		for a, xv := range row {
			s += xv * v[a]
		}
		for a, xv := range row {
			out[a] += xv * s
		}
		out[ds.p+ds.zidx[r]] += s
	}
	kin.MulVec(scratch, v[ds.p:])
	for i := 0; i < ds.n; i++ {
		out[ds.p+i] += lambda * scratch[i]
	}
}

// kinMul is the slice-level product the iterative solver needs from a
// relationship inverse.
type kinMul interface {
	MulVec(dst, x []float64)
}

// jacobi builds the diagonal of C for preconditioning.
func (ds *design) jacobi(kinDiag []float64, lambda float64) []float64 {
	d := make([]float64, ds.dim())
	for r := 0; r < ds.nrec; r++ {
		row := ds.x[r*ds.p : (r+1)*ds.p]
		for a, v := range row {
			d[a] += v * v
		}
		d[ds.p+ds.zidx[r]]++
	}
	for i := 0; i < ds.n; i++ {
		d[ds.p+i] += lambda * kinDiag[i]
	}
	return d
}

// phenotypicVariance is the sample variance of the observations, used
// for the variance-component metadata of a run.
func (ds *design) phenotypicVariance() float64 {
	if ds.nrec < 2 {
		return 0
	}
	mean := 0.0
	for _, v := range ds.y {
		mean += v
	}
	mean /= float64(ds.nrec)
	ss := 0.0
	for _, v := range ds.y {
		ss += (v - mean) * (v - mean)
	}
	return ss / float64(ds.nrec-1)
}
