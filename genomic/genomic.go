// Package genomic builds the marker-based genomic relationship matrix
// G from allele-dosage genotypes.
package genomic

import (
	"context"
	"fmt"

	"github.com/gonum/matrix/mat64"
	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("genomic")

// Method selects the G normalization.
type Method int

const (
	// VanRaden divides the centered cross-product by 2·Σp(1−p), the
	// variance-based normalization. G's average diagonal is ≈1 for a
	// non-inbred reference population.
	VanRaden Method = iota
	// Uniform divides by the marker count instead.
	Uniform
)

func (m Method) String() string {
	switch m {
	case VanRaden:
		return "vanraden"
	case Uniform:
		return "uniform"
	}
	return "unknown"
}

// MethodFromString parses a normalization name.
func MethodFromString(s string) (Method, error) {
	switch s {
	case "vanraden":
		return VanRaden, nil
	case "uniform":
		return Uniform, nil
	}
	return VanRaden, fmt.Errorf("unknown G normalization: %s", s)
}

// Genotypes holds allele dosages for a set of genotyped individuals.
// Rows are individuals, columns are markers. Dosages are centered
// about the heterozygote: -1 and +1 for the homozygotes, 0 for the
// heterozygote (fractional values from imputation are accepted).
type Genotypes struct {
	IDs     []int64
	Dosages *mat64.Dense
}

// New creates a Genotypes set from a row-major dosage slice.
func New(ids []int64, dosages []float64, markers int) (*Genotypes, error) {
	if markers < 1 {
		return nil, fmt.Errorf("genotypes need at least one marker")
	}
	if len(dosages) != len(ids)*markers {
		return nil, fmt.Errorf("dosage slice length %d does not match %d individuals × %d markers",
			len(dosages), len(ids), markers)
	}
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return nil, fmt.Errorf("duplicate genotyped individual %d", id)
		}
		seen[id] = true
	}
	return &Genotypes{IDs: ids, Dosages: mat64.NewDense(len(ids), markers, dosages)}, nil
}

// Len returns the number of genotyped individuals.
func (g *Genotypes) Len() int {
	r, _ := g.Dosages.Dims()
	return r
}

// Markers returns the marker count.
func (g *Genotypes) Markers() int {
	_, c := g.Dosages.Dims()
	return c
}

// AlleleFrequencies estimates per-marker allele frequencies from the
// column means of the dosage matrix, rescaled to [0, 1].
func AlleleFrequencies(g *Genotypes) []float64 {
	rows, cols := g.Dosages.Dims()
	p := make([]float64, cols)
	for j := 0; j < cols; j++ {
		sum := 0.0
		for i := 0; i < rows; i++ {
			sum += g.Dosages.At(i, j)
		}
		p[j] = (sum/float64(rows) + 1) / 2
	}
	return p
}

// Options configures G construction.
type Options struct {
	Method Method
	// Multiply selects the cross-product implementation; BLAS when nil.
	Multiply MultiplyStrategy
}

// Relationship builds the genomic relationship matrix. Marker columns
// are centered by their mean dosage (2p−1), the centered matrix is
// multiplied with its own transpose, and the product is scaled
// according to the configured method.
func Relationship(ctx context.Context, g *Genotypes, opts Options) (*mat64.SymDense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, cols := g.Dosages.Dims()
	p := AlleleFrequencies(g)

	z := mat64.NewDense(rows, cols, nil)
	denom := 0.0
	for j := 0; j < cols; j++ {
		c := 2*p[j] - 1
		for i := 0; i < rows; i++ {
			z.Set(i, j, g.Dosages.At(i, j)-c)
		}
		denom += 2 * p[j] * (1 - p[j])
	}
	if opts.Method == Uniform {
		denom = float64(cols)
	}
	if denom == 0 {
		return nil, fmt.Errorf("all markers are monomorphic, G scale is zero")
	}

	mul := opts.Multiply
	if mul == nil {
		mul = BLAS{}
	}
	log.Infof("building G: %d individuals, %d markers, %s normalization",
		rows, cols, opts.Method)

	zz := mul.CrossProduct(z)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := mat64.NewSymDense(rows, nil)
	for i := 0; i < rows; i++ {
		for j := i; j < rows; j++ {
			res.SetSym(i, j, zz.At(i, j)/denom)
		}
	}
	return res, nil
}
