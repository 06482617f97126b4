package genomic

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/op/go-logging"
)

const smallDiff = 1e-10

func init() {
	logging.SetLevel(logging.WARNING, "genomic")
}

func TestAlleleFrequencies(tst *testing.T) {
	// two individuals, three markers
	g, err := New([]int64{1, 2}, []float64{
		-1, 0, 1,
		1, 0, 1,
	}, 3)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	p := AlleleFrequencies(g)
	want := []float64{0.5, 0.5, 1}
	for j, v := range want {
		if math.Abs(p[j]-v) > smallDiff {
			tst.Errorf("marker %d: expected p=%v, got %v", j, v, p[j])
		}
	}
}

func TestNewValidation(tst *testing.T) {
	if _, err := New([]int64{1}, []float64{0, 0}, 3); err == nil {
		tst.Error("expected dimension error")
	}
	if _, err := New([]int64{1, 1}, []float64{0, 0}, 1); err == nil {
		tst.Error("expected duplicate id error")
	}
	if _, err := New([]int64{1}, nil, 0); err == nil {
		tst.Error("expected marker count error")
	}
}

// synthetic population with known allele frequencies
func simulate(rng *rand.Rand, n, m int) *Genotypes {
	ids := make([]int64, n)
	dosages := make([]float64, n*m)
	freqs := make([]float64, m)
	for j := range freqs {
		freqs[j] = 0.1 + 0.8*rng.Float64()
	}
	for i := 0; i < n; i++ {
		ids[i] = int64(i + 1)
		for j := 0; j < m; j++ {
			d := -1.0
			if rng.Float64() < freqs[j] {
				d++
			}
			if rng.Float64() < freqs[j] {
				d++
			}
			dosages[i*m+j] = d
		}
	}
	g, err := New(ids, dosages, m)
	if err != nil {
		panic(err)
	}
	return g
}

// TestDiagonalScale: the average diagonal of a VanRaden-normalized G
// approaches 1 for a non-inbred population with many independent
// markers.
func TestDiagonalScale(tst *testing.T) {
	rng := rand.New(rand.NewSource(1))
	g := simulate(rng, 50, 5000)

	gm, err := Relationship(context.Background(), g, Options{Method: VanRaden})
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	mean := 0.0
	for i := 0; i < g.Len(); i++ {
		mean += gm.At(i, i)
	}
	mean /= float64(g.Len())
	tst.Log("average diagonal:", mean)
	if math.Abs(mean-1) > 0.1 {
		tst.Error("average diagonal far from 1:", mean)
	}
}

func TestStrategiesAgree(tst *testing.T) {
	rng := rand.New(rand.NewSource(2))
	g := simulate(rng, 20, 200)

	ctx := context.Background()
	a, err := Relationship(ctx, g, Options{Multiply: BLAS{}})
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	b, err := Relationship(ctx, g, Options{Multiply: Parallel{Threads: 4}})
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	for i := 0; i < g.Len(); i++ {
		for j := 0; j < g.Len(); j++ {
			if math.Abs(a.At(i, j)-b.At(i, j)) > 1e-9 {
				tst.Fatalf("strategies disagree at (%d,%d): %v vs %v", i, j, a.At(i, j), b.At(i, j))
			}
		}
	}
}

func TestUniformNormalization(tst *testing.T) {
	rng := rand.New(rand.NewSource(3))
	g := simulate(rng, 10, 100)

	ctx := context.Background()
	vr, err := Relationship(ctx, g, Options{Method: VanRaden})
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	un, err := Relationship(ctx, g, Options{Method: Uniform})
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	// same matrix up to a single scale factor
	ratio := vr.At(0, 0) / un.At(0, 0)
	for i := 0; i < g.Len(); i++ {
		for j := 0; j < g.Len(); j++ {
			if un.At(i, j) == 0 {
				continue
			}
			r := vr.At(i, j) / un.At(i, j)
			if math.Abs(r-ratio) > 1e-6 {
				tst.Fatalf("normalizations are not proportional at (%d,%d)", i, j)
			}
		}
	}
}

func TestMonomorphic(tst *testing.T) {
	g, err := New([]int64{1, 2}, []float64{1, 1, 1, 1}, 2)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if _, err := Relationship(context.Background(), g, Options{}); err == nil {
		tst.Error("expected error for monomorphic markers")
	}
}

func TestMethodFromString(tst *testing.T) {
	if m, err := MethodFromString("uniform"); err != nil || m != Uniform {
		tst.Error("uniform parse failed")
	}
	if _, err := MethodFromString("bogus"); err == nil {
		tst.Error("expected error for unknown method")
	}
}
