package genomic

import (
	"runtime"
	"sync"

	"github.com/gonum/blas"
	"github.com/gonum/blas/blas64"
	"github.com/gonum/matrix/mat64"
)

// MultiplyStrategy computes the cross-product Z·Zᵀ, the dominant
// floating-point cost of G construction. Implementations must agree
// numerically up to floating-point summation order.
type MultiplyStrategy interface {
	CrossProduct(z *mat64.Dense) *mat64.Dense
}

// BLAS computes the cross-product with a single dgemm call.
type BLAS struct{}

// CrossProduct implements MultiplyStrategy.
func (BLAS) CrossProduct(z *mat64.Dense) *mat64.Dense {
	rows, _ := z.Dims()
	out := mat64.NewDense(rows, rows, nil)
	blas64.Gemm(blas.NoTrans, blas.Trans, 1, z.RawMatrix(), z.RawMatrix(), 0, out.RawMatrix())
	return out
}

// Parallel computes the cross-product with explicit dot products,
// splitting the upper triangle across worker goroutines. It exists as
// a portable reference for the BLAS path and as the hook where an
// accelerator offload would slot in.
type Parallel struct {
	// Threads is the worker count; GOMAXPROCS when zero.
	Threads int
}

// CrossProduct implements MultiplyStrategy.
func (p Parallel) CrossProduct(z *mat64.Dense) *mat64.Dense {
	rows, cols := z.Dims()
	out := mat64.NewDense(rows, rows, nil)
	data := z.RawMatrix().Data

	nt := p.Threads
	if nt <= 0 {
		nt = runtime.GOMAXPROCS(0)
	}
	if nt > rows {
		nt = rows
	}

	var wg sync.WaitGroup
	rowCh := make(chan int, rows)
	for i := 0; i < rows; i++ {
		rowCh <- i
	}
	close(rowCh)

	for w := 0; w < nt; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range rowCh {
				zi := data[i*cols : (i+1)*cols]
				for j := i; j < rows; j++ {
					zj := data[j*cols : (j+1)*cols]
					sum := 0.0
					for k, v := range zi {
						sum += v * zj[k]
					}
					out.Set(i, j, sum)
					if i != j {
						out.Set(j, i, sum)
					}
				}
			}
		}()
	}
	wg.Wait()
	return out
}
