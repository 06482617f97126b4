// plotebv creates a histogram of estimated breeding values from a
// breedeval JSON summary.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

type summary struct {
	Result struct {
		Method         string    `json:"method"`
		BreedingValues []float64 `json:"breedingValues"`
	} `json:"result"`
}

func main() {
	bins := flag.Int("bins", 20, "number of histogram bins")
	out := flag.String("o", "ebv.png", "output file")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: plotebv [flags] summary.json")
		os.Exit(2)
	}

	f, err := os.Open(flag.Arg(0))
	if err != nil {
		panic(err)
	}
	defer f.Close()

	var s summary
	if err := json.NewDecoder(f).Decode(&s); err != nil {
		panic(err)
	}
	if len(s.Result.BreedingValues) == 0 {
		fmt.Fprintln(os.Stderr, "no breeding values in summary")
		os.Exit(1)
	}

	p, err := plot.New()
	if err != nil {
		panic(err)
	}
	p.Title.Text = fmt.Sprintf("EBV distribution (%s)", s.Result.Method)
	p.X.Label.Text = "breeding value"
	p.Y.Label.Text = "count"

	h, err := plotter.NewHist(plotter.Values(s.Result.BreedingValues), *bins)
	if err != nil {
		panic(err)
	}
	p.Add(h)

	if err := p.Save(6*vg.Inch, 4*vg.Inch, *out); err != nil {
		panic(err)
	}
}
