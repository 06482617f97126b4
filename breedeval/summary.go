package main

import (
	"github.com/ovinelab/breedeval/mme"
	"github.com/ovinelab/breedeval/reml"
)

// RunSummary is the JSON summary of one breedeval invocation.
type RunSummary struct {
	// Version stores the breedeval version.
	Version string `json:"version"`
	// CommandLine is an array storing binary name and all command-line parameters.
	CommandLine []string `json:"commandLine"`
	// Seed is the seed used for random number generation initialization.
	Seed int64 `json:"seed"`
	// NThreads is the number of processes used.
	NThreads int `json:"nThreads"`
	// Method is the evaluation method (blup, gblup or ssgblup).
	Method string `json:"method"`
	// REML is the heritability estimate, when requested.
	REML *reml.Estimate `json:"reml,omitempty"`
	// Result is the evaluation outcome.
	Result *mme.Result `json:"result"`
	// SelectionIntensity is reported when -top was given.
	SelectionIntensity float64 `json:"selectionIntensity,omitempty"`
	// TopCandidates are the best-ranked individuals when -top was given.
	TopCandidates []int64 `json:"topCandidates,omitempty"`
	// Time is the computations time in seconds.
	Time float64 `json:"time"`
}
