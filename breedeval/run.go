package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ovinelab/breedeval/blend"
	"github.com/ovinelab/breedeval/genomic"
	"github.com/ovinelab/breedeval/mme"
	"github.com/ovinelab/breedeval/pedigree"
	"github.com/ovinelab/breedeval/relmat"
	"github.com/ovinelab/breedeval/reml"
	"github.com/ovinelab/breedeval/runstore"
	"github.com/ovinelab/breedeval/selindex"
)

// run executes one evaluation: build the requested relationship
// inverse, optionally estimate heritability, solve the mixed-model
// equations and rank candidates.
func run(ctx context.Context) (*RunSummary, error) {
	startTime := time.Now()
	summary := &RunSummary{Method: *method}

	phenos, err := readPhenotypes(*phenotypesFileName)
	if err != nil {
		return nil, err
	}
	log.Infof("Read %d phenotype records", len(phenos))

	var ped *pedigree.Pedigree
	if *pedigreeFileName != "" {
		ped, err = readPedigree(*pedigreeFileName)
		if err != nil {
			return nil, err
		}
		log.Infof("Read pedigree of %d individuals (%d founders)", ped.Len(), len(ped.Founders()))
	}

	var gts *genomic.Genotypes
	if *genotypesFileName != "" {
		gts, err = readGenotypes(*genotypesFileName)
		if err != nil {
			return nil, err
		}
		log.Infof("Read genotypes: %d individuals, %d markers", gts.Len(), gts.Markers())
	}

	normalization, err := genomic.MethodFromString(*gMethod)
	if err != nil {
		return nil, err
	}
	gopts := genomic.Options{Method: normalization}

	var store *runstore.Store
	if *dbF != "" {
		store, err = runstore.Open(*dbF, 1)
		if err != nil {
			return nil, err
		}
		defer store.Close()
	}

	// the relationship inverse and the individual order it indexes
	var kin *relmat.Sparse
	var ids []int64
	switch *method {
	case "blup":
		if ped == nil {
			return nil, fmt.Errorf("method blup needs -pedigree")
		}
		kin = relmat.AdditiveInverse(ped)
		ids = ped.IDs()
	case "gblup":
		if gts == nil {
			return nil, fmt.Errorf("method gblup needs -genotypes")
		}
		kin, err = blend.GenomicInverse(ctx, gts, *tau, gopts)
		if err != nil {
			return nil, err
		}
		ids = gts.IDs
	case "ssgblup":
		if ped == nil || gts == nil {
			return nil, fmt.Errorf("method ssgblup needs both -pedigree and -genotypes")
		}
		kin, err = blend.CombinedInverse(ctx, ped, gts, blend.Weights{Omega: *omega, Tau: *tau}, gopts)
		if err != nil {
			return nil, err
		}
		ids = ped.IDs()
	}

	heritability := *h2
	if *remlFlag {
		est, err := reml.EstimateHeritability(ctx, phenos, ids, kin, reml.Options{Start: *h2})
		if err != nil {
			return nil, err
		}
		heritability = est.Heritability
		summary.REML = est
	}

	opts := mme.Options{
		Heritability: heritability,
		Tol:          *tol,
		MaxIter:      *maxIter,
		Probes:       *probes,
		Seed:         *seed,
		Method:       *method,
	}
	if *solver == "pcg" {
		opts.Solver = mme.PCG
		opts.Reliability = mme.Stochastic
	}
	if store != nil {
		opts.Progress = func(stage string, done, total int) {
			if err := store.SaveHeartbeat(*runName, stage); err != nil {
				log.Warning("Error saving heartbeat:", err)
			}
		}
	}

	result, err := mme.Solve(ctx, phenos, ids, kin, opts)
	if err != nil {
		return nil, err
	}
	summary.Result = result

	if *topProportion != 0 {
		if err := rankCandidates(summary, result, *topProportion); err != nil {
			return nil, err
		}
	}

	if store != nil {
		if err := store.SaveResult(*runName, result); err != nil {
			return nil, err
		}
		log.Infof("Result stored as run %q", *runName)
	}

	summary.Time = time.Since(startTime).Seconds()
	log.Noticef("Running time: %v", time.Since(startTime))
	return summary, nil
}

// rankCandidates computes a single-trait selection index and the
// selection intensity for the requested proportion.
func rankCandidates(summary *RunSummary, result *mme.Result, proportion float64) error {
	intensity, err := selindex.Intensity(proportion)
	if err != nil {
		return err
	}
	idx, err := selindex.Compute(
		map[string]selindex.EBVs{"trait": selindex.FromResult(result.IDs, result.BreedingValues)},
		selindex.Weights{"trait": 1},
	)
	if err != nil {
		return err
	}

	nTop := int(proportion * float64(len(idx.Entries)))
	if nTop < 1 {
		nTop = 1
	}
	top := make([]int64, nTop)
	for i := 0; i < nTop; i++ {
		top[i] = idx.Entries[i].ID
	}

	log.Noticef("Selection intensity for top %.0f%%: %.4f", proportion*100, intensity)
	for i := 0; i < nTop; i++ {
		e := idx.Entries[i]
		log.Noticef("rank %d: individual %d, index %.4f", e.Rank, e.ID, e.Value)
	}
	summary.SelectionIntensity = intensity
	summary.TopCandidates = top
	return nil
}
