package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ovinelab/breedeval/genomic"
	"github.com/ovinelab/breedeval/mme"
	"github.com/ovinelab/breedeval/pedigree"
)

// genotypesFile is the on-disk genotype layout: dosages are row-major,
// one row per individual, heterozygote-centered (-1, 0, +1).
type genotypesFile struct {
	IDs     []int64   `json:"ids"`
	Markers int       `json:"markers"`
	Dosages []float64 `json:"dosages"`
}

func readJSON(fn string, v interface{}) error {
	f, err := os.Open(fn)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(v); err != nil {
		return fmt.Errorf("%s: %v", fn, err)
	}
	return nil
}

// readPhenotypes loads phenotype records.
func readPhenotypes(fn string) ([]mme.PhenotypeRecord, error) {
	var recs []mme.PhenotypeRecord
	if err := readJSON(fn, &recs); err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%s: no phenotype records", fn)
	}
	return recs, nil
}

// readPedigree loads and validates pedigree records.
func readPedigree(fn string) (*pedigree.Pedigree, error) {
	var recs []pedigree.Record
	if err := readJSON(fn, &recs); err != nil {
		return nil, err
	}
	return pedigree.New(recs)
}

// readGenotypes loads the genotype matrix.
func readGenotypes(fn string) (*genomic.Genotypes, error) {
	var gf genotypesFile
	if err := readJSON(fn, &gf); err != nil {
		return nil, err
	}
	return genomic.New(gf.IDs, gf.Dosages, gf.Markers)
}
