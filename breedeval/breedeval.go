/*

Breedeval estimates breeding values for a measured trait from
pedigree and/or marker-genotype data. It implements the classical
genetic evaluation methods: pedigree BLUP, genomic BLUP and
single-step GBLUP for partially genotyped populations.

The basic usage looks like this:

	breedeval -method blup -pedigree pedigree.json phenotypes.json

, this runs a pedigree-based evaluation with the default heritability.

Genomic and single-step evaluations need a genotype file:

	breedeval -method ssgblup -pedigree pedigree.json -genotypes snp.json phenotypes.json

To see all the options run:

	breedeval -h

*/
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/op/go-logging"
	"gopkg.in/alecthomas/kingpin.v2"
)

// These variables are set during the compilation.
var githash = ""
var gitbranch = ""
var buildstamp = ""
var version = "branch: " + gitbranch + ", revision: " + githash + ", build time: " + buildstamp

// Logger settings.
var log = logging.MustGetLogger("breedeval")
var formatter = logging.MustStringFormatter(`%{message}`)

// command-line options
var (
	// application
	app = kingpin.New("breedeval", "pedigree and genomic breeding-value estimation").Version(version)

	// input
	phenotypesFileName = app.Arg("phenotypes", "phenotype records (JSON)").Required().ExistingFile()
	pedigreeFileName   = app.Flag("pedigree", "pedigree records (JSON)").ExistingFile()
	genotypesFileName  = app.Flag("genotypes", "marker genotypes (JSON)").ExistingFile()

	// model parameters
	method = app.Flag("method", "evaluation method "+
		"(blup: pedigree relationships, "+
		"gblup: genomic relationships, "+
		"ssgblup: single-step blend of both"+
		")").Default("blup").Enum("blup", "gblup", "ssgblup")
	h2       = app.Flag("h2", "trait heritability").Default("0.3").Float64()
	remlFlag = app.Flag("reml", "estimate heritability by REML instead of using -h2").Bool()
	omega    = app.Flag("omega", "single-step pedigree blending weight").Default("0.05").Float64()
	tau      = app.Flag("tau", "diagonal regularization weight for G").Default("0.02").Float64()
	gMethod  = app.Flag("gmethod", "G normalization (vanraden or uniform)").
			Default("vanraden").Enum("vanraden", "uniform")

	// solver parameters
	solver = app.Flag("solver", "linear solver "+
		"(direct: dense Cholesky factorization, "+
		"pcg: preconditioned conjugate gradients"+
		")").Default("direct").Enum("direct", "pcg")
	tol     = app.Flag("tol", "PCG relative-residual tolerance").Default("1e-8").Float64()
	maxIter = app.Flag("maxiter", "PCG iteration budget").Default("10000").Int()
	probes  = app.Flag("probes", "stochastic reliability probe count").Default("32").Int()

	// ranking
	topProportion = app.Flag("top", "report selection intensity and candidates for selecting this proportion").Float64()

	// technical
	nThreads   = app.Flag("nt", "number of threads to use").Int()
	seed       = app.Flag("seed", "random generator seed, default time based").Default("-1").Int64()
	cpuProfile = app.Flag("cpuprofile", "write cpu profile to file").String()

	// input/output
	outLogF  = app.Flag("log", "write log to a file").String()
	logLevel = app.Flag("loglevel", "set loglevel "+
		"('critical', 'error', 'warning', 'notice', 'info', 'debug')").
		Default("notice").
		Enum("critical", "error", "warning", "notice", "info", "debug")
	jsonF   = app.Flag("json", "write json output to a file").String()
	dbF     = app.Flag("db", "run store database file").String()
	runName = app.Flag("run", "run name in the store").Default("default").String()
)

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	// logging
	logging.SetFormatter(formatter)

	var backend *logging.LogBackend
	if *outLogF != "" {
		f, err := os.OpenFile(*outLogF, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Fatal("Error creating log file:", err)
		}
		defer f.Close()
		backend = logging.NewLogBackend(f, "", 0)
	} else {
		backend = logging.NewLogBackend(os.Stderr, "", 0)
	}
	logging.SetBackend(backend)

	level, err := logging.LogLevel(*logLevel)
	if err != nil {
		log.Fatal(err)
	}
	for _, pkg := range []string{"breedeval", "pedigree", "relmat", "genomic", "blend", "mme", "reml", "runstore"} {
		logging.SetLevel(level, pkg)
	}

	// print revision
	log.Info(version)

	// print commandline
	log.Info("Command line:", os.Args)

	if *seed == -1 {
		*seed = time.Now().UnixNano()
		log.Debug("Random seed from time")
	}
	log.Infof("Random seed=%v", *seed)

	runtime.GOMAXPROCS(*nThreads)
	effectiveNThreads := runtime.GOMAXPROCS(0)
	log.Infof("Using threads: %d.", effectiveNThreads)

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal(err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	// cancellation is coarse-grained: the engine aborts at the next
	// stage boundary
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		s := <-sig
		log.Warningf("Received signal %v, aborting at next stage boundary", s)
		cancel()
	}()

	summary, err := run(ctx)
	if err != nil {
		log.Fatal(err)
	}
	summary.Version = version
	summary.CommandLine = os.Args
	summary.Seed = *seed
	summary.NThreads = effectiveNThreads

	// output summary in json format
	if *jsonF != "" {
		j, err := json.Marshal(summary)
		if err != nil {
			log.Error(err)
		} else {
			log.Debug(string(j))
			f, err := os.Create(*jsonF)
			if err != nil {
				log.Error("Error creating json output file:", err)
			} else {
				f.Write(j)
				f.Close()
			}
		}
	}
}
