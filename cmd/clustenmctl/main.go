package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"clustenm/internal/storage"
	api "clustenm/pkg/clustenm"
)

const defaultDBPath = "clustenm.db"

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "reset":
		return runReset(ctx, args[1:])
	case "run":
		return runRun(ctx, args[1:])
	case "domains":
		return runDomains(ctx, args[1:])
	case "ensemble":
		return runEnsemble(ctx, args[1:])
	case "potentials":
		return runPotentials(ctx, args[1:])
	case "weights":
		return runWeights(ctx, args[1:])
	case "params":
		return runParams(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := api.New(api.Options{StoreKind: *storeKind, DBPath: *dbPath})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Init(ctx); err != nil {
		return err
	}
	fmt.Printf("initialized store=%s\n", *storeKind)
	return nil
}

func runReset(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := api.New(api.Options{StoreKind: *storeKind, DBPath: *dbPath})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Reset(ctx); err != nil {
		return err
	}
	fmt.Printf("reset store=%s\n", *storeKind)
	return nil
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	systemPath := fs.String("system", "", "path to system JSON (title, atoms, coords)")
	runID := fs.String("run-id", "", "run identifier (default: random)")
	generations := fs.Int("generations", 5, "number of generations")
	conformers := fs.Int("conformers", 50, "candidate conformers per seed")
	modes := fs.Int("modes", 3, "normal modes sampled per seed")
	cutoff := fs.Float64("cutoff", 15, "elastic network cutoff in angstroms")
	rmsd := fs.String("rmsd", "1", "target rmsd per generation, comma separated or scalar")
	maxClust := fs.String("maxclust", "", "cluster count per generation, comma separated or scalar")
	threshold := fs.String("threshold", "", "rmsd cut threshold per generation, comma separated or scalar")
	v1 := fs.Bool("v1", false, "enumerate every sign combination instead of random sampling")
	sim := fs.Bool("sim", false, "noisy pre-minimization steps")
	temp := fs.Float64("temp", 303.15, "temperature for pre-minimization noise")
	tSteps := fs.String("t-steps", "", "pre-minimization steps per generation, comma separated or scalar")
	outlier := fs.Bool("outlier", true, "drop high-energy outliers")
	mzscore := fs.Float64("mzscore", 3.5, "modified z-score threshold for outliers")
	platform := fs.String("platform", "", "relaxation platform; non-empty pins the run to one worker")
	workers := fs.Int("workers", 4, "parallel relaxation workers")
	seed := fs.Int64("seed", time.Now().UnixNano(), "random seed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *systemPath == "" {
		return usageError("run requires -system")
	}

	sys, err := loadSystem(*systemPath)
	if err != nil {
		return err
	}
	rmsdSeq, err := parseFloats(*rmsd)
	if err != nil {
		return fmt.Errorf("parse -rmsd: %w", err)
	}
	maxClustSeq, err := parseInts(*maxClust)
	if err != nil {
		return fmt.Errorf("parse -maxclust: %w", err)
	}
	thresholdSeq, err := parseFloats(*threshold)
	if err != nil {
		return fmt.Errorf("parse -threshold: %w", err)
	}
	tStepsSeq, err := parseInts(*tSteps)
	if err != nil {
		return fmt.Errorf("parse -t-steps: %w", err)
	}

	client, err := api.New(api.Options{StoreKind: *storeKind, DBPath: *dbPath})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	started := time.Now()
	summary, err := client.Run(ctx, api.RunRequest{
		System:      sys,
		RunID:       *runID,
		Generations: *generations,
		Conformers:  *conformers,
		Modes:       *modes,
		Cutoff:      *cutoff,
		RMSD:        rmsdSeq,
		MaxClust:    maxClustSeq,
		Threshold:   thresholdSeq,
		V1:          *v1,
		Sim:         *sim,
		Temp:        *temp,
		TSteps:      tStepsSeq,
		Outlier:     *outlier,
		MZScore:     *mzscore,
		Platform:    *platform,
		Workers:     *workers,
		Seed:        *seed,
	})
	if err != nil {
		return err
	}

	fmt.Printf("run %s finished: %s conformers over %d generations in %s\n",
		summary.RunID,
		humanize.Comma(int64(summary.Conformers)),
		summary.Generations,
		humanize.RelTime(started, time.Now(), "", ""))
	return nil
}

func runDomains(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("domains", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	systemPath := fs.String("system", "", "path to system JSON (title, atoms, coords)")
	runID := fs.String("run-id", "", "run identifier (default: random)")
	strategy := fs.String("strategy", "discretize", "clustering strategy: discretize|hingeplane|kmeans|hierarchy|gmm|bgmm")
	cutoff := fs.Float64("cutoff", 10, "gaussian network cutoff in angstroms")
	modes := fs.Int("modes", 3, "normal modes used for the embedding")
	clusters := fs.Int("clusters", 0, "cluster count for strategies that need one")
	noRowNorm := fs.Bool("no-row-norm", false, "skip the unit row normalization of the embedding")
	seed := fs.Int64("seed", 0, "random seed for stochastic strategies")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *systemPath == "" {
		return usageError("domains requires -system")
	}

	sys, err := loadSystem(*systemPath)
	if err != nil {
		return err
	}

	client, err := api.New(api.Options{StoreKind: *storeKind, DBPath: *dbPath})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.AssignDomains(ctx, api.DomainsRequest{
		RunID:     *runID,
		System:    sys,
		Strategy:  *strategy,
		Cutoff:    *cutoff,
		Modes:     *modes,
		Clusters:  *clusters,
		NoRowNorm: *noRowNorm,
		Seed:      *seed,
	})
	if err != nil {
		return err
	}

	fmt.Printf("run %s: %d domains over %s loci (%s)\n",
		summary.RunID,
		summary.Domains,
		humanize.Comma(int64(len(summary.Labels))),
		summary.Strategy)
	fmt.Println(formatLabels(summary.Labels))
	return nil
}

func runEnsemble(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ensemble", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	runID := fs.String("run-id", "", "run identifier")
	out := fs.String("out", "", "write the ensemble as JSON to this path instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return usageError("ensemble requires -run-id")
	}

	client, err := api.New(api.Options{StoreKind: *storeKind, DBPath: *dbPath})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	ens, ok, err := client.Ensemble(ctx, *runID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no ensemble for run %s", *runID)
	}

	if *out != "" {
		data, err := json.MarshalIndent(ens, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(*out, data, 0o644); err != nil {
			return err
		}
		fmt.Printf("wrote %s conformers to %s\n", humanize.Comma(int64(len(ens.Coords))), *out)
		return nil
	}

	fmt.Printf("%s: %s conformers\n", ens.Title, humanize.Comma(int64(len(ens.Coords))))
	for _, label := range ens.Labels {
		fmt.Println(label)
	}
	return nil
}

func runPotentials(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("potentials", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	runID := fs.String("run-id", "", "run identifier")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return usageError("potentials requires -run-id")
	}

	client, err := api.New(api.Options{StoreKind: *storeKind, DBPath: *dbPath})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	potentials, err := client.Potentials(ctx, *runID)
	if err != nil {
		return err
	}
	if len(potentials) == 0 {
		return fmt.Errorf("no generations for run %s", *runID)
	}
	for gen, values := range potentials {
		fmt.Printf("generation %d:", gen)
		for _, v := range values {
			fmt.Printf(" %.4f", v)
		}
		fmt.Println()
	}
	return nil
}

func runWeights(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("weights", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	runID := fs.String("run-id", "", "run identifier")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return usageError("weights requires -run-id")
	}

	client, err := api.New(api.Options{StoreKind: *storeKind, DBPath: *dbPath})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	weights, err := client.Weights(ctx, *runID)
	if err != nil {
		return err
	}
	if len(weights) == 0 {
		return fmt.Errorf("no generations for run %s", *runID)
	}
	for gen, values := range weights {
		fmt.Printf("generation %d:", gen)
		for _, w := range values {
			fmt.Printf(" %d", w)
		}
		fmt.Println()
	}
	return nil
}

func runParams(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("params", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	runID := fs.String("run-id", "", "run identifier")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return usageError("params requires -run-id")
	}

	client, err := api.New(api.Options{StoreKind: *storeKind, DBPath: *dbPath})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	params, ok, err := client.Parameters(ctx, *runID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no parameters for run %s", *runID)
	}

	data, err := json.MarshalIndent(params, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

type systemFile struct {
	Title string `json:"title"`
	Atoms []struct {
		Name    string `json:"name"`
		Residue int    `json:"residue"`
	} `json:"atoms"`
	Coords []float64 `json:"coords"`
}

func loadSystem(path string) (api.System, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return api.System{}, err
	}
	var raw systemFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return api.System{}, fmt.Errorf("parse system %s: %w", path, err)
	}
	sys := api.System{Title: raw.Title, Coords: raw.Coords}
	for _, a := range raw.Atoms {
		sys.Atoms = append(sys.Atoms, api.Atom{Name: a.Name, Residue: a.Residue})
	}
	if len(sys.Atoms) == 0 {
		return api.System{}, fmt.Errorf("system %s has no atoms", path)
	}
	if len(sys.Coords) != 3*len(sys.Atoms) {
		return api.System{}, fmt.Errorf("system %s: %d coordinates for %d atoms", path, len(sys.Coords), len(sys.Atoms))
	}
	return sys, nil
}

func parseFloats(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, part := range parts {
		var v float64
		if _, err := fmt.Sscanf(strings.TrimSpace(part), "%g", &v); err != nil {
			return nil, fmt.Errorf("invalid value %q", part)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseInts(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, part := range parts {
		var v int
		if _, err := fmt.Sscanf(strings.TrimSpace(part), "%d", &v); err != nil {
			return nil, fmt.Errorf("invalid value %q", part)
		}
		out = append(out, v)
	}
	return out, nil
}

func formatLabels(labels []int) string {
	var b strings.Builder
	for i, l := range labels {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%d", l)
	}
	return b.String()
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: clustenmctl <init|reset|run|domains|ensemble|potentials|weights|params> [flags]", msg)
}
