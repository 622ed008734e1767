package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"clustenm/internal/ensemble"
	"clustenm/internal/measure"
	"clustenm/internal/model"
	"clustenm/internal/storage"
)

// ErrInitialMinimization is fatal: if the starting structure cannot be
// relaxed there is nothing to seed the run with.
var ErrInitialMinimization = errors.New("initial minimization failed")

// ErrMissingDependency reports a requested preprocessing step with no
// component wired to perform it.
var ErrMissingDependency = errors.New("missing dependency")

// Fixer repairs missing residues in a structure before the run starts.
type Fixer interface {
	Fix(sys model.System, ph float64) (model.System, error)
}

const (
	DefaultCutoff  = 15.0
	DefaultRMSD    = 1.0
	DefaultPH      = 7.0
	defaultTitle   = "unknown"
	labelFormat    = "%s_%d%04d"
	minRelaxedConf = 1
)

// Config drives one conformer generation run. The RMSD, MaxClust,
// Threshold, and TSteps schedules accept either a single value,
// broadcast to every generation, or one value per generation. Exactly
// one of MaxClust and Threshold must be set.
type Config struct {
	System  model.System
	Store   storage.Store
	Relaxer Relaxer
	Fixer   Fixer
	RunID   string
	Logger  *log.Logger

	Generations int
	Conformers  int
	Modes       int
	Cutoff      float64
	RMSD        []float64
	MaxClust    []int
	Threshold   []float64

	FixMissingResidues bool
	PH                 float64

	V1      bool
	Sim     bool
	Temp    float64
	TSteps  []int
	Outlier bool
	MZScore float64

	Platform string
	Workers  int
	Seed     int64
}

// Driver runs the iterative perturb, relax, filter, cluster loop and
// archives every generation through the store.
type Driver struct {
	cfg     Config
	system  model.System
	gen     *generator
	relaxer Relaxer
	store   storage.Store
	logger  *log.Logger
	workers int

	rmsd      []float64
	maxClust  []int
	threshold []float64
	tSteps    []int
}

func NewDriver(cfg Config) (*Driver, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	sys := cfg.System
	if len(sys.Atoms) == 0 {
		return nil, fmt.Errorf("system has no atoms")
	}
	if len(sys.Coords) != 3*sys.NumAtoms() {
		return nil, fmt.Errorf("coordinate length %d does not match %d atoms", len(sys.Coords), sys.NumAtoms())
	}
	caIdx := sys.CAIndices()
	if len(caIdx) < 3 {
		return nil, fmt.Errorf("system needs at least 3 alpha carbons, found %d", len(caIdx))
	}
	if cfg.Generations <= 0 {
		return nil, fmt.Errorf("generations must be > 0")
	}
	if cfg.Modes <= 0 {
		return nil, fmt.Errorf("modes must be > 0")
	}
	if !cfg.V1 && cfg.Conformers <= 0 {
		return nil, fmt.Errorf("conformers must be > 0")
	}
	if (len(cfg.MaxClust) > 0) == (len(cfg.Threshold) > 0) {
		return nil, fmt.Errorf("exactly one of maxclust and threshold must be set")
	}
	if cfg.Cutoff <= 0 {
		cfg.Cutoff = DefaultCutoff
	}
	if cfg.PH == 0 {
		cfg.PH = DefaultPH
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if sys.Title == "" {
		sys.Title = defaultTitle
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	if cfg.FixMissingResidues {
		if cfg.Fixer == nil {
			return nil, fmt.Errorf("%w: no fixer configured for missing residue repair", ErrMissingDependency)
		}
		fixed, err := cfg.Fixer.Fix(sys, cfg.PH)
		if err != nil {
			return nil, fmt.Errorf("fix structure: %w", err)
		}
		sys = fixed
		caIdx = sys.CAIndices()
	}

	rmsd, err := broadcastFloats(cfg.RMSD, DefaultRMSD, cfg.Generations, "rmsd")
	if err != nil {
		return nil, err
	}
	var maxClust []int
	var threshold []float64
	if len(cfg.MaxClust) > 0 {
		maxClust, err = broadcastInts(cfg.MaxClust, cfg.Generations, "maxclust")
		if err != nil {
			return nil, err
		}
	} else {
		threshold, err = broadcastFloats(cfg.Threshold, 0, cfg.Generations, "threshold")
		if err != nil {
			return nil, err
		}
	}
	tSteps, err := broadcastInts(orDefaultSteps(cfg.TSteps), cfg.Generations, "tsteps")
	if err != nil {
		return nil, err
	}

	relaxer := cfg.Relaxer
	if relaxer == nil {
		relaxer, err = NewHarmonicRelaxer(HarmonicRelaxerConfig{
			Coords: sys.Coords,
			Cutoff: cfg.Cutoff,
			Sim:    cfg.Sim,
			Temp:   cfg.Temp,
			TSteps: tSteps,
			Seed:   cfg.Seed,
		})
		if err != nil {
			return nil, fmt.Errorf("default relaxer: %w", err)
		}
	}

	workers := cfg.Workers
	if cfg.Platform != "" {
		workers = 1
	}
	if serial, ok := relaxer.(SerialRelaxer); ok && serial.SerialOnly() {
		workers = 1
	}

	return &Driver{
		cfg:    cfg,
		system: sys,
		gen: &generator{
			atoms:  sys.Atoms,
			caIdx:  caIdx,
			cutoff: cfg.Cutoff,
			modes:  cfg.Modes,
			confs:  cfg.Conformers,
			rmsd:   rmsd,
			v1:     cfg.V1,
			rng:    rand.New(rand.NewSource(cfg.Seed)),
		},
		relaxer:   relaxer,
		store:     cfg.Store,
		logger:    logger,
		workers:   workers,
		rmsd:      rmsd,
		maxClust:  maxClust,
		threshold: threshold,
		tSteps:    tSteps,
	}, nil
}

// Run executes every generation and returns the aggregated ensemble.
// Generation 0 holds only the relaxed starting structure; each later
// generation holds the cluster representatives of its surviving
// candidates, superposed onto the generation 0 frame.
func (d *Driver) Run(ctx context.Context) (model.EnsembleRecord, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return model.EnsembleRecord{}, err
	}

	pot, relaxed := d.relaxer.Relax(ctx, 0, d.system.Coords)
	if relaxed == nil || math.IsNaN(pot) {
		return model.EnsembleRecord{}, ErrInitialMinimization
	}
	d.logger.Printf("generation 0: potential %.4f", pot)

	records := []model.GenerationRecord{{
		VersionedRecord: versionedRecord(),
		Generation:      0,
		Conformers:      [][]float64{relaxed},
		Potentials:      []float64{pot},
		Weights:         []int{1},
	}}
	if err := d.store.SaveGeneration(ctx, d.cfg.RunID, records[0]); err != nil {
		return model.EnsembleRecord{}, fmt.Errorf("save generation 0: %w", err)
	}

	baseCA := d.caCoords(relaxed)
	current := [][]float64{relaxed}

	for gen := 1; gen <= d.cfg.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return model.EnsembleRecord{}, err
		}

		candidates, err := d.generate(current, gen)
		if err != nil {
			return model.EnsembleRecord{}, err
		}
		d.logger.Printf("generation %d: %d candidates", gen, len(candidates))

		potentials, relaxedConfs := d.relaxAll(ctx, gen, candidates)
		if err := ctx.Err(); err != nil {
			return model.EnsembleRecord{}, err
		}

		confs, pots := dropFailed(relaxedConfs, potentials)
		if dropped := len(candidates) - len(confs); dropped > 0 {
			d.logger.Printf("generation %d: dropped %d failed relaxations", gen, dropped)
		}
		if len(confs) < minRelaxedConf {
			return model.EnsembleRecord{}, fmt.Errorf("generation %d: no conformer survived relaxation", gen)
		}

		if d.cfg.Outlier {
			confs, pots = dropOutliers(confs, pots, d.cfg.MZScore)
		}

		record, err := d.reduce(confs, pots, gen)
		if err != nil {
			return model.EnsembleRecord{}, fmt.Errorf("generation %d: %w", gen, err)
		}

		for i, conf := range record.Conformers {
			tr, err := measure.FitTransformation(d.caCoords(conf), baseCA)
			if err != nil {
				return model.EnsembleRecord{}, fmt.Errorf("generation %d: superpose conformer %d: %w", gen, i, err)
			}
			record.Conformers[i] = tr.Apply(conf)
		}

		if err := d.store.SaveGeneration(ctx, d.cfg.RunID, record); err != nil {
			return model.EnsembleRecord{}, fmt.Errorf("save generation %d: %w", gen, err)
		}
		d.logger.Printf("generation %d: kept %d conformers", gen, len(record.Conformers))
		records = append(records, record)
		current = record.Conformers
	}

	ens := d.assemble(records)
	if err := d.store.SaveEnsemble(ctx, d.cfg.RunID, ens); err != nil {
		return model.EnsembleRecord{}, fmt.Errorf("save ensemble: %w", err)
	}
	if err := d.store.SaveRunParameters(ctx, d.runParameters(time.Since(start))); err != nil {
		return model.EnsembleRecord{}, fmt.Errorf("save run parameters: %w", err)
	}
	return ens, nil
}

// generate fans perturbation out over every seed conformer. A seed with
// a degenerate network is skipped with a warning; the generation fails
// only if every seed is degenerate.
func (d *Driver) generate(seeds [][]float64, gen int) ([][]float64, error) {
	var candidates [][]float64
	for i, seed := range seeds {
		confs, err := d.gen.sample(seed, gen)
		if errors.Is(err, ErrDegenerate) {
			d.logger.Printf("generation %d: seed %d skipped: %v", gen, i, err)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("generation %d: seed %d: %w", gen, i, err)
		}
		candidates = append(candidates, confs...)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("generation %d: every seed was degenerate", gen)
	}
	return candidates, nil
}

func (d *Driver) relaxAll(ctx context.Context, cycle int, confs [][]float64) ([]float64, [][]float64) {
	type job struct {
		idx    int
		coords []float64
	}
	type result struct {
		idx       int
		potential float64
		coords    []float64
	}

	jobs := make(chan job)
	results := make(chan result, len(confs))

	workerCount := d.workers
	if workerCount > len(confs) {
		workerCount = len(confs)
	}

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				if ctx.Err() != nil {
					results <- result{idx: j.idx, potential: math.NaN()}
					continue
				}
				pot, relaxed := d.relaxer.Relax(ctx, cycle, j.coords)
				results <- result{idx: j.idx, potential: pot, coords: relaxed}
			}
		}()
	}

	for i := range confs {
		jobs <- job{idx: i, coords: confs[i]}
	}
	close(jobs)

	wg.Wait()
	close(results)

	potentials := make([]float64, len(confs))
	relaxed := make([][]float64, len(confs))
	for res := range results {
		potentials[res.idx] = res.potential
		relaxed[res.idx] = res.coords
	}
	return potentials, relaxed
}

// reduce clusters the surviving conformers of one generation and keeps
// one representative per cluster, weighted by cluster population. The
// clustering runs on the alpha carbon coordinate sets, so threshold
// cuts are in Cα RMSD units; the representatives are selected from the
// full-atom conformers. A single survivor is kept as is.
func (d *Driver) reduce(confs [][]float64, pots []float64, gen int) (model.GenerationRecord, error) {
	record := model.GenerationRecord{
		VersionedRecord: versionedRecord(),
		Generation:      gen,
	}
	if len(confs) == 1 {
		record.Conformers = confs
		record.Potentials = pots
		record.Weights = []int{1}
		return record, nil
	}

	cut := ensemble.CutOptions{}
	if d.maxClust != nil {
		cut.MaxClust = d.maxClust[gen]
	} else {
		cut.Threshold = d.threshold[gen]
	}
	caConfs := make([][]float64, len(confs))
	for i, conf := range confs {
		caConfs[i] = d.caCoords(conf)
	}
	clustering, err := ensemble.ClusterConformers(caConfs, cut)
	if err != nil {
		return model.GenerationRecord{}, err
	}

	record.Conformers = make([][]float64, len(clustering.Centroids))
	record.Potentials = make([]float64, len(clustering.Centroids))
	for i, idx := range clustering.Centroids {
		record.Conformers[i] = confs[idx]
		record.Potentials[i] = pots[idx]
	}
	record.Weights = clustering.Weights
	return record, nil
}

func (d *Driver) assemble(records []model.GenerationRecord) model.EnsembleRecord {
	ens := model.EnsembleRecord{
		VersionedRecord: versionedRecord(),
		Title:           d.system.Title,
	}
	for _, record := range records {
		for i, conf := range record.Conformers {
			ens.Labels = append(ens.Labels, fmt.Sprintf(labelFormat, d.system.Title, record.Generation, i))
			ens.Coords = append(ens.Coords, conf)
		}
	}
	return ens
}

func (d *Driver) runParameters(elapsed time.Duration) model.RunParameters {
	return model.RunParameters{
		VersionedRecord:    versionedRecord(),
		RunID:              d.cfg.RunID,
		Title:              d.system.Title,
		Cutoff:             d.cfg.Cutoff,
		PH:                 d.cfg.PH,
		FixMissingResidues: d.cfg.FixMissingResidues,
		NModes:             d.cfg.Modes,
		NConfs:             d.cfg.Conformers,
		NGens:              d.cfg.Generations,
		RMSD:               d.rmsd,
		MaxClust:           d.maxClust,
		Threshold:          d.threshold,
		Sim:                d.cfg.Sim,
		Temp:               d.cfg.Temp,
		TSteps:             d.tSteps,
		Outlier:            d.cfg.Outlier,
		MZScore:            d.cfg.MZScore,
		V1:                 d.cfg.V1,
		Platform:           d.cfg.Platform,
		Workers:            d.workers,
		Seed:               d.cfg.Seed,
		ElapsedSeconds:     elapsed.Seconds(),
	}
}

func (d *Driver) caCoords(coords []float64) []float64 {
	ca := make([]float64, 0, 3*len(d.gen.caIdx))
	for _, idx := range d.gen.caIdx {
		ca = append(ca, coords[3*idx], coords[3*idx+1], coords[3*idx+2])
	}
	return ca
}

func dropFailed(confs [][]float64, pots []float64) ([][]float64, []float64) {
	keptConfs := make([][]float64, 0, len(confs))
	keptPots := make([]float64, 0, len(pots))
	for i, pot := range pots {
		if math.IsNaN(pot) || confs[i] == nil {
			continue
		}
		keptConfs = append(keptConfs, confs[i])
		keptPots = append(keptPots, pot)
	}
	return keptConfs, keptPots
}

func dropOutliers(confs [][]float64, pots []float64, mzscore float64) ([][]float64, []float64) {
	flags := ensemble.DetectOutliers(pots, mzscore)
	keptConfs := make([][]float64, 0, len(confs))
	keptPots := make([]float64, 0, len(pots))
	for i, flagged := range flags {
		if flagged {
			continue
		}
		keptConfs = append(keptConfs, confs[i])
		keptPots = append(keptPots, pots[i])
	}
	return keptConfs, keptPots
}

// broadcastFloats turns either a scalar or a per-generation sequence
// into a schedule indexed by generation number; slot 0 is unused.
func broadcastFloats(values []float64, def float64, gens int, name string) ([]float64, error) {
	out := make([]float64, gens+1)
	switch len(values) {
	case 0:
		for g := 1; g <= gens; g++ {
			out[g] = def
		}
	case 1:
		for g := 1; g <= gens; g++ {
			out[g] = values[0]
		}
	case gens:
		copy(out[1:], values)
	default:
		return nil, fmt.Errorf("%s must have 1 or %d values, got %d", name, gens, len(values))
	}
	return out, nil
}

func broadcastInts(values []int, gens int, name string) ([]int, error) {
	out := make([]int, gens+1)
	switch len(values) {
	case 0:
	case 1:
		for g := 1; g <= gens; g++ {
			out[g] = values[0]
		}
	case gens:
		copy(out[1:], values)
	default:
		return nil, fmt.Errorf("%s must have 1 or %d values, got %d", name, gens, len(values))
	}
	return out, nil
}

func orDefaultSteps(tSteps []int) []int {
	if len(tSteps) == 0 {
		return []int{DefaultHeatSteps}
	}
	return tSteps
}

func versionedRecord() model.VersionedRecord {
	return model.VersionedRecord{
		SchemaVersion: storage.CurrentSchemaVersion,
		CodecVersion:  storage.CurrentCodecVersion,
	}
}
