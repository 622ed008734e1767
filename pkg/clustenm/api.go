package clustenm

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"clustenm/internal/cluster"
	"clustenm/internal/engine"
	"clustenm/internal/model"
	"clustenm/internal/nma"
	"clustenm/internal/storage"
)

const (
	defaultDBPath      = "clustenm.db"
	defaultGenerations = 5
	defaultConformers  = 50
	defaultModes       = 3
	defaultANMCutoff   = 15.0
	defaultGNMCutoff   = 10.0
	defaultWorkers     = 4
	defaultStrategy    = "discretize"
)

type Options struct {
	StoreKind string
	DBPath    string
	Logger    *log.Logger
}

type Client struct {
	store  storage.Store
	logger *log.Logger

	initOnce sync.Once
	initErr  error
}

// Atom mirrors the internal topology record for callers outside the
// module.
type Atom struct {
	Name    string
	Residue int
}

// System is a molecule with one flattened coordinate set,
// x0 y0 z0 x1 y1 z1 ...
type System struct {
	Title  string
	Atoms  []Atom
	Coords []float64
}

type RunRequest struct {
	System System
	RunID  string

	Generations int
	Conformers  int
	Modes       int
	Cutoff      float64
	RMSD        []float64
	MaxClust    []int
	Threshold   []float64

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

type RunSummary struct {
	RunID       string
	Title       string
	Generations int
	Conformers  int
	Labels      []string
}

type DomainsRequest struct {
	RunID    string
	System   System
	Strategy string
	Cutoff   float64
	Modes    int
	Clusters int
	// NoRowNorm disables the unit row normalization of the mode
	// embedding. Normalization is on by default.
	NoRowNorm bool
	Seed      int64
}

type DomainsSummary struct {
	RunID    string
	Strategy string
	Labels   []int
	Domains  int
}

// RunParameters is the public view of an archived run configuration.
// The per-generation schedules are indexed by generation; slot 0 is
// unused.
type RunParameters struct {
	RunID          string
	Title          string
	Cutoff         float64
	Modes          int
	Conformers     int
	Generations    int
	RMSD           []float64
	MaxClust       []int
	Threshold      []float64
	Sim            bool
	Temp           float64
	TSteps         []int
	Outlier        bool
	MZScore        float64
	V1             bool
	Platform       string
	Workers        int
	Seed           int64
	ElapsedSeconds float64
}

type Ensemble struct {
	Title  string
	Labels []string
	Coords [][]float64
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{store: store, logger: opts.Logger}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	c.initOnce.Do(func() {
		c.initErr = c.store.Init(ctx)
	})
	return c.initErr
}

// Reset wipes every archived run artifact. Stores without the reset
// capability are left untouched.
func (c *Client) Reset(ctx context.Context) error {
	if err := c.Init(ctx); err != nil {
		return err
	}
	if resetter, ok := c.store.(storage.Resetter); ok {
		return resetter.Reset(ctx)
	}
	return nil
}

// Run executes a full conformer generation run and archives every
// artifact under the returned run ID.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if err := c.Init(ctx); err != nil {
		return RunSummary{}, err
	}
	if req.Generations <= 0 {
		req.Generations = defaultGenerations
	}
	if req.Conformers <= 0 && !req.V1 {
		req.Conformers = defaultConformers
	}
	if req.Modes <= 0 {
		req.Modes = defaultModes
	}
	if req.Cutoff <= 0 {
		req.Cutoff = defaultANMCutoff
	}
	if req.Workers <= 0 {
		req.Workers = defaultWorkers
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}

	driver, err := engine.NewDriver(engine.Config{
		System:      toModelSystem(req.System),
		Store:       c.store,
		RunID:       req.RunID,
		Logger:      c.logger,
		Generations: req.Generations,
		Conformers:  req.Conformers,
		Modes:       req.Modes,
		Cutoff:      req.Cutoff,
		RMSD:        req.RMSD,
		MaxClust:    req.MaxClust,
		Threshold:   req.Threshold,
		V1:          req.V1,
		Sim:         req.Sim,
		Temp:        req.Temp,
		TSteps:      req.TSteps,
		Outlier:     req.Outlier,
		MZScore:     req.MZScore,
		Platform:    req.Platform,
		Workers:     req.Workers,
		Seed:        req.Seed,
	})
	if err != nil {
		return RunSummary{}, err
	}

	ens, err := driver.Run(ctx)
	if err != nil {
		return RunSummary{}, err
	}

	return RunSummary{
		RunID:       req.RunID,
		Title:       ens.Title,
		Generations: req.Generations,
		Conformers:  len(ens.Coords),
		Labels:      ens.Labels,
	}, nil
}

// AssignDomains partitions a structure into dynamic domains from the
// slow modes of its Gaussian network and archives the label vector.
func (c *Client) AssignDomains(ctx context.Context, req DomainsRequest) (DomainsSummary, error) {
	if err := c.Init(ctx); err != nil {
		return DomainsSummary{}, err
	}
	if req.Strategy == "" {
		req.Strategy = defaultStrategy
	}
	if req.Cutoff <= 0 {
		req.Cutoff = defaultGNMCutoff
	}
	if req.Modes <= 0 {
		req.Modes = defaultModes
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}

	sys := toModelSystem(req.System)
	caIdx := sys.CAIndices()
	if len(caIdx) == 0 {
		return DomainsSummary{}, fmt.Errorf("system has no alpha carbons")
	}
	ca := make([]float64, 0, 3*len(caIdx))
	for _, idx := range caIdx {
		ca = append(ca, sys.Coords[3*idx], sys.Coords[3*idx+1], sys.Coords[3*idx+2])
	}

	kirchhoff, err := nma.BuildKirchhoff(ca, req.Cutoff)
	if err != nil {
		return DomainsSummary{}, err
	}
	modes, err := nma.ComputeModes(kirchhoff, req.Modes, 1)
	if err != nil {
		return DomainsSummary{}, err
	}

	strategy, err := cluster.FromName(req.Strategy)
	if err != nil {
		return DomainsSummary{}, err
	}
	labels, err := cluster.AssignDomains(modes, strategy, !req.NoRowNorm, cluster.Options{
		Clusters: req.Clusters,
		Seed:     req.Seed,
	})
	if err != nil {
		return DomainsSummary{}, err
	}

	assignment := model.DomainAssignment{
		VersionedRecord: versionedRecord(),
		RunID:           req.RunID,
		Strategy:        req.Strategy,
		Labels:          labels,
	}
	if err := c.store.SaveDomainAssignment(ctx, assignment); err != nil {
		return DomainsSummary{}, fmt.Errorf("save domain assignment: %w", err)
	}

	return DomainsSummary{
		RunID:    req.RunID,
		Strategy: req.Strategy,
		Labels:   labels,
		Domains:  countDistinct(labels),
	}, nil
}

// Ensemble returns the aggregated conformer archive of a run.
func (c *Client) Ensemble(ctx context.Context, runID string) (Ensemble, bool, error) {
	if err := c.Init(ctx); err != nil {
		return Ensemble{}, false, err
	}
	record, ok, err := c.store.GetEnsemble(ctx, runID)
	if err != nil || !ok {
		return Ensemble{}, ok, err
	}
	return Ensemble{Title: record.Title, Labels: record.Labels, Coords: record.Coords}, true, nil
}

// Potentials returns the archived potential energies, one slice per
// generation in order.
func (c *Client) Potentials(ctx context.Context, runID string) ([][]float64, error) {
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	records, err := c.store.ListGenerations(ctx, runID)
	if err != nil {
		return nil, err
	}
	out := make([][]float64, len(records))
	for i, record := range records {
		out[i] = record.Potentials
	}
	return out, nil
}

// Weights returns the archived cluster population weights, one slice
// per generation in order.
func (c *Client) Weights(ctx context.Context, runID string) ([][]int, error) {
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	records, err := c.store.ListGenerations(ctx, runID)
	if err != nil {
		return nil, err
	}
	out := make([][]int, len(records))
	for i, record := range records {
		out[i] = record.Weights
	}
	return out, nil
}

// Parameters returns the archived configuration of a run.
func (c *Client) Parameters(ctx context.Context, runID string) (RunParameters, bool, error) {
	if err := c.Init(ctx); err != nil {
		return RunParameters{}, false, err
	}
	params, ok, err := c.store.GetRunParameters(ctx, runID)
	if err != nil || !ok {
		return RunParameters{}, ok, err
	}
	return RunParameters{
		RunID:          params.RunID,
		Title:          params.Title,
		Cutoff:         params.Cutoff,
		Modes:          params.NModes,
		Conformers:     params.NConfs,
		Generations:    params.NGens,
		RMSD:           params.RMSD,
		MaxClust:       params.MaxClust,
		Threshold:      params.Threshold,
		Sim:            params.Sim,
		Temp:           params.Temp,
		TSteps:         params.TSteps,
		Outlier:        params.Outlier,
		MZScore:        params.MZScore,
		V1:             params.V1,
		Platform:       params.Platform,
		Workers:        params.Workers,
		Seed:           params.Seed,
		ElapsedSeconds: params.ElapsedSeconds,
	}, true, nil
}

// DomainLabels returns an archived domain label vector.
func (c *Client) DomainLabels(ctx context.Context, runID, strategy string) ([]int, bool, error) {
	if err := c.Init(ctx); err != nil {
		return nil, false, err
	}
	assignment, ok, err := c.store.GetDomainAssignment(ctx, runID, strategy)
	if err != nil || !ok {
		return nil, ok, err
	}
	return assignment.Labels, true, nil
}

func toModelSystem(sys System) model.System {
	atoms := make([]model.Atom, len(sys.Atoms))
	for i, a := range sys.Atoms {
		atoms[i] = model.Atom{Name: a.Name, Residue: a.Residue}
	}
	return model.System{Title: sys.Title, Atoms: atoms, Coords: sys.Coords}
}

func countDistinct(labels []int) int {
	distinct := make(map[int]struct{}, len(labels))
	for _, l := range labels {
		distinct[l] = struct{}{}
	}
	return len(distinct)
}

func versionedRecord() model.VersionedRecord {
	return model.VersionedRecord{
		SchemaVersion: storage.CurrentSchemaVersion,
		CodecVersion:  storage.CurrentCodecVersion,
	}
}
