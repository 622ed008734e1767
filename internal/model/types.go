package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Atom is the minimal per-atom topology the pipeline needs: the atom name
// (to locate alpha carbons) and the residue it belongs to (to extend
// reduced modes back to all-atom resolution).
type Atom struct {
	Name    string `json:"name"`
	Residue int    `json:"residue"`
}

// System is a molecule with one coordinate set. Coordinates are stored
// flattened, x0 y0 z0 x1 y1 z1 ..., length 3*len(Atoms).
type System struct {
	Title  string    `json:"title"`
	Atoms  []Atom    `json:"atoms"`
	Coords []float64 `json:"coords"`
}

func (s System) NumAtoms() int {
	return len(s.Atoms)
}

// CAIndices returns the atom indices of alpha carbons in topology order.
func (s System) CAIndices() []int {
	idx := make([]int, 0, len(s.Atoms))
	for i, a := range s.Atoms {
		if a.Name == "CA" {
			idx = append(idx, i)
		}
	}
	return idx
}

// GenerationRecord is the archive of one completed generation: surviving
// conformers, their potential energies, and their cluster population
// weights, index-aligned at all times.
type GenerationRecord struct {
	VersionedRecord
	Generation int         `json:"generation"`
	Conformers [][]float64 `json:"conformers"`
	Potentials []float64   `json:"potentials"`
	Weights    []int       `json:"weights"`
}

// EnsembleRecord aggregates all generation records into one ordered
// coordinate set with parallel labels identifying generation and index.
type EnsembleRecord struct {
	VersionedRecord
	Title  string      `json:"title"`
	Labels []string    `json:"labels"`
	Coords [][]float64 `json:"coords"`
}

// RunParameters is the persisted configuration of a ClustENM run. The
// per-generation sequences (RMSD, MaxClust, Threshold, TSteps) are
// index-aligned with generation numbers; slot 0 is unused.
type RunParameters struct {
	VersionedRecord
	RunID              string    `json:"run_id"`
	Title              string    `json:"title"`
	Cutoff             float64   `json:"cutoff"`
	PH                 float64   `json:"ph"`
	FixMissingResidues bool      `json:"fix_missing_residues"`
	NModes             int       `json:"n_modes"`
	NConfs             int       `json:"n_confs"`
	NGens              int       `json:"n_gens"`
	RMSD               []float64 `json:"rmsd"`
	MaxClust           []int     `json:"maxclust,omitempty"`
	Threshold          []float64 `json:"threshold,omitempty"`
	Sim                bool      `json:"sim"`
	Temp               float64   `json:"temp"`
	TSteps             []int     `json:"t_steps,omitempty"`
	Outlier            bool      `json:"outlier"`
	MZScore            float64   `json:"mzscore"`
	V1                 bool      `json:"v1"`
	Platform           string    `json:"platform,omitempty"`
	Workers            int       `json:"workers"`
	Seed               int64     `json:"seed"`
	ElapsedSeconds     float64   `json:"elapsed_seconds"`
}

// DomainAssignment is a persisted label vector from the domain-labeling
// pipeline, one label per locus.
type DomainAssignment struct {
	VersionedRecord
	RunID    string `json:"run_id"`
	Strategy string `json:"strategy"`
	Labels   []int  `json:"labels"`
}
