package storage

import (
	"context"
	"sort"
	"sync"

	"clustenm/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	params      map[string]model.RunParameters
	generations map[string]map[int]model.GenerationRecord
	ensembles   map[string]model.EnsembleRecord
	domains     map[string]map[string]model.DomainAssignment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.params = make(map[string]model.RunParameters)
	s.generations = make(map[string]map[int]model.GenerationRecord)
	s.ensembles = make(map[string]model.EnsembleRecord)
	s.domains = make(map[string]map[string]model.DomainAssignment)
	return nil
}

// Reset drops every archived artifact. The store stays initialized.
func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.params = make(map[string]model.RunParameters)
	s.generations = make(map[string]map[int]model.GenerationRecord)
	s.ensembles = make(map[string]model.EnsembleRecord)
	s.domains = make(map[string]map[string]model.DomainAssignment)
	return nil
}

func (s *MemoryStore) SaveRunParameters(_ context.Context, params model.RunParameters) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.params[params.RunID] = params
	return nil
}

func (s *MemoryStore) GetRunParameters(_ context.Context, runID string) (model.RunParameters, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	params, ok := s.params[runID]
	return params, ok, nil
}

func (s *MemoryStore) SaveGeneration(_ context.Context, runID string, record model.GenerationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generations[runID] == nil {
		s.generations[runID] = make(map[int]model.GenerationRecord)
	}
	s.generations[runID][record.Generation] = copyGeneration(record)
	return nil
}

func (s *MemoryStore) GetGeneration(_ context.Context, runID string, generation int) (model.GenerationRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.generations[runID][generation]
	if !ok {
		return model.GenerationRecord{}, false, nil
	}
	return copyGeneration(record), true, nil
}

func (s *MemoryStore) ListGenerations(_ context.Context, runID string) ([]model.GenerationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byGen := s.generations[runID]
	records := make([]model.GenerationRecord, 0, len(byGen))
	for _, record := range byGen {
		records = append(records, copyGeneration(record))
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Generation < records[j].Generation })
	return records, nil
}

func (s *MemoryStore) SaveEnsemble(_ context.Context, runID string, record model.EnsembleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensembles[runID] = copyEnsemble(record)
	return nil
}

func (s *MemoryStore) GetEnsemble(_ context.Context, runID string) (model.EnsembleRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.ensembles[runID]
	if !ok {
		return model.EnsembleRecord{}, false, nil
	}
	return copyEnsemble(record), true, nil
}

func (s *MemoryStore) SaveDomainAssignment(_ context.Context, assignment model.DomainAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.domains[assignment.RunID] == nil {
		s.domains[assignment.RunID] = make(map[string]model.DomainAssignment)
	}
	copied := assignment
	copied.Labels = append([]int(nil), assignment.Labels...)
	s.domains[assignment.RunID][assignment.Strategy] = copied
	return nil
}

func (s *MemoryStore) GetDomainAssignment(_ context.Context, runID, strategy string) (model.DomainAssignment, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	assignment, ok := s.domains[runID][strategy]
	if !ok {
		return model.DomainAssignment{}, false, nil
	}
	copied := assignment
	copied.Labels = append([]int(nil), assignment.Labels...)
	return copied, true, nil
}

func copyGeneration(record model.GenerationRecord) model.GenerationRecord {
	copied := record
	copied.Conformers = make([][]float64, len(record.Conformers))
	for i, conf := range record.Conformers {
		copied.Conformers[i] = append([]float64(nil), conf...)
	}
	copied.Potentials = append([]float64(nil), record.Potentials...)
	copied.Weights = append([]int(nil), record.Weights...)
	return copied
}

func copyEnsemble(record model.EnsembleRecord) model.EnsembleRecord {
	copied := record
	copied.Labels = append([]string(nil), record.Labels...)
	copied.Coords = make([][]float64, len(record.Coords))
	for i, coords := range record.Coords {
		copied.Coords[i] = append([]float64(nil), coords...)
	}
	return copied
}
