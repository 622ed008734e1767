package storage

import (
	"context"

	"clustenm/internal/model"
)

// Store defines persistence operations for run artifacts: parameters,
// per-generation archives, the final ensemble, and domain label vectors.
type Store interface {
	Init(ctx context.Context) error
	SaveRunParameters(ctx context.Context, params model.RunParameters) error
	GetRunParameters(ctx context.Context, runID string) (model.RunParameters, bool, error)
	SaveGeneration(ctx context.Context, runID string, record model.GenerationRecord) error
	GetGeneration(ctx context.Context, runID string, generation int) (model.GenerationRecord, bool, error)
	ListGenerations(ctx context.Context, runID string) ([]model.GenerationRecord, error)
	SaveEnsemble(ctx context.Context, runID string, record model.EnsembleRecord) error
	GetEnsemble(ctx context.Context, runID string) (model.EnsembleRecord, bool, error)
	SaveDomainAssignment(ctx context.Context, assignment model.DomainAssignment) error
	GetDomainAssignment(ctx context.Context, runID, strategy string) (model.DomainAssignment, bool, error)
}

// Resetter is an optional store capability that wipes every archived
// run artifact while keeping the store usable.
type Resetter interface {
	Reset(ctx context.Context) error
}
