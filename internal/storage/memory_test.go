package storage

import (
	"context"
	"testing"

	"clustenm/internal/model"
)

func versioned() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func TestMemoryStoreRunParametersRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	input := model.RunParameters{
		VersionedRecord: versioned(),
		RunID:           "run-1",
		Title:           "1ake",
		Cutoff:          15,
		NModes:          3,
		NConfs:          50,
		NGens:           5,
		RMSD:            []float64{0, 1, 1, 1, 1, 1},
		MaxClust:        []int{0, 10, 10, 10, 10, 10},
	}
	if err := store.SaveRunParameters(ctx, input); err != nil {
		t.Fatalf("save params: %v", err)
	}

	output, ok, err := store.GetRunParameters(ctx, "run-1")
	if err != nil {
		t.Fatalf("get params: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted parameters")
	}
	if output.Title != input.Title || output.NGens != input.NGens {
		t.Fatalf("unexpected parameters: %+v", output)
	}
}

func TestMemoryStoreGenerationRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	input := model.GenerationRecord{
		VersionedRecord: versioned(),
		Generation:      2,
		Conformers:      [][]float64{{0, 0, 0}, {1, 0, 0}},
		Potentials:      []float64{-10.5, -9.8},
		Weights:         []int{3, 1},
	}
	if err := store.SaveGeneration(ctx, "run-1", input); err != nil {
		t.Fatalf("save generation: %v", err)
	}

	output, ok, err := store.GetGeneration(ctx, "run-1", 2)
	if err != nil {
		t.Fatalf("get generation: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted generation")
	}
	if len(output.Conformers) != 2 || output.Potentials[1] != input.Potentials[1] {
		t.Fatalf("unexpected generation: %+v", output)
	}

	// The stored record must not alias the caller's slices.
	input.Conformers[0][0] = 99
	if output.Conformers[0][0] == 99 {
		t.Fatal("stored generation aliases caller slice")
	}
}

func TestMemoryStoreListGenerationsOrdered(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	for _, gen := range []int{2, 0, 1} {
		record := model.GenerationRecord{
			VersionedRecord: versioned(),
			Generation:      gen,
			Conformers:      [][]float64{{float64(gen), 0, 0}},
			Potentials:      []float64{float64(gen)},
			Weights:         []int{1},
		}
		if err := store.SaveGeneration(ctx, "run-1", record); err != nil {
			t.Fatalf("save generation %d: %v", gen, err)
		}
	}

	records, err := store.ListGenerations(ctx, "run-1")
	if err != nil {
		t.Fatalf("list generations: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("unexpected record count: %d", len(records))
	}
	for i, record := range records {
		if record.Generation != i {
			t.Fatalf("records out of order: %+v", records)
		}
	}
}

func TestMemoryStoreEnsembleRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	input := model.EnsembleRecord{
		VersionedRecord: versioned(),
		Title:           "1ake",
		Labels:          []string{"1ake_00000", "1ake_10000"},
		Coords:          [][]float64{{0, 0, 0}, {1, 0, 0}},
	}
	if err := store.SaveEnsemble(ctx, "run-1", input); err != nil {
		t.Fatalf("save ensemble: %v", err)
	}

	output, ok, err := store.GetEnsemble(ctx, "run-1")
	if err != nil {
		t.Fatalf("get ensemble: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted ensemble")
	}
	if len(output.Labels) != 2 || output.Labels[1] != "1ake_10000" {
		t.Fatalf("unexpected ensemble: %+v", output)
	}
}

func TestMemoryStoreResetDropsEveryArtifact(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	if err := store.SaveRunParameters(ctx, model.RunParameters{VersionedRecord: versioned(), RunID: "run-1"}); err != nil {
		t.Fatalf("save params: %v", err)
	}
	record := model.GenerationRecord{
		VersionedRecord: versioned(),
		Conformers:      [][]float64{{0, 0, 0}},
		Potentials:      []float64{1},
		Weights:         []int{1},
	}
	if err := store.SaveGeneration(ctx, "run-1", record); err != nil {
		t.Fatalf("save generation: %v", err)
	}
	if err := store.SaveEnsemble(ctx, "run-1", model.EnsembleRecord{VersionedRecord: versioned(), Title: "1ake"}); err != nil {
		t.Fatalf("save ensemble: %v", err)
	}
	if err := store.SaveDomainAssignment(ctx, model.DomainAssignment{VersionedRecord: versioned(), RunID: "run-1", Strategy: "kmeans", Labels: []int{0}}); err != nil {
		t.Fatalf("save assignment: %v", err)
	}

	if err := store.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}

	if _, ok, _ := store.GetRunParameters(ctx, "run-1"); ok {
		t.Fatal("parameters survived reset")
	}
	if _, ok, _ := store.GetGeneration(ctx, "run-1", 0); ok {
		t.Fatal("generation survived reset")
	}
	if _, ok, _ := store.GetEnsemble(ctx, "run-1"); ok {
		t.Fatal("ensemble survived reset")
	}
	if _, ok, _ := store.GetDomainAssignment(ctx, "run-1", "kmeans"); ok {
		t.Fatal("assignment survived reset")
	}

	// The store must stay usable after a reset.
	if err := store.SaveEnsemble(ctx, "run-2", model.EnsembleRecord{VersionedRecord: versioned()}); err != nil {
		t.Fatalf("save after reset: %v", err)
	}
}

func TestMemoryStoreDomainAssignmentRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	input := model.DomainAssignment{
		VersionedRecord: versioned(),
		RunID:           "run-1",
		Strategy:        "kmeans",
		Labels:          []int{0, 0, 1, 1},
	}
	if err := store.SaveDomainAssignment(ctx, input); err != nil {
		t.Fatalf("save assignment: %v", err)
	}

	output, ok, err := store.GetDomainAssignment(ctx, "run-1", "kmeans")
	if err != nil {
		t.Fatalf("get assignment: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted assignment")
	}
	if len(output.Labels) != 4 || output.Labels[2] != 1 {
		t.Fatalf("unexpected assignment: %+v", output)
	}

	if _, ok, _ := store.GetDomainAssignment(ctx, "run-1", "gmm"); ok {
		t.Fatal("unexpected assignment for different strategy")
	}
}
