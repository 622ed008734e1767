//go:build sqlite

package storage

import (
	"context"
	"path/filepath"
	"testing"

	"clustenm/internal/model"
)

func TestSQLiteStoreRunArtifactsRoundTrip(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "clustenm.db")

	store := NewSQLiteStore(dbPath)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	params := model.RunParameters{
		VersionedRecord: versioned(),
		RunID:           "run-1",
		Title:           "1ake",
		Cutoff:          15,
		NModes:          3,
		NConfs:          50,
		NGens:           2,
		RMSD:            []float64{0, 1, 1},
		MaxClust:        []int{0, 10, 10},
	}
	if err := store.SaveRunParameters(ctx, params); err != nil {
		t.Fatalf("save params: %v", err)
	}
	loadedParams, ok, err := store.GetRunParameters(ctx, params.RunID)
	if err != nil {
		t.Fatalf("get params: %v", err)
	}
	if !ok {
		t.Fatal("expected run parameters")
	}
	if loadedParams.Title != params.Title || loadedParams.NGens != params.NGens {
		t.Fatalf("unexpected parameters loaded: %+v", loadedParams)
	}

	for gen := 0; gen < 3; gen++ {
		record := model.GenerationRecord{
			VersionedRecord: versioned(),
			Generation:      gen,
			Conformers:      [][]float64{{float64(gen), 0, 0}},
			Potentials:      []float64{float64(-gen)},
			Weights:         []int{1},
		}
		if err := store.SaveGeneration(ctx, params.RunID, record); err != nil {
			t.Fatalf("save generation %d: %v", gen, err)
		}
	}
	record, ok, err := store.GetGeneration(ctx, params.RunID, 1)
	if err != nil {
		t.Fatalf("get generation: %v", err)
	}
	if !ok {
		t.Fatal("expected generation 1")
	}
	if record.Potentials[0] != -1 {
		t.Fatalf("unexpected generation loaded: %+v", record)
	}
	records, err := store.ListGenerations(ctx, params.RunID)
	if err != nil {
		t.Fatalf("list generations: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("unexpected generation count: %d", len(records))
	}
	for i, r := range records {
		if r.Generation != i {
			t.Fatalf("generations out of order: %+v", records)
		}
	}

	ensemble := model.EnsembleRecord{
		VersionedRecord: versioned(),
		Title:           "1ake",
		Labels:          []string{"1ake_00000"},
		Coords:          [][]float64{{0, 0, 0}},
	}
	if err := store.SaveEnsemble(ctx, params.RunID, ensemble); err != nil {
		t.Fatalf("save ensemble: %v", err)
	}
	loadedEnsemble, ok, err := store.GetEnsemble(ctx, params.RunID)
	if err != nil {
		t.Fatalf("get ensemble: %v", err)
	}
	if !ok {
		t.Fatal("expected ensemble")
	}
	if loadedEnsemble.Labels[0] != ensemble.Labels[0] {
		t.Fatalf("unexpected ensemble loaded: %+v", loadedEnsemble)
	}

	assignment := model.DomainAssignment{
		VersionedRecord: versioned(),
		RunID:           params.RunID,
		Strategy:        "discretize",
		Labels:          []int{0, 1, 1},
	}
	if err := store.SaveDomainAssignment(ctx, assignment); err != nil {
		t.Fatalf("save assignment: %v", err)
	}
	loadedAssignment, ok, err := store.GetDomainAssignment(ctx, params.RunID, "discretize")
	if err != nil {
		t.Fatalf("get assignment: %v", err)
	}
	if !ok {
		t.Fatal("expected domain assignment")
	}
	if len(loadedAssignment.Labels) != 3 || loadedAssignment.Labels[1] != 1 {
		t.Fatalf("unexpected assignment loaded: %+v", loadedAssignment)
	}
}

func TestSQLiteStoreResetEmptiesTables(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "clustenm.db")

	store := NewSQLiteStore(dbPath)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	if err := store.SaveRunParameters(ctx, model.RunParameters{VersionedRecord: versioned(), RunID: "run-1"}); err != nil {
		t.Fatalf("save params: %v", err)
	}
	if err := store.SaveEnsemble(ctx, "run-1", model.EnsembleRecord{VersionedRecord: versioned(), Title: "1ake"}); err != nil {
		t.Fatalf("save ensemble: %v", err)
	}

	if err := store.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}

	if _, ok, _ := store.GetRunParameters(ctx, "run-1"); ok {
		t.Fatal("parameters survived reset")
	}
	if _, ok, _ := store.GetEnsemble(ctx, "run-1"); ok {
		t.Fatal("ensemble survived reset")
	}
	if err := store.SaveEnsemble(ctx, "run-2", model.EnsembleRecord{VersionedRecord: versioned()}); err != nil {
		t.Fatalf("save after reset: %v", err)
	}
}

func TestSQLiteStoreMissingRows(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "clustenm.db")

	store := NewSQLiteStore(dbPath)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	if _, ok, err := store.GetRunParameters(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected absent parameters: ok=%v err=%v", ok, err)
	}
	if _, ok, err := store.GetGeneration(ctx, "missing", 0); err != nil || ok {
		t.Fatalf("expected absent generation: ok=%v err=%v", ok, err)
	}
	if _, ok, err := store.GetEnsemble(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected absent ensemble: ok=%v err=%v", ok, err)
	}
	if _, ok, err := store.GetDomainAssignment(ctx, "missing", "kmeans"); err != nil || ok {
		t.Fatalf("expected absent assignment: ok=%v err=%v", ok, err)
	}
}
