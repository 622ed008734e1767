package cluster

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"clustenm/internal/nma"
)

func modeSet(vectors ...[]float64) nma.ModeSet {
	modes := make([]nma.Mode, len(vectors))
	for i, v := range vectors {
		modes[i] = nma.Mode{Eigenvalue: float64(i + 1), Vector: v}
	}
	return nma.ModeSet{Modes: modes}
}

func TestEmbedRejectsEmptyModeSet(t *testing.T) {
	if _, _, err := Embed(nma.ModeSet{}, true, true); err == nil {
		t.Fatal("expected error for empty mode set")
	}
}

func TestEmbedRowNormAndMask(t *testing.T) {
	ms := modeSet(
		[]float64{1, 0, 3, 2},
		[]float64{1, 0, -1, 2},
	)
	v, mask, err := Embed(ms, true, true)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	wantMask := []bool{true, false, true, true}
	for i := range wantMask {
		if mask[i] != wantMask[i] {
			t.Fatalf("mask mismatch at %d: got=%v want=%v", i, mask[i], wantMask[i])
		}
	}
	r, c := v.Dims()
	if r != 3 || c != 2 {
		t.Fatalf("unexpected embedding shape: %dx%d", r, c)
	}
	for i := 0; i < r; i++ {
		norm := 0.0
		for j := 0; j < c; j++ {
			norm += v.At(i, j) * v.At(i, j)
		}
		if math.Abs(norm-1) > 1e-9 {
			t.Fatalf("row %d not unit norm: %g", i, norm)
		}
	}
}

func TestEmbedKeepsZeroRowsWhenNotRemoving(t *testing.T) {
	ms := modeSet([]float64{1, 0, 2})
	v, mask, err := Embed(ms, false, false)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if r, _ := v.Dims(); r != 3 {
		t.Fatalf("expected all rows kept: got=%d", r)
	}
	if mask[1] {
		t.Fatal("degenerate row not masked")
	}
}

func TestThresholdPlaneIdenticalPatternsShareLabels(t *testing.T) {
	v := mat.NewDense(4, 2, []float64{
		0.5, -0.2,
		0.1, -0.9,
		-0.3, 0.4,
		0.0, -0.1,
	})
	labels, err := ThresholdPlane{}.Cluster(v, Options{})
	if err != nil {
		t.Fatalf("cluster: %v", err)
	}
	if labels[0] != labels[1] || labels[0] != labels[3] {
		t.Fatalf("identical sign patterns got different labels: %v", labels)
	}
	if labels[2] == labels[0] {
		t.Fatalf("distinct sign patterns share a label: %v", labels)
	}
}

func TestThresholdPlaneLabelsAreSortedCodeOrder(t *testing.T) {
	v := mat.NewDense(3, 2, []float64{
		1, 1, // code 11
		-1, -1, // code 00
		-1, 1, // code 01
	})
	labels, err := ThresholdPlane{}.Cluster(v, Options{})
	if err != nil {
		t.Fatalf("cluster: %v", err)
	}
	want := []int{2, 0, 1}
	for i := range want {
		if labels[i] != want[i] {
			t.Fatalf("labels not in sorted code order: got=%v want=%v", labels, want)
		}
	}
}

func TestKMeansRequiresClusterCount(t *testing.T) {
	v := mat.NewDense(4, 1, []float64{0, 0.1, 5, 5.1})
	_, err := KMeans{}.Cluster(v, Options{})
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestKMeansSeparatesGroups(t *testing.T) {
	v := mat.NewDense(6, 1, []float64{0, 0.1, 0.2, 5, 5.1, 5.2})
	labels, err := KMeans{}.Cluster(v, Options{Clusters: 2, Seed: 3})
	if err != nil {
		t.Fatalf("cluster: %v", err)
	}
	if labels[0] != labels[1] || labels[0] != labels[2] {
		t.Fatalf("first group split: %v", labels)
	}
	if labels[3] != labels[4] || labels[3] != labels[5] {
		t.Fatalf("second group split: %v", labels)
	}
	if labels[0] == labels[3] {
		t.Fatalf("groups merged: %v", labels)
	}
}

func TestHierarchicalMaxClust(t *testing.T) {
	v := mat.NewDense(5, 2, []float64{
		1, 0,
		0.99, 0.01,
		0, 1,
		0.01, 0.99,
		-1, 0,
	})
	labels, err := Hierarchical{}.Cluster(v, Options{Clusters: 3, Metric: "euclidean", Linkage: "average"})
	if err != nil {
		t.Fatalf("cluster: %v", err)
	}
	distinct := map[int]struct{}{}
	for _, l := range labels {
		distinct[l] = struct{}{}
	}
	if len(distinct) != 3 {
		t.Fatalf("expected 3 clusters: %v", labels)
	}
	if labels[0] != labels[1] || labels[2] != labels[3] {
		t.Fatalf("tight pairs split: %v", labels)
	}
}

func TestHierarchicalInconsistentDefault(t *testing.T) {
	v := mat.NewDense(4, 1, []float64{0, 0.05, 0.1, 10})
	labels, err := Hierarchical{}.Cluster(v, Options{Metric: "euclidean"})
	if err != nil {
		t.Fatalf("cluster: %v", err)
	}
	if len(labels) != 4 {
		t.Fatalf("unexpected label count: %d", len(labels))
	}
}

func TestDiscretizeSeparatesOrthogonalBlocks(t *testing.T) {
	v := mat.NewDense(6, 2, []float64{
		1, 0,
		1, 0.01,
		1, -0.01,
		0, 1,
		0.01, 1,
		-0.01, 1,
	})
	labels, err := SpectralDiscretize{}.Cluster(v, Options{Seed: 11})
	if err != nil {
		t.Fatalf("cluster: %v", err)
	}
	if labels[0] != labels[1] || labels[0] != labels[2] {
		t.Fatalf("first block split: %v", labels)
	}
	if labels[3] != labels[4] || labels[3] != labels[5] {
		t.Fatalf("second block split: %v", labels)
	}
	if labels[0] == labels[3] {
		t.Fatalf("blocks merged: %v", labels)
	}
}

func TestGaussianMixtureDefaultsToOneComponent(t *testing.T) {
	v := mat.NewDense(4, 1, []float64{0, 1, 2, 3})
	labels, err := GaussianMixture{}.Cluster(v, Options{Seed: 1})
	if err != nil {
		t.Fatalf("cluster: %v", err)
	}
	for i, l := range labels {
		if l != labels[0] {
			t.Fatalf("single component produced multiple labels at %d: %v", i, labels)
		}
	}
}

func TestGaussianMixtureSeparatesGroups(t *testing.T) {
	v := mat.NewDense(8, 1, []float64{0, 0.1, 0.2, 0.15, 8, 8.1, 8.2, 8.15})
	labels, err := GaussianMixture{}.Cluster(v, Options{Clusters: 2, Seed: 5})
	if err != nil {
		t.Fatalf("cluster: %v", err)
	}
	for i := 1; i < 4; i++ {
		if labels[i] != labels[0] {
			t.Fatalf("first group split: %v", labels)
		}
	}
	for i := 5; i < 8; i++ {
		if labels[i] != labels[4] {
			t.Fatalf("second group split: %v", labels)
		}
	}
	if labels[0] == labels[4] {
		t.Fatalf("groups merged: %v", labels)
	}
}

func TestStrategiesAreDeterministicWithFixedSeed(t *testing.T) {
	v := mat.NewDense(6, 2, []float64{
		1, 0,
		0.9, 0.1,
		0.95, 0.05,
		0, 1,
		0.1, 0.9,
		0.05, 0.95,
	})
	strategies := []Strategy{
		KMeans{},
		SpectralDiscretize{},
		GaussianMixture{},
		BayesianGaussianMixture{},
	}
	for _, s := range strategies {
		opts := Options{Clusters: 2, Seed: 42}
		first, err := s.Cluster(v, opts)
		if err != nil {
			t.Fatalf("%s: %v", s.Name(), err)
		}
		second, err := s.Cluster(v, opts)
		if err != nil {
			t.Fatalf("%s rerun: %v", s.Name(), err)
		}
		for i := range first {
			if first[i] != second[i] {
				t.Fatalf("%s not deterministic at %d: %v vs %v", s.Name(), i, first, second)
			}
		}
	}
}

func TestAssignDomainsFillForward(t *testing.T) {
	// Loci 1 and 2 are degenerate; the retained loci get labels [0, 1]
	// from the hingeplane on their sign patterns.
	ms := modeSet([]float64{-1, 0, 0, 1})
	labels, err := AssignDomains(ms, ThresholdPlane{}, true, Options{})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	want := []int{0, 0, 0, 1}
	if len(labels) != len(want) {
		t.Fatalf("unexpected label length: got=%d want=%d", len(labels), len(want))
	}
	for i := range want {
		if labels[i] != want[i] {
			t.Fatalf("fill-forward mismatch: got=%v want=%v", labels, want)
		}
	}
}

func TestAssignDomainsLeadingMaskedRun(t *testing.T) {
	ms := modeSet([]float64{0, 0, -1, 1})
	labels, err := AssignDomains(ms, ThresholdPlane{}, true, Options{})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	want := []int{0, 0, 0, 1}
	for i := range want {
		if labels[i] != want[i] {
			t.Fatalf("leading run mismatch: got=%v want=%v", labels, want)
		}
	}
}

func TestAssignDomainsFullMaskReturnsRawLabels(t *testing.T) {
	ms := modeSet([]float64{-1, -1, 1, 1})
	labels, err := AssignDomains(ms, ThresholdPlane{}, true, Options{})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	want := []int{0, 0, 1, 1}
	for i := range want {
		if labels[i] != want[i] {
			t.Fatalf("raw label mismatch: got=%v want=%v", labels, want)
		}
	}
}

func TestFromNameRegistry(t *testing.T) {
	for _, name := range []string{"hingeplane", "kmeans", "hierarchy", "discretize", "gmm", "bgmm"} {
		s, err := FromName(name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if s.Name() != name {
			t.Fatalf("registry name mismatch: got=%s want=%s", s.Name(), name)
		}
	}
	if _, err := FromName("dbscan"); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}
