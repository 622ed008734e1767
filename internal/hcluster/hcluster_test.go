package hcluster

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// Two tight groups far apart on a line: {0, 0.1, 0.2} and {10, 10.1}.
func lineDistances() ([]float64, int) {
	points := []float64{0, 0.1, 0.2, 10, 10.1}
	n := len(points)
	d := make([]float64, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d = append(d, math.Abs(points[i]-points[j]))
		}
	}
	return d, n
}

func sameCluster(labels []int, i, j int) bool {
	return labels[i] == labels[j]
}

func TestLinkageSingleMergesNearestFirst(t *testing.T) {
	d, n := lineDistances()
	merges, err := Linkage(d, n, MethodSingle)
	if err != nil {
		t.Fatalf("linkage: %v", err)
	}
	if len(merges) != n-1 {
		t.Fatalf("unexpected merge count: got=%d want=%d", len(merges), n-1)
	}
	for i := 1; i < len(merges); i++ {
		if merges[i].Distance < merges[i-1].Distance {
			t.Fatalf("merge heights not monotone at step %d", i)
		}
	}
	if merges[len(merges)-1].Size != n {
		t.Fatalf("final merge does not cover all observations: %d", merges[len(merges)-1].Size)
	}
}

func TestCutDistanceSeparatesGroups(t *testing.T) {
	d, n := lineDistances()
	merges, err := Linkage(d, n, MethodAverage)
	if err != nil {
		t.Fatalf("linkage: %v", err)
	}
	labels := CutDistance(merges, n, 1.0)
	if !sameCluster(labels, 0, 1) || !sameCluster(labels, 1, 2) {
		t.Fatalf("first group split: %v", labels)
	}
	if !sameCluster(labels, 3, 4) {
		t.Fatalf("second group split: %v", labels)
	}
	if sameCluster(labels, 0, 3) {
		t.Fatalf("groups not separated: %v", labels)
	}
}

func TestCutMaxClustBounds(t *testing.T) {
	d, n := lineDistances()
	merges, err := Linkage(d, n, MethodComplete)
	if err != nil {
		t.Fatalf("linkage: %v", err)
	}
	for _, k := range []int{1, 2, 3, n, n + 5} {
		labels := CutMaxClust(merges, n, k)
		distinct := map[int]struct{}{}
		for _, l := range labels {
			distinct[l] = struct{}{}
		}
		want := k
		if want > n {
			want = n
		}
		if len(distinct) > want {
			t.Fatalf("maxclust=%d produced %d clusters", k, len(distinct))
		}
	}
	labels := CutMaxClust(merges, n, 2)
	if sameCluster(labels, 0, 3) {
		t.Fatalf("maxclust=2 did not split the two groups: %v", labels)
	}
}

func TestCutInconsistentSeparatesGroups(t *testing.T) {
	d, n := lineDistances()
	merges, err := Linkage(d, n, MethodSingle)
	if err != nil {
		t.Fatalf("linkage: %v", err)
	}
	// The bridging merge is far more inconsistent than the in-group ones.
	labels := CutInconsistent(merges, n, 1.0, 2)
	if sameCluster(labels, 0, 3) {
		t.Fatalf("inconsistent cut did not split the two groups: %v", labels)
	}
	if !sameCluster(labels, 0, 1) || !sameCluster(labels, 3, 4) {
		t.Fatalf("inconsistent cut split a tight group: %v", labels)
	}
}

func TestInconsistencyThresholdWithinCoefficientRange(t *testing.T) {
	d, n := lineDistances()
	merges, err := Linkage(d, n, MethodSingle)
	if err != nil {
		t.Fatalf("linkage: %v", err)
	}
	coeffs := Inconsistency(merges, n, 2)
	maxCoeff := 0.0
	for _, c := range coeffs {
		if c > maxCoeff {
			maxCoeff = c
		}
	}
	th, err := InconsistencyThreshold(merges, n, 2, 99.9)
	if err != nil {
		t.Fatalf("threshold: %v", err)
	}
	if th > maxCoeff {
		t.Fatalf("percentile threshold above maximum coefficient: th=%g max=%g", th, maxCoeff)
	}
}

func TestPdistRowsCosine(t *testing.T) {
	m := mat.NewDense(3, 2, []float64{
		1, 0,
		0, 1,
		2, 0,
	})
	d, err := PdistRows(m, MetricCosine)
	if err != nil {
		t.Fatalf("pdist: %v", err)
	}
	if math.Abs(d[0]-1) > 1e-12 {
		t.Fatalf("orthogonal rows should have cosine distance 1: got=%g", d[0])
	}
	if math.Abs(d[1]) > 1e-12 {
		t.Fatalf("parallel rows should have cosine distance 0: got=%g", d[1])
	}
}
