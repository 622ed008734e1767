package measure

import (
	"math"
	"testing"
)

func TestRMSDNormalizesByAtomCount(t *testing.T) {
	a := []float64{0, 0, 0, 0, 0, 0}
	b := []float64{1, 0, 0, 1, 0, 0}
	if got := RMSD(a, b); math.Abs(got-1) > 1e-12 {
		t.Fatalf("unexpected rmsd: got=%g want=1", got)
	}
}

func TestRMSDMismatchedInputs(t *testing.T) {
	if got := RMSD([]float64{0, 0, 0}, []float64{0, 0, 0, 1, 0, 0}); !math.IsNaN(got) {
		t.Fatalf("length mismatch must yield NaN, got %g", got)
	}
	if got := RMSD(nil, nil); !math.IsNaN(got) {
		t.Fatalf("empty sets must yield NaN, got %g", got)
	}
}

func TestPairwiseRMSDCondensedOrder(t *testing.T) {
	confs := [][]float64{
		{0, 0, 0},
		{1, 0, 0},
		{3, 0, 0},
	}
	d, err := PairwiseRMSD(confs)
	if err != nil {
		t.Fatalf("pairwise rmsd: %v", err)
	}
	want := []float64{1, 3, 2}
	if len(d) != len(want) {
		t.Fatalf("unexpected condensed length: got=%d want=%d", len(d), len(want))
	}
	for i := range want {
		if math.Abs(d[i]-want[i]) > 1e-12 {
			t.Fatalf("entry %d: got=%g want=%g", i, d[i], want[i])
		}
	}
}

func TestPairwiseRMSDRejectsSingleConformer(t *testing.T) {
	if _, err := PairwiseRMSD([][]float64{{0, 0, 0}}); err == nil {
		t.Fatal("expected error for a single conformer")
	}
}

func TestSuperpositionRecoversRigidMotion(t *testing.T) {
	ref := []float64{
		0, 0, 0,
		1.5, 0, 0,
		0.75, 1.3, 0,
		0.75, 0.65, 1.2,
	}
	// Rotate the reference 90 degrees about z and translate it.
	mobile := make([]float64, len(ref))
	for i := 0; i < len(ref); i += 3 {
		x, y, z := ref[i], ref[i+1], ref[i+2]
		mobile[i] = -y + 4
		mobile[i+1] = x - 2
		mobile[i+2] = z + 1
	}

	tr, err := FitTransformation(mobile, ref)
	if err != nil {
		t.Fatalf("fit transformation: %v", err)
	}
	back := tr.Apply(mobile)
	if got := RMSD(back, ref); got > 1e-9 {
		t.Fatalf("superposed rmsd too large: %g", got)
	}
}

func TestSuperpositionAppliesToLargerSet(t *testing.T) {
	refCA := []float64{0, 0, 0, 2, 0, 0}
	mobileCA := []float64{0, 0, 0, 0, 2, 0}
	tr, err := FitTransformation(mobileCA, refCA)
	if err != nil {
		t.Fatalf("fit transformation: %v", err)
	}
	full := tr.Apply([]float64{0, 0, 0, 0, 1, 0, 0, 2, 0})
	// The midpoint must land on the segment midpoint of the reference.
	if math.Abs(full[3]-1) > 1e-9 || math.Abs(full[4]) > 1e-9 {
		t.Fatalf("midpoint not mapped onto reference axis: %v", full[3:6])
	}
}
