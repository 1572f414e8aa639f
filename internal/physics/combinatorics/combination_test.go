package combinatorics

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCombination_Lexicographic(t *testing.T) {
	var got [][]int
	for c := NewCombination(4, 2); !c.Done(); c.Next() {
		got = append(got, append([]int(nil), c.Indices()...))
	}
	want := [][]int{{0, 1}, {0, 2}, {0, 3}, {1, 2}, {1, 3}, {2, 3}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestCombination_Degenerate(t *testing.T) {
	empty := NewCombination(3, 0)
	if empty.Done() || len(empty.Indices()) != 0 {
		t.Fatal("k=0 should yield the empty subset")
	}
	empty.Next()
	if !empty.Done() {
		t.Error("k=0 should yield exactly one subset")
	}
	if !NewCombination(3, -1).Done() {
		t.Error("k<0 should be done")
	}
	if !NewCombination(2, 3).Done() {
		t.Error("k>n should be done")
	}
	c := NewCombination(3, 3)
	if c.Done() {
		t.Fatal("k=n should yield one subset")
	}
	c.Next()
	if !c.Done() {
		t.Error("k=n should yield exactly one subset")
	}
}

func TestSubsets_CountMatchesBinomial(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e"}
	for k := -1; k <= 6; k++ {
		n := 0
		for s := range Subsets(items, k) {
			if len(s) != k {
				t.Fatalf("subset length %d, want %d", len(s), k)
			}
			n++
		}
		if n != Binomial(len(items), k) {
			t.Errorf("k=%d: %d subsets, want %d", k, n, Binomial(len(items), k))
		}
	}
}

func TestBinomial(t *testing.T) {
	tests := []struct{ n, k, want int }{
		{5, 2, 10}, {6, 3, 20}, {4, 0, 1}, {4, 5, 0}, {10, 10, 1},
	}
	for _, tt := range tests {
		if got := Binomial(tt.n, tt.k); got != tt.want {
			t.Errorf("Binomial(%d,%d) = %d, want %d", tt.n, tt.k, got, tt.want)
		}
	}
}
