package combinatorics

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRotation_ABCSequence(t *testing.T) {
	r := NewRotation([]string{"A", "B", "C"})

	type view struct {
		Quanta []string
		Recoil string
	}
	var got []view
	for range r.All() {
		got = append(got, view{Quanta: r.AppendLeading(nil), Recoil: r.Last()})
	}

	want := []view{
		{Quanta: []string{"A", "B"}, Recoil: "C"},
		{Quanta: []string{"C", "A"}, Recoil: "B"},
		{Quanta: []string{"B", "C"}, Recoil: "A"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("rotation sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestRotation_ExactlyNRotations(t *testing.T) {
	for n := 0; n <= 7; n++ {
		items := make([]int, n)
		for i := range items {
			items[i] = i
		}
		r := NewRotation(items)
		count := 0
		recoils := map[int]bool{}
		for range r.All() {
			count++
			recoils[r.Last()] = true
		}
		if count != n {
			t.Errorf("n=%d: got %d rotations", n, count)
		}
		if len(recoils) != n {
			t.Errorf("n=%d: %d distinct recoils, want %d", n, len(recoils), n)
		}
	}
}

func TestRotation_CyclicClosure(t *testing.T) {
	items := []int{10, 20, 30, 40}
	r := NewRotation(items)
	for i := 0; i < len(items); i++ {
		r.Next()
	}
	if r.Index() != 0 {
		t.Fatalf("after n steps Index = %d, want 0", r.Index())
	}
	if diff := cmp.Diff(items, r.AppendOrder(nil)); diff != "" {
		t.Errorf("order after n steps (-want +got):\n%s", diff)
	}

	// A completed pass also lands on rotation 0.
	for range r.All() {
	}
	if r.Index() != 0 || !r.Done() {
		t.Errorf("after full pass Index=%d Done=%v", r.Index(), r.Done())
	}
}

func TestRotation_MatchesPhysicalShift(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e"}
	phys := append([]string(nil), items...)
	r := NewRotation(items)
	for k := range r.All() {
		if diff := cmp.Diff(phys, r.AppendOrder(nil)); diff != "" {
			t.Errorf("rotation %d differs from shifted slice (-phys +view):\n%s", k, diff)
		}
		ShiftRight(phys)
	}
}

func TestRotation_RestoreRoundTrip(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6}
	for win := 0; win < len(items); win++ {
		// Record the winning view while enumerating, then restore after
		// the pass and compare.
		r := NewRotation(items)
		var winning []int
		for k := range r.All() {
			if k == win {
				winning = r.AppendOrder(nil)
			}
		}
		r.Restore(win)
		if diff := cmp.Diff(winning, r.AppendOrder(nil)); diff != "" {
			t.Errorf("restore(%d) mismatch (-want +got):\n%s", win, diff)
		}

		// The same holds for physical shifting: shifting the original
		// list win times reproduces the winning order.
		phys := append([]int(nil), items...)
		for i := 0; i < win; i++ {
			ShiftRight(phys)
		}
		if diff := cmp.Diff(winning, phys); diff != "" {
			t.Errorf("physical restore(%d) mismatch (-want +got):\n%s", win, diff)
		}
	}
}

func TestRotation_RestoreNegativeAndWrap(t *testing.T) {
	r := NewRotation([]int{1, 2, 3})
	r.Restore(-1)
	if r.Index() != 2 {
		t.Errorf("Restore(-1) Index = %d, want 2", r.Index())
	}
	r.Restore(7)
	if r.Index() != 1 {
		t.Errorf("Restore(7) Index = %d, want 1", r.Index())
	}
}

func TestRotation_LoadReusesAndResets(t *testing.T) {
	r := NewRotation([]int{1, 2, 3, 4})
	r.Next()
	r.Load([]int{7, 8})
	if r.Len() != 2 || r.Index() != 0 || r.Done() {
		t.Fatalf("Load did not reset: len=%d k=%d done=%v", r.Len(), r.Index(), r.Done())
	}
	if diff := cmp.Diff([]int{7, 8}, r.AppendOrder(nil)); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestRotation_OwnsItsCopy(t *testing.T) {
	items := []int{1, 2, 3}
	r := NewRotation(items)
	items[0] = 99
	if r.At(0) != 1 {
		t.Errorf("rotation shares caller storage")
	}
}

func TestRotation_BreakStopsEarly(t *testing.T) {
	r := NewRotation([]int{1, 2, 3, 4})
	seen := 0
	for k := range r.All() {
		seen++
		if k == 1 {
			break
		}
	}
	if seen != 2 || r.Index() != 1 {
		t.Errorf("seen=%d index=%d", seen, r.Index())
	}
}

func TestShiftRight_Short(t *testing.T) {
	var empty []int
	ShiftRight(empty)
	one := []int{5}
	ShiftRight(one)
	if one[0] != 5 {
		t.Error("single-element shift changed the slice")
	}
}
