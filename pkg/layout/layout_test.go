package layout

import (
	"errors"
	"testing"

	"github.com/brendandebeasi/mux/pkg/id"
	"github.com/brendandebeasi/mux/pkg/rect"
)

func TestTile_SplitAndTile(t *testing.T) {
	// Scenario 1 from spec §8: 24x80 area, vertical split, then horizontal
	// split of the right pane.
	area := rect.Rect{X: 0, Y: 0, W: 80, H: 24}
	counter := id.NewCounter(2)

	tree, p2, err := SplitLeaf(&Leaf{PaneID: 1}, 1, area, Vertical, counter)
	if err != nil {
		t.Fatalf("SplitVertical: %v", err)
	}
	rects := Tile(tree, area)
	if rects[1] != (rect.Rect{X: 0, Y: 0, W: 40, H: 24}) || rects[p2] != (rect.Rect{X: 40, Y: 0, W: 40, H: 24}) {
		t.Fatalf("unexpected rects after vertical split: %v", rects)
	}

	rightArea := rects[p2]
	tree2, p3, err := SplitLeaf(tree, p2, rightArea, Horizontal, counter)
	if err != nil {
		t.Fatalf("SplitHorizontal: %v", err)
	}
	rects2 := Tile(tree2, area)
	want := map[id.PaneID]rect.Rect{
		1:  {X: 0, Y: 0, W: 40, H: 24},
		p2: {X: 40, Y: 0, W: 40, H: 12},
		p3: {X: 40, Y: 12, W: 40, H: 12},
	}
	for pid, r := range want {
		if rects2[pid] != r {
			t.Errorf("rects2[%d] = %v, want %v", pid, rects2[pid], r)
		}
	}
}

func TestClose_CollapsesSplit(t *testing.T) {
	// Scenario 2 from spec §8.
	area := rect.Rect{X: 0, Y: 0, W: 80, H: 24}
	counter := id.NewCounter(2)
	tree, p2, _ := SplitLeaf(&Leaf{PaneID: 1}, 1, area, Vertical, counter)
	tree, p3, _ := SplitLeaf(tree, p2, Tile(tree, area)[p2], Horizontal, counter)

	collapsed, destroyed, err := Close(tree, p3)
	if err != nil || destroyed {
		t.Fatalf("Close(p3) err=%v destroyed=%v", err, destroyed)
	}
	split, ok := collapsed.(*Split)
	if !ok {
		t.Fatalf("collapsed tree is not a Split: %#v", collapsed)
	}
	if split.Direction != Vertical || split.Ratio != 0.5 {
		t.Fatalf("collapsed split = %+v, want Vertical/0.5", split)
	}
	leaf1, ok1 := split.First.(*Leaf)
	leaf2, ok2 := split.Second.(*Leaf)
	if !ok1 || !ok2 || leaf1.PaneID != 1 || leaf2.PaneID != p2 {
		t.Fatalf("collapsed children = %+v, %+v, want Leaf(1), Leaf(%d)", split.First, split.Second, p2)
	}
}

func TestClose_SoleLeafDestroysWindow(t *testing.T) {
	_, destroyed, err := Close(&Leaf{PaneID: 1}, 1)
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !destroyed {
		t.Fatal("expected destroyed=true when closing the sole leaf")
	}
}

func TestClose_PaneNotFound(t *testing.T) {
	_, _, err := Close(&Leaf{PaneID: 1}, 99)
	if !errors.Is(err, ErrPaneNotFound) {
		t.Fatalf("err = %v, want ErrPaneNotFound", err)
	}
}

func TestSplit_TooSmallRejected(t *testing.T) {
	// Scenario 3 from spec §8: 2x5 area, single pane, split fails.
	area := rect.Rect{X: 0, Y: 0, W: 5, H: 2}
	counter := id.NewCounter(2)
	_, _, err := SplitLeaf(&Leaf{PaneID: 1}, 1, area, Vertical, counter)
	if !errors.Is(err, ErrTooSmall) {
		t.Fatalf("err = %v, want ErrTooSmall", err)
	}
}

func TestSplit_UnknownPane(t *testing.T) {
	area := rect.Rect{X: 0, Y: 0, W: 80, H: 24}
	counter := id.NewCounter(2)
	_, _, err := SplitLeaf(&Leaf{PaneID: 1}, 99, area, Vertical, counter)
	if !errors.Is(err, ErrPaneNotFound) {
		t.Fatalf("err = %v, want ErrPaneNotFound", err)
	}
}

func TestResize_NoMatchingAncestorIsNoop(t *testing.T) {
	area := rect.Rect{X: 0, Y: 0, W: 80, H: 24}
	counter := id.NewCounter(2)
	tree, p2, _ := SplitLeaf(&Leaf{PaneID: 1}, 1, area, Vertical, counter)

	result, changed, err := Resize(tree, area, p2, Horizontal, 0.1)
	if err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if changed {
		t.Fatal("expected no-op resize (no Horizontal ancestor)")
	}
	if Tile(result, area)[1] != Tile(tree, area)[1] {
		t.Fatal("tree should be unchanged")
	}
}

func TestResize_AdjustsNearestMatchingAncestor(t *testing.T) {
	area := rect.Rect{X: 0, Y: 0, W: 100, H: 24}
	counter := id.NewCounter(2)
	tree, _, _ := SplitLeaf(&Leaf{PaneID: 1}, 1, area, Vertical, counter)

	result, changed, err := Resize(tree, area, 1, Vertical, 0.1)
	if err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if !changed {
		t.Fatal("expected resize to apply")
	}
	rects := Tile(result, area)
	if rects[1].W <= 50 {
		t.Errorf("rects[1].W = %d, want > 50 after +0.1 ratio", rects[1].W)
	}
}

func TestResize_ClampsAtMinimumSize(t *testing.T) {
	area := rect.Rect{X: 0, Y: 0, W: 20, H: 10}
	counter := id.NewCounter(2)
	tree, _, _ := SplitLeaf(&Leaf{PaneID: 1}, 1, area, Vertical, counter)

	// Push the ratio far past what the minimum pane width allows.
	result, _, err := Resize(tree, area, 1, Vertical, 0.8)
	if err != nil {
		t.Fatalf("Resize: %v", err)
	}
	rects := Tile(result, area)
	for pid, r := range rects {
		if r.W < MinWidth {
			t.Errorf("pane %d width %d below minimum %d", pid, r.W, MinWidth)
		}
	}
}

func TestTile_ExactCoverage_NoGapsNoOverlap(t *testing.T) {
	area := rect.Rect{X: 0, Y: 0, W: 137, H: 53}
	counter := id.NewCounter(2)
	tree, p2, err := SplitLeaf(&Leaf{PaneID: 1}, 1, area, Vertical, counter)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	tree, _, err = SplitLeaf(tree, p2, Tile(tree, area)[p2], Horizontal, counter)
	if err != nil {
		t.Fatalf("split: %v", err)
	}

	rects := Tile(tree, area)
	total := 0
	for _, r := range rects {
		total += r.Area()
	}
	if total != area.Area() {
		t.Errorf("sum of pane areas = %d, want %d (area must tile exactly)", total, area.Area())
	}
}

func TestPaneCount(t *testing.T) {
	area := rect.Rect{X: 0, Y: 0, W: 80, H: 24}
	counter := id.NewCounter(2)
	tree, p2, _ := SplitLeaf(&Leaf{PaneID: 1}, 1, area, Vertical, counter)
	if got := PaneCount(tree); got != 2 {
		t.Errorf("PaneCount = %d, want 2", got)
	}
	tree, _, _ = SplitLeaf(tree, p2, Tile(tree, area)[p2], Horizontal, counter)
	if got := PaneCount(tree); got != 3 {
		t.Errorf("PaneCount = %d, want 3", got)
	}
}

func TestValidate_RejectsOutOfRangeRatio(t *testing.T) {
	tree := &Split{Direction: Vertical, Ratio: 0.95, First: &Leaf{PaneID: 1}, Second: &Leaf{PaneID: 2}}
	if err := Validate(tree); !errors.Is(err, ErrInvalidRatio) {
		t.Fatalf("Validate() = %v, want ErrInvalidRatio", err)
	}
}

func TestClampRatio(t *testing.T) {
	if got := ClampRatio(0.95); got != MaxRatio {
		t.Errorf("ClampRatio(0.95) = %f, want %f", got, MaxRatio)
	}
	if got := ClampRatio(0.05); got != MinRatio {
		t.Errorf("ClampRatio(0.05) = %f, want %f", got, MinRatio)
	}
	if got := ClampRatio(0.5); got != 0.5 {
		t.Errorf("ClampRatio(0.5) = %f, want 0.5", got)
	}
}

func TestAdjacentPane(t *testing.T) {
	// Two panes side by side: p1 left of p2.
	area := rect.Rect{X: 0, Y: 0, W: 80, H: 24}
	counter := id.NewCounter(2)
	tree, p2, _ := SplitLeaf(&Leaf{PaneID: 1}, 1, area, Vertical, counter)

	adj := AdjacentPane(tree, area, 1)
	if adj[Right] != p2 {
		t.Errorf("AdjacentPane(1)[Right] = %d, want %d", adj[Right], p2)
	}
	if _, ok := adj[Left]; ok {
		t.Errorf("AdjacentPane(1)[Left] should be absent, got %d", adj[Left])
	}

	adj2 := AdjacentPane(tree, area, p2)
	if adj2[Left] != 1 {
		t.Errorf("AdjacentPane(p2)[Left] = %d, want 1", adj2[Left])
	}
}
