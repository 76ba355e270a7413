// Package rect implements the 2-D integer rectangle math used to tile a
// window's area among its panes.
package rect

import "fmt"

// Rect is a non-negative integer rectangle measured in terminal cells.
type Rect struct {
	X, Y, W, H int
}

func (r Rect) String() string {
	return fmt.Sprintf("(%d,%d,%d,%d)", r.X, r.Y, r.W, r.H)
}

// Area returns the number of cells the rectangle covers.
func (r Rect) Area() int {
	return r.W * r.H
}

// SplitHorizontal divides r along a horizontal divider: first is stacked
// above second. ratio is the fraction of r's height given to first. Integer
// rounding uses floor on first and assigns the remainder to second, per the
// tiling rule in spec §4.1.
func SplitHorizontal(r Rect, ratio float64) (first, second Rect) {
	h1 := int(float64(r.H) * ratio)
	h2 := r.H - h1
	first = Rect{X: r.X, Y: r.Y, W: r.W, H: h1}
	second = Rect{X: r.X, Y: r.Y + h1, W: r.W, H: h2}
	return first, second
}

// SplitVertical divides r along a vertical divider: first is left of second.
// ratio is the fraction of r's width given to first.
func SplitVertical(r Rect, ratio float64) (first, second Rect) {
	w1 := int(float64(r.W) * ratio)
	w2 := r.W - w1
	first = Rect{X: r.X, Y: r.Y, W: w1, H: r.H}
	second = Rect{X: r.X + w1, Y: r.Y, W: w2, H: r.H}
	return first, second
}

// Overlap1D returns the length of the overlapping span of two 1-D intervals
// [aStart, aStart+aLen) and [bStart, bStart+bLen). Used to break ties in
// NavigatePane by largest shared-edge overlap.
func Overlap1D(aStart, aLen, bStart, bLen int) int {
	lo := aStart
	if bStart > lo {
		lo = bStart
	}
	hi := aStart + aLen
	if bStart+bLen < hi {
		hi = bStart + bLen
	}
	if hi <= lo {
		return 0
	}
	return hi - lo
}
