// Package navigator tracks which two-page spread of the book is open.
package navigator

import "github.com/dgallion1/folio/internal/story"

// Navigator holds the index of the left page of the open spread. The index is
// always even and within [0, pageCount-2], or 0 for an empty book. Boundary
// moves are no-ops. A Navigator is not safe for concurrent use.
type Navigator struct {
	left      int
	pageCount int
}

// New returns a navigator opened at the first spread.
func New(pageCount int) *Navigator {
	return &Navigator{pageCount: max(pageCount, 0)}
}

// Left returns the index of the left page.
func (n *Navigator) Left() int { return n.left }

// PageCount returns the number of pages the navigator is bounded by.
func (n *Navigator) PageCount() int { return n.pageCount }

// Spread returns the indices of the visible pages. right is -1 when the book
// has fewer than two pages.
func (n *Navigator) Spread() (left, right int) {
	if n.pageCount == 0 {
		return -1, -1
	}
	if n.left+1 < n.pageCount {
		return n.left, n.left + 1
	}
	return n.left, -1
}

// Advance turns to the next spread. It reports whether the spread changed.
func (n *Navigator) Advance() bool {
	if n.left < n.lastLeft() {
		n.left += 2
		return true
	}
	return false
}

// Retreat turns to the previous spread. It reports whether the spread changed.
func (n *Navigator) Retreat() bool {
	if n.left > 0 {
		n.left -= 2
		return true
	}
	return false
}

// JumpTo opens the spread containing pageIndex. Out of range indices are
// clamped to the first or last spread.
func (n *Navigator) JumpTo(pageIndex int) {
	n.left = n.clamp(pageIndex - pageIndex%2)
}

// Resize rebinds the navigator to a new page count and keeps the current
// spread when it is still valid.
func (n *Navigator) Resize(pageCount int) {
	n.pageCount = max(pageCount, 0)
	n.left = n.clamp(n.left)
}

// OnHistoryGrowth repositions the navigator after the story grew to
// pageCount pages. Free-choice readers land on the newest spread;
// long-form readers keep their place.
func (n *Navigator) OnHistoryGrowth(pageCount int, mode story.Mode) {
	n.Resize(pageCount)
	if mode == story.ModeFreeChoice {
		n.left = n.lastLeft()
	}
}

// lastLeft is the left index of the final spread, floor((count-1)/2)*2.
func (n *Navigator) lastLeft() int {
	if n.pageCount == 0 {
		return 0
	}
	return (n.pageCount - 1) / 2 * 2
}

func (n *Navigator) clamp(i int) int {
	if i < 0 {
		return 0
	}
	if last := n.lastLeft(); i > last {
		return last
	}
	return i
}
