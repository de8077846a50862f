package grid

import (
	"fmt"
	"strings"

	"github.com/banshee-data/gridfiles/internal/griderr"
)

// Layout selects which components a grid carries.
type Layout int

const (
	// LayoutHeight carries a single vertical band.
	LayoutHeight Layout = iota + 1
	// LayoutHorizontal carries east and north bands.
	LayoutHorizontal
	// LayoutFull3D carries east, north and vertical bands.
	LayoutFull3D
)

// ParseLayout accepts "height", "horizontal" or "full3d".
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "height", "vertical", "1d":
		return LayoutHeight, nil
	case "horizontal", "2d":
		return LayoutHorizontal, nil
	case "full3d", "3d":
		return LayoutFull3D, nil
	}
	return 0, fmt.Errorf("%w: unknown layout %q", griderr.ErrConfiguration, s)
}

func (l Layout) String() string {
	switch l {
	case LayoutHeight:
		return "height"
	case LayoutHorizontal:
		return "horizontal"
	case LayoutFull3D:
		return "full3d"
	}
	return fmt.Sprintf("Layout(%d)", int(l))
}

// Valid reports whether l is one of the declared layouts.
func (l Layout) Valid() bool {
	switch l {
	case LayoutHeight, LayoutHorizontal, LayoutFull3D:
		return true
	}
	return false
}

// HasHorizontal reports whether the layout carries east/north bands.
func (l Layout) HasHorizontal() bool {
	switch l {
	case LayoutHorizontal, LayoutFull3D:
		return true
	case LayoutHeight:
		return false
	}
	panic(fmt.Sprintf("grid: unhandled layout %d", int(l)))
}

// HasVertical reports whether the layout carries a vertical band.
func (l Layout) HasVertical() bool {
	switch l {
	case LayoutHeight, LayoutFull3D:
		return true
	case LayoutHorizontal:
		return false
	}
	panic(fmt.Sprintf("grid: unhandled layout %d", int(l)))
}

// BandCount is the number of bands a grid of this layout carries.
func (l Layout) BandCount() int {
	n := 0
	if l.HasHorizontal() {
		n += 2
	}
	if l.HasVertical() {
		n++
	}
	return n
}
