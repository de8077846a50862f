package geotag

import (
	"fmt"
	"strings"

	"github.com/banshee-data/gridfiles/internal/griderr"
)

// OutputType is the kind of correction a grid carries. Its name is
// written to the TYPE metadata item.
type OutputType int

const (
	HorizontalOffset OutputType = iota
	VerticalOffsetGeographicToVertical
	VerticalOffsetVerticalToVertical
	GeocentricTranslation
	Velocity
	DeformationModel
)

var outputTypeNames = [...]struct{ long, short string }{
	HorizontalOffset:                   {"HORIZONTAL_OFFSET", "hoffset"},
	VerticalOffsetGeographicToVertical: {"VERTICAL_OFFSET_GEOGRAPHIC_TO_VERTICAL", "geoid"},
	VerticalOffsetVerticalToVertical:   {"VERTICAL_OFFSET_VERTICAL_TO_VERTICAL", "vsep"},
	GeocentricTranslation:              {"GEOCENTRIC_TRANSLATION", "goffset"},
	Velocity:                           {"VELOCITY", "vel"},
	DeformationModel:                   {"DEFORMATION_MODEL", "deform"},
}

// Valid reports whether t is a declared output type.
func (t OutputType) Valid() bool {
	return t >= 0 && int(t) < len(outputTypeNames)
}

// String returns the long metadata name, e.g. HORIZONTAL_OFFSET.
func (t OutputType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("OutputType(%d)", int(t))
	}
	return outputTypeNames[t].long
}

// Short returns the command-line abbreviation, e.g. hoffset.
func (t OutputType) Short() string {
	if !t.Valid() {
		return ""
	}
	return outputTypeNames[t].short
}

// ParseOutputType accepts a long or short name, case-insensitively.
func ParseOutputType(s string) (OutputType, error) {
	s = strings.TrimSpace(s)
	for i, n := range outputTypeNames {
		if strings.EqualFold(s, n.long) || strings.EqualFold(s, n.short) {
			return OutputType(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown output type %q", griderr.ErrConfiguration, s)
}
