// Package geotag builds and parses the georeferencing blocks embedded in
// GeoTIFF grids: the GeoKey directory and the GDAL metadata XML.
package geotag

import (
	"fmt"
	"math"

	"github.com/banshee-data/gridfiles/internal/griderr"
)

// GeoKey is a GeoTIFF key id.
type GeoKey uint16

const (
	GeoKeyModelType   GeoKey = 1024
	GeoKeyRasterType  GeoKey = 1025
	GeoKeyGeodeticCRS GeoKey = 2048
	GeoKeyVertical    GeoKey = 4096
)

const (
	// ModelTypeGeographic is the GTModelTypeGeoKey value for lat/lon rasters.
	ModelTypeGeographic = 2
	// RasterPixelIsPoint is the GTRasterTypeGeoKey value for node grids.
	RasterPixelIsPoint = 2
)

// GeoKeys is the parsed content of a key directory.
type GeoKeys struct {
	ModelType  uint16
	RasterType uint16
	Code2D     int
	Code3D     int
}

// BuildGeoKeys returns the key directory: the (1, 1, 1, n) header, the
// model and raster type keys, then the 2-D and 3-D CRS codes when set.
func BuildGeoKeys(code2D, code3D int) ([]uint16, error) {
	for _, c := range []int{code2D, code3D} {
		if c < 0 || c > math.MaxUint16 {
			return nil, fmt.Errorf("%w: CRS code %d does not fit a geokey", griderr.ErrConfiguration, c)
		}
	}
	keys := [][4]uint16{
		{uint16(GeoKeyModelType), 0, 1, ModelTypeGeographic},
		{uint16(GeoKeyRasterType), 0, 1, RasterPixelIsPoint},
	}
	if code2D > 0 {
		keys = append(keys, [4]uint16{uint16(GeoKeyGeodeticCRS), 0, 1, uint16(code2D)})
	}
	if code3D > 0 {
		keys = append(keys, [4]uint16{uint16(GeoKeyVertical), 0, 1, uint16(code3D)})
	}

	dir := make([]uint16, 0, 4*(len(keys)+1))
	dir = append(dir, 1, 1, 1, uint16(len(keys)))
	for _, k := range keys {
		dir = append(dir, k[:]...)
	}
	return dir, nil
}

// ParseGeoKeys reads a key directory. Unknown keys are ignored, and so are
// entries stored outside the directory or cut short.
func ParseGeoKeys(dir []uint16) (GeoKeys, error) {
	if len(dir) < 4 {
		return GeoKeys{}, fmt.Errorf("%w: geokey directory has %d values", griderr.ErrFormat, len(dir))
	}
	var out GeoKeys
	n := int(dir[3])
	for i := 0; i < n; i++ {
		start := 4 + 4*i
		if start+4 > len(dir) {
			break
		}
		id, location, count, value := GeoKey(dir[start]), dir[start+1], dir[start+2], dir[start+3]
		if location != 0 || count != 1 {
			continue
		}
		switch id {
		case GeoKeyModelType:
			out.ModelType = value
		case GeoKeyRasterType:
			out.RasterType = value
		case GeoKeyGeodeticCRS:
			out.Code2D = int(value)
		case GeoKeyVertical:
			out.Code3D = int(value)
		}
	}
	return out, nil
}
