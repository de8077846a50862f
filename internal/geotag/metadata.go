package geotag

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"math"
	"strconv"

	"github.com/banshee-data/gridfiles/internal/grid"
	"github.com/banshee-data/gridfiles/internal/griderr"
	"github.com/banshee-data/gridfiles/internal/units"
)

// Item names used in the GDAL metadata block.
const (
	ItemAreaOfUse         = "area_of_use"
	ItemGridName          = "grid_name"
	ItemSourceCRSEPSGCode = "source_crs_epsg_code"
	ItemSourceCRSWKT      = "source_crs_wkt"
	ItemTargetCRSEPSGCode = "target_crs_epsg_code"
	ItemTargetCRSWKT      = "target_crs_wkt"
	ItemType              = "TYPE"
	ItemUnitType          = "UNITTYPE"
	ItemDescription       = "DESCRIPTION"
	ItemPositiveValue     = "positive_value"
)

const rootName = "GDALMetadata"

// Item is one <Item> element. Sample is empty for dataset-level items.
type Item struct {
	Name   string `xml:"name,attr"`
	Sample string `xml:"sample,attr,omitempty"`
	Role   string `xml:"role,attr,omitempty"`
	Value  string `xml:",chardata"`
}

// Band returns the sample index of a band-level item.
func (it Item) Band() (int, bool) {
	if it.Sample == "" {
		return 0, false
	}
	n, err := strconv.Atoi(it.Sample)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Metadata is the ordered item list stored in the GDAL_METADATA tag.
type Metadata struct {
	XMLName xml.Name
	Items   []Item `xml:"Item"`
}

// Add appends a dataset-level item.
func (m *Metadata) Add(name, value string) {
	m.Items = append(m.Items, Item{Name: name, Value: value})
}

// AddBand appends an item attached to band sample.
func (m *Metadata) AddBand(sample int, name, role, value string) {
	m.Items = append(m.Items, Item{Name: name, Sample: strconv.Itoa(sample), Role: role, Value: value})
}

// Get returns the first dataset-level item with the given name.
func (m *Metadata) Get(name string) (string, bool) {
	for _, it := range m.Items {
		if it.Name == name && it.Sample == "" {
			return it.Value, true
		}
	}
	return "", false
}

// Marshal renders the metadata as indented XML without a declaration.
func (m *Metadata) Marshal() (string, error) {
	out := *m
	out.XMLName = xml.Name{Local: rootName}
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(out); err != nil {
		return "", fmt.Errorf("encode GDAL metadata: %w", err)
	}
	return buf.String(), nil
}

// ParseMetadata parses a GDAL_METADATA string. The root element may be
// spelled GDALMetadata or GdalMetadata.
func ParseMetadata(s string) (*Metadata, error) {
	var m Metadata
	if err := xml.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("%w: GDAL metadata: %v", griderr.ErrFormat, err)
	}
	switch m.XMLName.Local {
	case rootName, "GdalMetadata":
	default:
		return nil, fmt.Errorf("%w: GDAL metadata root is <%s>", griderr.ErrFormat, m.XMLName.Local)
	}
	return &m, nil
}

// BandInfo describes one band of a grid.
type BandInfo struct {
	Description   string
	Unit          string
	PositiveValue string
}

// BandsFor returns the band descriptions written for an output type and
// layout, in sample order.
func BandsFor(t OutputType, l grid.Layout) []BandInfo {
	switch t {
	case Velocity:
		var b []BandInfo
		if l.HasHorizontal() {
			b = append(b,
				BandInfo{Description: "east_velocity", Unit: units.MillimetrePerYear},
				BandInfo{Description: "north_velocity", Unit: units.MillimetrePerYear})
		}
		if l.HasVertical() {
			b = append(b, BandInfo{Description: "up_velocity", Unit: units.MillimetrePerYear})
		}
		return b
	case HorizontalOffset:
		if !l.HasHorizontal() {
			return nil
		}
		return []BandInfo{
			{Description: "latitude_offset", Unit: units.Radian},
			{Description: "longitude_offset", Unit: units.Radian, PositiveValue: "west"},
		}
	case VerticalOffsetVerticalToVertical:
		if !l.HasVertical() {
			return nil
		}
		return []BandInfo{{Description: "vertical_offset", Unit: units.Metre}}
	case VerticalOffsetGeographicToVertical:
		return []BandInfo{{Description: "geoid_undulation", Unit: units.Metre}}
	case GeocentricTranslation:
		return []BandInfo{
			{Description: "x_translation", Unit: units.Metre},
			{Description: "y_translation", Unit: units.Metre},
			{Description: "z_translation", Unit: units.Metre},
		}
	}
	return nil
}

// Descriptor is the content of the GDAL metadata block before rendering.
type Descriptor struct {
	AreaOfUse string
	GridName  string
	Source    CRS
	Target    CRS
	Type      OutputType
	Bands     []BandInfo
}

// Metadata renders d as an ordered item list: area and name, the two
// CRS, the type, then per band unit, positive direction and description.
func (d Descriptor) Metadata() *Metadata {
	m := &Metadata{}
	if d.AreaOfUse != "" {
		m.Add(ItemAreaOfUse, d.AreaOfUse)
	}
	if d.GridName != "" {
		m.Add(ItemGridName, d.GridName)
	}
	addCRS(m, d.Source, ItemSourceCRSEPSGCode, ItemSourceCRSWKT)
	addCRS(m, d.Target, ItemTargetCRSEPSGCode, ItemTargetCRSWKT)
	m.Add(ItemType, d.Type.String())
	for i, b := range d.Bands {
		if b.PositiveValue != "" {
			m.AddBand(i, ItemPositiveValue, "", b.PositiveValue)
		}
		if b.Unit != "" {
			m.AddBand(i, ItemUnitType, "unittype", b.Unit)
		}
		if b.Description != "" {
			m.AddBand(i, ItemDescription, "description", b.Description)
		}
	}
	return m
}

func addCRS(m *Metadata, c CRS, codeItem, wktItem string) {
	switch {
	case c.IsEPSG():
		m.Add(codeItem, strconv.Itoa(c.Code))
	case c.Authority != "" || c.WKT != "":
		m.Add(wktItem, c.WKTString())
	}
}

// DescriptorFromMetadata is the inverse of Descriptor.Metadata. Unknown
// items are ignored.
func DescriptorFromMetadata(m *Metadata) (Descriptor, error) {
	var d Descriptor
	for _, it := range m.Items {
		if n, ok := it.Band(); ok {
			// SamplesPerPixel is a TIFF SHORT, so no band index exceeds it.
			if n >= math.MaxUint16 {
				return Descriptor{}, fmt.Errorf("%w: band index %d out of range", griderr.ErrFormat, n)
			}
			for len(d.Bands) <= n {
				d.Bands = append(d.Bands, BandInfo{})
			}
			switch it.Name {
			case ItemUnitType:
				d.Bands[n].Unit = it.Value
			case ItemDescription:
				d.Bands[n].Description = it.Value
			case ItemPositiveValue:
				d.Bands[n].PositiveValue = it.Value
			}
			continue
		}
		var err error
		switch it.Name {
		case ItemAreaOfUse:
			d.AreaOfUse = it.Value
		case ItemGridName:
			d.GridName = it.Value
		case ItemSourceCRSEPSGCode:
			d.Source, err = epsg(it.Value)
		case ItemTargetCRSEPSGCode:
			d.Target, err = epsg(it.Value)
		case ItemSourceCRSWKT:
			d.Source = CRS{WKT: it.Value}
		case ItemTargetCRSWKT:
			d.Target = CRS{WKT: it.Value}
		case ItemType:
			d.Type, err = ParseOutputType(it.Value)
			if err != nil {
				err = fmt.Errorf("%w: TYPE %q", griderr.ErrFormat, it.Value)
			}
		}
		if err != nil {
			return Descriptor{}, err
		}
	}
	return d, nil
}

func epsg(v string) (CRS, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return CRS{}, fmt.Errorf("%w: EPSG code %q", griderr.ErrFormat, v)
	}
	return CRS{Authority: "EPSG", Code: n}, nil
}
