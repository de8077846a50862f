package geotag

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gridfiles/internal/grid"
	"github.com/banshee-data/gridfiles/internal/griderr"
)

func TestBuildGeoKeys(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		code2D, code3D int
		want           []uint16
	}{
		{"none", 0, 0, []uint16{1, 1, 1, 2, 1024, 0, 1, 2, 1025, 0, 1, 2}},
		{"2d only", 4258, 0, []uint16{1, 1, 1, 3, 1024, 0, 1, 2, 1025, 0, 1, 2, 2048, 0, 1, 4258}},
		{"both", 4258, 5941, []uint16{1, 1, 1, 4, 1024, 0, 1, 2, 1025, 0, 1, 2, 2048, 0, 1, 4258, 4096, 0, 1, 5941}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildGeoKeys(tt.code2D, tt.code3D)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("BuildGeoKeys mismatch (-want +got):\n%s", diff)
			}

			parsed, err := ParseGeoKeys(got)
			require.NoError(t, err)
			assert.Equal(t, GeoKeys{ModelType: 2, RasterType: 2, Code2D: tt.code2D, Code3D: tt.code3D}, parsed)
		})
	}
}

func TestBuildGeoKeys_CodeTooLarge(t *testing.T) {
	_, err := BuildGeoKeys(70000, 0)
	assert.True(t, errors.Is(err, griderr.ErrConfiguration))
}

func TestParseGeoKeys_Tolerant(t *testing.T) {
	dir := []uint16{
		1, 1, 1, 4,
		1024, 0, 1, 2,
		3072, 0, 1, 25832, // projected CRS, ignored
		2048, 34736, 1, 0, // stored elsewhere, ignored
		4096, 0, // truncated
	}
	got, err := ParseGeoKeys(dir)
	require.NoError(t, err)
	assert.Equal(t, GeoKeys{ModelType: 2}, got)

	_, err = ParseGeoKeys([]uint16{1, 1})
	assert.True(t, errors.Is(err, griderr.ErrFormat))
}

func TestOutputType(t *testing.T) {
	for i := HorizontalOffset; i <= DeformationModel; i++ {
		long, err := ParseOutputType(i.String())
		require.NoError(t, err)
		short, err := ParseOutputType(strings.ToUpper(i.Short()))
		require.NoError(t, err)
		assert.Equal(t, i, long)
		assert.Equal(t, i, short)
	}
	assert.Equal(t, "VELOCITY", Velocity.String())
	assert.Equal(t, "geoid", VerticalOffsetGeographicToVertical.Short())

	_, err := ParseOutputType("bogus")
	assert.True(t, errors.Is(err, griderr.ErrConfiguration))
	assert.False(t, OutputType(9).Valid())
}

func TestParseCRS(t *testing.T) {
	c, err := ParseCRS("epsg:4258")
	require.NoError(t, err)
	assert.Equal(t, CRS{Authority: "EPSG", Code: 4258}, c)
	assert.True(t, c.IsEPSG())
	assert.Equal(t, "EPSG:4258", c.String())

	c, err = ParseCRS("5941")
	require.NoError(t, err)
	assert.True(t, c.IsEPSG())

	c, err = ParseCRS("")
	require.NoError(t, err)
	assert.True(t, c.IsZero())

	_, err = ParseCRS("EPSG:abc")
	assert.True(t, errors.Is(err, griderr.ErrConfiguration))

	assert.Equal(t, `ID["NKG",2020]`, CRS{Authority: "NKG", Code: 2020}.WKTString())
}

func TestBandsFor(t *testing.T) {
	tests := []struct {
		typ    OutputType
		layout grid.Layout
		want   []string
	}{
		{Velocity, grid.LayoutFull3D, []string{"east_velocity", "north_velocity", "up_velocity"}},
		{Velocity, grid.LayoutHeight, []string{"up_velocity"}},
		{HorizontalOffset, grid.LayoutHorizontal, []string{"latitude_offset", "longitude_offset"}},
		{HorizontalOffset, grid.LayoutFull3D, []string{"latitude_offset", "longitude_offset"}},
		{HorizontalOffset, grid.LayoutHeight, nil},
		{VerticalOffsetVerticalToVertical, grid.LayoutHorizontal, nil},
		{VerticalOffsetVerticalToVertical, grid.LayoutHeight, []string{"vertical_offset"}},
		{VerticalOffsetGeographicToVertical, grid.LayoutHorizontal, []string{"geoid_undulation"}},
		{GeocentricTranslation, grid.LayoutFull3D, []string{"x_translation", "y_translation", "z_translation"}},
		{DeformationModel, grid.LayoutFull3D, nil},
	}
	for _, tt := range tests {
		t.Run(tt.typ.Short()+"/"+tt.layout.String(), func(t *testing.T) {
			var got []string
			for _, b := range BandsFor(tt.typ, tt.layout) {
				got = append(got, b.Description)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDescriptorMetadataOrder(t *testing.T) {
	d := Descriptor{
		AreaOfUse: "Norway",
		GridName:  "EUREF89_NN2000",
		Source:    CRS{Authority: "EPSG", Code: 4258},
		Target:    CRS{Authority: "NKG", Code: 2020},
		Type:      HorizontalOffset,
		Bands:     BandsFor(HorizontalOffset, grid.LayoutHorizontal),
	}
	var names []string
	for _, it := range d.Metadata().Items {
		names = append(names, it.Name+"@"+it.Sample)
	}
	want := []string{
		"area_of_use@", "grid_name@", "source_crs_epsg_code@", "target_crs_wkt@", "TYPE@",
		"UNITTYPE@0", "DESCRIPTION@0",
		"positive_value@1", "UNITTYPE@1", "DESCRIPTION@1",
	}
	assert.Equal(t, want, names)
}

func TestMetadataRoundTrip(t *testing.T) {
	d := Descriptor{
		AreaOfUse: "Norway <onshore & offshore>",
		GridName:  "NKG_2020",
		Source:    CRS{Authority: "EPSG", Code: 4936},
		Target:    CRS{WKT: `GEOGCRS["NKG2020"]`},
		Type:      Velocity,
		Bands:     BandsFor(Velocity, grid.LayoutFull3D),
	}
	s, err := d.Metadata().Marshal()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(s, "<GDALMetadata>"))
	assert.NotContains(t, s, "<?xml")
	assert.Contains(t, s, `<Item name="DESCRIPTION" sample="2" role="description">up_velocity</Item>`)

	m, err := ParseMetadata(s)
	require.NoError(t, err)
	got, err := DescriptorFromMetadata(m)
	require.NoError(t, err)
	if diff := cmp.Diff(d, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestParseMetadata(t *testing.T) {
	m, err := ParseMetadata(`<GdalMetadata><Item name="TYPE">vel</Item><Item name="x" sample="z">1</Item></GdalMetadata>`)
	require.NoError(t, err)
	v, ok := m.Get(ItemType)
	assert.True(t, ok)
	assert.Equal(t, "vel", v)
	_, ok = m.Items[1].Band()
	assert.False(t, ok)

	d, err := DescriptorFromMetadata(m)
	require.NoError(t, err)
	assert.Equal(t, Velocity, d.Type)

	for _, bad := range []string{"<GDALMetadata>", "<Other/>", "not xml"} {
		_, err := ParseMetadata(bad)
		assert.True(t, errors.Is(err, griderr.ErrFormat), bad)
	}

	_, err = DescriptorFromMetadata(&Metadata{Items: []Item{{Name: ItemType, Value: "nope"}}})
	assert.True(t, errors.Is(err, griderr.ErrFormat))

	m, err = ParseMetadata(`<GDALMetadata><Item name="DESCRIPTION" sample="20000000" role="description">x</Item></GDALMetadata>`)
	require.NoError(t, err)
	_, err = DescriptorFromMetadata(m)
	assert.True(t, errors.Is(err, griderr.ErrFormat))

	m.Items[0].Sample = "2"
	d, err = DescriptorFromMetadata(m)
	require.NoError(t, err)
	require.Len(t, d.Bands, 3)
	assert.Equal(t, "x", d.Bands[2].Description)
}
