package raster

import (
	"bytes"
	"fmt"
	"math"
	"sort"

	"github.com/banshee-data/gridfiles/internal/fsutil"
	"github.com/banshee-data/gridfiles/internal/grid"
	"github.com/banshee-data/gridfiles/internal/griderr"
)

// Metadata is the descriptive and georeferencing content of a GeoTIFF
// file. Empty strings are not written.
type Metadata struct {
	DocumentName     string
	ImageDescription string
	Make             string
	Software         string
	DateTime         string
	Artist           string
	Copyright        string
	GeoKeys          []uint16
	GDALMetadata     string
	GDALNoData       string
}

// Writer encodes grids as classic little-endian tiled GeoTIFF files with
// one float32 sample per band.
type Writer struct {
	Tiler       *Tiler
	Compression uint16
}

// NewWriter returns a writer using Adobe deflate with the floating-point
// predictor.
func NewWriter(t *Tiler) *Writer {
	return &Writer{Tiler: t, Compression: CompressionAdobeDeflate}
}

// Encode serializes g. Pixel (0, 0) is the north-west node; the tie point
// maps it to (LowerLeftLon, UpperLat) as a PixelIsPoint raster.
func (w *Writer) Encode(g *grid.Grid, meta Metadata) ([]byte, error) {
	if w.Tiler == nil {
		return nil, fmt.Errorf("%w: writer has no tiler", griderr.ErrConfiguration)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	geom := g.Geometry
	if geom.Rows == 0 || geom.Cols == 0 {
		return nil, fmt.Errorf("%w: cannot encode an empty %dx%d grid", griderr.ErrConfiguration, geom.Rows, geom.Cols)
	}
	compressed := false
	switch w.Compression {
	case CompressionNone:
	case CompressionDeflate, CompressionAdobeDeflate:
		compressed = true
	default:
		return nil, fmt.Errorf("%w: unsupported compression %d", griderr.ErrConfiguration, w.Compression)
	}

	var buf bytes.Buffer
	buf.Write([]byte{'I', 'I', 42, 0, 0, 0, 0, 0})

	size := w.Tiler.Size
	var offsets, counts []uint32
	for _, band := range g.Bands {
		for _, tile := range w.Tiler.Split(band) {
			var data []byte
			if compressed {
				var err error
				data, err = deflate(encodeFloatPredictor(tile, size, size))
				if err != nil {
					return nil, fmt.Errorf("%w: deflate tile: %v", griderr.ErrIO, err)
				}
			} else {
				data = rawFloats(tile)
			}
			offsets = append(offsets, uint32(buf.Len()))
			counts = append(counts, uint32(len(data)))
			buf.Write(data)
			if buf.Len()%2 == 1 {
				buf.WriteByte(0)
			}
		}
	}
	if buf.Len() > math.MaxUint32/2 {
		return nil, fmt.Errorf("%w: raster too large for classic TIFF", griderr.ErrConfiguration)
	}

	entries := w.entries(g, meta, offsets, counts)
	writeIFD(&buf, entries)
	return buf.Bytes(), nil
}

func (w *Writer) entries(g *grid.Grid, meta Metadata, offsets, counts []uint32) []entry {
	geom := g.Geometry
	bands := len(g.Bands)
	bits := make([]uint16, bands)
	formats := make([]uint16, bands)
	for i := range bits {
		bits[i] = 32
		formats[i] = sampleFormatIEEEFP
	}
	predictor := uint16(PredictorNone)
	if w.Compression != CompressionNone {
		predictor = PredictorFloatingPoint
	}
	planar := uint16(planarContig)
	if bands > 1 {
		planar = planarSeparate
	}

	entries := []entry{
		longEntry(TagImageWidth, uint32(geom.Cols)),
		longEntry(TagImageLength, uint32(geom.Rows)),
		shortEntry(TagBitsPerSample, bits...),
		shortEntry(TagCompression, w.Compression),
		shortEntry(TagPhotometric, photometricMinIsBlack),
		shortEntry(TagFillOrder, fillOrderMSB2LSB),
		shortEntry(TagSamplesPerPixel, uint16(bands)),
		shortEntry(TagPlanarConfig, planar),
		shortEntry(TagPredictor, predictor),
		longEntry(TagTileWidth, uint32(w.Tiler.Size)),
		longEntry(TagTileLength, uint32(w.Tiler.Size)),
		longEntry(TagTileOffsets, offsets...),
		longEntry(TagTileByteCounts, counts...),
		shortEntry(TagSampleFormat, formats...),
		doubleEntry(TagModelPixelScale, geom.DeltaLon, geom.DeltaLat, 0),
		doubleEntry(TagModelTiepoint, 0, 0, 0, geom.LowerLeftLon, geom.UpperLat(), 0),
	}
	if bands > 1 {
		extra := make([]uint16, bands-1)
		for i := range extra {
			extra[i] = extraSampleUnspecified
		}
		entries = append(entries, shortEntry(TagExtraSamples, extra...))
	}
	if len(meta.GeoKeys) > 0 {
		entries = append(entries, shortEntry(TagGeoKeyDirectory, meta.GeoKeys...))
	}
	for _, s := range []struct {
		tag Tag
		val string
	}{
		{TagDocumentName, meta.DocumentName},
		{TagImageDescription, meta.ImageDescription},
		{TagMake, meta.Make},
		{TagSoftware, meta.Software},
		{TagDateTime, meta.DateTime},
		{TagArtist, meta.Artist},
		{TagCopyright, meta.Copyright},
		{TagGDALMetadata, meta.GDALMetadata},
		{TagGDALNoData, meta.GDALNoData},
	} {
		if s.val != "" {
			entries = append(entries, asciiEntry(s.tag, s.val))
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })
	return entries
}

// writeIFD appends the directory and its out-of-line values to buf and
// patches the header offset.
func writeIFD(buf *bytes.Buffer, entries []entry) {
	if buf.Len()%2 == 1 {
		buf.WriteByte(0)
	}
	ifdOffset := uint32(buf.Len())
	ifdSize := uint32(2 + 12*len(entries) + 4)

	var extra bytes.Buffer
	dir := make([]byte, ifdSize)
	le.PutUint16(dir, uint16(len(entries)))
	for i, e := range entries {
		p := dir[2+12*i:]
		le.PutUint16(p[0:], uint16(e.tag))
		le.PutUint16(p[2:], uint16(e.typ))
		le.PutUint32(p[4:], e.count)
		if len(e.data) <= 4 {
			copy(p[8:12], e.data)
			continue
		}
		le.PutUint32(p[8:], ifdOffset+ifdSize+uint32(extra.Len()))
		extra.Write(e.data)
		if extra.Len()%2 == 1 {
			extra.WriteByte(0)
		}
	}
	// Next IFD offset stays zero: single image.
	buf.Write(dir)
	buf.Write(extra.Bytes())

	out := buf.Bytes()
	le.PutUint32(out[4:], ifdOffset)
}

// Write encodes g and stores it at path through fsys.
func (w *Writer) Write(fsys fsutil.FileSystem, path string, g *grid.Grid, meta Metadata) error {
	data, err := w.Encode(g, meta)
	if err != nil {
		return err
	}
	if err := fsys.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("%w: write %s: %v", griderr.ErrIO, path, err)
	}
	return nil
}
