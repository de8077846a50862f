package raster

import (
	"encoding/binary"
	"fmt"

	"github.com/banshee-data/gridfiles/internal/fsutil"
	"github.com/banshee-data/gridfiles/internal/grid"
	"github.com/banshee-data/gridfiles/internal/griderr"
)

// File is a decoded GeoTIFF grid.
type File struct {
	Grid        *grid.Grid
	Metadata    Metadata
	TileSize    int
	Compression uint16
	Predictor   uint16
}

// Read loads and decodes the GeoTIFF at path.
func Read(fsys fsutil.FileSystem, path string) (*File, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", griderr.ErrIO, path, err)
	}
	return Decode(data)
}

const (
	// maxSamples bounds SamplesPerPixel; grid files carry at most a few bands.
	maxSamples = 16
	// maxInflateRatio is the largest expansion a deflate stream can encode.
	maxInflateRatio = 1032
	maxInflateSlack = 1024
)

// Decode parses a tiled float32 GeoTIFF produced by Writer or any writer
// using the same subset of the format.
func Decode(data []byte) (*File, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: file is %d bytes, shorter than a TIFF header", griderr.ErrFormat, len(data))
	}
	var order binary.ByteOrder
	switch string(data[0:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("%w: bad byte order mark %q", griderr.ErrFormat, data[0:2])
	}
	if magic := order.Uint16(data[2:]); magic != 42 {
		return nil, fmt.Errorf("%w: unsupported TIFF magic %d", griderr.ErrFormat, magic)
	}
	fields, err := readIFD(data, order, order.Uint32(data[4:]))
	if err != nil {
		return nil, err
	}

	get := func(tag Tag) (uint32, error) {
		f, ok := fields[tag]
		if !ok {
			return 0, fmt.Errorf("%w: missing tag %d", griderr.ErrFormat, tag)
		}
		return f.uint(order)
	}
	cols, err := get(TagImageWidth)
	if err != nil {
		return nil, err
	}
	rows, err := get(TagImageLength)
	if err != nil {
		return nil, err
	}
	tileWidth, err := get(TagTileWidth)
	if err != nil {
		return nil, err
	}
	tileLength, err := get(TagTileLength)
	if err != nil {
		return nil, err
	}
	if tileWidth != tileLength || !validTileSize(int(tileWidth)) {
		return nil, fmt.Errorf("%w: tiles must be square multiples of 16 up to %d, got %dx%d",
			griderr.ErrFormat, MaxTileSize, tileWidth, tileLength)
	}

	samples := uint32(1)
	if _, ok := fields[TagSamplesPerPixel]; ok {
		if samples, err = get(TagSamplesPerPixel); err != nil {
			return nil, err
		}
	}
	if samples == 0 || samples > maxSamples {
		return nil, fmt.Errorf("%w: %d samples per pixel, want 1..%d", griderr.ErrFormat, samples, maxSamples)
	}
	if bits, err := get(TagBitsPerSample); err != nil || bits != 32 {
		return nil, fmt.Errorf("%w: only 32-bit samples are supported", griderr.ErrFormat)
	}
	if f, ok := fields[TagSampleFormat]; ok {
		if v, err := f.uint(order); err != nil || v != sampleFormatIEEEFP {
			return nil, fmt.Errorf("%w: only IEEE float samples are supported", griderr.ErrFormat)
		}
	}
	compression := uint32(CompressionNone)
	if _, ok := fields[TagCompression]; ok {
		if compression, err = get(TagCompression); err != nil {
			return nil, err
		}
	}
	predictor := uint32(PredictorNone)
	if _, ok := fields[TagPredictor]; ok {
		if predictor, err = get(TagPredictor); err != nil {
			return nil, err
		}
	}
	planar := uint32(planarContig)
	if _, ok := fields[TagPlanarConfig]; ok {
		if planar, err = get(TagPlanarConfig); err != nil {
			return nil, err
		}
	}

	geom, err := geometryFromTags(fields, order, int(rows), int(cols))
	if err != nil {
		return nil, err
	}

	offsetField, ok1 := fields[TagTileOffsets]
	countField, ok2 := fields[TagTileByteCounts]
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("%w: missing tile offsets or byte counts", griderr.ErrFormat)
	}
	offsets, err := offsetField.uints(order)
	if err != nil {
		return nil, err
	}
	counts, err := countField.uints(order)
	if err != nil {
		return nil, err
	}

	tiler := &Tiler{Size: int(tileWidth)}
	down, across := tiler.Dims(int(rows), int(cols))
	perBand := down * across

	dec := tileDecoder{
		data:        data,
		order:       order,
		compression: compression,
		predictor:   predictor,
		size:        int(tileWidth),
	}

	if len(counts) != len(offsets) {
		return nil, fmt.Errorf("%w: %d tile offsets but %d byte counts", griderr.ErrFormat, len(offsets), len(counts))
	}
	bandTiles := make([][][]float32, samples)
	switch planar {
	case planarSeparate:
		if len(offsets) != perBand*int(samples) {
			return nil, fmt.Errorf("%w: expected %d tiles, got %d", griderr.ErrFormat, perBand*int(samples), len(offsets))
		}
		for b := range bandTiles {
			bandTiles[b] = make([][]float32, perBand)
			for t := 0; t < perBand; t++ {
				i := b*perBand + t
				vals, err := dec.tile(offsets[i], counts[i], 1)
				if err != nil {
					return nil, fmt.Errorf("tile %d: %w", i, err)
				}
				bandTiles[b][t] = vals
			}
		}
	case planarContig:
		if len(offsets) != perBand {
			return nil, fmt.Errorf("%w: expected %d tiles, got %d", griderr.ErrFormat, perBand, len(offsets))
		}
		for b := range bandTiles {
			bandTiles[b] = make([][]float32, perBand)
		}
		for t := 0; t < perBand; t++ {
			vals, err := dec.tile(offsets[t], counts[t], int(samples))
			if err != nil {
				return nil, fmt.Errorf("tile %d: %w", t, err)
			}
			for b := range bandTiles {
				tile := make([]float32, tiler.TileLen())
				for k := range tile {
					tile[k] = vals[k*int(samples)+b]
				}
				bandTiles[b][t] = tile
			}
		}
	default:
		return nil, fmt.Errorf("%w: unsupported planar configuration %d", griderr.ErrFormat, planar)
	}

	g := &grid.Grid{Geometry: geom, Bands: make([]*grid.Band, samples)}
	for b, tiles := range bandTiles {
		band, err := tiler.Merge(int(rows), int(cols), tiles)
		if err != nil {
			return nil, err
		}
		g.Bands[b] = band
	}

	return &File{
		Grid:        g,
		Metadata:    metadataFromTags(fields, order),
		TileSize:    int(tileWidth),
		Compression: uint16(compression),
		Predictor:   uint16(predictor),
	}, nil
}

func readIFD(data []byte, order binary.ByteOrder, offset uint32) (map[Tag]field, error) {
	if uint64(offset)+2 > uint64(len(data)) {
		return nil, fmt.Errorf("%w: IFD offset %d beyond end of file", griderr.ErrFormat, offset)
	}
	n := int(order.Uint16(data[offset:]))
	start := int(offset) + 2
	if start+12*n > len(data) {
		return nil, fmt.Errorf("%w: IFD with %d entries is truncated", griderr.ErrFormat, n)
	}
	fields := make(map[Tag]field, n)
	for i := 0; i < n; i++ {
		p := data[start+12*i:]
		tag := Tag(order.Uint16(p[0:]))
		typ := fieldType(order.Uint16(p[2:]))
		count := order.Uint32(p[4:])
		size := typ.size()
		if size == 0 {
			continue
		}
		total := uint64(size) * uint64(count)
		var value []byte
		if total <= 4 {
			value = p[8 : 8+total]
		} else {
			off := uint64(order.Uint32(p[8:]))
			if off+total > uint64(len(data)) {
				return nil, fmt.Errorf("%w: tag %d value out of range", griderr.ErrFormat, tag)
			}
			value = data[off : off+total]
		}
		fields[tag] = field{typ: typ, count: count, data: value}
	}
	return fields, nil
}

func geometryFromTags(fields map[Tag]field, order binary.ByteOrder, rows, cols int) (grid.Geometry, error) {
	scaleField, ok1 := fields[TagModelPixelScale]
	tieField, ok2 := fields[TagModelTiepoint]
	if !ok1 || !ok2 {
		return grid.Geometry{}, fmt.Errorf("%w: missing pixel scale or tie point", griderr.ErrFormat)
	}
	scale, err := scaleField.doubles(order)
	if err != nil || len(scale) < 2 {
		return grid.Geometry{}, fmt.Errorf("%w: bad pixel scale", griderr.ErrFormat)
	}
	tie, err := tieField.doubles(order)
	if err != nil || len(tie) < 6 {
		return grid.Geometry{}, fmt.Errorf("%w: bad tie point", griderr.ErrFormat)
	}
	dLon, dLat := scale[0], scale[1]
	lowerLeftLon := tie[3] - tie[0]*dLon
	upperLat := tie[4] + tie[1]*dLat
	lowerLeftLat := upperLat - float64(rows-1)*dLat

	geom, err := grid.NewGeometry(lowerLeftLat, lowerLeftLon, dLat, dLon, rows, cols)
	if err != nil {
		return grid.Geometry{}, fmt.Errorf("%w: %v", griderr.ErrFormat, err)
	}
	return geom, nil
}

func metadataFromTags(fields map[Tag]field, order binary.ByteOrder) Metadata {
	str := func(tag Tag) string {
		if f, ok := fields[tag]; ok && f.typ == typeASCII {
			return f.ascii()
		}
		return ""
	}
	meta := Metadata{
		DocumentName:     str(TagDocumentName),
		ImageDescription: str(TagImageDescription),
		Make:             str(TagMake),
		Software:         str(TagSoftware),
		DateTime:         str(TagDateTime),
		Artist:           str(TagArtist),
		Copyright:        str(TagCopyright),
		GDALMetadata:     str(TagGDALMetadata),
		GDALNoData:       str(TagGDALNoData),
	}
	if f, ok := fields[TagGeoKeyDirectory]; ok {
		if keys, err := f.shorts(order); err == nil {
			meta.GeoKeys = keys
		}
	}
	return meta
}

type tileDecoder struct {
	data        []byte
	order       binary.ByteOrder
	compression uint32
	predictor   uint32
	size        int
}

// tile decodes one tile holding samples interleaved values per pixel.
func (d tileDecoder) tile(offset, count uint32, samples int) ([]float32, error) {
	end := uint64(offset) + uint64(count)
	if end > uint64(len(d.data)) {
		return nil, fmt.Errorf("%w: tile data out of range", griderr.ErrFormat)
	}
	raw := d.data[offset:end]
	want := uint64(d.size) * uint64(d.size) * uint64(samples) * 4

	switch d.compression {
	case CompressionNone:
		if uint64(len(raw)) < want {
			return nil, fmt.Errorf("%w: tile is %d bytes, want %d", griderr.ErrFormat, len(raw), want)
		}
		raw = raw[:want]
	case CompressionDeflate, CompressionAdobeDeflate:
		if want > maxInflateRatio*uint64(len(raw))+maxInflateSlack {
			return nil, fmt.Errorf("%w: %d-byte tile cannot inflate to %d bytes", griderr.ErrFormat, len(raw), want)
		}
		var err error
		if raw, err = inflate(raw, int(want)); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unsupported compression %d", griderr.ErrFormat, d.compression)
	}

	switch d.predictor {
	case PredictorNone:
		return parseRawFloats(raw, d.order), nil
	case PredictorFloatingPoint:
		return decodeFloatPredictor(raw, d.size*samples, d.size), nil
	}
	return nil, fmt.Errorf("%w: unsupported predictor %d", griderr.ErrFormat, d.predictor)
}
