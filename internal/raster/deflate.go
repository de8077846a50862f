package raster

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zlib"

	"github.com/banshee-data/gridfiles/internal/griderr"
)

// encodeFloatPredictor applies the TIFF floating-point predictor to one tile
// of width x height float32 values. Each row is split into byte planes,
// most significant byte first, and the row bytes are then differenced.
func encodeFloatPredictor(values []float32, width, height int) []byte {
	out := make([]byte, 4*len(values))
	rowBytes := 4 * width
	for y := 0; y < height; y++ {
		row := out[y*rowBytes : (y+1)*rowBytes]
		for x := 0; x < width; x++ {
			bits := math.Float32bits(values[y*width+x])
			row[x] = byte(bits >> 24)
			row[width+x] = byte(bits >> 16)
			row[2*width+x] = byte(bits >> 8)
			row[3*width+x] = byte(bits)
		}
		for i := rowBytes - 1; i > 0; i-- {
			row[i] -= row[i-1]
		}
	}
	return out
}

// decodeFloatPredictor reverses encodeFloatPredictor.
func decodeFloatPredictor(data []byte, width, height int) []float32 {
	out := make([]float32, width*height)
	rowBytes := 4 * width
	row := make([]byte, rowBytes)
	for y := 0; y < height; y++ {
		copy(row, data[y*rowBytes:(y+1)*rowBytes])
		for i := 1; i < rowBytes; i++ {
			row[i] += row[i-1]
		}
		for x := 0; x < width; x++ {
			bits := uint32(row[x])<<24 | uint32(row[width+x])<<16 | uint32(row[2*width+x])<<8 | uint32(row[3*width+x])
			out[y*width+x] = math.Float32frombits(bits)
		}
	}
	return out
}

// rawFloats encodes values in file byte order without a predictor.
func rawFloats(values []float32) []byte {
	out := make([]byte, 4*len(values))
	for i, v := range values {
		le.PutUint32(out[4*i:], math.Float32bits(v))
	}
	return out
}

func parseRawFloats(data []byte, order binary.ByteOrder) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(order.Uint32(data[4*i:]))
	}
	return out
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func inflate(data []byte, want int) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: deflate stream: %v", griderr.ErrFormat, err)
	}
	defer zr.Close()
	out := make([]byte, want)
	if _, err := io.ReadFull(zr, out); err != nil {
		return nil, fmt.Errorf("%w: inflate tile: %v", griderr.ErrFormat, err)
	}
	return out, nil
}
