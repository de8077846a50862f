// Command gridinfo prints the header of a CTABLE or GeoTIFF grid and
// optionally samples it at a point.
//
//	gridinfo -file grid.tif [-lat 60.5 -lon 10.25]
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strings"

	"github.com/banshee-data/gridfiles/internal/ctable"
	"github.com/banshee-data/gridfiles/internal/fsutil"
	"github.com/banshee-data/gridfiles/internal/geotag"
	"github.com/banshee-data/gridfiles/internal/grid"
	"github.com/banshee-data/gridfiles/internal/griderr"
	"github.com/banshee-data/gridfiles/internal/raster"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, fsutil.OSFileSystem{}); err != nil {
		log.Fatalf("gridinfo: %v", err)
	}
}

func run(args []string, stdout io.Writer, fsys fsutil.FileSystem) error {
	fs := flag.NewFlagSet("gridinfo", flag.ContinueOnError)
	path := fs.String("file", "", "CTABLE (.ct2) or GeoTIFF (.tif) grid")
	lat := fs.Float64("lat", math.NaN(), "latitude to sample, degrees")
	lon := fs.Float64("lon", math.NaN(), "longitude to sample, degrees")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return fmt.Errorf("-file is required")
	}

	data, err := fsys.ReadFile(*path)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", griderr.ErrIO, *path, err)
	}

	var g *grid.Grid
	switch {
	case bytes.HasPrefix(data, []byte(ctable.Tag)):
		f, err := ctable.Decode(data)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "format: CTABLE V2\ndescription: %s\n", f.Description)
		g = f.Grid()
	case bytes.HasPrefix(data, []byte("II")) || bytes.HasPrefix(data, []byte("MM")):
		f, err := raster.Decode(data)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "format: GeoTIFF (tile %d, compression %d, predictor %d)\n", f.TileSize, f.Compression, f.Predictor)
		printTIFFMetadata(stdout, f.Metadata)
		g = f.Grid
	default:
		return fmt.Errorf("%w: %s is neither CTABLE nor TIFF", griderr.ErrFormat, *path)
	}

	fmt.Fprintf(stdout, "geometry: %s\n", g.Geometry)
	for i, b := range g.Bands {
		lo, hi, ok := b.Stats()
		if !ok {
			fmt.Fprintf(stdout, "band %d: no data\n", i)
			continue
		}
		fmt.Fprintf(stdout, "band %d: min=%.9g max=%.9g valid=%d/%d\n", i, lo, hi, b.ValidCount(), b.Len())
	}

	if math.IsNaN(*lat) || math.IsNaN(*lon) {
		return nil
	}
	values, ok := raster.SampleBilinear(g, *lat, *lon)
	if !ok {
		fmt.Fprintf(stdout, "sample %.8f %.8f: not found\n", *lat, *lon)
		return nil
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%.9g", v)
	}
	fmt.Fprintf(stdout, "sample %.8f %.8f: %s\n", *lat, *lon, strings.Join(parts, " "))
	return nil
}

func printTIFFMetadata(w io.Writer, m raster.Metadata) {
	for _, kv := range []struct{ k, v string }{
		{"document", m.DocumentName},
		{"software", m.Software},
		{"datetime", m.DateTime},
		{"make", m.Make},
		{"artist", m.Artist},
		{"copyright", m.Copyright},
		{"nodata", m.GDALNoData},
	} {
		if kv.v != "" {
			fmt.Fprintf(w, "%s: %s\n", kv.k, kv.v)
		}
	}
	if keys, err := geotag.ParseGeoKeys(m.GeoKeys); err == nil {
		fmt.Fprintf(w, "crs: 2d=%d 3d=%d\n", keys.Code2D, keys.Code3D)
	}
	if m.GDALMetadata == "" {
		return
	}
	md, err := geotag.ParseMetadata(m.GDALMetadata)
	if err != nil {
		fmt.Fprintf(w, "metadata: %v\n", err)
		return
	}
	d, err := geotag.DescriptorFromMetadata(md)
	if err != nil {
		fmt.Fprintf(w, "metadata: %v\n", err)
		return
	}
	fmt.Fprintf(w, "type: %s\n", d.Type)
	if d.GridName != "" {
		fmt.Fprintf(w, "grid: %s\n", d.GridName)
	}
	if s := d.Source.String(); s != "" {
		fmt.Fprintf(w, "source: %s\n", s)
	}
	if s := d.Target.String(); s != "" {
		fmt.Fprintf(w, "target: %s\n", s)
	}
	for i, b := range d.Bands {
		fmt.Fprintf(w, "band %d: %s [%s]\n", i, b.Description, b.Unit)
	}
}
