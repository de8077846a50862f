package gridjob

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/banshee-data/gridfiles/internal/config"
	"github.com/banshee-data/gridfiles/internal/ctable"
	"github.com/banshee-data/gridfiles/internal/geotag"
	"github.com/banshee-data/gridfiles/internal/grid"
	"github.com/banshee-data/gridfiles/internal/griderr"
	"github.com/banshee-data/gridfiles/internal/preview"
	"github.com/banshee-data/gridfiles/internal/raster"
	"github.com/banshee-data/gridfiles/internal/timeutil"
	"github.com/banshee-data/gridfiles/internal/units"
	"github.com/banshee-data/gridfiles/internal/version"
)

// arcSecondsPerRadian scales radian offsets for previews.
const arcSecondsPerRadian = 180 / math.Pi * 3600

func (j *Job) encode(p *plan, b *predicted, res *Result) (*outputSet, error) {
	outs := newOutputSet()
	bands := tiffBands(p, b, res.EpochSpan)
	res.Grid = &grid.Grid{Geometry: p.geom, Bands: bands}

	if path := p.outputs.CTable; path != "" {
		data, err := ctable.Encode(&ctable.File{
			Description: ctableDescription(j.Config),
			Geometry:    p.geom,
			East:        b.east,
			North:       b.north,
		})
		if err != nil {
			return nil, err
		}
		outs.add(path, data)
	}

	if path := p.outputs.GeoTIFF; path != "" {
		tiler, err := j.Config.Tiler()
		if err != nil {
			return nil, err
		}
		meta, err := tiffMetadata(j.Config, p, res, filepath.Base(path), j.Clock)
		if err != nil {
			return nil, err
		}
		data, err := raster.NewWriter(tiler).Encode(res.Grid, meta)
		if err != nil {
			return nil, err
		}
		outs.add(path, data)
	}

	if path := p.outputs.PreviewPNG; path != "" {
		data, err := preview.Heatmap(p.geom, bands[0], previewOptions(j.Config, p))
		if err != nil {
			return nil, err
		}
		outs.add(path, data)
	}

	if path := p.outputs.ResidualsHTML; path != "" {
		if res.Horizontal == nil {
			return nil, fmt.Errorf("%w: residual chart needs a horizontal estimation", griderr.ErrConfiguration)
		}
		title := j.Config.GridName
		if title == "" {
			title = "Collocation residuals"
		}
		data, err := preview.Residuals(title, res.Horizontal.Residuals, res.Horizontal.MeanLat)
		if err != nil {
			return nil, err
		}
		outs.add(path, data)
	}
	return outs, nil
}

func ctableDescription(cfg *config.JobConfig) string {
	if cfg.Description != "" {
		return cfg.Description
	}
	return cfg.GridName
}

func previewOptions(cfg *config.JobConfig, p *plan) preview.HeatmapOptions {
	o := preview.HeatmapOptions{Title: cfg.GridName}
	switch p.typ {
	case geotag.HorizontalOffset:
		o.Title = strings.TrimSpace(o.Title + " latitude offset")
		o.Unit = "arc seconds"
		o.Scale = arcSecondsPerRadian
	case geotag.Velocity:
		o.Title = strings.TrimSpace(o.Title + " velocity")
		o.Unit = units.MillimetrePerYear
	default:
		o.Title = strings.TrimSpace(o.Title + " height offset")
		o.Unit = units.Metre
	}
	return o
}

// tiffMetadata assembles the descriptive tags, the geokeys and the GDAL
// metadata block for the GeoTIFF output.
func tiffMetadata(cfg *config.JobConfig, p *plan, res *Result, docName string, clock timeutil.Clock) (raster.Metadata, error) {
	keys, err := geotag.BuildGeoKeys(epsgCode(cfg.CRS2D), epsgCode(cfg.CRS3D))
	if err != nil {
		return raster.Metadata{}, err
	}

	desc := geotag.Descriptor{
		AreaOfUse: cfg.AreaOfUse,
		GridName:  cfg.GridName,
		Source:    cfg.SourceCRS,
		Target:    cfg.TargetCRS,
		Type:      p.typ,
		Bands:     geotag.BandsFor(p.typ, p.layout),
	}
	gdalXML, err := desc.Metadata().Marshal()
	if err != nil {
		return raster.Metadata{}, err
	}

	var text []string
	if cfg.Description != "" {
		text = append(text, cfg.Description)
	}
	if res.Horizontal != nil {
		text = append(text, res.Horizontal.Summary())
	}
	if res.Vertical != nil {
		text = append(text, fmt.Sprintf("Vertical: trend=%.6g s0=%.6g", res.Vertical.Trend, res.Vertical.S0))
	}

	return raster.Metadata{
		DocumentName:     docName,
		ImageDescription: strings.Join(text, "\n"),
		Make:             cfg.Make,
		Software:         version.Software(),
		DateTime:         timeutil.TIFFDateTime(clock),
		Artist:           cfg.Email,
		Copyright:        cfg.Copyright,
		GeoKeys:          keys,
		GDALMetadata:     gdalXML,
		GDALNoData:       "nan",
	}, nil
}

func epsgCode(c geotag.CRS) int {
	if c.IsEPSG() {
		return c.Code
	}
	return 0
}
