// Package gridjob runs a conversion: it ingests control points, fits the
// collocation model, predicts a grid and encodes the requested outputs.
package gridjob

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/banshee-data/gridfiles/internal/config"
	"github.com/banshee-data/gridfiles/internal/controlpoint"
	"github.com/banshee-data/gridfiles/internal/fsutil"
	"github.com/banshee-data/gridfiles/internal/geotag"
	"github.com/banshee-data/gridfiles/internal/grid"
	"github.com/banshee-data/gridfiles/internal/griderr"
	"github.com/banshee-data/gridfiles/internal/lsc"
	"github.com/banshee-data/gridfiles/internal/monitoring"
	"github.com/banshee-data/gridfiles/internal/security"
	"github.com/banshee-data/gridfiles/internal/store"
	"github.com/banshee-data/gridfiles/internal/timeutil"
)

// RunStore records job runs. *store.RunStore satisfies it.
type RunStore interface {
	InsertRun(r *store.Run) error
	InsertPoints(runID string, points []store.RunPoint) error
	Finish(r *store.Run, stage string, err error) error
}

// Job is one configured conversion.
type Job struct {
	Config     *config.JobConfig
	ConfigPath string
	FS         fsutil.FileSystem
	Clock      timeutil.Clock
	// Runs is optional.
	Runs RunStore
}

// Result is what a successful run produced.
type Result struct {
	RunID      string
	Points     int
	Removed    int
	Horizontal *lsc.Solution
	Vertical   *lsc.VerticalSolution
	// EpochSpan is the mean target minus source epoch in years; velocity
	// bands are offsets divided by it.
	EpochSpan float64
	// Grid holds the bands in GeoTIFF order.
	Grid    *grid.Grid
	Outputs []string
}

// plan is the validated view of the configuration.
type plan struct {
	model   lsc.Model
	geom    grid.Geometry
	typ     geotag.OutputType
	layout  grid.Layout
	outputs config.Outputs
}

// New returns a job reading and writing through the OS filesystem.
func New(cfg *config.JobConfig) *Job {
	return &Job{Config: cfg, FS: fsutil.OSFileSystem{}, Clock: timeutil.RealClock{}}
}

func (j *Job) plan() (*plan, error) {
	cfg := j.Config
	if cfg == nil {
		return nil, fmt.Errorf("%w: no job configuration", griderr.ErrConfiguration)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.SourceFile == "" || cfg.TargetFile == "" {
		return nil, fmt.Errorf("%w: source and target files are required", griderr.ErrConfiguration)
	}
	m, _ := cfg.Model()
	typ, _ := cfg.GetOutputType()
	layout, _ := cfg.GetLayout()

	switch typ {
	case geotag.HorizontalOffset:
		if !layout.HasHorizontal() {
			return nil, fmt.Errorf("%w: %s needs a horizontal layout, got %s", griderr.ErrConfiguration, typ, layout)
		}
	case geotag.VerticalOffsetGeographicToVertical, geotag.VerticalOffsetVerticalToVertical:
		if !layout.HasVertical() {
			return nil, fmt.Errorf("%w: %s needs a height layout, got %s", griderr.ErrConfiguration, typ, layout)
		}
	case geotag.Velocity:
	default:
		return nil, fmt.Errorf("%w: output type %s cannot be produced from control points", griderr.ErrConfiguration, typ)
	}
	if cfg.Outputs.CTable != "" && !layout.HasHorizontal() {
		return nil, fmt.Errorf("%w: a ctable output needs a horizontal layout", griderr.ErrConfiguration)
	}
	outputs := cfg.Outputs
	seen := make(map[string]bool)
	for _, path := range []*string{&outputs.CTable, &outputs.GeoTIFF, &outputs.PreviewPNG, &outputs.ResidualsHTML} {
		if *path == "" {
			continue
		}
		if cfg.OutputDir != "" {
			resolved, err := security.ResolveWithin(cfg.OutputDir, *path)
			if err != nil {
				return nil, err
			}
			*path = resolved
		}
		clean := filepath.Clean(*path)
		if seen[clean] {
			return nil, fmt.Errorf("%w: two outputs share the path %s", griderr.ErrConfiguration, clean)
		}
		seen[clean] = true
	}
	return &plan{model: m, geom: *cfg.Geometry, typ: typ, layout: layout, outputs: outputs}, nil
}

// Run executes the job. A failure is wrapped in a griderr.StageError naming
// the stage, and no output file is left behind.
func (j *Job) Run(ctx context.Context) (*Result, error) {
	p, err := j.plan()
	if err != nil {
		return nil, err
	}
	if j.FS == nil {
		j.FS = fsutil.OSFileSystem{}
	}
	if j.Clock == nil {
		j.Clock = timeutil.RealClock{}
	}

	var run *store.Run
	if j.Runs != nil {
		run = &store.Run{
			ConfigPath:  j.ConfigPath,
			K:           p.model.K,
			C:           p.model.C,
			Sn:          p.model.Sn,
			OutputType:  p.typ.String(),
			Layout:      p.layout.String(),
			CreatedAtNs: j.Clock.Now().UnixNano(),
		}
		if err := j.Runs.InsertRun(run); err != nil {
			monitoring.Logf("[GridJob] failed to record run: %v", err)
			run = nil
		}
	}

	start := j.Clock.Now()
	res, stage, err := j.execute(ctx, p, run)
	if run != nil {
		if res != nil {
			run.PointCount = res.Points
			run.Outputs = res.Outputs
		}
		if ferr := j.Runs.Finish(run, string(stage), err); ferr != nil {
			monitoring.Logf("[GridJob] failed to finish run %s: %v", run.RunID, ferr)
		}
	}
	if err != nil {
		monitoring.Logf("[GridJob] %s failed after %v: %v", stage, j.Clock.Since(start).Round(time.Millisecond), err)
		return nil, griderr.AtStage(stage, err)
	}
	if run != nil {
		res.RunID = run.RunID
	}
	monitoring.Logf("[GridJob] wrote %d output(s) in %v", len(res.Outputs), j.Clock.Since(start).Round(time.Millisecond))
	return res, nil
}

func (j *Job) execute(ctx context.Context, p *plan, run *store.Run) (*Result, griderr.Stage, error) {
	res := &Result{}

	// ingestion
	if err := ctx.Err(); err != nil {
		return nil, griderr.StageIngestion, err
	}
	snap, removed, err := j.ingest()
	if err != nil {
		return nil, griderr.StageIngestion, err
	}
	res.Points, res.Removed = snap.Len(), removed
	res.EpochSpan = snap.MeanEpochSpan()
	monitoring.Logf("[GridJob] %d control points (%d incomplete dropped)", snap.Len(), removed)
	if p.typ == geotag.Velocity && !(math.Abs(res.EpochSpan) >= minEpochSpan) {
		return res, griderr.StageIngestion, fmt.Errorf("%w: velocity needs distinct source and target epochs, mean span is %g years",
			griderr.ErrDomain, res.EpochSpan)
	}

	// estimation
	if err := ctx.Err(); err != nil {
		return res, griderr.StageEstimation, err
	}
	if p.layout.HasHorizontal() {
		res.Horizontal, err = lsc.NewEstimator(p.model).Estimate(snap)
		if err != nil {
			return res, griderr.StageEstimation, err
		}
	}
	if p.layout.HasVertical() {
		res.Vertical, err = lsc.EstimateVertical(p.model, snap)
		if err != nil {
			return res, griderr.StageEstimation, err
		}
	}
	if run != nil {
		j.recordEstimation(run, snap, res)
	}

	// prediction
	if err := ctx.Err(); err != nil {
		return res, griderr.StagePrediction, err
	}
	bands, err := predict(p, res)
	if err != nil {
		return res, griderr.StagePrediction, err
	}

	// encoding
	if err := ctx.Err(); err != nil {
		return res, griderr.StageEncoding, err
	}
	outs, err := j.encode(p, bands, res)
	if err != nil {
		return res, griderr.StageEncoding, err
	}
	if err := outs.commit(j.FS); err != nil {
		return res, griderr.StageEncoding, err
	}
	res.Outputs = outs.paths()
	return res, "", nil
}

func (j *Job) ingest() (*controlpoint.Snapshot, int, error) {
	set := controlpoint.NewSet()
	if _, err := set.LoadSource(j.FS, j.Config.SourceFile); err != nil {
		return nil, 0, err
	}
	if _, err := set.LoadTarget(j.FS, j.Config.TargetFile); err != nil {
		return nil, 0, err
	}
	removed := set.RemoveIncomplete()
	if set.Len() == 0 {
		return nil, removed, fmt.Errorf("%w: no control point appears in both source and target", griderr.ErrFormat)
	}
	return set.Snapshot(), removed, nil
}

// predicted holds the raw predicted bands. Horizontal bands are radians,
// east positive; the vertical band is metres.
type predicted struct {
	east, north, up *grid.Band
}

func predict(p *plan, res *Result) (*predicted, error) {
	var out predicted
	if res.Horizontal != nil {
		pred, err := lsc.NewPredictor(res.Horizontal)
		if err != nil {
			return nil, err
		}
		out.east, out.north, err = pred.Populate(p.geom)
		if err != nil {
			return nil, err
		}
	}
	if res.Vertical != nil {
		var err error
		out.up, err = res.Vertical.Populate(p.geom)
		if err != nil {
			return nil, err
		}
	}
	return &out, nil
}

// minEpochSpan is the smallest mean epoch span, in years, that velocity
// bands are derived from.
const minEpochSpan = 1e-6

// tiffBands orders the predicted bands the way the output type lays them
// out: latitude then west-positive longitude offsets for horizontal
// offsets, east/north/up millimetres per year for velocities over a mean
// epoch span of years.
func tiffBands(p *plan, b *predicted, years float64) []*grid.Band {
	switch p.typ {
	case geotag.HorizontalOffset:
		return []*grid.Band{b.north, b.east.Negated()}
	case geotag.VerticalOffsetGeographicToVertical, geotag.VerticalOffsetVerticalToVertical:
		return []*grid.Band{b.up}
	case geotag.Velocity:
		var out []*grid.Band
		if b.east != nil {
			e, n := horizontalMillimetresPerYear(p.geom, b.east, b.north, years)
			out = append(out, e, n)
		}
		if b.up != nil {
			out = append(out, b.up.Map(func(v float32) float32 { return float32(float64(v) * 1000 / years) }))
		}
		return out
	}
	return nil
}

// horizontalMillimetresPerYear converts radian offsets accumulated over
// years to east/north millimetres per year on the sphere.
func horizontalMillimetresPerYear(g grid.Geometry, east, north *grid.Band, years float64) (*grid.Band, *grid.Band) {
	e := grid.NewBand(g.Rows, g.Cols)
	n := grid.NewBand(g.Rows, g.Cols)
	scale := controlpoint.EarthRadius * 1000 / years
	for br := 0; br < g.Rows; br++ {
		cosLat := math.Cos(g.LatAt(g.BandRow(br)) * math.Pi / 180)
		for c := 0; c < g.Cols; c++ {
			if ce := east.At(br, c); ce.Valid {
				e.Set(br, c, grid.Value(float32(float64(ce.Value)*scale*cosLat)))
			}
			if cn := north.At(br, c); cn.Valid {
				n.Set(br, c, grid.Value(float32(float64(cn.Value)*scale)))
			}
		}
	}
	return e, n
}

func (j *Job) recordEstimation(run *store.Run, snap *controlpoint.Snapshot, res *Result) {
	type helmertRecord struct {
		Params     *lsc.Params `json:"params,omitempty"`
		Iterations int         `json:"iterations,omitempty"`
		Converged  bool        `json:"converged,omitempty"`
		S0         float64     `json:"s0,omitempty"`
		Trend      *float64    `json:"vertical_trend,omitempty"`
		VerticalS0 float64     `json:"vertical_s0,omitempty"`
	}
	var rec helmertRecord
	points := make([]store.RunPoint, snap.Len())
	for i := range points {
		cp := snap.At(i)
		points[i] = store.RunPoint{
			Index:        i,
			Name:         cp.Name,
			SourceLon:    cp.Source.Lon,
			SourceLat:    cp.Source.Lat,
			SourceHeight: cp.Source.Height,
			TargetLon:    cp.Target.Lon,
			TargetLat:    cp.Target.Lat,
			TargetHeight: cp.Target.Height,
			Epoch:        cp.Target.Epoch,
		}
	}
	if h := res.Horizontal; h != nil {
		params := h.Params
		rec.Params, rec.Iterations, rec.Converged, rec.S0 = &params, h.Iterations, h.Converged, h.S0
		for i, r := range h.Residuals {
			east, north := r.Metres(h.MeanLat)
			points[i].ResidualEastM, points[i].ResidualNorthM = &east, &north
		}
		run.Summary = h.Summary()
	}
	if v := res.Vertical; v != nil {
		trend := v.Trend
		rec.Trend, rec.VerticalS0 = &trend, v.S0
	}
	if data, err := json.Marshal(rec); err == nil {
		run.HelmertJSON = data
	}
	if err := j.Runs.InsertPoints(run.RunID, points); err != nil {
		monitoring.Logf("[GridJob] failed to record control points: %v", err)
	}
}
