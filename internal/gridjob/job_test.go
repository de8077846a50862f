package gridjob

import (
	"context"
	"errors"
	"math"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gridfiles/internal/config"
	"github.com/banshee-data/gridfiles/internal/controlpoint"
	"github.com/banshee-data/gridfiles/internal/ctable"
	"github.com/banshee-data/gridfiles/internal/fsutil"
	"github.com/banshee-data/gridfiles/internal/geotag"
	"github.com/banshee-data/gridfiles/internal/grid"
	"github.com/banshee-data/gridfiles/internal/griderr"
	"github.com/banshee-data/gridfiles/internal/monitoring"
	"github.com/banshee-data/gridfiles/internal/raster"
	"github.com/banshee-data/gridfiles/internal/store"
	"github.com/banshee-data/gridfiles/internal/timeutil"
)

func init() {
	monitoring.SetLogger(nil)
}

const sourceFile = `# name lon lat h epoch
A 9.0 59.0 100.0 2020.0
B 11.0 60.0 200.0 2020.0
C 10.0 61.0 150.0 2020.0
D 10.5 59.5 50.0 2020.0
X 12.0 62.0 10.0 2020.0
`

const targetFile = `A 9.002 59.001 101.0 2020.0
B 11.002 60.0011 201.2 2020.0
C 10.002 61.001 151.0 2020.0
D 10.502 59.501 51.0 2020.0
`

// targetTwoYearsLater observes the target coordinates at epoch 2022.
var targetTwoYearsLater = strings.ReplaceAll(targetFile, "2020.0", "2022.0")

type fakeRuns struct {
	runs     []*store.Run
	points   map[string][]store.RunPoint
	finished map[string]string
}

func newFakeRuns() *fakeRuns {
	return &fakeRuns{points: map[string][]store.RunPoint{}, finished: map[string]string{}}
}

func (f *fakeRuns) InsertRun(r *store.Run) error {
	r.RunID = "run-1"
	f.runs = append(f.runs, r)
	return nil
}

func (f *fakeRuns) InsertPoints(runID string, pts []store.RunPoint) error {
	f.points[runID] = pts
	return nil
}

func (f *fakeRuns) Finish(r *store.Run, stage string, err error) error {
	if err != nil {
		r.Status = store.StatusFailed
	} else {
		r.Status = store.StatusSucceeded
	}
	f.finished[r.RunID] = stage
	return nil
}

func ptr[T any](v T) *T { return &v }

func testJob(t *testing.T, mutate func(*config.JobConfig)) (*Job, *fsutil.MemoryFileSystem, *fakeRuns) {
	t.Helper()
	fsys := fsutil.NewMemoryFileSystem()
	require.NoError(t, fsys.WriteFile("in/src.txt", []byte(sourceFile), 0644))
	require.NoError(t, fsys.WriteFile("in/dst.txt", []byte(targetFile), 0644))

	cfg := &config.JobConfig{
		SourceFile: "in/src.txt",
		TargetFile: "in/dst.txt",
		Sn:         ptr(0.0),
		Geometry:   &grid.Geometry{LowerLeftLat: 59, LowerLeftLon: 9, DeltaLat: 0.5, DeltaLon: 0.5, Rows: 5, Cols: 5},
		TileSize:   ptr(16),
		GridName:   "test_grid",
		Email:      "geodesy@example.org",
		CRS2D:      geotag.CRS{Authority: "EPSG", Code: 4258},
		SourceCRS:  geotag.CRS{Authority: "EPSG", Code: 4258},
		TargetCRS:  geotag.CRS{Authority: "EPSG", Code: 4326},
		Outputs: config.Outputs{
			CTable:  "out/grid.ct2",
			GeoTIFF: "out/grid.tif",
		},
	}
	if mutate != nil {
		mutate(cfg)
	}
	runs := newFakeRuns()
	clock := timeutil.NewMockClock(time.Date(2026, 5, 17, 8, 30, 0, 0, time.UTC))
	return &Job{Config: cfg, ConfigPath: "job.json", FS: fsys, Clock: clock, Runs: runs}, fsys, runs
}

func TestRun_HorizontalOffset(t *testing.T) {
	job, fsys, runs := testJob(t, func(c *config.JobConfig) {
		c.Outputs.ResidualsHTML = "out/residuals.html"
	})

	res, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, 4, res.Points)
	assert.Equal(t, 1, res.Removed)
	assert.Equal(t, []string{"out/grid.ct2", "out/grid.tif", "out/residuals.html"}, res.Outputs)
	assert.Equal(t, []string{"in/dst.txt", "in/src.txt", "out/grid.ct2", "out/grid.tif", "out/residuals.html"}, fsys.Files())

	// GeoTIFF: latitude offset, then west-positive longitude offset.
	tif, err := raster.Read(fsys, "out/grid.tif")
	require.NoError(t, err)
	require.Len(t, tif.Grid.Bands, 2)
	assert.Equal(t, *job.Config.Geometry, tif.Grid.Geometry)
	assert.Equal(t, "grid.tif", tif.Metadata.DocumentName)
	assert.Equal(t, "2026:05:17 08:30:00", tif.Metadata.DateTime)
	assert.Equal(t, "geodesy@example.org", tif.Metadata.Artist)
	assert.Contains(t, tif.Metadata.ImageDescription, "Helmert:")
	assert.Equal(t, "nan", tif.Metadata.GDALNoData)

	keys, err := geotag.ParseGeoKeys(tif.Metadata.GeoKeys)
	require.NoError(t, err)
	assert.Equal(t, 4258, keys.Code2D)

	md, err := geotag.ParseMetadata(tif.Metadata.GDALMetadata)
	require.NoError(t, err)
	desc, err := geotag.DescriptorFromMetadata(md)
	require.NoError(t, err)
	assert.Equal(t, geotag.HorizontalOffset, desc.Type)
	assert.Equal(t, 4326, desc.Target.Code)
	require.Len(t, desc.Bands, 2)
	assert.Equal(t, "west", desc.Bands[1].PositiveValue)

	// CTABLE carries the same offsets, east positive after decoding.
	ct, err := ctable.Read(fsys, "out/grid.ct2")
	require.NoError(t, err)
	assert.Equal(t, "test_grid", ct.Description)
	for i := range ct.North.Cells {
		assert.Equal(t, ct.North.Cells[i], tif.Grid.Bands[0].Cells[i])
		e, w := ct.East.Cells[i], tif.Grid.Bands[1].Cells[i]
		assert.Equal(t, e.Valid, w.Valid)
		if e.Valid {
			assert.Equal(t, e.Value, -w.Value)
		}
	}

	// The node on control point A (south-west corner) moves by its offset.
	north := ct.North.At(4, 0)
	require.True(t, north.Valid)
	assert.InDelta(t, 0.001*math.Pi/180, float64(north.Value), 1e-9)

	html, err := fsys.ReadFile("out/residuals.html")
	require.NoError(t, err)
	assert.Contains(t, string(html), "test_grid")

	require.Len(t, runs.runs, 1)
	assert.Equal(t, store.StatusSucceeded, runs.runs[0].Status)
	assert.Equal(t, 4, runs.runs[0].PointCount)
	assert.Contains(t, string(runs.runs[0].HelmertJSON), `"params"`)
	require.Len(t, runs.points["run-1"], 4)
	assert.NotNil(t, runs.points["run-1"][0].ResidualEastM)
}

func TestRun_VerticalAndVelocity(t *testing.T) {
	tests := []struct {
		name   string
		typ    string
		layout string
		bands  int
		descs  []string
	}{
		{"vertical separation", "vsep", "height", 1, []string{"vertical_offset"}},
		{"geoid", "VERTICAL_OFFSET_GEOGRAPHIC_TO_VERTICAL", "height", 1, []string{"geoid_undulation"}},
		{"velocity 3d", "vel", "full3d", 3, []string{"east_velocity", "north_velocity", "up_velocity"}},
		{"velocity 2d", "vel", "horizontal", 2, []string{"east_velocity", "north_velocity"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job, fsys, _ := testJob(t, func(c *config.JobConfig) {
				c.OutputType = ptr(tt.typ)
				c.Layout = ptr(tt.layout)
				c.Outputs = config.Outputs{GeoTIFF: "grid.tif", PreviewPNG: "grid.png"}
			})
			require.NoError(t, fsys.WriteFile("in/dst.txt", []byte(targetTwoYearsLater), 0644))
			res, err := job.Run(context.Background())
			require.NoError(t, err)
			require.Len(t, res.Grid.Bands, tt.bands)

			tif, err := raster.Read(fsys, "grid.tif")
			require.NoError(t, err)
			assert.Len(t, tif.Grid.Bands, tt.bands)

			md, err := geotag.ParseMetadata(tif.Metadata.GDALMetadata)
			require.NoError(t, err)
			desc, err := geotag.DescriptorFromMetadata(md)
			require.NoError(t, err)
			var got []string
			for _, b := range desc.Bands {
				got = append(got, b.Description)
			}
			assert.Equal(t, tt.descs, got)
			assert.True(t, fsys.Exists("grid.png"))
		})
	}
}

func TestRun_VelocityPerYear(t *testing.T) {
	job, fsys, _ := testJob(t, func(c *config.JobConfig) {
		c.OutputType = ptr("vel")
		c.Layout = ptr("full3d")
		c.Outputs = config.Outputs{GeoTIFF: "grid.tif"}
	})
	require.NoError(t, fsys.WriteFile("in/dst.txt", []byte(targetTwoYearsLater), 0644))

	res, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 2.0, res.EpochSpan, 1e-12)

	// Point A moves 0.001 degrees north and 1 m up over two years.
	north := res.Grid.Bands[1].At(4, 0)
	require.True(t, north.Valid)
	wantNorth := 0.001 * math.Pi / 180 * controlpoint.EarthRadius * 1000 / 2
	assert.InEpsilon(t, wantNorth, float64(north.Value), 1e-5)

	up := res.Grid.Bands[2].At(4, 0)
	require.True(t, up.Valid)
	assert.InDelta(t, 500.0, float64(up.Value), 0.1)
}

func TestRun_VelocityNeedsEpochSpan(t *testing.T) {
	job, fsys, runs := testJob(t, func(c *config.JobConfig) {
		c.OutputType = ptr("vel")
		c.Outputs = config.Outputs{GeoTIFF: "grid.tif"}
	})

	_, err := job.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, griderr.StageIngestion, griderr.StageOf(err))
	assert.True(t, errors.Is(err, griderr.ErrDomain))
	assert.False(t, fsys.Exists("grid.tif"))
	assert.Equal(t, "ingestion", runs.finished["run-1"])
}

func TestRun_VerticalTrendAtControlPoint(t *testing.T) {
	job, _, _ := testJob(t, func(c *config.JobConfig) {
		c.OutputType = ptr("vsep")
		c.Layout = ptr("height")
		c.Outputs = config.Outputs{GeoTIFF: "grid.tif"}
	})
	res, err := job.Run(context.Background())
	require.NoError(t, err)

	// Point A sits on band row 4, column 0, with dh = 1 and no noise.
	a := res.Grid.Bands[0].At(4, 0)
	require.True(t, a.Valid)
	assert.InDelta(t, 1.0, float64(a.Value), 1e-4)
}

func TestRun_IngestionFailure(t *testing.T) {
	job, fsys, runs := testJob(t, func(c *config.JobConfig) {
		c.TargetFile = "in/missing.txt"
	})
	_, err := job.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, griderr.StageIngestion, griderr.StageOf(err))
	assert.True(t, errors.Is(err, griderr.ErrIO))
	assert.Equal(t, []string{"in/dst.txt", "in/src.txt"}, fsys.Files())
	assert.Equal(t, "ingestion", runs.finished["run-1"])
	assert.Equal(t, store.StatusFailed, runs.runs[0].Status)
}

func TestRun_NoCommonPoints(t *testing.T) {
	job, fsys, _ := testJob(t, nil)
	require.NoError(t, fsys.WriteFile("in/dst.txt", []byte("Z 1 2 3 2020\n"), 0644))
	_, err := job.Run(context.Background())
	assert.Equal(t, griderr.StageIngestion, griderr.StageOf(err))
	assert.True(t, errors.Is(err, griderr.ErrFormat))
}

func TestRun_EstimationFailure(t *testing.T) {
	job, fsys, _ := testJob(t, nil)
	require.NoError(t, fsys.WriteFile("in/dst.txt", []byte("A 9.1 59.1 100 2020\n"), 0644))

	_, err := job.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, griderr.StageEstimation, griderr.StageOf(err))
	assert.True(t, errors.Is(err, griderr.ErrNumerical))
	assert.False(t, fsys.Exists("out/grid.ct2"))
}

func TestRun_EncodingFailureLeavesNoOutputs(t *testing.T) {
	// A single-row grid encodes fine as ctable but cannot be previewed.
	job, fsys, _ := testJob(t, func(c *config.JobConfig) {
		c.Geometry.Rows = 1
		c.Outputs.PreviewPNG = "out/grid.png"
	})
	_, err := job.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, griderr.StageEncoding, griderr.StageOf(err))
	for _, f := range fsys.Files() {
		assert.False(t, strings.HasPrefix(f, "out/"), f)
	}
}

func TestRun_OutputDir(t *testing.T) {
	job, fsys, _ := testJob(t, func(c *config.JobConfig) {
		c.OutputDir = "results"
		c.Outputs = config.Outputs{GeoTIFF: "grid.tif"}
	})
	res, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"results/grid.tif"}, res.Outputs)
	assert.True(t, fsys.Exists("results/grid.tif"))
}

func TestRun_Cancelled(t *testing.T) {
	job, _, _ := testJob(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := job.Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, griderr.StageIngestion, griderr.StageOf(err))
}

func TestPlan_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.JobConfig)
	}{
		{"no config", nil},
		{"geocentric", func(c *config.JobConfig) { c.OutputType = ptr("goffset") }},
		{"deformation", func(c *config.JobConfig) { c.OutputType = ptr("deform") }},
		{"hoffset on height", func(c *config.JobConfig) { c.Layout = ptr("height"); c.Outputs.CTable = "" }},
		{"vsep on horizontal", func(c *config.JobConfig) { c.OutputType = ptr("vsep"); c.Outputs.CTable = "" }},
		{"ctable without horizontal", func(c *config.JobConfig) { c.OutputType = ptr("vsep"); c.Layout = ptr("height") }},
		{"missing inputs", func(c *config.JobConfig) { c.SourceFile = "" }},
		{"output escapes dir", func(c *config.JobConfig) { c.OutputDir = "out"; c.Outputs.GeoTIFF = "../grid.tif" }},
		{"shared output path", func(c *config.JobConfig) { c.Outputs.CTable = "out/grid.bin"; c.Outputs.GeoTIFF = "out/./grid.bin" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job, _, runs := testJob(t, tt.mutate)
			if tt.mutate == nil {
				job.Config = nil
			}
			_, err := job.Run(context.Background())
			assert.True(t, errors.Is(err, griderr.ErrConfiguration), "got %v", err)
			assert.Equal(t, griderr.Stage(""), griderr.StageOf(err))
			assert.Empty(t, runs.runs)
		})
	}
}

func TestOutputSet_CommitFailureCleansUp(t *testing.T) {
	fsys := &failingRename{MemoryFileSystem: fsutil.NewMemoryFileSystem(), fail: "b.bin"}
	outs := newOutputSet()
	outs.add("a.bin", []byte{1})
	outs.add("b.bin", []byte{2})

	err := outs.commit(fsys)
	assert.True(t, errors.Is(err, griderr.ErrIO))
	assert.Equal(t, []string{"a.bin"}, fsys.Files())
}

func TestOutputSet_PartialWriteCleansUp(t *testing.T) {
	fsys := &failingWrite{MemoryFileSystem: fsutil.NewMemoryFileSystem(), fail: "b.bin.tmp"}
	outs := newOutputSet()
	outs.add("a.bin", []byte{1})
	outs.add("b.bin", []byte{2, 3, 4})

	err := outs.commit(fsys)
	assert.True(t, errors.Is(err, griderr.ErrIO))
	assert.Empty(t, fsys.Files())
}

// failingWrite writes the first byte of fail and then reports an error.
type failingWrite struct {
	*fsutil.MemoryFileSystem
	fail string
}

func (f *failingWrite) WriteFile(name string, data []byte, perm os.FileMode) error {
	if name == f.fail {
		if err := f.MemoryFileSystem.WriteFile(name, data[:1], perm); err != nil {
			return err
		}
		return errors.New("disk full")
	}
	return f.MemoryFileSystem.WriteFile(name, data, perm)
}

type failingRename struct {
	*fsutil.MemoryFileSystem
	fail string
}

func (f *failingRename) Rename(oldpath, newpath string) error {
	if newpath == f.fail {
		return errors.New("disk full")
	}
	return f.MemoryFileSystem.Rename(oldpath, newpath)
}
