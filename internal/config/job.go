// Package config loads conversion job files.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/gridfiles/internal/fsutil"
	"github.com/banshee-data/gridfiles/internal/geotag"
	"github.com/banshee-data/gridfiles/internal/grid"
	"github.com/banshee-data/gridfiles/internal/griderr"
	"github.com/banshee-data/gridfiles/internal/lsc"
	"github.com/banshee-data/gridfiles/internal/raster"
)

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Defaults for fields left out of a job file.
const (
	DefaultK          = 1.0
	DefaultC          = 50000.0
	DefaultSn         = 0.01
	DefaultTileSize   = 256
	DefaultPadding    = "zero"
	DefaultOutputType = "HORIZONTAL_OFFSET"
	DefaultLayout     = "horizontal"
)

// Outputs lists the files a job writes. Empty paths are skipped.
type Outputs struct {
	CTable        string `json:"ctable,omitempty" yaml:"ctable,omitempty"`
	GeoTIFF       string `json:"geotiff,omitempty" yaml:"geotiff,omitempty"`
	PreviewPNG    string `json:"preview_png,omitempty" yaml:"preview_png,omitempty"`
	ResidualsHTML string `json:"residuals_html,omitempty" yaml:"residuals_html,omitempty"`
}

// JobConfig is the root of a conversion job file. Pointer fields are
// optional; the Get* accessors supply defaults.
type JobConfig struct {
	// Inputs
	SourceFile string `json:"source_file,omitempty" yaml:"source_file,omitempty"`
	TargetFile string `json:"target_file,omitempty" yaml:"target_file,omitempty"`

	// Collocation
	K  *float64 `json:"k,omitempty" yaml:"k,omitempty"`
	C  *float64 `json:"c,omitempty" yaml:"c,omitempty"`
	Sn *float64 `json:"sn,omitempty" yaml:"sn,omitempty"`

	// Grid
	Geometry   *grid.Geometry `json:"geometry,omitempty" yaml:"geometry,omitempty"`
	TileSize   *int           `json:"tile_size,omitempty" yaml:"tile_size,omitempty"`
	Padding    *string        `json:"padding,omitempty" yaml:"padding,omitempty"`
	OutputType *string        `json:"output_type,omitempty" yaml:"output_type,omitempty"`
	Layout     *string        `json:"layout,omitempty" yaml:"layout,omitempty"`

	// Reference systems
	CRS2D     geotag.CRS `json:"crs_2d,omitempty" yaml:"crs_2d,omitempty"`
	CRS3D     geotag.CRS `json:"crs_3d,omitempty" yaml:"crs_3d,omitempty"`
	SourceCRS geotag.CRS `json:"source_crs,omitempty" yaml:"source_crs,omitempty"`
	TargetCRS geotag.CRS `json:"target_crs,omitempty" yaml:"target_crs,omitempty"`

	// Descriptive tags
	AreaOfUse   string `json:"area_of_use,omitempty" yaml:"area_of_use,omitempty"`
	GridName    string `json:"grid_name,omitempty" yaml:"grid_name,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Email       string `json:"email,omitempty" yaml:"email,omitempty"`
	Make        string `json:"make,omitempty" yaml:"make,omitempty"`
	Copyright   string `json:"copyright,omitempty" yaml:"copyright,omitempty"`

	// OutputDir, when set, is the root every output path resolves under.
	OutputDir string  `json:"output_dir,omitempty" yaml:"output_dir,omitempty"`
	Outputs   Outputs `json:"outputs" yaml:"outputs"`
	Database  string  `json:"database,omitempty" yaml:"database,omitempty"`
}

// Load reads a job file from disk.
func Load(path string) (*JobConfig, error) {
	return LoadFS(fsutil.OSFileSystem{}, path)
}

// LoadFS reads a .json, .yaml or .yml job file of at most 1MB and
// validates it.
func LoadFS(fsys fsutil.FileSystem, path string) (*JobConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("%w: config file must have .json, .yaml or .yml extension, got %q",
			griderr.ErrConfiguration, ext)
	}

	info, err := fsys.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to stat config file: %v", griderr.ErrIO, err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("%w: config file too large: %d bytes (max %d)",
			griderr.ErrConfiguration, info.Size(), maxFileSize)
	}

	data, err := fsys.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", griderr.ErrIO, err)
	}

	cfg := &JobConfig{}
	if ext == ".json" {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(cfg)
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", griderr.ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the fields that are set.
func (c *JobConfig) Validate() error {
	if _, err := c.Model(); err != nil {
		return err
	}
	if c.Geometry == nil {
		return fmt.Errorf("%w: geometry is required", griderr.ErrConfiguration)
	}
	if err := c.Geometry.Validate(); err != nil {
		return err
	}
	if _, err := c.Tiler(); err != nil {
		return err
	}
	if _, err := c.GetOutputType(); err != nil {
		return err
	}
	if _, err := c.GetLayout(); err != nil {
		return err
	}
	if c.Outputs == (Outputs{}) {
		return fmt.Errorf("%w: no outputs configured", griderr.ErrConfiguration)
	}
	return nil
}

// GetK returns the covariance scale k or the default.
func (c *JobConfig) GetK() float64 {
	if c.K == nil {
		return DefaultK
	}
	return *c.K
}

// GetC returns the covariance length scale c in metres or the default.
func (c *JobConfig) GetC() float64 {
	if c.C == nil {
		return DefaultC
	}
	return *c.C
}

// GetSn returns the observation noise sn or the default.
func (c *JobConfig) GetSn() float64 {
	if c.Sn == nil {
		return DefaultSn
	}
	return *c.Sn
}

// Model returns the validated covariance model.
func (c *JobConfig) Model() (lsc.Model, error) {
	m := lsc.Model{K: c.GetK(), C: c.GetC(), Sn: c.GetSn()}
	if err := m.Validate(); err != nil {
		return lsc.Model{}, err
	}
	return m, nil
}

// GetTileSize returns the tile edge or the default.
func (c *JobConfig) GetTileSize() int {
	if c.TileSize == nil {
		return DefaultTileSize
	}
	return *c.TileSize
}

// GetPadding returns the border tile padding or the default.
func (c *JobConfig) GetPadding() (raster.Padding, error) {
	if c.Padding == nil || *c.Padding == "" {
		return raster.ParsePadding(DefaultPadding)
	}
	return raster.ParsePadding(*c.Padding)
}

// Tiler returns a tiler for the configured size and padding.
func (c *JobConfig) Tiler() (*raster.Tiler, error) {
	p, err := c.GetPadding()
	if err != nil {
		return nil, err
	}
	return raster.NewTiler(c.GetTileSize(), p)
}

// GetOutputType returns the output type or the default.
func (c *JobConfig) GetOutputType() (geotag.OutputType, error) {
	if c.OutputType == nil || *c.OutputType == "" {
		return geotag.ParseOutputType(DefaultOutputType)
	}
	return geotag.ParseOutputType(*c.OutputType)
}

// GetLayout returns the band layout or the default.
func (c *JobConfig) GetLayout() (grid.Layout, error) {
	if c.Layout == nil || *c.Layout == "" {
		return grid.ParseLayout(DefaultLayout)
	}
	return grid.ParseLayout(*c.Layout)
}
