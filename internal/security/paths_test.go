package security

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gridfiles/internal/griderr"
)

func TestResolveWithin(t *testing.T) {
	tmpDir := t.TempDir()
	outDir := filepath.Join(tmpDir, "out")
	other := filepath.Join(tmpDir, "other")
	require.NoError(t, os.MkdirAll(outDir, 0755))
	require.NoError(t, os.MkdirAll(other, 0755))
	require.NoError(t, os.Symlink(other, filepath.Join(outDir, "evil-symlink")))

	tests := []struct {
		name    string
		dir     string
		path    string
		want    string
		wantErr bool
	}{
		{"relative", outDir, "grid.tif", filepath.Join(outDir, "grid.tif"), false},
		{"nested", outDir, "2026/grid.ct2", filepath.Join(outDir, "2026", "grid.ct2"), false},
		{"absolute inside", outDir, filepath.Join(outDir, "a.png"), filepath.Join(outDir, "a.png"), false},
		{"dot dot", outDir, "../grid.tif", "", true},
		{"absolute outside", outDir, "/etc/passwd", "", true},
		{"through symlink", outDir, "evil-symlink/grid.tif", "", true},
		{"missing dir is lexical", filepath.Join(tmpDir, "new"), "x/y.tif", filepath.Join(tmpDir, "new", "x", "y.tif"), false},
		{"empty", outDir, "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveWithin(tt.dir, tt.path)
			if tt.wantErr {
				assert.True(t, errors.Is(err, griderr.ErrConfiguration), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveWithin_RelativeDir(t *testing.T) {
	got, err := ResolveWithin("out", "grid.tif")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("out", "grid.tif"), got)

	_, err = ResolveWithin("out", "../../grid.tif")
	assert.Error(t, err)
}
