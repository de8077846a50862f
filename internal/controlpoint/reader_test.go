package controlpoint

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gridfiles/internal/fsutil"
	"github.com/banshee-data/gridfiles/internal/griderr"
	"github.com/banshee-data/gridfiles/internal/monitoring"
)

func TestParseRecords(t *testing.T) {
	monitoring.SetLogger(nil)

	input := strings.Join([]string{
		"# name lon lat h epoch",
		"P1 10.5 60.25 120.0 2020.5",
		"P2,11.0,61.0,10,2020.5",
		"P3\t12\t62\t0\t2021",
		"",
		"BAD x 62 0 2021",
	}, "\n")

	records, err := ParseRecords(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, Record{Name: "P1", Position: Position{Lon: 10.5, Lat: 60.25, Height: 120, Epoch: 2020.5}}, records[0])
	assert.Equal(t, "P3", records[2].Name)
}

func TestParseRecords_ShortLine(t *testing.T) {
	_, err := ParseRecords(strings.NewReader("P1 10 60\n"))
	assert.True(t, errors.Is(err, griderr.ErrFormat))
}

func TestSet_LoadSourceAndTarget(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, mfs.WriteFile("/src.txt", []byte("A 10 60 0 2020\nB 11 61 0 2020\n"), 0644))
	require.NoError(t, mfs.WriteFile("/dst.txt", []byte("B 11.1 61.1 1 2020\n"), 0644))

	s := NewSet()
	n, err := s.LoadSource(mfs, "/src.txt")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.LoadTarget(mfs, "/dst.txt")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	snap := s.Snapshot()
	assert.True(t, snap.At(1).Complete())
	assert.Equal(t, 11.1, snap.At(1).Target.Lon)

	_, err = s.LoadTarget(mfs, "/missing.txt")
	assert.True(t, errors.Is(err, griderr.ErrIO))
}
