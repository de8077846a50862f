package controlpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSet_MergeByName(t *testing.T) {
	t.Parallel()

	s := NewSet()
	s.MergeSource("A", Position{Lon: 10, Lat: 60})
	s.MergeSource("B", Position{Lon: 11, Lat: 61})
	s.MergeTarget("A", Position{Lon: 10.001, Lat: 60.001})
	s.MergeTarget("C", Position{Lon: 12, Lat: 62})

	require.Equal(t, 3, s.Len())
	snap := s.Snapshot()

	a := snap.At(0)
	assert.Equal(t, "A", a.Name)
	assert.True(t, a.Complete())
	assert.Equal(t, 10.001, a.Target.Lon)

	assert.False(t, snap.At(1).Complete())
	assert.False(t, snap.Complete())

	removed := s.RemoveIncomplete()
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, s.Len())
	assert.True(t, s.Snapshot().Complete())
}

func TestSnapshot_IsolatedFromSet(t *testing.T) {
	t.Parallel()

	s := NewSet()
	s.MergeSource("A", Position{Lon: 10, Lat: 60})
	snap := s.Snapshot()
	v := snap.Version()

	s.MergeSource("A", Position{Lon: 99, Lat: 9})
	s.MergeSource("B", Position{Lon: 1, Lat: 1})

	assert.Equal(t, 1, snap.Len())
	assert.Equal(t, 10.0, snap.At(0).Source.Lon)
	assert.Equal(t, v, snap.Version())
	assert.Greater(t, s.Version(), v)

	// Copies handed out by At must not alias the snapshot.
	cp := snap.At(0)
	cp.Source.Lon = -1
	assert.Equal(t, 10.0, snap.At(0).Source.Lon)
}

func TestSnapshot_MeanSourceLatAndAnchor(t *testing.T) {
	t.Parallel()

	snap := NewSnapshot([]ControlPoint{
		{Name: "A", Source: &Position{Lat: 58}},
		{Name: "B", Source: &Position{Lat: 62}},
		{Name: "C", Target: &Position{Lat: 70, Lon: 5}},
	})
	assert.InDelta(t, 60.0, snap.MeanSourceLat(), 1e-12)

	pos, ok := snap.Anchor(2)
	assert.True(t, ok)
	assert.Equal(t, 5.0, pos.Lon)

	assert.Equal(t, 0.0, NewSnapshot(nil).MeanSourceLat())
}

func TestSnapshot_MeanEpochSpan(t *testing.T) {
	t.Parallel()

	snap := NewSnapshot([]ControlPoint{
		{Name: "A", Source: &Position{Epoch: 2020}, Target: &Position{Epoch: 2022}},
		{Name: "B", Source: &Position{Epoch: 2020.5}, Target: &Position{Epoch: 2023.5}},
		{Name: "C", Source: &Position{Epoch: 1990}},
	})
	assert.InDelta(t, 2.5, snap.MeanEpochSpan(), 1e-12)
	assert.Equal(t, 0.0, NewSnapshot(nil).MeanEpochSpan())
}

func TestDistance(t *testing.T) {
	t.Parallel()

	a := Position{Lat: 0, Lon: 0}
	b := Position{Lat: 0, Lon: 1}
	// One degree of arc on the mean sphere.
	assert.InDelta(t, 111195.08, Distance(a, b), 0.5)
	assert.InDelta(t, 0.0, Distance(a, a), 1e-9)
	assert.InDelta(t, Distance(a, b), DistanceTo(a, 0, 1), 1e-9)
}
