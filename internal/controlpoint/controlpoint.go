// Package controlpoint holds paired source/target control points and the
// immutable snapshots handed to the collocation engine.
package controlpoint

import (
	"github.com/golang/geo/s2"
)

// EarthRadius is the mean Earth radius in metres used for geodesic distance.
const EarthRadius = 6371008.8

// Position is one side of a control point. Angles are decimal degrees,
// heights are metres, epoch is a decimal year.
type Position struct {
	Lon    float64 `json:"lon"`
	Lat    float64 `json:"lat"`
	Height float64 `json:"height"`
	Epoch  float64 `json:"epoch"`
}

// LatLng converts the position to an s2 point on the sphere.
func (p Position) LatLng() s2.LatLng {
	return s2.LatLngFromDegrees(p.Lat, p.Lon)
}

// ControlPoint pairs the source and target coordinates of a named mark.
// A nil side means the mark has not been observed in that system.
type ControlPoint struct {
	Name   string    `json:"name"`
	Source *Position `json:"source,omitempty"`
	Target *Position `json:"target,omitempty"`
}

// Complete reports whether both sides are set.
func (p ControlPoint) Complete() bool {
	return p.Source != nil && p.Target != nil
}

// Distance returns the great-circle distance in metres between two
// positions.
func Distance(a, b Position) float64 {
	return a.LatLng().Distance(b.LatLng()).Radians() * EarthRadius
}

// DistanceTo returns the great-circle distance in metres from p to the
// given point.
func DistanceTo(p Position, lat, lon float64) float64 {
	return p.LatLng().Distance(s2.LatLngFromDegrees(lat, lon)).Radians() * EarthRadius
}
