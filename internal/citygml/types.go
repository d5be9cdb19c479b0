// Package citygml extracts normalized building records (footprint rings,
// derived attributes, geographic bounds) from CityGML and GML documents.
package citygml

import (
	"errors"
	"math"
)

var ErrNoContainer = errors.New("no CityModel container found")

// Vertex is (x, y, z) in the target reference system; lon/lat/elevation when
// the target is geographic.
type Vertex [3]float64

// Ring is a closed sequence of vertices: first and last are identical.
type Ring []Vertex

type Attributes struct {
	Height       float64 `json:"height"`
	Floors       int     `json:"floors"`
	YearBuilt    int     `json:"yearBuilt"`
	BuildingType string  `json:"buildingType"`
	GroundLevel  float64 `json:"groundLevel"`
	RoofType     string  `json:"roofType,omitempty"`
	Standard     string  `json:"standard,omitempty"`
}

type BuildingRecord struct {
	ID         string     `json:"id"`
	Attributes Attributes `json:"attributes"`
	Geometry   []Ring     `json:"geometry"`
	Bounds     *Bounds    `json:"bounds,omitempty"`
	// Defaulted lists the attribute fields that fell back to a default.
	Defaulted []string `json:"defaulted,omitempty"`
	H3Cell    string   `json:"h3Cell,omitempty"`
}

// Bounds accumulates geographic extremes. The zero-narrowed state (north -90,
// south 90, east -180, west 180) means nothing was seen.
type Bounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

func NewBounds() Bounds {
	return Bounds{North: -90, South: 90, East: -180, West: 180}
}

// Extend narrows b around a lon/lat pair. Values outside the geographic
// range (e.g. projected meters left by a failed reprojection) are ignored.
func (b *Bounds) Extend(lon, lat float64) {
	if math.IsNaN(lon) || math.IsNaN(lat) || lon < -180 || lon > 180 || lat < -90 || lat > 90 {
		return
	}
	b.North = math.Max(b.North, lat)
	b.South = math.Min(b.South, lat)
	b.East = math.Max(b.East, lon)
	b.West = math.Min(b.West, lon)
}

func (b *Bounds) Merge(o Bounds) {
	if !o.IsSet() {
		return
	}
	b.Extend(o.West, o.South)
	b.Extend(o.East, o.North)
}

func (b Bounds) IsSet() bool {
	return b.North >= b.South && b.East >= b.West
}

// Contains reports whether o lies within b.
func (b Bounds) Contains(o Bounds) bool {
	if !o.IsSet() {
		return true
	}
	return b.IsSet() && b.North >= o.North && b.South <= o.South && b.East >= o.East && b.West <= o.West
}

// ProcessingResult is the outcome for one document: either the (possibly
// empty) building list or a failure message, never both.
type ProcessingResult struct {
	Success               bool             `json:"success"`
	Buildings             []BuildingRecord `json:"buildings"`
	Bounds                *Bounds          `json:"bounds,omitempty"`
	SourceReferenceSystem string           `json:"sourceReferenceSystem,omitempty"`
	Skipped               int              `json:"skipped"`
	Error                 string           `json:"error,omitempty"`
}

func Failure(err error) ProcessingResult {
	msg := "unknown error"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return ProcessingResult{Success: false, Error: msg}
}

// Derived is a field value tagged with whether it came from the document or
// from a fallback.
type Derived[T any] struct {
	Value     T
	Defaulted bool
}

func found[T any](v T) Derived[T]    { return Derived[T]{Value: v} }
func fallback[T any](v T) Derived[T] { return Derived[T]{Value: v, Defaulted: true} }
