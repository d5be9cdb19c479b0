// Package export renders extraction results as GeoJSON.
package export

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/citygml-footprints/internal/citygml"
)

const ContentType = "application/geo+json"

// FeatureCollection maps each building to a MultiPolygon feature, one polygon
// per footprint ring. Elevations are carried in properties only.
func FeatureCollection(res citygml.ProcessingResult) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, b := range res.Buildings {
		fc.Append(Feature(b))
	}
	if res.Bounds != nil && res.Bounds.IsSet() {
		fc.BBox = geojson.NewBBox(bound(*res.Bounds))
	}
	fc.ExtraMembers = geojson.Properties{"skipped": res.Skipped}
	if res.SourceReferenceSystem != "" {
		fc.ExtraMembers["sourceReferenceSystem"] = res.SourceReferenceSystem
	}
	return fc
}

func Feature(b citygml.BuildingRecord) *geojson.Feature {
	mp := make(orb.MultiPolygon, 0, len(b.Geometry))
	for _, r := range b.Geometry {
		ring := make(orb.Ring, len(r))
		for i, v := range r {
			ring[i] = orb.Point{v[0], v[1]}
		}
		mp = append(mp, orb.Polygon{ring})
	}

	f := geojson.NewFeature(mp)
	f.ID = b.ID
	a := b.Attributes
	f.Properties["height"] = a.Height
	f.Properties["floors"] = a.Floors
	f.Properties["yearBuilt"] = a.YearBuilt
	f.Properties["buildingType"] = a.BuildingType
	f.Properties["groundLevel"] = a.GroundLevel
	if a.RoofType != "" {
		f.Properties["roofType"] = a.RoofType
	}
	if a.Standard != "" {
		f.Properties["standard"] = a.Standard
	}
	if len(b.Defaulted) > 0 {
		f.Properties["defaulted"] = b.Defaulted
	}
	if b.H3Cell != "" {
		f.Properties["h3Cell"] = b.H3Cell
	}
	if b.Bounds != nil && b.Bounds.IsSet() {
		f.BBox = geojson.NewBBox(bound(*b.Bounds))
	}
	return f
}

func Marshal(res citygml.ProcessingResult) ([]byte, error) {
	if !res.Success {
		return nil, fmt.Errorf("cannot export failed result: %s", res.Error)
	}
	b, err := FeatureCollection(res).MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal geojson: %w", err)
	}
	return b, nil
}

func bound(b citygml.Bounds) orb.Bound {
	return orb.Bound{Min: orb.Point{b.West, b.South}, Max: orb.Point{b.East, b.North}}
}
