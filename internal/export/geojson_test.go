package export

import (
	"encoding/json"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/citygml-footprints/internal/citygml"
)

func sample() citygml.ProcessingResult {
	ring := citygml.Ring{{16.37, 48.20, 171}, {16.38, 48.20, 171}, {16.38, 48.21, 171}, {16.37, 48.20, 171}}
	b := citygml.NewBounds()
	b.Extend(16.37, 48.20)
	b.Extend(16.38, 48.21)
	return citygml.ProcessingResult{
		Success: true,
		Buildings: []citygml.BuildingRecord{{
			ID:         "BLDG_1",
			Attributes: citygml.Attributes{Height: 12.5, Floors: 4, YearBuilt: 1958, BuildingType: "MULTI_RES", GroundLevel: 171, Standard: "MULTI_RES_III"},
			Geometry:   []citygml.Ring{ring, ring},
			Defaulted:  []string{"yearBuilt"},
			H3Cell:     "891e15b7067ffff",
		}},
		Bounds:                &b,
		SourceReferenceSystem: "EPSG:31256",
		Skipped:               1,
	}
}

func TestMarshal_RoundTripsThroughOrb(t *testing.T) {
	data, err := Marshal(sample())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(fc.Features) != 1 {
		t.Fatalf("features=%d want 1", len(fc.Features))
	}
	f := fc.Features[0]
	if f.ID != "BLDG_1" {
		t.Fatalf("id=%v", f.ID)
	}
	mp, ok := f.Geometry.(orb.MultiPolygon)
	if !ok || len(mp) != 2 || len(mp[0][0]) != 4 {
		t.Fatalf("geometry=%#v", f.Geometry)
	}
	if got := f.Properties.MustFloat64("height"); got != 12.5 {
		t.Fatalf("height=%v", got)
	}
	if got := f.Properties.MustString("standard"); got != "MULTI_RES_III" {
		t.Fatalf("standard=%v", got)
	}
	if len(fc.BBox) != 4 || fc.BBox[0] != 16.37 || fc.BBox[3] != 48.21 {
		t.Fatalf("bbox=%v", fc.BBox)
	}
}

func TestMarshal_ExtraMembers(t *testing.T) {
	data, err := Marshal(sample())
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if raw["type"] != "FeatureCollection" || raw["sourceReferenceSystem"] != "EPSG:31256" || raw["skipped"] != float64(1) {
		t.Fatalf("unexpected members: %v", raw)
	}
}

func TestMarshal_RejectsFailure(t *testing.T) {
	if _, err := Marshal(citygml.ProcessingResult{Error: "boom"}); err == nil {
		t.Fatal("expected error for failed result")
	}
}

func TestFeatureCollection_EmptyResult(t *testing.T) {
	fc := FeatureCollection(citygml.ProcessingResult{Success: true})
	if len(fc.Features) != 0 || fc.BBox != nil {
		t.Fatalf("unexpected %+v", fc)
	}
}
