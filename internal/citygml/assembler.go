package citygml

import (
	"context"
	"log/slog"
	"math"

	"github.com/mohammed-shakir/citygml-footprints/internal/core/observability"
	"github.com/mohammed-shakir/citygml-footprints/internal/mapping"
)

// assembler builds one BuildingRecord per building element.
type assembler struct {
	geom  *geometryExtractor
	attrs *attributeExtractor
	table *mapping.Table
	log   *slog.Logger
}

// assemble returns false when the building has no identifier or no usable
// ring; such buildings are left out of the result.
func (a *assembler) assemble(ctx context.Context, el *Node) (BuildingRecord, bool) {
	id := el.Attr("id")
	if id == "" {
		a.log.WarnContext(ctx, "building without gml:id skipped")
		return BuildingRecord{}, false
	}

	rings := a.geom.extract(el)
	if len(rings) == 0 {
		a.log.WarnContext(ctx, "building has no usable footprint ring, skipped", "building_id", id)
		return BuildingRecord{}, false
	}

	x := a.attrs.extract(el)
	if x.groundLevel.Defaulted {
		// 2D sources pad z with 0, which says nothing about the terrain
		if z, ok := lowestZ(rings); ok && z != 0 {
			x.groundLevel = found(z)
		}
	}

	rec := BuildingRecord{
		ID:       id,
		Geometry: rings,
		Attributes: Attributes{
			Height:       x.height.Value,
			Floors:       x.floors.Value,
			YearBuilt:    x.yearBuilt.Value,
			BuildingType: x.buildingType.Value,
			GroundLevel:  x.groundLevel.Value,
			RoofType:     x.roofType.Value,
		},
	}
	rec.Attributes.Standard = a.table.Standard(rec.Attributes.BuildingType, rec.Attributes.YearBuilt)

	for _, d := range []struct {
		name      string
		defaulted bool
	}{
		{attrHeight, x.height.Defaulted},
		{attrFloors, x.floors.Defaulted},
		{attrYearBuilt, x.yearBuilt.Defaulted},
		{attrBuildingType, x.buildingType.Defaulted},
		{attrGroundLevel, x.groundLevel.Defaulted},
	} {
		if d.defaulted {
			rec.Defaulted = append(rec.Defaulted, d.name)
			observability.IncDefaulted(d.name)
		}
	}

	b := NewBounds()
	for _, r := range rings {
		for _, v := range r {
			b.Extend(v[0], v[1])
		}
	}
	if b.IsSet() {
		rec.Bounds = &b
	}
	return rec, true
}

// lowestZ is the minimum elevation across all footprint vertices.
func lowestZ(rings []Ring) (float64, bool) {
	z, ok := math.Inf(1), false
	for _, r := range rings {
		for _, v := range r {
			if v[2] < z {
				z, ok = v[2], true
			}
		}
	}
	return z, ok
}
