package citygml

import (
	"math"

	"github.com/mohammed-shakir/citygml-footprints/internal/mapping"
)

// canonical attribute names, as reported in BuildingRecord.Defaulted and used
// to look up generic attribute aliases in the mapping table
const (
	attrHeight       = "height"
	attrFloors       = "floors"
	attrYearBuilt    = "yearBuilt"
	attrBuildingType = "buildingType"
	attrGroundLevel  = "groundLevel"
	attrRoofType     = "roofType"
)

type attributeExtractor struct {
	table *mapping.Table
}

type extractedAttributes struct {
	height       Derived[float64]
	floors       Derived[int]
	yearBuilt    Derived[int]
	buildingType Derived[string]
	groundLevel  Derived[float64]
	roofType     Derived[string]
}

func (a *attributeExtractor) extract(el *Node) extractedAttributes {
	gen := genericAttributes(el)
	env := envelopeOf(el)

	var out extractedAttributes
	out.height = a.height(el, env, gen)
	out.floors = a.floors(el, out.height.Value, gen)
	out.yearBuilt = a.yearBuilt(el, gen)
	out.buildingType = a.buildingType(el, gen)
	out.groundLevel = a.groundLevel(env, gen)
	out.roofType = a.roofType(el, gen)
	return out
}

// generic returns the first configured generic attribute present for field.
func (a *attributeExtractor) generic(gen map[string]string, field string) (string, bool) {
	for _, name := range a.table.GenericNames(field) {
		if v, ok := gen[name]; ok {
			return v, true
		}
	}
	return "", false
}

// height takes the largest of measuredHeight, heightAboveGround and the
// envelope's vertical extent. Producers disagree on which one they fill, so
// the maximum avoids underestimating.
func (a *attributeExtractor) height(el *Node, env *envelope, gen map[string]string) Derived[float64] {
	best := 0.0
	for _, f := range []Field{FieldMeasuredHeight, FieldHeightAboveGround} {
		if s, ok := getField(el, f); ok {
			if v, ok := parseNumber(s); ok && v > best {
				best = v
			}
		}
	}
	if env != nil && env.has3D {
		if v := math.Abs(env.upper[2] - env.lower[2]); v > best {
			best = v
		}
	}
	if best == 0 {
		if s, ok := a.generic(gen, attrHeight); ok {
			if v, ok := parseNumber(s); ok && v > 0 {
				best = v
			}
		}
	}
	if best > 0 {
		return found(best)
	}
	return fallback(a.table.Defaults.Height)
}

func (a *attributeExtractor) floors(el *Node, height float64, gen map[string]string) Derived[int] {
	if n, ok := positiveInt(getField(el, FieldStoreys)); ok {
		return found(n)
	}
	if n, ok := positiveInt(a.generic(gen, attrFloors)); ok {
		return found(n)
	}
	n := int(math.Ceil(height / a.table.Defaults.StoreyHeight))
	if n < 1 {
		n = 1
	}
	return fallback(n)
}

// maxStoreys bounds explicit storey counts; anything above is a data error.
const maxStoreys = 500

func positiveInt(s string, ok bool) (int, bool) {
	if !ok {
		return 0, false
	}
	return parseCount(s, maxStoreys)
}

func (a *attributeExtractor) yearBuilt(el *Node, gen map[string]string) Derived[int] {
	if s, ok := getField(el, FieldYearOfConstr); ok {
		if y, ok := parseYear(s); ok {
			return found(y)
		}
	}
	if s, ok := a.generic(gen, attrYearBuilt); ok {
		if y, ok := parseYear(s); ok {
			return found(y)
		}
	}
	return fallback(a.table.Defaults.Year)
}

// buildingType prefers function over usage; codes are translated through
// the "function" vocabulary and unmapped codes are kept verbatim.
func (a *attributeExtractor) buildingType(el *Node, gen map[string]string) Derived[string] {
	for _, f := range []Field{FieldFunction, FieldUsage} {
		if code, ok := getField(el, f); ok {
			return found(a.table.Resolve("function", code))
		}
	}
	if code, ok := a.generic(gen, attrBuildingType); ok {
		return found(a.table.Resolve("function", code))
	}
	return fallback(a.table.Defaults.UnknownType)
}

func (a *attributeExtractor) groundLevel(env *envelope, gen map[string]string) Derived[float64] {
	if env != nil && env.hasLowerZ {
		return found(env.lower[2])
	}
	if s, ok := a.generic(gen, attrGroundLevel); ok {
		if v, ok := parseNumber(s); ok {
			return found(v)
		}
	}
	return fallback(0.0)
}

func (a *attributeExtractor) roofType(el *Node, gen map[string]string) Derived[string] {
	if code, ok := getField(el, FieldRoofType); ok {
		return found(a.table.Resolve("roofType", code))
	}
	if code, ok := a.generic(gen, attrRoofType); ok {
		return found(a.table.Resolve("roofType", code))
	}
	return fallback("")
}

type envelope struct {
	srsName      string
	dim          int
	lower, upper [3]float64
	has3D        bool
	hasLowerZ    bool
}

// envelopeOf reads el's own boundedBy/Envelope, if any.
func envelopeOf(el *Node) *envelope {
	for _, bb := range el.Children("boundedBy") {
		env := bb.Child("Envelope")
		if env == nil {
			continue
		}
		out := &envelope{srsName: env.Attr("srsName"), dim: dimension(env, nil, 0)}
		lc, okL := parseCoords(env.Child("lowerCorner").text())
		uc, okU := parseCoords(env.Child("upperCorner").text())
		if okL && okU && len(lc) >= 2 && len(uc) >= 2 {
			copy(out.lower[:], lc)
			copy(out.upper[:], uc)
			out.has3D = len(lc) >= 3 && len(uc) >= 3
		}
		if okL && len(lc) >= 3 {
			out.lower[2] = lc[2]
			out.hasLowerZ = true
		}
		return out
	}
	return nil
}
