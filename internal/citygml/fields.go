package citygml

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Field is a canonical attribute name independent of the CityGML version
// or application schema that spelled it.
type Field string

const (
	FieldMeasuredHeight    Field = "measuredHeight"
	FieldHeightAboveGround Field = "heightAboveGround"
	FieldStoreys           Field = "storeysAboveGround"
	FieldYearOfConstr      Field = "yearOfConstruction"
	FieldFunction          Field = "function"
	FieldUsage             Field = "usage"
	FieldRoofType          Field = "roofType"
)

// fieldAliases lists, per canonical field, the local-name paths that may carry
// it below a building element. The first path present wins.
var fieldAliases = map[Field][][]string{
	FieldMeasuredHeight:    {{"measuredHeight"}},
	FieldHeightAboveGround: {{"heightAboveGround"}, {"height", "HeightAboveGround", "value"}, {"height", "Height", "value"}},
	FieldStoreys:           {{"storeysAboveGround"}},
	FieldYearOfConstr:      {{"yearOfConstruction"}, {"dateOfConstruction"}},
	FieldFunction:          {{"function"}},
	FieldUsage:             {{"usage"}},
	FieldRoofType:          {{"roofType"}},
}

// getField returns the trimmed text of the first alias of f present on el.
func getField(el *Node, f Field) (string, bool) {
	for _, path := range fieldAliases[f] {
		n := el.Path(path...)
		if n == nil || n.Text == "" {
			continue
		}
		return n.Text, true
	}
	return "", false
}

// genericAttributes collects gen:*Attribute name/value pairs in both the
// CityGML 2 (<gen:stringAttribute name="..">) and 3 (<gen:genericAttribute>)
// encodings. The first occurrence of a name wins.
func genericAttributes(el *Node) map[string]string {
	out := map[string]string{}
	add := func(name, value string) {
		name, value = strings.TrimSpace(name), strings.TrimSpace(value)
		if name == "" || value == "" {
			return
		}
		if _, ok := out[name]; !ok {
			out[name] = value
		}
	}
	for _, c := range el.Elements() {
		switch c.Name {
		case "stringAttribute", "doubleAttribute", "intAttribute", "measureAttribute", "dateAttribute", "uriAttribute":
			add(c.Attr("name"), c.Path("value").text())
		case "genericAttribute":
			for _, typed := range c.Elements() {
				add(typed.Path("name").text(), typed.Path("value").text())
			}
		}
	}
	return out
}

func (n *Node) text() string {
	if n == nil {
		return ""
	}
	return n.Text
}

// parseNumber accepts finite decimal numbers only; "NaN" and "Inf" are rejected.
func parseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

const (
	minYear = 1
	maxYear = 9999
)

// parseYear accepts "1965", "1965-04-01" and full timestamps. Years outside
// 1..9999 are rejected.
func parseYear(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if y, err := strconv.Atoi(s); err == nil {
		return y, validYear(y)
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil && validYear(t.Year()) {
			return t.Year(), true
		}
	}
	if f, ok := parseNumber(s); ok && f >= minYear && f <= maxYear && f == math.Trunc(f) {
		return int(f), true
	}
	return 0, false
}

func validYear(y int) bool { return y >= minYear && y <= maxYear }

// parseCount accepts whole numbers in 1..maxCount; "4.0" is fine, "0.4" and
// "2.5" are not.
func parseCount(s string, maxCount int) (int, bool) {
	f, ok := parseNumber(s)
	if !ok || f < 1 || f > float64(maxCount) || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

// parseCoords splits a whitespace separated number list; any malformed
// token invalidates the whole list.
func parseCoords(s string) ([]float64, bool) {
	fields := strings.Fields(s)
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, ok := parseNumber(f)
		if !ok {
			return nil, false
		}
		out = append(out, v)
	}
	return out, true
}
