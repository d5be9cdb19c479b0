package crs

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	ErrUnknownSystem     = errors.New("unknown reference system")
	ErrInvalidCoordinate = errors.New("invalid coordinate")
)

// Projection maps between a system's native x/y and WGS84 lon/lat degrees.
type Projection interface {
	ToGeographic(x, y float64) (lon, lat float64, err error)
	FromGeographic(lon, lat float64) (x, y float64, err error)
}

const (
	WGS84Geographic = "EPSG:4326"
	ETRS89          = "EPSG:4258"
	PseudoMercator  = "EPSG:3857"
	MGIGKWest       = "EPSG:31254"
	MGIGKCentral    = "EPSG:31255"
	MGIGKEast       = "EPSG:31256"
	ETRS89UTM32     = "EPSG:25832"
	ETRS89UTM33     = "EPSG:25833"
)

// MGI (Austria) to WGS84, as published with EPSG:1618.
var mgiToWGS84 = &Helmert{Tx: 577.326, Ty: 90.129, Tz: 463.919, Rx: 5.137, Ry: 1.474, Rz: 5.297, S: 2.4232}

// Registry is the explicit set of supported systems. Build it once and share it;
// it is read-only after construction.
type Registry struct {
	defs map[string]Projection
}

type Definition struct {
	Code       string
	Projection Projection
}

func NewRegistry(defs ...Definition) *Registry {
	r := &Registry{defs: make(map[string]Projection, len(defs))}
	for _, d := range defs {
		r.defs[Canonical(d.Code)] = d.Projection
	}
	return r
}

// DefaultRegistry knows the systems seen in Austrian and German CityGML exports
// plus the geographic and web targets.
func DefaultRegistry() *Registry {
	gk := func(lon0 float64) TransverseMercator {
		return TransverseMercator{Ellipsoid: Bessel41, Lon0: lon0, K0: 1, Y0: -5000000, ToWGS84: mgiToWGS84}
	}
	utm := func(zone int) TransverseMercator {
		return TransverseMercator{Ellipsoid: GRS80, Lon0: float64(zone*6 - 183), K0: 0.9996, X0: 500000}
	}
	return NewRegistry(
		Definition{WGS84Geographic, Geographic{Ellipsoid: WGS84}},
		Definition{ETRS89, Geographic{Ellipsoid: GRS80}},
		Definition{PseudoMercator, WebMercator{}},
		Definition{MGIGKWest, gk(10 + 1.0/3)},
		Definition{MGIGKCentral, gk(13 + 1.0/3)},
		Definition{MGIGKEast, gk(16 + 1.0/3)},
		Definition{ETRS89UTM32, utm(32)},
		Definition{ETRS89UTM33, utm(33)},
	)
}

func (r *Registry) Lookup(name string) (Projection, error) {
	code := Canonical(name)
	p, ok := r.defs[code]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSystem, name)
	}
	return p, nil
}

func (r *Registry) Supports(name string) bool {
	_, ok := r.defs[Canonical(name)]
	return ok
}

// Codes lists the registered systems, sorted.
func (r *Registry) Codes() []string {
	out := make([]string, 0, len(r.defs))
	for k := range r.defs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

var epsgPattern = regexp.MustCompile(`(?i)EPSG(?::|/)+(?:[0-9.]+(?::|/)+)?(\d+)`)

// Canonical normalizes the srsName spellings found in GML to "EPSG:<code>".
// Unrecognized names are returned trimmed and unchanged.
func Canonical(name string) string {
	s := strings.TrimSpace(name)
	if s == "" {
		return ""
	}
	if m := epsgPattern.FindStringSubmatch(s); m != nil {
		return "EPSG:" + m[1]
	}
	up := strings.ToUpper(s)
	switch {
	case strings.HasSuffix(up, "CRS84"):
		return WGS84Geographic
	case strings.Contains(up, "ETRS89_UTM32"):
		return ETRS89UTM32
	case strings.Contains(up, "ETRS89_UTM33"):
		return ETRS89UTM33
	}
	return s
}
