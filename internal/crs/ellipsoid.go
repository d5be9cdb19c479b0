// Package crs converts coordinates between the reference systems CityGML
// producers publish in and geographic WGS84 degrees.
package crs

import "math"

type Ellipsoid struct {
	A  float64 // semi-major axis, meters
	Rf float64 // inverse flattening
}

var (
	WGS84    = Ellipsoid{A: 6378137.0, Rf: 298.257223563}
	GRS80    = Ellipsoid{A: 6378137.0, Rf: 298.257222101}
	Bessel41 = Ellipsoid{A: 6377397.155, Rf: 299.1528128}
)

func (e Ellipsoid) f() float64  { return 1 / e.Rf }
func (e Ellipsoid) e2() float64 { f := e.f(); return f * (2 - f) }

// Helmert holds position-vector 7-parameter shift values towards WGS84
// (translations in m, rotations in arc seconds, scale in ppm).
type Helmert struct {
	Tx, Ty, Tz float64
	Rx, Ry, Rz float64
	S          float64
}

func (h *Helmert) isZero() bool {
	return h == nil || (h.Tx == 0 && h.Ty == 0 && h.Tz == 0 && h.Rx == 0 && h.Ry == 0 && h.Rz == 0 && h.S == 0)
}

const arcsec = math.Pi / (180 * 3600)

func (h *Helmert) apply(x, y, z float64, sign float64) (float64, float64, float64) {
	rx, ry, rz := sign*h.Rx*arcsec, sign*h.Ry*arcsec, sign*h.Rz*arcsec
	s := 1 + sign*h.S*1e-6
	return sign*h.Tx + s*(x-rz*y+ry*z),
		sign*h.Ty + s*(rz*x+y-rx*z),
		sign*h.Tz + s*(-ry*x+rx*y+z)
}

// toGeocentric converts geodetic radians (h=0) to earth-centered cartesian.
func toGeocentric(e Ellipsoid, lat, lon float64) (float64, float64, float64) {
	e2 := e.e2()
	sin := math.Sin(lat)
	n := e.A / math.Sqrt(1-e2*sin*sin)
	return n * math.Cos(lat) * math.Cos(lon),
		n * math.Cos(lat) * math.Sin(lon),
		n * (1 - e2) * sin
}

func fromGeocentric(e Ellipsoid, x, y, z float64) (lat, lon float64) {
	e2 := e.e2()
	p := math.Hypot(x, y)
	lon = math.Atan2(y, x)
	lat = math.Atan2(z, p*(1-e2))
	for range 10 {
		sin := math.Sin(lat)
		n := e.A / math.Sqrt(1-e2*sin*sin)
		h := p/math.Cos(lat) - n
		next := math.Atan2(z, p*(1-e2*n/(n+h)))
		if math.Abs(next-lat) < 1e-12 {
			lat = next
			break
		}
		lat = next
	}
	return lat, lon
}

// shiftToWGS84 moves geodetic radians on e into WGS84 using h. Heights are
// not carried: elevations pass through the reprojector unchanged.
func shiftToWGS84(e Ellipsoid, h *Helmert, lat, lon float64) (float64, float64) {
	if h.isZero() {
		return lat, lon
	}
	x, y, z := toGeocentric(e, lat, lon)
	x, y, z = h.apply(x, y, z, 1)
	return fromGeocentric(WGS84, x, y, z)
}

// inverse rotation uses negated parameters, accurate to well below a millimeter
// for the small angles published for national datums
func shiftFromWGS84(e Ellipsoid, h *Helmert, lat, lon float64) (float64, float64) {
	if h.isZero() {
		return lat, lon
	}
	x, y, z := toGeocentric(WGS84, lat, lon)
	x, y, z = h.apply(x, y, z, -1)
	return fromGeocentric(e, x, y, z)
}

func rad(d float64) float64 { return d * math.Pi / 180 }
func deg(r float64) float64 { return r * 180 / math.Pi }
