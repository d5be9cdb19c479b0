package crs

import "math"

// TransverseMercator is a Gauss-Krüger / UTM style projection.
type TransverseMercator struct {
	Ellipsoid Ellipsoid
	Lat0      float64 // degrees
	Lon0      float64 // degrees
	K0        float64
	X0, Y0    float64 // false easting / northing
	ToWGS84   *Helmert
}

func (p TransverseMercator) meridionalArc(lat float64) float64 {
	e2 := p.Ellipsoid.e2()
	e4, e6 := e2*e2, e2*e2*e2
	return p.Ellipsoid.A * ((1-e2/4-3*e4/64-5*e6/256)*lat -
		(3*e2/8+3*e4/32+45*e6/1024)*math.Sin(2*lat) +
		(15*e4/256+45*e6/1024)*math.Sin(4*lat) -
		(35*e6/3072)*math.Sin(6*lat))
}

func (p TransverseMercator) ToGeographic(x, y float64) (lon, lat float64, err error) {
	e := p.Ellipsoid
	e2 := e.e2()
	ep2 := e2 / (1 - e2)

	m := p.meridionalArc(rad(p.Lat0)) + (y-p.Y0)/p.K0
	mu := m / (e.A * (1 - e2/4 - 3*e2*e2/64 - 5*e2*e2*e2/256))
	e1 := (1 - math.Sqrt(1-e2)) / (1 + math.Sqrt(1-e2))

	phi1 := mu +
		(3*e1/2-27*math.Pow(e1, 3)/32)*math.Sin(2*mu) +
		(21*e1*e1/16-55*math.Pow(e1, 4)/32)*math.Sin(4*mu) +
		(151*math.Pow(e1, 3)/96)*math.Sin(6*mu) +
		(1097*math.Pow(e1, 4)/512)*math.Sin(8*mu)

	sin, cos, tan := math.Sin(phi1), math.Cos(phi1), math.Tan(phi1)
	c1 := ep2 * cos * cos
	t1 := tan * tan
	n1 := e.A / math.Sqrt(1-e2*sin*sin)
	r1 := e.A * (1 - e2) / math.Pow(1-e2*sin*sin, 1.5)
	d := (x - p.X0) / (n1 * p.K0)

	latR := phi1 - (n1*tan/r1)*(d*d/2-
		(5+3*t1+10*c1-4*c1*c1-9*ep2)*math.Pow(d, 4)/24+
		(61+90*t1+298*c1+45*t1*t1-252*ep2-3*c1*c1)*math.Pow(d, 6)/720)
	lonR := rad(p.Lon0) + (d-
		(1+2*t1+c1)*math.Pow(d, 3)/6+
		(5-2*c1+28*t1-3*c1*c1+8*ep2+24*t1*t1)*math.Pow(d, 5)/120)/cos

	latR, lonR = shiftToWGS84(e, p.ToWGS84, latR, lonR)
	return deg(lonR), deg(latR), nil
}

func (p TransverseMercator) FromGeographic(lon, lat float64) (x, y float64, err error) {
	if math.Abs(lat) > 90 {
		return 0, 0, ErrInvalidCoordinate
	}
	e := p.Ellipsoid
	latR, lonR := shiftFromWGS84(e, p.ToWGS84, rad(lat), rad(lon))

	e2 := e.e2()
	ep2 := e2 / (1 - e2)
	sin, cos, tan := math.Sin(latR), math.Cos(latR), math.Tan(latR)
	n := e.A / math.Sqrt(1-e2*sin*sin)
	t := tan * tan
	c := ep2 * cos * cos
	a := (lonR - rad(p.Lon0)) * cos
	m := p.meridionalArc(latR)
	m0 := p.meridionalArc(rad(p.Lat0))

	x = p.X0 + p.K0*n*(a+(1-t+c)*math.Pow(a, 3)/6+
		(5-18*t+t*t+72*c-58*ep2)*math.Pow(a, 5)/120)
	y = p.Y0 + p.K0*(m-m0+n*tan*(a*a/2+
		(5-t+9*c+4*c*c)*math.Pow(a, 4)/24+
		(61-58*t+t*t+600*c-330*ep2)*math.Pow(a, 6)/720))
	return x, y, nil
}

// WebMercator is the spherical pseudo-mercator used by tile viewers.
type WebMercator struct{}

const webMercatorR = 6378137.0

func (WebMercator) ToGeographic(x, y float64) (lon, lat float64, err error) {
	lon = deg(x / webMercatorR)
	lat = deg(2*math.Atan(math.Exp(y/webMercatorR)) - math.Pi/2)
	return lon, lat, nil
}

func (WebMercator) FromGeographic(lon, lat float64) (x, y float64, err error) {
	if math.Abs(lat) >= 90 {
		return 0, 0, ErrInvalidCoordinate
	}
	x = webMercatorR * rad(lon)
	y = webMercatorR * math.Log(math.Tan(math.Pi/4+rad(lat)/2))
	return x, y, nil
}

// Geographic is a lon/lat system whose datum is WGS84 or shifted from it.
type Geographic struct {
	Ellipsoid Ellipsoid
	ToWGS84   *Helmert
}

func (g Geographic) ToGeographic(x, y float64) (lon, lat float64, err error) {
	if math.Abs(y) > 90 || math.Abs(x) > 180 {
		return 0, 0, ErrInvalidCoordinate
	}
	latR, lonR := shiftToWGS84(g.Ellipsoid, g.ToWGS84, rad(y), rad(x))
	return deg(lonR), deg(latR), nil
}

func (g Geographic) FromGeographic(lon, lat float64) (x, y float64, err error) {
	if math.Abs(lat) > 90 || math.Abs(lon) > 180 {
		return 0, 0, ErrInvalidCoordinate
	}
	latR, lonR := shiftFromWGS84(g.Ellipsoid, g.ToWGS84, rad(lat), rad(lon))
	return deg(lonR), deg(latR), nil
}
