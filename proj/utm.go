package proj

import "math"

// WGS84 ellipsoid.
const (
	semiMajor    = 6378137.0
	flattening   = 1.0 / 298.257223563
	scaleFactor  = 0.9996
	falseEasting = 500000.0
	// falseNorthing applies in the southern hemisphere only.
	falseNorthing = 10000000.0
)

// UTM is a transverse mercator projection for one UTM zone on the
// WGS84 ellipsoid, using the usual Snyder series expansions.
type UTM struct {
	Zone  int
	South bool
}

func (u UTM) EPSG() int {
	if u.South {
		return 32700 + u.Zone
	}
	return 32600 + u.Zone
}

// centralMeridian returns the zone's central meridian in radians.
func (u UTM) centralMeridian() float64 {
	return float64(u.Zone*6-183) * math.Pi / 180.0
}

func (u UTM) FromWGS84(lon, lat float64) (float64, float64) {
	e2 := flattening * (2 - flattening)
	ep2 := e2 / (1 - e2)

	phi := lat * math.Pi / 180.0
	lam := lon * math.Pi / 180.0

	sinPhi, cosPhi := math.Sin(phi), math.Cos(phi)
	tanPhi := sinPhi / cosPhi

	n := semiMajor / math.Sqrt(1-e2*sinPhi*sinPhi)
	t := tanPhi * tanPhi
	c := ep2 * cosPhi * cosPhi
	a := cosPhi * (lam - u.centralMeridian())

	m := meridianArc(phi)

	x := falseEasting + scaleFactor*n*(a+
		(1-t+c)*a*a*a/6+
		(5-18*t+t*t+72*c-58*ep2)*math.Pow(a, 5)/120)

	y := scaleFactor * (m + n*tanPhi*(a*a/2+
		(5-t+9*c+4*c*c)*math.Pow(a, 4)/24+
		(61-58*t+t*t+600*c-330*ep2)*math.Pow(a, 6)/720))
	if u.South {
		y += falseNorthing
	}
	return x, y
}

func (u UTM) ToWGS84(x, y float64) (float64, float64) {
	e2 := flattening * (2 - flattening)
	ep2 := e2 / (1 - e2)
	e1 := (1 - math.Sqrt(1-e2)) / (1 + math.Sqrt(1-e2))

	northing := y
	if u.South {
		northing -= falseNorthing
	}

	m := northing / scaleFactor
	mu := m / (semiMajor * (1 - e2/4 - 3*e2*e2/64 - 5*e2*e2*e2/256))

	// Footpoint latitude.
	phi1 := mu +
		(3*e1/2-27*math.Pow(e1, 3)/32)*math.Sin(2*mu) +
		(21*e1*e1/16-55*math.Pow(e1, 4)/32)*math.Sin(4*mu) +
		(151*math.Pow(e1, 3)/96)*math.Sin(6*mu) +
		(1097*math.Pow(e1, 4)/512)*math.Sin(8*mu)

	sinPhi1, cosPhi1 := math.Sin(phi1), math.Cos(phi1)
	tanPhi1 := sinPhi1 / cosPhi1

	c1 := ep2 * cosPhi1 * cosPhi1
	t1 := tanPhi1 * tanPhi1
	n1 := semiMajor / math.Sqrt(1-e2*sinPhi1*sinPhi1)
	r1 := semiMajor * (1 - e2) / math.Pow(1-e2*sinPhi1*sinPhi1, 1.5)
	d := (x - falseEasting) / (n1 * scaleFactor)

	phi := phi1 - (n1 * tanPhi1 / r1) * (d*d/2 -
		(5+3*t1+10*c1-4*c1*c1-9*ep2)*math.Pow(d, 4)/24 +
		(61+90*t1+298*c1+45*t1*t1-252*ep2-3*c1*c1)*math.Pow(d, 6)/720)

	lam := u.centralMeridian() + (d-
		(1+2*t1+c1)*math.Pow(d, 3)/6+
		(5-2*c1+28*t1-3*c1*c1+8*ep2+24*t1*t1)*math.Pow(d, 5)/120)/cosPhi1

	return lam * 180.0 / math.Pi, phi * 180.0 / math.Pi
}

// meridianArc returns the length of the meridian arc from the equator
// to latitude phi (radians) on the WGS84 ellipsoid.
func meridianArc(phi float64) float64 {
	e2 := flattening * (2 - flattening)
	e4 := e2 * e2
	e6 := e4 * e2
	return semiMajor * ((1-e2/4-3*e4/64-5*e6/256)*phi -
		(3*e2/8+3*e4/32+45*e6/1024)*math.Sin(2*phi) +
		(15*e4/256+45*e6/1024)*math.Sin(4*phi) -
		(35*e6/3072)*math.Sin(6*phi))
}
