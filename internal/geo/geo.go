package geo

import (
	"errors"
	"math"
	"strconv"
	"strings"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// Coordinates in route files are WGS84 degrees (EPSG:4326). Distances are
// measured in Web Mercator (EPSG:3857) and scaled back to ground meters, which
// is accurate enough for the few hundred meters between neighbouring samples.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// LatLon is a WGS84 position in degrees.
type LatLon struct {
	Lat float64
	Lon float64
}

// ParseLatLon parses latitude and longitude text as found in LatitudeDegrees
// and LongitudeDegrees elements.
func ParseLatLon(lat, lon string) (LatLon, error) {
	la, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil || la < -90 || la > 90 {
		return LatLon{}, ErrInvalidCoordinates
	}
	lo, err := strconv.ParseFloat(strings.TrimSpace(lon), 64)
	if err != nil || lo < -180 || lo > 180 {
		return LatLon{}, ErrInvalidCoordinates
	}
	return LatLon{Lat: la, Lon: lo}, nil
}

// PointFromText parses latitude and longitude text into a 4326 point (X=lon, Y=lat).
func PointFromText(lat, lon string) (geom.Point, error) {
	ll, err := ParseLatLon(lat, lon)
	if err != nil {
		return geom.NewEmptyPoint(geom.DimXY), err
	}
	return geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: ll.Lon, Y: ll.Lat},
		Type: geom.DimXY,
	}), nil
}

// Coords3857From4326 creates a Web Mercator point from a longitude and latitude
func Coords3857From4326(
	longitude float64,
	latitude float64,
) (
	point geom.Point,
	err error,
) {
	epsg := wgs84.EPSG()
	f := epsg.Transform(4326, 3857)
	x, y, _ := f(longitude, latitude, 0)
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return geom.NewEmptyPoint(geom.DimXY), ErrInvalidCoordinates
	}
	point = geom.NewPoint(
		geom.Coordinates{
			XY:   geom.XY{X: x, Y: y},
			Type: geom.DimXY,
		},
	)
	return point, nil
}

// PathLength returns the approximate ground length in meters of the polyline
// through points. Fewer than two points give zero.
func PathLength(points []LatLon) (float64, error) {
	if len(points) < 2 {
		return 0, nil
	}

	flat := make([]float64, 0, len(points)*2)
	for _, p := range points {
		pt, err := Coords3857From4326(p.Lon, p.Lat)
		if err != nil {
			return 0, err
		}
		xy, _ := pt.XY()
		flat = append(flat, xy.X, xy.Y)
	}
	seq := geom.NewLineString(geom.NewSequence(flat, geom.DimXY)).Coordinates()

	var total float64
	for i := 1; i < seq.Length(); i++ {
		a, b := seq.GetXY(i-1), seq.GetXY(i)
		// Mercator stretches distances by 1/cos(lat).
		scale := math.Cos((points[i-1].Lat + points[i].Lat) / 2 * math.Pi / 180)
		total += math.Hypot(b.X-a.X, b.Y-a.Y) * scale
	}
	return total, nil
}
