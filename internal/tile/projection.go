// Package tile projects geographic coordinates into the web-mercator pixel space used by
// slippy-map renderers.
package tile

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// DefaultSize is the edge length of a map tile in pixels.
const DefaultSize = 256

// MaxLatitude is the northern limit of the web-mercator square.
const MaxLatitude = 85.05112877980659

// Clamp limits a point to the valid web-mercator range.
func Clamp(p orb.Point) orb.Point {
	lat := math.Max(-MaxLatitude, math.Min(MaxLatitude, p.Lat()))
	lon := math.Max(-180, math.Min(180, p.Lon()))
	return orb.Point{lon, lat}
}

// Pixel returns the world pixel position of p at a (possibly fractional) zoom level.
// The origin is the north-west corner of the world; y grows southwards.
func Pixel(p orb.Point, zoom float64, tileSize int) orb.Point {
	if tileSize <= 0 {
		tileSize = DefaultSize
	}

	// Fraction at zoom 0 is the position inside the single world tile in [0,1].
	f := maptile.Fraction(Clamp(p), 0)
	scale := float64(tileSize) * math.Exp2(zoom)

	return orb.Point{f.X() * scale, f.Y() * scale}
}

// PixelDistance returns the screen distance in pixels between a and b at zoom.
func PixelDistance(a, b orb.Point, zoom float64, tileSize int) float64 {
	pa := Pixel(a, zoom, tileSize)
	pb := Pixel(b, zoom, tileSize)
	return math.Hypot(pa.X()-pb.X(), pa.Y()-pb.Y())
}

// At returns the tile containing p at an integer zoom.
func At(p orb.Point, zoom int) maptile.Tile {
	if zoom < 0 {
		zoom = 0
	}
	return maptile.At(Clamp(p), maptile.Zoom(zoom))
}

// MetersPerPixel returns the ground resolution at a latitude and zoom.
func MetersPerPixel(lat, zoom float64, tileSize int) float64 {
	if tileSize <= 0 {
		tileSize = DefaultSize
	}
	lat = math.Max(-MaxLatitude, math.Min(MaxLatitude, lat))
	circumference := 2 * math.Pi * orb.EarthRadius
	return circumference * math.Cos(lat*math.Pi/180) / (float64(tileSize) * math.Exp2(zoom))
}

// Mercator converts WGS84 coordinates to web-mercator meters (EPSG:3857).
func Mercator(p orb.Point) orb.Point {
	p = Clamp(p)
	x := orb.EarthRadius * p.Lon() * math.Pi / 180.0
	latRad := p.Lat() * math.Pi / 180.0
	y := orb.EarthRadius * math.Log(math.Tan(math.Pi/4.0+latRad/2.0))
	return orb.Point{x, y}
}
