package replay

import (
	"math"
)

// Point is a 2-D coordinate of a track graph node
type Point struct {
	X float64
	Y float64
}

func NewPoint(x, y float64) Point {
	return Point{
		X: x,
		Y: y,
	}
}

// Lerp returns the point at fraction t of the way from p to other
func (p Point) Lerp(other Point, t float64) Point {
	return Point{
		X: p.X + t*(other.X-p.X),
		Y: p.Y + t*(other.Y-p.Y),
	}
}

func euclideanDistance(p1, p2 Point) float64 {
	return math.Sqrt(math.Pow(float64(p1.X-p2.X), 2) + math.Pow(float64(p1.Y-p2.Y), 2))
}

// projectOntoSegment returns the fraction along segment a->b of the point
// closest to p (clipped to [0, 1]) and the distance from p to that point.
func projectOntoSegment(p, a, b Point) (float64, float64) {
	dx := b.X - a.X
	dy := b.Y - a.Y
	lengthSquared := dx*dx + dy*dy
	if lengthSquared == 0 {
		return 0, euclideanDistance(p, a)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / lengthSquared
	t = maxFloat64(0, minFloat64(1, t))
	return t, euclideanDistance(p, a.Lerp(b, t))
}
