// Package geometry decides whether two agents' oriented footprints overlap.
//
// Every function here is pure: no logging, no shared state.
package geometry

import (
	"math"

	"github.com/paulmach/orb"
)

// Epsilon absorbs floating point round-off so that rectangles which touch
// exactly keep touching after both are rotated about a common point.
const Epsilon = 1e-9

// Pose is an agent's position and heading (radians).
type Pose struct {
	X     float64
	Y     float64
	Theta float64
}

// Footprint is an agent's physical size. Length runs along the heading,
// Width across it.
type Footprint struct {
	Length float64 `json:"length" yaml:"length"`
	Width  float64 `json:"width" yaml:"width"`
}

// Inflate grows the footprint by margin on every side.
func (f Footprint) Inflate(margin float64) Footprint {
	return Footprint{Length: f.Length + 2*margin, Width: f.Width + 2*margin}
}

// Rectangle is an oriented rectangle: center, half extents and the unit
// vectors of its two edge directions.
type Rectangle struct {
	Center     orb.Point
	HalfLength float64
	HalfWidth  float64
	u          orb.Point // along the heading
	v          orb.Point // across the heading
}

// NewRectangle builds the rectangle occupied by an agent at pose p.
func NewRectangle(p Pose, f Footprint) Rectangle {
	sin, cos := math.Sincos(p.Theta)
	return Rectangle{
		Center:     orb.Point{p.X, p.Y},
		HalfLength: f.Length / 2,
		HalfWidth:  f.Width / 2,
		u:          orb.Point{cos, sin},
		v:          orb.Point{-sin, cos},
	}
}

// Corners returns the four corners counter-clockwise, starting at the
// rear-right corner.
func (r Rectangle) Corners() orb.Ring {
	corner := func(sl, sw float64) orb.Point {
		return orb.Point{
			r.Center[0] + sl*r.HalfLength*r.u[0] + sw*r.HalfWidth*r.v[0],
			r.Center[1] + sl*r.HalfLength*r.u[1] + sw*r.HalfWidth*r.v[1],
		}
	}
	return orb.Ring{corner(-1, -1), corner(1, -1), corner(1, 1), corner(-1, 1)}
}

// Bound is the axis-aligned box around the rectangle.
func (r Rectangle) Bound() orb.Bound {
	return r.Corners().Bound()
}

// project returns the interval covered by r on the unit axis.
func (r Rectangle) project(axis orb.Point) (float64, float64) {
	c := dot(r.Center, axis)
	radius := r.HalfLength*math.Abs(dot(r.u, axis)) + r.HalfWidth*math.Abs(dot(r.v, axis))
	return c - radius, c + radius
}

// Intersects runs the separating axis test. Rectangles that only share an
// edge or a corner intersect.
func (r Rectangle) Intersects(o Rectangle) bool {
	if !r.Bound().Pad(Epsilon).Intersects(o.Bound()) {
		return false
	}

	for _, axis := range [4]orb.Point{r.u, r.v, o.u, o.v} {
		minA, maxA := r.project(axis)
		minB, maxB := o.project(axis)
		if maxA < minB-Epsilon || maxB < minA-Epsilon {
			return false
		}
	}
	return true
}

// Intersects reports whether two agents at the given poses conflict.
func Intersects(poseA Pose, footprintA Footprint, poseB Pose, footprintB Footprint) bool {
	return NewRectangle(poseA, footprintA).Intersects(NewRectangle(poseB, footprintB))
}

func dot(a, b orb.Point) float64 {
	return a[0]*b[0] + a[1]*b[1]
}
