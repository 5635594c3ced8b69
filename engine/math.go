package engine

import (
	"math"

	"github.com/aukilabs/kenaz/models"
)

const distanceEpsilon = 1e-4

func EqualWithEpsilon(a float64, b float64, epsilon float64) bool {
	return math.Abs(a-b) <= epsilon
}

func Clamp(v float64, min float64, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

type Vector3 struct {
	X float64
	Y float64
	Z float64
}

func (v Vector3) Equal(o Vector3) bool {
	return v.X == o.X && v.Y == o.Y && v.Z == o.Z
}

func Add(a Vector3, b Vector3) Vector3 {
	return Vector3{a.X + b.X, a.Y + b.Y, a.Z + b.Z}
}

func Sub(a Vector3, b Vector3) Vector3 {
	return Vector3{a.X - b.X, a.Y - b.Y, a.Z - b.Z}
}

func Mul(a Vector3, s float64) Vector3 {
	return Vector3{a.X * s, a.Y * s, a.Z * s}
}

func Dot(a Vector3, b Vector3) float64 {
	return a.X*b.X + a.Y*b.Y + a.Z*b.Z
}

func Cross(a Vector3, b Vector3) Vector3 {
	return Vector3{
		a.Y*b.Z - a.Z*b.Y,
		a.Z*b.X - a.X*b.Z,
		a.X*b.Y - a.Y*b.X,
	}
}

func (v Vector3) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

func Normalized(a Vector3) Vector3 {
	length := a.Length()
	if length == 0 {
		return a
	}
	return Vector3{a.X / length, a.Y / length, a.Z / length}
}

func Distance(a Vector3, b Vector3) float64 {
	return Sub(a, b).Length()
}

// Manhattan returns the L1 distance between two points. It is cheaper than
// the euclidean distance and good enough to rank reindexing work by camera
// proximity.
func Manhattan(a Vector3, b Vector3) float64 {
	return math.Abs(a.X-b.X) + math.Abs(a.Y-b.Y) + math.Abs(a.Z-b.Z)
}

type Quaternion struct {
	X float64
	Y float64
	Z float64
	W float64
}

// Rotate applies the rotation to v using the expanded sandwich product
// q * v * q^-1, assuming q is a unit quaternion.
func (q Quaternion) Rotate(v Vector3) Vector3 {
	u := Vector3{q.X, q.Y, q.Z}
	t := Mul(Cross(u, v), 2)
	return Add(Add(v, Mul(t, q.W)), Cross(u, t))
}

// Plane is defined by a point on the plane and its normal. Points with a
// positive signed distance lie on the normal side.
type Plane struct {
	Point  Vector3
	Normal Vector3
}

func (p Plane) SignedDistance(v Vector3) float64 {
	return Dot(p.Normal, Sub(v, p.Point))
}

func positionOf(p models.Pose) Vector3 {
	return Vector3{p.PX, p.PY, p.PZ}
}

func rotationOf(p models.Pose) Quaternion {
	return Quaternion{p.RX, p.RY, p.RZ, p.RW}
}
