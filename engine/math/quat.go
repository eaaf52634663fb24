package math

import "math"

// Quat is a rotation quaternion (x, y, z, w).
type Quat struct {
	X, Y, Z, W float32
}

func QuatIdentity() Quat {
	return Quat{W: 1}
}

// QuatFromAxisAngle builds a rotation of angle radians around axis.
func QuatFromAxisAngle(axis Vec3, angle float32) Quat {
	axis = axis.Normalize()
	half := float64(angle) / 2
	s := float32(math.Sin(half))
	return Quat{
		X: axis.X * s,
		Y: axis.Y * s,
		Z: axis.Z * s,
		W: float32(math.Cos(half)),
	}
}

func (q Quat) Mul(o Quat) Quat {
	return Quat{
		X: q.W*o.X + q.X*o.W + q.Y*o.Z - q.Z*o.Y,
		Y: q.W*o.Y - q.X*o.Z + q.Y*o.W + q.Z*o.X,
		Z: q.W*o.Z + q.X*o.Y - q.Y*o.X + q.Z*o.W,
		W: q.W*o.W - q.X*o.X - q.Y*o.Y - q.Z*o.Z,
	}
}

func (q Quat) Dot(o Quat) float32 {
	return q.X*o.X + q.Y*o.Y + q.Z*o.Z + q.W*o.W
}

func (q Quat) Normalize() Quat {
	length := float32(math.Sqrt(float64(q.Dot(q))))
	if length == 0 {
		return QuatIdentity()
	}
	inv := 1 / length
	return Quat{q.X * inv, q.Y * inv, q.Z * inv, q.W * inv}
}

// Slerp spherically interpolates between q and o by t, falling back to
// normalized lerp when the rotations are nearly parallel.
func (q Quat) Slerp(o Quat, t float32) Quat {
	d := q.Dot(o)
	if d < 0 {
		o = Quat{-o.X, -o.Y, -o.Z, -o.W}
		d = -d
	}
	if d > 0.9995 {
		return Quat{
			q.X + (o.X-q.X)*t,
			q.Y + (o.Y-q.Y)*t,
			q.Z + (o.Z-q.Z)*t,
			q.W + (o.W-q.W)*t,
		}.Normalize()
	}
	theta := float32(math.Acos(float64(d)))
	sin := float32(math.Sin(float64(theta)))
	wa := float32(math.Sin(float64((1-t)*theta))) / sin
	wb := float32(math.Sin(float64(t*theta))) / sin
	return Quat{
		q.X*wa + o.X*wb,
		q.Y*wa + o.Y*wb,
		q.Z*wa + o.Z*wb,
		q.W*wa + o.W*wb,
	}
}

// Mat4 converts the rotation to a column-major matrix.
func (q Quat) Mat4() Mat4 {
	x2, y2, z2 := q.X+q.X, q.Y+q.Y, q.Z+q.Z
	xx, xy, xz := q.X*x2, q.X*y2, q.X*z2
	yy, yz, zz := q.Y*y2, q.Y*z2, q.Z*z2
	wx, wy, wz := q.W*x2, q.W*y2, q.W*z2

	m := Mat4Identity()
	m[0] = 1 - (yy + zz)
	m[1] = xy + wz
	m[2] = xz - wy
	m[4] = xy - wz
	m[5] = 1 - (xx + zz)
	m[6] = yz + wx
	m[8] = xz + wy
	m[9] = yz - wx
	m[10] = 1 - (xx + yy)
	return m
}
