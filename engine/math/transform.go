package math

// Transform is a decomposed object-to-world transform. Keeping it
// decomposed lets dynamic objects interpolate between two poses without
// decomposing matrices.
type Transform struct {
	Position Vec3
	Rotation Quat
	Scale    Vec3
}

func TransformIdentity() Transform {
	return Transform{Rotation: QuatIdentity(), Scale: Vec3One()}
}

// Lerp interpolates position and scale linearly and the rotation
// spherically.
func (t Transform) Lerp(o Transform, factor float32) Transform {
	return Transform{
		Position: t.Position.Lerp(o.Position, factor),
		Rotation: t.Rotation.Slerp(o.Rotation, factor),
		Scale:    t.Scale.Lerp(o.Scale, factor),
	}
}

// Mat4 composes translation, rotation and scale into a matrix.
func (t Transform) Mat4() Mat4 {
	return Mat4Translate(t.Position).Mul(t.Rotation.Mat4()).Mul(Mat4Scale(t.Scale))
}
