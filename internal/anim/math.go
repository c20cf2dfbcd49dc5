package anim

import "math"

// Vec3 is a three-component vector. Rotations are Euler angles in degrees.
type Vec3 struct {
	X, Y, Z float64
}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

// Component returns one coordinate by index.
func (v Vec3) Component(c Component) float64 {
	switch c {
	case Y:
		return v.Y
	case Z:
		return v.Z
	default:
		return v.X
	}
}

// Mat3 is a row-major 3x3 rotation matrix.
type Mat3 [3][3]float64

// Identity returns the identity matrix.
func Identity() Mat3 {
	return Mat3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// EulerXYZ builds the rotation that applies X, then Y, then Z, with angles
// in degrees (R = Rz * Ry * Rx).
func EulerXYZ(deg Vec3) Mat3 {
	rx, ry, rz := deg.X*math.Pi/180, deg.Y*math.Pi/180, deg.Z*math.Pi/180
	sx, cx := math.Sincos(rx)
	sy, cy := math.Sincos(ry)
	sz, cz := math.Sincos(rz)

	mx := Mat3{{1, 0, 0}, {0, cx, -sx}, {0, sx, cx}}
	my := Mat3{{cy, 0, sy}, {0, 1, 0}, {-sy, 0, cy}}
	mz := Mat3{{cz, -sz, 0}, {sz, cz, 0}, {0, 0, 1}}
	return mz.Mul(my).Mul(mx)
}

// Mul returns m * o.
func (m Mat3) Mul(o Mat3) Mat3 {
	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = m[i][0]*o[0][j] + m[i][1]*o[1][j] + m[i][2]*o[2][j]
		}
	}
	return out
}

// Apply returns m * v.
func (m Mat3) Apply(v Vec3) Vec3 {
	return Vec3{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

// Transpose returns the transpose, which is the inverse for rotations.
func (m Mat3) Transpose() Mat3 {
	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = m[j][i]
		}
	}
	return out
}
