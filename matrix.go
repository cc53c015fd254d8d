package xmate_teleop

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/rdk/spatialmath"
)

// Mat4 is a 4x4 homogeneous transform in row-major order, the layout the
// controller's real-time interface expects.
type Mat4 [16]float64

// Mat3 is a 3x3 rotation matrix in row-major order.
type Mat3 [9]float64

func identityMat4() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

func identityMat3() Mat3 {
	return Mat3{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	}
}

// Rotation extracts the upper-left 3x3 submatrix.
func (m Mat4) Rotation() Mat3 {
	return Mat3{
		m[0], m[1], m[2],
		m[4], m[5], m[6],
		m[8], m[9], m[10],
	}
}

// SetRotation writes r into the upper-left 3x3 submatrix in place.
func (m *Mat4) SetRotation(r Mat3) {
	m[0], m[1], m[2] = r[0], r[1], r[2]
	m[4], m[5], m[6] = r[3], r[4], r[5]
	m[8], m[9], m[10] = r[6], r[7], r[8]
}

// Translation returns the transform's translation column.
func (m Mat4) Translation() r3.Vector {
	return r3.Vector{X: m[3], Y: m[7], Z: m[11]}
}

// SetTranslation writes t into the translation column in place.
func (m *Mat4) SetTranslation(t r3.Vector) {
	m[3], m[7], m[11] = t.X, t.Y, t.Z
}

// Mul returns m * other.
func (m Mat4) Mul(other Mat4) Mat4 {
	var out Mat4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += m[i*4+k] * other[k*4+j]
			}
			out[i*4+j] = sum
		}
	}
	return out
}

// RigidInverse inverts m assuming it is a rigid transform (orthonormal
// rotation): inverse rotation is the transpose, inverse translation is
// -Rᵗ·t.
func (m Mat4) RigidInverse() Mat4 {
	rt := m.Rotation().Transpose()
	t := rt.MulVec(m.Translation().Mul(-1))
	out := identityMat4()
	out.SetRotation(rt)
	out.SetTranslation(t)
	return out
}

// Mul returns m * other.
func (m Mat3) Mul(other Mat3) Mat3 {
	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var sum float64
			for k := 0; k < 3; k++ {
				sum += m[i*3+k] * other[k*3+j]
			}
			out[i*3+j] = sum
		}
	}
	return out
}

// MulVec returns m * v.
func (m Mat3) MulVec(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m[0]*v.X + m[1]*v.Y + m[2]*v.Z,
		Y: m[3]*v.X + m[4]*v.Y + m[5]*v.Z,
		Z: m[6]*v.X + m[7]*v.Y + m[8]*v.Z,
	}
}

// Transpose returns mᵗ.
func (m Mat3) Transpose() Mat3 {
	return Mat3{
		m[0], m[3], m[6],
		m[1], m[4], m[7],
		m[2], m[5], m[8],
	}
}

// rotationEpsilon is the magnitude below which an incremental rotation is
// treated as identity.
const rotationEpsilon = 1e-6

// rodrigues builds a rotation matrix from a rotation vector (axis scaled by
// angle) using the axis-angle closed form. Vectors shorter than
// rotationEpsilon yield the identity.
func rodrigues(rotVec r3.Vector) Mat3 {
	angle := rotVec.Norm()
	if angle <= rotationEpsilon {
		return identityMat3()
	}

	axis := rotVec.Mul(1 / angle)
	c := math.Cos(angle)
	s := math.Sin(angle)
	t := 1 - c
	x, y, z := axis.X, axis.Y, axis.Z

	return Mat3{
		t*x*x + c, t*x*y - s*z, t*x*z + s*y,
		t*x*y + s*z, t*y*y + c, t*y*z - s*x,
		t*x*z - s*y, t*y*z + s*x, t*z*z + c,
	}
}

// OrthonormalityError returns ‖R·Rᵗ − I‖ (Frobenius), a measure of how far
// the matrix has drifted from a proper rotation.
func (m Mat3) OrthonormalityError() float64 {
	p := m.Mul(m.Transpose())
	id := identityMat3()
	var sum float64
	for i := range p {
		d := p[i] - id[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Orthonormalized returns the nearest-by-construction orthonormal matrix via
// Gram-Schmidt on the rows. Used as the periodic drift correction for long
// velocity-integration runs.
func (m Mat3) Orthonormalized() Mat3 {
	r0 := r3.Vector{X: m[0], Y: m[1], Z: m[2]}.Normalize()
	r1 := r3.Vector{X: m[3], Y: m[4], Z: m[5]}
	r1 = r1.Sub(r0.Mul(r0.Dot(r1))).Normalize()
	r2 := r0.Cross(r1)
	return Mat3{
		r0.X, r0.Y, r0.Z,
		r1.X, r1.Y, r1.Z,
		r2.X, r2.Y, r2.Z,
	}
}

// Posture is a Cartesian pose as the controller reports it:
// [x, y, z, roll, pitch, yaw] in meters and radians.
type Posture [6]float64

// Matrix converts the posture to a homogeneous transform.
func (p Posture) Matrix() Mat4 {
	ea := spatialmath.EulerAngles{Roll: p[3], Pitch: p[4], Yaw: p[5]}
	rm := ea.RotationMatrix()
	out := identityMat4()
	var rot Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rot[i*3+j] = rm.At(i, j)
		}
	}
	out.SetRotation(rot)
	out.SetTranslation(r3.Vector{X: p[0], Y: p[1], Z: p[2]})
	return out
}

// PostureFromMatrix converts a homogeneous transform back to
// [x, y, z, roll, pitch, yaw].
func PostureFromMatrix(m Mat4) (Posture, error) {
	rot := m.Rotation()
	rm, err := spatialmath.NewRotationMatrix(rot[:])
	if err != nil {
		return Posture{}, errors.Wrap(err, "invalid rotation submatrix")
	}
	ea := rm.EulerAngles()
	t := m.Translation()
	return Posture{t.X, t.Y, t.Z, ea.Roll, ea.Pitch, ea.Yaw}, nil
}
