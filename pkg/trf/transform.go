// Package trf implements the 3x4 affine transforms used to place volumes.
package trf

import (
	"fmt"
	"math"
)

// Transform3D is a rotation matrix R and translation d, applied to a point p as R*p + d.
// The zero value is not the identity; use Identity.
type Transform3D struct {
	R [3][3]float64
	D [3]float64
}

// Vector3 is a point or direction in 3-space.
type Vector3 [3]float64

func Identity() Transform3D {
	return Transform3D{R: [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}}
}

func Translate(x, y, z float64) Transform3D {
	t := Identity()
	t.D = [3]float64{x, y, z}
	return t
}

func RotateX(angle float64) Transform3D {
	s, c := math.Sincos(angle)
	t := Identity()
	t.R[1][1], t.R[1][2] = c, -s
	t.R[2][1], t.R[2][2] = s, c
	return t
}

func RotateY(angle float64) Transform3D {
	s, c := math.Sincos(angle)
	t := Identity()
	t.R[0][0], t.R[0][2] = c, s
	t.R[2][0], t.R[2][2] = -s, c
	return t
}

func RotateZ(angle float64) Transform3D {
	s, c := math.Sincos(angle)
	t := Identity()
	t.R[0][0], t.R[0][1] = c, -s
	t.R[1][0], t.R[1][1] = s, c
	return t
}

// RotateAxis builds a rotation by angle around axis using the Rodrigues formula.
// A zero axis yields the identity.
func RotateAxis(axis Vector3, angle float64) Transform3D {
	n := math.Sqrt(axis[0]*axis[0] + axis[1]*axis[1] + axis[2]*axis[2])
	if n == 0 {
		return Identity()
	}
	x, y, z := axis[0]/n, axis[1]/n, axis[2]/n
	s, c := math.Sincos(angle)
	v := 1 - c
	t := Identity()
	t.R = [3][3]float64{
		{c + x*x*v, x*y*v - z*s, x*z*v + y*s},
		{y*x*v + z*s, c + y*y*v, y*z*v - x*s},
		{z*x*v - y*s, z*y*v + x*s, c + z*z*v},
	}
	return t
}

// Mul returns t*o: o is applied first, then t.
func (t Transform3D) Mul(o Transform3D) Transform3D {
	var out Transform3D
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.R[i][j] = t.R[i][0]*o.R[0][j] + t.R[i][1]*o.R[1][j] + t.R[i][2]*o.R[2][j]
		}
		out.D[i] = t.R[i][0]*o.D[0] + t.R[i][1]*o.D[1] + t.R[i][2]*o.D[2] + t.D[i]
	}
	return out
}

// Inverse assumes R is orthonormal, which holds for every rigid placement.
func (t Transform3D) Inverse() Transform3D {
	var out Transform3D
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.R[i][j] = t.R[j][i]
		}
	}
	for i := 0; i < 3; i++ {
		out.D[i] = -(out.R[i][0]*t.D[0] + out.R[i][1]*t.D[1] + out.R[i][2]*t.D[2])
	}
	return out
}

func (t Transform3D) Apply(p Vector3) Vector3 {
	var out Vector3
	for i := 0; i < 3; i++ {
		out[i] = t.R[i][0]*p[0] + t.R[i][1]*p[1] + t.R[i][2]*p[2] + t.D[i]
	}
	return out
}

func (t Transform3D) Translation() Vector3 {
	return Vector3(t.D)
}

// AxisAngle decomposes the rotation part. For the identity rotation the axis is +z and the angle 0.
func (t Transform3D) AxisAngle() (Vector3, float64) {
	r := t.R
	cos := (r[0][0] + r[1][1] + r[2][2] - 1) / 2
	cos = math.Max(-1, math.Min(1, cos))
	angle := math.Acos(cos)
	if angle < 1e-12 {
		return Vector3{0, 0, 1}, 0
	}
	axis := Vector3{r[2][1] - r[1][2], r[0][2] - r[2][0], r[1][0] - r[0][1]}
	n := math.Sqrt(axis[0]*axis[0] + axis[1]*axis[1] + axis[2]*axis[2])
	if n < 1e-9 {
		// angle close to pi: take the axis from the diagonal
		axis = Vector3{
			math.Sqrt(math.Max(0, (r[0][0]+1)/2)),
			math.Sqrt(math.Max(0, (r[1][1]+1)/2)),
			math.Sqrt(math.Max(0, (r[2][2]+1)/2)),
		}
		if r[0][1] < 0 {
			axis[1] = -axis[1]
		}
		if r[0][2] < 0 {
			axis[2] = -axis[2]
		}
		return axis, angle
	}
	return Vector3{axis[0] / n, axis[1] / n, axis[2] / n}, angle
}

// Pow scales the rotation angle and the translation by f.
func (t Transform3D) Pow(f float64) Transform3D {
	axis, angle := t.AxisAngle()
	out := RotateAxis(axis, angle*f)
	out.D = [3]float64{t.D[0] * f, t.D[1] * f, t.D[2] * f}
	return out
}

// Elements returns xx, xy, xz, yx, yy, yz, zx, zy, zz, dx, dy, dz.
func (t Transform3D) Elements() [12]float64 {
	return [12]float64{
		t.R[0][0], t.R[0][1], t.R[0][2],
		t.R[1][0], t.R[1][1], t.R[1][2],
		t.R[2][0], t.R[2][1], t.R[2][2],
		t.D[0], t.D[1], t.D[2],
	}
}

// FromElements is the inverse of Elements.
func FromElements(e [12]float64) Transform3D {
	return Transform3D{
		R: [3][3]float64{{e[0], e[1], e[2]}, {e[3], e[4], e[5]}, {e[6], e[7], e[8]}},
		D: [3]float64{e[9], e[10], e[11]},
	}
}

func (t Transform3D) ApproxEqual(o Transform3D, eps float64) bool {
	a, b := t.Elements(), o.Elements()
	for i := range a {
		if math.Abs(a[i]-b[i]) > eps {
			return false
		}
	}
	return true
}

func (t Transform3D) IsIdentity() bool {
	return t == Identity()
}

func (t Transform3D) String() string {
	return fmt.Sprintf("[%g %g %g | %g; %g %g %g | %g; %g %g %g | %g]",
		t.R[0][0], t.R[0][1], t.R[0][2], t.D[0],
		t.R[1][0], t.R[1][1], t.R[1][2], t.D[1],
		t.R[2][0], t.R[2][1], t.R[2][2], t.D[2])
}
