// Package linalg provides the small fixed-size vector and matrix types used
// by the scan matcher, explicit 2×2–4×4 inverses, and the modified Cholesky
// routines that keep Newton steps well defined on indefinite Hessians.
//
// Matrices are row-major fixed arrays (Mat3[r*3+c]). n×n routines work on
// gonum's mat types through the Square interface.
package linalg

import (
	"errors"
	"math"
)

// ErrSingular is returned when a matrix cannot be inverted or factorised.
var ErrSingular = errors.New("linalg: singular matrix")

type (
	Vec2 [2]float64
	Vec3 [3]float64
	Mat2 [4]float64
	Mat3 [9]float64
	Mat4 [16]float64
)

// Square is the read view shared by the fixed types and gonum matrices.
type Square interface {
	Dim() int
	At(i, j int) float64
}

func (m *Mat2) Dim() int                { return 2 }
func (m *Mat2) At(i, j int) float64     { return m[i*2+j] }
func (m *Mat2) Set(i, j int, v float64) { m[i*2+j] = v }
func (m *Mat3) Dim() int                { return 3 }
func (m *Mat3) At(i, j int) float64     { return m[i*3+j] }
func (m *Mat3) Set(i, j int, v float64) { m[i*3+j] = v }
func (m *Mat4) Dim() int                { return 4 }
func (m *Mat4) At(i, j int) float64     { return m[i*4+j] }
func (m *Mat4) Set(i, j int, v float64) { m[i*4+j] = v }

func Identity2() Mat2 { return Mat2{1, 0, 0, 1} }
func Identity3() Mat3 { return Mat3{1, 0, 0, 0, 1, 0, 0, 0, 1} }
func Identity4() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Diag3 returns a diagonal matrix.
func Diag3(a, b, c float64) Mat3 { return Mat3{a, 0, 0, 0, b, 0, 0, 0, c} }

func (v Vec2) Add(u Vec2) Vec2      { return Vec2{v[0] + u[0], v[1] + u[1]} }
func (v Vec2) Sub(u Vec2) Vec2      { return Vec2{v[0] - u[0], v[1] - u[1]} }
func (v Vec2) Scale(s float64) Vec2 { return Vec2{v[0] * s, v[1] * s} }
func (v Vec2) Dot(u Vec2) float64   { return v[0]*u[0] + v[1]*u[1] }
func (v Vec2) Norm() float64        { return math.Hypot(v[0], v[1]) }
func (v Vec3) Add(u Vec3) Vec3      { return Vec3{v[0] + u[0], v[1] + u[1], v[2] + u[2]} }
func (v Vec3) Sub(u Vec3) Vec3      { return Vec3{v[0] - u[0], v[1] - u[1], v[2] - u[2]} }
func (v Vec3) Scale(s float64) Vec3 { return Vec3{v[0] * s, v[1] * s, v[2] * s} }
func (v Vec3) Dot(u Vec3) float64   { return v[0]*u[0] + v[1]*u[1] + v[2]*u[2] }

// Outer2 returns v·uᵗ.
func Outer2(v, u Vec2) Mat2 {
	return Mat2{v[0] * u[0], v[0] * u[1], v[1] * u[0], v[1] * u[1]}
}

// Outer3 returns v·uᵗ.
func Outer3(v, u Vec3) Mat3 {
	var m Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m[i*3+j] = v[i] * u[j]
		}
	}
	return m
}

func (m Mat2) Add(n Mat2) Mat2 {
	return Mat2{m[0] + n[0], m[1] + n[1], m[2] + n[2], m[3] + n[3]}
}

func (m Mat2) Scale(s float64) Mat2 { return Mat2{m[0] * s, m[1] * s, m[2] * s, m[3] * s} }

func (m Mat2) MulVec(v Vec2) Vec2 {
	return Vec2{m[0]*v[0] + m[1]*v[1], m[2]*v[0] + m[3]*v[1]}
}

// Quad returns vᵗ·m·v.
func (m Mat2) Quad(v Vec2) float64 { return v.Dot(m.MulVec(v)) }

func (m Mat2) Det() float64 { return m[0]*m[3] - m[1]*m[2] }

// Inverse uses the closed-form adjugate formula.
func (m Mat2) Inverse() (Mat2, error) {
	det := m.Det()
	if det == 0 || !isFinite(det) {
		return Mat2{}, ErrSingular
	}
	inv := 1 / det
	return Mat2{m[3] * inv, -m[1] * inv, -m[2] * inv, m[0] * inv}, nil
}

func (m Mat3) Add(n Mat3) Mat3 {
	for i := range m {
		m[i] += n[i]
	}
	return m
}

func (m Mat3) Scale(s float64) Mat3 {
	for i := range m {
		m[i] *= s
	}
	return m
}

func (m Mat3) Transpose() Mat3 {
	return Mat3{m[0], m[3], m[6], m[1], m[4], m[7], m[2], m[5], m[8]}
}

func (m Mat3) Mul(n Mat3) Mat3 {
	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i*3+j] = m[i*3]*n[j] + m[i*3+1]*n[3+j] + m[i*3+2]*n[6+j]
		}
	}
	return out
}

func (m Mat3) MulVec(v Vec3) Vec3 {
	return Vec3{
		m[0]*v[0] + m[1]*v[1] + m[2]*v[2],
		m[3]*v[0] + m[4]*v[1] + m[5]*v[2],
		m[6]*v[0] + m[7]*v[1] + m[8]*v[2],
	}
}

func (m Mat3) Det() float64 {
	return m[0]*(m[4]*m[8]-m[5]*m[7]) -
		m[1]*(m[3]*m[8]-m[5]*m[6]) +
		m[2]*(m[3]*m[7]-m[4]*m[6])
}

// Inverse uses the cofactor expansion.
func (m Mat3) Inverse() (Mat3, error) {
	a, b, c := m[0], m[1], m[2]
	d, e, f := m[3], m[4], m[5]
	g, h, i := m[6], m[7], m[8]

	ca := e*i - f*h
	cb := -(d*i - f*g)
	cc := d*h - e*g
	det := a*ca + b*cb + c*cc
	if det == 0 || !isFinite(det) {
		return Mat3{}, ErrSingular
	}
	inv := 1 / det
	return Mat3{
		ca * inv, -(b*i - c*h) * inv, (b*f - c*e) * inv,
		cb * inv, (a*i - c*g) * inv, -(a*f - c*d) * inv,
		cc * inv, -(a*h - b*g) * inv, (a*e - b*d) * inv,
	}, nil
}

func (m Mat4) Mul(n Mat4) Mat4 {
	var out Mat4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var s float64
			for k := 0; k < 4; k++ {
				s += m[i*4+k] * n[k*4+j]
			}
			out[i*4+j] = s
		}
	}
	return out
}

// Transform2 applies the homogeneous transform to (p.x, p.y, 0, 1) and
// returns the x, y components.
func (m Mat4) Transform2(p Vec2) Vec2 {
	return Vec2{
		m[0]*p[0] + m[1]*p[1] + m[3],
		m[4]*p[0] + m[5]*p[1] + m[7],
	}
}

// Inverse uses 2×2 sub-determinants of the upper and lower row pairs.
func (m Mat4) Inverse() (Mat4, error) {
	s0 := m[0]*m[5] - m[4]*m[1]
	s1 := m[0]*m[6] - m[4]*m[2]
	s2 := m[0]*m[7] - m[4]*m[3]
	s3 := m[1]*m[6] - m[5]*m[2]
	s4 := m[1]*m[7] - m[5]*m[3]
	s5 := m[2]*m[7] - m[6]*m[3]

	c5 := m[10]*m[15] - m[14]*m[11]
	c4 := m[9]*m[15] - m[13]*m[11]
	c3 := m[9]*m[14] - m[13]*m[10]
	c2 := m[8]*m[15] - m[12]*m[11]
	c1 := m[8]*m[14] - m[12]*m[10]
	c0 := m[8]*m[13] - m[12]*m[9]

	det := s0*c5 - s1*c4 + s2*c3 + s3*c2 - s4*c1 + s5*c0
	if det == 0 || !isFinite(det) {
		return Mat4{}, ErrSingular
	}
	inv := 1 / det

	return Mat4{
		(m[5]*c5 - m[6]*c4 + m[7]*c3) * inv,
		(-m[1]*c5 + m[2]*c4 - m[3]*c3) * inv,
		(m[13]*s5 - m[14]*s4 + m[15]*s3) * inv,
		(-m[9]*s5 + m[10]*s4 - m[11]*s3) * inv,

		(-m[4]*c5 + m[6]*c2 - m[7]*c1) * inv,
		(m[0]*c5 - m[2]*c2 + m[3]*c1) * inv,
		(-m[12]*s5 + m[14]*s2 - m[15]*s1) * inv,
		(m[8]*s5 - m[10]*s2 + m[11]*s1) * inv,

		(m[4]*c4 - m[5]*c2 + m[7]*c0) * inv,
		(-m[0]*c4 + m[1]*c2 - m[3]*c0) * inv,
		(m[12]*s4 - m[13]*s2 + m[15]*s0) * inv,
		(-m[8]*s4 + m[9]*s2 - m[11]*s0) * inv,

		(-m[4]*c3 + m[5]*c1 - m[6]*c0) * inv,
		(m[0]*c3 - m[1]*c1 + m[2]*c0) * inv,
		(-m[12]*s3 + m[13]*s1 - m[14]*s0) * inv,
		(m[8]*s3 - m[9]*s1 + m[10]*s0) * inv,
	}, nil
}

func isFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// IsFinite3 reports whether every component of v is finite.
func IsFinite3(v Vec3) bool { return isFinite(v[0]) && isFinite(v[1]) && isFinite(v[2]) }
