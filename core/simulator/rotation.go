// Licensed to NASA JPL under one or more contributor
// license agreements. See the NOTICE file distributed with
// this work for additional information regarding copyright
// ownership. NASA JPL licenses this file to you under
// the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package simulator

import (
	"fmt"
	"math"

	"github.com/microbeam/ebsdgeom/core/detector"
	"gonum.org/v1/gonum/num/quat"
)

func errZeroQuaternion() error {
	return &detector.InvalidGeometry{Reason: "zero quaternion is not a rotation"}
}

func errZeroAxis() error {
	return &detector.InvalidGeometry{Reason: "rotation axis must be nonzero"}
}

// Rotation - a unit quaternion taking crystal-frame vectors to the sample
// frame. One is supplied per navigation point by the orientation provider.
type Rotation struct {
	q quat.Number
}

// IdentityRotation - leaves vectors unchanged
func IdentityRotation() Rotation {
	return Rotation{q: quat.Number{Real: 1}}
}

// RotationFromQuaternion - builds a rotation from (w, x, y, z) components,
// normalizing them. A zero quaternion is not a rotation.
func RotationFromQuaternion(w float64, x float64, y float64, z float64) (Rotation, error) {
	q := quat.Number{Real: w, Imag: x, Jmag: y, Kmag: z}
	n := quat.Abs(q)
	if n == 0 || math.IsNaN(n) {
		return Rotation{}, errZeroQuaternion()
	}
	return Rotation{q: quat.Scale(1/n, q)}, nil
}

// RotationFromAxisAngle - right-handed rotation of angleRad about axis
func RotationFromAxisAngle(axis [3]float64, angleRad float64) (Rotation, error) {
	n := math.Sqrt(axis[0]*axis[0] + axis[1]*axis[1] + axis[2]*axis[2])
	if n == 0 {
		return Rotation{}, errZeroAxis()
	}
	s := math.Sin(angleRad/2) / n
	return Rotation{q: quat.Number{
		Real: math.Cos(angleRad / 2),
		Imag: axis[0] * s,
		Jmag: axis[1] * s,
		Kmag: axis[2] * s,
	}}, nil
}

// RotationFromMatrix - builds a rotation from a row-major 3x3 proper
// rotation matrix (orthonormal, determinant +1)
func RotationFromMatrix(m [3][3]float64) (Rotation, error) {
	det := m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
	if math.Abs(det-1) > 1e-6 {
		return Rotation{}, &detector.InvalidGeometry{Reason: fmt.Sprintf("rotation matrix determinant %v, want +1", det)}
	}
	for i := 0; i < 3; i++ {
		for j := i; j < 3; j++ {
			dot := m[i][0]*m[j][0] + m[i][1]*m[j][1] + m[i][2]*m[j][2]
			want := 0.0
			if i == j {
				want = 1
			}
			if math.Abs(dot-want) > 1e-6 {
				return Rotation{}, &detector.InvalidGeometry{Reason: "rotation matrix rows are not orthonormal"}
			}
		}
	}

	// Shepperd's method: pick the largest of the four quaternion terms to
	// divide by, for numerical stability
	var w, x, y, z float64
	if tr := m[0][0] + m[1][1] + m[2][2]; tr > 0 {
		s := 2 * math.Sqrt(tr+1)
		w = s / 4
		x = (m[2][1] - m[1][2]) / s
		y = (m[0][2] - m[2][0]) / s
		z = (m[1][0] - m[0][1]) / s
	} else if m[0][0] >= m[1][1] && m[0][0] >= m[2][2] {
		s := 2 * math.Sqrt(1+m[0][0]-m[1][1]-m[2][2])
		w = (m[2][1] - m[1][2]) / s
		x = s / 4
		y = (m[0][1] + m[1][0]) / s
		z = (m[0][2] + m[2][0]) / s
	} else if m[1][1] >= m[2][2] {
		s := 2 * math.Sqrt(1+m[1][1]-m[0][0]-m[2][2])
		w = (m[0][2] - m[2][0]) / s
		x = (m[0][1] + m[1][0]) / s
		y = s / 4
		z = (m[1][2] + m[2][1]) / s
	} else {
		s := 2 * math.Sqrt(1+m[2][2]-m[0][0]-m[1][1])
		w = (m[1][0] - m[0][1]) / s
		x = (m[0][2] + m[2][0]) / s
		y = (m[1][2] + m[2][1]) / s
		z = s / 4
	}

	return RotationFromQuaternion(w, x, y, z)
}

// Apply - rotates v, computed as q v q*
func (r Rotation) Apply(v [3]float64) [3]float64 {
	p := quat.Number{Imag: v[0], Jmag: v[1], Kmag: v[2]}
	pp := quat.Mul(quat.Mul(r.q, p), quat.Conj(r.q))
	return [3]float64{pp.Imag, pp.Jmag, pp.Kmag}
}

// Quaternion - the (w, x, y, z) components
func (r Rotation) Quaternion() (float64, float64, float64, float64) {
	return r.q.Real, r.q.Imag, r.q.Jmag, r.q.Kmag
}
