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
	"math"

	"github.com/microbeam/ebsdgeom/core/detector"
)

// frameTransform - the geometry-fixed map from the sample frame to the
// detector (gnomonic) frame. With the sample tilted sigma from horizontal,
// the detector tilted theta, alpha = sigma - theta, sample x (RD, pointing
// down the tilted surface) and sample y (TD), the detector axes are
//
//	x_d = y_s
//	y_d = -sin(alpha) x_s + cos(alpha) z_s
//	z_d = cos(alpha) x_s + sin(alpha) z_s
//
// with x_d right and y_d up on the screen as viewed from the detector, and
// z_d running from the sample toward the screen. A positive azimuthal angle
// first swings the sample normal toward +x_d.
type frameTransform struct {
	sinA, cosA     float64
	sinPhi, cosPhi float64
}

func newFrameTransform(sampleTiltDeg float64, tiltDeg float64, azimuthalDeg float64) frameTransform {
	alpha := (sampleTiltDeg - tiltDeg) * math.Pi / 180
	phi := azimuthalDeg * math.Pi / 180
	return frameTransform{
		sinA: math.Sin(alpha), cosA: math.Cos(alpha),
		sinPhi: math.Sin(phi), cosPhi: math.Cos(phi),
	}
}

func (f frameTransform) apply(v [3]float64) [3]float64 {
	// Azimuthal rotation about the sample RD axis
	y := f.cosPhi*v[1] + f.sinPhi*v[2]
	z := -f.sinPhi*v[1] + f.cosPhi*v[2]
	x := v[0]

	return [3]float64{
		y,
		-f.sinA*x + f.cosA*z,
		f.cosA*x + f.sinA*z,
	}
}

// clipPlaneTrace - intersects the trace of the plane x*n0 + y*n1 + n2 = 0
// (the band's line in the gnomonic plane z=1) with the bounds rectangle.
// Returns the two clipped endpoints ordered along the line direction
// (-n1, n0), or ok=false when the line misses the rectangle.
func clipPlaneTrace(n [3]float64, b detector.GnomonicBounds) (float64, float64, float64, float64, bool) {
	a2 := n[0]*n[0] + n[1]*n[1]
	if a2 == 0 {
		// Plane parallel to the gnomonic plane, no trace
		return 0, 0, 0, 0, false
	}

	// Point on the line closest to the PC, plus the line direction
	px := -n[2] * n[0] / a2
	py := -n[2] * n[1] / a2
	norm := math.Sqrt(a2)
	dx := -n[1] / norm
	dy := n[0] / norm

	tMin := math.Inf(-1)
	tMax := math.Inf(1)

	clip := func(p float64, d float64, lo float64, hi float64) bool {
		if d == 0 {
			return p >= lo && p <= hi
		}
		t1 := (lo - p) / d
		t2 := (hi - p) / d
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tMin = math.Max(tMin, t1)
		tMax = math.Min(tMax, t2)
		return true
	}

	if !clip(px, dx, b.XMin, b.XMax) || !clip(py, dy, b.YMin, b.YMax) {
		return 0, 0, 0, 0, false
	}
	if tMin > tMax {
		return 0, 0, 0, 0, false
	}
	return px + tMin*dx, py + tMin*dy, px + tMax*dx, py + tMax*dy, true
}
