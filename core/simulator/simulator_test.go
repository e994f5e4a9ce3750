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
	"context"
	"math"
	"testing"

	"github.com/microbeam/ebsdgeom/core/detector"
	"github.com/microbeam/ebsdgeom/core/pcconvention"
	"gonum.org/v1/gonum/floats/scalar"
)

// The frozen fixture geometry: 60x60 screen, PC at its center at half the
// pattern height, sample tilted 70 degrees, detector untilted
func fixtureDetector(t *testing.T) *detector.EBSDDetector {
	t.Helper()
	det, err := detector.New(detector.Params{
		Shape:      [2]int{60, 60},
		PC:         []pcconvention.PC{{X: 0.5, Y: 0.5, Z: 0.5}},
		SampleTilt: 70,
		Tilt:       0,
	})
	if err != nil {
		t.Fatalf("fixture detector failed: %v", err)
	}
	return det
}

// Identity orientation, hkl (1,1,1): in the detector frame the plane
// normal is (1, cos70-sin70, cos70+sin70)/sqrt(3), so the trace is the
// line x - (sin70-cos70) y + (sin70+cos70) = 0 clipped to the square
// [-1,1]^2, entering at x=-1 and leaving at y=1
func Test_BandFixture111(t *testing.T) {
	det := fixtureDetector(t)

	sim, err := Simulate(context.Background(), det, []Rotation{IdentityRotation()}, []Direction{Band(1, 1, 1)}, Options{})
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	features, err := sim.AtFlat(0)
	if err != nil {
		t.Fatalf("AtFlat failed: %v", err)
	}
	f := features[0]
	if !f.Visible {
		t.Fatal("band (1,1,1) should be visible")
	}

	sin70 := math.Sin(70 * math.Pi / 180)
	cos70 := math.Cos(70 * math.Pi / 180)
	wantX1, wantY1 := -1.0, (-1+cos70+sin70)/(sin70-cos70)
	wantX2, wantY2 := -2*cos70, 1.0

	for _, c := range [][2]float64{{f.GX1, wantX1}, {f.GY1, wantY1}, {f.GX2, wantX2}, {f.GY2, wantY2}} {
		if !scalar.EqualWithinAbs(c[0], c[1], 1e-9) {
			t.Errorf("trace endpoints got (%v,%v)-(%v,%v); want (%v,%v)-(%v,%v)",
				f.GX1, f.GY1, f.GX2, f.GY2, wantX1, wantY1, wantX2, wantY2)
			break
		}
	}

	// Pixel endpoints through the gnomonic->pixel map: col = 30 + 30 x,
	// row = 30 - 30 y for this PC
	for _, c := range [][2]float64{
		{f.PX1, 30 + 30*wantX1}, {f.PY1, 30 - 30*wantY1},
		{f.PX2, 30 + 30*wantX2}, {f.PY2, 30 - 30*wantY2},
	} {
		if !scalar.EqualWithinAbs(c[0], c[1], 1e-7) {
			t.Errorf("pixel endpoints got (%v,%v)-(%v,%v)", f.PX1, f.PY1, f.PX2, f.PY2)
			break
		}
	}
}

// Identity orientation, uvw (0,0,1): the sample normal is 20 degrees above
// the detector normal, so it lands at (0, cot70) above the PC
func Test_ZoneAxisFixture001(t *testing.T) {
	det := fixtureDetector(t)

	sim, err := Simulate(context.Background(), det, []Rotation{IdentityRotation()}, []Direction{ZoneAxis(0, 0, 1)}, Options{})
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	features, _ := sim.AtFlat(0)
	f := features[0]
	if !f.Visible {
		t.Fatal("zone axis (0,0,1) should be visible")
	}

	cot70 := 1 / math.Tan(70*math.Pi/180)
	if !scalar.EqualWithinAbs(f.GX1, 0, 1e-12) || !scalar.EqualWithinAbs(f.GY1, cot70, 1e-12) {
		t.Errorf("zone axis got (%v,%v); want (0,%v)", f.GX1, f.GY1, cot70)
	}
	if f.GX1 != f.GX2 || f.GY1 != f.GY2 {
		t.Errorf("zone axis endpoints should coincide: (%v,%v) vs (%v,%v)", f.GX1, f.GY1, f.GX2, f.GY2)
	}
	if !scalar.EqualWithinAbs(f.PX1, 30, 1e-9) || !scalar.EqualWithinAbs(f.PY1, 30-30*cot70, 1e-9) {
		t.Errorf("zone axis pixel got (%v,%v)", f.PX1, f.PY1)
	}
}

func Test_InvisibleOutcomes(t *testing.T) {
	det := fixtureDetector(t)

	dirs := []Direction{
		ZoneAxis(0, 0, -1), // points away from the screen
		ZoneAxis(1, 0, 0),  // projects far below the screen
		Band(0, 0, 1),      // trace at y = -tan70, outside bounds
	}
	sim, err := Simulate(context.Background(), det, []Rotation{IdentityRotation()}, dirs, Options{})
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	features, _ := sim.AtFlat(0)
	for i, f := range features {
		if f.Visible {
			t.Errorf("direction %v (%v %v) should be invisible", i, f.Direction.Kind, f.Direction.Indices)
		}
		if !math.IsNaN(f.GX1) || !math.IsNaN(f.PY2) {
			t.Errorf("direction %v invisible coordinates should be NaN, got %+v", i, f)
		}
	}
}

// Both hemisphere representatives of a plane must produce the same trace
func Test_BandHemisphereConsistency(t *testing.T) {
	det := fixtureDetector(t)

	sim, err := Simulate(context.Background(), det, []Rotation{IdentityRotation()},
		[]Direction{Band(1, 1, 1), Band(-1, -1, -1)}, Options{})
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	features, _ := sim.AtFlat(0)
	a, b := features[0], features[1]
	if !a.Visible || !b.Visible {
		t.Fatal("both representatives should be visible")
	}
	if a.GX1 != b.GX1 || a.GY1 != b.GY1 || a.GX2 != b.GX2 || a.GY2 != b.GY2 {
		t.Errorf("traces differ: (%v,%v)-(%v,%v) vs (%v,%v)-(%v,%v)",
			a.GX1, a.GY1, a.GX2, a.GY2, b.GX1, b.GY1, b.GX2, b.GY2)
	}
}

// A fully rotated sample normal must leave the screen
func Test_OrientationChangesOutcome(t *testing.T) {
	det := fixtureDetector(t)

	flip, err := RotationFromAxisAngle([3]float64{1, 0, 0}, math.Pi)
	if err != nil {
		t.Fatalf("RotationFromAxisAngle failed: %v", err)
	}
	sim, err := Simulate(context.Background(), det, []Rotation{flip}, []Direction{ZoneAxis(0, 0, 1)}, Options{})
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	features, _ := sim.AtFlat(0)
	if features[0].Visible {
		t.Error("flipped (0,0,1) should point away from the screen")
	}
}

func Test_NavigationShapeMismatch(t *testing.T) {
	det := fixtureDetector(t) // navigation dimension 0

	rots := []Rotation{IdentityRotation(), IdentityRotation()}
	_, err := Simulate(context.Background(), det, rots, []Direction{Band(1, 1, 1)}, Options{})
	if err == nil {
		t.Fatal("expected navigation shape mismatch without Broadcast0D")
	}
	if _, ok := err.(*detector.InvalidGeometry); !ok {
		t.Errorf("expected *InvalidGeometry, got %T: %v", err, err)
	}

	// The same batch is fine when broadcast is asked for explicitly
	sim, err := Simulate(context.Background(), det, rots, []Direction{Band(1, 1, 1)}, Options{Broadcast0D: true})
	if err != nil {
		t.Fatalf("Simulate with Broadcast0D failed: %v", err)
	}
	if got := sim.NavigationShape(); len(got) != 1 || got[0] != 2 {
		t.Errorf("broadcast navigation shape got %v; want [2]", got)
	}
}

// The worker fan-out must give exactly the serial result
func Test_WorkersMatchSerial(t *testing.T) {
	pcs := make([]pcconvention.PC, 12)
	for i := range pcs {
		pcs[i] = pcconvention.PC{X: 0.45 + 0.01*float64(i%4), Y: 0.5, Z: 0.49 + 0.01*float64(i/4)}
	}
	det, err := detector.New(detector.Params{
		Shape:      [2]int{60, 60},
		PC:         pcs,
		NavShape:   []int{3, 4},
		SampleTilt: 70,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	rots := make([]Rotation, 12)
	for i := range rots {
		r, err := RotationFromAxisAngle([3]float64{0, 0, 1}, float64(i)*0.1)
		if err != nil {
			t.Fatalf("RotationFromAxisAngle failed: %v", err)
		}
		rots[i] = r
	}
	dirs := []Direction{Band(1, 1, 1), Band(2, 0, 0), ZoneAxis(0, 0, 1), ZoneAxis(1, 0, 1)}

	serial, err := Simulate(context.Background(), det, rots, dirs, Options{RotShape: []int{3, 4}})
	if err != nil {
		t.Fatalf("serial Simulate failed: %v", err)
	}
	parallel, err := Simulate(context.Background(), det, rots, dirs, Options{RotShape: []int{3, 4}, Workers: 5})
	if err != nil {
		t.Fatalf("parallel Simulate failed: %v", err)
	}

	for flat := 0; flat < 12; flat++ {
		sf, _ := serial.AtFlat(flat)
		pf, _ := parallel.AtFlat(flat)
		for di := range sf {
			if sf[di].Visible != pf[di].Visible {
				t.Fatalf("nav %v dir %v visibility differs", flat, di)
			}
			if sf[di].Visible && (sf[di].GX1 != pf[di].GX1 || sf[di].GY2 != pf[di].GY2) {
				t.Fatalf("nav %v dir %v coordinates differ", flat, di)
			}
		}
	}

	// 2D indexing reaches the same entries as flat indexing
	f22, err := serial.At(detector.NavIndex{Row: 2, Col: 2})
	if err != nil {
		t.Fatalf("At failed: %v", err)
	}
	fFlat, _ := serial.AtFlat(2*4 + 2)
	if f22[0] != fFlat[0] {
		t.Error("At and AtFlat disagree")
	}
}

func Test_Cancellation(t *testing.T) {
	det := fixtureDetector(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rots := make([]Rotation, 100)
	for i := range rots {
		rots[i] = IdentityRotation()
	}
	_, err := Simulate(ctx, det, rots, []Direction{Band(1, 1, 1)}, Options{Broadcast0D: true})
	if err == nil {
		t.Error("expected context error from cancelled simulation")
	}
}

func Test_RotationBasics(t *testing.T) {
	r, err := RotationFromAxisAngle([3]float64{0, 0, 1}, math.Pi/2)
	if err != nil {
		t.Fatalf("RotationFromAxisAngle failed: %v", err)
	}
	v := r.Apply([3]float64{1, 0, 0})
	want := [3]float64{0, 1, 0}
	for i := range v {
		if !scalar.EqualWithinAbs(v[i], want[i], 1e-12) {
			t.Errorf("rotation about z got %v; want %v", v, want)
			break
		}
	}

	if _, err = RotationFromQuaternion(0, 0, 0, 0); err == nil {
		t.Error("zero quaternion accepted")
	}
	if _, err = RotationFromAxisAngle([3]float64{0, 0, 0}, 1); err == nil {
		t.Error("zero axis accepted")
	}

	// Non-unit input quaternions are normalized
	r2, err := RotationFromQuaternion(2, 0, 0, 0)
	if err != nil {
		t.Fatalf("RotationFromQuaternion failed: %v", err)
	}
	w, x, y, z := r2.Quaternion()
	if w != 1 || x != 0 || y != 0 || z != 0 {
		t.Errorf("normalized quaternion got (%v,%v,%v,%v); want (1,0,0,0)", w, x, y, z)
	}
}

func Test_RotationFromMatrix(t *testing.T) {
	// 90 degrees about z, row-major
	rm, err := RotationFromMatrix([3][3]float64{
		{0, -1, 0},
		{1, 0, 0},
		{0, 0, 1},
	})
	if err != nil {
		t.Fatalf("RotationFromMatrix failed: %v", err)
	}

	ra, err := RotationFromAxisAngle([3]float64{0, 0, 1}, math.Pi/2)
	if err != nil {
		t.Fatalf("RotationFromAxisAngle failed: %v", err)
	}

	for _, v := range [][3]float64{{1, 0, 0}, {0, 1, 0}, {0.3, -0.4, 0.5}} {
		got := rm.Apply(v)
		want := ra.Apply(v)
		for i := range got {
			if !scalar.EqualWithinAbs(got[i], want[i], 1e-12) {
				t.Errorf("matrix rotation of %v got %v; want %v", v, got, want)
				break
			}
		}
	}

	// A reflection has determinant -1
	if _, err = RotationFromMatrix([3][3]float64{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, -1},
	}); err == nil {
		t.Error("reflection accepted as a rotation")
	}

	// Scaled rows are not orthonormal
	if _, err = RotationFromMatrix([3][3]float64{
		{2, 0, 0},
		{0, 0.5, 0},
		{0, 0, 1},
	}); err == nil {
		t.Error("non-orthonormal matrix accepted")
	}
}
