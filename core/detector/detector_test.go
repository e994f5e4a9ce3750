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

package detector

import (
	"fmt"
	"math"
	"testing"

	"github.com/microbeam/ebsdgeom/core/pcconvention"
	"gonum.org/v1/gonum/floats/scalar"
)

func centeredPCs(n int) []pcconvention.PC {
	pcs := make([]pcconvention.PC, n)
	for i := range pcs {
		pcs[i] = pcconvention.PC{X: 0.5, Y: 0.5, Z: 0.5}
	}
	return pcs
}

func Example_newValidation() {
	_, err := New(Params{Shape: [2]int{0, 60}})
	fmt.Println(err)
	_, err = New(Params{Shape: [2]int{60, 60}, PxSize: -70})
	fmt.Println(err)
	_, err = New(Params{Shape: [2]int{60, 60}, PC: make([]pcconvention.PC, 6), NavShape: []int{2, 2}})
	fmt.Println(err)
	_, err = New(Params{Shape: [2]int{60, 60}, PC: make([]pcconvention.PC, 8), NavShape: []int{2, 2, 2}})
	fmt.Println(err)
	_, err = New(Params{Shape: [2]int{60, 60}, Convention: "unknownvendor"})
	fmt.Println(err)
	_, err = New(Params{Shape: [2]int{60, 60}, PC: []pcconvention.PC{{X: 0.5, Y: 0.5}}})
	fmt.Println(err)

	// Output:
	// invalid geometry: detector shape [0 60] must be positive
	// invalid geometry: pixel size -70 must be positive
	// invalid geometry: navigation shape [2 2] holds 4 points but 6 PCs given
	// invalid geometry: navigation dimension 3 exceeds 2
	// convention "unknownvendor": not a recognised PC convention (9 known)
	// invalid geometry: PC 0 has non-positive detector distance 0
}

func Example_navigationShape() {
	det, _ := New(Params{
		Shape:    [2]int{60, 60},
		PC:       centeredPCs(200),
		NavShape: []int{10, 20},
	})
	fmt.Println(det.NavigationShape(), det.NavigationDimension(), det.NavigationSize())

	flat, _ := det.FlatIndex(NavIndex{Row: 3, Col: 7})
	fmt.Println(flat)
	_, err := det.FlatIndex(NavIndex{Row: 10, Col: 0})
	fmt.Println(err)

	single, _ := New(Params{Shape: [2]int{60, 60}})
	fmt.Println(single.NavigationShape(), single.NavigationDimension(), single.NavigationSize())

	// Output:
	// [10 20] 2 200
	// 67
	// invalid geometry: navigation index {Row:10 Col:0} out of range for shape [10 20]
	// [] 0 1
}

func Example_crop() {
	det, _ := New(Params{Shape: [2]int{6, 6}, PC: []pcconvention.PC{{X: 3.0 / 6, Y: 2.0 / 6, Z: 0.5}}})
	cropped, _ := det.Crop(1, 5, 2, 6)
	pc := cropped.PCAverage()
	fmt.Println(cropped.Shape())
	fmt.Printf("%.2f %.2f %.2f\n", pc.X, pc.Y, pc.Z)

	_, err := det.Crop(5, 5, 2, 6)
	fmt.Println(err)

	// Output:
	// [4 4]
	// 0.25 0.25 0.75
	// invalid geometry: crop extent (5,5,2,6) must satisfy bottom > top and right > left
}

// The fixture from the spec: a 60x60 detector built from a TSL PC must hand
// the same TSL PC back
func Test_PCInRoundTrip(t *testing.T) {
	want := pcconvention.PC{X: 0.421, Y: 0.779, Z: 0.505}
	det, err := New(Params{
		Shape:      [2]int{60, 60},
		PC:         []pcconvention.PC{want},
		Convention: "tsl",
		PxSize:     70,
		Binning:    8,
		Tilt:       0,
		SampleTilt: 70,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	got, err := det.PCIn("tsl")
	if err != nil {
		t.Fatalf("PCIn failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("PCIn returned %v PCs; want 1", len(got))
	}
	if math.Abs(got[0].X-want.X) > 1e-6 || math.Abs(got[0].Y-want.Y) > 1e-6 || math.Abs(got[0].Z-want.Z) > 1e-6 {
		t.Errorf("PCIn(tsl) got %+v; want %+v", got[0], want)
	}
}

// Reference gnomonic bounds computed independently for a 60x60 detector
// with TSL PC (0.421, 0.779, 0.505), ie Bruker (0.421, 0.221, 0.505)
func Test_GnomonicBoundsReference(t *testing.T) {
	det, err := New(Params{
		Shape:      [2]int{60, 60},
		PC:         []pcconvention.PC{{X: 0.421, Y: 0.779, Z: 0.505}},
		Convention: "edax",
		PxSize:     70,
		Binning:    8,
		SampleTilt: 70,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	b, err := det.GnomonicBoundsAt(NavIndex{})
	if err != nil {
		t.Fatalf("GnomonicBoundsAt failed: %v", err)
	}

	want := GnomonicBounds{
		XMin: -0.83366337,
		XMax: 1.14653465,
		YMin: -1.54257426,
		YMax: 0.43762376,
	}
	for _, c := range [][2]float64{{b.XMin, want.XMin}, {b.XMax, want.XMax}, {b.YMin, want.YMin}, {b.YMax, want.YMax}} {
		if !scalar.EqualWithinAbs(c[0], c[1], 1e-8) {
			t.Errorf("gnomonic bounds got %+v; want %+v", b, want)
			break
		}
	}

	wantRMax := math.Hypot(b.XMax, b.YMin)
	if !scalar.EqualWithinAbs(b.RMax, wantRMax, 1e-12) {
		t.Errorf("RMax got %v; want %v (lower-right corner)", b.RMax, wantRMax)
	}
}

// Pushing the screen away (larger PCz) must strictly shrink the projected
// screen
func Test_RMaxDecreasesWithPCz(t *testing.T) {
	prev := math.Inf(1)
	for _, pcz := range []float64{0.3, 0.4, 0.5, 0.7, 1.0, 2.0} {
		det, err := New(Params{
			Shape:  [2]int{60, 80},
			PxSize: 70,
			PC:     []pcconvention.PC{{X: 0.4, Y: 0.6, Z: pcz}},
		})
		if err != nil {
			t.Fatalf("New failed for pcz=%v: %v", pcz, err)
		}
		b, err := det.GnomonicBoundsAt(NavIndex{})
		if err != nil {
			t.Fatalf("GnomonicBoundsAt failed: %v", err)
		}
		if b.RMax >= prev {
			t.Errorf("RMax %v at pcz=%v not below previous %v", b.RMax, pcz, prev)
		}
		prev = b.RMax
	}
}

func Test_PixelGnomonicInverse(t *testing.T) {
	det, err := New(Params{
		Shape:    [2]int{48, 64},
		PxSize:   59.2,
		Binning:  2,
		PC:       []pcconvention.PC{{X: 0.45, Y: 0.7, Z: 0.6}, {X: 0.55, Y: 0.3, Z: 0.4}},
		NavShape: []int{2},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for navCol := 0; navCol < 2; navCol++ {
		idx := NavIndex{Col: navCol}
		for _, px := range [][2]float64{{0, 0}, {64, 48}, {12.5, 33.25}, {40, 7}} {
			xg, yg, err := det.PixelToGnomonic(idx, px[0], px[1])
			if err != nil {
				t.Fatalf("PixelToGnomonic failed: %v", err)
			}
			col, row, err := det.GnomonicToPixel(idx, xg, yg)
			if err != nil {
				t.Fatalf("GnomonicToPixel failed: %v", err)
			}
			if !scalar.EqualWithinAbs(col, px[0], 1e-10) || !scalar.EqualWithinAbs(row, px[1], 1e-10) {
				t.Errorf("nav %v pixel (%v,%v) round-tripped to (%v,%v)", navCol, px[0], px[1], col, row)
			}
		}
	}
}

func Test_WithPCSnapshot(t *testing.T) {
	det, err := New(Params{Shape: [2]int{60, 60}, PC: []pcconvention.PC{{X: 0.5, Y: 0.5, Z: 0.5}}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	b1, _ := det.GnomonicBoundsAt(NavIndex{})

	det2, err := det.WithPC([]pcconvention.PC{{X: 0.5, Y: 0.5, Z: 1.0}}, nil)
	if err != nil {
		t.Fatalf("WithPC failed: %v", err)
	}
	b2, _ := det2.GnomonicBoundsAt(NavIndex{})
	if b2.RMax >= b1.RMax {
		t.Errorf("new snapshot bounds not recomputed: %v vs %v", b2.RMax, b1.RMax)
	}

	// Original snapshot unchanged
	b1Again, _ := det.GnomonicBoundsAt(NavIndex{})
	if b1Again != b1 {
		t.Errorf("original snapshot mutated: %+v vs %+v", b1Again, b1)
	}

	_, err = det.WithPC(make([]pcconvention.PC, 3), []int{2, 2})
	if err == nil {
		t.Error("expected nav shape mismatch error")
	}
	_, err = det.WithPC(make([]pcconvention.PC, 4), []int{2, 2})
	if err == nil {
		t.Error("expected non-positive PCz rejection")
	}
}

func Test_CheckNavigationCompatible(t *testing.T) {
	det, err := New(Params{
		Shape:    [2]int{60, 60},
		PC:       centeredPCs(12),
		NavShape: []int{3, 4},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err = det.CheckNavigationCompatible([]int{3, 4}); err != nil {
		t.Errorf("matching shape rejected: %v", err)
	}
	if err = det.CheckNavigationCompatible([]int{4, 3}); err == nil {
		t.Error("mismatched shape accepted")
	}
	if err = det.CheckNavigationCompatible([]int{12}); err == nil {
		t.Error("mismatched dimension accepted")
	}
	var geomErr *InvalidGeometry
	err = det.CheckNavigationCompatible([]int{12})
	if !asInvalidGeometry(err, &geomErr) {
		t.Errorf("expected *InvalidGeometry, got %T", err)
	}
}

func asInvalidGeometry(err error, target **InvalidGeometry) bool {
	e, ok := err.(*InvalidGeometry)
	if ok {
		*target = e
	}
	return ok
}
