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

// The sample-detector geometry model for EBSD: detector shape, pixel size,
// binning, tilts and a grid of projection centers, one per scan position.
// From these it derives the pixel-space and gnomonic-space bounds that the
// band/zone-axis simulator clips against.
package detector

import (
	"fmt"
	"math"

	"github.com/microbeam/ebsdgeom/core/pcconvention"
)

// InvalidGeometry - non-positive shape/pixel size/binning, a navigation
// shape that doesn't match its PC count, or a navigation shape mismatch
// against another batch (eg orientations)
type InvalidGeometry struct {
	Reason string
}

func (e *InvalidGeometry) Error() string {
	return "invalid geometry: " + e.Reason
}

// NavIndex - a position within the (at most 2D) navigation grid of scan
// points. For a 1D grid only Col is used, for a single-PC detector both are
// zero. Navigation shapes are never broadcast implicitly; callers index
// explicitly.
type NavIndex struct {
	Row int
	Col int
}

// GnomonicBounds - the detector rectangle seen from one navigation point's
// PC, in gnomonic coordinates, plus the largest radial distance from the PC
// to a detector corner
type GnomonicBounds struct {
	XMin float64 `json:"xMin"`
	XMax float64 `json:"xMax"`
	YMin float64 `json:"yMin"`
	YMax float64 `json:"yMax"`
	RMax float64 `json:"rMax"`
}

// Params - everything needed to build an EBSDDetector. Zero values for
// PxSize, Binning and Convention mean 1, 1 and "bruker".
type Params struct {
	Shape      [2]int  // rows, cols
	PxSize     float64 // unbinned pixel size, physical units/px
	Binning    int
	Tilt       float64 // detector tilt from horizontal, degrees
	Azimuthal  float64 // sample tilt about the sample RD axis, degrees
	SampleTilt float64 // sample tilt from horizontal, degrees
	PC         []pcconvention.PC
	NavShape   []int  // 0, 1 or 2 dims; empty means single PC
	Convention string // convention the supplied PCs are in
}

// EBSDDetector - an immutable snapshot of the sample-detector geometry.
// PCs are stored canonically (Bruker); every other convention is a derived
// view. Changing the PC grid means building a new snapshot (WithPC), so
// derived bounds are always recomputed, never patched.
type EBSDDetector struct {
	shape      [2]int
	pxSize     float64
	binning    int
	tilt       float64
	azimuthal  float64
	sampleTilt float64

	navShape []int
	pc       []pcconvention.PC // canonical, len == product(navShape)
}

// New - validates parameters and normalizes the supplied PCs from their
// convention to canonical form immediately
func New(p Params) (*EBSDDetector, error) {
	if p.Shape[0] <= 0 || p.Shape[1] <= 0 {
		return nil, &InvalidGeometry{Reason: fmt.Sprintf("detector shape %v must be positive", p.Shape)}
	}
	if p.PxSize == 0 {
		p.PxSize = 1
	}
	if p.PxSize < 0 {
		return nil, &InvalidGeometry{Reason: fmt.Sprintf("pixel size %v must be positive", p.PxSize)}
	}
	if p.Binning == 0 {
		p.Binning = 1
	}
	if p.Binning < 0 {
		return nil, &InvalidGeometry{Reason: fmt.Sprintf("binning %v must be positive", p.Binning)}
	}
	if len(p.PC) == 0 {
		p.PC = []pcconvention.PC{{X: 0.5, Y: 0.5, Z: 0.5}}
	}
	if err := checkNavShape(p.NavShape, len(p.PC)); err != nil {
		return nil, err
	}

	convTag := p.Convention
	if convTag == "" {
		convTag = string(pcconvention.ConventionBruker)
	}
	conv, err := pcconvention.ParseConvention(convTag)
	if err != nil {
		return nil, err
	}

	det := &EBSDDetector{
		shape:      p.Shape,
		pxSize:     p.PxSize,
		binning:    p.Binning,
		tilt:       p.Tilt,
		azimuthal:  p.Azimuthal,
		sampleTilt: p.SampleTilt,
		navShape:   append([]int{}, p.NavShape...),
		pc:         make([]pcconvention.PC, len(p.PC)),
	}

	geom := det.convGeom()
	for i, pc := range p.PC {
		canonical, err := pcconvention.ToBruker(pc, conv, geom)
		if err != nil {
			return nil, err
		}
		// The gnomonic map divides by PCz, so a flat-on-screen PC is unusable
		if canonical.Z <= 0 {
			return nil, &InvalidGeometry{Reason: fmt.Sprintf("PC %v has non-positive detector distance %v", i, canonical.Z)}
		}
		det.pc[i] = canonical
	}
	return det, nil
}

func checkNavShape(navShape []int, pcCount int) error {
	if len(navShape) > 2 {
		return &InvalidGeometry{Reason: fmt.Sprintf("navigation dimension %v exceeds 2", len(navShape))}
	}
	size := 1
	for _, n := range navShape {
		if n <= 0 {
			return &InvalidGeometry{Reason: fmt.Sprintf("navigation shape %v must be positive", navShape)}
		}
		size *= n
	}
	if size != pcCount {
		return &InvalidGeometry{Reason: fmt.Sprintf("navigation shape %v holds %v points but %v PCs given", navShape, size, pcCount)}
	}
	return nil
}

func (d *EBSDDetector) convGeom() *pcconvention.DetectorGeom {
	return &pcconvention.DetectorGeom{
		PxSize:  d.pxSize,
		Binning: d.binning,
		NCols:   d.shape[1],
		NRows:   d.shape[0],
	}
}

func (d *EBSDDetector) NRows() int    { return d.shape[0] }
func (d *EBSDDetector) NCols() int    { return d.shape[1] }
func (d *EBSDDetector) Shape() [2]int { return d.shape }

func (d *EBSDDetector) PxSize() float64     { return d.pxSize }
func (d *EBSDDetector) Binning() int        { return d.binning }
func (d *EBSDDetector) Tilt() float64       { return d.tilt }
func (d *EBSDDetector) Azimuthal() float64  { return d.azimuthal }
func (d *EBSDDetector) SampleTilt() float64 { return d.sampleTilt }

// Width - detector width in physical units
func (d *EBSDDetector) Width() float64 {
	return float64(d.shape[1]) * d.pxSize * float64(d.binning)
}

// Height - detector height in physical units
func (d *EBSDDetector) Height() float64 {
	return float64(d.shape[0]) * d.pxSize * float64(d.binning)
}

// AspectRatio - columns over rows
func (d *EBSDDetector) AspectRatio() float64 {
	return float64(d.shape[1]) / float64(d.shape[0])
}

// NavigationShape - the scan grid shape the PCs vary over. Empty for a
// single PC.
func (d *EBSDDetector) NavigationShape() []int {
	return append([]int{}, d.navShape...)
}

func (d *EBSDDetector) NavigationDimension() int {
	return len(d.navShape)
}

func (d *EBSDDetector) NavigationSize() int {
	return len(d.pc)
}

// FlatIndex - turns a NavIndex into an index into the flattened PC grid,
// bounds-checked against the navigation shape
func (d *EBSDDetector) FlatIndex(idx NavIndex) (int, error) {
	switch len(d.navShape) {
	case 0:
		if idx.Row != 0 || idx.Col != 0 {
			return 0, &InvalidGeometry{Reason: fmt.Sprintf("navigation index %+v out of range for single-PC detector", idx)}
		}
		return 0, nil
	case 1:
		if idx.Row != 0 || idx.Col < 0 || idx.Col >= d.navShape[0] {
			return 0, &InvalidGeometry{Reason: fmt.Sprintf("navigation index %+v out of range for shape %v", idx, d.navShape)}
		}
		return idx.Col, nil
	default:
		if idx.Row < 0 || idx.Row >= d.navShape[0] || idx.Col < 0 || idx.Col >= d.navShape[1] {
			return 0, &InvalidGeometry{Reason: fmt.Sprintf("navigation index %+v out of range for shape %v", idx, d.navShape)}
		}
		return idx.Row*d.navShape[1] + idx.Col, nil
	}
}

// PCAt - the canonical PC for one navigation point
func (d *EBSDDetector) PCAt(idx NavIndex) (pcconvention.PC, error) {
	flat, err := d.FlatIndex(idx)
	if err != nil {
		return pcconvention.PC{}, err
	}
	return d.pc[flat], nil
}

// PC - all canonical PCs, flattened row-major over the navigation shape
func (d *EBSDDetector) PC() []pcconvention.PC {
	return append([]pcconvention.PC{}, d.pc...)
}

// PCAverage - mean PC over all navigation points
func (d *EBSDDetector) PCAverage() pcconvention.PC {
	sum := pcconvention.PC{}
	for _, pc := range d.pc {
		sum.X += pc.X
		sum.Y += pc.Y
		sum.Z += pc.Z
	}
	n := float64(len(d.pc))
	return pcconvention.PC{X: sum.X / n, Y: sum.Y / n, Z: sum.Z / n}
}

// PCIn - all PCs converted to the given convention
func (d *EBSDDetector) PCIn(convention string) ([]pcconvention.PC, error) {
	conv, err := pcconvention.ParseConvention(convention)
	if err != nil {
		return nil, err
	}
	geom := d.convGeom()
	result := make([]pcconvention.PC, len(d.pc))
	for i, pc := range d.pc {
		view, err := pcconvention.FromBruker(pc, conv, geom)
		if err != nil {
			return nil, err
		}
		result[i] = view
	}
	return result, nil
}

// Bounds - the detector rectangle [x0, x1, y0, y1] in pixel coordinates
func (d *EBSDDetector) Bounds() [4]int {
	return [4]int{0, d.shape[1], 0, d.shape[0]}
}

// SpecimenScintillatorDistance - PCz scaled back to physical units, known
// in EMsoft as L
func (d *EBSDDetector) SpecimenScintillatorDistance(idx NavIndex) (float64, error) {
	pc, err := d.PCAt(idx)
	if err != nil {
		return 0, err
	}
	return pc.Z * d.Height(), nil
}

// PixelToGnomonic - maps a (possibly fractional) pixel position to gnomonic
// coordinates using one navigation point's PC. A pixel at (col,row) sits at
// detector-frame position ((col-PCx*ncols)*d*b, (PCy*nrows-row)*d*b) on a
// screen at distance PCz*nrows*d*b, so the physical scale cancels out.
func (d *EBSDDetector) PixelToGnomonic(idx NavIndex, col float64, row float64) (float64, float64, error) {
	pc, err := d.PCAt(idx)
	if err != nil {
		return 0, 0, err
	}
	zd := pc.Z * float64(d.shape[0])
	xg := (col - pc.X*float64(d.shape[1])) / zd
	yg := (pc.Y*float64(d.shape[0]) - row) / zd
	return xg, yg, nil
}

// GnomonicToPixel - exact inverse of PixelToGnomonic
func (d *EBSDDetector) GnomonicToPixel(idx NavIndex, xg float64, yg float64) (float64, float64, error) {
	pc, err := d.PCAt(idx)
	if err != nil {
		return 0, 0, err
	}
	zd := pc.Z * float64(d.shape[0])
	col := pc.X*float64(d.shape[1]) + xg*zd
	row := pc.Y*float64(d.shape[0]) - yg*zd
	return col, row, nil
}

// GnomonicBoundsAt - maps the 4 pixel corners of the detector through this
// navigation point's PC and takes the min/max
func (d *EBSDDetector) GnomonicBoundsAt(idx NavIndex) (GnomonicBounds, error) {
	corners := [4][2]float64{
		{0, 0},
		{float64(d.shape[1]), 0},
		{float64(d.shape[1]), float64(d.shape[0])},
		{0, float64(d.shape[0])},
	}

	b := GnomonicBounds{
		XMin: math.Inf(1), XMax: math.Inf(-1),
		YMin: math.Inf(1), YMax: math.Inf(-1),
	}
	for _, c := range corners {
		xg, yg, err := d.PixelToGnomonic(idx, c[0], c[1])
		if err != nil {
			return GnomonicBounds{}, err
		}
		b.XMin = math.Min(b.XMin, xg)
		b.XMax = math.Max(b.XMax, xg)
		b.YMin = math.Min(b.YMin, yg)
		b.YMax = math.Max(b.YMax, yg)
		b.RMax = math.Max(b.RMax, math.Hypot(xg, yg))
	}
	return b, nil
}

// GnomonicBoundsAll - bounds for every navigation point, flattened
// row-major
func (d *EBSDDetector) GnomonicBoundsAll() ([]GnomonicBounds, error) {
	result := make([]GnomonicBounds, 0, len(d.pc))
	for flat := range d.pc {
		b, err := d.GnomonicBoundsAt(d.navIndexOf(flat))
		if err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, nil
}

func (d *EBSDDetector) navIndexOf(flat int) NavIndex {
	if len(d.navShape) == 2 {
		return NavIndex{Row: flat / d.navShape[1], Col: flat % d.navShape[1]}
	}
	return NavIndex{Col: flat}
}

// CheckNavigationCompatible - explicit shape check against another
// per-navigation-point batch (eg orientations). Shapes must be equal; no
// silent broadcasting.
func (d *EBSDDetector) CheckNavigationCompatible(otherShape []int) error {
	if len(otherShape) != len(d.navShape) {
		return &InvalidGeometry{Reason: fmt.Sprintf("navigation dimension mismatch: detector %v vs batch %v", d.navShape, otherShape)}
	}
	for i := range otherShape {
		if otherShape[i] != d.navShape[i] {
			return &InvalidGeometry{Reason: fmt.Sprintf("navigation shape mismatch: detector %v vs batch %v", d.navShape, otherShape)}
		}
	}
	return nil
}

// WithPC - a new detector snapshot sharing this one's fixed geometry but
// holding a different PC grid. pcs are taken as already canonical.
func (d *EBSDDetector) WithPC(pcs []pcconvention.PC, navShape []int) (*EBSDDetector, error) {
	if len(pcs) == 0 {
		return nil, &InvalidGeometry{Reason: "no PCs given"}
	}
	if err := checkNavShape(navShape, len(pcs)); err != nil {
		return nil, err
	}
	for i, pc := range pcs {
		if pc.Z <= 0 {
			return nil, &InvalidGeometry{Reason: fmt.Sprintf("PC %v has non-positive detector distance %v", i, pc.Z)}
		}
	}
	newDet := *d
	newDet.pc = append([]pcconvention.PC{}, pcs...)
	newDet.navShape = append([]int{}, navShape...)
	return &newDet, nil
}

// Crop - a new detector for a sub-rectangle of the screen, with PCs
// rescaled so they keep pointing at the same physical spot
func (d *EBSDDetector) Crop(top int, bottom int, left int, right int) (*EBSDDetector, error) {
	ny, nx := d.shape[0], d.shape[1]
	top = max(top, 0)
	bottom = min(bottom, ny)
	left = max(left, 0)
	right = min(right, nx)

	nyNew, nxNew := bottom-top, right-left
	if nyNew <= 0 || nxNew <= 0 {
		return nil, &InvalidGeometry{Reason: fmt.Sprintf("crop extent (%v,%v,%v,%v) must satisfy bottom > top and right > left", top, bottom, left, right)}
	}

	newDet := *d
	newDet.shape = [2]int{nyNew, nxNew}
	newDet.navShape = append([]int{}, d.navShape...)
	newDet.pc = make([]pcconvention.PC, len(d.pc))
	for i, pc := range d.pc {
		newDet.pc[i] = pcconvention.PC{
			X: (pc.X*float64(nx) - float64(left)) / float64(nxNew),
			Y: (pc.Y*float64(ny) - float64(top)) / float64(nyNew),
			Z: pc.Z * float64(ny) / float64(nyNew),
		}
	}
	return &newDet, nil
}

func (d *EBSDDetector) String() string {
	pc := d.PCAverage()
	return fmt.Sprintf("EBSDDetector (%v, %v), px_size %v, binning %v, tilt %v, azimuthal %v, pc (%.3f, %.3f, %.3f)",
		d.shape[0], d.shape[1], d.pxSize, d.binning, d.tilt, d.azimuthal, pc.X, pc.Y, pc.Z)
}
