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

// Projection center estimation with the "moving screen" technique: two
// patterns of the same stationary sample are acquired with the detector
// retracted by a known offset between them. Lines through corresponding
// features in the two patterns meet at the PC, and the magnification
// between the patterns gives the detector distance.
package movingscreen

import (
	"fmt"
	"math"

	"github.com/microbeam/ebsdgeom/core/detector"
	"github.com/microbeam/ebsdgeom/core/pcconvention"
	"gonum.org/v1/gonum/mat"
)

// Correspondence lines closer to parallel than this are rejected rather
// than solved
const singularEps = 1e-10

// InsufficientCorrespondences - fewer than 2 feature pairs supplied
type InsufficientCorrespondences struct {
	Got int
}

func (e *InsufficientCorrespondences) Error() string {
	return fmt.Sprintf("moving-screen calibration needs at least 2 correspondence pairs, got %v", e.Got)
}

// SingularCalibration - the correspondence lines are (near) parallel so
// their intersection is unusable
type SingularCalibration struct {
	Reason string
}

func (e *SingularCalibration) Error() string {
	return "singular calibration: " + e.Reason
}

// InvalidInput - the supplied points, shape or offset are malformed
type InvalidInput struct {
	Reason string
}

func (e *InvalidInput) Error() string {
	return "invalid calibration input: " + e.Reason
}

// Point2 - a pixel coordinate within a pattern
type Point2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Input - the two patterns, their corresponding feature points, and the
// known screen offset. PxSize, Binning and Convention are optional (0, 1
// and "bruker").
type Input struct {
	PatternIn  [][]float64 // pattern at the operating detector distance
	PatternOut [][]float64 // pattern with the screen retracted by DeltaZ
	// PatternShape (rows, cols) may replace the images when only the
	// feature points are carried, eg over the API
	PatternShape [2]int
	PointsIn     []Point2
	PointsOut    []Point2
	DeltaZ       float64 // same physical units as PxSize
	PxSize       float64 // 0 = unknown, PCz then stays 0
	Binning      int
	Convention   string // convention ReportedPC is exposed in
}

// Calibrator - owns its images and correspondence points immutably after
// construction. The estimated PC is recomputed eagerly whenever the
// reporting convention or pixel size changes, there is no stale cache to
// invalidate.
type Calibrator struct {
	patternShape [2]int // rows, cols of PatternIn
	pointsIn     []Point2
	pointsOut    []Point2
	deltaZ       float64
	pxSize       float64
	binning      int
	convention   pcconvention.Convention

	pcPixel    Point2          // intersection in PatternIn pixel coords
	dds        []float64       // per-pair detector distance estimates
	dd         float64         // their mean
	pc         pcconvention.PC // canonical
	pcReported pcconvention.PC // pc in the reporting convention
}

// New - validates the input and runs the full line-intersection and
// distance-ratio solve up front
func New(in Input) (*Calibrator, error) {
	if len(in.PointsIn) != len(in.PointsOut) {
		return nil, &InvalidInput{Reason: fmt.Sprintf("point count mismatch: %v in-pattern vs %v out-pattern", len(in.PointsIn), len(in.PointsOut))}
	}
	if len(in.PointsIn) < 2 {
		return nil, &InsufficientCorrespondences{Got: len(in.PointsIn)}
	}
	shape := in.PatternShape
	if shape[0] == 0 && len(in.PatternIn) > 0 {
		shape = [2]int{len(in.PatternIn), len(in.PatternIn[0])}
	}
	if shape[0] <= 0 || shape[1] <= 0 {
		return nil, &InvalidInput{Reason: "neither an in-pattern nor a pattern shape was given"}
	}
	if in.DeltaZ <= 0 {
		return nil, &InvalidInput{Reason: fmt.Sprintf("screen offset %v must be positive", in.DeltaZ)}
	}
	if in.Binning == 0 {
		in.Binning = 1
	}

	convTag := in.Convention
	if convTag == "" {
		convTag = string(pcconvention.ConventionBruker)
	}
	conv, err := pcconvention.ParseConvention(convTag)
	if err != nil {
		return nil, err
	}

	c := &Calibrator{
		patternShape: shape,
		pointsIn:     append([]Point2{}, in.PointsIn...),
		pointsOut:    append([]Point2{}, in.PointsOut...),
		deltaZ:       in.DeltaZ,
		pxSize:       in.PxSize,
		binning:      in.Binning,
		convention:   conv,
	}
	if err := c.compute(); err != nil {
		return nil, err
	}
	return c, nil
}

// compute - re-derives every reported value from the immutable inputs and
// the current pixel size / convention
func (c *Calibrator) compute() error {
	if err := c.solveIntersection(); err != nil {
		return err
	}
	if err := c.solveDistances(); err != nil {
		return err
	}

	c.pc = pcconvention.PC{
		X: c.pcPixel.X / float64(c.patternShape[1]),
		Y: c.pcPixel.Y / float64(c.patternShape[0]),
	}
	if c.pxSize > 0 {
		c.pc.Z = c.dd / (float64(c.patternShape[0]) * c.pxSize * float64(c.binning))
	}

	reported, err := pcconvention.FromBruker(c.pc, c.convention, c.convGeom())
	if err != nil {
		return err
	}
	c.pcReported = reported
	return nil
}

// solveIntersection - least-squares point closest to every line through a
// correspondence pair. Each line with unit normal n through point p
// contributes the row n.x = n.p, stacked into a tall system whose 2x2
// normal equations are solved. With exactly two lines this is the exact
// intersection.
func (c *Calibrator) solveIntersection() error {
	n := len(c.pointsIn)
	a := mat.NewDense(n, 2, nil)
	b := mat.NewVecDense(n, nil)

	for i := 0; i < n; i++ {
		dx := c.pointsOut[i].X - c.pointsIn[i].X
		dy := c.pointsOut[i].Y - c.pointsIn[i].Y
		norm := math.Hypot(dx, dy)
		if norm < singularEps {
			return &SingularCalibration{Reason: fmt.Sprintf("correspondence %v did not move between patterns", i)}
		}
		// Unit normal to the line direction
		nx, ny := -dy/norm, dx/norm
		a.Set(i, 0, nx)
		a.Set(i, 1, ny)
		b.SetVec(i, nx*c.pointsIn[i].X+ny*c.pointsIn[i].Y)
	}

	var ata mat.Dense
	ata.Mul(a.T(), a)
	// For unit normals trace(ata) == n, so this threshold is scale-free
	if math.Abs(mat.Det(&ata)) < singularEps*float64(n) {
		return &SingularCalibration{Reason: "correspondence lines are (near) parallel"}
	}

	var atb mat.VecDense
	atb.MulVec(a.T(), b)
	var sol mat.VecDense
	if err := sol.SolveVec(&ata, &atb); err != nil {
		return &SingularCalibration{Reason: err.Error()}
	}
	c.pcPixel = Point2{X: sol.AtVec(0), Y: sol.AtVec(1)}
	return nil
}

// solveDistances - one detector distance estimate per distinct feature
// pair, from the magnification of their separation between the two
// patterns
func (c *Calibrator) solveDistances() error {
	c.dds = c.dds[:0]
	sum := 0.0
	for i := 0; i < len(c.pointsIn); i++ {
		for j := i + 1; j < len(c.pointsIn); j++ {
			lIn := math.Hypot(c.pointsIn[i].X-c.pointsIn[j].X, c.pointsIn[i].Y-c.pointsIn[j].Y)
			lOut := math.Hypot(c.pointsOut[i].X-c.pointsOut[j].X, c.pointsOut[i].Y-c.pointsOut[j].Y)
			// A coincident pair or one with no magnification has no usable
			// distance ratio, and dividing through anyway would drag the mean
			if lIn < singularEps {
				return &SingularCalibration{Reason: fmt.Sprintf("correspondences %v and %v coincide in the first pattern", i, j)}
			}
			if math.Abs(lOut-lIn) < singularEps {
				return &SingularCalibration{Reason: fmt.Sprintf("correspondences %v and %v did not magnify between patterns", i, j)}
			}
			dd := c.deltaZ / (lOut/lIn - 1)
			c.dds = append(c.dds, dd)
			sum += dd
		}
	}
	c.dd = sum / float64(len(c.dds))
	return nil
}

func (c *Calibrator) convGeom() *pcconvention.DetectorGeom {
	if c.pxSize <= 0 {
		return nil
	}
	return &pcconvention.DetectorGeom{
		PxSize:  c.pxSize,
		Binning: c.binning,
		NCols:   c.patternShape[1],
		NRows:   c.patternShape[0],
	}
}

// PCPixel - the estimated PC in pattern pixel coordinates
func (c *Calibrator) PCPixel() Point2 {
	return c.pcPixel
}

// DD - mean detector distance estimate, physical units of DeltaZ
func (c *Calibrator) DD() float64 {
	return c.dd
}

// DDs - the per-pair detector distance estimates behind DD
func (c *Calibrator) DDs() []float64 {
	return append([]float64{}, c.dds...)
}

// PC - the estimated PC in canonical (Bruker) form. PCz is 0 when no pixel
// size is known.
func (c *Calibrator) PC() pcconvention.PC {
	return c.pc
}

// ReportedPC - the estimated PC in the reporting convention
func (c *Calibrator) ReportedPC() pcconvention.PC {
	return c.pcReported
}

// PCIn - the estimated PC converted to any convention
func (c *Calibrator) PCIn(convention string) (pcconvention.PC, error) {
	conv, err := pcconvention.ParseConvention(convention)
	if err != nil {
		return pcconvention.PC{}, err
	}
	return pcconvention.FromBruker(c.pc, conv, c.convGeom())
}

// SetConvention - switches the reporting convention and recomputes the
// reported PC immediately
func (c *Calibrator) SetConvention(convention string) error {
	conv, err := pcconvention.ParseConvention(convention)
	if err != nil {
		return err
	}
	c.convention = conv
	return c.compute()
}

// SetPxSize - changes the assumed pixel size and recomputes immediately
// (PCz depends on it)
func (c *Calibrator) SetPxSize(pxSize float64) error {
	c.pxSize = pxSize
	return c.compute()
}

// Detector - builds a detector snapshot from the calibration result. A
// pixel size must be known, without one PCz is 0 and the geometry is
// unusable.
func (c *Calibrator) Detector(tilt float64, sampleTilt float64) (*detector.EBSDDetector, error) {
	if c.pxSize <= 0 {
		return nil, &InvalidInput{Reason: "a pixel size is needed to place the detector"}
	}
	return detector.New(detector.Params{
		Shape:      c.patternShape,
		PxSize:     c.pxSize,
		Binning:    c.binning,
		Tilt:       tilt,
		SampleTilt: sampleTilt,
		PC:         []pcconvention.PC{c.pc},
	})
}
