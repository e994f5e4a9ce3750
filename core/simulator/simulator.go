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

// Geometrical Kikuchi pattern simulation: given a detector geometry
// snapshot, one crystal orientation per scan point and a set of
// symmetry-expanded crystal directions, works out which plane traces
// (bands) and zone axes land on the screen and where.
//
// Every (scan point, direction) entry is computed independently from the
// geometry, orientation and direction alone, so the whole workload is an
// order-free map that can be fanned out across workers.
package simulator

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/microbeam/ebsdgeom/core/detector"
)

// DirectionKind - whether a crystal direction is a plane normal (drawn as a
// band trace) or a free direction (drawn as a zone axis point)
type DirectionKind int

const (
	KindBand DirectionKind = iota
	KindZoneAxis
)

func (k DirectionKind) String() string {
	if k == KindBand {
		return "band"
	}
	return "zone-axis"
}

// Direction - one crystal-frame direction to project. Vector carries the
// actual direction (for non-cubic cells it differs from the integer
// indices); if left zero it is derived from Indices. SymIndex tells apart
// the symmetry-equivalent members of one family, as expanded by the
// crystallography provider.
type Direction struct {
	Kind     DirectionKind
	Indices  [3]int // hkl for bands, uvw for zone axes
	Vector   [3]float64
	SymIndex int
}

// Band - a plane-normal direction from integer hkl
func Band(h int, k int, l int) Direction {
	return Direction{Kind: KindBand, Indices: [3]int{h, k, l}}
}

// ZoneAxis - a free direction from integer uvw
func ZoneAxis(u int, v int, w int) Direction {
	return Direction{Kind: KindZoneAxis, Indices: [3]int{u, v, w}}
}

func (d Direction) vector() ([3]float64, error) {
	v := d.Vector
	if v == ([3]float64{}) {
		v = [3]float64{float64(d.Indices[0]), float64(d.Indices[1]), float64(d.Indices[2])}
	}
	n := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	if n == 0 {
		return v, &detector.InvalidGeometry{Reason: fmt.Sprintf("direction %v has zero vector", d.Indices)}
	}
	return [3]float64{v[0] / n, v[1] / n, v[2] / n}, nil
}

// Feature - the projection outcome for one direction at one navigation
// point. For a band, (GX1,GY1)-(GX2,GY2) is the visible trace segment in
// gnomonic coordinates and (PX1,PY1)-(PX2,PY2) the same segment in detector
// pixels. For a zone axis both endpoints hold the single projected point.
// Invisible features carry NaN coordinates.
type Feature struct {
	Direction Direction `json:"direction"`
	Visible   bool      `json:"visible"`

	GX1 float64 `json:"gx1"`
	GY1 float64 `json:"gy1"`
	GX2 float64 `json:"gx2"`
	GY2 float64 `json:"gy2"`

	PX1 float64 `json:"px1"`
	PY1 float64 `json:"py1"`
	PX2 float64 `json:"px2"`
	PY2 float64 `json:"py2"`
}

func invisibleFeature(dir Direction) Feature {
	nan := math.NaN()
	return Feature{
		Direction: dir,
		GX1:       nan, GY1: nan, GX2: nan, GY2: nan,
		PX1: nan, PY1: nan, PX2: nan, PY2: nan,
	}
}

// Simulation - immutable result of one Simulate call, indexed by navigation
// position and direction
type Simulation struct {
	navShape []int
	features [][]Feature // [flat navigation index][direction index]
}

// NavigationShape - the navigation grid the simulation covers
func (s *Simulation) NavigationShape() []int {
	return append([]int{}, s.navShape...)
}

// AtFlat - features for one flattened navigation index
func (s *Simulation) AtFlat(flat int) ([]Feature, error) {
	if flat < 0 || flat >= len(s.features) {
		return nil, &detector.InvalidGeometry{Reason: fmt.Sprintf("navigation index %v out of range for %v points", flat, len(s.features))}
	}
	return s.features[flat], nil
}

// At - features for one navigation grid position
func (s *Simulation) At(idx detector.NavIndex) ([]Feature, error) {
	flat := idx.Col
	if len(s.navShape) == 2 {
		if idx.Row < 0 || idx.Row >= s.navShape[0] || idx.Col < 0 || idx.Col >= s.navShape[1] {
			return nil, &detector.InvalidGeometry{Reason: fmt.Sprintf("navigation index %+v out of range for shape %v", idx, s.navShape)}
		}
		flat = idx.Row*s.navShape[1] + idx.Col
	} else if idx.Row != 0 {
		return nil, &detector.InvalidGeometry{Reason: fmt.Sprintf("navigation index %+v out of range for shape %v", idx, s.navShape)}
	}
	return s.AtFlat(flat)
}

// Options - simulation run options
type Options struct {
	// Workers > 1 partitions the run across that many goroutines by
	// navigation index. Entries are independent so no ordering applies.
	Workers int
	// Broadcast0D pairs a single-PC detector with a rotation batch of any
	// shape. This is the only permitted shape mismatch and must be asked
	// for explicitly.
	Broadcast0D bool
	// RotShape is the navigation shape of the rotation batch. Empty means
	// a flat 1D batch of len(rotations).
	RotShape []int
}

// Simulate - projects every direction through every orientation onto the
// detector. The detector snapshot is immutable so a running batch can never
// see a half-updated geometry.
func Simulate(ctx context.Context, det *detector.EBSDDetector, rotations []Rotation, dirs []Direction, opt Options) (*Simulation, error) {
	if len(rotations) == 0 {
		return nil, &detector.InvalidGeometry{Reason: "no orientations given"}
	}

	rotShape := opt.RotShape
	if len(rotShape) == 0 {
		rotShape = []int{len(rotations)}
		if len(rotations) == 1 && det.NavigationDimension() == 0 {
			rotShape = nil
		}
	}
	size := 1
	for _, n := range rotShape {
		size *= n
	}
	if size != len(rotations) {
		return nil, &detector.InvalidGeometry{Reason: fmt.Sprintf("rotation shape %v holds %v points but %v rotations given", rotShape, size, len(rotations))}
	}

	broadcastPC := false
	if det.NavigationDimension() == 0 && opt.Broadcast0D {
		broadcastPC = true
	} else if err := det.CheckNavigationCompatible(rotShape); err != nil {
		return nil, err
	}

	// Unit vectors can be rotated once per orientation, so resolve them up
	// front
	vecs := make([][3]float64, len(dirs))
	for i, dir := range dirs {
		v, err := dir.vector()
		if err != nil {
			return nil, err
		}
		vecs[i] = v
	}

	frame := newFrameTransform(det.SampleTilt(), det.Tilt(), det.Azimuthal())

	sim := &Simulation{
		navShape: append([]int{}, rotShape...),
		features: make([][]Feature, len(rotations)),
	}

	workers := opt.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(rotations) {
		workers = len(rotations)
	}

	var firstErr error
	var errOnce sync.Once
	var wg sync.WaitGroup

	work := func(from int, to int) {
		defer wg.Done()
		for flat := from; flat < to; flat++ {
			if ctx != nil && ctx.Err() != nil {
				errOnce.Do(func() { firstErr = ctx.Err() })
				return
			}
			navIdx := detector.NavIndex{Col: flat}
			if broadcastPC {
				navIdx = detector.NavIndex{}
			} else if len(rotShape) == 2 {
				navIdx = detector.NavIndex{Row: flat / rotShape[1], Col: flat % rotShape[1]}
			}
			bounds, err := det.GnomonicBoundsAt(navIdx)
			if err != nil {
				errOnce.Do(func() { firstErr = err })
				return
			}
			row := make([]Feature, len(dirs))
			for di, dir := range dirs {
				row[di] = projectOne(det, navIdx, bounds, frame, rotations[flat], dir, vecs[di])
			}
			sim.features[flat] = row
		}
	}

	chunk := (len(rotations) + workers - 1) / workers
	for w := 0; w < workers; w++ {
		from := w * chunk
		to := min(from+chunk, len(rotations))
		if from >= to {
			break
		}
		wg.Add(1)
		go work(from, to)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return sim, nil
}

// projectOne - one (navigation point, direction) entry: rotate into the
// detector frame, then trace a band or project a zone axis
func projectOne(det *detector.EBSDDetector, navIdx detector.NavIndex, bounds detector.GnomonicBounds, frame frameTransform, rot Rotation, dir Direction, vec [3]float64) Feature {
	d := frame.apply(rot.Apply(vec))

	if dir.Kind == KindZoneAxis {
		// A direction pointing away from the screen never projects
		if d[2] <= 0 {
			return invisibleFeature(dir)
		}
		xg, yg := d[0]/d[2], d[1]/d[2]
		if xg < bounds.XMin || xg > bounds.XMax || yg < bounds.YMin || yg > bounds.YMax {
			return invisibleFeature(dir)
		}
		px, py, err := det.GnomonicToPixel(navIdx, xg, yg)
		if err != nil {
			return invisibleFeature(dir)
		}
		return Feature{
			Direction: dir,
			Visible:   true,
			GX1:       xg, GY1: yg, GX2: xg, GY2: yg,
			PX1: px, PY1: py, PX2: px, PY2: py,
		}
	}

	// Band: keep the detector-facing hemisphere representative of the
	// plane normal so both representatives trace identically
	if d[2] < 0 {
		d = [3]float64{-d[0], -d[1], -d[2]}
	}
	x1, y1, x2, y2, ok := clipPlaneTrace(d, bounds)
	if !ok {
		return invisibleFeature(dir)
	}
	px1, py1, err := det.GnomonicToPixel(navIdx, x1, y1)
	if err != nil {
		return invisibleFeature(dir)
	}
	px2, py2, err := det.GnomonicToPixel(navIdx, x2, y2)
	if err != nil {
		return invisibleFeature(dir)
	}
	return Feature{
		Direction: dir,
		Visible:   true,
		GX1:       x1, GY1: y1, GX2: x2, GY2: y2,
		PX1: px1, PY1: py1, PX2: px2, PY2: py2,
	}
}
