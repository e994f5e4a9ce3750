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

package endpoints

import (
	"github.com/microbeam/ebsdgeom/api/handlers"
	apiRouter "github.com/microbeam/ebsdgeom/api/router"
	"github.com/microbeam/ebsdgeom/core/errorwithstatus"
	"github.com/microbeam/ebsdgeom/core/simulator"
	"github.com/pkg/errors"
)

////////////////////////////////////////////////////////////////////////////////////////////////////////////
// Geometrical Kikuchi pattern simulation

// QuaternionSpec - one orientation as a unit quaternion, scalar first
type QuaternionSpec struct {
	W float64 `json:"w"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// DirectionSpec - one crystal direction to project. Kind is "band" or
// "zone-axis". Vector may be omitted for cubic cells, it then follows the
// integer indices.
type DirectionSpec struct {
	Kind     string      `json:"kind"`
	Indices  [3]int      `json:"indices"`
	Vector   *[3]float64 `json:"vector,omitempty"`
	SymIndex int         `json:"symIndex,omitempty"`
}

type SimulateRequest struct {
	Detector   DetectorSpec     `json:"detector"`
	Rotations  []QuaternionSpec `json:"rotations"`
	RotShape   []int            `json:"rotShape,omitempty"`
	Directions []DirectionSpec  `json:"directions"`
	Workers    int              `json:"workers,omitempty"`
	// Explicit opt-in for pairing a single-PC detector with a rotation batch
	Broadcast0D bool `json:"broadcast0d,omitempty"`
}

// FeatureResult - one projected feature, flattened for the wire. Kind is
// "band" or "zone-axis"; invisible features carry NaN-free zero coordinates
// with visible=false since JSON has no NaN.
type FeatureResult struct {
	Kind     string  `json:"kind"`
	Indices  [3]int  `json:"indices"`
	SymIndex int     `json:"symIndex"`
	Visible  bool    `json:"visible"`
	GX1      float64 `json:"gx1"`
	GY1      float64 `json:"gy1"`
	GX2      float64 `json:"gx2"`
	GY2      float64 `json:"gy2"`
	PX1      float64 `json:"px1"`
	PY1      float64 `json:"py1"`
	PX2      float64 `json:"px2"`
	PY2      float64 `json:"py2"`
}

type SimulateResponse struct {
	NavShape []int `json:"navShape"`
	// One feature list per flattened navigation index
	Features [][]FeatureResult `json:"features"`
}

func registerSimulationHandler(router *apiRouter.ApiObjectRouter) {
	router.AddJSONHandler("/simulate", "POST", simulatePost)
}

func parseDirections(specs []DirectionSpec) ([]simulator.Direction, error) {
	dirs := make([]simulator.Direction, 0, len(specs))
	for _, s := range specs {
		var kind simulator.DirectionKind
		switch s.Kind {
		case "band":
			kind = simulator.KindBand
		case "zone-axis":
			kind = simulator.KindZoneAxis
		default:
			return nil, errorwithstatus.MakeBadRequestError(
				errors.Errorf("unknown direction kind %q, want \"band\" or \"zone-axis\"", s.Kind))
		}

		dir := simulator.Direction{
			Kind:     kind,
			Indices:  s.Indices,
			SymIndex: s.SymIndex,
		}
		if s.Vector != nil {
			dir.Vector = *s.Vector
		}
		dirs = append(dirs, dir)
	}
	return dirs, nil
}

func simulatePost(params handlers.ApiHandlerParams) (interface{}, error) {
	req := SimulateRequest{}
	if err := handlers.ReadJSON(params.Request, &req); err != nil {
		return nil, err
	}

	det, err := req.Detector.toDetector(params.Svcs.Config.Detector)
	if err != nil {
		return nil, err
	}

	rotations := make([]simulator.Rotation, 0, len(req.Rotations))
	for _, q := range req.Rotations {
		rot, err := simulator.RotationFromQuaternion(q.W, q.X, q.Y, q.Z)
		if err != nil {
			return nil, errorwithstatus.MakeGeometryError(err)
		}
		rotations = append(rotations, rot)
	}

	dirs, err := parseDirections(req.Directions)
	if err != nil {
		return nil, err
	}

	sim, err := simulator.Simulate(params.Request.Context(), det, rotations, dirs, simulator.Options{
		Workers:     req.Workers,
		Broadcast0D: req.Broadcast0D,
		RotShape:    req.RotShape,
	})
	if err != nil {
		return nil, errorwithstatus.MakeGeometryError(err)
	}

	navShape := sim.NavigationShape()
	navSize := 1
	for _, n := range navShape {
		navSize *= n
	}

	features := make([][]FeatureResult, 0, navSize)
	for flat := 0; flat < navSize; flat++ {
		atNav, err := sim.AtFlat(flat)
		if err != nil {
			return nil, errorwithstatus.MakeGeometryError(err)
		}

		results := make([]FeatureResult, 0, len(atNav))
		for _, f := range atNav {
			r := FeatureResult{
				Kind:     f.Direction.Kind.String(),
				Indices:  f.Direction.Indices,
				SymIndex: f.Direction.SymIndex,
				Visible:  f.Visible,
			}
			// NaN is not representable in JSON, zero the coords instead
			if f.Visible {
				r.GX1, r.GY1, r.GX2, r.GY2 = f.GX1, f.GY1, f.GX2, f.GY2
				r.PX1, r.PY1, r.PX2, r.PY2 = f.PX1, f.PY1, f.PX2, f.PY2
			}
			results = append(results, r)
		}
		features = append(features, results)
	}

	return SimulateResponse{NavShape: navShape, Features: features}, nil
}
