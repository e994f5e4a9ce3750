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
	"github.com/microbeam/ebsdgeom/api/config"
	"github.com/microbeam/ebsdgeom/api/handlers"
	apiRouter "github.com/microbeam/ebsdgeom/api/router"
	"github.com/microbeam/ebsdgeom/core/detector"
	"github.com/microbeam/ebsdgeom/core/errorwithstatus"
	"github.com/microbeam/ebsdgeom/core/pcconvention"
)

////////////////////////////////////////////////////////////////////////////////////////////////////////////
// Detector geometry queries

// DetectorSpec - a full detector geometry as carried in request payloads
type DetectorSpec struct {
	Rows       int               `json:"rows"`
	Cols       int               `json:"cols"`
	PxSize     float64           `json:"pxSize"`
	Binning    int               `json:"binning"`
	Tilt       float64           `json:"tilt"`
	Azimuthal  float64           `json:"azimuthal"`
	SampleTilt float64           `json:"sampleTilt"`
	Convention string            `json:"convention,omitempty"`
	PC         []pcconvention.PC `json:"pc"`
	NavShape   []int             `json:"navShape,omitempty"`
}

// Zero-valued geometry fields fall back to the configured detector
// defaults, so a request only spells out what differs from the
// instrument's usual setup
func (s DetectorSpec) withDefaults(d config.DetectorDefaults) DetectorSpec {
	if s.Rows == 0 {
		s.Rows = d.Rows
	}
	if s.Cols == 0 {
		s.Cols = d.Cols
	}
	if s.PxSize == 0 {
		s.PxSize = d.PxSize
	}
	if s.Binning == 0 {
		s.Binning = d.Binning
	}
	if s.Tilt == 0 {
		s.Tilt = d.Tilt
	}
	if s.SampleTilt == 0 {
		s.SampleTilt = d.SampleTilt
	}
	if s.Convention == "" {
		s.Convention = d.Convention
	}
	return s
}

func (s DetectorSpec) toDetector(defaults config.DetectorDefaults) (*detector.EBSDDetector, error) {
	s = s.withDefaults(defaults)
	det, err := detector.New(detector.Params{
		Shape:      [2]int{s.Rows, s.Cols},
		PxSize:     s.PxSize,
		Binning:    s.Binning,
		Tilt:       s.Tilt,
		Azimuthal:  s.Azimuthal,
		SampleTilt: s.SampleTilt,
		PC:         s.PC,
		NavShape:   s.NavShape,
		Convention: s.Convention,
	})
	if err != nil {
		return nil, errorwithstatus.MakeGeometryError(err)
	}
	return det, nil
}

type DetectorBoundsRequest struct {
	Detector DetectorSpec `json:"detector"`
}

type DetectorBoundsResponse struct {
	// Pixel-space bounds, x0 x1 y0 y1
	PixelBounds [4]int `json:"pixelBounds"`
	// One gnomonic bounding box per PC, in navigation order
	Gnomonic []detector.GnomonicBounds `json:"gnomonic"`
	// PC values normalised to the canonical (Bruker) convention
	PCBruker []pcconvention.PC `json:"pcBruker"`
}

func registerDetectorHandler(router *apiRouter.ApiObjectRouter) {
	router.AddJSONHandler("/detector/bounds", "POST", detectorBoundsPost)
}

func detectorBoundsPost(params handlers.ApiHandlerParams) (interface{}, error) {
	req := DetectorBoundsRequest{}
	if err := handlers.ReadJSON(params.Request, &req); err != nil {
		return nil, err
	}

	det, err := req.Detector.toDetector(params.Svcs.Config.Detector)
	if err != nil {
		return nil, err
	}

	gnomonic, err := det.GnomonicBoundsAll()
	if err != nil {
		return nil, errorwithstatus.MakeGeometryError(err)
	}

	return DetectorBoundsResponse{
		PixelBounds: det.Bounds(),
		Gnomonic:    gnomonic,
		PCBruker:    det.PC(),
	}, nil
}
