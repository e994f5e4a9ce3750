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
	"github.com/microbeam/ebsdgeom/core/movingscreen"
	"github.com/microbeam/ebsdgeom/core/pcconvention"
)

////////////////////////////////////////////////////////////////////////////////////////////////////////////
// Moving-screen PC calibration. Callers pick the feature points out of the
// two patterns themselves, only the points travel over the wire.

type CalibrateRequest struct {
	PatternRows int                   `json:"patternRows"`
	PatternCols int                   `json:"patternCols"`
	PointsIn    []movingscreen.Point2 `json:"pointsIn"`
	PointsOut   []movingscreen.Point2 `json:"pointsOut"`
	DeltaZ      float64               `json:"deltaZ"`
	PxSize      float64               `json:"pxSize"`
	Binning     int                   `json:"binning"`
	Convention  string                `json:"convention,omitempty"`
}

type CalibrateResponse struct {
	// Estimated PC in pattern pixel coordinates
	PCPixel movingscreen.Point2 `json:"pcPixel"`
	// Estimated PC, canonical (Bruker) convention
	PC pcconvention.PC `json:"pc"`
	// Estimated PC in the requested convention
	ReportedPC pcconvention.PC `json:"reportedPC"`
	Convention string          `json:"convention"`
	// Mean detector distance and the per-pair estimates behind it,
	// physical units of deltaZ
	DD  float64   `json:"dd"`
	DDs []float64 `json:"dds"`
}

func registerCalibrationHandler(router *apiRouter.ApiObjectRouter) {
	router.AddJSONHandler("/calibrate", "POST", calibratePost)
}

func calibratePost(params handlers.ApiHandlerParams) (interface{}, error) {
	req := CalibrateRequest{}
	if err := handlers.ReadJSON(params.Request, &req); err != nil {
		return nil, err
	}

	calib, err := movingscreen.New(movingscreen.Input{
		PatternShape: [2]int{req.PatternRows, req.PatternCols},
		PointsIn:     req.PointsIn,
		PointsOut:    req.PointsOut,
		DeltaZ:       req.DeltaZ,
		PxSize:       req.PxSize,
		Binning:      req.Binning,
		Convention:   req.Convention,
	})
	if err != nil {
		return nil, errorwithstatus.MakeGeometryError(err)
	}

	convention := req.Convention
	if convention == "" {
		convention = string(pcconvention.ConventionBruker)
	}

	return CalibrateResponse{
		PCPixel:    calib.PCPixel(),
		PC:         calib.PC(),
		ReportedPC: calib.ReportedPC(),
		Convention: convention,
		DD:         calib.DD(),
		DDs:        calib.DDs(),
	}, nil
}
