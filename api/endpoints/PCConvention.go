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
	"github.com/microbeam/ebsdgeom/core/pcconvention"
)

////////////////////////////////////////////////////////////////////////////////////////////////////////////
// Projection center convention conversion

// DetectorGeomSpec - the detector parameters EMsoft conversions need.
// Optional for the vendor-to-vendor conversions.
type DetectorGeomSpec struct {
	PxSize  float64 `json:"pxSize"`
	Binning int     `json:"binning"`
	Cols    int     `json:"cols"`
	Rows    int     `json:"rows"`
}

func (s *DetectorGeomSpec) toGeom() *pcconvention.DetectorGeom {
	if s == nil {
		return nil
	}
	return &pcconvention.DetectorGeom{
		PxSize:  s.PxSize,
		Binning: s.Binning,
		NCols:   s.Cols,
		NRows:   s.Rows,
	}
}

type PCConvertRequest struct {
	PCs  []pcconvention.PC `json:"pcs"`
	From string            `json:"from"`
	To   string            `json:"to"`
	Geom *DetectorGeomSpec `json:"geom,omitempty"`
}

type PCConvertResponse struct {
	PCs  []pcconvention.PC `json:"pcs"`
	From string            `json:"from"`
	To   string            `json:"to"`
}

func registerPCConventionHandler(router *apiRouter.ApiObjectRouter) {
	router.AddJSONHandler("/pc/convert", "POST", pcConvertPost)
}

func pcConvertPost(params handlers.ApiHandlerParams) (interface{}, error) {
	req := PCConvertRequest{}
	if err := handlers.ReadJSON(params.Request, &req); err != nil {
		return nil, err
	}

	from, err := pcconvention.ParseConvention(req.From)
	if err != nil {
		return nil, errorwithstatus.MakeGeometryError(err)
	}
	to, err := pcconvention.ParseConvention(req.To)
	if err != nil {
		return nil, errorwithstatus.MakeGeometryError(err)
	}

	geom := req.Geom.toGeom()
	converted := make([]pcconvention.PC, 0, len(req.PCs))
	for _, pc := range req.PCs {
		out, err := pcconvention.Convert(pc, from, to, geom)
		if err != nil {
			return nil, errorwithstatus.MakeGeometryError(err)
		}
		converted = append(converted, out)
	}

	return PCConvertResponse{PCs: converted, From: string(from), To: string(to)}, nil
}
