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

// Conversions between the projection center (PC) conventions of the EBSD
// vendors. Internally everything is stored in the Bruker convention:
// PCx is the fraction of the detector width from the left border, PCy the
// fraction of the detector height from the top border, and PCz the
// sample-to-scintillator distance divided by the pattern height.
package pcconvention

import (
	"fmt"
	"strings"
)

// PC - a projection center triplet in some convention. For Bruker, TSL and
// Oxford all three components are dimensionless fractions. For EMsoft, X and
// Y are subpixel offsets from the detector center and Z is the detector
// distance in the same physical units as the pixel size.
type PC struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Convention - a recognised PC convention tag
type Convention string

const (
	ConventionBruker  Convention = "bruker"
	ConventionTSL     Convention = "tsl"
	ConventionOxford  Convention = "oxford"
	ConventionEMsoft4 Convention = "emsoft4"
	ConventionEMsoft5 Convention = "emsoft5"
)

// Vendor aliases, eg EDAX software reports the TSL convention
var conventionAlias = map[string]Convention{
	"bruker":  ConventionBruker,
	"tsl":     ConventionTSL,
	"edax":    ConventionTSL,
	"amatek":  ConventionTSL,
	"oxford":  ConventionOxford,
	"aztec":   ConventionOxford,
	"emsoft":  ConventionEMsoft5,
	"emsoft4": ConventionEMsoft4,
	"emsoft5": ConventionEMsoft5,
}

// ConventionError - an unknown convention tag, or a conversion was asked for
// without the detector parameters that conversion needs
type ConventionError struct {
	Convention string
	Reason     string
}

func (e *ConventionError) Error() string {
	return fmt.Sprintf("convention \"%v\": %v", e.Convention, e.Reason)
}

func makeUnknownConventionError(tag string) error {
	known := []string{}
	for alias := range conventionAlias {
		known = append(known, alias)
	}
	return &ConventionError{Convention: tag, Reason: fmt.Sprintf("not a recognised PC convention (%v known)", len(known))}
}

// ParseConvention - resolves a vendor tag (case-insensitive, aliases
// included) to one of the 5 conventions
func ParseConvention(tag string) (Convention, error) {
	conv, ok := conventionAlias[strings.ToLower(tag)]
	if !ok {
		return "", makeUnknownConventionError(tag)
	}
	return conv, nil
}

// DetectorGeom - the detector parameters some conversions require. TSL,
// Oxford and Bruker need none of these; EMsoft needs all four.
type DetectorGeom struct {
	PxSize  float64 // unbinned pixel size, physical units/px
	Binning int
	NCols   int // detector columns, unbinned sx
	NRows   int // detector rows, unbinned sy
}

func (g *DetectorGeom) validate(forConv Convention) error {
	if g == nil {
		return &ConventionError{Convention: string(forConv), Reason: "conversion requires detector geometry (pixel size, binning, shape), none given"}
	}
	if g.PxSize <= 0 {
		return &ConventionError{Convention: string(forConv), Reason: "conversion requires a positive pixel size"}
	}
	if g.Binning <= 0 {
		return &ConventionError{Convention: string(forConv), Reason: "conversion requires a positive binning factor"}
	}
	if g.NCols <= 0 || g.NRows <= 0 {
		return &ConventionError{Convention: string(forConv), Reason: "conversion requires a positive detector shape"}
	}
	return nil
}

// ToTSL - Bruker to EDAX TSL (also the Oxford convention). Note this map is
// its own inverse.
func ToTSL(p PC) PC {
	return PC{X: p.X, Y: 1 - p.Y, Z: p.Z}
}

// FromTSL - EDAX TSL to Bruker, same involution as ToTSL
func FromTSL(p PC) PC {
	return ToTSL(p)
}

func emsoftXSign(conv Convention) float64 {
	// The x PC coordinate flipped direction in EMsoft v5
	if conv == ConventionEMsoft4 {
		return -1
	}
	return 1
}

// ToEMsoft - Bruker to EMsoft (xpc, ypc, L). conv selects v4 or v5, which
// differ in the sign of xpc.
func ToEMsoft(p PC, conv Convention, geom *DetectorGeom) (PC, error) {
	if err := geom.validate(conv); err != nil {
		return PC{}, err
	}
	b := float64(geom.Binning)
	return PC{
		X: emsoftXSign(conv) * (0.5 - p.X) * float64(geom.NCols) * b,
		Y: (0.5 - p.Y) * float64(geom.NRows) * b,
		Z: p.Z * float64(geom.NRows) * b * geom.PxSize,
	}, nil
}

// FromEMsoft - EMsoft (xpc, ypc, L) to Bruker, the algebraic inverse of
// ToEMsoft
func FromEMsoft(p PC, conv Convention, geom *DetectorGeom) (PC, error) {
	if err := geom.validate(conv); err != nil {
		return PC{}, err
	}
	b := float64(geom.Binning)
	return PC{
		X: 0.5 - emsoftXSign(conv)*p.X/(float64(geom.NCols)*b),
		Y: 0.5 - p.Y/(float64(geom.NRows)*b),
		Z: p.Z / (float64(geom.NRows) * b * geom.PxSize),
	}, nil
}

// ToBruker - converts a PC expressed in the given convention to the
// canonical Bruker form. geom may be nil for TSL/Oxford/Bruker.
func ToBruker(p PC, from Convention, geom *DetectorGeom) (PC, error) {
	switch from {
	case ConventionBruker:
		return p, nil
	case ConventionTSL, ConventionOxford:
		return FromTSL(p), nil
	case ConventionEMsoft4, ConventionEMsoft5:
		return FromEMsoft(p, from, geom)
	}
	return PC{}, makeUnknownConventionError(string(from))
}

// FromBruker - converts a canonical Bruker PC to the given convention
func FromBruker(p PC, to Convention, geom *DetectorGeom) (PC, error) {
	switch to {
	case ConventionBruker:
		return p, nil
	case ConventionTSL, ConventionOxford:
		return ToTSL(p), nil
	case ConventionEMsoft4, ConventionEMsoft5:
		return ToEMsoft(p, to, geom)
	}
	return PC{}, makeUnknownConventionError(string(to))
}

// Convert - general conversion between any two conventions, via the
// canonical form
func Convert(p PC, from Convention, to Convention, geom *DetectorGeom) (PC, error) {
	canonical, err := ToBruker(p, from, geom)
	if err != nil {
		return PC{}, err
	}
	return FromBruker(canonical, to, geom)
}
