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

// Estimates the projection center of an EBSD detector with the moving
// screen technique. Takes the two patterns (normal and retracted screen),
// a CSV of corresponding feature points picked in both, and the known
// screen retraction, and prints the estimated PC and detector distance.
//
// CSV rows are: xIn,yIn,xOut,yOut in pattern pixel coordinates.
package main

import (
	"encoding/csv"
	"flag"
	"log"
	"os"
	"strconv"

	"github.com/microbeam/ebsdgeom/core/logger"
	"github.com/microbeam/ebsdgeom/core/movingscreen"
	"github.com/microbeam/ebsdgeom/core/utils"
	"github.com/pkg/errors"
)

func main() {
	var patternInPath string
	var patternOutPath string
	var pointsPath string
	var deltaZ float64
	var pxSize float64
	var binning int
	var convention string
	var tilt float64
	var sampleTilt float64

	flag.StringVar(&patternInPath, "in", "", "Pattern at the operating detector distance (png/tiff)")
	flag.StringVar(&patternOutPath, "out", "", "Pattern with the screen retracted (png/tiff)")
	flag.StringVar(&pointsPath, "points", "", "CSV of corresponding points: xIn,yIn,xOut,yOut per row")
	flag.Float64Var(&deltaZ, "deltaz", 0, "Screen retraction between the patterns, physical units eg um")
	flag.Float64Var(&pxSize, "pxsize", 0, "Unbinned detector pixel size, same units as deltaz (0=unknown)")
	flag.IntVar(&binning, "binning", 1, "Detector binning factor")
	flag.StringVar(&convention, "convention", "bruker", "PC convention to report in")
	flag.Float64Var(&tilt, "tilt", 0, "Detector tilt from vertical, degrees")
	flag.Float64Var(&sampleTilt, "sampletilt", 70, "Sample tilt from horizontal, degrees")

	flag.Parse()

	iLog := &logger.StdOutLogger{}

	if len(patternInPath) == 0 || len(patternOutPath) == 0 || len(pointsPath) == 0 {
		flag.Usage()
		log.Fatal("Need -in, -out and -points")
	}

	patternIn, err := utils.ReadPatternImage(patternInPath)
	if err != nil {
		log.Fatalf("Failed to read %v: %v", patternInPath, err)
	}
	patternOut, err := utils.ReadPatternImage(patternOutPath)
	if err != nil {
		log.Fatalf("Failed to read %v: %v", patternOutPath, err)
	}

	pointsIn, pointsOut, err := readPointsCSV(pointsPath)
	if err != nil {
		log.Fatalf("Failed to read %v: %v", pointsPath, err)
	}

	iLog.Infof("Read %v correspondence points from %v", len(pointsIn), pointsPath)

	calib, err := movingscreen.New(movingscreen.Input{
		PatternIn:  patternIn,
		PatternOut: patternOut,
		PointsIn:   pointsIn,
		PointsOut:  pointsOut,
		DeltaZ:     deltaZ,
		PxSize:     pxSize,
		Binning:    binning,
		Convention: convention,
	})
	if err != nil {
		log.Fatalf("Calibration failed: %v", err)
	}

	pcPixel := calib.PCPixel()
	iLog.Infof("PC (pattern pixels): col=%.3f row=%.3f", pcPixel.X, pcPixel.Y)
	iLog.Infof("Detector distance: %.3f (mean of %v pair estimates)", calib.DD(), len(calib.DDs()))

	pc := calib.ReportedPC()
	iLog.Infof("PC (%v): %.5f %.5f %.5f", convention, pc.X, pc.Y, pc.Z)

	if pxSize > 0 {
		det, err := calib.Detector(tilt, sampleTilt)
		if err != nil {
			log.Fatalf("Failed to build detector from calibration: %v", err)
		}
		iLog.Infof("Detector: %v", det)
	}
}

func readPointsCSV(path string) ([]movingscreen.Point2, []movingscreen.Point2, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, nil, err
	}

	pointsIn := []movingscreen.Point2{}
	pointsOut := []movingscreen.Point2{}

	for i, row := range rows {
		// Allow a header row
		if i == 0 {
			if _, err := strconv.ParseFloat(row[0], 64); err != nil {
				continue
			}
		}

		if len(row) < 4 {
			return nil, nil, errors.Errorf("row %v has %v columns, want 4", i+1, len(row))
		}

		vals := [4]float64{}
		for c := 0; c < 4; c++ {
			v, err := strconv.ParseFloat(row[c], 64)
			if err != nil {
				return nil, nil, err
			}
			vals[c] = v
		}

		pointsIn = append(pointsIn, movingscreen.Point2{X: vals[0], Y: vals[1]})
		pointsOut = append(pointsOut, movingscreen.Point2{X: vals[2], Y: vals[3]})
	}

	return pointsIn, pointsOut, nil
}
