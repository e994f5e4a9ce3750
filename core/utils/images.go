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

package utils

import (
	"bytes"
	"image"
	"os"

	// Pattern images show up as 8/16 bit PNG or TIFF depending on the
	// acquisition software
	_ "image/png"

	_ "golang.org/x/image/tiff"
)

func ReadImageFile(path string) (image.Image, error) {
	imgbytes, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(imgbytes))
	if err != nil {
		return nil, err
	}
	return img, nil
}

// ReadPatternImage - loads a pattern image as a row-major intensity grid.
// Uses the 16 bit luminance the decoder hands back, so 8 and 16 bit
// sources both work.
func ReadPatternImage(path string) ([][]float64, error) {
	img, err := ReadImageFile(path)
	if err != nil {
		return nil, err
	}
	return ImageToIntensity(img), nil
}

// ImageToIntensity - flattens any decoded image to grayscale float64s
func ImageToIntensity(img image.Image) [][]float64 {
	b := img.Bounds()
	result := make([][]float64, b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := make([]float64, b.Dx())
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			// RGBA returns 16 bit channels; Rec. 601 luma
			row[x-b.Min.X] = 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)
		}
		result[y-b.Min.Y] = row
	}
	return result
}
