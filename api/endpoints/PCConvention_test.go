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
	"bytes"
	"encoding/json"
	"net/http"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"
)

func postJSON(t *testing.T, path string, body string) (int, []byte) {
	t.Helper()

	svcs := MakeMockSvcs()
	apiRouter := MakeRouter(svcs)

	req, err := http.NewRequest("POST", path, bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}

	resp := executeRequest(req, apiRouter.Router)
	return resp.Code, resp.Body.Bytes()
}

func Test_PCConvertBrukerToTSL(t *testing.T) {
	code, body := postJSON(t, "/pc/convert", `{
		"pcs": [{"x": 0.4, "y": 0.2, "z": 0.6}],
		"from": "bruker",
		"to": "tsl"
	}`)

	if code != 200 {
		t.Fatalf("Expected 200, got %v: %v", code, string(body))
	}

	var resp PCConvertResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if len(resp.PCs) != 1 {
		t.Fatalf("Expected 1 PC, got %v", len(resp.PCs))
	}

	pc := resp.PCs[0]
	if !scalar.EqualWithinAbs(pc.X, 0.4, 1e-12) || !scalar.EqualWithinAbs(pc.Y, 0.8, 1e-12) || !scalar.EqualWithinAbs(pc.Z, 0.6, 1e-12) {
		t.Errorf("Unexpected converted PC: %+v", pc)
	}

	if resp.From != "bruker" || resp.To != "tsl" {
		t.Errorf("Unexpected conventions echoed: %v -> %v", resp.From, resp.To)
	}
}

func Test_PCConvertVendorAliases(t *testing.T) {
	// edax is an alias of tsl, so this is the same involution
	code, body := postJSON(t, "/pc/convert", `{
		"pcs": [{"x": 0.4, "y": 0.8, "z": 0.6}],
		"from": "edax",
		"to": "bruker"
	}`)

	if code != 200 {
		t.Fatalf("Expected 200, got %v: %v", code, string(body))
	}

	var resp PCConvertResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if !scalar.EqualWithinAbs(resp.PCs[0].Y, 0.2, 1e-12) {
		t.Errorf("Unexpected converted PC: %+v", resp.PCs[0])
	}
}

func Test_PCConvertBadConvention(t *testing.T) {
	code, _ := postJSON(t, "/pc/convert", `{
		"pcs": [{"x": 0.4, "y": 0.2, "z": 0.6}],
		"from": "bruker",
		"to": "ebsd+"
	}`)

	if code != 400 {
		t.Errorf("Expected 400 for unknown convention, got %v", code)
	}
}

func Test_PCConvertEMsoftNeedsGeom(t *testing.T) {
	// EMsoft conversion without detector geometry must be rejected
	code, _ := postJSON(t, "/pc/convert", `{
		"pcs": [{"x": 0.5, "y": 0.5, "z": 0.5}],
		"from": "bruker",
		"to": "emsoft5"
	}`)

	if code != 400 {
		t.Errorf("Expected 400 for missing geometry, got %v", code)
	}

	code, body := postJSON(t, "/pc/convert", `{
		"pcs": [{"x": 0.5, "y": 0.5, "z": 0.5}],
		"from": "bruker",
		"to": "emsoft5",
		"geom": {"pxSize": 59.2, "binning": 1, "cols": 480, "rows": 480}
	}`)

	if code != 200 {
		t.Fatalf("Expected 200 with geometry, got %v: %v", code, string(body))
	}

	var resp PCConvertResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	// Centred PC has no pattern-plane offset in EMsoft form
	pc := resp.PCs[0]
	if !scalar.EqualWithinAbs(pc.X, 0, 1e-9) || !scalar.EqualWithinAbs(pc.Y, 0, 1e-9) {
		t.Errorf("Unexpected EMsoft PC: %+v", pc)
	}
	if !scalar.EqualWithinAbs(pc.Z, 0.5*480*59.2, 1e-6) {
		t.Errorf("Unexpected EMsoft L: %v", pc.Z)
	}
}
