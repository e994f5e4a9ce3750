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

// API/tool configuration read from a YAML file, with per-field environment
// variable overrides
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Env vars named EBSDGEOM_CONFIG_<field name> override file values
const envOverridePrefix = "EBSDGEOM_CONFIG_"

// DetectorDefaults - the detector geometry assumed when a request doesn't
// spell one out
type DetectorDefaults struct {
	Rows       int     `yaml:"rows"`
	Cols       int     `yaml:"cols"`
	PxSize     float64 `yaml:"pxSize"`
	Binning    int     `yaml:"binning"`
	Tilt       float64 `yaml:"tilt"`
	SampleTilt float64 `yaml:"sampleTilt"`
	Convention string  `yaml:"convention"`
}

// APIConfig - combines config file values and env var overrides
type APIConfig struct {
	ListenAddress   string `yaml:"listenAddress"`
	MetricsAddress  string `yaml:"metricsAddress"`
	SentryEndpoint  string `yaml:"sentryEndpoint"`
	EnvironmentName string `yaml:"environmentName"`
	LogLevelName    string `yaml:"logLevel"`

	Detector DetectorDefaults `yaml:"detector"`
}

func defaultConfig() APIConfig {
	return APIConfig{
		ListenAddress:   ":8080",
		MetricsAddress:  ":2112",
		EnvironmentName: "local",
		LogLevelName:    "INFO",
		Detector: DetectorDefaults{
			Rows:       60,
			Cols:       60,
			PxSize:     1,
			Binning:    1,
			SampleTilt: 70,
			Convention: "bruker",
		},
	}
}

// NewConfigFromFile - reads config YAML then applies env overrides
func NewConfigFromFile(path string) (APIConfig, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %v: %v", path, err)
	}
	return applyEnvOverrides(cfg)
}

// NewConfig - defaults plus env overrides only, for when no file is given
func NewConfig() (APIConfig, error) {
	return applyEnvOverrides(defaultConfig())
}

// applyEnvOverrides - each top-level string/int/float field can be
// overridden by EBSDGEOM_CONFIG_<FieldName>
func applyEnvOverrides(cfg APIConfig) (APIConfig, error) {
	v := reflect.ValueOf(&cfg).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		envVal, ok := os.LookupEnv(envOverridePrefix + t.Field(i).Name)
		if !ok {
			continue
		}
		field := v.Field(i)
		switch field.Kind() {
		case reflect.String:
			field.SetString(envVal)
		case reflect.Int:
			n, err := strconv.ParseInt(envVal, 10, 64)
			if err != nil {
				return cfg, fmt.Errorf("env override %v: %v", t.Field(i).Name, err)
			}
			field.SetInt(n)
		case reflect.Float64:
			f, err := strconv.ParseFloat(envVal, 64)
			if err != nil {
				return cfg, fmt.Errorf("env override %v: %v", t.Field(i).Name, err)
			}
			field.SetFloat(f)
		}
	}
	return cfg, nil
}
