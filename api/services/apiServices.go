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

package services

import (
	"log"

	"github.com/getsentry/sentry-go"
	"github.com/microbeam/ebsdgeom/api/config"
	"github.com/microbeam/ebsdgeom/core/logger"
)

// NOTE: these 2 vars are set during compilation in CI build (see Makefile)
var ApiVersion string
var GitHash string

// APIServices contains anything HTTP handlers would want to use, like
// logging/config reading. Instead of a bunch of global variables we pass
// this around, which also makes handlers easy to unit test.
type APIServices struct {
	// Configuration read in on startup
	Config config.APIConfig

	// Default logger
	Log logger.ILogger
}

// InitAPIServices sets up a new APIServices instance
func InitAPIServices(cfg config.APIConfig) *APIServices {
	logLevel, err := logger.GetLogLevel(cfg.LogLevelName)
	if err != nil {
		log.Fatalf("Failed to initialise API logger: %v", err)
	}

	ourLogger := &logger.StdOutLogger{}
	ourLogger.SetLogLevel(logLevel)

	if len(cfg.SentryEndpoint) > 0 {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryEndpoint,
			Environment: cfg.EnvironmentName,
			Release:     ApiVersion,
		}); err != nil {
			ourLogger.Errorf("Sentry initialization failed: %v", err)
		}
	}

	return &APIServices{
		Config: cfg,
		Log:    ourLogger,
	}
}
