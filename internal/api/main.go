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

package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"sort"

	"github.com/gorilla/handlers"
	"github.com/microbeam/ebsdgeom/api/config"
	"github.com/microbeam/ebsdgeom/api/endpoints"
	"github.com/microbeam/ebsdgeom/api/services"
	"github.com/microbeam/ebsdgeom/core/utils"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to YAML config file, omit for defaults + env overrides")
	flag.Parse()

	cfg := loadConfig(configPath)
	svcs := services.InitAPIServices(cfg)

	// This is for prometheus
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		http.ListenAndServe(cfg.MetricsAddress, nil)
	}()

	router := endpoints.MakeRouter(svcs)

	printRoutes(svcs, router.GetRoutes())

	logware := endpoints.LoggerMiddleware{
		APIServices: svcs,
	}
	promware := endpoints.PrometheusMiddleware

	router.Router.Use(logware.Middleware, promware)

	// Now also log this to the world...
	svcs.Log.Infof("API version \"%v\" listening on %v...", services.ApiVersion, cfg.ListenAddress)

	log.Fatal(
		http.ListenAndServe(cfg.ListenAddress,
			handlers.CORS(
				handlers.AllowedHeaders([]string{"X-Requested-With", "Content-Type"}),
				handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "HEAD", "OPTIONS"}),
				handlers.AllowedOrigins([]string{"*"}))(router.Router)))
}

func loadConfig(configPath string) config.APIConfig {
	var cfg config.APIConfig
	var err error

	if len(configPath) > 0 {
		cfg, err = config.NewConfigFromFile(configPath)
	} else {
		cfg, err = config.NewConfig()
	}
	if err != nil {
		log.Fatalf("Something went wrong with API config. Error: %v\n", err)
	}

	// Show the config
	cfgJSON, err := json.MarshalIndent(cfg, "", utils.PrettyPrintIndentForJSON)
	if err != nil {
		log.Fatalf("Error trying to display config\n")
	}

	log.Println(string(cfgJSON))
	return cfg
}

func printRoutes(svcs *services.APIServices, routes map[string]bool) {
	sorted := []string{}
	for methodRoute := range routes {
		sorted = append(sorted, methodRoute)
	}
	sort.Strings(sorted)

	for _, methodRoute := range sorted {
		svcs.Log.Infof("Route: %v", methodRoute)
	}
}
