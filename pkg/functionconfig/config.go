/*
Copyright 2023 The Functions Framework Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package functionconfig models everything the framework needs to know to
// serve one function: the target, its signature type, the process server to
// run and the knobs of that server.
package functionconfig

import (
	"github.com/funcframework/funcframework/pkg/functions"

	"github.com/nuclio/errors"
	"github.com/samber/lo"
)

const (
	DefaultListenAddress                         = ":8080"
	DefaultHealthCheckListenAddress              = ":8082"
	DefaultWebAdminListenAddress                 = ":8081"
	DefaultMaxWorkers                            = 8
	DefaultWorkerAvailabilityTimeoutMilliseconds = 10000 // 10 seconds
	DefaultReadBufferSize                        = 16 * 1024
	DefaultMaxRequestBodySize                    = 4 * 1024 * 1024
)

// ServerKinds lists the process servers the framework can run
var ServerKinds = []string{"standard", "fast"}

// CORS configures cross origin resource sharing on the function routes
type CORS struct {
	Enabled                bool     `json:"enabled,omitempty" mapstructure:"enabled"`
	AllowOrigins           []string `json:"allowOrigins,omitempty" mapstructure:"allowOrigins"`
	AllowMethods           []string `json:"allowMethods,omitempty" mapstructure:"allowMethods"`
	AllowHeaders           []string `json:"allowHeaders,omitempty" mapstructure:"allowHeaders"`
	ExposeHeaders          []string `json:"exposeHeaders,omitempty" mapstructure:"exposeHeaders"`
	AllowCredentials       bool     `json:"allowCredentials,omitempty" mapstructure:"allowCredentials"`
	PreflightMaxAgeSeconds int      `json:"preflightMaxAgeSeconds,omitempty" mapstructure:"preflightMaxAgeSeconds"`
}

// NewCORS returns the CORS defaults applied when a function enables CORS
// without overriding anything
func NewCORS() *CORS {
	return &CORS{
		Enabled:                true,
		AllowOrigins:           []string{"*"},
		AllowMethods:           []string{"HEAD", "GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:           []string{"Accept", "Content-Length", "Content-Type", "Authorization"},
		PreflightMaxAgeSeconds: 5,
	}
}

// WebServer configures one of the auxiliary listeners (healthcheck, webadmin)
type WebServer struct {
	Enabled       *bool  `json:"enabled,omitempty" mapstructure:"enabled"`
	ListenAddress string `json:"listenAddress,omitempty" mapstructure:"listenAddress"`
}

// Configuration is the full framework configuration for serving one function.
type Configuration struct {
	Target        string `json:"target,omitempty" mapstructure:"target"`
	SignatureType string `json:"signatureType,omitempty" mapstructure:"signatureType"`
	HandlerPath   string `json:"handlerPath,omitempty" mapstructure:"handlerPath"`

	ServerKind    string `json:"serverKind,omitempty" mapstructure:"serverKind"`
	ListenAddress string `json:"listenAddress,omitempty" mapstructure:"listenAddress"`
	ServerName    string `json:"serverName,omitempty" mapstructure:"serverName"`

	MaxWorkers                            int `json:"maxWorkers,omitempty" mapstructure:"maxWorkers"`
	WorkerAvailabilityTimeoutMilliseconds int `json:"workerAvailabilityTimeoutMilliseconds,omitempty" mapstructure:"workerAvailabilityTimeoutMilliseconds"`

	ReadBufferSize     int   `json:"readBufferSize,omitempty" mapstructure:"readBufferSize"`
	MaxRequestBodySize int   `json:"maxRequestBodySize,omitempty" mapstructure:"maxRequestBodySize"`
	CORS               *CORS `json:"cors,omitempty" mapstructure:"cors"`

	Debug          bool  `json:"debug,omitempty" mapstructure:"debug"`
	LogExecutionID *bool `json:"logExecutionId,omitempty" mapstructure:"logExecutionId"`

	HealthCheck WebServer `json:"healthCheck,omitempty" mapstructure:"healthCheck"`
	WebAdmin    WebServer `json:"webAdmin,omitempty" mapstructure:"webAdmin"`
}

// NewConfiguration returns a configuration with every default applied.
func NewConfiguration() *Configuration {
	enabled := true

	return &Configuration{
		ServerKind:                            "standard",
		ListenAddress:                         DefaultListenAddress,
		ServerName:                            "funcframework",
		MaxWorkers:                            DefaultMaxWorkers,
		WorkerAvailabilityTimeoutMilliseconds: DefaultWorkerAvailabilityTimeoutMilliseconds,
		ReadBufferSize:                        DefaultReadBufferSize,
		MaxRequestBodySize:                    DefaultMaxRequestBodySize,
		LogExecutionID:                        &enabled,
		HealthCheck: WebServer{
			Enabled:       &enabled,
			ListenAddress: DefaultHealthCheckListenAddress,
		},
		WebAdmin: WebServer{
			Enabled:       &enabled,
			ListenAddress: DefaultWebAdminListenAddress,
		},
	}
}

// Validate fails on anything the framework would otherwise trip over later.
func (c *Configuration) Validate() error {
	if c.Target == "" {
		return errors.New("Function target must be set")
	}

	// an empty signature type means "use whatever the target registered as"
	if c.SignatureType != "" {
		if _, err := functions.ParseSignatureType(c.SignatureType); err != nil {
			return err
		}
	}

	if !lo.Contains(ServerKinds, c.ServerKind) {
		return errors.Errorf("Invalid server kind: %s (expected one of %v)", c.ServerKind, ServerKinds)
	}

	if c.MaxWorkers <= 0 {
		return errors.New("Max workers must be positive")
	}

	return nil
}

// Signature returns the parsed signature type, empty when the configuration
// leaves resolution to the function's registration. Call Validate first.
func (c *Configuration) Signature() functions.SignatureType {
	return functions.SignatureType(c.SignatureType)
}
