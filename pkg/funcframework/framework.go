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

// Package funcframework assembles a registered function into a running
// service: worker pool, process server, healthcheck and webadmin.
package funcframework

import (
	"context"
	"os"
	"time"

	"github.com/funcframework/funcframework/pkg/errgroup"
	"github.com/funcframework/funcframework/pkg/functionconfig"
	"github.com/funcframework/funcframework/pkg/functions"
	"github.com/funcframework/funcframework/pkg/healthcheck"
	"github.com/funcframework/funcframework/pkg/invoker"
	"github.com/funcframework/funcframework/pkg/server"
	"github.com/funcframework/funcframework/pkg/status"
	"github.com/funcframework/funcframework/pkg/webadmin"
	"github.com/funcframework/funcframework/pkg/worker"

	// register the process server backends
	_ "github.com/funcframework/funcframework/pkg/server/fast"
	_ "github.com/funcframework/funcframework/pkg/server/standard"

	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
	nucliozap "github.com/nuclio/zap"
)

const drainTimeout = 10 * time.Second

// Framework hosts one function behind a process server.
type Framework struct {
	logger            logger.Logger
	configuration     *functionconfig.Configuration
	function          *functions.Function
	workerAllocator   worker.Allocator
	server            server.Server
	healthcheckServer *healthcheck.Server
	webadminServer    *webadmin.Server
	currentStatus     status.Status
}

// NewFramework resolves the configured target function and wires everything
// short of listening.
func NewFramework(parentLogger logger.Logger,
	configuration *functionconfig.Configuration) (*Framework, error) {
	var err error

	if err = configuration.Validate(); err != nil {
		return nil, errors.Wrap(err, "Invalid configuration")
	}

	newFramework := &Framework{
		logger:        parentLogger.GetChild("framework"),
		configuration: configuration,
		currentStatus: status.Initializing,
	}

	// the target must have been registered, by the user's init or by a
	// loaded plugin
	newFramework.function, err = functions.Get(configuration.Target)
	if err != nil {
		return nil, errors.Wrapf(err,
			"Target function %q is not registered (registered: %v)",
			configuration.Target,
			functions.Names())
	}

	// the registered signature wins when the configuration leaves the type
	// unset; an explicit setting must agree with the registration
	if configuration.SignatureType == "" {
		configuration.SignatureType = string(newFramework.function.Signature)
	} else if newFramework.function.Signature != configuration.Signature() {
		return nil, errors.Errorf("Target function %q is registered as %q, configured as %q",
			configuration.Target,
			newFramework.function.Signature,
			configuration.Signature())
	}

	if newFramework.workerAllocator, err = newFramework.createWorkerAllocator(); err != nil {
		return nil, errors.Wrap(err, "Failed to create worker allocator")
	}

	if newFramework.server, err = newFramework.createServer(); err != nil {
		return nil, errors.Wrap(err, "Failed to create server")
	}

	newFramework.healthcheckServer, err = healthcheck.NewServer(newFramework.logger,
		newFramework,
		&configuration.HealthCheck)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create healthcheck server")
	}

	newFramework.webadminServer, err = webadmin.NewServer(newFramework.logger,
		configuration.ServerName,
		newFramework,
		newFramework.workerAllocator,
		&configuration.WebAdmin)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create webadmin server")
	}

	newFramework.logger.DebugWith("Created",
		"target", configuration.Target,
		"signature", configuration.SignatureType,
		"serverKind", configuration.ServerKind,
		"maxWorkers", configuration.MaxWorkers)

	return newFramework, nil
}

// Start brings up the auxiliary listeners and the process server, then marks
// the framework ready.
func (f *Framework) Start() error {
	startGroup, _ := errgroup.WithContext(context.Background(), f.logger)

	startGroup.Go("healthcheck server", f.healthcheckServer.Start)
	startGroup.Go("webadmin server", f.webadminServer.Start)
	startGroup.Go("process server", f.server.Start)

	if err := startGroup.Wait(); err != nil {
		f.setStatus(status.Error)
		return errors.Wrap(err, "Failed to start")
	}

	f.setStatus(status.Ready)

	f.logger.InfoWith("Serving function",
		"target", f.configuration.Target,
		"listenAddress", f.server.Addr())

	return nil
}

// Stop drains in-flight requests and shuts everything down.
func (f *Framework) Stop(ctx context.Context) error {
	f.logger.InfoWith("Stopping")

	// stop accepting new requests first
	if err := f.server.Stop(ctx); err != nil {
		f.logger.WarnWith("Failed to stop server cleanly", "err", err)
	}

	// wait for dispatched requests to hand their workers back
	if err := f.workerAllocator.Drain(drainTimeout); err != nil {
		f.logger.WarnWith("Failed to drain workers", "err", err)
	}

	f.webadminServer.Stop()
	f.setStatus(status.Stopped)

	return nil
}

// Addr returns the process server's bound address, valid after Start.
func (f *Framework) Addr() string {
	return f.server.Addr()
}

// GetStatus implements status.Provider.
func (f *Framework) GetStatus() status.Status {
	return f.currentStatus
}

func (f *Framework) setStatus(newStatus status.Status) {
	f.logger.DebugWith("Setting status", "status", newStatus.String())
	f.currentStatus = newStatus
}

func (f *Framework) createWorkerAllocator() (worker.Allocator, error) {
	workers := make([]*worker.Worker, 0, f.configuration.MaxWorkers)

	for workerIndex := 0; workerIndex < f.configuration.MaxWorkers; workerIndex++ {

		// each worker carries its own invoker instance
		invokerInstance, err := invoker.New(f.logger, f.function)
		if err != nil {
			return nil, errors.Wrap(err, "Failed to create invoker")
		}

		workerInstance, err := worker.NewWorker(f.logger, workerIndex, invokerInstance)
		if err != nil {
			return nil, errors.Wrapf(err, "Failed to create worker %d", workerIndex)
		}

		workers = append(workers, workerInstance)
	}

	if len(workers) == 1 {
		return worker.NewSingletonWorkerAllocator(f.logger, workers[0])
	}

	return worker.NewFixedPoolWorkerAllocator(f.logger, workers)
}

func (f *Framework) createServer() (server.Server, error) {
	routerHandler, err := server.NewRouter(f.logger, &server.RouterConfiguration{
		Signature:       f.function.Signature,
		WorkerAllocator: f.workerAllocator,
		WorkerAvailabilityTimeout: time.Duration(
			f.configuration.WorkerAvailabilityTimeoutMilliseconds) * time.Millisecond,
		MaxRequestBodySize: f.configuration.MaxRequestBodySize,
		CORS:               f.configuration.CORS,
		SuppressExecutionIDLogs: f.configuration.LogExecutionID != nil &&
			!*f.configuration.LogExecutionID,
	})
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create router")
	}

	return server.New(f.configuration.ServerKind, f.logger, &server.Configuration{
		ListenAddress:      f.configuration.ListenAddress,
		ServerName:         f.configuration.ServerName,
		ReadBufferSize:     f.configuration.ReadBufferSize,
		MaxRequestBodySize: f.configuration.MaxRequestBodySize,
		Handler:            routerHandler,
	})
}

// NewLogger creates the framework's root logger.
func NewLogger(name string, debug bool) (logger.Logger, error) {
	level := nucliozap.InfoLevel
	if debug {
		level = nucliozap.DebugLevel
	}

	newLogger, err := nucliozap.NewNuclioZapCmd(name, level, os.Stdout)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create logger")
	}

	return newLogger, nil
}
