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

// Package app runs the framework as a standalone process, loading the
// function from a compiled plugin.
package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/funcframework/funcframework/pkg/funcframework"
	"github.com/funcframework/funcframework/pkg/functionconfig"

	"github.com/nuclio/errors"
	"github.com/spf13/cobra"
)

const stopTimeout = 30 * time.Second

type RootCommandeer struct {
	cmd           *cobra.Command
	configPath    string
	target        string
	signatureType string
	handlerPath   string
	serverKind    string
	listenAddress string
	debug         bool
}

func NewRootCommandeer() *RootCommandeer {
	commandeer := &RootCommandeer{}

	cmd := &cobra.Command{
		Use:           "funcframework",
		Short:         "Serve a function over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return commandeer.run(cmd)
		},
	}

	cmd.Flags().StringVar(&commandeer.configPath, "config", "", "Path of configuration file")
	cmd.Flags().StringVar(&commandeer.target, "target", "", "Name of the registered function to serve")
	cmd.Flags().StringVar(&commandeer.signatureType, "signature-type", "", "Signature type of the target function")
	cmd.Flags().StringVar(&commandeer.handlerPath, "handler-path", "", "Path of a plugin holding the target function")
	cmd.Flags().StringVar(&commandeer.serverKind, "server", "", "Process server kind - \"standard\" or \"fast\"")
	cmd.Flags().StringVar(&commandeer.listenAddress, "listen-addr", "", "Address to listen on")
	cmd.Flags().BoolVar(&commandeer.debug, "debug", false, "Debug level logging")

	commandeer.cmd = cmd

	return commandeer
}

// Execute uses os.Args to execute the command
func (rc *RootCommandeer) Execute() error {
	return rc.cmd.Execute()
}

func (rc *RootCommandeer) run(cmd *cobra.Command) error {
	configuration, err := functionconfig.ReadConfiguration(rc.configPath)
	if err != nil {
		return errors.Wrap(err, "Failed to read configuration")
	}

	rc.applyFlagOverrides(cmd, configuration)

	loggerInstance, err := funcframework.NewLogger(configuration.ServerName, configuration.Debug)
	if err != nil {
		return errors.Wrap(err, "Failed to create logger")
	}

	if configuration.HandlerPath != "" {
		if err := funcframework.LoadPlugin(loggerInstance,
			configuration.HandlerPath,
			configuration.Target); err != nil {
			return errors.Wrap(err, "Failed to load function plugin")
		}
	}

	framework, err := funcframework.NewFramework(loggerInstance, configuration)
	if err != nil {
		return errors.Wrap(err, "Failed to create framework")
	}

	if err := framework.Start(); err != nil {
		return errors.Wrap(err, "Failed to start framework")
	}

	// wait for a termination signal
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	receivedSignal := <-signalChan

	loggerInstance.InfoWith("Shutting down", "signal", receivedSignal.String())

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	return framework.Stop(ctx)
}

// applyFlagOverrides layers explicitly passed flags over the configuration
func (rc *RootCommandeer) applyFlagOverrides(cmd *cobra.Command,
	configuration *functionconfig.Configuration) {
	if cmd.Flags().Changed("target") {
		configuration.Target = rc.target
	}

	if cmd.Flags().Changed("signature-type") {
		configuration.SignatureType = rc.signatureType
	}

	if cmd.Flags().Changed("handler-path") {
		configuration.HandlerPath = rc.handlerPath
	}

	if cmd.Flags().Changed("server") {
		configuration.ServerKind = rc.serverKind
	}

	if cmd.Flags().Changed("listen-addr") {
		configuration.ListenAddress = rc.listenAddress
	}

	if cmd.Flags().Changed("debug") {
		configuration.Debug = rc.debug
	}
}
