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

package funcframework

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/funcframework/funcframework/pkg/cloudevent"
	"github.com/funcframework/funcframework/pkg/functionconfig"
	"github.com/funcframework/funcframework/pkg/functions"
	"github.com/funcframework/funcframework/pkg/status"

	"github.com/nuclio/logger"
	nucliozap "github.com/nuclio/zap"
	"github.com/rs/xid"
	"github.com/stretchr/testify/suite"
)

type FrameworkTestSuite struct {
	suite.Suite
	logger logger.Logger
}

func (suite *FrameworkTestSuite) SetupSuite() {
	suite.logger, _ = nucliozap.NewNuclioZapTest("test")
}

func (suite *FrameworkTestSuite) createConfiguration(target string,
	signatureType functions.SignatureType) *functionconfig.Configuration {

	disabled := false

	configuration := functionconfig.NewConfiguration()
	configuration.Target = target
	configuration.SignatureType = string(signatureType)
	configuration.ListenAddress = "127.0.0.1:0"
	configuration.MaxWorkers = 2
	configuration.HealthCheck.Enabled = &disabled
	configuration.WebAdmin.Enabled = &disabled

	return configuration
}

func (suite *FrameworkTestSuite) TestServeHTTPFunction() {
	target := fmt.Sprintf("test-framework-%s", xid.New())

	functions.HTTP(target, func(responseWriter http.ResponseWriter, request *http.Request) {
		responseWriter.Write([]byte("framework says hello")) // nolint: errcheck
	})

	framework, err := NewFramework(suite.logger, suite.createConfiguration(target, functions.HTTPSignature))
	suite.Require().NoError(err)
	suite.Require().Equal(status.Initializing, framework.GetStatus())

	suite.Require().NoError(framework.Start())
	suite.Require().Equal(status.Ready, framework.GetStatus())

	response, err := http.Get("http://" + framework.Addr())
	suite.Require().NoError(err)

	body, err := io.ReadAll(response.Body)
	suite.Require().NoError(err)
	response.Body.Close() // nolint: errcheck
	suite.Require().Equal("framework says hello", string(body))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	suite.Require().NoError(framework.Stop(ctx))
	suite.Require().Equal(status.Stopped, framework.GetStatus())
}

func (suite *FrameworkTestSuite) TestUnknownTarget() {
	configuration := suite.createConfiguration(
		fmt.Sprintf("never-registered-%s", xid.New()), functions.HTTPSignature)

	_, err := NewFramework(suite.logger, configuration)
	suite.Require().Error(err)
}

func (suite *FrameworkTestSuite) TestSignatureMismatch() {
	target := fmt.Sprintf("test-framework-%s", xid.New())

	functions.HTTP(target, func(responseWriter http.ResponseWriter, request *http.Request) {})

	// registered as http, configured as cloudevent
	configuration := suite.createConfiguration(target, functions.CloudEventSignature)

	_, err := NewFramework(suite.logger, configuration)
	suite.Require().Error(err)
}

func (suite *FrameworkTestSuite) TestSignatureInferredFromRegistration() {
	target := fmt.Sprintf("test-framework-%s", xid.New())

	functions.CloudEvent(target, func(ctx context.Context, event *cloudevent.Event) error {
		return nil
	})

	// nothing configures the signature type, the registration resolves it
	configuration := suite.createConfiguration(target, "")

	framework, err := NewFramework(suite.logger, configuration)
	suite.Require().NoError(err)
	suite.Require().Equal(functions.CloudEventSignature, framework.function.Signature)
	suite.Require().Equal(string(functions.CloudEventSignature), configuration.SignatureType)
}

func (suite *FrameworkTestSuite) TestInvalidConfiguration() {
	configuration := suite.createConfiguration("", functions.HTTPSignature)

	_, err := NewFramework(suite.logger, configuration)
	suite.Require().Error(err)
}

func (suite *FrameworkTestSuite) TestNewLogger() {
	for _, debug := range []bool{false, true} {
		loggerInstance, err := NewLogger("test-logger", debug)
		suite.Require().NoError(err)
		suite.Require().NotNil(loggerInstance)

		loggerInstance.InfoWith("Logger works", "debug", debug)
	}
}

func TestFrameworkTestSuite(t *testing.T) {
	suite.Run(t, new(FrameworkTestSuite))
}
