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

package functionconfig

import (
	"fmt"
	"os"
	"strings"

	"github.com/nuclio/errors"
	"github.com/spf13/viper"
)

// environment variables understood by the reader, mapped onto configuration keys
var environmentBindings = map[string][]string{
	"target":         {"FUNCTION_TARGET"},
	"signatureType":  {"FUNCTION_SIGNATURE_TYPE"},
	"handlerPath":    {"FUNCTION_HANDLER_PATH"},
	"serverKind":     {"FUNCTION_SERVER"},
	"debug":          {"DEBUG"},
	"logExecutionId": {"LOG_EXECUTION_ID"},
}

// ReadConfiguration loads the configuration from an optional file and the
// environment, on top of the defaults. File values override defaults,
// environment values override the file.
func ReadConfiguration(configurationPath string) (*Configuration, error) {
	configurationReader := viper.New()

	if configurationPath != "" {
		configurationReader.SetConfigFile(configurationPath)

		if err := configurationReader.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "Failed to read configuration at %q", configurationPath)
		}
	}

	for key, names := range environmentBindings {
		arguments := append([]string{key}, names...)
		if err := configurationReader.BindEnv(arguments...); err != nil {
			return nil, errors.Wrapf(err, "Failed to bind environment for %q", key)
		}
	}

	configuration := NewConfiguration()
	if err := configurationReader.Unmarshal(configuration); err != nil {
		return nil, errors.Wrap(err, "Failed to decode configuration")
	}

	applyListenAddressEnvironment(configuration)

	return configuration, nil
}

// applyListenAddressEnvironment honors the conventional HOST / PORT variables
// when the environment carries them
func applyListenAddressEnvironment(configuration *Configuration) {
	host := os.Getenv("HOST")
	port := os.Getenv("PORT")

	if host == "" && port == "" {
		return
	}

	if port == "" {
		_, port, _ = strings.Cut(configuration.ListenAddress, ":")
	}

	configuration.ListenAddress = fmt.Sprintf("%s:%s", host, port)
}
