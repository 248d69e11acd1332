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
	"encoding/json"
	"net/http"
	"plugin"

	"github.com/funcframework/funcframework/pkg/cloudevent"
	"github.com/funcframework/funcframework/pkg/event"
	"github.com/funcframework/funcframework/pkg/functions"

	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
)

// LoadPlugin opens a compiled plugin and registers the exported symbol named
// target as a function. The symbol's type decides the signature: it must match
// one of the handler shapes the framework dispatches on.
//
// Handlers registered from the host binary's own init code don't need this;
// it exists for the standalone runner, where the function arrives as a .so.
func LoadPlugin(parentLogger logger.Logger, handlerPath string, target string) error {
	pluginLogger := parentLogger.GetChild("plugin")

	handlerPlugin, err := plugin.Open(handlerPath)
	if err != nil {
		return errors.Wrapf(err, "Can't load plugin at %q", handlerPath)
	}

	handlerSymbol, err := handlerPlugin.Lookup(target)
	if err != nil {
		return errors.Wrapf(err, "Can't find symbol %q in %q", target, handlerPath)
	}

	// exported package-level functions surface as their function type,
	// exported variables as pointers to their type
	switch handler := handlerSymbol.(type) {
	case func(http.ResponseWriter, *http.Request):
		functions.HTTP(target, handler)
	case *func(http.ResponseWriter, *http.Request):
		functions.HTTP(target, *handler)
	case func(context.Context, *cloudevent.Event) error:
		functions.CloudEvent(target, handler)
	case *func(context.Context, *cloudevent.Event) error:
		functions.CloudEvent(target, *handler)
	case func(context.Context, json.RawMessage, *event.Context) error:
		functions.Event(target, handler)
	case *func(context.Context, json.RawMessage, *event.Context) error:
		functions.Event(target, *handler)
	default:
		return errors.Errorf("%s:%s is of wrong type - %T", handlerPath, target, handlerSymbol)
	}

	pluginLogger.InfoWith("Loaded function from plugin",
		"handlerPath", handlerPath,
		"target", target)

	return nil
}
