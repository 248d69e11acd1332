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

package invoker

import (
	"fmt"
	"net/http"

	"github.com/funcframework/funcframework/pkg/cloudevent"
	"github.com/funcframework/funcframework/pkg/event"
	"github.com/funcframework/funcframework/pkg/functions"

	"github.com/nuclio/logger"
)

// cloudEventInvoker decodes CloudEvents in both content modes and falls back
// to converting legacy background payloads up into CloudEvents
type cloudEventInvoker struct {
	abstractInvoker
}

func init() {
	creators.Register(string(functions.CloudEventSignature), newCloudEventInvoker)
}

func newCloudEventInvoker(parentLogger logger.Logger, function *functions.Function) (Invoker, error) {
	return &cloudEventInvoker{
		abstractInvoker: abstractInvoker{
			logger:   parentLogger.GetChild("cloudevent"),
			function: function,
		},
	}, nil
}

func (i *cloudEventInvoker) ProcessRequest(responseWriter http.ResponseWriter, request *http.Request) {
	body, err := i.readBody(request)
	if err != nil {
		i.respondClientError(responseWriter, request, "Failed to read request body", err)
		return
	}

	cloudEvent, decodeErr := cloudevent.FromHTTP(request.Header, body)
	if decodeErr != nil {

		// not a CloudEvent - try to convert up from a background event
		var convertErr error
		cloudEvent, convertErr = i.convertBackgroundEvent(request, body)
		if convertErr != nil {
			i.respondClientError(responseWriter, request,
				fmt.Sprintf("Parsing CloudEvent failed and converting from background event "+
					"to CloudEvent also failed.\nGot CloudEvent error: %s\nGot background "+
					"event conversion error: %s", decodeErr, convertErr),
				decodeErr)
			return
		}
	}

	if err := i.function.CloudEventHandler()(request.Context(), cloudEvent); err != nil {
		i.respondFunctionError(responseWriter, request, err)
		return
	}

	i.respond(responseWriter, http.StatusOK, "OK")
}

func (i *cloudEventInvoker) convertBackgroundEvent(request *http.Request, body []byte) (*cloudevent.Event, error) {
	var backgroundEvent *event.Event
	var domain string
	var err error

	if event.IsPubSubPush(body) {
		backgroundEvent, err = event.FromPubSubPush(request.URL.Path, body)
	} else {
		backgroundEvent, domain, err = event.Unmarshal(body)
	}

	if err != nil {
		return nil, err
	}

	return cloudevent.FromBackground(backgroundEvent, domain)
}
