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
	"net/http"

	"github.com/funcframework/funcframework/pkg/cloudevent"
	"github.com/funcframework/funcframework/pkg/event"
	"github.com/funcframework/funcframework/pkg/functions"

	"github.com/nuclio/logger"
)

// backgroundInvoker feeds legacy background event functions. CloudEvents
// arriving on this signature are converted down to background form when a
// mapping exists.
type backgroundInvoker struct {
	abstractInvoker
}

func init() {
	creators.Register(string(functions.EventSignature), newBackgroundInvoker)
}

func newBackgroundInvoker(parentLogger logger.Logger, function *functions.Function) (Invoker, error) {
	return &backgroundInvoker{
		abstractInvoker: abstractInvoker{
			logger:   parentLogger.GetChild("event"),
			function: function,
		},
	}, nil
}

func (i *backgroundInvoker) ProcessRequest(responseWriter http.ResponseWriter, request *http.Request) {
	body, err := i.readBody(request)
	if err != nil {
		i.respondClientError(responseWriter, request, "Failed to read request body", err)
		return
	}

	backgroundEvent, err := i.marshalBackgroundEvent(request, body)
	if err != nil {
		i.respondClientError(responseWriter, request, "Failed to parse event payload", err)
		return
	}

	if err := i.function.EventHandler()(request.Context(),
		backgroundEvent.Data,
		&backgroundEvent.Context); err != nil {
		i.respondFunctionError(responseWriter, request, err)
		return
	}

	i.respond(responseWriter, http.StatusOK, "OK")
}

func (i *backgroundInvoker) marshalBackgroundEvent(request *http.Request, body []byte) (*event.Event, error) {

	// a convertible CloudEvent becomes the equivalent background event
	if cloudEvent, err := cloudevent.FromHTTP(request.Header, body); err == nil {
		if cloudevent.IsConvertible(cloudEvent) {
			return cloudevent.ToBackground(cloudEvent)
		}
	}

	// binary content mode with legacy attribute headers: the body is the data,
	// the context comes off the headers
	if cloudevent.IsBinary(request.Header) {
		return &event.Event{
			Context: event.Context{
				EventID:   request.Header.Get("ce-eventId"),
				Timestamp: request.Header.Get("ce-timestamp"),
				EventType: request.Header.Get("ce-eventType"),
				Resource:  binaryResource(request.Header.Get("ce-resource")),
			},
			Data: body,
		}, nil
	}

	if event.IsPubSubPush(body) {
		return event.FromPubSubPush(request.URL.Path, body)
	}

	backgroundEvent, _, err := event.Unmarshal(body)
	return backgroundEvent, err
}

func binaryResource(rawResource string) *event.Resource {
	if rawResource == "" {
		return nil
	}

	return &event.Resource{Raw: rawResource, Name: rawResource}
}
