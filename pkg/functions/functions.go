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

// Package functions is the registration surface for user functions. Functions
// declare themselves from init code under a name and a signature type; the
// framework resolves the configured target against this registry at startup.
package functions

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/funcframework/funcframework/pkg/cloudevent"
	"github.com/funcframework/funcframework/pkg/event"
	"github.com/funcframework/funcframework/pkg/registry"
)

// HTTPHandler is the native calling convention of an http function.
type HTTPHandler func(http.ResponseWriter, *http.Request)

// CloudEventHandler is the native calling convention of a cloudevent function.
type CloudEventHandler func(context.Context, *cloudevent.Event) error

// EventHandler is the native calling convention of a legacy background event
// function: raw payload data plus the event context.
type EventHandler func(context.Context, json.RawMessage, *event.Context) error

// typedAdapter erases the input type of a typed function so the registry can
// hold it; Decode produces the typed input Invoke expects
type typedAdapter struct {
	decode func([]byte) (interface{}, error)
	invoke func(context.Context, interface{}) (interface{}, error)
}

// Function is one registered user function with its resolved signature type.
type Function struct {
	Name      string
	Signature SignatureType

	httpHandler       HTTPHandler
	cloudEventHandler CloudEventHandler
	eventHandler      EventHandler
	typed             *typedAdapter
}

// HTTPHandler returns the http handler of an http-signature function.
func (f *Function) HTTPHandler() HTTPHandler {
	return f.httpHandler
}

// CloudEventHandler returns the handler of a cloudevent-signature function.
func (f *Function) CloudEventHandler() CloudEventHandler {
	return f.cloudEventHandler
}

// EventHandler returns the handler of an event-signature function.
func (f *Function) EventHandler() EventHandler {
	return f.eventHandler
}

// TypedDecode decodes a JSON payload into the declared input type of a
// typed-signature function.
func (f *Function) TypedDecode(payload []byte) (interface{}, error) {
	return f.typed.decode(payload)
}

// TypedInvoke calls a typed-signature function with a previously decoded input.
func (f *Function) TypedInvoke(ctx context.Context, input interface{}) (interface{}, error) {
	return f.typed.invoke(ctx, input)
}

var defaultRegistry = registry.New[*Function]("function")

// HTTP registers an http-signature function under the given name.
func HTTP(name string, handler HTTPHandler) {
	defaultRegistry.Register(name, &Function{
		Name:        name,
		Signature:   HTTPSignature,
		httpHandler: handler,
	})
}

// CloudEvent registers a cloudevent-signature function under the given name.
func CloudEvent(name string, handler CloudEventHandler) {
	defaultRegistry.Register(name, &Function{
		Name:              name,
		Signature:         CloudEventSignature,
		cloudEventHandler: handler,
	})
}

// Event registers a legacy background event function under the given name.
func Event(name string, handler EventHandler) {
	defaultRegistry.Register(name, &Function{
		Name:         name,
		Signature:    EventSignature,
		eventHandler: handler,
	})
}

// Typed registers a typed-signature function: its JSON request body is decoded
// into T before invocation and its return value is encoded into the response.
func Typed[T any](name string, handler func(context.Context, T) (interface{}, error)) {
	defaultRegistry.Register(name, &Function{
		Name:      name,
		Signature: TypedSignature,
		typed: &typedAdapter{
			decode: func(payload []byte) (interface{}, error) {
				var input T
				if err := json.Unmarshal(payload, &input); err != nil {
					return nil, err
				}
				return input, nil
			},
			invoke: func(ctx context.Context, input interface{}) (interface{}, error) {
				return handler(ctx, input.(T))
			},
		},
	})
}

// Get resolves a registered function by name.
func Get(name string) (*Function, error) {
	return defaultRegistry.Get(name)
}

// Names lists the registered function names, sorted.
func Names() []string {
	return defaultRegistry.Names()
}
