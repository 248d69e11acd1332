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

package cloudevent

import (
	"net/http"
	"strings"

	"github.com/nuclio/errors"
)

const binaryAttributePrefix = "ce-"

// IsBinary reports whether the request headers describe a binary content mode
// CloudEvent, where context attributes travel as ce- prefixed headers.
func IsBinary(headers http.Header) bool {
	return headers.Get("ce-specversion") != "" ||
		(headers.Get("ce-id") != "" && headers.Get("ce-source") != "" && headers.Get("ce-type") != "")
}

// IsStructured reports whether the request headers describe a structured
// content mode CloudEvent, where the whole envelope is the JSON body.
func IsStructured(headers http.Header) bool {
	return strings.HasPrefix(headers.Get("Content-Type"), ContentType)
}

// FromHTTP decodes a CloudEvent from an HTTP request in either content mode.
// Binary mode wins when both could apply, matching how the attributes were
// most specifically expressed.
func FromHTTP(headers http.Header, body []byte) (*Event, error) {
	if IsBinary(headers) {
		return fromBinary(headers, body)
	}

	return fromStructured(body)
}

func fromBinary(headers http.Header, body []byte) (*Event, error) {
	decodedEvent := &Event{
		SpecVersion:     headers.Get("ce-specversion"),
		ID:              headers.Get("ce-id"),
		Source:          headers.Get("ce-source"),
		Type:            headers.Get("ce-type"),
		Subject:         headers.Get("ce-subject"),
		Time:            headers.Get("ce-time"),
		DataContentType: headers.Get("Content-Type"),
		Data:            body,
	}

	for headerName, headerValues := range headers {
		attributeName := strings.ToLower(headerName)
		if !strings.HasPrefix(attributeName, binaryAttributePrefix) || len(headerValues) == 0 {
			continue
		}

		attributeName = strings.TrimPrefix(attributeName, binaryAttributePrefix)
		switch attributeName {
		case "specversion", "id", "source", "type", "subject", "time":
			continue
		}

		if decodedEvent.Extensions == nil {
			decodedEvent.Extensions = map[string]string{}
		}

		decodedEvent.Extensions[attributeName] = headerValues[0]
	}

	if err := decodedEvent.Validate(); err != nil {
		return nil, err
	}

	return decodedEvent, nil
}

func fromStructured(body []byte) (*Event, error) {
	decodedEvent := &Event{}
	if err := decodedEvent.UnmarshalJSON(body); err != nil {
		return nil, err
	}

	if err := decodedEvent.Validate(); err != nil {
		return nil, err
	}

	return decodedEvent, nil
}

// WriteBinary writes the event's context attributes onto the given headers and
// returns the body to send, expressing the event in binary content mode.
func (e *Event) WriteBinary(headers http.Header) []byte {
	headers.Set("ce-specversion", e.SpecVersion)
	headers.Set("ce-id", e.ID)
	headers.Set("ce-source", e.Source)
	headers.Set("ce-type", e.Type)

	if e.Subject != "" {
		headers.Set("ce-subject", e.Subject)
	}

	if e.Time != "" {
		headers.Set("ce-time", e.Time)
	}

	if e.DataContentType != "" {
		headers.Set("Content-Type", e.DataContentType)
	}

	for name, value := range e.Extensions {
		headers.Set(binaryAttributePrefix+name, value)
	}

	return e.Data
}

// WriteStructured returns the structured mode body and its content type.
func (e *Event) WriteStructured() ([]byte, string, error) {
	body, err := e.MarshalJSON()
	if err != nil {
		return nil, "", errors.Wrap(err, "Failed to encode structured CloudEvent")
	}

	return body, ContentType, nil
}
