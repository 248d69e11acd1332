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

// Package cloudevent implements the CloudEvents envelope, its two HTTP content
// modes (binary and structured) and the lossless conversion to and from the
// legacy background event encoding.
package cloudevent

import (
	"encoding/json"
	"fmt"

	"github.com/nuclio/errors"
)

const (
	// SpecVersion is the CloudEvents specification version events are stamped with
	SpecVersion = "1.0"

	// ContentType is the mime type of a structured mode CloudEvent
	ContentType = "application/cloudevents+json"
)

var ErrMissingRequiredAttributes = errors.New("CloudEvent is missing required attributes")

// Event is a single CloudEvent occurrence. Time is kept as the wire string so
// that re-encoding reproduces the original value byte for byte.
type Event struct {
	SpecVersion     string
	ID              string
	Source          string
	Type            string
	Subject         string
	Time            string
	DataContentType string
	Data            json.RawMessage
	Extensions      map[string]string
}

var contextAttributes = map[string]bool{
	"specversion":     true,
	"id":              true,
	"source":          true,
	"type":            true,
	"subject":         true,
	"time":            true,
	"datacontenttype": true,
	"data":            true,
}

// Validate fails when any of the required CloudEvents attributes is absent.
func (e *Event) Validate() error {
	var missing []string

	for attribute, value := range map[string]string{
		"specversion": e.SpecVersion,
		"id":          e.ID,
		"source":      e.Source,
		"type":        e.Type,
	} {
		if value == "" {
			missing = append(missing, attribute)
		}
	}

	if len(missing) != 0 {
		return errors.Wrap(ErrMissingRequiredAttributes, fmt.Sprintf("%s", missing))
	}

	return nil
}

// MarshalJSON encodes the event in structured mode, inlining extension
// attributes next to the specified ones.
func (e *Event) MarshalJSON() ([]byte, error) {
	encoded := map[string]interface{}{
		"specversion": e.SpecVersion,
		"id":          e.ID,
		"source":      e.Source,
		"type":        e.Type,
	}

	if e.Subject != "" {
		encoded["subject"] = e.Subject
	}

	if e.Time != "" {
		encoded["time"] = e.Time
	}

	if e.DataContentType != "" {
		encoded["datacontenttype"] = e.DataContentType
	}

	if len(e.Data) != 0 {
		encoded["data"] = e.Data
	}

	for name, value := range e.Extensions {
		if !contextAttributes[name] {
			encoded[name] = value
		}
	}

	return json.Marshal(encoded)
}

// UnmarshalJSON decodes a structured mode event, collecting unknown context
// attributes as extensions.
func (e *Event) UnmarshalJSON(body []byte) error {
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(body, &decoded); err != nil {
		return errors.Wrap(err, "Failed to decode structured CloudEvent")
	}

	decodeString := func(name string) string {
		var value string

		// non-string attribute values are kept in their compact JSON form
		if raw, found := decoded[name]; found {
			if err := json.Unmarshal(raw, &value); err != nil {
				value = string(raw)
			}
		}

		return value
	}

	*e = Event{
		SpecVersion:     decodeString("specversion"),
		ID:              decodeString("id"),
		Source:          decodeString("source"),
		Type:            decodeString("type"),
		Subject:         decodeString("subject"),
		Time:            decodeString("time"),
		DataContentType: decodeString("datacontenttype"),
		Data:            decoded["data"],
	}

	for name := range decoded {
		if contextAttributes[name] {
			continue
		}

		if e.Extensions == nil {
			e.Extensions = map[string]string{}
		}

		e.Extensions[name] = decodeString(name)
	}

	return nil
}
