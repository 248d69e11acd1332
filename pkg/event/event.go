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

// Package event holds the legacy background event envelope: a JSON payload
// carrying opaque data plus an execution context describing what occurred.
package event

import (
	"encoding/json"
	"regexp"
	"time"

	"github.com/nuclio/errors"
)

var pubSubTopicPattern = regexp.MustCompile(`projects/[^/?]+/topics/[^/?]+`)

// parsePubSubTopic recovers the fully qualified topic name from the push
// endpoint path, if the subscription was configured to include it
func parsePubSubTopic(requestPath string) string {
	return pubSubTopicPattern.FindString(requestPath)
}

const (
	PubSubEventType   = "google.pubsub.topic.publish"
	PubSubMessageType = "type.googleapis.com/google.pubsub.v1.PubsubMessage"
	PubSubService     = "pubsub.googleapis.com"
)

var ErrMalformedEvent = errors.New("Malformed background event payload")

// Resource identifies what a background event acted on. Legacy payloads encode
// it either as a raw string or as a service/name/type object; re-encoding must
// preserve whichever form came in.
type Resource struct {
	Service string `json:"service,omitempty"`
	Name    string `json:"name,omitempty"`
	Type    string `json:"type,omitempty"`

	// Raw holds the string form, when the event carried one
	Raw string `json:"-"`
}

func (r *Resource) UnmarshalJSON(data []byte) error {
	var rawString string
	if err := json.Unmarshal(data, &rawString); err == nil {
		*r = Resource{Raw: rawString, Name: rawString}
		return nil
	}

	type resourceObject Resource
	var object resourceObject
	if err := json.Unmarshal(data, &object); err != nil {
		return errors.Wrap(err, "Resource is neither a string nor an object")
	}

	*r = Resource(object)
	return nil
}

func (r Resource) MarshalJSON() ([]byte, error) {
	if r.Raw != "" {
		return json.Marshal(r.Raw)
	}

	type resourceObject Resource
	return json.Marshal(resourceObject(r))
}

// Context carries the metadata of a single background event occurrence.
type Context struct {
	EventID   string    `json:"eventId,omitempty"`
	Timestamp string    `json:"timestamp,omitempty"`
	EventType string    `json:"eventType,omitempty"`
	Resource  *Resource `json:"resource,omitempty"`
}

func (c *Context) Empty() bool {
	return c == nil || (c.EventID == "" && c.Timestamp == "" && c.EventType == "" && c.Resource == nil)
}

// Event is the normalized in-memory form of a legacy background event.
type Event struct {
	Context Context         `json:"context"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// envelope accepts both wire shapes: a nested "context" object and the older
// flattened layout with context fields at the top level
type envelope struct {
	Context   *Context        `json:"context"`
	Data      json.RawMessage `json:"data"`
	EventID   string          `json:"eventId"`
	Timestamp string          `json:"timestamp"`
	EventType string          `json:"eventType"`
	Resource  *Resource       `json:"resource"`
	Domain    string          `json:"domain"`
}

// Unmarshal parses a background event payload in either wire shape. The
// optional legacy "domain" field is returned separately, it only matters for
// firebase database source reconstruction.
func Unmarshal(body []byte) (*Event, string, error) {
	var parsed envelope
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, "", errors.Wrap(ErrMalformedEvent, err.Error())
	}

	parsedEvent := &Event{Data: parsed.Data}

	if parsed.Context != nil {
		parsedEvent.Context = *parsed.Context
	} else {
		parsedEvent.Context = Context{
			EventID:   parsed.EventID,
			Timestamp: parsed.Timestamp,
			EventType: parsed.EventType,
			Resource:  parsed.Resource,
		}
	}

	if len(parsedEvent.Data) == 0 && parsedEvent.Context.Empty() {
		return nil, "", ErrMalformedEvent
	}

	return parsedEvent, parsed.Domain, nil
}

// pubSubPush is the raw payload a Pub/Sub push subscription delivers, before
// any background event framing is applied
type pubSubPush struct {
	Subscription string `json:"subscription"`
	Message      *struct {
		MessageID   string            `json:"messageId"`
		PublishTime string            `json:"publishTime"`
		Data        json.RawMessage   `json:"data"`
		Attributes  map[string]string `json:"attributes"`
	} `json:"message"`
}

// IsPubSubPush reports whether the payload is a raw Pub/Sub push delivery
// rather than an already-framed background event.
func IsPubSubPush(body []byte) bool {
	var parsed pubSubPush
	if err := json.Unmarshal(body, &parsed); err != nil {
		return false
	}

	return parsed.Subscription != "" && parsed.Message != nil
}

// FromPubSubPush marshals a raw Pub/Sub push payload into background event
// form. The topic name is recovered from the request path when present.
func FromPubSubPush(requestPath string, body []byte) (*Event, error) {
	var parsed pubSubPush
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errors.Wrap(ErrMalformedEvent, err.Error())
	}

	if parsed.Message == nil {
		return nil, errors.Wrap(ErrMalformedEvent, "Pub/Sub push payload carries no message")
	}

	timestamp := parsed.Message.PublishTime
	if timestamp == "" {
		timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}

	data, err := json.Marshal(map[string]interface{}{
		"@type":      PubSubMessageType,
		"data":       parsed.Message.Data,
		"attributes": parsed.Message.Attributes,
	})
	if err != nil {
		return nil, errors.Wrap(err, "Failed to marshal Pub/Sub message data")
	}

	return &Event{
		Context: Context{
			EventID:   parsed.Message.MessageID,
			Timestamp: timestamp,
			EventType: PubSubEventType,
			Resource: &Resource{
				Service: PubSubService,
				Type:    PubSubMessageType,
				Name:    parsePubSubTopic(requestPath),
			},
		},
		Data: data,
	}, nil
}
