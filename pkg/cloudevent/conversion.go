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
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/funcframework/funcframework/pkg/event"

	"github.com/google/uuid"
	"github.com/nuclio/errors"
)

const (
	firebaseAuthService = "firebaseauth.googleapis.com"
	firebaseService     = "firebase.googleapis.com"
	firebaseDBService   = "firebasedatabase.googleapis.com"
	firestoreService    = "firestore.googleapis.com"
	pubSubService       = event.PubSubService
	storageService      = "storage.googleapis.com"
)

// ErrNotConvertible indicates a payload that cannot be expressed in the other
// event encoding
var ErrNotConvertible = errors.New("Event is not convertible")

// backgroundToCEType maps legacy background event types onto their CloudEvents
// equivalents. Both the modern and the provider-prefixed legacy spellings are
// accepted on the background side.
var backgroundToCEType = map[string]string{
	"google.pubsub.topic.publish":                              "google.cloud.pubsub.topic.v1.messagePublished",
	"providers/cloud.pubsub/eventTypes/topic.publish":          "google.cloud.pubsub.topic.v1.messagePublished",
	"google.storage.object.finalize":                           "google.cloud.storage.object.v1.finalized",
	"google.storage.object.delete":                             "google.cloud.storage.object.v1.deleted",
	"google.storage.object.archive":                            "google.cloud.storage.object.v1.archived",
	"google.storage.object.metadataUpdate":                     "google.cloud.storage.object.v1.metadataUpdated",
	"providers/cloud.firestore/eventTypes/document.write":      "google.cloud.firestore.document.v1.written",
	"providers/cloud.firestore/eventTypes/document.create":     "google.cloud.firestore.document.v1.created",
	"providers/cloud.firestore/eventTypes/document.update":     "google.cloud.firestore.document.v1.updated",
	"providers/cloud.firestore/eventTypes/document.delete":     "google.cloud.firestore.document.v1.deleted",
	"providers/firebase.auth/eventTypes/user.create":           "google.firebase.auth.user.v1.created",
	"providers/firebase.auth/eventTypes/user.delete":           "google.firebase.auth.user.v1.deleted",
	"providers/google.firebase.analytics/eventTypes/event.log": "google.firebase.analytics.log.v1.written",
	"providers/google.firebase.database/eventTypes/ref.create": "google.firebase.database.ref.v1.created",
	"providers/google.firebase.database/eventTypes/ref.write":  "google.firebase.database.ref.v1.written",
	"providers/google.firebase.database/eventTypes/ref.update": "google.firebase.database.ref.v1.updated",
	"providers/google.firebase.database/eventTypes/ref.delete": "google.firebase.database.ref.v1.deleted",
	"google.firebase.remoteconfig.update":                      "google.firebase.remoteconfig.remoteConfig.v1.updated",
}

// ceToBackgroundType is the inverse map; where two background spellings fold
// into one CloudEvents type, the modern spelling is the canonical inverse
var ceToBackgroundType = map[string]string{
	"google.cloud.pubsub.topic.v1.messagePublished":        "google.pubsub.topic.publish",
	"google.cloud.storage.object.v1.finalized":             "google.storage.object.finalize",
	"google.cloud.storage.object.v1.deleted":               "google.storage.object.delete",
	"google.cloud.storage.object.v1.archived":              "google.storage.object.archive",
	"google.cloud.storage.object.v1.metadataUpdated":       "google.storage.object.metadataUpdate",
	"google.cloud.firestore.document.v1.written":           "providers/cloud.firestore/eventTypes/document.write",
	"google.cloud.firestore.document.v1.created":           "providers/cloud.firestore/eventTypes/document.create",
	"google.cloud.firestore.document.v1.updated":           "providers/cloud.firestore/eventTypes/document.update",
	"google.cloud.firestore.document.v1.deleted":           "providers/cloud.firestore/eventTypes/document.delete",
	"google.firebase.auth.user.v1.created":                 "providers/firebase.auth/eventTypes/user.create",
	"google.firebase.auth.user.v1.deleted":                 "providers/firebase.auth/eventTypes/user.delete",
	"google.firebase.analytics.log.v1.written":             "providers/google.firebase.analytics/eventTypes/event.log",
	"google.firebase.database.ref.v1.created":              "providers/google.firebase.database/eventTypes/ref.create",
	"google.firebase.database.ref.v1.written":              "providers/google.firebase.database/eventTypes/ref.write",
	"google.firebase.database.ref.v1.updated":              "providers/google.firebase.database/eventTypes/ref.update",
	"google.firebase.database.ref.v1.deleted":              "providers/google.firebase.database/eventTypes/ref.delete",
	"google.firebase.remoteconfig.remoteConfig.v1.updated": "google.firebase.remoteconfig.update",
}

// serviceByTypePrefix resolves the owning service when the background event
// carried no resource service of its own. Order matters: longest match first.
var serviceByTypePrefix = []struct {
	prefix  string
	service string
}{
	{"providers/cloud.firestore/", firestoreService},
	{"providers/google.firebase.analytics/", firebaseService},
	{"providers/firebase.auth/", firebaseAuthService},
	{"providers/google.firebase.database/", firebaseDBService},
	{"providers/cloud.pubsub/", pubSubService},
	{"providers/cloud.storage/", storageService},
	{"google.pubsub", pubSubService},
	{"google.storage", storageService},
}

// resourcePathPatterns split a background resource name into the CloudEvents
// source path and subject, per service
var resourcePathPatterns = map[string]*regexp.Regexp{
	storageService:    regexp.MustCompile(`^(projects/_/buckets/[^/]+)/(objects/.+)$`),
	firebaseDBService: regexp.MustCompile(`^(projects/_/instances/[^/]+)/(refs/.+)$`),
	firestoreService:  regexp.MustCompile(`^(projects/[^/]+/databases/\(default\))/(documents/.+)$`),
}

var sourcePattern = regexp.MustCompile(`^//([^/]+)/(.+)$`)

// firebase auth metadata field names differ between the two encodings
var authMetadataFieldToCE = map[string]string{
	"createdAt":      "createTime",
	"lastSignedInAt": "lastSignInTime",
}

// IsConvertible reports whether a CloudEvent has a background event equivalent.
func IsConvertible(cloudEvent *Event) bool {
	_, found := ceToBackgroundType[cloudEvent.Type]
	return found
}

// FromBackground converts a background event into the equivalent CloudEvent.
// domain is the optional legacy "domain" payload field, required only for
// firebase database events.
func FromBackground(backgroundEvent *event.Event, domain string) (*Event, error) {
	ceType, found := backgroundToCEType[backgroundEvent.Context.EventType]
	if !found {
		return nil, errors.Wrapf(ErrNotConvertible,
			"Unable to find CloudEvent equivalent type for %q", backgroundEvent.Context.EventType)
	}

	service, err := resolveService(&backgroundEvent.Context)
	if err != nil {
		return nil, err
	}

	resourceName := backgroundResourceName(&backgroundEvent.Context)
	source, subject := splitResource(service, resourceName)
	data := backgroundEvent.Data

	switch service {
	case pubSubService:
		if data, err = wrapPubSubMessage(data, &backgroundEvent.Context); err != nil {
			return nil, err
		}
	case firebaseAuthService:
		if data, subject, err = authDataToCE(data); err != nil {
			return nil, err
		}
	case firebaseDBService:
		if source, err = firebaseDBSource(resourceName, domain); err != nil {
			return nil, err
		}
		if matches := resourcePathPatterns[firebaseDBService].FindStringSubmatch(resourceName); matches != nil {
			subject = matches[2]
		}
	}

	eventID := backgroundEvent.Context.EventID
	if eventID == "" {
		eventID = uuid.NewString()
	}

	return &Event{
		SpecVersion:     SpecVersion,
		ID:              eventID,
		Source:          source,
		Type:            ceType,
		Subject:         subject,
		Time:            backgroundEvent.Context.Timestamp,
		DataContentType: "application/json",
		Data:            data,
	}, nil
}

// ToBackground converts a CloudEvent into the equivalent background event.
func ToBackground(cloudEvent *Event) (*event.Event, error) {
	backgroundType, found := ceToBackgroundType[cloudEvent.Type]
	if !found {
		return nil, errors.Wrapf(ErrNotConvertible,
			"Unable to find background equivalent type for %q", cloudEvent.Type)
	}

	sourceMatches := sourcePattern.FindStringSubmatch(cloudEvent.Source)
	if sourceMatches == nil {
		return nil, errors.Wrapf(ErrNotConvertible, "Unparseable CloudEvent source %q", cloudEvent.Source)
	}
	service, sourcePath := sourceMatches[1], sourceMatches[2]

	data := cloudEvent.Data
	var resource *event.Resource
	var err error

	switch service {
	case pubSubService:
		if data, err = unwrapPubSubMessage(data); err != nil {
			return nil, err
		}
		resource = &event.Resource{
			Service: service,
			Name:    sourcePath,
			Type:    event.PubSubMessageType,
		}
	case storageService:
		resource = &event.Resource{
			Service: service,
			Name:    joinSubject(sourcePath, cloudEvent.Subject),
			Type:    storageResourceType(data),
		}
	case firebaseAuthService:
		if data, err = authDataFromCE(data); err != nil {
			return nil, err
		}
		rawResource := sourcePath
		resource = &event.Resource{Raw: rawResource, Name: rawResource}
	case firebaseDBService:
		rawResource := joinSubject(stripFirebaseDBLocation(sourcePath), cloudEvent.Subject)
		resource = &event.Resource{Raw: rawResource, Name: rawResource}
	default:
		rawResource := joinSubject(sourcePath, cloudEvent.Subject)
		resource = &event.Resource{Raw: rawResource, Name: rawResource}
	}

	return &event.Event{
		Context: event.Context{
			EventID:   cloudEvent.ID,
			Timestamp: cloudEvent.Time,
			EventType: backgroundType,
			Resource:  resource,
		},
		Data: data,
	}, nil
}

func resolveService(eventContext *event.Context) (string, error) {
	if eventContext.Resource != nil && eventContext.Resource.Service != "" {
		return eventContext.Resource.Service, nil
	}

	for _, entry := range serviceByTypePrefix {
		if strings.HasPrefix(eventContext.EventType, entry.prefix) {
			return entry.service, nil
		}
	}

	return "", errors.Wrapf(ErrNotConvertible,
		"Unable to resolve service for event type %q", eventContext.EventType)
}

func backgroundResourceName(eventContext *event.Context) string {
	if eventContext.Resource == nil {
		return ""
	}

	if eventContext.Resource.Raw != "" {
		return eventContext.Resource.Raw
	}

	return eventContext.Resource.Name
}

func splitResource(service string, resourceName string) (string, string) {
	if pattern, found := resourcePathPatterns[service]; found {
		if matches := pattern.FindStringSubmatch(resourceName); matches != nil {
			return fmt.Sprintf("//%s/%s", service, matches[1]), matches[2]
		}
	}

	return fmt.Sprintf("//%s/%s", service, resourceName), ""
}

func joinSubject(sourcePath string, subject string) string {
	if subject == "" {
		return sourcePath
	}

	return sourcePath + "/" + subject
}

// wrapPubSubMessage nests the payload under "message" and folds the event id
// and timestamp in, the shape Pub/Sub CloudEvents carry
func wrapPubSubMessage(data json.RawMessage, eventContext *event.Context) (json.RawMessage, error) {
	message := map[string]interface{}{}
	if len(data) != 0 {
		if err := json.Unmarshal(data, &message); err != nil {
			return nil, errors.Wrap(ErrNotConvertible, err.Error())
		}
	}

	message["messageId"] = eventContext.EventID
	message["publishTime"] = eventContext.Timestamp
	delete(message, "@type")

	return json.Marshal(map[string]interface{}{"message": message})
}

func unwrapPubSubMessage(data json.RawMessage) (json.RawMessage, error) {
	var wrapped struct {
		Message map[string]json.RawMessage `json:"message"`
	}

	if err := json.Unmarshal(data, &wrapped); err != nil || wrapped.Message == nil {
		return nil, errors.Wrap(ErrNotConvertible, "Pub/Sub CloudEvent carries no message")
	}

	delete(wrapped.Message, "messageId")
	delete(wrapped.Message, "publishTime")
	wrapped.Message["@type"] = json.RawMessage(fmt.Sprintf("%q", event.PubSubMessageType))

	return json.Marshal(wrapped.Message)
}

func storageResourceType(data json.RawMessage) string {
	var object struct {
		Kind string `json:"kind"`
	}

	if err := json.Unmarshal(data, &object); err == nil && object.Kind != "" {
		return object.Kind
	}

	return "storage#object"
}

// authDataToCE renames the firebase auth metadata fields to their CloudEvents
// spellings and derives the users/{uid} subject.
func authDataToCE(data json.RawMessage) (json.RawMessage, string, error) {
	decoded := map[string]json.RawMessage{}
	if len(data) != 0 {
		if err := json.Unmarshal(data, &decoded); err != nil {
			return nil, "", errors.Wrap(ErrNotConvertible, err.Error())
		}
	}

	var subject string
	if rawUID, found := decoded["uid"]; found {
		var uid string
		if err := json.Unmarshal(rawUID, &uid); err == nil {
			subject = "users/" + uid
		}
	}

	renamed, err := renameAuthMetadata(decoded, authMetadataFieldToCE)
	if err != nil {
		return nil, "", err
	}

	return renamed, subject, nil
}

func authDataFromCE(data json.RawMessage) (json.RawMessage, error) {
	decoded := map[string]json.RawMessage{}
	if len(data) != 0 {
		if err := json.Unmarshal(data, &decoded); err != nil {
			return nil, errors.Wrap(ErrNotConvertible, err.Error())
		}
	}

	inverse := map[string]string{}
	for from, to := range authMetadataFieldToCE {
		inverse[to] = from
	}

	return renameAuthMetadata(decoded, inverse)
}

func renameAuthMetadata(decoded map[string]json.RawMessage, fieldNames map[string]string) (json.RawMessage, error) {
	rawMetadata, found := decoded["metadata"]
	if !found {
		return json.Marshal(decoded)
	}

	metadata := map[string]json.RawMessage{}
	if err := json.Unmarshal(rawMetadata, &metadata); err != nil {
		return nil, errors.Wrap(ErrNotConvertible, err.Error())
	}

	for from, to := range fieldNames {
		if value, exists := metadata[from]; exists {
			metadata[to] = value
			delete(metadata, from)
		}
	}

	renamedMetadata, err := json.Marshal(metadata)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to marshal auth metadata")
	}

	decoded["metadata"] = renamedMetadata

	return json.Marshal(decoded)
}

// firebaseDBSource rebuilds the located source path for firebase database
// events. The location is recovered from the legacy domain field.
func firebaseDBSource(resourceName string, domain string) (string, error) {
	if domain == "" {
		return "", errors.Wrap(ErrNotConvertible,
			"Firebase database event is missing the domain field")
	}

	location := "us-central1"
	if domain != "firebaseio.com" {
		location = strings.SplitN(domain, ".", 2)[0]
	}

	instancePath := resourceName
	if matches := resourcePathPatterns[firebaseDBService].FindStringSubmatch(resourceName); matches != nil {
		instancePath = matches[1]
	}

	instancePath = strings.Replace(instancePath,
		"projects/_/instances/", fmt.Sprintf("projects/_/locations/%s/instances/", location), 1)

	return fmt.Sprintf("//%s/%s", firebaseDBService, instancePath), nil
}

func stripFirebaseDBLocation(sourcePath string) string {
	return regexp.MustCompile(`/locations/[^/]+`).ReplaceAllString(sourcePath, "")
}
