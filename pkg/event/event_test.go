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

package event

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/suite"
)

type EventTestSuite struct {
	suite.Suite
}

func (suite *EventTestSuite) TestUnmarshalNestedContext() {
	body := []byte(`{
		"context": {
			"eventId": "1234567",
			"timestamp": "2020-05-18T12:13:19Z",
			"eventType": "google.pubsub.topic.publish",
			"resource": {
				"service": "pubsub.googleapis.com",
				"name": "projects/sample-project/topics/gcf-test",
				"type": "type.googleapis.com/google.pubsub.v1.PubsubMessage"
			}
		},
		"data": {"data": "10"}
	}`)

	parsedEvent, domain, err := Unmarshal(body)
	suite.Require().NoError(err)
	suite.Require().Empty(domain)
	suite.Require().Equal("1234567", parsedEvent.Context.EventID)
	suite.Require().Equal("google.pubsub.topic.publish", parsedEvent.Context.EventType)
	suite.Require().Equal("pubsub.googleapis.com", parsedEvent.Context.Resource.Service)
	suite.Require().JSONEq(`{"data": "10"}`, string(parsedEvent.Data))
}

func (suite *EventTestSuite) TestUnmarshalFlattenedContext() {
	body := []byte(`{
		"eventId": "1234567",
		"timestamp": "2020-05-18T12:13:19Z",
		"eventType": "providers/google.firebase.database/eventTypes/ref.write",
		"resource": "projects/_/instances/my-instance/refs/gcf-test/xyz",
		"domain": "europe-west1.firebasedatabase.app",
		"data": {"delta": 10}
	}`)

	parsedEvent, domain, err := Unmarshal(body)
	suite.Require().NoError(err)
	suite.Require().Equal("europe-west1.firebasedatabase.app", domain)
	suite.Require().Equal("1234567", parsedEvent.Context.EventID)

	// a string resource keeps its raw form
	suite.Require().Equal("projects/_/instances/my-instance/refs/gcf-test/xyz",
		parsedEvent.Context.Resource.Raw)
}

func (suite *EventTestSuite) TestUnmarshalMalformed() {
	for _, body := range []string{`{}`, `not json`, `{"some": "thing"}`} {
		_, _, err := Unmarshal([]byte(body))
		suite.Require().ErrorIs(err, ErrMalformedEvent, "body: %s", body)
	}
}

func (suite *EventTestSuite) TestUnmarshalDataOnly() {
	parsedEvent, _, err := Unmarshal([]byte(`{"data": {"key": "value"}}`))
	suite.Require().NoError(err)
	suite.Require().True(parsedEvent.Context.Empty())
	suite.Require().JSONEq(`{"key": "value"}`, string(parsedEvent.Data))
}

func (suite *EventTestSuite) TestResourceRoundTrip() {

	// string form survives re-encoding as a string
	var stringResource Resource
	suite.Require().NoError(json.Unmarshal([]byte(`"projects/p/topics/t"`), &stringResource))

	encoded, err := json.Marshal(stringResource)
	suite.Require().NoError(err)
	suite.Require().Equal(`"projects/p/topics/t"`, string(encoded))

	// object form survives as an object
	var objectResource Resource
	suite.Require().NoError(json.Unmarshal(
		[]byte(`{"service": "s", "name": "n", "type": "t"}`), &objectResource))

	encoded, err = json.Marshal(objectResource)
	suite.Require().NoError(err)
	suite.Require().JSONEq(`{"service": "s", "name": "n", "type": "t"}`, string(encoded))
}

func (suite *EventTestSuite) TestIsPubSubPush() {
	suite.Require().True(IsPubSubPush([]byte(`{
		"subscription": "projects/sample-project/subscriptions/gcf-test",
		"message": {"messageId": "1", "data": "eyJmb28iOiJiYXIifQ=="}
	}`)))

	suite.Require().False(IsPubSubPush([]byte(`{"context": {}, "data": {}}`)))
	suite.Require().False(IsPubSubPush([]byte(`{"subscription": "s"}`)))
	suite.Require().False(IsPubSubPush([]byte(`not json`)))
}

func (suite *EventTestSuite) TestFromPubSubPush() {
	body := []byte(`{
		"subscription": "projects/sample-project/subscriptions/gcf-test",
		"message": {
			"messageId": "123456",
			"publishTime": "2020-05-18T12:13:19.209Z",
			"data": "eyJmb28iOiJiYXIifQ==",
			"attributes": {"attr1": "value1"}
		}
	}`)

	parsedEvent, err := FromPubSubPush("/projects/sample-project/topics/gcf-test?pubsub_trigger=true", body)
	suite.Require().NoError(err)

	suite.Require().Equal("123456", parsedEvent.Context.EventID)
	suite.Require().Equal("2020-05-18T12:13:19.209Z", parsedEvent.Context.Timestamp)
	suite.Require().Equal(PubSubEventType, parsedEvent.Context.EventType)
	suite.Require().Equal(PubSubService, parsedEvent.Context.Resource.Service)
	suite.Require().Equal("projects/sample-project/topics/gcf-test", parsedEvent.Context.Resource.Name)

	suite.Require().JSONEq(`{
		"@type": "type.googleapis.com/google.pubsub.v1.PubsubMessage",
		"data": "eyJmb28iOiJiYXIifQ==",
		"attributes": {"attr1": "value1"}
	}`, string(parsedEvent.Data))
}

func (suite *EventTestSuite) TestFromPubSubPushMissingTimestamp() {
	body := []byte(`{
		"subscription": "projects/sample-project/subscriptions/gcf-test",
		"message": {"messageId": "123456", "data": "eyJmb28iOiJiYXIifQ=="}
	}`)

	parsedEvent, err := FromPubSubPush("/", body)
	suite.Require().NoError(err)

	// generated timestamp, and no topic recoverable from the path
	suite.Require().NotEmpty(parsedEvent.Context.Timestamp)
	suite.Require().Empty(parsedEvent.Context.Resource.Name)
}

func TestEventTestSuite(t *testing.T) {
	suite.Run(t, new(EventTestSuite))
}
