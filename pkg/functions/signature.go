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

package functions

import (
	"github.com/nuclio/errors"
	"github.com/samber/lo"
)

// SignatureType selects the invocation adapter a function is dispatched
// through. Immutable once resolved for a given invocation.
type SignatureType string

const (
	HTTPSignature       SignatureType = "http"
	CloudEventSignature SignatureType = "cloudevent"
	EventSignature      SignatureType = "event"
	TypedSignature      SignatureType = "typed"
)

// SignatureTypes lists every valid signature type, for validation and usage
// strings.
func SignatureTypes() []SignatureType {
	return []SignatureType{HTTPSignature, CloudEventSignature, EventSignature, TypedSignature}
}

// ParseSignatureType validates a configured signature type string.
func ParseSignatureType(value string) (SignatureType, error) {
	signatureType := SignatureType(value)
	if !lo.Contains(SignatureTypes(), signatureType) {
		return "", errors.Errorf("Invalid signature type: %s (expected one of %v)", value, SignatureTypes())
	}

	return signatureType, nil
}
