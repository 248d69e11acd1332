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

package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/nuclio/errors"
)

// Registry holds named registrants of a single kind. Registration happens on
// package initialization, so duplicates have no place for error handling and
// panic instead.
type Registry[T any] struct {
	kindName   string
	lock       sync.Mutex
	registered map[string]T
}

func New[T any](kindName string) *Registry[T] {
	return &Registry[T]{
		kindName:   kindName,
		registered: map[string]T{},
	}
}

func (r *Registry[T]) Register(name string, registrant T) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, found := r.registered[name]; found {
		panic(fmt.Sprintf("Already registered %s: %s", r.kindName, name))
	}

	r.registered[name] = registrant
}

func (r *Registry[T]) Get(name string) (T, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	registrant, found := r.registered[name]
	if !found {
		return registrant, errors.Errorf("Registry of %s failed to find: %s", r.kindName, name)
	}

	return registrant, nil
}

func (r *Registry[T]) Names() []string {
	r.lock.Lock()
	defer r.lock.Unlock()

	names := make([]string, 0, len(r.registered))
	for name := range r.registered {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
