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

// Package errgroup wraps golang.org/x/sync/errgroup so that panics in grouped
// goroutines surface as logged errors instead of killing the process.
package errgroup

import (
	"context"
	"runtime/debug"

	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
	"golang.org/x/sync/errgroup"
)

type Group struct {
	*errgroup.Group
	logger logger.Logger
}

func WithContext(ctx context.Context, loggerInstance logger.Logger) (*Group, context.Context) {
	baseGroup, groupCtx := errgroup.WithContext(ctx)

	return &Group{
		Group:  baseGroup,
		logger: loggerInstance,
	}, groupCtx
}

// Go runs f in the group, recovering panics into errors.
func (g *Group) Go(actionName string, f func() error) {
	g.Group.Go(func() (err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				g.logger.ErrorWith("Panic in grouped goroutine",
					"action", actionName,
					"err", recovered,
					"stack", string(debug.Stack()))

				err = errors.Errorf("Panic in %s: %v", actionName, recovered)
			}
		}()

		return f()
	})
}
