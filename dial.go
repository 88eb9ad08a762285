// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package zerorpc

import (
	"context"
	"strings"
)

// Listen creates Events of the given pattern bound to endpoint.
func Listen(ctx context.Context, pattern Pattern, endpoint string, opts ...Option) (*Events, error) {
	e, err := NewEvents(ctx, pattern, opts...)
	if err != nil {
		return nil, err
	}
	if err := e.Bind(endpoint); err != nil {
		_ = e.Close()
		return nil, err
	}
	return e, nil
}

// Dial creates Events of the given pattern connected to endpoint.
func Dial(ctx context.Context, pattern Pattern, endpoint string, opts ...Option) (*Events, error) {
	e, err := NewEvents(ctx, pattern, opts...)
	if err != nil {
		return nil, err
	}
	if err := e.Connect(endpoint); err != nil {
		_ = e.Close()
		return nil, err
	}
	return e, nil
}

// BoundEndpoint returns an endpoint that Dial can reach e on. A tcp
// wildcard port is resolved through Addr.
func BoundEndpoint(e *Events) string {
	if a := e.Addr(); a != nil && strings.HasPrefix(a.Network(), "tcp") {
		return "tcp://" + a.String()
	}
	return e.Endpoint()
}
