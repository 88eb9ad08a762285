// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package zerorpc

import (
	"time"

	"github.com/rs/zerolog"
)

// Option configures an Events adapter.
type Option func(*options)

type options struct {
	context        *Context
	codec          Codec
	logger         zerolog.Logger
	metrics        MetricsRecorder
	identity       []byte
	sendTimeout    time.Duration
	dialRetry      time.Duration
	dialMaxRetries int
}

func defaultOptions() options {
	return options{
		codec:   defaultCodec,
		logger:  zerolog.Nop(),
		metrics: NoopMetrics{},
	}
}

// WithContext shares a message id generator between several Events.
func WithContext(c *Context) Option {
	return func(o *options) { o.context = c }
}

// WithCodec sets a custom envelope codec
func WithCodec(c Codec) Option {
	return func(o *options) {
		if c != nil {
			o.codec = c
		}
	}
}

// WithLogger sets the structured logger. Events are silent by default.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the metrics recorder
func WithMetrics(m MetricsRecorder) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithIdentity sets the socket routing identity announced to routers. Dealers
// pick a random identity when none is given.
func WithIdentity(id []byte) Option {
	return func(o *options) { o.identity = append([]byte(nil), id...) }
}

// WithSendTimeout bounds how long a send may block on the socket.
func WithSendTimeout(d time.Duration) Option {
	return func(o *options) { o.sendTimeout = d }
}

// WithDialRetry makes Connect retry every d, at most n times, while the
// remote endpoint is not yet listening.
func WithDialRetry(d time.Duration, n int) Option {
	return func(o *options) {
		o.dialRetry = d
		o.dialMaxRetries = n
	}
}

// MuxOption configures a Multiplexer.
type MuxOption func(*muxOptions)

type muxOptions struct {
	inboxSize    int
	unroutedSize int
	closeTimeout time.Duration
	logger       *zerolog.Logger
}

const (
	defaultInboxSize    = 128
	defaultUnroutedSize = 128
	defaultCloseTimeout = 5 * time.Second
)

func defaultMuxOptions() muxOptions {
	return muxOptions{
		inboxSize:    defaultInboxSize,
		unroutedSize: defaultUnroutedSize,
		closeTimeout: defaultCloseTimeout,
	}
}

// WithInboxSize sets how many unread events a channel may hold before the
// multiplexer logs a backlog warning. Inboxes never block the dispatcher.
func WithInboxSize(n int) MuxOption {
	return func(o *muxOptions) {
		if n > 0 {
			o.inboxSize = n
		}
	}
}

// WithUnroutedSize sets how many events may wait for Recv before the
// multiplexer logs a backlog warning. Unrouted events are never dropped.
func WithUnroutedSize(n int) MuxOption {
	return func(o *muxOptions) {
		if n > 0 {
			o.unroutedSize = n
		}
	}
}

// WithCloseTimeout bounds how long Close waits for the dispatcher to stop.
func WithCloseTimeout(d time.Duration) MuxOption {
	return func(o *muxOptions) {
		if d > 0 {
			o.closeTimeout = d
		}
	}
}

// WithMuxLogger overrides the logger inherited from the Events.
func WithMuxLogger(l zerolog.Logger) MuxOption {
	return func(o *muxOptions) { o.logger = &l }
}
