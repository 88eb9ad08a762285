// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package zerorpc

import (
	"errors"
	"fmt"
)

var (
	ErrClosed         = errors.New("zerorpc: use of closed events or channel")
	ErrOutOfSequence  = errors.New("zerorpc: operation out of sequence for a strictly alternating socket")
	ErrSendOnly       = errors.New("zerorpc: socket pattern is send-only")
	ErrRecvOnly       = errors.New("zerorpc: socket pattern is receive-only")
	ErrUnknownPattern = errors.New("zerorpc: unknown socket pattern")
	ErrUnknownCodec   = errors.New("zerorpc: unknown codec")

	// ErrMissingMessageID is returned when a channel is opened from an event
	// that carries no message_id.
	ErrMissingMessageID = errors.New("zerorpc: event has no message_id")
)

// DecodeError reports bytes that do not hold a valid event envelope. The
// socket that produced them stays usable.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "zerorpc: decode event: " + e.Err.Error() }

func (e *DecodeError) Unwrap() error { return e.Err }

func decodeErrorf(format string, args ...any) error {
	return &DecodeError{Err: fmt.Errorf(format, args...)}
}

// TransportError reports a failure of the underlying socket.
type TransportError struct {
	Op       string
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	if e.Endpoint == "" {
		return fmt.Sprintf("zerorpc: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("zerorpc: %s %s: %v", e.Op, e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RoutingError reports an emit on a routed socket whose target peer could not
// be resolved. Nothing was sent.
type RoutingError struct {
	Reason string
}

func (e *RoutingError) Error() string { return "zerorpc: cannot route event: " + e.Reason }

// ChannelKeyCollisionError reports an attempt to open a channel whose key is
// already held by a live channel. Keys only stay unique across peers on
// routed or request/reply sockets.
type ChannelKeyCollisionError struct {
	Key ChannelKey
}

func (e *ChannelKeyCollisionError) Error() string {
	return "zerorpc: channel key collision on " + e.Key.String()
}
