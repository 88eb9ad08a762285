// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package zerorpc

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"github.com/go-zeromq/zmq4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Events binds the envelope codec to one ZeroMQ socket.
//
// Emit and Recv may be called from different goroutines. Concurrent emits
// are serialized by a write lock and concurrent receives by a read lock.
type Events struct {
	pattern Pattern
	variant variant
	sock    zmq4.Socket
	codec   Codec
	context *Context
	logger  zerolog.Logger
	metrics MetricsRecorder

	// ctx is cancelled on Close and carries metric recordings.
	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex
	readMu  sync.Mutex

	endpointMu sync.RWMutex
	endpoint   string

	closed    atomic.Bool
	closeOnce sync.Once
}

// NewEvents creates an unconnected Events of the given pattern. The socket
// lives until Close or until ctx is cancelled.
func NewEvents(ctx context.Context, pattern Pattern, opts ...Option) (*Events, error) {
	entry, err := lookupPattern(pattern)
	if err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.context == nil {
		o.context = NewContext()
	}

	var zopts []zmq4.Option
	id := o.identity
	if id == nil && pattern == PatternDealer {
		id = []byte(uuid.NewString())
	}
	if id != nil {
		zopts = append(zopts, zmq4.WithID(zmq4.SocketIdentity(id)))
	}
	if o.sendTimeout > 0 {
		zopts = append(zopts, zmq4.WithTimeout(o.sendTimeout))
	}
	if o.dialRetry > 0 {
		zopts = append(zopts, zmq4.WithDialerRetry(o.dialRetry))
		if o.dialMaxRetries != 0 {
			zopts = append(zopts, zmq4.WithDialerMaxRetries(o.dialMaxRetries))
		}
	}

	sctx, cancel := context.WithCancel(ctx)
	sock := entry.socket(sctx, zopts...)
	v := entry.variant()
	if ro, ok := v.(recvOnlyVariant); ok && ro.subscribe {
		if err := sock.SetOption(zmq4.OptionSubscribe, ""); err != nil {
			cancel()
			_ = sock.Close()
			return nil, &TransportError{Op: "subscribe", Err: err}
		}
	}

	e := &Events{
		pattern: pattern,
		variant: v,
		sock:    sock,
		codec:   o.codec,
		context: o.context,
		logger:  o.logger.With().Str("pattern", string(pattern)).Logger(),
		metrics: o.metrics,
		ctx:     sctx,
		cancel:  cancel,
	}
	return e, nil
}

// Bind listens on endpoint, e.g. "tcp://127.0.0.1:4242".
func (e *Events) Bind(endpoint string) error {
	if e.closed.Load() {
		return &TransportError{Op: "bind", Endpoint: endpoint, Err: ErrClosed}
	}
	if err := e.sock.Listen(endpoint); err != nil {
		return &TransportError{Op: "bind", Endpoint: endpoint, Err: err}
	}
	e.setEndpoint(endpoint)
	e.logger.Debug().Str("endpoint", endpoint).Msg("zerorpc: bound")
	return nil
}

// Connect dials endpoint.
func (e *Events) Connect(endpoint string) error {
	if e.closed.Load() {
		return &TransportError{Op: "connect", Endpoint: endpoint, Err: ErrClosed}
	}
	if err := e.sock.Dial(endpoint); err != nil {
		return &TransportError{Op: "connect", Endpoint: endpoint, Err: err}
	}
	e.setEndpoint(endpoint)
	e.logger.Debug().Str("endpoint", endpoint).Msg("zerorpc: connected")
	return nil
}

func (e *Events) setEndpoint(endpoint string) {
	e.endpointMu.Lock()
	e.endpoint = endpoint
	e.endpointMu.Unlock()
}

// Endpoint returns the last endpoint bound or connected.
func (e *Events) Endpoint() string {
	e.endpointMu.RLock()
	defer e.endpointMu.RUnlock()
	return e.endpoint
}

// Addr returns the listening address after Bind, or nil. Binding to port 0
// picks a free port, which Addr reports.
func (e *Events) Addr() net.Addr {
	return e.sock.Addr()
}

func (e *Events) Pattern() Pattern { return e.pattern }

// Context returns the message id generator used by Emit.
func (e *Events) Context() *Context { return e.context }

// Emit sends one event. The header starts with a fresh message_id and
// xheader is merged over it; a message_id in xheader is used as is. On a
// router, xheader's zmqid names the target peer and is not sent.
func (e *Events) Emit(name string, args []Value, xheader *Header) error {
	err := e.emit(name, args, xheader)
	e.metrics.RecordEmit(e.ctx, e.pattern, err)
	return err
}

func (e *Events) emit(name string, args []Value, xheader *Header) error {
	if e.closed.Load() {
		return &TransportError{Op: "emit", Endpoint: e.Endpoint(), Err: ErrClosed}
	}

	h := NewHeader()
	if xheader == nil || !xheader.hasMessageID {
		h.SetMessageID(e.context.NewMsgID())
	}
	h.Merge(xheader)
	peer, _ := h.ZmqID()
	h.SetZmqID(nil)

	ev := &Event{name: name, header: h, args: args}
	blob, err := e.codec.Encode(ev)
	if err != nil {
		return err
	}

	e.writeMu.Lock()
	err = e.variant.send(e.sock, blob, peer)
	e.writeMu.Unlock()
	if err != nil {
		return e.wrap("emit", err)
	}

	if l := e.logger.Trace(); l.Enabled() {
		if peer != nil {
			l = l.Str("peer", printablePeer(peer))
		}
		logEvent(l, ev).Msg("zerorpc: emitted")
	}
	return nil
}

// Recv blocks for the next event. On a router the sender identity is stored
// in the header under zmqid; on every other pattern zmqid is removed.
//
// A *DecodeError leaves the socket usable.
func (e *Events) Recv() (*Event, error) {
	ev, err := e.recv()
	e.metrics.RecordRecv(e.ctx, e.pattern, err)
	return ev, err
}

func (e *Events) recv() (*Event, error) {
	if e.closed.Load() {
		return nil, &TransportError{Op: "recv", Endpoint: e.Endpoint(), Err: ErrClosed}
	}

	e.readMu.Lock()
	blob, peer, err := e.variant.recv(e.sock)
	e.readMu.Unlock()
	if err != nil {
		return nil, e.wrap("recv", err)
	}

	ev, err := e.codec.Decode(blob)
	if err != nil {
		var de *DecodeError
		if !errors.As(err, &de) {
			err = &DecodeError{Err: err}
		}
		return nil, err
	}
	ev.header.SetZmqID(peer)

	if l := e.logger.Trace(); l.Enabled() {
		logEvent(l, ev).Msg("zerorpc: received")
	}
	return ev, nil
}

// wrap turns socket failures into *TransportError. Errors produced by the
// framing layer itself pass through.
func (e *Events) wrap(op string, err error) error {
	var (
		de *DecodeError
		re *RoutingError
	)
	switch {
	case errors.As(err, &de), errors.As(err, &re),
		errors.Is(err, ErrOutOfSequence), errors.Is(err, ErrSendOnly), errors.Is(err, ErrRecvOnly):
		return err
	}
	if e.closed.Load() {
		err = ErrClosed
	}
	return &TransportError{Op: op, Endpoint: e.Endpoint(), Err: err}
}

// Close closes the socket. Blocked Recv calls return an error wrapping
// ErrClosed. Calling Close more than once is a no-op.
func (e *Events) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		if cerr := e.sock.Close(); cerr != nil {
			err = &TransportError{Op: "close", Endpoint: e.Endpoint(), Err: cerr}
			e.logger.Warn().Err(cerr).Msg("zerorpc: socket close failed")
		}
		e.cancel()
		e.logger.Debug().Str("endpoint", e.Endpoint()).Msg("zerorpc: closed")
	})
	return err
}

// Closed reports whether Close has been called.
func (e *Events) Closed() bool {
	return e.closed.Load()
}
