// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package zerorpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// ChannelKey identifies a channel: the message_id that opened it and, on
// routed sockets, the identity of the peer that opened it. An empty Peer
// means no identity.
type ChannelKey struct {
	ID   uint64
	Peer string
}

func (k ChannelKey) String() string {
	if k.Peer == "" {
		return fmt.Sprintf("#%d", k.ID)
	}
	return fmt.Sprintf("#%d@%s", k.ID, printablePeer([]byte(k.Peer)))
}

// Stats is a point-in-time view of a Multiplexer.
type Stats struct {
	Pattern         Pattern `json:"pattern"`
	Endpoint        string  `json:"endpoint"`
	Channels        int     `json:"channels"`
	UnroutedPending int     `json:"unroutedPending"`
	Routed          uint64  `json:"routed"`
	Unrouted        uint64  `json:"unrouted"`
	DecodeErrors    uint64  `json:"decodeErrors"`
	Closed          bool    `json:"closed"`
}

// Multiplexer splits the events of one Events into channels. A single
// dispatcher goroutine is the only reader of the Events: replies carrying
// response_to are delivered to the channel they answer, in arrival order,
// and everything else is queued for Recv. Queues are unbounded so that an
// idle consumer never stalls delivery to the others.
//
// The Multiplexer owns the Events and closes it on Close.
type Multiplexer struct {
	events  *Events
	logger  zerolog.Logger
	metrics MetricsRecorder
	opts    muxOptions

	mu       sync.Mutex
	channels map[ChannelKey]*Channel

	unrouted *eventQueue
	closing  chan struct{}
	done     chan struct{}
	// err is written once before done is closed.
	err error

	closeOnce sync.Once

	routed        atomic.Uint64
	unroutedTotal atomic.Uint64
	decodeErrors  atomic.Uint64
}

// NewMultiplexer starts dispatching events from e.
func NewMultiplexer(e *Events, opts ...MuxOption) *Multiplexer {
	o := defaultMuxOptions()
	for _, opt := range opts {
		opt(&o)
	}
	logger := e.logger
	if o.logger != nil {
		logger = *o.logger
	}

	m := &Multiplexer{
		events:   e,
		logger:   logger,
		metrics:  e.metrics,
		opts:     o,
		channels: make(map[ChannelKey]*Channel),
		unrouted: newEventQueue(),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	go m.readLoop()
	return m
}

// Events returns the underlying Events.
func (m *Multiplexer) Events() *Events { return m.events }

func (m *Multiplexer) readLoop() {
	defer close(m.done)

	for {
		ev, err := m.events.Recv()
		if err != nil {
			var de *DecodeError
			if errors.As(err, &de) {
				m.decodeErrors.Add(1)
				m.logger.Warn().Err(err).Msg("zerorpc: dropping undecodable message")
				continue
			}
			if !m.isClosing() {
				m.logger.Error().Err(err).Msg("zerorpc: dispatcher stopped")
			}
			m.err = err
			return
		}
		m.dispatch(ev)
	}
}

func (m *Multiplexer) dispatch(ev *Event) {
	if ch := m.route(ev); ch != nil {
		// a channel closed since route refuses the event
		if n, ok := ch.inbox.push(ev); ok {
			m.routed.Add(1)
			m.metrics.RecordDispatch(m.events.ctx, true)
			if n == m.opts.inboxSize {
				m.logger.Warn().Stringer("channel", ch.key).Int("pending", n).Msg("zerorpc: channel inbox backlog")
			}
			return
		}
	}

	n, _ := m.unrouted.push(ev)
	m.unroutedTotal.Add(1)
	m.metrics.RecordDispatch(m.events.ctx, false)
	if n == m.opts.unroutedSize {
		m.logger.Warn().Int("pending", n).Msg("zerorpc: unrouted backlog, is anyone calling Recv?")
	}
}

// route returns the live channel ev answers, if any. A reply from a peer
// also reaches a client channel opened without a peer, which then adopts
// that peer.
func (m *Multiplexer) route(ev *Event) *Channel {
	rt, ok := ev.Header().ResponseTo()
	if !ok {
		return nil
	}
	peer, _ := ev.Header().ZmqID()
	key := ChannelKey{ID: rt, Peer: string(peer)}

	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.channels[key]; ok {
		return ch
	}
	if key.Peer == "" {
		return nil
	}
	ch, ok := m.channels[ChannelKey{ID: rt}]
	if !ok || !ch.client || !ch.adopt(peer) {
		return nil
	}
	return ch
}

func (m *Multiplexer) isClosing() bool {
	select {
	case <-m.closing:
		return true
	default:
		return false
	}
}

// stopped returns the reason the dispatcher is not running, or nil.
func (m *Multiplexer) stopped() error {
	if m.isClosing() {
		return &TransportError{Op: "multiplexer", Endpoint: m.events.Endpoint(), Err: ErrClosed}
	}
	select {
	case <-m.done:
		if m.err == nil {
			return &TransportError{Op: "multiplexer", Endpoint: m.events.Endpoint(), Err: ErrClosed}
		}
		return m.err
	default:
		return nil
	}
}

// Channel opens a client channel keyed by a fresh message id. Its first
// Emit opens the conversation on the remote side. On a router the channel
// talks to the peer named by the zmqid of its first EmitHeader, or else to
// the peer that first answers it.
func (m *Multiplexer) Channel() (*Channel, error) {
	key := ChannelKey{ID: m.events.Context().NewMsgID()}
	return m.register(key, true)
}

// ChannelFrom opens the server side of the conversation started by ev,
// typically an event returned by Recv.
func (m *Multiplexer) ChannelFrom(ev *Event) (*Channel, error) {
	id, ok := ev.Header().MessageID()
	if !ok {
		return nil, ErrMissingMessageID
	}
	peer, _ := ev.Header().ZmqID()
	return m.register(ChannelKey{ID: id, Peer: string(peer)}, false)
}

func (m *Multiplexer) register(key ChannelKey, client bool) (*Channel, error) {
	m.mu.Lock()
	// checked under the lock so Close sees every registered channel
	if err := m.stopped(); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if _, ok := m.channels[key]; ok {
		m.mu.Unlock()
		return nil, &ChannelKeyCollisionError{Key: key}
	}
	ch := newChannel(m, key, client)
	m.channels[key] = ch
	m.mu.Unlock()

	m.metrics.RecordChannels(m.events.ctx, 1)
	m.logger.Debug().Stringer("channel", key).Bool("client", client).Msg("zerorpc: channel opened")
	return ch, nil
}

// unregister removes ch from the registry if the key still belongs to it.
func (m *Multiplexer) unregister(ch *Channel) {
	m.mu.Lock()
	owned := m.channels[ch.key] == ch
	if owned {
		delete(m.channels, ch.key)
	}
	m.mu.Unlock()

	if owned {
		m.metrics.RecordChannels(m.events.ctx, -1)
		m.logger.Debug().Stringer("channel", ch.key).Msg("zerorpc: channel closed")
	}
}

// Recv returns the next event that does not belong to an open channel. New
// conversations arrive here.
func (m *Multiplexer) Recv(ctx context.Context) (*Event, error) {
	for {
		if m.isClosing() {
			return nil, m.stopped()
		}
		if ev, ok := m.unrouted.pop(); ok {
			return ev, nil
		}
		select {
		case <-m.unrouted.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-m.closing:
			return nil, m.stopped()
		case <-m.done:
			if ev, ok := m.unrouted.pop(); ok {
				return ev, nil
			}
			return nil, m.stopped()
		}
	}
}

// Emit sends an event outside of any channel.
func (m *Multiplexer) Emit(name string, args []Value, xheader *Header) error {
	return m.events.Emit(name, args, xheader)
}

// Close closes every open channel and the Events, then waits for the
// dispatcher to exit. Calling Close more than once is a no-op.
func (m *Multiplexer) Close() error {
	var err error
	m.closeOnce.Do(func() {
		close(m.closing)

		m.mu.Lock()
		open := make([]*Channel, 0, len(m.channels))
		for _, ch := range m.channels {
			open = append(open, ch)
		}
		m.mu.Unlock()
		for _, ch := range open {
			ch.Close()
		}

		err = m.events.Close()

		t := time.NewTimer(m.opts.closeTimeout)
		defer t.Stop()
		select {
		case <-m.done:
		case <-t.C:
			m.logger.Warn().Dur("timeout", m.opts.closeTimeout).Msg("zerorpc: dispatcher did not stop in time")
		}
	})
	return err
}

func (m *Multiplexer) Stats() Stats {
	m.mu.Lock()
	n := len(m.channels)
	m.mu.Unlock()
	return Stats{
		Pattern:         m.events.Pattern(),
		Endpoint:        m.events.Endpoint(),
		Channels:        n,
		UnroutedPending: m.unrouted.len(),
		Routed:          m.routed.Load(),
		Unrouted:        m.unroutedTotal.Load(),
		DecodeErrors:    m.decodeErrors.Load(),
		Closed:          m.isClosing(),
	}
}
