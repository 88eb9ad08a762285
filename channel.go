// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package zerorpc

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
)

// Channel is one conversation carried over a Multiplexer. Events answering
// the channel arrive in order in its inbox.
//
// A client channel (from Multiplexer.Channel) sends its first event with
// message_id set to the channel id, and later events with response_to set
// to it. A server channel (from Multiplexer.ChannelFrom) always sets
// response_to and, on routed sockets, the peer identity.
type Channel struct {
	mux    *Multiplexer
	key    ChannelKey
	client bool
	inbox  *eventQueue
	done   chan struct{}

	mu     sync.Mutex
	opened bool
	// peer starts as key.Peer; a client channel without one adopts the
	// peer it first addresses or hears from.
	peer []byte

	closed    atomic.Bool
	closeOnce sync.Once
}

func newChannel(m *Multiplexer, key ChannelKey, client bool) *Channel {
	c := &Channel{
		mux:    m,
		key:    key,
		client: client,
		inbox:  newEventQueue(),
		done:   make(chan struct{}),
	}
	if key.Peer != "" {
		c.peer = []byte(key.Peer)
	}
	return c
}

// Key returns the channel id and the peer it talks to, if known yet.
func (c *Channel) Key() ChannelKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ChannelKey{ID: c.key.ID, Peer: string(c.peer)}
}

// adopt binds an unbound client channel to peer and reports whether peer is
// the one the channel talks to.
func (c *Channel) adopt(peer []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.peer == nil {
		c.peer = bytes.Clone(peer)
		return true
	}
	return bytes.Equal(c.peer, peer)
}

// Emit sends an event on the channel.
func (c *Channel) Emit(name string, args []Value) error {
	return c.EmitHeader(name, args, nil)
}

// EmitHeader sends an event with extra header keys. The channel owns
// message_id and response_to; values for them in xheader are replaced. A
// zmqid in xheader is honored only while a client channel has no peer, and
// binds the channel to it.
func (c *Channel) EmitHeader(name string, args []Value, xheader *Header) error {
	if c.closed.Load() {
		return ErrClosed
	}

	h := xheader.Clone()
	want, _ := h.ZmqID()
	h.Delete(KeyMessageID)
	h.Delete(KeyResponseTo)
	h.Delete(KeyZmqID)

	c.mu.Lock()
	first := c.client && !c.opened
	if c.client {
		c.opened = true
	}
	adopted := false
	if c.client && c.peer == nil && want != nil {
		c.peer, adopted = want, true
	}
	peer := c.peer
	c.mu.Unlock()

	if first {
		h.SetMessageID(c.key.ID)
	} else {
		h.SetResponseTo(c.key.ID)
	}
	if peer != nil {
		h.SetZmqID(peer)
	}

	err := c.mux.events.Emit(name, args, h)
	if err != nil && (first || adopted) {
		c.mu.Lock()
		if first {
			c.opened = false
		}
		if adopted {
			c.peer = nil
		}
		c.mu.Unlock()
	}
	return err
}

// Recv returns the next event of the channel. If ctx ends first, ctx.Err()
// is returned and the channel stays usable.
func (c *Channel) Recv(ctx context.Context) (*Event, error) {
	for {
		if c.closed.Load() {
			return nil, ErrClosed
		}
		if ev, ok := c.inbox.pop(); ok {
			return ev, nil
		}
		select {
		case <-c.inbox.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.done:
			return nil, ErrClosed
		case <-c.mux.done:
			if ev, ok := c.inbox.pop(); ok {
				return ev, nil
			}
			return nil, c.mux.stopped()
		}
	}
}

// Close deregisters the channel and discards undelivered events. Later
// replies for its key reach Multiplexer.Recv.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.inbox.close()
		close(c.done)
		c.mux.unregister(c)
	})
}

// Closed reports whether Close has been called.
func (c *Channel) Closed() bool {
	return c.closed.Load()
}
