// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package zerorpc

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const localTCP = "tcp://127.0.0.1:0"

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// newPair binds a server of one pattern and connects a client of another.
func newPair(t *testing.T, server, client Pattern, clientOpts ...Option) (*Events, *Events) {
	t.Helper()
	ctx := testContext(t)

	srv, err := Listen(ctx, server, localTCP)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	cli, err := Dial(ctx, client, BoundEndpoint(srv), clientOpts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cli.Close() })

	return srv, cli
}

func TestEventsReqRep(t *testing.T) {
	srv, cli := newPair(t, PatternRep, PatternReq)

	for i := 0; i < 10; i++ {
		name := fmt.Sprintf("myevent%d", i)
		require.NoError(t, cli.Emit(name, MustArgs(i), nil))

		ev, err := srv.Recv()
		require.NoError(t, err)
		assert.Equal(t, name, ev.Name())
		assert.Equal(t, MustArgs(i), ev.Args())
		assert.False(t, ev.Header().Has(KeyZmqID))

		require.NoError(t, srv.Emit("answer"+name, MustArgs(i*2), nil))
		reply, err := cli.Recv()
		require.NoError(t, err)
		assert.Equal(t, "answer"+name, reply.Name())
		assert.Equal(t, MustArgs(i*2), reply.Args())
	}
}

func TestEventsStrictAlternation(t *testing.T) {
	ctx := testContext(t)

	req, err := NewEvents(ctx, PatternReq)
	require.NoError(t, err)
	defer req.Close()
	_, err = req.Recv()
	assert.ErrorIs(t, err, ErrOutOfSequence)

	rep, err := NewEvents(ctx, PatternRep)
	require.NoError(t, err)
	defer rep.Close()
	assert.ErrorIs(t, rep.Emit("x", nil, nil), ErrOutOfSequence)

	srv, cli := newPair(t, PatternRep, PatternReq)
	require.NoError(t, cli.Emit("first", nil, nil))
	assert.ErrorIs(t, cli.Emit("second", nil, nil), ErrOutOfSequence)

	_, err = srv.Recv()
	require.NoError(t, err)
	_, err = srv.Recv()
	assert.ErrorIs(t, err, ErrOutOfSequence)
}

func TestEventsRouterDealer(t *testing.T) {
	srv, cli := newPair(t, PatternRouter, PatternDealer, WithIdentity([]byte("client-a")))

	for i := 0; i < 6; i++ {
		require.NoError(t, cli.Emit("myevent", MustArgs(i), nil))

		ev, err := srv.Recv()
		require.NoError(t, err)
		assert.Equal(t, MustArgs(i), ev.Args())
		zid, ok := ev.Header().ZmqID()
		require.True(t, ok)
		require.NotEmpty(t, zid)
		assert.Equal(t, []byte("client-a"), zid)

		xh := NewHeader()
		xh.SetZmqID(zid)
		require.NoError(t, srv.Emit("answer", MustArgs(i*2), xh))

		reply, err := cli.Recv()
		require.NoError(t, err)
		assert.Equal(t, MustArgs(i*2), reply.Args())
		assert.False(t, reply.Header().Has(KeyZmqID))
	}
}

func TestEventsRouterRouting(t *testing.T) {
	ctx := testContext(t)
	srv, a := newPair(t, PatternRouter, PatternDealer)

	// nothing seen yet
	err := srv.Emit("x", nil, nil)
	var re *RoutingError
	require.True(t, errors.As(err, &re), "got %v", err)

	// a single known peer is used when no zmqid is given
	require.NoError(t, a.Emit("hello", nil, nil))
	_, err = srv.Recv()
	require.NoError(t, err)
	require.NoError(t, srv.Emit("only", nil, nil))
	ev, err := a.Recv()
	require.NoError(t, err)
	assert.Equal(t, "only", ev.Name())

	// with two peers the target must be explicit
	b, err := Dial(ctx, PatternDealer, BoundEndpoint(srv))
	require.NoError(t, err)
	defer b.Close()
	require.NoError(t, b.Emit("hello", nil, nil))
	fromB, err := srv.Recv()
	require.NoError(t, err)

	err = srv.Emit("x", nil, nil)
	require.True(t, errors.As(err, &re), "got %v", err)

	xh := NewHeader()
	zid, _ := fromB.Header().ZmqID()
	xh.SetZmqID(zid)
	require.NoError(t, srv.Emit("to-b", nil, xh))
	ev, err = b.Recv()
	require.NoError(t, err)
	assert.Equal(t, "to-b", ev.Name())

	// the socket would drop a message for a peer it never heard from
	xh.SetZmqID([]byte("nobody"))
	err = srv.Emit("lost", nil, xh)
	require.True(t, errors.As(err, &re), "got %v", err)
}

func TestRouterVariantForgetsOldestPeer(t *testing.T) {
	v := newRouterVariant(2)
	v.seen([]byte("a"))
	v.seen([]byte("b"))
	v.seen([]byte("a"))
	v.seen([]byte("c"))

	var re *RoutingError
	_, err := v.target([]byte("b"))
	require.True(t, errors.As(err, &re), "got %v", err)

	for _, p := range []string{"a", "c"} {
		id, err := v.target([]byte(p))
		require.NoError(t, err)
		assert.Equal(t, []byte(p), id)
	}
	_, err = v.target(nil)
	require.True(t, errors.As(err, &re), "got %v", err)
	assert.Len(t, v.peers, 2)
}

func TestEventsPushPull(t *testing.T) {
	srv, cli := newPair(t, PatternPull, PatternPush)

	for i := 0; i < 10; i++ {
		require.NoError(t, cli.Emit("myevent", MustArgs(i), nil))
	}
	var prev uint64
	for i := 0; i < 10; i++ {
		ev, err := srv.Recv()
		require.NoError(t, err)
		assert.Equal(t, MustArgs(i), ev.Args())
		id, ok := ev.Header().MessageID()
		require.True(t, ok)
		if i > 0 {
			assert.Equal(t, prev+1, id)
		}
		prev = id
	}
}

func TestEventsPubSub(t *testing.T) {
	pub, sub := newPair(t, PatternPub, PatternSub)

	// subscriptions propagate asynchronously, so publish until one lands
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		tick := time.NewTicker(10 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-stop:
				return
			case <-tick.C:
				_ = pub.Emit("news", MustArgs("hi"), nil)
			}
		}
	}()

	ev, err := sub.Recv()
	require.NoError(t, err)
	assert.Equal(t, "news", ev.Name())
	assert.Equal(t, MustArgs("hi"), ev.Args())
}

func TestEventsOneWayPatterns(t *testing.T) {
	ctx := testContext(t)
	for _, p := range []Pattern{PatternPush, PatternPub} {
		e, err := NewEvents(ctx, p)
		require.NoError(t, err)
		_, err = e.Recv()
		assert.ErrorIs(t, err, ErrSendOnly, p)
		require.NoError(t, e.Close())
	}
	for _, p := range []Pattern{PatternPull, PatternSub} {
		e, err := NewEvents(ctx, p)
		require.NoError(t, err)
		assert.ErrorIs(t, e.Emit("x", nil, nil), ErrRecvOnly, p)
		require.NoError(t, e.Close())
	}
}

func TestEventsEmitHeader(t *testing.T) {
	ctx := testContext(t)

	pull, err := Listen(ctx, PatternPull, localTCP)
	require.NoError(t, err)
	defer pull.Close()

	raw := zmq4.NewPull(ctx)
	defer raw.Close()
	require.NoError(t, raw.Listen(localTCP))

	push, err := Dial(ctx, PatternPush, "tcp://"+raw.Addr().String())
	require.NoError(t, err)
	defer push.Close()

	xh := NewHeader()
	xh.SetMessageID(77)
	xh.SetZmqID([]byte("ignored"))
	require.NoError(t, xh.Set("stream", Bool(true)))
	require.NoError(t, push.Emit("update", MustArgs("k"), xh))
	require.NoError(t, push.Emit("next", nil, nil))

	msg, err := raw.Recv()
	require.NoError(t, err)
	ev, err := Unpack(msg.Frames[len(msg.Frames)-1])
	require.NoError(t, err)
	id, _ := ev.Header().MessageID()
	assert.Equal(t, uint64(77), id)
	assert.Equal(t, Bool(true), ev.Header().GetOr("stream", Nil()))
	assert.False(t, ev.Header().Has(KeyZmqID), "zmqid must not reach the wire")

	// the explicit id did not consume one from the context
	msg, err = raw.Recv()
	require.NoError(t, err)
	ev, err = Unpack(msg.Frames[len(msg.Frames)-1])
	require.NoError(t, err)
	id, _ = ev.Header().MessageID()
	assert.Equal(t, uint64(0), id)
}

func TestEventsDecodeErrorKeepsSocket(t *testing.T) {
	ctx := testContext(t)

	pull, err := Listen(ctx, PatternPull, localTCP)
	require.NoError(t, err)
	defer pull.Close()

	raw := zmq4.NewPush(ctx)
	defer raw.Close()
	require.NoError(t, raw.Dial(BoundEndpoint(pull)))

	require.NoError(t, raw.Send(zmq4.NewMsg([]byte{0xc1})))
	good, err := NewEvent("ok", MustArgs(1), nil, NewContext()).Pack()
	require.NoError(t, err)
	require.NoError(t, raw.Send(zmq4.NewMsg(good)))

	_, err = pull.Recv()
	var de *DecodeError
	require.True(t, errors.As(err, &de), "got %v", err)

	ev, err := pull.Recv()
	require.NoError(t, err)
	assert.Equal(t, "ok", ev.Name())
}

func TestEventsClose(t *testing.T) {
	srv, cli := newPair(t, PatternPull, PatternPush)

	done := make(chan error, 1)
	go func() {
		_, err := srv.Recv()
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, srv.Close())
	assert.NoError(t, srv.Close())
	assert.True(t, srv.Closed())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("Recv did not return after Close")
	}

	_, err := srv.Recv()
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.ErrorIs(t, err, ErrClosed)

	require.NoError(t, cli.Close())
	assert.ErrorIs(t, cli.Emit("x", nil, nil), ErrClosed)
	assert.ErrorIs(t, cli.Connect(localTCP), ErrClosed)
}

func TestEventsUnknownPattern(t *testing.T) {
	_, err := NewEvents(testContext(t), Pattern("pair"))
	assert.ErrorIs(t, err, ErrUnknownPattern)
	assert.False(t, HasPattern("pair"))
	assert.Equal(t, []Pattern{
		PatternDealer, PatternPub, PatternPull, PatternPush,
		PatternRep, PatternReq, PatternRouter, PatternSub,
	}, AvailablePatterns())
}

func TestEventsSharedContext(t *testing.T) {
	ctx := testContext(t)
	shared := NewContext()
	a, err := NewEvents(ctx, PatternPush, WithContext(shared))
	require.NoError(t, err)
	defer a.Close()
	b, err := NewEvents(ctx, PatternPush, WithContext(shared))
	require.NoError(t, err)
	defer b.Close()

	assert.Same(t, a.Context(), b.Context())
	assert.Equal(t, PatternPush, a.Pattern())
}
