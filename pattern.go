// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package zerorpc

import (
	"sync"

	"github.com/go-zeromq/zmq4"
)

// variant frames one event blob for a socket pattern. peer is the routing
// identity on routed patterns and nil everywhere else.
type variant interface {
	send(sock zmq4.Socket, blob, peer []byte) error
	recv(sock zmq4.Socket) (blob, peer []byte, err error)
}

// lastFrame returns the event blob of a multipart message: envelope frames
// added by the socket precede it.
func lastFrame(msg zmq4.Msg) ([]byte, error) {
	if len(msg.Frames) == 0 {
		return nil, decodeErrorf("message has no frames")
	}
	return msg.Frames[len(msg.Frames)-1], nil
}

// duplexVariant serves req and rep. Both strictly alternate; req starts by
// sending, rep by receiving. The next step is reserved before the socket call
// so a concurrent caller on the wrong side fails fast.
type duplexVariant struct {
	mu      sync.Mutex
	sending bool
}

func newDuplexVariant(sendFirst bool) *duplexVariant {
	return &duplexVariant{sending: sendFirst}
}

func (v *duplexVariant) advance(wantSend bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.sending != wantSend {
		return ErrOutOfSequence
	}
	v.sending = !wantSend
	return nil
}

func (v *duplexVariant) rollback(wasSend bool) {
	v.mu.Lock()
	v.sending = wasSend
	v.mu.Unlock()
}

func (v *duplexVariant) send(sock zmq4.Socket, blob, _ []byte) error {
	if err := v.advance(true); err != nil {
		return err
	}
	if err := sock.Send(zmq4.NewMsg(blob)); err != nil {
		v.rollback(true)
		return err
	}
	return nil
}

func (v *duplexVariant) recv(sock zmq4.Socket) ([]byte, []byte, error) {
	if err := v.advance(false); err != nil {
		return nil, nil, err
	}
	msg, err := sock.Recv()
	if err != nil {
		v.rollback(false)
		return nil, nil, err
	}
	blob, err := lastFrame(msg)
	return blob, nil, err
}

// maxRouterPeers bounds how many peer identities a router remembers. The
// least recently heard peer is forgotten first.
const maxRouterPeers = 1024

// routerVariant prefixes outbound blobs with the peer identity and an empty
// delimiter, and strips them on the way in. The delimiter is optional on
// inbound messages.
//
// Only peers the router has heard from can be addressed: the socket drops
// messages for unknown identities without reporting it.
type routerVariant struct {
	mu    sync.Mutex
	limit int
	seq   uint64
	peers map[string]uint64 // identity -> seq of its last message
	last  []byte
}

func newRouterVariant(limit int) *routerVariant {
	return &routerVariant{limit: limit, peers: make(map[string]uint64)}
}

func (v *routerVariant) target(peer []byte) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if peer != nil {
		if _, ok := v.peers[string(peer)]; !ok {
			return nil, &RoutingError{Reason: "unknown peer " + printablePeer(peer)}
		}
		return peer, nil
	}
	switch len(v.peers) {
	case 0:
		return nil, &RoutingError{Reason: "no zmqid in header and no peer seen yet"}
	case 1:
		return v.last, nil
	default:
		return nil, &RoutingError{Reason: "no zmqid in header and more than one peer connected"}
	}
}

// seen records peer as the most recently heard one.
func (v *routerVariant) seen(peer []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.seq++
	v.peers[string(peer)] = v.seq
	v.last = peer
	if len(v.peers) <= v.limit {
		return
	}
	var (
		oldest string
		low    uint64
	)
	for id, s := range v.peers {
		if low == 0 || s < low {
			oldest, low = id, s
		}
	}
	delete(v.peers, oldest)
}

func (v *routerVariant) send(sock zmq4.Socket, blob, peer []byte) error {
	id, err := v.target(peer)
	if err != nil {
		return err
	}
	return sock.SendMulti(zmq4.NewMsgFrom(id, []byte{}, blob))
}

func (v *routerVariant) recv(sock zmq4.Socket) ([]byte, []byte, error) {
	msg, err := sock.Recv()
	if err != nil {
		return nil, nil, err
	}
	if len(msg.Frames) < 2 {
		return nil, nil, decodeErrorf("routed message carries %d frames", len(msg.Frames))
	}
	peer := msg.Frames[0]
	v.seen(peer)
	return msg.Frames[len(msg.Frames)-1], peer, nil
}

// dealerVariant sends [delimiter, blob] so routers and reps on the other end
// see a well-formed envelope. Leading empty frames are dropped on receipt.
type dealerVariant struct{}

func (dealerVariant) send(sock zmq4.Socket, blob, _ []byte) error {
	return sock.SendMulti(zmq4.NewMsgFrom([]byte{}, blob))
}

func (dealerVariant) recv(sock zmq4.Socket) ([]byte, []byte, error) {
	msg, err := sock.Recv()
	if err != nil {
		return nil, nil, err
	}
	frames := msg.Frames
	for len(frames) > 1 && len(frames[0]) == 0 {
		frames = frames[1:]
	}
	blob, err := lastFrame(zmq4.Msg{Frames: frames})
	return blob, nil, err
}

// sendOnlyVariant serves push and pub.
type sendOnlyVariant struct{}

func (sendOnlyVariant) send(sock zmq4.Socket, blob, _ []byte) error {
	return sock.Send(zmq4.NewMsg(blob))
}

func (sendOnlyVariant) recv(zmq4.Socket) ([]byte, []byte, error) {
	return nil, nil, ErrSendOnly
}

// recvOnlyVariant serves pull and sub.
type recvOnlyVariant struct {
	subscribe bool
}

func (recvOnlyVariant) send(zmq4.Socket, []byte, []byte) error {
	return ErrRecvOnly
}

func (recvOnlyVariant) recv(sock zmq4.Socket) ([]byte, []byte, error) {
	msg, err := sock.Recv()
	if err != nil {
		return nil, nil, err
	}
	blob, err := lastFrame(msg)
	return blob, nil, err
}
