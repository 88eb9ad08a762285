// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package zerorpc frames events over ZeroMQ sockets and multiplexes
// conversations on top of them.
//
// An Event is a name, a header and a list of positional arguments, encoded
// as the msgpack array [header, name, args]. Headers carry message_id,
// response_to and, on routed sockets, zmqid. Message ids come from a
// Context owned by each Events.
//
// # Usage
//
// Server side:
//
//	srv, err := zerorpc.Listen(ctx, zerorpc.PatternRouter, "tcp://127.0.0.1:4242")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	mux := zerorpc.NewMultiplexer(srv)
//	defer mux.Close()
//
//	ev, _ := mux.Recv(ctx)
//	ch, _ := mux.ChannelFrom(ev)
//	ch.Emit("result", zerorpc.MustArgs(21))
//
// Client side:
//
//	cli, err := zerorpc.Dial(ctx, zerorpc.PatternDealer, "tcp://127.0.0.1:4242")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	mux := zerorpc.NewMultiplexer(cli)
//	defer mux.Close()
//
//	ch, _ := mux.Channel()
//	ch.Emit("openthat", zerorpc.MustArgs(42))
//	reply, _ := ch.Recv(ctx)
//
// # Socket Patterns
//
//	req, rep        strict send/receive alternation
//	dealer, router  routed duplex; router exposes the sender as zmqid
//	push, pull      one way
//	pub, sub        one way broadcast
//
// # Architecture
//
// The package separates concerns:
//
//   - context.go, value.go, header.go, event.go: the event data model
//   - codec.go: envelope codec and codec registry
//   - transport.go: socket pattern registry
//   - pattern.go: per-pattern framing
//   - events.go, dial.go: the Events socket adapter
//   - multiplexer.go, channel.go, queue.go: conversation demultiplexing
//   - client.go, config.go: options and file configuration
//   - log.go, metrics.go: zerolog fields and OpenTelemetry instruments
//   - json.go: JSON-RPC status endpoint for multiplexer statistics
package zerorpc
