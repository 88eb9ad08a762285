// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package zerorpc

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-zeromq/zmq4"
)

// Pattern names a socket discipline supported by Events.
type Pattern string

// Socket patterns
const (
	PatternReq    Pattern = "req"    // symmetric duplex, client role
	PatternRep    Pattern = "rep"    // symmetric duplex, server role
	PatternDealer Pattern = "dealer" // routed duplex, client role
	PatternRouter Pattern = "router" // routed duplex, server role, exposes peer identity
	PatternPush   Pattern = "push"   // unidirectional, send side
	PatternPull   Pattern = "pull"   // unidirectional, receive side
	PatternPub    Pattern = "pub"    // broadcast, send side
	PatternSub    Pattern = "sub"    // broadcast, receive side
)

type socketFunc func(ctx context.Context, opts ...zmq4.Option) zmq4.Socket

type patternEntry struct {
	socket  socketFunc
	variant func() variant
}

var patterns = map[Pattern]patternEntry{
	PatternReq:    {zmq4.NewReq, func() variant { return newDuplexVariant(true) }},
	PatternRep:    {zmq4.NewRep, func() variant { return newDuplexVariant(false) }},
	PatternDealer: {zmq4.NewDealer, func() variant { return dealerVariant{} }},
	PatternRouter: {zmq4.NewRouter, func() variant { return newRouterVariant(maxRouterPeers) }},
	PatternPush:   {zmq4.NewPush, func() variant { return sendOnlyVariant{} }},
	PatternPull:   {zmq4.NewPull, func() variant { return recvOnlyVariant{} }},
	PatternPub:    {zmq4.NewPub, func() variant { return sendOnlyVariant{} }},
	PatternSub:    {zmq4.NewSub, func() variant { return recvOnlyVariant{subscribe: true} }},
}

func lookupPattern(p Pattern) (patternEntry, error) {
	e, ok := patterns[p]
	if !ok {
		return patternEntry{}, fmt.Errorf("%w: %q", ErrUnknownPattern, p)
	}
	return e, nil
}

// AvailablePatterns returns the supported patterns in sorted order
func AvailablePatterns() []Pattern {
	result := make([]Pattern, 0, len(patterns))
	for p := range patterns {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// HasPattern checks if a pattern is available
func HasPattern(p Pattern) bool {
	_, err := lookupPattern(p)
	return err == nil
}
