// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package zerorpc

import "sync/atomic"

// Context allocates message identifiers for every Event produced by one
// logical peer. Share a single Context between the Events instances of a
// peer when their identifiers must not overlap.
type Context struct {
	next atomic.Uint64
}

// NewContext returns a Context whose first identifier is 0.
func NewContext() *Context {
	return &Context{}
}

// NewMsgID returns an identifier never returned before by this Context.
func (c *Context) NewMsgID() uint64 {
	return c.next.Add(1) - 1
}
