// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package zerorpc

import (
	"fmt"
	"strings"
)

// Event is one framed unit of communication: a name, a header and a fixed
// list of positional arguments. Name and arguments are fixed at
// construction; the header stays mutable.
type Event struct {
	name   string
	header *Header
	args   []Value
}

// NewEvent builds an Event. The header is copied (nil means empty). Only when
// ctx is non-nil is message_id injected, overwriting any caller value.
func NewEvent(name string, args []Value, header *Header, ctx *Context) *Event {
	h := header.Clone()
	if ctx != nil {
		h.SetMessageID(ctx.NewMsgID())
	}
	var a []Value
	if len(args) > 0 {
		a = append(a, args...)
	}
	return &Event{name: name, header: h, args: a}
}

func (e *Event) Name() string { return e.name }

// Header returns the event header. Modifications are visible to later Pack
// calls.
func (e *Event) Header() *Header { return e.header }

// Args returns a copy of the positional arguments.
func (e *Event) Args() []Value {
	if len(e.args) == 0 {
		return nil
	}
	return append([]Value(nil), e.args...)
}

// Arg returns argument i, or the nil Value when out of range.
func (e *Event) Arg(i int) Value {
	if i < 0 || i >= len(e.args) {
		return Nil()
	}
	return e.args[i]
}

// NumArgs returns the number of positional arguments.
func (e *Event) NumArgs() int { return len(e.args) }

// Pack serializes the event with the default msgpack envelope codec.
func (e *Event) Pack() ([]byte, error) {
	return MsgpackCodec{}.Encode(e)
}

// Unpack decodes an event serialized by Pack. Malformed or truncated input
// yields a *DecodeError.
func Unpack(b []byte) (*Event, error) {
	return MsgpackCodec{}.Decode(b)
}

func (e *Event) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<%s %s (", e.name, e.header)
	for i, a := range e.args {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(a.String())
	}
	sb.WriteString(")>")
	return sb.String()
}
