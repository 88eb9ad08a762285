// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package zerorpc

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
)

// Well-known header keys.
const (
	KeyMessageID  = "message_id"
	KeyResponseTo = "response_to"
	KeyZmqID      = "zmqid"
)

// Header is the mapping carried at the front of every Event.
//
// message_id, response_to and zmqid are stored as typed optional fields;
// any other key lives in an extension map and passes through unchanged.
type Header struct {
	messageID     uint64
	hasMessageID  bool
	responseTo    uint64
	hasResponseTo bool
	zmqid         []byte
	ext           map[string]Value
}

// NewHeader returns an empty Header.
func NewHeader() *Header {
	return &Header{}
}

// Clone returns a deep copy of h. Cloning a nil Header yields an empty one.
func (h *Header) Clone() *Header {
	if h == nil {
		return NewHeader()
	}
	c := &Header{
		messageID:     h.messageID,
		hasMessageID:  h.hasMessageID,
		responseTo:    h.responseTo,
		hasResponseTo: h.hasResponseTo,
	}
	if h.zmqid != nil {
		c.zmqid = bytes.Clone(h.zmqid)
	}
	if len(h.ext) > 0 {
		c.ext = make(map[string]Value, len(h.ext))
		for k, v := range h.ext {
			c.ext[k] = v
		}
	}
	return c
}

func (h *Header) MessageID() (uint64, bool) { return h.messageID, h.hasMessageID }

func (h *Header) SetMessageID(id uint64) {
	h.messageID, h.hasMessageID = id, true
}

func (h *Header) ResponseTo() (uint64, bool) { return h.responseTo, h.hasResponseTo }

func (h *Header) SetResponseTo(id uint64) {
	h.responseTo, h.hasResponseTo = id, true
}

// ZmqID returns the peer routing identity, present only on events received
// from, or addressed to, a routed socket.
func (h *Header) ZmqID() ([]byte, bool) { return h.zmqid, h.zmqid != nil }

// SetZmqID sets the routing identity; a nil id removes it.
func (h *Header) SetZmqID(id []byte) {
	if id == nil {
		h.zmqid = nil
		return
	}
	h.zmqid = bytes.Clone(id)
}

// Get returns the value stored under key. message_id and response_to are
// reported as Int; decoding never yields identifiers above math.MaxInt64.
func (h *Header) Get(key string) (Value, bool) {
	switch key {
	case KeyMessageID:
		if !h.hasMessageID {
			return Value{}, false
		}
		return Int(int64(h.messageID)), true
	case KeyResponseTo:
		if !h.hasResponseTo {
			return Value{}, false
		}
		return Int(int64(h.responseTo)), true
	case KeyZmqID:
		if h.zmqid == nil {
			return Value{}, false
		}
		return Bytes(h.zmqid), true
	}
	v, ok := h.ext[key]
	return v, ok
}

// GetOr returns the value stored under key, or def when key is missing.
func (h *Header) GetOr(key string, def Value) Value {
	if v, ok := h.Get(key); ok {
		return v
	}
	return def
}

// Has reports whether key is present.
func (h *Header) Has(key string) bool {
	_, ok := h.Get(key)
	return ok
}

// Set stores v under key. The well-known keys only accept non-negative
// integers (message_id, response_to) or bytes/strings (zmqid).
func (h *Header) Set(key string, v Value) error {
	switch key {
	case KeyMessageID, KeyResponseTo:
		i, ok := v.AsInt()
		if !ok || i < 0 {
			return fmt.Errorf("zerorpc: header %q wants a non-negative int, got %s", key, v.Kind())
		}
		if key == KeyMessageID {
			h.SetMessageID(uint64(i))
		} else {
			h.SetResponseTo(uint64(i))
		}
		return nil
	case KeyZmqID:
		if b, ok := v.AsBytes(); ok {
			if b == nil {
				b = []byte{}
			}
			h.SetZmqID(b)
			return nil
		}
		if s, ok := v.AsString(); ok {
			h.SetZmqID([]byte(s))
			return nil
		}
		return fmt.Errorf("zerorpc: header %q wants bytes, got %s", key, v.Kind())
	}
	if h.ext == nil {
		h.ext = make(map[string]Value)
	}
	h.ext[key] = v
	return nil
}

// Update stores every entry of kv, stopping at the first invalid one.
func (h *Header) Update(kv map[string]Value) error {
	for _, k := range sortedKeys(kv) {
		if err := h.Set(k, kv[k]); err != nil {
			return err
		}
	}
	return nil
}

// Merge copies every key present in o over h.
func (h *Header) Merge(o *Header) {
	if o == nil {
		return
	}
	if o.hasMessageID {
		h.SetMessageID(o.messageID)
	}
	if o.hasResponseTo {
		h.SetResponseTo(o.responseTo)
	}
	if o.zmqid != nil {
		h.SetZmqID(o.zmqid)
	}
	for k, v := range o.ext {
		if h.ext == nil {
			h.ext = make(map[string]Value, len(o.ext))
		}
		h.ext[k] = v
	}
}

// Delete removes key if present.
func (h *Header) Delete(key string) {
	switch key {
	case KeyMessageID:
		h.messageID, h.hasMessageID = 0, false
	case KeyResponseTo:
		h.responseTo, h.hasResponseTo = 0, false
	case KeyZmqID:
		h.zmqid = nil
	default:
		delete(h.ext, key)
		if len(h.ext) == 0 {
			h.ext = nil
		}
	}
}

// Keys returns the present keys in sorted order.
func (h *Header) Keys() []string {
	keys := sortedKeys(h.ext)
	if h.hasMessageID {
		keys = append(keys, KeyMessageID)
	}
	if h.hasResponseTo {
		keys = append(keys, KeyResponseTo)
	}
	if h.zmqid != nil {
		keys = append(keys, KeyZmqID)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of present keys.
func (h *Header) Len() int {
	n := len(h.ext)
	if h.hasMessageID {
		n++
	}
	if h.hasResponseTo {
		n++
	}
	if h.zmqid != nil {
		n++
	}
	return n
}

func (h *Header) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range h.Keys() {
		if i > 0 {
			sb.WriteString(", ")
		}
		v, _ := h.Get(k)
		fmt.Fprintf(&sb, "%s: %s", k, v)
	}
	sb.WriteByte('}')
	return sb.String()
}
