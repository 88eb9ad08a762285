// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package zerorpc

import (
	"encoding/hex"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// printablePeer renders a routing identity for logs. Router-assigned
// identities are binary, so anything non-printable is shown as hex.
func printablePeer(id []byte) string {
	if len(id) == 0 {
		return ""
	}
	if !utf8.Valid(id) {
		return "0x" + hex.EncodeToString(id)
	}
	for _, r := range string(id) {
		if !unicode.IsPrint(r) {
			return "0x" + hex.EncodeToString(id)
		}
	}
	return string(id)
}

// logEvent attaches the routing fields of ev to a log entry.
func logEvent(e *zerolog.Event, ev *Event) *zerolog.Event {
	h := ev.Header()
	e = e.Str("event", ev.Name())
	if id, ok := h.MessageID(); ok {
		e = e.Uint64("message_id", id)
	}
	if id, ok := h.ResponseTo(); ok {
		e = e.Uint64("response_to", id)
	}
	if peer, ok := h.ZmqID(); ok {
		e = e.Str("peer", printablePeer(peer))
	}
	return e
}
