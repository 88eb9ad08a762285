// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package zerorpc

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec turns events into message frames and back.
type Codec interface {
	Encode(e *Event) ([]byte, error)
	Decode(b []byte) (*Event, error)
	Name() string
}

// CodecMsgpack is the name of the default envelope codec.
const CodecMsgpack = "msgpack"

// MsgpackCodec lays an event out as the msgpack array
// [header, name, args].
type MsgpackCodec struct{}

func (MsgpackCodec) Name() string { return CodecMsgpack }

func (MsgpackCodec) Encode(e *Event) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := enc.EncodeArrayLen(3); err != nil {
		return nil, err
	}
	if err := encodeHeader(enc, e.header); err != nil {
		return nil, fmt.Errorf("zerorpc: encode header: %w", err)
	}
	if err := enc.EncodeString(e.name); err != nil {
		return nil, err
	}
	if err := enc.EncodeArrayLen(len(e.args)); err != nil {
		return nil, err
	}
	for i, a := range e.args {
		if err := a.EncodeMsgpack(enc); err != nil {
			return nil, fmt.Errorf("zerorpc: encode argument %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

func encodeHeader(enc *msgpack.Encoder, h *Header) error {
	if h == nil {
		return enc.EncodeMapLen(0)
	}
	if err := enc.EncodeMapLen(h.Len()); err != nil {
		return err
	}
	for _, k := range h.Keys() {
		if err := enc.EncodeString(k); err != nil {
			return err
		}
		var err error
		switch k {
		case KeyMessageID:
			err = enc.EncodeUint(h.messageID)
		case KeyResponseTo:
			err = enc.EncodeUint(h.responseTo)
		case KeyZmqID:
			err = enc.EncodeBytes(h.zmqid)
		default:
			err = h.ext[k].EncodeMsgpack(enc)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (MsgpackCodec) Decode(b []byte) (*Event, error) {
	if len(b) == 0 {
		return nil, decodeErrorf("empty frame")
	}
	r := bytes.NewReader(b)
	dec := msgpack.NewDecoder(r)

	n, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	if n != 3 {
		return nil, decodeErrorf("envelope has %d fields, want 3", n)
	}
	h, err := decodeHeader(dec)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	name, err := dec.DecodeString()
	if err != nil {
		return nil, decodeErrorf("name: %w", err)
	}
	nargs, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, decodeErrorf("args: %w", err)
	}
	var args []Value
	if nargs > 0 {
		args = make([]Value, nargs)
		for i := range args {
			if err := args[i].DecodeMsgpack(dec); err != nil {
				return nil, decodeErrorf("argument %d: %w", i, err)
			}
		}
	}
	if r.Len() > 0 {
		return nil, decodeErrorf("%d trailing bytes", r.Len())
	}
	return &Event{name: name, header: h, args: args}, nil
}

// decodeID reads a message identifier. Identifiers above math.MaxInt64 are
// rejected so that Header.Get and Header.Set agree on every decoded value.
func decodeID(dec *msgpack.Decoder, key string) (uint64, error) {
	id, err := dec.DecodeUint64()
	if err != nil {
		return 0, fmt.Errorf("header %s: %w", key, err)
	}
	if id > math.MaxInt64 {
		return 0, fmt.Errorf("header %s: %d overflows int64", key, id)
	}
	return id, nil
}

func decodeHeader(dec *msgpack.Decoder) (*Header, error) {
	h := NewHeader()
	n, err := dec.DecodeMapLen()
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	for i := 0; i < n; i++ {
		key, err := dec.DecodeString()
		if err != nil {
			return nil, fmt.Errorf("header key: %w", err)
		}
		switch key {
		case KeyMessageID:
			id, err := decodeID(dec, key)
			if err != nil {
				return nil, err
			}
			h.SetMessageID(id)
		case KeyResponseTo:
			id, err := decodeID(dec, key)
			if err != nil {
				return nil, err
			}
			h.SetResponseTo(id)
		case KeyZmqID:
			id, err := dec.DecodeBytes()
			if err != nil {
				return nil, fmt.Errorf("header %s: %w", key, err)
			}
			if id == nil {
				id = []byte{}
			}
			h.zmqid = id
		default:
			var v Value
			if err := v.DecodeMsgpack(dec); err != nil {
				return nil, fmt.Errorf("header %s: %w", key, err)
			}
			if err := h.Set(key, v); err != nil {
				return nil, err
			}
		}
	}
	return h, nil
}

// CodecFactory constructs codecs by name.
type CodecFactory func() Codec

var (
	codecRegistryMu sync.RWMutex
	codecRegistry   = map[string]CodecFactory{
		CodecMsgpack: func() Codec { return MsgpackCodec{} },
	}
)

// RegisterCodec makes a codec selectable by name from Config.
func RegisterCodec(name string, factory CodecFactory) error {
	if name == "" {
		return errors.New("zerorpc: codec name must not be empty")
	}
	if factory == nil {
		return errors.New("zerorpc: codec factory must not be nil")
	}
	codecRegistryMu.Lock()
	codecRegistry[name] = factory
	codecRegistryMu.Unlock()
	return nil
}

// NewCodec constructs a registered codec.
func NewCodec(name string) (Codec, error) {
	codecRegistryMu.RLock()
	f, ok := codecRegistry[name]
	codecRegistryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
	return f(), nil
}

// defaultCodec is used when no codec is specified
var defaultCodec Codec = MsgpackCodec{}
