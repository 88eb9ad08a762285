// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package zerorpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Role says whether a configured socket binds or connects.
type Role string

const (
	RoleBind    Role = "bind"
	RoleConnect Role = "connect"
)

// Config describes one Events endpoint and the multiplexer on top of it.
type Config struct {
	Pattern        Pattern
	Endpoint       string
	Role           Role
	Identity       string
	Codec          string
	SendTimeout    time.Duration
	DialRetry      time.Duration
	DialMaxRetries int
	InboxSize      int
	UnroutedSize   int
}

// Defaults returns a connect-side dealer configuration with the msgpack
// codec. Endpoint must still be set.
func Defaults() Config {
	return Config{
		Pattern:      PatternDealer,
		Role:         RoleConnect,
		Codec:        CodecMsgpack,
		InboxSize:    defaultInboxSize,
		UnroutedSize: defaultUnroutedSize,
	}
}

func (c Config) Validate() error {
	if !HasPattern(c.Pattern) {
		return fmt.Errorf("%w: %q", ErrUnknownPattern, c.Pattern)
	}
	if c.Endpoint == "" {
		return errors.New("zerorpc: endpoint is required")
	}
	if c.Role != RoleBind && c.Role != RoleConnect {
		return fmt.Errorf("zerorpc: role must be %q or %q, got %q", RoleBind, RoleConnect, c.Role)
	}
	if c.InboxSize < 1 || c.UnroutedSize < 1 {
		return errors.New("zerorpc: queue sizes must be positive")
	}
	if c.SendTimeout < 0 || c.DialRetry < 0 {
		return errors.New("zerorpc: durations must not be negative")
	}
	return nil
}

// ConfigFromMap builds a Config from loosely typed values, starting from
// Defaults. Durations accept strings ("250ms") or seconds as numbers.
func ConfigFromMap(m map[string]any) (Config, error) {
	c := Defaults()
	if m == nil {
		return c, nil
	}
	var err error
	setString := func(key string, dst *string) {
		if v, ok := m[key]; ok && err == nil {
			s, ok := v.(string)
			if !ok {
				err = fmt.Errorf("zerorpc: config %q must be a string", key)
				return
			}
			*dst = s
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := m[key]; ok && err == nil {
			switch n := v.(type) {
			case int:
				*dst = n
			case int64:
				*dst = int(n)
			case float64:
				if n != float64(int(n)) {
					err = fmt.Errorf("zerorpc: config %q must be an integer", key)
					return
				}
				*dst = int(n)
			default:
				err = fmt.Errorf("zerorpc: config %q must be an integer", key)
			}
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v, ok := m[key]; ok && err == nil {
			switch d := v.(type) {
			case string:
				var perr error
				if *dst, perr = time.ParseDuration(d); perr != nil {
					err = fmt.Errorf("zerorpc: config %q: %w", key, perr)
				}
			case int:
				*dst = time.Duration(d) * time.Second
			case int64:
				*dst = time.Duration(d) * time.Second
			case float64:
				*dst = time.Duration(d * float64(time.Second))
			case time.Duration:
				*dst = d
			default:
				err = fmt.Errorf("zerorpc: config %q must be a duration", key)
			}
		}
	}

	pattern, role := string(c.Pattern), string(c.Role)
	setString("pattern", &pattern)
	setString("role", &role)
	setString("endpoint", &c.Endpoint)
	setString("identity", &c.Identity)
	setString("codec", &c.Codec)
	setDuration("send_timeout", &c.SendTimeout)
	setDuration("dial_retry", &c.DialRetry)
	setInt("dial_max_retries", &c.DialMaxRetries)
	setInt("inbox_size", &c.InboxSize)
	setInt("unrouted_size", &c.UnroutedSize)
	if err != nil {
		return Config{}, err
	}
	c.Pattern, c.Role = Pattern(strings.ToLower(pattern)), Role(strings.ToLower(role))
	return c, nil
}

// LoadConfig reads a YAML (.yaml, .yml) or JSON (.json) file and validates
// the result.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var m map[string]any
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &m); err != nil {
			return Config{}, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &m); err != nil {
			return Config{}, fmt.Errorf("parse json: %w", err)
		}
	default:
		return Config{}, fmt.Errorf("unsupported config file extension: %s", ext)
	}

	c, err := ConfigFromMap(m)
	if err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Options converts c into Events options. Extra options are applied last.
func (c Config) Options(extra ...Option) ([]Option, error) {
	codec, err := NewCodec(c.Codec)
	if err != nil {
		return nil, err
	}
	opts := []Option{WithCodec(codec)}
	if c.Identity != "" {
		opts = append(opts, WithIdentity([]byte(c.Identity)))
	}
	if c.SendTimeout > 0 {
		opts = append(opts, WithSendTimeout(c.SendTimeout))
	}
	if c.DialRetry > 0 {
		opts = append(opts, WithDialRetry(c.DialRetry, c.DialMaxRetries))
	}
	return append(opts, extra...), nil
}

// MuxOptions converts the queue sizes of c into multiplexer options.
func (c Config) MuxOptions() []MuxOption {
	return []MuxOption{WithInboxSize(c.InboxSize), WithUnroutedSize(c.UnroutedSize)}
}

// Open validates c, then creates and binds or connects the Events.
func (c Config) Open(ctx context.Context, extra ...Option) (*Events, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	opts, err := c.Options(extra...)
	if err != nil {
		return nil, err
	}
	if c.Role == RoleBind {
		return Listen(ctx, c.Pattern, c.Endpoint, opts...)
	}
	return Dial(ctx, c.Pattern, c.Endpoint, opts...)
}

// OpenMultiplexer opens the Events and starts a Multiplexer over it.
func (c Config) OpenMultiplexer(ctx context.Context, extra ...Option) (*Multiplexer, error) {
	e, err := c.Open(ctx, extra...)
	if err != nil {
		return nil, err
	}
	return NewMultiplexer(e, c.MuxOptions()...), nil
}
