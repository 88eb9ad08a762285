// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package zerorpc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"
)

const (
	maxRetries    = 3
	retryBaseWait = 100 * time.Millisecond
)

// StatusService reports multiplexer statistics over JSON-RPC 2.0 as
// "Status.Get".
type StatusService struct {
	mu    sync.RWMutex
	muxes map[string]*Multiplexer
}

func NewStatusService() *StatusService {
	return &StatusService{muxes: make(map[string]*Multiplexer)}
}

// Register exposes m under name, replacing any previous entry.
func (s *StatusService) Register(name string, m *Multiplexer) {
	s.mu.Lock()
	s.muxes[name] = m
	s.mu.Unlock()
}

// Unregister removes name.
func (s *StatusService) Unregister(name string) {
	s.mu.Lock()
	delete(s.muxes, name)
	s.mu.Unlock()
}

// StatusArgs selects one multiplexer by name; empty selects all.
type StatusArgs struct {
	Name string `json:"name,omitempty"`
}

type StatusReply struct {
	Multiplexers map[string]Stats `json:"multiplexers"`
}

// Names returns the registered names in sorted order.
func (r *StatusReply) Names() []string {
	names := make([]string, 0, len(r.Multiplexers))
	for n := range r.Multiplexers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Get is the "Status.Get" JSON-RPC method.
func (s *StatusService) Get(_ *http.Request, args *StatusArgs, reply *StatusReply) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reply.Multiplexers = make(map[string]Stats)
	if args.Name != "" {
		m, ok := s.muxes[args.Name]
		if !ok {
			return fmt.Errorf("no multiplexer named %q", args.Name)
		}
		reply.Multiplexers[args.Name] = m.Stats()
		return nil
	}
	for name, m := range s.muxes {
		reply.Multiplexers[name] = m.Stats()
	}
	return nil
}

// NewStatusHandler serves svc as JSON-RPC 2.0 over HTTP POST.
func NewStatusHandler(svc *StatusService) (http.Handler, error) {
	server := rpc.NewServer()
	server.RegisterCodec(json2.NewCodec(), "application/json")
	if err := server.RegisterService(svc, "Status"); err != nil {
		return nil, fmt.Errorf("zerorpc: register status service: %w", err)
	}
	return server, nil
}

// newHTTPClient creates a fresh HTTP client with disabled connection reuse.
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			DisableKeepAlives: true,
		},
	}
}

// CleanlyCloseBody drains and closes an HTTP response body to prevent
// HTTP/2 GOAWAY errors caused by closing bodies with unread data.
// See: https://github.com/golang/go/issues/46071
func CleanlyCloseBody(body io.ReadCloser) error {
	if body == nil {
		return nil
	}
	_, _ = io.Copy(io.Discard, body)
	return body.Close()
}

// isRetryableError checks if an error is transient and worth retrying
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	if errors.Is(err, io.EOF) || strings.Contains(errStr, "EOF") {
		return true
	}
	if strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "broken pipe") {
		return true
	}
	return false
}

// QueryStatus calls "Status.Get" on the status endpoint at uri. Transient
// connection failures are retried with exponential backoff.
func QueryStatus(ctx context.Context, uri string, name string) (*StatusReply, error) {
	reply := &StatusReply{}
	if err := sendJSONRequest(ctx, uri, "Status.Get", &StatusArgs{Name: name}, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

func sendJSONRequest(ctx context.Context, uri, method string, params, reply any) error {
	requestBodyBytes, err := json2.EncodeClientRequest(method, params)
	if err != nil {
		return fmt.Errorf("failed to encode client params: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 100ms, 200ms
			waitTime := retryBaseWait * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(waitTime):
			}
		}

		// body buffer is consumed by each attempt
		request, err := http.NewRequestWithContext(
			ctx,
			http.MethodPost,
			uri,
			bytes.NewBuffer(requestBodyBytes),
		)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		request.Header.Set("Content-Type", "application/json")

		resp, err := newHTTPClient().Do(request)
		if err != nil {
			lastErr = err
			if isRetryableError(err) {
				continue
			}
			return fmt.Errorf("failed to issue request: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			_ = CleanlyCloseBody(resp.Body)
			return fmt.Errorf("received status code: %d", resp.StatusCode)
		}

		if err := json2.DecodeClientResponse(resp.Body, reply); err != nil {
			_ = CleanlyCloseBody(resp.Body)
			return fmt.Errorf("failed to decode client response: %w", err)
		}
		_ = CleanlyCloseBody(resp.Body)
		return nil
	}

	return fmt.Errorf("failed to issue request after %d retries: %w", maxRetries, lastErr)
}
