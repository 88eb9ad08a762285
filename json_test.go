// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package zerorpc

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusService(t *testing.T) {
	ctx := testContext(t)
	server, client := newMuxPair(t)

	ch, err := client.Channel()
	require.NoError(t, err)
	defer ch.Close()

	svc := NewStatusService()
	svc.Register("server", server)
	svc.Register("client", client)
	h, err := NewStatusHandler(svc)
	require.NoError(t, err)

	ts := httptest.NewServer(h)
	defer ts.Close()

	reply, err := QueryStatus(ctx, ts.URL, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"client", "server"}, reply.Names())
	assert.Equal(t, 1, reply.Multiplexers["client"].Channels)
	assert.Equal(t, PatternDealer, reply.Multiplexers["client"].Pattern)
	assert.Equal(t, PatternRouter, reply.Multiplexers["server"].Pattern)

	reply, err = QueryStatus(ctx, ts.URL, "server")
	require.NoError(t, err)
	assert.Equal(t, []string{"server"}, reply.Names())

	_, err = QueryStatus(ctx, ts.URL, "nope")
	assert.Error(t, err)

	svc.Unregister("client")
	reply, err = QueryStatus(ctx, ts.URL, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"server"}, reply.Names())
}

func TestStatusHandlerRejectsGet(t *testing.T) {
	h, err := NewStatusHandler(NewStatusService())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestQueryStatusBadStatusCode(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer ts.Close()

	_, err := QueryStatus(testContext(t), ts.URL, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "418")
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, isRetryableError(nil))
	assert.True(t, isRetryableError(io.EOF))
	assert.True(t, isRetryableError(errors.New("read: connection reset by peer")))
	assert.False(t, isRetryableError(errors.New("no such host")))
}

func TestCleanlyCloseBody(t *testing.T) {
	assert.NoError(t, CleanlyCloseBody(nil))
	assert.NoError(t, CleanlyCloseBody(io.NopCloser(strings.NewReader("leftover"))))
}
