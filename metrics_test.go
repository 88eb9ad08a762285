// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package zerorpc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func setupMetrics(t *testing.T) (*sdkmetric.ManualReader, MetricsRecorder) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			t.Logf("Error shutting down meter provider: %v", err)
		}
	})
	return reader, NewMetricsRecorder(provider)
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) *metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return &rm
}

func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumOf adds the data points of an int64 sum whose attributes contain kv.
func sumOf(m *metricdata.Metrics, kv attribute.KeyValue) (int64, bool) {
	if m == nil {
		return 0, false
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		return 0, false
	}
	var total int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(kv.Key); ok && v == kv.Value {
			total += dp.Value
		}
	}
	return total, true
}

func sumWhere(t *testing.T, m *metricdata.Metrics, kv attribute.KeyValue) int64 {
	t.Helper()
	total, ok := sumOf(m, kv)
	require.True(t, ok, "Expected an int64 sum")
	return total
}

func TestNewMetricsRecorderIsReal(t *testing.T) {
	_, rec := setupMetrics(t)
	_, isNoop := rec.(NoopMetrics)
	assert.False(t, isNoop)
}

func TestEventsMetrics(t *testing.T) {
	reader, rec := setupMetrics(t)
	ctx := testContext(t)

	pull, err := Listen(ctx, PatternPull, localTCP, WithMetrics(rec))
	require.NoError(t, err)
	defer pull.Close()
	push, err := Dial(ctx, PatternPush, BoundEndpoint(pull), WithMetrics(rec))
	require.NoError(t, err)
	defer push.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, push.Emit("x", MustArgs(i), nil))
	}
	for i := 0; i < 3; i++ {
		_, err := pull.Recv()
		require.NoError(t, err)
	}
	require.ErrorIs(t, pull.Emit("x", nil, nil), ErrRecvOnly)

	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(3), sumWhere(t, findMetric(rm, "zerorpc.events.emitted"), attribute.String("pattern", "push")))
	assert.Equal(t, int64(3), sumWhere(t, findMetric(rm, "zerorpc.events.received"), attribute.String("pattern", "pull")))
	assert.Equal(t, int64(1), sumWhere(t, findMetric(rm, "zerorpc.events.errors"), attribute.String("op", "emit")))
}

func TestMultiplexerMetrics(t *testing.T) {
	reader, rec := setupMetrics(t)
	ctx := testContext(t)

	srv, cli := newPair(t, PatternRouter, PatternDealer, WithMetrics(rec))
	server := NewMultiplexer(srv)
	defer server.Close()
	client := NewMultiplexer(cli)
	defer client.Close()

	ch, err := client.Channel()
	require.NoError(t, err)
	require.NoError(t, ch.Emit("open", nil))

	ev, err := server.Recv(ctx)
	require.NoError(t, err)
	xh := NewHeader()
	id, _ := ev.Header().MessageID()
	zid, _ := ev.Header().ZmqID()
	xh.SetResponseTo(id)
	xh.SetZmqID(zid)
	require.NoError(t, server.Emit("reply", nil, xh))
	_, err = ch.Recv(ctx)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		var rm metricdata.ResourceMetrics
		if err := reader.Collect(context.Background(), &rm); err != nil {
			return false
		}
		n, _ := sumOf(findMetric(&rm, "zerorpc.mux.dispatched"), attribute.Bool("routed", true))
		return n == 1
	}, time.Second, 10*time.Millisecond)

	rm := collectMetrics(t, reader)
	channels := findMetric(rm, "zerorpc.mux.channels")
	require.NotNil(t, channels)
	sum, ok := channels.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.NotEmpty(t, sum.DataPoints)
	assert.Equal(t, int64(1), sum.DataPoints[0].Value)

	ch.Close()
	rm = collectMetrics(t, reader)
	sum = findMetric(rm, "zerorpc.mux.channels").Data.(metricdata.Sum[int64])
	assert.Equal(t, int64(0), sum.DataPoints[0].Value)
}

func TestNoopMetrics(t *testing.T) {
	var m MetricsRecorder = NoopMetrics{}
	ctx := context.Background()
	m.RecordEmit(ctx, PatternReq, nil)
	m.RecordRecv(ctx, PatternRep, assert.AnError)
	m.RecordDispatch(ctx, true)
	m.RecordChannels(ctx, 1)
}
