// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package zerorpc

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records event traffic and multiplexer activity.
// Use NewMetricsRecorder for OpenTelemetry metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordEmit records one Emit call and its outcome.
	RecordEmit(ctx context.Context, p Pattern, err error)

	// RecordRecv records one Recv call and its outcome.
	RecordRecv(ctx context.Context, p Pattern, err error)

	// RecordDispatch records an event handed out by a multiplexer.
	RecordDispatch(ctx context.Context, routed bool)

	// RecordChannels tracks opened (+1) and closed (-1) channels.
	RecordChannels(ctx context.Context, delta int64)
}

const meterName = "github.com/luxfi/zerorpc"

type otelMetrics struct {
	emitted    metric.Int64Counter
	received   metric.Int64Counter
	errors     metric.Int64Counter
	dispatched metric.Int64Counter
	channels   metric.Int64UpDownCounter
}

func newOtelMetrics(provider metric.MeterProvider) (*otelMetrics, error) {
	meter := provider.Meter(meterName)

	emitted, err := meter.Int64Counter("zerorpc.events.emitted",
		metric.WithDescription("Number of events written to a socket"),
	)
	if err != nil {
		return nil, err
	}

	received, err := meter.Int64Counter("zerorpc.events.received",
		metric.WithDescription("Number of events read and decoded from a socket"),
	)
	if err != nil {
		return nil, err
	}

	errs, err := meter.Int64Counter("zerorpc.events.errors",
		metric.WithDescription("Number of failed emit or receive calls"),
	)
	if err != nil {
		return nil, err
	}

	dispatched, err := meter.Int64Counter("zerorpc.mux.dispatched",
		metric.WithDescription("Number of events dispatched by multiplexers"),
	)
	if err != nil {
		return nil, err
	}

	channels, err := meter.Int64UpDownCounter("zerorpc.mux.channels",
		metric.WithDescription("Number of open channels"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		emitted:    emitted,
		received:   received,
		errors:     errs,
		dispatched: dispatched,
		channels:   channels,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder backed by provider, or by the
// global OTel meter provider when provider is nil. If instrument creation
// fails, a no-op recorder is returned.
func NewMetricsRecorder(provider metric.MeterProvider) MetricsRecorder {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	m, err := newOtelMetrics(provider)
	if err != nil {
		otel.Handle(err)
		return NoopMetrics{}
	}
	return m
}

func (m *otelMetrics) record(ctx context.Context, c metric.Int64Counter, op string, p Pattern, err error) {
	attrs := metric.WithAttributes(
		attribute.String("pattern", string(p)),
		attribute.String("op", op),
	)
	if err != nil {
		m.errors.Add(ctx, 1, attrs)
		return
	}
	c.Add(ctx, 1, attrs)
}

func (m *otelMetrics) RecordEmit(ctx context.Context, p Pattern, err error) {
	m.record(ctx, m.emitted, "emit", p, err)
}

func (m *otelMetrics) RecordRecv(ctx context.Context, p Pattern, err error) {
	m.record(ctx, m.received, "recv", p, err)
}

func (m *otelMetrics) RecordDispatch(ctx context.Context, routed bool) {
	m.dispatched.Add(ctx, 1, metric.WithAttributes(attribute.Bool("routed", routed)))
}

func (m *otelMetrics) RecordChannels(ctx context.Context, delta int64) {
	m.channels.Add(ctx, delta)
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) RecordEmit(context.Context, Pattern, error) {}
func (NoopMetrics) RecordRecv(context.Context, Pattern, error) {}
func (NoopMetrics) RecordDispatch(context.Context, bool)       {}
func (NoopMetrics) RecordChannels(context.Context, int64)      {}
