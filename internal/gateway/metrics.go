package gateway

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	connections metric.Int64UpDownCounter
	rejected    metric.Int64Counter
	inbound     metric.Int64Counter
	broadcasts  metric.Int64Counter
	dropped     metric.Int64Counter
	panics      metric.Int64Counter
	relayed     metric.Int64Counter
}

func newMetrics() *metrics {
	meter := otel.Meter("realtime_chat/gateway")

	connections, _ := meter.Int64UpDownCounter("chat_connections_active",
		metric.WithDescription("Open authenticated connections on this node"))
	rejected, _ := meter.Int64Counter("chat_handshakes_rejected_total",
		metric.WithDescription("Handshakes rejected by authentication"))
	inbound, _ := meter.Int64Counter("chat_inbound_events_total",
		metric.WithDescription("Client events processed"))
	broadcasts, _ := meter.Int64Counter("chat_broadcasts_total",
		metric.WithDescription("Events delivered to room groups"))
	dropped, _ := meter.Int64Counter("chat_frames_dropped_total",
		metric.WithDescription("Outbound frames dropped because a send queue was full"))
	panics, _ := meter.Int64Counter("chat_session_panics_total",
		metric.WithDescription("Connection tasks terminated by a recovered panic"))
	relayed, _ := meter.Int64Counter("chat_relay_frames_total",
		metric.WithDescription("Frames received from other nodes"))

	return &metrics{
		connections: connections,
		rejected:    rejected,
		inbound:     inbound,
		broadcasts:  broadcasts,
		dropped:     dropped,
		panics:      panics,
		relayed:     relayed,
	}
}

func (m *metrics) event(ctx context.Context, counter metric.Int64Counter, event string) {
	counter.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
}
