package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"realtime_chat/pkg/logger"
)

// Relay пересылает широковещательные кадры на другие узлы. Кадры,
// опубликованные этим узлом, обратно в handler не приходят.
type Relay interface {
	Publish(ctx context.Context, roomID string, frame []byte) error
	Subscribe(handler RelayHandler) error
	Close() error
}

type RelayHandler func(ctx context.Context, roomID string, frame []byte)

const originHeader = "Chat-Origin"

var tracer = otel.Tracer("realtime_chat/gateway")

// natsHeaderCarrier адаптирует nats.Header к propagation.TextMapCarrier.
type natsHeaderCarrier struct {
	header nats.Header
}

func (c natsHeaderCarrier) Get(key string) string { return c.header.Get(key) }

func (c natsHeaderCarrier) Set(key, value string) { c.header.Set(key, value) }

func (c natsHeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c.header))
	for k := range c.header {
		keys = append(keys, k)
	}
	return keys
}

type natsRelay struct {
	conn   *nats.Conn
	prefix string
	nodeID string
	sub    *nats.Subscription
	log    logger.Logger
}

// NewNATSRelay публикует кадры в subject "<prefix>.<roomID>".
func NewNATSRelay(conn *nats.Conn, prefix, nodeID string, log logger.Logger) Relay {
	return &natsRelay{
		conn:   conn,
		prefix: strings.TrimSuffix(prefix, "."),
		nodeID: nodeID,
		log:    log.With("component", "relay", "node_id", nodeID),
	}
}

func (r *natsRelay) subject(roomID string) string {
	return r.prefix + "." + roomID
}

func (r *natsRelay) Publish(ctx context.Context, roomID string, frame []byte) error {
	subject := r.subject(roomID)
	ctx, span := tracer.Start(ctx, subject+" publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "nats"),
			attribute.String("messaging.destination.name", subject),
			attribute.Int("messaging.message.payload_size_bytes", len(frame)),
		),
	)
	defer span.End()

	header := nats.Header{}
	header.Set(originHeader, r.nodeID)
	otel.GetTextMapPropagator().Inject(ctx, natsHeaderCarrier{header: header})

	if err := r.conn.PublishMsg(&nats.Msg{Subject: subject, Data: frame, Header: header}); err != nil {
		span.RecordError(err)
		return fmt.Errorf("relay publish to %s: %w", subject, err)
	}
	return nil
}

func (r *natsRelay) Subscribe(handler RelayHandler) error {
	sub, err := r.conn.Subscribe(r.prefix+".*", func(msg *nats.Msg) {
		if msg.Header.Get(originHeader) == r.nodeID {
			return
		}
		roomID, ok := strings.CutPrefix(msg.Subject, r.prefix+".")
		if !ok || roomID == "" {
			return
		}

		ctx := context.Background()
		if msg.Header != nil {
			ctx = otel.GetTextMapPropagator().Extract(ctx, natsHeaderCarrier{header: msg.Header})
		}
		ctx, span := tracer.Start(ctx, msg.Subject+" receive",
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(
				attribute.String("messaging.system", "nats"),
				attribute.String("messaging.destination.name", msg.Subject),
			),
		)
		defer span.End()

		handler(ctx, roomID, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("relay subscribe: %w", err)
	}
	r.sub = sub
	r.log.Info("Relay subscribed", "subject", sub.Subject)
	return nil
}

func (r *natsRelay) Close() error {
	if r.sub != nil {
		if err := r.sub.Unsubscribe(); err != nil {
			r.log.Warn("Failed to unsubscribe relay", "error", err)
		}
	}
	return r.conn.Drain()
}
