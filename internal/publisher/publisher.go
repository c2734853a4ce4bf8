package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/Checker-Finance/swap-engine/internal/metrics"
	"github.com/Checker-Finance/swap-engine/pkg/model"
)

const (
	envelopeVersion = "1.0.0"
	publishTimeout  = 5 * time.Second
)

// JetStream is the subset of nats.JetStreamContext the publisher uses.
type JetStream interface {
	PublishMsg(msg *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Publisher emits swap lifecycle events to NATS JetStream.
type Publisher struct {
	nc      *nats.Conn
	js      JetStream
	service string
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a Publisher on top of an open NATS connection.
func New(nc *nats.Conn, service string, logger *zap.Logger) (*Publisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	p := NewWithJetStream(js, service, logger)
	p.nc = nc
	return p, nil
}

// NewWithJetStream builds a Publisher around an existing JetStream handle.
func NewWithJetStream(js JetStream, service string, logger *zap.Logger) *Publisher {
	return &Publisher{js: js, service: service, logger: logger, now: time.Now}
}

// SubjectFor maps an event type to its versioned subject, e.g.
// swap.confirmed -> evt.swap.confirmed.v1.
func SubjectFor(t model.SwapEventType) string {
	return "evt." + string(t) + ".v1"
}

// PublishSwapEvent wraps evt in the canonical envelope and publishes it.
func (p *Publisher) PublishSwapEvent(ctx context.Context, evt model.SwapEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		metrics.IncError("publisher", "marshal_failed")
		return err
	}
	subject := SubjectFor(evt.Type)
	env := &model.Envelope{
		ID:            uuid.New(),
		CorrelationID: evt.SwapID,
		Topic:         subject,
		EventType:     string(evt.Type),
		Version:       envelopeVersion,
		Timestamp:     p.now().UTC(),
		Payload:       payload,
	}
	return p.PublishEnvelope(ctx, subject, env)
}

// PublishEnvelope serializes and publishes env on subject.
func (p *Publisher) PublishEnvelope(ctx context.Context, subject string, env *model.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		p.logger.Error("publisher.marshal_failed",
			zap.String("subject", subject),
			zap.String("event_type", env.EventType),
			zap.Error(err))
		metrics.IncError("publisher", "marshal_failed")
		return err
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"event_type":     []string{env.EventType},
			"correlation_id": []string{env.CorrelationID.String()},
			"service":        []string{p.service},
			"content_type":   []string{"application/json"},
		},
	}
	// JetStream drops duplicates with the same Nats-Msg-Id inside its window
	msg.Header.Set(nats.MsgIdHdr, env.CorrelationID.String()+":"+strings.TrimPrefix(env.EventType, "swap."))

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, publishTimeout)
		defer cancel()
	}

	start := time.Now()
	_, err = p.js.PublishMsg(msg, nats.Context(ctx))
	metrics.ObserveDuration(metrics.PublishLatency, start, subject)
	if err != nil {
		p.logger.Error("publisher.publish_failed",
			zap.String("subject", subject),
			zap.String("event_type", env.EventType),
			zap.String("correlation_id", env.CorrelationID.String()),
			zap.Error(err))
		metrics.PublishErrors.WithLabelValues(subject).Inc()
		return err
	}

	p.logger.Info("publisher.publish_success",
		zap.String("subject", subject),
		zap.String("event_type", env.EventType),
		zap.String("correlation_id", env.CorrelationID.String()))
	metrics.EventsPublished.WithLabelValues(subject).Inc()
	return nil
}

// Healthy reports whether the underlying connection is up.
func (p *Publisher) Healthy() bool {
	return p.nc == nil || p.nc.IsConnected()
}

func (p *Publisher) Close() {
	if p.nc != nil && p.nc.IsConnected() {
		_ = p.nc.Drain()
	}
}
