package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Checker-Finance/swap-engine/internal/metrics"
	"github.com/Checker-Finance/swap-engine/pkg/model"
)

// Channel is the part of *amqp.Channel the notifier publishes through.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Notifier sends terminal swap outcomes to a RabbitMQ queue for the
// notification service. Pending and bookkeeping events are not forwarded.
type Notifier struct {
	conn    *amqp.Connection
	channel Channel
	queue   string
	logger  *zap.Logger
}

// Dial connects to RabbitMQ and declares a durable queue.
func Dial(url, queue string, logger *zap.Logger) (*Notifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}
	n := New(ch, queue, logger)
	n.conn = conn
	return n, nil
}

// New wraps an open channel.
func New(ch Channel, queue string, logger *zap.Logger) *Notifier {
	return &Notifier{channel: ch, queue: queue, logger: logger}
}

// Notification is the message body consumers receive.
type Notification struct {
	Type            model.SwapEventType `json:"type"`
	SwapID          string              `json:"swapId"`
	UserID          string              `json:"userId"`
	Status          model.SwapStatus    `json:"status"`
	FromToken       string              `json:"fromToken"`
	ToToken         string              `json:"toToken"`
	FromAmount      string              `json:"fromAmount"`
	ToAmount        string              `json:"toAmount"`
	TransactionHash string              `json:"transactionHash,omitempty"`
	Reason          string              `json:"reason,omitempty"`
	Timestamp       time.Time           `json:"timestamp"`
}

// PublishSwapEvent forwards confirmed and failed swaps; other events are
// accepted and ignored.
func (n *Notifier) PublishSwapEvent(ctx context.Context, evt model.SwapEvent) error {
	if evt.Type != model.SwapEventConfirmed && evt.Type != model.SwapEventFailed {
		return nil
	}

	body, err := json.Marshal(Notification{
		Type:            evt.Type,
		SwapID:          evt.SwapID.String(),
		UserID:          evt.UserID.String(),
		Status:          evt.Status,
		FromToken:       evt.FromToken,
		ToToken:         evt.ToToken,
		FromAmount:      evt.FromAmount.String(),
		ToAmount:        evt.ToAmount.String(),
		TransactionHash: evt.TransactionHash,
		Reason:          evt.Reason,
		Timestamp:       evt.Timestamp,
	})
	if err != nil {
		metrics.IncError("notify", "marshal_failed")
		return err
	}

	err = n.channel.PublishWithContext(ctx,
		"",      // default exchange
		n.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    evt.SwapID.String() + ":" + string(evt.Type),
			Type:         string(evt.Type),
			Timestamp:    evt.Timestamp,
			Body:         body,
		},
	)
	if err != nil {
		n.logger.Error("notify.publish_failed",
			zap.String("queue", n.queue),
			zap.String("swap_id", evt.SwapID.String()),
			zap.Error(err))
		metrics.PublishErrors.WithLabelValues(n.queue).Inc()
		return err
	}

	n.logger.Info("notify.published",
		zap.String("queue", n.queue),
		zap.String("type", string(evt.Type)),
		zap.String("swap_id", evt.SwapID.String()))
	metrics.EventsPublished.WithLabelValues(n.queue).Inc()
	return nil
}

// Close closes the channel and connection when owned by the notifier.
func (n *Notifier) Close() error {
	if n.conn == nil {
		return nil
	}
	if ch, ok := n.channel.(*amqp.Channel); ok {
		_ = ch.Close()
	}
	return n.conn.Close()
}
