package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/wso2/consent-core-service/internal/config"
)

// StateChangeEvent is the message published after a consent state change
// commits. Consumers key on consentId and the status pair.
type StateChangeEvent struct {
	ConsentID      string `json:"consentId"`
	ClientID       string `json:"clientId"`
	ConsentType    string `json:"consentType"`
	PreviousStatus string `json:"previousStatus,omitempty"`
	CurrentStatus  string `json:"currentStatus"`
	Reason         string `json:"reason,omitempty"`
	ActionBy       string `json:"actionBy,omitempty"`
	Timestamp      int64  `json:"timestamp"`
}

// StateChangeNotifier publishes consent state-change events. Implementations
// are only invoked after the owning transaction has committed; a publish
// failure is logged by the caller and never surfaced to API clients.
type StateChangeNotifier interface {
	NotifyStateChange(ctx context.Context, event StateChangeEvent) error
	Close() error
}

// AMQPNotifier publishes state-change events to a RabbitMQ exchange
type AMQPNotifier struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     *logrus.Logger
}

// NewAMQPNotifier connects to the broker and declares the target exchange
func NewAMQPNotifier(cfg *config.NotifierConfig, logger *logrus.Logger) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to notifier broker: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open notifier channel: %w", err)
	}

	if err := channel.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare notifier exchange: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"exchange":   cfg.Exchange,
		"routingKey": cfg.RoutingKey,
	}).Info("Connected state-change notifier to broker")

	return &AMQPNotifier{
		conn:       conn,
		channel:    channel,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     logger,
	}, nil
}

// NotifyStateChange publishes one event as a persistent JSON message
func (n *AMQPNotifier) NotifyStateChange(ctx context.Context, event StateChangeEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal state-change event: %w", err)
	}

	err = n.channel.PublishWithContext(ctx, n.exchange, n.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish state-change event: %w", err)
	}

	n.logger.WithFields(logrus.Fields{
		"consentID":     event.ConsentID,
		"currentStatus": event.CurrentStatus,
	}).Debug("Published consent state-change event")
	return nil
}

// Close shuts down the channel and connection
func (n *AMQPNotifier) Close() error {
	if n.channel != nil {
		n.channel.Close()
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}

// NoopNotifier drops every event. Used when the notifier is disabled.
type NoopNotifier struct{}

// NewNoopNotifier creates a notifier that discards all events
func NewNoopNotifier() *NoopNotifier {
	return &NoopNotifier{}
}

// NotifyStateChange discards the event
func (n *NoopNotifier) NotifyStateChange(ctx context.Context, event StateChangeEvent) error {
	return nil
}

// Close is a no-op
func (n *NoopNotifier) Close() error {
	return nil
}
