package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"ledger-api/internal/models"
)

// EventPublisher emits domain events after a ledger operation commits.
// Publishing is best-effort: a broker outage must never fail the
// operation that already committed.
type EventPublisher interface {
	PublishWalletCreated(ctx context.Context, wallet *models.Wallet) error
	PublishEntryCreated(ctx context.Context, entry *models.LedgerEntry) error
	PublishOrderSettled(ctx context.Context, order *models.Order) error
	PublishWithdrawalRequested(ctx context.Context, withdrawal *models.Withdrawal) error
	PublishWithdrawalDecided(ctx context.Context, withdrawal *models.Withdrawal) error
	Close() error
}

type PublisherConfig struct {
	URL          string
	ExchangeName string
	Persistent   bool
}

type publisher struct {
	connection *amqp.Connection
	channel    *amqp.Channel
	config     *PublisherConfig
	logger     *logrus.Logger
}

type EventMessage struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	Source     string      `json:"source"`
	Data       interface{} `json:"data"`
	Timestamp  time.Time   `json:"timestamp"`
	Version    string      `json:"version"`
	RoutingKey string      `json:"routing_key"`
}

func NewPublisher(config *PublisherConfig, logger *logrus.Logger) (EventPublisher, error) {
	conn, err := amqp.Dial(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		config.ExchangeName,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", config.ExchangeName, err)
	}

	return &publisher{
		connection: conn,
		channel:    ch,
		config:     config,
		logger:     logger,
	}, nil
}

func (p *publisher) PublishWalletCreated(ctx context.Context, wallet *models.Wallet) error {
	return p.publish(ctx, "ledger.wallet.created", map[string]interface{}{
		"wallet_id":     wallet.ID.Hex(),
		"user_id":       wallet.UserID,
		"wallet_number": wallet.WalletNumber,
		"currency":      wallet.Currency,
	})
}

func (p *publisher) PublishEntryCreated(ctx context.Context, entry *models.LedgerEntry) error {
	return p.publish(ctx, "ledger.entry.created", map[string]interface{}{
		"entry_id":  entry.EntryID,
		"wallet_id": entry.WalletID.Hex(),
		"kind":      string(entry.Kind),
		"amount":    entry.Amount.String(),
		"reference": entry.Reference,
	})
}

func (p *publisher) PublishOrderSettled(ctx context.Context, order *models.Order) error {
	return p.publish(ctx, "ledger.order.settled", map[string]interface{}{
		"order_id":   order.OrderID,
		"user_id":    order.UserID,
		"coin_id":    order.CoinID,
		"type":       string(order.Type),
		"status":     string(order.Status),
		"quantity":   order.Quantity.String(),
		"unit_price": order.UnitPrice.String(),
		"price":      order.Price.String(),
	})
}

func (p *publisher) PublishWithdrawalRequested(ctx context.Context, withdrawal *models.Withdrawal) error {
	return p.publish(ctx, "ledger.withdrawal.requested", map[string]interface{}{
		"withdrawal_id": withdrawal.WithdrawalID,
		"user_id":       withdrawal.UserID,
		"amount":        withdrawal.Amount.String(),
	})
}

func (p *publisher) PublishWithdrawalDecided(ctx context.Context, withdrawal *models.Withdrawal) error {
	return p.publish(ctx, "ledger.withdrawal.decided", map[string]interface{}{
		"withdrawal_id": withdrawal.WithdrawalID,
		"user_id":       withdrawal.UserID,
		"amount":        withdrawal.Amount.String(),
		"status":        string(withdrawal.Status),
		"decided_by":    withdrawal.DecidedBy,
	})
}

func (p *publisher) publish(ctx context.Context, routingKey string, data interface{}) error {
	message := &EventMessage{
		ID:         uuid.New().String(),
		Type:       routingKey,
		Source:     "ledger-api",
		Data:       data,
		Timestamp:  time.Now(),
		Version:    "1.0",
		RoutingKey: routingKey,
	}

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		MessageId:    message.ID,
		Timestamp:    message.Timestamp,
		Type:         message.Type,
		Body:         body,
	}
	if p.config.Persistent {
		publishing.DeliveryMode = amqp.Persistent
	}

	err = p.channel.PublishWithContext(ctx,
		p.config.ExchangeName,
		routingKey,
		false,
		false,
		publishing,
	)
	if err != nil {
		p.logger.WithError(err).WithField("routing_key", routingKey).Warn("Event publish failed")
		return err
	}

	return nil
}

func (p *publisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.connection != nil {
		return p.connection.Close()
	}
	return nil
}

// NoopPublisher satisfies EventPublisher when messaging is disabled.
type NoopPublisher struct{}

func NewNoopPublisher() EventPublisher { return &NoopPublisher{} }

func (NoopPublisher) PublishWalletCreated(context.Context, *models.Wallet) error    { return nil }
func (NoopPublisher) PublishEntryCreated(context.Context, *models.LedgerEntry) error { return nil }
func (NoopPublisher) PublishOrderSettled(context.Context, *models.Order) error       { return nil }
func (NoopPublisher) PublishWithdrawalRequested(context.Context, *models.Withdrawal) error {
	return nil
}
func (NoopPublisher) PublishWithdrawalDecided(context.Context, *models.Withdrawal) error {
	return nil
}
func (NoopPublisher) Close() error { return nil }
