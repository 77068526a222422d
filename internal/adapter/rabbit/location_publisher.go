package rabbit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Temutjin2k/location-relay/internal/domain/models"
	"github.com/Temutjin2k/location-relay/internal/domain/types"
	wrap "github.com/Temutjin2k/location-relay/pkg/logger/wrapper"
	"github.com/Temutjin2k/location-relay/pkg/metrics"
	"github.com/Temutjin2k/location-relay/pkg/rabbit"
	amqp "github.com/rabbitmq/amqp091-go"
)

const metricsService = "location-relay"

// LocationPublisher mirrors every relayed location to a fanout exchange so
// that consumers outside the relay can follow all drivers.
type LocationPublisher struct {
	client   *rabbit.RabbitMQ
	exchange string
}

func NewLocationPublisher(client *rabbit.RabbitMQ, exchange string) *LocationPublisher {
	return &LocationPublisher{
		client:   client,
		exchange: exchange,
	}
}

// DeclareExchange declares the durable fanout exchange.
func (p *LocationPublisher) DeclareExchange(ctx context.Context) error {
	const op = "LocationPublisher.DeclareExchange"

	ch, err := p.client.Channel(ctx)
	if err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	if err := ch.ExchangeDeclare(
		p.exchange, // name
		"fanout",   // type
		true,       // durable
		false,      // auto-deleted
		false,      // internal
		false,      // no-wait
		nil,        // arguments
	); err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return nil
}

// Publish sends event to the exchange with routing key "location.{identity}".
func (p *LocationPublisher) Publish(ctx context.Context, event models.LocationEvent) (err error) {
	const op = "LocationPublisher.Publish"
	ctx = wrap.WithDriverID(wrap.WithAction(ctx, types.ActionRabbitPublishLocation), event.DriverIdentity)
	defer func() { metrics.RecordRabbitMQPublish(metricsService, p.exchange, err) }()

	body, err := json.Marshal(event)
	if err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: failed to marshal message: %w", op, err))
	}

	ch, err := p.client.Channel(ctx)
	if err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	if err = ch.PublishWithContext(
		ctx,
		p.exchange,                       // exchange
		"location."+event.DriverIdentity, // routing key
		false,                            // mandatory
		false,                            // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Transient,
			Body:         body,
			Timestamp:    event.Timestamp,
		},
	); err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: failed to publish with context: %w", op, err))
	}

	return nil
}
