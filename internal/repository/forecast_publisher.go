package repository

import (
	"context"

	"CoinCast/internal/domain/models"
	"CoinCast/internal/domain/repository"
)

// ForecastsTopic receives one event per freshly computed forecast.
const ForecastsTopic = "coincast.forecasts"

// messagePublisher is the part of pkg/kafka.Producer the publisher needs.
type messagePublisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// KafkaForecastPublisher implements ForecastPublisher for Kafka.
type KafkaForecastPublisher struct {
	producer messagePublisher
	topic    string
}

// NewKafkaForecastPublisher creates a publisher writing to topic, or
// ForecastsTopic when topic is empty.
func NewKafkaForecastPublisher(producer messagePublisher, topic string) *KafkaForecastPublisher {
	if topic == "" {
		topic = ForecastsTopic
	}
	return &KafkaForecastPublisher{producer: producer, topic: topic}
}

// PublishForecast keys the event by coin so one coin's events stay ordered.
func (p *KafkaForecastPublisher) PublishForecast(ctx context.Context, ev models.ForecastEvent) error {
	return p.producer.Publish(ctx, p.topic, []byte(ev.CoinID), ev)
}

// Close is a no-op: the producer is shared and closed by the app.
func (p *KafkaForecastPublisher) Close() error { return nil }

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) PublishForecast(context.Context, models.ForecastEvent) error { return nil }
func (NopPublisher) Close() error { return nil }

var (
	_ repository.ForecastPublisher = (*KafkaForecastPublisher)(nil)
	_ repository.ForecastPublisher = NopPublisher{}
)
