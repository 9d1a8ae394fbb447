package queue

import (
	"context"
	"fmt"

	"github.com/smukkama/flood-forecast/internal/protocol"
)

// Topics names the topics refresh runs are published to
type Topics struct {
	Readings  string
	Forecasts string
}

type sender interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// Publisher encodes refresh run messages and sends them keyed by run id
type Publisher struct {
	producer sender
	topics   Topics
}

func NewPublisher(producer sender, topics Topics) *Publisher {
	return &Publisher{producer: producer, topics: topics}
}

func (p *Publisher) PublishReadings(ctx context.Context, msg *protocol.ReadingsMessage) error {
	data, err := protocol.EncodeReadingsMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to encode readings: %w", err)
	}
	return p.producer.Publish(ctx, p.topics.Readings, msg.RunID, data)
}

func (p *Publisher) PublishForecast(ctx context.Context, msg *protocol.ForecastMessage) error {
	data, err := protocol.EncodeForecastMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to encode forecast: %w", err)
	}
	return p.producer.Publish(ctx, p.topics.Forecasts, msg.RunID, data)
}
