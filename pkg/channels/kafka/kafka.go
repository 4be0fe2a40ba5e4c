// Package kafka provides the Kafka channel used to relay execution
// events to external consumers.
package kafka

import (
	"errors"
	"os"
	"strings"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
)

// Config carries the broker settings for the relay channel.
type Config struct {
	Brokers       []string
	ConsumerGroup string
	ClientID      string
}

// ConfigFromEnv reads the broker list from KAFKA_BROKERS and derives
// the consumer group and client id from the service name.
func ConfigFromEnv(serviceName string) (Config, error) {
	brokers := strings.Split(os.Getenv("KAFKA_BROKERS"), ",")
	if len(brokers) == 0 || brokers[0] == "" {
		return Config{}, errors.New("KAFKA_BROKERS environment variable is not set or empty")
	}

	return Config{
		Brokers:       brokers,
		ConsumerGroup: serviceName + "-executions",
		ClientID:      serviceName,
	}, nil
}

// CreateChannel builds the publisher and subscriber pair relaying
// execution lifecycle events through Kafka, configured from the
// environment.
func CreateChannel(logger watermill.LoggerAdapter, serviceName string) (*kafka.Publisher, *kafka.Subscriber, error) {
	cfg, err := ConfigFromEnv(serviceName)
	if err != nil {
		return nil, nil, err
	}

	return NewChannel(logger, cfg)
}

// NewChannel builds the publisher and subscriber pair from an explicit
// config.
func NewChannel(logger watermill.LoggerAdapter, cfg Config) (*kafka.Publisher, *kafka.Subscriber, error) {
	subscriberConfig := kafka.DefaultSaramaSubscriberConfig()
	subscriberConfig.ClientID = cfg.ClientID
	// New consumer groups replay the full execution event history.
	subscriberConfig.Consumer.Offsets.Initial = sarama.OffsetOldest

	subscriber, err := kafka.NewSubscriber(
		kafka.SubscriberConfig{
			Brokers:               cfg.Brokers,
			Unmarshaler:           kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: subscriberConfig,
			ConsumerGroup:         cfg.ConsumerGroup,
			OTELEnabled:           true,
		},
		logger,
	)
	if err != nil {
		return nil, nil, err
	}

	publisherConfig := sarama.NewConfig()
	publisherConfig.ClientID = cfg.ClientID
	publisherConfig.Producer.Return.Successes = true

	publisher, err := kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:               cfg.Brokers,
			Marshaler:             kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: publisherConfig,
			OTELEnabled:           true,
		},
		logger,
	)
	if err != nil {
		return nil, nil, err
	}

	return publisher, subscriber, nil
}
