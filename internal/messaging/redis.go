package messaging

import (
	"time"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewRedisPublisher publishes messages to Redis streams named after the topic.
func NewRedisPublisher(client redis.UniversalClient, logger *zap.Logger) (message.Publisher, error) {
	return redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client:     client,
			Marshaller: redisstream.DefaultMarshallerUnmarshaller{},
		},
		NewZapLogger(logger),
	)
}

// NewRedisSubscriber reads Redis streams as part of consumerGroup, so several
// processes share the work of one topic. A nacked message is resent after a
// short pause.
func NewRedisSubscriber(client redis.UniversalClient, consumerGroup string, logger *zap.Logger) (message.Subscriber, error) {
	return redisstream.NewSubscriber(
		redisstream.SubscriberConfig{
			Client:          client,
			Unmarshaller:    redisstream.DefaultMarshallerUnmarshaller{},
			ConsumerGroup:   consumerGroup,
			NackResendSleep: time.Second,
		},
		NewZapLogger(logger),
	)
}
