package pubsub

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/choiseongjun/chat-with-stream/pkg/log"
)

// kafkaSubscription tracks a single consumer subscription.
type kafkaSubscription struct {
	consumer *kafka.Consumer
	cancel   context.CancelFunc
	done     chan struct{}
}

// KafkaPubSub implements PubSub interface using Apache Kafka.
//
// A channel maps to a topic (see TopicForChannel). Every subscriber uses the
// configured group ID, which must be unique per node, and starts from the
// latest offset: a fresh subscription never replays missed messages.
type KafkaPubSub struct {
	producer      *kafka.Producer
	subscriptions map[*kafkaSubscription]struct{}
	config        KafkaConfig
	mu            sync.Mutex
	closed        bool
	doneCh        chan struct{}
}

// NewKafkaPubSub creates a new Kafka-based PubSub instance.
func NewKafkaPubSub(cfg KafkaConfig) (*KafkaPubSub, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
		"acks":              "1",
		"linger.ms":         5,
		"compression.type":  "snappy",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	kps := &KafkaPubSub{
		producer:      p,
		subscriptions: make(map[*kafkaSubscription]struct{}),
		config:        cfg,
		doneCh:        make(chan struct{}),
	}

	go kps.deliveryReportHandler()

	if err := kps.ensureTopics(cfg.Topics); err != nil {
		l := log.L()
		l.Warn().Err(err).Msg("failed to ensure kafka topics (may already exist)")
	}

	return kps, nil
}

// ensureTopics creates the given topics if they don't exist.
func (k *KafkaPubSub) ensureTopics(topics []string) error {
	if len(topics) == 0 {
		return nil
	}

	admin, err := kafka.NewAdminClient(&kafka.ConfigMap{
		"bootstrap.servers": k.config.Brokers,
	})
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	partitions := k.config.Partitions
	if partitions <= 0 {
		partitions = 4
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	specs := make([]kafka.TopicSpecification, 0, len(topics))
	for _, t := range topics {
		specs = append(specs, kafka.TopicSpecification{
			Topic:             t,
			NumPartitions:     partitions,
			ReplicationFactor: 1,
		})
	}

	results, err := admin.CreateTopics(ctx, specs)
	if err != nil {
		return fmt.Errorf("failed to create topics: %w", err)
	}

	for _, r := range results {
		if r.Error.Code() != kafka.ErrNoError && r.Error.Code() != kafka.ErrTopicAlreadyExists {
			l := log.L()
			l.Warn().Str("topic", r.Topic).Str("error", r.Error.String()).Msg("failed to create kafka topic")
		}
	}

	return nil
}

// deliveryReportHandler processes delivery reports from the producer.
func (k *KafkaPubSub) deliveryReportHandler() {
	for e := range k.producer.Events() {
		if ev, ok := e.(*kafka.Message); ok && ev.TopicPartition.Error != nil {
			l := log.L()
			l.Error().Err(ev.TopicPartition.Error).Str(log.FieldDriver, DriverKafka).Msg("kafka delivery failed")
		}
	}
	close(k.doneCh)
}

// Publish produces the payload to the channel's topic keyed by msg.Key.
func (k *KafkaPubSub) Publish(ctx context.Context, msg *Message) error {
	topic := TopicForChannel(msg.Channel)

	km := &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &topic,
			Partition: kafka.PartitionAny,
		},
		Value: msg.Payload,
	}
	if msg.Key != "" {
		km.Key = []byte(msg.Key)
	}

	if err := k.producer.Produce(km, nil); err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}

	return nil
}

// Subscribe creates a consumer for the channel's topic.
func (k *KafkaPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Message, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return nil, ErrClosed
	}

	groupID := k.config.GroupID
	if groupID == "" {
		groupID = "pubsub-default"
	}

	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":       k.config.Brokers,
		"group.id":                sanitizeName(groupID),
		"auto.offset.reset":       "latest",
		"enable.auto.commit":      true,
		"auto.commit.interval.ms": 5000,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	topic := TopicForChannel(channel)
	if err := c.Subscribe(topic, nil); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &kafkaSubscription{consumer: c, cancel: cancel, done: make(chan struct{})}
	k.subscriptions[sub] = struct{}{}

	msgCh := make(chan *Message, 100)
	go k.consumeMessages(subCtx, sub, channel, msgCh)

	return msgCh, nil
}

// consumeMessages polls Kafka and forwards messages to msgCh. A fatal Kafka
// error ends the stream.
func (k *KafkaPubSub) consumeMessages(ctx context.Context, sub *kafkaSubscription, channel string, msgCh chan<- *Message) {
	defer close(msgCh)
	defer close(sub.done)
	defer func() {
		k.mu.Lock()
		delete(k.subscriptions, sub)
		k.mu.Unlock()
		sub.consumer.Close()
	}()

	l := log.L()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ev := sub.consumer.Poll(500)
		if ev == nil {
			continue
		}

		switch e := ev.(type) {
		case *kafka.Message:
			m := &Message{Channel: channel, Key: string(e.Key), Payload: e.Value}
			select {
			case msgCh <- m:
			case <-ctx.Done():
				return
			}

		case kafka.Error:
			l.Error().Str(log.FieldDriver, DriverKafka).Int("code", int(e.Code())).Bool("fatal", e.IsFatal()).Msg(e.Error())
			if e.IsFatal() {
				return
			}

		default:
			// Offsets committed, rebalances and stats are not relevant here.
		}
	}
}

// Close closes all subscriptions and the producer.
func (k *KafkaPubSub) Close() error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil
	}
	k.closed = true
	subs := make([]*kafkaSubscription, 0, len(k.subscriptions))
	for sub := range k.subscriptions {
		subs = append(subs, sub)
	}
	k.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
		<-sub.done
	}

	k.producer.Flush(5000)
	k.producer.Close()
	<-k.doneCh

	return nil
}

var nameRegexp = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// sanitizeName replaces characters not suitable for Kafka topic and group names.
func sanitizeName(s string) string {
	return nameRegexp.ReplaceAllString(s, "-")
}
