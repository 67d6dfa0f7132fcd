// Package kafkasink publishes accountsec audit events to Kafka.
//
// Events are JSON-encoded and keyed by account ID, so one account's events
// land on one partition in emission order. Publishing is asynchronous;
// delivery failures are logged and counted, never returned to the engine.
package kafkasink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/MrEthical07/accountsec"
)

// Config selects the brokers and topic.
type Config struct {
	Brokers []string
	Topic   string
	// ClientID defaults to "accountsec".
	ClientID string
}

// Sink is an [accountsec.AuditSink] backed by a sarama AsyncProducer.
type Sink struct {
	producer sarama.AsyncProducer
	topic    string
	logger   *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	published atomic.Uint64
	failed    atomic.Uint64
}

var _ accountsec.AuditSink = (*Sink)(nil)

// New connects an async producer to cfg.Brokers.
func New(cfg Config, logger *zap.Logger) (*Sink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafkasink: at least one broker required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafkasink: topic required")
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.ClientID = cfg.ClientID
	if saramaConfig.ClientID == "" {
		saramaConfig.ClientID = "accountsec"
	}
	saramaConfig.Version = sarama.V3_5_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Flush.Frequency = 100 * time.Millisecond
	saramaConfig.Producer.Flush.Messages = 100
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Return.Successes = false
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Metadata.Retry.Max = 3
	saramaConfig.Metadata.Retry.Backoff = 250 * time.Millisecond

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("kafka audit sink initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic),
	)
	return NewWithProducer(producer, cfg.Topic, logger), nil
}

// NewWithProducer wraps an existing producer. The producer must have
// Producer.Return.Successes disabled. The Sink owns it from here on.
func NewWithProducer(producer sarama.AsyncProducer, topic string, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Sink{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
	s.wg.Add(1)
	go s.handleErrors()
	return s
}

func (s *Sink) handleErrors() {
	defer s.wg.Done()
	for perr := range s.producer.Errors() {
		if perr == nil {
			continue
		}
		s.failed.Add(1)
		fields := []zap.Field{zap.Error(perr.Err)}
		if perr.Msg != nil {
			fields = append(fields,
				zap.String("topic", perr.Msg.Topic),
				zap.Int32("partition", perr.Msg.Partition),
			)
		}
		s.logger.Error("kafka audit publish failed", fields...)
	}
}

// Emit queues event for publishing. It blocks only while the producer's input
// buffer is full, and gives up when ctx is done.
func (s *Sink) Emit(ctx context.Context, event accountsec.AuditEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.failed.Add(1)
		s.logger.Error("kafka audit encode failed", zap.String("type", event.Type), zap.Error(err))
		return
	}

	msg := &sarama.ProducerMessage{
		Topic:     s.topic,
		Value:     sarama.ByteEncoder(payload),
		Timestamp: event.Timestamp,
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.Type)},
		},
	}
	if event.AccountID != "" {
		msg.Key = sarama.StringEncoder(event.AccountID)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.failed.Add(1)
		return
	}
	select {
	case s.producer.Input() <- msg:
		s.published.Add(1)
	case <-ctx.Done():
		s.failed.Add(1)
	}
}

// Published returns how many events were handed to the producer.
func (s *Sink) Published() uint64 { return s.published.Load() }

// Failed returns how many events could not be encoded, queued or delivered.
func (s *Sink) Failed() uint64 { return s.failed.Load() }

// Close flushes buffered messages and shuts the producer down. Events emitted
// after Close are counted as failed.
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.producer.Close()
	s.wg.Wait()
	if err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
