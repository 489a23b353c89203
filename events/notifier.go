// Package events publishes a notification for every recorded feedback row.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"story_feedback_collector/logging"
)

const (
	FlowSaveFeedback = "save-feedback"
	FlowAnalyze      = "analyze"
)

// FeedbackRecorded is emitted after a row was appended.
type FeedbackRecorded struct {
	Flow          string    `json:"flow"`
	Timestamp     time.Time `json:"timestamp"`
	UserStory     string    `json:"userStory"`
	FeedbackCount int       `json:"feedbackCount"`
	TraceID       string    `json:"traceId,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, event FeedbackRecorded) error
	Close() error
}

type Config struct {
	Brokers []string
	Topic   string
	// QueueSize bounds the messages waiting for delivery. Defaults to 256.
	QueueSize int
	// PublishTimeout bounds one delivery attempt. Defaults to 5s.
	PublishTimeout time.Duration
	Logger         *logging.Logger
}

var (
	ErrQueueFull = errors.New("notification queue is full")
	ErrClosed    = errors.New("notifier is closed")
)

const (
	defaultQueueSize      = 256
	defaultPublishTimeout = 5 * time.Second
)

// New returns a Kafka notifier, or a no-op one when no brokers are set.
func New(cfg Config) Notifier {
	if len(cfg.Brokers) == 0 {
		return Nop{}
	}
	return NewKafkaNotifier(cfg)
}

// KafkaNotifier queues events and delivers them from a background goroutine,
// so Notify never waits on the broker.
type KafkaNotifier struct {
	writer  *kafka.Writer
	logger  *logging.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan kafka.Message
	done   chan struct{}

	closeOnce sync.Once
	closeErr  error
}

func NewKafkaNotifier(cfg Config) *KafkaNotifier {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		WriteTimeout: cfg.PublishTimeout,
	}
	k := &KafkaNotifier{
		writer:  writer,
		logger:  cfg.Logger,
		timeout: cfg.PublishTimeout,
		queue:   make(chan kafka.Message, cfg.QueueSize),
		done:    make(chan struct{}),
	}
	go k.run()
	return k
}

// Notify enqueues the event. It fails only when the queue is full or closed.
func (k *KafkaNotifier) Notify(_ context.Context, event FeedbackRecorded) error {
	msg, err := Encode(event)
	if err != nil {
		return err
	}

	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.closed {
		return ErrClosed
	}
	select {
	case k.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

func (k *KafkaNotifier) run() {
	defer close(k.done)
	for msg := range k.queue {
		ctx := logging.ContextWithTraceID(context.Background(), string(msg.Key))
		if err := k.publish(ctx, msg); err != nil {
			k.logger.Warn(ctx, "feedback notification failed", zap.String("topic", k.writer.Topic), zap.Error(err))
		}
	}
}

func (k *KafkaNotifier) publish(ctx context.Context, msg kafka.Message) error {
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Close stops accepting events, drains the queue and closes the writer.
func (k *KafkaNotifier) Close() error {
	k.closeOnce.Do(func() {
		k.mu.Lock()
		k.closed = true
		close(k.queue)
		k.mu.Unlock()

		<-k.done
		k.closeErr = k.writer.Close()
	})
	return k.closeErr
}

// Encode keys the message by trace id so retries of one request land together.
func Encode(event FeedbackRecorded) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal message: %w", err)
	}
	msg := kafka.Message{Value: value}
	if event.TraceID != "" {
		msg.Key = []byte(event.TraceID)
	}
	return msg, nil
}

type Nop struct{}

func (Nop) Notify(context.Context, FeedbackRecorded) error { return nil }

func (Nop) Close() error { return nil }
