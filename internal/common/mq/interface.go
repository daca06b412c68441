package mq

import (
	"context"
	"time"
)

// MessageQueue is a broker connection that can both publish and consume.
type MessageQueue interface {
	Producer
	Consumer

	// Ping verifies the broker is reachable
	Ping(ctx context.Context) error

	// Close stops consumers and flushes the producer
	Close() error
}

// Producer publishes messages to a topic.
type Producer interface {
	Publish(ctx context.Context, topic string, message *Message) error
}

// Consumer delivers messages of subscribed topics to handlers.
// A message is acknowledged only after its handler returns nil.
type Consumer interface {
	SubscribeWithOptions(ctx context.Context, topic string, handler HandlerFunc, opts *SubscribeOptions) error

	// Start starts consuming messages
	Start() error

	// Stop cancels consumers and waits for in-flight handlers; unfinished messages stay unacknowledged.
	Stop() error
}

// Message represents a message in the queue
type Message struct {
	// ID is the unique identifier for the message
	ID string `json:"id"`

	// Key selects the partition; messages with the same key keep their order
	Key string `json:"key"`

	// Body is the message payload
	Body []byte `json:"body"`

	// Headers contains metadata about the message
	Headers map[string]string `json:"headers"`

	// Timestamp is when the message was created
	Timestamp time.Time `json:"timestamp"`

	// Retry information
	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`
}

// HandlerFunc processes one message; a non-nil error leaves it unacknowledged.
type HandlerFunc func(ctx context.Context, message *Message) error

// SubscribeOptions defines options for subscribing to a topic
type SubscribeOptions struct {
	// ConsumerGroup is the Kafka consumer group name
	ConsumerGroup string

	// PrefetchCount bounds the number of fetched but unacknowledged messages.
	// Default: 1
	PrefetchCount int

	// MaxRetries is the number of redeliveries after the first failure.
	// Default: 3. Negative retries until the consumer stops.
	MaxRetries int

	// RetryDelay is the first backoff step, doubled on every attempt.
	// Default: 1 second
	RetryDelay time.Duration

	// MaxRetryDelay caps the backoff.
	// Default: 30 seconds
	MaxRetryDelay time.Duration

	// DeadLetterTopic receives messages that exhausted MaxRetries
	DeadLetterTopic string
}

// SetDefaults sets default values for subscribe options
func (o *SubscribeOptions) SetDefaults() {
	if o.PrefetchCount <= 0 {
		o.PrefetchCount = 1
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = time.Second
	}
	if o.MaxRetryDelay <= 0 {
		o.MaxRetryDelay = 30 * time.Second
	}
	if o.MaxRetryDelay < o.RetryDelay {
		o.MaxRetryDelay = o.RetryDelay
	}
}

// backoff returns the wait before the given retry attempt (1-based).
func (o *SubscribeOptions) backoff(attempt int) time.Duration {
	delay := o.RetryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= o.MaxRetryDelay {
			return o.MaxRetryDelay
		}
	}
	return delay
}

// exhausted reports whether a message that failed retryCount times should stop retrying.
func (o *SubscribeOptions) exhausted(retryCount int) bool {
	return o.MaxRetries >= 0 && retryCount > o.MaxRetries
}

// NewMessage creates a new message with the given body
func NewMessage(body []byte) *Message {
	return &Message{
		Body:      body,
		Headers:   make(map[string]string),
		Timestamp: time.Now(),
	}
}

// SetHeader sets a header value
func (m *Message) SetHeader(key, value string) {
	if m.Headers == nil {
		m.Headers = make(map[string]string)
	}
	m.Headers[key] = value
}

// GetHeader retrieves a header value
func (m *Message) GetHeader(key string) (string, bool) {
	if m.Headers == nil {
		return "", false
	}
	val, ok := m.Headers[key]
	return val, ok
}
