// Package kafka declares the messaging contract used by the sinks. It does
// not depend on sarama.
package kafka

import "context"

// Message is one record to publish.
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// Producer publishes records to Kafka.
type Producer interface {
	// Publish delivers msg according to the RequiredAcks policy, retrying
	// with back-off.
	Publish(ctx context.Context, msg Message) error
	// Ping refreshes cluster metadata.
	Ping(ctx context.Context) error
	Close() error
}
