package kafka

import (
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type ProducerOption func(*ProducerConfig)

// ProducerConfig tunes the underlying kafka.Writer. Messages are always
// partitioned by key hash so one symbol stays ordered.
type ProducerConfig struct {
	Brokers []string

	RequiredAcks int
	MaxAttempts  int
	Codec        string

	BatchSize    int
	BatchBytes   int
	Linger       time.Duration
	WriteTimeout time.Duration
	ReadTimeout  time.Duration

	Async      bool
	AutoCreate bool
}

func WithBrokers(brokers []string) ProducerOption {
	return func(c *ProducerConfig) { c.Brokers = brokers }
}

// WithDelivery sets acks (-1 waits for all replicas) and writer attempts.
func WithDelivery(acks, attempts int) ProducerOption {
	return func(c *ProducerConfig) {
		c.RequiredAcks = acks
		if attempts > 0 {
			c.MaxAttempts = attempts
		}
	}
}

// WithCompression picks gzip, snappy, lz4 or zstd. Empty keeps the default.
func WithCompression(codec string) ProducerOption {
	return func(c *ProducerConfig) {
		if codec != "" {
			c.Codec = codec
		}
	}
}

// WithBatching controls when a partial batch is flushed.
func WithBatching(size, bytes int, linger time.Duration) ProducerOption {
	return func(c *ProducerConfig) {
		if size > 0 {
			c.BatchSize = size
		}
		if bytes > 0 {
			c.BatchBytes = bytes
		}
		if linger > 0 {
			c.Linger = linger
		}
	}
}

func WithTimeouts(write, read time.Duration) ProducerOption {
	return func(c *ProducerConfig) {
		if write > 0 {
			c.WriteTimeout = write
		}
		if read > 0 {
			c.ReadTimeout = read
		}
	}
}

// WithAsync makes Publish return before the broker acknowledges.
func WithAsync(async bool) ProducerOption {
	return func(c *ProducerConfig) { c.Async = async }
}

func WithAutoCreateTopics(enabled bool) ProducerOption {
	return func(c *ProducerConfig) { c.AutoCreate = enabled }
}

func codecFor(name string) (kafka.Compression, error) {
	switch name {
	case "gzip":
		return kafka.Gzip, nil
	case "snappy":
		return kafka.Snappy, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	}
	return 0, fmt.Errorf("kafka: unknown compression %q", name)
}
