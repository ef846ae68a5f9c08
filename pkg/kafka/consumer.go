package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"

	applogger "FinCast/pkg/logger"
)

// MessageHandler processes the payloads of one topic.
type MessageHandler interface {
	Topic() string
	Handle(ctx context.Context, payload []byte) error
}

// Reader is the part of *kafka.Reader the consumer needs.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type ReaderFactory func(cfg *ConsumerConfig, topic string) Reader

type ConsumerOption func(*ConsumerConfig)

type ConsumerConfig struct {
	Brokers []string
	GroupID string

	Workers int
	Buffer  int

	RetryMax      int
	BackoffMin    time.Duration
	BackoffMax    time.Duration
	HandleTimeout time.Duration

	// DeadLetterTopic receives messages that exhausted their retries. Without
	// it such messages stay uncommitted and are redelivered after a restart.
	DeadLetterTopic string

	MinBytes int
	MaxBytes int

	newReader  ReaderFactory
	deadLetter Writer
	log        *applogger.Logger
	hooks      []ConsumerHook
}

func WithConsumerBrokers(brokers []string) ConsumerOption {
	return func(c *ConsumerConfig) { c.Brokers = brokers }
}

func WithGroup(id string) ConsumerOption {
	return func(c *ConsumerConfig) {
		if id != "" {
			c.GroupID = id
		}
	}
}

// WithWorkers sets the handler goroutine count and the queue between the
// readers and them.
func WithWorkers(n, buffer int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if n > 0 {
			c.Workers = n
		}
		if buffer > 0 {
			c.Buffer = buffer
		}
	}
}

// WithRetry allows up to max extra attempts with jittered exponential
// backoff between min and maxBackoff.
func WithRetry(max int, min, maxBackoff time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.RetryMax = max
		c.BackoffMin = min
		c.BackoffMax = maxBackoff
	}
}

func WithHandleTimeout(d time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) { c.HandleTimeout = d }
}

func WithDeadLetter(topic string) ConsumerOption {
	return func(c *ConsumerConfig) { c.DeadLetterTopic = topic }
}

func WithFetchBytes(min, max int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if min > 0 {
			c.MinBytes = min
		}
		if max > 0 {
			c.MaxBytes = max
		}
	}
}

func WithConsumerLogger(l *applogger.Logger) ConsumerOption {
	return func(c *ConsumerConfig) { c.log = l }
}

// WithHooks appends lifecycle hooks; they run in the order given.
func WithHooks(hooks ...ConsumerHook) ConsumerOption {
	return func(c *ConsumerConfig) { c.hooks = append(c.hooks, hooks...) }
}

func WithReaderFactory(f ReaderFactory) ConsumerOption {
	return func(c *ConsumerConfig) { c.newReader = f }
}

func WithDeadLetterWriter(w Writer) ConsumerOption {
	return func(c *ConsumerConfig) { c.deadLetter = w }
}

type fetched struct {
	topic string
	msg   kafka.Message
}

type partitionKey struct {
	topic     string
	partition int
}

// Consumer fans messages from one reader per topic out to a worker pool.
// Messages of a partition are handled one at a time, and an offset is
// committed only once its message succeeded or reached the dead-letter topic.
type Consumer struct {
	cfg      ConsumerConfig
	l        *applogger.Logger
	hooks    hookChain
	handlers map[string]MessageHandler
	readers  map[string]Reader
	queue    chan fetched

	cancel   context.CancelFunc
	fetchWG  sync.WaitGroup
	workWG   sync.WaitGroup
	stopOnce sync.Once

	locksMu sync.Mutex
	locks   map[partitionKey]*sync.Mutex
}

func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := ConsumerConfig{
		GroupID:    "fincast",
		Workers:    1,
		Buffer:     10,
		RetryMax:   3,
		BackoffMin: 50 * time.Millisecond,
		BackoffMax: 2 * time.Second,
		MinBytes:   1,
		MaxBytes:   10e6,
		newReader:  newKafkaReader,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	if cfg.log == nil {
		cfg.log = applogger.NewNop()
	}
	if cfg.deadLetter == nil && cfg.DeadLetterTopic != "" {
		cfg.deadLetter = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.Hash{}}
	}
	registerConsumerMetrics()

	return &Consumer{
		cfg:      cfg,
		l:        cfg.log,
		hooks:    chainHooks(cfg.hooks...),
		handlers: make(map[string]MessageHandler),
		readers:  make(map[string]Reader),
		queue:    make(chan fetched, cfg.Buffer),
		locks:    make(map[partitionKey]*sync.Mutex),
	}, nil
}

func newKafkaReader(cfg *ConsumerConfig, topic string) Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.GroupID,
		MinBytes:    cfg.MinBytes,
		MaxBytes:    cfg.MaxBytes,
		StartOffset: kafka.FirstOffset,
	})
}

// RegisterHandler must be called before Start. A second handler for the same
// topic is ignored.
func (c *Consumer) RegisterHandler(h MessageHandler) {
	if _, dup := c.handlers[h.Topic()]; dup {
		c.l.Warn("kafka consumer: duplicate handler ignored", applogger.String("topic", h.Topic()))
		return
	}
	c.handlers[h.Topic()] = h
}

// Start opens the readers and workers. Handler contexts derive from ctx and
// are cancelled by Stop.
func (c *Consumer) Start(ctx context.Context) error {
	if len(c.handlers) == 0 {
		return errors.New("kafka consumer: no handlers registered")
	}
	ctx, c.cancel = context.WithCancel(ctx)

	for i := 0; i < c.cfg.Workers; i++ {
		c.workWG.Add(1)
		go c.work(ctx)
	}
	for topic := range c.handlers {
		r := c.cfg.newReader(&c.cfg, topic)
		c.readers[topic] = r
		c.fetchWG.Add(1)
		go c.fetch(ctx, topic, r)
	}
	c.l.Info("kafka consumer: started",
		applogger.String("group", c.cfg.GroupID),
		applogger.Int("workers", c.cfg.Workers),
		applogger.Int("topics", len(c.handlers)),
	)
	return nil
}

// Stop cancels fetching and waits, bounded by ctx, for in-flight messages.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		c.fetchWG.Wait()
		close(c.queue)

		done := make(chan struct{})
		go func() {
			c.workWG.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("kafka consumer: workers still busy: %w", ctx.Err())
		}

		for topic, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				c.l.Error("kafka consumer: close reader", applogger.String("topic", topic), applogger.Error(cerr))
			}
		}
		if c.cfg.deadLetter != nil {
			if cerr := c.cfg.deadLetter.Close(); cerr != nil {
				c.l.Error("kafka consumer: close dead-letter writer", applogger.Error(cerr))
			}
		}
		c.l.Info("kafka consumer: stopped")
	})
	return err
}

func (c *Consumer) fetch(ctx context.Context, topic string, r Reader) {
	defer c.fetchWG.Done()
	for {
		msg, err := r.FetchMessage(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			c.l.Error("kafka consumer: fetch", applogger.String("topic", topic), applogger.Error(err))
			if !sleepCtx(ctx, c.cfg.BackoffMin) {
				return
			}
			continue
		}
		select {
		case c.queue <- fetched{topic: topic, msg: msg}:
			consumerStats.queued.WithLabelValues(topic).Set(float64(len(c.queue)))
		case <-ctx.Done():
			return
		}
	}
}

func (c *Consumer) work(ctx context.Context) {
	defer c.workWG.Done()
	for f := range c.queue {
		if h, ok := c.handlers[f.topic]; ok {
			c.process(ctx, h, f)
		}
	}
}

func (c *Consumer) process(ctx context.Context, h MessageHandler, f fetched) {
	mu := c.partitionLock(f.topic, f.msg.Partition)
	mu.Lock()
	defer mu.Unlock()

	start := time.Now()
	d := &Delivery{Topic: f.topic, Msg: f.msg, Started: start}
	err := c.attempt(ctx, h, d)
	if ctx.Err() != nil {
		// shutting down: leave it uncommitted for redelivery
		return
	}

	result, commit := "ok", true
	if err != nil {
		c.hooks.Failed(ctx, d, err)
		result, commit = "failed", false
		if c.cfg.DeadLetterTopic != "" {
			if dlErr := c.deadLetter(ctx, f, err); dlErr != nil {
				c.l.Error("kafka consumer: dead-letter write", applogger.String("topic", c.cfg.DeadLetterTopic), applogger.Error(dlErr))
			} else {
				result, commit = "dead_lettered", true
			}
		}
	}
	consumerStats.handled.WithLabelValues(f.topic, result).Inc()
	consumerStats.latency.WithLabelValues(f.topic).Observe(time.Since(start).Seconds())

	if commit {
		c.commit(ctx, c.readers[f.topic], f.msg)
	}
}

// attempt runs the handler until it succeeds, fails permanently or runs out
// of retries.
func (c *Consumer) attempt(ctx context.Context, h MessageHandler, d *Delivery) error {
	for d.Attempt = 1; ; d.Attempt++ {
		err := c.handleOnce(ctx, h, d)
		if err == nil || d.Attempt > c.cfg.RetryMax || IsPermanent(err) || errors.Is(err, ErrHookPanic) {
			return err
		}
		if !sleepCtx(ctx, backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, d.Attempt)) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) handleOnce(ctx context.Context, h MessageHandler, d *Delivery) (err error) {
	hctx, err := c.hooks.Before(ctx, d)
	if err != nil {
		return err
	}
	if c.cfg.HandleTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(hctx, c.cfg.HandleTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = Permanent(fmt.Errorf("handler panic: %v", r))
		}
		c.hooks.After(hctx, d, err)
	}()
	return h.Handle(hctx, d.Msg.Value)
}

func (c *Consumer) deadLetter(ctx context.Context, f fetched, cause error) error {
	return c.cfg.deadLetter.WriteMessages(ctx, kafka.Message{
		Topic: c.cfg.DeadLetterTopic,
		Key:   f.msg.Key,
		Value: f.msg.Value,
		Headers: append([]kafka.Header{
			{Key: "source_topic", Value: []byte(f.topic)},
			{Key: "source_partition", Value: []byte(strconv.Itoa(f.msg.Partition))},
			{Key: "source_offset", Value: []byte(strconv.FormatInt(f.msg.Offset, 10))},
			{Key: "error", Value: []byte(cause.Error())},
		}, f.msg.Headers...),
	})
}

func (c *Consumer) commit(ctx context.Context, r Reader, msg kafka.Message) {
	const attempts = 3
	var err error
	for i := 1; i <= attempts; i++ {
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err = r.CommitMessages(cctx, msg)
		cancel()
		if err == nil {
			return
		}
		if !sleepCtx(ctx, backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, i)) {
			break
		}
	}
	c.l.Error("kafka consumer: commit failed",
		applogger.String("topic", msg.Topic),
		applogger.Int64("offset", msg.Offset),
		applogger.Error(err),
	)
}

func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	k := partitionKey{topic, partition}
	c.locksMu.Lock()
	defer c.locksMu.Unlock()
	mu, ok := c.locks[k]
	if !ok {
		mu = new(sync.Mutex)
		c.locks[k] = mu
	}
	return mu
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// backoffWithJitter doubles from min per attempt, caps at max and then
// subtracts up to half as jitter.
func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	d := max
	if attempt < 32 {
		if exp := min << uint(attempt-1); exp > 0 && exp < max {
			d = exp
		}
	}
	if half := int64(d / 2); half > 0 {
		d -= time.Duration(rand.Int63n(half))
	}
	return d
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

type consumerMetrics struct {
	queued  *prometheus.GaugeVec
	handled *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

var (
	consumerStats     consumerMetrics
	consumerStatsOnce sync.Once
)

func registerConsumerMetrics() {
	consumerStatsOnce.Do(func() {
		consumerStats = consumerMetrics{
			queued: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "fincast_kafka_consumer_queue_depth",
				Help: "Fetched messages waiting for a worker.",
			}, []string{"topic"}),
			handled: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "fincast_kafka_consumer_messages_total",
				Help: "Consumed messages by final outcome.",
			}, []string{"topic", "result"}),
			latency: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "fincast_kafka_consumer_handle_seconds",
				Help:    "Time from first attempt to final outcome.",
				Buckets: []float64{.01, .1, .5, 1, 5, 15, 30, 60, 120},
			}, []string{"topic"}),
		}
	})
}
