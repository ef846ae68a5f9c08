package logger

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"sort"
	"sync"
	"time"
)

// Publisher ships a digest to a topic. *kafka.Producer satisfies it.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type CollectionConfig struct {
	TimeInterval   time.Duration // flush interval (e.g., 30s)
	CountThreshold int           // distinct entries that force an early flush (e.g., 100)
	Topic          string        // topic the digests are sent to
	Publisher      Publisher
	Levels         []string // levels to aggregate; default error only
	Source         string   // digest source, usually the service name
	PublishTimeout time.Duration
}

// AggregatedLogEntry is one distinct (level, message, fields, caller) tuple
// and how often it was seen in the window.
type AggregatedLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogDigest is the message published per flush.
type LogDigest struct {
	Source  string               `json:"source,omitempty"`
	From    time.Time            `json:"from"`
	To      time.Time            `json:"to"`
	Total   int                  `json:"total"`
	Entries []AggregatedLogEntry `json:"entries"`
}

// LogCollector deduplicates repeated log entries and periodically publishes
// them as one digest, so an error loop costs one message per interval.
type LogCollector struct {
	config  *CollectionConfig
	levels  map[string]bool
	mu      sync.Mutex
	entries map[uint64]*AggregatedLogEntry
	order   []uint64

	ctx     context.Context
	cancel  context.CancelFunc
	loopWG  sync.WaitGroup
	sendWG  sync.WaitGroup
	dropped int64
}

func NewLogCollector(config *CollectionConfig) *LogCollector {
	if config.TimeInterval <= 0 {
		config.TimeInterval = 30 * time.Second
	}
	if config.CountThreshold <= 0 {
		config.CountThreshold = 100
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = 30 * time.Second
	}
	levels := map[string]bool{"error": true}
	if len(config.Levels) > 0 {
		levels = make(map[string]bool, len(config.Levels))
		for _, lv := range config.Levels {
			levels[lv] = true
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &LogCollector{
		config:  config,
		levels:  levels,
		entries: make(map[uint64]*AggregatedLogEntry),
		ctx:     ctx,
		cancel:  cancel,
	}

	c.loopWG.Add(1)
	go c.periodicFlush()

	return c
}

// Accepts reports whether entries of level are aggregated.
func (c *LogCollector) Accepts(level string) bool { return c.levels[level] }

func (c *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	if !c.Accepts(level) {
		return
	}
	now := time.Now()
	key := fingerprint(level, message, fields, caller)

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.Count++
		e.LastSeen = now
		return
	}
	c.entries[key] = &AggregatedLogEntry{
		Level:     level,
		Message:   message,
		Fields:    fields,
		Caller:    caller,
		Count:     1,
		FirstSeen: now,
		LastSeen:  now,
	}
	c.order = append(c.order, key)

	if len(c.entries) >= c.config.CountThreshold {
		c.sendAsync(c.takeLocked())
	}
}

// fingerprint hashes the entry identity. Field keys are sorted so map
// iteration order does not split one entry into several.
func fingerprint(level, message string, fields map[string]interface{}, caller string) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s\x00%s\x00%s", level, message, caller)
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "\x00%s=%v", k, fields[k])
	}
	return h.Sum64()
}

// takeLocked empties the window and returns it as a digest, or nil when
// there is nothing to send.
func (c *LogCollector) takeLocked() *LogDigest {
	if len(c.entries) == 0 {
		return nil
	}
	d := &LogDigest{Source: c.config.Source, Entries: make([]AggregatedLogEntry, 0, len(c.order))}
	for i, k := range c.order {
		e := c.entries[k]
		if i == 0 || e.FirstSeen.Before(d.From) {
			d.From = e.FirstSeen
		}
		if e.LastSeen.After(d.To) {
			d.To = e.LastSeen
		}
		d.Total += e.Count
		d.Entries = append(d.Entries, *e)
	}
	c.entries = make(map[uint64]*AggregatedLogEntry)
	c.order = nil
	return d
}

func (c *LogCollector) periodicFlush() {
	defer c.loopWG.Done()

	ticker := time.NewTicker(c.config.TimeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			d := c.takeLocked()
			c.mu.Unlock()
			c.sendAsync(d)
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *LogCollector) sendAsync(d *LogDigest) {
	if d == nil || c.config.Publisher == nil {
		return
	}
	c.sendWG.Add(1)
	go func() {
		defer c.sendWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.config.PublishTimeout)
		defer cancel()
		c.send(ctx, d)
	}()
}

func (c *LogCollector) send(ctx context.Context, d *LogDigest) error {
	if err := c.config.Publisher.PublishMessage(ctx, c.config.Topic, d); err != nil {
		c.mu.Lock()
		c.dropped += int64(d.Total)
		c.mu.Unlock()
		// the logger cannot log its own shipping failures
		fmt.Fprintf(os.Stderr, "log collector: publish to %s failed: %v\n", c.config.Topic, err)
		return err
	}
	return nil
}

// Flush publishes the current window synchronously.
func (c *LogCollector) Flush(ctx context.Context) error {
	c.mu.Lock()
	d := c.takeLocked()
	c.mu.Unlock()
	if d == nil || c.config.Publisher == nil {
		return nil
	}
	return c.send(ctx, d)
}

// Dropped returns how many log occurrences were lost to publish failures.
func (c *LogCollector) Dropped() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Close stops the flush loop, sends what is left and waits for in-flight
// sends.
func (c *LogCollector) Close() {
	c.cancel()
	c.loopWG.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), c.config.PublishTimeout)
	defer cancel()
	_ = c.Flush(ctx)
	c.sendWG.Wait()
}
