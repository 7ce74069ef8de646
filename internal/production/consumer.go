// Package production ingests production events from a Kafka/Redpanda
// topic and turns each into a process_production call (§3.3): consume an
// event, call Server.ProcessProduction, deliver the result.
package production

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/ifreecarve/mccibus/internal/logging"
	"github.com/ifreecarve/mccibus/internal/mcci"
	"github.com/ifreecarve/mccibus/internal/metrics"
)

// Event is the wire shape of one production record's value.
type Event struct {
	VariableID uint32          `json:"variable_id"`
	ResponseID uint32          `json:"response_id"`
	Payload    json.RawMessage `json:"payload"`
}

// Config configures the underlying franz-go client.
type Config struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
}

// Consumer polls Config.Topic and calls into a bound mcci.Server for
// every record, serialised through submit exactly like the peer and
// transport ingest sources (§5).
type Consumer struct {
	client        *kgo.Client
	logger        zerolog.Logger
	server        *mcci.Server
	myNodeAddress uint32
	topic         string

	submit  func(func())
	deliver func(clientIDs []uint32, nodeAddress, variableID, revision uint32, payload json.RawMessage)

	// acquireGoroutine/releaseGoroutine gate the consume loop behind the
	// admission layer's goroutine-count semaphore (§3.4); nil disables
	// the check.
	acquireGoroutine func() bool
	releaseGoroutine func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	processed uint64
	failed    uint64
}

// NewConsumer constructs a Consumer bound to server through submit/deliver.
// acquireGoroutine/releaseGoroutine, ordinarily an admission.Guard's
// AcquireGoroutine/ReleaseGoroutine, gate the consume loop's goroutine; pass
// nil for both to disable the check.
func NewConsumer(cfg Config, server *mcci.Server, myNodeAddress uint32, logger zerolog.Logger, submit func(func()), deliver func([]uint32, uint32, uint32, uint32, json.RawMessage), acquireGoroutine func() bool, releaseGoroutine func()) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("production: at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("production: topic is required")
	}
	if cfg.ConsumerGroup == "" {
		return nil, fmt.Errorf("production: consumer group is required")
	}

	ctx, cancel := context.WithCancel(context.Background())

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
		kgo.FetchMaxWait(500*time.Millisecond),
		kgo.FetchMinBytes(1),
		kgo.FetchMaxBytes(10*1024*1024),
		kgo.SessionTimeout(30*time.Second),
		kgo.RebalanceTimeout(60*time.Second),
		kgo.OnPartitionsAssigned(func(_ context.Context, _ *kgo.Client, assigned map[string][]int32) {
			logger.Info().Interface("partitions", assigned).Msg("production: partitions assigned")
		}),
		kgo.OnPartitionsRevoked(func(_ context.Context, _ *kgo.Client, revoked map[string][]int32) {
			logger.Info().Interface("partitions", revoked).Msg("production: partitions revoked")
		}),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("production: create kafka client: %w", err)
	}

	return &Consumer{
		client:           client,
		logger:           logger,
		server:           server,
		myNodeAddress:    myNodeAddress,
		topic:            cfg.Topic,
		submit:           submit,
		deliver:          deliver,
		acquireGoroutine: acquireGoroutine,
		releaseGoroutine: releaseGoroutine,
		ctx:              ctx,
		cancel:           cancel,
	}, nil
}

// Start begins polling the topic on its own goroutine. It refuses to start
// if acquireGoroutine rejects the slot (§3.4).
func (c *Consumer) Start() error {
	if c.acquireGoroutine != nil && !c.acquireGoroutine() {
		return fmt.Errorf("production: goroutine limit exceeded, refusing to start consume loop")
	}
	c.wg.Add(1)
	go c.consumeLoop()
	return nil
}

// Stop cancels the poll loop, waits for it to return, and closes the
// client.
func (c *Consumer) Stop() {
	c.cancel()
	c.wg.Wait()
	c.client.Close()
	c.logger.Info().
		Uint64("processed", atomic.LoadUint64(&c.processed)).
		Uint64("failed", atomic.LoadUint64(&c.failed)).
		Msg("production: consumer stopped")
}

func (c *Consumer) consumeLoop() {
	// CRITICAL: panic recovery must be the first defer (it runs LAST, in
	// LIFO order), so it catches panics from the cleanup defer below too.
	defer logging.RecoverPanic(c.logger, "consumeLoop", map[string]any{
		"topic": c.topic,
	})

	defer c.wg.Done()
	if c.releaseGoroutine != nil {
		defer c.releaseGoroutine()
	}

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			fetches := c.client.PollFetches(c.ctx)
			for _, err := range fetches.Errors() {
				c.logger.Error().Err(err.Err).Str("topic", err.Topic).Int32("partition", err.Partition).Msg("production: fetch error")
			}
			fetches.EachRecord(c.processRecord)
		}
	}
}

func (c *Consumer) processRecord(record *kgo.Record) {
	var event Event
	if err := json.Unmarshal(record.Value, &event); err != nil {
		c.logger.Error().Err(err).Str("topic", record.Topic).Msg("production: malformed event")
		atomic.AddUint64(&c.failed, 1)
		return
	}

	metrics.ProductionEventsConsumedTotal.Inc()
	atomic.AddUint64(&c.processed, 1)

	pkt := mcci.ProductionPacket{
		VariableID: event.VariableID,
		ResponseID: event.ResponseID,
		Payload:    []byte(event.Payload),
	}
	c.submit(func() {
		acc, clients := c.server.ProcessProduction(0, pkt)
		c.deliver(clients, c.myNodeAddress, pkt.VariableID, acc.Revision, json.RawMessage(event.Payload))
	})
}
