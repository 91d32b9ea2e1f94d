package queue

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"demandForecastApp/internal/app/dto"
	"demandForecastApp/internal/domain/model"
	"demandForecastApp/internal/domain/useCases"
)

// KafkaConfig holds Kafka connection configuration
type KafkaConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
	BatchSize     int
	BatchTimeout  int // milliseconds
}

// OrderConsumer defines interface for consuming order events
type OrderConsumer interface {
	Subscribe(ctx context.Context) (<-chan *model.Order, error)
	Commit(ctx context.Context, order *model.Order) error
	Close() error
}

// KafkaProducer publishes orders keyed by region, so a region's orders keep
// their relative order within a partition.
type KafkaProducer struct {
	writer *kafka.Writer
}

func NewKafkaProducer(config KafkaConfig) *KafkaProducer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaProducer{writer: writer}
}

var _ useCases.OrderPublisher = (*KafkaProducer)(nil)

// PublishOrders sends a batch of orders to Kafka
func (p *KafkaProducer) PublishOrders(ctx context.Context, orders []*model.Order) error {
	msgs := make([]kafka.Message, len(orders))
	for i, o := range orders {
		data, err := json.Marshal(dto.FromModel(o))
		if err != nil {
			return err
		}
		msgs[i] = kafka.Message{
			Key:   []byte(o.Region),
			Value: data,
			Time:  time.Now(),
		}
	}
	return p.writer.WriteMessages(ctx, msgs...)
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

// messageReader is the part of *kafka.Reader the consumer depends on.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer implements OrderConsumer. A partition's offset only advances past
// a message once it and every message fetched before it from that partition
// have been acknowledged, so an order the caller failed to store is re-delivered
// after a restart even when later orders were stored.
type KafkaConsumer struct {
	reader       messageReader
	log          *zap.Logger
	mu           sync.Mutex
	pending      map[string][]kafka.Message // fetched, not yet acknowledged, by order id
	partitions   map[int]*partitionOffsets
	unacked      int
	acked        int
	batchSize    int
	batchTimeout time.Duration
}

// partitionOffsets tracks the fetched messages of one partition until they can
// be committed.
type partitionOffsets struct {
	outstanding map[int64]struct{}
	acked       []kafka.Message
}

// takeCommittable removes and returns the highest acknowledged message below the
// lowest outstanding offset, plus how many acknowledged messages it covers.
func (p *partitionOffsets) takeCommittable() (kafka.Message, int, bool) {
	low := int64(math.MaxInt64)
	for off := range p.outstanding {
		low = min(low, off)
	}
	slices.SortFunc(p.acked, func(a, b kafka.Message) int {
		return cmp.Compare(a.Offset, b.Offset)
	})
	n := 0
	for n < len(p.acked) && p.acked[n].Offset < low {
		n++
	}
	if n == 0 {
		return kafka.Message{}, 0, false
	}
	msg := p.acked[n-1]
	p.acked = slices.Clone(p.acked[n:])
	return msg, n, true
}

func NewKafkaConsumer(config KafkaConfig, log *zap.Logger) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        config.Brokers,
		Topic:          config.Topic,
		GroupID:        config.ConsumerGroup,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // explicit commits only
		StartOffset:    kafka.FirstOffset,
	})

	batchSize := config.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	batchTimeout := time.Duration(config.BatchTimeout) * time.Millisecond
	if batchTimeout <= 0 {
		batchTimeout = 3 * time.Second
	}
	return newKafkaConsumer(reader, log, batchSize, batchTimeout)
}

func newKafkaConsumer(reader messageReader, log *zap.Logger, batchSize int, batchTimeout time.Duration) *KafkaConsumer {
	return &KafkaConsumer{
		reader:       reader,
		log:          log.Named("kafka"),
		pending:      make(map[string][]kafka.Message),
		partitions:   make(map[int]*partitionOffsets),
		batchSize:    batchSize,
		batchTimeout: batchTimeout,
	}
}

func (c *KafkaConsumer) partition(n int) *partitionOffsets {
	p, ok := c.partitions[n]
	if !ok {
		p = &partitionOffsets{outstanding: make(map[int64]struct{})}
		c.partitions[n] = p
	}
	return p
}

// ackLocked moves msg to its partition's acknowledged list. c.mu must be held.
func (c *KafkaConsumer) ackLocked(msg kafka.Message) bool {
	p := c.partition(msg.Partition)
	delete(p.outstanding, msg.Offset)
	p.acked = append(p.acked, msg)
	c.acked++
	return c.acked >= c.batchSize
}

// Subscribe returns a channel of orders from Kafka. Malformed messages are logged
// and acknowledged so they cannot block the partition.
func (c *KafkaConsumer) Subscribe(ctx context.Context) (<-chan *model.Order, error) {
	orderCh := make(chan *model.Order, 1000)

	go c.startBatchCommitter(ctx)

	go func() {
		defer close(orderCh)

		for {
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() == nil {
					c.log.Error("error fetching message", zap.Error(err))
				}
				return
			}

			var payload dto.OrderDTO
			if err := json.Unmarshal(msg.Value, &payload); err != nil || payload.OrderID == "" {
				c.log.Warn("dropping malformed order message",
					zap.Int("partition", msg.Partition),
					zap.Int64("offset", msg.Offset),
					zap.Error(err),
				)
				c.mu.Lock()
				full := c.ackLocked(msg)
				c.mu.Unlock()
				if full {
					c.commitAcked(ctx)
				}
				continue
			}

			c.mu.Lock()
			c.partition(msg.Partition).outstanding[msg.Offset] = struct{}{}
			c.pending[payload.OrderID] = append(c.pending[payload.OrderID], msg)
			c.unacked++
			unacked := c.unacked
			c.mu.Unlock()

			if unacked > c.batchSize*10 {
				c.log.Warn("large number of unacknowledged messages",
					zap.Int("pending", unacked),
					zap.Int("batch_size", c.batchSize),
				)
			}

			select {
			case <-ctx.Done():
				return
			case orderCh <- payload.ToModel():
			}
		}
	}()

	return orderCh, nil
}

// startBatchCommitter periodically commits acknowledged messages.
func (c *KafkaConsumer) startBatchCommitter(ctx context.Context) {
	ticker := time.NewTicker(c.batchTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.commitAcked(context.Background())
			return
		case <-ticker.C:
			c.commitAcked(ctx)
		}
	}
}

// commitAcked commits, per partition, the highest offset every earlier fetched
// message of which has been acknowledged.
func (c *KafkaConsumer) commitAcked(ctx context.Context) {
	c.mu.Lock()
	var ready []kafka.Message
	covered := 0
	for _, p := range c.partitions {
		if msg, n, ok := p.takeCommittable(); ok {
			ready = append(ready, msg)
			covered += n
		}
	}
	c.acked -= covered
	c.mu.Unlock()

	if len(ready) == 0 {
		return
	}
	if err := c.reader.CommitMessages(ctx, ready...); err != nil {
		c.log.Error("error committing batch", zap.Int("messages", covered), zap.Error(err))
		c.mu.Lock()
		for _, msg := range ready {
			c.ackLocked(msg)
		}
		c.mu.Unlock()
		return
	}
	c.log.Debug("committed batch", zap.Int("messages", covered), zap.Int("partitions", len(ready)))
}

// Commit acknowledges that an order has been stored. Its offset is committed on
// the next full batch or tick, once no earlier message of its partition is
// still unacknowledged.
func (c *KafkaConsumer) Commit(ctx context.Context, order *model.Order) error {
	if order == nil || order.ID == "" {
		return fmt.Errorf("cannot commit nil order or order with empty ID")
	}

	c.mu.Lock()
	msgs := c.pending[order.ID]
	if len(msgs) == 0 {
		c.mu.Unlock()
		return fmt.Errorf("message for order %s not found in pending messages", order.ID)
	}
	msg := msgs[0]
	if len(msgs) == 1 {
		delete(c.pending, order.ID)
	} else {
		c.pending[order.ID] = msgs[1:]
	}
	c.unacked--
	full := c.ackLocked(msg)
	c.mu.Unlock()

	if full {
		c.commitAcked(ctx)
	}
	return nil
}

func (c *KafkaConsumer) Close() error {
	c.commitAcked(context.Background())
	return c.reader.Close()
}
