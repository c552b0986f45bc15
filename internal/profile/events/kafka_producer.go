package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	e "github.com/gartstein/bizprofile/internal/profile/errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var jsonMarshal = json.Marshal

type EventType string

const (
	SnapshotReplaced EventType = "snapshot_replaced"
	SnapshotCleared  EventType = "snapshot_cleared"
)

// Event carries one autofill bridge call. Payload holds the serialized
// collection for SnapshotReplaced and is empty for SnapshotCleared.
type Event struct {
	Type    EventType       `json:"type"`
	Device  string          `json:"device"`
	Payload json.RawMessage `json:"payload,omitempty"`
	SentAt  time.Time       `json:"sentAt"`
}

type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer is an autofill bridge that publishes snapshots to Kafka. Calls
// only enqueue; a background loop does the writes.
type Producer struct {
	writer    KafkaWriter
	device    string
	events    chan Event
	logger    *zap.Logger
	closeChan chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewProducer creates the topic if needed and starts the event loop.
func NewProducer(brokers []string, topic, device string, queueSize int, logger *zap.Logger) (*Producer, error) {
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	err = conn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     3,
		ReplicationFactor: 1,
	})
	if err != nil {
		logger.Warn("failed to create topic (may already exist)", zap.Error(err))
	}

	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.Hash{},
		Topic:    topic,
	}
	return newProducer(writer, device, queueSize, logger), nil
}

func newProducer(writer KafkaWriter, device string, queueSize int, logger *zap.Logger) *Producer {
	p := &Producer{
		writer:    writer,
		device:    device,
		events:    make(chan Event, queueSize),
		logger:    logger.Named("kafka_producer"),
		closeChan: make(chan struct{}),
		done:      make(chan struct{}),
	}
	go p.eventLoop()
	return p
}

// ReplaceAll queues the full serialized collection.
func (p *Producer) ReplaceAll(_ context.Context, payload string) error {
	return p.enqueue(Event{Type: SnapshotReplaced, Payload: json.RawMessage(payload)})
}

// ClearAll queues a request to drop the device copy.
func (p *Producer) ClearAll(_ context.Context) error {
	return p.enqueue(Event{Type: SnapshotCleared})
}

func (p *Producer) enqueue(event Event) error {
	select {
	case <-p.closeChan:
		return e.ErrClosed
	default:
	}

	event.Device = p.device
	event.SentAt = time.Now().UTC()
	select {
	case p.events <- event:
		return nil
	default:
		p.logger.Warn("Kafka producer queue full, dropping event",
			zap.String("event_type", string(event.Type)),
			zap.String("device", event.Device),
		)
		return e.ErrQueueFull
	}
}

func (p *Producer) eventLoop() {
	defer close(p.done)
	for {
		select {
		case event := <-p.events:
			p.sendEvent(context.Background(), event)
		case <-p.closeChan:
			p.drain()
			return
		}
	}
}

// drain flushes whatever was queued before Close.
func (p *Producer) drain() {
	for {
		select {
		case event := <-p.events:
			p.sendEvent(context.Background(), event)
		default:
			return
		}
	}
}

func (p *Producer) sendEvent(ctx context.Context, event Event) {
	value, err := jsonMarshal(event)
	if err != nil {
		p.logger.Error("Failed to serialize event",
			zap.Error(err),
			zap.String("event_type", string(event.Type)),
		)
		return
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Device),
		Value: value,
	})
	if err != nil {
		p.logger.Error("Failed to produce event",
			zap.Error(err),
			zap.String("event_type", string(event.Type)),
			zap.String("device", event.Device),
		)
	}
}

// Close flushes queued events and closes the writer.
func (p *Producer) Close() {
	p.closeOnce.Do(func() {
		close(p.closeChan)
		<-p.done
		if err := p.writer.Close(); err != nil {
			p.logger.Error("Failed to close Kafka writer", zap.Error(err))
		}
	})
}
