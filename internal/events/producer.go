// Package events mirrors live tracking events onto kafka for external
// consumers (driver-performance aggregation, long-term analytics).
// The mirror is best-effort: a full queue or broker outage drops
// frames and never blocks ingestion.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"shipment-tracker/internal/config"
	"shipment-tracker/internal/domain"
	"shipment-tracker/internal/logger"
	"shipment-tracker/internal/metrics"
)

const (
	batchSize     = 200
	flushInterval = 100 * time.Millisecond
)

type Producer struct {
	producer sarama.SyncProducer
	queue    chan *sarama.ProducerMessage
	log      *logger.Logger

	topicLocations string
	topicAdvisory  string
	topicTrips     string
}

func NewProducer(cfg *config.Config, log *logger.Logger) (*Producer, error) {
	sc := sarama.NewConfig()
	sc.Producer.RequiredAcks = sarama.WaitForLocal
	sc.Producer.Retry.Max = 3
	sc.Producer.Return.Successes = true
	sc.Producer.Compression = sarama.CompressionSnappy

	producer, err := sarama.NewSyncProducer(cfg.KafkaBrokers, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return &Producer{
		producer:       producer,
		queue:          make(chan *sarama.ProducerMessage, cfg.KafkaQueueSize),
		log:            log,
		topicLocations: cfg.KafkaTopicLocations,
		topicAdvisory:  cfg.KafkaTopicAdvisory,
		topicTrips:     cfg.KafkaTopicTrips,
	}, nil
}

func (p *Producer) Close() error {
	return p.producer.Close()
}

// EmitLocation carries both location and status frames on the
// locations topic; consumers tell them apart by the event_type header.
// Status changes share the topic so a single consumer sees the full
// per-shipment timeline in key order.
func (p *Producer) EmitLocation(ev domain.Event) { p.emit(p.topicLocations, ev) }
func (p *Producer) EmitAdvisory(ev domain.Event) { p.emit(p.topicAdvisory, ev) }
func (p *Producer) EmitTrip(ev domain.Event)     { p.emit(p.topicTrips, ev) }

func (p *Producer) emit(topic string, ev domain.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		p.log.WithError(err).Error("event marshal failed")
		return
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(ev.ShipmentID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(ev.Type)},
			{Key: []byte("timestamp"), Value: []byte(ev.Timestamp.Format(time.RFC3339))},
		},
	}

	select {
	case p.queue <- msg:
	default:
		metrics.BusQueueDrops.Add(1)
	}
}

// Run drains the queue in batches with one retry per batch.
func (p *Producer) Run(ctx context.Context) {
	batch := make([]*sarama.ProducerMessage, 0, batchSize)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-p.queue:
			if !ok {
				p.flush(batch)
				return
			}
			batch = append(batch, msg)
			if len(batch) >= batchSize {
				p.flush(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				p.flush(batch)
				batch = batch[:0]
			}

		case <-ctx.Done():
			p.flush(batch)
			return
		}
	}
}

func (p *Producer) flush(batch []*sarama.ProducerMessage) {
	if len(batch) == 0 {
		return
	}
	err := p.producer.SendMessages(batch)
	if err != nil {
		p.log.WithError(err).WithField("batch", len(batch)).Warn("kafka publish failed, retrying")
		time.Sleep(500 * time.Millisecond)
		if err = p.producer.SendMessages(batch); err != nil {
			p.log.WithError(err).WithField("batch", len(batch)).Error("kafka publish permanently failed")
			metrics.BusPublishFailures.Add(int64(len(batch)))
		}
	}
}
