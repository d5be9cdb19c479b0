// Package kafka publishes building records to a Kafka topic, one message per
// building, keyed so that neighbouring buildings share a partition.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/citygml-footprints/internal/citygml"
	"github.com/mohammed-shakir/citygml-footprints/internal/core/observability"
	"github.com/mohammed-shakir/citygml-footprints/internal/sink"
)

const sinkName = "kafka"

type Config struct {
	Brokers   []string
	Topic     string
	ParentRes int // resolution of the partition key cell
	BatchSize int
}

func (c Config) withDefaults() Config {
	if c.ParentRes <= 0 {
		c.ParentRes = 5
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 500
	}
	return c
}

type ParentMapper interface {
	ToParent(cell string, parentRes int) (string, error)
}

// Message is the wire format of one building event.
type Message struct {
	ImportID string                 `json:"importId"`
	Project  string                 `json:"project"`
	Source   string                 `json:"source,omitempty"`
	TS       time.Time              `json:"ts"`
	Building citygml.BuildingRecord `json:"building"`
}

type Publisher struct {
	cfg    Config
	prod   sarama.SyncProducer
	mapper ParentMapper
	log    *slog.Logger
}

func New(cfg Config, m ParentMapper, log *slog.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("kafka publisher: brokers and topic are required")
	}
	sc := sarama.NewConfig()
	sc.Version = sarama.V2_5_0_0
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Idempotent = true
	sc.Net.MaxOpenRequests = 1
	sc.Producer.Retry.Max = 5
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.Compression = sarama.CompressionSnappy

	prod, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("kafka publisher: create sync producer: %w", err)
	}
	return NewWithProducer(prod, cfg, m, log), nil
}

// NewWithProducer wraps an existing producer (tests use sarama/mocks).
func NewWithProducer(prod sarama.SyncProducer, cfg Config, m ParentMapper, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{cfg: cfg.withDefaults(), prod: prod, mapper: m, log: log}
}

func (p *Publisher) Name() string { return sinkName }

func (p *Publisher) Write(ctx context.Context, b sink.Batch) error {
	if len(b.Records) == 0 {
		return nil
	}
	ts := b.At
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	sent := 0
	for start := 0; start < len(b.Records); start += p.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			observability.AddSinkRecords(sinkName, len(b.Records)-sent, err)
			return err
		}
		end := min(start+p.cfg.BatchSize, len(b.Records))

		msgs := make([]*sarama.ProducerMessage, 0, end-start)
		for _, rec := range b.Records[start:end] {
			m, err := p.message(b, ts, rec)
			if err != nil {
				observability.AddSinkRecords(sinkName, len(b.Records)-sent, err)
				return err
			}
			msgs = append(msgs, m)
		}

		if err := p.prod.SendMessages(msgs); err != nil {
			failed := len(msgs)
			var perrs sarama.ProducerErrors
			if errors.As(err, &perrs) {
				failed = len(perrs)
			}
			observability.AddSinkRecords(sinkName, len(msgs)-failed, nil)
			observability.AddSinkRecords(sinkName, failed+len(b.Records)-end, err)
			return fmt.Errorf("kafka publish (%d of %d failed): %w", failed, len(msgs), err)
		}
		observability.AddSinkRecords(sinkName, len(msgs), nil)
		sent = end
	}

	p.log.Debug("published buildings",
		"import_id", b.ImportID,
		"topic", p.cfg.Topic,
		"count", len(b.Records))
	return nil
}

func (p *Publisher) message(b sink.Batch, ts time.Time, rec citygml.BuildingRecord) (*sarama.ProducerMessage, error) {
	body, err := json.Marshal(Message{
		ImportID: b.ImportID,
		Project:  b.Project,
		Source:   b.Source,
		TS:       ts,
		Building: rec,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal building %s: %w", rec.ID, err)
	}
	return &sarama.ProducerMessage{
		Topic:     p.cfg.Topic,
		Key:       sarama.StringEncoder(p.key(b.Project, rec)),
		Value:     sarama.ByteEncoder(body),
		Timestamp: ts,
		Headers: []sarama.RecordHeader{
			{Key: []byte("import_id"), Value: []byte(b.ImportID)},
			{Key: []byte("project"), Value: []byte(b.Project)},
		},
	}, nil
}

// key is the parent H3 cell, or project/id for records without a cell.
func (p *Publisher) key(project string, rec citygml.BuildingRecord) string {
	if rec.H3Cell != "" && p.mapper != nil {
		parent, err := p.mapper.ToParent(rec.H3Cell, p.cfg.ParentRes)
		if err == nil {
			return parent
		}
		p.log.Debug("partition key fallback", "cell", rec.H3Cell, "err", err)
	}
	return project + "/" + rec.ID
}

func (p *Publisher) Close() error {
	if err := p.prod.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
