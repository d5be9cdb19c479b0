package resync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/citygml-footprints/internal/core/model"
	obs "github.com/mohammed-shakir/citygml-footprints/internal/core/observability"
	"github.com/mohammed-shakir/citygml-footprints/internal/ingest"
	mylog "github.com/mohammed-shakir/citygml-footprints/internal/logger"
)

type Resyncer interface {
	Resync(ctx context.Context, req ingest.ResyncRequest) (ingest.Outcome, error)
}

type Config struct {
	Brokers             []string
	Topic               string
	GroupID             string
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	RebalanceTimeout    time.Duration
	InitialOffsetOldest bool
}

func (c Config) withDefaults() Config {
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = 30 * time.Second
	}
	if c.Heartbeat <= 0 {
		c.Heartbeat = 3 * time.Second
	}
	if c.RebalanceTimeout <= 0 {
		c.RebalanceTimeout = 60 * time.Second
	}
	return c
}

type Consumer struct {
	cfg   Config
	log   *slog.Logger
	svc   Resyncer
	stale *staleFilter
}

func New(cfg Config, log *slog.Logger, svc Resyncer) *Consumer {
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{cfg: cfg.withDefaults(), log: log, svc: svc, stale: newStaleFilter(0)}
}

// Start consumes until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	if c.svc == nil {
		return errors.New("resync consumer: missing service")
	}
	if len(c.cfg.Brokers) == 0 || c.cfg.Topic == "" || c.cfg.GroupID == "" {
		return errors.New("resync consumer: brokers, topic and group are required")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := &groupHandler{process: c.ProcessOne}
	ctx = mylog.WithComponent(ctx, "resync_consumer")

	c.log.InfoContext(ctx, "resync consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
			c.log.ErrorContext(ctx, "consumer error", "err", err)
			select {
			case <-time.After(2 * time.Second):
			case <-ctx.Done():
			}
		}
		if ctx.Err() != nil {
			c.log.InfoContext(ctx, "resync consumer shutting down")
			return nil
		}
	}
}

// ProcessOne handles one change event. Malformed events and areas that
// cannot be re-synced are skipped; any other failure returns an error so the
// message is retried.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	start := time.Now()

	var ev Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		obs.IncResyncEvent("invalid")
		c.log.WarnContext(ctx, "undecodable change event",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}
	if err := ev.Validate(); err != nil {
		obs.IncResyncEvent("invalid")
		c.log.WarnContext(ctx, "invalid change event", "offset", msg.Offset, "err", err)
		return nil
	}

	key := ev.key()
	if !c.stale.fresh(key, ev.TS) {
		obs.IncResyncEvent("duplicate")
		c.log.DebugContext(ctx, "stale change event", "project", ev.Project, "ts", ev.TS)
		return nil
	}

	req := ingest.ResyncRequest{Project: ev.Project, Source: ev.Source, Filter: ev.Filter}
	if ev.BBox != nil {
		req.BBox = &model.BBox{X1: ev.BBox.X1, Y1: ev.BBox.Y1, X2: ev.BBox.X2, Y2: ev.BBox.Y2, SRID: "EPSG:4326"}
	}

	out, err := c.svc.Resync(ctx, req)
	switch {
	case errors.Is(err, ingest.ErrNoExtent), errors.Is(err, ingest.ErrResyncDisabled), errors.Is(err, ingest.ErrInvalidRequest):
		obs.IncResyncEvent("skipped")
		c.log.WarnContext(ctx, "change event skipped", "project", ev.Project, "op", ev.Op, "err", err)
		return nil
	case err != nil:
		obs.IncResyncEvent("error")
		return fmt.Errorf("resync %s: %w", ev.Project, err)
	}

	c.stale.done(key, ev.TS)
	obs.IncResyncEvent("resynced")
	c.log.InfoContext(ctx, "project re-synced",
		"project", ev.Project,
		"op", ev.Op,
		"import_id", out.ImportID,
		"buildings", len(out.Result.Buildings),
		"success", out.Result.Success,
		"duration", time.Since(start))
	return nil
}
