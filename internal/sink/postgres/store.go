// Package postgres persists building records and answers project extent
// queries used by re-sync.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mohammed-shakir/citygml-footprints/internal/citygml"
	"github.com/mohammed-shakir/citygml-footprints/internal/core/observability"
	"github.com/mohammed-shakir/citygml-footprints/internal/sink"
)

const sinkName = "postgres"

const schema = `
CREATE TABLE IF NOT EXISTS citygml_buildings (
	project       TEXT NOT NULL,
	source        TEXT NOT NULL DEFAULT '',
	building_id   TEXT NOT NULL,
	import_id     TEXT NOT NULL,
	height        DOUBLE PRECISION NOT NULL,
	floors        INTEGER NOT NULL,
	year_built    INTEGER NOT NULL,
	building_type TEXT NOT NULL,
	ground_level  DOUBLE PRECISION NOT NULL,
	roof_type     TEXT NOT NULL DEFAULT '',
	standard      TEXT NOT NULL DEFAULT '',
	h3_cell       TEXT NOT NULL DEFAULT '',
	defaulted     TEXT[] NOT NULL DEFAULT '{}',
	geometry      JSONB NOT NULL,
	north         DOUBLE PRECISION,
	south         DOUBLE PRECISION,
	east          DOUBLE PRECISION,
	west          DOUBLE PRECISION,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (project, source, building_id)
);
CREATE INDEX IF NOT EXISTS citygml_buildings_h3 ON citygml_buildings (project, h3_cell);
`

const upsertSQL = `
INSERT INTO citygml_buildings (
	project, source, building_id, import_id, height, floors, year_built, building_type,
	ground_level, roof_type, standard, h3_cell, defaulted, geometry, north, south, east, west, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, now())
ON CONFLICT (project, source, building_id) DO UPDATE
SET import_id = EXCLUDED.import_id, height = EXCLUDED.height, floors = EXCLUDED.floors,
    year_built = EXCLUDED.year_built, building_type = EXCLUDED.building_type,
    ground_level = EXCLUDED.ground_level, roof_type = EXCLUDED.roof_type,
    standard = EXCLUDED.standard, h3_cell = EXCLUDED.h3_cell, defaulted = EXCLUDED.defaulted,
    geometry = EXCLUDED.geometry, north = EXCLUDED.north, south = EXCLUDED.south,
    east = EXCLUDED.east, west = EXCLUDED.west, updated_at = now()
`

type Store struct {
	pool      *pgxpool.Pool
	batchSize int
	log       *slog.Logger
}

func New(ctx context.Context, dsn string, batchSize int, log *slog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{pool: pool, batchSize: batchSize, log: log}, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *Store) Name() string { return sinkName }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Write upserts the records in transactions of at most batchSize rows. A
// failed chunk rolls back alone; earlier chunks stay committed.
func (s *Store) Write(ctx context.Context, b sink.Batch) error {
	if b.Project == "" {
		return errors.New("postgres sink: project is required")
	}
	for start := 0; start < len(b.Records); start += s.batchSize {
		end := min(start+s.batchSize, len(b.Records))
		chunk := b.Records[start:end]
		if err := s.writeChunk(ctx, b, chunk); err != nil {
			observability.AddSinkRecords(sinkName, len(b.Records)-start, err)
			return err
		}
		observability.AddSinkRecords(sinkName, len(chunk), nil)
	}
	s.log.Debug("stored buildings", "import_id", b.ImportID, "project", b.Project, "count", len(b.Records))
	return nil
}

func (s *Store) writeChunk(ctx context.Context, b sink.Batch, recs []citygml.BuildingRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, rec := range recs {
		args, err := rowArgs(b, rec)
		if err != nil {
			return err
		}
		batch.Queue(upsertSQL, args...)
	}
	br := tx.SendBatch(ctx, batch)
	for _, rec := range recs {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("upsert %s: %w", rec.ID, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("batch close: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func rowArgs(b sink.Batch, rec citygml.BuildingRecord) ([]any, error) {
	geom, err := json.Marshal(rec.Geometry)
	if err != nil {
		return nil, fmt.Errorf("marshal geometry %s: %w", rec.ID, err)
	}
	defaulted := rec.Defaulted
	if defaulted == nil {
		defaulted = []string{}
	}
	var north, south, east, west *float64
	if rec.Bounds != nil && rec.Bounds.IsSet() {
		north, south, east, west = &rec.Bounds.North, &rec.Bounds.South, &rec.Bounds.East, &rec.Bounds.West
	}
	a := rec.Attributes
	return []any{
		b.Project, b.Source, rec.ID, b.ImportID,
		a.Height, a.Floors, a.YearBuilt, a.BuildingType,
		a.GroundLevel, a.RoofType, a.Standard, rec.H3Cell, defaulted, geom,
		north, south, east, west,
	}, nil
}

// ProjectBounds returns the extent of everything stored for a project,
// optionally narrowed to one source. ok is false when nothing is stored.
func (s *Store) ProjectBounds(ctx context.Context, project, source string) (citygml.Bounds, bool, error) {
	var north, south, east, west *float64
	err := s.pool.QueryRow(ctx, `
		SELECT max(north), min(south), max(east), min(west)
		FROM citygml_buildings
		WHERE project = $1 AND ($2 = '' OR source = $2) AND north IS NOT NULL
	`, project, source).Scan(&north, &south, &east, &west)
	if err != nil {
		return citygml.Bounds{}, false, fmt.Errorf("project bounds: %w", err)
	}
	if north == nil || south == nil || east == nil || west == nil {
		return citygml.NewBounds(), false, nil
	}
	return citygml.Bounds{North: *north, South: *south, East: *east, West: *west}, true, nil
}

// Close releases pool resources.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
