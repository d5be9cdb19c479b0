// Package ingest runs one import end to end: cache lookup, extraction, H3
// annotation and delivery to the configured sinks.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mohammed-shakir/citygml-footprints/internal/cache/keys"
	"github.com/mohammed-shakir/citygml-footprints/internal/citygml"
	"github.com/mohammed-shakir/citygml-footprints/internal/core/executor"
	"github.com/mohammed-shakir/citygml-footprints/internal/core/model"
	"github.com/mohammed-shakir/citygml-footprints/internal/crs"
	"github.com/mohammed-shakir/citygml-footprints/internal/logger"
	"github.com/mohammed-shakir/citygml-footprints/internal/mapping"
	"github.com/mohammed-shakir/citygml-footprints/internal/sink"
)

var (
	ErrInvalidRequest = errors.New("invalid import request")
	ErrNoExtent       = errors.New("no stored extent for project")
	ErrResyncDisabled = errors.New("re-sync is not configured")
	ErrUpstream       = errors.New("upstream fetch failed")
	ErrDelivery       = errors.New("delivery to sink failed")
)

type Parser interface {
	Parse(ctx context.Context, data []byte) citygml.ProcessingResult
	Table() *mapping.Table
}

type CellMapper interface {
	CellForFootprint(rings []citygml.Ring, res int) (string, error)
}

type ResultCache interface {
	Get(ctx context.Context, key string) (citygml.ProcessingResult, bool)
	Put(ctx context.Context, key string, res citygml.ProcessingResult)
}

type BoundsSource interface {
	ProjectBounds(ctx context.Context, project, source string) (citygml.Bounds, bool, error)
}

type WFSConfig struct {
	TypeName string
	Version  string
	SRSName  string
	Count    int
}

type Options struct {
	Logger *slog.Logger
	Mapper CellMapper // nil disables H3 annotation
	H3Res  int
	Cache  ResultCache
	Sinks  []sink.Sink
	Bounds BoundsSource
	WFS    executor.Interface
	WFSCfg WFSConfig
	Now    func() time.Time
}

type ImportRequest struct {
	Project  string
	Source   string
	Document []byte
}

type ResyncRequest struct {
	Project string
	Source  string
	BBox    *model.BBox // nil uses the stored project extent
	Filter  string      // CQL, replaces the bbox upstream when set
}

// Outcome carries the extraction result even when delivery failed.
type Outcome struct {
	ImportID  string                   `json:"importId"`
	Result    citygml.ProcessingResult `json:"result"`
	Cached    bool                     `json:"cached"`
	Delivered []string                 `json:"delivered,omitempty"`
}

type Service struct {
	parser Parser
	opts   Options
	log    *slog.Logger
}

func New(p Parser, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.H3Res < 0 || opts.H3Res > 15 {
		opts.H3Res = 9
	}
	return &Service{parser: p, opts: opts, log: opts.Logger}
}

// Process extracts one document. A document-level failure is reported in
// Outcome.Result with a nil error; the error is reserved for bad requests and
// sink delivery failures.
func (s *Service) Process(ctx context.Context, req ImportRequest) (Outcome, error) {
	if strings.TrimSpace(req.Project) == "" {
		return Outcome{}, fmt.Errorf("%w: project is required", ErrInvalidRequest)
	}
	if len(req.Document) == 0 {
		return Outcome{}, fmt.Errorf("%w: empty document", ErrInvalidRequest)
	}

	out := Outcome{ImportID: newImportID()}
	ctx = logger.WithImportID(ctx, out.ImportID)
	ctx = logger.WithProject(ctx, req.Project)
	ctx = logger.WithDocument(ctx, keys.DocumentHash(req.Document))

	key := keys.Result(req.Project, req.Document, s.settings())
	if s.opts.Cache != nil {
		if res, ok := s.opts.Cache.Get(ctx, key); ok {
			out.Result, out.Cached = res, true
			s.log.DebugContext(ctx, "result cache hit", "key", key)
		}
	}
	if !out.Cached {
		out.Result = s.parser.Parse(ctx, req.Document)
		if out.Result.Success {
			s.annotate(ctx, out.Result.Buildings)
			if s.opts.Cache != nil {
				s.opts.Cache.Put(ctx, key, out.Result)
			}
		}
	}
	if !out.Result.Success {
		return out, nil
	}

	var errs []error
	batch := sink.Batch{
		ImportID: out.ImportID,
		Project:  req.Project,
		Source:   req.Source,
		At:       s.opts.Now().UTC(),
		Records:  out.Result.Buildings,
	}
	for _, sk := range s.opts.Sinks {
		if err := sk.Write(ctx, batch); err != nil {
			s.log.ErrorContext(ctx, "sink delivery failed", "sink", sk.Name(), "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", sk.Name(), err))
			continue
		}
		out.Delivered = append(out.Delivered, sk.Name())
	}
	if len(errs) > 0 {
		return out, fmt.Errorf("%w: %w", ErrDelivery, errors.Join(errs...))
	}
	return out, nil
}

// Resync re-imports a project area from the configured WFS.
func (s *Service) Resync(ctx context.Context, req ResyncRequest) (Outcome, error) {
	if s.opts.WFS == nil || s.opts.WFSCfg.TypeName == "" {
		return Outcome{}, ErrResyncDisabled
	}
	if strings.TrimSpace(req.Project) == "" {
		return Outcome{}, fmt.Errorf("%w: project is required", ErrInvalidRequest)
	}

	bbox := req.BBox
	if bbox == nil && req.Filter == "" {
		if s.opts.Bounds == nil {
			return Outcome{}, fmt.Errorf("%w: %s", ErrNoExtent, req.Project)
		}
		b, ok, err := s.opts.Bounds.ProjectBounds(ctx, req.Project, req.Source)
		if err != nil {
			return Outcome{}, fmt.Errorf("load project extent: %w", err)
		}
		if !ok {
			return Outcome{}, fmt.Errorf("%w: %s", ErrNoExtent, req.Project)
		}
		bbox = &model.BBox{X1: b.West, Y1: b.South, X2: b.East, Y2: b.North, SRID: crs.WGS84Geographic}
	}
	if bbox != nil {
		if err := bbox.Validate(); err != nil {
			return Outcome{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
	}

	q := model.FeatureQuery{
		TypeName: s.opts.WFSCfg.TypeName,
		Version:  s.opts.WFSCfg.Version,
		SRSName:  s.opts.WFSCfg.SRSName,
		Count:    s.opts.WFSCfg.Count,
		BBox:     bbox,
		Filter:   req.Filter,
	}
	body, ct, err := s.opts.WFS.FetchGetFeature(ctx, q)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	s.log.InfoContext(ctx, "re-sync fetched",
		"project", req.Project,
		"bbox", bbox,
		"filter", req.Filter,
		"bytes", len(body),
		"content_type", ct)

	source := req.Source
	if source == "" {
		source = "wfs:" + q.TypeName
	}
	return s.Process(ctx, ImportRequest{Project: req.Project, Source: source, Document: body})
}

// annotate sets the H3 cell of each footprint. Cells are only meaningful for
// geographic output; a failure leaves the field empty.
func (s *Service) annotate(ctx context.Context, recs []citygml.BuildingRecord) {
	if s.opts.Mapper == nil || crs.Canonical(s.parser.Table().Defaults.TargetSRS) != crs.WGS84Geographic {
		return
	}
	failed := 0
	for i := range recs {
		cell, err := s.opts.Mapper.CellForFootprint(recs[i].Geometry, s.opts.H3Res)
		if err != nil {
			failed++
			continue
		}
		recs[i].H3Cell = cell
	}
	if failed > 0 {
		s.log.WarnContext(ctx, "h3 annotation skipped", "buildings", failed)
	}
}

func (s *Service) settings() string {
	h3 := "off"
	if s.opts.Mapper != nil {
		h3 = strconv.Itoa(s.opts.H3Res)
	}
	return s.parser.Table().Fingerprint() + "|h3:" + h3
}

func newImportID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}
