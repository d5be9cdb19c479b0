// Package router holds the HTTP handlers of the extraction service.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/citygml-footprints/internal/core/config"
	"github.com/mohammed-shakir/citygml-footprints/internal/core/model"
	"github.com/mohammed-shakir/citygml-footprints/internal/core/observability"
	"github.com/mohammed-shakir/citygml-footprints/internal/crs"
	"github.com/mohammed-shakir/citygml-footprints/internal/export"
	"github.com/mohammed-shakir/citygml-footprints/internal/ingest"
)

// Importer is the ingest service as seen by the handlers.
type Importer interface {
	Process(ctx context.Context, req ingest.ImportRequest) (ingest.Outcome, error)
	Resync(ctx context.Context, req ingest.ResyncRequest) (ingest.Outcome, error)
}

const (
	routeDocuments = "/v1/documents"
	routeResync    = "/v1/projects/{project}/resync"
)

// HandleDocument accepts a CityGML body and answers with the extraction
// result as JSON, or as GeoJSON when the client asks for it.
func HandleDocument(logger *slog.Logger, cfg config.Config, svc Importer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		defer func() {
			observability.ObserveHTTP(r.Method, routeDocuments, sw.code, time.Since(start).Seconds())
		}()

		project := strings.TrimSpace(r.URL.Query().Get("project"))
		if project == "" {
			http.Error(sw, "missing required parameter: project", http.StatusBadRequest)
			return
		}

		body := r.Body
		if cfg.MaxDocumentBytes > 0 {
			body = http.MaxBytesReader(sw, r.Body, cfg.MaxDocumentBytes)
		}
		doc, err := io.ReadAll(body)
		if err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				http.Error(sw, fmt.Sprintf("document exceeds %d bytes", mbe.Limit), http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(sw, "read body: "+err.Error(), http.StatusBadRequest)
			return
		}

		out, err := svc.Process(r.Context(), ingest.ImportRequest{
			Project:  project,
			Source:   strings.TrimSpace(r.URL.Query().Get("source")),
			Document: doc,
		})
		writeOutcome(r.Context(), logger, sw, r, out, err)
	}
}

// HandleResync re-imports a project from the configured WFS. The optional
// bbox narrows the area; without it the stored project extent is used.
func HandleResync(logger *slog.Logger, svc Importer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		defer func() {
			observability.ObserveHTTP(r.Method, routeResync, sw.code, time.Since(start).Seconds())
		}()

		req, err := ParseResyncRequest(r)
		if err != nil {
			http.Error(sw, err.Error(), http.StatusBadRequest)
			return
		}
		out, err := svc.Resync(r.Context(), req)
		writeOutcome(r.Context(), logger, sw, r, out, err)
	}
}

func ParseResyncRequest(r *http.Request) (ingest.ResyncRequest, error) {
	project := strings.TrimSpace(chi.URLParam(r, "project"))
	if project == "" {
		return ingest.ResyncRequest{}, errors.New("missing project")
	}
	req := ingest.ResyncRequest{
		Project: project,
		Source:  strings.TrimSpace(r.URL.Query().Get("source")),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("bbox")); raw != "" {
		bb, err := parseBBOX(raw)
		if err != nil {
			return ingest.ResyncRequest{}, fmt.Errorf("invalid bbox: %w", err)
		}
		req.BBox = &bb
	}
	if f := strings.TrimSpace(r.URL.Query().Get("filter")); f != "" {
		if !isSafeCQL(f) {
			return ingest.ResyncRequest{}, errors.New("invalid or disallowed cql filter")
		}
		req.Filter = f
	}
	return req, nil
}

func writeOutcome(ctx context.Context, logger *slog.Logger, w *statusWriter, r *http.Request, out ingest.Outcome, err error) {
	status := statusFor(out, err)
	if status == http.StatusBadRequest || status == http.StatusNotFound || status == http.StatusNotImplemented {
		http.Error(w, err.Error(), status)
		return
	}
	if err != nil {
		logger.ErrorContext(ctx, "import failed", "status", status, "err", err)
	}
	if out.ImportID != "" {
		w.Header().Set("X-Import-ID", out.ImportID)
	}
	cache := "miss"
	if out.Cached {
		cache = "hit"
	}
	w.Header().Set("X-Cache", cache)

	if out.Result.Success && err == nil && wantsGeoJSON(r) {
		b, mErr := export.Marshal(out.Result)
		if mErr != nil {
			http.Error(w, mErr.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", export.ContentType)
		w.WriteHeader(status)
		_, _ = w.Write(b)
		return
	}

	type body struct {
		ingest.Outcome
		Error string `json:"error,omitempty"`
	}
	resp := body{Outcome: out}
	if err != nil {
		resp.Error = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func statusFor(out ingest.Outcome, err error) int {
	switch {
	case errors.Is(err, ingest.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ingest.ErrNoExtent):
		return http.StatusNotFound
	case errors.Is(err, ingest.ErrResyncDisabled):
		return http.StatusNotImplemented
	case errors.Is(err, ingest.ErrUpstream), errors.Is(err, ingest.ErrDelivery):
		return http.StatusBadGateway
	case err != nil:
		return http.StatusInternalServerError
	case !out.Result.Success:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusOK
	}
}

func wantsGeoJSON(r *http.Request) bool {
	if strings.EqualFold(r.URL.Query().Get("format"), "geojson") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), export.ContentType)
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// parseBBOX reads x1,y1,x2,y2[,srs]; the srs defaults to EPSG:4326, the only
// system stored extents are kept in.
func parseBBOX(bboxParam string) (model.BBox, error) {
	parts := strings.Split(bboxParam, ",")
	if len(parts) != 4 && len(parts) != 5 {
		return model.BBox{}, errors.New("expected 4 or 5 comma-separated values: x1,y1,x2,y2[,EPSG:4326]")
	}
	xMin, err := parseFloat(parts[0])
	if err != nil {
		return model.BBox{}, fmt.Errorf("x1: %w", err)
	}
	yMin, err := parseFloat(parts[1])
	if err != nil {
		return model.BBox{}, fmt.Errorf("y1: %w", err)
	}
	xMax, err := parseFloat(parts[2])
	if err != nil {
		return model.BBox{}, fmt.Errorf("x2: %w", err)
	}
	yMax, err := parseFloat(parts[3])
	if err != nil {
		return model.BBox{}, fmt.Errorf("y2: %w", err)
	}

	srid := crs.WGS84Geographic
	if len(parts) == 5 {
		srid = crs.Canonical(parts[4])
	}
	if srid != crs.WGS84Geographic {
		return model.BBox{}, fmt.Errorf("only EPSG:4326 is supported (got %q)", strings.TrimSpace(parts[4]))
	}

	if !(xMin >= -180 && xMin <= 180 && xMax >= -180 && xMax <= 180) {
		return model.BBox{}, errors.New("longitude must be in [-180,180]")
	}
	if !(yMin >= -90 && yMin <= 90 && yMax >= -90 && yMax <= 90) {
		return model.BBox{}, errors.New("latitude must be in [-90,90]")
	}
	if xMax <= xMin || yMax <= yMin {
		return model.BBox{}, errors.New("coordinates must satisfy x2>x1 and y2>y1")
	}
	return model.BBox{X1: xMin, Y1: yMin, X2: xMax, Y2: yMax, SRID: srid}, nil
}

func parseFloat(v string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("parse float: %w", err)
	}
	return f, nil
}

var safeCQLPattern = regexp.MustCompile(`^[\w\s\=\>\<\!\(\)\.\,\'\"\-\:]+$`)

func isSafeCQL(s string) bool {
	if len(s) > 500 {
		return false
	}
	return safeCQLPattern.MatchString(s)
}
