// Package executor runs upstream WFS requests.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/mohammed-shakir/citygml-footprints/internal/core/model"
	"github.com/mohammed-shakir/citygml-footprints/internal/core/observability"
	"github.com/mohammed-shakir/citygml-footprints/internal/core/ogc"
)

var ErrTooLarge = errors.New("upstream response exceeds size limit")

type Interface interface {
	FetchGetFeature(ctx context.Context, q model.FeatureQuery) ([]byte, string, error)
}

type Executor struct {
	logger   *slog.Logger
	client   *http.Client
	owsURL   *url.URL
	maxBytes int64
	startNow func() time.Time // for tests
}

// New builds an executor for the ows endpoint. maxBytes <= 0 disables the
// response size limit.
func New(logger *slog.Logger, client *http.Client, ows string, maxBytes int64) (*Executor, error) {
	u, err := url.Parse(ows)
	if err != nil {
		return nil, fmt.Errorf("parse ows url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("ows url %q must be absolute", ows)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Executor{
		logger:   logger,
		client:   client,
		owsURL:   u,
		maxBytes: maxBytes,
		startNow: time.Now,
	}, nil
}

func (e *Executor) FetchGetFeature(ctx context.Context, q model.FeatureQuery) ([]byte, string, error) {
	params := ogc.BuildGetFeatureParams(q)

	u := *e.owsURL
	u.RawQuery = params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	req.Host = e.owsURL.Host
	req.Header.Set("Accept", "application/gml+xml, application/xml;q=0.9, text/xml;q=0.8")

	start := e.startNow()
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	dur := time.Since(start)
	observability.ObserveUpstreamLatency("wfs", dur.Seconds())
	e.logger.Debug("wfs GetFeature done",
		"type_name", q.TypeName,
		"status", resp.StatusCode,
		"duration", dur.String())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, "", fmt.Errorf("upstream status %d: %s", resp.StatusCode, string(b))
	}

	var body io.Reader = resp.Body
	if e.maxBytes > 0 {
		body = io.LimitReader(resp.Body, e.maxBytes+1)
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	if e.maxBytes > 0 && int64(len(b)) > e.maxBytes {
		return nil, "", fmt.Errorf("%w (%d bytes)", ErrTooLarge, e.maxBytes)
	}
	return b, resp.Header.Get("Content-Type"), nil
}
