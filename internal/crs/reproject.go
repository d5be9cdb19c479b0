package crs

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/citygml-footprints/internal/core/observability"
)

type pairKey struct{ from, to string }

type transform struct {
	src, dst Projection
	err      error
}

// Reprojector applies registry transforms to single vertices. A failed vertex
// is returned untransformed so one bad coordinate degrades accuracy instead of
// aborting the caller.
type Reprojector struct {
	reg   *Registry
	log   *slog.Logger
	pairs *lru.Cache[pairKey, transform]
}

func NewReprojector(reg *Registry, log *slog.Logger) *Reprojector {
	if reg == nil {
		reg = DefaultRegistry()
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	pairs, _ := lru.New[pairKey, transform](64)
	return &Reprojector{reg: reg, log: log, pairs: pairs}
}

func (r *Reprojector) Registry() *Registry { return r.reg }

// Reproject maps [x, y, z?] from one system to another. z passes through
// (0 when absent).
func (r *Reprojector) Reproject(coords []float64, from, to string) [3]float64 {
	var out [3]float64
	copy(out[:], coords)

	x, y, err := r.Transform(coords, from, to)
	if err != nil {
		observability.IncReprojectionFailure(failureReason(err))
		r.log.Debug("reprojection failed, keeping source coordinates",
			"from", from, "to", to, "coords", coords, "err", err)
		return out
	}
	out[0], out[1] = x, y
	return out
}

// Transform is the strict variant of Reproject.
func (r *Reprojector) Transform(coords []float64, from, to string) (float64, float64, error) {
	if len(coords) < 2 {
		return 0, 0, fmt.Errorf("%w: need at least 2 values, got %d", ErrInvalidCoordinate, len(coords))
	}
	x, y := coords[0], coords[1]
	if !finite(x) || !finite(y) {
		return 0, 0, fmt.Errorf("%w: non-finite input", ErrInvalidCoordinate)
	}

	k := pairKey{from: Canonical(from), to: Canonical(to)}
	if k.from == k.to {
		return x, y, nil
	}
	t := r.resolve(k)
	if t.err != nil {
		return 0, 0, t.err
	}

	lon, lat, err := t.src.ToGeographic(x, y)
	if err != nil {
		return 0, 0, fmt.Errorf("to geographic: %w", err)
	}
	ox, oy, err := t.dst.FromGeographic(lon, lat)
	if err != nil {
		return 0, 0, fmt.Errorf("from geographic: %w", err)
	}
	if !finite(ox) || !finite(oy) {
		return 0, 0, fmt.Errorf("%w: non-finite result", ErrInvalidCoordinate)
	}
	return ox, oy, nil
}

func (r *Reprojector) resolve(k pairKey) transform {
	if t, ok := r.pairs.Get(k); ok {
		return t
	}
	var t transform
	t.src, t.err = r.reg.Lookup(k.from)
	if t.err == nil {
		t.dst, t.err = r.reg.Lookup(k.to)
	}
	r.pairs.Add(k, t)
	return t
}

func failureReason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrUnknownSystem):
		return "unknown_system"
	default:
		return "invalid_coordinate"
	}
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
