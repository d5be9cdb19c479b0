package h3mapper

import (
	"errors"
	"fmt"

	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/citygml-footprints/internal/citygml"
)

var ErrNotGeographic = errors.New("footprint is not in geographic coordinates")

type Mapper struct{}

func New() *Mapper { return &Mapper{} }

// CellForFootprint returns the cell containing the vertex mean of all rings.
// Closing vertices are skipped so they do not pull the centroid.
func (m *Mapper) CellForFootprint(rings []citygml.Ring, res int) (string, error) {
	if err := validateRes(res); err != nil {
		return "", err
	}
	var sumLat, sumLng float64
	n := 0
	for _, r := range rings {
		verts := r
		if len(r) > 1 && r[0] == r[len(r)-1] {
			verts = r[:len(r)-1]
		}
		for _, v := range verts {
			if v[0] < -180 || v[0] > 180 || v[1] < -90 || v[1] > 90 {
				return "", fmt.Errorf("%w: vertex %v", ErrNotGeographic, v)
			}
			sumLng += v[0]
			sumLat += v[1]
			n++
		}
	}
	if n == 0 {
		return "", errors.New("empty footprint")
	}

	c, err := h3.LatLngToCell(h3.LatLng{Lat: sumLat / float64(n), Lng: sumLng / float64(n)}, res)
	if err != nil {
		return "", fmt.Errorf("h3 cell: %w", err)
	}
	return c.String(), nil
}

// --- helpers ---

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}
