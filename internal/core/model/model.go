// Package model defines core domain types shared across the service.
package model

import (
	"errors"
	"fmt"
	"math"
)

type BBox struct {
	X1, Y1 float64
	X2, Y2 float64
	SRID   string
}

// String representation matching wfs bbox format
func (b BBox) String() string {
	if b.SRID == "" {
		return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", b.X1, b.Y1, b.X2, b.Y2)
	}
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f,%s", b.X1, b.Y1, b.X2, b.Y2, b.SRID)
}

func (b BBox) Validate() error {
	for _, v := range []float64{b.X1, b.Y1, b.X2, b.Y2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("bbox contains non-finite value")
		}
	}
	if b.X1 >= b.X2 || b.Y1 >= b.Y2 {
		return fmt.Errorf("bbox min must be below max: %s", b)
	}
	return nil
}

// FeatureQuery describes one WFS GetFeature call for CityGML buildings.
type FeatureQuery struct {
	TypeName     string
	BBox         *BBox
	SRSName      string
	Version      string
	Count        int
	OutputFormat string
	Filter       string
}
