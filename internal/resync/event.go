// Package resync consumes upstream change notifications from Kafka and
// re-imports the affected project area from the WFS.
package resync

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Event announces that buildings of a project changed upstream.
type Event struct {
	Version int       `json:"version"`
	Op      string    `json:"op"`
	Project string    `json:"project"`
	Source  string    `json:"source,omitempty"`
	TS      time.Time `json:"ts"`
	BBox    *BBox     `json:"bbox,omitempty"`
	Filter  string    `json:"filter,omitempty"`
}

type BBox struct {
	X1   float64 `json:"x1"`
	Y1   float64 `json:"y1"`
	X2   float64 `json:"x2"`
	Y2   float64 `json:"y2"`
	SRID string  `json:"srid"`
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return errors.New("version must be 1")
	}
	switch e.Op {
	case "insert", "update", "delete":
	default:
		return errors.New("op must be insert|update|delete")
	}
	if strings.TrimSpace(e.Project) == "" {
		return errors.New("project is required")
	}
	if e.TS.IsZero() {
		return errors.New("ts is required")
	}
	if e.BBox == nil {
		return nil
	}
	bb := *e.BBox
	if bb.SRID != "" && bb.SRID != "EPSG:4326" {
		return fmt.Errorf("bbox.srid must be EPSG:4326, got %q", bb.SRID)
	}
	if !(bb.X1 >= -180 && bb.X1 <= 180 && bb.X2 >= -180 && bb.X2 <= 180) {
		return errors.New("bbox longitude out of range")
	}
	if !(bb.Y1 >= -90 && bb.Y1 <= 90 && bb.Y2 >= -90 && bb.Y2 <= 90) {
		return errors.New("bbox latitude out of range")
	}
	if !(bb.X2 > bb.X1 && bb.Y2 > bb.Y1) {
		return errors.New("bbox must satisfy x2>x1 and y2>y1")
	}
	return nil
}

// key groups events that re-sync the same area.
func (e Event) key() string {
	k := e.Project + "|" + e.Source + "|" + e.Filter
	if e.BBox != nil {
		k += fmt.Sprintf("|%g,%g,%g,%g", e.BBox.X1, e.BBox.Y1, e.BBox.X2, e.BBox.Y2)
	}
	return k
}
