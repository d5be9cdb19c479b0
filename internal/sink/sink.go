// Package sink defines where extracted building records are delivered after
// a document has been processed.
package sink

import (
	"context"
	"time"

	"github.com/mohammed-shakir/citygml-footprints/internal/citygml"
)

// Batch is the successful output of one import.
type Batch struct {
	ImportID string
	Project  string
	Source   string
	At       time.Time
	Records  []citygml.BuildingRecord
}

type Sink interface {
	Name() string
	Write(ctx context.Context, b Batch) error
	Close() error
}
