package model

import (
	"math"
	"testing"
)

func TestBBox_StringAndValidate(t *testing.T) {
	b := BBox{X1: 16.3, Y1: 48.1, X2: 16.4, Y2: 48.2, SRID: "EPSG:4326"}
	if got, want := b.String(), "16.300000,48.100000,16.400000,48.200000,EPSG:4326"; got != want {
		t.Fatalf("String()=%q want %q", got, want)
	}
	if err := b.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	bad := []BBox{
		{X1: 2, Y1: 0, X2: 1, Y2: 1},
		{X1: 0, Y1: 1, X2: 1, Y2: 1},
		{X1: math.NaN(), Y1: 0, X2: 1, Y2: 1},
	}
	for _, b := range bad {
		if err := b.Validate(); err == nil {
			t.Fatalf("expected error for %+v", b)
		}
	}
}
