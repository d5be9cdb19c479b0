package resultcache

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/citygml-footprints/internal/cache/redisstore"
	"github.com/mohammed-shakir/citygml-footprints/internal/citygml"
)

func sampleResult() citygml.ProcessingResult {
	b := citygml.NewBounds()
	b.Extend(16.37, 48.2)
	return citygml.ProcessingResult{
		Success: true,
		Buildings: []citygml.BuildingRecord{{
			ID:         "B1",
			Attributes: citygml.Attributes{Height: 12.5, Floors: 4, YearBuilt: 1965, BuildingType: "MULTI_RES"},
			Geometry: []citygml.Ring{{
				{16.37, 48.2, 0}, {16.38, 48.2, 0}, {16.38, 48.21, 0}, {16.37, 48.2, 0},
			}},
			Bounds: &b,
		}},
		Bounds:                &b,
		SourceReferenceSystem: "EPSG:31256",
	}
}

func newRedis(t *testing.T) (*redisstore.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rc, err := redisstore.New(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func TestLocalOnly_PutGet(t *testing.T) {
	c := New(Config{Size: 2}, nil, nil)
	ctx := context.Background()

	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("unexpected hit on empty cache")
	}
	c.Put(ctx, "k", sampleResult())
	got, ok := c.Get(ctx, "k")
	if !ok || !reflect.DeepEqual(got, sampleResult()) {
		t.Fatalf("got=%+v ok=%v", got, ok)
	}
}

func TestPut_SkipsFailures(t *testing.T) {
	c := New(Config{}, nil, nil)
	c.Put(context.Background(), "bad", citygml.Failure(errors.New("boom")))
	if c.Len() != 0 {
		t.Fatal("failed results must not be cached")
	}
}

func TestRemote_SharedAcrossInstances(t *testing.T) {
	rc, _ := newRedis(t)
	ctx := context.Background()

	writer := New(Config{TTL: time.Minute}, rc, nil)
	writer.Put(ctx, "shared", sampleResult())

	reader := New(Config{TTL: time.Minute}, rc, nil)
	got, ok := reader.Get(ctx, "shared")
	if !ok {
		t.Fatal("expected remote hit")
	}
	want := sampleResult()
	if got.Buildings[0].ID != want.Buildings[0].ID || *got.Bounds != *want.Bounds ||
		!reflect.DeepEqual(got.Buildings[0].Geometry, want.Buildings[0].Geometry) {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if reader.Len() != 1 {
		t.Fatal("remote hit should populate the local tier")
	}
}

func TestRemote_ExpiryAndOutage(t *testing.T) {
	rc, mr := newRedis(t)
	ctx := context.Background()

	New(Config{TTL: time.Second}, rc, nil).Put(ctx, "ttl", sampleResult())
	mr.FastForward(2 * time.Second)
	if _, ok := New(Config{}, rc, nil).Get(ctx, "ttl"); ok {
		t.Fatal("expired entry returned")
	}

	mr.Close()
	c := New(Config{OpTimeout: 100 * time.Millisecond}, rc, nil)
	c.Put(ctx, "down", sampleResult())
	if _, ok := c.Get(ctx, "down"); !ok {
		t.Fatal("local tier should still serve while redis is down")
	}
	if _, ok := New(Config{OpTimeout: 100 * time.Millisecond}, rc, nil).Get(ctx, "other"); ok {
		t.Fatal("outage must read as a miss")
	}
}

func TestRemote_CorruptEntryIsMiss(t *testing.T) {
	rc, mr := newRedis(t)
	if err := mr.Set("corrupt", "{not json"); err != nil {
		t.Fatal(err)
	}
	if _, ok := New(Config{}, rc, nil).Get(context.Background(), "corrupt"); ok {
		t.Fatal("corrupt entry should be a miss")
	}
}
