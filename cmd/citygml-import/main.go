// Command citygml-import extracts building records from CityGML files and
// writes them as JSON or GeoJSON, optionally delivering them to the
// configured Kafka topic and Postgres store.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mohammed-shakir/citygml-footprints/internal/app"
	"github.com/mohammed-shakir/citygml-footprints/internal/core/config"
	"github.com/mohammed-shakir/citygml-footprints/internal/export"
	"github.com/mohammed-shakir/citygml-footprints/internal/ingest"
	"github.com/mohammed-shakir/citygml-footprints/internal/logger"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("citygml-import", flag.ContinueOnError)
	fs.SetOutput(stderr)
	project := fs.String("project", "default", "project the buildings belong to")
	out := fs.String("out", "json", "output format: json or geojson")
	outDir := fs.String("o", "", "write one file per input into this directory instead of stdout")
	publish := fs.Bool("publish", false, "publish buildings to Kafka (KAFKA_BROKERS, KAFKA_TOPIC)")
	store := fs.Bool("store", false, "upsert buildings into Postgres (DATABASE_URL)")
	mappingFile := fs.String("mapping", "", "mapping file overriding MAPPING_FILE")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *out != "json" && *out != "geojson" {
		_, _ = fmt.Fprintf(stderr, "unknown -out %q (want json or geojson)\n", *out)
		return 2
	}
	if fs.NArg() == 0 {
		_, _ = fmt.Fprintln(stderr, "usage: citygml-import [flags] file.gml...")
		fs.PrintDefaults()
		return 2
	}

	cfg := config.FromEnv()
	cfg.Kafka.Enabled = *publish
	if !*store {
		cfg.Store.DatabaseURL = ""
	} else if cfg.Store.DatabaseURL == "" {
		_, _ = fmt.Fprintln(stderr, "-store needs DATABASE_URL")
		return 2
	}
	if *mappingFile != "" {
		cfg.MappingFile = *mappingFile
	}
	// the CLI has no re-sync
	cfg.WFS.URL = ""

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   true,
		Component: "citygml-import",
	}, stderr)
	log := logger.NewSlog(&zl)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Error("setup failed", "err", err)
		return 1
	}
	defer func() { _ = a.Close() }()

	failed := 0
	for _, path := range fs.Args() {
		fctx := logger.WithDocument(ctx, filepath.Base(path))
		if err := importFile(fctx, a.Service, *project, path, *out, *outDir, stdout); err != nil {
			log.ErrorContext(fctx, "import failed", "file", path, "err", err)
			failed++
		}
		if ctx.Err() != nil {
			break
		}
	}
	if failed > 0 {
		return 1
	}
	return 0
}

func importFile(ctx context.Context, svc *ingest.Service, project, path, format, outDir string, stdout io.Writer) error {
	doc, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	res, procErr := svc.Process(ctx, ingest.ImportRequest{Project: project, Source: filepath.Base(path), Document: doc})
	if procErr != nil && !errors.Is(procErr, ingest.ErrDelivery) {
		return procErr
	}

	var body []byte
	if format == "geojson" && res.Result.Success {
		body, err = export.Marshal(res.Result)
	} else {
		body, err = json.MarshalIndent(res.Result, "", "  ")
	}
	if err != nil {
		return err
	}
	body = append(body, '\n')

	if outDir == "" {
		if _, err := stdout.Write(body); err != nil {
			return err
		}
	} else {
		ext := ".json"
		if format == "geojson" {
			ext = ".geojson"
		}
		name := filepath.Join(outDir, trimExt(filepath.Base(path))+ext)
		if err := os.WriteFile(name, body, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}

	switch {
	case procErr != nil:
		return procErr
	case !res.Result.Success:
		return errors.New(res.Result.Error)
	}
	return nil
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}
