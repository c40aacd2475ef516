package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"pricepipe/config"
	"pricepipe/fetch"
	"pricepipe/loader"
	"pricepipe/mapper"
	"pricepipe/pipeline"
	"pricepipe/staging"
)

func main() {
	ids := flag.String("ids", "", "Comma-separated hospital_id list to process")
	all := flag.Bool("all", false, "Process all enabled hospitals in the manifest")
	manifestPath := flag.String("manifest", "", "Path to sources.csv (overrides SOURCES_MANIFEST)")
	flag.Parse()

	if *ids == "" && !*all {
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  pricepipe -ids acme,nwh_bentonville\n")
		fmt.Fprintf(os.Stderr, "  pricepipe -all\n")
		os.Exit(1)
	}

	cfg := config.Load()
	if *manifestPath != "" {
		cfg.Manifest = *manifestPath
	}

	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	if err := run(cfg, logger, *ids); err != nil {
		logger.Fatal("pipeline failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger, ids string) error {
	ctx := context.Background()

	sources, err := pipeline.ReadManifest(cfg.Manifest)
	if err != nil {
		return err
	}
	if ids != "" {
		sources = filterByID(sources, ids)
	}
	if len(sources) == 0 {
		return fmt.Errorf("no manifest rows matched")
	}

	store, err := staging.NewStore(cfg.StagingDir)
	if err != nil {
		return err
	}
	fetcher, err := fetch.NewFileFetcher(cfg.RawDir)
	if err != nil {
		return err
	}

	ldr, err := loader.New(ctx, cfg.LoaderConfig(), logger)
	if err != nil {
		return err
	}
	defer ldr.Close()

	p := pipeline.New(mapper.NewRegistry(logger), store, ldr, logger)
	outcomes := p.Run(ctx, sources, fetcher)

	var failed int
	for _, out := range outcomes {
		switch out.Status {
		case pipeline.StatusLoaded:
			fmt.Printf("  %-24s loaded  %d rows\n", out.HospitalID, out.RowCount)
		case pipeline.StatusSkipped:
			fmt.Printf("  %-24s skipped (%s)\n", out.HospitalID, out.Sidecar)
		case pipeline.StatusFailed:
			failed++
			fmt.Printf("  %-24s FAILED: %v\n", out.HospitalID, out.Err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d hospitals failed", failed, len(outcomes))
	}
	return nil
}

func filterByID(sources []pipeline.Source, ids string) []pipeline.Source {
	want := make(map[string]bool)
	for _, id := range strings.Split(ids, ",") {
		want[strings.TrimSpace(id)] = true
	}
	var out []pipeline.Source
	for _, s := range sources {
		if want[s.HospitalID] {
			out = append(out, s)
		}
	}
	return out
}

func newLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		cfg.Level = lvl
	}
	logger, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		os.Exit(1)
	}
	return logger
}
