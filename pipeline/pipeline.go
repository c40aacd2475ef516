// Package pipeline ties the stages together: fetch → map → stage →
// expand → load, one hospital at a time in manifest order. Each hospital's
// outcome is independent; a failure or skip never aborts the batch.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"pricepipe/fetch"
	"pricepipe/loader"
	"pricepipe/mapper"
	"pricepipe/staging"
)

// Status classifies one hospital's outcome.
type Status string

const (
	StatusLoaded  Status = "loaded"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Outcome reports what happened to one hospital.
type Outcome struct {
	HospitalID string
	Status     Status
	RowCount   int64
	Artifact   string // staging artifact path, when mapping succeeded
	Sidecar    string // diagnostic sidecar path, on detection miss
	Err        error  // populated for StatusFailed
}

// RowLoader is the load stage seen by the pipeline.
type RowLoader interface {
	Load(ctx context.Context, hospitalID string, rows []loader.ChargeRow) (int64, error)
}

// Pipeline processes hospitals sequentially with no shared mutable state
// between them.
type Pipeline struct {
	registry *mapper.Registry
	store    *staging.Store
	loader   RowLoader
	log      *zap.Logger
}

func New(registry *mapper.Registry, store *staging.Store, rl RowLoader, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{registry: registry, store: store, loader: rl, log: log}
}

// Run processes the enabled sources in manifest order and returns one
// outcome per processed hospital.
func (p *Pipeline) Run(ctx context.Context, sources []Source, fetcher fetch.Fetcher) []Outcome {
	outcomes := make([]Outcome, 0, len(sources))
	for _, src := range sources {
		if !src.Enabled {
			continue
		}
		out := p.processOne(ctx, src, fetcher)
		switch out.Status {
		case StatusLoaded:
			p.log.Info("hospital loaded",
				zap.String("hospital_id", out.HospitalID),
				zap.Int64("rows", out.RowCount))
		case StatusSkipped:
			p.log.Warn("hospital skipped",
				zap.String("hospital_id", out.HospitalID),
				zap.String("sidecar", out.Sidecar))
		case StatusFailed:
			p.log.Error("hospital failed",
				zap.String("hospital_id", out.HospitalID),
				zap.Error(out.Err))
		}
		outcomes = append(outcomes, out)
	}
	return outcomes
}

func (p *Pipeline) processOne(ctx context.Context, src Source, fetcher fetch.Fetcher) Outcome {
	out := Outcome{HospitalID: src.HospitalID}

	fail := func(err error) Outcome {
		out.Status = StatusFailed
		out.Err = err
		return out
	}

	m, err := p.registry.Resolve(src.MapperKey)
	if err != nil {
		return fail(err)
	}

	blob, err := fetcher.Fetch(ctx, src.SourceURL)
	if err != nil {
		return fail(fmt.Errorf("fetch: %w", err))
	}

	file, err := m.Map(blob.Path)
	if err != nil {
		var detErr *mapper.DetectionError
		if errors.As(err, &detErr) {
			// Expected, actionable outcome for unmapped formats — a
			// skip with a sidecar, not a failure.
			sidecar, werr := p.store.WriteUnsupportedHeaders(src.HospitalID, detErr.Headers)
			if werr != nil {
				return fail(werr)
			}
			out.Status = StatusSkipped
			out.Sidecar = sidecar
			return out
		}
		return fail(fmt.Errorf("map: %w", err))
	}

	artifact, err := p.store.Write(file, src.HospitalID)
	if err != nil {
		return fail(err)
	}
	out.Artifact = artifact

	// The load stage reads only the staging artifact; re-reading here
	// keeps the artifact the single input of the load layer.
	staged, err := p.store.Read(src.HospitalID)
	if err != nil {
		return fail(err)
	}

	rows := loader.Expand(staged, src.HospitalID)
	count, err := p.loader.Load(ctx, src.HospitalID, rows)
	if err != nil {
		return fail(fmt.Errorf("load: %w", err))
	}

	out.Status = StatusLoaded
	out.RowCount = count
	return out
}
