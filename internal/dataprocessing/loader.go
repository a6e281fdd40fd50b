package dataprocessing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"bmidash/pkg/contracts/domain"
)

// Source locates one dataset on disk
type Source struct {
	Kind domain.DatasetKind
	Path string
}

// Loaded is a parsed dataset with its load statistics
type Loaded struct {
	Dataset domain.Dataset
	Stats   LoadStats
}

// Loader reads dataset sources concurrently
type Loader struct {
	logger *slog.Logger
	opts   ParseOptions
}

// NewLoader creates a loader
func NewLoader(logger *slog.Logger, opts ParseOptions) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		logger: logger.With(slog.String("component", "dataset_loader")),
		opts:   opts,
	}
}

// LoadAll parses every source in parallel. The first failure cancels the
// rest and is returned.
func (l *Loader) LoadAll(ctx context.Context, sources []Source) (map[domain.DatasetKind]Loaded, error) {
	results := make([]Loaded, len(sources))
	g, gctx := errgroup.WithContext(ctx)

	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			ds, stats, err := LoadFile(src.Path, src.Kind, l.opts)
			if err != nil {
				l.logger.ErrorContext(gctx, "dataset load failed",
					slog.String("dataset", string(src.Kind)),
					slog.String("path", src.Path),
					slog.String("error", err.Error()))
				return fmt.Errorf("load %s dataset: %w", src.Kind, err)
			}

			attrs := []any{
				slog.String("dataset", string(src.Kind)),
				slog.String("path", src.Path),
				slog.Int("rows", stats.Rows),
				slog.Int("loaded", stats.Loaded),
				slog.Int("skipped", stats.Skipped),
				slog.Duration("duration", time.Since(start)),
			}
			if stats.Skipped > 0 {
				l.logger.WarnContext(gctx, "dataset loaded with malformed rows skipped", attrs...)
			} else {
				l.logger.InfoContext(gctx, "dataset loaded", attrs...)
			}

			results[i] = Loaded{Dataset: ds, Stats: stats}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[domain.DatasetKind]Loaded, len(results))
	for _, r := range results {
		out[r.Dataset.Kind] = r
	}
	return out, nil
}
