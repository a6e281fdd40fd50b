package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"bmidash/pkg/contracts/domain"
)

// Paths contains every file system location the service touches.
// It is derived from Config so there is one source of truth.
type Paths struct {
	DatasetsDir string
	Datasets    map[domain.DatasetKind]string
	StorageFile string
	LogsDir     string
}

// Paths resolves the configured locations
func (c *Config) Paths() *Paths {
	datasets := make(map[domain.DatasetKind]string, 3)
	for _, kind := range domain.DatasetKinds() {
		datasets[kind] = c.DatasetPath(kind)
	}

	p := &Paths{
		DatasetsDir: c.Data.Dir,
		Datasets:    datasets,
	}
	if c.Logging.Output != "console" {
		p.LogsDir = filepath.Dir(c.Logging.FilePath)
	}
	if c.Storage.Enabled {
		p.StorageFile = c.Storage.Path
	}
	return p
}

// EnsureDirectories creates the directories the service writes into.
// Dataset directories are read-only inputs and are not created.
func (p *Paths) EnsureDirectories() error {
	directories := []string{p.LogsDir}
	if p.StorageFile != "" {
		directories = append(directories, filepath.Dir(p.StorageFile))
	}

	for _, dir := range directories {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// LogPathResolution logs the resolved paths at startup
func (p *Paths) LogPathResolution(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("Path resolution summary",
		slog.Group("datasets",
			slog.String("dir", p.DatasetsDir),
			slog.String("mean", p.Datasets[domain.DatasetMean]),
			slog.String("overweight", p.Datasets[domain.DatasetOverweight]),
			slog.String("underweight", p.Datasets[domain.DatasetUnderweight]),
		),
		slog.String("storage", p.StorageFile),
		slog.String("logs", p.LogsDir),
	)
}
