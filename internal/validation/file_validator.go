// Package validation checks dataset files and export directories before the
// loaders and writers touch them, so failures name the offending path.
package validation

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"bmidash/internal/dataprocessing"
	"bmidash/internal/infrastructure"
)

// ErrUnsupportedFormat is returned for dataset files the parsers cannot read
var ErrUnsupportedFormat = errors.New("unsupported dataset format")

var datasetExtensions = map[string]bool{
	".csv":  true,
	".tsv":  true,
	".txt":  true,
	".xlsx": true,
}

// FileValidator validates dataset inputs and export outputs
type FileValidator struct {
	logger *slog.Logger
}

// NewFileValidator creates a new file validator
func NewFileValidator(logger *slog.Logger) *FileValidator {
	return &FileValidator{
		logger: infrastructure.WithComponent(logger, "file_validator"),
	}
}

// ValidateFile checks that path is an existing, readable regular file
func (v *FileValidator) ValidateFile(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		v.logger.Error("File does not exist", slog.String("file", path))
		return fmt.Errorf("file %s does not exist: %w", path, err)
	}
	if err != nil {
		return fmt.Errorf("failed to stat file %s: %w", path, err)
	}
	if info.IsDir() {
		v.logger.Error("Path is a directory, not a file", slog.String("path", path))
		return fmt.Errorf("%s is a directory, not a file", path)
	}

	file, err := os.Open(path)
	if err != nil {
		v.logger.Error("File is not readable",
			slog.String("file", path),
			slog.String("error", err.Error()))
		return fmt.Errorf("file %s is not readable: %w", path, err)
	}
	file.Close()

	v.logger.Debug("File validated",
		slog.String("file", path),
		slog.Int64("size", info.Size()))
	return nil
}

// ValidateDatasetFile checks a dataset file: readable, a supported format
// and not an editor lock file such as ~$dataset_mean.xlsx
func (v *FileValidator) ValidateDatasetFile(path string) error {
	base := filepath.Base(path)
	if strings.HasPrefix(base, "~$") {
		return fmt.Errorf("%s is a temporary Excel file", path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if !datasetExtensions[ext] {
		v.logger.Error("Unsupported dataset file",
			slog.String("file", path),
			slog.String("extension", ext))
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	return v.ValidateFile(path)
}

// ValidateSources checks every dataset source and reports all failures at once
func (v *FileValidator) ValidateSources(sources []dataprocessing.Source) error {
	var errs []error
	for _, src := range sources {
		if err := v.ValidateDatasetFile(src.Path); err != nil {
			errs = append(errs, fmt.Errorf("%s dataset: %w", src.Kind, err))
		}
	}
	if len(errs) == 0 {
		v.logger.Info("Dataset sources validated", slog.Int("count", len(sources)))
	}
	return errors.Join(errs...)
}

// ValidateOutputDirectory ensures dir exists or can be created and is writable
func (v *FileValidator) ValidateOutputDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		v.logger.Error("Failed to create output directory",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	probe, err := os.CreateTemp(dir, ".write_test")
	if err != nil {
		v.logger.Error("Output directory is not writable",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return fmt.Errorf("output directory %s is not writable: %w", dir, err)
	}
	probe.Close()
	os.Remove(probe.Name())

	v.logger.Debug("Output directory validated", slog.String("directory", dir))
	return nil
}
