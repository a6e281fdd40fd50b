// Package cli implements the bmidash command line: the dashboard server and
// offline commands that compute, export and follow selection summaries.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"bmidash/internal/config"
	"bmidash/internal/dataprocessing"
	apierrors "bmidash/internal/errors"
	"bmidash/internal/infrastructure"
	"bmidash/internal/validation"
	"bmidash/pkg/contracts"
	"bmidash/pkg/contracts/domain"
)

type rootOptions struct {
	configFile string
	envFile    string
	dataDir    string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
}

// NewRootCommand builds the bmidash command tree
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "bmidash",
		Short:         "BMI dashboard: WHO prevalence summaries by sex and country income",
		Version:       contracts.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	root.SetVersionTemplate(contracts.GetFullVersionString() + "\n")

	f := root.PersistentFlags()
	f.StringVar(&opts.configFile, "config", "", "config file (default config.yaml or configs/config.yaml)")
	f.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	f.StringVar(&opts.dataDir, "data-dir", "", "directory holding the dataset files (overrides config)")
	f.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")

	root.AddCommand(
		newServeCommand(opts),
		newComputeCommand(opts),
		newExportCommand(opts),
		newEventsCommand(opts),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (o *rootOptions) load(cmd *cobra.Command) error {
	if o.envFile != "" {
		// A missing .env is normal outside local development
		if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", o.envFile, err)
		}
	}

	var (
		cfg *config.Config
		err error
	)
	if o.configFile != "" {
		cfg, err = config.LoadFrom(o.configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return apierrors.NewConfigError("load configuration", err).
			WithContext("file", o.configFile)
	}

	if o.dataDir != "" {
		cfg.Data.Dir = o.dataDir
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}

	o.cfg = cfg
	// Offline commands log to stderr so stdout stays parseable
	o.logger = infrastructure.NewLogger(cmd.ErrOrStderr(), cfg.Logging.Level)
	return nil
}

// loadPipelines parses the requested datasets, all of them when kinds is empty
func (o *rootOptions) loadPipelines(ctx context.Context, kinds []domain.DatasetKind) ([]*dataprocessing.Pipeline, error) {
	if len(kinds) == 0 {
		kinds = domain.DatasetKinds()
	}

	sources := make([]dataprocessing.Source, 0, len(kinds))
	for _, kind := range kinds {
		sources = append(sources, dataprocessing.Source{Kind: kind, Path: o.cfg.DatasetPath(kind)})
	}

	if err := validation.NewFileValidator(o.logger).ValidateSources(sources); err != nil {
		return nil, err
	}

	loader := dataprocessing.NewLoader(o.logger, dataprocessing.ParseOptions{ValueColumn: o.cfg.Data.ValueColumn})
	loaded, err := loader.LoadAll(ctx, sources)
	if err != nil {
		return nil, err
	}

	pipelines := make([]*dataprocessing.Pipeline, 0, len(kinds))
	for _, kind := range kinds {
		l := loaded[kind]
		spec, _ := domain.ChartSpecFor(kind)
		pipelines = append(pipelines, dataprocessing.NewPipeline(l.Dataset, spec, l.Stats))
	}
	return pipelines, nil
}

// selectionFlags holds the --sex and --max-year flags shared by compute and export
type selectionFlags struct {
	sex     string
	maxYear int
}

func (s *selectionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.sex, "sex", string(domain.SexBoth), "BothSexes, Female or Male")
	cmd.Flags().IntVar(&s.maxYear, "max-year", 0, "drop observations after this year (0 keeps all)")
}

func (s *selectionFlags) selection() (domain.Selection, error) {
	sex, err := domain.ParseSex(s.sex)
	if err != nil {
		return domain.Selection{}, err
	}
	if s.maxYear < 0 {
		return domain.Selection{}, fmt.Errorf("%w: max-year must not be negative", domain.ErrInvalidFilterValue)
	}
	return domain.Selection{Sex: sex, MaxYear: s.maxYear}, nil
}

func parseKinds(raw []string) ([]domain.DatasetKind, error) {
	kinds := make([]domain.DatasetKind, 0, len(raw))
	for _, r := range raw {
		kind, err := domain.ParseDatasetKind(r)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}
