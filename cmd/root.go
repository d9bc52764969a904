package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-ingest/internal/config"
	"github.com/JakeFAU/catalog-ingest/internal/discovery"
	"github.com/JakeFAU/catalog-ingest/internal/logging"
	"github.com/JakeFAU/catalog-ingest/internal/pipeline"
	"github.com/JakeFAU/catalog-ingest/internal/server"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is what subcommands need from the application. Tests inject a fake.
type App interface {
	Run(ctx context.Context) pipeline.Summary
	Discover(ctx context.Context) map[string]discovery.Result
	Logger() *zap.Logger
	Close(ctx context.Context)
}

// rootOptions holds the persistent flags.
type rootOptions struct {
	configFile     string
	sitesFile      string
	categoriesFile string
	limit          int
}

// newApp is the application factory, replaced in tests.
var newApp = func(ctx context.Context, cfg config.Config) (App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return server.Build(ctx, cfg, logger)
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return config.Config{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("sites") {
		cfg.SitesFile = opts.sitesFile
	}
	if flags.Changed("categories-file") {
		cfg.CategoriesFile = opts.categoriesFile
	}
	if flags.Changed("limit") {
		if opts.limit < 0 {
			return config.Config{}, errors.New("--limit must be >= 0")
		}
		cfg.Fetch.Limit = opts.limit
	}
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "catalog-ingest",
		Short: "Scrapes a retailer catalog, embeds product images and upserts canonical rows.",
		Long: `catalog-ingest walks the categories of a retailer's JSON API, fetches product
records in batches, normalizes them into canonical rows, computes image
embeddings through an external model service and upserts the results into a
vector-capable row store.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Builds the application after flags are parsed and before RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			appInstance, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close(context.WithoutCancel(cmd.Context()))
			}
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "config file (YAML); env vars prefixed CATALOG_ override it")
	pf.StringVar(&opts.sitesFile, "sites", "", "site definition file (overrides sites_file)")
	pf.StringVar(&opts.categoriesFile, "categories-file", "", "file with one category id per line to restrict the run")
	pf.IntVar(&opts.limit, "limit", 0, "stop after this many collected products (0 = unlimited)")

	cmd.AddCommand(newRunCmd(), newDiscoverCmd())
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		zap.L().Error("command execution failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
