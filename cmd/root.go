// Package cmd defines the anime2db command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/falchooser/internal/app"
	"github.com/JakeFAU/falchooser/internal/config"
	"github.com/JakeFAU/falchooser/internal/titles"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// Runner executes the season workflows.
type Runner interface {
	InsertStatistics(ctx context.Context, season titles.Season, ignored, assumeYes bool) (int, error)
	InsertAnime(ctx context.Context, season titles.Season, ignored, assumeYes bool) (int, error)
	WriteURLs(ctx context.Context, season titles.Season, ignored bool) (string, error)
	InsertTeams(ctx context.Context, path string) (int, error)
}

// App is what commands need from the service container. Tests swap in a fake.
type App interface {
	Close()
	Logger() *zap.Logger
	Config() config.Config
	Batch() Runner
	RequireStore() error
	EnsureSchema(ctx context.Context) error
}

type appAdapter struct {
	*app.App
}

func (a appAdapter) Batch() Runner {
	return a.App.Batch()
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, streams app.IO) (App, error) {
	a, err := app.New(ctx, cfg, streams)
	if err != nil {
		return nil, err
	}
	return appAdapter{a}, nil
}

type rootOptions struct {
	cfgFile     string
	metricsAddr string
	assumeYes   bool
	app         App
}

// closeApp releases the App once. PersistentPostRun does not run when a command
// fails, so Execute calls it as well.
func (o *rootOptions) closeApp() {
	if o.app != nil {
		o.app.Close()
		o.app = nil
	}
}

func newRootCmd() (*cobra.Command, *rootOptions) {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "anime2db <year> <quarter>",
		Short: "Scrape MyAnimeList statistics for a season into the database",
		Long: `anime2db reads the season's url lists, fetches each anime's statistics page
and inserts one snapshot row per anime for today, first for the active list and
then for the ignored list.`,
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			appInstance, err := newApp(cmd.Context(), cfg, app.IO{In: cmd.InOrStdin(), Out: cmd.OutOrStdout()})
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			opts.app = appInstance
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(*cobra.Command, []string) {
			opts.closeApp()
		},

		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatistics(cmd, args, opts.assumeYes)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (default is $HOME/.falchooser.yaml)")
	cmd.PersistentFlags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve /metrics and health probes on this address")
	cmd.Flags().BoolVarP(&opts.assumeYes, "yes", "y", false, "omit the confirmation dialog")

	cmd.AddCommand(
		newAnimeCmd(),
		newURLsCmd(),
		newTeamCmd(),
		newSchemaCmd(),
	)
	return cmd, opts
}

func runStatistics(cmd *cobra.Command, args []string, assumeYes bool) error {
	season, err := parseSeason(args)
	if err != nil {
		return err
	}
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	if err := appInstance.RequireStore(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, ignored := range []bool{false, true} {
		fmt.Fprintf(out, "Inserting statistics for %s...\n", season.Label(ignored))
		n, err := appInstance.Batch().InsertStatistics(cmd.Context(), season, ignored, assumeYes)
		if err != nil {
			return err
		}
		appInstance.Logger().Info("Statistics batch finished",
			zap.Stringer("season", season),
			zap.Bool("ignored", ignored),
			zap.Int("rows", n),
		)
	}
	fmt.Fprintln(out, "Done.")
	return nil
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

func loadConfig(cmd *cobra.Command, opts *rootOptions) (config.Config, error) {
	path := opts.cfgFile
	if path == "" {
		path = defaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.Metrics.Addr = opts.metricsAddr
	}
	return cfg, nil
}

// defaultConfigPath returns $HOME/.falchooser.yaml when that file exists.
func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(home, ".falchooser.yaml")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

func parseSeason(args []string) (titles.Season, error) {
	year, err := strconv.Atoi(args[0])
	if err != nil {
		return titles.Season{}, fmt.Errorf("invalid year %q", args[0])
	}
	quarter, err := strconv.Atoi(args[1])
	if err != nil {
		return titles.Season{}, fmt.Errorf("invalid quarter %q", args[1])
	}
	season, err := titles.NewSeason(year, quarter)
	if err != nil {
		return titles.Season{}, err
	}
	return season, nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	root, opts := newRootCmd()
	err := root.ExecuteContext(ctx)
	opts.closeApp()
	stop()
	if err != nil {
		os.Exit(1)
	}
}
