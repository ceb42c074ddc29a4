// Package cli implements the drafter command surface.
package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/thruflo/drafter/internal/api"
	"github.com/thruflo/drafter/internal/config"
	"github.com/thruflo/drafter/internal/logging"
	"github.com/thruflo/drafter/internal/output"
	"github.com/thruflo/drafter/internal/store"
)

// Version is set at build time via ldflags.
var Version = "dev"

var (
	flagBackend string
	flagConfig  string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "drafter",
	Short: "Conversational CAD design assistant",
	Long: `Drafter is a conversational client for an AI CAD design backend.
A designer agent turns chat messages into parametric part code, the
backend executes and tests it, and a QA agent reviews the result until
the design passes or the iteration budget runs out.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.SetVerbose(flagVerbose)
	},
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("drafter version {{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&flagBackend, "backend", "", "backend base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", ".", "directory containing drafter.yaml")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose diagnostic output")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig resolves the effective configuration for a command run.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagBackend != "" {
		cfg.Backend.URL = flagBackend
	}
	return cfg, nil
}

// newUI builds the output surface for a command run.
func newUI() *output.UI {
	ui := output.New()
	ui.Verbose = flagVerbose
	return ui
}

// newAPIClient builds the backend client for a command run.
func newAPIClient(cfg *config.Config) *api.Client {
	return api.NewClient(cfg.Backend.URL,
		api.WithRequestTimeout(time.Duration(cfg.Backend.TimeoutSeconds)*time.Second))
}

// openStore opens the local session database. It can be overridden in
// tests.
var openStore = func(cfg *config.Config) (store.Store, error) {
	s, err := store.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	return s, nil
}
