// Package cli provides the sercha command line interface.
package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-extensions/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-extensions/internal/logger"
)

// version is overridden at build time with -ldflags "-X ...cli.version=v1.2.3".
var version = "dev"

var (
	verbose   bool
	debugMode bool
	configDir string
)

var (
	searchService   driving.SearchService
	settingsService driving.SettingsService
	registry        driving.ExtensionRegistry

	// shutdown releases what bootstrap acquired. Nil when services were injected.
	shutdown func(context.Context) error
)

var rootCmd = &cobra.Command{
	Use:   "sercha",
	Short: "Search across extension providers",
	Long: `Sercha runs search extensions as child processes and queries them in parallel.

Extensions are executables installed under the modules directory
(~/.sercha/extensions by default). Each one is started on first use and
stays alive for the rest of the session.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		logger.SetVerbose(verbose)
		if searchService != nil {
			return nil
		}
		return bootstrap(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print debug logs to stderr")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "let extensions write to the terminal")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default ~/.sercha)")
}

// Services are the driving ports the commands run against.
type Services struct {
	Search   driving.SearchService
	Settings driving.SettingsService
	Registry driving.ExtensionRegistry
}

// SetServices injects services and skips the default wiring.
func SetServices(s Services) {
	searchService = s.Search
	settingsService = s.Settings
	registry = s.Registry
}

// Execute runs the root command. Extensions started by the command are
// shut down before Execute returns, also when the command fails.
func Execute(ctx context.Context) error {
	defer func() {
		if shutdown == nil {
			return
		}
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Error("shutting down extensions: %v", err)
		}
		shutdown = nil
	}()

	return rootCmd.ExecuteContext(ctx)
}

func requireSearch() error {
	if searchService == nil {
		return errors.New("search service not configured")
	}
	return nil
}
