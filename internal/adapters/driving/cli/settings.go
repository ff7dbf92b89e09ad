package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage extension host settings",
	Long: `View and configure where extensions are installed, how they are started,
and which extensions are searched by default.`,
	RunE: runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE:  runSettingsShow,
}

var settingsDefaultsCmd = &cobra.Command{
	Use:   "defaults [extension...]",
	Short: "Set the extensions searched by default",
	Long: `Set the extensions searched when no --extension flag is given.
Run without arguments to clear the list and search every installed extension.`,
	RunE: runSettingsDefaults,
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsDefaultsCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println("Current Settings")
	cmd.Println("================")
	cmd.Println()

	cmd.Println("[Extensions]")
	cmd.Printf("  Modules directory: %s\n", settings.ModulesDir)
	if settings.HostExecutable != "" {
		cmd.Printf("  Host executable: %s\n", settings.HostExecutable)
	} else {
		cmd.Println("  Host executable: (run modules directly)")
	}
	cmd.Printf("  Debug output: %t\n", settings.Debug)
	if len(settings.Defaults) > 0 {
		cmd.Printf("  Defaults: %v\n", settings.Defaults)
	} else {
		cmd.Println("  Defaults: (all installed)")
	}
	cmd.Println()

	cmd.Println("[Timeouts]")
	cmd.Printf("  Request: %s\n", durationOrOff(settings.RequestTimeout.String(), settings.RequestTimeout == 0))
	cmd.Printf("  Ready: %s\n", durationOrOff(settings.ReadyTimeout.String(), settings.ReadyTimeout == 0))
	cmd.Println()

	cmd.Println("[Throttling]")
	if settings.SearchRate > 0 {
		cmd.Printf("  Rate: %.2f searches/s per extension (burst %d)\n", settings.SearchRate, settings.SearchBurst)
	} else {
		cmd.Println("  Rate: unlimited")
	}

	return nil
}

func runSettingsDefaults(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	settings.Defaults = toExtensionIDs(args)
	if err := settingsService.Save(settings); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}

	if len(settings.Defaults) == 0 {
		cmd.Println("Cleared defaults: searches use every installed extension.")
	} else {
		cmd.Printf("Default extensions: %v\n", settings.Defaults)
	}
	return nil
}

func durationOrOff(value string, off bool) string {
	if off {
		return "off"
	}
	return value
}
