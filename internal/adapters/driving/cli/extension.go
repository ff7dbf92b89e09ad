package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/custodia-labs/sercha-extensions/internal/core/domain"
)

var extensionJSON bool

var extensionCmd = &cobra.Command{
	Use:     "extension",
	Aliases: []string{"ext"},
	Short:   "Inspect installed extensions",
}

var extensionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed extensions",
	Args:  cobra.NoArgs,
	RunE:  runExtensionList,
}

var extensionSourcesCmd = &cobra.Command{
	Use:   "sources [extension...]",
	Short: "List the sources of extensions",
	Long: `Starts each extension and asks it which sources it can search.
Without arguments every installed extension is asked.`,
	RunE: runExtensionSources,
}

func init() {
	extensionSourcesCmd.Flags().BoolVar(&extensionJSON, "json", false, "output as JSON")
	extensionCmd.AddCommand(extensionListCmd)
	extensionCmd.AddCommand(extensionSourcesCmd)
	rootCmd.AddCommand(extensionCmd)
}

func runExtensionList(cmd *cobra.Command, _ []string) error {
	if err := requireSearch(); err != nil {
		return err
	}

	ids, err := searchService.Available()
	if err != nil {
		return fmt.Errorf("listing extensions: %w", err)
	}
	if len(ids) == 0 {
		cmd.Println("No extensions installed.")
		return nil
	}

	for _, id := range ids {
		cmd.Println(id)
	}
	return nil
}

func runExtensionSources(cmd *cobra.Command, args []string) error {
	if err := requireSearch(); err != nil {
		return err
	}

	ids := toExtensionIDs(args)
	if len(ids) == 0 {
		available, err := searchService.Available()
		if err != nil {
			return fmt.Errorf("listing extensions: %w", err)
		}
		if len(available) == 0 {
			return fmt.Errorf("%w: no extensions installed", domain.ErrNotFound)
		}
		ids = available
	}

	groups, err := searchService.ListSources(cmd.Context(), ids)
	if err != nil {
		return err
	}

	if extensionJSON {
		out := make(map[domain.ExtensionID][]domain.Source, len(groups))
		for _, group := range groups {
			if group.Err == nil {
				out[group.ExtensionID] = group.Sources
			}
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal sources: %w", err)
		}
		cmd.Println(string(data))
	} else {
		for _, group := range groups {
			if group.Err != nil {
				cmd.Printf("%s: error: %v\n", group.ExtensionID, group.Err)
				continue
			}
			cmd.Printf("%s:\n", group.ExtensionID)
			for _, source := range group.Sources {
				cmd.Printf("  %s\n", source)
			}
		}
	}

	var errs []error
	for _, group := range groups {
		if group.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", group.ExtensionID, group.Err))
		}
	}
	if len(errs) == len(groups) {
		return multierr.Combine(errs...)
	}
	return nil
}
