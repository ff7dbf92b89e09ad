package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-extensions/internal/core/domain"
)

var (
	searchLimit      int
	searchJSON       bool
	searchExtensions []string
	searchSources    []string
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search across extensions",
	Long: `Sends the query to each selected extension in parallel and prints the
results grouped by extension. An extension that fails is reported in its own
group; the others still return results.

Without --extension the configured defaults are used, or every installed
extension if no defaults are set.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of results per extension")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	searchCmd.Flags().StringSliceVarP(&searchExtensions, "extension", "e", nil, "extension to query (repeatable)")
	searchCmd.Flags().StringSliceVarP(&searchSources, "source", "s", nil, "restrict to a source (repeatable)")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if err := requireSearch(); err != nil {
		return err
	}

	opts := domain.SearchOptions{
		Extensions: toExtensionIDs(searchExtensions),
		Sources:    toSources(searchSources),
		Limit:      searchLimit,
	}

	groups, err := searchService.Search(cmd.Context(), args[0], opts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return outputSearchJSON(cmd, groups)
	}
	return outputSearchTable(cmd, groups)
}

// searchGroupJSON is the --json shape of one extension's results.
type searchGroupJSON struct {
	Extension  domain.ExtensionID    `json:"extension"`
	Results    []domain.SearchResult `json:"results"`
	Error      string                `json:"error,omitempty"`
	DurationMS int64                 `json:"duration_ms"`
}

func outputSearchJSON(cmd *cobra.Command, groups []domain.ExtensionResults) error {
	out := make([]searchGroupJSON, len(groups))
	for i, group := range groups {
		out[i] = searchGroupJSON{
			Extension:  group.ExtensionID,
			Results:    group.Results,
			DurationMS: group.Duration.Milliseconds(),
		}
		if out[i].Results == nil {
			out[i].Results = []domain.SearchResult{}
		}
		if group.Err != nil {
			out[i].Error = group.Err.Error()
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchTable(cmd *cobra.Command, groups []domain.ExtensionResults) error {
	for _, group := range groups {
		cmd.Printf("%s (%s)\n", group.ExtensionID, group.Duration.Round(time.Millisecond))

		switch {
		case group.Err != nil:
			cmd.Printf("  error: %v\n", group.Err)
		case len(group.Results) == 0:
			cmd.Println("  No results found.")
		}

		for i, result := range group.Results {
			// Format: [N] Title (Score)
			title := result.Title
			if title == "" {
				title = result.URL
			}
			cmd.Printf("  [%d] %s (%.2f)\n", i+1, title, result.Score)
			if result.Source != "" {
				cmd.Printf("      Source: %s\n", result.Source)
			}
			if result.URL != "" && result.URL != title {
				cmd.Printf("      %s\n", result.URL)
			}
			if result.Snippet != "" {
				cmd.Printf("      %s\n", result.Snippet)
			}
		}
		cmd.Println()
	}
	return nil
}

func toExtensionIDs(values []string) []domain.ExtensionID {
	if len(values) == 0 {
		return nil
	}
	ids := make([]domain.ExtensionID, len(values))
	for i, v := range values {
		ids[i] = domain.ExtensionID(v)
	}
	return ids
}

func toSources(values []string) []domain.Source {
	if len(values) == 0 {
		return nil
	}
	sources := make([]domain.Source, len(values))
	for i, v := range values {
		sources[i] = domain.Source(v)
	}
	return sources
}
