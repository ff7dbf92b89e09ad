package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/sercha-extensions/internal/core/domain"
	"github.com/custodia-labs/sercha-extensions/internal/core/ports/driving"
)

// mockSearchService is a mock implementation of driving.SearchService.
type mockSearchService struct {
	groups    []domain.ExtensionResults
	sources   []domain.ExtensionSources
	available []domain.ExtensionID
	err       error

	lastQuery string
	lastOpts  domain.SearchOptions
	lastIDs   []domain.ExtensionID
}

func (m *mockSearchService) Search(
	_ context.Context,
	query string,
	opts domain.SearchOptions,
) ([]domain.ExtensionResults, error) {
	m.lastQuery = query
	m.lastOpts = opts
	return m.groups, m.err
}

func (m *mockSearchService) ListSources(_ context.Context, ids []domain.ExtensionID) ([]domain.ExtensionSources, error) {
	m.lastIDs = ids
	return m.sources, m.err
}

func (m *mockSearchService) Available() ([]domain.ExtensionID, error) {
	return m.available, m.err
}

// mockSettingsService is a mock implementation of driving.SettingsService.
type mockSettingsService struct {
	settings domain.ExtensionSettings
	saved    *domain.ExtensionSettings
	err      error
}

func (m *mockSettingsService) Get() (domain.ExtensionSettings, error) {
	return m.settings, m.err
}

func (m *mockSettingsService) Save(settings domain.ExtensionSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	m.saved = &settings
	return m.err
}

var _ driving.SearchService = (*mockSearchService)(nil)
var _ driving.SettingsService = (*mockSettingsService)(nil)

// setupTestServices injects mocks and restores the globals afterwards.
func setupTestServices(t *testing.T) (*mockSearchService, *mockSettingsService) {
	t.Helper()
	search := &mockSearchService{
		available: []domain.ExtensionID{"docs", "stackoverflow"},
		groups: []domain.ExtensionResults{
			{
				ExtensionID: "stackoverflow",
				Results: []domain.SearchResult{
					{Source: "so", Title: "How do goroutines work?", URL: "https://stackoverflow.com/q/1", Score: 0.9},
				},
			},
			{ExtensionID: "docs", Err: errors.New("extension \"docs\" exited: exit status 1")},
		},
	}
	settings := &mockSettingsService{settings: domain.DefaultExtensionSettings("/home/user")}
	SetServices(Services{Search: search, Settings: settings})
	t.Cleanup(func() { SetServices(Services{}) })
	return search, settings
}

// execute runs the root command with args and resets flag state afterwards.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		resetFlags()
	})

	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func resetFlags() {
	searchLimit = 10
	searchJSON = false
	searchExtensions = nil
	searchSources = nil
	extensionJSON = false
	verbose = false
	debugMode = false
	configDir = ""

	// Slice flags append once changed; with the variables reset above the
	// next parse starts from nil again.
	for _, cmd := range []*cobra.Command{rootCmd, searchCmd, extensionSourcesCmd} {
		cmd.PersistentFlags().VisitAll(func(f *pflag.Flag) { f.Changed = false })
		cmd.Flags().VisitAll(func(f *pflag.Flag) { f.Changed = false })
	}
}
