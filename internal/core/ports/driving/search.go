package driving

import (
	"context"

	"github.com/custodia-labs/sercha-extensions/internal/core/domain"
)

// SearchService provides search across extensions to external actors.
type SearchService interface {
	// Search queries each selected extension in parallel.
	// A failing extension is reported in its own group and does not fail the call.
	Search(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.ExtensionResults, error)

	// ListSources asks each extension for its sources.
	ListSources(ctx context.Context, ids []domain.ExtensionID) ([]domain.ExtensionSources, error)

	// Available lists the extensions installed in the modules directory.
	Available() ([]domain.ExtensionID, error)
}
