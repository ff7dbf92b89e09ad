package domain

import (
	"encoding/json"
	"time"
)

// Source identifies one searchable source within an extension
// (e.g. "so" or "docs" for a Q&A extension).
type Source string

// SearchInput is the payload of the search operation.
type SearchInput struct {
	// Query is the text to search for.
	Query string `json:"query"`

	// Sources restricts the search. Empty means all sources of the extension.
	Sources []Source `json:"sources,omitempty"`
}

// SearchResult is a single hit returned by an extension.
// The shape is provider-defined; the common fields are decoded for display
// and Raw keeps the full object as the extension sent it.
type SearchResult struct {
	Source  Source  `json:"source,omitempty"`
	Title   string  `json:"title,omitempty"`
	URL     string  `json:"url,omitempty"`
	Snippet string  `json:"snippet,omitempty"`
	Score   float64 `json:"score,omitempty"`

	// Raw is the original JSON object.
	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the common fields and keeps the raw object.
func (r *SearchResult) UnmarshalJSON(data []byte) error {
	type plain SearchResult
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = SearchResult(p)
	r.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON writes the raw object when present so provider fields survive a round trip.
func (r SearchResult) MarshalJSON() ([]byte, error) {
	if len(r.Raw) > 0 {
		return r.Raw, nil
	}
	type plain SearchResult
	return json.Marshal(plain(r))
}

// SearchOptions configures a search across several extensions.
type SearchOptions struct {
	// Extensions to query. Empty means the configured defaults.
	Extensions []ExtensionID

	// Sources restricts each extension's search.
	Sources []Source

	// Limit caps the results kept per extension. Zero means no cap.
	Limit int
}

// ExtensionResults groups the outcome of one extension's search.
type ExtensionResults struct {
	// ExtensionID is the extension that was queried.
	ExtensionID ExtensionID

	// Results holds the hits, empty when Err is set.
	Results []SearchResult

	// Err is the failure of this extension only.
	Err error

	// Duration is how long the extension took.
	Duration time.Duration
}

// ExtensionSources groups the sources one extension reported.
type ExtensionSources struct {
	ExtensionID ExtensionID
	Sources     []Source
	Err         error
}
