// Command sercha-extension-echo is a minimal extension that echoes queries.
// It serves as a template for extensions and as a smoke test for the host.
//
// Install it as <modules_dir>/echo and run:
//
//	sercha search -e echo "hello"
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/custodia-labs/sercha-extensions/internal/core/domain"
	"github.com/custodia-labs/sercha-extensions/internal/extprocess"
)

var sources = []domain.Source{"echo", "reverse"}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	router := extprocess.NewRouter()
	extprocess.Handle(router, domain.OpGetSources, getSources)
	extprocess.Handle(router, domain.OpSearch, search)

	if err := extprocess.Serve(ctx, router); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", extprocess.ID(), err)
		os.Exit(1)
	}
}

func getSources(context.Context, domain.Empty) ([]domain.Source, error) {
	return sources, nil
}

func search(_ context.Context, in domain.SearchInput) ([]domain.SearchResult, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, &extprocess.Error{Message: "empty query", Code: "invalid_input"}
	}

	selected := in.Sources
	if len(selected) == 0 {
		selected = sources
	}

	results := make([]domain.SearchResult, 0, len(selected))
	for _, source := range selected {
		switch source {
		case "echo":
			results = append(results, domain.SearchResult{Source: source, Title: in.Query, Score: 1})
		case "reverse":
			results = append(results, domain.SearchResult{Source: source, Title: reverse(in.Query), Score: 0.5})
		default:
			return nil, &extprocess.Error{Message: fmt.Sprintf("unknown source %q", source), Code: "invalid_input"}
		}
	}
	return results, nil
}

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}
