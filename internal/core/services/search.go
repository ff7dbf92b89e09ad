package services

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/sercha-extensions/internal/core/domain"
	"github.com/custodia-labs/sercha-extensions/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-extensions/internal/logger"
)

// Ensure SearchService implements the interface.
var _ driving.SearchService = (*SearchService)(nil)

// maxParallelCalls bounds how many extensions one fan-out calls at once.
const maxParallelCalls = 8

// SearchService fans queries out to extensions and groups the results.
type SearchService struct {
	registry driving.ExtensionRegistry
	settings domain.ExtensionSettings
	parallel int

	mu       sync.Mutex
	limiters map[domain.ExtensionID]*rate.Limiter
}

// NewSearchService creates a search service over the registry's extensions.
func NewSearchService(registry driving.ExtensionRegistry, settings domain.ExtensionSettings) *SearchService {
	return &SearchService{
		registry: registry,
		settings: settings,
		parallel: maxParallelCalls,
		limiters: make(map[domain.ExtensionID]*rate.Limiter),
	}
}

// Search queries the selected extensions in parallel, at most
// maxParallelCalls at a time. Groups are returned in the order the
// extensions were named. Cancelling ctx returns its error with the groups.
func (s *SearchService) Search(
	ctx context.Context, query string, opts domain.SearchOptions,
) ([]domain.ExtensionResults, error) {
	logger.Section("Extension Search")

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidInput)
	}

	ids, err := s.selected(opts.Extensions)
	if err != nil {
		return nil, err
	}
	logger.Debug("Query: %q, extensions: %v, sources: %v", query, ids, opts.Sources)

	groups := make([]domain.ExtensionResults, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallel)
	for i, id := range ids {
		g.Go(func() error {
			start := time.Now()
			results, err := s.searchOne(gctx, id, query, opts.Sources)
			if err != nil {
				logger.Warn("extension %q search failed: %v", id, err)
			}
			if opts.Limit > 0 && len(results) > opts.Limit {
				results = results[:opts.Limit]
			}
			groups[i] = domain.ExtensionResults{
				ExtensionID: id,
				Results:     results,
				Err:         err,
				Duration:    time.Since(start),
			}
			// Extension failures stay in their group; only cancellation ends the fan-out.
			return gctx.Err()
		})
	}
	return groups, g.Wait()
}

func (s *SearchService) searchOne(
	ctx context.Context, id domain.ExtensionID, query string, sources []domain.Source,
) ([]domain.SearchResult, error) {
	if err := s.limiter(id).Wait(ctx); err != nil {
		return nil, fmt.Errorf("throttled: %w", err)
	}

	ext, err := s.ready(ctx, id)
	if err != nil {
		return nil, err
	}
	return ext.Search(ctx, query, sources...)
}

// ListSources asks each extension for its sources.
func (s *SearchService) ListSources(
	ctx context.Context, ids []domain.ExtensionID,
) ([]domain.ExtensionSources, error) {
	ids, err := s.selected(ids)
	if err != nil {
		return nil, err
	}

	groups := make([]domain.ExtensionSources, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallel)
	for i, id := range ids {
		g.Go(func() error {
			groups[i].ExtensionID = id
			ext, err := s.ready(gctx, id)
			if err != nil {
				groups[i].Err = err
				return gctx.Err()
			}
			groups[i].Sources, groups[i].Err = ext.GetSources(gctx)
			return gctx.Err()
		})
	}
	return groups, g.Wait()
}

// Available lists the extensions installed in the modules directory.
// A missing directory means none are installed.
func (s *SearchService) Available() ([]domain.ExtensionID, error) {
	entries, err := os.ReadDir(s.settings.ModulesDir)
	if os.IsNotExist(err) {
		return []domain.ExtensionID{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading modules directory: %w", err)
	}

	ids := make([]domain.ExtensionID, 0, len(entries))
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		id := domain.ExtensionID(entry.Name())
		if id.Validate() != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// selected resolves the extensions to query: the given ids, else the
// configured defaults, else everything installed. Duplicates are dropped.
func (s *SearchService) selected(ids []domain.ExtensionID) ([]domain.ExtensionID, error) {
	if len(ids) == 0 {
		ids = s.settings.Defaults
	}
	if len(ids) == 0 {
		available, err := s.Available()
		if err != nil {
			return nil, err
		}
		ids = available
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no extensions installed in %s", domain.ErrNotFound, s.settings.ModulesDir)
	}

	seen := make(map[domain.ExtensionID]bool, len(ids))
	unique := make([]domain.ExtensionID, 0, len(ids))
	for _, id := range ids {
		if err := id.Validate(); err != nil {
			return nil, err
		}
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	return unique, nil
}

// ready gets the extension and waits until it can take calls.
func (s *SearchService) ready(ctx context.Context, id domain.ExtensionID) (driving.Extension, error) {
	ext, err := s.registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := waitReady(ctx, ext, s.settings.ReadyTimeout); err != nil {
		return nil, err
	}
	return ext, nil
}

// waitReady blocks until ext is ready, exits, ctx ends, or timeout elapses.
// A zero timeout waits on ctx alone.
func waitReady(ctx context.Context, ext driving.Extension, timeout time.Duration) error {
	ready := make(chan struct{})
	exited := make(chan error, 1)

	cancelReady := ext.OnceReady(func() { close(ready) })
	defer cancelReady()
	cancelExit := ext.OnceExit(func(exitErr error) { exited <- exitErr })
	defer cancelExit()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-ready:
		return nil
	case exitErr := <-exited:
		if exitErr != nil {
			return fmt.Errorf("%w: extension %q exited before ready: %w", domain.ErrNotRunning, ext.ID(), exitErr)
		}
		return fmt.Errorf("%w: extension %q exited before ready", domain.ErrNotRunning, ext.ID())
	case <-ctx.Done():
		return ctx.Err()
	case <-expired:
		return fmt.Errorf("%w: extension %q not ready after %s", domain.ErrRequestTimeout, ext.ID(), timeout)
	}
}

// limiter returns the search throttle for id. A zero rate disables throttling.
func (s *SearchService) limiter(id domain.ExtensionID) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.limiters[id]; ok {
		return l
	}

	limit := rate.Limit(s.settings.SearchRate)
	if s.settings.SearchRate <= 0 {
		limit = rate.Inf
	}
	burst := s.settings.SearchBurst
	if burst < 1 {
		burst = 1
	}
	l := rate.NewLimiter(limit, burst)
	s.limiters[id] = l
	return l
}
