package mcp

import (
	"context"

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

// mockRegistry is a mock implementation of driving.ExtensionRegistry.
type mockRegistry struct {
	infos []domain.ExtensionInfo
}

func (m *mockRegistry) Get(context.Context, domain.ExtensionID) (driving.Extension, error) {
	return nil, domain.ErrNotFound
}

func (m *mockRegistry) Terminate(domain.ExtensionID) error { return nil }

func (m *mockRegistry) TerminateAll() error { return nil }

func (m *mockRegistry) List() []domain.ExtensionInfo { return m.infos }
