package registry

import (
	"context"
	"sort"

	"mapping-registry/core/engine"
	"mapping-registry/core/packages"

	"go.uber.org/zap"
)

// Service exposes the read surface over the sync engine and the package
// explorer. It never mutates any source.
type Service struct {
	engine   *engine.Engine
	explorer packages.Explorer
	logger   *zap.Logger
}

// NewService creates a new registry service. explorer may be nil when no
// package repository is configured.
func NewService(eng *engine.Engine, explorer packages.Explorer, logger *zap.Logger) *Service {
	return &Service{
		engine:   eng,
		explorer: explorer,
		logger:   logger,
	}
}

// MappingSummary is the list representation of one mapping.
type MappingSummary struct {
	Key           string `json:"key"`
	DisplayName   string `json:"display_name,omitempty"`
	SourceType    string `json:"source_type"`
	SourceLocator string `json:"source_locator"`
}

// ListMappings returns all mappings, sorted by key.
func (s *Service) ListMappings() []MappingSummary {
	snapshot := s.engine.Snapshot()

	out := make([]MappingSummary, 0, len(snapshot))
	for _, entry := range snapshot {
		out = append(out, MappingSummary{
			Key:           entry.Key,
			DisplayName:   entry.DisplayName,
			SourceType:    string(entry.SourceType),
			SourceLocator: entry.SourceLocator,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// GetMapping returns one mapping entry.
func (s *Service) GetMapping(key string) (engine.MappingEntry, bool) {
	return s.engine.Mapping(key)
}

// Aliases returns the merged alias dictionary.
func (s *Service) Aliases() map[string]string {
	return s.engine.Aliases()
}

// Refresh reconciles one key against its real source on demand.
func (s *Service) Refresh(ctx context.Context, key string) error {
	return s.engine.RefreshMapping(ctx, key)
}

// Status returns the engine status.
func (s *Service) Status() engine.Status {
	return s.engine.Status()
}

// PackageEntries lists package repository entries matching the filter.
func (s *Service) PackageEntries(ctx context.Context, f packages.Filter) ([]packages.Record, error) {
	if s.explorer == nil {
		return nil, nil
	}
	return s.explorer.Lookup(ctx, f)
}

// PackageContent resolves exactly one package entry and fetches its content.
func (s *Service) PackageContent(ctx context.Context, f packages.Filter) (*packages.Record, []byte, error) {
	if s.explorer == nil {
		return nil, nil, packages.ErrNotFound
	}
	rec, err := s.explorer.Resolve(ctx, f)
	if err != nil {
		return nil, nil, err
	}
	content, err := s.explorer.Fetch(ctx, *rec)
	if err != nil {
		return nil, nil, err
	}
	return rec, content, nil
}
