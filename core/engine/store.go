package engine

import (
	"sync"

	"go.uber.org/zap"
)

// Store is the canonical in-memory directory of mappings plus the merged
// alias dictionary. It is created once at engine start and lives for the
// process lifetime; mutations are incremental and atomic per call, the
// store is never cleared and repopulated.
type Store struct {
	mu       sync.RWMutex
	mappings map[string]MappingEntry

	aliases map[string]AliasEntry
	// aliasSerialized is the serialized form of the merged alias object the
	// last time it was applied. The alias scope is diffed as a single unit
	// against this string.
	aliasSerialized string

	logger *zap.Logger
}

// NewStore creates an empty store.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		mappings: make(map[string]MappingEntry),
		aliases:  make(map[string]AliasEntry),
		logger:   logger,
	}
}

// Snapshot returns a point-in-time copy of all mapping entries.
// Callers may read it without holding any lock.
func (s *Store) Snapshot() map[string]MappingEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]MappingEntry, len(s.mappings))
	for k, v := range s.mappings {
		out[k] = v
	}
	return out
}

// Get returns the entry for a single key.
func (s *Store) Get(key string) (MappingEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.mappings[key]
	return e, ok
}

// Aliases returns a copy of the merged alias dictionary as flat key/value pairs.
func (s *Store) Aliases() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.aliases))
	for k, v := range s.aliases {
		out[k] = v.Value
	}
	return out
}

// AliasEntries returns a copy of the merged alias view with source metadata.
func (s *Store) AliasEntries() map[string]AliasEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]AliasEntry, len(s.aliases))
	for k, v := range s.aliases {
		out[k] = v
	}
	return out
}

// AliasSerialized returns the serialized form of the currently applied
// merged alias object.
func (s *Store) AliasSerialized() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.aliasSerialized
}

// ApplyUpserts inserts or replaces the given entries in one atomic step.
func (s *Store) ApplyUpserts(entries []MappingEntry) {
	if len(entries) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		s.mappings[e.Key] = e
		s.logger.Debug("Mapping upserted",
			zap.String("key", e.Key),
			zap.String("source", string(e.SourceType)),
		)
	}
}

// ApplyDeletes removes the given keys in one atomic step.
// Unknown keys are ignored.
func (s *Store) ApplyDeletes(keys []string) {
	if len(keys) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range keys {
		if _, ok := s.mappings[k]; !ok {
			continue
		}
		delete(s.mappings, k)
		s.logger.Debug("Mapping deleted", zap.String("key", k))
	}
}

// ReplaceAliases swaps the merged alias view as one unit.
// The caller is responsible for only invoking this when the serialized
// form actually changed.
func (s *Store) ReplaceAliases(entries map[string]AliasEntry, serialized string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make(map[string]AliasEntry, len(entries))
	for k, v := range entries {
		copied[k] = v
	}
	s.aliases = copied
	s.aliasSerialized = serialized
	s.logger.Debug("Aliases replaced", zap.Int("count", len(copied)))
}

// Counts returns the current number of mappings and aliases.
func (s *Store) Counts() (mappings int, aliases int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.mappings), len(s.aliases)
}
