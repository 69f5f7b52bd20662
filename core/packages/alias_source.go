package packages

import (
	"context"
	"fmt"
	"sort"

	"mapping-registry/core/engine"
	"mapping-registry/core/translate"

	"go.uber.org/zap"
)

// AliasSource feeds the engine's built-in alias view from alias entries
// shipped inside packages. It implements engine.BuiltinSource.
type AliasSource struct {
	explorer Explorer
	logger   *zap.Logger
}

// NewAliasSource creates an alias source over the explorer.
func NewAliasSource(explorer Explorer, logger *zap.Logger) *AliasSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AliasSource{explorer: explorer, logger: logger}
}

// BuiltinAliases loads every alias entry from every package. A key defined
// by more than one package entry is a duplicate within the built-in source:
// the first occurrence (in stable record order) wins and the rest are
// skipped with a warning.
func (s *AliasSource) BuiltinAliases(ctx context.Context) (map[string]engine.AliasEntry, error) {
	records, err := s.explorer.Lookup(ctx, Filter{Type: TypeAlias})
	if err != nil {
		return nil, fmt.Errorf("failed to look up package aliases: %w", err)
	}

	out := make(map[string]engine.AliasEntry)
	for _, rec := range records {
		content, err := s.explorer.Fetch(ctx, rec)
		if err != nil {
			s.logger.Warn("Skipping unreadable package alias entry",
				zap.String("locator", rec.Locator()),
				zap.Error(err),
			)
			continue
		}

		values, err := translate.ParsePackageAliases(content)
		if err != nil {
			s.logger.Warn("Skipping invalid package alias entry",
				zap.String("locator", rec.Locator()),
				zap.Error(err),
			)
			continue
		}

		for _, key := range sortedKeys(values) {
			if _, dup := out[key]; dup {
				s.logger.Warn("Duplicate built-in alias key",
					zap.String("key", key),
					zap.String("locator", rec.Locator()),
				)
				continue
			}
			out[key] = engine.AliasEntry{
				Key:           key,
				Value:         values[key],
				SourceType:    engine.SourceBuiltin,
				SourceLocator: rec.Locator(),
			}
		}
	}
	return out, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
