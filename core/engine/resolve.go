package engine

import (
	"sort"

	"go.uber.org/zap"
)

// mappingPrecedence lists mapping sources from lowest to highest precedence.
var mappingPrecedence = []SourceType{SourceServer, SourceFile}

// aliasPrecedence lists alias sources from lowest to highest precedence.
var aliasPrecedence = []SourceType{SourceBuiltin, SourceServer, SourceFile}

// ResolveMappings layers the per-source mapping views into one target state.
// Higher-precedence sources overwrite lower ones key by key; each overwrite
// is reported once as a collision warning. Output and warnings are
// deterministic for a fixed input.
func ResolveMappings(views map[SourceType]map[string]MappingEntry, logger *zap.Logger) map[string]MappingEntry {
	if logger == nil {
		logger = zap.NewNop()
	}

	resolved := make(map[string]MappingEntry)
	for _, source := range mappingPrecedence {
		view, ok := views[source]
		if !ok {
			continue
		}
		for _, key := range sortedMappingKeys(view) {
			if prev, exists := resolved[key]; exists {
				logger.Warn("Mapping key defined by multiple sources",
					zap.String("key", key),
					zap.String("winning_source", string(source)),
					zap.String("shadowed_source", string(prev.SourceType)),
				)
			}
			resolved[key] = view[key]
		}
	}
	return resolved
}

// ResolveAliases layers per-source alias views into the merged dictionary.
func ResolveAliases(views map[SourceType]map[string]AliasEntry, logger *zap.Logger) map[string]AliasEntry {
	if logger == nil {
		logger = zap.NewNop()
	}

	resolved := make(map[string]AliasEntry)
	for _, source := range aliasPrecedence {
		view, ok := views[source]
		if !ok {
			continue
		}
		for _, key := range sortedAliasKeys(view) {
			if prev, exists := resolved[key]; exists {
				logger.Warn("Alias key defined by multiple sources",
					zap.String("key", key),
					zap.String("winning_source", string(source)),
					zap.String("shadowed_source", string(prev.SourceType)),
				)
			}
			resolved[key] = view[key]
		}
	}
	return resolved
}

func sortedMappingKeys(view map[string]MappingEntry) []string {
	keys := make([]string, 0, len(view))
	for k := range view {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedAliasKeys(view map[string]AliasEntry) []string {
	keys := make([]string, 0, len(view))
	for k := range view {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
