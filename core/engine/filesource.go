package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mapping-registry/core/utils"

	"go.uber.org/zap"
)

// classifyFile maps a directory entry name to its recognized kind and key.
// Unrecognized names return ok=false and are ignored by the poller.
func classifyFile(name, mappingExt string) (kind FileKind, key string, ok bool) {
	if name == AliasFileName {
		return KindAliasFile, AliasFileName, true
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	switch {
	case strings.EqualFold(ext, structuredExtension):
		return KindStructuredMapping, base, true
	case strings.EqualFold(ext, mappingExt):
		return KindTextMapping, base, true
	default:
		return "", "", false
	}
}

// loadMappingFile reads one mapping file into an entry. The payload is the
// raw file content; structured files are additionally parsed so invalid
// JSON is rejected, but comparison stays on the serialized form.
func loadMappingFile(path, key string, kind FileKind) (*MappingEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping file %s: %w", path, err)
	}

	entry := &MappingEntry{
		Key:           key,
		Payload:       string(data),
		SourceType:    SourceFile,
		SourceLocator: path,
	}

	if kind == KindStructuredMapping {
		var value any
		if err := json.Unmarshal(data, &value); err != nil {
			return nil, fmt.Errorf("mapping file %s is not valid JSON: %w", path, err)
		}
		entry.Value = value
	}
	return entry, nil
}

// loadAliasFile reads the alias file into a file-sourced alias view.
// The file is one flat JSON object; values are coerced to strings.
func loadAliasFile(path string, logger *zap.Logger) (map[string]AliasEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read alias file %s: %w", path, err)
	}

	var values map[string]any
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("alias file %s is not a valid JSON object: %w", path, err)
	}

	out := make(map[string]AliasEntry, len(values))
	for k, v := range values {
		if strings.TrimSpace(k) == "" {
			logger.Warn("Skipping alias with empty key", zap.String("file", path))
			continue
		}
		out[k] = AliasEntry{
			Key:           k,
			Value:         utils.ToString(v),
			SourceType:    SourceFile,
			SourceLocator: path,
		}
	}
	return out, nil
}

// loadDirectory performs a full read of the watched directory, returning the
// complete file-sourced mapping view and alias view. Individual invalid
// files are skipped with a warning; only a directory-level failure is an error.
func loadDirectory(dir, mappingExt string, logger *zap.Logger) (map[string]MappingEntry, map[string]AliasEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read mapping directory %s: %w", dir, err)
	}

	mappings := make(map[string]MappingEntry)
	aliases := make(map[string]AliasEntry)

	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		kind, key, ok := classifyFile(de.Name(), mappingExt)
		if !ok {
			continue
		}
		path := filepath.Join(dir, de.Name())

		if kind == KindAliasFile {
			view, err := loadAliasFile(path, logger)
			if err != nil {
				logger.Warn("Skipping invalid alias file", zap.Error(err))
				continue
			}
			aliases = view
			continue
		}

		if !ValidKey(key) {
			logger.Warn("Skipping mapping file with invalid key",
				zap.String("file", de.Name()),
				zap.String("key", key),
			)
			continue
		}
		entry, err := loadMappingFile(path, key, kind)
		if err != nil {
			logger.Warn("Skipping invalid mapping file", zap.Error(err))
			continue
		}
		mappings[key] = *entry
	}
	return mappings, aliases, nil
}
