package engine

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// ResyncSummary reports what one forced resync changed.
type ResyncSummary struct {
	MappingUpserts int  `json:"mapping_upserts"`
	MappingDeletes int  `json:"mapping_deletes"`
	AliasesChanged bool `json:"aliases_changed"`
	FileError      bool `json:"file_error"`
	ServerError    bool `json:"server_error"`
	BuiltinError   bool `json:"builtin_error"`
}

// ForceResync performs a full, unfiltered load from every configured
// source, resolves precedence, and reconciles the whole store through the
// diff engine. This is the only path that observes server-side deletions of
// mapping entries.
//
// A failing source does not abort the resync: its part of the target state
// is conservatively taken from what the store already holds for that
// source, so a transient outage never causes spurious deletions.
func (e *Engine) ForceResync(ctx context.Context) ResyncSummary {
	var (
		fileMappings   map[string]MappingEntry
		fileAliases    map[string]AliasEntry
		serverMappings map[string]MappingEntry
		builtinAliases map[string]AliasEntry
		fileErr        error
		serverErr      error
		builtinErr     error
		wg             sync.WaitGroup
	)

	// Load all sources concurrently
	wg.Add(3)

	go func() {
		defer wg.Done()
		if e.cfg.Dir == "" {
			fileMappings = map[string]MappingEntry{}
			fileAliases = map[string]AliasEntry{}
			return
		}
		fileMappings, fileAliases, fileErr = loadDirectory(e.cfg.Dir, e.cfg.MappingExtension, e.logger)
	}()

	go func() {
		defer wg.Done()
		if e.server == nil {
			serverMappings = map[string]MappingEntry{}
			return
		}
		serverMappings, serverErr = e.server.fullMappingView(ctx)
		// The alias resource has its own conditional-read path; let it run
		// regardless of how the mapping search went.
		e.server.refreshAliases(ctx)
	}()

	go func() {
		defer wg.Done()
		if e.builtins == nil {
			return
		}
		builtinAliases, builtinErr = e.builtins.BuiltinAliases(ctx)
	}()

	wg.Wait()

	summary := ResyncSummary{
		FileError:    fileErr != nil,
		ServerError:  serverErr != nil,
		BuiltinError: builtinErr != nil,
	}

	// Conservative merge: a failed source contributes its previously known
	// state instead of an empty view.
	if fileErr != nil {
		e.logger.Warn("File source failed during resync, reusing cached state", zap.Error(fileErr))
		fileMappings = e.storeViewOf(SourceFile)
		fileAliases = nil
	}
	if serverErr != nil {
		e.logger.Warn("Server source failed during resync, reusing cached state", zap.Error(serverErr))
		serverMappings = e.storeViewOf(SourceServer)
	}
	if builtinErr != nil {
		e.logger.Warn("Package source failed during resync, reusing cached state", zap.Error(builtinErr))
	}

	target := ResolveMappings(map[SourceType]map[string]MappingEntry{
		SourceFile:   fileMappings,
		SourceServer: serverMappings,
	}, e.logger)

	summary.MappingUpserts, summary.MappingDeletes = e.differ.Reconcile(target)

	if fileErr == nil && e.cfg.Dir != "" {
		if e.setAliasView(SourceFile, fileAliases) {
			summary.AliasesChanged = true
		}
	}
	if builtinErr == nil && e.builtins != nil {
		if e.setAliasView(SourceBuiltin, builtinAliases) {
			summary.AliasesChanged = true
		}
	}

	e.logger.Info("Forced resync complete",
		zap.Int("upserts", summary.MappingUpserts),
		zap.Int("deletes", summary.MappingDeletes),
		zap.Bool("aliases_changed", summary.AliasesChanged),
	)
	return summary
}

// storeViewOf extracts the store's current entries owned by one source.
func (e *Engine) storeViewOf(source SourceType) map[string]MappingEntry {
	snapshot := e.store.Snapshot()
	view := make(map[string]MappingEntry)
	for key, entry := range snapshot {
		if entry.SourceType == source {
			view[key] = entry
		}
	}
	return view
}
