package engine

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// filePoller watches the local mapping directory by fingerprinting its
// files each tick. Content is read only for files whose fingerprint
// (modification time and size) changed since the last observation, so an
// unchanged directory costs one listing and a handful of stats.
//
// The fingerprint map is only touched from tick, which the task guard
// keeps single-flight.
type filePoller struct {
	dir        string
	mappingExt string
	differ     *Differ
	// aliasSink receives the full file-sourced alias view whenever the
	// alias file changes or disappears. Alias scope is reconciled whole.
	aliasSink func(view map[string]AliasEntry)
	logger    *zap.Logger

	fingerprints map[string]FileFingerprint
}

func newFilePoller(dir, mappingExt string, differ *Differ, aliasSink func(map[string]AliasEntry), logger *zap.Logger) *filePoller {
	return &filePoller{
		dir:          dir,
		mappingExt:   mappingExt,
		differ:       differ,
		aliasSink:    aliasSink,
		logger:       logger,
		fingerprints: make(map[string]FileFingerprint),
	}
}

func (p *filePoller) tick(ctx context.Context) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		// Source unavailable: keep everything as it was, retry next tick.
		p.logger.Warn("Mapping directory unreadable", zap.Error(err))
		return
	}

	seen := make(map[string]struct{}, len(entries))

	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		kind, key, ok := classifyFile(de.Name(), p.mappingExt)
		if !ok {
			continue
		}

		// The listing already proved the file is present; a failed stat
		// below must not read as a removal.
		seen[de.Name()] = struct{}{}

		info, err := de.Info()
		if err != nil {
			p.logger.Warn("Failed to stat file", zap.String("file", de.Name()), zap.Error(err))
			continue
		}

		fp := FileFingerprint{
			ModTime: info.ModTime(),
			Size:    info.Size(),
			Key:     key,
			Kind:    kind,
		}
		if prev, tracked := p.fingerprints[de.Name()]; tracked && prev.Equal(fp) {
			continue
		}

		p.process(ctx, filepath.Join(p.dir, de.Name()), fp)
		// Recorded even when the content was invalid, so a broken file is
		// warned about once per change, not once per tick.
		p.fingerprints[de.Name()] = fp
	}

	p.reapRemoved(ctx, seen)
}

// process reads and applies a new or changed file.
func (p *filePoller) process(ctx context.Context, path string, fp FileFingerprint) {
	switch fp.Kind {
	case KindAliasFile:
		view, err := loadAliasFile(path, p.logger)
		if err != nil {
			p.logger.Warn("Invalid alias file, keeping previous aliases", zap.Error(err))
			return
		}
		p.aliasSink(view)

	default:
		if !ValidKey(fp.Key) {
			p.logger.Warn("Ignoring mapping file with invalid key",
				zap.String("file", filepath.Base(path)),
				zap.String("key", fp.Key),
			)
			return
		}
		entry, err := loadMappingFile(path, fp.Key, fp.Kind)
		if err != nil {
			p.logger.Warn("Invalid mapping file, keeping previous entry", zap.Error(err))
			return
		}
		if err := p.differ.ReconcileOne(ctx, fp.Key, entry, SourceFile); err != nil {
			p.logger.Warn("Failed to apply mapping file", zap.String("key", fp.Key), zap.Error(err))
		}
	}
}

// reapRemoved handles files that were tracked but are no longer present.
func (p *filePoller) reapRemoved(ctx context.Context, seen map[string]struct{}) {
	for name, fp := range p.fingerprints {
		if _, ok := seen[name]; ok {
			continue
		}

		if fp.Kind == KindAliasFile {
			p.aliasSink(map[string]AliasEntry{})
		} else if err := p.differ.ReconcileOne(ctx, fp.Key, nil, SourceFile); err != nil {
			// Fingerprint stays so the removal is retried next tick.
			p.logger.Warn("Failed to reconcile removed file", zap.String("key", fp.Key), zap.Error(err))
			continue
		}
		delete(p.fingerprints, name)
		p.logger.Debug("File no longer tracked", zap.String("file", name))
	}
}
