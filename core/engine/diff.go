package engine

import (
	"context"
	"encoding/json"
	"sort"

	"go.uber.org/zap"
)

// FallbackLookup fetches the lower-precedence (server) view of a single key.
// It returns nil without error when the key is absent from that source too.
type FallbackLookup func(ctx context.Context, key string) (*MappingEntry, error)

// Differ computes and applies the minimal set of upserts and deletes that
// bring the store in line with a freshly computed target state. It never
// replaces the store wholesale.
type Differ struct {
	store    *Store
	fallback FallbackLookup
	logger   *zap.Logger
}

// NewDiffer creates a differ over the given store. fallback may be nil when
// no lower-precedence source exists to fall back to.
func NewDiffer(store *Store, fallback FallbackLookup, logger *zap.Logger) *Differ {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Differ{store: store, fallback: fallback, logger: logger}
}

// Reconcile compares the target state against the current snapshot and
// applies upserts for new or changed keys and deletes for keys the target
// no longer defines. Returns the number of upserts and deletes applied.
func (d *Differ) Reconcile(target map[string]MappingEntry) (upserted, deleted int) {
	snapshot := d.store.Snapshot()

	var upserts []MappingEntry
	var deletes []string

	for key, want := range target {
		have, ok := snapshot[key]
		if !ok || entriesDiffer(have, want) {
			upserts = append(upserts, want)
		}
	}
	for key := range snapshot {
		if _, ok := target[key]; !ok {
			deletes = append(deletes, key)
		}
	}

	// Apply in key order so repeated runs produce identical logs.
	sort.Slice(upserts, func(i, j int) bool { return upserts[i].Key < upserts[j].Key })
	sort.Strings(deletes)

	d.store.ApplyUpserts(upserts)
	d.store.ApplyDeletes(deletes)
	return len(upserts), len(deletes)
}

// ReconcileOne applies the difference rule to a single key, as observed by
// one source, without touching any other key.
//
// A nil fresh entry means the source reports the key absent. Writes
// triggered by a lower-precedence source are refused while a
// higher-precedence source owns the key; this check is what keeps the
// precedence invariant intact when drivers race on the same key.
func (d *Differ) ReconcileOne(ctx context.Context, key string, fresh *MappingEntry, from SourceType) error {
	current, exists := d.store.Get(key)

	if fresh != nil {
		if exists && current.SourceType.precedence() > from.precedence() {
			d.logger.Debug("Skipping update shadowed by higher-precedence source",
				zap.String("key", key),
				zap.String("from", string(from)),
				zap.String("owner", string(current.SourceType)),
			)
			return nil
		}
		if !exists || entriesDiffer(current, *fresh) {
			d.store.ApplyUpserts([]MappingEntry{*fresh})
		}
		return nil
	}

	// Absence report. It only matters if the reporting source owns the key.
	if !exists || current.SourceType != from {
		return nil
	}

	// A file-owned key that disappeared may still exist on the server.
	if from == SourceFile && d.fallback != nil {
		replacement, err := d.fallback(ctx, key)
		if err != nil {
			// Keep the stale entry; the next tick or forced resync settles it.
			d.logger.Warn("Fallback lookup failed, keeping previous entry",
				zap.String("key", key),
				zap.Error(err),
			)
			return err
		}
		if replacement != nil {
			d.store.ApplyUpserts([]MappingEntry{*replacement})
			return nil
		}
	}

	d.store.ApplyDeletes([]string{key})
	return nil
}

// ReconcileAliases replaces the merged alias view as a single unit, but only
// when its serialized form differs from the one currently applied.
// Returns true when a replacement happened.
func (d *Differ) ReconcileAliases(merged map[string]AliasEntry) bool {
	serialized := serializeAliases(merged)
	if serialized == d.store.AliasSerialized() {
		return false
	}
	d.store.ReplaceAliases(merged, serialized)
	return true
}

// entriesDiffer reports whether two entries for the same key differ.
// Payloads are compared as serialized text; a revision change alone also
// counts so that conditional-read metadata stays current.
func entriesDiffer(a, b MappingEntry) bool {
	if a.Payload != b.Payload ||
		a.SourceType != b.SourceType ||
		a.SourceLocator != b.SourceLocator ||
		a.DisplayName != b.DisplayName ||
		a.CanonicalURL != b.CanonicalURL {
		return true
	}
	return revisionsDiffer(a.Revision, b.Revision)
}

func revisionsDiffer(a, b *SourceRevision) bool {
	if a == nil || b == nil {
		return (a == nil) != (b == nil)
	}
	return a.VersionTag != b.VersionTag || !a.LastModified.Equal(b.LastModified)
}

// serializeAliases renders the merged dictionary in a stable form usable
// for whole-scope comparison.
func serializeAliases(merged map[string]AliasEntry) string {
	flat := make(map[string]string, len(merged))
	for k, v := range merged {
		flat[k] = v.Value
	}
	// encoding/json sorts map keys, so this is canonical.
	data, err := json.Marshal(flat)
	if err != nil {
		return ""
	}
	return string(data)
}
