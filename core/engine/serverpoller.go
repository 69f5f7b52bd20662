package engine

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"mapping-registry/core/remote"
	"mapping-registry/core/translate"

	"go.uber.org/zap"
)

// serverPoller keeps the store in step with the resource server using two
// strategies over one conditional-read protocol: a conditional refresh of
// the single alias resource, and an incremental changed-since search over
// the mapping collection. The search path cannot observe deletions; the
// forced resync covers that gap.
type serverPoller struct {
	client    remote.Client
	store     *Store
	differ    *Differ
	aliasSink func(view map[string]AliasEntry)
	logger    *zap.Logger

	mu sync.Mutex
	// pinnedID is the operator-configured alias resource identity; when
	// empty the identity is discovered by search and may be forgotten again
	// when the resource goes away.
	pinnedID      string
	discoveredID  string
	aliasRevision *remote.Revision
	lastSearch    time.Time
}

func newServerPoller(client remote.Client, store *Store, differ *Differ, pinnedID string, aliasSink func(map[string]AliasEntry), logger *zap.Logger) *serverPoller {
	return &serverPoller{
		client:    client,
		store:     store,
		differ:    differ,
		aliasSink: aliasSink,
		pinnedID:  pinnedID,
		logger:    logger,
	}
}

func (p *serverPoller) tick(ctx context.Context) {
	p.refreshAliases(ctx)
	p.incrementalSearch(ctx)
}

// refreshAliases performs one conditional refresh of the alias resource.
func (p *serverPoller) refreshAliases(ctx context.Context) {
	id, ok := p.aliasIdentity(ctx)
	if !ok {
		return
	}

	res, err := p.client.ConditionalRead(ctx, translate.ResourceAliases, id, p.aliasPrecondition())
	if err != nil {
		p.logger.Warn("Alias refresh failed, keeping previous aliases", zap.Error(err))
		return
	}

	switch res.Status {
	case remote.StatusNotModified:
		// Cached revision and content stay exactly as they were.

	case remote.StatusOK:
		doc, err := translate.ParseAliasDocument(res.Body)
		if err != nil {
			p.logger.Warn("Server returned an invalid alias document", zap.Error(err))
			return
		}

		locator := p.client.BaseIdentifier() + "/" + translate.ResourceAliases + "/" + id
		view := make(map[string]AliasEntry, len(doc.Values))
		for k, v := range doc.Values {
			view[k] = AliasEntry{Key: k, Value: v, SourceType: SourceServer, SourceLocator: locator}
		}

		p.setAliasRevision(revisionFromResult(res, doc.VersionTag, doc.LastModified))
		p.aliasSink(view)

	case remote.StatusNotFound, remote.StatusGone:
		// Authoritative delete signal, not an error.
		p.mu.Lock()
		p.aliasRevision = nil
		if p.pinnedID == "" && p.discoveredID != "" {
			p.logger.Info("Alias resource disappeared, forgetting discovered identity",
				zap.String("id", p.discoveredID))
			p.discoveredID = ""
		}
		p.mu.Unlock()
		p.aliasSink(map[string]AliasEntry{})
	}
}

// aliasIdentity returns the alias resource id to poll, discovering it by
// search when no id is pinned. Exactly one candidate is expected; anything
// else means the server source is unusable this cycle.
func (p *serverPoller) aliasIdentity(ctx context.Context) (string, bool) {
	p.mu.Lock()
	if p.pinnedID != "" {
		id := p.pinnedID
		p.mu.Unlock()
		return id, true
	}
	if p.discoveredID != "" {
		id := p.discoveredID
		p.mu.Unlock()
		return id, true
	}
	p.mu.Unlock()

	records, err := p.client.Search(ctx, translate.ResourceAliases, nil)
	if err != nil {
		p.logger.Warn("Alias resource discovery failed", zap.Error(err))
		return "", false
	}

	switch len(records) {
	case 0:
		p.logger.Debug("No alias resource on server")
		p.aliasSink(map[string]AliasEntry{})
		return "", false
	case 1:
		doc, err := translate.ParseAliasDocument(records[0])
		if err != nil || doc.ID == "" {
			p.logger.Warn("Discovered alias resource has no usable identity", zap.Error(err))
			return "", false
		}
		p.mu.Lock()
		p.discoveredID = doc.ID
		p.mu.Unlock()
		p.logger.Info("Discovered alias resource", zap.String("id", doc.ID))
		return doc.ID, true
	default:
		p.logger.Error("Ambiguous alias resource discovery, ignoring server aliases this cycle",
			zap.Int("candidates", len(records)))
		return "", false
	}
}

// incrementalSearch pulls mapping entries changed since the last successful
// poll and reconciles each one.
func (p *serverPoller) incrementalSearch(ctx context.Context) {
	p.mu.Lock()
	since := p.lastSearch
	p.mu.Unlock()

	params := url.Values{}
	if !since.IsZero() {
		params.Set("changed_since", since.UTC().Format(time.RFC3339))
	}

	start := time.Now()
	records, err := p.client.Search(ctx, translate.ResourceMappings, params)
	if err != nil {
		p.logger.Warn("Mapping search failed, keeping previous entries", zap.Error(err))
		return
	}

	for _, raw := range records {
		entry, err := p.entryFromRaw(raw)
		if err != nil {
			p.logger.Warn("Skipping invalid mapping record", zap.Error(err))
			continue
		}
		if err := p.differ.ReconcileOne(ctx, entry.Key, entry, SourceServer); err != nil {
			p.logger.Warn("Failed to apply mapping record", zap.String("key", entry.Key), zap.Error(err))
		}
	}

	p.mu.Lock()
	p.lastSearch = start
	p.mu.Unlock()
}

// refreshOne performs a focused conditional refresh of a single mapping key.
func (p *serverPoller) refreshOne(ctx context.Context, key string) error {
	var pre *remote.Precondition
	if current, ok := p.store.Get(key); ok && current.SourceType == SourceServer && current.Revision != nil {
		pre = &remote.Precondition{
			VersionTag:   current.Revision.VersionTag,
			LastModified: current.Revision.LastModified,
		}
	}

	res, err := p.client.ConditionalRead(ctx, translate.ResourceMappings, key, pre)
	if err != nil {
		return fmt.Errorf("focused refresh of %q failed: %w", key, err)
	}

	switch res.Status {
	case remote.StatusNotModified:
		return nil
	case remote.StatusOK:
		entry, err := p.entryFromRaw(res.Body)
		if err != nil {
			return fmt.Errorf("focused refresh of %q returned an invalid record: %w", key, err)
		}
		if entry.Revision == nil && res.Revision != nil {
			entry.Revision = &SourceRevision{
				VersionTag:   res.Revision.VersionTag,
				LastModified: res.Revision.LastModified,
			}
		}
		return p.differ.ReconcileOne(ctx, entry.Key, entry, SourceServer)
	default:
		return p.differ.ReconcileOne(ctx, key, nil, SourceServer)
	}
}

// fetchOne reads the server's current view of one key, without touching the
// store. Returns nil when the server does not have it. Used as the diff
// engine's fallback when a file-owned key disappears.
func (p *serverPoller) fetchOne(ctx context.Context, key string) (*MappingEntry, error) {
	res, err := p.client.ConditionalRead(ctx, translate.ResourceMappings, key, nil)
	if err != nil {
		return nil, err
	}
	switch res.Status {
	case remote.StatusOK:
		entry, err := p.entryFromRaw(res.Body)
		if err != nil {
			return nil, err
		}
		if entry.Revision == nil && res.Revision != nil {
			entry.Revision = &SourceRevision{
				VersionTag:   res.Revision.VersionTag,
				LastModified: res.Revision.LastModified,
			}
		}
		return entry, nil
	default:
		return nil, nil
	}
}

// fullMappingView loads the complete server-side mapping collection.
// Invalid records are skipped; only the search itself can fail.
func (p *serverPoller) fullMappingView(ctx context.Context) (map[string]MappingEntry, error) {
	records, err := p.client.Search(ctx, translate.ResourceMappings, nil)
	if err != nil {
		return nil, fmt.Errorf("full mapping search failed: %w", err)
	}

	view := make(map[string]MappingEntry, len(records))
	for _, raw := range records {
		entry, err := p.entryFromRaw(raw)
		if err != nil {
			p.logger.Warn("Skipping invalid mapping record", zap.Error(err))
			continue
		}
		view[entry.Key] = *entry
	}
	return view, nil
}

func (p *serverPoller) entryFromRaw(raw []byte) (*MappingEntry, error) {
	rec, err := translate.ParseMappingRecord(raw)
	if err != nil {
		return nil, err
	}
	if !ValidKey(rec.ID) {
		return nil, fmt.Errorf("mapping record key %q is invalid", rec.ID)
	}

	entry := &MappingEntry{
		Key:           rec.ID,
		Payload:       rec.Expression,
		Value:         rec.Structured,
		SourceType:    SourceServer,
		SourceLocator: p.client.BaseIdentifier() + "/" + translate.ResourceMappings + "/" + rec.ID,
		DisplayName:   rec.Name,
		CanonicalURL:  rec.CanonicalURL,
	}
	if rec.VersionTag != "" || !rec.LastModified.IsZero() {
		entry.Revision = &SourceRevision{VersionTag: rec.VersionTag, LastModified: rec.LastModified}
	}
	return entry, nil
}

func (p *serverPoller) aliasPrecondition() *remote.Precondition {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.aliasRevision == nil {
		return nil
	}
	return &remote.Precondition{
		VersionTag:   p.aliasRevision.VersionTag,
		LastModified: p.aliasRevision.LastModified,
	}
}

func (p *serverPoller) setAliasRevision(rev *remote.Revision) {
	p.mu.Lock()
	p.aliasRevision = rev
	p.mu.Unlock()
}

// revisionFromResult prefers transport-level revision headers and falls
// back to the metadata embedded in the document.
func revisionFromResult(res *remote.ReadResult, tag string, lastModified time.Time) *remote.Revision {
	if res.Revision != nil {
		return res.Revision
	}
	if tag == "" && lastModified.IsZero() {
		return nil
	}
	return &remote.Revision{VersionTag: tag, LastModified: lastModified}
}
