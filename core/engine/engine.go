package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"mapping-registry/core/remote"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// BuiltinSource supplies the built-in alias view shipped in packages.
type BuiltinSource interface {
	BuiltinAliases(ctx context.Context) (map[string]AliasEntry, error)
}

// Engine owns the entry store and the three background drivers that keep it
// consistent with the backing sources. It is an explicit instance with a
// construction/start/stop lifecycle; there is no ambient global state.
type Engine struct {
	cfg      Config
	store    *Store
	differ   *Differ
	builtins BuiltinSource
	logger   *zap.Logger

	files  *filePoller
	server *serverPoller

	// aliasViews caches the last known per-source alias views so one
	// source changing never loses another source's contribution.
	aliasMu    sync.Mutex
	aliasViews map[SourceType]map[string]AliasEntry

	// refreshes collapses concurrent focused refreshes of the same key.
	refreshes singleflight.Group

	fileTask   *task
	serverTask *task
	resyncTask *task
	cancel     context.CancelFunc
}

// New creates an engine. client and builtins are optional; a nil client
// disables the server source, a nil builtins disables the package source.
func New(cfg Config, client remote.Client, builtins BuiltinSource, logger *zap.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		cfg:        cfg,
		store:      NewStore(logger),
		builtins:   builtins,
		logger:     logger,
		aliasViews: make(map[SourceType]map[string]AliasEntry),
	}

	// The fallback lets the diff engine replace a vanished file entry with
	// the server's view of the same key instead of dropping it outright.
	fallback := func(ctx context.Context, key string) (*MappingEntry, error) {
		if e.server == nil {
			return nil, nil
		}
		return e.server.fetchOne(ctx, key)
	}
	e.differ = NewDiffer(e.store, fallback, logger)

	if client != nil {
		e.server = newServerPoller(client, e.store, e.differ, cfg.AliasResourceID, func(view map[string]AliasEntry) {
			e.setAliasView(SourceServer, view)
		}, logger)
	}
	if cfg.Dir != "" {
		e.files = newFilePoller(cfg.Dir, cfg.MappingExtension, e.differ, func(view map[string]AliasEntry) {
			e.setAliasView(SourceFile, view)
		}, logger)
	}

	return e, nil
}

// Start performs the initial full load and launches the background drivers.
// Stop cancels them; ticks already in flight run to completion.
func (e *Engine) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.ForceResync(runCtx)

	if e.files != nil {
		e.fileTask = newTask("file-poller", e.cfg.filePollInterval(), e.files.tick, e.logger)
		e.fileTask.start(runCtx)
	}
	if e.server != nil {
		e.serverTask = newTask("server-poller", e.cfg.serverPollInterval(), e.server.tick, e.logger)
		e.serverTask.start(runCtx)
	}
	e.resyncTask = newTask("forced-resync", e.cfg.resyncInterval(), func(ctx context.Context) {
		e.ForceResync(ctx)
	}, e.logger)
	e.resyncTask.start(runCtx)

	e.logger.Info("Sync engine started",
		zap.String("dir", e.cfg.Dir),
		zap.Bool("server_source", e.server != nil),
		zap.Bool("package_source", e.builtins != nil),
	)
	return nil
}

// Stop cancels all driver timers.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

// Snapshot returns a point-in-time copy of all mappings.
func (e *Engine) Snapshot() map[string]MappingEntry {
	return e.store.Snapshot()
}

// Mapping returns the entry for one key.
func (e *Engine) Mapping(key string) (MappingEntry, bool) {
	return e.store.Get(key)
}

// Aliases returns the merged alias dictionary.
func (e *Engine) Aliases() map[string]string {
	return e.store.Aliases()
}

// RefreshMapping reconciles exactly one key against its real source, on
// demand. Concurrent refreshes of the same key are collapsed into one.
func (e *Engine) RefreshMapping(ctx context.Context, key string) error {
	if !ValidKey(key) {
		return fmt.Errorf("invalid mapping key %q", key)
	}

	_, err, _ := e.refreshes.Do(key, func() (any, error) {
		current, exists := e.store.Get(key)

		// A file-owned key is checked against the disk first; its file may
		// have changed or vanished since the last poll tick.
		if exists && current.SourceType == SourceFile {
			return nil, e.refreshFromFile(ctx, key, current)
		}
		if e.server != nil {
			return nil, e.server.refreshOne(ctx, key)
		}
		return nil, nil
	})
	return err
}

func (e *Engine) refreshFromFile(ctx context.Context, key string, current MappingEntry) error {
	kind := KindTextMapping
	if strings.EqualFold(filepath.Ext(current.SourceLocator), structuredExtension) {
		kind = KindStructuredMapping
	}

	entry, err := loadMappingFile(current.SourceLocator, key, kind)
	if err != nil {
		// File gone or unreadable: report absence and let the diff engine
		// fall back to the server's view.
		return e.differ.ReconcileOne(ctx, key, nil, SourceFile)
	}
	return e.differ.ReconcileOne(ctx, key, entry, SourceFile)
}

// setAliasView replaces one source's cached alias view and reconciles the
// merged dictionary as a whole. Returns true when the store changed.
func (e *Engine) setAliasView(source SourceType, view map[string]AliasEntry) bool {
	e.aliasMu.Lock()
	defer e.aliasMu.Unlock()

	if view == nil {
		view = map[string]AliasEntry{}
	}
	e.aliasViews[source] = view

	merged := ResolveAliases(e.aliasViews, e.logger)
	return e.differ.ReconcileAliases(merged)
}

// Status describes the engine's current shape for the read API.
type Status struct {
	Mappings       int       `json:"mappings"`
	Aliases        int       `json:"aliases"`
	FileSource     bool      `json:"file_source"`
	ServerSource   bool      `json:"server_source"`
	PackageSource  bool      `json:"package_source"`
	LastFilePoll   time.Time `json:"last_file_poll,omitempty"`
	LastServerPoll time.Time `json:"last_server_poll,omitempty"`
	LastResync     time.Time `json:"last_resync,omitempty"`
}

// Status returns a snapshot of engine health for the read API.
func (e *Engine) Status() Status {
	mappings, aliases := e.store.Counts()
	s := Status{
		Mappings:      mappings,
		Aliases:       aliases,
		FileSource:    e.files != nil,
		ServerSource:  e.server != nil,
		PackageSource: e.builtins != nil,
	}
	if e.fileTask != nil {
		s.LastFilePoll = e.fileTask.LastRun()
	}
	if e.serverTask != nil {
		s.LastServerPoll = e.serverTask.LastRun()
	}
	if e.resyncTask != nil {
		s.LastResync = e.resyncTask.LastRun()
	}
	return s
}
