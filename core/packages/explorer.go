package packages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"mapping-registry/core/storage"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// Entry types inside a package index.
const (
	TypeAlias   = "alias"
	TypeMapping = "mapping"
)

// ErrNotFound is returned by Resolve when no record matches the filter.
var ErrNotFound = errors.New("no matching package entry")

// ErrAmbiguous is returned by Resolve when more than one record matches.
var ErrAmbiguous = errors.New("more than one matching package entry")

// Filter narrows a lookup. Empty fields match everything.
type Filter struct {
	Package string
	Version string
	Key     string
	Type    string
}

// Record is one enriched entry from a package index. Package identity and
// in-package filename are carried verbatim from the index, never re-derived.
type Record struct {
	Package  string `json:"package"`
	Version  string `json:"version"`
	Filename string `json:"filename"`
	Key      string `json:"key"`
	Type     string `json:"type"`
}

// Locator returns the source locator for this record.
func (r Record) Locator() string {
	return "pkg://" + r.Package + "@" + r.Version + "/" + r.Filename
}

// Explorer reads the immutable, pre-indexed package repository.
type Explorer interface {
	// Lookup returns all records matching the filter.
	Lookup(ctx context.Context, f Filter) ([]Record, error)
	// Resolve returns exactly one matching record, ErrNotFound when there is
	// none, ErrAmbiguous when there are several.
	Resolve(ctx context.Context, f Filter) (*Record, error)
	// Fetch downloads the content of a record's file.
	Fetch(ctx context.Context, rec Record) ([]byte, error)
}

// packageIndex is the wire shape of <package>/<version>/index.json.
type packageIndex struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Entries []struct {
		Filename string `json:"filename"`
		Key      string `json:"key"`
		Type     string `json:"type"`
	} `json:"entries"`
}

type explorer struct {
	client storage.Client
	bucket string
	logger *zap.Logger

	// The repository is immutable, so indices are loaded once per process.
	once    sync.Once
	records []Record
	loadErr error
}

// NewExplorer creates an explorer over the given bucket.
func NewExplorer(client storage.Client, bucket string, logger *zap.Logger) Explorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &explorer{client: client, bucket: bucket, logger: logger}
}

func (e *explorer) Lookup(ctx context.Context, f Filter) ([]Record, error) {
	if err := e.load(ctx); err != nil {
		return nil, err
	}

	var out []Record
	for _, rec := range e.records {
		if f.Package != "" && rec.Package != f.Package {
			continue
		}
		if f.Version != "" && rec.Version != f.Version {
			continue
		}
		if f.Key != "" && rec.Key != f.Key {
			continue
		}
		if f.Type != "" && rec.Type != f.Type {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (e *explorer) Resolve(ctx context.Context, f Filter) (*Record, error) {
	matches, err := e.Lookup(ctx, f)
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return &matches[0], nil
	default:
		return nil, fmt.Errorf("%w: %d matches", ErrAmbiguous, len(matches))
	}
}

func (e *explorer) Fetch(ctx context.Context, rec Record) ([]byte, error) {
	objectName := rec.Package + "/" + rec.Version + "/" + rec.Filename
	obj, err := e.client.GetObject(ctx, e.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch package object %s: %w", objectName, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read package object %s: %w", objectName, err)
	}
	return data, nil
}

// load scans the bucket for package indices and flattens them into records.
func (e *explorer) load(ctx context.Context) error {
	e.once.Do(func() {
		exists, err := e.client.BucketExists(ctx, e.bucket)
		if err != nil {
			e.loadErr = fmt.Errorf("failed to check package bucket: %w", err)
			return
		}
		if !exists {
			e.loadErr = fmt.Errorf("package bucket %q does not exist", e.bucket)
			return
		}

		for info := range e.client.ListObjects(ctx, e.bucket, minio.ListObjectsOptions{Recursive: true}) {
			if info.Err != nil {
				e.loadErr = fmt.Errorf("failed to list package bucket: %w", info.Err)
				return
			}
			if !strings.HasSuffix(info.Key, "/index.json") {
				continue
			}
			if err := e.loadIndex(ctx, info.Key); err != nil {
				// One broken package must not hide the rest.
				e.logger.Warn("Skipping unreadable package index",
					zap.String("object", info.Key),
					zap.Error(err),
				)
			}
		}

		sort.Slice(e.records, func(i, j int) bool {
			a, b := e.records[i], e.records[j]
			if a.Package != b.Package {
				return a.Package < b.Package
			}
			if a.Version != b.Version {
				return a.Version < b.Version
			}
			return a.Filename < b.Filename
		})
	})
	return e.loadErr
}

func (e *explorer) loadIndex(ctx context.Context, objectName string) error {
	obj, err := e.client.GetObject(ctx, e.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return err
	}
	defer obj.Close()

	var idx packageIndex
	if err := json.NewDecoder(obj).Decode(&idx); err != nil {
		return err
	}
	if idx.Name == "" || idx.Version == "" {
		return fmt.Errorf("index %s is missing package identity", objectName)
	}

	for _, entry := range idx.Entries {
		if entry.Filename == "" || entry.Key == "" {
			e.logger.Warn("Skipping package entry without filename or key",
				zap.String("package", idx.Name),
				zap.String("version", idx.Version),
			)
			continue
		}
		e.records = append(e.records, Record{
			Package:  idx.Name,
			Version:  idx.Version,
			Filename: entry.Filename,
			Key:      entry.Key,
			Type:     entry.Type,
		})
	}
	return nil
}
