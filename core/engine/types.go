package engine

import (
	"regexp"
	"time"
)

// SourceType identifies which backing store an entry was loaded from.
type SourceType string

const (
	// SourceFile marks entries loaded from the watched local directory.
	SourceFile SourceType = "file"
	// SourceServer marks entries loaded from the remote resource server.
	SourceServer SourceType = "server"
	// SourceBuiltin marks alias entries shipped inside packages.
	SourceBuiltin SourceType = "builtin"
)

// precedence returns the rank of a source; higher wins on key collisions.
func (s SourceType) precedence() int {
	switch s {
	case SourceFile:
		return 2
	case SourceServer:
		return 1
	default:
		return 0
	}
}

// SourceRevision is the version metadata attached to a server-sourced entry.
// It is used to build conditional read requests; file and built-in entries
// never carry one.
type SourceRevision struct {
	// VersionTag is the opaque version identifier (ETag) of the resource.
	VersionTag string
	// LastModified is the server-reported modification timestamp.
	LastModified time.Time
}

// MappingEntry is a named transformation expression held in the Entry Store.
type MappingEntry struct {
	// Key is the unique, stable identifier of the mapping.
	Key string
	// Payload is the entry content in its serialized on-source form.
	// Comparison between entries is always done on this field, never on
	// the parsed value, since sources do not serialize canonically.
	Payload string
	// Value is the parsed form for structured (JSON-sourced) entries, nil otherwise.
	Value any
	// SourceType records which store currently owns this entry.
	SourceType SourceType
	// SourceLocator is the absolute path or fully-qualified resource address.
	SourceLocator string
	// DisplayName is an optional human-readable name.
	DisplayName string
	// CanonicalURL is the optional canonical identity of the mapping.
	CanonicalURL string
	// Revision holds conditional-read metadata for server-sourced entries.
	Revision *SourceRevision
}

// AliasEntry is one key/value substitution pair from a single source.
// The store only ever exposes the merged, precedence-resolved view.
type AliasEntry struct {
	Key           string
	Value         string
	SourceType    SourceType
	SourceLocator string
}

// FileKind discriminates the recognized file types in the watched directory.
type FileKind string

const (
	// KindAliasFile is the single JSON file holding file-sourced aliases.
	KindAliasFile FileKind = "alias"
	// KindStructuredMapping is a JSON mapping file.
	KindStructuredMapping FileKind = "structured"
	// KindTextMapping is a plain-text mapping file with the configured extension.
	KindTextMapping FileKind = "text"
)

// FileFingerprint is the cheap per-file change detector used by the file
// poller. Only modification time and size are compared; content is read
// only when the fingerprint changed.
type FileFingerprint struct {
	ModTime time.Time
	Size    int64
	Key     string
	Kind    FileKind
}

// Equal reports whether two fingerprints describe the same observation.
func (f FileFingerprint) Equal(other FileFingerprint) bool {
	return f.ModTime.Equal(other.ModTime) && f.Size == other.Size && f.Kind == other.Kind
}

// keyPattern restricts entry keys to a safe identifier alphabet.
var keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidKey reports whether a derived key is acceptable for the store.
func ValidKey(key string) bool {
	return key != "" && keyPattern.MatchString(key)
}
