package translate

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"mapping-registry/core/utils"
)

// Resource type identifiers on the server side.
const (
	ResourceMappings = "mappings"
	ResourceAliases  = "aliases"
)

// MappingRecord is the parsed wire form of one mapping resource.
type MappingRecord struct {
	ID           string
	Name         string
	CanonicalURL string
	Expression   string
	// Structured holds the parsed expression for JSON content, nil for text.
	Structured   any
	VersionTag   string
	LastModified time.Time
}

// AliasDocument is the parsed wire form of the alias resource.
type AliasDocument struct {
	ID           string
	Values       map[string]string
	VersionTag   string
	LastModified time.Time
}

// wire shapes

type wireMeta struct {
	VersionID   string `json:"versionId"`
	LastUpdated string `json:"lastUpdated"`
}

type wireMapping struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	URL         string          `json:"url"`
	ContentType string          `json:"contentType"`
	Expression  json.RawMessage `json:"expression"`
	Meta        *wireMeta       `json:"meta"`
}

type wireAliases struct {
	ID     string         `json:"id"`
	Values map[string]any `json:"values"`
	Meta   *wireMeta      `json:"meta"`
}

// ParseMappingRecord converts one raw server record into a MappingRecord.
// The record is rejected when the id is missing or the expression is empty.
func ParseMappingRecord(raw json.RawMessage) (*MappingRecord, error) {
	var w wireMapping
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("malformed mapping record: %w", err)
	}
	if w.ID == "" {
		return nil, fmt.Errorf("mapping record has no id")
	}
	if len(w.Expression) == 0 {
		return nil, fmt.Errorf("mapping record %q has no expression", w.ID)
	}

	rec := &MappingRecord{
		ID:           w.ID,
		Name:         w.Name,
		CanonicalURL: w.URL,
	}

	// The expression is either a JSON string (text mapping) or an embedded
	// structured value. The payload keeps the serialized form either way.
	var text string
	if err := json.Unmarshal(w.Expression, &text); err == nil {
		rec.Expression = text
	} else {
		var structured any
		if err := json.Unmarshal(w.Expression, &structured); err != nil {
			return nil, fmt.Errorf("mapping record %q has an unreadable expression: %w", w.ID, err)
		}
		rec.Expression = string(w.Expression)
		rec.Structured = structured
	}

	if w.Meta != nil {
		rec.VersionTag = w.Meta.VersionID
		rec.LastModified = parseWireTime(w.Meta.LastUpdated)
	}
	return rec, nil
}

// ParseAliasDocument converts the alias resource body into an AliasDocument.
// Values are coerced to strings; entries with empty keys are rejected as a
// whole since the document is applied as one unit.
func ParseAliasDocument(body []byte) (*AliasDocument, error) {
	var w wireAliases
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("malformed alias document: %w", err)
	}

	doc := &AliasDocument{
		ID:     w.ID,
		Values: make(map[string]string, len(w.Values)),
	}
	for k, v := range w.Values {
		if strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("alias document contains an empty key")
		}
		doc.Values[k] = utils.ToString(v)
	}

	if w.Meta != nil {
		doc.VersionTag = w.Meta.VersionID
		doc.LastModified = parseWireTime(w.Meta.LastUpdated)
	}
	return doc, nil
}

// ParsePackageAliases reads the alias values shipped in a package entry.
// Package content is a flat JSON object; duplicate handling across entries
// is the caller's concern.
func ParsePackageAliases(content []byte) (map[string]string, error) {
	var values map[string]any
	if err := json.Unmarshal(content, &values); err != nil {
		return nil, fmt.Errorf("malformed package alias content: %w", err)
	}

	out := make(map[string]string, len(values))
	for k, v := range values {
		if strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("package alias content contains an empty key")
		}
		out[k] = utils.ToString(v)
	}
	return out, nil
}

func parseWireTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
