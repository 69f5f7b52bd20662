package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Status classifies the outcome of a conditional read.
type Status string

const (
	// StatusOK means the resource was returned with a body.
	StatusOK Status = "ok"
	// StatusNotModified means the cached revision is still current.
	StatusNotModified Status = "not_modified"
	// StatusNotFound means the resource does not exist.
	StatusNotFound Status = "not_found"
	// StatusGone means the resource existed and was deleted.
	StatusGone Status = "gone"
)

// Revision is the version metadata returned alongside a resource body.
type Revision struct {
	VersionTag   string
	LastModified time.Time
}

// Precondition carries the cached revision used to build a conditional
// request. A zero precondition produces an unconditional read.
type Precondition struct {
	VersionTag   string
	LastModified time.Time
}

// ReadResult is the outcome of a conditional read.
type ReadResult struct {
	Status   Status
	Body     []byte
	Revision *Revision
}

// Client is the capability contract the sync engine consumes to reach the
// resource server.
type Client interface {
	// ConditionalRead fetches one resource, honoring the precondition.
	ConditionalRead(ctx context.Context, resourceType, id string, pre *Precondition) (*ReadResult, error)
	// Search runs a filtered query over a resource collection and returns
	// the raw records.
	Search(ctx context.Context, resourceType string, params url.Values) ([]json.RawMessage, error)
	// BaseIdentifier returns the server identity used to build source locators.
	BaseIdentifier() string
}

// searchEnvelope is the wire shape of a search response.
type searchEnvelope struct {
	Total   int               `json:"total"`
	Entries []json.RawMessage `json:"entries"`
}

type httpClient struct {
	base  string
	token string
	http  *http.Client
}

// NewClient creates an HTTP client for the resource server.
func NewClient(cfg Config) (Client, error) {
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	if base == "" {
		return nil, fmt.Errorf("remote base URL is empty")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid remote base URL %q: %w", cfg.BaseURL, err)
	}

	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = 30
	}
	timeoutDuration := time.Duration(timeout) * time.Second

	// Same strict-timeout transport shape as the storage client
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeoutDuration,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   timeoutDuration,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: timeoutDuration,
	}

	return &httpClient{
		base:  base,
		token: cfg.Token,
		http: &http.Client{
			Transport: transport,
			Timeout:   timeoutDuration,
		},
	}, nil
}

func (c *httpClient) BaseIdentifier() string {
	return c.base
}

func (c *httpClient) ConditionalRead(ctx context.Context, resourceType, id string, pre *Precondition) (*ReadResult, error) {
	endpoint := c.base + "/" + url.PathEscape(resourceType) + "/" + url.PathEscape(id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build read request: %w", err)
	}
	c.setCommonHeaders(req)

	// Prefer the version tag; fall back to last-modified; otherwise the
	// read is unconditional.
	if pre != nil {
		if pre.VersionTag != "" {
			req.Header.Set("If-None-Match", pre.VersionTag)
		} else if !pre.LastModified.IsZero() {
			req.Header.Set("If-Modified-Since", pre.LastModified.UTC().Format(http.TimeFormat))
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("read %s/%s failed: %w", resourceType, id, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
		return &ReadResult{
			Status:   StatusOK,
			Body:     body,
			Revision: revisionFromHeaders(resp.Header),
		}, nil
	case http.StatusNotModified:
		return &ReadResult{Status: StatusNotModified}, nil
	case http.StatusNotFound:
		return &ReadResult{Status: StatusNotFound}, nil
	case http.StatusGone:
		return &ReadResult{Status: StatusGone}, nil
	default:
		return nil, fmt.Errorf("read %s/%s returned unexpected status %d", resourceType, id, resp.StatusCode)
	}
}

func (c *httpClient) Search(ctx context.Context, resourceType string, params url.Values) ([]json.RawMessage, error) {
	endpoint := c.base + "/" + url.PathEscape(resourceType)
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	c.setCommonHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search %s failed: %w", resourceType, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search %s returned unexpected status %d", resourceType, resp.StatusCode)
	}

	var envelope searchEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	return envelope.Entries, nil
}

func (c *httpClient) setCommonHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// revisionFromHeaders extracts version metadata from a 200 response.
// Returns nil when the server sent neither header.
func revisionFromHeaders(h http.Header) *Revision {
	rev := &Revision{VersionTag: h.Get("ETag")}
	if lm := h.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			rev.LastModified = t
		}
	}
	if rev.VersionTag == "" && rev.LastModified.IsZero() {
		return nil
	}
	return rev
}
