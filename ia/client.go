// Package ia wraps the Internet Archive's S3-like upload API and item
// metadata endpoint as the opaque "upload file + metadata" capability
// consumed by the reconciliation engine.
package ia

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Sentinel errors for upload outcomes the engine must distinguish.
var (
	// ErrRateLimited means the backend asked us to slow down.
	ErrRateLimited = errors.New("ia: rate limited")
	// ErrItemTakenOffline means the identifier existed previously but the
	// item was removed by a moderator.
	ErrItemTakenOffline = errors.New("ia: item taken offline")
	// ErrMissingCredentials means no access keypair is configured.
	ErrMissingCredentials = errors.New("ia: missing credentials")
)

// Production endpoints, overridable for tests.
const (
	defaultUploadBase   = "https://s3.us.archive.org"
	defaultMetadataBase = "https://archive.org/metadata"
)

// Client talks to the archive. All calls share a conservative token
// bucket so a burst of uploads does not trip the backend's limits.
type Client struct {
	accessKey string
	secretKey string

	uploadBase   string
	metadataBase string
	httpc        *http.Client
	limiter      *rate.Limiter
}

// NewClient returns a Client using the given S3-style access keypair.
func NewClient(accessKey, secretKey string) (*Client, error) {
	if accessKey == "" || secretKey == "" {
		return nil, ErrMissingCredentials
	}
	return &Client{
		accessKey:    accessKey,
		secretKey:    secretKey,
		uploadBase:   defaultUploadBase,
		metadataBase: defaultMetadataBase,
		httpc:        &http.Client{Timeout: 30 * time.Minute},
		limiter:      rate.NewLimiter(rate.Limit(1), 1),
	}, nil
}

// ItemMetadata is the subset of an archive item's metadata the pipeline
// inspects.
type ItemMetadata struct {
	// Uploader is the account email that created the item.
	Uploader string
	// Fields holds the remaining metadata verbatim.
	Fields map[string]any
}

// ItemMetadata fetches metadata for an identifier. A nil result with nil
// error means no item exists under that identifier.
func (c *Client) ItemMetadata(ctx context.Context, identifier string) (*ItemMetadata, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := c.metadataBase + "/" + url.PathEscape(identifier)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ia: fetch metadata %s: %w", identifier, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, string(body))
	}

	var parsed struct {
		Metadata map[string]any `json:"metadata"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("ia: parse metadata %s: %w", identifier, err)
	}
	if len(parsed.Metadata) == 0 {
		return nil, nil
	}
	uploader, _ := parsed.Metadata["uploader"].(string)
	return &ItemMetadata{Uploader: uploader, Fields: parsed.Metadata}, nil
}

// Upload PUTs the file into the item identified by identifier, creating
// the item when needed, and returns the backend's HTTP status code.
func (c *Client) Upload(ctx context.Context, identifier, filePath string, md Metadata) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	f, err := os.Open(filePath)
	if err != nil {
		return 0, fmt.Errorf("ia: open %s: %w", filePath, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}

	endpoint := fmt.Sprintf("%s/%s/%s",
		c.uploadBase,
		url.PathEscape(identifier),
		url.PathEscape(filepath.Base(filePath)))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, f)
	if err != nil {
		return 0, err
	}
	req.ContentLength = info.Size()
	req.Header.Set("Authorization", fmt.Sprintf("LOW %s:%s", c.accessKey, c.secretKey))
	req.Header.Set("X-Amz-Auto-Make-Bucket", "1")
	for k, v := range md {
		req.Header.Set("X-Archive-Meta-"+headerKey(k), v)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, fmt.Errorf("ia: upload %s: %w", identifier, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, classifyStatus(resp.StatusCode, string(body))
	}
	return resp.StatusCode, nil
}

// classifyStatus maps backend error text to the package sentinels.
func classifyStatus(status int, body string) error {
	switch {
	case strings.Contains(body, "Slow Down"),
		strings.Contains(body, "reduce your request rate"),
		status == http.StatusTooManyRequests:
		return fmt.Errorf("%w (status %d)", ErrRateLimited, status)
	case strings.Contains(body, "been taken offline"):
		return fmt.Errorf("%w (status %d)", ErrItemTakenOffline, status)
	default:
		return fmt.Errorf("ia: status %d: %s", status, truncate(body, 200))
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}

// headerKey normalizes a metadata key for use in an x-archive-meta header.
func headerKey(k string) string {
	return strings.ReplaceAll(strings.ToLower(k), " ", "-")
}
