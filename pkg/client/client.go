// Package client provides a typed HTTP client for the media API, with retry,
// auth and online-state tracking.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fruitsalade/pagemedia/internal/logging"
	"github.com/fruitsalade/pagemedia/internal/metrics"
	"github.com/fruitsalade/pagemedia/pkg/models"
	"github.com/fruitsalade/pagemedia/pkg/protocol"
	"github.com/fruitsalade/pagemedia/pkg/retry"
	"github.com/fruitsalade/pagemedia/pkg/tree"
)

// Client talks to a media API rooted at BaseURL + /api/media.
// It owns no media state: every call returns fresh server data.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	retryConfig retry.Config

	mu        sync.RWMutex
	online    bool
	authToken string
}

// Config holds client configuration.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	RetryConfig retry.Config
	AuthToken   string
	HTTPClient  *http.Client // optional; overrides Timeout
}

// Listing is the converted result of list, search and filter calls.
type Listing = tree.Listing

// New creates a new client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig = retry.DefaultConfig()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:  httpClient,
		retryConfig: cfg.RetryConfig,
		online:      true,
		authToken:   cfg.AuthToken,
	}
}

// BaseURL returns the server URL the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// SetAuthToken sets the bearer token for requests.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authToken = token
}

func (c *Client) applyAuth(req *http.Request) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
}

// IsOnline returns true if the last request reached the server.
func (c *Client) IsOnline() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.online
}

func (c *Client) setOnline(online bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.online != online {
		if online {
			logging.Info("media server is back online", zap.String("url", c.baseURL))
		} else {
			logging.Warn("media server is unreachable", zap.String("url", c.baseURL))
		}
	}
	c.online = online
}

// request describes one media API call.
type request struct {
	op          string
	method      string
	endpoint    string
	query       url.Values
	body        []byte
	contentType string
}

// do executes req with retries and returns the response body.
// 5xx and transport errors are retried; other failures are returned as *APIError.
func (c *Client) do(ctx context.Context, req request) ([]byte, error) {
	u := c.baseURL + protocol.BasePath + req.endpoint
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}

	body, err := retry.DoWithResult(ctx, c.retryConfig, func() ([]byte, error) {
		var rd io.Reader
		if req.body != nil {
			rd = bytes.NewReader(req.body)
		}
		httpReq, err := http.NewRequestWithContext(ctx, req.method, u, rd)
		if err != nil {
			return nil, err
		}
		if req.contentType != "" {
			httpReq.Header.Set("Content-Type", req.contentType)
		}
		httpReq.Header.Set("Accept", "application/json")
		c.applyAuth(httpReq)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			c.setOnline(false)
			return nil, retry.Retryable(err)
		}
		defer resp.Body.Close()
		c.setOnline(true)

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, retry.Retryable(err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			apiErr := newAPIError(req.op, resp.StatusCode, data)
			if resp.StatusCode >= 500 {
				return nil, retry.Retryable(apiErr)
			}
			return nil, apiErr
		}
		return data, nil
	})

	metrics.RecordAPICall(req.op, err == nil)
	if err != nil {
		logging.Debug("media api call failed", zap.String("op", req.op), zap.Error(err))
		// unwrap the retry marker so callers see *APIError directly
		if re, ok := err.(retry.RetryableError); ok {
			err = re.Err
		}
		return nil, err
	}
	return body, nil
}

func (c *Client) listing(ctx context.Context, op, endpoint string, query url.Values, path string, convert func([]models.MediaItem, string) tree.Listing) (*Listing, error) {
	data, err := c.do(ctx, request{op: op, method: http.MethodGet, endpoint: endpoint, query: query})
	if err != nil {
		return nil, err
	}
	var items []models.MediaItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%s: decode items: %w", op, err)
	}
	l := convert(items, path)
	return &l, nil
}

// List returns the files and folders directly under path ("" for root).
func (c *Client) List(ctx context.Context, path string) (*Listing, error) {
	return c.listing(ctx, "list", protocol.ListPath, url.Values{"path": {path}}, path, tree.Reconcile)
}

// Search returns items at any depth under path whose names match term.
func (c *Client) Search(ctx context.Context, term, path string) (*Listing, error) {
	return c.listing(ctx, "search", protocol.SearchPath, url.Values{"term": {term}, "path": {path}}, path, tree.Flatten)
}

// FilterByType returns files at any depth under path of the given file type
// (image, video, audio, document).
func (c *Client) FilterByType(ctx context.Context, fileType, path string) (*Listing, error) {
	return c.listing(ctx, "filter", protocol.FilterPath, url.Values{"fileType": {fileType}, "path": {path}}, path, tree.Flatten)
}

// Upload stores content under bucketPath (may be empty for root) and returns
// the public URL and assigned key. id is an optional client-chosen identifier.
func (c *Client) Upload(ctx context.Context, name string, content io.Reader, bucketPath, id string) (*protocol.UploadResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(protocol.UploadFormFile, name)
	if err != nil {
		return nil, err
	}
	size, err := io.Copy(part, content)
	if err != nil {
		return nil, fmt.Errorf("read upload content: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	query := url.Values{"bucketPath": {bucketPath}}
	if id != "" {
		query.Set("id", id)
	}
	data, err := c.do(ctx, request{
		op:          "upload",
		method:      http.MethodPost,
		endpoint:    protocol.UploadPath,
		query:       query,
		body:        buf.Bytes(),
		contentType: mw.FormDataContentType(),
	})
	if err != nil {
		return nil, err
	}

	resp, err := parseUploadResponse(data)
	if err != nil {
		return nil, err
	}
	if resp.Key == "" {
		resp.Key = tree.JoinPath(bucketPath, name)
	}
	if resp.Name == "" {
		resp.Name = name
	}
	if resp.Size == 0 {
		resp.Size = size
	}
	return resp, nil
}

// parseUploadResponse accepts a JSON descriptor, a JSON string or a plain URL.
func parseUploadResponse(data []byte) (*protocol.UploadResponse, error) {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0:
		return nil, fmt.Errorf("upload: empty response")
	case trimmed[0] == '{':
		var resp protocol.UploadResponse
		if err := json.Unmarshal(trimmed, &resp); err != nil {
			return nil, fmt.Errorf("upload: decode response: %w", err)
		}
		return &resp, nil
	case trimmed[0] == '"':
		var u string
		if err := json.Unmarshal(trimmed, &u); err != nil {
			return nil, fmt.Errorf("upload: decode response: %w", err)
		}
		return &protocol.UploadResponse{URL: u}, nil
	default:
		return &protocol.UploadResponse{URL: string(trimmed)}, nil
	}
}

// CreateFolder creates folderName under parentPath.
func (c *Client) CreateFolder(ctx context.Context, folderName, parentPath string) (*models.Folder, error) {
	data, err := c.do(ctx, request{
		op:       "create_folder",
		method:   http.MethodPost,
		endpoint: protocol.FolderPath,
		query:    url.Values{"folderName": {folderName}, "parentPath": {parentPath}},
	})
	if err != nil {
		return nil, err
	}

	key := tree.JoinPath(parentPath, folderName)
	folder := &models.Folder{ID: key, Name: folderName, ParentID: tree.NormalizePath(parentPath), CreatedAt: time.Now()}
	var item models.MediaItem
	if json.Unmarshal(data, &item) == nil && item.Path != "" {
		folder.ID = tree.NormalizePath(item.Path)
		folder.ParentID = tree.ParentPath(item.Path)
		if !item.LastModified.IsZero() {
			folder.CreatedAt = item.LastModified
		}
	}
	return folder, nil
}

// Delete removes a file or folder by key. Folder contents are removed only
// if the server chooses to; the client makes no recursive guarantee.
func (c *Client) Delete(ctx context.Context, fileKey string) error {
	_, err := c.do(ctx, request{
		op:       "delete",
		method:   http.MethodDelete,
		endpoint: protocol.DeletePath,
		query:    url.Values{"fileKey": {fileKey}},
	})
	if StatusCode(err) == http.StatusNotFound {
		return nil // Already deleted
	}
	return err
}

// DeleteMany deletes keys concurrently. The first error is returned; deletions
// that already completed are not rolled back.
func (c *Client) DeleteMany(ctx context.Context, keys []string) error {
	var g errgroup.Group
	for _, key := range keys {
		g.Go(func() error {
			if err := c.Delete(ctx, key); err != nil {
				return fmt.Errorf("delete %s: %w", key, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Move moves sourceKey into destinationPath and returns the file at its new key.
func (c *Client) Move(ctx context.Context, sourceKey, destinationPath string) (*models.StoredFile, error) {
	data, err := c.do(ctx, request{
		op:       "move",
		method:   http.MethodPut,
		endpoint: protocol.MovePath,
		query:    url.Values{"sourceKey": {sourceKey}, "destinationPath": {destinationPath}},
	})
	if err != nil {
		return nil, err
	}
	var item models.MediaItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("move: decode response: %w", err)
	}
	if item.Path == "" {
		item.Path = tree.JoinPath(destinationPath, tree.BaseName(sourceKey))
	}
	file := tree.ToStoredFile(item)
	return &file, nil
}

// Head probes an absolute URL and returns its metadata. It is a single
// attempt; callers treat failures as "unknown".
func (c *Client) Head(ctx context.Context, rawURL string) (*protocol.ObjectInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return nil, err
	}
	c.applyAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Op: "head", Status: resp.StatusCode, Message: resp.Status}
	}

	info := &protocol.ObjectInfo{
		ContentType: resp.Header.Get("Content-Type"),
		Size:        resp.ContentLength,
	}
	if info.Size < 0 {
		info.Size = 0
	}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			info.LastModified = t
		}
	}
	return info, nil
}
