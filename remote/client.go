// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/poiesic/docsearch/core"
	"golang.org/x/time/rate"
)

const (
	pageTable          = "page"
	sectionTable       = "page_section"
	ftsFunction        = "docs_search_fts"
	embeddingsFunction = "search-embeddings"

	// DefaultFetchRate is the steady-state limit on table fetches per second.
	DefaultFetchRate = 10

	maxErrorBody = 4 << 10
)

// Client talks to the remote content database: PostgREST tables and RPCs
// under /rest/v1 and edge functions under /functions/v1.
type Client struct {
	baseURL         *url.URL
	apiKey          string
	httpClient      *http.Client
	limiter         *rate.Limiter
	embeddingColumn string
	logger          *slog.Logger
}

// Option configures a Client.
type Option func(*Client) error

// WithHTTPClient sets the HTTP client. No timeout is applied by default;
// callers bound requests through their context.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) error {
		if httpClient == nil {
			return errors.New("http client cannot be nil")
		}
		c.httpClient = httpClient
		return nil
	}
}

// WithFetchRate limits table fetches to limit per second with the given burst.
// Use rate.Inf to disable limiting.
func WithFetchRate(limit rate.Limit, burst int) Option {
	return func(c *Client) error {
		if burst < 1 {
			return errors.New("burst must be at least 1")
		}
		c.limiter = rate.NewLimiter(limit, burst)
		return nil
	}
}

// WithEmbeddingColumn selects which page_section column is read as the
// section embedding. It must hold vectors from the same model as the local
// extractor.
func WithEmbeddingColumn(column string) Option {
	return func(c *Client) error {
		if column == "" {
			return errors.New("embedding column cannot be empty")
		}
		c.embeddingColumn = column
		return nil
	}
}

// WithLogger sets the logger.
// If logger is nil, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// New creates a client for the project at baseURL authenticated with apiKey.
func New(baseURL, apiKey string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, baseURL)
	}

	c := &Client{
		baseURL:         u,
		apiKey:          apiKey,
		httpClient:      http.DefaultClient,
		limiter:         rate.NewLimiter(rate.Limit(DefaultFetchRate), 2),
		embeddingColumn: "embedding",
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "remote", "host", u.Host)
	return c, nil
}

// FetchPages returns up to limit pages with id > afterID in ascending id order.
func (c *Client) FetchPages(ctx context.Context, afterID core.ID, limit int) (*Batch[*core.Page], error) {
	raw, err := c.fetchTable(ctx, pageTable, pageColumns, afterID, limit)
	if err != nil {
		return nil, err
	}
	return decodeBatch(raw, func(data json.RawMessage) (*core.Page, core.ID, error) {
		var row pageRow
		if err := json.Unmarshal(data, &row); err != nil {
			return nil, 0, err
		}
		return row.toPage(), row.ID, nil
	}), nil
}

// FetchSections returns up to limit sections with id > afterID in ascending id order.
func (c *Client) FetchSections(ctx context.Context, afterID core.ID, limit int) (*Batch[*core.PageSection], error) {
	columns := sectionColumns + ",embedding"
	if c.embeddingColumn != "embedding" {
		columns = sectionColumns + ",embedding:" + c.embeddingColumn
	}
	raw, err := c.fetchTable(ctx, sectionTable, columns, afterID, limit)
	if err != nil {
		return nil, err
	}
	return decodeBatch(raw, func(data json.RawMessage) (*core.PageSection, core.ID, error) {
		var row sectionRow
		if err := json.Unmarshal(data, &row); err != nil {
			return nil, 0, err
		}
		return row.toSection(), row.ID, nil
	}), nil
}

func (c *Client) fetchTable(ctx context.Context, table, columns string, afterID core.ID, limit int) ([]json.RawMessage, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	query := url.Values{}
	query.Set("select", columns)
	query.Set("id", "gt."+strconv.FormatInt(int64(afterID), 10))
	query.Set("order", "id.asc")
	query.Set("limit", strconv.Itoa(limit))

	body, err := c.do(ctx, http.MethodGet, "rest/v1/"+table, query, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", table, err)
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("fetch %s: %w: %w", table, ErrUnexpectedResponse, err)
	}
	c.logger.Debug("fetched rows", "table", table, "after", afterID, "count", len(rows))
	return rows, nil
}

// SearchFTS calls the full-text search RPC with the trimmed query and
// returns its raw result array.
func (c *Client) SearchFTS(ctx context.Context, query string) (json.RawMessage, error) {
	body, err := c.do(ctx, http.MethodPost, "rest/v1/rpc/"+ftsFunction, nil, map[string]string{
		"query": strings.TrimSpace(query),
	})
	if err != nil {
		return nil, fmt.Errorf("full-text search: %w", err)
	}
	return requireArray(body)
}

// SearchEmbeddings calls the remote embedding search function and returns
// its raw result array.
func (c *Client) SearchEmbeddings(ctx context.Context, query string) (json.RawMessage, error) {
	body, err := c.do(ctx, http.MethodPost, "functions/v1/"+embeddingsFunction, nil, map[string]string{
		"query": query,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding search: %w", err)
	}
	return requireArray(body)
}

func (c *Client) do(ctx context.Context, method, ref string, query url.Values, payload any) ([]byte, error) {
	u := c.baseURL.JoinPath(ref)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}
	return io.ReadAll(resp.Body)
}

// errorMessage extracts a message from PostgREST ({"message"}) or edge
// function ({"error"}) error bodies, falling back to the raw text.
func errorMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return strings.TrimSpace(string(data))
}

func requireArray(body []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' || !json.Valid(trimmed) {
		return nil, fmt.Errorf("%w: expected a results array", ErrUnexpectedResponse)
	}
	return json.RawMessage(trimmed), nil
}
