// Package readerapi is the HTTP client for the backend reader API, which
// serves emotion-tagged chunks and their generated audio URLs keyed by
// user, book and page. A fetched chapter is converted into a session
// manifest; from there the playback core treats it identically to a
// statically loaded manifest.
package readerapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Theeojeong/READNING/internal/manifest"
)

// Static errors for reader API operations.
var (
	// ErrBaseURLRequired is returned when the base URL is not provided.
	ErrBaseURLRequired = errors.New("readerapi: base URL is required")
	// ErrNotFound is returned when a book or page does not exist.
	ErrNotFound = errors.New("readerapi: not found")
	// ErrServerError is returned when the server returns a 5xx status code.
	ErrServerError = errors.New("readerapi: server error")
	// ErrUnhealthy is returned when the backend health check fails.
	ErrUnhealthy = errors.New("readerapi: backend unhealthy")
)

// Client fetches books, chapters and chunk manifests from the reader API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option is a function that configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// NewClient creates a reader API client for the given base URL
// (e.g. "https://api.readning.example").
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, ErrBaseURLRequired
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Health checks the backend's database connectivity.
func (c *Client) Health(ctx context.Context) error {
	var resp healthResponse
	if err := c.get(ctx, "/api/reader/health", &resp); err != nil {
		return err
	}
	if resp.Status != "ok" {
		return ErrUnhealthy
	}
	return nil
}

// GetBooks lists the books a user has uploaded.
func (c *Client) GetBooks(ctx context.Context, userID string) ([]Book, error) {
	var resp booksResponse
	path := "/api/reader/" + url.PathEscape(userID)
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Books, nil
}

// GetChapters lists the pages available for a book.
func (c *Client) GetChapters(ctx context.Context, userID, bookTitle string) ([]Chapter, error) {
	var resp chaptersResponse
	path := "/api/reader/" + url.PathEscape(userID) + "/" + url.PathEscape(bookTitle)
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Chapters, nil
}

// GetChapter fetches one page's chunks and converts them into a session
// manifest. Chunk IDs are derived from page and index ("p3-c2") so they
// stay stable across reloads. Relative audio URLs are resolved against the
// client's base URL.
func (c *Client) GetChapter(ctx context.Context, userID, bookTitle string, page int) (*manifest.Manifest, error) {
	var resp chapterResponse
	path := fmt.Sprintf("/api/reader/%s/%s/%d", url.PathEscape(userID), url.PathEscape(bookTitle), page)
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}

	m := &manifest.Manifest{
		Title:  bookTitle,
		Chunks: make([]manifest.Chunk, 0, len(resp.Chunks)),
	}
	for _, ch := range resp.Chunks {
		text := ch.FullText
		if text == "" {
			text = ch.Text
		}
		m.Chunks = append(m.Chunks, manifest.Chunk{
			ID:       fmt.Sprintf("p%d-c%d", resp.Page, ch.Index),
			Text:     text,
			Emotion:  ch.Emotion,
			AudioURL: c.resolveURL(ch.AudioURL),
			Duration: ch.Duration,
		})
	}
	if len(m.Chunks) == 0 {
		return nil, fmt.Errorf("%w: %s p%d has no chunks", ErrNotFound, bookTitle, page)
	}
	return m, nil
}

func (c *Client) resolveURL(audioURL string) string {
	if audioURL == "" || strings.Contains(audioURL, "://") {
		return audioURL
	}
	if !strings.HasPrefix(audioURL, "/") {
		audioURL = "/" + audioURL
	}
	return c.baseURL + audioURL
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("readerapi: request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("readerapi: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d on %s", ErrServerError, resp.StatusCode, path)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("readerapi: GET %s: unexpected status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("readerapi: decode %s: %w", path, err)
	}
	return nil
}
