// SPDX-License-Identifier: MPL-2.0

package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tpkg/tpkg/pkg/artifact"
)

// HTTPStore is a read-only package mirror reachable over HTTP.
type HTTPStore struct {
	client  *http.Client
	baseURL string
}

// NewHTTPStore returns a store rooted at baseURL.
func NewHTTPStore(baseURL string, client *http.Client) *HTTPStore {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPStore{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

// Location implements Store.
func (h *HTTPStore) Location() string { return h.baseURL }

// ProbeKey checks for the content manifest, the smallest part that is
// unique to a package.
func (h *HTTPStore) ProbeKey(name string) string {
	return artifact.NamesFor(name).ContentHash
}

// Exists implements Store. HTTP servers cannot be listed, so prefix is
// treated as a complete key.
func (h *HTTPStore) Exists(ctx context.Context, prefix string) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/"+prefix, http.NoBody)
	if err != nil {
		return "", false, fmt.Errorf("creating request: %w", err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("probing %s: %w", req.URL, err)
	}
	defer func() { _ = resp.Body.Close() }() // read-only HTTP response body
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	switch {
	case resp.StatusCode == http.StatusOK:
		return prefix, true, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return "", false, nil
	default:
		return "", false, fmt.Errorf("probing %s: HTTP %d", req.URL, resp.StatusCode)
	}
}

// List implements Store; HTTP mirrors cannot be listed.
func (h *HTTPStore) List(context.Context, string) ([]string, error) {
	return nil, fmt.Errorf("listing %s: %w", h.baseURL, ErrUnsupported)
}

// Upload implements Store; HTTP mirrors are read-only.
func (h *HTTPStore) Upload(context.Context, string, string) error {
	return fmt.Errorf("uploading to %s: %w", h.baseURL, ErrUnsupported)
}
