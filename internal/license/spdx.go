// SPDX-License-Identifier: MPL-2.0

package license

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

const (
	// DefaultSPDXURL is the canonical SPDX license list.
	DefaultSPDXURL = "https://spdx.org/licenses/licenses.json"

	// maxJSONResponseBytes bounds the SPDX document size.
	maxJSONResponseBytes = 10 << 20

	defaultTimeout = 30 * time.Second
)

// ErrListUnavailable reports that the SPDX identifier list could not be obtained.
var ErrListUnavailable = errors.New("SPDX license list unavailable")

type (
	// Set is a set of SPDX license identifiers.
	Set map[string]struct{}

	// Provider supplies the SPDX identifier set. ok is false when the list
	// is unavailable, in which case identifier checks are skipped.
	Provider interface {
		Identifiers(ctx context.Context) (set Set, ok bool)
	}

	// Client downloads the SPDX license list over HTTP.
	Client struct {
		httpClient *http.Client
		url        string
		userAgent  string
	}

	// ClientOption configures a Client during construction.
	ClientOption func(*Client)

	// cached memoizes the first fetch outcome, success or failure.
	cached struct {
		fetch func(ctx context.Context) (Set, error)
		once  sync.Once
		set   Set
		err   error
	}

	static      Set
	unavailable struct{}

	spdxDocument struct {
		Licenses *[]struct {
			LicenseID string `json:"licenseId"`
		} `json:"licenses"`
	}
)

// NewSet builds a Set from identifiers.
func NewSet(ids ...string) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Contains reports whether id is in the set.
func (s Set) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.httpClient = c }
}

// WithURL overrides the SPDX list location.
func WithURL(u string) ClientOption {
	return func(cl *Client) {
		if u != "" {
			cl.url = u
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(cl *Client) { cl.userAgent = ua }
}

// NewClient creates a Client pointing at DefaultSPDXURL.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		url:        DefaultSPDXURL,
		userAgent:  "tpkg",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch downloads and decodes the identifier list. A document without a
// "licenses" array is treated as unavailable.
func (c *Client) Fetch(ctx context.Context) (Set, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrListUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }() // read-only HTTP response body

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned HTTP %d", ErrListUnavailable, c.url, resp.StatusCode)
	}

	var doc spdxDocument
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJSONResponseBytes)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %w", ErrListUnavailable, c.url, err)
	}
	if doc.Licenses == nil {
		return nil, fmt.Errorf("%w: %s has no licenses array", ErrListUnavailable, c.url)
	}

	set := make(Set, len(*doc.Licenses))
	for _, l := range *doc.Licenses {
		if l.LicenseID != "" {
			set[l.LicenseID] = struct{}{}
		}
	}
	return set, nil
}

// Cached wraps fetch so it runs at most once; every later call returns the
// first outcome. A failed fetch leaves the list unavailable for the rest of
// the process.
func Cached(fetch func(ctx context.Context) (Set, error)) Provider {
	return &cached{fetch: fetch}
}

func (c *cached) Identifiers(ctx context.Context) (Set, bool) {
	c.once.Do(func() {
		c.set, c.err = c.fetch(ctx)
	})
	return c.set, c.err == nil
}

// Static returns a Provider that always yields ids.
func Static(ids ...string) Provider { return static(NewSet(ids...)) }

func (s static) Identifiers(context.Context) (Set, bool) { return Set(s), true }

// Unavailable returns a Provider whose list can never be obtained.
func Unavailable() Provider { return unavailable{} }

func (unavailable) Identifiers(context.Context) (Set, bool) { return nil, false }
