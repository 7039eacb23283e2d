// SPDX-License-Identifier: MPL-2.0

// Package remote talks to the servers packages are published to and fetched
// from: S3 buckets, plain HTTP mirrors and local mirror folders.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/tpkg/tpkg/pkg/artifact"
)

// DefaultS3Endpoint is used when no endpoint is configured.
const DefaultS3Endpoint = "s3.amazonaws.com"

// ErrUnsupported is returned by stores that cannot list or upload.
var ErrUnsupported = errors.ErrUnsupported

type (
	// Store is a flat key/object namespace holding package parts.
	Store interface {
		// Location identifies the store in messages.
		Location() string
		// Exists reports whether any object key starts with prefix and
		// returns the first such key.
		Exists(ctx context.Context, prefix string) (key string, found bool, err error)
		// List returns every key starting with prefix.
		List(ctx context.Context, prefix string) ([]string, error)
		// Upload stores the file at localPath under key.
		Upload(ctx context.Context, key, localPath string) error
	}

	// prober lets a store choose which part marks a package as present.
	prober interface {
		ProbeKey(name string) string
	}

	// Options configures Open.
	Options struct {
		// AWSProfile selects the shared-credentials profile for S3.
		AWSProfile string
		// S3Endpoint overrides DefaultS3Endpoint.
		S3Endpoint string
		S3Region   string
		// S3Insecure disables TLS towards the S3 endpoint.
		S3Insecure bool
		// Credentials overrides the default credential chain.
		Credentials *credentials.Credentials
		HTTPClient  *http.Client
	}
)

// Open returns the store addressed by rawURL: s3://bucket[/prefix],
// http(s)://host/path, file:///path or a plain folder path.
func Open(rawURL string, opts Options) (Store, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, errors.New("empty server URL")
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Plain paths, including Windows drive letters.
		return NewDirStore(rawURL), nil
	}

	switch u.Scheme {
	case "s3":
		if u.Host == "" {
			return nil, fmt.Errorf("s3 URL %q has no bucket", rawURL)
		}
		return NewS3Store(u.Host, strings.Trim(u.Path, "/"), opts)
	case "http", "https":
		return NewHTTPStore(rawURL, opts.HTTPClient), nil
	case "file":
		return NewDirStore(filepath.FromSlash(u.Path)), nil
	default:
		return nil, fmt.Errorf("unsupported server URL scheme %q", u.Scheme)
	}
}

// SplitServerURLs splits a ';'-separated server list, dropping blanks.
func SplitServerURLs(s string) []string {
	var urls []string
	for _, part := range strings.Split(s, ";") {
		if part = strings.TrimSpace(part); part != "" {
			urls = append(urls, part)
		}
	}
	return urls
}

// ProbeKey returns the key whose presence on store marks name as published.
func ProbeKey(store Store, name string) string {
	if p, ok := store.(prober); ok {
		return p.ProbeKey(name)
	}
	return artifact.NamesFor(name).Descriptor
}

// UploadPackage uploads the parts of name from folder in publish order, so
// the descriptor only appears once everything else is in place.
func UploadPackage(ctx context.Context, store Store, folder, name string) error {
	for _, part := range artifact.Parts(name) {
		if err := store.Upload(ctx, part, filepath.Join(folder, part)); err != nil {
			return fmt.Errorf("uploading %s to %s: %w", part, store.Location(), err)
		}
	}
	return nil
}
