// SPDX-License-Identifier: MPL-2.0

package remote

import (
	"context"
	"io"

	"github.com/charmbracelet/log"
)

type (
	// Finder searches an ordered list of stores for a published package.
	Finder struct {
		stores []Store
		logger *log.Logger
	}

	// Hit describes where a package was found.
	Hit struct {
		Store Store
		Key   string
	}
)

// NewFinder returns a Finder searching stores in order.
func NewFinder(stores []Store, logger *log.Logger) *Finder {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Finder{stores: stores, logger: logger}
}

// OpenFinder opens every URL with open, or Open when open is nil. URLs that
// cannot be opened are logged and skipped.
func OpenFinder(urls []string, open func(string, Options) (Store, error), opts Options, logger *log.Logger) *Finder {
	if open == nil {
		open = Open
	}
	f := NewFinder(nil, logger)
	for _, u := range urls {
		store, err := open(u, opts)
		if err != nil {
			f.logger.Warn("ignoring package server", "url", u, "err", err)
			continue
		}
		f.stores = append(f.stores, store)
	}
	return f
}

// Stores returns the stores searched, in order.
func (f *Finder) Stores() []Store { return f.stores }

// Find returns the first store holding name. Stores that fail are logged
// and skipped so one unreachable mirror does not hide the others.
func (f *Finder) Find(ctx context.Context, name string) (*Hit, bool) {
	for _, store := range f.stores {
		key, found, err := store.Exists(ctx, ProbeKey(store, name))
		if err != nil {
			f.logger.Warn("package server unavailable", "server", store.Location(), "err", err)
			continue
		}
		if found {
			f.logger.Info("package found", "package", name, "server", store.Location())
			return &Hit{Store: store, Key: key}, true
		}
		f.logger.Debug("package not on server", "package", name, "server", store.Location())
	}
	return nil, false
}
