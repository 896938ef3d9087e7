// Package catalog enumerates the relay game templates available in the
// store. Definitions are documents that link to the relay home document.
package catalog

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/relaygame/relay/go/internal/models"
	"github.com/relaygame/relay/go/internal/relay/schema"
	"github.com/relaygame/relay/go/internal/store"
)

// DefaultHome is the title of the document every definition links back to.
const DefaultHome = "Relay"

// Catalog is a read-only view over the definitions in the store.
type Catalog struct {
	store store.Store
	home  string
}

// New creates a catalog rooted at the given home title; empty means
// DefaultHome.
func New(st store.Store, home string) *Catalog {
	if home == "" {
		home = DefaultHome
	}
	return &Catalog{store: st, home: home}
}

// Home returns the home document title the catalog is rooted at.
func (c *Catalog) Home() string {
	return c.home
}

// ListDefinitions returns the titles of all definition documents. Order is
// store-dependent; treat it as a display concern only.
func (c *Catalog) ListDefinitions(ctx context.Context) ([]string, error) {
	titles, err := c.store.FindByBacklink(ctx, c.home)
	if err != nil {
		return nil, fmt.Errorf("failed to list definitions: %w", err)
	}
	titles = lo.Uniq(lo.Filter(titles, func(t string, _ int) bool {
		return t != c.home
	}))
	log.Debug().Int("count", len(titles)).Str("home", c.home).Msg("listed definitions")
	return titles, nil
}

// LoadDefinition reads and decodes one definition by title.
func (c *Catalog) LoadDefinition(ctx context.Context, title string) (*models.Definition, error) {
	tree, err := c.store.ReadTree(ctx, title)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition %q: %w", title, err)
	}
	def, err := schema.DecodeDefinition(tree)
	if err != nil {
		return nil, err
	}
	return def, nil
}

// Contains reports whether title is one of the catalog's definitions.
func (c *Catalog) Contains(ctx context.Context, title string) (bool, error) {
	titles, err := c.ListDefinitions(ctx)
	if err != nil {
		return false, err
	}
	return lo.Contains(titles, title), nil
}
