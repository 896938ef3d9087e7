// Package store defines the interface to the shared hierarchical document
// store every relay client coordinates through. The store itself is an
// external collaborator: it offers no transactions, no compare-and-swap and
// only per-node last-writer-wins, which is exactly the model the turn
// coordination protocol is designed to survive.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a document or node reference does not resolve.
var ErrNotFound = errors.New("store: not found")

// Node is one labeled node in a document tree. Children are ordered.
type Node struct {
	ID       string `json:"id,omitempty"`
	Text     string `json:"text"`
	Children []Node `json:"children,omitempty"`
}

// Tree is a full document: a titled root with an ordered list of child nodes.
type Tree struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Children []Node `json:"children,omitempty"`
}

// WatchFunc receives the new state of a watched node after an update.
type WatchFunc func(node Node)

// Store is the document-store surface the relay engine consumes. Writes are
// fire-and-forget from the protocol's perspective: callers do not assume any
// ordering beyond per-node last-writer-wins.
type Store interface {
	// CreateDocument creates a titled document with the given initial
	// children and returns its id. Creation is not atomic with any prior
	// existence check; see the launcher for the check-then-create window.
	CreateDocument(ctx context.Context, title string, children []Node) (string, error)

	// CreateNode inserts a node under parentID at the given position.
	// A negative or out-of-range order appends. Returns the new node id.
	CreateNode(ctx context.Context, parentID string, node Node, order int) (string, error)

	// ReadTree resolves ref as a document title or a node/document id and
	// returns the full subtree. Returns ErrNotFound when ref does not
	// resolve.
	ReadTree(ctx context.Context, ref string) (*Tree, error)

	// UpdateNode replaces the text of an existing node.
	UpdateNode(ctx context.Context, id string, text string) error

	// Watch registers fn for updates to the node with the given id and
	// returns the corresponding unwatch function.
	Watch(nodeID string, fn WatchFunc) (func(), error)

	// FindByBacklink returns the titles of all documents containing a link
	// to targetTitle. Order is store-dependent and must be treated as a
	// display concern only.
	FindByBacklink(ctx context.Context, targetTitle string) ([]string, error)
}
