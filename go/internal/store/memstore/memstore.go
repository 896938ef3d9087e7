// Package memstore is an in-memory document store used by tests and the demo
// host. It intentionally mirrors the weak guarantees of the real store: no
// transactions, per-node last-writer-wins, and a non-atomic document
// namespace.
package memstore

import (
	"context"
	"regexp"
	"sync"

	"github.com/google/uuid"

	"github.com/relaygame/relay/go/internal/store"
)

var linkRegex = regexp.MustCompile(`\[\[([^\[\]]+)\]\]|#([^\s\[\]#]+)`)

type node struct {
	id       string
	text     string
	children []*node
}

type document struct {
	id    string
	title string
	root  *node
}

// Store is a mutex-guarded in-memory implementation of store.Store.
type Store struct {
	mu       sync.RWMutex
	docs     map[string]*document // by title
	nodes    map[string]*node     // by id, documents' roots included
	docByID  map[string]*document
	watchers map[string]map[int]store.WatchFunc
	watchSeq int
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		docs:     make(map[string]*document),
		nodes:    make(map[string]*node),
		docByID:  make(map[string]*document),
		watchers: make(map[string]map[int]store.WatchFunc),
	}
}

var _ store.Store = (*Store)(nil)

// CreateDocument creates a titled document. Creating a title that already
// exists returns the existing document id without mutating it, matching the
// real store's create-returns-existing behavior; deduplication is the
// caller's read-check responsibility.
func (s *Store) CreateDocument(ctx context.Context, title string, children []store.Node) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.docs[title]; ok {
		return existing.id, nil
	}

	doc := &document{
		id:    uuid.New().String(),
		title: title,
		root:  &node{id: uuid.New().String(), text: title},
	}
	for _, c := range children {
		doc.root.children = append(doc.root.children, s.materialize(c))
	}
	s.docs[title] = doc
	s.docByID[doc.id] = doc
	s.nodes[doc.id] = doc.root
	return doc.id, nil
}

// CreateNode inserts a node under parentID at the given order; negative or
// out-of-range orders append.
func (s *Store) CreateNode(ctx context.Context, parentID string, n store.Node, order int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, ok := s.nodes[parentID]
	if !ok {
		return "", store.ErrNotFound
	}
	child := s.materialize(n)
	if order < 0 || order >= len(parent.children) {
		parent.children = append(parent.children, child)
	} else {
		parent.children = append(parent.children[:order], append([]*node{child}, parent.children[order:]...)...)
	}
	return child.id, nil
}

// ReadTree resolves ref as a document title first, then as a node id. For a
// node id the returned Tree carries the node's text as its title.
func (s *Store) ReadTree(ctx context.Context, ref string) (*store.Tree, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if doc, ok := s.docs[ref]; ok {
		return &store.Tree{ID: doc.id, Title: doc.title, Children: snapshotChildren(doc.root)}, nil
	}
	if n, ok := s.nodes[ref]; ok {
		title := n.text
		if doc, ok := s.docByID[ref]; ok {
			title = doc.title
		}
		return &store.Tree{ID: n.id, Title: title, Children: snapshotChildren(n)}, nil
	}
	return nil, store.ErrNotFound
}

// UpdateNode replaces the text of a node and notifies its watchers.
func (s *Store) UpdateNode(ctx context.Context, id string, text string) error {
	s.mu.Lock()
	n, ok := s.nodes[id]
	if !ok {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	n.text = text
	snapshot := snapshot(n)
	var fns []store.WatchFunc
	for _, fn := range s.watchers[id] {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(snapshot)
	}
	return nil
}

// Watch registers fn for updates to the given node id.
func (s *Store) Watch(nodeID string, fn store.WatchFunc) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[nodeID]; !ok {
		return nil, store.ErrNotFound
	}
	s.watchSeq++
	seq := s.watchSeq
	if s.watchers[nodeID] == nil {
		s.watchers[nodeID] = make(map[int]store.WatchFunc)
	}
	s.watchers[nodeID][seq] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers[nodeID], seq)
	}, nil
}

// FindByBacklink returns the titles of documents containing a [[targetTitle]]
// or #targetTitle link anywhere in their tree.
func (s *Store) FindByBacklink(ctx context.Context, targetTitle string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var titles []string
	for title, doc := range s.docs {
		if linksTo(doc.root, targetTitle) {
			titles = append(titles, title)
		}
	}
	return titles, nil
}

// DocumentCount reports the number of documents, used by tests asserting
// that failed operations leave the store unmodified.
func (s *Store) DocumentCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func (s *Store) materialize(n store.Node) *node {
	id := n.ID
	if id == "" {
		id = uuid.New().String()
	}
	out := &node{id: id, text: n.Text}
	s.nodes[id] = out
	for _, c := range n.Children {
		out.children = append(out.children, s.materialize(c))
	}
	return out
}

func snapshot(n *node) store.Node {
	out := store.Node{ID: n.id, Text: n.text}
	for _, c := range n.children {
		out.Children = append(out.Children, snapshot(c))
	}
	return out
}

func snapshotChildren(n *node) []store.Node {
	var out []store.Node
	for _, c := range n.children {
		out = append(out, snapshot(c))
	}
	return out
}

func linksTo(n *node, target string) bool {
	for _, m := range linkRegex.FindAllStringSubmatch(n.text, -1) {
		if m[1] == target || m[2] == target {
			return true
		}
	}
	for _, c := range n.children {
		if linksTo(c, target) {
			return true
		}
	}
	return false
}
