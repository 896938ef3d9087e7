// Package history archives each departing owner's working notes into an
// ordered, append-only per-session thread. Archiving is best-effort: a lost
// append is a lost snapshot, not a protocol error.
package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/relaygame/relay/go/internal/models"
	"github.com/relaygame/relay/go/internal/relay/schema"
	"github.com/relaygame/relay/go/internal/store"
)

// ThreadPrefix namespaces the per-session post-game discussion documents.
const ThreadPrefix = "Post Game/"

const versionControlKey = "Version Control"

// Archiver appends hand-off snapshots to a session's history thread.
type Archiver struct {
	store store.Store
}

// New creates an archiver.
func New(st store.Store) *Archiver {
	return &Archiver{store: st}
}

// ThreadTitle returns the history thread document title for a session.
func ThreadTitle(sessionTitle string) string {
	return ThreadPrefix + sessionTitle
}

// Archive appends one history entry holding the outgoing owner's notes
// snapshot. The thread document is created on first use. Entries are never
// edited or removed; concurrent clients detecting the same hand-off may
// append duplicates, which the protocol accepts.
func (a *Archiver) Archive(ctx context.Context, sessionTitle, identity string, notesSnapshot []store.Node) error {
	threadID, err := a.ensureThread(ctx, sessionTitle)
	if err != nil {
		return err
	}

	tree, err := a.store.ReadTree(ctx, threadID)
	if err != nil {
		return fmt.Errorf("failed to read history thread: %w", err)
	}
	vc := schema.SettingNode(tree.Children, versionControlKey)
	if vc == nil {
		id, err := a.store.CreateNode(ctx, tree.ID, schema.Setting(versionControlKey), -1)
		if err != nil {
			return fmt.Errorf("failed to create history section: %w", err)
		}
		vc = &store.Node{ID: id}
	}

	entry := store.Node{Text: identity, Children: notesSnapshot}
	if _, err := a.store.CreateNode(ctx, vc.ID, entry, len(vc.Children)); err != nil {
		return fmt.Errorf("failed to append history entry: %w", err)
	}

	log.Info().
		Str("session", sessionTitle).
		Str("player", identity).
		Int("sequence", len(vc.Children)).
		Msg("archived notes snapshot")
	return nil
}

// Entries returns the thread's history in insertion order. A session with no
// thread yet has an empty history.
func (a *Archiver) Entries(ctx context.Context, sessionTitle string) ([]models.HistoryEntry, error) {
	tree, err := a.store.ReadTree(ctx, ThreadTitle(sessionTitle))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read history thread: %w", err)
	}
	vc := schema.SettingNode(tree.Children, versionControlKey)
	if vc == nil {
		return nil, nil
	}

	entries := make([]models.HistoryEntry, 0, len(vc.Children))
	for i, c := range vc.Children {
		entries = append(entries, models.HistoryEntry{
			PlayerIdentity: c.Text,
			Notes:          flatten(c.Children),
			Sequence:       i,
		})
	}
	return entries, nil
}

func (a *Archiver) ensureThread(ctx context.Context, sessionTitle string) (string, error) {
	title := ThreadTitle(sessionTitle)
	tree, err := a.store.ReadTree(ctx, title)
	if err == nil {
		return tree.ID, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("failed to read history thread: %w", err)
	}

	welcome := fmt.Sprintf("Welcome to the Post Game discussion board for [[%s]]. "+
		"Use the space below to discuss strategies that would have been helpful for solving the game.", sessionTitle)
	id, err := a.store.CreateDocument(ctx, title, []store.Node{
		{Text: welcome},
		schema.Setting(versionControlKey),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create history thread: %w", err)
	}
	log.Info().Str("session", sessionTitle).Str("thread", title).Msg("created history thread")
	return id, nil
}

func flatten(nodes []store.Node) []string {
	var out []string
	for _, n := range nodes {
		out = append(out, n.Text)
		out = append(out, flatten(n.Children)...)
	}
	return out
}
