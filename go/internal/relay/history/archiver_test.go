package history_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relaygame/relay/go/internal/relay/history"
	"github.com/relaygame/relay/go/internal/store"
	"github.com/relaygame/relay/go/internal/store/memstore"
)

func TestArchive_CreatesThreadOnFirstUse(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	a := history.New(st)

	err := a.Archive(ctx, "Euler Relay #1", "Alice", []store.Node{{Text: "tried brute force"}})
	require.NoError(t, err)

	tree, err := st.ReadTree(ctx, "Post Game/Euler Relay #1")
	require.NoError(t, err)
	require.Contains(t, tree.Children[0].Text, "[[Euler Relay #1]]")
	require.Contains(t, tree.Children[0].Text, "Post Game discussion board")
}

func TestArchive_AppendsInOrder(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	a := history.New(st)

	require.NoError(t, a.Archive(ctx, "Euler Relay #1", "Alice", []store.Node{
		{Text: "tried brute force", Children: []store.Node{{Text: "too slow above n=10^6"}}},
	}))
	require.NoError(t, a.Archive(ctx, "Euler Relay #1", "Bob", []store.Node{
		{Text: "sieve works"},
	}))
	require.NoError(t, a.Archive(ctx, "Euler Relay #1", "Alice", nil))

	entries, err := a.Entries(ctx, "Euler Relay #1")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	require.Equal(t, "Alice", entries[0].PlayerIdentity)
	require.Equal(t, 0, entries[0].Sequence)
	require.Equal(t, []string{"tried brute force", "too slow above n=10^6"}, entries[0].Notes)

	require.Equal(t, "Bob", entries[1].PlayerIdentity)
	require.Equal(t, 1, entries[1].Sequence)
	require.Equal(t, []string{"sieve works"}, entries[1].Notes)

	require.Equal(t, "Alice", entries[2].PlayerIdentity)
	require.Equal(t, 2, entries[2].Sequence)
	require.Empty(t, entries[2].Notes)
}

func TestEntries_NoThreadMeansEmptyHistory(t *testing.T) {
	a := history.New(memstore.New())

	entries, err := a.Entries(context.Background(), "Euler Relay #1")
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestThreadTitle(t *testing.T) {
	require.Equal(t, "Post Game/Euler Relay #1", history.ThreadTitle("Euler Relay #1"))
}
