package relay_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/relaygame/relay/go/internal/relay"
	"github.com/relaygame/relay/go/internal/relay/guard"
	"github.com/relaygame/relay/go/internal/relay/schema"
	"github.com/relaygame/relay/go/internal/store"
	"github.com/relaygame/relay/go/internal/store/memstore"
)

type recordingUI struct {
	mu          sync.Mutex
	navigations []string
	warnings    []string
}

func (u *recordingUI) NavigateTo(ref string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.navigations = append(u.navigations, ref)
}

func (u *recordingUI) ShowWarning(id, message string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.warnings = append(u.warnings, id)
}

func (u *recordingUI) snapshot() (navs, warns []string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.navigations...), append([]string(nil), u.warnings...)
}

type staticIdentity string

func (s staticIdentity) ResolveViewerIdentity(ctx context.Context) (string, error) {
	return string(s), nil
}

func newEngine(t *testing.T, st *memstore.Store, viewer string, fc *clockwork.FakeClock) (*relay.Engine, *recordingUI) {
	t.Helper()
	ui := &recordingUI{}
	e, err := relay.New(relay.Config{
		Store:    st,
		UI:       ui,
		Identity: staticIdentity(viewer),
		Clock:    fc,
	})
	require.NoError(t, err)
	return e, ui
}

func seedDefinition(t *testing.T, st *memstore.Store) {
	t.Helper()
	_, err := st.CreateDocument(context.Background(), "Euler Relay", []store.Node{
		{Text: "A relay over Project Euler problems. [[Relay]]"},
		schema.InlineSetting(schema.KeySource, ""),
		schema.Setting(schema.KeyParameters, "problem"),
	})
	require.NoError(t, err)
}

func TestNew_RequiresAdapters(t *testing.T) {
	_, err := relay.New(relay.Config{})
	require.Error(t, err)

	_, err = relay.New(relay.Config{Store: memstore.New()})
	require.Error(t, err)

	_, err = relay.New(relay.Config{Store: memstore.New(), UI: &recordingUI{}})
	require.Error(t, err)
}

func TestBootstrap_SeedsHomeLobbyAndProfile(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	fc := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	e, _ := newEngine(t, st, "alice@example.com", fc)

	require.NoError(t, e.Bootstrap(ctx))

	_, err := st.ReadTree(ctx, "Relay")
	require.NoError(t, err)

	lobby, err := st.ReadTree(ctx, relay.LobbyTitle)
	require.NoError(t, err)
	require.Len(t, lobby.Children, 2)
	require.Equal(t, "{{query: [[Relay]] [[ACTIVE]]}}", lobby.Children[0].Text)
	require.Equal(t, "{{query: [[Relay]] [[COMPLETE]]}}", lobby.Children[1].Text)

	profile, err := st.ReadTree(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Equal(t, "Email:: alice@example.com", profile.Children[0].Text)
	roles := schema.SettingNode(profile.Children, "Roles")
	require.NotNil(t, roles)
	require.Equal(t, "Player", roles.Children[0].Text)
	require.NotNil(t, schema.SettingNode(profile.Children, "Game History"))

	// Bootstrap is idempotent; a second run adds nothing.
	docs := st.DocumentCount()
	require.NoError(t, e.Bootstrap(ctx))
	require.Equal(t, docs, st.DocumentCount())
	lobby, err = st.ReadTree(ctx, relay.LobbyTitle)
	require.NoError(t, err)
	require.Len(t, lobby.Children, 2)
}

func TestHandleNavigation_DeniedViewerIsRedirectedBeforeAnyWrite(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	fc := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	seedDefinition(t, st)

	alice, _ := newEngine(t, st, "Alice", fc)
	require.NoError(t, alice.Bootstrap(ctx))
	_, err := alice.Launch(ctx, "Euler Relay", "Euler Relay #1", map[string]string{"problem": "42"}, 10)
	require.NoError(t, err)
	_, err = alice.Join(ctx, "Euler Relay #1")
	require.NoError(t, err)

	bob, bobUI := newEngine(t, st, "Bob", fc)
	_, err = bob.Join(ctx, "Euler Relay #1")
	require.NoError(t, err)

	docs := st.DocumentCount()
	decision, err := bob.HandleNavigation(ctx, "Euler Relay #1")
	require.NoError(t, err)
	require.Equal(t, guard.OutcomeDenied, decision.Outcome)

	navs, warns := bobUI.snapshot()
	require.Equal(t, []string{"Relay"}, navs)
	require.Equal(t, []string{"deny-game"}, warns)
	require.Equal(t, docs, st.DocumentCount(), "a denied navigation emits no writes")
	bob.StopClock()
}

func TestHandleNavigation_OwnerGetsRunningClock(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	fc := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	seedDefinition(t, st)

	alice, aliceUI := newEngine(t, st, "Alice", fc)
	require.NoError(t, alice.Bootstrap(ctx))
	_, err := alice.Launch(ctx, "Euler Relay", "Euler Relay #1", map[string]string{"problem": "42"}, 10)
	require.NoError(t, err)
	_, err = alice.Join(ctx, "Euler Relay #1")
	require.NoError(t, err)

	decision, err := alice.HandleNavigation(ctx, "Euler Relay #1")
	require.NoError(t, err)
	require.Equal(t, guard.OutcomeOwner, decision.Outcome)
	require.Equal(t, guard.MetadataFields, decision.HiddenFields)

	// StopClock waits for the background loop, so a clean return proves the
	// clock both started and shut down.
	alice.StopClock()

	navs, warns := aliceUI.snapshot()
	require.Empty(t, navs)
	require.Empty(t, warns)
}

func TestHandleNavigation_UnrelatedDocumentTakesNoAction(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	fc := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	e, ui := newEngine(t, st, "Alice", fc)
	require.NoError(t, e.Bootstrap(ctx))

	decision, err := e.HandleNavigation(ctx, "Meeting Notes")
	require.NoError(t, err)
	require.Equal(t, guard.OutcomeNone, decision.Outcome)

	navs, warns := ui.snapshot()
	require.Empty(t, navs)
	require.Empty(t, warns)
}

func TestLaunchAndJoin_EndToEnd(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	fc := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	seedDefinition(t, st)

	e, _ := newEngine(t, st, "Alice", fc)
	require.NoError(t, e.Bootstrap(ctx))

	sess, err := e.Launch(ctx, "Euler Relay", "Euler Relay #1", map[string]string{"problem": "42"}, 10)
	require.NoError(t, err)
	require.True(t, sess.IsActive())

	pos, err := e.Join(ctx, "Euler Relay #1")
	require.NoError(t, err)
	require.Equal(t, 0, pos)

	pos, err = e.Join(ctx, "Euler Relay #1")
	require.NoError(t, err)
	require.Equal(t, 0, pos, "joining twice keeps the original seat")

	titles, err := e.Catalog().ListDefinitions(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"Euler Relay"}, titles)
}
