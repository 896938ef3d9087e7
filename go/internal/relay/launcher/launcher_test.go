package launcher_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/relaygame/relay/go/internal/models"
	"github.com/relaygame/relay/go/internal/relay/events"
	"github.com/relaygame/relay/go/internal/relay/launcher"
	"github.com/relaygame/relay/go/internal/relay/schema"
	"github.com/relaygame/relay/go/internal/store"
	"github.com/relaygame/relay/go/internal/store/memstore"
)

type countingResolver struct {
	calls int32
	text  string
}

func (r *countingResolver) Resolve(ctx context.Context, sourceTemplate string, parameterNames []string, parameterValues map[string]string) (string, error) {
	atomic.AddInt32(&r.calls, 1)
	return r.text, nil
}

func newLauncher(st *memstore.Store, fc clockwork.Clock, resolver *countingResolver) *launcher.Launcher {
	return launcher.New(st, resolver, events.NewLogPublisher(), fc)
}

func euler() *models.Definition {
	return &models.Definition{
		Title:          "Euler Relay",
		SourceTemplate: "https://example.com/euler?problem={problem}",
		ParameterNames: []string{"problem"},
	}
}

func TestLaunch_CreatesActiveSession(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	fc := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	resolver := &countingResolver{text: "find the sum"}

	sess, err := newLauncher(st, fc, resolver).Launch(ctx, launcher.LaunchRequest{
		Definition:       euler(),
		Label:            "Euler Relay #1",
		ParameterValues:  map[string]string{"problem": "42"},
		TimeLimitMinutes: 10,
	})
	require.NoError(t, err)
	require.Equal(t, models.SessionStateActive, sess.State)

	stored, _, err := schema.LoadSession(ctx, st, "Euler Relay #1")
	require.NoError(t, err)
	require.Equal(t, models.SessionStateActive, stored.State)
	require.Equal(t, "Euler Relay", stored.DefinitionRef)
	require.Empty(t, stored.Players)
	require.Equal(t, 0, stored.CurrentPlayerIndex)
	require.Equal(t, 10, stored.TimeLimitMinutes)
	require.Equal(t, "find the sum", stored.ProblemText)
	require.Equal(t, map[string]string{"problem": "42"}, stored.ParameterValues)
	require.Equal(t, fc.Now().UTC().Truncate(time.Second), stored.StartTime)
}

func TestLaunch_DuplicateLabelLeavesStoreUntouched(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	fc := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	resolver := &countingResolver{text: "unused"}

	_, err := st.CreateDocument(ctx, "Foo", []store.Node{{Text: "something else"}})
	require.NoError(t, err)
	before := st.DocumentCount()

	_, err = newLauncher(st, fc, resolver).Launch(ctx, launcher.LaunchRequest{
		Definition:       euler(),
		Label:            "Foo",
		TimeLimitMinutes: 10,
	})
	require.ErrorIs(t, err, launcher.ErrDuplicateLabel)
	require.Equal(t, before, st.DocumentCount(), "duplicate label must not write anything")
	require.Zero(t, atomic.LoadInt32(&resolver.calls), "duplicate check runs before the external fetch")
}

func TestLaunch_Validation(t *testing.T) {
	st := memstore.New()
	fc := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	l := newLauncher(st, fc, &countingResolver{})

	_, err := l.Launch(context.Background(), launcher.LaunchRequest{Definition: euler(), Label: "X"})
	require.Error(t, err, "time limit must be positive")

	_, err = l.Launch(context.Background(), launcher.LaunchRequest{Definition: euler(), TimeLimitMinutes: 5})
	require.Error(t, err, "label is required")
}

func TestJoin_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	fc := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	l := newLauncher(st, fc, &countingResolver{})

	_, err := l.Launch(ctx, launcher.LaunchRequest{Definition: euler(), Label: "Game", TimeLimitMinutes: 10})
	require.NoError(t, err)

	pos, err := l.Join(ctx, "Game", "Alice")
	require.NoError(t, err)
	require.Equal(t, 0, pos)

	again, err := l.Join(ctx, "Game", "Alice")
	require.NoError(t, err)
	require.Equal(t, 0, again)

	sess, _, err := schema.LoadSession(ctx, st, "Game")
	require.NoError(t, err)
	require.Equal(t, []string{"Alice"}, sess.Players, "repeated join must not grow the player list")

	pos, err = l.Join(ctx, "Game", "Bob")
	require.NoError(t, err)
	require.Equal(t, 1, pos)
}

func TestJoin_FirstJoinerReanchorsClock(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	fc := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	l := newLauncher(st, fc, &countingResolver{})

	_, err := l.Launch(ctx, launcher.LaunchRequest{Definition: euler(), Label: "Game", TimeLimitMinutes: 10})
	require.NoError(t, err)

	fc.Advance(7 * time.Minute)
	_, err = l.Join(ctx, "Game", "Alice")
	require.NoError(t, err)

	sess, _, err := schema.LoadSession(ctx, st, "Game")
	require.NoError(t, err)
	require.Equal(t, fc.Now().UTC().Truncate(time.Second), sess.StartTime,
		"first joiner makes the session immediately interactable from now")

	// A second joiner must not reset the running clock.
	fc.Advance(3 * time.Minute)
	anchor := sess.StartTime
	_, err = l.Join(ctx, "Game", "Bob")
	require.NoError(t, err)

	sess, _, err = schema.LoadSession(ctx, st, "Game")
	require.NoError(t, err)
	require.Equal(t, anchor, sess.StartTime)
}

func TestComplete_FlipsState(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	fc := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	l := newLauncher(st, fc, &countingResolver{})

	_, err := l.Launch(ctx, launcher.LaunchRequest{Definition: euler(), Label: "Game", TimeLimitMinutes: 10})
	require.NoError(t, err)
	require.NoError(t, l.Complete(ctx, "Game"))

	sess, _, err := schema.LoadSession(ctx, st, "Game")
	require.NoError(t, err)
	require.Equal(t, models.SessionStateComplete, sess.State)
}
