package turnclock

import (
	"context"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/relaygame/relay/go/internal/relay/effects"
	"github.com/relaygame/relay/go/internal/relay/events"
	"github.com/relaygame/relay/go/internal/relay/history"
	"github.com/relaygame/relay/go/internal/relay/schema"
	"github.com/relaygame/relay/go/internal/store"
)

// DefaultInterval is the tick period. Every tick recomputes the owner from
// the absolute start time, so a missed tick causes no cumulative drift; the
// next tick alone corrects state.
const DefaultInterval = 100 * time.Millisecond

// Clock is the time source for the ticker. In production use
// clockwork.NewRealClock(); in tests a FakeClock.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) clockwork.Ticker
}

// Archiver defines what the ticker needs from the history archiver.
type Archiver interface {
	Archive(ctx context.Context, sessionTitle, identity string, notesSnapshot []store.Node) error
}

// TickState is the per-tick render state handed to the host.
type TickState struct {
	HasOwner   bool
	OwnerIndex int
	Owner      string
	Remaining  time.Duration
}

// TickerConfig wires a Ticker.
type TickerConfig struct {
	Store     store.Store
	Archiver  Archiver
	Publisher events.Publisher
	UI        effects.UI
	Clock     Clock
	Viewer    string
	Session   string
	Interval  time.Duration    // defaults to DefaultInterval
	OnTick    func(TickState)  // optional render hook
}

// Ticker is the per-client recurring task that applies the owner function:
// it idempotently writes the turn pointer and, when the local identity is
// the one handing off, archives the notes snapshot and emits the redirect
// and warning effects for this client only.
type Ticker struct {
	store     store.Store
	archiver  Archiver
	publisher events.Publisher
	ui        effects.UI
	clock     Clock
	viewer    string
	session   string
	interval  time.Duration
	onTick    func(TickState)
}

// NewTicker creates a ticker for one client viewing one session.
func NewTicker(cfg TickerConfig) *Ticker {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Ticker{
		store:     cfg.Store,
		archiver:  cfg.Archiver,
		publisher: cfg.Publisher,
		ui:        cfg.UI,
		clock:     cfg.Clock,
		viewer:    cfg.Viewer,
		session:   cfg.Session,
		interval:  interval,
		onTick:    cfg.OnTick,
	}
}

// Run ticks until ctx is cancelled (view teardown) or the local client hands
// the turn off and navigates away. Tick errors are logged and retried on the
// next tick; they never stop the loop.
func (t *Ticker) Run(ctx context.Context) error {
	log.Info().
		Str("session", t.session).
		Str("viewer", t.viewer).
		Dur("interval", t.interval).
		Msg("turn clock started")

	ticker := t.clock.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("session", t.session).Msg("turn clock stopped")
			return nil
		case <-ticker.Chan():
			stop, err := t.tick(ctx)
			if err != nil {
				log.Error().Err(err).Str("session", t.session).Msg("tick failed")
				continue
			}
			if stop {
				return nil
			}
		}
	}
}

// tick applies one evaluation of the owner function. It returns stop=true
// once this client has handed off (or the session stopped being active) and
// its recurring task should end.
func (t *Ticker) tick(ctx context.Context) (bool, error) {
	sess, tree, err := schema.LoadSession(ctx, t.store, t.session)
	if err != nil {
		return false, err
	}
	if !sess.IsActive() {
		log.Info().Str("session", t.session).Str("state", string(sess.State)).
			Msg("session no longer active; turn clock ending")
		return true, nil
	}

	now := t.clock.Now()
	target, ok := ComputeOwnerIndex(sess.StartTime, len(sess.Players), sess.TimeLimitMinutes, now)
	if !ok {
		// No players yet: no owner, nothing to write.
		t.render(TickState{})
		return false, nil
	}

	t.render(TickState{
		HasOwner:   true,
		OwnerIndex: target,
		Owner:      sess.Players[target],
		Remaining:  Remaining(sess.StartTime, sess.TimeLimitMinutes, now),
	})

	if target == sess.CurrentPlayerIndex {
		return false, nil
	}

	// Every client computes the identical target for the same instant, so
	// concurrent writes converge; this write is idempotent.
	if err := t.writePointer(ctx, tree, target); err != nil {
		return false, err
	}

	prevOwner := ""
	if sess.CurrentPlayerIndex >= 0 && sess.CurrentPlayerIndex < len(sess.Players) {
		prevOwner = sess.Players[sess.CurrentPlayerIndex]
	}
	newOwner := sess.Players[target]

	log.Info().
		Str("session", t.session).
		Str("from", prevOwner).
		Str("to", newOwner).
		Int("from_index", sess.CurrentPlayerIndex).
		Int("to_index", target).
		Msg("turn handed off")

	if prevOwner != t.viewer || newOwner == t.viewer {
		return false, nil
	}

	// This client is the departing owner: snapshot its work, then leave.
	// Archive and event are fire-and-forget; a failed write is lost, not
	// surfaced.
	var notes []store.Node
	if n := schema.SettingNode(tree.Children, schema.KeyNotes); n != nil {
		notes = n.Children
	}
	if err := t.archiver.Archive(ctx, t.session, t.viewer, notes); err != nil {
		log.Error().Err(err).Str("session", t.session).Msg("failed to archive notes on hand-off")
	}
	t.publishHandOff(ctx, prevOwner, newOwner, sess.CurrentPlayerIndex, target, now)

	t.ui.ShowWarning("deny-game", "Time's up! It's now someone else's turn to solve the problem!")
	t.ui.NavigateTo(history.ThreadTitle(t.session))
	return true, nil
}

func (t *Ticker) writePointer(ctx context.Context, tree *store.Tree, target int) error {
	text := strconv.Itoa(target)
	if id := schema.ValueNodeID(tree.Children, schema.KeyCurrentPlayer); id != "" {
		return t.store.UpdateNode(ctx, id, text)
	}
	if n := schema.SettingNode(tree.Children, schema.KeyCurrentPlayer); n != nil {
		_, err := t.store.CreateNode(ctx, n.ID, store.Node{Text: text}, -1)
		return err
	}
	_, err := t.store.CreateNode(ctx, tree.ID, schema.Setting(schema.KeyCurrentPlayer, text), -1)
	return err
}

func (t *Ticker) publishHandOff(ctx context.Context, from, to string, fromIndex, toIndex int, now time.Time) {
	evt, err := events.New(events.TypeHandOff, t.session, events.HandOffPayload{
		FromPlayer: from,
		ToPlayer:   to,
		FromIndex:  fromIndex,
		ToIndex:    toIndex,
		HandedAt:   now,
	}, now)
	if err != nil {
		log.Error().Err(err).Msg("failed to build HandOff event")
		return
	}
	if err := t.publisher.Publish(ctx, evt); err != nil {
		log.Error().Err(err).Str("session", t.session).Msg("failed to publish HandOff event")
	}
}

func (t *Ticker) render(state TickState) {
	if t.onTick != nil {
		t.onTick(state)
	}
}
