// Package relay wires the turn coordination components together behind one
// explicitly initialized engine. There is no hidden package-level state: the
// host constructs an Engine with its store and adapters and reaches all
// behavior through it.
package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/relaygame/relay/go/internal/models"
	"github.com/relaygame/relay/go/internal/relay/catalog"
	"github.com/relaygame/relay/go/internal/relay/effects"
	"github.com/relaygame/relay/go/internal/relay/events"
	"github.com/relaygame/relay/go/internal/relay/guard"
	"github.com/relaygame/relay/go/internal/relay/history"
	"github.com/relaygame/relay/go/internal/relay/launcher"
	"github.com/relaygame/relay/go/internal/relay/problem"
	"github.com/relaygame/relay/go/internal/relay/schema"
	"github.com/relaygame/relay/go/internal/relay/turnclock"
	"github.com/relaygame/relay/go/internal/store"
)

// LobbyTitle is the document seeded with the session query blocks.
const LobbyTitle = "Lobby"

// Config wires an Engine. Store, UI and Identity are required; everything
// else has a default.
type Config struct {
	Store     store.Store
	UI        effects.UI
	Identity  effects.IdentityResolver
	Publisher events.Publisher          // defaults to the log publisher
	Clock     turnclock.Clock           // defaults to the real clock
	Home      string                    // defaults to catalog.DefaultHome
	Interval  time.Duration             // tick period, defaults to turnclock.DefaultInterval
	OnTick    func(turnclock.TickState) // per-tick render hook
}

// Engine is the per-client coordination entry point.
type Engine struct {
	store     store.Store
	ui        effects.UI
	identity  effects.IdentityResolver
	publisher events.Publisher
	clock     turnclock.Clock
	interval  time.Duration
	onTick    func(turnclock.TickState)

	catalog  *catalog.Catalog
	launcher *launcher.Launcher
	guard    *guard.Guard
	archiver *history.Archiver
	resolver *problem.Resolver

	mu         sync.Mutex
	stopTicker context.CancelFunc
	tickerDone chan struct{}
}

// New creates an engine. This is the single initialization entry point; the
// host invokes it once.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errors.New("relay: store is required")
	}
	if cfg.UI == nil {
		return nil, errors.New("relay: ui adapter is required")
	}
	if cfg.Identity == nil {
		return nil, errors.New("relay: identity resolver is required")
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.NewLogPublisher()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	resolver := problem.NewResolver()
	cat := catalog.New(cfg.Store, cfg.Home)

	return &Engine{
		store:     cfg.Store,
		ui:        cfg.UI,
		identity:  cfg.Identity,
		publisher: cfg.Publisher,
		clock:     cfg.Clock,
		interval:  cfg.Interval,
		onTick:    cfg.OnTick,
		catalog:   cat,
		launcher:  launcher.New(cfg.Store, resolver, cfg.Publisher, cfg.Clock),
		guard:     guard.New(cfg.Store, cat, cfg.Clock),
		archiver:  history.New(cfg.Store),
		resolver:  resolver,
	}, nil
}

// Bootstrap runs the once-per-client startup work: seed the home and lobby
// documents and create the viewer's profile on first run.
func (e *Engine) Bootstrap(ctx context.Context) error {
	if _, err := e.store.CreateDocument(ctx, e.catalog.Home(), nil); err != nil {
		return fmt.Errorf("failed to ensure home document: %w", err)
	}
	if err := e.seedLobby(ctx); err != nil {
		return err
	}
	viewer, err := e.identity.ResolveViewerIdentity(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve viewer identity: %w", err)
	}
	return e.ensureProfile(ctx, viewer)
}

// HandleNavigation classifies the target document and applies the guard's
// effects for this client: a denied viewer is redirected away with a warning
// before any write could be emitted, an owning viewer gets a running turn
// clock. The previous navigation's clock is always cancelled first.
func (e *Engine) HandleNavigation(ctx context.Context, docTitle string) (guard.Decision, error) {
	e.StopClock()

	viewer, err := e.identity.ResolveViewerIdentity(ctx)
	if err != nil {
		return guard.Decision{}, fmt.Errorf("failed to resolve viewer identity: %w", err)
	}

	decision, err := e.guard.Classify(ctx, docTitle, viewer)
	if err != nil {
		return decision, err
	}

	switch decision.Outcome {
	case guard.OutcomeDenied:
		e.ui.NavigateTo(decision.RedirectRef)
		if decision.Warning != nil {
			e.ui.ShowWarning(decision.Warning.ID, decision.Warning.Message)
		}
	case guard.OutcomeOwner:
		e.startClock(viewer, docTitle)
	}
	return decision, nil
}

// StopClock cancels the running turn clock, if any, and waits for it to
// exit. Called on view teardown so no orphaned background writer survives
// navigation.
func (e *Engine) StopClock() {
	e.mu.Lock()
	stop, done := e.stopTicker, e.tickerDone
	e.stopTicker, e.tickerDone = nil, nil
	e.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
}

// Launch creates a session from a definition title.
func (e *Engine) Launch(ctx context.Context, definitionTitle, label string, parameterValues map[string]string, timeLimitMinutes int) (*models.Session, error) {
	def, err := e.catalog.LoadDefinition(ctx, definitionTitle)
	if err != nil {
		return nil, err
	}
	return e.launcher.Launch(ctx, launcher.LaunchRequest{
		Definition:       def,
		Label:            label,
		ParameterValues:  parameterValues,
		TimeLimitMinutes: timeLimitMinutes,
	})
}

// Join adds the current viewer to a session.
func (e *Engine) Join(ctx context.Context, sessionTitle string) (int, error) {
	viewer, err := e.identity.ResolveViewerIdentity(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve viewer identity: %w", err)
	}
	return e.launcher.Join(ctx, sessionTitle, viewer)
}

// Catalog exposes the definition catalog.
func (e *Engine) Catalog() *catalog.Catalog { return e.catalog }

// Launcher exposes the session launcher.
func (e *Engine) Launcher() *launcher.Launcher { return e.launcher }

// Guard exposes the access guard.
func (e *Engine) Guard() *guard.Guard { return e.guard }

// History exposes the history archiver.
func (e *Engine) History() *history.Archiver { return e.archiver }

func (e *Engine) startClock(viewer, session string) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	e.mu.Lock()
	e.stopTicker, e.tickerDone = cancel, done
	e.mu.Unlock()

	ticker := turnclock.NewTicker(turnclock.TickerConfig{
		Store:     e.store,
		Archiver:  e.archiver,
		Publisher: e.publisher,
		UI:        e.ui,
		Clock:     e.clock,
		Viewer:    viewer,
		Session:   session,
		Interval:  e.interval,
		OnTick:    e.onTick,
	})
	go func() {
		defer close(done)
		if err := ticker.Run(ctx); err != nil {
			log.Error().Err(err).Str("session", session).Msg("turn clock exited with error")
		}
	}()
}

func (e *Engine) seedLobby(ctx context.Context) error {
	queries := []string{
		fmt.Sprintf("{{query: [[%s]] [[%s]]}}", e.catalog.Home(), models.SessionStateActive),
		fmt.Sprintf("{{query: [[%s]] [[%s]]}}", e.catalog.Home(), models.SessionStateComplete),
	}

	tree, err := e.store.ReadTree(ctx, LobbyTitle)
	if errors.Is(err, store.ErrNotFound) {
		var children []store.Node
		for _, q := range queries {
			children = append(children, store.Node{Text: q})
		}
		if _, err := e.store.CreateDocument(ctx, LobbyTitle, children); err != nil {
			return fmt.Errorf("failed to seed lobby: %w", err)
		}
		log.Info().Str("lobby", LobbyTitle).Msg("seeded lobby document")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read lobby: %w", err)
	}

	existing := make(map[string]bool, len(tree.Children))
	for _, c := range tree.Children {
		existing[c.Text] = true
	}
	for i, q := range queries {
		if existing[q] {
			continue
		}
		if _, err := e.store.CreateNode(ctx, tree.ID, store.Node{Text: q}, i); err != nil {
			return fmt.Errorf("failed to seed lobby query: %w", err)
		}
	}
	return nil
}

// ensureProfile creates the viewer's profile document on first run, the
// relay equivalent of a player record.
func (e *Engine) ensureProfile(ctx context.Context, viewer string) error {
	_, err := e.store.ReadTree(ctx, viewer)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to read player profile: %w", err)
	}

	children := []store.Node{
		schema.Setting("Roles", "Player"),
		schema.Setting("Game History"),
	}
	if strings.Contains(viewer, "@") {
		children = append([]store.Node{{Text: "Email:: " + viewer}}, children...)
	}
	if _, err := e.store.CreateDocument(ctx, viewer, children); err != nil {
		return fmt.Errorf("failed to create player profile: %w", err)
	}
	log.Info().Str("player", viewer).Msg("created player profile")
	return nil
}
