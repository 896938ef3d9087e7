// Package launcher creates relay sessions and handles player joins. Session
// creation is check-then-create against the store: the store offers no
// atomic create-if-absent, so the duplicate check has an unavoidable race
// window that the protocol tolerates.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/relaygame/relay/go/internal/models"
	"github.com/relaygame/relay/go/internal/relay/events"
	"github.com/relaygame/relay/go/internal/relay/schema"
	"github.com/relaygame/relay/go/internal/store"
)

// ErrDuplicateLabel is returned when a document with the requested label
// already exists. No writes have occurred when this is returned.
var ErrDuplicateLabel = errors.New("launcher: a document with this label already exists")

// Clock is the time source. In production use clockwork.NewRealClock().
type Clock interface {
	Now() time.Time
}

// ProblemResolver defines what the launcher needs from the problem resolver.
type ProblemResolver interface {
	Resolve(ctx context.Context, sourceTemplate string, parameterNames []string, parameterValues map[string]string) (string, error)
}

// LaunchRequest carries everything needed to create a session.
type LaunchRequest struct {
	Definition       *models.Definition
	Label            string
	ParameterValues  map[string]string
	TimeLimitMinutes int
	// LaunchRef points back at the node that spawned the session. Optional;
	// read-only context, never mutated through.
	LaunchRef string
}

// Launcher creates sessions and appends players.
type Launcher struct {
	store     store.Store
	resolver  ProblemResolver
	publisher events.Publisher
	clock     Clock
}

// New creates a launcher.
func New(st store.Store, resolver ProblemResolver, publisher events.Publisher, clock Clock) *Launcher {
	return &Launcher{
		store:     st,
		resolver:  resolver,
		publisher: publisher,
		clock:     clock,
	}
}

// Launch creates a new ACTIVE session under req.Label. The duplicate check
// runs before any write; resolver failures surface synchronously to the
// caller and abort the launch.
func (l *Launcher) Launch(ctx context.Context, req LaunchRequest) (*models.Session, error) {
	if err := l.validateLaunchRequest(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	_, err := l.store.ReadTree(ctx, req.Label)
	if err == nil {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateLabel, req.Label)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to check label %q: %w", req.Label, err)
	}

	problemText, err := l.resolver.Resolve(ctx, req.Definition.SourceTemplate, req.Definition.ParameterNames, req.ParameterValues)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve problem: %w", err)
	}

	now := l.clock.Now()
	sess := &models.Session{
		Title:            req.Label,
		DefinitionRef:    req.Definition.Title,
		State:            models.SessionStateActive,
		StartTime:        now,
		TimeLimitMinutes: req.TimeLimitMinutes,
		ParameterValues:  req.ParameterValues,
		ProblemText:      problemText,
		LaunchRef:        req.LaunchRef,
	}

	if _, err := l.store.CreateDocument(ctx, req.Label, sessionNodes(sess)); err != nil {
		return nil, fmt.Errorf("failed to create session document: %w", err)
	}

	log.Info().
		Str("label", req.Label).
		Str("definition", req.Definition.Title).
		Int("time_limit_minutes", req.TimeLimitMinutes).
		Msg("launched session")

	l.publish(ctx, events.TypeSessionCreated, req.Label, events.SessionCreatedPayload{
		Label:            req.Label,
		Definition:       req.Definition.Title,
		TimeLimitMinutes: req.TimeLimitMinutes,
		StartedAt:        now,
	})

	return sess, nil
}

// Join appends identity to the session's player list. Joining twice with the
// same identity is a no-op returning the existing position. The first joiner
// re-anchors the turn clock to now, making the session immediately
// interactable with no separate start step.
func (l *Launcher) Join(ctx context.Context, sessionTitle, identity string) (int, error) {
	tree, err := l.store.ReadTree(ctx, sessionTitle)
	if err != nil {
		return 0, fmt.Errorf("failed to read session %q: %w", sessionTitle, err)
	}

	playersNode := schema.SettingNode(tree.Children, schema.KeyPlayers)
	if playersNode == nil {
		id, err := l.store.CreateNode(ctx, tree.ID, schema.Setting(schema.KeyPlayers), -1)
		if err != nil {
			return 0, fmt.Errorf("failed to create players list: %w", err)
		}
		playersNode = &store.Node{ID: id, Text: schema.KeyPlayers}
	}

	for i, p := range playersNode.Children {
		if schema.ExtractTag(p.Text) == identity {
			log.Debug().Str("session", sessionTitle).Str("player", identity).Int("position", i).
				Msg("player already joined")
			return i, nil
		}
	}

	position := len(playersNode.Children)
	if _, err := l.store.CreateNode(ctx, playersNode.ID, store.Node{Text: "[[" + identity + "]]"}, position); err != nil {
		return 0, fmt.Errorf("failed to append player: %w", err)
	}

	now := l.clock.Now()
	if position == 0 {
		if err := l.writeSetting(ctx, tree, schema.KeyStartTime, now.UTC().Format(time.RFC3339)); err != nil {
			return 0, fmt.Errorf("failed to anchor start time: %w", err)
		}
	}

	log.Info().
		Str("session", sessionTitle).
		Str("player", identity).
		Int("position", position).
		Msg("player joined session")

	l.publish(ctx, events.TypePlayerJoined, sessionTitle, events.PlayerJoinedPayload{
		Player:   identity,
		Position: position,
		JoinedAt: now,
	})

	return position, nil
}

// Complete flips a session to COMPLETE. The turn coordination core never
// calls this; completion is an externally triggered event.
func (l *Launcher) Complete(ctx context.Context, sessionTitle string) error {
	tree, err := l.store.ReadTree(ctx, sessionTitle)
	if err != nil {
		return fmt.Errorf("failed to read session %q: %w", sessionTitle, err)
	}
	if err := l.writeSetting(ctx, tree, schema.KeyState, string(models.SessionStateComplete)); err != nil {
		return fmt.Errorf("failed to complete session %q: %w", sessionTitle, err)
	}

	log.Info().Str("session", sessionTitle).Msg("session completed")

	l.publish(ctx, events.TypeSessionCompleted, sessionTitle, events.SessionCompletedPayload{
		CompletedAt: l.clock.Now(),
	})
	return nil
}

// writeSetting overwrites the value node for key, creating the setting node
// or its value child when missing.
func (l *Launcher) writeSetting(ctx context.Context, tree *store.Tree, key, value string) error {
	if id := schema.ValueNodeID(tree.Children, key); id != "" {
		return l.store.UpdateNode(ctx, id, value)
	}
	n := schema.SettingNode(tree.Children, key)
	if n == nil {
		_, err := l.store.CreateNode(ctx, tree.ID, schema.Setting(key, value), -1)
		return err
	}
	_, err := l.store.CreateNode(ctx, n.ID, store.Node{Text: value}, -1)
	return err
}

func (l *Launcher) validateLaunchRequest(req LaunchRequest) error {
	if req.Definition == nil {
		return errors.New("definition is required")
	}
	if req.Label == "" {
		return errors.New("label is required")
	}
	if req.TimeLimitMinutes <= 0 {
		return errors.New("time limit must be a positive number of minutes")
	}
	return nil
}

func (l *Launcher) publish(ctx context.Context, eventType, session string, payload any) {
	evt, err := events.New(eventType, session, payload, l.clock.Now())
	if err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("failed to build event")
		return
	}
	if err := l.publisher.Publish(ctx, evt); err != nil {
		log.Error().Err(err).Str("event_type", eventType).Str("session", session).
			Msg("failed to publish event")
	}
}

func sessionNodes(sess *models.Session) []store.Node {
	params := schema.Setting(schema.KeyParameters)
	for _, name := range sortedKeys(sess.ParameterValues) {
		params.Children = append(params.Children, store.Node{Text: name + ":: " + sess.ParameterValues[name]})
	}

	nodes := []store.Node{
		schema.Setting(schema.KeyState, string(sess.State)),
		schema.Setting(schema.KeyGame, "[["+sess.DefinitionRef+"]]"),
		schema.Setting(schema.KeyTime, strconv.Itoa(sess.TimeLimitMinutes)),
		schema.Setting(schema.KeyPlayers),
		schema.Setting(schema.KeyCurrentPlayer, "0"),
		schema.Setting(schema.KeyStartTime, sess.StartTime.UTC().Format(time.RFC3339)),
		params,
		schema.Setting(schema.KeyProblem, sess.ProblemText),
		schema.Setting(schema.KeyNotes),
		schema.Setting(schema.KeyAnswer),
	}
	if sess.LaunchRef != "" {
		nodes = append(nodes, schema.Setting(schema.KeyLaunchedFrom, "(("+sess.LaunchRef+"))"))
	}
	return nodes
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
