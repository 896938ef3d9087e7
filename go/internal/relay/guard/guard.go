// Package guard restricts navigation into active sessions to the current
// turn owner. The restriction is advisory and client-side only: the store
// grants read/write access independently, and a client that bypasses the
// guard is not prevented at the data layer. The guard never mutates
// anything; it only classifies.
package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/relaygame/relay/go/internal/relay/catalog"
	"github.com/relaygame/relay/go/internal/relay/effects"
	"github.com/relaygame/relay/go/internal/relay/schema"
	"github.com/relaygame/relay/go/internal/relay/turnclock"
	"github.com/relaygame/relay/go/internal/store"
)

// Outcome classifies a navigation target.
type Outcome string

const (
	// OutcomeNone: not a relay document the guard cares about; no action.
	OutcomeNone Outcome = "NONE"
	// OutcomeOwner: active session, viewer owns the turn; allow, with the
	// coordination metadata hidden.
	OutcomeOwner Outcome = "OWNER"
	// OutcomeDenied: active session, viewer is not the owner; redirect away
	// with a warning.
	OutcomeDenied Outcome = "DENIED"
	// OutcomeJoinable: a definition document; render a join affordance.
	OutcomeJoinable Outcome = "JOINABLE"
)

// MetadataFields are the coordination fields suppressed from the owner's
// view to declutter gameplay. "Linked References" stands for the inbound
// reference panel.
var MetadataFields = []string{
	schema.KeyPlayers,
	schema.KeyCurrentPlayer,
	schema.KeyLaunchedFrom,
	schema.KeyState,
	"Linked References",
}

// Decision is the guard's classification plus the effects a host should
// apply. It contains no writes.
type Decision struct {
	Outcome      Outcome
	SessionTitle string
	HiddenFields []string
	RedirectRef  string
	Warning      *effects.Warning
}

// Clock is the time source for owner recomputation.
type Clock interface {
	Now() time.Time
}

// Guard classifies navigation targets.
type Guard struct {
	store   store.Store
	catalog *catalog.Catalog
	clock   Clock
}

// New creates a guard.
func New(st store.Store, cat *catalog.Catalog, clock Clock) *Guard {
	return &Guard{store: st, catalog: cat, clock: clock}
}

// Classify determines what the viewer may do with the document behind
// docTitle. The owner is always recomputed from elapsed time; the stored
// turn pointer is display cache, never a correctness input.
func (g *Guard) Classify(ctx context.Context, docTitle, viewer string) (Decision, error) {
	none := Decision{Outcome: OutcomeNone}

	tree, err := g.store.ReadTree(ctx, docTitle)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return none, nil
		}
		return none, fmt.Errorf("failed to read document %q: %w", docTitle, err)
	}

	isDefinition, err := g.catalog.Contains(ctx, docTitle)
	if err != nil {
		return none, err
	}
	if isDefinition {
		return Decision{Outcome: OutcomeJoinable, SessionTitle: docTitle}, nil
	}

	sess, err := schema.DecodeSession(tree)
	if err != nil {
		// A document we cannot decode is not a session we can protect.
		log.Warn().Err(err).Str("document", docTitle).Msg("undecodable document; guard taking no action")
		return none, nil
	}
	if sess.DefinitionRef == "" {
		return none, nil
	}
	partOfCatalog, err := g.catalog.Contains(ctx, sess.DefinitionRef)
	if err != nil {
		return none, err
	}
	if !partOfCatalog || !sess.IsActive() {
		return none, nil
	}

	if sess.TimeLimitMinutes == 0 {
		reloaded, _, lerr := schema.LoadSession(ctx, g.store, docTitle)
		if lerr == nil {
			sess = reloaded
		}
	}

	ownerIndex, ok := turnclock.ComputeOwnerIndex(sess.StartTime, len(sess.Players), sess.TimeLimitMinutes, g.clock.Now())
	if !ok {
		// Active session with no players has no owner to protect.
		return none, nil
	}

	if sess.Players[ownerIndex] == viewer {
		return Decision{
			Outcome:      OutcomeOwner,
			SessionTitle: docTitle,
			HiddenFields: MetadataFields,
		}, nil
	}

	log.Info().
		Str("session", docTitle).
		Str("viewer", viewer).
		Str("owner", sess.Players[ownerIndex]).
		Msg("denying access to active session")

	return Decision{
		Outcome:      OutcomeDenied,
		SessionTitle: docTitle,
		RedirectRef:  g.catalog.Home(),
		Warning: &effects.Warning{
			ID: "deny-game",
			Message: fmt.Sprintf("Not allowed to access Relay Game %s while the game is active and you're not the current player.",
				docTitle),
		},
	}, nil
}
