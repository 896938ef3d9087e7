package main

import (
	"context"

	"github.com/rs/zerolog/log"
)

// consoleUI applies navigation and warning effects by logging them. A real
// host would drive its presentation layer here.
type consoleUI struct{}

func (consoleUI) NavigateTo(ref string) {
	log.Info().Str("ref", ref).Msg("navigate")
}

func (consoleUI) ShowWarning(id, message string) {
	log.Warn().Str("id", id).Msg(message)
}

// staticIdentity resolves every request to one configured player, the demo
// stand-in for the host's identity lookup.
type staticIdentity struct {
	player string
}

func (s staticIdentity) ResolveViewerIdentity(ctx context.Context) (string, error) {
	return s.player, nil
}
