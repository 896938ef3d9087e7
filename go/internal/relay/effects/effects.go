// Package effects is the closed set of boundary effects the coordination
// core emits and the host adapter interfaces that apply them. The core only
// computes decisions; presentation stays on the host side.
package effects

import "context"

// Warning identifies a user-visible warning toast. The id lets hosts
// de-duplicate repeated warnings.
type Warning struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// UI is the host surface for navigation and notification effects.
type UI interface {
	// NavigateTo redirects this client to the document behind ref.
	NavigateTo(ref string)
	// ShowWarning displays a warning toast.
	ShowWarning(id, message string)
}

// IdentityResolver maps the connected client to a player identity
// (display name, falling back to email).
type IdentityResolver interface {
	ResolveViewerIdentity(ctx context.Context) (string, error)
}
