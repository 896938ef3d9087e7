package models

// HistoryEntry is one archived notes snapshot from a departing turn owner.
// Entries are append-only and ordered by Sequence (insertion order).
type HistoryEntry struct {
	PlayerIdentity string   `json:"player_identity"`
	Notes          []string `json:"notes"`
	Sequence       int      `json:"sequence"`
}
