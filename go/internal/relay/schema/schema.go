// Package schema is the typed view over a session's reserved fields inside
// the shared document tree. Keys are matched case-insensitively for
// backward compatibility with documents authored by older clients; type
// mismatches fail loudly instead of silently defaulting.
package schema

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/relaygame/relay/go/internal/models"
	"github.com/relaygame/relay/go/internal/store"
)

// ErrMalformedDefinition is returned when a definition carries a source
// template whose parameters cannot be derived from its settings.
var ErrMalformedDefinition = errors.New("schema: malformed definition")

// Reserved keys inside a session document. Matching is case-insensitive.
const (
	KeyState         = "State"
	KeyPlayers       = "Players"
	KeyCurrentPlayer = "Current Player"
	KeyLaunchedFrom  = "Launched From"
	KeyTime          = "Time"
	KeyLabel         = "Label"
	KeyGame          = "Game"
	KeyStartTime     = "Start Time"
	KeyParameters    = "Parameters"
	KeyProblem       = "Problem"
	KeyNotes         = "Notes"
	KeyAnswer        = "Answer"
	KeySource        = "Source"

	// legacyStartTimeKey is the turn-clock anchor written by the original
	// client generation.
	legacyStartTimeKey = "{{stopwatch}}"
)

// defaultTimeLimitMinutes applies when neither the session document nor its
// launch context carries a time limit.
const defaultTimeLimitMinutes = 10

var (
	tagRegex   = regexp.MustCompile(`^\[\[(.+)\]\]$|^#(\S+)$`)
	refRegex   = regexp.MustCompile(`\(\(([^)]+)\)\)`)
	tokenRegex = regexp.MustCompile(`\{([^{}]+)\}`)
)

// KeyMatches reports whether a node's text denotes the given reserved key,
// either as a bare key ("Players"), a key marker ("Players::") or an inline
// setting ("Players:: ..."), all case-insensitive.
func KeyMatches(text, key string) bool {
	t := strings.TrimSpace(text)
	if strings.EqualFold(t, key) {
		return true
	}
	lower := strings.ToLower(t)
	return strings.HasPrefix(lower, strings.ToLower(key)+"::")
}

// SettingNode returns the first node whose text matches key, or nil.
func SettingNode(nodes []store.Node, key string) *store.Node {
	for i := range nodes {
		if KeyMatches(nodes[i].Text, key) {
			return &nodes[i]
		}
	}
	return nil
}

// SettingValue returns the value for key: the text after an inline "::"
// marker, or the text of the setting node's first child.
func SettingValue(nodes []store.Node, key string) string {
	n := SettingNode(nodes, key)
	if n == nil {
		return ""
	}
	if idx := strings.Index(n.Text, "::"); idx >= 0 {
		if v := strings.TrimSpace(n.Text[idx+2:]); v != "" {
			return v
		}
	}
	if len(n.Children) > 0 {
		return strings.TrimSpace(n.Children[0].Text)
	}
	return ""
}

// SettingValues returns the ordered child texts under the setting node for
// key. Used for append-only sequences such as players.
func SettingValues(nodes []store.Node, key string) []string {
	n := SettingNode(nodes, key)
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Children))
	for _, c := range n.Children {
		out = append(out, strings.TrimSpace(c.Text))
	}
	return out
}

// SettingInt parses the value for key as an integer. A missing setting
// returns (fallback, nil); a present but non-numeric value is an error.
func SettingInt(nodes []store.Node, key string, fallback int) (int, error) {
	v := SettingValue(nodes, key)
	if v == "" {
		return fallback, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("schema: setting %q is not an integer: %q", key, v)
	}
	return i, nil
}

// ValueNodeID returns the id of the node holding the value for key: the
// setting node itself for inline settings, otherwise its first child. An
// empty id means the value node does not exist yet.
func ValueNodeID(nodes []store.Node, key string) string {
	n := SettingNode(nodes, key)
	if n == nil {
		return ""
	}
	if strings.Contains(n.Text, "::") && strings.TrimSpace(strings.SplitN(n.Text, "::", 2)[1]) != "" {
		return n.ID
	}
	if len(n.Children) > 0 {
		return n.Children[0].ID
	}
	return ""
}

// ExtractTag strips [[...]] or #... link syntax, returning the bare title.
func ExtractTag(s string) string {
	if m := tagRegex.FindStringSubmatch(strings.TrimSpace(s)); m != nil {
		if m[1] != "" {
			return m[1]
		}
		return m[2]
	}
	return strings.TrimSpace(s)
}

// ExtractRef pulls a ((node-ref)) out of s, or returns empty.
func ExtractRef(s string) string {
	if m := refRegex.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return ""
}

// TemplateTokens returns the distinct {param} token names in a source
// template, lower-cased, in order of first appearance.
func TemplateTokens(template string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range tokenRegex.FindAllStringSubmatch(template, -1) {
		name := strings.ToLower(m[1])
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// DecodeSession decodes the reserved session fields from a document tree.
func DecodeSession(tree *store.Tree) (*models.Session, error) {
	nodes := tree.Children

	sess := &models.Session{
		Title:         tree.Title,
		State:         models.SessionStateNone,
		DefinitionRef: ExtractTag(SettingValue(nodes, KeyGame)),
		ProblemText:   SettingValue(nodes, KeyProblem),
		Notes:         SettingValue(nodes, KeyNotes),
		Answer:        SettingValue(nodes, KeyAnswer),
		LaunchRef:     ExtractRef(SettingValue(nodes, KeyLaunchedFrom)),
	}

	if v := SettingValue(nodes, KeyState); v != "" {
		sess.State = models.SessionState(strings.ToUpper(v))
	}

	for _, p := range SettingValues(nodes, KeyPlayers) {
		sess.Players = append(sess.Players, ExtractTag(p))
	}

	idx, err := SettingInt(nodes, KeyCurrentPlayer, 0)
	if err != nil {
		return nil, err
	}
	sess.CurrentPlayerIndex = idx

	limit, err := SettingInt(nodes, KeyTime, 0)
	if err != nil {
		return nil, err
	}
	sess.TimeLimitMinutes = limit

	start := SettingValue(nodes, KeyStartTime)
	if start == "" {
		start = SettingValue(nodes, legacyStartTimeKey)
	}
	if start != "" {
		t, err := time.Parse(time.RFC3339, start)
		if err != nil {
			return nil, fmt.Errorf("schema: start time is not RFC3339: %q", start)
		}
		sess.StartTime = t
	}

	if params := SettingNode(nodes, KeyParameters); params != nil {
		sess.ParameterValues = make(map[string]string, len(params.Children))
		for _, c := range params.Children {
			name, value := splitParameter(c)
			if name != "" {
				sess.ParameterValues[name] = value
			}
		}
	}

	return sess, nil
}

// DecodeDefinition decodes a definition document. The source template is
// optional; when present, every {token} it names must be derivable from the
// parameters setting or the definition is malformed.
func DecodeDefinition(tree *store.Tree) (*models.Definition, error) {
	def := &models.Definition{
		Title:          tree.Title,
		SourceTemplate: SettingValue(tree.Children, KeySource),
	}
	for _, p := range SettingValues(tree.Children, KeyParameters) {
		def.ParameterNames = append(def.ParameterNames, ExtractTag(p))
	}

	for _, token := range TemplateTokens(def.SourceTemplate) {
		if !containsFold(def.ParameterNames, token) {
			return nil, fmt.Errorf("%w: %q has no parameter for template token {%s}",
				ErrMalformedDefinition, def.Title, token)
		}
	}
	return def, nil
}

// LoadSession reads and decodes a session document, returning both the
// typed view and the raw tree (callers need node ids for idempotent writes).
// When the document does not carry a time limit, the launch context
// referenced by "Launched From" is consulted read-only; it is never mutated
// through that reference.
func LoadSession(ctx context.Context, st store.Store, title string) (*models.Session, *store.Tree, error) {
	tree, err := st.ReadTree(ctx, title)
	if err != nil {
		return nil, nil, err
	}
	sess, err := DecodeSession(tree)
	if err != nil {
		return nil, nil, err
	}

	if sess.TimeLimitMinutes == 0 && sess.LaunchRef != "" {
		launch, err := st.ReadTree(ctx, sess.LaunchRef)
		if err == nil {
			limit, lerr := SettingInt(launch.Children, KeyTime, 0)
			if lerr == nil && limit > 0 {
				sess.TimeLimitMinutes = limit
			}
		}
	}
	if sess.TimeLimitMinutes == 0 {
		sess.TimeLimitMinutes = defaultTimeLimitMinutes
	}
	return sess, tree, nil
}

// Setting builds a "Key" node with one child per value.
func Setting(key string, values ...string) store.Node {
	n := store.Node{Text: key}
	for _, v := range values {
		n.Children = append(n.Children, store.Node{Text: v})
	}
	return n
}

// InlineSetting builds a "Key:: value" node.
func InlineSetting(key, value string) store.Node {
	return store.Node{Text: key + ":: " + value}
}

func splitParameter(n store.Node) (string, string) {
	if idx := strings.Index(n.Text, "::"); idx >= 0 {
		return strings.TrimSpace(n.Text[:idx]), strings.TrimSpace(n.Text[idx+2:])
	}
	if len(n.Children) > 0 {
		return strings.TrimSpace(n.Text), strings.TrimSpace(n.Children[0].Text)
	}
	return strings.TrimSpace(n.Text), ""
}

func containsFold(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}
