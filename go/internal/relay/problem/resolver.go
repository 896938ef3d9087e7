// Package problem resolves a session's problem text from a definition's
// source template: parameter substitution, one external GET, and a JSON
// field extraction.
package problem

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Placeholders returned instead of failing, so a session is always creatable
// even without a live problem source.
const (
	PlaceholderNoSource  = "no source configured"
	PlaceholderNoProblem = "no problem found"
)

var tokenRegex = regexp.MustCompile(`\{([^{}]+)\}`)

// problemResponse is the source contract: a JSON body with a "problem"
// string field. "project" is a legacy field name still accepted from older
// sources.
type problemResponse struct {
	Problem string `json:"problem"`
	Project string `json:"project"`
}

// Resolver fetches problem text over HTTP.
type Resolver struct {
	client *http.Client
}

// NewResolver creates a resolver with a bounded request timeout.
func NewResolver() *Resolver {
	return &Resolver{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Resolve substitutes parameter values into the source template, issues a
// single GET and extracts the problem text. Network and status failures are
// returned as-is; there is no retry.
func (r *Resolver) Resolve(ctx context.Context, sourceTemplate string, parameterNames []string, parameterValues map[string]string) (string, error) {
	if strings.TrimSpace(sourceTemplate) == "" {
		return PlaceholderNoSource, nil
	}

	url := Substitute(sourceTemplate, parameterNames, parameterValues)
	log.Debug().Str("url", url).Msg("resolving problem source")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch problem source: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("problem source returned status code: %d, response: %s", resp.StatusCode, string(body))
	}

	var parsed problemResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse problem source response: %w", err)
	}

	switch {
	case parsed.Problem != "":
		return parsed.Problem, nil
	case parsed.Project != "":
		return parsed.Project, nil
	default:
		return PlaceholderNoProblem, nil
	}
}

// Substitute replaces every {name} token in template with the corresponding
// parameter value. Token names match parameter names case-insensitively;
// unknown tokens are left in place.
func Substitute(template string, parameterNames []string, parameterValues map[string]string) string {
	return tokenRegex.ReplaceAllStringFunc(template, func(token string) string {
		name := strings.ToLower(token[1 : len(token)-1])
		for _, p := range parameterNames {
			if strings.ToLower(p) != name {
				continue
			}
			for k, v := range parameterValues {
				if strings.EqualFold(k, p) {
					return v
				}
			}
		}
		return token
	})
}
