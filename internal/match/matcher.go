// Package match associates extracted invoice fields with an existing
// maintenance issue.
package match

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"
	"go.uber.org/zap"

	"github.com/21andrewchang/hermes/internal/domain/entity"
	"github.com/21andrewchang/hermes/internal/llm"
)

const rankMaxTokens = 10

// Matcher finds the best-matching issue for an invoice. Exact building+unit
// matching is the structural filter; description similarity via the model is
// reserved for breaking genuine ties.
type Matcher struct {
	completer llm.Completer
	logger    *zap.Logger
}

// NewMatcher creates a Matcher backed by the shared completion client.
func NewMatcher(completer llm.Completer, logger *zap.Logger) *Matcher {
	return &Matcher{
		completer: completer,
		logger:    logger,
	}
}

// Match returns the id of the matched issue, or nil when no confident match
// exists. An unparseable or out-of-range ranking response degrades to no
// match; only transport failures propagate as errors.
func (m *Matcher) Match(ctx context.Context, fields entity.ExtractedFields, issues []entity.Issue) (*string, error) {
	if fields.Building == nil || fields.Unit == nil {
		return nil, nil
	}

	var candidates []entity.Issue
	for _, issue := range issues {
		if issue.Building == nil || issue.Unit == nil {
			continue
		}
		if strings.EqualFold(*issue.Building, *fields.Building) &&
			strings.EqualFold(*issue.Unit, *fields.Unit) {
			candidates = append(candidates, issue)
		}
	}

	switch len(candidates) {
	case 0:
		return nil, nil
	case 1:
		return &candidates[0].ID, nil
	}

	// Multiple structural matches: without descriptive evidence we do not
	// guess among equally plausible issues.
	if fields.Description == nil {
		m.logger.Debug("Multiple candidates but no description, skipping match",
			zap.Int("candidates", len(candidates)))
		return nil, nil
	}

	m.logNearestCandidate(*fields.Description, candidates)

	return m.rank(ctx, *fields.Description, candidates)
}

// rank asks the model for the index of the best-matching candidate,
// presented in the order they were fetched.
func (m *Matcher) rank(ctx context.Context, description string, candidates []entity.Issue) (*string, error) {
	var list strings.Builder
	for i, c := range candidates {
		desc := ""
		if c.Description != nil {
			desc = *c.Description
		}
		fmt.Fprintf(&list, "%d. %s\n", i+1, desc)
	}

	prompt := fmt.Sprintf(`Given this invoice description: "%s"

Which of these issues is the best match? Respond with ONLY the issue ID number (1, 2, 3, etc.) or "none" if no good match.

%s`, description, strings.TrimRight(list.String(), "\n"))

	response, err := m.completer.Complete(ctx, prompt, rankMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("match ranking failed: %w", err)
	}

	index, err := strconv.Atoi(strings.TrimSpace(response))
	if err != nil || index < 1 || index > len(candidates) {
		m.logger.Debug("Ranking response yielded no match",
			zap.String("response", response),
			zap.Int("candidates", len(candidates)))
		return nil, nil
	}

	return &candidates[index-1].ID, nil
}

// logNearestCandidate records the deterministically closest candidate by
// edit distance. Diagnostics only; the decision always comes from the
// ranking call.
func (m *Matcher) logNearestCandidate(description string, candidates []entity.Issue) {
	best, bestScore := -1, -1.0
	for i, c := range candidates {
		if c.Description == nil {
			continue
		}
		if score := similarity(description, *c.Description); score > bestScore {
			best, bestScore = i, score
		}
	}
	if best >= 0 {
		m.logger.Debug("Nearest candidate by edit distance",
			zap.String("issue_id", candidates[best].ID),
			zap.Float64("similarity", bestScore))
	}
}

func similarity(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(strings.ToUpper(a), strings.ToUpper(b))
	return 1 - float64(dist)/float64(max(len(a), len(b)))
}
