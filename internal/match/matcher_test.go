package match

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/21andrewchang/hermes/internal/domain/entity"
)

type fakeCompleter struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string, _ int) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.response, f.err
}

func strPtr(s string) *string { return &s }

func fields(building, unit, description string) entity.ExtractedFields {
	f := entity.ExtractedFields{}
	if building != "" {
		f.Building = &building
	}
	if unit != "" {
		f.Unit = &unit
	}
	if description != "" {
		f.Description = &description
	}
	return f
}

func issue(id, building, unit, description string) entity.Issue {
	return entity.Issue{
		ID:          id,
		Building:    strPtr(building),
		Unit:        strPtr(unit),
		Description: strPtr(description),
		Status:      entity.IssueStatusPending,
	}
}

func TestMatcher_SkipsWithoutBuildingOrUnit(t *testing.T) {
	completer := &fakeCompleter{}
	matcher := NewMatcher(completer, zap.NewNop())
	issues := []entity.Issue{issue("i1", "123 Main St", "4B", "Leaky faucet")}

	tests := []struct {
		name string
		f    entity.ExtractedFields
	}{
		{"no building", fields("", "4B", "leak")},
		{"no unit", fields("123 Main St", "", "leak")},
		{"neither", fields("", "", "leak")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := matcher.Match(context.Background(), tt.f, issues)
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
	assert.Empty(t, completer.prompts, "no ranking call expected")
}

func TestMatcher_SingleExactMatch(t *testing.T) {
	completer := &fakeCompleter{}
	matcher := NewMatcher(completer, zap.NewNop())
	issues := []entity.Issue{
		issue("i1", "123 Main St", "4B", "Leaky faucet"),
		issue("i2", "456 Oak Ave", "4B", "Broken window"),
	}

	got, err := matcher.Match(context.Background(), fields("123 main st", "4b", ""), issues)

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "i1", *got)
	assert.Empty(t, completer.prompts, "single candidate needs no ranking call")
}

func TestMatcher_NoCandidates(t *testing.T) {
	matcher := NewMatcher(&fakeCompleter{}, zap.NewNop())
	issues := []entity.Issue{issue("i1", "123 Main St", "4B", "Leaky faucet")}

	got, err := matcher.Match(context.Background(), fields("999 Nowhere Rd", "1", "leak"), issues)

	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMatcher_RankingSelectsCandidate(t *testing.T) {
	completer := &fakeCompleter{response: "2"}
	matcher := NewMatcher(completer, zap.NewNop())
	issues := []entity.Issue{
		issue("i1", "123 Main St", "4B", "Broken garbage disposal"),
		issue("i2", "123 Main St", "4B", "Kitchen faucet dripping"),
	}

	got, err := matcher.Match(context.Background(),
		fields("123 Main St", "4B", "Faucet replacement in kitchen"), issues)

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "i2", *got)

	require.Len(t, completer.prompts, 1)
	assert.Contains(t, completer.prompts[0], "1. Broken garbage disposal")
	assert.Contains(t, completer.prompts[0], "2. Kitchen faucet dripping")
}

func TestMatcher_RankingResponseEdgeCases(t *testing.T) {
	issues := []entity.Issue{
		issue("i1", "123 Main St", "4B", "Broken garbage disposal"),
		issue("i2", "123 Main St", "4B", "Kitchen faucet dripping"),
	}

	tests := []struct {
		name     string
		response string
	}{
		{"none", "none"},
		{"out of range high", "5"},
		{"out of range zero", "0"},
		{"not a number", "the second one"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matcher := NewMatcher(&fakeCompleter{response: tt.response}, zap.NewNop())
			got, err := matcher.Match(context.Background(),
				fields("123 Main St", "4B", "faucet"), issues)

			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestMatcher_MultipleCandidatesWithoutDescription(t *testing.T) {
	completer := &fakeCompleter{response: "1"}
	matcher := NewMatcher(completer, zap.NewNop())
	issues := []entity.Issue{
		issue("i1", "123 Main St", "4B", "Broken garbage disposal"),
		issue("i2", "123 Main St", "4B", "Kitchen faucet dripping"),
	}

	got, err := matcher.Match(context.Background(), fields("123 Main St", "4B", ""), issues)

	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Empty(t, completer.prompts, "no ranking without descriptive evidence")
}

func TestMatcher_CompletionErrorPropagates(t *testing.T) {
	matcher := NewMatcher(&fakeCompleter{err: errors.New("timeout")}, zap.NewNop())
	issues := []entity.Issue{
		issue("i1", "123 Main St", "4B", "a"),
		issue("i2", "123 Main St", "4B", "b"),
	}

	_, err := matcher.Match(context.Background(), fields("123 Main St", "4B", "leak"), issues)

	require.Error(t, err)
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, similarity("leak repair", "Leak Repair"), 0.001)
	assert.Less(t, similarity("leak repair", "window replacement"), 0.5)
}
