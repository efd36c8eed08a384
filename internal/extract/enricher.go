package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/21andrewchang/hermes/internal/domain/entity"
	"github.com/21andrewchang/hermes/internal/llm"
)

const (
	// maxDocumentChars bounds how much raw document text is embedded in the
	// enrichment prompt, to respect model context limits.
	maxDocumentChars = 3000

	enrichMaxTokens = 300
)

// Enricher fills extraction gaps with a language-model pass. It runs only
// when at least one required field is still missing after primary
// extraction.
type Enricher struct {
	completer llm.Completer
	logger    *zap.Logger
}

// NewEnricher creates an Enricher backed by the shared completion client.
func NewEnricher(completer llm.Completer, logger *zap.Logger) *Enricher {
	return &Enricher{
		completer: completer,
		logger:    logger,
	}
}

// Enrich asks the model to propose values for missing fields and merges its
// response over the partial field set. Any key present in the response
// overwrites the existing value, even a blank one. A malformed response
// leaves the partial fields untouched and is not an error; only transport
// failures propagate.
func (e *Enricher) Enrich(ctx context.Context, fields entity.ExtractedFields, documentText string) (entity.ExtractedFields, error) {
	partial, err := json.Marshal(fieldsAsJSON(fields))
	if err != nil {
		return fields, fmt.Errorf("failed to marshal partial fields: %w", err)
	}

	text := documentText
	if len(text) > maxDocumentChars {
		cut := maxDocumentChars
		// Back off to a rune start so the truncation never splits a
		// multi-byte character.
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}

	prompt := fmt.Sprintf(`Extract missing invoice fields from this text. Current data: %s

Text:
%s

Return JSON with: building, unit, description, amount (fill in any null/missing fields)`, partial, text)

	response, err := e.completer.Complete(ctx, prompt, enrichMaxTokens)
	if err != nil {
		return fields, fmt.Errorf("enrichment completion failed: %w", err)
	}

	var proposed map[string]json.RawMessage
	if err := json.Unmarshal([]byte(response), &proposed); err != nil {
		e.logger.Warn("Failed to parse enrichment response, keeping partial fields",
			zap.Error(err))
		return fields, nil
	}

	merged := fields
	if raw, ok := proposed["building"]; ok {
		merged.Building = rawString(raw)
	}
	if raw, ok := proposed["unit"]; ok {
		merged.Unit = rawString(raw)
	}
	if raw, ok := proposed["description"]; ok {
		merged.Description = rawString(raw)
	}
	if raw, ok := proposed["amount"]; ok {
		merged.Amount = rawAmount(raw)
	}

	e.logger.Debug("Enrichment merged",
		zap.Bool("building", merged.Building != nil),
		zap.Bool("unit", merged.Unit != nil),
		zap.Bool("description", merged.Description != nil),
		zap.Bool("amount", merged.Amount != nil))

	return merged, nil
}

// fieldsAsJSON renders only the known fields, matching the shape the model
// is asked to complete.
func fieldsAsJSON(fields entity.ExtractedFields) map[string]any {
	out := make(map[string]any)
	if fields.Building != nil {
		out["building"] = *fields.Building
	}
	if fields.Unit != nil {
		out["unit"] = *fields.Unit
	}
	if fields.Description != nil {
		out["description"] = *fields.Description
	}
	if fields.Amount != nil {
		amount, _ := fields.Amount.Float64()
		out["amount"] = amount
	}
	return out
}

// rawString decodes a model-supplied value as a string. JSON null yields
// nil; non-string scalars fall back to their literal text.
func rawString(raw json.RawMessage) *string {
	if string(raw) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		s = strings.TrimSpace(string(raw))
	}
	return &s
}

// rawAmount decodes a model-supplied amount, accepting either a JSON number
// or a currency-formatted string. Unparseable values yield nil.
func rawAmount(raw json.RawMessage) *decimal.Decimal {
	if string(raw) == "null" {
		return nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		// Not a JSON string; try the literal token as a number.
		s = strings.TrimSpace(string(raw))
	}
	if amount, ok := parseAmount(s); ok {
		return &amount
	}
	return nil
}
