// Package extract turns document-understanding entities into the normalized
// invoice field set, with a language-model fallback for gaps the primary
// extraction leaves behind.
package extract

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/21andrewchang/hermes/internal/address"
	"github.com/21andrewchang/hermes/internal/docai"
	"github.com/21andrewchang/hermes/internal/domain/entity"
)

// fieldAliases maps every known entity type alias to its canonical field.
// Consulted once here; never duplicated per call site.
var fieldAliases = map[string]string{
	"building":      "building",
	"property":      "building",
	"property_name": "building",

	"unit":        "unit",
	"unit_number": "unit",

	"total_amount":  "amount",
	"amount":        "amount",
	"invoice_total": "amount",

	"receiver_address": "receiver_address",
}

// Result is the outcome of primary field extraction. ReceiverAddress is
// captured separately and never written into building/unit directly.
type Result struct {
	Fields          entity.ExtractedFields
	ReceiverAddress *string
}

// Fields maps a document's entity list into the normalized field set. The
// first entity matched per category wins. Line-item descriptions are joined
// with "; " in document order, dropping empty entries. Pure function: no
// I/O, no hidden state.
func Fields(entities []docai.Entity) Result {
	var out Result
	var descriptions []string

	for _, ent := range entities {
		if ent.Type == "line_item" {
			desc := lineItemDescription(ent)
			if desc != "" {
				descriptions = append(descriptions, desc)
			}
			continue
		}

		value := ent.MentionText
		switch fieldAliases[ent.Type] {
		case "building":
			if out.Fields.Building == nil && value != "" {
				v := value
				out.Fields.Building = &v
			}
		case "unit":
			if out.Fields.Unit == nil && value != "" {
				v := value
				out.Fields.Unit = &v
			}
		case "amount":
			if out.Fields.Amount == nil {
				if amount, ok := parseAmount(value); ok {
					out.Fields.Amount = &amount
				}
			}
		case "receiver_address":
			if out.ReceiverAddress == nil && value != "" {
				v := value
				out.ReceiverAddress = &v
			}
		}
	}

	if len(descriptions) > 0 {
		joined := strings.Join(descriptions, "; ")
		out.Fields.Description = &joined
	}

	return out
}

// ApplyAddress fills building and unit from a parsed receiver address, but
// only where the entity-derived value is still missing. Entity values always
// take priority over address-derived ones.
func ApplyAddress(fields *entity.ExtractedFields, parsed address.Parsed) {
	if fields.Building == nil && parsed.StreetAddress != nil {
		fields.Building = parsed.StreetAddress
	}
	if fields.Unit == nil && parsed.Unit != nil {
		fields.Unit = parsed.Unit
	}
}

// lineItemDescription pulls the description sub-property of a line item,
// preferring the fully qualified property type.
func lineItemDescription(item docai.Entity) string {
	for _, propType := range []string{"line_item/description", "description"} {
		for _, p := range item.Properties {
			if p.Type == propType {
				return p.MentionText
			}
		}
	}
	return ""
}

// parseAmount strips currency symbols and thousands separators and parses
// the remainder as a decimal. Non-numeric text is reported as absent, never
// as an error.
func parseAmount(s string) (decimal.Decimal, bool) {
	cleaned := strings.TrimSpace(strings.NewReplacer("$", "", ",", "").Replace(s))
	if cleaned == "" {
		return decimal.Decimal{}, false
	}
	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return amount, true
}
