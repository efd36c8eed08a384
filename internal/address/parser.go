// Package address parses free-text mailing addresses into their components.
package address

import (
	"regexp"
	"strings"
)

// Parsed holds the components of a mailing address. Every field is
// independently nullable; parsing never fails.
type Parsed struct {
	StreetAddress *string `json:"street_address"`
	Unit          *string `json:"unit"`
	City          *string `json:"city"`
	State         *string `json:"state"`
	Zip           *string `json:"zip"`
}

var (
	newlineRe  = regexp.MustCompile(`[\r\n]+`)
	stateZipRe = regexp.MustCompile(`[,\s]+([A-Za-z]{2})\s+(\d{5}(?:-\d{4})?)\s*$`)

	// Secondary designator inside the normalized address, e.g. "Apt 4B",
	// "Suite 210", "Unit #5".
	secondaryRe = regexp.MustCompile(`(?i)\b(?:unit|apt|apartment|suite|ste|#)\s*[#.]?\s*([A-Za-z0-9]+)`)

	// Fallback unit patterns, tried against the original (non-normalized)
	// address in this fixed order: inline keyword anywhere, keyword anchored
	// to a line start, then a bare trailing number on its own line.
	unitPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:unit|apt|apartment|suite|ste|#)\s*[#.]?\s*(\w+)`),
		regexp.MustCompile(`(?i)\n\s*(?:unit|apt|apartment|suite|ste|#)\s*[#.]?\s*(\w+)`),
		regexp.MustCompile(`(?i)\n\s*(\d+[a-z]?)\s*$`),
	}
)

// Parse splits a free-text mailing address (possibly spanning several lines)
// into street, unit, city, state and zip. Line breaks are normalized to
// spaces before structural parsing; the fallback unit patterns run against
// the original text because line-anchored cues are more reliable than a bare
// mid-string number.
func Parse(raw string) Parsed {
	normalized := strings.TrimSpace(newlineRe.ReplaceAllString(raw, " "))

	var out Parsed
	head := normalized

	if m := stateZipRe.FindStringSubmatchIndex(normalized); m != nil {
		state := strings.ToUpper(normalized[m[2]:m[3]])
		zip := normalized[m[4]:m[5]]
		out.State = &state
		out.Zip = &zip
		head = strings.TrimRight(normalized[:m[0]], ", ")
	}

	if m := secondaryRe.FindStringSubmatchIndex(head); m != nil {
		unit := head[m[2]:m[3]]
		out.Unit = &unit

		street := strings.TrimRight(head[:m[0]], ", ")
		if street != "" {
			out.StreetAddress = &street
		}
		if city := strings.Trim(head[m[1]:], ", "); city != "" {
			out.City = &city
		}
	} else {
		// No secondary designator: the last comma separates street and city.
		street := head
		if idx := strings.LastIndex(head, ","); idx >= 0 {
			street = strings.TrimSpace(head[:idx])
			if city := strings.TrimSpace(head[idx+1:]); city != "" {
				out.City = &city
			}
		}
		if street != "" {
			out.StreetAddress = &street
		}
	}

	// Fallback: scan the original address line by line for a unit token.
	if out.Unit == nil {
		for _, p := range unitPatterns {
			if m := p.FindStringSubmatch(raw); len(m) > 1 && m[1] != "" {
				unit := strings.TrimSpace(m[1])
				out.Unit = &unit
				break
			}
		}
	}

	return out
}
