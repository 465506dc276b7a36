package extract

import (
	"fmt"
	"strconv"
	"time"

	"github.com/scraper-bots/jobnet-az/pkg/fieldparse"
	"github.com/scraper-bots/jobnet-az/pkg/scrape"
)

// VacancyExtractor flattens vacancy detail payloads: company and taxonomy
// references, loosely typed salary and view-count fields, phone decoration,
// coordinates, and Baku-offset timestamps.
type VacancyExtractor struct{}

// Extract implements scrape.Extractor.
func (VacancyExtractor) Extract(payload map[string]any) (scrape.Record, error) {
	if len(payload) == 0 {
		return nil, &scrape.ExtractionError{Reason: "empty payload"}
	}
	// Some responses wrap the vacancy in a data envelope, others do not.
	if data, ok := payload["data"].(map[string]any); ok {
		payload = data
	}

	rec := scrape.Record{
		"id":          asString(payload["id"]),
		"slug":        asString(payload["slug"]),
		"title":       asString(payload["title"]),
		"description": asString(payload["text"]),
		"view_count":  fieldparse.ParseViewCount(payload["view_count"]),
		"phone":       fieldparse.FormatPhone(asString(payload["phone"])),
		"email":       asString(payload["email"]),
		"is_premium":  boolVal(payload["is_premium"]),
		"created_at":  normalizedDate(payload["created_at"]),
		"deadline_at": normalizedDate(payload["deadline_at"]),
	}

	if amount, text, ok := fieldparse.ParseSalary(payload["salary"]); ok {
		rec["salary"] = amount
		rec["salary_text"] = text
	} else {
		rec["salary"] = nil
		rec["salary_text"] = text
	}

	if company, ok := payload["company"].(map[string]any); ok {
		rec["company"] = asString(company["title"])
		rec["company_slug"] = asString(company["slug"])
	}
	if category, ok := payload["category"].(map[string]any); ok {
		rec["category"] = asString(category["title"])
	}
	if city, ok := payload["city"].(map[string]any); ok {
		rec["city"] = asString(city["name"])
	}

	if lat, lng, ok := fieldparse.Coordinates(payload["coordinates"]); ok {
		rec["latitude"] = lat
		rec["longitude"] = lng
	}

	return rec, nil
}

// asString renders a scalar field as a string; nil becomes "".
func asString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// numOrNil keeps numeric fields numeric and everything else nil, so JSON
// output has numbers where the API had them and CSV output has blanks.
func numOrNil(v any) any {
	if f, ok := v.(float64); ok {
		return f
	}
	return nil
}

func boolVal(v any) bool {
	b, ok := v.(bool)
	return ok && b
}

// normalizedDate reformats a recognized timestamp as RFC 3339 UTC and
// passes anything unrecognized through untouched.
func normalizedDate(v any) string {
	s := asString(v)
	if t, ok := fieldparse.ParseDate(s); ok {
		return t.UTC().Format(time.RFC3339)
	}
	return s
}
