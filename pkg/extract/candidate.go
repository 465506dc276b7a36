// Package extract flattens raw detail payloads from the upstream APIs into
// output-ready records. Each extractor knows one API's envelope and field
// layout; missing optional fields become empty values, never errors.
package extract

import (
	"strings"

	"github.com/scraper-bots/jobnet-az/pkg/fieldparse"
	"github.com/scraper-bots/jobnet-az/pkg/scrape"
)

// CandidateExtractor flattens candidate profile payloads. The payload wraps
// the profile in a "data" envelope holding the user, taxonomy references,
// and several nested list sections (experience, education, skills and so
// on) that are flattened into joined-text columns.
type CandidateExtractor struct{}

// Extract implements scrape.Extractor.
func (CandidateExtractor) Extract(payload map[string]any) (scrape.Record, error) {
	data, ok := payload["data"].(map[string]any)
	if !ok {
		return nil, &scrape.ExtractionError{Field: "data", Reason: "envelope missing"}
	}

	rec := scrape.Record{
		"id":         asString(data["id"]),
		"slug":       asString(data["slug"]),
		"position":   asString(data["position"]),
		"about":      asString(data["about"]),
		"birth_date": asString(data["birth_date"]),
		"gender":     asString(data["gender"]),
		"salary_min": numOrNil(data["salary_min"]),
		"salary_max": numOrNil(data["salary_max"]),
		"is_premium": boolVal(data["is_premium"]),
		"created_at": normalizedDate(data["created_at"]),
		"updated_at": normalizedDate(data["updated_at"]),
	}

	if user, ok := data["user"].(map[string]any); ok {
		rec["name"] = asString(user["name"])
		rec["surname"] = asString(user["surname"])
		rec["email"] = asString(user["email"])
		rec["phone"] = fieldparse.FormatPhone(asString(user["phone"]))
	}
	if city, ok := data["city"].(map[string]any); ok {
		rec["city"] = asString(city["name"])
	}
	if category, ok := data["category"].(map[string]any); ok {
		rec["category"] = asString(category["name"])
		if parent, ok := category["parent"].(map[string]any); ok {
			rec["parent_category"] = asString(parent["name"])
		}
	}

	rec["experiences"] = joinSection(data["experiences"], func(entry map[string]any) string {
		parts := nonEmpty(
			asString(entry["position"]),
			asString(entry["company"]),
			spanText(entry["start_date"], entry["end_date"], boolVal(entry["is_current"])),
		)
		return strings.Join(parts, " | ")
	})
	rec["education"] = joinSection(data["education"], func(entry map[string]any) string {
		parts := nonEmpty(
			asString(entry["institution"]),
			asString(entry["faculty"]),
			asString(entry["degree"]),
		)
		return strings.Join(parts, " | ")
	})
	rec["skills"] = joinNames(data["skills"])
	rec["languages"] = joinSection(data["languages"], func(entry map[string]any) string {
		parts := nonEmpty(asString(entry["name"]), asString(entry["level"]))
		return strings.Join(parts, " - ")
	})
	rec["certificates"] = joinNames(data["certificates"])
	rec["driver_licenses"] = joinNames(data["driver_licenses"])
	rec["working_types"] = joinNames(data["working_types"])

	return rec, nil
}

// joinSection renders each map entry of a list with render and joins the
// results with "; ".
func joinSection(v any, render func(map[string]any) string) string {
	list, ok := v.([]any)
	if !ok {
		return ""
	}
	parts := make([]string, 0, len(list))
	for _, raw := range list {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if text := render(entry); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "; ")
}

// joinNames joins the "name" field of each list entry with ", ".
func joinNames(v any) string {
	list, ok := v.([]any)
	if !ok {
		return ""
	}
	names := make([]string, 0, len(list))
	for _, raw := range list {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if name := asString(entry["name"]); name != "" {
			names = append(names, name)
		}
	}
	return strings.Join(names, ", ")
}

func spanText(start, end any, current bool) string {
	from := asString(start)
	to := asString(end)
	if current {
		to = "present"
	}
	if from == "" && to == "" {
		return ""
	}
	return from + " .. " + to
}

func nonEmpty(parts ...string) []string {
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
