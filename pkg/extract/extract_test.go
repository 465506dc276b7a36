package extract

import (
	"testing"
)

func candidatePayload() map[string]any {
	return map[string]any{
		"data": map[string]any{
			"id":         float64(318),
			"slug":       "leyla-aliyeva-318",
			"position":   "Layihə meneceri",
			"about":      "5 il təcrübə",
			"birth_date": "1994-03-02",
			"gender":     "female",
			"salary_min": float64(1200),
			"is_premium": true,
			"created_at": "2024-05-11T09:30:00+04:00",
			"user": map[string]any{
				"name":    "Leyla",
				"surname": "Əliyeva",
				"email":   "leyla@example.az",
				"phone":   "+994 (50) 123-45-67 ***",
			},
			"city": map[string]any{"name": "Bakı"},
			"category": map[string]any{
				"name":   "Layihə idarəetməsi",
				"parent": map[string]any{"name": "İdarəetmə"},
			},
			"experiences": []any{
				map[string]any{
					"position":   "PM",
					"company":    "Azercell",
					"start_date": "2019-01",
					"is_current": true,
				},
				map[string]any{
					"position":   "Koordinator",
					"company":    "Kapital Bank",
					"start_date": "2016-06",
					"end_date":   "2018-12",
				},
			},
			"education": []any{
				map[string]any{
					"institution": "BDU",
					"faculty":     "İqtisadiyyat",
					"degree":      "bakalavr",
				},
			},
			"skills":          []any{map[string]any{"name": "Jira"}, map[string]any{"name": "Scrum"}},
			"languages":       []any{map[string]any{"name": "İngilis dili", "level": "C1"}},
			"certificates":    []any{map[string]any{"name": "PMP"}},
			"driver_licenses": []any{map[string]any{"name": "B"}},
			"working_types":   []any{map[string]any{"name": "Tam ştat"}},
		},
	}
}

func TestCandidateExtract(t *testing.T) {
	rec, err := CandidateExtractor{}.Extract(candidatePayload())
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	tests := []struct {
		field string
		want  any
	}{
		{"id", "318"},
		{"slug", "leyla-aliyeva-318"},
		{"name", "Leyla"},
		{"surname", "Əliyeva"},
		{"phone", "+994 (50) 123-45-67"},
		{"city", "Bakı"},
		{"category", "Layihə idarəetməsi"},
		{"parent_category", "İdarəetmə"},
		{"skills", "Jira, Scrum"},
		{"languages", "İngilis dili - C1"},
		{"certificates", "PMP"},
		{"working_types", "Tam ştat"},
		{"is_premium", true},
		// Recognized Baku-offset timestamps normalize to UTC.
		{"created_at", "2024-05-11T05:30:00Z"},
	}
	for _, tt := range tests {
		if got := rec[tt.field]; got != tt.want {
			t.Errorf("%s = %v, want %v", tt.field, got, tt.want)
		}
	}

	if got := rec["experiences"]; got != "PM | Azercell | 2019-01 .. present; Koordinator | Kapital Bank | 2016-06 .. 2018-12" {
		t.Errorf("experiences = %q", got)
	}
	if got := rec["education"]; got != "BDU | İqtisadiyyat | bakalavr" {
		t.Errorf("education = %q", got)
	}
}

func TestCandidateExtract_MissingEnvelope(t *testing.T) {
	_, err := CandidateExtractor{}.Extract(map[string]any{"id": float64(1)})
	if err == nil {
		t.Fatal("expected error for missing data envelope")
	}
}

func TestCandidateExtract_SparseProfile(t *testing.T) {
	rec, err := CandidateExtractor{}.Extract(map[string]any{
		"data": map[string]any{
			"id":   float64(9),
			"slug": "sparse-9",
		},
	})
	if err != nil {
		t.Fatalf("sparse profile must extract: %v", err)
	}
	if rec["id"] != "9" || rec["skills"] != "" || rec["experiences"] != "" {
		t.Errorf("sparse record = %v", rec)
	}
	if rec["salary_min"] != nil {
		t.Errorf("missing salary_min should stay nil, got %v", rec["salary_min"])
	}
}

func TestVacancyExtract(t *testing.T) {
	payload := map[string]any{
		"id":         float64(5512),
		"slug":       "backend-developer-5512",
		"title":      "Backend Developer",
		"text":       "Go və PostgreSQL təcrübəsi",
		"salary":     "1500 - 2500 AZN",
		"view_count": "1.2K",
		"phone":      "  +994 12 555-00-11 ext.  ",
		"email":      "hr@example.az",
		"is_premium": false,
		"created_at": "2024-06-01T12:00:00+04:00",
		"company":    map[string]any{"title": "PASHA Bank", "slug": "pasha-bank"},
		"category":   map[string]any{"title": "İnformasiya texnologiyaları"},
		"city":       map[string]any{"name": "Bakı"},
		"coordinates": map[string]any{
			"lat": 40.4093,
			"lng": 49.8671,
		},
	}

	rec, err := VacancyExtractor{}.Extract(payload)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if rec["id"] != "5512" || rec["title"] != "Backend Developer" {
		t.Errorf("basic fields = %v, %v", rec["id"], rec["title"])
	}
	if rec["salary"] != float64(1500) || rec["salary_text"] != "1500 - 2500 AZN" {
		t.Errorf("salary = %v (%v)", rec["salary"], rec["salary_text"])
	}
	if rec["view_count"] != 1200 {
		t.Errorf("view_count = %v, want 1200", rec["view_count"])
	}
	if rec["phone"] != "+994 12 555-00-11" {
		t.Errorf("phone = %q", rec["phone"])
	}
	if rec["company"] != "PASHA Bank" || rec["city"] != "Bakı" {
		t.Errorf("company/city = %v / %v", rec["company"], rec["city"])
	}
	if rec["latitude"] != 40.4093 || rec["longitude"] != 49.8671 {
		t.Errorf("coordinates = %v, %v", rec["latitude"], rec["longitude"])
	}
	if rec["created_at"] != "2024-06-01T08:00:00Z" {
		t.Errorf("created_at = %v", rec["created_at"])
	}
}

func TestVacancyExtract_DataEnvelope(t *testing.T) {
	rec, err := VacancyExtractor{}.Extract(map[string]any{
		"data": map[string]any{"id": float64(3), "title": "Mühasib"},
	})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if rec["id"] != "3" || rec["title"] != "Mühasib" {
		t.Errorf("record = %v", rec)
	}
}

func TestVacancyExtract_NoSalaryOrCoordinates(t *testing.T) {
	rec, err := VacancyExtractor{}.Extract(map[string]any{
		"id":     float64(8),
		"title":  "Satış təmsilçisi",
		"salary": "razılaşma yolu ilə",
		"coordinates": map[string]any{
			"lat": float64(0),
			"lng": float64(0),
		},
	})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if rec["salary"] != nil || rec["salary_text"] != "razılaşma yolu ilə" {
		t.Errorf("salary = %v (%v)", rec["salary"], rec["salary_text"])
	}
	if _, ok := rec["latitude"]; ok {
		t.Error("zero coordinates must not produce latitude")
	}
}

func TestVacancyExtract_EmptyPayload(t *testing.T) {
	if _, err := (VacancyExtractor{}).Extract(map[string]any{}); err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestNormalizedDatePassthrough(t *testing.T) {
	// Unrecognized formats pass through untouched rather than guessing.
	if got := normalizedDate("2024-05-11 09:30:00"); got != "2024-05-11 09:30:00" {
		t.Errorf("passthrough = %q", got)
	}
	if got := normalizedDate(nil); got != "" {
		t.Errorf("nil date = %q", got)
	}
}
