package services

import (
	"encoding/json"
	"reflect"
	"testing"

	"InventoryLens/go-backend/internal/models"
)

func rawList(t *testing.T, body string) []models.RawDetection {
	t.Helper()
	var raw []models.RawDetection
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		t.Fatalf("Invalid test body: %v", err)
	}
	return raw
}

func TestSummarizeCountsAndFilters(t *testing.T) {
	raw := rawList(t, `[
		{"label":"cat","score":0.9,"box":{}},
		{"label":"cat","score":0.2,"box":{}},
		{"label":"dog","score":0.5,"box":{}}
	]`)

	summary := Summarize(raw, DefaultThreshold)

	if summary.TotalObjects != 2 {
		t.Errorf("Expected 2 objects, got %d", summary.TotalObjects)
	}
	if !reflect.DeepEqual(summary.ObjectCounts, map[string]int{"cat": 1, "dog": 1}) {
		t.Errorf("Unexpected counts: %v", summary.ObjectCounts)
	}
	if summary.Summary != "Found 2 objects with 2 different types" {
		t.Errorf("Unexpected summary: %q", summary.Summary)
	}
	if summary.Detections[0].Label != "cat" || summary.Detections[1].Label != "dog" {
		t.Errorf("Provider order not preserved: %+v", summary.Detections)
	}
}

func TestSummarizeThresholdIsExclusive(t *testing.T) {
	raw := rawList(t, `[{"label":"cup","score":0.3},{"label":"cup","score":0.3001}]`)

	summary := Summarize(raw, 0.3)

	if summary.TotalObjects != 1 {
		t.Fatalf("Expected 1 object, got %d", summary.TotalObjects)
	}
	if summary.Detections[0].Confidence != 0.3 {
		t.Errorf("Expected confidence rounded to 0.3, got %v", summary.Detections[0].Confidence)
	}
}

func TestSummarizeSkipsNonConformingElements(t *testing.T) {
	raw := rawList(t, `[
		"person",
		42,
		null,
		["nested"],
		{"label":"bottle","score":"high"},
		{"label":"bottle"},
		{"label":"bottle","score":0.8}
	]`)

	summary := Summarize(raw, DefaultThreshold)

	if summary.TotalObjects != 1 {
		t.Fatalf("Expected 1 object, got %d: %+v", summary.TotalObjects, summary.Detections)
	}
	if summary.Summary != "Found 1 objects with 1 different types" {
		t.Errorf("Unexpected summary: %q", summary.Summary)
	}
}

func TestSummarizeDefaults(t *testing.T) {
	raw := rawList(t, `[
		{"score":0.98765},
		{"label":null,"score":0.5,"box":{"xmin":1,"ymin":2,"xmax":3,"ymax":4}}
	]`)

	summary := Summarize(raw, DefaultThreshold)

	if summary.TotalObjects != 2 {
		t.Fatalf("Expected 2 objects, got %d", summary.TotalObjects)
	}
	first := summary.Detections[0]
	if first.Label != "unknown" {
		t.Errorf("Expected unknown label, got %q", first.Label)
	}
	if first.Confidence != 0.988 {
		t.Errorf("Expected 0.988, got %v", first.Confidence)
	}
	if string(first.Box) != "{}" {
		t.Errorf("Expected empty box, got %s", first.Box)
	}

	second := summary.Detections[1]
	if string(second.Box) != `{"xmin":1,"ymin":2,"xmax":3,"ymax":4}` {
		t.Errorf("Box not passed through: %s", second.Box)
	}
	if summary.ObjectCounts["unknown"] != 2 {
		t.Errorf("Expected 2 unknown, got %v", summary.ObjectCounts)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	summary := Summarize(nil, DefaultThreshold)

	data, err := json.Marshal(summary)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	want := `{"total_objects":0,"detections":[],"object_counts":{},"summary":"Found 0 objects with 0 different types"}`
	if string(data) != want {
		t.Errorf("Got %s, expected %s", data, want)
	}
}

func TestSummarizeIsPure(t *testing.T) {
	raw := rawList(t, `[
		{"label":"chair","score":0.71234,"box":{"xmin":10}},
		{"label":"table","score":0.31},
		{"label":"chair","score":0.99}
	]`)

	first, err := json.Marshal(Summarize(raw, DefaultThreshold))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	second, err := json.Marshal(Summarize(raw, DefaultThreshold))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	if string(first) != string(second) {
		t.Errorf("Summaries differ:\n%s\n%s", first, second)
	}
}

func TestRoundScore(t *testing.T) {
	tests := []struct {
		input    float64
		expected float64
	}{
		{0.9, 0.9},
		{0.12345, 0.123},
		{0.9996, 1},
		{0.5555, 0.555},
		{0.30049, 0.3},
	}

	for _, tt := range tests {
		if got := roundScore(tt.input); got != tt.expected {
			t.Errorf("roundScore(%v) = %v, expected %v", tt.input, got, tt.expected)
		}
	}
}
