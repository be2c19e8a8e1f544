package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"InventoryLens/go-backend/internal/models"
)

const unknownLabel = "unknown"

var emptyBox = json.RawMessage(`{}`)

type detectionRecord struct {
	Label json.RawMessage `json:"label"`
	Score json.RawMessage `json:"score"`
	Box   json.RawMessage `json:"box"`
}

// Summarize keeps detections scoring strictly above threshold and tallies
// them per label. Provider order is preserved.
func Summarize(raw []models.RawDetection, threshold float64) models.DetectionSummary {
	detections := make([]models.FilteredDetection, 0, len(raw))
	counts := make(map[string]int)

	for _, item := range raw {
		det, ok := filterDetection(item, threshold)
		if !ok {
			continue
		}
		counts[det.Label]++
		detections = append(detections, det)
	}

	return models.DetectionSummary{
		TotalObjects: len(detections),
		Detections:   detections,
		ObjectCounts: counts,
		Summary:      fmt.Sprintf("Found %d objects with %d different types", len(detections), len(counts)),
	}
}

func filterDetection(item models.RawDetection, threshold float64) (models.FilteredDetection, bool) {
	trimmed := bytes.TrimSpace(item)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return models.FilteredDetection{}, false
	}

	var rec detectionRecord
	if err := json.Unmarshal(trimmed, &rec); err != nil {
		return models.FilteredDetection{}, false
	}

	var score float64
	if rec.Score != nil {
		if err := json.Unmarshal(rec.Score, &score); err != nil {
			return models.FilteredDetection{}, false
		}
	}
	if score <= threshold {
		return models.FilteredDetection{}, false
	}

	label := unknownLabel
	if rec.Label != nil && !bytes.Equal(rec.Label, []byte("null")) {
		var s string
		if err := json.Unmarshal(rec.Label, &s); err == nil {
			label = s
		}
	}

	box := emptyBox
	if rec.Box != nil {
		box = append(json.RawMessage(nil), rec.Box...)
	}

	return models.FilteredDetection{
		Label:      label,
		Confidence: roundScore(score),
		Box:        box,
	}, true
}

// roundScore rounds to three decimals from the exact binary value.
func roundScore(score float64) float64 {
	rounded, err := strconv.ParseFloat(strconv.FormatFloat(score, 'f', 3, 64), 64)
	if err != nil {
		return score
	}
	return rounded
}
