package models

import "encoding/json"

// UploadedImage is the raw upload as received; it lives for one request.
type UploadedImage struct {
	Data        []byte
	ContentType string
	Filename    string
}

// RawDetection is one element of the provider's detection list, undecoded.
// Elements that are not JSON objects are skipped by the result normalizer.
type RawDetection = json.RawMessage

type FilteredDetection struct {
	Label      string          `json:"label"`
	Confidence float64         `json:"confidence"`
	Box        json.RawMessage `json:"box"`
}

type DetectionSummary struct {
	TotalObjects int                 `json:"total_objects"`
	Detections   []FilteredDetection `json:"detections"`
	ObjectCounts map[string]int      `json:"object_counts"`
	Summary      string              `json:"summary"`
}

type DetectResponse struct {
	Success bool `json:"success"`
	DetectionSummary
}

// ObjectDetectionResult is either a full summary with Success set, or a soft
// failure carrying Error.
type ObjectDetectionResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	*DetectionSummary
}

type ImageInfo struct {
	Size [2]int `json:"size"`
	Mode string `json:"mode"`
}

type AnalyzeResponse struct {
	Success         bool                  `json:"success"`
	ImageInfo       ImageInfo             `json:"image_info"`
	ObjectDetection ObjectDetectionResult `json:"object_detection"`
}

type ErrorResponse struct {
	Detail    string `json:"detail"`
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type HealthStatus struct {
	Status           string   `json:"status"`
	Services         []string `json:"services"`
	HuggingFaceToken string   `json:"huggingface_token"`
}

type ServiceDescriptor struct {
	Message     string            `json:"message"`
	Status      string            `json:"status"`
	Version     string            `json:"version"`
	Environment string            `json:"environment"`
	Endpoints   map[string]string `json:"endpoints"`
}

type PingResponse struct {
	Status      string `json:"status"`
	Environment string `json:"environment"`
}

type MetricsSnapshot struct {
	TotalRequests int64   `json:"total_requests"`
	TotalErrors   int64   `json:"total_errors"`
	TotalObjects  int64   `json:"total_objects"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	LastRequest   int64   `json:"last_request"`
	WSConnections int64   `json:"ws_connections"`
	WSMessages    int64   `json:"ws_messages"`
	WSErrors      int64   `json:"ws_errors"`
	UptimeSeconds int64   `json:"uptime_sec"`
	Timestamp     string  `json:"timestamp"`
}
