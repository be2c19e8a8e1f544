package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"InventoryLens/go-backend/internal/apperrors"
	"InventoryLens/go-backend/internal/config"
	"InventoryLens/go-backend/internal/models"

	"github.com/sirupsen/logrus"
)

const (
	DefaultThreshold = 0.3
	requestTimeout   = 30 * time.Second

	// maxProviderBody bounds how much of a provider response is read.
	maxProviderBody = 16 << 20
)

const (
	msgAuthFailed   = "HuggingFace API authentication failed. Check your API token."
	msgModelLoading = "Model is loading. Please try again in a few moments."
	msgRateLimited  = "Rate limit exceeded. Please wait and try again."
	msgMalformed    = "Invalid JSON response from API"
	msgUnexpected   = "Unexpected response format from detection API"
	msgTooLarge     = "Response from detection API is too large"
)

// EncodedPayload is the wire body sent to the provider.
type EncodedPayload struct {
	Image     string
	Threshold float64
}

type inferenceRequest struct {
	Inputs     string              `json:"inputs"`
	Parameters inferenceParameters `json:"parameters"`
}

type inferenceParameters struct {
	Threshold float64 `json:"threshold"`
}

// InferenceClient calls the remote object detection model.
type InferenceClient struct {
	httpClient *http.Client
	url        string
	token      string
	timeout    time.Duration
	maxBody    int64
	log        logrus.FieldLogger
}

func NewInferenceClient(cfg *config.Config, log logrus.FieldLogger) *InferenceClient {
	if !cfg.TokenConfigured() {
		log.Warn("No valid HuggingFace API token found - using public inference (may be rate limited)")
	}

	return &InferenceClient{
		httpClient: &http.Client{},
		url:        cfg.DetectionURL,
		token:      cfg.HFToken,
		timeout:    requestTimeout,
		maxBody:    maxProviderBody,
		log:        log.WithField("component", "inference_client"),
	}
}

// Detect sends one detection request. Failures are *apperrors.Error values
// classified by the first matching rule: transport, status code, then body.
func (c *InferenceClient) Detect(ctx context.Context, payload EncodedPayload) ([]models.RawDetection, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(inferenceRequest{
		Inputs:     payload.Image,
		Parameters: inferenceParameters{Threshold: payload.Threshold},
	})
	if err != nil {
		return nil, fmt.Errorf("could not encode inference request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("could not build inference request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Unreachable, fmt.Sprintf("API request failed: %v", err), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Unreachable, fmt.Sprintf("API request failed: %v", err), err)
	}
	if int64(len(data)) > c.maxBody {
		return nil, apperrors.New(apperrors.ProviderFault, msgTooLarge)
	}

	c.log.WithFields(logrus.Fields{
		"status":   resp.StatusCode,
		"bytes":    len(data),
		"duration": time.Since(start),
	}).Debug("Provider responded")

	return classifyResponse(resp.StatusCode, data)
}

func classifyResponse(status int, data []byte) ([]models.RawDetection, error) {
	switch status {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return nil, apperrors.New(apperrors.AuthFailed, msgAuthFailed)
	case http.StatusServiceUnavailable:
		return nil, apperrors.New(apperrors.ModelLoading, msgModelLoading)
	case http.StatusTooManyRequests:
		return nil, apperrors.New(apperrors.RateLimited, msgRateLimited)
	default:
		return nil, apperrors.New(apperrors.ProviderFault, statusErrorMessage(status, data))
	}

	body := decodeProviderBody(data)
	switch body.kind {
	case bodyUnparseable:
		return nil, apperrors.New(apperrors.MalformedResponse, msgMalformed)
	case bodyErrorObject:
		if strings.Contains(strings.ToLower(body.errorText), "loading") {
			return nil, apperrors.New(apperrors.ModelLoading, msgModelLoading)
		}
		return nil, apperrors.New(apperrors.ProviderFault, "API Error: "+body.errorText)
	case bodyOtherShape:
		return nil, apperrors.New(apperrors.UnexpectedShape, msgUnexpected)
	}
	return body.detections, nil
}

func statusErrorMessage(status int, data []byte) string {
	body := decodeProviderBody(data)
	switch {
	case body.kind == bodyErrorObject:
		return body.errorText
	case body.kind == bodyOtherShape && bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")):
		return fmt.Sprintf("Unknown error (Status %d)", status)
	default:
		return fmt.Sprintf("API error (Status %d): %s", status, string(data))
	}
}

type bodyKind int

const (
	bodyUnparseable bodyKind = iota
	bodyDetectionList
	bodyErrorObject
	bodyOtherShape
)

// providerBody is the decoded provider response, tagged by shape.
type providerBody struct {
	kind       bodyKind
	detections []models.RawDetection
	errorText  string
}

func decodeProviderBody(data []byte) providerBody {
	trimmed := bytes.TrimSpace(data)
	if !json.Valid(trimmed) {
		return providerBody{kind: bodyUnparseable}
	}

	switch trimmed[0] {
	case '[':
		var detections []models.RawDetection
		if err := json.Unmarshal(trimmed, &detections); err != nil {
			return providerBody{kind: bodyUnparseable}
		}
		return providerBody{kind: bodyDetectionList, detections: detections}
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return providerBody{kind: bodyUnparseable}
		}
		raw, ok := fields["error"]
		if !ok {
			return providerBody{kind: bodyOtherShape}
		}
		return providerBody{kind: bodyErrorObject, errorText: errorText(raw)}
	default:
		return providerBody{kind: bodyOtherShape}
	}
}

// errorText returns a string error value as is and anything else as raw JSON.
func errorText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
