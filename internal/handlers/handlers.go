package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"InventoryLens/go-backend/internal/apperrors"
	"InventoryLens/go-backend/internal/config"
	"InventoryLens/go-backend/internal/models"
	"InventoryLens/go-backend/internal/services"

	"github.com/sirupsen/logrus"
)

const (
	Version = "1.0.0"

	uploadField     = "file"
	multipartMemory = 32 << 20
)

// statusByKind is the single place failure kinds become HTTP statuses.
var statusByKind = map[apperrors.Kind]int{
	apperrors.Validation:        http.StatusBadRequest,
	apperrors.AuthFailed:        http.StatusUnauthorized,
	apperrors.ModelLoading:      http.StatusServiceUnavailable,
	apperrors.RateLimited:       http.StatusTooManyRequests,
	apperrors.Unreachable:       http.StatusInternalServerError,
	apperrors.ProviderFault:     http.StatusInternalServerError,
	apperrors.MalformedResponse: http.StatusInternalServerError,
	apperrors.UnexpectedShape:   http.StatusInternalServerError,
	apperrors.Internal:          http.StatusInternalServerError,
}

func StatusFor(kind apperrors.Kind) int {
	if status, ok := statusByKind[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

type API struct {
	cfg      *config.Config
	pipeline *services.Pipeline
	metrics  *services.Metrics
	hub      *Hub
	log      logrus.FieldLogger
}

func NewAPI(cfg *config.Config, pipeline *services.Pipeline, metrics *services.Metrics, hub *Hub, log logrus.FieldLogger) *API {
	return &API{
		cfg:      cfg,
		pipeline: pipeline,
		metrics:  metrics,
		hub:      hub,
		log:      log,
	}
}

func (a *API) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", a.handleRoot)
	mux.HandleFunc("/health", a.handleHealth)
	mux.HandleFunc("/ping", a.handlePing)
	mux.HandleFunc("/metrics", a.handleMetrics)
	mux.HandleFunc("/detect", a.handleDetect)
	mux.HandleFunc("/analyze", a.handleAnalyze)
	mux.HandleFunc("/ws", a.hub.ServeWS)

	return logRequests(a.log, corsMiddleware(a.cfg.AllowedOrigins, mux))
}

func (a *API) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		respondError(w, http.StatusNotFound, "Not Found", "NOT_FOUND")
		return
	}
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	respondJSON(w, http.StatusOK, models.ServiceDescriptor{
		Message:     "InventoryLens AI Backend is running!",
		Status:      "healthy",
		Version:     Version,
		Environment: a.cfg.Environment,
		Endpoints: map[string]string{
			"health":           "/health",
			"object_detection": "/detect",
			"full_analysis":    "/analyze",
			"live_detection":   "/ws",
			"metrics":          "/metrics",
		},
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	token := "not_configured"
	if a.cfg.TokenConfigured() {
		token = "configured"
	}

	respondJSON(w, http.StatusOK, models.HealthStatus{
		Status:           "healthy",
		Services:         []string{"object_detection"},
		HuggingFaceToken: token,
	})
}

func (a *API) handlePing(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	respondJSON(w, http.StatusOK, models.PingResponse{Status: "pong", Environment: a.cfg.Environment})
}

func (a *API) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	respondJSON(w, http.StatusOK, a.metrics.Snapshot())
}

// handleDetect fails the request on any error.
func (a *API) handleDetect(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	upload, err := a.readUpload(w, r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	out, err := a.pipeline.Run(r.Context(), upload, services.PolicyStrict)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, models.DetectResponse{Success: true, DetectionSummary: *out.Summary})
}

// handleAnalyze reports inference failures inside the response body.
func (a *API) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	upload, err := a.readUpload(w, r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	out, err := a.pipeline.Run(r.Context(), upload, services.PolicyDegraded)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, out.Analysis())
}

func (a *API) readUpload(w http.ResponseWriter, r *http.Request) (models.UploadedImage, error) {
	limit := a.cfg.MaxUploadBytes()
	if r.ContentLength > limit {
		return models.UploadedImage{}, a.tooLarge()
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return models.UploadedImage{}, a.tooLarge()
		}
		return models.UploadedImage{}, apperrors.Wrap(apperrors.Validation, "Failed to parse form", err)
	}

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		return models.UploadedImage{}, apperrors.Wrap(apperrors.Validation, "No file uploaded", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return models.UploadedImage{}, apperrors.Wrap(apperrors.Validation, "Failed to read file", err)
	}

	return models.UploadedImage{
		Data:        data,
		ContentType: header.Header.Get("Content-Type"),
		Filename:    header.Filename,
	}, nil
}

func (a *API) tooLarge() error {
	return apperrors.Validationf("File exceeds the %d MB upload limit", a.cfg.MaxUploadSizeMB)
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperrors.KindOf(err)
	status := StatusFor(kind)

	entry := a.log.WithFields(logrus.Fields{
		"path":   r.URL.Path,
		"kind":   kind.String(),
		"status": status,
	}).WithError(err)
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Warn("Request rejected")
	}

	message := apperrors.MessageOf(err)
	if kind == apperrors.Internal {
		message = "Detection error: " + message
	}
	respondError(w, status, message, kind.String())
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "METHOD_NOT_ALLOWED")
	return false
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message, code string) {
	respondJSON(w, status, models.ErrorResponse{
		Detail:    message,
		Error:     message,
		Code:      code,
		Timestamp: time.Now().Unix(),
	})
}
