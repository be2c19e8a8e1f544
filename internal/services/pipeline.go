package services

import (
	"context"
	"time"

	"InventoryLens/go-backend/internal/apperrors"
	"InventoryLens/go-backend/internal/imaging"
	"InventoryLens/go-backend/internal/models"

	"github.com/sirupsen/logrus"
)

// Detector is the remote inference call. *InferenceClient implements it.
type Detector interface {
	Detect(ctx context.Context, payload EncodedPayload) ([]models.RawDetection, error)
}

// Policy decides what happens to inference failures.
type Policy int

const (
	// PolicyStrict returns inference failures to the caller.
	PolicyStrict Policy = iota
	// PolicyDegraded records inference failures in Outcome.Failure.
	PolicyDegraded
)

func (p Policy) String() string {
	if p == PolicyDegraded {
		return "degraded"
	}
	return "strict"
}

type Outcome struct {
	Image   *imaging.NormalizedImage
	Summary *models.DetectionSummary
	Failure error
}

// ObjectDetection renders the outcome in the shape embedded by analyze.
func (o *Outcome) ObjectDetection() models.ObjectDetectionResult {
	if o.Failure != nil {
		return models.ObjectDetectionResult{Success: false, Error: apperrors.MessageOf(o.Failure)}
	}
	return models.ObjectDetectionResult{Success: true, DetectionSummary: o.Summary}
}

func (o *Outcome) Analysis() models.AnalyzeResponse {
	return models.AnalyzeResponse{
		Success: true,
		ImageInfo: models.ImageInfo{
			Size: o.Image.Size(),
			Mode: o.Image.Mode(),
		},
		ObjectDetection: o.ObjectDetection(),
	}
}

type Pipeline struct {
	detector  Detector
	threshold float64
	metrics   *Metrics
	log       logrus.FieldLogger
}

func NewPipeline(detector Detector, metrics *Metrics, log logrus.FieldLogger) *Pipeline {
	return &Pipeline{
		detector:  detector,
		threshold: DefaultThreshold,
		metrics:   metrics,
		log:       log.WithField("component", "pipeline"),
	}
}

// Run normalizes the upload, calls the detector and summarizes its answer.
// Upload validation errors are always returned; inference errors are
// returned or recorded depending on policy.
func (p *Pipeline) Run(ctx context.Context, upload models.UploadedImage, policy Policy) (*Outcome, error) {
	start := time.Now()
	p.metrics.IncrementRequests()

	img, err := imaging.Normalize(upload.Data, upload.ContentType)
	if err != nil {
		p.metrics.IncrementErrors()
		return nil, err
	}

	encoded, err := imaging.Encode(img)
	if err != nil {
		p.metrics.IncrementErrors()
		return nil, apperrors.Wrap(apperrors.Internal, "Failed to encode image", err)
	}

	log := p.log.WithFields(logrus.Fields{
		"filename":    upload.Filename,
		"source_mode": img.SourceMode,
		"width":       img.Width(),
		"height":      img.Height(),
		"policy":      policy.String(),
	})

	out := &Outcome{Image: img}
	raw, err := p.detector.Detect(ctx, EncodedPayload{Image: encoded, Threshold: p.threshold})
	if err != nil {
		p.metrics.IncrementErrors()
		log.WithError(err).WithField("kind", apperrors.KindOf(err).String()).Warn("Detection failed")
		if policy == PolicyStrict {
			return nil, err
		}
		out.Failure = err
		return out, nil
	}

	summary := Summarize(raw, p.threshold)
	out.Summary = &summary

	duration := time.Since(start)
	p.metrics.RecordLatency(duration)
	p.metrics.AddObjects(summary.TotalObjects)

	log.WithFields(logrus.Fields{
		"objects":  summary.TotalObjects,
		"duration": duration,
	}).Info("Detection completed")

	return out, nil
}
