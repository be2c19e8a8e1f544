package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"InventoryLens/go-backend/internal/apperrors"
	"InventoryLens/go-backend/internal/models"
	"InventoryLens/go-backend/internal/services"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	DetectionServiceName = "inventorylens.v1.ObjectDetection"
	HealthServiceName    = "object_detection"
)

var grpcCodeByKind = map[apperrors.Kind]codes.Code{
	apperrors.Validation:   codes.InvalidArgument,
	apperrors.AuthFailed:   codes.Unauthenticated,
	apperrors.Unreachable:  codes.Unavailable,
	apperrors.ModelLoading: codes.Unavailable,
	apperrors.RateLimited:  codes.ResourceExhausted,
}

// DetectionServer takes raw image bytes and answers with the same JSON
// documents as /detect and /analyze, carried as google.protobuf.Struct.
type DetectionServer interface {
	Detect(context.Context, *wrapperspb.BytesValue) (*structpb.Struct, error)
	Analyze(context.Context, *wrapperspb.BytesValue) (*structpb.Struct, error)
}

var DetectionServiceDesc = grpc.ServiceDesc{
	ServiceName: DetectionServiceName,
	HandlerType: (*DetectionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Detect", Handler: detectHandler},
		{MethodName: "Analyze", Handler: analyzeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "inventorylens/v1/detection.proto",
}

func detectHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DetectionServer).Detect(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + DetectionServiceName + "/Detect"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DetectionServer).Detect(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func analyzeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DetectionServer).Analyze(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + DetectionServiceName + "/Analyze"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DetectionServer).Analyze(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

// DetectionClient calls DetectionServiceDesc over an existing connection.
type DetectionClient struct {
	cc grpc.ClientConnInterface
}

func NewDetectionClient(cc grpc.ClientConnInterface) *DetectionClient {
	return &DetectionClient{cc: cc}
}

func (c *DetectionClient) Detect(ctx context.Context, image []byte, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	err := c.cc.Invoke(ctx, "/"+DetectionServiceName+"/Detect", wrapperspb.Bytes(image), out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *DetectionClient) Analyze(ctx context.Context, image []byte, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	err := c.cc.Invoke(ctx, "/"+DetectionServiceName+"/Analyze", wrapperspb.Bytes(image), out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

type GRPCHandler struct {
	pipeline *services.Pipeline
	health   *health.Server
	log      logrus.FieldLogger
}

func NewGRPCHandler(pipeline *services.Pipeline, log logrus.FieldLogger) *GRPCHandler {
	return &GRPCHandler{
		pipeline: pipeline,
		health:   health.NewServer(),
		log:      log.WithField("component", "grpc"),
	}
}

// Register adds the detection service and the standard health service.
func (h *GRPCHandler) Register(s *grpc.Server) {
	s.RegisterService(&DetectionServiceDesc, h)
	h.health.SetServingStatus(HealthServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, h.health)
}

// Shutdown marks every service NOT_SERVING ahead of GracefulStop.
func (h *GRPCHandler) Shutdown() {
	h.health.Shutdown()
}

func (h *GRPCHandler) Detect(ctx context.Context, req *wrapperspb.BytesValue) (*structpb.Struct, error) {
	out, err := h.pipeline.Run(ctx, uploadFromBytes(req.GetValue()), services.PolicyStrict)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(models.DetectResponse{Success: true, DetectionSummary: *out.Summary})
}

func (h *GRPCHandler) Analyze(ctx context.Context, req *wrapperspb.BytesValue) (*structpb.Struct, error) {
	out, err := h.pipeline.Run(ctx, uploadFromBytes(req.GetValue()), services.PolicyDegraded)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(out.Analysis())
}

// UnaryLogger logs each call with its status code.
func (h *GRPCHandler) UnaryLogger(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	entry := h.log.WithFields(logrus.Fields{
		"method":   info.FullMethod,
		"code":     status.Code(err).String(),
		"duration": time.Since(start),
	})
	if err != nil {
		entry.WithError(err).Warn("gRPC call failed")
	} else {
		entry.Info("gRPC call")
	}
	return resp, err
}

// uploadFromBytes sniffs the media type since gRPC callers send bare bytes.
func uploadFromBytes(data []byte) models.UploadedImage {
	contentType := ""
	if len(data) > 0 {
		contentType = http.DetectContentType(data)
	}
	return models.UploadedImage{Data: data, ContentType: contentType, Filename: "grpc-upload"}
}

func toStatus(err error) error {
	kind := apperrors.KindOf(err)
	code, ok := grpcCodeByKind[kind]
	if !ok {
		code = codes.Internal
	}
	return status.Error(code, apperrors.MessageOf(err))
}

func toStruct(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}
