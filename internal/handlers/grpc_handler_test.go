package handlers

import (
	"context"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func startGRPC(t *testing.T, env *testEnv) (*DetectionClient, *grpc.ClientConn) {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	handler := NewGRPCHandler(env.api.pipeline, testLogger())
	server := grpc.NewServer(grpc.UnaryInterceptor(handler.UnaryLogger))
	handler.Register(server)
	go server.Serve(lis)
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("did not connect: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return NewDetectionClient(conn), conn
}

func callContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestGRPCDetect(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, providerList)
	client, _ := startGRPC(t, env)

	result, err := client.Detect(callContext(t), pngBytes(t, 24, 24))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	fields := result.GetFields()
	if !fields["success"].GetBoolValue() {
		t.Errorf("Expected success, got %v", result)
	}
	if fields["total_objects"].GetNumberValue() != 2 {
		t.Errorf("Expected 2 objects, got %v", fields["total_objects"])
	}
	if got := fields["object_counts"].GetStructValue().GetFields()["cat"].GetNumberValue(); got != 2 {
		t.Errorf("Expected 2 cats, got %v", got)
	}
}

func TestGRPCDetectErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		image  []byte
		code   codes.Code
	}{
		{"not an image", http.StatusOK, `[]`, []byte("plain text"), codes.InvalidArgument},
		{"empty", http.StatusOK, `[]`, nil, codes.InvalidArgument},
		{"loading", http.StatusServiceUnavailable, ``, nil, codes.Unavailable},
		{"auth", http.StatusUnauthorized, ``, nil, codes.Unauthenticated},
		{"rate limited", http.StatusTooManyRequests, ``, nil, codes.ResourceExhausted},
		{"malformed", http.StatusOK, `<html>`, nil, codes.Internal},
	}

	for _, tt := range tests {
		env := newTestEnv(t, tt.status, tt.body)
		client, _ := startGRPC(t, env)

		image := tt.image
		if image == nil && tt.name != "empty" {
			image = pngBytes(t, 8, 8)
		}

		_, err := client.Detect(callContext(t), image)
		if got := status.Code(err); got != tt.code {
			t.Errorf("%s: expected %s, got %s (%v)", tt.name, tt.code, got, err)
		}
	}
}

func TestGRPCAnalyzeDegrades(t *testing.T) {
	env := newTestEnv(t, http.StatusServiceUnavailable, ``)
	client, _ := startGRPC(t, env)

	result, err := client.Analyze(callContext(t), pngBytes(t, 12, 6))
	if err != nil {
		t.Fatalf("Analyze must not fail on inference errors: %v", err)
	}

	fields := result.GetFields()
	size := fields["image_info"].GetStructValue().GetFields()["size"].GetListValue().GetValues()
	if len(size) != 2 || size[0].GetNumberValue() != 12 || size[1].GetNumberValue() != 6 {
		t.Errorf("Unexpected size %v", size)
	}
	detection := fields["object_detection"].GetStructValue().GetFields()
	if detection["success"].GetBoolValue() {
		t.Error("Expected object_detection.success=false")
	}
	if !strings.Contains(detection["error"].GetStringValue(), "Model is loading") {
		t.Errorf("Unexpected error %q", detection["error"].GetStringValue())
	}
}

func TestGRPCHealth(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, `[]`)
	_, conn := startGRPC(t, env)

	resp, err := healthpb.NewHealthClient(conn).Check(callContext(t), &healthpb.HealthCheckRequest{Service: HealthServiceName})
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("Expected SERVING, got %s", resp.GetStatus())
	}
}
