package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"
	"time"

	"InventoryLens/go-backend/internal/handlers"

	"github.com/gorilla/websocket"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
)

var (
	backendURL = flag.String("backend", "http://localhost:8000", "HTTP backend URL")
	grpcAddr   = flag.String("grpc", "localhost:50051", "gRPC address, empty to skip")
	imagePath  = flag.String("image", "", "image to upload, a generated PNG when empty")
)

// generateTestImage draws a few colored blocks on a light background.
func generateTestImage() ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, 640, 480))
	for y := 0; y < 480; y++ {
		for x := 0; x < 640; x++ {
			c := color.RGBA{R: 235, G: 235, B: 235, A: 255}
			switch {
			case x > 80 && x < 220 && y > 120 && y < 360:
				c = color.RGBA{R: 180, G: 40, B: 40, A: 255}
			case x > 300 && x < 560 && y > 200 && y < 300:
				c = color.RGBA{R: 40, G: 90, B: 180, A: 255}
			}
			img.Set(x, y, c)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func loadImage() ([]byte, string, error) {
	if *imagePath == "" {
		data, err := generateTestImage()
		return data, "image/png", err
	}
	data, err := os.ReadFile(*imagePath)
	if err != nil {
		return nil, "", err
	}
	return data, http.DetectContentType(data), nil
}

// Проверка состояния
func testHealth() error {
	fmt.Println("\n[TEST] Testing /health...")
	resp, err := http.Get(*backendURL + "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: status %d, body: %s", resp.StatusCode, string(body))
	}
	fmt.Printf("✓ Health check: %s\n", strings.TrimSpace(string(body)))
	return nil
}

func upload(path string, data []byte, contentType string) (int, map[string]interface{}, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="test.png"`)
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return 0, nil, err
	}
	part.Write(data)
	mw.Close()

	resp, err := http.Post(*backendURL+path, mw.FormDataContentType(), &body)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to parse response: %v", err)
	}
	return resp.StatusCode, result, nil
}

// Проверка детекции
func testDetect(data []byte, contentType string) error {
	fmt.Println("\n[TEST] Testing /detect...")

	status, result, err := upload("/detect", data, contentType)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("detection failed: status %d, detail: %v", status, result["detail"])
	}

	fmt.Printf("✓ Detection successful!\n")
	fmt.Printf("  - Objects: %v\n", result["total_objects"])
	fmt.Printf("  - Counts: %v\n", result["object_counts"])
	fmt.Printf("  - Summary: %v\n", result["summary"])
	return nil
}

func testAnalyze(data []byte, contentType string) error {
	fmt.Println("\n[TEST] Testing /analyze...")

	status, result, err := upload("/analyze", data, contentType)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("analyze failed: status %d, detail: %v", status, result["detail"])
	}

	detection, _ := result["object_detection"].(map[string]interface{})
	fmt.Printf("✓ Analyze returned image_info=%v\n", result["image_info"])
	if detection["success"] == true {
		fmt.Printf("  - Summary: %v\n", detection["summary"])
	} else {
		fmt.Printf("  ⚠ Detection unavailable: %v\n", detection["error"])
	}
	return nil
}

func testRejectsText() error {
	fmt.Println("\n[TEST] Testing /detect with a text file...")

	status, result, err := upload("/detect", []byte("not an image"), "text/plain")
	if err != nil {
		return err
	}
	if status != http.StatusBadRequest {
		return fmt.Errorf("expected 400, got %d", status)
	}
	fmt.Printf("✓ Rejected: %v\n", result["detail"])
	return nil
}

func testWebSocket(data []byte, contentType string) error {
	fmt.Println("\n[TEST] Testing /ws...")

	url := "ws" + strings.TrimPrefix(*backendURL, "http") + "/ws?clientId=testclient"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %v", err)
	}
	defer conn.Close()

	var msg handlers.WebSocketMessage
	conn.SetReadDeadline(time.Now().Add(40 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		return fmt.Errorf("no welcome message: %v", err)
	}

	frame := map[string]interface{}{
		"type": handlers.MessageFrame,
		"payload": handlers.FramePayload{
			Image:       base64.StdEncoding.EncodeToString(data),
			ContentType: contentType,
		},
	}
	if err := conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("send frame failed: %v", err)
	}
	if err := conn.ReadJSON(&msg); err != nil {
		return fmt.Errorf("no reply to frame: %v", err)
	}

	fmt.Printf("✓ WebSocket reply: %s\n", msg.Type)
	return nil
}

func testGRPC(data []byte) error {
	fmt.Println("\n[TEST] Testing gRPC Detect...")

	conn, err := grpc.NewClient(*grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("did not connect: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Second)
	defer cancel()

	result, err := handlers.NewDetectionClient(conn).Detect(ctx, data)
	if err != nil {
		return fmt.Errorf("gRPC Detect failed: %v", err)
	}

	fmt.Printf("✓ gRPC result: %s\n", protojson.Format(result))
	return nil
}

func main() {
	flag.Parse()

	fmt.Println("=" + strings.Repeat("=", 60))
	fmt.Println("InventoryLens - Backend Testing Client")
	fmt.Println("=" + strings.Repeat("=", 60))
	fmt.Println("\n[INFO] Backend:", *backendURL)

	data, contentType, err := loadImage()
	if err != nil {
		log.Fatalf("Failed to load test image: %v", err)
	}
	fmt.Printf("✓ Test image: %d bytes (%s)\n", len(data), contentType)

	tests := []struct {
		name string
		fn   func() error
	}{
		{"Health Check", testHealth},
		{"Content Type Check", testRejectsText},
		{"Detection", func() error { return testDetect(data, contentType) }},
		{"Analysis", func() error { return testAnalyze(data, contentType) }},
		{"WebSocket", func() error { return testWebSocket(data, contentType) }},
	}
	if *grpcAddr != "" {
		tests = append(tests, struct {
			name string
			fn   func() error
		}{"gRPC Detection", func() error { return testGRPC(data) }})
	}

	failed := 0
	for _, test := range tests {
		if err := test.fn(); err != nil {
			log.Printf("❌ %s failed: %v", test.name, err)
			failed++
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	if failed > 0 {
		fmt.Printf("❌ %d of %d tests failed\n", failed, len(tests))
		os.Exit(1)
	}
	fmt.Println("✅ All tests completed successfully!")
	fmt.Println("=" + strings.Repeat("=", 60))
}
