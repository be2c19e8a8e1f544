package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"InventoryLens/go-backend/internal/apperrors"
	"InventoryLens/go-backend/internal/models"
	"InventoryLens/go-backend/internal/services"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 16
)

const (
	MessageWelcome   = "WELCOME"
	MessagePing      = "PING"
	MessagePong      = "PONG"
	MessageFrame     = "FRAME"
	MessageDetection = "DETECTION"
	MessageError     = "ERROR"
)

type WebSocketMessage struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	ClientID  string      `json:"client_id,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// inboundMessage keeps the payload raw until the type is known.
type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// FramePayload carries one base64 image. Image may also be a data URL, in
// which case its media type is used when ContentType is empty.
type FramePayload struct {
	Image       string `json:"image"`
	ContentType string `json:"content_type"`
	Filename    string `json:"filename,omitempty"`
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan WebSocketMessage
}

// enqueue never blocks; a client that stops reading loses messages.
func (c *wsClient) enqueue(msg WebSocketMessage) bool {
	msg.ClientID = c.id
	msg.Timestamp = time.Now().Unix()
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Hub tracks live-detection clients. Frames are run through the pipeline
// with the degraded policy, so inference failures arrive as DETECTION
// messages with object_detection.success=false.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*wsClient

	pipeline  *services.Pipeline
	metrics   *services.Metrics
	readLimit int64
	log       logrus.FieldLogger
	upgrader  websocket.Upgrader
}

func NewHub(pipeline *services.Pipeline, metrics *services.Metrics, origins []string, maxUpload int64, log logrus.FieldLogger) *Hub {
	// base64 inflates by 4/3; leave room for the envelope.
	readLimit := maxUpload*4/3 + 4096

	return &Hub{
		clients:   make(map[string]*wsClient),
		pipeline:  pipeline,
		metrics:   metrics,
		readLimit: readLimit,
		log:       log.WithField("component", "websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || originAllowed(origins, origin)
			},
		},
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan WebSocketMessage, sendBuffer),
	}
	h.register(client, r.URL.Query().Get("clientId"))
	log := h.log.WithField("client_id", client.id)
	log.Info("WebSocket client connected")

	go h.writePump(client)

	client.enqueue(WebSocketMessage{
		Type: MessageWelcome,
		Payload: map[string]interface{}{
			"message": "Connected to InventoryLens live detection",
			"version": Version,
		},
	})

	h.readPump(r.Context(), client, log)

	h.unregister(client)
	close(client.send)
	log.Info("WebSocket client disconnected")
}

// CloseAll sends a going-away close frame to every client. Each connection
// is cleaned up by its own handler goroutine.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	deadline := time.Now().Add(writeWait)
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for id, client := range h.clients {
		client.conn.WriteControl(websocket.CloseMessage, msg, deadline)
		client.conn.Close()
		h.log.WithField("client_id", id).Debug("Closed WebSocket connection")
	}
}

func (h *Hub) register(client *wsClient, requested string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := requested
	if _, taken := h.clients[id]; id == "" || taken {
		id = "client-" + uuid.NewString()
	}
	client.id = id
	h.clients[id] = client
	h.metrics.IncrementWebSocketConnections()
}

func (h *Hub) unregister(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.clients[client.id]; ok && current == client {
		delete(h.clients, client.id)
		h.metrics.DecrementWebSocketConnections()
	}
}

func (h *Hub) readPump(ctx context.Context, client *wsClient, log logrus.FieldLogger) {
	conn := client.conn
	conn.SetReadLimit(h.readLimit)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.WithError(err).Warn("WebSocket read failed")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		h.metrics.IncrementWebSocketMessages()

		reply := h.handleMessage(ctx, msg)
		if reply.Type == MessageError {
			h.metrics.IncrementWebSocketErrors()
		}
		if !client.enqueue(reply) {
			log.WithField("type", reply.Type).Warn("Send buffer full, dropping message")
		}
	}
}

func (h *Hub) handleMessage(ctx context.Context, msg inboundMessage) WebSocketMessage {
	switch msg.Type {
	case MessagePing:
		return WebSocketMessage{Type: MessagePong}

	case MessageFrame:
		upload, err := decodeFrame(msg.Payload)
		if err != nil {
			return errorMessage(err)
		}
		out, err := h.pipeline.Run(ctx, upload, services.PolicyDegraded)
		if err != nil {
			return errorMessage(err)
		}
		return WebSocketMessage{Type: MessageDetection, Payload: out.Analysis()}

	default:
		return errorMessage(apperrors.Validationf("Unknown message type: %s", msg.Type))
	}
}

func decodeFrame(raw json.RawMessage) (models.UploadedImage, error) {
	var frame FramePayload
	if err := json.Unmarshal(raw, &frame); err != nil {
		return models.UploadedImage{}, apperrors.Wrap(apperrors.Validation, "Invalid frame payload", err)
	}

	encoded := frame.Image
	contentType := frame.ContentType
	if rest, ok := strings.CutPrefix(encoded, "data:"); ok {
		header, body, found := strings.Cut(rest, ",")
		if !found {
			return models.UploadedImage{}, apperrors.Validationf("Invalid data URL")
		}
		if contentType == "" {
			contentType, _, _ = strings.Cut(header, ";")
		}
		encoded = body
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return models.UploadedImage{}, apperrors.Wrap(apperrors.Validation, "Frame image is not valid base64", err)
	}

	return models.UploadedImage{Data: data, ContentType: contentType, Filename: frame.Filename}, nil
}

func errorMessage(err error) WebSocketMessage {
	kind := apperrors.KindOf(err)
	return WebSocketMessage{
		Type: MessageError,
		Payload: map[string]interface{}{
			"error": apperrors.MessageOf(err),
			"code":  kind.String(),
		},
	}
}

func (h *Hub) writePump(client *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
