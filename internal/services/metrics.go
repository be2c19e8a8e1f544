package services

import (
	"sync/atomic"
	"time"

	"InventoryLens/go-backend/internal/models"
)

type Metrics struct {
	startedAt time.Time

	totalRequests atomic.Int64
	totalErrors   atomic.Int64
	totalLatency  atomic.Int64
	totalObjects  atomic.Int64
	completed     atomic.Int64
	lastRequest   atomic.Int64

	wsConnections atomic.Int64
	wsMessages    atomic.Int64
	wsErrors      atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{startedAt: time.Now()}
}

func (m *Metrics) IncrementRequests() {
	m.totalRequests.Add(1)
	m.lastRequest.Store(time.Now().Unix())
}

func (m *Metrics) IncrementErrors() {
	m.totalErrors.Add(1)
}

// RecordLatency is called once per successful detection.
func (m *Metrics) RecordLatency(duration time.Duration) {
	m.totalLatency.Add(duration.Milliseconds())
	m.completed.Add(1)
}

func (m *Metrics) AddObjects(n int) {
	m.totalObjects.Add(int64(n))
}

func (m *Metrics) GetTotalRequests() int64 {
	return m.totalRequests.Load()
}

func (m *Metrics) GetTotalErrors() int64 {
	return m.totalErrors.Load()
}

func (m *Metrics) GetAvgLatency() float64 {
	completed := m.completed.Load()
	if completed == 0 {
		return 0
	}
	return float64(m.totalLatency.Load()) / float64(completed)
}

func (m *Metrics) IncrementWebSocketConnections() {
	m.wsConnections.Add(1)
}

func (m *Metrics) DecrementWebSocketConnections() {
	m.wsConnections.Add(-1)
}

func (m *Metrics) GetWebSocketConnections() int64 {
	return m.wsConnections.Load()
}

func (m *Metrics) IncrementWebSocketMessages() {
	m.wsMessages.Add(1)
}

func (m *Metrics) IncrementWebSocketErrors() {
	m.wsErrors.Add(1)
}

func (m *Metrics) Snapshot() models.MetricsSnapshot {
	return models.MetricsSnapshot{
		TotalRequests: m.totalRequests.Load(),
		TotalErrors:   m.totalErrors.Load(),
		TotalObjects:  m.totalObjects.Load(),
		AvgLatencyMs:  m.GetAvgLatency(),
		LastRequest:   m.lastRequest.Load(),
		WSConnections: m.wsConnections.Load(),
		WSMessages:    m.wsMessages.Load(),
		WSErrors:      m.wsErrors.Load(),
		UptimeSeconds: int64(time.Since(m.startedAt).Seconds()),
		Timestamp:     time.Now().Format(time.RFC3339),
	}
}
