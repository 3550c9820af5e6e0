package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Solve phases published as progress events.
const (
	PhasePreparing  = "preparing"
	PhaseAnalyzing  = "analyzing"
	PhaseFiltering  = "filtering"
	PhaseBuilding   = "building"
	PhaseSolving    = "solving"
	PhaseExtracting = "extracting"
	PhaseDone       = "done"
)

// ProgressEvent is the payload published on phase transitions.
type ProgressEvent struct {
	SolveID   string `json:"solve_id"`
	SessionID string `json:"session_id"`
	Phase     string `json:"phase"`
	Detail    string `json:"detail,omitempty"`
	Timestamp string `json:"timestamp"`
}

// ProgressPublisher pushes solve phase events to a Redis channel so the owning
// backend can surface job status. A nil client disables publishing.
type ProgressPublisher struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewProgressPublisher builds a publisher. client may be nil.
func NewProgressPublisher(client *redis.Client, channel string, logger *zap.Logger) *ProgressPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressPublisher{client: client, channel: channel, logger: logger}
}

// Publish emits one event. Failures are logged and never interrupt a solve.
func (p *ProgressPublisher) Publish(ctx context.Context, event ProgressEvent) {
	if p == nil || p.client == nil || p.channel == "" {
		return
	}
	event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn("failed to encode progress event", zap.Error(err))
		return
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.logger.Warn("failed to publish progress event",
			zap.String("phase", event.Phase), zap.Error(err))
	}
}
