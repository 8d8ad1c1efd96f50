package model

import (
	"encoding/json"
	"time"
)

// RunStatus represents the state of a stage run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// StageRun records one invocation of a stage against a session.
type StageRun struct {
	ID           string          `json:"id"`
	SessionID    string          `json:"session_id"`
	Stage        int             `json:"stage"`
	Status       RunStatus       `json:"status"`
	Force        bool            `json:"force"`
	StartedAt    time.Time       `json:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	DurationSecs float64         `json:"duration_seconds"`
	Result       json.RawMessage `json:"result,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// APICall is one entry in the outbound call log.
type APICall struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id,omitempty"`
	Service      string    `json:"service"`
	Operation    string    `json:"operation"`
	Model        string    `json:"model,omitempty"`
	Status       string    `json:"status"`
	HTTPStatus   int       `json:"http_status,omitempty"`
	DurationMs   int64     `json:"duration_ms"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	FromCache    bool      `json:"from_cache"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// API call status values.
const (
	CallStatusSuccess     = "success"
	CallStatusError       = "error"
	CallStatusRateLimited = "rate_limited"
	CallStatusCached      = "cached"
)
