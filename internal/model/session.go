package model

import (
	"strings"
	"time"
)

// SessionStatus represents the lifecycle state of an enrichment session.
type SessionStatus string

const (
	SessionStatusCreated    SessionStatus = "created"
	SessionStatusProcessing SessionStatus = "processing"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusFailed     SessionStatus = "failed"
)

// Session is one enrichment run for a topic.
type Session struct {
	ID          string        `json:"session_id"`
	Topic       string        `json:"main_topic"`
	TargetCount int           `json:"target_count"`
	Status      SessionStatus `json:"status"`
	LastStage   int           `json:"last_stage"`
	Queries     []Query       `json:"queries,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// SearchQuery joins the source-language terms of the session's queries.
func (s *Session) SearchQuery() string {
	parts := make([]string, 0, len(s.Queries))
	for _, q := range s.Queries {
		parts = append(parts, q.QueryCN)
	}
	return strings.Join(parts, "; ")
}

// Query is one generated search pair belonging to a session.
type Query struct {
	ID             string     `json:"id"`
	SessionID      string     `json:"session_id"`
	Position       int        `json:"position"`
	QueryCN        string     `json:"query_cn"`
	QueryRU        string     `json:"query_ru"`
	Relevance      int        `json:"relevance"`
	ProcessedAt    *time.Time `json:"processed_at,omitempty"`
	CompaniesFound int        `json:"companies_found"`
}

// Processed reports whether Stage 1 already ran this query.
func (q *Query) Processed() bool { return q.ProcessedAt != nil }
