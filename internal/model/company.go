package model

import (
	"encoding/json"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Company is one discovered company within a session.
type Company struct {
	ID          string      `json:"id"`
	SessionID   string      `json:"session_id"`
	QueryID     string      `json:"query_id,omitempty"`
	Name        string      `json:"company_name"`
	NameKey     string      `json:"-"`
	Website     string      `json:"website,omitempty"`
	Email       string      `json:"email,omitempty"`
	Description string      `json:"description,omitempty"`
	Stage       Stage       `json:"stage"`
	Stage2Raw   *RawData    `json:"stage2_raw_data,omitempty"`
	Stage3Raw   *RawData    `json:"stage3_raw_data,omitempty"`
	Validation  *Validation `json:"validation,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// RawData is the audit record of one external lookup, kept whether or not the
// lookup produced a usable value.
type RawData struct {
	Source       string          `json:"source"`
	Result       string          `json:"result"`
	Timestamp    time.Time       `json:"timestamp"`
	FullResponse json.RawMessage `json:"full_response,omitempty"`
}

// Raw data result values.
const (
	RawResultFound    = "found"
	RawResultNotFound = "not_found"
	RawResultError    = "error"
)

// Validation holds the Stage 4 verdict.
type Validation struct {
	Score       int       `json:"validation_score"`
	Confidence  float64   `json:"confidence"`
	Reason      string    `json:"reason,omitempty"`
	Services    []string  `json:"services,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Provider    string    `json:"provider"`
	ValidatedAt time.Time `json:"validated_at"`
}

// MarshalJSON flattens validation_score to the top level of the company
// record, where debug consumers look for it.
func (c Company) MarshalJSON() ([]byte, error) {
	type alias Company
	out := struct {
		alias
		ValidationScore *int `json:"validation_score,omitempty"`
	}{alias: alias(c)}
	if c.Validation != nil {
		score := c.Validation.Score
		out.ValidationScore = &score
	}
	return json.Marshal(out)
}

// HasWebsite reports whether a website has been recorded.
func (c *Company) HasWebsite() bool { return strings.TrimSpace(c.Website) != "" }

// HasEmail reports whether an email has been recorded.
func (c *Company) HasEmail() bool { return strings.TrimSpace(c.Email) != "" }

// EligibleStage2 reports whether the company should be searched for a
// website. Without force, companies that already have an audit record are
// skipped.
func (c *Company) EligibleStage2(force bool) bool {
	if c.HasWebsite() {
		return false
	}
	return force || c.Stage2Raw == nil
}

// EligibleStage3 reports whether the company should be searched for contacts.
func (c *Company) EligibleStage3(force bool) bool {
	if !c.HasWebsite() || c.HasEmail() {
		return false
	}
	return force || c.Stage3Raw == nil
}

// EligibleStage4 reports whether the company should be validated.
func (c *Company) EligibleStage4(force bool) bool {
	if !c.HasWebsite() && !c.HasEmail() {
		return false
	}
	return force || c.Validation == nil
}

// NameKey normalizes a company name for duplicate detection within a session.
func NameKey(name string) string {
	s := norm.NFKC.String(name)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}
