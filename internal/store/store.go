package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/topic-enricher/internal/model"
)

// SessionFilter specifies criteria for listing sessions.
type SessionFilter struct {
	Status model.SessionStatus `json:"status,omitempty"`
	Limit  int                 `json:"limit,omitempty"`
	Offset int                 `json:"offset,omitempty"`
}

// CompanyFilter specifies criteria for listing companies.
type CompanyFilter struct {
	SessionID string      `json:"session_id,omitempty"`
	Stage     model.Stage `json:"stage,omitempty"`
	Limit     int         `json:"limit,omitempty"`
	Offset    int         `json:"offset,omitempty"`
}

// CompanyUpdate is one field-group write. Nil fields are left unchanged and
// an empty Stage keeps the current one.
type CompanyUpdate struct {
	Website     *string
	Email       *string
	Description *string
	Stage       model.Stage
	Stage2Raw   *model.RawData
	Stage3Raw   *model.RawData
	Validation  *model.Validation
}

// Store defines the persistence interface for sessions and companies.
type Store interface {
	// Sessions
	CreateSession(ctx context.Context, topic string, targetCount int) (*model.Session, error)
	SaveQueries(ctx context.Context, sessionID string, queries []model.Query) ([]model.Query, error)
	GetSession(ctx context.Context, id string) (*model.Session, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error)
	UpdateSessionStatus(ctx context.Context, id string, status model.SessionStatus, lastStage int) error
	DeleteSession(ctx context.Context, id string) error
	ListQueries(ctx context.Context, sessionID string) ([]model.Query, error)
	MarkQueryProcessed(ctx context.Context, queryID string, companiesFound int) error

	// Companies
	InsertCompanies(ctx context.Context, companies []model.Company) (int, error)
	GetCompany(ctx context.Context, id string) (*model.Company, error)
	ListCompanies(ctx context.Context, filter CompanyFilter) ([]model.Company, error)
	CountCompanies(ctx context.Context, filter CompanyFilter) (int, error)
	CountByStage(ctx context.Context, sessionID string) (model.StageCounts, error)
	UpdateCompany(ctx context.Context, id string, upd CompanyUpdate) (*model.Company, error)

	// Stage runs
	CreateStageRun(ctx context.Context, sessionID string, stage int, force bool) (*model.StageRun, error)
	CompleteStageRun(ctx context.Context, run *model.StageRun) error
	ListStageRuns(ctx context.Context, sessionID string) ([]model.StageRun, error)

	// API call log
	RecordAPICall(ctx context.Context, call *model.APICall) error
	ListAPICalls(ctx context.Context, sessionID string, limit int) ([]model.APICall, error)

	// Response cache
	GetCachedResponse(ctx context.Context, key string) ([]byte, error)
	SetCachedResponse(ctx context.Context, key string, data []byte, ttl time.Duration) error
	DeleteExpiredResponses(ctx context.Context) (int, error)

	// ClearAll wipes every table and returns the names cleared.
	ClearAll(ctx context.Context) ([]string, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// clearOrder lists tables children first.
var clearOrder = []string{"stage_runs", "api_calls", "companies", "session_queries", "sessions", "response_cache"}

const (
	sessionColumns = `id, topic, target_count, status, last_stage, created_at, updated_at`
	queryColumns   = `id, session_id, position, query_cn, query_ru, relevance, processed_at, companies_found`
	companyColumns = `id, session_id, query_id, name, name_key, website, email, description, stage,
		stage2_raw, stage3_raw, validation, created_at, updated_at`
	runColumns  = `id, session_id, stage, status, forced, started_at, completed_at, duration_secs, result, error`
	callColumns = `id, session_id, service, operation, model, status, http_status, duration_ms,
		input_tokens, output_tokens, from_cache, error, created_at`

	defaultSessionLimit = 50
	defaultCompanyLimit = 500
	defaultCallLimit    = 100
)

type scannable interface {
	Scan(dest ...any) error
}

func scanSession(row scannable) (*model.Session, error) {
	var s model.Session
	var status string
	if err := row.Scan(&s.ID, &s.Topic, &s.TargetCount, &status, &s.LastStage, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Status = model.SessionStatus(status)
	return &s, nil
}

func scanQuery(row scannable) (*model.Query, error) {
	var q model.Query
	if err := row.Scan(&q.ID, &q.SessionID, &q.Position, &q.QueryCN, &q.QueryRU,
		&q.Relevance, &q.ProcessedAt, &q.CompaniesFound); err != nil {
		return nil, err
	}
	return &q, nil
}

func scanCompany(row scannable) (*model.Company, error) {
	var c model.Company
	var stage string
	var stage2, stage3, validation []byte
	if err := row.Scan(&c.ID, &c.SessionID, &c.QueryID, &c.Name, &c.NameKey, &c.Website, &c.Email,
		&c.Description, &stage, &stage2, &stage3, &validation, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Stage = model.Stage(stage)

	var err error
	if c.Stage2Raw, err = decodeJSON[model.RawData](stage2); err != nil {
		return nil, eris.Wrapf(err, "store: decode stage2_raw for company %s", c.ID)
	}
	if c.Stage3Raw, err = decodeJSON[model.RawData](stage3); err != nil {
		return nil, eris.Wrapf(err, "store: decode stage3_raw for company %s", c.ID)
	}
	if c.Validation, err = decodeJSON[model.Validation](validation); err != nil {
		return nil, eris.Wrapf(err, "store: decode validation for company %s", c.ID)
	}
	return &c, nil
}

func scanStageRun(row scannable) (*model.StageRun, error) {
	var r model.StageRun
	var status string
	var result []byte
	if err := row.Scan(&r.ID, &r.SessionID, &r.Stage, &status, &r.Force, &r.StartedAt,
		&r.CompletedAt, &r.DurationSecs, &result, &r.Error); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	if len(result) > 0 {
		r.Result = json.RawMessage(result)
	}
	return &r, nil
}

func scanAPICall(row scannable) (*model.APICall, error) {
	var c model.APICall
	if err := row.Scan(&c.ID, &c.SessionID, &c.Service, &c.Operation, &c.Model, &c.Status,
		&c.HTTPStatus, &c.DurationMs, &c.InputTokens, &c.OutputTokens, &c.FromCache, &c.Error,
		&c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func decodeJSON[T any](data []byte) (*T, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// encodeJSON marshals v, returning nil for a nil pointer so the column stays NULL.
func encodeJSON[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// applyUpdate merges upd into c and checks the stage transition. It returns
// the validation score to persist alongside the JSON column.
func applyUpdate(c *model.Company, upd CompanyUpdate) (*int, error) {
	if upd.Stage != "" {
		if err := model.CheckTransition(c.Stage, upd.Stage); err != nil {
			return nil, err
		}
		c.Stage = upd.Stage
	}
	if upd.Website != nil {
		c.Website = *upd.Website
	}
	if upd.Email != nil {
		c.Email = *upd.Email
	}
	if upd.Description != nil {
		c.Description = *upd.Description
	}
	if upd.Stage2Raw != nil {
		c.Stage2Raw = upd.Stage2Raw
	}
	if upd.Stage3Raw != nil {
		c.Stage3Raw = upd.Stage3Raw
	}
	if upd.Validation != nil {
		c.Validation = upd.Validation
	}
	if c.Validation == nil {
		return nil, nil
	}
	score := c.Validation.Score
	return &score, nil
}

// prepareCompany fills the derived fields of a company about to be inserted.
func prepareCompany(c *model.Company, id string, now time.Time) error {
	if c.Name == "" {
		return eris.New("store: company name is required")
	}
	if c.SessionID == "" {
		return eris.Errorf("store: company %q has no session", c.Name)
	}
	c.ID = id
	if c.NameKey == "" {
		c.NameKey = model.NameKey(c.Name)
	}
	if c.Stage == "" {
		c.Stage = model.InitialStage(c.HasWebsite(), c.HasEmail())
	}
	c.CreatedAt = now
	c.UpdatedAt = now
	return nil
}

func limitOr(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return limit
}

// ListAllCompanies pages through ListCompanies until the filter is exhausted.
// Limit and Offset on filter are ignored.
func ListAllCompanies(ctx context.Context, s Store, filter CompanyFilter) ([]model.Company, error) {
	filter.Limit = defaultCompanyLimit
	filter.Offset = 0
	var all []model.Company
	for {
		page, err := s.ListCompanies(ctx, filter)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < filter.Limit {
			return all, nil
		}
		filter.Offset += len(page)
	}
}
