package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/topic-enricher/internal/apperr"
	"github.com/sells-group/topic-enricher/internal/db"
	"github.com/sells-group/topic-enricher/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id           TEXT PRIMARY KEY,
	topic        TEXT NOT NULL,
	target_count INTEGER NOT NULL DEFAULT 0,
	status       TEXT NOT NULL DEFAULT 'created',
	last_stage   INTEGER NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS session_queries (
	id              TEXT PRIMARY KEY,
	session_id      TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	position        INTEGER NOT NULL,
	query_cn        TEXT NOT NULL,
	query_ru        TEXT NOT NULL,
	relevance       INTEGER NOT NULL DEFAULT 0,
	processed_at    TIMESTAMPTZ,
	companies_found INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS companies (
	id               TEXT PRIMARY KEY,
	session_id       TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	query_id         TEXT NOT NULL DEFAULT '',
	name             TEXT NOT NULL,
	name_key         TEXT NOT NULL,
	website          TEXT NOT NULL DEFAULT '',
	email            TEXT NOT NULL DEFAULT '',
	description      TEXT NOT NULL DEFAULT '',
	stage            TEXT NOT NULL,
	stage_rank       INTEGER NOT NULL,
	stage2_raw       JSONB,
	stage3_raw       JSONB,
	validation       JSONB,
	validation_score INTEGER,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (session_id, name_key)
);

CREATE TABLE IF NOT EXISTS stage_runs (
	id            TEXT PRIMARY KEY,
	session_id    TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	stage         INTEGER NOT NULL,
	status        TEXT NOT NULL,
	forced        BOOLEAN NOT NULL DEFAULT false,
	started_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at  TIMESTAMPTZ,
	duration_secs DOUBLE PRECISION NOT NULL DEFAULT 0,
	result        JSONB,
	error         TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS api_calls (
	id            TEXT PRIMARY KEY,
	session_id    TEXT NOT NULL DEFAULT '',
	service       TEXT NOT NULL,
	operation     TEXT NOT NULL,
	model         TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	http_status   INTEGER NOT NULL DEFAULT 0,
	duration_ms   BIGINT NOT NULL DEFAULT 0,
	input_tokens  BIGINT NOT NULL DEFAULT 0,
	output_tokens BIGINT NOT NULL DEFAULT 0,
	from_cache    BOOLEAN NOT NULL DEFAULT false,
	error         TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS response_cache (
	cache_key  TEXT PRIMARY KEY,
	data       BYTEA NOT NULL,
	cached_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_session_queries_session ON session_queries(session_id, position);
CREATE INDEX IF NOT EXISTS idx_companies_session_stage ON companies(session_id, stage);
CREATE INDEX IF NOT EXISTS idx_stage_runs_session ON stage_runs(session_id);
CREATE INDEX IF NOT EXISTS idx_api_calls_session ON api_calls(session_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_response_cache_expires_at ON response_cache(expires_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Sessions ---

func (s *PostgresStore) CreateSession(ctx context.Context, topic string, targetCount int) (*model.Session, error) {
	sess := &model.Session{
		ID:          uuid.New().String(),
		Topic:       topic,
		TargetCount: targetCount,
		Status:      model.SessionStatusCreated,
		CreatedAt:   time.Now().UTC(),
	}
	sess.UpdatedAt = sess.CreatedAt

	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (id, topic, target_count, status, last_stage, created_at, updated_at) VALUES ($1, $2, $3, $4, 0, $5, $6)`,
		sess.ID, sess.Topic, sess.TargetCount, string(sess.Status), sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert session")
	}
	return sess, nil
}

func (s *PostgresStore) SaveQueries(ctx context.Context, sessionID string, queries []model.Query) ([]model.Query, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin save queries")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	out := make([]model.Query, len(queries))
	for i, q := range queries {
		q.ID = uuid.New().String()
		q.SessionID = sessionID
		q.Position = i + 1
		if _, err := tx.Exec(ctx,
			`INSERT INTO session_queries (id, session_id, position, query_cn, query_ru, relevance) VALUES ($1, $2, $3, $4, $5, $6)`,
			q.ID, q.SessionID, q.Position, q.QueryCN, q.QueryRU, q.Relevance,
		); err != nil {
			return nil, eris.Wrapf(err, "postgres: insert query %d for session %s", q.Position, sessionID)
		}
		out[i] = q
	}
	return out, eris.Wrap(tx.Commit(ctx), "postgres: commit save queries")
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	sess, err := scanSession(s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("session", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get session %s", id)
	}
	if sess.Queries, err = s.ListQueries(ctx, id); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, limitOr(filter.Limit, defaultSessionLimit))
	argIdx++
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sessions")
	}
	var sessions []model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgres: scan session")
		}
		sessions = append(sessions, *sess)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list sessions iterate")
	}

	for i := range sessions {
		if sessions[i].Queries, err = s.ListQueries(ctx, sessions[i].ID); err != nil {
			return nil, err
		}
	}
	return sessions, nil
}

func (s *PostgresStore) UpdateSessionStatus(ctx context.Context, id string, status model.SessionStatus, lastStage int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET status = $1, last_stage = GREATEST(last_stage, $2), updated_at = $3 WHERE id = $4`,
		string(status), lastStage, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update session status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("session", id)
	}
	return nil
}

func (s *PostgresStore) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin delete session")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM api_calls WHERE session_id = $1`, id); err != nil {
		return eris.Wrapf(err, "postgres: delete api calls for session %s", id)
	}
	// Queries, companies and stage runs cascade.
	tag, err := tx.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete session %s", id)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("session", id)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit delete session")
}

func (s *PostgresStore) ListQueries(ctx context.Context, sessionID string) ([]model.Query, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+queryColumns+` FROM session_queries WHERE session_id = $1 ORDER BY position`, sessionID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list queries for session %s", sessionID)
	}
	defer rows.Close()

	var queries []model.Query
	for rows.Next() {
		q, err := scanQuery(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan query")
		}
		queries = append(queries, *q)
	}
	return queries, eris.Wrap(rows.Err(), "postgres: list queries iterate")
}

func (s *PostgresStore) MarkQueryProcessed(ctx context.Context, queryID string, companiesFound int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE session_queries SET processed_at = $1, companies_found = $2 WHERE id = $3`,
		time.Now().UTC(), companiesFound, queryID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark query processed %s", queryID)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("query", queryID)
	}
	return nil
}

// --- Companies ---

var companyInsertColumns = []string{
	"id", "session_id", "query_id", "name", "name_key", "website", "email", "description",
	"stage", "stage_rank", "stage2_raw", "created_at", "updated_at",
}

func (s *PostgresStore) InsertCompanies(ctx context.Context, companies []model.Company) (int, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(companies))
	for i := range companies {
		c := &companies[i]
		if err := prepareCompany(c, uuid.New().String(), now); err != nil {
			return 0, err
		}
		stage2, err := encodeJSON(c.Stage2Raw)
		if err != nil {
			return 0, eris.Wrap(err, "postgres: encode stage2_raw")
		}
		rows = append(rows, []any{
			c.ID, c.SessionID, c.QueryID, c.Name, c.NameKey, c.Website, c.Email, c.Description,
			string(c.Stage), c.Stage.Rank(), stage2, c.CreatedAt, c.UpdatedAt,
		})
	}

	n, err := db.BulkInsert(ctx, s.pool, db.BulkConfig{
		Table:        "companies",
		Columns:      companyInsertColumns,
		ConflictKeys: []string{"session_id", "name_key"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert companies")
	}
	return int(n), nil
}

func (s *PostgresStore) GetCompany(ctx context.Context, id string) (*model.Company, error) {
	c, err := scanCompany(s.pool.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("company", id)
	}
	return c, eris.Wrapf(err, "postgres: get company %s", id)
}

func pgCompanyWhere(filter CompanyFilter) (string, []any, int) {
	where := ` WHERE true`
	args := []any{}
	argIdx := 1
	if filter.SessionID != "" {
		where += fmt.Sprintf(` AND session_id = $%d`, argIdx)
		args = append(args, filter.SessionID)
		argIdx++
	}
	if filter.Stage != "" {
		where += fmt.Sprintf(` AND stage = $%d`, argIdx)
		args = append(args, string(filter.Stage))
		argIdx++
	}
	return where, args, argIdx
}

func (s *PostgresStore) ListCompanies(ctx context.Context, filter CompanyFilter) ([]model.Company, error) {
	where, args, argIdx := pgCompanyWhere(filter)
	query := `SELECT ` + companyColumns + ` FROM companies` + where +
		fmt.Sprintf(` ORDER BY created_at, id LIMIT $%d`, argIdx)
	args = append(args, limitOr(filter.Limit, defaultCompanyLimit))
	argIdx++
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list companies")
	}
	defer rows.Close()

	var companies []model.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan company")
		}
		companies = append(companies, *c)
	}
	return companies, eris.Wrap(rows.Err(), "postgres: list companies iterate")
}

func (s *PostgresStore) CountCompanies(ctx context.Context, filter CompanyFilter) (int, error) {
	where, args, _ := pgCompanyWhere(filter)
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM companies`+where, args...).Scan(&n)
	return n, eris.Wrap(err, "postgres: count companies")
}

func (s *PostgresStore) CountByStage(ctx context.Context, sessionID string) (model.StageCounts, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT stage, COUNT(*) FROM companies WHERE session_id = $1 GROUP BY stage`, sessionID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: count by stage for session %s", sessionID)
	}
	defer rows.Close()

	counts := model.StageCounts{}
	for rows.Next() {
		var stage string
		var n int
		if err := rows.Scan(&stage, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan stage count")
		}
		counts[model.Stage(stage)] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count by stage iterate")
}

func (s *PostgresStore) UpdateCompany(ctx context.Context, id string, upd CompanyUpdate) (*model.Company, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin update company")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	c, err := scanCompany(tx.QueryRow(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("company", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load company %s", id)
	}

	score, err := applyUpdate(c, upd)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: update company %s", id)
	}
	stage2, err := encodeJSON(c.Stage2Raw)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: encode stage2_raw")
	}
	stage3, err := encodeJSON(c.Stage3Raw)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: encode stage3_raw")
	}
	validation, err := encodeJSON(c.Validation)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: encode validation")
	}
	c.UpdatedAt = time.Now().UTC()

	if _, err := tx.Exec(ctx,
		`UPDATE companies SET website = $1, email = $2, description = $3, stage = $4, stage_rank = $5,
			stage2_raw = $6, stage3_raw = $7, validation = $8, validation_score = $9, updated_at = $10
		 WHERE id = $11`,
		c.Website, c.Email, c.Description, string(c.Stage), c.Stage.Rank(),
		stage2, stage3, validation, score, c.UpdatedAt, id,
	); err != nil {
		return nil, eris.Wrapf(err, "postgres: update company %s", id)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit update company")
	}
	return c, nil
}

// --- Stage runs ---

func (s *PostgresStore) CreateStageRun(ctx context.Context, sessionID string, stage int, force bool) (*model.StageRun, error) {
	run := &model.StageRun{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Stage:     stage,
		Status:    model.RunStatusRunning,
		Force:     force,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO stage_runs (id, session_id, stage, status, forced, started_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, run.SessionID, run.Stage, string(run.Status), run.Force, run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert stage run for session %s", sessionID)
	}
	return run, nil
}

func (s *PostgresStore) CompleteStageRun(ctx context.Context, run *model.StageRun) error {
	var result []byte
	if len(run.Result) > 0 {
		result = run.Result
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE stage_runs SET status = $1, completed_at = $2, duration_secs = $3, result = $4, error = $5 WHERE id = $6`,
		string(run.Status), run.CompletedAt, run.DurationSecs, result, run.Error, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete stage run %s", run.ID)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("stage run", run.ID)
	}
	return nil
}

func (s *PostgresStore) ListStageRuns(ctx context.Context, sessionID string) ([]model.StageRun, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+runColumns+` FROM stage_runs WHERE session_id = $1 ORDER BY started_at`, sessionID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list stage runs for session %s", sessionID)
	}
	defer rows.Close()

	var runs []model.StageRun
	for rows.Next() {
		r, err := scanStageRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan stage run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list stage runs iterate")
}

// --- API call log ---

func (s *PostgresStore) RecordAPICall(ctx context.Context, call *model.APICall) error {
	if call.ID == "" {
		call.ID = uuid.New().String()
	}
	if call.CreatedAt.IsZero() {
		call.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_calls (`+callColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		call.ID, call.SessionID, call.Service, call.Operation, call.Model, call.Status, call.HTTPStatus,
		call.DurationMs, call.InputTokens, call.OutputTokens, call.FromCache, call.Error, call.CreatedAt,
	)
	return eris.Wrap(err, "postgres: record api call")
}

func (s *PostgresStore) ListAPICalls(ctx context.Context, sessionID string, limit int) ([]model.APICall, error) {
	query := `SELECT ` + callColumns + ` FROM api_calls`
	args := []any{}
	argIdx := 1
	if sessionID != "" {
		query += fmt.Sprintf(` WHERE session_id = $%d`, argIdx)
		args = append(args, sessionID)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, limitOr(limit, defaultCallLimit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list api calls")
	}
	defer rows.Close()

	var calls []model.APICall
	for rows.Next() {
		c, err := scanAPICall(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan api call")
		}
		calls = append(calls, *c)
	}
	return calls, eris.Wrap(rows.Err(), "postgres: list api calls iterate")
}

// --- Response cache ---

func (s *PostgresStore) GetCachedResponse(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM response_cache WHERE cache_key = $1 AND expires_at > now()`, key,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get cached response")
	}
	return data, nil
}

func (s *PostgresStore) SetCachedResponse(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO response_cache (cache_key, data, cached_at, expires_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (cache_key) DO UPDATE SET data = $2, cached_at = $3, expires_at = $4`,
		key, data, now, now.Add(ttl),
	)
	return eris.Wrap(err, "postgres: set cached response")
}

func (s *PostgresStore) DeleteExpiredResponses(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM response_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired responses")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) ClearAll(ctx context.Context) ([]string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin clear all")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, table := range clearOrder {
		if _, err := tx.Exec(ctx, `DELETE FROM `+pgx.Identifier{table}.Sanitize()); err != nil {
			return nil, eris.Wrapf(err, "postgres: clear %s", table)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit clear all")
	}
	return append([]string(nil), clearOrder...), nil
}
