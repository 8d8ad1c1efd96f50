package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/topic-enricher/internal/apperr"
	"github.com/sells-group/topic-enricher/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One connection: SQLite has a single writer and UpdateCompany holds a
	// read-then-write transaction.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id           TEXT PRIMARY KEY,
	topic        TEXT NOT NULL,
	target_count INTEGER NOT NULL DEFAULT 0,
	status       TEXT NOT NULL DEFAULT 'created',
	last_stage   INTEGER NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS session_queries (
	id              TEXT PRIMARY KEY,
	session_id      TEXT NOT NULL REFERENCES sessions(id),
	position        INTEGER NOT NULL,
	query_cn        TEXT NOT NULL,
	query_ru        TEXT NOT NULL,
	relevance       INTEGER NOT NULL DEFAULT 0,
	processed_at    DATETIME,
	companies_found INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS companies (
	id               TEXT PRIMARY KEY,
	session_id       TEXT NOT NULL REFERENCES sessions(id),
	query_id         TEXT NOT NULL DEFAULT '',
	name             TEXT NOT NULL,
	name_key         TEXT NOT NULL,
	website          TEXT NOT NULL DEFAULT '',
	email            TEXT NOT NULL DEFAULT '',
	description      TEXT NOT NULL DEFAULT '',
	stage            TEXT NOT NULL,
	stage_rank       INTEGER NOT NULL,
	stage2_raw       TEXT,
	stage3_raw       TEXT,
	validation       TEXT,
	validation_score INTEGER,
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL,
	UNIQUE (session_id, name_key)
);

CREATE TABLE IF NOT EXISTS stage_runs (
	id            TEXT PRIMARY KEY,
	session_id    TEXT NOT NULL,
	stage         INTEGER NOT NULL,
	status        TEXT NOT NULL,
	forced        INTEGER NOT NULL DEFAULT 0,
	started_at    DATETIME NOT NULL,
	completed_at  DATETIME,
	duration_secs REAL NOT NULL DEFAULT 0,
	result        TEXT,
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
	duration_ms   INTEGER NOT NULL DEFAULT 0,
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	from_cache    INTEGER NOT NULL DEFAULT 0,
	error         TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS response_cache (
	cache_key  TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	cached_at  INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at);
CREATE INDEX IF NOT EXISTS idx_session_queries_session ON session_queries(session_id, position);
CREATE INDEX IF NOT EXISTS idx_companies_session_stage ON companies(session_id, stage);
CREATE INDEX IF NOT EXISTS idx_stage_runs_session ON stage_runs(session_id);
CREATE INDEX IF NOT EXISTS idx_api_calls_session ON api_calls(session_id);
CREATE INDEX IF NOT EXISTS idx_response_cache_expires_at ON response_cache(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Sessions ---

func (s *SQLiteStore) CreateSession(ctx context.Context, topic string, targetCount int) (*model.Session, error) {
	sess := &model.Session{
		ID:          uuid.New().String(),
		Topic:       topic,
		TargetCount: targetCount,
		Status:      model.SessionStatusCreated,
		CreatedAt:   time.Now().UTC(),
	}
	sess.UpdatedAt = sess.CreatedAt

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, topic, target_count, status, last_stage, created_at, updated_at) VALUES (?, ?, ?, ?, 0, ?, ?)`,
		sess.ID, sess.Topic, sess.TargetCount, string(sess.Status), sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert session")
	}
	return sess, nil
}

func (s *SQLiteStore) SaveQueries(ctx context.Context, sessionID string, queries []model.Query) ([]model.Query, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin save queries")
	}
	defer tx.Rollback() //nolint:errcheck

	out := make([]model.Query, len(queries))
	for i, q := range queries {
		q.ID = uuid.New().String()
		q.SessionID = sessionID
		q.Position = i + 1
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO session_queries (id, session_id, position, query_cn, query_ru, relevance) VALUES (?, ?, ?, ?, ?, ?)`,
			q.ID, q.SessionID, q.Position, q.QueryCN, q.QueryRU, q.Relevance,
		); err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert query %d for session %s", q.Position, sessionID)
		}
		out[i] = q
	}
	return out, eris.Wrap(tx.Commit(), "sqlite: commit save queries")
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("session", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get session %s", id)
	}
	if sess.Queries, err = s.ListQueries(ctx, id); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limitOr(filter.Limit, defaultSessionLimit))
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	var sessions []model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "sqlite: scan session")
		}
		sessions = append(sessions, *sess)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions iterate")
	}

	// Queries are loaded after the cursor closes; the pool has one connection.
	for i := range sessions {
		if sessions[i].Queries, err = s.ListQueries(ctx, sessions[i].ID); err != nil {
			return nil, err
		}
	}
	return sessions, nil
}

func (s *SQLiteStore) UpdateSessionStatus(ctx context.Context, id string, status model.SessionStatus, lastStage int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, last_stage = MAX(last_stage, ?), updated_at = ? WHERE id = ?`,
		string(status), lastStage, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update session status %s", id)
	}
	return checkRowsAffected(res, "session", id)
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin delete session")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, table := range []string{"stage_runs", "api_calls", "companies", "session_queries"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE session_id = ?`, id); err != nil {
			return eris.Wrapf(err, "sqlite: delete %s for session %s", table, id)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete session %s", id)
	}
	if err := checkRowsAffected(res, "session", id); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit delete session")
}

func (s *SQLiteStore) ListQueries(ctx context.Context, sessionID string) ([]model.Query, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+queryColumns+` FROM session_queries WHERE session_id = ? ORDER BY position`, sessionID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list queries for session %s", sessionID)
	}
	defer rows.Close()

	var queries []model.Query
	for rows.Next() {
		q, err := scanQuery(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan query")
		}
		queries = append(queries, *q)
	}
	return queries, eris.Wrap(rows.Err(), "sqlite: list queries iterate")
}

func (s *SQLiteStore) MarkQueryProcessed(ctx context.Context, queryID string, companiesFound int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE session_queries SET processed_at = ?, companies_found = ? WHERE id = ?`,
		time.Now().UTC(), companiesFound, queryID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark query processed %s", queryID)
	}
	return checkRowsAffected(res, "query", queryID)
}

// --- Companies ---

func (s *SQLiteStore) InsertCompanies(ctx context.Context, companies []model.Company) (int, error) {
	if len(companies) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin insert companies")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	inserted := 0
	for i := range companies {
		c := &companies[i]
		if err := prepareCompany(c, uuid.New().String(), now); err != nil {
			return 0, err
		}
		stage2, err := encodeJSON(c.Stage2Raw)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: encode stage2_raw")
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO companies (id, session_id, query_id, name, name_key, website, email, description,
				stage, stage_rank, stage2_raw, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (session_id, name_key) DO NOTHING`,
			c.ID, c.SessionID, c.QueryID, c.Name, c.NameKey, c.Website, c.Email, c.Description,
			string(c.Stage), c.Stage.Rank(), nullText(stage2), c.CreatedAt, c.UpdatedAt,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert company %q", c.Name)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	return inserted, eris.Wrap(tx.Commit(), "sqlite: commit insert companies")
}

func (s *SQLiteStore) GetCompany(ctx context.Context, id string) (*model.Company, error) {
	c, err := scanCompany(s.db.QueryRowContext(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("company", id)
	}
	return c, eris.Wrapf(err, "sqlite: get company %s", id)
}

func companyWhere(filter CompanyFilter) (string, []any) {
	where := ` WHERE 1=1`
	var args []any
	if filter.SessionID != "" {
		where += ` AND session_id = ?`
		args = append(args, filter.SessionID)
	}
	if filter.Stage != "" {
		where += ` AND stage = ?`
		args = append(args, string(filter.Stage))
	}
	return where, args
}

func (s *SQLiteStore) ListCompanies(ctx context.Context, filter CompanyFilter) ([]model.Company, error) {
	where, args := companyWhere(filter)
	query := `SELECT ` + companyColumns + ` FROM companies` + where + ` ORDER BY created_at, rowid LIMIT ?`
	args = append(args, limitOr(filter.Limit, defaultCompanyLimit))
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list companies")
	}
	defer rows.Close()

	var companies []model.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan company")
		}
		companies = append(companies, *c)
	}
	return companies, eris.Wrap(rows.Err(), "sqlite: list companies iterate")
}

func (s *SQLiteStore) CountCompanies(ctx context.Context, filter CompanyFilter) (int, error) {
	where, args := companyWhere(filter)
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM companies`+where, args...).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count companies")
}

func (s *SQLiteStore) CountByStage(ctx context.Context, sessionID string) (model.StageCounts, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stage, COUNT(*) FROM companies WHERE session_id = ? GROUP BY stage`, sessionID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: count by stage for session %s", sessionID)
	}
	defer rows.Close()

	counts := model.StageCounts{}
	for rows.Next() {
		var stage string
		var n int
		if err := rows.Scan(&stage, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan stage count")
		}
		counts[model.Stage(stage)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: count by stage iterate")
}

func (s *SQLiteStore) UpdateCompany(ctx context.Context, id string, upd CompanyUpdate) (*model.Company, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin update company")
	}
	defer tx.Rollback() //nolint:errcheck

	c, err := scanCompany(tx.QueryRowContext(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("company", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load company %s", id)
	}

	score, err := applyUpdate(c, upd)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update company %s", id)
	}
	stage2, err := encodeJSON(c.Stage2Raw)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: encode stage2_raw")
	}
	stage3, err := encodeJSON(c.Stage3Raw)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: encode stage3_raw")
	}
	validation, err := encodeJSON(c.Validation)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: encode validation")
	}
	c.UpdatedAt = time.Now().UTC()

	if _, err := tx.ExecContext(ctx,
		`UPDATE companies SET website = ?, email = ?, description = ?, stage = ?, stage_rank = ?,
			stage2_raw = ?, stage3_raw = ?, validation = ?, validation_score = ?, updated_at = ?
		 WHERE id = ?`,
		c.Website, c.Email, c.Description, string(c.Stage), c.Stage.Rank(),
		nullText(stage2), nullText(stage3), nullText(validation), score, c.UpdatedAt, id,
	); err != nil {
		return nil, eris.Wrapf(err, "sqlite: update company %s", id)
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit update company")
	}
	return c, nil
}

// --- Stage runs ---

func (s *SQLiteStore) CreateStageRun(ctx context.Context, sessionID string, stage int, force bool) (*model.StageRun, error) {
	run := &model.StageRun{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Stage:     stage,
		Status:    model.RunStatusRunning,
		Force:     force,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stage_runs (id, session_id, stage, status, forced, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.SessionID, run.Stage, string(run.Status), run.Force, run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert stage run for session %s", sessionID)
	}
	return run, nil
}

func (s *SQLiteStore) CompleteStageRun(ctx context.Context, run *model.StageRun) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE stage_runs SET status = ?, completed_at = ?, duration_secs = ?, result = ?, error = ? WHERE id = ?`,
		string(run.Status), run.CompletedAt, run.DurationSecs, nullText(run.Result), run.Error, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete stage run %s", run.ID)
	}
	return checkRowsAffected(res, "stage run", run.ID)
}

func (s *SQLiteStore) ListStageRuns(ctx context.Context, sessionID string) ([]model.StageRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM stage_runs WHERE session_id = ? ORDER BY started_at, rowid`, sessionID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list stage runs for session %s", sessionID)
	}
	defer rows.Close()

	var runs []model.StageRun
	for rows.Next() {
		r, err := scanStageRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan stage run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list stage runs iterate")
}

// --- API call log ---

func (s *SQLiteStore) RecordAPICall(ctx context.Context, call *model.APICall) error {
	if call.ID == "" {
		call.ID = uuid.New().String()
	}
	if call.CreatedAt.IsZero() {
		call.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO api_calls (`+callColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		call.ID, call.SessionID, call.Service, call.Operation, call.Model, call.Status, call.HTTPStatus,
		call.DurationMs, call.InputTokens, call.OutputTokens, call.FromCache, call.Error, call.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: record api call")
}

func (s *SQLiteStore) ListAPICalls(ctx context.Context, sessionID string, limit int) ([]model.APICall, error) {
	query := `SELECT ` + callColumns + ` FROM api_calls`
	var args []any
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limitOr(limit, defaultCallLimit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list api calls")
	}
	defer rows.Close()

	var calls []model.APICall
	for rows.Next() {
		c, err := scanAPICall(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan api call")
		}
		calls = append(calls, *c)
	}
	return calls, eris.Wrap(rows.Err(), "sqlite: list api calls iterate")
}

// --- Response cache ---

func (s *SQLiteStore) GetCachedResponse(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM response_cache WHERE cache_key = ? AND expires_at > ?`,
		key, time.Now().UnixNano(),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cached response")
	}
	return data, nil
}

func (s *SQLiteStore) SetCachedResponse(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO response_cache (cache_key, data, cached_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (cache_key) DO UPDATE SET data = excluded.data, cached_at = excluded.cached_at, expires_at = excluded.expires_at`,
		key, data, now.UnixNano(), now.Add(ttl).UnixNano(),
	)
	return eris.Wrap(err, "sqlite: set cached response")
}

func (s *SQLiteStore) DeleteExpiredResponses(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM response_cache WHERE expires_at <= ?`, time.Now().UnixNano())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired responses")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) ClearAll(ctx context.Context) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin clear all")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, table := range clearOrder {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return nil, eris.Wrapf(err, "sqlite: clear %s", table)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit clear all")
	}
	return append([]string(nil), clearOrder...), nil
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return apperr.NotFound(entity, id)
	}
	return nil
}

// nullText binds JSON as TEXT, or NULL when empty.
func nullText(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
