package stage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/topic-enricher/internal/apperr"
	"github.com/sells-group/topic-enricher/internal/gateway"
	"github.com/sells-group/topic-enricher/internal/llm"
	"github.com/sells-group/topic-enricher/internal/model"
	"github.com/sells-group/topic-enricher/internal/scrape"
	"github.com/sells-group/topic-enricher/internal/store"
)

type candidate struct {
	Name        string `json:"name"`
	Website     string `json:"website"`
	Email       string `json:"email"`
	Description string `json:"brief_description"`
}

// Discover runs Stage 1: every pending query asks the search provider for
// companies, which are filtered, deduplicated and stored at their initial
// stage. With force, already processed queries run again.
func (p *Processor) Discover(ctx context.Context, sessionID string, force bool) (*model.Stage1Result, error) {
	ctx = gateway.WithSessionID(ctx, sessionID)
	log := zap.L().With(zap.String("session_id", sessionID), zap.Int("stage", 1))
	// Results already fetched are saved even after the deadline.
	wctx := context.WithoutCancel(ctx)

	sess, err := p.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	existing, err := store.ListAllCompanies(ctx, p.store, store.CompanyFilter{SessionID: sessionID})
	if err != nil {
		return nil, eris.Wrap(err, "stage 1: load companies")
	}
	seen := make(map[string]bool, len(existing))
	for _, c := range existing {
		seen[model.NameKey(c.Name)] = true
	}

	res := &model.Stage1Result{}
	attempted := 0
	var lastErr error
	for _, q := range sess.Queries {
		if !force && q.Processed() {
			continue
		}
		if stopped(ctx) {
			res.Partial = true
			break
		}
		attempted++

		cands, err := p.findCompanies(ctx, sessionID, q, p.cache.TTL("stage1"))
		if interrupted(ctx, err) {
			res.Partial = true
			break
		}
		if err != nil {
			res.QueriesFailed++
			lastErr = err
			log.Warn("stage 1: query failed", zap.String("query", q.QueryCN), zap.Error(err))
			continue
		}

		batch := p.screen(cands, seen, res)
		for i := range batch {
			batch[i].SessionID = sessionID
			batch[i].QueryID = q.ID
		}
		inserted, err := p.store.InsertCompanies(wctx, batch)
		if err != nil {
			return nil, eris.Wrapf(err, "stage 1: save companies for query %s", q.ID)
		}
		res.DuplicatesSkipped += len(batch) - inserted
		res.CompaniesFound += inserted
		saved := batch
		if inserted < len(batch) {
			if saved, err = p.storedOnly(wctx, batch); err != nil {
				return nil, err
			}
		}
		for _, c := range saved {
			if c.HasWebsite() {
				res.WithWebsite++
			}
			if c.HasEmail() {
				res.WithEmail++
			}
		}
		if err := p.store.MarkQueryProcessed(wctx, q.ID, inserted); err != nil {
			return nil, eris.Wrapf(err, "stage 1: mark query %s", q.ID)
		}
		res.QueriesProcessed++
		log.Info("stage 1: query processed",
			zap.String("query", q.QueryCN),
			zap.Int("candidates", len(cands)),
			zap.Int("inserted", inserted),
		)
	}

	if attempted > 0 && res.QueriesFailed == attempted {
		return res, apperr.Upstream(lastErr, "stage 1: all queries failed")
	}
	return res, nil
}

// storedOnly keeps the companies of batch that InsertCompanies actually
// wrote. Rows skipped on a name conflict never got their generated ID stored.
func (p *Processor) storedOnly(ctx context.Context, batch []model.Company) ([]model.Company, error) {
	out := make([]model.Company, 0, len(batch))
	for _, c := range batch {
		_, err := p.store.GetCompany(ctx, c.ID)
		if apperr.Is(err, apperr.KindNotFound) {
			continue
		}
		if err != nil {
			return nil, eris.Wrapf(err, "stage 1: check company %q", c.Name)
		}
		out = append(out, c)
	}
	return out, nil
}

// Probe runs a single ad-hoc query without the cache and without storing
// anything.
func (p *Processor) Probe(ctx context.Context, query string) ([]model.Company, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.Validation("query is required")
	}
	cands, err := p.findCompanies(ctx, "", model.Query{QueryCN: query, QueryRU: query}, 0)
	if err != nil {
		return nil, err
	}
	out := p.screen(cands, map[string]bool{}, &model.Stage1Result{})
	for i := range out {
		out[i].Stage = model.InitialStage(out[i].HasWebsite(), out[i].HasEmail())
	}
	return out, nil
}

// findCompanies asks for companies and retries once with a broader prompt
// when the answer falls short of the minimum. The retry's failure is not
// fatal when the first answer produced something.
func (p *Processor) findCompanies(ctx context.Context, sessionID string, q model.Query, ttl time.Duration) ([]candidate, error) {
	first, err := p.askCompanies(ctx, llm.Prompt{
		Operation: "stage1",
		SessionID: sessionID,
		System:    searchSystem,
		User:      discoveryPrompt(q, p.stages.MinCompanies, p.stages.MaxCompanies),
		MaxTokens: 4000,
		CacheTTL:  ttl,
	})
	if err != nil && !isParseError(err) {
		return nil, err
	}
	if len(first) >= p.stages.MinCompanies {
		return first, nil
	}

	more, retryErr := p.askCompanies(ctx, llm.Prompt{
		Operation: "stage1_retry",
		SessionID: sessionID,
		System:    searchSystem,
		User:      discoveryRetryPrompt(q),
		MaxTokens: 4000,
		CacheTTL:  ttl,
	})
	all := append(first, more...)
	if len(all) == 0 {
		if retryErr != nil {
			return nil, retryErr
		}
		if err != nil {
			return nil, err
		}
	}
	return all, nil
}

type parseError struct{ err error }

func (e *parseError) Error() string { return e.err.Error() }
func (e *parseError) Unwrap() error { return e.err }

func isParseError(err error) bool {
	var pe *parseError
	return errors.As(err, &pe)
}

func (p *Processor) askCompanies(ctx context.Context, prompt llm.Prompt) ([]candidate, error) {
	c, err := p.search.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	payload, err := llm.Decode[struct {
		Companies []candidate `json:"companies"`
	}](c.Text)
	if err != nil {
		return nil, &parseError{err: eris.Wrap(err, "stage 1: parse companies")}
	}
	return payload.Companies, nil
}

// screen drops nameless and duplicate candidates, strips marketplace links,
// validates emails and caps the batch at the configured maximum. Counters
// land in res.
func (p *Processor) screen(cands []candidate, seen map[string]bool, res *model.Stage1Result) []model.Company {
	var out []model.Company
	for _, c := range cands {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		key := model.NameKey(name)
		if seen[key] {
			res.DuplicatesSkipped++
			continue
		}
		if len(out) >= p.stages.MaxCompanies {
			break
		}
		seen[key] = true

		website, dropped := p.markets.Clean(c.Website)
		if dropped {
			res.MarketplaceFiltered++
		}
		email := scrape.NormalizeEmail(c.Email)
		if !scrape.ValidEmail(email) {
			email = ""
		}
		out = append(out, model.Company{
			Name:        name,
			Website:     website,
			Email:       email,
			Description: strings.TrimSpace(c.Description),
		})
	}
	return out
}
