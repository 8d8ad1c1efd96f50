package stage

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/topic-enricher/internal/apperr"
	"github.com/sells-group/topic-enricher/internal/gateway"
	"github.com/sells-group/topic-enricher/internal/llm"
	"github.com/sells-group/topic-enricher/internal/model"
	"github.com/sells-group/topic-enricher/internal/scrape"
	"github.com/sells-group/topic-enricher/internal/store"
)

var urlPattern = regexp.MustCompile(`https?://[^\s"'<>()\[\]{}]+`)

type websiteAnswer struct {
	Website string `json:"website"`
	Email   string `json:"email"`
	Source  string `json:"source"`
}

// searchRecord is what gets kept as the raw audit payload of a search call.
type searchRecord struct {
	Answer    string          `json:"answer,omitempty"`
	Citations []string        `json:"citations,omitempty"`
	Source    string          `json:"source,omitempty"`
	Error     string          `json:"error,omitempty"`
	Response  json.RawMessage `json:"response,omitempty"`
}

// FindWebsites runs Stage 2: each eligible company is searched for its
// official website. Every attempt leaves a stage2 raw record, errors
// included, in the same write that sets the website.
func (p *Processor) FindWebsites(ctx context.Context, sessionID string, force bool) (*model.Stage2Result, error) {
	ctx = gateway.WithSessionID(ctx, sessionID)
	log := zap.L().With(zap.String("session_id", sessionID), zap.Int("stage", 2))
	// Results already fetched are saved even after the deadline.
	wctx := context.WithoutCancel(ctx)

	sess, err := p.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	companies, err := store.ListAllCompanies(ctx, p.store, store.CompanyFilter{SessionID: sessionID})
	if err != nil {
		return nil, eris.Wrap(err, "stage 2: load companies")
	}

	res := &model.Stage2Result{}
	var lastErr error
	for i := range companies {
		c := &companies[i]
		if !c.EligibleStage2(force) {
			continue
		}
		if stopped(ctx) {
			res.Partial = true
			break
		}

		comp, err := p.search.Complete(ctx, llm.Prompt{
			Operation: "stage2",
			SessionID: sessionID,
			System:    searchSystem,
			User:      websitePrompt(c),
			MaxTokens: 1000,
			CacheTTL:  p.cache.TTL("stage2"),
		})
		if interrupted(ctx, err) {
			res.Partial = true
			break
		}
		res.Total++

		upd := store.CompanyUpdate{}
		if err != nil {
			res.Errors++
			lastErr = err
			upd.Stage2Raw = rawRecord(llm.ServicePerplexity, model.RawResultError, searchRecord{Error: err.Error()})
			log.Warn("stage 2: search failed", zap.String("company", c.Name), zap.Error(err))
		} else {
			ans := p.parseWebsiteAnswer(comp)
			rec := searchRecord{Answer: comp.Text, Citations: comp.Citations, Source: ans.Source, Response: comp.Raw}
			if ans.Website != "" {
				res.Found++
				upd.Website = &ans.Website
				upd.Stage2Raw = rawRecord(llm.ServicePerplexity, model.RawResultFound, rec)
			} else {
				res.NotFound++
				upd.Stage2Raw = rawRecord(llm.ServicePerplexity, model.RawResultNotFound, rec)
			}
			if ans.Email != "" && !c.HasEmail() {
				upd.Email = &ans.Email
			}
			upd.Stage = model.Advance(c.Stage, ans.Website != "", c.HasEmail() || upd.Email != nil)
		}

		if _, err := p.store.UpdateCompany(wctx, c.ID, upd); err != nil {
			return nil, eris.Wrapf(err, "stage 2: update company %s", c.ID)
		}
	}

	if !res.Partial {
		if err := p.retryWebsites(ctx, sess, force, res); err != nil {
			return nil, err
		}
	}

	log.Info("stage 2: done",
		zap.Int("total", res.Total),
		zap.Int("found", res.Found),
		zap.Int("errors", res.Errors),
		zap.Int("retried", res.Retried),
		zap.Bool("partial", res.Partial),
	)
	if res.Total > 0 && res.Errors == res.Total && res.RetryFound == 0 {
		return res, apperr.Upstream(lastErr, "stage 2: every website search failed")
	}
	return res, nil
}

// parseWebsiteAnswer reads the JSON answer, falling back to the first
// non-marketplace URL in the text and then in the citations.
func (p *Processor) parseWebsiteAnswer(c *llm.Completion) websiteAnswer {
	var ans websiteAnswer
	if parsed, err := llm.Decode[websiteAnswer](c.Text); err == nil {
		ans = *parsed
		ans.Website, _ = p.markets.Clean(ans.Website)
		if ans.Website != "" && !strings.Contains(ans.Website, ".") {
			ans.Website = ""
		}
	} else {
		ans.Website = p.firstSiteURL(urlPattern.FindAllString(c.Text, -1))
		if ans.Website == "" {
			ans.Website = p.firstSiteURL(c.Citations)
		}
		if ans.Website != "" {
			ans.Source = "text"
		}
	}
	ans.Email = scrape.NormalizeEmail(ans.Email)
	if !scrape.ValidEmail(ans.Email) {
		ans.Email = ""
	}
	ans.Source = strings.TrimSpace(ans.Source)
	return ans
}

func (p *Processor) firstSiteURL(urls []string) string {
	for _, u := range urls {
		u = strings.TrimRight(strings.TrimSpace(u), ".,;:)")
		if u == "" || p.markets.IsMarketplace(u) {
			continue
		}
		return u
	}
	return ""
}

func rawRecord(source, result string, payload any) *model.RawData {
	raw := &model.RawData{Source: source, Result: result, Timestamp: now()}
	if b, err := json.Marshal(payload); err == nil {
		raw.FullResponse = b
	}
	return raw
}
