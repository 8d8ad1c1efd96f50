package stage

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/topic-enricher/internal/apperr"
	"github.com/sells-group/topic-enricher/internal/gateway"
	"github.com/sells-group/topic-enricher/internal/llm"
	"github.com/sells-group/topic-enricher/internal/model"
	"github.com/sells-group/topic-enricher/internal/scrape"
	"github.com/sells-group/topic-enricher/internal/store"
)

type contactAnswer struct {
	Emails  []string `json:"emails"`
	Source  string   `json:"source"`
	FoundIn string   `json:"found_in"`
	Note    string   `json:"note"`
}

// contactRecord is the stage3 raw payload.
type contactRecord struct {
	Crawl       *scrape.ContactResult `json:"crawl,omitempty"`
	CrawlError  string                `json:"crawl_error,omitempty"`
	Search      *contactAnswer        `json:"search,omitempty"`
	SearchError string                `json:"search_error,omitempty"`
	Citations   []string              `json:"citations,omitempty"`
}

// FindContacts runs Stage 3: each company with a website but no email has
// its site crawled for addresses, then falls back to a web search.
func (p *Processor) FindContacts(ctx context.Context, sessionID string, force bool) (*model.Stage3Result, error) {
	ctx = gateway.WithSessionID(ctx, sessionID)
	log := zap.L().With(zap.String("session_id", sessionID), zap.Int("stage", 3))
	// Results already fetched are saved even after the deadline.
	wctx := context.WithoutCancel(ctx)

	sess, err := p.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	companies, err := store.ListAllCompanies(ctx, p.store, store.CompanyFilter{SessionID: sessionID})
	if err != nil {
		return nil, eris.Wrap(err, "stage 3: load companies")
	}

	res := &model.Stage3Result{}
	var lastErr error
	for i := range companies {
		c := &companies[i]
		if !c.EligibleStage3(force) {
			continue
		}
		if stopped(ctx) {
			res.Partial = true
			break
		}

		email, raw, err := p.contactFor(ctx, sessionID, c)
		if interrupted(ctx, err) {
			res.Partial = true
			break
		}
		res.SitesProcessed++
		if err != nil {
			res.Errors++
			lastErr = err
			log.Warn("stage 3: contact search failed", zap.String("company", c.Name), zap.Error(err))
		}

		upd := store.CompanyUpdate{Stage3Raw: raw}
		if email != "" {
			res.ContactsFound++
			upd.Email = &email
			upd.Stage = model.Advance(c.Stage, c.HasWebsite(), true)
		}
		if _, err := p.store.UpdateCompany(wctx, c.ID, upd); err != nil {
			return nil, eris.Wrapf(err, "stage 3: update company %s", c.ID)
		}
	}

	if !res.Partial {
		if err := p.retryContacts(ctx, sess, force, res); err != nil {
			return nil, err
		}
	}

	log.Info("stage 3: done",
		zap.Int("sites", res.SitesProcessed),
		zap.Int("contacts", res.ContactsFound),
		zap.Int("errors", res.Errors),
		zap.Int("retried", res.Retried),
		zap.Bool("partial", res.Partial),
	)
	if res.SitesProcessed > 0 && res.Errors == res.SitesProcessed && res.RetryFound == 0 {
		return res, apperr.Upstream(lastErr, "stage 3: every contact search failed")
	}
	return res, nil
}

// contactFor crawls the company site and, when that yields nothing, asks the
// search provider. The error is non-nil only when no source answered.
func (p *Processor) contactFor(ctx context.Context, sessionID string, c *model.Company) (string, *model.RawData, error) {
	rec := contactRecord{}
	crawled := false

	if p.contacts != nil {
		cr, err := p.contacts.Find(ctx, c.Website)
		if interrupted(ctx, err) {
			return "", nil, err
		}
		rec.Crawl = cr
		if err != nil {
			rec.CrawlError = err.Error()
		} else {
			crawled = true
		}
		if cr != nil {
			for _, e := range cr.Emails {
				if scrape.ValidEmail(e) {
					return e, rawRecord(cr.Source, model.RawResultFound, rec), nil
				}
			}
		}
	}

	comp, err := p.search.Complete(ctx, llm.Prompt{
		Operation: "stage3",
		SessionID: sessionID,
		System:    searchSystem,
		User:      contactPrompt(c),
		MaxTokens: 1000,
		CacheTTL:  p.cache.TTL("stage3"),
	})
	if err != nil {
		if interrupted(ctx, err) {
			return "", nil, err
		}
		rec.SearchError = err.Error()
		if crawled {
			return "", rawRecord(llm.ServicePerplexity, model.RawResultNotFound, rec), nil
		}
		return "", rawRecord(llm.ServicePerplexity, model.RawResultError, rec), err
	}

	rec.Citations = comp.Citations
	ans, perr := llm.Decode[contactAnswer](comp.Text)
	if perr != nil {
		rec.SearchError = perr.Error()
		return "", rawRecord(llm.ServicePerplexity, model.RawResultNotFound, rec), nil
	}
	rec.Search = ans

	var valid []string
	for _, e := range ans.Emails {
		if e = scrape.NormalizeEmail(e); scrape.ValidEmail(e) {
			valid = append(valid, e)
		}
	}
	if len(valid) == 0 {
		return "", rawRecord(llm.ServicePerplexity, model.RawResultNotFound, rec), nil
	}
	best := scrape.RankEmails(valid, c.Website)[0]
	return best, rawRecord(llm.ServicePerplexity, model.RawResultFound, rec), nil
}
