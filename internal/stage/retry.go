package stage

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/topic-enricher/internal/llm"
	"github.com/sells-group/topic-enricher/internal/model"
	"github.com/sells-group/topic-enricher/internal/scrape"
	"github.com/sells-group/topic-enricher/internal/store"
)

// Hosts and paths the fallback provider tends to offer in place of a
// corporate site. Marketplaces are rejected by the marketplace filter.
var (
	retryBlockedHosts = []string{
		"linkedin.com", "facebook.com", "twitter.com", "weibo.com", "wechat.com", "qq.com",
		"amazon.", "ebay.", "aliexpress.", "taobao.com", "tmall.com", "jd.com",
	}
	retryBlockedPaths = []string{"/blog/", "/news/", "/article/", "/post/", "blog.", "news.", "press."}
)

type retryContactAnswer struct {
	Email      string `json:"email"`
	Source     string `json:"source"`
	Confidence string `json:"confidence"`
}

// retryRecord is the raw payload written by a fallback pass.
type retryRecord struct {
	Attempts   int    `json:"attempts"`
	Answer     string `json:"answer,omitempty"`
	Source     string `json:"source,omitempty"`
	Confidence string `json:"confidence,omitempty"`
	Error      string `json:"error,omitempty"`
}

// retrySource tags raw data written by the fallback pass, so a company is
// retried once unless forced.
func (p *Processor) retrySource() string { return p.fallbackID + "_retry" }

func (p *Processor) retryEligible(raw *model.RawData, force bool) bool {
	if raw == nil || raw.Result == model.RawResultFound {
		return false
	}
	return force || raw.Source != p.retrySource()
}

// retryWebsites gives companies still without a website after the search
// provider up to two attempts through the fallback provider.
func (p *Processor) retryWebsites(ctx context.Context, sess *model.Session, force bool, res *model.Stage2Result) error {
	if p.fallback == nil || stopped(ctx) {
		return nil
	}
	log := zap.L().With(zap.String("session_id", sess.ID), zap.Int("stage", 2))
	wctx := context.WithoutCancel(ctx)

	companies, err := store.ListAllCompanies(ctx, p.store, store.CompanyFilter{SessionID: sess.ID})
	if err != nil {
		return eris.Wrap(err, "stage 2 retry: load companies")
	}
	for i := range companies {
		c := &companies[i]
		if c.HasWebsite() || !p.retryEligible(c.Stage2Raw, force) {
			continue
		}
		if stopped(ctx) {
			res.Partial = true
			return nil
		}

		rec := retryRecord{}
		var ans websiteAnswer
		var lastErr error
		for attempt := 1; attempt <= 2 && ans.Website == ""; attempt++ {
			comp, err := p.fallback.Complete(ctx, llm.Prompt{
				Operation:   "stage2_retry",
				SessionID:   sess.ID,
				System:      retryWebsiteSystem,
				User:        retryWebsitePrompt(sess.Topic, c, attempt),
				MaxTokens:   500,
				Temperature: 0.3 + 0.2*float64(attempt-1),
				JSON:        true,
				CacheTTL:    p.cache.TTL("stage2"),
			})
			if interrupted(ctx, err) {
				res.Partial = true
				return nil
			}
			rec.Attempts = attempt
			if err != nil {
				lastErr = err
				continue
			}
			lastErr = nil
			rec.Answer = clip(comp.Text, 1000)
			ans = p.parseWebsiteAnswer(comp)
			if ans.Website != "" && retryRejected(ans.Website) {
				ans.Website = ""
			}
		}
		res.Retried++

		upd := store.CompanyUpdate{}
		switch {
		case ans.Website != "":
			res.RetryFound++
			rec.Source = ans.Source
			upd.Website = &ans.Website
			if ans.Email != "" && !c.HasEmail() {
				upd.Email = &ans.Email
			}
			upd.Stage = model.Advance(c.Stage, true, c.HasEmail() || upd.Email != nil)
			upd.Stage2Raw = rawRecord(p.retrySource(), model.RawResultFound, rec)
			log.Info("stage 2 retry: website found", zap.String("company", c.Name), zap.String("website", ans.Website))
		case lastErr != nil:
			rec.Error = lastErr.Error()
			upd.Stage2Raw = rawRecord(p.retrySource(), model.RawResultError, rec)
			log.Warn("stage 2 retry: search failed", zap.String("company", c.Name), zap.Error(lastErr))
		default:
			upd.Stage2Raw = rawRecord(p.retrySource(), model.RawResultNotFound, rec)
		}
		if _, err := p.store.UpdateCompany(wctx, c.ID, upd); err != nil {
			return eris.Wrapf(err, "stage 2 retry: update company %s", c.ID)
		}
	}
	return nil
}

// retryContacts asks the fallback provider for an email of companies the
// crawl and the search provider left without one.
func (p *Processor) retryContacts(ctx context.Context, sess *model.Session, force bool, res *model.Stage3Result) error {
	if p.fallback == nil || stopped(ctx) {
		return nil
	}
	log := zap.L().With(zap.String("session_id", sess.ID), zap.Int("stage", 3))
	wctx := context.WithoutCancel(ctx)

	companies, err := store.ListAllCompanies(ctx, p.store, store.CompanyFilter{SessionID: sess.ID})
	if err != nil {
		return eris.Wrap(err, "stage 3 retry: load companies")
	}
	for i := range companies {
		c := &companies[i]
		if !c.HasWebsite() || c.HasEmail() || !p.retryEligible(c.Stage3Raw, force) {
			continue
		}
		if stopped(ctx) {
			res.Partial = true
			return nil
		}

		comp, err := p.fallback.Complete(ctx, llm.Prompt{
			Operation:   "stage3_retry",
			SessionID:   sess.ID,
			System:      retryContactSystem,
			User:        retryContactPrompt(sess.Topic, c),
			MaxTokens:   500,
			Temperature: 0.3,
			JSON:        true,
			CacheTTL:    p.cache.TTL("stage3"),
		})
		if interrupted(ctx, err) {
			res.Partial = true
			return nil
		}
		res.Retried++

		rec := retryRecord{Attempts: 1}
		upd := store.CompanyUpdate{}
		if err != nil {
			rec.Error = err.Error()
			upd.Stage3Raw = rawRecord(p.retrySource(), model.RawResultError, rec)
			log.Warn("stage 3 retry: search failed", zap.String("company", c.Name), zap.Error(err))
		} else {
			rec.Answer = clip(comp.Text, 1000)
			email := ""
			if ans, perr := llm.Decode[retryContactAnswer](comp.Text); perr == nil {
				rec.Source, rec.Confidence = ans.Source, ans.Confidence
				if e := scrape.NormalizeEmail(ans.Email); scrape.ValidEmail(e) {
					email = e
				}
			} else {
				rec.Error = perr.Error()
			}
			if email != "" {
				res.RetryFound++
				upd.Email = &email
				upd.Stage = model.Advance(c.Stage, true, true)
				upd.Stage3Raw = rawRecord(p.retrySource(), model.RawResultFound, rec)
				log.Info("stage 3 retry: email found", zap.String("company", c.Name))
			} else {
				upd.Stage3Raw = rawRecord(p.retrySource(), model.RawResultNotFound, rec)
			}
		}
		if _, err := p.store.UpdateCompany(wctx, c.ID, upd); err != nil {
			return eris.Wrapf(err, "stage 3 retry: update company %s", c.ID)
		}
	}
	return nil
}

func retryRejected(website string) bool {
	u := strings.ToLower(website)
	for _, h := range retryBlockedHosts {
		if strings.Contains(u, h) {
			return true
		}
	}
	for _, s := range retryBlockedPaths {
		if strings.Contains(u, s) {
			return true
		}
	}
	return false
}
