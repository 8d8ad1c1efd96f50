package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
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

// ProviderBasic marks validations produced by the heuristic fallback.
const ProviderBasic = "basic"

const maxTags = 20

var (
	relevanceField  = regexp.MustCompile(`"relevance"\s*:\s*"?(\d+)`)
	confidenceField = regexp.MustCompile(`"confidence"\s*:\s*"?(\d+)`)
)

// number accepts a JSON number or a numeric string.
type number float64

func (n *number) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		*n = number(f)
	}
	return nil
}

// stringList accepts a JSON array of strings or one comma-separated string.
type stringList []string

func (l *stringList) UnmarshalJSON(b []byte) error {
	var arr []string
	if err := json.Unmarshal(b, &arr); err == nil {
		*l = cleanList(arr)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*l = cleanList(strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '，' || r == ';' }))
	}
	return nil
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

type verdict struct {
	Relevance   number     `json:"relevance"`
	Confidence  number     `json:"confidence"`
	Description string     `json:"description"`
	Services    stringList `json:"services"`
	Tags        stringList `json:"tags"`
	Reason      string     `json:"reason"`
	Website     string     `json:"website"`
	Email       string     `json:"email"`
}

// Validate runs Stage 4: every company with a website or email is scored
// against the session topic. Failed AI calls fall back to a heuristic score
// when enabled. If every AI call failed, the fallback results are still
// saved and an Upstream error is returned with the counts.
func (p *Processor) Validate(ctx context.Context, sessionID string, force bool) (*model.Stage4Result, error) {
	ctx = gateway.WithSessionID(ctx, sessionID)
	log := zap.L().With(zap.String("session_id", sessionID), zap.Int("stage", 4))
	// Results already fetched are saved even after the deadline.
	wctx := context.WithoutCancel(ctx)

	sess, err := p.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	companies, err := store.ListAllCompanies(ctx, p.store, store.CompanyFilter{SessionID: sessionID})
	if err != nil {
		return nil, eris.Wrap(err, "stage 4: load companies")
	}

	res := &model.Stage4Result{}
	aiFailures := 0
	var lastErr error
	for i := range companies {
		c := &companies[i]
		if !c.EligibleStage4(force) {
			continue
		}
		if stopped(ctx) {
			res.Partial = true
			break
		}

		v, err := p.aiValidate(ctx, sessionID, sess.Topic, c)
		if interrupted(ctx, err) {
			res.Partial = true
			break
		}
		res.CompaniesAnalyzed++

		var val *model.Validation
		upd := store.CompanyUpdate{}
		if err != nil {
			aiFailures++
			lastErr = err
			log.Warn("stage 4: validation call failed", zap.String("company", c.Name), zap.Error(err))
			if !p.validation.FallbackBasic {
				continue
			}
			val = BasicValidation(c)
			res.FallbackCount++
		} else {
			val = p.toValidation(v)
			if d := strings.TrimSpace(v.Description); d != "" {
				upd.Description = &d
			}
			if w, _ := p.markets.Clean(v.Website); w != "" && !c.HasWebsite() {
				upd.Website = &w
			}
			if e := scrape.NormalizeEmail(v.Email); !c.HasEmail() && scrape.ValidEmail(e) {
				upd.Email = &e
			}
		}

		upd.Validation = val
		upd.Stage = model.StageCompleted
		if _, err := p.store.UpdateCompany(wctx, c.ID, upd); err != nil {
			return nil, eris.Wrapf(err, "stage 4: update company %s", c.ID)
		}
		if val.Score >= p.validation.MinRelevance {
			res.ValidatedCount++
		} else {
			res.RejectedCount++
		}
	}

	log.Info("stage 4: done",
		zap.Int("analyzed", res.CompaniesAnalyzed),
		zap.Int("validated", res.ValidatedCount),
		zap.Int("fallback", res.FallbackCount),
		zap.Bool("partial", res.Partial),
	)
	if res.CompaniesAnalyzed > 0 && aiFailures == res.CompaniesAnalyzed {
		return res, apperr.Upstream(lastErr, "stage 4: every validation call failed")
	}
	return res, nil
}

func (p *Processor) aiValidate(ctx context.Context, sessionID, topic string, c *model.Company) (*verdict, error) {
	comp, err := p.validator.Complete(ctx, llm.Prompt{
		Operation:   "stage4",
		SessionID:   sessionID,
		System:      validatorSystem,
		User:        validationPrompt(topic, c),
		MaxTokens:   2000,
		Temperature: 0.3,
		JSON:        true,
		CacheTTL:    p.cache.TTL("stage4"),
	})
	if err != nil {
		return nil, err
	}
	return parseVerdict(comp.Text)
}

// parseVerdict decodes a validator answer. A truncated answer still yields a
// verdict when its relevance can be read.
func parseVerdict(text string) (*verdict, error) {
	v, err := llm.Decode[verdict](text)
	if err == nil {
		return v, nil
	}
	m := relevanceField.FindStringSubmatch(text)
	if m == nil {
		return nil, eris.Wrap(err, "stage 4: parse verdict")
	}
	rel, _ := strconv.Atoi(m[1])
	conf := 50
	if cm := confidenceField.FindStringSubmatch(text); cm != nil {
		conf, _ = strconv.Atoi(cm[1])
	}
	return &verdict{
		Relevance:  number(rel),
		Confidence: number(conf),
		Reason:     fmt.Sprintf("partial response (relevance: %d)", rel),
	}, nil
}

func (p *Processor) toValidation(v *verdict) *model.Validation {
	tags := []string(v.Tags)
	if len(tags) > maxTags {
		tags = tags[:maxTags]
	}
	reason := strings.TrimSpace(v.Reason)
	if reason == "" {
		reason = "AI analysis completed"
	}
	return &model.Validation{
		Score:       clampPercent(float64(v.Relevance)),
		Confidence:  float64(clampPercent(float64(v.Confidence))),
		Reason:      reason,
		Services:    v.Services,
		Tags:        tags,
		Provider:    p.validatorID,
		ValidatedAt: now(),
	}
}

func clampPercent(f float64) int {
	switch {
	case f < 0:
		return 0
	case f > 100:
		return 100
	default:
		return int(f)
	}
}

// BasicValidation scores a company from the data it carries: 20 for a
// description, 40 for a website or email, and 20 each for services and tags
// from an earlier validation.
func BasicValidation(c *model.Company) *model.Validation {
	score := 0
	var missing []string
	var services, tags []string
	if c.Validation != nil {
		services, tags = c.Validation.Services, c.Validation.Tags
	}

	if strings.TrimSpace(c.Description) != "" {
		score += 20
	} else {
		missing = append(missing, "description")
	}
	if len(services) > 0 {
		score += 20
	} else {
		missing = append(missing, "services")
	}
	if len(tags) > 0 {
		score += 20
	} else {
		missing = append(missing, "tags")
	}
	if c.HasWebsite() || c.HasEmail() {
		score += 40
	} else {
		missing = append(missing, "contacts")
	}

	reason := "basic validation: all data present"
	if len(missing) > 0 {
		reason = "basic validation: missing " + strings.Join(missing, ", ")
	}
	return &model.Validation{
		Score:       score,
		Confidence:  float64(score),
		Reason:      reason,
		Services:    services,
		Tags:        tags,
		Provider:    ProviderBasic,
		ValidatedAt: now(),
	}
}
