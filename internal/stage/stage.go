// Package stage implements the four enrichment stages that move a session's
// companies from bare names to validated contacts.
package stage

import (
	"context"
	"time"

	"github.com/sells-group/topic-enricher/internal/config"
	"github.com/sells-group/topic-enricher/internal/llm"
	"github.com/sells-group/topic-enricher/internal/scrape"
	"github.com/sells-group/topic-enricher/internal/store"
)

// ContactFinder crawls a website for email addresses.
type ContactFinder interface {
	Find(ctx context.Context, website string) (*scrape.ContactResult, error)
}

// Deps are the collaborators shared by all stages.
type Deps struct {
	Store store.Store
	// Search answers web-grounded questions (Perplexity). Used by stages 1-3.
	Search llm.Completer
	// Validator scores companies in Stage 4.
	Validator     llm.Completer
	ValidatorName string
	// Contacts is optional; without it Stage 3 relies on Search alone.
	Contacts ContactFinder
	// Fallback is optional. When set, stages 2 and 3 give companies the
	// search provider could not resolve a second pass through it.
	Fallback     llm.Completer
	FallbackName string

	Stages     config.StagesConfig
	Validation config.ValidationConfig
	Cache      config.CacheConfig
}

// Processor runs stages against stored sessions. Records are handled one at
// a time; every upstream call already queues on the gateway.
type Processor struct {
	store       store.Store
	search      llm.Completer
	validator   llm.Completer
	validatorID string
	contacts    ContactFinder
	fallback    llm.Completer
	fallbackID  string
	markets     *MarketplaceFilter
	stages      config.StagesConfig
	validation  config.ValidationConfig
	cache       config.CacheConfig
}

// New creates a Processor, filling unset limits with their defaults.
func New(d Deps) *Processor {
	sc := d.Stages
	if sc.MinCompanies <= 0 {
		sc.MinCompanies = 10
	}
	if sc.MaxCompanies < sc.MinCompanies {
		sc.MaxCompanies = max(15, sc.MinCompanies)
	}
	if sc.Marketplaces == nil {
		sc.Marketplaces = config.DefaultMarketplaces
	}
	vc := d.Validation
	if vc.MinRelevance <= 0 {
		vc.MinRelevance = 50
	}
	name := d.ValidatorName
	if name == "" {
		name = llm.ServiceDeepSeek
	}
	fallbackName := d.FallbackName
	if fallbackName == "" {
		fallbackName = llm.ServiceDeepSeek
	}
	return &Processor{
		store:       d.Store,
		search:      d.Search,
		validator:   d.Validator,
		validatorID: name,
		contacts:    d.Contacts,
		fallback:    d.Fallback,
		fallbackID:  fallbackName,
		markets:     NewMarketplaceFilter(sc.Marketplaces),
		stages:      sc,
		validation:  vc,
		cache:       d.Cache,
	}
}

// Marketplaces exposes the configured marketplace filter.
func (p *Processor) Marketplaces() *MarketplaceFilter { return p.markets }

// stopped reports whether the run's deadline passed or it was cancelled.
// Callers stop looping and report partial progress.
func stopped(ctx context.Context) bool {
	return ctx.Err() != nil
}

// interrupted reports whether err came from the run's own context ending,
// as opposed to an upstream failure.
func interrupted(ctx context.Context, err error) bool {
	return err != nil && ctx.Err() != nil
}

func now() time.Time { return time.Now().UTC() }
