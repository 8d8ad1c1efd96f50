package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/topic-enricher/internal/cache"
	"github.com/sells-group/topic-enricher/internal/expand"
	"github.com/sells-group/topic-enricher/internal/gateway"
	"github.com/sells-group/topic-enricher/internal/llm"
	"github.com/sells-group/topic-enricher/internal/metrics"
	"github.com/sells-group/topic-enricher/internal/pipeline"
	"github.com/sells-group/topic-enricher/internal/scrape"
	"github.com/sells-group/topic-enricher/internal/stage"
	"github.com/sells-group/topic-enricher/internal/store"
	anthropicpkg "github.com/sells-group/topic-enricher/pkg/anthropic"
	"github.com/sells-group/topic-enricher/pkg/deepseek"
	"github.com/sells-group/topic-enricher/pkg/jina"
	"github.com/sells-group/topic-enricher/pkg/perplexity"
)

// appEnv holds the store, the gateway and everything built on them for the
// serve, topic, stage and batch commands.
type appEnv struct {
	Store     store.Store
	Cache     cache.Cache
	Gateway   *gateway.Gateway
	Metrics   *metrics.Metrics
	Expander  *expand.Expander
	Processor *stage.Processor
	Pipeline  *pipeline.Pipeline
}

// Close stops the gateway and releases the cache and store.
func (e *appEnv) Close() {
	if e.Gateway != nil {
		e.Gateway.Close()
	}
	if c, ok := e.Cache.(*cache.RedisCache); ok {
		_ = c.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv wires the store, response cache, gateway, providers, stage
// processor and pipeline. mode selects which API keys Validate requires.
// Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &appEnv{Store: st, Metrics: metrics.New()}

	if cfg.Cache.Enabled {
		env.Cache, err = cache.New(ctx, cfg.Redis, st)
		if err != nil {
			env.Close()
			return nil, err
		}
	}

	opts := gateway.OptionsFromConfig(cfg.Gateway)
	opts.Cache = env.Cache
	opts.Recorder = st
	opts.Metrics = env.Metrics
	env.Gateway = gateway.New(opts)

	search := llm.Gated(env.Gateway, llm.NewPerplexity(
		perplexity.NewClient(cfg.Perplexity.Key,
			perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
			perplexity.WithModel(cfg.Perplexity.Model),
		),
		cfg.Perplexity.Model,
	))
	chat := llm.Gated(env.Gateway, llm.NewDeepSeek(
		deepseek.NewClient(cfg.DeepSeek.Key,
			deepseek.WithBaseURL(cfg.DeepSeek.BaseURL),
			deepseek.WithModel(cfg.DeepSeek.Model),
		),
		cfg.DeepSeek.Model,
	))

	validator, validatorName := chat, llm.ServiceDeepSeek
	if cfg.Validation.Provider == llm.ServiceAnthropic {
		validator = llm.Gated(env.Gateway, llm.NewAnthropic(anthropicpkg.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model))
		validatorName = llm.ServiceAnthropic
	}

	var fallback llm.Completer
	if cfg.Stages.FallbackRetry {
		fallback = chat
	}

	env.Processor = stage.New(stage.Deps{
		Store:         st,
		Search:        search,
		Validator:     validator,
		ValidatorName: validatorName,
		Contacts:      initContactFinder(env.Gateway),
		Fallback:      fallback,
		FallbackName:  llm.ServiceDeepSeek,
		Stages:        cfg.Stages,
		Validation:    cfg.Validation,
		Cache:         cfg.Cache,
	})
	env.Expander = expand.New(chat, st, cfg.Topics, cfg.Cache.TTL("expand"))
	env.Pipeline = pipeline.New(st, env.Processor,
		pipeline.WithMetrics(env.Metrics),
		pipeline.WithDefaultTimeout(time.Duration(cfg.Server.StageTimeoutSecs)*time.Second),
	)

	zap.L().Info("environment ready",
		zap.String("store", cfg.Store.Driver),
		zap.Bool("cache", env.Cache != nil),
		zap.String("validator", validatorName),
		zap.Bool("jina", cfg.Jina.Key != ""),
		zap.Duration("min_interval", cfg.Gateway.MinInterval()),
	)
	return env, nil
}

// initContactFinder builds the Stage 3 crawler: plain HTTP first, then Jina
// Reader through the gateway when a key is configured.
func initContactFinder(gw gateway.Doer) *scrape.ContactFinder {
	scrapers := []scrape.Scraper{
		scrape.NewLocalScraper(time.Duration(cfg.Stages.ScrapeTimeoutSec) * time.Second),
	}
	if cfg.Jina.Key != "" {
		client := jina.NewClient(cfg.Jina.Key, jina.WithBaseURL(cfg.Jina.BaseURL))
		scrapers = append(scrapers, scrape.NewJinaScraper(client, gw))
	}
	return scrape.NewContactFinder(scrape.NewChain(nil, scrapers...), cfg.Stages.ContactPaths)
}

// startCacheCleanup prunes expired rows of the store-backed cache until ctx
// ends. Redis expires keys on its own.
func (e *appEnv) startCacheCleanup(ctx context.Context) {
	sc, ok := e.Cache.(*cache.StoreCache)
	if !ok {
		return
	}
	go sc.RunCleanup(ctx, time.Duration(cfg.Cache.CleanupEveryMins)*time.Minute)
}
