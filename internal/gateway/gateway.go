// Package gateway serializes every outbound call to a search or AI provider
// through a single FIFO worker.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/sells-group/topic-enricher/internal/apperr"
	"github.com/sells-group/topic-enricher/internal/cache"
	"github.com/sells-group/topic-enricher/internal/config"
	"github.com/sells-group/topic-enricher/internal/metrics"
	"github.com/sells-group/topic-enricher/internal/model"
	"github.com/sells-group/topic-enricher/internal/resilience"
)

// ErrClosed is returned by Do after Close.
var ErrClosed = eris.New("gateway: closed")

// Call describes one outbound request.
type Call struct {
	Service   string
	Operation string
	Model     string
	SessionID string
	// Prompt identifies the request for caching.
	Prompt string
	// CacheTTL enables the response cache when positive.
	CacheTTL time.Duration
}

// Response is what a call function returns. Body is what gets cached.
type Response struct {
	Body         []byte
	HTTPStatus   int
	InputTokens  int64
	OutputTokens int64
	FromCache    bool
}

// Func performs the actual upstream request.
type Func func(ctx context.Context) (*Response, error)

type sessionKey struct{}

// WithSessionID tags ctx so calls made under it are logged against the
// session even when the caller cannot set Call.SessionID itself.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

// SessionID returns the session tagged on ctx, or "".
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

// Doer is the calling side of a Gateway.
type Doer interface {
	Do(ctx context.Context, call Call, fn Func) (*Response, error)
}

// Recorder persists the outbound call log.
type Recorder interface {
	RecordAPICall(ctx context.Context, call *model.APICall) error
}

// Options configures a Gateway.
type Options struct {
	MinInterval time.Duration
	QueueSize   int
	CallTimeout time.Duration
	Retry       resilience.RetryConfig
	Circuit     resilience.CircuitBreakerConfig
	Cache       cache.Cache
	Recorder    Recorder
	Metrics     *metrics.Metrics
}

// OptionsFromConfig maps the gateway config section onto Options.
func OptionsFromConfig(cfg config.GatewayConfig) Options {
	retry, circuit := resilience.FromGatewayConfig(cfg)
	return Options{
		MinInterval: cfg.MinInterval(),
		QueueSize:   cfg.QueueSize,
		CallTimeout: time.Duration(cfg.CallTimeoutSecs) * time.Second,
		Retry:       retry,
		Circuit:     circuit,
	}
}

type result struct {
	resp *Response
	err  error
}

type job struct {
	ctx  context.Context
	call Call
	fn   Func
	done chan result
}

// Gateway owns the call queue and the single worker draining it.
type Gateway struct {
	opts     Options
	jobs     chan *job
	limiter  *rate.Limiter
	breakers *resilience.ServiceBreakers
	group    singleflight.Group
	metrics  *metrics.Metrics

	quit      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	totalCalls  atomic.Int64
	successful  atomic.Int64
	failed      atomic.Int64
	fromCache   atomic.Int64
	rateLimited atomic.Int64
	retries     atomic.Int64
	skipped     atomic.Int64
	totalTokens atomic.Int64
	totalMs     atomic.Int64
	executed    atomic.Int64
	queueDepth  atomic.Int64
	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

// New starts a gateway worker. Call Close to stop it.
func New(opts Options) *Gateway {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	limit := rate.Inf
	if opts.MinInterval > 0 {
		limit = rate.Every(opts.MinInterval)
	}

	g := &Gateway{
		opts:    opts,
		jobs:    make(chan *job, opts.QueueSize),
		limiter: rate.NewLimiter(limit, 1),
		metrics: opts.Metrics,
		quit:    make(chan struct{}),
	}
	g.breakers = resilience.NewServiceBreakers(opts.Circuit, g.onCircuitChange)

	g.wg.Add(1)
	go g.worker()
	return g
}

// Close stops the worker. Queued callers receive ErrClosed.
func (g *Gateway) Close() {
	g.closeOnce.Do(func() {
		close(g.quit)
		g.wg.Wait()
	})
}

// Metrics returns the collectors the gateway reports into.
func (g *Gateway) Metrics() *metrics.Metrics { return g.metrics }

// Do runs fn in its turn on the worker, consulting the response cache first
// when call.CacheTTL is positive.
func (g *Gateway) Do(ctx context.Context, call Call, fn Func) (*Response, error) {
	if call.SessionID == "" {
		call.SessionID = SessionID(ctx)
	}
	if call.CacheTTL <= 0 || g.opts.Cache == nil {
		return g.enqueue(ctx, call, fn)
	}

	key := cache.Key(call.Service, call.Model, call.Prompt)
	if resp, ok := g.cached(ctx, call, key); ok {
		return resp, nil
	}

	// The flight outlives any single caller; each caller waits on its own ctx.
	flightCtx := context.WithoutCancel(ctx)
	ch := g.group.DoChan(key, func() (any, error) {
		// A concurrent flight may have just filled the cache.
		if resp, ok := g.cached(flightCtx, call, key); ok {
			return resp, nil
		}
		resp, err := g.enqueue(flightCtx, call, fn)
		if err != nil {
			return nil, err
		}
		if err := g.opts.Cache.Set(flightCtx, key, resp.Body, call.CacheTTL); err != nil {
			zap.L().Warn("gateway: cache write failed",
				zap.String("service", call.Service), zap.Error(err))
		}
		return resp, nil
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		out := *r.Val.(*Response)
		return &out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *Gateway) cached(ctx context.Context, call Call, key string) (*Response, bool) {
	data, ok, err := g.opts.Cache.Get(ctx, key)
	if err != nil {
		zap.L().Warn("gateway: cache read failed", zap.String("service", call.Service), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	g.totalCalls.Add(1)
	g.fromCache.Add(1)
	g.metrics.GatewayCalls.WithLabelValues(call.Service, "cached").Inc()
	g.record(ctx, call, &Response{FromCache: true}, nil, 0)
	return &Response{Body: data, FromCache: true}, true
}

func (g *Gateway) enqueue(ctx context.Context, call Call, fn Func) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	j := &job{ctx: ctx, call: call, fn: fn, done: make(chan result, 1)}

	g.metrics.GatewayQueueDepth.Set(float64(g.queueDepth.Add(1)))
	select {
	case g.jobs <- j:
	case <-ctx.Done():
		g.metrics.GatewayQueueDepth.Set(float64(g.queueDepth.Add(-1)))
		return nil, ctx.Err()
	case <-g.quit:
		g.metrics.GatewayQueueDepth.Set(float64(g.queueDepth.Add(-1)))
		return nil, ErrClosed
	}

	select {
	case r := <-j.done:
		return r.resp, r.err
	case <-ctx.Done():
		// The worker skips this job, or the running call sees the same ctx.
		return nil, ctx.Err()
	case <-g.quit:
		return nil, ErrClosed
	}
}

func (g *Gateway) worker() {
	defer g.wg.Done()
	for {
		select {
		case <-g.quit:
			return
		case j := <-g.jobs:
			g.metrics.GatewayQueueDepth.Set(float64(g.queueDepth.Add(-1)))
			if err := j.ctx.Err(); err != nil {
				g.skipped.Add(1)
				j.done <- result{err: err}
				continue
			}
			resp, err := g.execute(j.ctx, j.call, j.fn)
			j.done <- result{resp: resp, err: err}
		}
	}
}

func (g *Gateway) execute(ctx context.Context, call Call, fn Func) (*Response, error) {
	log := zap.L().With(
		zap.String("service", call.Service),
		zap.String("operation", call.Operation),
		zap.String("session_id", call.SessionID),
	)

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	n := g.inFlight.Add(1)
	g.metrics.GatewayInFlight.Set(float64(n))
	for {
		cur := g.maxInFlight.Load()
		if n <= cur || g.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	defer func() {
		g.metrics.GatewayInFlight.Set(float64(g.inFlight.Add(-1)))
	}()

	retry := g.opts.Retry
	retry.OnRetry = func(attempt int, err error) {
		g.retries.Add(1)
		g.metrics.GatewayRetries.WithLabelValues(call.Service).Inc()
		resilience.RetryLogger(call.Service, call.Operation)(attempt, err)
	}

	cb := g.breakers.Get(call.Service)
	start := time.Now()
	resp, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*Response, error) {
		return resilience.ExecuteVal(ctx, cb, func(ctx context.Context) (*Response, error) {
			callCtx := ctx
			if g.opts.CallTimeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, g.opts.CallTimeout)
				defer cancel()
			}
			r, err := fn(callCtx)
			if resilience.IsRateLimited(err) {
				g.rateLimited.Add(1)
				g.metrics.GatewayRateLimited.WithLabelValues(call.Service).Inc()
			}
			return r, err
		})
	})
	elapsed := time.Since(start)

	g.totalCalls.Add(1)
	g.executed.Add(1)
	g.totalMs.Add(elapsed.Milliseconds())
	g.metrics.GatewayDuration.WithLabelValues(call.Service).Observe(elapsed.Seconds())
	g.record(ctx, call, resp, err, elapsed)

	if err != nil {
		g.failed.Add(1)
		outcome := "error"
		if resilience.IsRateLimited(err) {
			outcome = "rate_limited"
		}
		g.metrics.GatewayCalls.WithLabelValues(call.Service, outcome).Inc()
		log.Warn("upstream call failed",
			zap.Int("http_status", resilience.StatusCode(err)),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return nil, classify(ctx, call, err)
	}
	if resp == nil {
		resp = &Response{}
	}

	g.successful.Add(1)
	g.totalTokens.Add(resp.InputTokens + resp.OutputTokens)
	g.metrics.GatewayCalls.WithLabelValues(call.Service, "success").Inc()
	g.metrics.GatewayTokens.WithLabelValues(call.Service, "input").Add(float64(resp.InputTokens))
	g.metrics.GatewayTokens.WithLabelValues(call.Service, "output").Add(float64(resp.OutputTokens))
	log.Debug("upstream call complete",
		zap.Duration("elapsed", elapsed),
		zap.Int64("input_tokens", resp.InputTokens),
		zap.Int64("output_tokens", resp.OutputTokens),
	)
	return resp, nil
}

// classify maps an exhausted call failure onto the domain error kinds.
// Context errors pass through untouched.
func classify(ctx context.Context, call Call, err error) error {
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return err
	}
	what := fmt.Sprintf("%s %s", call.Service, call.Operation)
	switch {
	case resilience.IsRateLimited(err):
		return apperr.RateLimit(err, what+": rate limited")
	case errors.Is(err, resilience.ErrCircuitOpen):
		return apperr.Upstream(err, what+": circuit open")
	default:
		return apperr.Upstream(err, what+": failed")
	}
}

func (g *Gateway) record(ctx context.Context, call Call, resp *Response, err error, elapsed time.Duration) {
	if g.opts.Recorder == nil {
		return
	}
	entry := &model.APICall{
		SessionID:  call.SessionID,
		Service:    call.Service,
		Operation:  call.Operation,
		Model:      call.Model,
		Status:     model.CallStatusSuccess,
		DurationMs: elapsed.Milliseconds(),
	}
	switch {
	case err != nil && resilience.IsRateLimited(err):
		entry.Status = model.CallStatusRateLimited
		entry.Error = err.Error()
	case err != nil:
		entry.Status = model.CallStatusError
		entry.Error = err.Error()
	case resp != nil && resp.FromCache:
		entry.Status = model.CallStatusCached
		entry.FromCache = true
	}
	if err != nil {
		entry.HTTPStatus = resilience.StatusCode(err)
	} else if resp != nil {
		entry.HTTPStatus = resp.HTTPStatus
		entry.InputTokens = resp.InputTokens
		entry.OutputTokens = resp.OutputTokens
	}
	if rerr := g.opts.Recorder.RecordAPICall(context.WithoutCancel(ctx), entry); rerr != nil {
		zap.L().Warn("gateway: record api call failed", zap.Error(rerr))
	}
}

func (g *Gateway) onCircuitChange(service string, from, to resilience.CircuitState) {
	g.metrics.CircuitState.WithLabelValues(service).Set(float64(to))
	zap.L().Warn("circuit breaker state change",
		zap.String("service", service),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)
}

// ClearCache empties the response cache.
func (g *Gateway) ClearCache(ctx context.Context) error {
	if g.opts.Cache == nil {
		return nil
	}
	return eris.Wrap(g.opts.Cache.Clear(ctx), "gateway: clear cache")
}
