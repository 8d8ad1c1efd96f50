package gateway

// Stats is a point-in-time view of gateway activity.
type Stats struct {
	TotalCalls    int64             `json:"total_calls"`
	Successful    int64             `json:"successful"`
	Failed        int64             `json:"failed"`
	FromCache     int64             `json:"from_cache"`
	RateLimited   int64             `json:"rate_limited"`
	Retries       int64             `json:"retries"`
	Skipped       int64             `json:"skipped"`
	TotalTokens   int64             `json:"total_tokens"`
	AvgResponseMs float64           `json:"avg_response_ms"`
	QueueDepth    int64             `json:"queue_depth"`
	InFlight      int64             `json:"in_flight"`
	MaxInFlight   int64             `json:"max_in_flight"`
	Circuit       map[string]string `json:"circuit"`
}

// Stats returns the current counters.
func (g *Gateway) Stats() Stats {
	s := Stats{
		TotalCalls:  g.totalCalls.Load(),
		Successful:  g.successful.Load(),
		Failed:      g.failed.Load(),
		FromCache:   g.fromCache.Load(),
		RateLimited: g.rateLimited.Load(),
		Retries:     g.retries.Load(),
		Skipped:     g.skipped.Load(),
		TotalTokens: g.totalTokens.Load(),
		QueueDepth:  g.queueDepth.Load(),
		InFlight:    g.inFlight.Load(),
		MaxInFlight: g.maxInFlight.Load(),
		Circuit:     g.breakers.States(),
	}
	if n := g.executed.Load(); n > 0 {
		s.AvgResponseMs = float64(g.totalMs.Load()) / float64(n)
	}
	return s
}
