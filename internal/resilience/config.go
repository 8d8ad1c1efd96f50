package resilience

import (
	"time"

	"github.com/sells-group/topic-enricher/internal/config"
)

// FromGatewayConfig derives retry and circuit breaker settings from the
// gateway section. Zero values fall back to the package defaults.
func FromGatewayConfig(g config.GatewayConfig) (RetryConfig, CircuitBreakerConfig) {
	rc := DefaultRetryConfig()
	if g.MaxAttempts > 0 {
		rc.MaxAttempts = g.MaxAttempts
	}
	if g.InitialBackoffMs > 0 {
		rc.InitialBackoff = time.Duration(g.InitialBackoffMs) * time.Millisecond
	}
	if g.MaxBackoffMs > 0 {
		rc.MaxBackoff = time.Duration(g.MaxBackoffMs) * time.Millisecond
	}
	if g.BackoffMultiplier > 0 {
		rc.Multiplier = g.BackoffMultiplier
	}
	if g.JitterFraction >= 0 {
		rc.JitterFraction = g.JitterFraction
	}

	cc := DefaultCircuitBreakerConfig()
	if g.CircuitFailureThreshold > 0 {
		cc.FailureThreshold = g.CircuitFailureThreshold
	}
	if g.CircuitResetSecs > 0 {
		cc.ResetTimeout = time.Duration(g.CircuitResetSecs) * time.Second
	}
	return rc, cc
}
