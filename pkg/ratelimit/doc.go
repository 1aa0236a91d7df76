// Package ratelimit paces requests to the upstream API.
//
// Pacing is off by default: the upstream answers excess traffic with 429,
// and a 429 aborts the running batch. Setting rate_limit.requests_per_minute
// spreads requests out so long update runs stay under the upstream limit.
//
// Usage:
//
//	limiter := ratelimit.New(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
//	if err := limiter.Wait(ctx); err != nil {
//		return err
//	}
package ratelimit
