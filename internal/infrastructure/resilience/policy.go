package resilience

import "time"

// Policy bounds retries and circuit breaking for one upstream dependency.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64

	Breaker BreakerPolicy
}

type BreakerPolicy struct {
	Enabled       bool
	MinRequests   uint32
	FailureRatio  float64
	OpenTimeout   time.Duration
	HalfOpenCalls uint32
}

// EmbeddingPolicy guards query embeddings. They run inside the per-request strategy
// deadline, so retries stay short and the breaker opens quickly.
func EmbeddingPolicy() Policy {
	return Policy{
		MaxAttempts:    2,
		InitialBackoff: 150 * time.Millisecond,
		MaxBackoff:     time.Second,
		Multiplier:     2,
		Breaker: BreakerPolicy{
			Enabled:       true,
			MinRequests:   5,
			FailureRatio:  0.5,
			OpenTimeout:   15 * time.Second,
			HalfOpenCalls: 1,
		},
	}
}

// RerankPolicy never retries: a failed rerank falls back to the boosted order.
func RerankPolicy() Policy {
	return Policy{
		MaxAttempts: 1,
		Breaker: BreakerPolicy{
			Enabled:       true,
			MinRequests:   5,
			FailureRatio:  0.5,
			OpenTimeout:   30 * time.Second,
			HalfOpenCalls: 1,
		},
	}
}

// IndexFeedPolicy applies to index event handling and publishing. Events are not
// redelivered, so it retries longer and has no breaker.
func IndexFeedPolicy() Policy {
	return Policy{
		MaxAttempts:    5,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2,
	}
}

func (p Policy) normalize() Policy {
	out := p
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = 1
	}
	if out.InitialBackoff < 0 {
		out.InitialBackoff = 0
	}
	if out.MaxBackoff < out.InitialBackoff {
		out.MaxBackoff = out.InitialBackoff
	}
	if out.Multiplier < 1 {
		out.Multiplier = 1
	}

	b := &out.Breaker
	if b.MinRequests == 0 {
		b.MinRequests = 5
	}
	if b.FailureRatio <= 0 || b.FailureRatio > 1 {
		b.FailureRatio = 0.5
	}
	if b.OpenTimeout <= 0 {
		b.OpenTimeout = 30 * time.Second
	}
	if b.HalfOpenCalls == 0 {
		b.HalfOpenCalls = 1
	}
	return out
}
