package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/workspace-search/internal/core/domain"
)

func TestExecuteRetriesTemporaryFailure(t *testing.T) {
	exec := NewExecutor(Policy{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     2,
	}, nil)

	attempts := 0
	errTemp := errors.New("temporary")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTemp
		}
		return nil
	}, func(err error) ErrorClassification {
		return ErrorClassification{
			Retryable:     errors.Is(err, errTemp),
			RecordFailure: true,
		}
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteDoesNotRetryPermanentFailure(t *testing.T) {
	exec := NewExecutor(Policy{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     2,
	}, nil)

	attempts := 0
	errPermanent := errors.New("permanent")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		return errPermanent
	}, func(error) ErrorClassification {
		return ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	})
	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	var transitions []string
	exec := NewExecutor(Policy{
		MaxAttempts: 1,
		Breaker: BreakerPolicy{
			Enabled:       true,
			MinRequests:   2,
			FailureRatio:  0.5,
			OpenTimeout:   50 * time.Millisecond,
			HalfOpenCalls: 1,
		},
	}, func(operation, state string) {
		transitions = append(transitions, operation+":"+state)
	})

	errTemp := errors.New("temporary")
	classifier := func(error) ErrorClassification {
		return ErrorClassification{
			Retryable:     false,
			RecordFailure: true,
		}
	}

	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "op", func(context.Context) error {
			return errTemp
		}, classifier)
		if !errors.Is(err, errTemp) {
			t.Fatalf("expected temporary error on iteration %d, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, classifier)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open state error, got %v", err)
	}
	if len(transitions) != 1 || transitions[0] != "op:open" {
		t.Fatalf("expected open transition to be observed, got %v", transitions)
	}
}

func TestCallReturnsValueAfterRetry(t *testing.T) {
	exec := NewExecutor(Policy{
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	}, nil)

	attempts := 0
	got, err := Call(context.Background(), exec, "embed", func(context.Context) ([]float32, error) {
		attempts++
		if attempts == 1 {
			return nil, &HTTPStatusError{Service: "ollama", Operation: "embed", StatusCode: 503, Status: "503 Service Unavailable"}
		}
		return []float32{1, 2}, nil
	}, ClassifyHTTPError)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if len(got) != 2 || attempts != 2 {
		t.Fatalf("expected value from second attempt, got %v after %d attempts", got, attempts)
	}
}

func TestExecuteHonoursRetryAfterWithinPolicy(t *testing.T) {
	exec := NewExecutor(Policy{
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
	}, nil)

	attempts := 0
	start := time.Now()
	err := exec.Execute(context.Background(), "ollama.embed", func(context.Context) error {
		attempts++
		if attempts == 1 {
			return &HTTPStatusError{StatusCode: 429, RetryAfter: 20 * time.Millisecond}
		}
		return nil
	}, ClassifyHTTPError)
	if err != nil || attempts != 2 {
		t.Fatalf("expected success on second attempt, got err=%v attempts=%d", err, attempts)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("expected to wait for Retry-After, waited %v", elapsed)
	}
}

func TestExecuteGivesUpWhenRetryAfterExceedsPolicy(t *testing.T) {
	exec := NewExecutor(EmbeddingPolicy(), nil)

	attempts := 0
	err := exec.Execute(context.Background(), "ollama.embed", func(context.Context) error {
		attempts++
		return &HTTPStatusError{StatusCode: 503, RetryAfter: time.Minute}
	}, ClassifyHTTPError)
	if err == nil || attempts != 1 {
		t.Fatalf("expected a single attempt, got err=%v attempts=%d", err, attempts)
	}
}

func TestExecuteSkipsRetryPastDeadline(t *testing.T) {
	exec := NewExecutor(Policy{
		MaxAttempts:    3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     200 * time.Millisecond,
	}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	attempts := 0
	errTemp := errors.New("temporary")
	err := exec.Execute(ctx, "op", func(context.Context) error {
		attempts++
		return errTemp
	}, func(error) ErrorClassification {
		return ErrorClassification{Retryable: true, RecordFailure: true}
	})
	if !errors.Is(err, errTemp) || attempts != 1 {
		t.Fatalf("expected no retry that would outlive the deadline, got err=%v attempts=%d", err, attempts)
	}
}

func TestPoliciesNormalize(t *testing.T) {
	if p := RerankPolicy().normalize(); p.MaxAttempts != 1 || !p.Breaker.Enabled {
		t.Fatalf("rerank policy must not retry and must break: %+v", p)
	}
	if p := IndexFeedPolicy().normalize(); p.Breaker.Enabled || p.MaxAttempts < 3 {
		t.Fatalf("index feed policy must retry without a breaker: %+v", p)
	}
	p := Policy{MaxAttempts: -1, InitialBackoff: time.Second, MaxBackoff: time.Millisecond}.normalize()
	if p.MaxAttempts != 1 || p.MaxBackoff != time.Second || p.Multiplier != 1 {
		t.Fatalf("unexpected normalized policy: %+v", p)
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	cases := map[string]time.Duration{
		"":                              0,
		"3":                             3 * time.Second,
		"-1":                            0,
		"soon":                          0,
		"Tue, 10 Mar 2026 12:00:30 GMT": 30 * time.Second,
		"Tue, 10 Mar 2026 11:59:00 GMT": 0,
	}
	for value, want := range cases {
		if got := ParseRetryAfter(value, now); got != want {
			t.Fatalf("ParseRetryAfter(%q) = %v, want %v", value, got, want)
		}
	}
}

func TestNilExecutorRunsOnce(t *testing.T) {
	var exec *Executor
	attempts := 0
	errBoom := errors.New("boom")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		return errBoom
	}, nil)
	if !errors.Is(err, errBoom) || attempts != 1 {
		t.Fatalf("expected single pass-through attempt, got err=%v attempts=%d", err, attempts)
	}
}

func TestClassifyHTTPError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorClassification
	}{
		{name: "canceled", err: context.Canceled, want: ErrorClassification{}},
		{name: "overloaded", err: &HTTPStatusError{StatusCode: 429, RetryAfter: time.Second}, want: ErrorClassification{Retryable: true, RecordFailure: true, RetryAfter: time.Second}},
		{name: "bad request", err: &HTTPStatusError{StatusCode: 400}, want: ErrorClassification{}},
		{name: "open circuit", err: gobreaker.ErrOpenState, want: ErrorClassification{Retryable: true, RecordFailure: true}},
		{name: "other", err: errors.New("decode"), want: ErrorClassification{RecordFailure: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyHTTPError(tc.err); got != tc.want {
				t.Fatalf("ClassifyHTTPError() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestWrapTemporaryMarksRetryable(t *testing.T) {
	err := WrapTemporary("rerank", &HTTPStatusError{StatusCode: 502}, ClassifyHTTPError)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary kind, got %v", err)
	}
	err = WrapTemporary("rerank", &HTTPStatusError{StatusCode: 422}, ClassifyHTTPError)
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("did not expect temporary kind for 422")
	}
}
