package resilience

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/sentiment-retrainer/internal/core/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastConfig(attempts int) Config {
	return Config{
		RetryMaxAttempts:    attempts,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	}
}

func TestExecuteRetriesTransientFailure(t *testing.T) {
	exec := NewExecutor(fastConfig(3), quietLogger())

	attempts := 0
	errTemp := errors.New("connection reset")
	err := exec.Execute(context.Background(), "inference.logits", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTemp
		}
		return nil
	}, func(err error) ErrorClassification {
		return ClassifyTransient(err, func(e error) bool { return errors.Is(e, errTemp) })
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteDoesNotRetryPermanentFailure(t *testing.T) {
	exec := NewExecutor(fastConfig(3), quietLogger())

	attempts := 0
	errPermanent := errors.New("bad request")
	err := exec.Execute(context.Background(), "inference.logits", func(context.Context) error {
		attempts++
		return errPermanent
	}, func(err error) ErrorClassification {
		return ClassifyTransient(err, nil)
	})
	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteStopsOnCancelledContext(t *testing.T) {
	exec := NewExecutor(fastConfig(5), quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := exec.Execute(ctx, "nats.publish", func(context.Context) error {
		called = true
		return nil
	}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if called {
		t.Fatalf("operation must not run with a cancelled context")
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:        1,
		RetryInitialBackoff:     1 * time.Millisecond,
		RetryMaxBackoff:         1 * time.Millisecond,
		RetryMultiplier:         2,
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      50 * time.Millisecond,
		BreakerHalfOpenMaxCalls: 1,
	}, quietLogger())

	errDown := errors.New("model server down")
	classifier := func(error) ErrorClassification {
		return ErrorClassification{Retryable: false, RecordFailure: true}
	}

	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "inference.logits", func(context.Context) error {
			return errDown
		}, classifier)
		if !errors.Is(err, errDown) {
			t.Fatalf("expected failure on iteration %d, got %v", i, err)
		}
	}
	if exec.State("inference.logits") != gobreaker.StateOpen.String() {
		t.Fatalf("expected open breaker, got %s", exec.State("inference.logits"))
	}

	err := exec.Execute(context.Background(), "inference.logits", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, classifier)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open state error, got %v", err)
	}
	if !domain.IsKind(WrapTemporary("predict", err, nil), domain.ErrTemporary) {
		t.Fatalf("open breaker should be reported as temporary")
	}
}

func TestClassifyTransient(t *testing.T) {
	if c := ClassifyTransient(context.DeadlineExceeded, nil); c.Retryable || c.RecordFailure {
		t.Fatalf("deadline must not be retried or recorded: %+v", c)
	}
	if c := ClassifyTransient(gobreaker.ErrOpenState, nil); !c.Retryable {
		t.Fatalf("open breaker should be retryable: %+v", c)
	}
	if c := ClassifyTransient(errors.New("x"), nil); c.Retryable || !c.RecordFailure {
		t.Fatalf("unknown error should be permanent and recorded: %+v", c)
	}
}

func TestWrapTemporaryKeepsPermanentErrors(t *testing.T) {
	errPermanent := errors.New("bad payload")
	got := WrapTemporary("op", errPermanent, func(err error) ErrorClassification {
		return ClassifyTransient(err, nil)
	})
	if got != errPermanent {
		t.Fatalf("permanent error should pass through, got %v", got)
	}
}

func TestConfigNormalizeFillsGaps(t *testing.T) {
	cfg := Config{
		RetryInitialBackoff: time.Second,
		RetryMaxBackoff:     10 * time.Millisecond,
		BreakerFailureRatio: 3,
	}.normalize()

	def := InferencePolicy()
	if cfg.RetryMaxAttempts != def.RetryMaxAttempts {
		t.Fatalf("expected default attempts %d, got %d", def.RetryMaxAttempts, cfg.RetryMaxAttempts)
	}
	if cfg.RetryMaxBackoff != time.Second {
		t.Fatalf("max backoff must not be below initial backoff, got %s", cfg.RetryMaxBackoff)
	}
	if cfg.BreakerFailureRatio != def.BreakerFailureRatio {
		t.Fatalf("expected default failure ratio, got %v", cfg.BreakerFailureRatio)
	}
	if cfg.RetryMultiplier != def.RetryMultiplier {
		t.Fatalf("expected default multiplier, got %v", cfg.RetryMultiplier)
	}
}

func TestPublishPolicyRetriesLonger(t *testing.T) {
	inference, publish := InferencePolicy(), PublishPolicy()
	if publish.RetryMaxAttempts <= inference.RetryMaxAttempts {
		t.Fatalf("publish attempts %d should exceed inference attempts %d", publish.RetryMaxAttempts, inference.RetryMaxAttempts)
	}
	if publish.RetryMaxBackoff <= inference.RetryMaxBackoff {
		t.Fatalf("publish max backoff %s should exceed %s", publish.RetryMaxBackoff, inference.RetryMaxBackoff)
	}
}
