package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	var calls int
	err := Do(context.Background(), DefaultPolicy(), func(_ context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_RetriesTransient(t *testing.T) {
	var calls int
	var retried []int
	p := fastPolicy(3)
	p.OnRetry = func(attempt int, _ error) { retried = append(retried, attempt) }

	err := Do(context.Background(), p, func(_ context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("overloaded"), 529)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if len(retried) != 2 || retried[0] != 1 || retried[1] != 2 {
		t.Errorf("unexpected retry attempts %v", retried)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastPolicy(4), func(_ context.Context) error {
		calls++
		return NewTransientError(errors.New("down"), 503)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 4 {
		t.Errorf("expected 4 calls, got %d", calls)
	}
}

func TestDo_PermanentErrorNotRetried(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastPolicy(5), func(_ context.Context) error {
		calls++
		return errors.New("invalid api key")
	})
	if err == nil || calls != 1 {
		t.Fatalf("expected one failing call, got %d calls, err %v", calls, err)
	}
}

func TestDo_CustomRetryable(t *testing.T) {
	var calls int
	p := fastPolicy(3)
	p.Retryable = func(error) bool { return true }
	_ = Do(context.Background(), p, func(_ context.Context) error {
		calls++
		return errors.New("anything")
	})
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 5, InitialBackoff: time.Hour, MaxBackoff: time.Hour}
	p.OnRetry = func(int, error) { cancel() }

	var calls int
	start := time.Now()
	err := Do(ctx, p, func(_ context.Context) error {
		calls++
		return NewTransientError(errors.New("busy"), 429)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if time.Since(start) > time.Second {
		t.Error("backoff was not interrupted")
	}
}

func TestDoVal_ReturnsValue(t *testing.T) {
	var calls int
	v, err := DoVal(context.Background(), fastPolicy(3), func(_ context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", NewTransientError(errors.New("reset"), 0)
		}
		return "leads", nil
	})
	if err != nil || v != "leads" {
		t.Fatalf("got %q, %v", v, err)
	}
}

func TestPolicy_Backoff(t *testing.T) {
	p := Policy{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 350 * time.Millisecond}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 350 * time.Millisecond, 350 * time.Millisecond}
	for i, w := range want {
		if got := p.backoff(i + 1); got != w {
			t.Errorf("attempt %d: got %v, want %v", i+1, got, w)
		}
	}

	p.Jitter = 0.5
	for i := 0; i < 50; i++ {
		d := p.backoff(1)
		if d < 50*time.Millisecond || d > 150*time.Millisecond {
			t.Fatalf("jittered delay %v out of range", d)
		}
	}
}

func TestPolicyFromConfig(t *testing.T) {
	p := PolicyFromConfig(0, 0, 0)
	if p.MaxAttempts != 3 || p.InitialBackoff != 500*time.Millisecond || p.MaxBackoff != 30*time.Second || p.Jitter != 0.25 {
		t.Errorf("unexpected defaults %+v", p)
	}
	p = PolicyFromConfig(7, 250, 2000)
	if p.MaxAttempts != 7 || p.InitialBackoff != 250*time.Millisecond || p.MaxBackoff != 2*time.Second {
		t.Errorf("unexpected policy %+v", p)
	}
}
