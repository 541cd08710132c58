package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestDo_FirstAttemptSucceeds(t *testing.T) {
	calls := 0
	out, err := Do(context.Background(), fastPolicy(3), zerolog.Nop(), "op", func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil || out != "ok" {
		t.Fatalf("Do = (%q, %v)", out, err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d; want 1", calls)
	}
}

func TestDo_SucceedsAfterTransientErrors(t *testing.T) {
	calls := 0
	out, err := Do(context.Background(), fastPolicy(3), zerolog.Nop(), "op", func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	if err != nil || out != 42 {
		t.Fatalf("Do = (%d, %v)", out, err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d; want 3", calls)
	}
}

func TestDo_PermanentErrorStopsImmediately(t *testing.T) {
	sentinel := errors.New("bad request")
	calls := 0
	_, err := Do(context.Background(), fastPolicy(5), zerolog.Nop(), "op", func(context.Context) (int, error) {
		calls++
		return 0, Permanent(sentinel)
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v; want sentinel unwrapped", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d; want 1", calls)
	}
}

func TestDo_ExhaustionWrapsLastError(t *testing.T) {
	last := errors.New("still failing")
	calls := 0
	_, err := Do(context.Background(), fastPolicy(3), zerolog.Nop(), "op", func(context.Context) (int, error) {
		calls++
		return 0, last
	})
	if calls != 3 {
		t.Fatalf("calls = %d; want 3", calls)
	}
	if !errors.Is(err, last) {
		t.Fatalf("err = %v; want wrapped last error", err)
	}
}

func TestDo_ContextCancelStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	p := Policy{MaxAttempts: 5, BaseDelay: 50 * time.Millisecond, MaxDelay: 50 * time.Millisecond}
	_, err := Do(ctx, p, zerolog.Nop(), "op", func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v; want context.Canceled", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d; want 1", calls)
	}
}
