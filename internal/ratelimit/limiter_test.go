package ratelimit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/lumakode/go-chatbot-backend/internal/config"
)

// fakeScripter mirrors the sliding-window script in Go over in-memory sorted
// sets so decisions can be asserted without a Redis server.
type fakeScripter struct {
	zsets map[string]map[string]int64 // key -> member -> score (ms)
	fail  error
	calls int
}

func newFakeScripter() *fakeScripter {
	return &fakeScripter{zsets: map[string]map[string]int64{}}
}

func (f *fakeScripter) eval(keys []string, args []interface{}) (int64, error) {
	f.calls++
	if f.fail != nil {
		return 0, f.fail
	}
	window := toInt64(args[0])
	now := toInt64(args[1])
	member := args[2].(string)
	limits := [3]int64{toInt64(args[3]), toInt64(args[4]), toInt64(args[5])}
	cutoff := now - window

	for i, k := range keys {
		set := f.zsets[k]
		for m, score := range set {
			if score <= cutoff {
				delete(set, m)
			}
		}
		if int64(len(set)) >= limits[i] {
			return int64(i + 1), nil
		}
	}
	for _, k := range keys {
		if f.zsets[k] == nil {
			f.zsets[k] = map[string]int64{}
		}
		f.zsets[k][member] = now
	}
	return 0, nil
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		panic(fmt.Sprintf("unexpected arg type %T", v))
	}
}

func (f *fakeScripter) Eval(_ context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return redis.NewCmdResult(f.evalResult(keys, args))
}

func (f *fakeScripter) EvalSha(_ context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return redis.NewCmdResult(f.evalResult(keys, args))
}

func (f *fakeScripter) EvalRO(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return f.Eval(ctx, script, keys, args...)
}

func (f *fakeScripter) EvalShaRO(ctx context.Context, sha string, keys []string, args ...interface{}) *redis.Cmd {
	return f.EvalSha(ctx, sha, keys, args...)
}

func (f *fakeScripter) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (f *fakeScripter) ScriptLoad(_ context.Context, _ string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}

func (f *fakeScripter) evalResult(keys []string, args []interface{}) (interface{}, error) {
	n, err := f.eval(keys, args)
	if err != nil {
		return nil, err
	}
	return n, nil
}

func testConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:   true,
		RedisAddr: "fake:6379",
		Window:    15 * time.Minute,
		MaxPerIP:  8,
		MaxPerUsr: 6,
		MaxPerOrd: 4,
		Timeout:   time.Second,
	}
}

func testLimiter(f *fakeScripter, cfg config.RateLimitConfig) *Limiter {
	return NewWithScripter(f, cfg, zerolog.Nop())
}

func TestAllow_OrderCapBlocksFifthAttempt(t *testing.T) {
	f := newFakeScripter()
	l := testLimiter(f, testConfig())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		// Different IPs and users so only the order dimension accumulates.
		d := l.Allow(ctx, fmt.Sprintf("10.0.0.%d", i), fmt.Sprintf("user-%d", i), "ORD-1", fmt.Sprintf("evt-%d", i))
		if !d.Allowed {
			t.Fatalf("attempt %d unexpectedly blocked: %+v", i+1, d)
		}
	}
	d := l.Allow(ctx, "10.0.0.99", "user-99", "ORD-1", "evt-99")
	if d.Allowed || d.BlockedBy != DimensionOrder {
		t.Fatalf("fifth attempt = %+v; want blocked by order", d)
	}
}

func TestAllow_IPDimensionChecksFirst(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPerIP = 1
	cfg.MaxPerOrd = 1
	f := newFakeScripter()
	l := testLimiter(f, cfg)
	ctx := context.Background()

	if d := l.Allow(ctx, "10.0.0.1", "u1", "ORD-1", "evt-1"); !d.Allowed {
		t.Fatalf("first attempt blocked: %+v", d)
	}
	// Both the IP and order caps are now met; IP reports first.
	d := l.Allow(ctx, "10.0.0.1", "u2", "ORD-1", "evt-2")
	if d.Allowed || d.BlockedBy != DimensionIP {
		t.Fatalf("decision = %+v; want blocked by ip", d)
	}
}

func TestAllow_BlockedAttemptNotRecorded(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPerIP = 1
	f := newFakeScripter()
	l := testLimiter(f, cfg)
	ctx := context.Background()

	l.Allow(ctx, "10.0.0.1", "u1", "ORD-1", "evt-1")
	l.Allow(ctx, "10.0.0.1", "u2", "ORD-2", "evt-2") // blocked by ip

	// The blocked attempt must not have consumed the user or order budget.
	if key := "orderrl:user:" + hashKey("u2"); len(f.zsets[key]) != 0 {
		t.Fatalf("blocked attempt leaked into user dimension: %v", f.zsets[key])
	}
	if key := "orderrl:order:" + hashKey("ORD-2"); len(f.zsets[key]) != 0 {
		t.Fatalf("blocked attempt leaked into order dimension: %v", f.zsets[key])
	}
}

func TestAllow_WindowElapseFreesBudget(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPerOrd = 1
	f := newFakeScripter()
	l := testLimiter(f, cfg)
	ctx := context.Background()

	base := time.Now()
	l.now = func() time.Time { return base }

	if d := l.Allow(ctx, "ip1", "u1", "ORD-1", "evt-1"); !d.Allowed {
		t.Fatalf("first attempt blocked: %+v", d)
	}
	if d := l.Allow(ctx, "ip2", "u2", "ORD-1", "evt-2"); d.Allowed {
		t.Fatalf("second attempt inside window must be blocked")
	}

	l.now = func() time.Time { return base.Add(cfg.Window + time.Second) }
	if d := l.Allow(ctx, "ip3", "u3", "ORD-1", "evt-3"); !d.Allowed {
		t.Fatalf("attempt after window elapsed blocked: %+v", d)
	}
}

func TestAllow_DistinctOrdersIndependent(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPerOrd = 1
	f := newFakeScripter()
	l := testLimiter(f, cfg)
	ctx := context.Background()

	l.Allow(ctx, "ip1", "u1", "ORD-1", "evt-1")
	if d := l.Allow(ctx, "ip2", "u2", "ORD-2", "evt-2"); !d.Allowed {
		t.Fatalf("different order must have its own budget: %+v", d)
	}
}

func TestAllow_RedisFailureFailsOpen(t *testing.T) {
	f := newFakeScripter()
	f.fail = errors.New("dial tcp: connection refused")
	l := testLimiter(f, testConfig())

	d := l.Allow(context.Background(), "ip1", "u1", "ORD-1", "evt-1")
	if !d.Allowed || !d.Degraded {
		t.Fatalf("decision = %+v; want allowed and degraded", d)
	}
}

func TestAllow_DisabledSkipsRedis(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	f := newFakeScripter()
	l := testLimiter(f, cfg)

	d := l.Allow(context.Background(), "ip1", "u1", "ORD-1", "evt-1")
	if !d.Allowed || !d.Degraded {
		t.Fatalf("decision = %+v; want allowed and degraded", d)
	}
	if f.calls != 0 {
		t.Fatalf("disabled limiter must not touch redis, saw %d calls", f.calls)
	}
}

func TestAllow_EnabledWithoutRedisDegradesAndWarnsOnce(t *testing.T) {
	cfg := testConfig()
	cfg.RedisAddr = ""

	var buf bytes.Buffer
	l := New(cfg, zerolog.New(&buf))

	for i := 0; i < 3; i++ {
		d := l.Allow(context.Background(), "ip1", "u1", "ORD-1", fmt.Sprintf("evt-%d", i))
		if !d.Allowed || !d.Degraded {
			t.Fatalf("call %d: decision = %+v; want allowed and degraded", i, d)
		}
	}

	logged := buf.String()
	if !strings.Contains(logged, "without a redis address") {
		t.Fatalf("missing-config warning not logged: %q", logged)
	}
	if strings.Count(logged, "without a redis address") != 1 {
		t.Fatalf("missing-config warning must be logged once, got: %q", logged)
	}
}
