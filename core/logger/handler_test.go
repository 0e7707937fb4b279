package logger

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

// capture runs emit against a fresh handler and returns the single line
// it produced.
func capture(t *testing.T, format logFormat, emit func(log *slog.Logger)) string {
	t.Helper()
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 16)
	h := newStructuredHandler(handlerConfig{
		level:    slog.LevelDebug,
		writer:   aw,
		format:   format,
		keyOrder: append([]string(nil), defaultKeyOrder...),
	})
	emit(slog.New(h))
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return strings.TrimSpace(buf.String())
}

func assertOrdered(t *testing.T, line string, parts ...string) {
	t.Helper()
	pos := -1
	for _, p := range parts {
		idx := strings.Index(line, p)
		if idx <= pos {
			t.Fatalf("%q missing or out of order in %s", p, line)
		}
		pos = idx
	}
}

func TestKVLeadingKeys(t *testing.T) {
	ctx := WithUpdateMeta(WithRID(context.Background(), "rid-123"), 42, 7, 9)
	line := capture(t, formatKV, func(log *slog.Logger) {
		LogEvent(ctx, log.With("component", "app"), slog.LevelInfo, "test.event",
			slog.String("status", "ok"),
			slog.String("cause", "unit"),
		)
	})
	assertOrdered(t, line, "ts=", "level=INFO", "component=app", "event=test.event", "status=ok", "rid=rid-123")
	if !strings.HasPrefix(line, "ts=") {
		t.Fatalf("line does not start with ts: %s", line)
	}
}

func TestJSONLeadingKeys(t *testing.T) {
	ctx := WithUpdateMeta(WithRID(context.Background(), "rid-json"), 11, 22, 33)
	line := capture(t, formatJSON, func(log *slog.Logger) {
		LogEvent(ctx, log.With("component", "delivery"), slog.LevelError, "send.failed",
			slog.String("status", "fail"),
			slog.String("err", "boom"),
		)
	})
	assertOrdered(t, line, `{"ts":`, `"level":"ERROR"`, `"component":"delivery"`, `"event":"send.failed"`, `"status":"fail"`, `"rid":"rid-json"`)
}

func TestCompactRID(t *testing.T) {
	raw := BuildRID(123, 456, 789)
	if got := CompactRID(raw); got != "3f.co.lx" {
		t.Fatalf("CompactRID(%q) = %q", raw, got)
	}
	if got := CompactRID("not-a-rid"); got != "not-a-rid" {
		t.Fatalf("CompactRID kept %q", got)
	}

	ctx := WithRID(context.Background(), raw)
	kv := capture(t, formatKV, func(log *slog.Logger) {
		LogEvent(ctx, log, slog.LevelInfo, "rid.test", slog.String("status", "ok"))
	})
	if !strings.Contains(kv, "rid="+CompactRID(raw)) || strings.Contains(kv, "rid_full=") {
		t.Fatalf("kv rid: %s", kv)
	}
	js := capture(t, formatJSON, func(log *slog.Logger) {
		LogEvent(ctx, log, slog.LevelInfo, "rid.test", slog.String("status", "ok"))
	})
	for _, want := range []string{`"rid":"` + CompactRID(raw) + `"`, `"rid_full":"` + raw + `"`, `"ts_unix_nano"`} {
		if !strings.Contains(js, want) {
			t.Fatalf("json missing %s: %s", want, js)
		}
	}
}

func TestSecretsAreRedacted(t *testing.T) {
	line := capture(t, formatJSON, func(log *slog.Logger) {
		LogEvent(context.Background(), log, slog.LevelInfo, "auth.check",
			slog.String("init_data", "query_id=AA&hash=abc"),
			slog.Group("telegram", slog.String("bot_token", "123:XYZ")),
			slog.String("user", "alice"),
		)
	})
	if strings.Contains(line, "abc") || strings.Contains(line, "123:XYZ") {
		t.Fatalf("secret leaked: %s", line)
	}
	if !strings.Contains(line, `"telegram.bot_token":"`+redacted+`"`) || !strings.Contains(line, `"user":"alice"`) {
		t.Fatalf("unexpected line: %s", line)
	}
}

func TestOutcomeEnumeration(t *testing.T) {
	for outcome, kept := range map[string]bool{"needs_payment": true, "completed": true, "REJECTED": true, "bogus": false} {
		line := capture(t, formatKV, func(log *slog.Logger) {
			LogEvent(context.Background(), log, slog.LevelInfo, "purchase", slog.String("outcome", outcome))
		})
		if got := strings.Contains(line, "outcome="); got != kept {
			t.Errorf("outcome %q kept=%v: %s", outcome, got, line)
		}
	}
}

func TestDurationsInMilliseconds(t *testing.T) {
	line := capture(t, formatKV, func(log *slog.Logger) {
		LogEvent(context.Background(), log, slog.LevelInfo, "timed",
			slog.Duration("duration", 1500*time.Microsecond),
			slog.Duration("send_duration", 2*time.Second),
		)
	})
	for _, want := range []string{"duration_ms=2", "send_duration_ms=2000"} {
		if !strings.Contains(line, want) {
			t.Fatalf("missing %s in %s", want, line)
		}
	}
}

func TestSummarizeStrings(t *testing.T) {
	vals := []string{"a", "b", "c"}
	if s, cut := SummarizeStrings(vals, 2); s != "a, b" || !cut {
		t.Fatalf("limit 2: %q %v", s, cut)
	}
	if s, cut := SummarizeStrings(vals, 5); s != "a, b, c" || cut {
		t.Fatalf("limit 5: %q %v", s, cut)
	}
	if s, cut := SummarizeStrings(vals, 0); s != "" || !cut {
		t.Fatalf("limit 0: %q %v", s, cut)
	}
	if RoundMS(-time.Second) != 0 {
		t.Fatal("negative duration not clamped")
	}
}

func TestDebugRatio(t *testing.T) {
	cases := map[string][2]int{
		"1/10":    {1, 10},
		"5":       {1, 5},
		"0/0":     {0, 0},
		"garbage": {1, 50},
		"-1/4":    {1, 50},
	}
	for spec, want := range cases {
		if n, d := debugRatio(spec); n != want[0] || d != want[1] {
			t.Errorf("debugRatio(%q) = %d/%d", spec, n, d)
		}
	}
}

func TestSamplerRatio(t *testing.T) {
	var s ratioSampler
	s.Set(1, 4)
	allowed := 0
	for i := 0; i < 40; i++ {
		if s.Allow() {
			allowed++
		}
	}
	if allowed != 10 {
		t.Fatalf("allowed %d of 40", allowed)
	}
}

func TestWithGroupDoesNotRenameBoundAttrs(t *testing.T) {
	line := capture(t, formatKV, func(log *slog.Logger) {
		log.With("component", "delivery").WithGroup("sink").Info("", "event", "ok", "name", "redis")
	})
	if !strings.Contains(line, "component=delivery") || !strings.Contains(line, "sink.name=redis") {
		t.Fatalf("line = %s", line)
	}
}
