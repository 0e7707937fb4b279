package netutil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"
)

func TestShouldRetry(t *testing.T) {
	dial := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("bad request"), false},
		{"cancelled", fmt.Errorf("send: %w", context.Canceled), false},
		{"dial", &url.Error{Op: "Post", URL: "https://api.telegram.org", Err: dial}, true},
		{"marked temporary", MarkTemporary(errors.New("broker reconnecting")), true},
		{"wrapped temporary", fmt.Errorf("deliver: %w", MarkTemporary(errors.New("x"))), true},
		{"api 502", &tele.Error{Code: 502, Description: "Bad Gateway"}, true},
		{"api 403", &tele.Error{Code: 403, Description: "Forbidden: bot was blocked by the user"}, false},
		{"code in text", errors.New("telegram: internal error (500)"), true},
	}
	for _, tc := range cases {
		if got := ShouldRetry(tc.err); got != tc.want {
			t.Errorf("%s: ShouldRetry = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestMarkTemporaryNil(t *testing.T) {
	if MarkTemporary(nil) != nil {
		t.Fatal("nil must stay nil")
	}
	base := errors.New("base")
	if !errors.Is(MarkTemporary(base), base) {
		t.Fatal("marked error must unwrap to base")
	}
}

func TestClassify(t *testing.T) {
	cases := map[string]error{
		"timeout":   context.DeadlineExceeded,
		"dns":       &net.DNSError{Err: "no such host", Name: "api.telegram.org"},
		"dial":      &net.OpError{Op: "dial", Err: errors.New("refused")},
		"http_4xx":  &tele.Error{Code: 400},
		"http_5xx":  &tele.Error{Code: 503},
		"temporary": MarkTemporary(errors.New("nack")),
		"unknown":   errors.New("boom"),
	}
	for want, err := range cases {
		if got := Classify(err); got != want {
			t.Errorf("Classify(%v) = %q, want %q", err, got, want)
		}
	}
	if Classify(nil) != "" {
		t.Error("nil must classify as empty")
	}
}

func TestRetryAfterWithoutFlood(t *testing.T) {
	if d := RetryAfter(errors.New("x")); d != 0 {
		t.Fatalf("RetryAfter = %s", d)
	}
	if d := RetryAfter(nil); d != time.Duration(0) {
		t.Fatalf("RetryAfter(nil) = %s", d)
	}
}

func TestRedact(t *testing.T) {
	msg := `Post "https://api.telegram.org/bot123456:AAH-secret_x/sendMessage": EOF`
	got := Redact(msg)
	if got != `Post "https://api.telegram.org/bot<redacted>/sendMessage": EOF` {
		t.Fatalf("Redact = %s", got)
	}
}

func TestRedactError(t *testing.T) {
	base := &url.Error{Op: "Post", URL: "https://api.telegram.org/bot1:abc/getMe", Err: errors.New("EOF")}
	err := RedactError(base)
	if got := err.Error(); got != `Post "https://api.telegram.org/bot<redacted>/getMe": EOF` {
		t.Fatalf("message = %s", got)
	}
	var ue *url.Error
	if !errors.As(err, &ue) {
		t.Fatal("url.Error lost")
	}
	plain := errors.New("plain")
	if RedactError(plain) != plain || RedactError(nil) != nil {
		t.Fatal("untouched errors should pass through")
	}
}
