package telegram

import (
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	coreconfig "github.com/m3rciful/paperbot/core/config"

	tele "gopkg.in/telebot.v4"
)

func TestBuildPoller(t *testing.T) {
	cfg := &coreconfig.Config{}
	cfg.Telegram.RunMode = coreconfig.RunModeLongpoll
	lp, ok := BuildPoller(cfg).(*tele.LongPoller)
	if !ok || lp.Timeout != defaultLongPoll {
		t.Fatalf("longpoll = %#v", lp)
	}
	if !containsString(lp.AllowedUpdates, "pre_checkout_query") {
		t.Fatalf("allowed updates = %v", lp.AllowedUpdates)
	}

	cfg.Telegram.RunMode = coreconfig.RunModeWebhook
	cfg.Webhook.Listen, cfg.Webhook.Port = "0.0.0.0", 8443
	cfg.Webhook.URL, cfg.Webhook.SecretToken = "https://bot.example/hook", "s3cret"
	wh, ok := BuildPoller(cfg).(*tele.Webhook)
	if !ok || wh.Listen != "0.0.0.0:8443" || wh.SecretToken != "s3cret" || wh.Endpoint.PublicURL != cfg.Webhook.URL {
		t.Fatalf("webhook = %#v", wh)
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestHTTPClientOutlivesLongPoll(t *testing.T) {
	c := BuildHTTPClient(50 * time.Second)
	if c.Timeout <= 50*time.Second {
		t.Fatalf("client timeout %s cuts long polls short", c.Timeout)
	}
}

type scriptedTransport struct {
	errs   []error
	calls  int
	bodies []string
}

func (s *scriptedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	s.calls++
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		s.bodies = append(s.bodies, string(b))
	}
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
}

func TestDialRetryRepeatsOnlyDialFailures(t *testing.T) {
	dialErr := &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	base := &scriptedTransport{errs: []error{dialErr, dialErr}}
	rt := &dialRetry{base: base, attempts: 3}

	req, _ := http.NewRequest(http.MethodPost, "https://api.telegram.org/botX/sendMessage", strings.NewReader("payload"))
	resp, err := rt.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("resp=%v err=%v", resp, err)
	}
	if base.calls != 3 || base.bodies[2] != "payload" {
		t.Fatalf("calls=%d bodies=%q", base.calls, base.bodies)
	}

	readErr := &net.OpError{Op: "read", Err: errors.New("reset")}
	base = &scriptedTransport{errs: []error{readErr}}
	rt = &dialRetry{base: base, attempts: 3}
	req, _ = http.NewRequest(http.MethodPost, "https://api.telegram.org/botX/sendMessage", strings.NewReader("payload"))
	if _, err := rt.RoundTrip(req); !errors.Is(err, readErr) {
		t.Fatalf("err = %v", err)
	}
	if base.calls != 1 {
		t.Fatalf("read failure retried %d times", base.calls-1)
	}
}
