// Package netutil classifies outbound call failures for retry and logging.
package netutil

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

var tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)

// Temporary is implemented by errors that know they are transient, such as
// broker reconnects in the delivery sinks.
type Temporary interface {
	Temporary() bool
}

type temporaryError struct{ err error }

func (e temporaryError) Error() string   { return e.err.Error() }
func (e temporaryError) Unwrap() error   { return e.err }
func (e temporaryError) Temporary() bool { return true }

// MarkTemporary wraps err so ShouldRetry accepts it.
func MarkTemporary(err error) error {
	if err == nil {
		return nil
	}
	return temporaryError{err: err}
}

// ShouldRetry reports whether err is worth another attempt: network
// timeouts and dial failures, Telegram flood control and 5xx answers, and
// errors marked temporary.
func ShouldRetry(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var tmp Temporary
	if errors.As(err, &tmp) && tmp.Temporary() {
		return true
	}
	if RetryAfter(err) > 0 {
		return true
	}
	if code := StatusCode(err); code >= 500 {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	return false
}

// RetryAfter returns the wait Telegram asked for on a 429, or 0.
func RetryAfter(err error) time.Duration {
	var flood tele.FloodError
	if errors.As(err, &flood) && flood.RetryAfter > 0 {
		return time.Duration(flood.RetryAfter) * time.Second
	}
	return 0
}

// StatusCode extracts the HTTP or Bot API error code from err, or 0.
func StatusCode(err error) int {
	if err == nil {
		return 0
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return http.StatusTooManyRequests
	}
	var groupErr tele.GroupError
	if errors.As(err, &groupErr) {
		return http.StatusBadRequest
	}
	// telebot renders unknown API failures as "telegram: <text> (<code>)"
	msg := err.Error()
	open, end := strings.LastIndex(msg, "("), strings.LastIndex(msg, ")")
	if open >= 0 && end > open+1 {
		if code, convErr := strconv.Atoi(strings.TrimSpace(msg[open+1 : end])); convErr == nil {
			return code
		}
	}
	return 0
}

// Classify buckets err for the error_kind log field.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return "timeout"
		}
		return "dns"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return "dial"
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return "timeout"
	}
	var alertErr tls.AlertError
	if errors.As(err, &alertErr) {
		return "tls"
	}
	switch code := StatusCode(err); {
	case code == http.StatusTooManyRequests:
		return "flood"
	case code >= 500:
		return "http_5xx"
	case code >= 400:
		return "http_4xx"
	}
	var tmp Temporary
	if errors.As(err, &tmp) && tmp.Temporary() {
		return "temporary"
	}
	return "unknown"
}

// Redact removes bot tokens embedded in request URLs from msg.
func Redact(msg string) string {
	return tokenRe.ReplaceAllString(msg, "bot<redacted>")
}

type redactedError struct {
	msg string
	err error
}

func (e redactedError) Error() string { return e.msg }
func (e redactedError) Unwrap() error { return e.err }

// RedactError returns err with bot tokens removed from its message. The
// original stays reachable through errors.Unwrap.
func RedactError(err error) error {
	if err == nil {
		return nil
	}
	if msg := Redact(err.Error()); msg != err.Error() {
		return redactedError{msg: msg, err: err}
	}
	return err
}
