// Package api is the typed HTTP client for the storefront backend.
//
// Catalog listings are public; every other call carries the Telegram init data
// in the X-Telegram-Init-Data header. Calls are never retried.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/m3rciful/paperbot/core/logger"
	"github.com/m3rciful/paperbot/storefront"
)

// HeaderInitData carries the signed Telegram init data.
const HeaderInitData = "X-Telegram-Init-Data"

const (
	defaultTimeout       = 15 * time.Second
	defaultDialTimeout   = 5 * time.Second
	defaultTLSHandshake  = 5 * time.Second
	defaultIdleConn      = 60 * time.Second
	maxErrorBodyBytes    = 16 << 10
	maxResponseBodyBytes = 4 << 20
)

// Options configures Client.
type Options struct {
	BaseURL string
	Timeout time.Duration
	// HTTPClient overrides the default transport; used by tests.
	HTTPClient *http.Client
}

// Client talks to the storefront HTTP API.
type Client struct {
	base *url.URL
	http *http.Client
}

// New validates the base URL and builds a client.
func New(opts Options) (*Client, error) {
	raw := strings.TrimSpace(opts.BaseURL)
	if raw == "" {
		return nil, errors.New("storefront api: base url is required")
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("storefront api: invalid base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("storefront api: unsupported scheme %q", base.Scheme)
	}
	base.Path = strings.TrimRight(base.Path, "/")

	hc := opts.HTTPClient
	if hc == nil {
		hc = buildHTTPClient(opts.Timeout)
	}
	return &Client{base: base, http: hc}, nil
}

func buildHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       defaultIdleConn,
		TLSHandshakeTimeout:   defaultTLSHandshake,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// GetUser loads the account behind the init data.
func (c *Client) GetUser(ctx context.Context, initData string) (storefront.User, error) {
	var out storefront.User
	err := c.doJSON(ctx, "get_user", http.MethodGet, initData, nil, &out, "api", "user")
	return out, err
}

// ListDepartments returns the top catalog level.
func (c *Client) ListDepartments(ctx context.Context) ([]string, error) {
	return c.listStrings(ctx, "list_departments", "api", "departments")
}

// ListSemesters returns the semesters offered by a department.
func (c *Client) ListSemesters(ctx context.Context, department string) ([]string, error) {
	return c.listStrings(ctx, "list_semesters", "api", "semesters", department)
}

// ListYears returns the years available for a department semester.
func (c *Client) ListYears(ctx context.Context, department, semester string) ([]string, error) {
	return c.listStrings(ctx, "list_years", "api", "years", department, semester)
}

// ListPapers returns the papers at a fully selected catalog position.
func (c *Client) ListPapers(ctx context.Context, department, semester, year string) ([]storefront.Paper, error) {
	var out []storefront.Paper
	err := c.doJSON(ctx, "list_papers", http.MethodGet, "", nil, &out, "api", "papers", department, semester, year)
	return out, err
}

// Purchase attempts to buy a paper from the current balance.
func (c *Client) Purchase(ctx context.Context, initData string, paperID int64) (storefront.PurchaseResult, error) {
	var out storefront.PurchaseResult
	body := map[string]int64{"paperId": paperID}
	err := c.doJSON(ctx, "purchase", http.MethodPost, initData, body, &out, "api", "purchase")
	return out, err
}

// CreateInvoice asks the backend for a star invoice link.
func (c *Client) CreateInvoice(ctx context.Context, initData string, amount int) (storefront.Invoice, error) {
	var out storefront.Invoice
	body := map[string]int{"amount": amount}
	if err := c.doJSON(ctx, "create_invoice", http.MethodPost, initData, body, &out, "api", "create-invoice"); err != nil {
		return out, err
	}
	if strings.TrimSpace(out.URL) == "" {
		return out, &APIError{Op: "create_invoice", Status: http.StatusOK, Message: "invoice link missing"}
	}
	return out, nil
}

// GetPurchaseHistory lists the papers the user owns.
func (c *Client) GetPurchaseHistory(ctx context.Context, initData string) ([]storefront.PurchaseRecord, error) {
	const op = "purchase_history"
	raw, err := c.do(ctx, op, http.MethodGet, initData, nil, "api", "purchase-history")
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	res := gjson.ParseBytes(raw)
	switch {
	case !gjson.ValidBytes(raw):
		return nil, &APIError{Op: op, Status: http.StatusOK, Message: "malformed response"}
	case res.Type == gjson.Null:
		return nil, nil
	case !res.IsArray():
		return nil, &APIError{Op: op, Status: http.StatusOK, Message: "malformed response"}
	}
	items := res.Array()
	out := make([]storefront.PurchaseRecord, 0, len(items))
	for _, item := range items {
		if !item.IsObject() {
			return nil, &APIError{Op: op, Status: http.StatusOK, Message: "malformed response"}
		}
		out = append(out, storefront.PurchaseRecord{
			PaperID:    item.Get("paper_id").Int(),
			PaperName:  field(item, "paper_name"),
			Department: field(item, "department"),
			Semester:   field(item, "semester"),
			Year:       field(item, "year"),
		})
	}
	return out, nil
}

// field reads a string or number as trimmed text.
func field(item gjson.Result, key string) string {
	return strings.TrimSpace(item.Get(key).String())
}

// GetProfile loads purchase statistics.
func (c *Client) GetProfile(ctx context.Context, initData string) (storefront.ProfileStats, error) {
	var out storefront.ProfileStats
	if err := c.doJSON(ctx, "profile", http.MethodGet, initData, nil, &out, "api", "profile"); err != nil {
		return storefront.ProfileStats{}, err
	}
	if out.DepartmentStats == nil {
		out.DepartmentStats = map[string]int{}
	}
	return out, nil
}

// RequestPaper asks the backend to deliver an owned paper to the chat.
func (c *Client) RequestPaper(ctx context.Context, initData string, paperID int64) (storefront.RequestResult, error) {
	var out storefront.RequestResult
	err := c.doJSON(ctx, "request_paper", http.MethodGet, initData, nil, &out,
		"api", "request-paper", strconv.FormatInt(paperID, 10))
	return out, err
}

func (c *Client) listStrings(ctx context.Context, op string, segments ...string) ([]string, error) {
	raw, err := c.do(ctx, op, http.MethodGet, "", nil, segments...)
	if err != nil {
		return nil, err
	}
	res := gjson.ParseBytes(raw)
	if !res.IsArray() {
		return nil, &APIError{Op: op, Status: http.StatusOK, Message: "unexpected listing format"}
	}
	items := res.Array()
	out := make([]string, 0, len(items))
	for _, item := range items {
		s := strings.TrimSpace(item.String())
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (c *Client) doJSON(ctx context.Context, op, method, initData string, body, out any, segments ...string) error {
	raw, err := c.do(ctx, op, method, initData, body, segments...)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &APIError{Op: op, Status: http.StatusOK, Message: "malformed response"}
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, method, initData string, body any, segments ...string) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("storefront api: %s: encode body: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(segments...), reader)
	if err != nil {
		return nil, fmt.Errorf("storefront api: %s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if initData != "" {
		req.Header.Set(HeaderInitData, initData)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		logger.Warn(ctx, "storefront.api", "request.fail",
			slog.String("op", op),
			slog.String("status", "fail"),
			slog.Duration("duration", logger.Took(start)),
			slog.String("err", err.Error()),
		)
		return nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		apiErr := &APIError{Op: op, Status: resp.StatusCode, Message: extractMessage(raw)}
		logger.Warn(ctx, "storefront.api", "request.fail",
			slog.String("op", op),
			slog.String("status", "fail"),
			slog.Int("http_code", resp.StatusCode),
			slog.Duration("duration", logger.Took(start)),
			slog.String("err", logger.SanitizeLimit(apiErr.Error(), 256)),
		)
		return nil, apiErr
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	logger.Debug(ctx, "storefront.api", "request.ok",
		slog.String("op", op),
		slog.String("status", "ok"),
		slog.Int("http_code", resp.StatusCode),
		slog.Duration("duration", logger.Took(start)),
	)
	return raw, nil
}

func (c *Client) endpoint(segments ...string) string {
	u := *c.base
	escaped := make([]string, 0, len(segments))
	for _, s := range segments {
		escaped = append(escaped, url.PathEscape(s))
	}
	u.RawPath = c.base.EscapedPath() + "/" + strings.Join(escaped, "/")
	u.Path, _ = url.PathUnescape(u.RawPath)
	return u.String()
}

// extractMessage pulls a human readable message out of an error body.
func extractMessage(raw []byte) string {
	if len(bytes.TrimSpace(raw)) == 0 || !gjson.ValidBytes(raw) {
		return ""
	}
	for _, path := range []string{"message", "error.message", "error", "detail"} {
		if res := gjson.GetBytes(raw, path); res.Exists() && res.Type == gjson.String {
			if msg := strings.TrimSpace(res.String()); msg != "" {
				return msg
			}
		}
	}
	return ""
}
