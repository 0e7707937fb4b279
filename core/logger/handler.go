package logger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"

	tsLayout = "2006-01-02T15:04:05.000Z07:00"
)

type handlerConfig struct {
	level    slog.Leveler
	writer   *asyncWriter
	format   logFormat
	keyOrder []string
}

// fields is one log line before encoding. Group attrs are flattened into
// dotted keys.
type fields map[string]any

type boundField struct {
	key string
	val any
}

// structuredHandler writes every record as a single flat line. Keys listed
// in keyOrder come first; the rest follow in lexical order.
type structuredHandler struct {
	cfg    handlerConfig
	bound  []boundField
	prefix string
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if cfg.keyOrder == nil {
		cfg.keyOrder = append([]string(nil), defaultKeyOrder...)
	}
	return &structuredHandler{cfg: cfg}
}

func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.writer == nil {
		return errors.New("logger: writer not initialized")
	}
	asJSON := h.cfg.format == formatJSON

	ts := r.Time.UTC()
	f := fields{
		"ts":    ts.Truncate(time.Millisecond).Format(tsLayout),
		"level": normalizeLevel(r.Level.String()),
	}
	if asJSON {
		f["ts_unix_nano"] = ts.UnixNano()
	}
	for _, b := range h.bound {
		f[b.key] = b.val
	}
	r.Attrs(func(a slog.Attr) bool {
		f.add(h.prefix, a)
		return true
	})
	addContextFields(ctx, f)

	if rid := f.str("rid"); rid != "" {
		if short := CompactRID(rid); short != rid {
			if _, set := f["rid_full"]; asJSON && !set {
				f["rid_full"] = rid
			}
			f["rid"] = short
		}
	}
	if f.str("event") == "" {
		f["event"] = firstNonEmpty(r.Message, "unknown")
	}
	if f.str("component") == "" {
		f["component"] = "app"
	}
	sanitizeEnumerations(f)
	f.prune()

	var line []byte
	if asJSON {
		var err error
		if line, err = f.json(h.cfg.keyOrder); err != nil {
			return err
		}
	} else {
		line = f.kv(h.cfg.keyOrder)
	}
	return h.cfg.writer.Write(append(line, '\n'))
}

// WithAttrs binds attrs under the current group prefix.
func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	tmp := fields{}
	for _, a := range attrs {
		tmp.add(h.prefix, a)
	}
	clone := *h
	clone.bound = append([]boundField(nil), h.bound...)
	for k, v := range tmp {
		clone.bound = append(clone.bound, boundField{key: k, val: v})
	}
	return &clone
}

func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = joinKey(h.prefix, name)
	return &clone
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	}
	return prefix + "." + key
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// add stores a, flattening groups and resolving LogValuers.
func (f fields) add(prefix string, a slog.Attr) {
	val := a.Value.Resolve()
	key := joinKey(prefix, a.Key)
	if val.Kind() == slog.KindGroup {
		for _, child := range val.Group() {
			f.add(key, child)
		}
		return
	}
	if key == "" {
		return
	}
	if k, v, ok := normalizeAttr(key, val); ok {
		f[k] = v
	}
}

func (f fields) str(key string) string {
	switch v := f[key].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	}
	return ""
}

func (f fields) prune() {
	for k, v := range f {
		if v == nil || f.str(k) == "" && isStringish(v) {
			delete(f, k)
		}
	}
}

func isStringish(v any) bool {
	switch v.(type) {
	case string, fmt.Stringer:
		return true
	}
	return false
}

// keys returns the field names with the order list first.
func (f fields) keys(order []string) []string {
	out := make([]string, 0, len(f))
	used := make(map[string]bool, len(order))
	for _, k := range order {
		if _, ok := f[k]; ok && !used[k] {
			out = append(out, k)
			used[k] = true
		}
	}
	head := len(out)
	for k := range f {
		if !used[k] {
			out = append(out, k)
		}
	}
	sort.Strings(out[head:])
	return out
}

func (f fields) json(order []string) ([]byte, error) {
	buf := []byte{'{'}
	for i, k := range f.keys(order) {
		v, err := json.Marshal(f[k])
		if err != nil {
			return nil, fmt.Errorf("logger: encode %s: %w", k, err)
		}
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendQuote(buf, k)
		buf = append(buf, ':')
		buf = append(buf, v...)
	}
	return append(buf, '}'), nil
}

func (f fields) kv(order []string) []byte {
	var buf []byte
	for i, k := range f.keys(order) {
		if i > 0 {
			buf = append(buf, ' ')
		}
		buf = append(buf, k...)
		buf = append(buf, '=')
		buf = append(buf, kvValue(f[k])...)
	}
	return buf
}

func kvValue(v any) string {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		s = fmt.Sprint(x)
	}
	if strings.IndexFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) >= 0 {
		return strconv.Quote(s)
	}
	return s
}

// durationKey names a duration field after its unit.
func durationKey(key string) string {
	switch {
	case key == "duration":
		return "duration_ms"
	case strings.HasSuffix(key, "_ms"):
		return key
	}
	return key + "_ms"
}

func normalizeAttr(key string, val slog.Value) (string, any, bool) {
	if isSecretKey(key) {
		return key, redacted, true
	}
	switch val.Kind() {
	case slog.KindString:
		return key, strings.TrimSpace(val.String()), true
	case slog.KindBool:
		return key, val.Bool(), true
	case slog.KindInt64:
		return key, val.Int64(), true
	case slog.KindUint64:
		if u := val.Uint64(); u <= math.MaxInt64 {
			return key, int64(u), true
		}
		return key, val.Uint64(), true
	case slog.KindFloat64:
		return key, val.Float64(), true
	case slog.KindDuration:
		return durationKey(key), RoundMS(val.Duration()).Milliseconds(), true
	case slog.KindTime:
		return key, val.Time().UTC().Format(time.RFC3339Nano), true
	}
	switch x := val.Any().(type) {
	case nil:
		return "", nil, false
	case error:
		return key, x.Error(), true
	case time.Duration:
		return durationKey(key), RoundMS(x).Milliseconds(), true
	case fmt.Stringer:
		return key, x.String(), true
	default:
		return key, fmt.Sprint(x), true
	}
}

// sanitizeEnumerations lowercases known status values and drops outcomes
// outside the known set so dashboards can group on the field.
func sanitizeEnumerations(f fields) {
	if s := f.str("status"); s != "" {
		if v, known := normalizeEnum(allowedStatus, s); known {
			f["status"] = v
		}
	}
	if o := f.str("outcome"); o != "" {
		if v, known := normalizeEnum(allowedOutcome, o); known {
			f["outcome"] = v
		} else {
			delete(f, "outcome")
		}
	}
}

func addContextFields(ctx context.Context, f fields) {
	if ctx == nil {
		return
	}
	fill := func(key string, v any, present bool) {
		if _, set := f[key]; present && !set {
			f[key] = v
		}
	}
	rid := RIDFrom(ctx)
	fill("rid", rid, rid != "")
	uid := UserIDFrom(ctx)
	fill("user_id", uid, uid != 0)
	upd := UpdateIDFrom(ctx)
	fill("update_id", upd, upd != 0)
	cid := ChatIDFrom(ctx)
	fill("chat_id", cid, cid != 0)
	name := HandlerFrom(ctx)
	fill("handler", name, name != "")
}
