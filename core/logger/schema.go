package logger

import "strings"

const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

const redacted = "[redacted]"

var allowedLevels = map[string]string{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
}

var allowedStatus = map[string]bool{
	"ok":           true,
	"fail":         true,
	"skip":         true,
	"retry":        true,
	"rate_limited": true,
	"cancelled":    true,
}

// Purchase outcomes share the field with handler results.
var allowedOutcome = map[string]bool{
	"ok":            true,
	"fail":          true,
	"cancelled":     true,
	"rate_limited":  true,
	"completed":     true,
	"needs_payment": true,
	"rejected":      true,
}

// Signed init data, its hash and bot tokens never reach the log.
var secretKeys = map[string]bool{
	"init_data":      true,
	"hash":           true,
	"token":          true,
	"bot_token":      true,
	"provider_token": true,
	"password":       true,
}

func normalizeLevel(level string) string {
	if level == "" {
		return LevelInfo
	}
	if mapped, ok := allowedLevels[strings.ToLower(level)]; ok {
		return mapped
	}
	return strings.ToUpper(level)
}

func normalizeEnum(allowed map[string]bool, raw string) (string, bool) {
	v := strings.ToLower(strings.TrimSpace(raw))
	return v, v != "" && allowed[v]
}

func isSecretKey(key string) bool {
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		key = key[i+1:]
	}
	return secretKeys[strings.ToLower(key)]
}

var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"ts_unix_nano",
	"update_id",
	"user_id",
	"chat_id",
	"chat_type",
	"handler",
	"op",
	"cb_key",
	"tab",
	"panel",
	"paper_id",
	"outcome",
	"required_stars",
	"stars",
	"amount",
	"currency",
	"invoice_id",
	"popup_id",
	"button",
	"sink",
	"envelope_id",
	"duration_ms",
	"endpoint",
	"http_code",
	"payload",
	"username",
	"mode",
	"listen",
	"public_url",
	"db",
	"host",
	"port",
	"err",
	"err_code",
	"cause",
	"attempt",
	"attempts",
	"retryable",
}
