// Package initdata builds and checks Telegram WebApp init data.
//
// The storefront backend authenticates callers by the X-Telegram-Init-Data
// header. The bot owns the same token the backend validates against, so it can
// issue init data for the chat user it is serving.
package initdata

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrMissingHash is returned when the init data carries no hash.
	ErrMissingHash = errors.New("initdata: hash is missing")
	// ErrSignatureMismatch is returned when the hash does not verify.
	ErrSignatureMismatch = errors.New("initdata: signature mismatch")
	// ErrExpired is returned when auth_date is older than the allowed age.
	ErrExpired = errors.New("initdata: expired")
)

// User mirrors the WebApp user object.
type User struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
	IsPremium    bool   `json:"is_premium,omitempty"`
}

// Data is the decoded form of init data.
type Data struct {
	QueryID  string
	User     User
	ChatType string
	AuthDate time.Time
}

// Signer issues init data for a bot token.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner derives the WebApp secret from the bot token.
func NewSigner(botToken string) (*Signer, error) {
	if strings.TrimSpace(botToken) == "" {
		return nil, errors.New("initdata: empty bot token")
	}
	return &Signer{secret: secretKey(botToken), now: time.Now}, nil
}

// Sign returns a URL-encoded init data string for the user.
func (s *Signer) Sign(d Data) (string, error) {
	if d.User.ID == 0 {
		return "", errors.New("initdata: user id is required")
	}
	if d.AuthDate.IsZero() {
		d.AuthDate = s.now()
	}
	userJSON, err := json.Marshal(d.User)
	if err != nil {
		return "", fmt.Errorf("initdata: encode user: %w", err)
	}

	values := url.Values{}
	values.Set("auth_date", strconv.FormatInt(d.AuthDate.Unix(), 10))
	values.Set("user", string(userJSON))
	if d.QueryID != "" {
		values.Set("query_id", d.QueryID)
	}
	if d.ChatType != "" {
		values.Set("chat_type", d.ChatType)
	}
	values.Set("hash", sign(s.secret, dataCheckString(values)))
	return values.Encode(), nil
}

// Validate verifies raw init data against the bot token. A maxAge of zero
// disables the freshness check.
func Validate(botToken, raw string, maxAge time.Duration, now time.Time) (Data, error) {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return Data{}, fmt.Errorf("initdata: parse: %w", err)
	}
	hash := values.Get("hash")
	if hash == "" {
		return Data{}, ErrMissingHash
	}
	want := sign(secretKey(botToken), dataCheckString(values))
	if !hmac.Equal([]byte(hash), []byte(want)) {
		return Data{}, ErrSignatureMismatch
	}

	var d Data
	d.QueryID = values.Get("query_id")
	d.ChatType = values.Get("chat_type")
	if ts := values.Get("auth_date"); ts != "" {
		sec, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return Data{}, fmt.Errorf("initdata: auth_date: %w", err)
		}
		d.AuthDate = time.Unix(sec, 0)
	}
	if u := values.Get("user"); u != "" {
		if err := json.Unmarshal([]byte(u), &d.User); err != nil {
			return Data{}, fmt.Errorf("initdata: user: %w", err)
		}
	}
	if maxAge > 0 && now.Sub(d.AuthDate) > maxAge {
		return Data{}, ErrExpired
	}
	return d, nil
}

func secretKey(botToken string) []byte {
	mac := hmac.New(sha256.New, []byte("WebAppData"))
	mac.Write([]byte(botToken))
	return mac.Sum(nil)
}

func sign(secret []byte, dcs string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(dcs))
	return hex.EncodeToString(mac.Sum(nil))
}

// dataCheckString joins every field except hash as sorted key=value lines.
func dataCheckString(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k == "hash" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+values.Get(k))
	}
	return strings.Join(lines, "\n")
}
