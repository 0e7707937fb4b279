// Package callbacks decodes inline button presses.
package callbacks

import (
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// ParseCallbackData returns the unique key and payload of a callback.
// When telebot already matched a registered unique, Data holds the bare
// payload; otherwise Data is the raw "\f<unique>|<payload>" encoding.
func ParseCallbackData(cb *tele.Callback) (string, string) {
	if cb == nil {
		return "", ""
	}
	if cb.Unique != "" {
		return cb.Unique, cb.Data
	}
	unique, payload, _ := strings.Cut(strings.TrimPrefix(cb.Data, "\f"), "|")
	return strings.TrimSpace(unique), payload
}

// CallbackKey returns the unique key of the current callback.
func CallbackKey(c tele.Context) string {
	k, _ := ParseCallbackData(c.Callback())
	return k
}

// CallbackPayload returns the payload of the current callback.
func CallbackPayload(c tele.Context) string {
	_, payload := ParseCallbackData(c.Callback())
	return payload
}

// PayloadInt64 parses the callback payload as a decimal int64.
func PayloadInt64(c tele.Context) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(CallbackPayload(c)), 10, 64)
}

func PayloadInt(c tele.Context) (int, error) {
	return strconv.Atoi(strings.TrimSpace(CallbackPayload(c)))
}
