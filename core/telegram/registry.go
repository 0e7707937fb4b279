package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/m3rciful/paperbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// Command is a slash command with its menu metadata.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// AdminOnly commands run only for the configured admin and never show
	// in the menu.
	AdminOnly bool
	Hidden    bool
	Aliases   []string
}

// Registry holds bot commands and callbacks. Registration happens at
// startup; lookups are safe from concurrent handlers.
type Registry struct {
	mu               sync.RWMutex
	commands         map[string]Command
	callbacks        map[string]tele.HandlerFunc
	callbackNotFound tele.HandlerFunc
	textFallback     tele.HandlerFunc
}

// NewRegistry creates an empty Registry whose unknown-callback handler
// answers with a short toast.
func NewRegistry() *Registry {
	return &Registry{
		commands:  make(map[string]Command),
		callbacks: make(map[string]tele.HandlerFunc),
		callbackNotFound: func(c tele.Context) error {
			return c.Respond(&tele.CallbackResponse{Text: "Unsupported action"})
		},
	}
}

func wireWarn(event string, attrs ...slog.Attr) {
	logger.Warn(context.Background(), "tg.wire", event, attrs...)
}

// RegisterCommand adds a command under name, which must start with "/".
func (r *Registry) RegisterCommand(name string, cmd Command) error {
	switch {
	case cmd.Handler == nil || cmd.Description == "":
		wireWarn("register.command.skip", slog.String("name", name), slog.String("reason", "invalid"))
		return fmt.Errorf("command %q: handler and description are required", name)
	case !strings.HasPrefix(name, "/"):
		wireWarn("register.command.skip", slog.String("name", name), slog.String("reason", "no_slash_prefix"))
		return fmt.Errorf("command %q: missing / prefix", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commands[name]; exists {
		wireWarn("register.command.duplicate", slog.String("name", name))
		return fmt.Errorf("command %q already registered", name)
	}
	r.commands[name] = cmd
	return nil
}

// ListCommands returns the commands sorted by name. With visibleOnly the
// hidden and admin-only ones are left out.
func (r *Registry) ListCommands(visibleOnly bool) []tele.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var list []tele.Command
	for name, meta := range r.commands {
		if visibleOnly && (meta.Hidden || meta.AdminOnly) {
			continue
		}
		list = append(list, tele.Command{Text: name, Description: meta.Description})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Text < list[j].Text })
	return list
}

// commandKey reduces "/Papers@paperbot 2023" to "/papers".
func commandKey(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	key, _, _ := strings.Cut(fields[0], "@")
	if !strings.HasPrefix(key, "/") {
		key = "/" + key
	}
	return strings.ToLower(key)
}

// LookupCommand resolves text to a command by name or alias and returns
// the canonical name.
func (r *Registry) LookupCommand(text string) (string, Command, bool) {
	key := commandKey(text)
	if key == "" || key == "/" {
		return "", Command{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cmd, ok := r.commands[key]; ok {
		return key, cmd, true
	}
	for name, cmd := range r.commands {
		for _, alias := range cmd.Aliases {
			if commandKey(alias) == key {
				return name, cmd, true
			}
		}
	}
	return "", Command{}, false
}

// Commands returns a copy of the registered commands keyed by name.
func (r *Registry) Commands() map[string]Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Command, len(r.commands))
	for k, v := range r.commands {
		out[k] = v
	}
	return out
}

// RegisterCallback maps a callback unique key to its handler.
func (r *Registry) RegisterCallback(key string, handler tele.HandlerFunc) error {
	if key == "" || handler == nil {
		wireWarn("register.callback.skip", slog.String("key", key), slog.Bool("handler_nil", handler == nil))
		return errors.New("invalid callback registration")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.callbacks[key]; exists {
		wireWarn("register.callback.duplicate", slog.String("key", key))
		return fmt.Errorf("callback already registered: %s", key)
	}
	r.callbacks[key] = handler
	return nil
}

// GetCallback returns the handler for key.
func (r *Registry) GetCallback(key string) (tele.HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.callbacks[key]
	return h, ok
}

// ListCallbacks returns the sorted callback keys.
func (r *Registry) ListCallbacks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.callbacks))
	for k := range r.callbacks {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// SetCallbackNotFound replaces the handler for unknown callback keys.
func (r *Registry) SetCallbackNotFound(h tele.HandlerFunc) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.callbackNotFound = h
	r.mu.Unlock()
}

func (r *Registry) CallbackNotFound() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.callbackNotFound
}

// SetTextFallback sets the handler for text that is not a command.
func (r *Registry) SetTextFallback(h tele.HandlerFunc) {
	r.mu.Lock()
	r.textFallback = h
	r.mu.Unlock()
}

func (r *Registry) TextFallback() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.textFallback
}

// CommandSetter is the part of tele.Bot that publishes the command menu.
type CommandSetter interface {
	SetCommands(opts ...interface{}) error
}

// SetupCommands publishes the visible commands as the bot menu.
func SetupCommands(bot CommandSetter, reg *Registry) {
	if bot == nil || reg == nil {
		return
	}
	menu := reg.ListCommands(true)
	if len(menu) == 0 {
		return
	}
	for i := range menu {
		menu[i].Text = strings.TrimPrefix(menu[i].Text, "/")
	}
	if err := bot.SetCommands(menu); err != nil {
		logger.Error(context.Background(), "tg.wire", "register.commands.set_failed",
			slog.String("err", err.Error()),
		)
	}
}
