// Package notify delivers user-facing notifications. Sending is fire and
// forget: sinks log their own failures and never report them to the caller.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ledger/internal/log"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

type Notification struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	Year    int       `json:"year,omitempty"`
	At      time.Time `json:"at"`
}

// Notifier is the sink the ledger reports errors and confirmations to.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Infof and friends build and send a notification in one call.
func Infof(ctx context.Context, to Notifier, format string, args ...any) {
	send(ctx, to, LevelInfo, format, args...)
}

func Successf(ctx context.Context, to Notifier, format string, args ...any) {
	send(ctx, to, LevelSuccess, format, args...)
}

func Warnf(ctx context.Context, to Notifier, format string, args ...any) {
	send(ctx, to, LevelWarning, format, args...)
}

func Errorf(ctx context.Context, to Notifier, format string, args ...any) {
	send(ctx, to, LevelError, format, args...)
}

func send(ctx context.Context, to Notifier, level Level, format string, args ...any) {
	if to == nil {
		return
	}
	to.Notify(ctx, Notification{Level: level, Message: fmt.Sprintf(format, args...), At: time.Now().UTC()})
}

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	logger *log.Logger
}

func NewLogNotifier(logger *log.Logger) *LogNotifier {
	if logger == nil {
		logger = log.Default(log.ComponentNotify)
	}
	return &LogNotifier{logger: logger.WithComponent(log.ComponentNotify)}
}

func (l *LogNotifier) Notify(ctx context.Context, n Notification) {
	level := slog.LevelInfo
	switch n.Level {
	case LevelWarning:
		level = slog.LevelWarn
	case LevelError:
		level = slog.LevelError
	}
	l.logger.Log(ctx, level, n.Message, "notification_level", string(n.Level))
}

// Multi fans a notification out to several sinks.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) {
	for _, to := range m {
		if to != nil {
			to.Notify(ctx, n)
		}
	}
}

// Recorder keeps notifications in memory. Used by tests and by the HTTP
// API to show the most recent messages.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
	limit int
}

// NewRecorder keeps at most limit notifications; zero means unbounded.
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

func (r *Recorder) Notify(_ context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
	if r.limit > 0 && len(r.items) > r.limit {
		r.items = append([]Notification(nil), r.items[len(r.items)-r.limit:]...)
	}
}

func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.items...)
}

// Count returns how many recorded notifications have the given level.
func (r *Recorder) Count(level Level) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, it := range r.items {
		if it.Level == level {
			n++
		}
	}
	return n
}

func (r *Recorder) Last() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == 0 {
		return Notification{}, false
	}
	return r.items[len(r.items)-1], true
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.items = nil
	r.mu.Unlock()
}

type yearScoped struct {
	year int
	next Notifier
}

// ForYear stamps every notification sent through it with the fiscal year.
func ForYear(to Notifier, year int) Notifier {
	return yearScoped{year: year, next: to}
}

func (y yearScoped) Notify(ctx context.Context, n Notification) {
	if y.next == nil {
		return
	}
	n.Year = y.year
	y.next.Notify(ctx, n)
}
