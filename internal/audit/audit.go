package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	ActionLogin          = "auth.login"
	ActionLogout         = "auth.logout"
	ActionEmployeeCreate = "employee.create"
	ActionEmployeeUpdate = "employee.update"
	ActionEmployeeDelete = "employee.delete"
	ActionEmployeeImport = "employee.import"

	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

type Event struct {
	At      time.Time `json:"at"`
	Actor   string    `json:"actor"`
	Action  string    `json:"action"`
	Target  string    `json:"target,omitempty"`
	Outcome string    `json:"outcome"`
	Detail  string    `json:"detail,omitempty"`
}

type Logger interface {
	Log(ctx context.Context, e Event) error
}

type Nop struct{}

func (Nop) Log(context.Context, Event) error { return nil }

// FileLogger appends one JSON object per line.
type FileLogger struct {
	path    string
	mu      sync.Mutex
	nowFunc func() time.Time
}

func NewFileLogger(path string) *FileLogger {
	return &FileLogger{path: path, nowFunc: time.Now}
}

func (l *FileLogger) Log(_ context.Context, e Event) error {
	if l == nil || l.path == "" {
		return nil
	}
	if e.At.IsZero() {
		e.At = l.nowFunc()
	}
	e.At = e.At.UTC().Truncate(time.Second)
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("mkdir audit log dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("write audit log entry: %w", err)
	}
	return nil
}
