package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/timnaher/ds8r/internal/stimulator"
)

// FileName is the active audit file inside the audit directory.
const FileName = "audit.jsonl"

// Result codes written to the code field.
const (
	CodeSuccess      = "SUCCESS"
	CodeInvalidRange = "INVALID_RANGE"
	CodeSafetyLimit  = "SAFETY_LIMIT"
	CodeBusy         = "BUSY"
	CodeUnavailable  = "UNAVAILABLE"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeError        = "ERROR"
)

// AuditEntry represents a single audit log entry.
type AuditEntry struct {
	Timestamp  time.Time              `json:"ts"`
	ID         string                 `json:"id"`
	User       string                 `json:"user"`
	DeviceID   string                 `json:"device"`
	Action     string                 `json:"action"`
	Params     map[string]interface{} `json:"params,omitempty"`
	Outcome    string                 `json:"outcome"`
	Code       string                 `json:"code"`
	LatencyMs  int64                  `json:"latencyMs"`
	ReturnCode *int                   `json:"returnCode,omitempty"`
}

// Options configures file placement and rotation.
type Options struct {
	Dir        string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	// Logger receives write failures. Zero value discards them.
	Logger zerolog.Logger
}

// Logger implements the audit logging functionality.
type Logger struct {
	mu       sync.Mutex
	filePath string
	out      *lumberjack.Logger
	log      zerolog.Logger
}

// NewLogger creates a new audit logger writing to <dir>/audit.jsonl.
func NewLogger(opts Options) (*Logger, error) {
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	filePath := filepath.Join(opts.Dir, FileName)

	return &Logger{
		filePath: filePath,
		out: &lumberjack.Logger{
			Filename:   filePath,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		},
		log: opts.Logger.With().Str("component", "audit").Logger(),
	}, nil
}

// LogControlAction logs one device action. err decides the code and outcome.
func (l *Logger) LogControlAction(ctx context.Context, action, deviceID string, params map[string]interface{}, returnCode *int, latency time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = err.Error()
	}

	l.writeEntry(AuditEntry{
		Timestamp:  time.Now().UTC(),
		ID:         uuid.NewString(),
		User:       UserFromContext(ctx),
		DeviceID:   deviceID,
		Action:     action,
		Params:     params,
		Outcome:    outcome,
		Code:       CodeFromError(err),
		LatencyMs:  latency.Milliseconds(),
		ReturnCode: returnCode,
	})
}

// writeEntry writes an audit entry to the log file.
func (l *Logger) writeEntry(entry AuditEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	jsonData, err := json.Marshal(entry)
	if err != nil {
		l.log.Error().Err(err).Str("action", entry.Action).Msg("failed to marshal audit entry")
		return
	}

	if _, err := l.out.Write(append(jsonData, '\n')); err != nil {
		l.log.Error().Err(err).Str("action", entry.Action).Msg("failed to write audit entry")
	}
}

// CodeFromError maps errors to standardized audit codes.
func CodeFromError(err error) string {
	if err == nil {
		return CodeSuccess
	}

	// The safety limit wraps INVALID_RANGE, so it is checked first.
	errStr := err.Error()
	switch {
	case strings.Contains(errStr, CodeSafetyLimit):
		return CodeSafetyLimit
	case errors.Is(err, stimulator.ErrInvalidRange), strings.Contains(errStr, CodeInvalidRange):
		return CodeInvalidRange
	case errors.Is(err, stimulator.ErrBusy):
		return CodeBusy
	case errors.Is(err, stimulator.ErrUnavailable):
		return CodeUnavailable
	case strings.Contains(errStr, CodeUnauthorized):
		return CodeUnauthorized
	case strings.Contains(errStr, CodeForbidden):
		return CodeForbidden
	}
	return CodeError
}

// Close closes the audit logger and its file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out.Close()
}

// GetFilePath returns the path to the audit log file.
func (l *Logger) GetFilePath() string {
	return l.filePath
}

// Rotate closes the current file, renames it with a timestamp and opens a new one.
func (l *Logger) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out.Rotate()
}

// Recent returns up to n of the newest entries in the active file, oldest first.
func (l *Logger) Recent(n int) ([]AuditEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return []AuditEntry{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []AuditEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e AuditEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
		if n > 0 && len(entries) > n {
			entries = entries[1:]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []AuditEntry{}
	}
	return entries, nil
}
