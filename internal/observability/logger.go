package observability

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypeDecompose EventType = "decompose"
	EventTypeStep      EventType = "step"
	EventTypeSafetyNet EventType = "safety_net"
	EventTypeTransport EventType = "transport_failure"
	EventTypeXP        EventType = "xp"
	EventTypeHeartbeat EventType = "heartbeat"
	EventTypeLLM       EventType = "llm"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	RequestID string    `json:"request_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Config selects level, encoding and the model exchange log file.
type Config struct {
	Level      string
	Format     string // json or console
	LLMLogPath string // empty disables the exchange log
	Verbose    bool
}

// Logger handles structured logging.
type Logger struct {
	zap        *zap.Logger
	llmLogPath string
	maxSize    int64
	mu         sync.Mutex
}

func NewLogger(cfg Config) (*Logger, error) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, err
		}
	}
	if cfg.Verbose {
		level.SetLevel(zapcore.DebugLevel)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level)
	return &Logger{
		zap:        zap.New(core, zap.AddStacktrace(zapcore.ErrorLevel)),
		llmLogPath: cfg.LLMLogPath,
		maxSize:    10 * 1024 * 1024, // 10MB
	}, nil
}

// NewNopLogger discards everything. Used by tests and embedders without logging.
func NewNopLogger() *Logger {
	return &Logger{zap: zap.NewNop()}
}

// Zap exposes the underlying logger for packages that log outside the event model.
func (l *Logger) Zap() *zap.Logger {
	return l.zap
}

func (l *Logger) Sync() {
	_ = l.zap.Sync()
}

// Log emits a structured event.
func (l *Logger) Log(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	l.zap.Info(string(evt.Type),
		zap.String("type", string(evt.Type)),
		zap.String("request_id", evt.RequestID),
		zap.Any("data", evt.Data),
		zap.Time("event_time", evt.Timestamp),
	)

	if evt.Type == EventTypeLLM && l.llmLogPath != "" {
		data, err := json.Marshal(evt)
		if err != nil {
			l.zap.Warn("failed to marshal llm event", zap.Error(err))
			return
		}
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.llmLogPath), 0755); err != nil {
		l.zap.Warn("failed to create log directory", zap.Error(err))
		return
	}

	info, err := os.Stat(l.llmLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.llmLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		l.zap.Warn("failed to open log file", zap.Error(err))
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		l.zap.Warn("failed to write to log file", zap.Error(err))
	}
}

// keep one .old generation
func (l *Logger) rotateLogs() {
	oldPath := l.llmLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.llmLogPath, oldPath)
}

func (l *Logger) LogDecompose(requestID, neuroType string, taskChars int) {
	l.Log(Event{
		Type:      EventTypeDecompose,
		RequestID: requestID,
		Data: map[string]any{
			"neuro_type": neuroType,
			"task_chars": taskChars,
		},
	})
}

func (l *Logger) LogStep(requestID string, stepID, total int) {
	l.Log(Event{
		Type:      EventTypeStep,
		RequestID: requestID,
		Data:      map[string]int{"step_id": stepID, "total": total},
	})
}

func (l *Logger) LogSafetyNet(requestID string, recovered int, err error) {
	data := map[string]any{"recovered": recovered}
	if err != nil {
		data["error"] = err.Error()
	}
	l.Log(Event{Type: EventTypeSafetyNet, RequestID: requestID, Data: data})
}

func (l *Logger) LogTransportFailure(requestID string, err error) {
	l.zap.Error("local model unreachable", zap.String("request_id", requestID), zap.Error(err))
	l.Log(Event{
		Type:      EventTypeTransport,
		RequestID: requestID,
		Data:      map[string]string{"error": err.Error()},
	})
}

func (l *Logger) LogXP(profileID int64, amount, level int, leveledUp bool) {
	l.Log(Event{
		Type: EventTypeXP,
		Data: map[string]any{
			"profile_id": profileID,
			"amount":     amount,
			"level":      level,
			"leveled_up": leveledUp,
		},
	})
}

func (l *Logger) LogHeartbeat() {
	l.Log(Event{
		Type: EventTypeHeartbeat,
		Data: map[string]string{"status": "alive"},
	})
}

// LogLLM records one model exchange. The prompt is already scrubbed of PII.
func (l *Logger) LogLLM(requestID, model, prompt, response string) {
	l.Log(Event{
		Type:      EventTypeLLM,
		RequestID: requestID,
		Data: map[string]any{
			"model":    model,
			"prompt":   prompt,
			"response": response,
		},
	})
}
