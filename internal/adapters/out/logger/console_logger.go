package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/suchimauz/shift-coverage-coordinator/internal/core/ports/out"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[37m"
)

var levelOrder = map[out.LogLevel]int{
	out.LogLevelDebug: 0,
	out.LogLevelInfo:  1,
	out.LogLevelWarn:  2,
	out.LogLevelError: 3,
}

type ConsoleLogger struct {
	defaultFields out.LogFields
	module        string
	location      *time.Location
	minLevel      out.LogLevel
	writer        io.Writer
	mu            *sync.Mutex
}

type Option func(*ConsoleLogger)

func WithWriter(w io.Writer) Option {
	return func(l *ConsoleLogger) {
		l.writer = w
	}
}

func WithLevel(level string) Option {
	return func(l *ConsoleLogger) {
		lvl := out.LogLevel(strings.ToUpper(level))
		if _, ok := levelOrder[lvl]; ok {
			l.minLevel = lvl
		}
	}
}

func NewConsoleLogger(timezone string, opts ...Option) (*ConsoleLogger, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}

	l := &ConsoleLogger{
		defaultFields: make(out.LogFields),
		location:      loc,
		minLevel:      out.LogLevelDebug,
		writer:        os.Stdout,
		mu:            &sync.Mutex{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// NewDiscardLogger - логгер для тестов.
func NewDiscardLogger() *ConsoleLogger {
	l, _ := NewConsoleLogger("UTC", WithWriter(io.Discard), WithLevel("ERROR"))
	return l
}

func (l *ConsoleLogger) clone() *ConsoleLogger {
	return &ConsoleLogger{
		defaultFields: l.defaultFields,
		module:        l.module,
		location:      l.location,
		minLevel:      l.minLevel,
		writer:        l.writer,
		mu:            l.mu,
	}
}

func (l *ConsoleLogger) WithFields(fields out.LogFields) out.LoggerPort {
	newLogger := l.clone()
	newLogger.defaultFields = make(out.LogFields, len(l.defaultFields)+len(fields))

	// Копируем существующие поля
	for k, v := range l.defaultFields {
		newLogger.defaultFields[k] = v
	}

	// Добавляем новые поля
	for k, v := range fields {
		newLogger.defaultFields[k] = v
	}

	return newLogger
}

func (l *ConsoleLogger) WithModule(module string) out.LoggerPort {
	newLogger := l.clone()
	newLogger.module = module
	return newLogger
}

func (l *ConsoleLogger) Debug(event string, fields out.LogFields) {
	l.log(out.LogLevelDebug, event, fields)
}

func (l *ConsoleLogger) Info(event string, fields out.LogFields) {
	l.log(out.LogLevelInfo, event, fields)
}

func (l *ConsoleLogger) Warn(event string, fields out.LogFields) {
	l.log(out.LogLevelWarn, event, fields)
}

func (l *ConsoleLogger) Error(event string, fields out.LogFields) {
	l.log(out.LogLevelError, event, fields)
}

func (l *ConsoleLogger) log(level out.LogLevel, event string, fields out.LogFields) {
	if levelOrder[level] < levelOrder[l.minLevel] {
		return
	}

	module := l.module
	if module == "" {
		module = "unknown"
	}

	// Объединяем поля
	mergedFields := make(out.LogFields, len(l.defaultFields)+len(fields)+1)
	for k, v := range l.defaultFields {
		mergedFields[k] = v
	}
	for k, v := range fields {
		mergedFields[k] = v
	}

	mergedFields["event"] = event

	timestamp := time.Now().In(l.location).Format("2006-01-02 15:04:05.000")

	var levelColor string
	switch level {
	case out.LogLevelDebug:
		levelColor = colorGray
	case out.LogLevelInfo:
		levelColor = colorGreen
	case out.LogLevelWarn:
		levelColor = colorYellow
	case out.LogLevelError:
		levelColor = colorRed
	}

	fieldsBytes, err := json.MarshalIndent(mergedFields, "", "  ")
	if err != nil {
		fieldsBytes = []byte(fmt.Sprintf(`{"event": %q, "marshalError": %q}`, event, err.Error()))
	}

	logLine := fmt.Sprintf("%s[%s]%s %s[%s]%s %s[%s]%s\n%s\n",
		colorGray, timestamp, colorReset,
		levelColor, level, colorReset,
		colorCyan, module, colorReset,
		string(fieldsBytes),
	)

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprint(l.writer, logLine)
}
