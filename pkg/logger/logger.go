// Package logger provides logging implementations for the user registry.
package logger

import (
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/overlaykit/userdir/pkg/interfaces"
)

var levelRank = map[string]int{
	"debug": 0,
	"info":  1,
	"warn":  2,
	"error": 3,
}

// ConsoleLogger writes level-tagged key=value lines to the standard logger.
// The level may be changed while the logger is in use.
type ConsoleLogger struct {
	mu     sync.RWMutex
	level  string
	fields map[string]interface{}
}

// Debug logs debug level messages
func (l *ConsoleLogger) Debug(msg string, fields ...map[string]interface{}) {
	l.logWithFields("debug", "DEBUG", msg, fields...)
}

// Info logs info level messages
func (l *ConsoleLogger) Info(msg string, fields ...map[string]interface{}) {
	l.logWithFields("info", "INFO", msg, fields...)
}

// Warn logs warning level messages
func (l *ConsoleLogger) Warn(msg string, fields ...map[string]interface{}) {
	l.logWithFields("warn", "WARN", msg, fields...)
}

// Error logs error level messages
func (l *ConsoleLogger) Error(msg string, err error, fields ...map[string]interface{}) {
	var allFields []map[string]interface{}
	if err != nil {
		allFields = append(allFields, map[string]interface{}{"error": err.Error()})
	}
	allFields = append(allFields, fields...)
	l.logWithFields("error", "ERROR", msg, allFields...)
}

// Fatal logs fatal level messages and exits
func (l *ConsoleLogger) Fatal(msg string, err error, fields ...map[string]interface{}) {
	l.Error(msg, err, fields...)
	os.Exit(1)
}

// WithFields returns a logger that prepends the given fields to every line
func (l *ConsoleLogger) WithFields(fields map[string]interface{}) interfaces.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()

	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &ConsoleLogger{level: l.level, fields: merged}
}

// SetLevel changes the minimum level emitted from now on
func (l *ConsoleLogger) SetLevel(level string) {
	if _, ok := levelRank[level]; !ok {
		return
	}
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

// Level returns the current minimum level
func (l *ConsoleLogger) Level() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

func (l *ConsoleLogger) logWithFields(level, tag, msg string, fields ...map[string]interface{}) {
	l.mu.RLock()
	minimum := l.level
	prefix := l.fields
	l.mu.RUnlock()

	if levelRank[level] < levelRank[minimum] {
		return
	}

	logMsg := fmt.Sprintf("[%s] %s", tag, msg)

	for key, value := range prefix {
		logMsg += fmt.Sprintf(" %s=%v", key, value)
	}
	for _, fieldMap := range fields {
		for key, value := range fieldMap {
			logMsg += fmt.Sprintf(" %s=%v", key, value)
		}
	}

	log.Println(logMsg)
}

var _ interfaces.Logger = (*ConsoleLogger)(nil)

// NewConsoleLogger creates a new console logger at the given level
func NewConsoleLogger(level string) *ConsoleLogger {
	if _, ok := levelRank[level]; !ok {
		level = "info"
	}
	return &ConsoleLogger{level: level}
}

// NewTestLogger creates a logger for testing
func NewTestLogger() *ConsoleLogger {
	return &ConsoleLogger{level: "debug"}
}

// NewLogger creates a new logger with default settings
func NewLogger() *ConsoleLogger {
	return &ConsoleLogger{level: "info"}
}
