package logger

import (
	"sync"

	"github.com/rs/zerolog"
)

// TestLogger captures log messages so tests can assert on them
type TestLogger struct {
	mu       sync.Mutex
	messages []LogMessage
	zerolog  *zerolog.Logger
}

// LogMessage is one captured log call
type LogMessage struct {
	Level   string
	Message string
	Fields  map[string]interface{}
}

// NewTestLogger creates a capturing logger for tests
func NewTestLogger() *TestLogger {
	nop := zerolog.Nop()
	return &TestLogger{zerolog: &nop}
}

func (l *TestLogger) Debug(msg string) { l.log("DEBUG", msg, nil) }
func (l *TestLogger) Info(msg string)  { l.log("INFO", msg, nil) }
func (l *TestLogger) Warn(msg string)  { l.log("WARN", msg, nil) }
func (l *TestLogger) Error(msg string) { l.log("ERROR", msg, nil) }
func (l *TestLogger) Fatal(msg string) { l.log("FATAL", msg, nil) }

func (l *TestLogger) DebugWithFields(msg string, fields map[string]interface{}) {
	l.log("DEBUG", msg, fields)
}

func (l *TestLogger) InfoWithFields(msg string, fields map[string]interface{}) {
	l.log("INFO", msg, fields)
}

func (l *TestLogger) WarnWithFields(msg string, fields map[string]interface{}) {
	l.log("WARN", msg, fields)
}

func (l *TestLogger) ErrorWithFields(msg string, fields map[string]interface{}) {
	l.log("ERROR", msg, fields)
}

func (l *TestLogger) WithField(key string, value interface{}) Logger {
	return &testLoggerWithFields{TestLogger: l, fields: map[string]interface{}{key: value}}
}

func (l *TestLogger) WithFields(fields map[string]interface{}) Logger {
	return &testLoggerWithFields{TestLogger: l, fields: fields}
}

func (l *TestLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

func (l *TestLogger) GetZerolog() *zerolog.Logger {
	return l.zerolog
}

func (l *TestLogger) log(level, msg string, fields map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, LogMessage{Level: level, Message: msg, Fields: fields})
}

// Messages returns a copy of all captured log messages
func (l *TestLogger) Messages() []LogMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LogMessage, len(l.messages))
	copy(out, l.messages)
	return out
}

// MessagesByLevel returns captured messages of one level
func (l *TestLogger) MessagesByLevel(level string) []LogMessage {
	var filtered []LogMessage
	for _, msg := range l.Messages() {
		if msg.Level == level {
			filtered = append(filtered, msg)
		}
	}
	return filtered
}

// HasMessage checks whether a message with the given text was logged
func (l *TestLogger) HasMessage(text string) bool {
	for _, msg := range l.Messages() {
		if msg.Message == text {
			return true
		}
	}
	return false
}

// Clear drops all captured messages
func (l *TestLogger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = l.messages[:0]
}

// testLoggerWithFields carries bound fields into every captured message
type testLoggerWithFields struct {
	*TestLogger
	fields map[string]interface{}
}

func (l *testLoggerWithFields) Debug(msg string) { l.log("DEBUG", msg, l.fields) }
func (l *testLoggerWithFields) Info(msg string)  { l.log("INFO", msg, l.fields) }
func (l *testLoggerWithFields) Warn(msg string)  { l.log("WARN", msg, l.fields) }
func (l *testLoggerWithFields) Error(msg string) { l.log("ERROR", msg, l.fields) }
func (l *testLoggerWithFields) Fatal(msg string) { l.log("FATAL", msg, l.fields) }

func (l *testLoggerWithFields) DebugWithFields(msg string, fields map[string]interface{}) {
	l.log("DEBUG", msg, l.merge(fields))
}

func (l *testLoggerWithFields) InfoWithFields(msg string, fields map[string]interface{}) {
	l.log("INFO", msg, l.merge(fields))
}

func (l *testLoggerWithFields) WarnWithFields(msg string, fields map[string]interface{}) {
	l.log("WARN", msg, l.merge(fields))
}

func (l *testLoggerWithFields) ErrorWithFields(msg string, fields map[string]interface{}) {
	l.log("ERROR", msg, l.merge(fields))
}

func (l *testLoggerWithFields) WithField(key string, value interface{}) Logger {
	return &testLoggerWithFields{
		TestLogger: l.TestLogger,
		fields:     l.merge(map[string]interface{}{key: value}),
	}
}

func (l *testLoggerWithFields) WithFields(fields map[string]interface{}) Logger {
	return &testLoggerWithFields{TestLogger: l.TestLogger, fields: l.merge(fields)}
}

func (l *testLoggerWithFields) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

func (l *testLoggerWithFields) merge(additional map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(l.fields)+len(additional))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range additional {
		merged[k] = v
	}
	return merged
}
