// Package logging provides leveled, structured logging for insight.
//
// Initialize once at startup, then take named loggers per component:
//
//	logging.Initialize("info", map[string]string{"router.*": "debug"})
//	logger := logging.GetLogger("router.dispatcher")
//	logger.InfoWithFields("capability answered",
//	    logging.Field("capability", "metrics"),
//	    logging.Field("elapsed_ms", 42),
//	)
//
// Loggers are immutable; WithField, WithFields and WithContext return copies.
// WithContext attaches the OpenTelemetry trace and span ids and the request id
// (see WithRequestID) to every line.
//
// Per-package levels accept exact names ("router.dispatcher") and prefix
// wildcards ("router.*"); the longest matching pattern wins.
//
// Lines look like:
//
//	[2026-10-18T09:00:00Z] [INFO] router.dispatcher: capability answered | capability=metrics elapsed_ms=42
//
// DEBUG, INFO and WARN go to stdout, ERROR and FATAL to stderr. LOG_TIMESTAMP
// pins the timestamp for tests.
package logging

import (
	"context"
	"io"
	"os"
	"sync"
)

var (
	globalLogger *Logger
	initOnce     sync.Once

	outMu  sync.Mutex
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr

	// exitFunc is called by Fatal. Tests replace it.
	exitFunc = os.Exit
)

// Initialize sets the default level and optional per-package overrides.
// Unknown level names fall back to INFO.
func Initialize(levelStr string, packageLevels ...map[string]string) error {
	level, err := parseLevel(levelStr)
	if err != nil {
		level = INFO
	}

	globalLogger = &Logger{
		level: level,
		name:  "insight",
	}

	if len(packageLevels) > 0 && packageLevels[0] != nil {
		if err := SetPackageLogLevels(packageLevels[0]); err != nil {
			return err
		}
	}
	return nil
}

// SetOutput redirects log output. Either writer may be nil to keep the current one.
func SetOutput(out, errOut io.Writer) {
	outMu.Lock()
	defer outMu.Unlock()
	if out != nil {
		stdout = out
	}
	if errOut != nil {
		stderr = errOut
	}
}

// GetLogger returns a logger with the specified name.
func GetLogger(name string) *Logger {
	initOnce.Do(func() {
		if globalLogger == nil {
			_ = Initialize("info")
		}
	})
	return &Logger{
		level:  globalLogger.level,
		name:   name,
		fields: make(map[string]interface{}),
	}
}

func (l *Logger) shouldLog(level LogLevel) bool {
	if pkgLevel := GetPackageLogLevel(l.name); pkgLevel >= 0 {
		return level >= pkgLevel
	}
	return level >= l.level
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...interface{}) {
	if l.shouldLog(DEBUG) {
		l.logf(DEBUG, msg, args...)
	}
}

// Info logs an info message
func (l *Logger) Info(msg string, args ...interface{}) {
	if l.shouldLog(INFO) {
		l.logf(INFO, msg, args...)
	}
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, args ...interface{}) {
	if l.shouldLog(WARN) {
		l.logf(WARN, msg, args...)
	}
}

// Error logs an error message
func (l *Logger) Error(msg string, args ...interface{}) {
	if l.shouldLog(ERROR) {
		l.logf(ERROR, msg, args...)
	}
}

// Fatal logs and exits with code 1.
func (l *Logger) Fatal(msg string, args ...interface{}) {
	if l.shouldLog(FATAL) {
		l.logf(FATAL, msg, args...)
		exitFunc(1)
	}
}

// ErrorWithErr logs msg with err attached as the "error" field.
func (l *Logger) ErrorWithErr(msg string, err error) {
	if l.shouldLog(ERROR) {
		l.logWithFields(ERROR, msg, Field("error", err))
	}
}

// DebugWithFields logs a debug message with structured fields
func (l *Logger) DebugWithFields(msg string, fields ...LogField) {
	if l.shouldLog(DEBUG) {
		l.logWithFields(DEBUG, msg, fields...)
	}
}

// InfoWithFields logs an info message with structured fields
func (l *Logger) InfoWithFields(msg string, fields ...LogField) {
	if l.shouldLog(INFO) {
		l.logWithFields(INFO, msg, fields...)
	}
}

// WarnWithFields logs a warning message with structured fields
func (l *Logger) WarnWithFields(msg string, fields ...LogField) {
	if l.shouldLog(WARN) {
		l.logWithFields(WARN, msg, fields...)
	}
}

// ErrorWithFields logs an error message with structured fields
func (l *Logger) ErrorWithFields(msg string, fields ...LogField) {
	if l.shouldLog(ERROR) {
		l.logWithFields(ERROR, msg, fields...)
	}
}

// WithName returns a logger with a different name and no fields.
func (l *Logger) WithName(name string) *Logger {
	return &Logger{level: l.level, name: name, fields: make(map[string]interface{}), ctx: l.ctx}
}

// WithField returns a copy of the logger carrying key=value on every line.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.WithFields(Field(key, value))
}

// WithFields returns a copy of the logger carrying the fields on every line.
func (l *Logger) WithFields(fields ...LogField) *Logger {
	next := &Logger{level: l.level, name: l.name, ctx: l.ctx, fields: make(map[string]interface{}, len(l.fields)+len(fields))}
	for k, v := range l.fields {
		next.fields[k] = v
	}
	for _, f := range fields {
		next.fields[f.Key] = f.Value
	}
	return next
}

// WithContext returns a copy of the logger that reads trace, span and request
// ids from ctx. A nil ctx is allowed.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	next := l.WithFields()
	next.ctx = ctx
	return next
}
