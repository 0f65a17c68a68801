package logging

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

// writeLog formats one line and routes it by severity.
func (l *Logger) writeLog(level LogLevel, msg string, fields map[string]interface{}) {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(GetTimestamp())
	b.WriteString("] [")
	b.WriteString(level.String())
	b.WriteString("] ")
	b.WriteString(l.name)
	b.WriteString(": ")
	b.WriteString(msg)

	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString(" |")
		for _, k := range keys {
			b.WriteString(" ")
			b.WriteString(k)
			b.WriteString("=")
			b.WriteString(formatValue(fields[k]))
		}
	}
	b.WriteString("\n")

	outMu.Lock()
	defer outMu.Unlock()
	if level >= ERROR {
		_, _ = stderr.Write([]byte(b.String()))
	} else {
		_, _ = stdout.Write([]byte(b.String()))
	}
}

func formatValue(v interface{}) string {
	s := fmt.Sprintf("%v", v)
	if strings.ContainsAny(s, " \t\n\"") {
		return fmt.Sprintf("%q", s)
	}
	return s
}

func (l *Logger) logf(level LogLevel, msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	l.logWithFields(level, msg)
}

// logWithFields merges context, logger and call fields (later wins) and writes the line.
func (l *Logger) logWithFields(level LogLevel, msg string, fields ...LogField) {
	contextFields := extractContextFields(l.ctx)

	var merged map[string]interface{}
	if contextFields != nil || len(l.fields) > 0 || len(fields) > 0 {
		merged = make(map[string]interface{}, len(contextFields)+len(l.fields)+len(fields))
		for k, v := range contextFields {
			merged[k] = v
		}
		for k, v := range l.fields {
			merged[k] = v
		}
		for _, f := range fields {
			merged[f.Key] = f.Value
		}
	}

	l.writeLog(level, msg, merged)
}

// GetTimestamp returns the RFC3339 timestamp, or LOG_TIMESTAMP when set.
func GetTimestamp() string {
	if override := os.Getenv("LOG_TIMESTAMP"); override != "" {
		return override
	}
	return time.Now().UTC().Format(time.RFC3339)
}
