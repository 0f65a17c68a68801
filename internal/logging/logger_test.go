package logging

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

// capture redirects output for the duration of the test and resets global state.
func capture(t *testing.T, level string, packageLevels map[string]string) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	t.Setenv("LOG_TIMESTAMP", "2026-01-01T00:00:00Z")

	globalLogger = nil
	initOnce = sync.Once{}
	require.NoError(t, SetPackageLogLevels(map[string]string{}))
	require.NoError(t, Initialize(level, packageLevels))

	var out, errOut bytes.Buffer
	SetOutput(&out, &errOut)
	t.Cleanup(func() {
		SetOutput(os.Stdout, os.Stderr)
		_ = SetPackageLogLevels(map[string]string{})
	})
	return &out, &errOut
}

func TestLevelFiltering(t *testing.T) {
	out, errOut := capture(t, "warn", nil)
	logger := GetLogger("router")

	logger.Debug("hidden debug")
	logger.Info("hidden info")
	logger.Warn("shown %s", "warning")
	logger.Error("shown error")

	assert.Equal(t, "[2026-01-01T00:00:00Z] [WARN] router: shown warning\n", out.String())
	assert.Equal(t, "[2026-01-01T00:00:00Z] [ERROR] router: shown error\n", errOut.String())
}

func TestFieldsAreSortedAndQuoted(t *testing.T) {
	out, _ := capture(t, "debug", nil)
	logger := GetLogger("adapter").WithField("instance", "bq-prod")

	logger.InfoWithFields("call done",
		Field("zeta", 1),
		Field("alpha", "two words"),
	)

	assert.Equal(t,
		`[2026-01-01T00:00:00Z] [INFO] adapter: call done | alpha="two words" instance=bq-prod zeta=1`+"\n",
		out.String())
}

func TestWithFieldDoesNotMutateParent(t *testing.T) {
	out, _ := capture(t, "info", nil)
	parent := GetLogger("p")
	child := parent.WithField("k", "v")

	parent.Info("parent")
	child.Info("child")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.NotContains(t, lines[0], "k=v")
	assert.Contains(t, lines[1], "k=v")
}

func TestWithContextAddsTraceAndRequestID(t *testing.T) {
	out, _ := capture(t, "info", nil)

	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	ctx = WithRequestID(ctx, "req-1")

	GetLogger("api").WithContext(ctx).Info("handled")

	line := out.String()
	assert.Contains(t, line, "request_id=req-1")
	assert.Contains(t, line, "trace_id=0102030405060708090a0b0c0d0e0f10")
	assert.Contains(t, line, "span_id=0102030405060708")
	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Equal(t, "", RequestID(context.Background()))
}

func TestErrorWithErr(t *testing.T) {
	_, errOut := capture(t, "info", nil)
	GetLogger("x").ErrorWithErr("load failed", errors.New("no such file"))
	assert.Contains(t, errOut.String(), `[ERROR] x: load failed | error="no such file"`)
}

func TestFatalCallsExit(t *testing.T) {
	_, errOut := capture(t, "info", nil)
	code := -1
	prev := exitFunc
	exitFunc = func(c int) { code = c }
	t.Cleanup(func() { exitFunc = prev })

	GetLogger("main").Fatal("cannot start")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut.String(), "[FATAL] main: cannot start")
}

func TestPackageLevels(t *testing.T) {
	out, _ := capture(t, "info", map[string]string{
		"router.*":          "debug",
		"router.classifier": "error",
	})

	GetLogger("router.dispatcher").Debug("dispatch debug")
	GetLogger("router.classifier").Warn("classifier warn")
	GetLogger("api").Debug("api debug")

	assert.Contains(t, out.String(), "dispatch debug")
	assert.NotContains(t, out.String(), "classifier warn")
	assert.NotContains(t, out.String(), "api debug")
}

func TestGetPackageLogLevelPrefersLongestPattern(t *testing.T) {
	require.NoError(t, SetPackageLogLevels(map[string]string{
		"adapter.*":        "warn",
		"adapter.trends.*": "debug",
	}))
	t.Cleanup(func() { _ = SetPackageLogLevels(map[string]string{}) })

	assert.Equal(t, DEBUG, GetPackageLogLevel("adapter.trends.search"))
	assert.Equal(t, WARN, GetPackageLogLevel("adapter.metrics"))
	assert.Equal(t, WARN, GetPackageLogLevel("adapter"))
	assert.Equal(t, LogLevel(-1), GetPackageLogLevel("api"))
}

func TestSetPackageLogLevelsRejectsBadLevel(t *testing.T) {
	err := SetPackageLogLevels(map[string]string{"x": "loud"})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]LogLevel{"debug": DEBUG, "INFO": INFO, "Warning": WARN, "error": ERROR, "fatal": FATAL} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}
