package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/moolen/insight/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument assigns a request id, continues incoming trace context and logs
// every request once it completes.
func (s *Server) instrument(next http.Handler) http.Handler {
	tracer := otel.Tracer("insight.api")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("http.request_id", id)))
		defer span.End()
		ctx = logging.WithRequestID(ctx, id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		begin := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.status_code", rec.status))
		s.logger.WithContext(ctx).DebugWithFields("HTTP request",
			logging.Field("method", r.Method),
			logging.Field("path", r.URL.Path),
			logging.Field("status", rec.status),
			logging.Field("duration_ms", time.Since(begin).Milliseconds()),
		)
	})
}

// withMethod wraps a handler to enforce HTTP method
func withMethod(method string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			writeError(w, &APIError{
				Code:       ErrorCodeMethodNotAllowed,
				StatusCode: http.StatusMethodNotAllowed,
				Message:    "Method " + r.Method + " not allowed for " + r.URL.Path,
			})
			return
		}
		handler(w, r)
	}
}
