package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"emeet/backend/internal/telemetry"
)

// httpRequestMetadata is the JSON shape stored in Event.Metadata for http_request events.
type httpRequestMetadata struct {
	Method     string `json:"method"`
	Pattern    string `json:"pattern"`
	StatusCode int    `json:"status_code"`
	DurationMs int64  `json:"duration_ms"`
	ClientIP   string `json:"client_ip"`
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Telemetry emits an http_request event after each request. Best-effort: the emit runs
// asynchronously and never fails the request. If emitter is nil, the middleware no-ops.
// skipPaths are not emitted (e.g. health probes).
func Telemetry(emitter telemetry.EventEmitter, skipPaths map[string]bool, next http.Handler) http.Handler {
	if emitter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if skipPaths[r.URL.Path] {
			return
		}
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		meta, _ := json.Marshal(httpRequestMetadata{
			Method:     r.Method,
			Pattern:    r.Pattern,
			StatusCode: rec.status,
			DurationMs: time.Since(start).Milliseconds(),
			ClientIP:   ClientIP(r),
		})
		telemetry.EmitAsync(emitter, &telemetry.Event{
			SessionID: r.PathValue("id"),
			UserID:    UserID(r.Context()),
			Type:      "http_request",
			Source:    "http_middleware",
			Metadata:  meta,
		})
	})
}
