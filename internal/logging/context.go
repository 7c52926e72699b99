package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"
)

type contextKey string

const (
	loggerKey  contextKey = "logger"
	traceIDKey contextKey = "trace_id"
)

// GenerateTraceID generates a new trace ID.
func GenerateTraceID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// FromContext retrieves the logger from context.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return Default()
}

// NewContext creates a new context with the logger.
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// WithTraceContext adds a trace ID to the context and returns a logger with it.
func WithTraceContext(ctx context.Context) (context.Context, *Logger) {
	traceID := GenerateTraceID()
	l := Default().WithTraceID(traceID)
	newCtx := context.WithValue(ctx, traceIDKey, traceID)
	newCtx = context.WithValue(newCtx, loggerKey, l)
	return newCtx, l
}

// TickContext creates a logger context for tick-router operations.
func TickContext(asset, source string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"asset":  asset,
		"source": source,
	}).WithComponent("ticks")
}

// CandleContext creates a logger context for candle-assembler operations.
func CandleContext(asset, timeframe string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"asset":     asset,
		"timeframe": timeframe,
	}).WithComponent("candles")
}

// PredictionContext creates a logger context for ensemble predictions.
func PredictionContext(asset, timeframe string, confidence float64) *Logger {
	return Default().WithFields(map[string]interface{}{
		"asset":      asset,
		"timeframe":  timeframe,
		"confidence": confidence,
	}).WithComponent("predictor")
}

// PositionContext creates a logger context for position-lifecycle operations.
func PositionContext(positionID, asset string, entryPrice, sizeUsdc float64) *Logger {
	return Default().WithFields(map[string]interface{}{
		"position_id": positionID,
		"asset":       asset,
		"entry_price": entryPrice,
		"size_usdc":   sizeUsdc,
	}).WithComponent("positions")
}

// CalibrationContext creates a logger context for calibrator operations.
func CalibrationContext(asset, timeframe string, sampleCount int) *Logger {
	return Default().WithFields(map[string]interface{}{
		"asset":        asset,
		"timeframe":    timeframe,
		"sample_count": sampleCount,
	}).WithComponent("calibration")
}

// APIContext creates a logger context for snapshot-API operations.
func APIContext(method, path string, statusCode int) *Logger {
	return Default().WithFields(map[string]interface{}{
		"method":      method,
		"path":        path,
		"status_code": statusCode,
	}).WithComponent("snapshot")
}

// HTTPMiddleware is a middleware that adds logging to HTTP requests.
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = GenerateTraceID()
		}

		l := Default().WithTraceID(traceID).WithFields(map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"remote_addr": r.RemoteAddr,
			"user_agent":  r.UserAgent(),
		}).WithComponent("http")

		ctx := NewContext(r.Context(), l)
		r = r.WithContext(ctx)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: 200}
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		l.WithDuration(duration).WithField("status_code", wrapped.statusCode).Info("request completed")
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
