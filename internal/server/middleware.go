package server

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"trackmix/internal/fileutil"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

type contextKey string

// OwnerContextKey holds the requesting user's name in the request context.
const OwnerContextKey contextKey = "owner"

// OwnerHeader carries the authenticated user set by the fronting proxy.
const OwnerHeader = "X-User"

// responseWriter wraps http.ResponseWriter to capture status code & size.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(data []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(data)
	rw.size += size
	return size, err
}

// requestLoggingMiddleware logs HTTP requests (if enabled) with latency & size.
func (ms *MixServer) requestLoggingMiddleware(next http.Handler) http.Handler {
	if !ms.config.Logging.RequestLogging {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rw, r)

		if !shouldLogRequest(r.URL.Path) {
			return
		}
		fields := logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"remote":   r.RemoteAddr,
			"status":   rw.statusCode,
			"size":     humanize.IBytes(uint64(rw.size)),
			"duration": time.Since(start).Round(time.Millisecond),
		}
		if owner := ownerFrom(r); owner != "" {
			fields["owner"] = owner
		}
		ms.logger.WithFields(fields).Info("Request")
	})
}

// corsMiddleware injects CORS headers if enabled in configuration.
func (ms *MixServer) corsMiddleware(next http.Handler) http.Handler {
	if !ms.config.Server.EnableCORS {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)
		next.ServeHTTP(w, r)
	})
}

func setCORSHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, "+OwnerHeader)
	h.Set("Access-Control-Expose-Headers", "Content-Disposition, "+skippedHeader+", "+durationHeader)
}

// handlePreflight answers CORS preflight requests.
func (ms *MixServer) handlePreflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// ownerMiddleware stores the requesting user from OwnerHeader in the
// request context. Authentication happens upstream.
func (ms *MixServer) ownerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := fileutil.SanitizeName(sanitizeInput(r.Header.Get(OwnerHeader)), 64)
		if owner != "" {
			r = r.WithContext(context.WithValue(r.Context(), OwnerContextKey, owner))
		}
		next.ServeHTTP(w, r)
	})
}

// ownerFrom returns the requesting user, or "" when anonymous.
func ownerFrom(r *http.Request) string {
	owner, _ := r.Context().Value(OwnerContextKey).(string)
	return owner
}

// quietPaths are polled by monitors and left out of the request log.
var quietPaths = []string{"/health", "/favicon.ico"}

func shouldLogRequest(path string) bool {
	for _, p := range quietPaths {
		if strings.HasPrefix(path, p) {
			return false
		}
	}
	return true
}

// panicRecoveryMiddleware intercepts panics returning HTTP 500 without crashing the process.
func (ms *MixServer) panicRecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				ms.logger.WithFields(logrus.Fields{
					"method": r.Method,
					"path":   r.URL.Path,
					"panic":  fmt.Sprint(err),
					"stack":  string(debug.Stack()),
				}).Error("Panic while serving request")
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
