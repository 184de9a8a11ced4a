package server

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// requestLogEntry is filled in by inner handlers and read by withRequestLogging
// once the response is written.
type requestLogEntry struct {
	authType  string
	username  string
	role      string
	personID  string
	authKnown bool
}

type requestLogKey struct{}

func contextWithRequestLog(ctx context.Context, entry *requestLogEntry) context.Context {
	return context.WithValue(ctx, requestLogKey{}, entry)
}

// noteRequestPrincipal records the authenticated principal on the request's
// log entry, if the request is being logged.
func noteRequestPrincipal(ctx context.Context, principal authPrincipal) {
	entry, ok := ctx.Value(requestLogKey{}).(*requestLogEntry)
	if !ok || entry == nil {
		return
	}
	entry.authKnown = true
	entry.authType = principal.AuthType
	if entry.authType == "" {
		entry.authType = "open"
	}
	entry.username = principal.Principal.Username
	entry.role = string(principal.Principal.Role)
	entry.personID = principal.Principal.PersonID
}

type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *loggingResponseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *loggingResponseWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += int64(n)
	return n, err
}

func (w *loggingResponseWriter) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func (w *loggingResponseWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (w *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

// requestLogLevel picks the level for a finished request; auth and rate-limit
// denials log at Warn.
func requestLogLevel(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status == http.StatusUnauthorized, status == http.StatusForbidden, status == http.StatusTooManyRequests:
		return slog.LevelWarn
	default:
		return slog.LevelDebug
	}
}

func (s *Server) withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		entry := &requestLogEntry{}
		r = r.WithContext(contextWithRequestLog(r.Context(), entry))
		rw := &loggingResponseWriter{ResponseWriter: w}
		next.ServeHTTP(rw, r)
		status := rw.Status()
		s.metrics.ObserveRequest(r.Pattern, status, start)

		attrs := []slog.Attr{
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Int64("bytes", rw.bytes),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			slog.String("remote_addr", r.RemoteAddr),
		}
		if r.Pattern != "" {
			attrs = append(attrs, slog.String("route", r.Pattern))
		}
		if entry.authKnown {
			principal := []any{slog.String("auth", entry.authType), slog.String("role", entry.role)}
			if entry.username != "" {
				principal = append(principal, slog.String("user", entry.username))
			}
			if entry.personID != "" {
				principal = append(principal, slog.String("person_id", entry.personID))
			}
			attrs = append(attrs, slog.Group("principal", principal...))
		}

		level := requestLogLevel(status)
		msg := "request complete"
		if level == slog.LevelWarn {
			msg = "request denied"
		}
		s.log().LogAttrs(r.Context(), level, msg, attrs...)
	})
}
