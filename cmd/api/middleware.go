package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	zlog "github.com/rs/zerolog/log"

	"dreamkeys/policy"
)

type ctxKey int

const tokenKey ctxKey = iota

// bearerToken stores the raw bearer token, if any, in the request context.
// Verification happens later, in the guards of the operation being called.
func bearerToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		if h == "" {
			next.ServeHTTP(w, r)
			return
		}
		scheme, token, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			next.ServeHTTP(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), tokenKey, strings.TrimSpace(token))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// subject builds the policy request for r.
func subject(r *http.Request) *policy.Request {
	token, _ := r.Context().Value(tokenKey).(string)
	return policy.NewRequest(token)
}

// authorize runs guards before the handler reads the body, writing the
// denial when one fails. The returned request keeps the resolved claims and
// standing for the service call.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, guards ...policy.Guard) (*policy.Request, bool) {
	req := subject(r)
	if _, err := s.authz.Check(r.Context(), req, guards...); err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return req, true
}

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w}
		start := time.Now()

		next.ServeHTTP(sw, r)

		zlog.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Int("bytes", sw.bytes).
			Dur("latency", time.Since(start)).
			Str("remote_ip", r.RemoteAddr).
			Msg("http_request")
	})
}
