package server

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"credvault/internal/auth"
)

const authRealm = `Basic realm="credvault"`

// withAuth resolves the request principal from a Bearer admin token or Basic
// credentials. While no admin token is configured and no enabled user exists,
// unauthenticated requests run as the system principal.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			required, err := s.authService.AuthRequired(r.Context(), s.adminToken != "")
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			if required {
				s.writeUnauthorized(w, r, fmt.Errorf("authentication required"))
				return
			}
			ctx := contextWithAuthPrincipal(r.Context(), authPrincipal{Principal: auth.SystemPrincipal()})
			next(w, r.WithContext(ctx))
			return
		}

		scheme, _, _ := strings.Cut(header, " ")
		now := time.Now().UTC()
		switch strings.ToLower(scheme) {
		case authTypeBearer:
			key := authAttemptKey("<bearer>", r)
			if !s.authLimiter.Allow(key, now) {
				s.writeTooManyAttempts(w, r)
				return
			}
			token := strings.TrimSpace(header[len(scheme):])
			if s.adminToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
				s.authLimiter.RegisterFailure(key, now)
				s.writeUnauthorized(w, r, fmt.Errorf("invalid token"))
				return
			}
			s.authLimiter.Reset(key)
			ctx := contextWithAuthPrincipal(r.Context(), authPrincipal{
				AuthType:     authTypeBearer,
				AuthRequired: true,
				Principal:    auth.SystemPrincipal(),
			})
			next(w, r.WithContext(ctx))
		case authTypeBasic:
			username, password, ok := r.BasicAuth()
			if !ok {
				s.writeUnauthorized(w, r, fmt.Errorf("malformed basic credentials"))
				return
			}
			key := authAttemptKey(username, r)
			if !s.authLimiter.Allow(key, now) {
				s.writeTooManyAttempts(w, r)
				return
			}
			principal, err := s.authService.Authenticate(r.Context(), username, password)
			if err != nil {
				if errors.Is(err, errInvalidCredentials) {
					s.authLimiter.RegisterFailure(key, now)
					s.writeUnauthorized(w, r, errInvalidCredentials)
					return
				}
				s.writeServiceError(w, r, err)
				return
			}
			s.authLimiter.Reset(key)
			ctx := contextWithAuthPrincipal(r.Context(), authPrincipal{
				AuthType:     authTypeBasic,
				AuthRequired: true,
				Principal:    principal,
			})
			next(w, r.WithContext(ctx))
		default:
			s.writeUnauthorized(w, r, fmt.Errorf("unsupported authorization scheme"))
		}
	}
}

func (s *Server) writeUnauthorized(w http.ResponseWriter, r *http.Request, err error) {
	w.Header().Set("WWW-Authenticate", authRealm)
	s.writeErrorReq(w, r, http.StatusUnauthorized, unauthorized(err))
}

func (s *Server) writeTooManyAttempts(w http.ResponseWriter, r *http.Request) {
	s.writeErrorReq(w, r, http.StatusTooManyRequests, apiError{
		status:  http.StatusTooManyRequests,
		code:    "resource_exhausted",
		errCode: ErrCodeResourceExhausted,
		err:     fmt.Errorf("too many failed authentication attempts; retry later"),
	})
}

func authAttemptKey(username string, r *http.Request) string {
	user := strings.ToLower(strings.TrimSpace(username))
	if user == "" {
		user = "<empty>"
	}
	ip := requestClientIP(r)
	if ip == "" {
		ip = "<unknown>"
	}
	return ip + "|" + user
}

func requestClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	remote := strings.TrimSpace(r.RemoteAddr)
	if remote == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(remote)
	if err == nil {
		return strings.TrimSpace(host)
	}
	return remote
}
