package api

import (
	"errors"
	"fmt"
	"net/http"
)

func (s *SynapseApp) errorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				var panicError error
				switch e := err.(type) {
				case error:
					panicError = e
				default:
					panicError = fmt.Errorf("%v", e)
				}
				s.log.Error().Err(panicError).Str("path", r.URL.Path).Msg("panic")
				errResp := NewInternalServerError(panicError)
				w.Header().Set("Connection", "close")
				s.writeJson(w, errResp.StatusCode, errResp)
				return
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// authMiddleware rejects requests without a valid token.
func (s *SynapseApp) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return s.identify(true, next)
}

// sessionMiddleware identifies the caller when a token is present. Requests
// without one pass through anonymously unless the server requires auth; a
// token that fails verification is always rejected.
func (s *SynapseApp) sessionMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return s.identify(s.requireAuth, next)
}

func (s *SynapseApp) identify(required bool, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := tokenFromRequest(r)
		if errors.Is(err, ErrNoToken) && !required {
			next(w, r)
			return
		}

		if err != nil {
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		userId, err := s.extractUserIdFromToken(tokenString)
		if err != nil {
			s.log.Warn().Err(err).Msg("failed to extract user id from token")
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
		next(w, r.WithContext(WithUserId(r.Context(), userId)))
	}
}
