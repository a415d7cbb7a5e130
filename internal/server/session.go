package server

import (
	"errors"
	"net/http"

	"tally-service/internal/domain"

	log "github.com/sirupsen/logrus"

	"github.com/labstack/echo/v4"
)

// Identity headers set by the upstream auth proxy. The identity provider is
// an external collaborator: by the time a request reaches this service, the
// principal is already authenticated.
const (
	headerUserID    = "X-User-Id"
	headerUserName  = "X-User-Name"
	headerUserEmail = "X-User-Email"
)

const sessionContextKey = "tally.session"

// SessionMiddleware builds the explicit per-request session from the
// authenticated identity plus the registered profile, and rejects requests
// with no identity at all. Handlers read the session from the echo context
// instead of any shared mutable state.
func (s *Server) SessionMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		uid := c.Request().Header.Get(headerUserID)
		if uid == "" {
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error": "missing authenticated identity",
			})
		}

		sess := domain.Session{
			UID:   uid,
			Name:  c.Request().Header.Get(headerUserName),
			Email: c.Request().Header.Get(headerUserEmail),
		}

		profile, err := s.registration.Lookup(c.Request().Context(), uid)
		switch {
		case err == nil:
			sess.Role = profile.Role
			sess.TempleID = profile.TempleID
			// Prefer the registered display name so event records stay
			// consistent with the name captured at registration.
			if profile.Name != "" {
				sess.Name = profile.Name
			}
		case errors.Is(err, domain.ErrProfileNotFound):
			// Unregistered principal: only the registration endpoint will
			// accept the session.
		default:
			log.WithError(err).WithField("uid", uid).Error("Failed to resolve profile for session")
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error": "internal server error",
			})
		}

		c.Set(sessionContextKey, sess)
		return next(c)
	}
}

func sessionFrom(c echo.Context) domain.Session {
	sess, _ := c.Get(sessionContextKey).(domain.Session)
	return sess
}
