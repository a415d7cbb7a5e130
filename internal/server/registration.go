package server

import (
	"net/http"

	"tally-service/internal/service"

	log "github.com/sirupsen/logrus"

	"github.com/labstack/echo/v4"
)

type registrationRequest struct {
	Role           string `json:"role"`
	TempleID       string `json:"temple_id"`
	AuthorityGrant string `json:"authority_grant,omitempty"`
}

// Register finishes onboarding for an authenticated principal. Identity comes
// from the session; the body only chooses role and temple.
func (s *Server) Register(c echo.Context) error {
	var req registrationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}

	sess := sessionFrom(c)
	if sess.Role != "" {
		return c.JSON(http.StatusConflict, map[string]string{
			"error": "profile already registered",
		})
	}

	profile, err := s.registration.Register(c.Request().Context(), service.RegisterRequest{
		UID:            sess.UID,
		Email:          sess.Email,
		Name:           sess.Name,
		Role:           req.Role,
		TempleID:       req.TempleID,
		AuthorityGrant: req.AuthorityGrant,
	})
	if err != nil {
		log.WithError(err).WithField("uid", sess.UID).Error("Failed to register profile")
		statusCode, errorMsg := handleTallyError(err)
		return c.JSON(statusCode, map[string]string{
			"error": errorMsg,
		})
	}

	return c.JSON(http.StatusCreated, profile)
}
