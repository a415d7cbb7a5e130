package server

import (
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/labstack/echo/v4"
)

type incrementRequest struct {
	Amount int64 `json:"amount"`
}

func (s *Server) ApplyIncrement(c echo.Context) error {
	templeID := c.Param("temple_id")
	servantID := c.Param("servant_id")

	var req incrementRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}

	sess := sessionFrom(c)
	newTotal, err := s.counter.ApplyIncrement(c.Request().Context(), sess, templeID, servantID, req.Amount)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"temple_id":  templeID,
			"servant_id": servantID,
		}).Error("Failed to apply increment")
		statusCode, errorMsg := handleTallyError(err)
		return c.JSON(statusCode, map[string]string{
			"error": errorMsg,
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"temple_id":  templeID,
		"servant_id": servantID,
		"new_total":  newTotal,
	})
}

func (s *Server) ResetIndividual(c echo.Context) error {
	templeID := c.Param("temple_id")
	servantID := c.Param("servant_id")

	sess := sessionFrom(c)
	if err := s.counter.ResetIndividual(c.Request().Context(), sess, templeID, servantID); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"temple_id":  templeID,
			"servant_id": servantID,
		}).Error("Failed to reset individual count")
		statusCode, errorMsg := handleTallyError(err)
		return c.JSON(statusCode, map[string]string{
			"error": errorMsg,
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"temple_id":  templeID,
		"servant_id": servantID,
		"new_total":  0,
	})
}

func (s *Server) ResetAuthority(c echo.Context) error {
	templeID := c.Param("temple_id")

	sess := sessionFrom(c)
	affected, err := s.counter.ResetAuthority(c.Request().Context(), sess, templeID)
	if err != nil {
		log.WithError(err).WithField("temple_id", templeID).Error("Failed to execute authority reset")
		statusCode, errorMsg := handleTallyError(err)
		return c.JSON(statusCode, map[string]string{
			"error": errorMsg,
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"temple_id": templeID,
		"affected":  affected,
	})
}

func (s *Server) GetCount(c echo.Context) error {
	templeID := c.Param("temple_id")
	servantID := c.Param("servant_id")

	if sessionFrom(c).TempleID != templeID {
		return c.JSON(http.StatusForbidden, map[string]string{
			"error": "not authorized for this temple",
		})
	}

	count, err := s.counter.GetCount(c.Request().Context(), templeID, servantID)
	if err != nil {
		log.WithError(err).WithField("servant_id", servantID).Error("Failed to get count")
		statusCode, errorMsg := handleTallyError(err)
		return c.JSON(statusCode, map[string]string{
			"error": errorMsg,
		})
	}

	return c.JSON(http.StatusOK, count)
}

func (s *Server) ListCounts(c echo.Context) error {
	templeID := c.Param("temple_id")

	if sessionFrom(c).TempleID != templeID {
		return c.JSON(http.StatusForbidden, map[string]string{
			"error": "not authorized for this temple",
		})
	}

	snapshot, err := s.counter.Snapshot(c.Request().Context(), templeID)
	if err != nil {
		log.WithError(err).WithField("temple_id", templeID).Error("Failed to list counts")
		statusCode, errorMsg := handleTallyError(err)
		return c.JSON(statusCode, map[string]string{
			"error": errorMsg,
		})
	}

	return c.JSON(http.StatusOK, snapshot)
}
