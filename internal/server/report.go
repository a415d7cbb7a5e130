package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/labstack/echo/v4"
)

func (s *Server) GetDailyTotals(c echo.Context) error {
	templeID := c.Param("temple_id")

	if sessionFrom(c).TempleID != templeID {
		return c.JSON(http.StatusForbidden, map[string]string{
			"error": "not authorized for this temple",
		})
	}

	year, err := strconv.Atoi(c.Param("year"))
	if err != nil || year < 1970 {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid year",
		})
	}
	monthNum, err := strconv.Atoi(c.Param("month"))
	if err != nil || monthNum < 1 || monthNum > 12 {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid month",
		})
	}

	totals, err := s.reports.DailyTotals(c.Request().Context(), templeID, year, time.Month(monthNum))
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"temple_id": templeID,
			"year":      year,
			"month":     monthNum,
		}).Error("Failed to compute daily totals")
		statusCode, errorMsg := handleTallyError(err)
		return c.JSON(statusCode, map[string]string{
			"error": errorMsg,
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"temple_id": templeID,
		"year":      year,
		"month":     monthNum,
		"totals":    totals,
	})
}

func (s *Server) GetDayLedger(c echo.Context) error {
	templeID := c.Param("temple_id")
	date := c.Param("date")

	if sessionFrom(c).TempleID != templeID {
		return c.JSON(http.StatusForbidden, map[string]string{
			"error": "not authorized for this temple",
		})
	}

	ledger, err := s.reports.DayLedger(c.Request().Context(), templeID, date)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"temple_id": templeID,
			"date":      date,
		}).Error("Failed to build day ledger")
		statusCode, errorMsg := handleTallyError(err)
		return c.JSON(statusCode, map[string]string{
			"error": errorMsg,
		})
	}

	return c.JSON(http.StatusOK, ledger)
}

func (s *Server) ExportDayLedger(c echo.Context) error {
	templeID := c.Param("temple_id")
	date := c.Param("date")

	if sessionFrom(c).TempleID != templeID {
		return c.JSON(http.StatusForbidden, map[string]string{
			"error": "not authorized for this temple",
		})
	}

	data, filename, err := s.reports.ExportDayCSV(c.Request().Context(), templeID, date)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"temple_id": templeID,
			"date":      date,
		}).Error("Failed to export day ledger")
		statusCode, errorMsg := handleTallyError(err)
		return c.JSON(statusCode, map[string]string{
			"error": errorMsg,
		})
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Blob(http.StatusOK, "text/csv", data)
}
