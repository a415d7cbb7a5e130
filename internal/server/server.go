package server

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"tally-service/internal/broker"
	"tally-service/internal/domain"
	"tally-service/internal/service"

	log "github.com/sirupsen/logrus"

	"github.com/labstack/echo/v4"
)

type CounterService interface {
	ApplyIncrement(ctx context.Context, sess domain.Session, templeID, servantID string, amount int64) (int64, error)
	ResetIndividual(ctx context.Context, sess domain.Session, templeID, servantID string) error
	ResetAuthority(ctx context.Context, sess domain.Session, templeID string) (int, error)
	GetCount(ctx context.Context, templeID, servantID string) (*domain.Count, error)
	Snapshot(ctx context.Context, templeID string) (domain.Snapshot, error)
}

type ReportService interface {
	DailyTotals(ctx context.Context, templeID string, year int, month time.Month) (map[string]int64, error)
	DayLedger(ctx context.Context, templeID, date string) (*service.DayLedger, error)
	ExportDayCSV(ctx context.Context, templeID, date string) ([]byte, string, error)
}

type RegistrationService interface {
	Register(ctx context.Context, req service.RegisterRequest) (*domain.Profile, error)
	Lookup(ctx context.Context, uid string) (*domain.Profile, error)
}

type TempleStore interface {
	GetByID(ctx context.Context, id string) (*domain.Temple, error)
}

type Server struct {
	counter      CounterService
	reports      ReportService
	registration RegistrationService
	temples      TempleStore
	broker       *broker.Broker
	db           *sql.DB
}

func NewServer(counter CounterService, reports ReportService, registration RegistrationService, temples TempleStore, b *broker.Broker, db *sql.DB) *Server {
	return &Server{
		counter:      counter,
		reports:      reports,
		registration: registration,
		temples:      temples,
		broker:       b,
		db:           db,
	}
}

func (s *Server) HealthCheck(c echo.Context) error {
	if err := s.db.Ping(); err != nil {
		log.WithField("error", err).Error("Health check failed: database is down")
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  "database connection error",
		})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func (s *Server) GetTemple(c echo.Context) error {
	templeID := c.Param("temple_id")
	if templeID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "temple ID is required",
		})
	}

	temple, err := s.temples.GetByID(c.Request().Context(), templeID)
	if err != nil {
		statusCode, errorMsg := handleTallyError(err)
		return c.JSON(statusCode, map[string]string{
			"error": errorMsg,
		})
	}

	return c.JSON(http.StatusOK, temple)
}

// handleTallyError maps domain errors to HTTP responses. Write-path failures
// surface with enough detail for user-visible feedback; everything else
// collapses to an internal error.
func handleTallyError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount):
		return http.StatusBadRequest, "amount must be a positive integer"
	case errors.Is(err, domain.ErrInvalidRole), errors.Is(err, domain.ErrMalformedEvent):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, domain.ErrAuthorizationDenied):
		return http.StatusForbidden, "not authorized for this action"
	case errors.Is(err, domain.ErrCountNotFound),
		errors.Is(err, domain.ErrTempleNotFound),
		errors.Is(err, domain.ErrProfileNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrProfileExists):
		return http.StatusConflict, "profile already registered"
	case errors.Is(err, domain.ErrConcurrentUpdateConflict),
		errors.Is(err, domain.ErrTransientWriteFailure):
		return http.StatusConflict, "write conflict, please retry"
	case errors.Is(err, domain.ErrPartialResetFailure):
		return http.StatusInternalServerError, "reset failed, no changes were applied"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
