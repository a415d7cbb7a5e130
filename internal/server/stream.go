package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"tally-service/internal/domain"

	log "github.com/sirupsen/logrus"

	"github.com/labstack/echo/v4"
)

// StreamCounts serves the live dashboard over server-sent events. Each
// message is the full current snapshot of the temple's counts, so clients
// never merge deltas. Client disconnect cancels the request context, which
// drops the subscription; no state outlives the request.
func (s *Server) StreamCounts(c echo.Context) error {
	templeID := c.Param("temple_id")

	sess := sessionFrom(c)
	if sess.TempleID != templeID {
		return c.JSON(http.StatusForbidden, map[string]string{
			"error": "not authorized for this temple",
		})
	}

	ch, cancel := s.broker.Subscribe(templeID)
	defer cancel()

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	// Seed the stream with the current state before any change arrives.
	snapshot, err := s.counter.Snapshot(c.Request().Context(), templeID)
	if err != nil {
		log.WithError(err).WithField("temple_id", templeID).Error("Failed to seed live stream")
		return err
	}
	if err := writeSnapshot(resp, snapshot); err != nil {
		return err
	}

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case snapshot, ok := <-ch:
			if !ok {
				return nil
			}
			if err := writeSnapshot(resp, snapshot); err != nil {
				return err
			}
		}
	}
}

func writeSnapshot(resp *echo.Response, snapshot domain.Snapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if _, err := fmt.Fprintf(resp, "data: %s\n\n", payload); err != nil {
		return err
	}
	resp.Flush()
	return nil
}
