package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tally-service/internal/broker"
	"tally-service/internal/domain"
	"tally-service/internal/metrics"

	log "github.com/sirupsen/logrus"
)

// CountStore is the transactional persistence surface for live aggregates.
// Every mutation commits the aggregate change and the matching log event
// together or not at all.
type CountStore interface {
	ApplyIncrement(ctx context.Context, templeID, servantID, servantName string, amount int64) (int64, domain.TallyEvent, error)
	ResetIndividual(ctx context.Context, templeID, servantID string) (domain.TallyEvent, error)
	ResetAuthority(ctx context.Context, templeID, actor string) (int, []domain.TallyEvent, error)
	GetByServant(ctx context.Context, templeID, servantID string) (*domain.Count, error)
	ListByTemple(ctx context.Context, templeID string) ([]domain.Count, error)
}

// CounterService is the write path: increments and the two reset flavors.
// Authorization decisions are made here against the explicit session, never
// against ambient state.
type CounterService struct {
	counts CountStore
	mirror *MirrorService
	broker *broker.Broker
}

func NewCounterService(counts CountStore, mirror *MirrorService, b *broker.Broker) *CounterService {
	return &CounterService{counts: counts, mirror: mirror, broker: b}
}

// ApplyIncrement adds a positive amount to the caller's own counter and
// returns the new total. Only the owning servant may increment.
func (s *CounterService) ApplyIncrement(ctx context.Context, sess domain.Session, templeID, servantID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	if !sess.CanActOn(templeID, servantID) {
		return 0, domain.ErrAuthorizationDenied
	}

	newTotal, evt, err := s.counts.ApplyIncrement(ctx, templeID, servantID, sess.Name, amount)
	if err != nil {
		return 0, err
	}

	metrics.IncrementsApplied.Inc()
	metrics.IncrementAmount.Observe(float64(amount))
	log.WithFields(log.Fields{
		"temple_id":  templeID,
		"servant_id": servantID,
		"amount":     amount,
		"new_total":  newTotal,
	}).Info("Increment applied")

	s.recordEvents(ctx, evt)
	s.publishSnapshot(ctx, templeID)
	return newTotal, nil
}

// ResetIndividual zeroes the caller's own counter.
func (s *CounterService) ResetIndividual(ctx context.Context, sess domain.Session, templeID, servantID string) error {
	if !sess.CanActOn(templeID, servantID) {
		return domain.ErrAuthorizationDenied
	}

	evt, err := s.counts.ResetIndividual(ctx, templeID, servantID)
	if err != nil {
		return err
	}

	metrics.ResetsExecuted.WithLabelValues("individual").Inc()
	s.recordEvents(ctx, evt)
	s.publishSnapshot(ctx, templeID)
	return nil
}

// ResetAuthority zeroes every counter in the temple and returns how many
// servants were affected. Only an authority of the temple may call it; the
// batch is all-or-nothing.
func (s *CounterService) ResetAuthority(ctx context.Context, sess domain.Session, templeID string) (int, error) {
	if !sess.IsAuthorityFor(templeID) {
		return 0, domain.ErrAuthorizationDenied
	}

	actor := sess.Email
	if actor == "" {
		actor = sess.UID
	}

	affected, events, err := s.counts.ResetAuthority(ctx, templeID, actor)
	if err != nil {
		return 0, err
	}

	metrics.ResetsExecuted.WithLabelValues("authority").Inc()
	log.WithFields(log.Fields{
		"temple_id": templeID,
		"actor":     actor,
		"affected":  affected,
	}).Info("Authority reset executed")

	s.recordEvents(ctx, events...)
	s.publishSnapshot(ctx, templeID)
	return affected, nil
}

// GetCount returns a servant's live total. A servant without a counter yet
// reads as zero rather than an error.
func (s *CounterService) GetCount(ctx context.Context, templeID, servantID string) (*domain.Count, error) {
	count, err := s.counts.GetByServant(ctx, templeID, servantID)
	if errors.Is(err, domain.ErrCountNotFound) {
		return &domain.Count{TempleID: templeID, ServantID: servantID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get count: %w", err)
	}
	return count, nil
}

// Snapshot assembles the full current state of a temple's counts.
func (s *CounterService) Snapshot(ctx context.Context, templeID string) (domain.Snapshot, error) {
	counts, err := s.counts.ListByTemple(ctx, templeID)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to build snapshot: %w", err)
	}

	var total int64
	for _, c := range counts {
		total += c.CurrentTotal
	}
	return domain.Snapshot{
		TempleID: templeID,
		Total:    total,
		Counts:   counts,
		At:       time.Now().UTC(),
	}, nil
}

func (s *CounterService) recordEvents(ctx context.Context, events ...domain.TallyEvent) {
	for _, evt := range events {
		if err := s.mirror.Record(ctx, evt); err != nil {
			log.WithError(err).WithField("event_id", evt.ID).Warn("Failed to mirror tally event")
		}
	}
}

func (s *CounterService) publishSnapshot(ctx context.Context, templeID string) {
	if s.broker == nil {
		return
	}
	snapshot, err := s.Snapshot(ctx, templeID)
	if err != nil {
		log.WithError(err).WithField("temple_id", templeID).Warn("Failed to publish live snapshot")
		return
	}
	s.broker.Publish(snapshot)
}
