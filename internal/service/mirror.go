package service

import (
	"context"

	"tally-service/internal/domain"
)

// TallyEventPublisher mirrors committed events to an external stream.
type TallyEventPublisher interface {
	Publish(ctx context.Context, event domain.TallyEvent) error
}

// MirrorService forwards committed tally events to the configured publisher.
// It is nil-safe: with no publisher wired it does nothing, so the write path
// never has to care whether Kafka is configured.
type MirrorService struct {
	publisher TallyEventPublisher
}

func NewMirrorService(publisher TallyEventPublisher) *MirrorService {
	return &MirrorService{publisher: publisher}
}

func (s *MirrorService) Record(ctx context.Context, event domain.TallyEvent) error {
	if s == nil || s.publisher == nil {
		return nil
	}
	return s.publisher.Publish(ctx, event)
}
