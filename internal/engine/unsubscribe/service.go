package unsubscribe

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"mystore/internal/platform/database"
	"mystore/internal/platform/repositories"
)

type Service struct {
	subscribers *repositories.SubscriberRepository
	now         func() time.Time
}

func NewService(db database.DBTX) *Service {
	return &Service{subscribers: repositories.NewSubscriberRepository(db), now: time.Now}
}

// Enroll subscribes a new member without overriding a recorded opt-out.
func (s *Service) Enroll(ctx context.Context, email string) error {
	added, err := s.subscribers.Enroll(ctx, email)
	if err != nil {
		return err
	}
	if !added {
		log.Debug().Msg("subscriber row exists, enrollment skipped")
	}
	return nil
}

// Subscribe is an explicit opt-in and revives an earlier opt-out.
func (s *Service) Subscribe(ctx context.Context, email string) error {
	return s.subscribers.Subscribe(ctx, email)
}

// Unsubscribe marks the active subscription of email as unsubscribed. found is
// false when there was no active subscription.
func (s *Service) Unsubscribe(ctx context.Context, email string) (bool, error) {
	found, err := s.subscribers.Unsubscribe(ctx, email, s.now().Unix())
	if err != nil {
		return false, err
	}
	log.Info().Bool("found", found).Msg("unsubscribe processed")
	return found, nil
}
