package service

import (
	"context"
	"errors"
	"time"

	"miniquest-worker/internal/dateutil"
	"miniquest-worker/internal/domain"
	"miniquest-worker/internal/repository"

	"github.com/rs/zerolog"
)

// StreakStore is the slice of the profile repository the streak engine needs.
type StreakStore interface {
	UpdateStreak(ctx context.Context, uid string, postCreatedAt time.Time,
		transition func(currentStreak int, lastPostDate *time.Time) int) error
}

// StreakService advances a user's daily posting streak when they create a
// post. The transition runs inside a single store transaction per profile;
// posts by different users never contend.
type StreakService struct {
	profiles StreakStore
	logger   zerolog.Logger
}

func NewStreakService(profiles StreakStore, logger zerolog.Logger) *StreakService {
	return &StreakService{profiles: profiles, logger: logger}
}

// OnPostCreated applies the streak transition for the post's author. A
// missing profile is not an error: brand-new users post before their profile
// document exists. Posts are assumed to arrive in non-decreasing createdAt
// order per user; a late-arriving older post is not compensated for.
func (s *StreakService) OnPostCreated(ctx context.Context, post *domain.Post) error {
	err := s.profiles.UpdateStreak(ctx, post.UID, post.CreatedAt, func(currentStreak int, lastPostDate *time.Time) int {
		return nextStreak(currentStreak, lastPostDate, post.CreatedAt)
	})
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Info().Str("uid", post.UID).Msg("no profile for author, skipping streak update")
		recordStreakUpdate("skipped")
		return nil
	}
	if err != nil {
		s.logger.Error().Err(err).Str("uid", post.UID).Str("post_id", post.ID).Msg("streak update failed")
		recordStreakUpdate("error")
		return err
	}

	recordStreakUpdate("ok")
	return nil
}

// nextStreak is the streak transition rule. Same local day keeps the streak,
// the day after the last post extends it, anything else restarts at 1.
func nextStreak(currentStreak int, lastPostDate *time.Time, postCreatedAt time.Time) int {
	if lastPostDate == nil {
		return 1
	}

	today := dateutil.DayKey(postCreatedAt)
	lastDay := dateutil.DayKey(*lastPostDate)

	if lastDay == today {
		return currentStreak
	}
	if lastDay == dateutil.YesterdayKey(postCreatedAt) {
		return currentStreak + 1
	}
	return 1
}
