package service

import (
	"context"
	"errors"
	"fmt"

	"miniquest-worker/internal/domain"
	"miniquest-worker/internal/repository"

	"github.com/rs/zerolog"
)

type QuestGetter interface {
	Get(ctx context.Context, id string) (*domain.Quest, error)
}

type NotificationWriter interface {
	CreateBatch(ctx context.Context, notifications []domain.Notification) error
}

// Pusher consumes a freshly created notification document and delivers it to
// the author's friends' devices. Implemented by PushService.
type Pusher interface {
	OnNotificationCreated(ctx context.Context, n *domain.Notification) error
}

// FanoutService notifies a quest's participants when one of them posts
// progress. Solo quests and posts without a quest produce nothing.
type FanoutService struct {
	quests        QuestGetter
	notifications NotificationWriter
	pusher        Pusher
	logger        zerolog.Logger
}

func NewFanoutService(quests QuestGetter, notifications NotificationWriter, pusher Pusher, logger zerolog.Logger) *FanoutService {
	return &FanoutService{quests: quests, notifications: notifications, pusher: pusher, logger: logger}
}

// OnPostCreated creates one quest_update notification per participant except
// the author, committed as a single batch so a fan-out never partially lands.
func (s *FanoutService) OnPostCreated(ctx context.Context, post *domain.Post) error {
	if post.QuestID == "" {
		return nil
	}

	quest, err := s.quests.Get(ctx, post.QuestID)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Info().Str("quest_id", post.QuestID).Msg("post references unknown quest, skipping fan-out")
		return nil
	}
	if err != nil {
		s.logger.Error().Err(err).Str("quest_id", post.QuestID).Msg("failed to load quest for fan-out")
		return err
	}
	if quest.Type == domain.QuestTypePersonal {
		return nil
	}

	notifications := buildFanout(quest, post)
	if len(notifications) == 0 {
		return nil
	}

	if err := s.notifications.CreateBatch(ctx, notifications); err != nil {
		s.logger.Error().Err(err).Str("quest_id", quest.ID).Str("post_id", post.ID).Msg("failed to commit fan-out batch")
		return err
	}

	recordFanout(len(notifications))
	s.logger.Info().
		Str("quest_id", quest.ID).
		Str("post_id", post.ID).
		Int("targets", len(notifications)).
		Msg("fan-out committed")

	for i := range notifications {
		if err := s.pusher.OnNotificationCreated(ctx, &notifications[i]); err != nil {
			s.logger.Error().Err(err).Str("notification_id", notifications[i].ID).Msg("push dispatch failed after fan-out")
		}
	}
	return nil
}

// buildFanout produces the notification documents for one post, excluding the
// author even when they appear in the participant list.
func buildFanout(quest *domain.Quest, post *domain.Post) []domain.Notification {
	var notifications []domain.Notification
	for _, uid := range quest.ParticipantIDs {
		if uid == post.UID {
			continue
		}
		notifications = append(notifications, domain.Notification{
			Type:         domain.NotificationQuestUpdate,
			FromUID:      post.UID,
			FromUserName: post.UserName,
			TargetUID:    uid,
			PostID:       post.ID,
			QuestTitle:   quest.Title,
			Message:      fmt.Sprintf("%sさんが「%s」の進捗を記録しました！", post.UserName, quest.Title),
		})
	}
	return notifications
}
