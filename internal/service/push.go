package service

import (
	"context"
	"errors"
	"fmt"

	"miniquest-worker/internal/api"
	"miniquest-worker/internal/domain"
	"miniquest-worker/internal/repository"

	"github.com/rs/zerolog"
)

type ProfileGetter interface {
	Get(ctx context.Context, uid string) (*domain.UserProfile, error)
}

type PushGateway interface {
	Send(ctx context.Context, msg api.PushMessage) error
}

// PushService renders a notification document into a device message and hands
// it to the push gateway. Gateway failures are logged and swallowed; delivery
// is best effort and must never fail the triggering operation.
type PushService struct {
	profiles ProfileGetter
	gateway  PushGateway
	logger   zerolog.Logger
}

func NewPushService(profiles ProfileGetter, gateway PushGateway, logger zerolog.Logger) *PushService {
	return &PushService{profiles: profiles, gateway: gateway, logger: logger}
}

func (s *PushService) OnNotificationCreated(ctx context.Context, n *domain.Notification) error {
	if n.FromUID == n.TargetUID {
		s.logger.Debug().Str("notification_id", n.ID).Msg("self notification, suppressed")
		return nil
	}

	profile, err := s.profiles.Get(ctx, n.TargetUID)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Info().Str("target_uid", n.TargetUID).Msg("no profile for target, skipping push")
		return nil
	}
	if err != nil {
		s.logger.Error().Err(err).Str("target_uid", n.TargetUID).Msg("failed to load target profile")
		recordPush("error")
		return err
	}
	if profile.FCMToken == "" {
		s.logger.Debug().Str("target_uid", n.TargetUID).Msg("target has no device token, skipping push")
		return nil
	}

	title, body := renderNotification(n)
	msg := api.PushMessage{
		Token: profile.FCMToken,
		Title: title,
		Body:  body,
		Data: map[string]string{
			"type":         string(n.Type),
			"postId":       n.PostID,
			"click_action": "FLUTTER_NOTIFICATION_CLICK",
		},
		Sound:      "default",
		BadgeCount: 1,
	}

	if err := s.gateway.Send(ctx, msg); err != nil {
		s.logger.Error().Err(err).
			Str("notification_id", n.ID).
			Str("target_uid", n.TargetUID).
			Str("type", string(n.Type)).
			Msg("push gateway dispatch failed")
		recordPush("failed")
		return nil
	}

	recordPush("ok")
	return nil
}

const (
	defaultPushTitle = "MiniQuest 通知"
	defaultPushBody  = "新しいお知らせがあります"
)

type renderFunc func(n *domain.Notification) (title, body string)

// pushTemplates is the closed set of notification variants. Adding a type
// means adding a constant in domain and a render function here.
var pushTemplates = map[domain.NotificationType]renderFunc{
	domain.NotificationCheer: func(n *domain.Notification) (string, string) {
		return "🔥 応援が届きました！",
			fmt.Sprintf("%sさんがあなたのクエストを応援しています！", senderName(n))
	},
	domain.NotificationComment: func(n *domain.Notification) (string, string) {
		return "💬 コメントがつきました",
			fmt.Sprintf("%sさんがコメントしました: \"%s\"", senderName(n), n.PostSnippet)
	},
	domain.NotificationFriendRequest: func(n *domain.Notification) (string, string) {
		return "フレンド申請",
			fmt.Sprintf("%sさんからフレンド申請が届きました", senderName(n))
	},
	domain.NotificationQuestInvite: func(n *domain.Notification) (string, string) {
		return "✉️ クエスト招待",
			fmt.Sprintf("%sさんが「%s」にあなたを招待しました！", senderName(n), n.QuestTitle)
	},
	domain.NotificationQuestUpdate: func(n *domain.Notification) (string, string) {
		body := n.Message
		if body == "" {
			body = "フレンドクエストの進捗があります"
		}
		return "仲間が記録しました！", body
	},
	domain.NotificationBattleResult: func(n *domain.Notification) (string, string) {
		return "🏆 バトル結果発表！",
			fmt.Sprintf("「%s」の結果が出ました。タップして確認しよう！", n.QuestTitle)
	},
}

func renderNotification(n *domain.Notification) (string, string) {
	if render, ok := pushTemplates[n.Type]; ok {
		return render(n)
	}
	return defaultPushTitle, defaultPushBody
}

func senderName(n *domain.Notification) string {
	if n.FromUserName == "" {
		return "誰か"
	}
	return n.FromUserName
}
