// Package server is the trigger adapter: it turns webhook deliveries of
// document-creation events into handler invocations. The handlers themselves
// know nothing about HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"miniquest-worker/internal/constants"
	"miniquest-worker/internal/domain"
	"miniquest-worker/internal/service"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type ProfileUpserter interface {
	Upsert(ctx context.Context, p *domain.UserProfile) error
}

type QuestUpserter interface {
	Upsert(ctx context.Context, q *domain.Quest) error
}

type PostWriter interface {
	Create(ctx context.Context, post *domain.Post) error
}

type EventServer struct {
	streak   *service.StreakService
	fanout   *service.FanoutService
	push     *service.PushService
	posts    PostWriter
	profiles ProfileUpserter
	quests   QuestUpserter
	logger   zerolog.Logger
}

func NewEventServer(
	streak *service.StreakService,
	fanout *service.FanoutService,
	push *service.PushService,
	posts PostWriter,
	profiles ProfileUpserter,
	quests QuestUpserter,
	logger zerolog.Logger,
) *EventServer {
	return &EventServer{
		streak:   streak,
		fanout:   fanout,
		push:     push,
		posts:    posts,
		profiles: profiles,
		quests:   quests,
		logger:   logger,
	}
}

func (s *EventServer) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /events/post-created", s.handlePostCreated)
	mux.HandleFunc("POST /events/notification-created", s.handleNotificationCreated)
	mux.HandleFunc("POST /sync/user", s.handleUserSync)
	mux.HandleFunc("POST /sync/quest", s.handleQuestSync)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
}

type postEvent struct {
	ID            string    `json:"postId"`
	UID           string    `json:"uid"`
	UserName      string    `json:"userName"`
	Text          string    `json:"text"`
	EffortHours   float64   `json:"timeSpentHours"`
	LikeCount     int       `json:"likeCount"`
	CommentCount  int       `json:"commentCount"`
	QuestID       string    `json:"myQuestId"`
	QuestTitle    string    `json:"myQuestTitle"`
	QuestCategory string    `json:"questCategory"`
	IsResultPost  bool      `json:"isResultPost"`
	CreatedAt     time.Time `json:"createdAt"`
}

// handlePostCreated persists the post into the local read model, then runs
// the streak update and the participant fan-out concurrently. The two are
// independent: a streak failure never blocks notifications and vice versa.
// Event sources always get 204; failures degrade to logs.
func (s *EventServer) handlePostCreated(w http.ResponseWriter, r *http.Request) {
	var event postEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, "invalid event body", http.StatusBadRequest)
		return
	}
	if event.UID == "" {
		http.Error(w, "missing uid", http.StatusBadRequest)
		return
	}

	post := &domain.Post{
		ID:            event.ID,
		UID:           event.UID,
		UserName:      event.UserName,
		Text:          event.Text,
		EffortHours:   event.EffortHours,
		LikeCount:     event.LikeCount,
		CommentCount:  event.CommentCount,
		QuestID:       event.QuestID,
		QuestTitle:    event.QuestTitle,
		QuestCategory: event.QuestCategory,
		IsResultPost:  event.IsResultPost,
		CreatedAt:     event.CreatedAt,
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(r.Context(), constants.RequestTimeout)
	defer cancel()

	logger := zerolog.Ctx(ctx)

	if err := s.posts.Create(ctx, post); err != nil {
		logger.Error().Err(err).Str("post_id", post.ID).Msg("failed to store post")
	}

	var g errgroup.Group
	g.Go(func() error {
		if err := s.streak.OnPostCreated(ctx, post); err != nil {
			logger.Error().Err(err).Str("post_id", post.ID).Msg("streak handler failed")
		}
		return nil
	})
	g.Go(func() error {
		if err := s.fanout.OnPostCreated(ctx, post); err != nil {
			logger.Error().Err(err).Str("post_id", post.ID).Msg("fan-out handler failed")
		}
		return nil
	})
	_ = g.Wait()

	w.WriteHeader(http.StatusNoContent)
}

type notificationEvent struct {
	ID           string                  `json:"notificationId"`
	Type         domain.NotificationType `json:"type"`
	FromUID      string                  `json:"fromUserId"`
	FromUserName string                  `json:"fromUserName"`
	TargetUID    string                  `json:"targetUserId"`
	PostID       string                  `json:"postId"`
	QuestTitle   string                  `json:"questTitle"`
	Message      string                  `json:"message"`
	PostSnippet  string                  `json:"postTextSnippet"`
	CreatedAt    time.Time               `json:"createdAt"`
}

// handleNotificationCreated renders and dispatches a push for a notification
// document created outside this worker (cheers, comments, invites).
func (s *EventServer) handleNotificationCreated(w http.ResponseWriter, r *http.Request) {
	var event notificationEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, "invalid event body", http.StatusBadRequest)
		return
	}
	if event.TargetUID == "" {
		http.Error(w, "missing targetUserId", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), constants.RequestTimeout)
	defer cancel()

	n := &domain.Notification{
		ID:           event.ID,
		Type:         event.Type,
		FromUID:      event.FromUID,
		FromUserName: event.FromUserName,
		TargetUID:    event.TargetUID,
		PostID:       event.PostID,
		QuestTitle:   event.QuestTitle,
		Message:      event.Message,
		PostSnippet:  event.PostSnippet,
		CreatedAt:    event.CreatedAt,
	}

	if err := s.push.OnNotificationCreated(ctx, n); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("notification_id", n.ID).Msg("push handler failed")
	}

	w.WriteHeader(http.StatusNoContent)
}

type userSync struct {
	UID      string `json:"uid"`
	UserName string `json:"userName"`
	FCMToken string `json:"fcmToken"`
}

func (s *EventServer) handleUserSync(w http.ResponseWriter, r *http.Request) {
	var event userSync
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, "invalid event body", http.StatusBadRequest)
		return
	}
	if event.UID == "" {
		http.Error(w, "missing uid", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), constants.DatabaseTimeout)
	defer cancel()

	if err := s.profiles.Upsert(ctx, &domain.UserProfile{
		UID:      event.UID,
		UserName: event.UserName,
		FCMToken: event.FCMToken,
	}); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("uid", event.UID).Msg("failed to sync user")
		http.Error(w, "sync failed", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type questSync struct {
	ID             string           `json:"questId"`
	OwnerUID       string           `json:"uid"`
	OwnerName      string           `json:"userName"`
	Title          string           `json:"title"`
	Category       string           `json:"category"`
	Type           domain.QuestType `json:"type"`
	ParticipantIDs []string         `json:"participantIds"`
	EndDate        string           `json:"endDate"`
}

func (s *EventServer) handleQuestSync(w http.ResponseWriter, r *http.Request) {
	var event questSync
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, "invalid event body", http.StatusBadRequest)
		return
	}
	if event.ID == "" {
		http.Error(w, "missing questId", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), constants.DatabaseTimeout)
	defer cancel()

	if err := s.quests.Upsert(ctx, &domain.Quest{
		ID:             event.ID,
		OwnerUID:       event.OwnerUID,
		OwnerName:      event.OwnerName,
		Title:          event.Title,
		Category:       event.Category,
		Type:           event.Type,
		ParticipantIDs: event.ParticipantIDs,
		EndDate:        event.EndDate,
		Status:         domain.QuestStatusActive,
	}); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("quest_id", event.ID).Msg("failed to sync quest")
		http.Error(w, "sync failed", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *EventServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
