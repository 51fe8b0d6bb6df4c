package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"miniquest-worker/internal/constants"
	"miniquest-worker/internal/dateutil"
	"miniquest-worker/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Score weights: effort hours dominate, post count next, cheers last.
const (
	effortWeight = 10
	postWeight   = 5
	cheerWeight  = 2
)

type BattleQuestStore interface {
	ListFinishedBattles(ctx context.Context, endDate string) ([]domain.Quest, error)
	Claim(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
	CompleteWithResults(ctx context.Context, questID string, resultPost *domain.Post, notifications []domain.Notification) error
}

type QuestPostLister interface {
	ListByQuest(ctx context.Context, questID string, limit int) ([]domain.Post, error)
}

// BattleService aggregates battles that ended the previous day into a ranked
// result post, completes their lifecycle, and notifies every participant.
type BattleService struct {
	quests BattleQuestStore
	posts  QuestPostLister
	pusher Pusher
	logger zerolog.Logger
}

func NewBattleService(quests BattleQuestStore, posts QuestPostLister, pusher Pusher, logger zerolog.Logger) *BattleService {
	return &BattleService{quests: quests, posts: posts, pusher: pusher, logger: logger}
}

// RunDaily processes every battle whose end date was yesterday relative to
// now. Quests are handled independently: one failing aggregation is logged
// and released, the rest proceed. Re-invocation is safe because only active
// quests are selected and each is claimed before aggregation.
func (s *BattleService) RunDaily(ctx context.Context, now time.Time) error {
	target := dateutil.YesterdayKey(now)
	s.logger.Info().Str("target_day", target).Msg("checking finished battles")

	quests, err := s.quests.ListFinishedBattles(ctx, target)
	if err != nil {
		s.logger.Error().Err(err).Str("target_day", target).Msg("failed to list finished battles")
		return err
	}
	if len(quests) == 0 {
		s.logger.Info().Str("target_day", target).Msg("no finished battles found")
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(constants.BattleConcurrency)
	for _, quest := range quests {
		g.Go(func() error {
			if err := s.aggregate(gctx, &quest, now); err != nil {
				s.logger.Error().Err(err).Str("quest_id", quest.ID).Msg("battle aggregation failed")
				recordBattle("error")
			}
			// One battle failing must not abort the others.
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.logger.Info().Int("count", len(quests)).Str("target_day", target).Msg("battle run finished")
	return nil
}

func (s *BattleService) aggregate(ctx context.Context, quest *domain.Quest, now time.Time) error {
	claimed, err := s.quests.Claim(ctx, quest.ID)
	if err != nil {
		return err
	}
	if !claimed {
		s.logger.Debug().Str("quest_id", quest.ID).Msg("quest no longer active, skipping")
		recordBattle("skipped")
		return nil
	}

	posts, err := s.posts.ListByQuest(ctx, quest.ID, constants.MaxQuestPosts)
	if err != nil {
		s.release(quest.ID)
		return err
	}
	if len(posts) >= constants.MaxQuestPosts {
		s.logger.Warn().Str("quest_id", quest.ID).Int("cap", constants.MaxQuestPosts).
			Msg("post scan hit the per-quest cap, results may be truncated")
	}

	results := aggregateBattle(quest.ParticipantIDs, posts)

	ownerName := quest.OwnerName
	if ownerName == "" {
		ownerName = "MiniQuest System"
	}

	resultPost := &domain.Post{
		ID:            uuid.New().String(),
		UID:           quest.OwnerUID,
		UserName:      ownerName,
		Text:          renderBattleResult(quest.Title, results),
		QuestID:       quest.ID,
		QuestTitle:    quest.Title,
		QuestCategory: quest.Category,
		IsResultPost:  true,
		CreatedAt:     now.UTC(),
	}

	notifications := make([]domain.Notification, 0, len(quest.ParticipantIDs))
	for _, uid := range quest.ParticipantIDs {
		notifications = append(notifications, domain.Notification{
			Type:       domain.NotificationBattleResult,
			FromUID:    quest.OwnerUID,
			TargetUID:  uid,
			PostID:     resultPost.ID,
			QuestTitle: quest.Title,
		})
	}

	if err := s.quests.CompleteWithResults(ctx, quest.ID, resultPost, notifications); err != nil {
		s.release(quest.ID)
		return err
	}

	recordBattle("ok")
	s.logger.Info().
		Str("quest_id", quest.ID).
		Str("result_post_id", resultPost.ID).
		Int("participants", len(quest.ParticipantIDs)).
		Msg("battle results posted")

	for i := range notifications {
		if err := s.pusher.OnNotificationCreated(ctx, &notifications[i]); err != nil {
			s.logger.Error().Err(err).Str("notification_id", notifications[i].ID).Msg("push dispatch failed after battle result")
		}
	}
	return nil
}

func (s *BattleService) release(questID string) {
	// Best effort: return the claim so a later run can retry. Uses a fresh
	// context because the run's context may already be cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), constants.DatabaseTimeout)
	defer cancel()
	if err := s.quests.Release(ctx, questID); err != nil {
		s.logger.Error().Err(err).Str("quest_id", questID).Msg("failed to release quest claim")
	}
}

// aggregateBattle folds a quest's posts into per-participant results, ranked
// by score descending. Ties keep the participant declaration order (stable
// sort). Posts by non-participants, including prior result posts, are
// ignored. Names come from post data, last fetched post wins.
func aggregateBattle(participantIDs []string, posts []domain.Post) []domain.ParticipantResult {
	index := make(map[string]int, len(participantIDs))
	results := make([]domain.ParticipantResult, 0, len(participantIDs))
	for _, uid := range participantIDs {
		index[uid] = len(results)
		results = append(results, domain.ParticipantResult{UID: uid, Name: "Unknown"})
	}

	for _, post := range posts {
		i, ok := index[post.UID]
		if !ok {
			continue
		}
		if post.UserName != "" {
			results[i].Name = post.UserName
		}
		results[i].EffortHours += post.EffortHours
		results[i].PostCount++
		results[i].CheerCount += post.LikeCount
	}

	for i := range results {
		results[i].Score = results[i].EffortHours*effortWeight +
			float64(results[i].PostCount)*postWeight +
			float64(results[i].CheerCount)*cheerWeight
	}

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Score > results[b].Score
	})
	return results
}

// renderBattleResult builds the announcement text: medal icons for the top
// three, numeric rank for everyone else, one stat line per participant.
func renderBattleResult(questTitle string, results []domain.ParticipantResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🏆 フレンドバトル結果発表！\n\nクエスト: %s\n\n", questTitle)

	for i, r := range results {
		var rankIcon string
		switch i {
		case 0:
			rankIcon = "🥇"
		case 1:
			rankIcon = "🥈"
		case 2:
			rankIcon = "🥉"
		default:
			rankIcon = fmt.Sprintf("%d位", i+1)
		}

		fmt.Fprintf(&b, "%s %s (%dpt)\n", rankIcon, r.Name, int(math.Floor(r.Score)))
		fmt.Fprintf(&b, "   ⏱️ %.1fh  📝 %d回  🔥 %d\n\n", r.EffortHours, r.PostCount, r.CheerCount)
	}

	b.WriteString("参加者の皆さん、お疲れ様でした！👏")
	return b.String()
}
