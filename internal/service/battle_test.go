package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"miniquest-worker/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type stubBattleStore struct {
	mu sync.Mutex

	battles  []domain.Quest
	listErr  error
	statuses map[string]domain.QuestStatus

	completed     []string
	resultPosts   map[string]*domain.Post
	notifications map[string][]domain.Notification
	completeErr   error
	released      []string
}

func newStubBattleStore(battles ...domain.Quest) *stubBattleStore {
	statuses := make(map[string]domain.QuestStatus)
	for _, q := range battles {
		statuses[q.ID] = q.Status
	}
	return &stubBattleStore{
		battles:       battles,
		statuses:      statuses,
		resultPosts:   make(map[string]*domain.Post),
		notifications: make(map[string][]domain.Notification),
	}
}

func (s *stubBattleStore) ListFinishedBattles(_ context.Context, endDate string) ([]domain.Quest, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []domain.Quest
	for _, q := range s.battles {
		if q.Type == domain.QuestTypeBattle && s.statuses[q.ID] == domain.QuestStatusActive && q.EndDate == endDate {
			out = append(out, q)
		}
	}
	return out, nil
}

func (s *stubBattleStore) Claim(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statuses[id] != domain.QuestStatusActive {
		return false, nil
	}
	s.statuses[id] = domain.QuestStatusProcessing
	return true, nil
}

func (s *stubBattleStore) Release(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = append(s.released, id)
	s.statuses[id] = domain.QuestStatusActive
	return nil
}

func (s *stubBattleStore) CompleteWithResults(_ context.Context, questID string, resultPost *domain.Post, notifications []domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completeErr != nil {
		return s.completeErr
	}
	s.statuses[questID] = domain.QuestStatusCompleted
	s.completed = append(s.completed, questID)
	s.resultPosts[questID] = resultPost
	s.notifications[questID] = notifications
	return nil
}

type stubPostLister struct {
	posts      map[string][]domain.Post
	err        error
	errByQuest map[string]error
}

func (s *stubPostLister) ListByQuest(_ context.Context, questID string, limit int) ([]domain.Post, error) {
	if s.err != nil {
		return nil, s.err
	}
	if err := s.errByQuest[questID]; err != nil {
		return nil, err
	}
	posts := s.posts[questID]
	if len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

func TestAggregateBattleScoring(t *testing.T) {
	// effort=2.5h, posts=3, cheers=4 -> 2.5*10 + 3*5 + 4*2 = 48
	posts := []domain.Post{
		{UID: "u1", UserName: "Uno", EffortHours: 1.0, LikeCount: 2},
		{UID: "u1", UserName: "Uno", EffortHours: 1.0, LikeCount: 2},
		{UID: "u1", UserName: "Uno", EffortHours: 0.5, LikeCount: 0},
	}
	results := aggregateBattle([]string{"u1"}, posts)

	require.Len(t, results, 1)
	require.Equal(t, "Uno", results[0].Name)
	require.InDelta(t, 2.5, results[0].EffortHours, 1e-9)
	require.Equal(t, 3, results[0].PostCount)
	require.Equal(t, 4, results[0].CheerCount)
	require.InDelta(t, 48.0, results[0].Score, 1e-9)
}

func TestAggregateBattleIgnoresNonParticipants(t *testing.T) {
	posts := []domain.Post{
		{UID: "u1", UserName: "Uno", EffortHours: 1},
		{UID: "stranger", UserName: "Stray", EffortHours: 99, LikeCount: 99},
		{UID: "owner", UserName: "System", IsResultPost: true},
	}
	results := aggregateBattle([]string{"u1", "u2"}, posts)

	require.Len(t, results, 2)
	require.Equal(t, "u1", results[0].UID)
	require.InDelta(t, 15.0, results[0].Score, 1e-9) // 1*10 + 1*5
	require.Equal(t, "u2", results[1].UID)
	require.Equal(t, "Unknown", results[1].Name)
	require.Zero(t, results[1].Score)
}

func TestAggregateBattleStableTieOrder(t *testing.T) {
	posts := []domain.Post{
		{UID: "u2", UserName: "Two", EffortHours: 1},
		{UID: "u1", UserName: "One", EffortHours: 1},
	}
	results := aggregateBattle([]string{"u1", "u2"}, posts)

	// Equal scores keep participant declaration order.
	require.Equal(t, "u1", results[0].UID)
	require.Equal(t, "u2", results[1].UID)
}

func TestAggregateBattleNameLastWriteWins(t *testing.T) {
	posts := []domain.Post{
		{UID: "u1", UserName: "OldName", EffortHours: 1},
		{UID: "u1", UserName: "NewName", EffortHours: 1},
	}
	results := aggregateBattle([]string{"u1"}, posts)
	require.Equal(t, "NewName", results[0].Name)
}

func TestRenderBattleResult(t *testing.T) {
	results := []domain.ParticipantResult{
		{UID: "b", Name: "Bob", EffortHours: 4, PostCount: 2, CheerCount: 1, Score: 52},
		{UID: "a", Name: "Alice", EffortHours: 1, PostCount: 1, CheerCount: 2, Score: 19.5},
		{UID: "c", Name: "Carol", Score: 10},
		{UID: "d", Name: "Dave"},
	}
	text := renderBattleResult("朝活バトル", results)

	require.Contains(t, text, "🏆 フレンドバトル結果発表！")
	require.Contains(t, text, "クエスト: 朝活バトル")
	require.Contains(t, text, "🥇 Bob (52pt)")
	require.Contains(t, text, "   ⏱️ 4.0h  📝 2回  🔥 1")
	// Fractional scores are floored for display.
	require.Contains(t, text, "🥈 Alice (19pt)")
	require.Contains(t, text, "🥉 Carol (10pt)")
	require.Contains(t, text, "4位 Dave (0pt)")
	require.True(t, strings.HasSuffix(text, "参加者の皆さん、お疲れ様でした！👏"))
}

func runNow() time.Time {
	// 2024-05-02 00:05 JST, so the target day is 2024-05-01.
	return time.Date(2024, 5, 1, 15, 5, 0, 0, time.UTC)
}

func endedBattle() domain.Quest {
	return domain.Quest{
		ID:             "q1",
		OwnerUID:       "alice",
		OwnerName:      "Alice",
		Title:          "朝活バトル",
		Category:       "fitness",
		Type:           domain.QuestTypeBattle,
		ParticipantIDs: []string{"alice", "bob"},
		EndDate:        "2024-05-01",
		Status:         domain.QuestStatusActive,
	}
}

func TestRunDailyEndToEnd(t *testing.T) {
	store := newStubBattleStore(endedBattle())
	lister := &stubPostLister{posts: map[string][]domain.Post{
		"q1": {
			{UID: "alice", UserName: "Alice", EffortHours: 1, LikeCount: 2},
			{UID: "bob", UserName: "Bob", EffortHours: 3, LikeCount: 0},
			{UID: "bob", UserName: "Bob", EffortHours: 1, LikeCount: 1},
		},
	}}
	pusher := &stubPusher{}
	svc := NewBattleService(store, lister, pusher, zerolog.Nop())

	require.NoError(t, svc.RunDaily(context.Background(), runNow()))

	require.Equal(t, []string{"q1"}, store.completed)
	require.Equal(t, domain.QuestStatusCompleted, store.statuses["q1"])

	post := store.resultPosts["q1"]
	require.NotNil(t, post)
	require.True(t, post.IsResultPost)
	require.Equal(t, "alice", post.UID)
	require.Equal(t, "Alice", post.UserName)
	require.Equal(t, "q1", post.QuestID)
	require.Zero(t, post.LikeCount)
	require.Zero(t, post.CommentCount)
	// B: (3+1)*10 + 2*5 + 1*2 = 52, A: 1*10 + 1*5 + 2*2 = 19 -> [B, A]
	require.Contains(t, post.Text, "🥇 Bob (52pt)")
	require.Contains(t, post.Text, "🥈 Alice (19pt)")

	notifications := store.notifications["q1"]
	require.Len(t, notifications, 2)
	for _, n := range notifications {
		require.Equal(t, domain.NotificationBattleResult, n.Type)
		require.Equal(t, "alice", n.FromUID)
		require.Equal(t, post.ID, n.PostID)
		require.Equal(t, "朝活バトル", n.QuestTitle)
	}
	require.Len(t, pusher.received, 2)
}

func TestRunDailySkipsCompletedQuest(t *testing.T) {
	quest := endedBattle()
	quest.Status = domain.QuestStatusCompleted
	store := newStubBattleStore(quest)
	svc := NewBattleService(store, &stubPostLister{}, &stubPusher{}, zerolog.Nop())

	require.NoError(t, svc.RunDaily(context.Background(), runNow()))
	require.Empty(t, store.completed)
}

func TestRunDailyIsIdempotent(t *testing.T) {
	store := newStubBattleStore(endedBattle())
	lister := &stubPostLister{posts: map[string][]domain.Post{}}
	svc := NewBattleService(store, lister, &stubPusher{}, zerolog.Nop())

	require.NoError(t, svc.RunDaily(context.Background(), runNow()))
	require.NoError(t, svc.RunDaily(context.Background(), runNow()))
	require.Equal(t, []string{"q1"}, store.completed)
}

func TestRunDailyIgnoresOtherDays(t *testing.T) {
	quest := endedBattle()
	quest.EndDate = "2024-04-30"
	store := newStubBattleStore(quest)
	svc := NewBattleService(store, &stubPostLister{}, &stubPusher{}, zerolog.Nop())

	require.NoError(t, svc.RunDaily(context.Background(), runNow()))
	require.Empty(t, store.completed)
}

func TestRunDailyReleasesClaimOnFailure(t *testing.T) {
	store := newStubBattleStore(endedBattle())
	lister := &stubPostLister{err: errors.New("scan failed")}
	svc := NewBattleService(store, lister, &stubPusher{}, zerolog.Nop())

	// The run itself still succeeds: one quest failing is isolated.
	require.NoError(t, svc.RunDaily(context.Background(), runNow()))
	require.Empty(t, store.completed)
	require.Equal(t, []string{"q1"}, store.released)
	require.Equal(t, domain.QuestStatusActive, store.statuses["q1"])
}

func TestRunDailyIsolatesPerQuestFailures(t *testing.T) {
	bad := endedBattle()
	good := endedBattle()
	good.ID = "q2"
	store := newStubBattleStore(bad, good)
	lister := &stubPostLister{
		posts: map[string][]domain.Post{
			"q2": {{UID: "alice", UserName: "Alice", EffortHours: 1}},
		},
		errByQuest: map[string]error{"q1": errors.New("scan failed")},
	}
	svc := NewBattleService(store, lister, &stubPusher{}, zerolog.Nop())

	require.NoError(t, svc.RunDaily(context.Background(), runNow()))
	require.Equal(t, []string{"q2"}, store.completed)
	require.Equal(t, []string{"q1"}, store.released)
}

func TestRunDailyOwnerNameFallback(t *testing.T) {
	quest := endedBattle()
	quest.OwnerName = ""
	store := newStubBattleStore(quest)
	lister := &stubPostLister{posts: map[string][]domain.Post{}}
	svc := NewBattleService(store, lister, &stubPusher{}, zerolog.Nop())

	require.NoError(t, svc.RunDaily(context.Background(), runNow()))
	require.Equal(t, "MiniQuest System", store.resultPosts["q1"].UserName)
}
