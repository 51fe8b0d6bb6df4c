package domain

import (
	"time"
)

// QuestType distinguishes solo quests from multi-participant battles.
type QuestType string

const (
	QuestTypePersonal QuestType = "personal"
	QuestTypeBattle   QuestType = "battle"
)

// QuestStatus is the battle lifecycle. A quest moves active -> processing
// while one aggregation run owns it, then processing -> completed when its
// results are committed. Only active quests are ever selected for a run.
type QuestStatus string

const (
	QuestStatusActive     QuestStatus = "active"
	QuestStatusProcessing QuestStatus = "processing"
	QuestStatusCompleted  QuestStatus = "completed"
)

// NotificationType is the closed set of push notification variants.
type NotificationType string

const (
	NotificationCheer         NotificationType = "cheer"
	NotificationComment       NotificationType = "comment"
	NotificationFriendRequest NotificationType = "friend_request"
	NotificationQuestInvite   NotificationType = "quest_invite"
	NotificationQuestUpdate   NotificationType = "quest_update"
	NotificationBattleResult  NotificationType = "battle_result"
)

type UserProfile struct {
	UID           string
	UserName      string
	FCMToken      string
	CurrentStreak int
	LastPostDate  *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Post struct {
	ID            string
	UID           string
	UserName      string
	Text          string
	EffortHours   float64
	LikeCount     int
	CommentCount  int
	QuestID       string // empty for standalone posts
	QuestTitle    string
	QuestCategory string
	IsResultPost  bool
	CreatedAt     time.Time
}

type Quest struct {
	ID             string
	OwnerUID       string
	OwnerName      string
	Title          string
	Category       string
	Type           QuestType
	ParticipantIDs []string
	EndDate        string // day key, "YYYY-MM-DD"
	Status         QuestStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Notification struct {
	ID           string
	Type         NotificationType
	FromUID      string
	FromUserName string
	TargetUID    string
	PostID       string
	QuestTitle   string
	Message      string
	PostSnippet  string
	IsRead       bool
	CreatedAt    time.Time
}

// ParticipantResult is the per-user aggregate computed during one battle
// aggregation pass. It is never persisted.
type ParticipantResult struct {
	UID         string
	Name        string
	EffortHours float64
	PostCount   int
	CheerCount  int
	Score       float64
}
