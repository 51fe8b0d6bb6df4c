package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"miniquest-worker/internal/domain"

	"github.com/rs/zerolog"
)

type QuestRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewQuestRepository(sqlDB *sql.DB, logger zerolog.Logger) *QuestRepository {
	return &QuestRepository{db: sqlDB, logger: logger}
}

func (r *QuestRepository) Get(ctx context.Context, id string) (*domain.Quest, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, owner_uid, owner_name, title, category, type, participant_ids,
			end_date, status, created_at, updated_at
		FROM quests WHERE id = ?`, id)

	quest, err := scanQuest(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quest %s: %w", id, err)
	}
	return quest, nil
}

func (r *QuestRepository) Upsert(ctx context.Context, q *domain.Quest) error {
	participants, err := json.Marshal(q.ParticipantIDs)
	if err != nil {
		return fmt.Errorf("failed to encode participants: %w", err)
	}

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO quests (id, owner_uid, owner_name, title, category, type,
			participant_ids, end_date, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			owner_name = excluded.owner_name,
			title = excluded.title,
			category = excluded.category,
			type = excluded.type,
			participant_ids = excluded.participant_ids,
			end_date = excluded.end_date,
			updated_at = excluded.updated_at`,
		q.ID, q.OwnerUID, q.OwnerName, q.Title, q.Category, q.Type,
		string(participants), q.EndDate, q.Status, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert quest %s: %w", q.ID, err)
	}
	return nil
}

// ListFinishedBattles selects the battles that ended on the given day and
// have not been aggregated yet.
func (r *QuestRepository) ListFinishedBattles(ctx context.Context, endDate string) ([]domain.Quest, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_uid, owner_name, title, category, type, participant_ids,
			end_date, status, created_at, updated_at
		FROM quests
		WHERE type = ? AND status = ? AND end_date = ?`,
		domain.QuestTypeBattle, domain.QuestStatusActive, endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to list finished battles: %w", err)
	}
	defer rows.Close()

	var quests []domain.Quest
	for rows.Next() {
		quest, err := scanQuest(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quest: %w", err)
		}
		quests = append(quests, *quest)
	}
	return quests, rows.Err()
}

// Claim flips one quest from active to processing. Returns false when the
// quest is no longer active, meaning another run already owns or finished it.
func (r *QuestRepository) Claim(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE quests SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		domain.QuestStatusProcessing, time.Now().UTC(), id, domain.QuestStatusActive)
	if err != nil {
		return false, fmt.Errorf("failed to claim quest %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result for %s: %w", id, err)
	}
	return affected == 1, nil
}

// Release returns a claimed quest to active so a later run can retry it.
func (r *QuestRepository) Release(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE quests SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		domain.QuestStatusActive, time.Now().UTC(), id, domain.QuestStatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to release quest %s: %w", id, err)
	}
	return nil
}

// CompleteWithResults commits one battle's outcome atomically: the result
// post, the processing -> completed transition, and the per-participant
// notifications either all land or none do.
func (r *QuestRepository) CompleteWithResults(
	ctx context.Context,
	questID string,
	resultPost *domain.Post,
	notifications []domain.Notification,
) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO posts (id, uid, user_name, text, effort_hours, like_count, comment_count,
			quest_id, quest_title, quest_category, is_result_post, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		resultPost.ID, resultPost.UID, resultPost.UserName, resultPost.Text,
		resultPost.EffortHours, resultPost.LikeCount, resultPost.CommentCount,
		resultPost.QuestID, resultPost.QuestTitle, resultPost.QuestCategory,
		resultPost.IsResultPost, resultPost.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("failed to insert result post: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE quests SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		domain.QuestStatusCompleted, time.Now().UTC(), questID, domain.QuestStatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to complete quest %s: %w", questID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read completion result for %s: %w", questID, err)
	}
	if affected != 1 {
		return fmt.Errorf("quest %s lost its processing claim", questID)
	}

	for i := range notifications {
		if err := insertNotification(ctx, tx, &notifications[i]); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func scanQuest(scan func(dest ...any) error) (*domain.Quest, error) {
	var q domain.Quest
	var participants string
	if err := scan(&q.ID, &q.OwnerUID, &q.OwnerName, &q.Title, &q.Category, &q.Type,
		&participants, &q.EndDate, &q.Status, &q.CreatedAt, &q.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(participants), &q.ParticipantIDs); err != nil {
		return nil, fmt.Errorf("failed to decode participants for quest %s: %w", q.ID, err)
	}
	return &q, nil
}
