package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"miniquest-worker/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type PostRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewPostRepository(sqlDB *sql.DB, logger zerolog.Logger) *PostRepository {
	return &PostRepository{db: sqlDB, logger: logger}
}

func (r *PostRepository) Create(ctx context.Context, post *domain.Post) error {
	if post.ID == "" {
		post.ID = uuid.New().String()
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO posts (id, uid, user_name, text, effort_hours, like_count, comment_count,
			quest_id, quest_title, quest_category, is_result_post, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		post.ID, post.UID, post.UserName, post.Text, post.EffortHours, post.LikeCount,
		post.CommentCount, post.QuestID, post.QuestTitle, post.QuestCategory,
		post.IsResultPost, post.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create post %s: %w", post.ID, err)
	}
	return nil
}

// ListByQuest returns the posts attached to one quest, capped at limit.
// Fetch order is insertion order, not guaranteed chronological.
func (r *PostRepository) ListByQuest(ctx context.Context, questID string, limit int) ([]domain.Post, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, uid, user_name, text, effort_hours, like_count, comment_count,
			quest_id, quest_title, quest_category, is_result_post, created_at
		FROM posts WHERE quest_id = ? LIMIT ?`, questID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts for quest %s: %w", questID, err)
	}
	defer rows.Close()

	var posts []domain.Post
	for rows.Next() {
		var p domain.Post
		if err := rows.Scan(&p.ID, &p.UID, &p.UserName, &p.Text, &p.EffortHours,
			&p.LikeCount, &p.CommentCount, &p.QuestID, &p.QuestTitle,
			&p.QuestCategory, &p.IsResultPost, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}
