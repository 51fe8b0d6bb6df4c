package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"miniquest-worker/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

type NotificationRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewNotificationRepository(sqlDB *sql.DB, logger zerolog.Logger) *NotificationRepository {
	return &NotificationRepository{db: sqlDB, logger: logger}
}

// CreateBatch writes all notifications in one transaction so a fan-out never
// partially lands. IDs and creation timestamps are filled in place.
func (r *NotificationRepository) CreateBatch(ctx context.Context, notifications []domain.Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i := range notifications {
		if err := insertNotification(ctx, tx, &notifications[i]); err != nil {
			return err
		}
	}

	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertNotification(ctx context.Context, tx execer, n *domain.Notification) error {
	if n.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate notification id: %w", err)
		}
		n.ID = id
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO notifications (id, type, from_uid, from_name, target_uid,
			post_id, quest_title, message, post_snippet, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.Type, n.FromUID, n.FromUserName, n.TargetUID,
		n.PostID, n.QuestTitle, n.Message, n.PostSnippet, n.IsRead, n.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("failed to insert notification %s: %w", n.ID, err)
	}
	return nil
}
