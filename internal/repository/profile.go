package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"miniquest-worker/internal/constants"
	"miniquest-worker/internal/domain"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

// ErrNotFound is returned when a referenced document does not exist. Callers
// that treat a missing document as a no-op check for it with errors.Is.
var ErrNotFound = errors.New("document not found")

type ProfileRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewProfileRepository(sqlDB *sql.DB, logger zerolog.Logger) *ProfileRepository {
	return &ProfileRepository{db: sqlDB, logger: logger}
}

func (r *ProfileRepository) Get(ctx context.Context, uid string) (*domain.UserProfile, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT uid, user_name, fcm_token, current_streak, last_post_date, created_at, updated_at
		FROM users WHERE uid = ?`, uid)

	var p domain.UserProfile
	var lastPost sql.NullTime
	err := row.Scan(&p.UID, &p.UserName, &p.FCMToken, &p.CurrentStreak, &lastPost, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile %s: %w", uid, err)
	}
	if lastPost.Valid {
		t := lastPost.Time
		p.LastPostDate = &t
	}
	return &p, nil
}

func (r *ProfileRepository) Upsert(ctx context.Context, p *domain.UserProfile) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (uid, user_name, fcm_token, current_streak, last_post_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (uid) DO UPDATE SET
			user_name = excluded.user_name,
			fcm_token = excluded.fcm_token,
			updated_at = excluded.updated_at`,
		p.UID, p.UserName, p.FCMToken, p.CurrentStreak, nullableTime(p.LastPostDate), now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert profile %s: %w", p.UID, err)
	}
	return nil
}

// UpdateStreak runs a read-modify-write of one profile's streak fields inside
// a single transaction. The transition callback receives the stored streak
// state and returns the new streak value; last_post_date is always advanced
// to postCreatedAt. Write conflicts on the row are retried with backoff up to
// a bounded attempt count. Returns ErrNotFound when the profile is missing.
func (r *ProfileRepository) UpdateStreak(
	ctx context.Context,
	uid string,
	postCreatedAt time.Time,
	transition func(currentStreak int, lastPostDate *time.Time) int,
) error {
	backoff := retry.WithMaxRetries(constants.StreakRetryAttempts,
		retry.NewExponential(constants.StreakRetryBackoff))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := r.updateStreakOnce(ctx, uid, postCreatedAt, transition)
		if isBusy(err) {
			r.logger.Debug().Str("uid", uid).Msg("streak transaction conflict, retrying")
			return retry.RetryableError(err)
		}
		return err
	})
}

func (r *ProfileRepository) updateStreakOnce(
	ctx context.Context,
	uid string,
	postCreatedAt time.Time,
	transition func(currentStreak int, lastPostDate *time.Time) int,
) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var currentStreak int
	var lastPost sql.NullTime
	row := tx.QueryRowContext(ctx,
		`SELECT current_streak, last_post_date FROM users WHERE uid = ?`, uid)
	if err := row.Scan(&currentStreak, &lastPost); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read profile %s: %w", uid, err)
	}

	var lastPostDate *time.Time
	if lastPost.Valid {
		t := lastPost.Time
		lastPostDate = &t
	}

	next := transition(currentStreak, lastPostDate)

	if _, err := tx.ExecContext(ctx, `
		UPDATE users SET current_streak = ?, last_post_date = ?, updated_at = ?
		WHERE uid = ?`,
		next, postCreatedAt.UTC(), time.Now().UTC(), uid); err != nil {
		return fmt.Errorf("failed to update streak for %s: %w", uid, err)
	}

	return tx.Commit()
}

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
