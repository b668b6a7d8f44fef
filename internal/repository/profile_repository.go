package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Freeeeeet/meetup_scheduler/internal/model"
	"github.com/Freeeeeet/meetup_scheduler/internal/repository/base"
	"github.com/jackc/pgx/v5"
)

// ErrChatLinked чат Telegram уже привязан к другому профилю
var ErrChatLinked = errors.New("telegram chat is linked to another profile")

const profileColumns = `p.id, p.user_id, u.name, p.telegram_chat_id, p.created_at`

type ProfileRepository struct {
	*base.Repository
}

func NewProfileRepository(db base.DBTX) *ProfileRepository {
	return &ProfileRepository{Repository: base.NewRepository(db)}
}

// ProfileByID получает профиль по его публичному ID
func (r *ProfileRepository) ProfileByID(ctx context.Context, profileID int64) (*model.Profile, error) {
	return r.getProfile(ctx, "p.id", profileID)
}

// ProfileByUserID получает профиль пользователя
func (r *ProfileRepository) ProfileByUserID(ctx context.Context, userID int64) (*model.Profile, error) {
	return r.getProfile(ctx, "p.user_id", userID)
}

// ProfileByTelegramChatID получает профиль, привязанный к чату Telegram
func (r *ProfileRepository) ProfileByTelegramChatID(ctx context.Context, chatID int64) (*model.Profile, error) {
	return r.getProfile(ctx, "p.telegram_chat_id", chatID)
}

func (r *ProfileRepository) getProfile(ctx context.Context, column string, value int64) (*model.Profile, error) {
	query := `
		SELECT ` + profileColumns + `
		FROM profiles p
		JOIN users u ON u.id = p.user_id
		WHERE ` + column + ` = $1
	`

	var profile model.Profile
	err := r.QueryRow(ctx, query, value).Scan(
		&profile.ID,
		&profile.UserID,
		&profile.Name,
		&profile.TelegramChatID,
		&profile.CreatedAt,
	)

	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get profile by %s: %w", column, err)
	}

	return &profile, nil
}

// SetTelegramChatID привязывает чат Telegram к профилю пользователя
func (r *ProfileRepository) SetTelegramChatID(ctx context.Context, userID, chatID int64) error {
	query := `
		UPDATE profiles
		SET telegram_chat_id = $1
		WHERE user_id = $2
	`

	affected, err := r.ExecAffected(ctx, query, chatID, userID)
	if err != nil {
		if base.IsUniqueViolation(err) {
			return fmt.Errorf("set telegram chat: %w", ErrChatLinked)
		}
		return fmt.Errorf("set telegram chat: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("set telegram chat: %w", pgx.ErrNoRows)
	}

	return nil
}
