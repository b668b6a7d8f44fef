package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Freeeeeet/meetup_scheduler/internal/apperr"
	"github.com/Freeeeeet/meetup_scheduler/internal/model"
	"github.com/Freeeeeet/meetup_scheduler/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LinkCodeTTL сколько живёт код привязки, выданный ботом
const LinkCodeTTL = 10 * time.Minute

type linkCode struct {
	chatID    int64
	expiresAt time.Time
}

type ProfileService struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time

	mu    sync.Mutex
	codes map[string]linkCode
}

func NewProfileService(store Store, logger *zap.Logger) *ProfileService {
	return &ProfileService{
		store:  store,
		logger: logger,
		now:    time.Now,
		codes:  make(map[string]linkCode),
	}
}

// ByUser получает профиль пользователя
func (s *ProfileService) ByUser(ctx context.Context, userID int64) (*model.Profile, error) {
	profile, err := s.store.ProfileByUserID(ctx, userID)
	if err != nil {
		return nil, apperr.Store(fmt.Errorf("get profile by user: %w", err))
	}

	if profile == nil {
		return nil, apperr.New(apperr.KindNotFound, "profile not found")
	}

	return profile, nil
}

// ByTelegramChat получает профиль, привязанный к чату Telegram
func (s *ProfileService) ByTelegramChat(ctx context.Context, chatID int64) (*model.Profile, error) {
	profile, err := s.store.ProfileByTelegramChatID(ctx, chatID)
	if err != nil {
		return nil, apperr.Store(fmt.Errorf("get profile by chat: %w", err))
	}

	if profile == nil {
		return nil, apperr.New(apperr.KindNotFound, "this chat is not linked to any profile")
	}

	return profile, nil
}

// IssueLinkCode выдаёт чату одноразовый код привязки.
// Предыдущий код этого чата перестаёт действовать.
func (s *ProfileService) IssueLinkCode(chatID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for code, lc := range s.codes {
		if lc.chatID == chatID || !now.Before(lc.expiresAt) {
			delete(s.codes, code)
		}
	}

	code := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	s.codes[code] = linkCode{chatID: chatID, expiresAt: now.Add(LinkCodeTTL)}

	s.logger.Debug("Link code issued", zap.Int64("chat_id", chatID))

	return code
}

// LinkTelegram привязывает к профилю пользователя чат, которому бот выдал code
func (s *ProfileService) LinkTelegram(ctx context.Context, userID int64, code string) (*model.Profile, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, apperr.New(apperr.KindInvalidRequest, "link code is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lc, ok := s.codes[code]
	if !ok || !s.now().Before(lc.expiresAt) {
		return nil, apperr.New(apperr.KindInvalidRequest, "link code is invalid or expired, send /start to the bot for a new one")
	}

	profile, err := s.ByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	chatID := lc.chatID
	err = s.store.SetTelegramChatID(ctx, userID, chatID)
	if errors.Is(err, repository.ErrChatLinked) {
		return nil, apperr.New(apperr.KindInvalidRequest, "this chat is already linked to another profile")
	}
	if err != nil {
		return nil, apperr.Store(err)
	}

	delete(s.codes, code)
	profile.TelegramChatID = &chatID

	s.logger.Info("Telegram chat linked",
		zap.Int64("user_id", userID),
		zap.Int64("profile_id", profile.ID),
		zap.Int64("chat_id", chatID),
	)

	return profile, nil
}
