package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/Freeeeeet/meetup_scheduler/internal/apperr"
	"github.com/Freeeeeet/meetup_scheduler/internal/controller/state"
	"github.com/Freeeeeet/meetup_scheduler/internal/model"
	"github.com/Freeeeeet/meetup_scheduler/internal/notify"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

const helpText = "📚 Справка по командам:\n\n" +
	"/inbox - Входящие запросы на встречу\n" +
	"/cancel - Отменить текущий диалог\n" +
	"/help - Показать эту справку\n\n" +
	"На запрос можно ответить кнопками под ним."

// HandleStart обрабатывает команду /start
func (h *Handlers) HandleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.start(ctx, b, update)
}

func (h *Handlers) start(ctx context.Context, s Sender, update *models.Update) {
	if update.Message == nil {
		return
	}

	chatID := update.Message.Chat.ID
	profile, ok := h.requireProfile(ctx, s, chatID)
	if !ok {
		return
	}

	h.sendMessage(ctx, s, chatID, fmt.Sprintf(
		"👋 Привет, %s!\n\nСюда будут приходить запросы на встречи и ответы на ваши запросы.\n\n%s",
		profile.Name, helpText,
	))
}

// HandleHelp обрабатывает команду /help
func (h *Handlers) HandleHelp(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	h.sendMessage(ctx, b, update.Message.Chat.ID, helpText)
}

// HandleCancel обрабатывает команду /cancel
func (h *Handlers) HandleCancel(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	chatID := update.Message.Chat.ID
	if h.stateManager.GetState(chatID) == state.StateNone {
		h.sendMessage(ctx, b, chatID, "Нечего отменять.")
		return
	}

	h.stateManager.ClearState(chatID)
	h.sendMessage(ctx, b, chatID, "✅ Отменено.")
}

// HandleInbox обрабатывает команду /inbox
func (h *Handlers) HandleInbox(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.inbox(ctx, b, update)
}

func (h *Handlers) inbox(ctx context.Context, s Sender, update *models.Update) {
	if update.Message == nil {
		return
	}

	chatID := update.Message.Chat.ID
	profile, ok := h.requireProfile(ctx, s, chatID)
	if !ok {
		return
	}

	views, err := h.appointments.ListReceived(ctx, profile.UserID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		h.logger.Error("Failed to list received appointments",
			zap.Int64("user_id", profile.UserID),
			zap.Error(err),
		)
		h.sendMessage(ctx, s, chatID, errorText(err))
		return
	}

	waiting := 0
	for _, v := range views {
		if v.Status != model.AppointmentStatusWaiting {
			continue
		}
		waiting++
		h.send(ctx, s, &bot.SendMessageParams{
			ChatID:      chatID,
			Text:        formatRequest(v),
			ReplyMarkup: notify.AnswerKeyboard(v.AppointmentID),
		})
	}

	if waiting == 0 {
		h.sendMessage(ctx, s, chatID, "📭 Новых запросов нет.")
	}
}
