package handlers

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/meetup_scheduler/internal/apperr"
	"github.com/Freeeeeet/meetup_scheduler/internal/notify"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// HandleCallbackQuery обрабатывает кнопки "принять" и "отклонить"
func (h *Handlers) HandleCallbackQuery(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.callback(ctx, b, update)
}

func (h *Handlers) callback(ctx context.Context, s Sender, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}

	cb := update.CallbackQuery
	prefix, appointmentID, ok := notify.ParseCallback(cb.Data)
	if !ok {
		h.answerCallback(ctx, s, cb.ID, "Неизвестная кнопка", false)
		return
	}

	chatID := callbackChatID(cb)
	profile, ok := h.requireProfile(ctx, s, chatID)
	if !ok {
		h.answerCallback(ctx, s, cb.ID, "", false)
		return
	}

	switch prefix {
	case notify.CallbackAccept:
		_, err := h.appointments.Accept(ctx, appointmentID, profile.UserID)
		if err != nil {
			h.logAnswerError("accept", appointmentID, err)
			h.answerCallback(ctx, s, cb.ID, errorText(err), true)
			return
		}

		h.answerCallback(ctx, s, cb.ID, "Принято", false)
		h.sendMessage(ctx, s, chatID, fmt.Sprintf("✅ Встреча #%d принята.", appointmentID))

	case notify.CallbackReject:
		h.stateManager.StartRejectDialog(chatID, appointmentID)
		h.answerCallback(ctx, s, cb.ID, "", false)
		h.sendMessage(ctx, s, chatID, fmt.Sprintf(
			"✍️ Напишите причину отказа для запроса #%d.\n\n/skip - отклонить без причины\n/cancel - передумал",
			appointmentID,
		))
	}
}

func (h *Handlers) logAnswerError(action string, appointmentID int64, err error) {
	if apperr.KindOf(err) == apperr.KindStoreFailure {
		h.logger.Error("Failed to answer appointment",
			zap.String("action", action),
			zap.Int64("appointment_id", appointmentID),
			zap.Error(err),
		)
	}
}
