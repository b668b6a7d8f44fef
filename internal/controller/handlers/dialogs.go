package handlers

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const maxReasonLength = 500

// HandleTextMessage обрабатывает текст внутри диалога
func (h *Handlers) HandleTextMessage(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.text(ctx, b, update)
}

func (h *Handlers) text(ctx context.Context, s Sender, update *models.Update) {
	if update.Message == nil {
		return
	}

	chatID := update.Message.Chat.ID
	appointmentID, ok := h.stateManager.PendingReject(chatID)
	if !ok {
		return
	}

	reason := strings.TrimSpace(update.Message.Text)
	if reason == "/skip" {
		reason = ""
	}

	if utf8.RuneCountInString(reason) > maxReasonLength {
		h.sendMessage(ctx, s, chatID, fmt.Sprintf("❌ Причина должна быть не длиннее %d символов. Попробуйте ещё раз:", maxReasonLength))
		return
	}

	profile, ok := h.requireProfile(ctx, s, chatID)
	if !ok {
		h.stateManager.ClearState(chatID)
		return
	}

	h.stateManager.ClearState(chatID)

	if _, err := h.appointments.Reject(ctx, appointmentID, profile.UserID, reason); err != nil {
		h.logAnswerError("reject", appointmentID, err)
		h.sendMessage(ctx, s, chatID, errorText(err))
		return
	}

	h.sendMessage(ctx, s, chatID, fmt.Sprintf("❌ Запрос #%d отклонён.", appointmentID))
}
