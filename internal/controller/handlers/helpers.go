package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Freeeeeet/meetup_scheduler/internal/apperr"
	"github.com/Freeeeeet/meetup_scheduler/internal/model"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// requireProfile находит профиль, привязанный к чату.
// Непривязанному чату объясняет, как привязать, и возвращает false.
func (h *Handlers) requireProfile(ctx context.Context, s Sender, chatID int64) (*model.Profile, bool) {
	profile, err := h.profiles.ByTelegramChat(ctx, chatID)
	if err == nil {
		return profile, true
	}

	if errors.Is(err, apperr.ErrNotFound) {
		h.sendMessage(ctx, s, chatID, linkHint(h.profiles.IssueLinkCode(chatID)))
		return nil, false
	}

	h.logger.Error("Failed to get profile by chat", zap.Int64("chat_id", chatID), zap.Error(err))
	h.sendMessage(ctx, s, chatID, "❌ Произошла ошибка. Попробуйте позже.")
	return nil, false
}

func linkHint(code string) string {
	return fmt.Sprintf(
		"🔗 Этот чат ещё не привязан к профилю.\n\n"+
			"Код привязки: %s\n"+
			"Введите его в настройках профиля в течение 10 минут, чтобы получать запросы на встречи.",
		code,
	)
}

// errorText сообщение пользователю по коду ошибки
func errorText(err error) string {
	switch apperr.KindOf(err) {
	case apperr.KindNotWaiting:
		return "⚠️ На этот запрос уже ответили или он истёк."
	case apperr.KindNotReceiver:
		return "⛔ Ответить на запрос может только получатель."
	case apperr.KindDuplicateSlot:
		return "⚠️ Одно из выбранных времён уже занято другой встречей."
	case apperr.KindNotFound:
		return "🤷 Запрос не найден."
	default:
		return "❌ Произошла ошибка. Попробуйте позже."
	}
}

// formatRequest карточка входящего запроса
func formatRequest(v model.AppointmentView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📩 Запрос #%d от %s\n", v.AppointmentID, v.CounterpartName)

	if len(v.Slots) > 0 {
		times := make([]string, 0, len(v.Slots))
		for _, slot := range v.Slots {
			times = append(times, fmt.Sprintf("%s %02d:00", slot.Date, slot.Hour))
		}
		fmt.Fprintf(&b, "🗓 %s\n", strings.Join(times, ", "))
	}

	if v.Question != "" {
		fmt.Fprintf(&b, "\n💬 %s", v.Question)
	}

	return b.String()
}

// sendMessage отправляет сообщение и логирует если не удалось
func (h *Handlers) sendMessage(ctx context.Context, s Sender, chatID int64, text string) {
	h.send(ctx, s, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
}

func (h *Handlers) send(ctx context.Context, s Sender, params *bot.SendMessageParams) {
	if _, err := s.SendMessage(ctx, params); err != nil {
		h.logger.Error("Failed to send message",
			zap.Any("chat_id", params.ChatID),
			zap.Error(err),
		)
	}
}

// answerCallback отвечает на нажатие кнопки; alert показывает всплывающее окно
func (h *Handlers) answerCallback(ctx context.Context, s Sender, callbackID, text string, alert bool) {
	_, err := s.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
		ShowAlert:       alert,
	})
	if err != nil {
		h.logger.Warn("Failed to answer callback", zap.Error(err))
	}
}

// callbackChatID чат, в котором нажали кнопку
func callbackChatID(cb *models.CallbackQuery) int64 {
	if cb.Message.Message != nil {
		return cb.Message.Message.Chat.ID
	}
	return cb.From.ID
}
