package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Freeeeeet/meetup_scheduler/internal/model"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Данные inline-кнопок ответа на запрос
const (
	CallbackPrefix = "appt:"
	CallbackAccept = CallbackPrefix + "accept:"
	CallbackReject = CallbackPrefix + "reject:"
)

// MessageSender часть *bot.Bot, нужная для отправки
type MessageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// ProfileFinder находит профиль получателя события
type ProfileFinder interface {
	ProfileByID(ctx context.Context, profileID int64) (*model.Profile, error)
}

// Telegram отправляет событие в чат, привязанный к профилю
type Telegram struct {
	sender   MessageSender
	profiles ProfileFinder
}

func NewTelegram(sender MessageSender, profiles ProfileFinder) *Telegram {
	return &Telegram{
		sender:   sender,
		profiles: profiles,
	}
}

// Publish отправляет сообщение; профиль без чата молча пропускается
func (t *Telegram) Publish(ctx context.Context, topic string, n model.Notification) error {
	profile, err := t.profiles.ProfileByID(ctx, n.TargetProfileID)
	if err != nil {
		return fmt.Errorf("get profile for telegram: %w", err)
	}

	if profile == nil || profile.TelegramChatID == nil {
		return nil
	}

	params := &bot.SendMessageParams{
		ChatID: *profile.TelegramChatID,
		Text:   MessageText(n),
	}
	if n.Kind == model.NotificationRequest {
		params.ReplyMarkup = AnswerKeyboard(n.AppointmentID)
	}

	if _, err := t.sender.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}

	return nil
}

// MessageText текст уведомления для пользователя
func MessageText(n model.Notification) string {
	switch n.Kind {
	case model.NotificationRequest:
		return fmt.Sprintf("📩 Новый запрос на встречу #%d\n\nОтветьте в течение суток, иначе запрос истечёт.", n.AppointmentID)
	case model.NotificationAccept:
		return fmt.Sprintf("✅ Встреча #%d принята!", n.AppointmentID)
	case model.NotificationReject:
		return fmt.Sprintf("❌ Запрос на встречу #%d отклонён.", n.AppointmentID)
	case model.NotificationExpire:
		return fmt.Sprintf("⌛ Запрос на встречу #%d истёк без ответа.", n.AppointmentID)
	default:
		return fmt.Sprintf("ℹ️ Встреча #%d: %s", n.AppointmentID, n.Status)
	}
}

// AnswerKeyboard кнопки "принять" и "отклонить" для запроса
func AnswerKeyboard(appointmentID int64) *models.InlineKeyboardMarkup {
	id := strconv.FormatInt(appointmentID, 10)
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "✅ Принять", CallbackData: CallbackAccept + id},
				{Text: "❌ Отклонить", CallbackData: CallbackReject + id},
			},
		},
	}
}

// ParseCallback разбирает данные кнопки; ok=false для чужих кнопок
func ParseCallback(data string) (prefix string, appointmentID int64, ok bool) {
	for _, p := range []string{CallbackAccept, CallbackReject} {
		if !strings.HasPrefix(data, p) {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimPrefix(data, p), 10, 64)
		if err != nil || id <= 0 {
			return "", 0, false
		}
		return p, id, true
	}
	return "", 0, false
}
