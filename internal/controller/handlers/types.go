package handlers

import (
	"context"

	"github.com/Freeeeeet/meetup_scheduler/internal/controller/state"
	"github.com/Freeeeeet/meetup_scheduler/internal/model"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// Sender часть *bot.Bot, через которую отвечают обработчики
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
}

// AppointmentService ответы получателя на запросы
type AppointmentService interface {
	Accept(ctx context.Context, appointmentID, actorID int64) (*model.Appointment, error)
	Reject(ctx context.Context, appointmentID, actorID int64, reason string) (*model.Appointment, error)
	ListReceived(ctx context.Context, userID int64) ([]model.AppointmentView, error)
}

// ProfileService поиск профиля по чату и коды привязки
type ProfileService interface {
	ByTelegramChat(ctx context.Context, chatID int64) (*model.Profile, error)
	IssueLinkCode(chatID int64) string
}

// Handlers содержит все зависимости для обработки команд
type Handlers struct {
	appointments AppointmentService
	profiles     ProfileService
	stateManager *state.Manager
	logger       *zap.Logger
}

// NewHandlers создаёт новый обработчик команд
func NewHandlers(
	appointments AppointmentService,
	profiles ProfileService,
	stateManager *state.Manager,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		appointments: appointments,
		profiles:     profiles,
		stateManager: stateManager,
		logger:       logger,
	}
}
