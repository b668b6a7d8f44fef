// Package api HTTP-интерфейс сервиса встреч.
package api

import (
	"context"
	"net/http"

	"github.com/Freeeeeet/meetup_scheduler/internal/model"
	"github.com/Freeeeeet/meetup_scheduler/internal/service"
	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// AppointmentService операции над встречами
type AppointmentService interface {
	Create(ctx context.Context, req service.CreateRequest) (*model.Appointment, error)
	Accept(ctx context.Context, appointmentID, actorID int64) (*model.Appointment, error)
	Reject(ctx context.Context, appointmentID, actorID int64, reason string) (*model.Appointment, error)
	ListSent(ctx context.Context, userID int64) ([]model.AppointmentView, error)
	ListReceived(ctx context.Context, userID int64) ([]model.AppointmentView, error)
	ListDone(ctx context.Context, userID int64) ([]model.AppointmentView, error)
	ListRefused(ctx context.Context, userID int64) ([]model.AppointmentView, error)
	Detail(ctx context.Context, appointmentID, viewerID int64) (*model.AppointmentDetail, error)
}

// AvailabilityService операции над расписанием
type AvailabilityService interface {
	GetAvailability(ctx context.Context, profileID int64) ([]model.DateAvailability, error)
	Reconcile(ctx context.Context, ownerID int64, schedule model.Schedule) (*service.ReconcileReport, error)
}

// ProfileService операции над профилями
type ProfileService interface {
	ByUser(ctx context.Context, userID int64) (*model.Profile, error)
	LinkTelegram(ctx context.Context, userID int64, code string) (*model.Profile, error)
}

// Subscriber подписывает websocket-подключение на тему
type Subscriber interface {
	ServeWS(w http.ResponseWriter, r *http.Request, topic string) error
}

// Pinger проверяет доступность хранилища
type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	JWTSecret   string
	CreateRate  float64
	CreateBurst int
}

type Deps struct {
	Appointments AppointmentService
	Availability AvailabilityService
	Profiles     ProfileService
	Hub          Subscriber
	DB           Pinger
	Logger       *zap.Logger
}

type Server struct {
	appointments AppointmentService
	availability AvailabilityService
	profiles     ProfileService
	hub          Subscriber
	db           Pinger
	logger       *zap.Logger

	secret  string
	limiter *RateLimiter
	router  *mux.Router
}

func NewServer(cfg Config, deps Deps) *Server {
	s := &Server{
		appointments: deps.Appointments,
		availability: deps.Availability,
		profiles:     deps.Profiles,
		hub:          deps.Hub,
		db:           deps.DB,
		logger:       deps.Logger,
		secret:       cfg.JWTSecret,
		limiter:      NewRateLimiter(cfg.CreateRate, cfg.CreateBurst),
		router:       mux.NewRouter(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	authed := s.router.NewRoute().Subrouter()
	authed.Use(s.Authenticate)

	authed.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)

	api := authed.PathPrefix("/api").Subrouter()

	api.Handle("/appointment", s.RateLimit(http.HandlerFunc(s.handleCreateAppointment))).Methods(http.MethodPost)

	api.HandleFunc("/appointment/list/{kind:send|receive|done|refuse}", s.handleListAppointments).Methods(http.MethodGet)
	api.HandleFunc("/appointment/{id:[0-9]+}/accept", s.handleAccept).Methods(http.MethodPost)
	api.HandleFunc("/appointment/{id:[0-9]+}/reject", s.handleReject).Methods(http.MethodPost)
	api.HandleFunc("/appointment/{id:[0-9]+}", s.handleDetail).Methods(http.MethodGet)
	api.HandleFunc("/appointment/{profileId:[0-9]+}/datetime", s.handleGetAvailability).Methods(http.MethodGet)

	api.HandleFunc("/availability", s.handleReconcile).Methods(http.MethodPut)
	api.HandleFunc("/profile/telegram", s.handleLinkTelegram).Methods(http.MethodPut)
}

// Handler роутер, обёрнутый в request id, CORS, журнал доступа и восстановление после паники
func (s *Server) Handler() http.Handler {
	stdLog := zap.NewStdLog(s.logger.Named("http"))

	var h http.Handler = s.router
	h = handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type", "X-Request-ID"}),
	)(h)
	h = handlers.CombinedLoggingHandler(stdLog.Writer(), h)
	h = handlers.RecoveryHandler(handlers.RecoveryLogger(stdLog), handlers.PrintRecoveryStack(true))(h)
	h = withRequestID(h)

	return h
}

// withRequestID берёт X-Request-ID клиента или выдаёт новый и возвращает его в ответе
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			s.logger.Error("Health check failed", zap.Error(err))
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
