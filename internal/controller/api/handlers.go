package api

import (
	"net/http"

	"github.com/Freeeeeet/meetup_scheduler/internal/apperr"
	"github.com/Freeeeeet/meetup_scheduler/internal/model"
	"github.com/Freeeeeet/meetup_scheduler/internal/notify"
	"github.com/Freeeeeet/meetup_scheduler/internal/service"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type createAppointmentRequest struct {
	TargetProfileID int64   `json:"target_profile_id"`
	SlotIDs         []int64 `json:"slot_ids"`
	Question        string  `json:"question"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type reconcileRequest struct {
	Schedule model.Schedule `json:"schedule"`
}

type linkTelegramRequest struct {
	Code string `json:"code"`
}

// actor ID пользователя из токена; маршрут без Authenticate сюда не попадает
func actor(r *http.Request) int64 {
	id, _ := UserIDFrom(r.Context())
	return id
}

func (s *Server) handleCreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	appt, err := s.appointments.Create(r.Context(), service.CreateRequest{
		RequesterID:     actor(r),
		TargetProfileID: req.TargetProfileID,
		SlotIDs:         req.SlotIDs,
		Question:        req.Question,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, appt)
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	appt, err := s.appointments.Accept(r.Context(), id, actor(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, appt)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req rejectRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	appt, err := s.appointments.Reject(r.Context(), id, actor(r), req.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, appt)
}

func (s *Server) handleListAppointments(w http.ResponseWriter, r *http.Request) {
	userID := actor(r)

	var (
		items []model.AppointmentView
		err   error
	)
	switch mux.Vars(r)["kind"] {
	case "send":
		items, err = s.appointments.ListSent(r.Context(), userID)
	case "receive":
		items, err = s.appointments.ListReceived(r.Context(), userID)
	case "done":
		items, err = s.appointments.ListDone(r.Context(), userID)
	case "refuse":
		items, err = s.appointments.ListRefused(r.Context(), userID)
	}

	writeList(s, w, r, items, err)
}

func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	detail, err := s.appointments.Detail(r.Context(), id, actor(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleGetAvailability(w http.ResponseWriter, r *http.Request) {
	profileID, err := pathID(r, "profileId")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	dates, err := s.availability.GetAvailability(r.Context(), profileID)
	writeList(s, w, r, dates, err)
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	report, err := s.availability.Reconcile(r.Context(), actor(r), req.Schedule)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleLinkTelegram(w http.ResponseWriter, r *http.Request) {
	var req linkTelegramRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	profile, err := s.profiles.LinkTelegram(r.Context(), actor(r), req.Code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, profile)
}

// handleWebSocket подписывает клиента на тему его собственного профиля
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		s.writeError(w, r, apperr.New(apperr.KindNotFound, "notifications are disabled"))
		return
	}

	profile, err := s.profiles.ByUser(r.Context(), actor(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	topic := notify.Topic(profile.ID)
	if err := s.hub.ServeWS(w, r, topic); err != nil {
		s.logger.Warn("Websocket subscribe failed",
			zap.String("topic", topic),
			zap.Error(err),
		)
	}
}
