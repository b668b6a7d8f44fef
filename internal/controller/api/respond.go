package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Freeeeeet/meetup_scheduler/internal/apperr"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// listResponse список; пустой список приходит с кодом NOT_FOUND, но статусом 200
type listResponse[T any] struct {
	Items   []T    `json:"items"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

var statusByKind = map[apperr.Kind]int{
	apperr.KindDuplicateSlot:    http.StatusConflict,
	apperr.KindNotWaiting:       http.StatusConflict,
	apperr.KindNotReceiver:      http.StatusForbidden,
	apperr.KindInvalidTimeRange: http.StatusBadRequest,
	apperr.KindInvalidRequest:   http.StatusBadRequest,
	apperr.KindNotFound:         http.StatusNotFound,
	apperr.KindUnauthorized:     http.StatusUnauthorized,
	apperr.KindStoreFailure:     http.StatusInternalServerError,
}

// HTTPStatus статус ответа для кода ошибки
func HTTPStatus(kind apperr.Kind) int {
	if status, ok := statusByKind[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("Failed to write response", zap.Error(err))
	}
}

// writeError отдаёт код и безопасное сообщение; подробности только в лог
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindStoreFailure {
		s.logger.Error("Request failed",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}

	s.writeJSON(w, HTTPStatus(kind), errorResponse{
		Code:    string(kind),
		Message: apperr.MessageOf(err),
	})
}

// writeList отдаёт список; NOT_FOUND от сервиса превращается в пустой список
func writeList[T any](s *Server, w http.ResponseWriter, r *http.Request, items []T, err error) {
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		s.writeError(w, r, err)
		return
	}

	resp := listResponse[T]{Items: items}
	if err != nil {
		resp.Items = []T{}
		resp.Code = string(apperr.KindNotFound)
		resp.Message = apperr.MessageOf(err)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.New(apperr.KindInvalidRequest, fmt.Sprintf("malformed request body: %v", err))
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.New(apperr.KindInvalidRequest, fmt.Sprintf("%s must be a positive number", name))
	}
	return id, nil
}
