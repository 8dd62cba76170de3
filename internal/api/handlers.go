package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/backtest-orchestrator/internal/apperrors"
	"github.com/yourusername/backtest-orchestrator/internal/models"
	"github.com/yourusername/backtest-orchestrator/internal/service"
)

type errorResponse struct {
	Error string `json:"error"`
}

type executeResponse struct {
	BacktestID int64 `json:"backtest_id"`
}

type callbackResponse struct {
	Status   string `json:"status"`
	SignalID string `json:"signal_id"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	portfolioID, ok := s.pathID(w, r, "portfolioID")
	if !ok {
		return
	}
	var req service.BacktestRequest
	if !s.decode(w, r, &req, maxBodySize) {
		return
	}

	b, err := s.deps.Backtests.Create(r.Context(), portfolioID, &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	portfolioID, ok := s.pathID(w, r, "portfolioID")
	if !ok {
		return
	}
	list, err := s.deps.Queries.List(r.Context(), portfolioID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleStatuses(w http.ResponseWriter, r *http.Request) {
	portfolioID, ok := s.pathID(w, r, "portfolioID")
	if !ok {
		return
	}
	statuses, err := s.deps.Queries.Statuses(r.Context(), portfolioID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	backtestID, ok := s.pathID(w, r, "backtestID")
	if !ok {
		return
	}
	detail, err := s.deps.Queries.Detail(r.Context(), backtestID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	backtestID, ok := s.pathID(w, r, "backtestID")
	if !ok {
		return
	}
	meta, err := s.deps.Queries.Metadata(r.Context(), backtestID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	backtestID, ok := s.pathID(w, r, "backtestID")
	if !ok {
		return
	}
	id, err := s.deps.Executor.Start(r.Context(), backtestID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, executeResponse{BacktestID: id})
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	var payload models.CallbackPayload
	if !s.decode(w, r, &payload, callbackBodySize) {
		return
	}
	signalID, err := s.deps.Callbacks.OnCallback(r.Context(), &payload)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, callbackResponse{Status: "accepted", SignalID: signalID.String()})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	backtestID, ok := s.pathID(w, r, "backtestID")
	if !ok {
		return
	}
	portfolioID, ok := s.pathID(w, r, "portfolioID")
	if !ok {
		return
	}
	var req service.BacktestRequest
	if !s.decode(w, r, &req, maxBodySize) {
		return
	}

	b, err := s.deps.Backtests.Update(r.Context(), backtestID, portfolioID, &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	backtestID, ok := s.pathID(w, r, "backtestID")
	if !ok {
		return
	}
	portfolioID, ok := s.pathID(w, r, "portfolioID")
	if !ok {
		return
	}
	if err := s.deps.Backtests.Delete(r.Context(), backtestID, portfolioID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pathID parses a positive integer URL parameter, answering 400 otherwise
func (s *Server) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, r, apperrors.Validation(name, name+" must be a positive integer"))
		return 0, false
	}
	return id, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any, limit int64) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeError(w, r, apperrors.Validation("body", "invalid JSON body: "+err.Error()))
		return false
	}
	return true
}

// writeError maps err to a status code; internal details are logged, not returned
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperrors.HTTPStatus(err)
	msg := err.Error()
	if code >= http.StatusInternalServerError {
		s.log.WithFields(logrus.Fields{
			"path":       r.URL.Path,
			"request_id": middleware.GetReqID(r.Context()),
		}).WithError(err).Error("Request failed")

		var appErr *apperrors.Error
		if errors.As(err, &appErr) && appErr.Op != "" {
			msg = appErr.Op + " failed"
		} else {
			msg = http.StatusText(code)
		}
	}
	writeJSON(w, code, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
