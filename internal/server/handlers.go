package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/alexandria/internal/models"
	"github.com/hyperjump/alexandria/internal/ranking"
	"github.com/hyperjump/alexandria/internal/storage"
)

func (s *Server) handleListFragments(w http.ResponseWriter, r *http.Request) {
	book, ok := s.uuidParam(w, r)
	if !ok {
		return
	}
	list, err := s.engine.List(r.Context(), book)
	if err != nil {
		s.fail(w, "list fragments failed", err, zap.String("book", book.String()))
		return
	}
	s.respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetFragment(w http.ResponseWriter, r *http.Request) {
	id, ok := s.uuidParam(w, r)
	if !ok {
		return
	}
	f, err := s.engine.Get(r.Context(), id)
	if err != nil {
		s.fail(w, "get fragment failed", err, zap.String("id", id.String()))
		return
	}
	s.respondJSON(w, http.StatusOK, f)
}

func (s *Server) handleCreateFragment(w http.ResponseWriter, r *http.Request) {
	var input models.FragmentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	f := input.ToFragment()
	s.logger.Debug("create fragment request", zap.String("id", f.ID.String()),
		zap.String("book", f.Book.String()), zap.Int32("rank", f.Rank))
	if _, err := s.engine.Create(r.Context(), f); err != nil {
		s.fail(w, "create fragment failed", err, zap.String("id", f.ID.String()))
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"id": f.ID.String()})
}

func (s *Server) handleUpdateFragment(w http.ResponseWriter, r *http.Request) {
	var f models.Fragment
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("update fragment request", zap.String("id", f.ID.String()), zap.Int32("rank", f.Rank))
	if _, err := s.engine.Update(r.Context(), &f); err != nil {
		s.fail(w, "update fragment failed", err, zap.String("id", f.ID.String()))
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleReorderFragment(w http.ResponseWriter, r *http.Request) {
	id, ok := s.uuidParam(w, r)
	if !ok {
		return
	}
	var req models.ReorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("reorder fragment request", zap.String("id", id.String()), zap.Int32("to", req.To))
	shifted, err := s.engine.Move(r.Context(), id, req.To)
	if err != nil {
		s.fail(w, "reorder fragment failed", err, zap.String("id", id.String()))
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]int64{"shifted": shifted})
}

func (s *Server) handleDeleteFragment(w http.ResponseWriter, r *http.Request) {
	id, ok := s.uuidParam(w, r)
	if !ok {
		return
	}
	s.logger.Debug("delete fragment request", zap.String("id", id.String()))
	if err := s.engine.Delete(r.Context(), id); err != nil {
		s.fail(w, "delete fragment failed", err, zap.String("id", id.String()))
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	fragments, err := s.storage.CountFragments(ctx)
	if err != nil {
		s.fail(w, "status: count fragments failed", err)
		return
	}
	books, err := s.storage.CountBooks(ctx)
	if err != nil {
		s.fail(w, "status: count books failed", err)
		return
	}
	resp := map[string]interface{}{
		"fragments":     fragments,
		"books":         books,
		"database_path": s.storage.Path(),
	}
	if size, err := storage.DatabaseSizeBytes(s.storage.Path()); err == nil {
		resp["disk_usage_bytes"] = size
	} else {
		s.logger.Warn("status: database size unavailable", zap.Error(err))
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) uuidParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

// fail logs err and writes the status it maps to.
func (s *Server) fail(w http.ResponseWriter, msg string, err error, fields ...zap.Field) {
	status := statusFor(err)
	fields = append(fields, zap.Error(err), zap.Int("status", status))
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, fields...)
	} else {
		s.logger.Debug(msg, fields...)
	}
	if ranking.IsRetryable(err) {
		s.respondJSON(w, status, map[string]interface{}{"error": err.Error(), "retryable": true})
		return
	}
	s.respondError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ranking.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ranking.ErrInvalidFragment), errors.Is(err, ranking.ErrRankOverflow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ranking.ErrInvariantRisk):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
