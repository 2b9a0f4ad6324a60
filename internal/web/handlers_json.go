package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/vitos/wyckoff_backtest/internal/domain"
	"go.uber.org/zap"
)

const defaultListLimit = 50

func (s *Server) handleSubmitRun(w http.ResponseWriter, r *http.Request) {
	var cfg domain.RunConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	run, err := s.coordinator.Submit(r.Context(), cfg)
	if err != nil {
		var cfgErr *domain.ConfigurationError
		var gapErr *domain.DataGapError
		switch {
		case errors.As(err, &cfgErr):
			http.Error(w, cfgErr.Error(), http.StatusBadRequest)
		case errors.As(err, &gapErr):
			http.Error(w, gapErr.Error(), http.StatusUnprocessableEntity)
		default:
			s.logger.Error("Failed to submit run", zap.Error(err))
			http.Error(w, "Failed to submit run", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(run); err != nil {
		s.logger.Error("Failed to encode run", zap.Error(err))
	}
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.coordinator.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			http.Error(w, "Run not found", http.StatusNotFound)
			return
		}
		s.logger.Error("Failed to get run", zap.Error(err))
		http.Error(w, "Failed to get run", http.StatusInternalServerError)
		return
	}

	writeJSON(w, s.logger, run)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultListLimit)
	runs, err := s.runRepo.ListRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list runs", zap.Error(err))
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []*domain.BacktestRun{}
	}

	writeJSON(w, s.logger, runs)
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.coordinator.Cancel(id); err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			http.Error(w, "Run not found or already finished", http.StatusNotFound)
			return
		}
		s.logger.Error("Failed to cancel run", zap.String("run_id", id), zap.Error(err))
		http.Error(w, "Failed to cancel run", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.tradeRepo.ListTrades(r.Context(), r.PathValue("id"))
	if err != nil {
		s.logger.Error("Failed to list trades", zap.Error(err))
		http.Error(w, "Failed to list trades", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []*domain.Trade{}
	}

	writeJSON(w, s.logger, trades)
}

func (s *Server) handleListRejections(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 200)
	recs, err := s.tradeRepo.ListRejections(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		s.logger.Error("Failed to list rejections", zap.Error(err))
		http.Error(w, "Failed to list rejections", http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []*domain.RejectionRecord{}
	}

	writeJSON(w, s.logger, recs)
}

func (s *Server) handleListWindows(w http.ResponseWriter, r *http.Request) {
	results, err := s.tradeRepo.ListWindowResults(r.Context(), r.PathValue("id"))
	if err != nil {
		s.logger.Error("Failed to list window results", zap.Error(err))
		http.Error(w, "Failed to list window results", http.StatusInternalServerError)
		return
	}
	if results == nil {
		results = []*domain.WindowResult{}
	}

	writeJSON(w, s.logger, results)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
