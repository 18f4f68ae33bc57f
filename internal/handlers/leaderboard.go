package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/CDeX-Labs/CDeX-Live-Service/internal/broadcast"
	"github.com/CDeX-Labs/CDeX-Live-Service/internal/contest"
	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const maxLeaderboardLimit = 500

type SnapshotReader interface {
	LeaderboardSnapshot(ctx context.Context, contestID string, limit int) (*broadcast.LeaderboardSnapshot, error)
}

type LeaderboardHandler struct {
	snapshots SnapshotReader
	logger    zerolog.Logger
}

func NewLeaderboardHandler(snapshots SnapshotReader, logger zerolog.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{
		snapshots: snapshots,
		logger:    logger.With().Str("component", "leaderboard-handler").Logger(),
	}
}

func (h *LeaderboardHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	contestID := chi.URLParam(r, "contestId")
	if contestID == "" {
		writeError(w, http.StatusBadRequest, "contestId is required")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxLeaderboardLimit {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	snapshot, err := h.snapshots.LeaderboardSnapshot(r.Context(), contestID, limit)
	if err != nil {
		status := httpStatusFromError(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error().Err(err).Str("contestId", contestID).Msg("Failed to load leaderboard")
		}
		writeError(w, status, http.StatusText(status))
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

func httpStatusFromError(err error) int {
	switch {
	case errors.Is(err, contest.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
