package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type PresenceReader interface {
	IsOnline(ctx context.Context, userID string) (bool, error)
}

type presenceResponse struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}

// PresenceHandler answers whether a user has a live connection on any
// instance.
type PresenceHandler struct {
	presence PresenceReader
	logger   zerolog.Logger
}

func NewPresenceHandler(presence PresenceReader, logger zerolog.Logger) *PresenceHandler {
	return &PresenceHandler{
		presence: presence,
		logger:   logger.With().Str("component", "presence-handler").Logger(),
	}
}

func (h *PresenceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	online, err := h.presence.IsOnline(r.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Str("userId", userID).Msg("Failed to read presence")
		writeError(w, http.StatusServiceUnavailable, http.StatusText(http.StatusServiceUnavailable))
		return
	}

	writeJSON(w, http.StatusOK, presenceResponse{UserID: userID, Online: online})
}
