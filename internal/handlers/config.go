package handlers

import (
	"net/http"

	"github.com/ytpm/backend/internal/config"
	"github.com/ytpm/backend/internal/models"
)

// ConfigHandler exposes the settings a web client adapts to.
type ConfigHandler struct {
	resp models.PublicConfigResponse
}

func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{resp: models.PublicConfigResponse{
		SentryDSN:              cfg.SentryDSNFrontend,
		LongPollTimeoutSeconds: int64(cfg.LongPollTimeout.Seconds()),
		DequeuePolicy:          string(cfg.DequeuePolicy),
		AutoPlayDefault:        cfg.AutoPlayDefault,
		SearchEnabled:          cfg.YouTubeAPIKey != "",
	}}
}

// PublicConfig returns non-sensitive configuration for web clients. A zero
// long poll timeout means polls wait until the client disconnects.
func (h *ConfigHandler) PublicConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.resp)
}
