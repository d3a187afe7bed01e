package api

import (
	"net/http"

	"roadscout/pkg/config"
)

// ConfigHandler exposes the effective configuration, read-only.
type ConfigHandler struct {
	cfg *config.Config
}

func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{cfg: cfg}
}

func (h *ConfigHandler) Handle(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.cfg)
}
