package handler

import (
	"net/http"
)

// ConfigHandler serves the active configuration with secrets redacted.
type ConfigHandler struct {
	redacted any
}

// NewConfigHandler creates a ConfigHandler. redacted must already have its
// secrets masked.
func NewConfigHandler(redacted any) *ConfigHandler {
	return &ConfigHandler{redacted: redacted}
}

// GetConfig returns the redacted configuration.
// GET /api/config
func (h *ConfigHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.redacted)
}
