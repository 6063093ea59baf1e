package handlers

import (
	"net/http"
)

// ConfigHandler exposes the settings a kiosk front end needs
type ConfigHandler struct {
	svc *Services
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(svc *Services) *ConfigHandler {
	return &ConfigHandler{svc: svc}
}

// ConfigResponse represents the configuration response
type ConfigResponse struct {
	Language       string  `json:"language"`
	RetryDelayMS   int64   `json:"retry_delay_ms"`
	PINLength      int     `json:"pin_length"`
	IDNumberLength int     `json:"id_number_length"`
	MatchThreshold float64 `json:"match_threshold"`
	MatchIndex     string  `json:"match_index"`
	MaxFrameSide   int     `json:"max_frame_side"`
}

// Get returns the kiosk configuration
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	opts := h.svc.Identities.Options()
	respondJSON(w, http.StatusOK, ConfigResponse{
		Language:       h.svc.Translator.Language(),
		RetryDelayMS:   h.svc.Flow.RetryDelay().Milliseconds(),
		PINLength:      opts.PINLength,
		IDNumberLength: opts.IDNumberLength,
		MatchThreshold: h.svc.Matcher.Threshold(),
		MatchIndex:     h.svc.Config.Match.Index,
		MaxFrameSide:   h.svc.Config.Embedding.MaxSide,
	})
}
