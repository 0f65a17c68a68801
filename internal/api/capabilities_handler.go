package api

import (
	"net/http"

	"github.com/moolen/insight/internal/adapter"
)

// CapabilityInfo describes one enabled capability and the instance serving it.
type CapabilityInfo struct {
	Capability string `json:"capability"`
	Instance   string `json:"instance,omitempty"`
	Type       string `json:"type,omitempty"`
	Version    string `json:"version,omitempty"`
	Health     string `json:"health"`
}

// handleCapabilities lists enabled capabilities in enumeration order.
func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	var statuses []adapter.InstanceStatus
	if s.cfg.Adapters != nil {
		statuses = s.cfg.Adapters.Statuses()
	}

	out := make([]CapabilityInfo, 0)
	for _, tag := range s.cfg.Engine.Enabled() {
		info := CapabilityInfo{Capability: tag.String(), Health: "unbound"}
		for _, st := range statuses {
			if st.Tag == tag.String() {
				info.Instance = st.Name
				info.Type = st.Type
				info.Version = st.Version
				info.Health = st.Health
				break
			}
		}
		out = append(out, info)
	}
	respond(w, http.StatusOK, map[string]interface{}{"capabilities": out})
}
