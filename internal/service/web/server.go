package web

import (
	"encoding/json"
	"fmt"
	"net/http"

	"devharness/internal/shared/logger"
	"devharness/internal/shared/types"
)

// ClientInfo is the JSON view of one registered connection.
type ClientInfo struct {
	Index      int    `json:"index"`
	ConnID     string `json:"conn_id"`
	RemoteAddr string `json:"remote_addr"`
}

// SnapshotProvider is implemented by the harness server. It decouples the web
// package from the server package.
type SnapshotProvider interface {
	ClientSnapshot() []ClientInfo
}

// StartServer starts the monitoring HTTP endpoint in the background. It is a
// no-op when the web port is disabled; the harness core never depends on it.
// The endpoint is not joined on shutdown, it lives for the process.
func StartServer(cfg types.WebConf, provider SnapshotProvider, hub *Hub) {
	if cfg.Port <= 0 {
		logger.Info().Msg("[WebServer] Monitoring endpoint is disabled (port is 0 or not set).")
		return
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/api/clients", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(provider.ClientSnapshot()); err != nil {
			logger.Error().Err(err).Msg("[WebServer] Failed to encode client snapshot.")
		}
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	go func() {
		logger.Info().Str("addr", addr).Msg("[WebServer] Monitoring endpoint is listening.")
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error().Err(err).Msg("[WebServer] Monitoring endpoint stopped.")
		}
	}()
}
