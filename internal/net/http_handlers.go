package net

import (
	"encoding/json"
	nethttp "net/http"
	"time"

	"warlane/server/internal/sim"
	"warlane/server/internal/telemetry"
)

// HTTPConfig wires the diagnostics mux.
type HTTPConfig struct {
	Loop      *sim.Loop
	Metrics   *telemetry.Counters
	Spectator nethttp.Handler
}

// NewHTTPHandler serves /healthz, /diagnostics and the spectator socket.
func NewHTTPHandler(cfg HTTPConfig) nethttp.Handler {
	mux := nethttp.NewServeMux()

	mux.HandleFunc("/healthz", func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		payload := struct {
			Status     string             `json:"status"`
			ServerTime int64              `json:"serverTime"`
			Tick       uint64             `json:"tick"`
			Entities   int                `json:"entities"`
			Telemetry  telemetry.Snapshot `json:"telemetry"`
		}{
			Status:     "ok",
			ServerTime: time.Now().UnixMilli(),
		}
		if cfg.Loop != nil {
			simWorld := cfg.Loop.World()
			payload.Tick = simWorld.Clock.Tick
			payload.Entities = simWorld.LiveCount()
		}
		if cfg.Metrics != nil {
			payload.Telemetry = cfg.Metrics.Snapshot()
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(payload)
	})

	if cfg.Spectator != nil {
		mux.Handle("/spectate", cfg.Spectator)
	}
	return mux
}
