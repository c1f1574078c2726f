package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizhall/go/internal/gateway"
	"github.com/mcdev12/quizhall/go/internal/kvstore"
)

// healthCheckKey is never written; reading it proves the store answers.
const healthCheckKey = "health.check"

type HealthStatus struct {
	Healthy           bool           `json:"healthy"`
	NATSConnected     *bool          `json:"nats_connected,omitempty"`
	DatabaseConnected *bool          `json:"database_connected,omitempty"`
	Connections       map[string]int `json:"connections"`
	Errors            []string       `json:"errors"`
}

// HealthChecker reports on the external dependencies of the game server.
type HealthChecker struct {
	infra   *Infrastructure
	gateway *gateway.Service
}

func NewHealthChecker(infra *Infrastructure, gw *gateway.Service) *HealthChecker {
	return &HealthChecker{infra: infra, gateway: gw}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy:     true,
		Connections: h.gateway.Stats(),
		Errors:      []string{},
	}

	if h.infra.NC != nil {
		connected := h.infra.NC.IsConnected()
		status.NATSConnected = &connected
		if !connected {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS disconnected")
		}
	}

	if h.infra.DB != nil {
		connected := true
		if err := h.infra.DB.PingContext(ctx); err != nil {
			connected = false
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("database ping failed: %v", err))
		}
		status.DatabaseConnected = &connected
	}

	if _, err := h.infra.Store.Get(ctx, healthCheckKey); err != nil && !errors.Is(err, kvstore.ErrNotFound) {
		status.Healthy = false
		status.Errors = append(status.Errors, fmt.Sprintf("session store unavailable: %v", err))
	}
	return status
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Error().Err(err).Msg("failed to encode health status")
	}
}
