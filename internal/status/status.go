// Package status serves a small HTTP API for inspecting and poking the refresh loops.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Travis-Britz/noip"
)

// Devices is the part of noip.Platform the API needs.
type Devices interface {
	Devices() []*noip.Device
	Device(hostname string) (*noip.Device, bool)
}

type api struct {
	devices Devices
	logger  *zap.Logger
}

// NewRouter builds the routing tree.
//
//	GET  /healthz
//	GET  /devices
//	GET  /devices/{hostname}
//	POST /devices/{hostname}/refresh
//	POST /devices/{hostname}/resume
func NewRouter(devices Devices, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &api{devices: devices, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(a.requestLogger)

	r.Get("/healthz", a.health)
	r.Route("/devices", func(r chi.Router) {
		r.Get("/", a.list)
		r.Get("/{hostname}", a.get)
		r.Post("/{hostname}/refresh", a.refresh)
		r.Post("/{hostname}/resume", a.resume)
	})
	return r
}

func (a *api) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		a.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "devices": len(a.devices.Devices())})
}

func (a *api) list(w http.ResponseWriter, r *http.Request) {
	devices := a.devices.Devices()
	items := make([]noip.DeviceStatus, 0, len(devices))
	for _, d := range devices {
		items = append(items, d.Status())
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *api) device(w http.ResponseWriter, r *http.Request) (*noip.Device, bool) {
	d, ok := a.devices.Device(chi.URLParam(r, "hostname"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "Device not found")
	}
	return d, ok
}

func (a *api) get(w http.ResponseWriter, r *http.Request) {
	if d, ok := a.device(w, r); ok {
		writeJSON(w, http.StatusOK, d.Status())
	}
}

func (a *api) refresh(w http.ResponseWriter, r *http.Request) {
	d, ok := a.device(w, r)
	if !ok {
		return
	}
	err := d.Refresh(r.Context())
	var rejection *noip.RejectionError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, d.Status())
	case errors.Is(err, noip.ErrInFlight):
		writeError(w, http.StatusConflict, "in_flight", err.Error())
	case errors.Is(err, noip.ErrSuspended), errors.Is(err, noip.ErrCoolingDown):
		writeError(w, http.StatusConflict, "paused", err.Error())
	case errors.Is(err, noip.ErrRemoved):
		writeError(w, http.StatusGone, "removed", err.Error())
	case errors.As(err, &rejection):
		writeError(w, http.StatusBadGateway, "rejected", err.Error())
	default:
		writeError(w, http.StatusBadGateway, "refresh_failed", err.Error())
	}
}

func (a *api) resume(w http.ResponseWriter, r *http.Request) {
	if d, ok := a.device(w, r); ok {
		d.Resume()
		writeJSON(w, http.StatusOK, d.Status())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}

// Run serves handler on addr until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, addr string, handler http.Handler) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
