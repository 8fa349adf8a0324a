package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"soho/internal/controller"
	"soho/internal/device"
	"soho/internal/registry"
	"soho/internal/session"
	"soho/internal/weblog"

	"github.com/go-chi/chi/v5"
)

// MaxRequestBodyBytes limits POST /devices bodies.
const MaxRequestBodyBytes = 64 * 1024 // 64 KB

// DeviceHandler exposes DeviceController over HTTP. Every controller call
// goes through Interceptor.
type DeviceHandler struct {
	Controller  *controller.DeviceController
	Interceptor *weblog.Interceptor
}

// Routes mounts the device endpoints on r.
func (h *DeviceHandler) Routes(r chi.Router) {
	r.Get("/devices", h.list)
	r.Post("/devices", h.create)
	r.Get("/devices/{id}", h.findByID)
	r.Delete("/devices/{id}", h.delete)
	r.Get("/devices/{id}/power", h.averagePower)
}

// call builds the invocation context for a controller method, with the
// request snapshot passed explicitly.
func (h *DeviceHandler) call(r *http.Request, method string, args ...any) weblog.Call {
	return weblog.NewCall(controller.DeviceTypeName, method, weblog.Snapshot(r, session.ID(r.Context())), args...)
}

func (h *DeviceHandler) list(w http.ResponseWriter, r *http.Request) {
	devices, err := weblog.Invoke(r.Context(), h.Interceptor, h.call(r, "List"), h.Controller.List)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

func (h *DeviceHandler) findByID(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	d, err := weblog.Invoke(r.Context(), h.Interceptor, h.call(r, "FindByID", id), func(ctx context.Context) (*device.Device, error) {
		return h.Controller.FindByID(ctx, id)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *DeviceHandler) create(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, MaxRequestBodyBytes)
	defer body.Close()

	var in device.Device
	if err := json.NewDecoder(body).Decode(&in); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"detail": "body too large (max 64 KB)"})
			return
		}
		slog.Debug("device decode error", "err", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid JSON"})
		return
	}

	d, err := weblog.Invoke(r.Context(), h.Interceptor, h.call(r, "Create", in), func(ctx context.Context) (*device.Device, error) {
		return h.Controller.Create(ctx, in)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *DeviceHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	err := weblog.Run(r.Context(), h.Interceptor, h.call(r, "Delete", id), func(ctx context.Context) error {
		return h.Controller.Delete(ctx, id)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DeviceHandler) averagePower(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	samples, err := strconv.Atoi(r.URL.Query().Get("samples"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "query parameter 'samples' must be an integer"})
		return
	}
	avg, err := weblog.Invoke(r.Context(), h.Interceptor, h.call(r, "AveragePower", id, samples), func(ctx context.Context) (float64, error) {
		return h.Controller.AveragePower(ctx, id, samples)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "samples": samples, "average_wh": avg})
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "device id must be a positive integer"})
		return 0, false
	}
	return id, true
}

// writeError maps controller errors to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, device.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, device.ErrInvalid):
		status = http.StatusBadRequest
	case weblog.IsArithmetic(err):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, registry.ErrUnavailable):
		status = http.StatusBadGateway
	default:
		slog.Error("device request failed", "err", err)
	}
	writeJSON(w, status, map[string]string{"detail": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
