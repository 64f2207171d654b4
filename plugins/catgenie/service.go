package catgenie

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/joshp123/catgenie/internal/coordinator"
)

const apiPrefix = "/api/catgenie"

// DeviceView is the JSON shape served for one device.
type DeviceView struct {
	Device    Device            `json:"device"`
	Status    *Status           `json:"status,omitempty"`
	States    map[string]string `json:"states,omitempty"`
	FetchedAt *time.Time        `json:"fetchedAt,omitempty"`
	Available bool              `json:"available"`
}

type operationRequest struct {
	Operation string `json:"operation"`
	State     int    `json:"state"`
}

func (p *Plugin) RegisterHTTP(mux *http.ServeMux) {
	mux.HandleFunc("GET "+apiPrefix+"/devices", p.handleDevices)
	mux.HandleFunc("GET "+apiPrefix+"/devices/{id}", p.handleDevice)
	mux.HandleFunc("POST "+apiPrefix+"/devices/{id}/operation", p.handleOperation)
	mux.HandleFunc("POST "+apiPrefix+"/refresh", p.handleRefresh)
	if p.stream != nil {
		mux.Handle("GET "+apiPrefix+"/stream", p.stream)
	}
}

func (p *Plugin) ready(w http.ResponseWriter) bool {
	if p.coord == nil {
		http.Error(w, "catgenie unavailable", http.StatusServiceUnavailable)
		return false
	}
	return true
}

func (p *Plugin) handleDevices(w http.ResponseWriter, _ *http.Request) {
	if !p.ready(w) {
		return
	}
	devices := p.coord.Devices()
	out := make([]DeviceView, 0, len(devices))
	for _, device := range devices {
		out = append(out, p.view(device))
	}
	writeJSON(w, http.StatusOK, out)
}

func (p *Plugin) handleDevice(w http.ResponseWriter, r *http.Request) {
	if !p.ready(w) {
		return
	}
	id := r.PathValue("id")
	for _, device := range p.coord.Devices() {
		if device.ManufacturerID == id {
			writeJSON(w, http.StatusOK, p.view(device))
			return
		}
	}
	http.NotFound(w, r)
}

func (p *Plugin) handleOperation(w http.ResponseWriter, r *http.Request) {
	if !p.ready(w) {
		return
	}
	id := r.PathValue("id")
	if !p.coord.Tracks(id) {
		http.NotFound(w, r)
		return
	}

	var req operationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	op := Operation(req.State)
	if req.Operation != "" {
		parsed, err := ParseOperation(req.Operation)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		op = parsed
	}
	if req.Operation == "" && req.State == 0 {
		http.Error(w, "operation is required", http.StatusBadRequest)
		return
	}
	if op < OperationOn || op > OperationFullClean {
		http.Error(w, fmt.Sprintf("unknown operation state %d (want %d-%d)", req.State, int(OperationOn), int(OperationFullClean)), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	if err := p.coord.Operate(ctx, id, op); err != nil {
		writeError(w, err)
		return
	}
	device, _ := p.deviceByID(id)
	writeJSON(w, http.StatusOK, p.view(device))
}

func (p *Plugin) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !p.ready(w) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	if err := p.coord.Refresh(ctx); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (p *Plugin) deviceByID(id string) (Device, bool) {
	for _, device := range p.coord.Devices() {
		if device.ManufacturerID == id {
			return device, true
		}
	}
	return Device{}, false
}

func (p *Plugin) view(device Device) DeviceView {
	view := DeviceView{Device: device}
	snapshot, ok := p.coord.Snapshot(device.ManufacturerID)
	if !ok {
		return view
	}
	view.Device = snapshot.Device
	view.Status = &snapshot.Status
	view.States = States(&snapshot)
	view.FetchedAt = &snapshot.FetchedAt
	view.Available = p.coord.LastUpdateSuccess()
	return view
}

// HTTPStatus maps an error to the status served to API callers.
func HTTPStatus(err error) int {
	if errors.Is(err, coordinator.ErrNotReady) {
		return http.StatusServiceUnavailable
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return http.StatusInternalServerError
	}
	switch apiErr.Kind {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindCommunication:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, HTTPStatus(err), map[string]string{
		"error":      err.Error(),
		"form_error": FormError(err),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
