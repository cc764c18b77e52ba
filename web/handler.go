// Package web serves the live transcript snapshot over HTTP.
package web

import (
	"encoding/json"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"scribe/assemble"
	"scribe/registry"
)

// SnapshotSource is anything that can hand out the current ordered
// transcript; snapshots never expose a half-inserted fragment.
type SnapshotSource interface {
	Snapshot() assemble.Transcript
}

type Handler struct {
	source SnapshotSource
	names  *registry.Registry
	logger *log.Logger
}

func NewHandler(
	source SnapshotSource,
	names *registry.Registry,
	logger *log.Logger,
) *Handler {
	return &Handler{
		source: source,
		names:  names,
		logger: logger,
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", h.handleHealthz)
	r.Get("/transcript", h.handleTranscript)
	return r
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type fragmentView struct {
	assemble.Fragment
	DisplayName string `json:"displayName"`
}

func (h *Handler) handleTranscript(w http.ResponseWriter, _ *http.Request) {
	snapshot := h.source.Snapshot()

	views := make([]fragmentView, len(snapshot))
	for i, f := range snapshot {
		views[i] = fragmentView{
			Fragment:    f,
			DisplayName: h.names.DisplayName(f.Speaker),
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(views); err != nil {
		h.logger.Error("failed to encode transcript", "error", err)
	}
}
