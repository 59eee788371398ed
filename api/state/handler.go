// Package state exposes the latest allocation snapshot and its history over
// HTTP.
package state

import (
	"encoding/json"
	"net/http"

	"github.com/kilianp07/powermux/core/model"
	coresnap "github.com/kilianp07/powermux/core/snapshot"
)

// LatestReader returns the most recent snapshot.
type LatestReader interface {
	Latest() (coresnap.Snapshot, bool)
}

// Capturer builds a snapshot of the live state on demand.
type Capturer interface {
	Snapshot(kind string) coresnap.Snapshot
}

type liveFallback struct {
	store LatestReader
	live  Capturer
}

// WithLive serves the latest published snapshot, or a live capture while
// nothing has been published yet.
func WithLive(store LatestReader, live Capturer) LatestReader {
	return liveFallback{store: store, live: live}
}

func (l liveFallback) Latest() (coresnap.Snapshot, bool) {
	if snap, ok := l.store.Latest(); ok {
		return snap, true
	}
	if l.live == nil {
		return coresnap.Snapshot{}, false
	}
	return l.live.Snapshot(coresnap.KindLive), true
}

// ModulesResponse is the body of GET /api/connectors/{name}/modules.
type ModulesResponse struct {
	Connector string `json:"connector"`
	Active    bool   `json:"active"`
	Modules   []int  `json:"modules"`
	Seq       uint64 `json:"seq"`
}

// NewStateHandler returns an HTTP handler exposing the latest snapshot via GET /api/state.
func NewStateHandler(store LatestReader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		snap, ok := store.Latest()
		if !ok {
			http.Error(w, "no snapshot yet", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, snap)
	})
}

// NewModulesHandler returns the modules held by one connector via
// GET /api/connectors/{name}/modules.
func NewModulesHandler(store LatestReader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		name := r.PathValue("name")
		if _, ok := model.ParseConnector(name); !ok {
			http.Error(w, "unknown connector", http.StatusNotFound)
			return
		}
		snap, ok := store.Latest()
		if !ok {
			http.Error(w, "no snapshot yet", http.StatusServiceUnavailable)
			return
		}
		mods := snap.Assignments[name]
		if mods == nil {
			mods = []int{}
		}
		writeJSON(w, ModulesResponse{
			Connector: name,
			Active:    snap.Connectors[name].Active,
			Modules:   mods,
			Seq:       snap.Seq,
		})
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
