// Package commands accepts connector commands over HTTP.
package commands

import (
	"encoding/json"
	"net/http"

	"github.com/kilianp07/powermux/core/model"
)

// Submitter queues a command for the next batch.
type Submitter interface {
	Submit(cmd model.Command) (model.Command, error)
}

// Request is the body of POST /api/connectors/{name}/command. Field names
// follow the trigger file.
type Request struct {
	Action       string  `json:"action"`
	EVMaxVoltage float64 `json:"EVMaxVoltage"`
	EVMaxCurrent float64 `json:"EVMaxCurrent"`
}

// Response acknowledges a queued command.
type Response struct {
	CommandID string `json:"command_id"`
	Connector string `json:"connector"`
	Action    string `json:"action"`
}

// NewCommandHandler returns an HTTP handler queuing commands via
// POST /api/connectors/{name}/command.
// Requests must include an Authorization header with "Bearer <token>" when token is non-empty.
func NewCommandHandler(src Submitter, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		c, ok := model.ParseConnector(r.PathValue("name"))
		if !ok {
			http.Error(w, "unknown connector", http.StatusNotFound)
			return
		}
		var req Request
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
			http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
			return
		}
		action, err := model.ParseAction(req.Action)
		if err != nil || action == model.ActionNone {
			http.Error(w, "invalid action", http.StatusBadRequest)
			return
		}
		if req.EVMaxCurrent < 0 || req.EVMaxVoltage < 0 {
			http.Error(w, "negative target", http.StatusBadRequest)
			return
		}
		cmd, err := src.Submit(model.Command{
			Connector:     c,
			Action:        action,
			TargetVoltage: req.EVMaxVoltage,
			TargetCurrent: req.EVMaxCurrent,
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(Response{CommandID: cmd.ID, Connector: c.String(), Action: string(action)})
	})
}
