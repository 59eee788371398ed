package state

import (
	"context"
	"net/http"
	"strconv"
	"time"

	coresnap "github.com/kilianp07/powermux/core/snapshot"
	"github.com/kilianp07/powermux/infra/snapshot"
)

// HistoryReader queries stored snapshots.
type HistoryReader interface {
	Query(ctx context.Context, q snapshot.Query) ([]coresnap.Snapshot, error)
}

// NewHistoryHandler returns an HTTP handler exposing the snapshot history via GET /api/history.
// Requests must include an Authorization header with "Bearer <token>" when token is non-empty.
func NewHistoryHandler(store HistoryReader, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token != "" {
			auth := r.Header.Get("Authorization")
			if auth != "Bearer "+token {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		q := snapshot.Query{
			Kind:      r.URL.Query().Get("kind"),
			Connector: r.URL.Query().Get("connector"),
		}
		if s := r.URL.Query().Get("start"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				q.Start = t
			}
		}
		if s := r.URL.Query().Get("end"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				q.End = t
			}
		}
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			q.Limit = n
		}
		records, err := store.Query(r.Context(), q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if records == nil {
			records = []coresnap.Snapshot{}
		}
		writeJSON(w, records)
	})
}
