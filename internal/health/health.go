// Package health exposes a single HTTP endpoint reporting process and
// storage liveness.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

// Pinger is the subset of the persistence layer the health handler depends
// on to determine storage reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

type response struct {
	Status  string `json:"status"`
	DBOK    bool   `json:"db_ok"`
	Service string `json:"service"`
}

const serviceName = "hadron"
const pingTimeout = 2 * time.Second

// Handler returns an http.HandlerFunc reporting {status, db_ok, service} —
// 200 when storage is reachable, 503 otherwise.
func Handler(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		defer cancel()

		dbOK := store.Ping(ctx) == nil
		status := "ok"
		code := http.StatusOK
		if !dbOK {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		writeJSON(w, code, response{Status: status, DBOK: dbOK, Service: serviceName})
	}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
}
