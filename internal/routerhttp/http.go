// Package routerhttp is the debug HTTP surface: health, build info,
// prometheus metrics, and read-only introspection of the metadata cache
// snapshot and quarantine state per listener.
package routerhttp

import (
	"encoding/json"
	"net/http"
)

// healthView is the JSON body /debug/health answers with: whether any
// listener is registered, and which ones.
type healthView struct {
	Listeners []string `json:"listeners"`
}

// HealthHandler answers liveness checks: 200 and the set of registered
// listener names when svc has at least one, 503 when it has none — a
// router with no listeners isn't serving traffic, liveness-check claims
// otherwise.
func HealthHandler(svc Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		names := svc.ListenerNames()
		body, _ := json.Marshal(healthView{Listeners: names})

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		if len(names) == 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_, _ = w.Write(body)
	})
}

// AboutHandler reports the running build's version and build date.
func AboutHandler(version, buildDate string) http.Handler {
	about := struct {
		Version string `json:"version"`
		Build   string `json:"build"`
	}{
		Version: version,
		Build:   buildDate,
	}

	aboutStr, _ := json.Marshal(about)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(aboutStr)
	})
}
