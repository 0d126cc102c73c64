package routerhttp

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterDebugHandlers wires the health/about/metrics endpoints. svc backs
// the health check with the coordinator's actual listener state.
func RegisterDebugHandlers(r *mux.Router, svc Service, version, buildDate string) {
	r.Handle("/debug/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.Handle("/debug/health", HealthHandler(svc)).Methods(http.MethodGet)
	r.Handle("/debug/about", AboutHandler(version, buildDate)).Methods(http.MethodGet)
}

// RegisterAPIHandlers wires the snapshot/quarantine introspection routes.
func RegisterAPIHandlers(r *mux.Router, h APIHandler) {
	r.HandleFunc("/debug/snapshots/{replicaset_name}", h.ReplicaSetSnapshot).Methods(http.MethodGet)
	r.HandleFunc("/debug/quarantine/{listener_name}", h.ListenerQuarantine).Methods(http.MethodGet)
}
