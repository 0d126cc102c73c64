package routerhttp

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/shmel1k/mysqlrouter/internal/cluster"
	"github.com/shmel1k/mysqlrouter/internal/quarantine"
)

// Service is the read-only view into the running router that the debug API
// needs. *coordinator.Coordinator satisfies it.
type Service interface {
	// ReplicaSetSnapshot returns the current ClusterSnapshot for a
	// metadata-cache-backed listener's replica set.
	ReplicaSetSnapshot(replicaSetName string) (cluster.ClusterSnapshot, bool)
	// ListenerQuarantine returns the quarantine entries tracked for a
	// listener by name.
	ListenerQuarantine(listenerName string) (map[cluster.Destination]quarantine.Entry, bool)
	// ListenerNames returns every listener currently registered and
	// serving connections.
	ListenerNames() []string
}

// APIHandler serves the debug introspection endpoints: replica set
// snapshots and per-listener quarantine state.
type APIHandler interface {
	ReplicaSetSnapshot(http.ResponseWriter, *http.Request)
	ListenerQuarantine(http.ResponseWriter, *http.Request)
}

type apiHandler struct {
	svc    Service
	logger zerolog.Logger
}

// NewHandler builds an APIHandler backed by svc.
func NewHandler(logger zerolog.Logger, svc Service) APIHandler {
	return &apiHandler{svc: svc, logger: logger}
}

func (a *apiHandler) ReplicaSetSnapshot(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)[paramReplicaSetName]

	snap, ok := a.svc.ReplicaSetSnapshot(name)
	if !ok {
		a.writeResponse(w, newNotFoundResponse("replica set snapshot not found"))
		return
	}

	data, err := json.Marshal(snap)
	if err != nil {
		a.writeResponse(w, newInternalErrResponse(msgMarshallingError, err))
		return
	}

	a.writeResponse(w, newOKResponse(data))
}

func (a *apiHandler) ListenerQuarantine(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)[paramListenerName]

	entries, ok := a.svc.ListenerQuarantine(name)
	if !ok {
		a.writeResponse(w, newNotFoundResponse("listener not found"))
		return
	}

	views := make([]quarantineEntryView, 0, len(entries))
	for dest, e := range entries {
		views = append(views, quarantineEntryView{
			Host:                dest.Host,
			Port:                dest.Port,
			ConsecutiveFailures: e.ConsecutiveFailures,
			Quarantined:         e.Quarantined,
		})
	}

	data, err := json.Marshal(views)
	if err != nil {
		a.writeResponse(w, newInternalErrResponse(msgMarshallingError, err))
		return
	}

	a.writeResponse(w, newOKResponse(data))
}

func (a *apiHandler) writeResponse(w http.ResponseWriter, resp response) {
	if resp.err != nil {
		a.logger.Err(resp.err).Msg(string(resp.data))
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(resp.statusCode)
	if _, err := w.Write(resp.data); err != nil {
		a.logger.Err(err).Msg("failed to write response")
	}
}
