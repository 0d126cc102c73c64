package routerhttp

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shmel1k/mysqlrouter/internal/cluster"
	"github.com/shmel1k/mysqlrouter/internal/quarantine"
)

type fakeService struct {
	snapshots  map[string]cluster.ClusterSnapshot
	registries map[string]*quarantine.Registry
	listeners  []string
}

func (f *fakeService) ReplicaSetSnapshot(name string) (cluster.ClusterSnapshot, bool) {
	s, ok := f.snapshots[name]
	return s, ok
}

func (f *fakeService) ListenerQuarantine(name string) (map[cluster.Destination]quarantine.Entry, bool) {
	reg, ok := f.registries[name]
	if !ok {
		return nil, false
	}
	return reg.Snapshot(), true
}

func (f *fakeService) ListenerNames() []string {
	return f.listeners
}

func newTestRouter(svc Service) *mux.Router {
	r := mux.NewRouter()
	RegisterDebugHandlers(r, svc, "test-version", "2026-01-01")
	RegisterAPIHandlers(r, NewHandler(zerolog.New(nil), svc))
	return r
}

func TestHealthAndAbout(t *testing.T) {
	r := newTestRouter(&fakeService{})

	req := httptest.NewRequest(http.MethodGet, "/debug/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	r = newTestRouter(&fakeService{listeners: []string{"writers"}})
	req = httptest.NewRequest(http.MethodGet, "/debug/health", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "writers")

	req = httptest.NewRequest(http.MethodGet, "/debug/about", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test-version")
}

func TestReplicaSetSnapshot_Found(t *testing.T) {
	snap := cluster.ClusterSnapshot{
		ReplicaSets: map[string]cluster.ReplicaSetSnapshot{
			"prod-cluster-1": {
				Name:   "prod-cluster-1",
				Status: cluster.StatusAvailableWritable,
			},
		},
		Generation: 3,
		AcquiredAt: time.Unix(0, 0),
	}
	svc := &fakeService{snapshots: map[string]cluster.ClusterSnapshot{"prod-cluster-1": snap}}
	r := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/debug/snapshots/prod-cluster-1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "available-writable")
}

func TestReplicaSetSnapshot_NotFound(t *testing.T) {
	r := newTestRouter(&fakeService{})

	req := httptest.NewRequest(http.MethodGet, "/debug/snapshots/unknown", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListenerQuarantine(t *testing.T) {
	reg := quarantine.New(3)
	reg.RecordFailure(cluster.Destination{Host: "10.0.0.1", Port: 3306})
	reg.RecordFailure(cluster.Destination{Host: "10.0.0.1", Port: 3306})

	svc := &fakeService{registries: map[string]*quarantine.Registry{"writers": reg}}
	r := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/debug/quarantine/writers", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"consecutive_failures":2`)
	assert.Contains(t, w.Body.String(), `"quarantined":false`)
}
