package routerhttp

import "net/http"

// response is a status code, the already-marshalled body, and an error to
// log without ever leaking into the body sent to the client.
type response struct {
	statusCode int
	data       []byte
	err        error
}

func newOKResponse(data []byte) response {
	return response{statusCode: http.StatusOK, data: data}
}

func newNotFoundResponse(msg string) response {
	return response{statusCode: http.StatusNotFound, data: []byte(msg)}
}

func newInternalErrResponse(msg string, err error) response {
	return response{statusCode: http.StatusInternalServerError, data: []byte(msg), err: err}
}

const (
	paramReplicaSetName = "replicaset_name"
	paramListenerName   = "listener_name"
)

const msgMarshallingError = "failed to marshal data"

// quarantineEntryView is the JSON-friendly projection of one
// quarantine.Entry: cluster.Destination isn't a valid JSON map key, so the
// registry's map[Destination]Entry is flattened to a slice for the wire.
type quarantineEntryView struct {
	Host                string `json:"host"`
	Port                uint16 `json:"port"`
	ConsecutiveFailures uint32 `json:"consecutive_failures"`
	Quarantined         bool   `json:"quarantined"`
}
