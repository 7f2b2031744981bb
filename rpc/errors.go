package rpc

import (
	"encoding/json"
	"errors"
	"net/http"

	"isolend/native/lending"
)

// errorBody is the JSON error envelope returned by every endpoint.
type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	// Op is the index of the failing batch operation.
	Op *int `json:"op,omitempty"`
}

// opError tags an engine error with the batch operation that raised it.
type opError struct {
	index int
	err   error
}

func (e *opError) Error() string { return e.err.Error() }
func (e *opError) Unwrap() error { return e.err }

// errBadRequest marks request decoding failures.
var errBadRequest = errors.New("bad request")

// statusFor maps engine error kinds to HTTP status codes.
func statusFor(err error) int {
	if errors.Is(err, errBadRequest) {
		return http.StatusBadRequest
	}
	switch lending.KindOf(err) {
	case lending.KindValidation:
		return http.StatusBadRequest
	case lending.KindAuthorization:
		return http.StatusForbidden
	case lending.KindNotFound:
		return http.StatusNotFound
	case lending.KindSolvency, lending.KindLiquidity, lending.KindLock, lending.KindPaused:
		return http.StatusConflict
	case lending.KindOverflow:
		return http.StatusUnprocessableEntity
	case lending.KindOracle, lending.KindRateModel:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}
	if kind := lending.KindOf(err); kind != lending.KindUnknown {
		body.Kind = kind.String()
	}
	var oe *opError
	if errors.As(err, &oe) {
		idx := oe.index
		body.Op = &idx
	}
	if status == http.StatusInternalServerError && body.Kind == "" {
		body.Error = http.StatusText(status)
	}
	writeJSON(w, status, body)
}
