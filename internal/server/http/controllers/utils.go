package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/rzbill/coedit/internal/authority"
	"github.com/rzbill/coedit/internal/collab"
	"github.com/rzbill/coedit/internal/docstore"
	"github.com/rzbill/coedit/internal/ot"
	"github.com/rzbill/coedit/internal/store"
)

// writeError writes an error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeJSON writes a JSON response with the given data.
func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func writeAccepted(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(data)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrInvalidKey),
		errors.Is(err, store.ErrInvalidShard),
		errors.Is(err, ot.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, collab.ErrRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, docstore.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, docstore.ErrBinaryFile):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, authority.ErrStaleRevision):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeErr(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

// parseRoom reads the {room} route variable.
func parseRoom(r *http.Request) (int64, error) {
	room, err := strconv.ParseInt(mux.Vars(r)["room"], 10, 64)
	if err != nil || room <= 0 {
		return 0, store.ErrInvalidKey
	}
	return room, nil
}

// docKey resolves the document addressed by the route: the global document
// when there is no {room} variable, otherwise {room}/{path}.
func docKey(r *http.Request) (store.DocKey, error) {
	vars := mux.Vars(r)
	if _, ok := vars["room"]; !ok {
		return store.GlobalDoc(), nil
	}
	room, err := parseRoom(r)
	if err != nil {
		return store.DocKey{}, err
	}
	key := store.RoomDoc(room, vars["path"])
	return key, key.Validate()
}
