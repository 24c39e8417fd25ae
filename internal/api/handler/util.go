package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/Hoang7604119/mmostore-sub003/internal/api/middleware"
	"github.com/Hoang7604119/mmostore-sub003/internal/api/problem"
	"github.com/Hoang7604119/mmostore-sub003/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RespondError writes an error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

func requestActor(r *http.Request) (uuid.UUID, bool, error) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		return uuid.Nil, false, errors.New("missing user in auth context")
	}

	actorID, err := uuid.Parse(userID)
	if err != nil {
		return uuid.Nil, false, errors.New("invalid user_id in auth context")
	}

	return actorID, middleware.UserRoleFromContext(r.Context()) == "admin", nil
}

// RespondServiceError maps ledger error sentinels onto problem responses.
// Validation failures carry the underlying detail; everything unexpected is
// a generic 500 with the detail left to the logs.
func RespondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount):
		RespondError(w, r, http.StatusBadRequest, "ledger/invalid-request", err.Error())
	case errors.Is(err, domain.ErrInsufficientFunds):
		RespondError(w, r, http.StatusUnprocessableEntity, "ledger/insufficient-funds", "insufficient funds for this operation")
	case errors.Is(err, domain.ErrConflictingRequest):
		RespondError(w, r, http.StatusConflict, "ledger/conflicting-request", "a conflicting request is already in flight")
	case errors.Is(err, domain.ErrAlreadyTerminal):
		RespondError(w, r, http.StatusConflict, "ledger/already-terminal", "the target is already in a terminal state")
	case errors.Is(err, domain.ErrNotFound):
		RespondError(w, r, http.StatusNotFound, "ledger/not-found", "resource not found")
	case errors.Is(err, domain.ErrGatewayUnavailable):
		RespondError(w, r, http.StatusServiceUnavailable, "ledger/gateway-unavailable", "payment gateway unavailable, try again later")
	default:
		RespondError(w, r, http.StatusInternalServerError, "internal-server-error", "unexpected server error")
	}
}

func pathUUID(r *http.Request, param string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, param))
}

func parseInt32(v string) (int32, error) {
	n, err := strconv.ParseInt(v, 10, 32)
	return int32(n), err
}

func paging(r *http.Request) (limit, offset int32) {
	limit, offset = 50, 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := parseInt32(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := parseInt32(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
