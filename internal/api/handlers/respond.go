package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"

	apiContext "mystore/internal/api/context"
	"mystore/internal/engine/access"
	"mystore/internal/pkg/errors"
	"mystore/internal/platform/models"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return false
	}
	return true
}

// writeServiceError renders a domain error and logs anything unexpected.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if status, _ := errors.StatusFor(err); status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	errors.WriteDomainError(w, err)
}

func paramInt64(r *http.Request, name string) (int64, bool) {
	ps, _ := r.Context().Value(apiContext.Params).(httprouter.Params)
	id, err := strconv.ParseInt(ps.ByName(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// actorRole resolves the role of the authenticated caller, "" when it has none.
func actorRole(resolver *access.Resolver, user *models.User) string {
	if resolver == nil || user == nil {
		return ""
	}
	role, _ := resolver.Resolve(user)
	return role
}
