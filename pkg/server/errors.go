package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/freighter-registry/freighter/pkg/auth"
	"github.com/freighter-registry/freighter/pkg/index"
	"github.com/freighter-registry/freighter/pkg/log"
	"github.com/freighter-registry/freighter/pkg/storage"
)

// writeError maps a provider error onto its HTTP response. Internal error
// detail never crosses the boundary: conflicts are considered safe, auth
// service errors carry only their fingerprint, and everything uncategorized
// becomes a logged 500.
func writeError(w http.ResponseWriter, err error) {
	if conflict, ok := index.AsConflict(err); ok {
		log.WithComponent("server").Error().Str("conflict", conflict.Msg).Msg("conflict in index operation")
		http.Error(w, "A resource conflict occurred while attempting an operation: "+conflict.Msg, http.StatusConflict)
		return
	}

	var authService *auth.ServiceError
	switch {
	case errors.Is(err, index.ErrNameNotAllowed):
		http.Error(w, "Requested a crate with a name that is too long (64) or contains non-ASCII characters or punctuation", http.StatusBadRequest)
	case errors.Is(err, index.ErrNotFound), errors.Is(err, storage.ErrNotFound), errors.Is(err, auth.ErrCrateNotFound):
		http.Error(w, "Failed to find the resource", http.StatusNotFound)
	case errors.Is(err, auth.ErrUnauthorized):
		http.Error(w, "The credentials were missing, or were insufficient to perform the operation requested", http.StatusUnauthorized)
	case errors.Is(err, auth.ErrInvalidCredentials):
		http.Error(w, "The credentials supplied were invalid", http.StatusUnauthorized)
	case errors.Is(err, auth.ErrForbidden):
		http.Error(w, "The client is not allowed to perform the operation requested", http.StatusForbidden)
	case errors.Is(err, auth.ErrUnimplemented):
		http.Error(w, "This operation is not implemented", http.StatusNotImplemented)
	case errors.Is(err, auth.ErrNonASCIIToken):
		http.Error(w, "Invalid authorization header", http.StatusBadRequest)
	case errors.As(err, &authService):
		log.WithComponent("server").Error().Err(authService.Err).Msg("service error in auth operation")
		http.Error(w, authService.Error(), http.StatusInternalServerError)
	default:
		log.WithComponent("server").Error().Err(err).Msg("service error")
		http.Error(w, "Encountered uncategorized error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithComponent("server").Error().Err(err).Msg("failed to encode response")
	}
}

// authErrorLabel names an auth error kind for metric labels.
func authErrorLabel(err error) string {
	var authService *auth.ServiceError
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, auth.ErrForbidden):
		return "forbidden"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, auth.ErrUnimplemented):
		return "unimplemented"
	case errors.Is(err, auth.ErrCrateNotFound):
		return "crate_not_found"
	case errors.As(err, &authService):
		return "service_error"
	default:
		return "service_error"
	}
}

// indexErrorLabel names an index error kind for metric labels.
func indexErrorLabel(err error) string {
	if _, ok := index.AsConflict(err); ok {
		return "conflict"
	}
	switch {
	case errors.Is(err, index.ErrNameNotAllowed):
		return "crate_name_not_allowed"
	case errors.Is(err, index.ErrNotFound):
		return "crate_not_found"
	default:
		return "service_error"
	}
}

// storageErrorLabel names a storage error kind for metric labels.
func storageErrorLabel(err error) string {
	if storage.IsNotFound(err) {
		return "not_found"
	}
	return "service_error"
}
