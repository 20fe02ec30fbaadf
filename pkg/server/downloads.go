package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// serveCrate returns the tarball bytes for a crate version.
func (s *State) serveCrate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	version, ok := requireVersion(w, r)
	if !ok {
		return
	}

	if s.Config.AuthRequired {
		token, ok := s.requireToken(w, r)
		if !ok {
			return
		}
		if err := s.Auth.AuthCrateDownload(r.Context(), token, name); err != nil {
			writeError(w, err)
			return
		}
	}

	// Yanked versions stay downloadable; existence is what matters here.
	if _, err := s.Index.ConfirmExistence(r.Context(), name, version); err != nil {
		writeError(w, err)
		return
	}

	pulled, err := s.Storage.PullCrate(r.Context(), name, version)
	if err != nil {
		writeError(w, err)
		return
	}

	lastModifiedHeader(w, pulled.LastModified)
	w.Header().Set("Content-Type", "application/x-tar")
	w.Write(pulled.Data)
}
