package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/freighter-registry/freighter/pkg/log"
	"github.com/freighter-registry/freighter/pkg/types"
)

const cargoAuthRequiredError = "error: This registry requires cargo authentication\nhttps://doc.rust-lang.org/cargo/reference/registry-authentication.html"

// rfc2822 is the Last-Modified format cargo expects.
const rfc2822 = "Mon, 02 Jan 2006 15:04:05 -0700"

// registryConfig serves `/index/config.json`. When the registry requires
// auth, an unauthenticated fetch gets a WWW-Authenticate hint pointing
// cargo at the login page.
func (s *State) registryConfig(w http.ResponseWriter, r *http.Request) {
	if s.Config.AuthRequired {
		token, err := s.Auth.TokenFromRequest(r)
		if err != nil {
			writeError(w, err)
			return
		}
		if token == "" {
			w.Header().Set("WWW-Authenticate", `Cargo login_url="/me"`)
			http.Error(w, cargoAuthRequiredError, http.StatusUnauthorized)
			return
		}
		if err := s.Auth.AuthConfig(r.Context(), token); err != nil {
			writeError(w, err)
			return
		}
	}

	writeJSON(w, types.RegistryConfig{
		DL:           s.Config.DownloadEndpoint,
		API:          s.Config.APIEndpoint,
		AuthRequired: s.Config.AuthRequired,
	})
}

// getSparseMeta streams a crate's version records, one JSON object per
// line. Stored entries pass through metadata normalization on the way out.
func (s *State) getSparseMeta(w http.ResponseWriter, r *http.Request) {
	indexPath := chi.URLParam(r, "*")
	slash := strings.LastIndexByte(indexPath, '/')
	if slash < 0 || slash == len(indexPath)-1 {
		log.WithComponent("server").Warn().Str("path", indexPath).Msg("index request with no crate name")
		http.Error(w, "Freighter: Invalid URL for the crate index endpoint", http.StatusBadRequest)
		return
	}
	crateName := indexPath[slash+1:]

	if s.Config.AuthRequired {
		token, ok := s.requireToken(w, r)
		if !ok {
			return
		}
		if err := s.Auth.AuthIndexFetch(r.Context(), token, crateName); err != nil {
			writeError(w, err)
			return
		}
	}

	entries, err := s.Index.GetSparseEntry(r.Context(), crateName)
	if err != nil {
		writeError(w, err)
		return
	}
	// Fixes already-published crates.
	types.EnsureCorrectMetadata(entries.Entries)

	if entries.LastModified != nil {
		w.Header().Set("Last-Modified", entries.LastModified.Format(rfc2822))
	}
	enc := json.NewEncoder(w)
	for n := range entries.Entries {
		if err := enc.Encode(&entries.Entries[n]); err != nil {
			log.WithComponent("server").Error().Err(err).Msg("failed to stream sparse entry")
			return
		}
	}
}

// lastModifiedHeader formats an optional timestamp for the response.
func lastModifiedHeader(w http.ResponseWriter, t *time.Time) {
	if t != nil {
		w.Header().Set("Last-Modified", t.Format(rfc2822))
	}
}
