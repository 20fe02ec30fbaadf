package server

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/Masterminds/semver/v3"
	"github.com/go-chi/chi/v5"

	"github.com/freighter-registry/freighter/pkg/log"
	"github.com/freighter-registry/freighter/pkg/metrics"
	"github.com/freighter-registry/freighter/pkg/types"
)

// ownerListChange is the request body of the add/remove owners endpoints.
type ownerListChange struct {
	Users []string `json:"users"`
}

// publish drives the three-way transaction across auth, storage, and the
// index. The tarball upload runs as the index's end step, strictly between
// the uniqueness check and the index commit; on a failure after the upload
// completed, the stored tarball is compensated with a best-effort delete.
func (s *State) publish(w http.ResponseWriter, r *http.Request) {
	token, ok := s.requireToken(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, int64(s.Config.CrateSizeLimit)+1<<20))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	jsonBytes, crateBytes, ok := splitPublishBody(w, body)
	if !ok {
		return
	}
	if len(crateBytes) > s.Config.CrateSizeLimit {
		http.Error(w, "Crate exceeds size limit", http.StatusRequestEntityTooLarge)
		return
	}

	var p types.Publish
	if err := json.Unmarshal(jsonBytes, &p); err != nil {
		http.Error(w, "JSON parsing error", http.StatusBadRequest)
		return
	}
	if _, err := semver.StrictNewVersion(p.Vers); err != nil {
		http.Error(w, "JSON parsing error", http.StatusBadRequest)
		return
	}

	if err := s.Auth.Publish(r.Context(), token, p.Name); err != nil {
		metrics.PublishAuthErrors.WithLabelValues(authErrorLabel(err)).Inc()
		writeError(w, err)
		return
	}

	checksum := sha256.Sum256(crateBytes)
	storedCrate := false
	endStep := func(ctx context.Context) error {
		err := s.Storage.PutCrate(ctx, p.Name, p.Vers, crateBytes, checksum)
		if err != nil {
			metrics.PublishTarballErrors.WithLabelValues(storageErrorLabel(err)).Inc()
			return fmt.Errorf("failed to store the crate in a storage medium: %w", err)
		}
		storedCrate = true
		return nil
	}

	res, err := s.Index.Publish(r.Context(), &p, checksum, endStep)
	if err != nil {
		metrics.PublishIndexErrors.WithLabelValues(indexErrorLabel(err)).Inc()
		if storedCrate {
			// Best-effort compensator; an already-deleted tarball is fine.
			if derr := s.Storage.DeleteCrate(r.Context(), p.Name, p.Vers); derr != nil {
				log.WithCrate(p.Name).Error().Err(derr).Msg("failed to delete crate after failed publish")
			}
		}
		writeError(w, err)
		return
	}

	// The index must never commit without the end step succeeding.
	if !storedCrate {
		panic("publish succeeded without storing the crate")
	}
	writeJSON(w, res)
}

// splitPublishBody parses the binary publish frame:
//
//	u32_le json_len | json | u32_le tar_len | tarball
//
// Truncation at any boundary is rejected with a 400.
func splitPublishBody(w http.ResponseWriter, body []byte) (jsonBytes, crateBytes []byte, ok bool) {
	if len(body) <= 4 {
		http.Error(w, "Missing body", http.StatusBadRequest)
		return nil, nil, false
	}
	jsonLen := int(binary.LittleEndian.Uint32(body[:4]))
	body = body[4:]
	if len(body) < jsonLen {
		http.Error(w, "Metadata truncated", http.StatusBadRequest)
		return nil, nil, false
	}
	jsonBytes = body[:jsonLen]
	body = body[jsonLen:]

	if len(body) <= 4 {
		http.Error(w, "Missing crate data", http.StatusBadRequest)
		return nil, nil, false
	}
	crateLen := int(binary.LittleEndian.Uint32(body[:4]))
	body = body[4:]
	if len(body) < crateLen {
		http.Error(w, "Crate data truncated", http.StatusBadRequest)
		return nil, nil, false
	}
	return jsonBytes, body[:crateLen], true
}

func (s *State) yank(w http.ResponseWriter, r *http.Request) {
	s.setYanked(w, r, true)
}

func (s *State) unyank(w http.ResponseWriter, r *http.Request) {
	s.setYanked(w, r, false)
}

func (s *State) setYanked(w http.ResponseWriter, r *http.Request, yank bool) {
	token, ok := s.requireToken(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")
	version, ok := requireVersion(w, r)
	if !ok {
		return
	}

	if err := s.Auth.AuthYank(r.Context(), token, name); err != nil {
		writeError(w, err)
		return
	}

	var err error
	if yank {
		err = s.Index.YankCrate(r.Context(), name, version)
	} else {
		err = s.Index.UnyankCrate(r.Context(), name, version)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, types.YankResult{OK: true})
}

func (s *State) listOwners(w http.ResponseWriter, r *http.Request) {
	token, ok := s.requireToken(w, r)
	if !ok {
		return
	}
	users, err := s.Auth.ListOwners(r.Context(), token, chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	if users == nil {
		users = []types.ListedOwner{}
	}
	writeJSON(w, types.OwnerList{Users: users})
}

func (s *State) addOwners(w http.ResponseWriter, r *http.Request) {
	token, ok := s.requireToken(w, r)
	if !ok {
		return
	}
	var change ownerListChange
	if err := json.NewDecoder(r.Body).Decode(&change); err != nil {
		http.Error(w, "JSON parsing error", http.StatusBadRequest)
		return
	}
	if err := s.Auth.AddOwners(r.Context(), token, change.Users, chi.URLParam(r, "name")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, types.ChangedOwnershipWithMsg("owners successfully added"))
}

func (s *State) removeOwners(w http.ResponseWriter, r *http.Request) {
	token, ok := s.requireToken(w, r)
	if !ok {
		return
	}
	var change ownerListChange
	if err := json.NewDecoder(r.Body).Decode(&change); err != nil {
		http.Error(w, "JSON parsing error", http.StatusBadRequest)
		return
	}
	if err := s.Auth.RemoveOwners(r.Context(), token, change.Users, chi.URLParam(r, "name")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, types.ChangedOwnershipWithMsg("owners successfully removed"))
}

func (s *State) register(w http.ResponseWriter, r *http.Request) {
	if !s.Config.AllowRegistration {
		http.Error(w, "Registration disabled", http.StatusUnauthorized)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}
	username := r.PostForm.Get("username")
	if username == "" {
		http.Error(w, "Missing username", http.StatusBadRequest)
		return
	}
	token, err := s.Auth.Register(r.Context(), username)
	if err != nil {
		writeError(w, err)
		return
	}
	fmt.Fprint(w, token)
}

func (s *State) search(w http.ResponseWriter, r *http.Request) {
	if s.Config.AuthRequired {
		token, ok := s.requireToken(w, r)
		if !ok {
			return
		}
		if err := s.Auth.AuthViewFullIndex(r.Context(), token); err != nil {
			writeError(w, err)
			return
		}
	}

	query := types.SearchQuery{Q: r.URL.Query().Get("q")}
	if v := r.URL.Query().Get("per_page"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			query.PerPage = &n
		}
	}
	limit := 10
	if query.PerPage != nil {
		limit = min(*query.PerPage, 100)
	}

	results, err := s.Index.Search(r.Context(), query.Q, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, results)
}

func parsePositiveInt(v string) (int, error) {
	n := 0
	for i := 0; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return 0, fmt.Errorf("not a number")
		}
		n = n*10 + int(v[i]-'0')
		if n > 1<<30 {
			return 0, fmt.Errorf("too large")
		}
	}
	if len(v) == 0 {
		return 0, fmt.Errorf("empty")
	}
	return n, nil
}

// requireVersion validates the version route parameter as strict semver.
func requireVersion(w http.ResponseWriter, r *http.Request) (string, bool) {
	version := chi.URLParam(r, "version")
	if _, err := semver.StrictNewVersion(version); err != nil {
		http.Error(w, "Invalid version", http.StatusBadRequest)
		return "", false
	}
	return version, true
}
