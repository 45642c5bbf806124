package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mkerr/briefcast/internal/bulletin"
	"github.com/mkerr/briefcast/internal/storage"
	"github.com/mkerr/briefcast/internal/validation"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ---------- Profiles ----------

func (s *Server) handleListProfiles(w http.ResponseWriter, _ *http.Request) {
	profiles, err := s.store.ListProfiles()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list profiles")
		return
	}
	active, err := s.store.ActiveProfileID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read active profile")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active_profile": active,
		"profiles":       profiles,
	})
}

func (s *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	id := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(req.ID), " ", "_"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "profile ID required")
		return
	}
	name := req.Name
	if name == "" {
		name = "New Profile"
	}

	if _, err := s.store.GetProfile(id); err == nil {
		writeError(w, http.StatusBadRequest, "profile already exists")
		return
	}

	profile := &storage.Profile{ID: id, Name: name, Sources: storage.DefaultSources()}
	if err := s.store.SaveProfile(profile); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save profile")
		return
	}

	s.logger.Info("profile created", zap.String("profile", id))
	writeJSON(w, http.StatusCreated, map[string]string{"status": "success", "profile_id": id})
}

func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "profileID")
	if err := s.store.DeleteProfile(id); err != nil {
		status := http.StatusNotFound
		if id == storage.DefaultProfileID {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}
	s.logger.Info("profile deleted", zap.String("profile", id))
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleSwitchProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "profileID")
	if err := s.store.SetActiveProfile(id); err != nil {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "active_profile": id})
}

func (s *Server) handleUpdateSources(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "profileID")

	var req struct {
		Sources []storage.SourceConfig `json:"sources"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	for i, src := range req.Sources {
		normalized, err := s.urlValidator.ValidateAndNormalize(src.URL)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("source %q: %v", src.Name, err))
			return
		}
		req.Sources[i].URL = normalized
	}

	if err := s.store.UpdateSources(id, req.Sources); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleAddCustomSource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "profileID")

	var req struct {
		Name        string `json:"name"`
		URL         string `json:"url"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" || req.URL == "" {
		writeError(w, http.StatusBadRequest, "name and URL required")
		return
	}

	normalized, err := s.urlValidator.ValidateAndNormalize(req.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	source := storage.SourceConfig{
		Name:        req.Name,
		URL:         normalized,
		Description: req.Description,
		Enabled:     true,
	}
	if err := s.store.AddCustomSource(id, source); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Info("custom source added", zap.String("profile", id), zap.String("source", req.Name))
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "source": req.Name})
}

func (s *Server) handleRemoveCustomSource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "profileID")

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "source name required")
		return
	}

	if err := s.store.RemoveSource(id, req.Name); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// ---------- Generation ----------

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	// One run at a time; the output filename is timestamped to the second,
	// so overlapping runs would write the same file.
	s.generateMu.Lock()
	defer s.generateMu.Unlock()

	profile, err := s.store.ActiveProfile()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load active profile")
		return
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	filename := fmt.Sprintf("%s_%s.%s", profile.ID, timestamp, s.cfg.Audio.Format)
	outputPath := filepath.Join(s.cfg.Storage.OutputDir, filename)

	result, err := s.runner.Generate(r.Context(), profile.SourceSpecs(), outputPath)
	if err != nil {
		s.logger.Warn("generation failed", zap.String("profile", profile.ID), zap.Error(err))
		switch {
		case errors.Is(err, bulletin.ErrNoSourcesConfigured):
			writeError(w, http.StatusBadRequest, "no sources enabled for the active profile")
		case errors.Is(err, bulletin.ErrNoSourcesSucceeded):
			writeError(w, http.StatusBadGateway, "no audio files were downloaded successfully")
		default:
			writeError(w, http.StatusInternalServerError, "failed to generate bulletin")
		}
		return
	}

	result.ProfileID = profile.ID
	if err := s.store.SaveBulletin(result); err != nil {
		s.logger.Error("failed to persist bulletin record", zap.Error(err))
	}
	if s.index != nil {
		if err := s.index.IndexBulletin(result); err != nil {
			s.logger.Error("failed to index bulletin record", zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "success",
		"message":  "bulletin generated successfully",
		"filename": filepath.Base(result.OutputPath),
		"result":   result,
	})
}

// ---------- History ----------

func (s *Server) handleRecentBulletins(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	bulletins, err := s.store.RecentBulletins(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list bulletins")
		return
	}
	if bulletins == nil {
		bulletins = []*bulletin.Result{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bulletins": bulletins})
}

func (s *Server) handleSearchBulletins(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		writeError(w, http.StatusServiceUnavailable, "search not available")
		return
	}

	query := r.URL.Query().Get("q")
	hits, err := s.index.Search(query, 20)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hits": hits})
}

// ---------- Files ----------

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	filename, err := validation.BulletinFilename(chi.URLParam(r, "filename"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid filename")
		return
	}

	path := filepath.Join(s.cfg.Storage.OutputDir, filename)
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Type", bulletinContentType(filename))
	http.ServeFile(w, r, path)
}

// bulletinContentType maps the extensions the filename validator admits to
// their MIME types.
func bulletinContentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".wav":
		return "audio/wav"
	case ".ogg":
		return "audio/ogg"
	case ".m4a":
		return "audio/mp4"
	default:
		return "audio/mpeg"
	}
}

func (s *Server) handleEmail(w http.ResponseWriter, r *http.Request) {
	filename, err := validation.BulletinFilename(chi.URLParam(r, "filename"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid filename")
		return
	}

	path := filepath.Join(s.cfg.Storage.OutputDir, filename)
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}

	var req struct {
		Email string `json:"email"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	if !s.sender.IsConfigured() {
		writeError(w, http.StatusBadRequest, "email not configured: set SMTP credentials in the environment")
		return
	}

	// Filenames are <profile>_<timestamp>.<ext>; recover a display name.
	profileName := strings.SplitN(filename, "_", 2)[0]
	if profileName != "" {
		profileName = strings.ToUpper(profileName[:1]) + profileName[1:]
	}

	if err := s.sender.SendBulletin(r.Context(), path, profileName, req.Email); err != nil {
		s.logger.Warn("email delivery failed", zap.String("file", filename), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to send email")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "bulletin emailed",
	})
}

// ---------- Helpers ----------

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": "error", "message": message})
}
