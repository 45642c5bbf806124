package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mkerr/briefcast/internal/bulletin"
	"github.com/mkerr/briefcast/internal/config"
	"github.com/mkerr/briefcast/internal/mail"
	"github.com/mkerr/briefcast/internal/search"
	"github.com/mkerr/briefcast/internal/storage"
)

type stubRunner struct {
	result *bulletin.Result
	err    error

	gotSources []bulletin.SourceSpec
	gotOutput  string
}

func (r *stubRunner) Generate(_ context.Context, sources []bulletin.SourceSpec, outputPath string) (*bulletin.Result, error) {
	r.gotSources = sources
	r.gotOutput = outputPath
	if r.err != nil {
		return nil, r.err
	}
	res := *r.result
	res.OutputPath = outputPath
	return &res, nil
}

func newTestServer(t *testing.T, runner BulletinRunner) (*Server, *storage.Store, *config.Config) {
	t.Helper()

	cfg := config.TestConfig()
	cfg.Storage.OutputDir = t.TempDir()

	store, err := storage.NewStore(filepath.Join(t.TempDir(), "briefcast.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	idx, err := search.NewIndex(filepath.Join(t.TempDir(), "bulletins.bleve"))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	t.Setenv("SMTP_USERNAME", "")
	t.Setenv("SMTP_PASSWORD", "")
	sender := mail.NewSender(cfg.Email, zap.NewNop())

	srv := New(cfg, store, idx, runner, sender, zap.NewNop())
	srv.SetPermissiveValidation(true)
	return srv, store, cfg
}

func doRequest(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(dest))
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t, &stubRunner{})

	rec := doRequest(t, srv, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	decodeBody(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestListProfiles(t *testing.T) {
	srv, _, _ := newTestServer(t, &stubRunner{})

	rec := doRequest(t, srv, http.MethodGet, "/api/profiles", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		ActiveProfile string             `json:"active_profile"`
		Profiles      []*storage.Profile `json:"profiles"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, storage.DefaultProfileID, body.ActiveProfile)
	require.Len(t, body.Profiles, 1)
	assert.Equal(t, storage.DefaultProfileID, body.Profiles[0].ID)
	assert.NotEmpty(t, body.Profiles[0].Sources)
}

func TestCreateProfile(t *testing.T) {
	srv, store, _ := newTestServer(t, &stubRunner{})

	rec := doRequest(t, srv, http.MethodPost, "/api/profiles", map[string]string{
		"id":   "Morning Run",
		"name": "Morning Run",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var body map[string]string
	decodeBody(t, rec, &body)
	assert.Equal(t, "morning_run", body["profile_id"])

	profile, err := store.GetProfile("morning_run")
	require.NoError(t, err)
	assert.Equal(t, "Morning Run", profile.Name)
	assert.NotEmpty(t, profile.Sources, "new profiles start with the stock sources")

	// Same ID again is rejected.
	rec = doRequest(t, srv, http.MethodPost, "/api/profiles", map[string]string{"id": "morning_run"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Missing ID is rejected.
	rec = doRequest(t, srv, http.MethodPost, "/api/profiles", map[string]string{"name": "No ID"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteProfile(t *testing.T) {
	srv, store, _ := newTestServer(t, &stubRunner{})

	require.NoError(t, store.SaveProfile(&storage.Profile{ID: "temp", Name: "Temp"}))

	rec := doRequest(t, srv, http.MethodDelete, "/api/profiles/temp", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	_, err := store.GetProfile("temp")
	assert.Error(t, err)

	rec = doRequest(t, srv, http.MethodDelete, "/api/profiles/"+storage.DefaultProfileID, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "default profile cannot be deleted")

	rec = doRequest(t, srv, http.MethodDelete, "/api/profiles/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSwitchProfile(t *testing.T) {
	srv, store, _ := newTestServer(t, &stubRunner{})

	require.NoError(t, store.SaveProfile(&storage.Profile{ID: "evening", Name: "Evening"}))

	rec := doRequest(t, srv, http.MethodPost, "/api/profiles/evening/switch", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	active, err := store.ActiveProfileID()
	require.NoError(t, err)
	assert.Equal(t, "evening", active)

	rec = doRequest(t, srv, http.MethodPost, "/api/profiles/missing/switch", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateSources(t *testing.T) {
	srv, store, _ := newTestServer(t, &stubRunner{})

	sources := []storage.SourceConfig{
		{Name: "First", URL: "https://example.com/first.xml", Enabled: true},
		{Name: "Second", URL: "example.com/second.xml", Enabled: false},
	}
	rec := doRequest(t, srv, http.MethodPut, "/api/profiles/default/sources", map[string]any{
		"sources": sources,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	profile, err := store.GetProfile(storage.DefaultProfileID)
	require.NoError(t, err)
	require.Len(t, profile.Sources, 2)
	assert.Equal(t, "https://example.com/first.xml", profile.Sources[0].URL)
	assert.Equal(t, "https://example.com/second.xml", profile.Sources[1].URL, "scheme is added during normalization")

	rec = doRequest(t, srv, http.MethodPut, "/api/profiles/default/sources", map[string]any{
		"sources": []storage.SourceConfig{{Name: "Bad", URL: "ftp://example.com/feed"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, http.MethodPut, "/api/profiles/missing/sources", map[string]any{
		"sources": sources,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCustomSources(t *testing.T) {
	srv, store, _ := newTestServer(t, &stubRunner{})

	rec := doRequest(t, srv, http.MethodPost, "/api/profiles/default/sources/custom", map[string]string{
		"name":        "My Podcast",
		"url":         "https://example.com/podcast.xml",
		"description": "A custom feed",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	profile, err := store.GetProfile(storage.DefaultProfileID)
	require.NoError(t, err)
	last := profile.Sources[len(profile.Sources)-1]
	assert.Equal(t, "My Podcast", last.Name)
	assert.True(t, last.Custom)
	assert.True(t, last.Enabled)

	// Duplicate name is rejected.
	rec = doRequest(t, srv, http.MethodPost, "/api/profiles/default/sources/custom", map[string]string{
		"name": "My Podcast",
		"url":  "https://example.com/other.xml",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Missing fields are rejected.
	rec = doRequest(t, srv, http.MethodPost, "/api/profiles/default/sources/custom", map[string]string{
		"name": "No URL",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, http.MethodDelete, "/api/profiles/default/sources/custom", map[string]string{
		"name": "My Podcast",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	profile, err = store.GetProfile(storage.DefaultProfileID)
	require.NoError(t, err)
	for _, src := range profile.Sources {
		assert.NotEqual(t, "My Podcast", src.Name)
	}

	rec = doRequest(t, srv, http.MethodDelete, "/api/profiles/default/sources/custom", map[string]string{
		"name": "Never Existed",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGenerate(t *testing.T) {
	runner := &stubRunner{
		result: &bulletin.Result{
			ID:                   "run-1",
			SourcesAttempted:     []string{"ABC News Top Stories", "BBC News"},
			SourcesSucceeded:     []string{"ABC News Top Stories"},
			SourcesFailed:        []bulletin.FailedSource{{Name: "BBC News", Reason: "no audio enclosure found"}},
			TotalDurationSeconds: 312.5,
			GeneratedAt:          time.Now(),
		},
	}
	srv, store, cfg := newTestServer(t, runner)

	rec := doRequest(t, srv, http.MethodPost, "/api/generate", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status   string           `json:"status"`
		Filename string           `json:"filename"`
		Result   *bulletin.Result `json:"result"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, "success", body.Status)
	assert.Contains(t, body.Filename, "default_")
	assert.Contains(t, body.Filename, "."+cfg.Audio.Format)
	assert.Equal(t, storage.DefaultProfileID, body.Result.ProfileID)

	// The runner received the active profile's sources and an output path
	// under the configured output directory.
	assert.NotEmpty(t, runner.gotSources)
	assert.Equal(t, cfg.Storage.OutputDir, filepath.Dir(runner.gotOutput))

	// The run is persisted and searchable.
	recent, err := store.RecentBulletins(5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "run-1", recent[0].ID)

	hits, err := srv.index.Search("ABC", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "run-1", hits[0].BulletinID)
}

// blockingRunner tracks how many Generate calls overlap.
type blockingRunner struct {
	mu          sync.Mutex
	calls       int
	inFlight    int
	maxInFlight int
}

func (r *blockingRunner) Generate(_ context.Context, _ []bulletin.SourceSpec, outputPath string) (*bulletin.Result, error) {
	r.mu.Lock()
	r.calls++
	id := fmt.Sprintf("run-%d", r.calls)
	r.inFlight++
	if r.inFlight > r.maxInFlight {
		r.maxInFlight = r.inFlight
	}
	r.mu.Unlock()

	time.Sleep(50 * time.Millisecond)

	r.mu.Lock()
	r.inFlight--
	r.mu.Unlock()

	return &bulletin.Result{
		ID:          id,
		OutputPath:  outputPath,
		GeneratedAt: time.Now(),
	}, nil
}

func TestGenerateSerialized(t *testing.T) {
	runner := &blockingRunner{}
	srv, store, _ := newTestServer(t, runner)

	var wg sync.WaitGroup
	codes := make([]int, 2)
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := doRequest(t, srv, http.MethodPost, "/api/generate", nil)
			codes[i] = rec.Code
		}(i)
	}
	wg.Wait()

	assert.Equal(t, []int{http.StatusOK, http.StatusOK}, codes)
	assert.Equal(t, 1, runner.maxInFlight, "overlapping requests must not run concurrently")

	recent, err := store.RecentBulletins(5)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestGenerateErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"no sources configured", bulletin.ErrNoSourcesConfigured, http.StatusBadRequest},
		{"no sources succeeded", bulletin.ErrNoSourcesSucceeded, http.StatusBadGateway},
		{"internal failure", errors.New("concat exploded"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, store, _ := newTestServer(t, &stubRunner{err: tt.err})

			rec := doRequest(t, srv, http.MethodPost, "/api/generate", nil)
			assert.Equal(t, tt.wantStatus, rec.Code)

			recent, err := store.RecentBulletins(5)
			require.NoError(t, err)
			assert.Empty(t, recent, "failed runs leave no history record")
		})
	}
}

func TestRecentBulletins(t *testing.T) {
	srv, store, _ := newTestServer(t, &stubRunner{})

	rec := doRequest(t, srv, http.MethodGet, "/api/bulletins", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Bulletins []*bulletin.Result `json:"bulletins"`
	}
	decodeBody(t, rec, &body)
	assert.NotNil(t, body.Bulletins)
	assert.Empty(t, body.Bulletins)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.SaveBulletin(&bulletin.Result{
			ID:          id,
			GeneratedAt: time.Now(),
		}))
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/bulletins?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &body)
	assert.Len(t, body.Bulletins, 2)
}

func TestSearchBulletins(t *testing.T) {
	srv, _, _ := newTestServer(t, &stubRunner{})

	require.NoError(t, srv.index.IndexBulletin(&bulletin.Result{
		ID:               "run-9",
		ProfileID:        "default",
		SourcesSucceeded: []string{"CommSec Market Update"},
		GeneratedAt:      time.Now(),
	}))

	rec := doRequest(t, srv, http.MethodGet, "/api/bulletins/search?q=commsec", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Hits []search.Hit `json:"hits"`
	}
	decodeBody(t, rec, &body)
	require.Len(t, body.Hits, 1)
	assert.Equal(t, "run-9", body.Hits[0].BulletinID)

	// Queries under two characters return nothing rather than erroring.
	rec = doRequest(t, srv, http.MethodGet, "/api/bulletins/search?q=c", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &body)
	assert.Empty(t, body.Hits)
}

func TestDownload(t *testing.T) {
	srv, _, cfg := newTestServer(t, &stubRunner{})

	content := []byte("fake mp3 bytes")
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Storage.OutputDir, "default_2026-01-02_07-00-00.mp3"), content, 0o644))

	rec := doRequest(t, srv, http.MethodGet, "/api/download/default_2026-01-02_07-00-00.mp3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "default_2026-01-02_07-00-00.mp3")
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, content, rec.Body.Bytes())

	// Content-Type follows the file's extension.
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Storage.OutputDir, "default_morning.wav"), content, 0o644))
	rec = doRequest(t, srv, http.MethodGet, "/api/download/default_morning.wav", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/wav", rec.Header().Get("Content-Type"))

	rec = doRequest(t, srv, http.MethodGet, "/api/download/missing.mp3", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Path traversal and non-audio names are rejected before any stat.
	rec = doRequest(t, srv, http.MethodGet, "/api/download/..%2fsecrets.mp3", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/download/notes.txt", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEmail(t *testing.T) {
	srv, _, cfg := newTestServer(t, &stubRunner{})

	require.NoError(t, os.WriteFile(filepath.Join(cfg.Storage.OutputDir, "default_bulletin.mp3"), []byte("audio"), 0o644))

	// Sender has no SMTP credentials in the test environment.
	rec := doRequest(t, srv, http.MethodPost, "/api/email/default_bulletin.mp3", map[string]string{
		"email": "listener@example.com",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	decodeBody(t, rec, &body)
	assert.Contains(t, body["message"], "email not configured")

	rec = doRequest(t, srv, http.MethodPost, "/api/email/missing.mp3", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/api/email/..%2froot.mp3", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
