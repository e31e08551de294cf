package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/scheduling-core/internal/auth"
	"github.com/example/scheduling-core/internal/config"
	"github.com/example/scheduling-core/internal/persistence"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(storage, dsn string) config.Config {
	return config.Config{
		Storage:   storage,
		SQLiteDSN: dsn,
		SlotSize:  time.Hour,
		SweepSpec: "*/5 * * * *",
		Timezone:  time.UTC,
	}
}

func TestOpenStore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		storage string
	}{
		{name: "memory", storage: config.StorageMemory},
		{name: "sqlite", storage: config.StorageSQLite},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			dsn := filepath.Join(t.TempDir(), "scheduler.db")
			st, err := openStore(ctx, testConfig(tc.storage, dsn), quietLogger())
			require.NoError(t, err)
			t.Cleanup(func() { _ = st.Close() })

			start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
			require.NoError(t, st.repo.CreateEvent(ctx, persistence.Event{
				ID:        "evt-1",
				Title:     "Standup",
				Start:     start,
				End:       start.Add(15 * time.Minute),
				Type:      "meeting",
				Module:    "sales",
				Priority:  "medium",
				Status:    "scheduled",
				Version:   1,
				CreatedAt: start,
				UpdatedAt: start,
			}))

			got, err := st.repo.GetEvent(ctx, "evt-1")
			require.NoError(t, err)
			assert.Equal(t, "Standup", got.Title)
		})
	}
}

func TestOpenStoreRejectsMissingMigrationsDir(t *testing.T) {
	t.Parallel()

	cfg := testConfig(config.StorageSQLite, filepath.Join(t.TempDir(), "scheduler.db"))
	cfg.MigrationsDir = filepath.Join(t.TempDir(), "missing")

	_, err := openStore(context.Background(), cfg, quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apply migrations")
}

func serve(handler http.Handler, method, target string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var raw []byte
	if body != nil {
		raw, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, target, bytes.NewReader(raw))
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestNewAppServesEvents(t *testing.T) {
	t.Parallel()

	cfg := testConfig(config.StorageMemory, "")
	st, err := openStore(context.Background(), cfg, quietLogger())
	require.NoError(t, err)

	a := newApp(cfg, st.repo, nil, quietLogger())
	t.Cleanup(a.reminders.Stop)

	start := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Minute)
	rec := serve(a.handler, http.MethodPost, "/events", map[string]any{
		"title":            "Site visit",
		"start":            start.Format(time.RFC3339),
		"end":              start.Add(time.Hour).Format(time.RFC3339),
		"type":             "site-visit",
		"module":           "operations",
		"reminder_minutes": 30,
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Event struct {
			ID string `json:"id"`
		} `json:"event"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.NotEmpty(t, created.Event.ID)

	_, armed := a.reminders.Lookup(created.Event.ID)
	assert.True(t, armed, "reminder should be armed for the new event")

	assert.Equal(t, http.StatusOK, serve(a.handler, http.MethodGet, "/events/"+created.Event.ID, nil, nil).Code)
	assert.Equal(t, http.StatusNoContent, serve(a.handler, http.MethodGet, "/healthz", nil, nil).Code)
}

func TestNewAppRequiresModuleKeyWhenConfigured(t *testing.T) {
	t.Parallel()

	hash, err := auth.HashKey("s3cret", auth.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16})
	require.NoError(t, err)
	ring, err := auth.NewKeyRing(map[string]string{"hr": hash})
	require.NoError(t, err)

	cfg := testConfig(config.StorageMemory, "")
	cfg.ModuleKeys = ring
	cfg.RateLimit = 100
	cfg.RateBurst = 10
	st, err := openStore(context.Background(), cfg, quietLogger())
	require.NoError(t, err)

	a := newApp(cfg, st.repo, nil, quietLogger())
	t.Cleanup(a.reminders.Stop)

	assert.Equal(t, http.StatusUnauthorized, serve(a.handler, http.MethodGet, "/events", nil, nil).Code)
	assert.Equal(t, http.StatusOK, serve(a.handler, http.MethodGet, "/events", nil, map[string]string{
		"X-Module":  "hr",
		"X-API-Key": "s3cret",
	}).Code)
	assert.Equal(t, http.StatusNoContent, serve(a.handler, http.MethodGet, "/healthz", nil, nil).Code)
}

func TestSetupTracingDisabled(t *testing.T) {
	t.Parallel()

	tp, shutdown, err := setupTracing(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, tp)
	assert.NoError(t, shutdown(context.Background()))
}
