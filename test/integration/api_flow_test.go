/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/verdandi/internal/auth"
	"github.com/friendsincode/verdandi/internal/config"
	"github.com/friendsincode/verdandi/internal/logbuffer"
	"github.com/friendsincode/verdandi/internal/server"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment:    "test",
		HTTPBind:       "127.0.0.1",
		HTTPTimeout:    60 * time.Second,
		LogLevel:       "error",
		DBBackend:      config.DatabaseSQLite,
		DBDSN:          filepath.Join(t.TempDir(), "verdandi.db"),
		JWTSigningKey:  "integration-test-signing-key",
		EventBus:       config.EventBusMemory,
		StorageBackend: config.StorageFS,
		ExportRoot:     t.TempDir(),
		// The scheduler has its own tests; keeping it off here avoids cron
		// goroutines outliving the test server.
		SchedulerEnabled: false,
	}
}

// doJSON issues a request with an optional JSON body and bearer token,
// asserts the status and decodes the response into out when given.
func doJSON(t *testing.T, client *http.Client, method, url, token string, body any, wantStatus int, out any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		data, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s status = %d, want %d (body %s)", method, url, resp.StatusCode, wantStatus, data)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s response: %v", method, url, err)
		}
	}
}

// TestAPIFlow drives the fully wired server over HTTP: probes, user
// provisioning, login, preset and interval retrieval, an unauthenticated
// feed fetch, and a manual export through to snapshot download.
func TestAPIFlow(t *testing.T) {
	cfg := testConfig(t)

	srv, err := server.New(cfg, logbuffer.New(256), zerolog.Nop())
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	t.Cleanup(func() {
		if err := srv.Close(); err != nil {
			t.Errorf("close server: %v", err)
		}
	})

	ts := httptest.NewServer(srv.HTTPServer().Handler)
	t.Cleanup(ts.Close)
	client := ts.Client()

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := client.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d, want 200", path, resp.StatusCode)
		}
	}

	// Provision an editor through the admin API, then log in as them. The
	// bootstrap admin exists only as a signed token, never as a row.
	adminToken, err := auth.Issue([]byte(cfg.JWTSigningKey), auth.Claims{UserID: "bootstrap-admin", Role: "admin"}, time.Hour)
	if err != nil {
		t.Fatalf("issue admin token: %v", err)
	}

	doJSON(t, client, http.MethodPost, ts.URL+"/api/v1/users", adminToken, map[string]any{
		"email":    "ops@example.com",
		"password": "integration-pass",
		"role":     "editor",
	}, http.StatusCreated, nil)

	var login struct {
		Token string `json:"token"`
	}
	doJSON(t, client, http.MethodPost, ts.URL+"/api/v1/auth/login", "", map[string]any{
		"email":    "ops@example.com",
		"password": "integration-pass",
	}, http.StatusOK, &login)
	if login.Token == "" {
		t.Fatal("login returned an empty token")
	}

	var preset struct {
		ID       string `json:"id"`
		Grouping string `json:"grouping"`
	}
	doJSON(t, client, http.MethodPost, ts.URL+"/api/v1/presets", login.Token, map[string]any{
		"name":     "Daily Ops",
		"grouping": "per_day",
	}, http.StatusCreated, &preset)
	if preset.Grouping != "per_day" {
		t.Fatalf("preset grouping = %q, want per_day", preset.Grouping)
	}

	var intervals struct {
		Count     int `json:"count"`
		Intervals []struct {
			Begin time.Time `json:"begin"`
			End   time.Time `json:"end"`
		} `json:"intervals"`
	}
	doJSON(t, client, http.MethodGet,
		ts.URL+"/api/v1/presets/"+preset.ID+"/intervals?from=2024-03-01T00:00:00Z&to=2024-03-04T00:00:00Z",
		login.Token, nil, http.StatusOK, &intervals)
	if intervals.Count != 4 {
		t.Fatalf("interval count = %d, want 4", intervals.Count)
	}

	// Feed tokens carry their own signature; no Authorization header.
	var feed struct {
		Token string `json:"token"`
	}
	doJSON(t, client, http.MethodPost, ts.URL+"/api/v1/presets/"+preset.ID+"/feed-token", login.Token, nil, http.StatusOK, &feed)

	resp, err := client.Get(ts.URL + "/feeds/" + feed.Token)
	if err != nil {
		t.Fatalf("GET feed: %v", err)
	}
	feedBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET feed status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Fatalf("feed Content-Type = %q, want text/calendar", ct)
	}
	if !strings.HasPrefix(string(feedBody), "BEGIN:VCALENDAR") {
		t.Fatalf("feed body does not start with BEGIN:VCALENDAR: %q", feedBody[:min(len(feedBody), 40)])
	}

	// Export job through to snapshot download.
	var job struct {
		ID string `json:"id"`
	}
	doJSON(t, client, http.MethodPost, ts.URL+"/api/v1/exports", login.Token, map[string]any{
		"preset_id":   preset.ID,
		"name":        "Nightly CSV",
		"schedule":    "0 3 * * *",
		"format":      "csv",
		"window_days": 3,
	}, http.StatusCreated, &job)

	var snap struct {
		ID            string `json:"id"`
		IntervalCount int    `json:"interval_count"`
		ByteSize      int64  `json:"byte_size"`
	}
	doJSON(t, client, http.MethodPost, ts.URL+"/api/v1/exports/"+job.ID+"/run", login.Token, nil, http.StatusCreated, &snap)
	if snap.IntervalCount == 0 || snap.ByteSize == 0 {
		t.Fatalf("snapshot has no content: %+v", snap)
	}

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/snapshots/"+snap.ID+"/download", nil)
	if err != nil {
		t.Fatalf("build download request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+login.Token)
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("download snapshot: %v", err)
	}
	snapBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("download status = %d, want 200 (body %s)", resp.StatusCode, snapBody)
	}
	if !strings.HasPrefix(string(snapBody), "index,begin,end,duration_ms") {
		t.Fatalf("snapshot body does not look like CSV: %q", snapBody[:min(len(snapBody), 40)])
	}
}
