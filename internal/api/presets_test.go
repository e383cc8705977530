package api

import (
	"strings"
	"testing"

	"github.com/friendsincode/verdandi/internal/models"
)

func createTestPreset(t *testing.T, ta *testAPI, name string) models.Preset {
	t.Helper()
	rr := ta.request(t, "POST", "/api/v1/presets", map[string]any{
		"name":     name,
		"grouping": "per_day",
	}, models.RoleEditor)
	if rr.Code != 201 {
		t.Fatalf("create preset: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	return decodeBody[models.Preset](t, rr)
}

func TestPresetCRUD(t *testing.T) {
	ta := setupRouter(t)

	created := createTestPreset(t, ta, "Monthly Billing")
	if created.ID == "" {
		t.Fatal("created preset has no id")
	}
	if created.Precision != "1ms" {
		t.Errorf("expected default precision 1ms, got %q", created.Precision)
	}
	if !created.ExtendBegin || !created.ExtendEnd {
		t.Error("extension flags should default to enabled")
	}

	// Duplicate names are rejected.
	rr := ta.request(t, "POST", "/api/v1/presets", map[string]any{
		"name": "Monthly Billing", "grouping": "per_week",
	}, models.RoleEditor)
	if rr.Code != 409 {
		t.Errorf("duplicate name: expected 409, got %d", rr.Code)
	}

	rr = ta.request(t, "GET", "/api/v1/presets", nil, models.RoleViewer)
	if rr.Code != 200 {
		t.Fatalf("list: expected 200, got %d", rr.Code)
	}
	list := decodeBody[[]models.Preset](t, rr)
	if len(list) != 1 {
		t.Fatalf("expected 1 preset, got %d", len(list))
	}

	rr = ta.request(t, "GET", "/api/v1/presets/"+created.ID, nil, models.RoleViewer)
	if rr.Code != 200 {
		t.Fatalf("get: expected 200, got %d", rr.Code)
	}

	rr = ta.request(t, "PATCH", "/api/v1/presets/"+created.ID, map[string]any{
		"grouping":            "per_month",
		"offset_west_seconds": 18000,
		"extend_end":          false,
	}, models.RoleEditor)
	if rr.Code != 200 {
		t.Fatalf("update: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	updated := decodeBody[models.Preset](t, rr)
	if updated.Grouping != "per_month" || updated.OffsetWestSeconds != 18000 || updated.ExtendEnd {
		t.Errorf("patch not applied: %+v", updated)
	}

	rr = ta.request(t, "DELETE", "/api/v1/presets/"+created.ID, nil, models.RoleEditor)
	if rr.Code != 204 {
		t.Fatalf("delete: expected 204, got %d", rr.Code)
	}
	rr = ta.request(t, "GET", "/api/v1/presets/"+created.ID, nil, models.RoleViewer)
	if rr.Code != 404 {
		t.Errorf("get after delete: expected 404, got %d", rr.Code)
	}
}

func TestPresetWritesRequireEditor(t *testing.T) {
	ta := setupRouter(t)

	rr := ta.request(t, "POST", "/api/v1/presets", map[string]any{
		"name": "Denied", "grouping": "per_day",
	}, models.RoleViewer)
	if rr.Code != 403 {
		t.Fatalf("viewer create: expected 403, got %d", rr.Code)
	}

	created := createTestPreset(t, ta, "Gated")
	rr = ta.request(t, "DELETE", "/api/v1/presets/"+created.ID, nil, models.RoleViewer)
	if rr.Code != 403 {
		t.Errorf("viewer delete: expected 403, got %d", rr.Code)
	}

	rr = ta.request(t, "DELETE", "/api/v1/presets/"+created.ID, nil, models.RoleAdmin)
	if rr.Code != 204 {
		t.Errorf("admin delete: expected 204, got %d", rr.Code)
	}
}

func TestPresetIntervalsFormats(t *testing.T) {
	ta := setupRouter(t)
	created := createTestPreset(t, ta, "Daily Ops")

	window := "from=2024-03-01T00:00:00Z&to=2024-03-04T00:00:00Z"

	rr := ta.request(t, "GET", "/api/v1/presets/"+created.ID+"/intervals?"+window, nil, models.RoleViewer)
	if rr.Code != 200 {
		t.Fatalf("json: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	resp := decodeBody[struct {
		PresetID string `json:"preset_id"`
		Grouping string `json:"grouping"`
		Count    int    `json:"count"`
	}](t, rr)
	if resp.PresetID != created.ID || resp.Grouping != "per_day" {
		t.Errorf("unexpected response identity: %+v", resp)
	}
	// Three aligned days plus the extended final interval.
	if resp.Count != 4 {
		t.Errorf("expected 4 intervals, got %d", resp.Count)
	}

	rr = ta.request(t, "GET", "/api/v1/presets/"+created.ID+"/intervals?"+window+"&format=ics", nil, models.RoleViewer)
	if rr.Code != 200 {
		t.Fatalf("ics: expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/calendar; charset=utf-8" {
		t.Errorf("ics content type: %q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "daily-ops-intervals-2024-03-01-to-2024-03-04.ics") {
		t.Errorf("ics disposition: %q", cd)
	}
	body := rr.Body.String()
	if !strings.HasPrefix(body, "BEGIN:VCALENDAR") {
		t.Error("ics body missing VCALENDAR envelope")
	}
	if got := strings.Count(body, "BEGIN:VEVENT"); got != 4 {
		t.Errorf("expected 4 events, got %d", got)
	}

	rr = ta.request(t, "GET", "/api/v1/presets/"+created.ID+"/intervals?"+window+"&format=csv", nil, models.RoleViewer)
	if rr.Code != 200 {
		t.Fatalf("csv: expected 200, got %d", rr.Code)
	}
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	if len(lines) != 5 {
		t.Errorf("expected header plus 4 rows, got %d lines", len(lines))
	}

	rr = ta.request(t, "GET", "/api/v1/presets/"+created.ID+"/intervals?"+window+"&format=xml", nil, models.RoleViewer)
	if rr.Code != 400 {
		t.Errorf("unknown format: expected 400, got %d", rr.Code)
	}

	rr = ta.request(t, "GET", "/api/v1/presets/"+created.ID+"/intervals?from=not-a-time", nil, models.RoleViewer)
	if rr.Code != 400 {
		t.Errorf("bad window: expected 400, got %d", rr.Code)
	}
}

func TestFeedFlow(t *testing.T) {
	ta := setupRouter(t)
	created := createTestPreset(t, ta, "Team Calendar")

	rr := ta.request(t, "POST", "/api/v1/presets/"+created.ID+"/feed-token", nil, models.RoleEditor)
	if rr.Code != 200 {
		t.Fatalf("feed token: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	issued := decodeBody[struct {
		Token string `json:"token"`
		URL   string `json:"url"`
	}](t, rr)
	if issued.Token == "" {
		t.Fatal("no feed token issued")
	}
	if !strings.HasPrefix(issued.URL, "http://calendar.test:8672/feeds/") {
		t.Errorf("feed url: %q", issued.URL)
	}

	// Feeds serve without any Authorization header; the token is the auth.
	rr = ta.request(t, "GET", "/feeds/"+issued.Token, nil, "")
	if rr.Code != 200 {
		t.Fatalf("feed: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/calendar; charset=utf-8" {
		t.Errorf("feed content type: %q", ct)
	}
	if !strings.Contains(rr.Body.String(), "PRODID:-//Friends Incode//Verdandi//EN") {
		t.Error("feed body missing PRODID")
	}

	rr = ta.request(t, "GET", "/feeds/not-a-real-token", nil, "")
	if rr.Code != 404 {
		t.Errorf("garbage token: expected 404, got %d", rr.Code)
	}

	// A login JWT must not work as a feed token even though both are
	// signed with the same secret.
	rr = ta.request(t, "GET", "/feeds/"+loginToken(t), nil, "")
	if rr.Code != 404 {
		t.Errorf("login token as feed token: expected 404, got %d", rr.Code)
	}

	rr = ta.request(t, "PATCH", "/api/v1/settings", map[string]any{
		"feeds_enabled": false,
	}, models.RoleAdmin)
	if rr.Code != 200 {
		t.Fatalf("disable feeds: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = ta.request(t, "GET", "/feeds/"+issued.Token, nil, "")
	if rr.Code != 503 {
		t.Errorf("disabled feeds: expected 503, got %d", rr.Code)
	}
}

func TestFeedTokenSurvivesPresetRename(t *testing.T) {
	ta := setupRouter(t)
	created := createTestPreset(t, ta, "Before Rename")

	rr := ta.request(t, "POST", "/api/v1/presets/"+created.ID+"/feed-token", nil, models.RoleEditor)
	issued := decodeBody[struct {
		Token string `json:"token"`
	}](t, rr)

	rr = ta.request(t, "PATCH", "/api/v1/presets/"+created.ID, map[string]any{
		"name": "After Rename",
	}, models.RoleEditor)
	if rr.Code != 200 {
		t.Fatalf("rename: expected 200, got %d", rr.Code)
	}

	// Tokens carry the preset ID, not the name.
	rr = ta.request(t, "GET", "/feeds/"+issued.Token, nil, "")
	if rr.Code != 200 {
		t.Errorf("feed after rename: expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "After Rename") {
		t.Error("feed should render under the new name")
	}

	rr = ta.request(t, "DELETE", "/api/v1/presets/"+created.ID, nil, models.RoleEditor)
	if rr.Code != 204 {
		t.Fatalf("delete: expected 204, got %d", rr.Code)
	}
	rr = ta.request(t, "GET", "/feeds/"+issued.Token, nil, "")
	if rr.Code != 404 {
		t.Errorf("feed after delete: expected 404, got %d", rr.Code)
	}
}
