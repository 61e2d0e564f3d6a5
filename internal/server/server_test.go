package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/TobiSchelling/herbtax/internal/database"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr(s string) *string { return &s }

func insertRun(t *testing.T, db *database.DB, id string) {
	t.Helper()
	_, err := db.InsertRun(&database.Run{
		ID:              id,
		Source:          "dict.tsv",
		Metric:          "cosine",
		Linkage:         "single",
		Criterion:       "distance",
		Threshold:       1,
		MinClusterSize:  2,
		TopK:            100,
		EntityCount:     3,
		AttributeCount:  2,
		ClusterCount:    2,
		SummaryMarkdown: ptr("# Run summary\n\n| Setting | Value |\n| --- | --- |\n| Metric | cosine |\n"),
		CreatedAt:       ptr("2026-03-01 10:00:00"),
	},
		[]database.RankedPair{{Herb1: "ginseng", Herb2: "licorice", Shared: []string{"fatigue", "cough"}, Distance: 0.125}},
		[][]string{{"ginseng", "licorice"}},
		[]database.Leaf{{Entity: "ginger", Index: 2}, {Entity: "ginseng", Index: 0}, {Entity: "licorice", Index: 1}},
	)
	if err != nil {
		t.Fatalf("failed to insert run: %v", err)
	}
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestIndexRouteEmpty(t *testing.T) {
	srv, err := New(openTestDB(t))
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	rec := get(t, srv, "/")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "No runs yet") {
		t.Error("expected empty state in response body")
	}
}

func TestIndexRouteListsRuns(t *testing.T) {
	db := openTestDB(t)
	insertRun(t, db, "0123456789abcdef")

	srv, err := New(db)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	rec := get(t, srv, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `href="/runs/0123456789abcdef"`) {
		t.Error("expected link to run")
	}
	if !strings.Contains(body, ">01234567<") {
		t.Error("expected shortened run id")
	}
	if !strings.Contains(body, "1 of 2") {
		t.Error("expected kept cluster count")
	}
}

func TestRunRoute(t *testing.T) {
	db := openTestDB(t)
	insertRun(t, db, "run-1")

	srv, err := New(db)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	rec := get(t, srv, "/runs/run-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"<h1>Run summary</h1>",
		"<table>",
		"fatigue, cough",
		"0.1250",
		"ginseng, licorice",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in response", want)
		}
	}
}

func TestRunRouteNotFound(t *testing.T) {
	srv, err := New(openTestDB(t))
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	rec := get(t, srv, "/runs/missing")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Not found") {
		t.Error("expected not found page")
	}
}

func TestUnknownPath(t *testing.T) {
	srv, err := New(openTestDB(t))
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	rec := get(t, srv, "/briefing/2026-02-06")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestStaticRoute(t *testing.T) {
	srv, err := New(openTestDB(t))
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	rec := get(t, srv, "/static/style.css")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "--accent") {
		t.Error("expected stylesheet content")
	}
}

func TestRenderMarkdownTables(t *testing.T) {
	html := string(renderMarkdown("| a | b |\n| --- | --- |\n| 1 | 2 |\n"))
	if !strings.Contains(html, "<td>1</td>") {
		t.Errorf("expected table cells, got %s", html)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Port 0 picks a free port; a cancelled context shuts the server down.
	if err := Serve(ctx, openTestDB(t), 0); err != nil {
		t.Errorf("expected clean shutdown, got %v", err)
	}
}
