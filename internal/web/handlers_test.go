package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/35services/slack-2-wordpress/internal/media"
	"github.com/35services/slack-2-wordpress/internal/pipeline"
	"github.com/35services/slack-2-wordpress/internal/state"
	"github.com/35services/slack-2-wordpress/internal/thread"
	"github.com/35services/slack-2-wordpress/internal/transcript"
	"github.com/35services/slack-2-wordpress/internal/wordpress"
)

// webSource is a minimal thread source. If gate is non-nil, ValidateChannel
// blocks until the gate closes, keeping the run live for busy-signal tests.
type webSource struct {
	gate  chan struct{}
	roots []thread.Message
}

func (s *webSource) ValidateChannel(ctx context.Context, _ string) error {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *webSource) ListThreads(_ context.Context, _ string) ([]thread.Message, error) {
	return s.roots, nil
}

func (s *webSource) ListMessages(_ context.Context, _ string, ts string) ([]thread.Message, error) {
	var msgs []thread.Message
	for _, m := range s.roots {
		if m.Fingerprint() == ts {
			msgs = append(msgs, m)
		}
	}
	return msgs, nil
}

func (s *webSource) ResolveUserName(_ context.Context, id string) string { return id }

type webPublisher struct{}

func (webPublisher) Validate(_ context.Context) error { return nil }

func (webPublisher) CreateDocument(_ context.Context, title, _ string) (wordpress.Post, error) {
	return wordpress.Post{ID: 1, Title: title}, nil
}

func (webPublisher) UpdateDocument(_ context.Context, id int, title, _ string) (wordpress.Post, error) {
	return wordpress.Post{ID: id, Title: title}, nil
}

type webDownloader struct{}

func (webDownloader) DownloadFile(_ context.Context, _ string, _ io.Writer) error {
	return nil
}

func setupTest(t *testing.T, src pipeline.Source) (*http.Server, *state.Store) {
	t.Helper()
	baseDir := t.TempDir()
	outDir := filepath.Join(baseDir, "exports")

	store, err := state.Open(filepath.Join(baseDir, "mappings.json"))
	if err != nil {
		t.Fatalf("state.Open: %v", err)
	}

	tracker := pipeline.NewTracker(time.Minute)
	pipe := pipeline.New(pipeline.Params{
		Source:      src,
		Publisher:   webPublisher{},
		Store:       store,
		Fetcher:     media.NewFetcher(webDownloader{}, filepath.Join(outDir, "media"), "media", 2),
		Exporter:    transcript.NewExporter(outDir, 2),
		Tracker:     tracker,
		ChannelID:   "C123",
		Concurrency: 2,
	})

	return NewServer(pipe, tracker, store, "test", "127.0.0.1", 0), store
}

func doRequest(t *testing.T, srv *http.Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func TestHandleHealth(t *testing.T) {
	srv, _ := setupTest(t, &webSource{})

	rec := doRequest(t, srv, http.MethodGet, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
}

func TestHandleStatus_Idle(t *testing.T) {
	srv, _ := setupTest(t, &webSource{})

	rec := doRequest(t, srv, http.MethodGet, "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body := decodeBody(t, rec); body["status"] != "idle" {
		t.Errorf("body = %v, want idle", body)
	}
}

func TestHandleSync_BusySecondRequest(t *testing.T) {
	gate := make(chan struct{})
	srv, _ := setupTest(t, &webSource{gate: gate})

	rec := doRequest(t, srv, http.MethodPost, "/sync")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("first POST /sync = %d, want 202", rec.Code)
	}
	first := decodeBody(t, rec)
	if first["id"] == "" {
		t.Error("accepted response should carry the run id")
	}

	rec = doRequest(t, srv, http.MethodPost, "/sync")
	if rec.Code != http.StatusConflict {
		t.Fatalf("second POST /sync = %d, want 409", rec.Code)
	}
	body := decodeBody(t, rec)
	errObj, _ := body["error"].(map[string]any)
	if errObj["code"] != "SYNC_BUSY" {
		t.Errorf("error = %v, want SYNC_BUSY", body)
	}

	close(gate)
}

func TestHandleSync_RunsToCompletion(t *testing.T) {
	root := thread.Message{Timestamp: "100.1", ThreadTimestamp: "100.1", AuthorID: "U1", Text: "Launch plan"}
	srv, store := setupTest(t, &webSource{roots: []thread.Message{root}})

	rec := doRequest(t, srv, http.MethodPost, "/sync")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("POST /sync = %d, want 202", rec.Code)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		rec = doRequest(t, srv, http.MethodGet, "/status")
		body := decodeBody(t, rec)
		if body["status"] == "completed" {
			break
		}
		if body["status"] == "error" {
			t.Fatalf("run failed: %v", body["message"])
		}
		if time.Now().After(deadline) {
			t.Fatalf("run never completed, last status %v", body["status"])
		}
		time.Sleep(10 * time.Millisecond)
	}

	if !store.IsMapped("100.1") {
		t.Error("completed run should have recorded the mapping")
	}
}

func TestHandleMappings(t *testing.T) {
	srv, store := setupTest(t, &webSource{})

	rec := doRequest(t, srv, http.MethodGet, "/mappings")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body := decodeBody(t, rec); body["count"].(float64) != 0 {
		t.Errorf("count = %v, want 0", body["count"])
	}

	if err := store.Upsert("100.1", 7, "Launch plan", nil); err != nil {
		t.Fatalf("seed mapping: %v", err)
	}

	rec = doRequest(t, srv, http.MethodGet, "/mappings")
	body := decodeBody(t, rec)
	if body["count"].(float64) != 1 {
		t.Errorf("count = %v, want 1", body["count"])
	}
}

func TestHandleMappingDetail(t *testing.T) {
	srv, store := setupTest(t, &webSource{})

	rec := doRequest(t, srv, http.MethodGet, "/mappings/100.1")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing mapping = %d, want 404", rec.Code)
	}

	if err := store.Upsert("100.1", 7, "Launch plan", nil); err != nil {
		t.Fatalf("seed mapping: %v", err)
	}

	rec = doRequest(t, srv, http.MethodGet, "/mappings/100.1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["fingerprint"] != "100.1" {
		t.Errorf("fingerprint = %v", body["fingerprint"])
	}
	mapping, _ := body["mapping"].(map[string]any)
	if mapping["post_id"].(float64) != 7 {
		t.Errorf("post_id = %v, want 7", mapping["post_id"])
	}
}

func TestHandleMappingRemove(t *testing.T) {
	srv, store := setupTest(t, &webSource{})

	rec := doRequest(t, srv, http.MethodDelete, "/mappings/100.1")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing mapping = %d, want 404", rec.Code)
	}
	body := decodeBody(t, rec)
	errObj, _ := body["error"].(map[string]any)
	if errObj["code"] != "NOT_FOUND" {
		t.Errorf("error = %v, want NOT_FOUND", body)
	}

	if err := store.Upsert("100.1", 7, "Launch plan", nil); err != nil {
		t.Fatalf("seed mapping: %v", err)
	}

	rec = doRequest(t, srv, http.MethodDelete, "/mappings/100.1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body := decodeBody(t, rec); body["removed"] != true {
		t.Errorf("body = %v", body)
	}
	if store.IsMapped("100.1") {
		t.Error("mapping should be gone")
	}
}
