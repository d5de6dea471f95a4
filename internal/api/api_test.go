package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/folio/internal/config"
	"github.com/dgallion1/folio/internal/generate"
	"github.com/dgallion1/folio/internal/pipeline"
	"github.com/dgallion1/folio/internal/session"
	"github.com/dgallion1/folio/internal/store"
	"github.com/dgallion1/folio/internal/story"
	"github.com/gorilla/websocket"
)

const testKey = "test-key"

type harness struct {
	srv  *Server
	orch *pipeline.Orchestrator
}

// blockingGenerator holds every generation until release is closed.
type blockingGenerator struct {
	release chan struct{}
}

func (g *blockingGenerator) Generate(ctx context.Context, req generate.Request) (story.Fragment, error) {
	select {
	case <-g.release:
	case <-ctx.Done():
		return story.Fragment{}, ctx.Err()
	}
	return story.Fragment{ID: "late", ChapterTitle: "Late", Content: "Late."}, nil
}

func newHarness(t *testing.T, gen generate.Generator) *harness {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Config{
		FolioAPIKey:      testKey,
		WorkerCount:      1,
		MaxQueueSize:     4,
		SessionTTL:       time.Hour,
		WordsPerPage:     130,
		ContextFragments: 6,
		MaxUploadBytes:   1 << 20,
	}
	llm := generate.NewClient(&generate.MockCompleter{}, generate.NewLLMStats(time.Hour), log)
	if gen == nil {
		gen = llm
	}
	orch := pipeline.NewOrchestrator(cfg, gen, log)
	orch.Start(context.Background())
	t.Cleanup(orch.Stop)

	db, err := store.Open(filepath.Join(t.TempDir(), "folio.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	srv := NewServer(orch, db, llm, log, cfg)
	t.Cleanup(srv.Close)
	return &harness{srv: srv, orch: orch}
}

func (h *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Authorization", "Bearer "+testKey)
	rec := httptest.NewRecorder()
	h.srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body: %s", rec.Code, want, rec.Body.String())
	}
}

// waitIdle blocks until the session has no generation in flight.
func (h *harness) waitIdle(t *testing.T, id string) session.Snapshot {
	t.Helper()
	sess, err := h.orch.Sessions().Get(id)
	if err != nil {
		t.Fatalf("session %s: %v", id, err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for sess.InFlight() {
		if time.Now().After(deadline) {
			t.Fatalf("session %s still generating", id)
		}
		time.Sleep(5 * time.Millisecond)
	}
	return sess.Snapshot()
}

func (h *harness) createStory(t *testing.T) session.Snapshot {
	t.Helper()
	rec := h.do(t, http.MethodPost, "/api/stories", map[string]string{"title": "The Road", "genre": "mystery"})
	expectStatus(t, rec, http.StatusAccepted)
	snap := decode[session.Snapshot](t, rec)
	return h.waitIdle(t, snap.ID)
}

func (h *harness) importStory(t *testing.T, filename, content string) session.Snapshot {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("title", "Dark and Light")
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte(content))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/stories/import", &body)
	req.Header.Set("Authorization", "Bearer "+testKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.srv.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusCreated)
	return decode[session.Snapshot](t, rec)
}

func longManuscript() string {
	return "Chapter One\n\n" + strings.Repeat("It was dark. ", 100) +
		"\n\nChapter Two\n\n" + strings.Repeat("It was light. ", 100)
}

func TestHealthIsPublic(t *testing.T) {
	h := newHarness(t, nil)
	rec := httptest.NewRecorder()
	h.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	expectStatus(t, rec, http.StatusOK)
}

func TestAuthRequired(t *testing.T) {
	h := newHarness(t, nil)

	rec := httptest.NewRecorder()
	h.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/saves", nil))
	expectStatus(t, rec, http.StatusUnauthorized)

	req := httptest.NewRequest(http.MethodGet, "/api/saves", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	h.srv.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusUnauthorized)

	// Query tokens are only honored on the websocket route.
	rec = httptest.NewRecorder()
	h.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/saves?token="+testKey, nil))
	expectStatus(t, rec, http.StatusUnauthorized)
}

func TestCreateStoryAndChoose(t *testing.T) {
	h := newHarness(t, nil)
	snap := h.createStory(t)

	if snap.Fragments != 1 || snap.View != session.ViewGame || len(snap.Choices) != 2 {
		t.Fatalf("after opening: %+v", snap)
	}
	if snap.Title != "The Road" || snap.Mode != story.ModeFreeChoice {
		t.Errorf("header = %q %q", snap.Title, snap.Mode)
	}
	if snap.Spread.PageCount%2 != 0 || snap.Spread.LeftIndex != (snap.Spread.PageCount-1)/2*2 {
		t.Errorf("opening spread = %+v", snap.Spread)
	}

	rec := h.do(t, http.MethodPost, "/api/stories/"+snap.ID+"/choices", map[string]string{"choiceId": "a"})
	expectStatus(t, rec, http.StatusAccepted)
	snap = h.waitIdle(t, snap.ID)

	if snap.Fragments != 2 {
		t.Fatalf("fragments = %d, want 2", snap.Fragments)
	}
	wantLeft := (snap.Spread.PageCount - 1) / 2 * 2
	if snap.Spread.LeftIndex != wantLeft || wantLeft == 0 {
		t.Errorf("free choice should open the last spread: left=%d want %d", snap.Spread.LeftIndex, wantLeft)
	}
	if len(snap.Characters) != 1 || snap.Characters[0].Name != "The Guide" {
		t.Errorf("characters = %+v", snap.Characters)
	}

	rec = h.do(t, http.MethodGet, "/api/stories/"+snap.ID+"/pages", nil)
	expectStatus(t, rec, http.StatusOK)
	pages := decode[struct {
		Count int `json:"count"`
	}](t, rec)
	if pages.Count != snap.Spread.PageCount {
		t.Errorf("pages count = %d, spread says %d", pages.Count, snap.Spread.PageCount)
	}

	rec = h.do(t, http.MethodGet, "/api/stories/"+snap.ID+"/bookmarks", nil)
	expectStatus(t, rec, http.StatusOK)
	marks := decode[struct {
		Bookmarks []struct {
			Title string `json:"title"`
		} `json:"bookmarks"`
	}](t, rec)
	if len(marks.Bookmarks) != 1 || marks.Bookmarks[0].Title != "Chapter 1" {
		t.Errorf("bookmarks = %+v", marks.Bookmarks)
	}
}

func TestCreateStoryValidation(t *testing.T) {
	h := newHarness(t, nil)
	tests := []struct {
		name string
		body map[string]string
	}{
		{"missing genre", map[string]string{"title": "x"}},
		{"bad mode", map[string]string{"genre": "noir", "mode": "dream"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectStatus(t, h.do(t, http.MethodPost, "/api/stories", tt.body), http.StatusBadRequest)
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/stories", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer "+testKey)
	rec := httptest.NewRecorder()
	h.srv.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestUnknownStory(t *testing.T) {
	h := newHarness(t, nil)
	for _, path := range []string{"/api/stories/nope", "/api/stories/nope/spread", "/api/stories/nope/export"} {
		expectStatus(t, h.do(t, http.MethodGet, path, nil), http.StatusNotFound)
	}
}

func TestChoiceErrors(t *testing.T) {
	h := newHarness(t, nil)
	snap := h.createStory(t)

	expectStatus(t, h.do(t, http.MethodPost, "/api/stories/"+snap.ID+"/choices", map[string]string{}), http.StatusBadRequest)
	expectStatus(t, h.do(t, http.MethodPost, "/api/stories/"+snap.ID+"/choices", map[string]string{"choiceId": "zzz"}), http.StatusUnprocessableEntity)
	// Free choice mode needs a choice.
	expectStatus(t, h.do(t, http.MethodPost, "/api/stories/"+snap.ID+"/continue", nil), http.StatusUnprocessableEntity)
}

func TestBusyWhileGenerating(t *testing.T) {
	gen := &blockingGenerator{release: make(chan struct{})}
	h := newHarness(t, gen)

	rec := h.do(t, http.MethodPost, "/api/stories", map[string]string{"genre": "horror"})
	expectStatus(t, rec, http.StatusAccepted)
	snap := decode[session.Snapshot](t, rec)
	if !snap.Loading || snap.View != session.ViewLoading {
		t.Fatalf("expected loading, got %+v", snap)
	}

	expectStatus(t, h.do(t, http.MethodPost, "/api/stories/"+snap.ID+"/continue", nil), http.StatusConflict)
	expectStatus(t, h.do(t, http.MethodPut, "/api/stories/"+snap.ID+"/view", map[string]string{"view": "menu"}), http.StatusConflict)
	expectStatus(t, h.do(t, http.MethodPost, "/api/stories/"+snap.ID+"/save", nil), http.StatusConflict)

	close(gen.release)
	snap = h.waitIdle(t, snap.ID)
	if snap.Fragments != 1 || snap.Title != "Untitled horror" {
		t.Errorf("after release: %+v", snap)
	}
	if !snap.Ended {
		t.Error("fragment without choices should end the story")
	}
	expectStatus(t, h.do(t, http.MethodPost, "/api/stories/"+snap.ID+"/continue", nil), http.StatusConflict)
}

func TestModeAndContinue(t *testing.T) {
	h := newHarness(t, nil)
	snap := h.createStory(t)

	expectStatus(t, h.do(t, http.MethodPut, "/api/stories/"+snap.ID+"/mode", map[string]string{"mode": "sideways"}), http.StatusBadRequest)

	rec := h.do(t, http.MethodPut, "/api/stories/"+snap.ID+"/mode", map[string]string{"mode": "full_generation"})
	expectStatus(t, rec, http.StatusOK)
	if got := decode[session.Snapshot](t, rec); got.Mode != story.ModeFullGeneration {
		t.Fatalf("mode = %q", got.Mode)
	}

	expectStatus(t, h.do(t, http.MethodPost, "/api/stories/"+snap.ID+"/continue", nil), http.StatusAccepted)
	snap = h.waitIdle(t, snap.ID)
	if snap.Fragments != 2 {
		t.Errorf("fragments = %d, want 2", snap.Fragments)
	}
}

func TestViewTransitions(t *testing.T) {
	h := newHarness(t, nil)
	snap := h.createStory(t)

	expectStatus(t, h.do(t, http.MethodPut, "/api/stories/"+snap.ID+"/view", map[string]string{"view": "nowhere"}), http.StatusBadRequest)
	expectStatus(t, h.do(t, http.MethodPut, "/api/stories/"+snap.ID+"/view", map[string]string{"view": "menu"}), http.StatusOK)
	expectStatus(t, h.do(t, http.MethodPut, "/api/stories/"+snap.ID+"/view", map[string]string{"view": "characters"}), http.StatusConflict)
	expectStatus(t, h.do(t, http.MethodPut, "/api/stories/"+snap.ID+"/view", map[string]string{"view": "game"}), http.StatusOK)
}

func TestImportAndNavigate(t *testing.T) {
	h := newHarness(t, nil)
	snap := h.importStory(t, "dark.txt", longManuscript())

	if snap.Title != "Dark and Light" || snap.Fragments != 1 || snap.View != session.ViewGame {
		t.Fatalf("imported: %+v", snap)
	}
	if len(snap.Choices) != 1 || snap.Choices[0].ID != "continue" {
		t.Errorf("choices = %+v", snap.Choices)
	}
	if snap.Spread.PageCount < 6 || snap.Spread.LeftIndex != 0 {
		t.Fatalf("spread = %+v", snap.Spread)
	}
	if snap.Spread.DropCap != "I" {
		t.Errorf("drop cap = %q", snap.Spread.DropCap)
	}

	base := "/api/stories/" + snap.ID
	rec := h.do(t, http.MethodPost, base+"/spread/jump", map[string]int{"index": 3})
	expectStatus(t, rec, http.StatusOK)
	if sp := decode[session.Spread](t, rec); sp.LeftIndex != 2 {
		t.Errorf("jump to 3 opened %d", sp.LeftIndex)
	}
	if sp := decode[session.Spread](t, h.do(t, http.MethodPost, base+"/spread/next", nil)); sp.LeftIndex != 4 {
		t.Errorf("next opened %d", sp.LeftIndex)
	}
	if sp := decode[session.Spread](t, h.do(t, http.MethodPost, base+"/spread/prev", nil)); sp.LeftIndex != 2 {
		t.Errorf("prev opened %d", sp.LeftIndex)
	}
	if sp := decode[session.Spread](t, h.do(t, http.MethodGet, base+"/spread", nil)); sp.LeftIndex != 2 || sp.Left == nil {
		t.Errorf("spread = %+v", sp)
	}
	expectStatus(t, h.do(t, http.MethodPost, base+"/spread/jump", map[string]string{}), http.StatusBadRequest)

	marks := decode[struct {
		Bookmarks []struct {
			Title string `json:"title"`
		} `json:"bookmarks"`
	}](t, h.do(t, http.MethodGet, base+"/bookmarks", nil))
	if len(marks.Bookmarks) != 2 || marks.Bookmarks[1].Title != "Chapter Two" {
		t.Errorf("bookmarks = %+v", marks.Bookmarks)
	}

	expectStatus(t, h.do(t, http.MethodPost, base+"/choices", map[string]string{"choiceId": "continue"}), http.StatusAccepted)
	if snap = h.waitIdle(t, snap.ID); snap.Fragments != 2 {
		t.Errorf("fragments after continue = %d", snap.Fragments)
	}
}

func TestImportRejectsUnsupported(t *testing.T) {
	h := newHarness(t, nil)
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("file", "run.exe")
	fw.Write([]byte("MZ"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/stories/import", &body)
	req.Header.Set("Authorization", "Bearer "+testKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.srv.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestSaveLoadDelete(t *testing.T) {
	h := newHarness(t, nil)
	snap := h.createStory(t)

	expectStatus(t, h.do(t, http.MethodPost, "/api/stories/"+snap.ID+"/save", nil), http.StatusOK)

	list := decode[struct {
		Saves []saveListing `json:"saves"`
	}](t, h.do(t, http.MethodGet, "/api/saves", nil))
	if len(list.Saves) != 1 || list.Saves[0].ID != snap.ID || !list.Saves[0].Live || list.Saves[0].SavedAgo == "" {
		t.Fatalf("saves = %+v", list.Saves)
	}

	h.orch.Sessions().Delete(snap.ID)
	rec := h.do(t, http.MethodPost, "/api/saves/"+snap.ID+"/load", nil)
	expectStatus(t, rec, http.StatusOK)
	loaded := decode[session.Snapshot](t, rec)
	if loaded.Fragments != 1 || loaded.View != session.ViewGame || loaded.Title != "The Road" {
		t.Errorf("loaded = %+v", loaded)
	}

	expectStatus(t, h.do(t, http.MethodDelete, "/api/saves/"+snap.ID, nil), http.StatusOK)
	expectStatus(t, h.do(t, http.MethodDelete, "/api/saves/"+snap.ID, nil), http.StatusNotFound)
	expectStatus(t, h.do(t, http.MethodPost, "/api/saves/"+snap.ID+"/load", nil), http.StatusNotFound)
}

func TestExport(t *testing.T) {
	h := newHarness(t, nil)
	snap := h.createStory(t)

	rec := h.do(t, http.MethodGet, "/api/stories/"+snap.ID+"/export?format=md", nil)
	expectStatus(t, rec, http.StatusOK)
	if !strings.HasPrefix(rec.Body.String(), "# The Road\n") || !strings.Contains(rec.Body.String(), "## Chapter 1") {
		t.Errorf("markdown = %q", rec.Body.String())
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "the-road.md") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	rec = h.do(t, http.MethodGet, "/api/stories/"+snap.ID+"/export?format=docx", nil)
	expectStatus(t, rec, http.StatusOK)
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "application/vnd.openxmlformats") || rec.Body.Len() == 0 {
		t.Errorf("docx export: %s, %d bytes", rec.Header().Get("Content-Type"), rec.Body.Len())
	}

	expectStatus(t, h.do(t, http.MethodGet, "/api/stories/"+snap.ID+"/export?format=epub", nil), http.StatusBadRequest)
}

func TestLLMStats(t *testing.T) {
	h := newHarness(t, nil)
	h.createStory(t)

	stats := decode[struct {
		Model string                 `json:"model"`
		Stats generate.StatsSnapshot `json:"stats"`
	}](t, h.do(t, http.MethodGet, "/api/stats/llm", nil))
	if stats.Model != "mock" || stats.Stats.Count != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestWriteErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{session.ErrNotFound, http.StatusNotFound},
		{store.ErrNotFound, http.StatusNotFound},
		{session.ErrBusy, http.StatusConflict},
		{fmt.Errorf("wrapped: %w", session.ErrInvalidTransition), http.StatusConflict},
		{session.ErrStoryEnded, http.StatusConflict},
		{session.ErrUnknownChoice, http.StatusUnprocessableEntity},
		{pipeline.ErrQueueFull, http.StatusServiceUnavailable},
		{pipeline.ErrStopped, http.StatusServiceUnavailable},
		{&generate.GenerationError{Attempts: 4, Err: errors.New("boom")}, http.StatusBadGateway},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tt.err)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestStoryWebSocket(t *testing.T) {
	h := newHarness(t, nil)
	snap := h.importStory(t, "dark.txt", longManuscript())

	ts := httptest.NewServer(h.srv)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/stories/" + snap.ID + "?token=" + testKey
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	read := func() wsMessage {
		t.Helper()
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		return msg
	}

	if msg := read(); msg.Type != "session" || msg.Session == nil || msg.Session.ID != snap.ID {
		t.Fatalf("first message = %+v", msg)
	}

	if err := conn.WriteJSON(wsAction{Action: "next"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := read(); msg.Session == nil || msg.Session.Spread.LeftIndex != 2 {
		t.Errorf("after next = %+v", msg)
	}

	if err := conn.WriteJSON(wsAction{Action: "fly"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := read(); msg.Type != "error" {
		t.Errorf("expected error message, got %+v", msg)
	}
}

func TestWebSocketRequiresToken(t *testing.T) {
	h := newHarness(t, nil)
	snap := h.importStory(t, "dark.txt", longManuscript())

	rec := httptest.NewRecorder()
	h.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/stories/"+snap.ID, nil))
	expectStatus(t, rec, http.StatusUnauthorized)
}
