package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/dgallion1/folio/internal/book"
	"github.com/dgallion1/folio/internal/export"
	"github.com/dgallion1/folio/internal/manuscript"
	"github.com/dgallion1/folio/internal/session"
	"github.com/dgallion1/folio/internal/story"
	"github.com/google/uuid"
)

type createStoryRequest struct {
	Title   string `json:"title"`
	Genre   string `json:"genre"`
	Premise string `json:"premise"`
	Mode    string `json:"mode"`
}

// handleCreateStory starts a story and queues its opening fragment.
func (s *Server) handleCreateStory(w http.ResponseWriter, r *http.Request) {
	var req createStoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Genre = strings.TrimSpace(req.Genre)
	if req.Genre == "" {
		jsonError(w, "genre is required", http.StatusBadRequest)
		return
	}
	mode, err := story.ParseMode(req.Mode)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "Untitled " + req.Genre
	}

	sess := session.New(session.Options{
		ID:               uuid.NewString(),
		Title:            title,
		Genre:            req.Genre,
		Premise:          strings.TrimSpace(req.Premise),
		Mode:             mode,
		Layout:           s.layout(),
		ContextFragments: s.cfg.ContextFragments,
	})
	for _, v := range []session.View{session.ViewGenre, session.ViewCharacters} {
		if err := sess.SetView(v); err != nil {
			writeError(w, err)
			return
		}
	}
	turn, err := sess.BeginTurn("")
	if err != nil {
		writeError(w, err)
		return
	}
	s.orchestrator.Sessions().Put(sess)
	s.log.Info("story created", "session_id", sess.ID(), "genre", req.Genre, "mode", mode)
	s.submit(w, sess, turn)
}

// handleImportStory opens an uploaded manuscript as the first fragment of
// a new story.
func (s *Server) handleImportStory(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if !manuscript.IsSupportedExtension(filename) {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}

	mode, err := story.ParseMode(r.FormValue("mode"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	reader, err := manuscript.ForFile(filename, manuscript.Options{PDFFallbackPdftotext: s.cfg.PDFFallbackPdftotext})
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	m, err := reader.Read(bytes.NewReader(data), filename)
	if err != nil {
		jsonError(w, "could not read manuscript: "+err.Error(), http.StatusUnprocessableEntity)
		return
	}
	if strings.TrimSpace(m.Content()) == "" {
		jsonError(w, "manuscript has no text", http.StatusUnprocessableEntity)
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		title = m.Title
	}
	sess := session.New(session.Options{
		ID:               uuid.NewString(),
		Title:            title,
		Genre:            strings.TrimSpace(r.FormValue("genre")),
		Premise:          strings.TrimSpace(r.FormValue("premise")),
		Mode:             mode,
		Layout:           s.layout(),
		ContextFragments: s.cfg.ContextFragments,
	})
	f := m.Fragment(uuid.NewString())
	if err := sess.Seed(f); err != nil {
		writeError(w, err)
		return
	}
	s.orchestrator.Sessions().Put(sess)
	s.log.Info("manuscript imported",
		"session_id", sess.ID(),
		"filename", filename,
		"chapters", len(m.Chapters),
		"pages", len(sess.Pages()),
	)
	w.Header().Set("Location", "/api/stories/"+sess.ID())
	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

func (s *Server) handleGetStory(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handlePages(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	pages := sess.Pages()
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(pages),
		"pages": pages,
	})
}

func (s *Server) handleSpread(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Spread())
}

func (s *Server) handleSpreadNext(w http.ResponseWriter, r *http.Request) {
	s.turnPage(w, r, (*session.Session).Advance)
}

func (s *Server) handleSpreadPrev(w http.ResponseWriter, r *http.Request) {
	s.turnPage(w, r, (*session.Session).Retreat)
}

func (s *Server) turnPage(w http.ResponseWriter, r *http.Request, move func(*session.Session) session.Spread) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	sp := move(sess)
	s.hub.Publish(sess)
	writeJSON(w, http.StatusOK, sp)
}

type jumpRequest struct {
	Index *int `json:"index"`
}

func (s *Server) handleSpreadJump(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req jumpRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Index == nil {
		jsonError(w, "index is required", http.StatusBadRequest)
		return
	}
	sp := sess.JumpTo(*req.Index)
	s.hub.Publish(sess)
	writeJSON(w, http.StatusOK, sp)
}

func (s *Server) handleBookmarks(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	marks := sess.Bookmarks()
	if marks == nil {
		marks = []book.Bookmark{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookmarks": marks})
}

type chooseRequest struct {
	ChoiceID string `json:"choiceId"`
}

// handleChoose queues the fragment that follows the reader's choice.
func (s *Server) handleChoose(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req chooseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ChoiceID == "" {
		jsonError(w, "choiceId is required", http.StatusBadRequest)
		return
	}
	turn, err := sess.BeginTurn(req.ChoiceID)
	if err != nil {
		writeError(w, err)
		return
	}
	s.submit(w, sess, turn)
}

// handleContinue queues the next fragment without a choice, as
// full-generation mode reads.
func (s *Server) handleContinue(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	turn, err := sess.BeginTurn("")
	if err != nil {
		writeError(w, err)
		return
	}
	s.submit(w, sess, turn)
}

func (s *Server) submit(w http.ResponseWriter, sess *session.Session, turn session.Turn) {
	if err := s.orchestrator.Submit(sess, turn); err != nil {
		s.hub.Publish(sess)
		writeError(w, err)
		return
	}
	s.hub.Publish(sess)
	w.Header().Set("Location", "/api/stories/"+sess.ID())
	writeJSON(w, http.StatusAccepted, sess.Snapshot())
}

type modeRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req modeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	mode, err := story.ParseMode(req.Mode)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	sess.SetMode(mode)
	s.hub.Publish(sess)
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

type viewRequest struct {
	View string `json:"view"`
}

func (s *Server) handleSetView(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req viewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	v, err := session.ParseView(req.View)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := sess.SetView(v); err != nil {
		writeError(w, err)
		return
	}
	s.hub.Publish(sess)
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// handleSave persists the session so it can be reopened later.
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	rec := sess.Record()
	if len(rec.Fragments) == 0 {
		jsonError(w, "nothing to save yet", http.StatusConflict)
		return
	}
	if err := s.store.Save(rec); err != nil {
		s.log.Error("save failed", "session_id", rec.ID, "error", err)
		jsonError(w, "failed to save: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":          rec.ID,
		"title":       rec.Title,
		"fragments":   len(rec.Fragments),
		"updatedDate": rec.UpdatedAt,
	})
}

// handleExport downloads the story as one continuous document.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	title := sess.Title()
	var buf bytes.Buffer
	if err := export.Write(&buf, format, title, sess.History().Fragments()); err != nil {
		s.log.Error("export failed", "session_id", sess.ID(), "format", format, "error", err)
		jsonError(w, "export failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.Filename(title, format)))
	w.Write(buf.Bytes())
}
