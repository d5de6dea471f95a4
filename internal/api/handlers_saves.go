package api

import (
	"errors"
	"net/http"

	"github.com/dgallion1/folio/internal/session"
	"github.com/dgallion1/folio/internal/store"
	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
)

type saveListing struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Genre     string `json:"genre"`
	Mode      string `json:"mode"`
	Fragments int    `json:"fragments"`
	SavedAgo  string `json:"saved_ago"`
	Live      bool   `json:"live"`
}

// handleListSaves lists saved stories, most recent first.
func (s *Server) handleListSaves(w http.ResponseWriter, r *http.Request) {
	sums, err := s.store.List()
	if err != nil {
		jsonError(w, "failed to list saves: "+err.Error(), http.StatusInternalServerError)
		return
	}
	saves := make([]saveListing, 0, len(sums))
	for _, sum := range sums {
		_, liveErr := s.orchestrator.Sessions().Get(sum.ID)
		saves = append(saves, saveListing{
			ID:        sum.ID,
			Title:     sum.Title,
			Genre:     sum.Genre,
			Mode:      string(sum.Mode),
			Fragments: sum.Fragments,
			SavedAgo:  humanize.Time(sum.UpdatedAt),
			Live:      liveErr == nil,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"saves": saves})
}

// handleLoadSave reopens a saved story at its last spread, replacing any
// idle live copy.
func (s *Server) handleLoadSave(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if live, err := s.orchestrator.Sessions().Get(id); err == nil && live.InFlight() {
		writeError(w, session.ErrBusy)
		return
	}
	rec, err := s.store.Load(id)
	if err != nil {
		writeError(w, err)
		return
	}
	sess := session.FromRecord(rec, s.layout(), s.cfg.ContextFragments)
	s.orchestrator.Sessions().Put(sess)
	s.hub.Publish(sess)
	s.log.Info("save loaded", "session_id", id, "fragments", len(rec.Fragments))
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleDeleteSave(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.Delete(id); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.Warn("delete save", "session_id", id, "error", err)
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}
