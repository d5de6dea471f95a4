// Package session holds the live state of one story being read.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgallion1/folio/internal/book"
	"github.com/dgallion1/folio/internal/generate"
	"github.com/dgallion1/folio/internal/navigator"
	"github.com/dgallion1/folio/internal/paginator"
	"github.com/dgallion1/folio/internal/store"
	"github.com/dgallion1/folio/internal/story"
)

var (
	ErrBusy          = errors.New("a generation is already in flight")
	ErrUnknownChoice = errors.New("unknown choice")
	ErrStoryEnded    = errors.New("story has ended")
	ErrStaleTurn     = errors.New("turn is no longer in flight")
	ErrNotFound      = errors.New("session not found")
)

// Options configure a new session.
type Options struct {
	ID      string
	Title   string
	Genre   string
	Premise string
	Mode    story.Mode
	Layout  paginator.Config
	// ContextFragments is how many recent fragments go into each prompt.
	ContextFragments int
}

// Session is one story being read. Pages are re-derived from the full
// history whenever it grows or the mode changes. All methods are safe for
// concurrent use.
type Session struct {
	mu sync.Mutex

	id        string
	title     string
	genre     string
	premise   string
	createdAt time.Time
	updatedAt time.Time

	mode       story.Mode
	layout     paginator.Config
	contextN   int
	history    story.History
	characters []story.Character

	pages []book.Page
	nav   *navigator.Navigator

	view     View
	inFlight *Turn
	before   View // view to return to when the in-flight turn fails
	lastErr  string
}

// Turn is a generation request captured at submission time.
type Turn struct {
	Seq    int // history length when the turn was submitted
	System string
	Input  generate.TurnInput
}

// New creates a session on the menu view with an empty history.
func New(opts Options) *Session {
	if opts.Mode == "" {
		opts.Mode = story.ModeFreeChoice
	}
	if opts.ContextFragments <= 0 {
		opts.ContextFragments = 6
	}
	now := time.Now().UTC()
	s := &Session{
		id:        opts.ID,
		title:     opts.Title,
		genre:     opts.Genre,
		premise:   opts.Premise,
		createdAt: now,
		updatedAt: now,
		mode:      opts.Mode,
		layout:    opts.Layout,
		contextN:  opts.ContextFragments,
		view:      ViewMenu,
		nav:       navigator.New(0),
	}
	s.repaginateLocked()
	return s
}

// FromRecord restores a saved session onto the game view.
func FromRecord(rec store.Record, layout paginator.Config, contextFragments int) *Session {
	s := New(Options{
		ID:               rec.ID,
		Title:            rec.Title,
		Genre:            rec.Genre,
		Premise:          rec.Premise,
		Mode:             rec.Mode,
		Layout:           layout,
		ContextFragments: contextFragments,
	})
	if !rec.CreatedAt.IsZero() {
		s.createdAt = rec.CreatedAt
	}
	s.history = story.NewHistory(rec.Fragments...)
	s.characters = append([]story.Character(nil), rec.Characters...)
	s.repaginateLocked()
	s.nav.OnHistoryGrowth(len(s.pages), story.ModeFreeChoice)
	s.view = ViewGame
	return s
}

func (s *Session) ID() string { return s.id }

// Record captures the persistent part of the session.
func (s *Session) Record() store.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return store.Record{
		ID:           s.id,
		Title:        s.title,
		Genre:        s.genre,
		Premise:      s.premise,
		Mode:         s.mode,
		CreatedAt:    s.createdAt,
		UpdatedAt:    s.updatedAt,
		Fragments:    s.history.Fragments(),
		Characters:   append([]story.Character(nil), s.characters...),
		StatsHistory: s.history.StatsHistory(),
	}
}

// History returns the current append-only history.
func (s *Session) History() story.History {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history
}

// Title returns the story title.
func (s *Session) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

// UpdatedAt is the time of the last state change.
func (s *Session) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// SetView moves to another view if the flow allows it.
func (s *Session) SetView(v View) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v == ViewLoading || s.view == ViewLoading {
		return fmt.Errorf("%w: %s → %s is driven by generation", ErrInvalidTransition, s.view, v)
	}
	if v == s.view {
		return nil
	}
	if !CanTransition(s.view, v) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, s.view, v)
	}
	if v == ViewGame && s.history.Len() == 0 {
		return fmt.Errorf("%w: no story to show", ErrInvalidTransition)
	}
	s.view = v
	s.touchLocked()
	return nil
}

// Seed appends a fragment that did not come from the generator, such as an
// imported manuscript, and opens the book at its first spread.
func (s *Session) Seed(f story.Fragment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight != nil {
		return ErrBusy
	}
	if err := f.Validate(); err != nil {
		return err
	}
	s.appendLocked(f)
	s.nav.JumpTo(0)
	s.view = ViewGame
	return nil
}

// BeginTurn reserves the single generation slot and captures the prompt
// input against the current history. choiceID selects one of the latest
// fragment's choices; it may be empty for the opening turn and in
// full-generation mode.
func (s *Session) BeginTurn(choiceID string) (Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inFlight != nil {
		return Turn{}, ErrBusy
	}

	var choice *story.Choice
	if last, ok := s.history.Last(); ok {
		if last.Ending() {
			return Turn{}, ErrStoryEnded
		}
		c, found := last.Choice(choiceID)
		switch {
		case found:
			choice = &c
		case choiceID == "" && s.mode == story.ModeFullGeneration:
		default:
			return Turn{}, fmt.Errorf("%w: %q", ErrUnknownChoice, choiceID)
		}
	}

	if !CanTransition(s.view, ViewLoading) {
		return Turn{}, fmt.Errorf("%w: cannot generate from %s", ErrInvalidTransition, s.view)
	}

	turn := Turn{
		Seq:    s.history.Len(),
		System: generate.SystemInstruction(s.genre, s.mode),
		Input: generate.TurnInput{
			Title:      s.title,
			Genre:      s.genre,
			Premise:    s.premise,
			Recent:     s.history.Recent(s.contextN),
			Characters: append([]story.Character(nil), s.characters...),
			Choice:     choice,
		},
	}
	s.before = s.view
	s.view = ViewLoading
	s.inFlight = &turn
	s.lastErr = ""
	s.touchLocked()
	return turn, nil
}

// CompleteTurn appends the generated fragment and lands the reader on the
// right spread for the current mode.
func (s *Session) CompleteTurn(turn Turn, f story.Fragment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight == nil || s.inFlight.Seq != turn.Seq {
		return ErrStaleTurn
	}
	s.inFlight = nil
	if err := f.Validate(); err != nil {
		s.view = s.before
		s.lastErr = err.Error()
		return fmt.Errorf("%w: %v", generate.ErrMalformedResponse, err)
	}
	s.appendLocked(f)
	s.view = ViewGame
	return nil
}

// FailTurn releases the generation slot and leaves the story untouched so
// the reader can retry the same choice.
func (s *Session) FailTurn(turn Turn, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight == nil || s.inFlight.Seq != turn.Seq {
		return ErrStaleTurn
	}
	s.inFlight = nil
	s.view = s.before
	s.lastErr = err.Error()
	s.touchLocked()
	return nil
}

// InFlight reports whether a generation is pending.
func (s *Session) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight != nil
}

func (s *Session) appendLocked(f story.Fragment) {
	s.history = s.history.Append(f)
	s.characters = story.MergeCharacters(s.characters, f.CharacterUpdates)
	s.repaginateLocked()
	if s.history.Len() == 1 && s.mode == story.ModeFullGeneration {
		s.nav.JumpTo(0)
	} else {
		s.nav.OnHistoryGrowth(len(s.pages), s.mode)
	}
	s.touchLocked()
}

// SetMode switches between free choice and full generation and re-lays
// the book out, since illustration pages depend on the mode.
func (s *Session) SetMode(m story.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m == s.mode {
		return
	}
	s.mode = m
	s.repaginateLocked()
	s.touchLocked()
}

func (s *Session) repaginateLocked() {
	cfg := s.layout
	cfg.Mode = s.mode
	s.pages = paginator.Paginate(s.history.Fragments(), cfg)
	s.nav.Resize(len(s.pages))
}

func (s *Session) touchLocked() {
	s.updatedAt = time.Now().UTC()
}

// Advance turns one spread forward.
func (s *Session) Advance() Spread {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nav.Advance() {
		s.touchLocked()
	}
	return s.spreadLocked()
}

// Retreat turns one spread back.
func (s *Session) Retreat() Spread {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nav.Retreat() {
		s.touchLocked()
	}
	return s.spreadLocked()
}

// JumpTo opens the spread containing the page at index.
func (s *Session) JumpTo(index int) Spread {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := s.nav.Left()
	s.nav.JumpTo(index)
	if s.nav.Left() != before {
		s.touchLocked()
	}
	return s.spreadLocked()
}

// Spread returns the open spread.
func (s *Session) Spread() Spread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spreadLocked()
}

// Pages returns a copy of the laid-out book.
func (s *Session) Pages() []book.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]book.Page(nil), s.pages...)
}

// Bookmarks lists chapter starts.
func (s *Session) Bookmarks() []book.Bookmark {
	s.mu.Lock()
	defer s.mu.Unlock()
	return paginator.Bookmarks(s.pages)
}

// Spread is the pair of pages on screen.
type Spread struct {
	LeftIndex int        `json:"leftIndex"`
	PageCount int        `json:"pageCount"`
	Left      *book.Page `json:"left"`
	Right     *book.Page `json:"right"`
	DropCap   string     `json:"dropCap,omitempty"`
	AtStart   bool       `json:"atStart"`
	AtEnd     bool       `json:"atEnd"`
}

func (s *Session) spreadLocked() Spread {
	sp := Spread{LeftIndex: s.nav.Left(), PageCount: len(s.pages)}
	l, r := s.nav.Spread()
	if l >= 0 {
		p := s.pages[l]
		sp.Left = &p
		sp.DropCap = p.DropCap()
	}
	if r >= 0 {
		p := s.pages[r]
		sp.Right = &p
		if sp.DropCap == "" {
			sp.DropCap = p.DropCap()
		}
	}
	sp.AtStart = sp.LeftIndex == 0
	sp.AtEnd = len(s.pages) == 0 || sp.LeftIndex >= len(s.pages)-2
	return sp
}

// Snapshot is a JSON-safe view of the session.
type Snapshot struct {
	ID         string            `json:"id"`
	Title      string            `json:"title"`
	Genre      string            `json:"genre"`
	Mode       story.Mode        `json:"mode"`
	View       View              `json:"view"`
	Loading    bool              `json:"loading"`
	LastError  string            `json:"lastError,omitempty"`
	Fragments  int               `json:"fragments"`
	Ended      bool              `json:"ended"`
	Characters []story.Character `json:"characters"`
	Stats      story.Stats       `json:"stats"`
	Choices    []story.Choice    `json:"choices"`
	Spread     Spread            `json:"spread"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// Snapshot returns a JSON-safe copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		ID:         s.id,
		Title:      s.title,
		Genre:      s.genre,
		Mode:       s.mode,
		View:       s.view,
		Loading:    s.inFlight != nil,
		LastError:  s.lastErr,
		Fragments:  s.history.Len(),
		Characters: append([]story.Character{}, s.characters...),
		Choices:    []story.Choice{},
		Spread:     s.spreadLocked(),
		CreatedAt:  s.createdAt,
		UpdatedAt:  s.updatedAt,
	}
	if last, ok := s.history.Last(); ok {
		snap.Ended = last.Ending()
		snap.Stats = last.Stats
		snap.Choices = append(snap.Choices, last.Choices...)
	}
	return snap
}
