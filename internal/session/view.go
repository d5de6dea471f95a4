package session

import (
	"errors"
	"fmt"
)

// View is the screen the reader is on.
type View string

const (
	ViewMenu       View = "menu"
	ViewGenre      View = "genre"
	ViewCharacters View = "characters"
	ViewLoading    View = "loading"
	ViewGame       View = "game"
)

// ErrInvalidTransition is returned for a view change the flow does not allow.
var ErrInvalidTransition = errors.New("invalid view transition")

// transitions lists the views reachable from each view. Loading is entered
// and left only through the turn lifecycle.
var transitions = map[View][]View{
	ViewMenu:       {ViewGenre, ViewGame},
	ViewGenre:      {ViewMenu, ViewCharacters},
	ViewCharacters: {ViewGenre, ViewLoading},
	ViewLoading:    {ViewGame, ViewCharacters},
	ViewGame:       {ViewMenu, ViewLoading},
}

// CanTransition reports whether from → to is allowed.
func CanTransition(from, to View) bool {
	for _, v := range transitions[from] {
		if v == to {
			return true
		}
	}
	return false
}

// ParseView validates a view name.
func ParseView(s string) (View, error) {
	v := View(s)
	if _, ok := transitions[v]; !ok {
		return "", fmt.Errorf("unknown view %q", s)
	}
	return v, nil
}
