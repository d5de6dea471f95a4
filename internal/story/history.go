package story

// History is the append-only narrative log. The zero value is an empty history.
// Append never touches the receiver's backing array, so a History handed to a
// reader stays stable while the writer keeps appending.
type History struct {
	fragments []Fragment
}

// NewHistory builds a history from fragments in narrative order.
func NewHistory(fragments ...Fragment) History {
	var h History
	for _, f := range fragments {
		h = h.Append(f)
	}
	return h
}

// Append returns a new history with f at the end.
func (h History) Append(f Fragment) History {
	next := make([]Fragment, len(h.fragments), len(h.fragments)+1)
	copy(next, h.fragments)
	f.Choices = append([]Choice(nil), f.Choices...)
	f.CharacterUpdates = append([]CharacterUpdate(nil), f.CharacterUpdates...)
	return History{fragments: append(next, f)}
}

func (h History) Len() int { return len(h.fragments) }

// At returns the i-th fragment.
func (h History) At(i int) Fragment { return h.fragments[i] }

// Last returns the most recent fragment, if any.
func (h History) Last() (Fragment, bool) {
	if len(h.fragments) == 0 {
		return Fragment{}, false
	}
	return h.fragments[len(h.fragments)-1], true
}

// Fragments returns a copy of the log.
func (h History) Fragments() []Fragment {
	out := make([]Fragment, len(h.fragments))
	copy(out, h.fragments)
	return out
}

// Recent returns up to n fragments from the end of the log, oldest first.
func (h History) Recent(n int) []Fragment {
	if n <= 0 {
		return nil
	}
	start := len(h.fragments) - n
	if start < 0 {
		start = 0
	}
	out := make([]Fragment, len(h.fragments)-start)
	copy(out, h.fragments[start:])
	return out
}

// StatsHistory returns the stats of every fragment in order.
func (h History) StatsHistory() []Stats {
	out := make([]Stats, len(h.fragments))
	for i, f := range h.fragments {
		out[i] = f.Stats
	}
	return out
}
