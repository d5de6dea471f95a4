package story

// Character is a named member of the cast, keyed by Name.
type Character struct {
	Name        string `json:"name"`
	Role        string `json:"role"`
	Affinity    int    `json:"affinity"`
	Status      string `json:"status,omitempty"`
	Description string `json:"description,omitempty"`
}

// CharacterUpdate is a partial character record. Nil fields are absent and
// leave the existing value alone.
type CharacterUpdate struct {
	Name        string  `json:"name"`
	Role        *string `json:"role,omitempty"`
	Affinity    *int    `json:"affinity,omitempty"`
	Status      *string `json:"status,omitempty"`
	Description *string `json:"description,omitempty"`
}

// MergeCharacters applies updates in order and returns the new cast.
// Existing entries get a shallow merge of present fields. Unknown names are
// added only when the update carries a non-empty role and an affinity; anything less
// is dropped. The input slice is not modified.
func MergeCharacters(current []Character, updates []CharacterUpdate) []Character {
	out := make([]Character, len(current), len(current)+len(updates))
	copy(out, current)

	index := make(map[string]int, len(out))
	for i, c := range out {
		index[c.Name] = i
	}

	for _, u := range updates {
		if u.Name == "" {
			continue
		}
		if i, ok := index[u.Name]; ok {
			out[i] = u.apply(out[i])
			continue
		}
		if u.Role == nil || *u.Role == "" || u.Affinity == nil {
			continue
		}
		index[u.Name] = len(out)
		out = append(out, u.apply(Character{Name: u.Name}))
	}
	return out
}

func (u CharacterUpdate) apply(c Character) Character {
	if u.Role != nil {
		c.Role = *u.Role
	}
	if u.Affinity != nil {
		c.Affinity = clampPercent(*u.Affinity)
	}
	if u.Status != nil {
		c.Status = *u.Status
	}
	if u.Description != nil {
		c.Description = *u.Description
	}
	return c
}
