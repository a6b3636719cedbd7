package scholar

// TitleSet tracks normalized titles already accepted for a job. A set is
// owned by a single harvest goroutine; it is not safe for concurrent use.
type TitleSet struct {
	seen map[string]struct{}
}

// NewTitleSet returns an empty set.
func NewTitleSet() *TitleSet {
	return &TitleSet{seen: make(map[string]struct{})}
}

// MarkIfNew records the title and reports true the first time it is seen.
// Empty titles are never new.
func (t *TitleSet) MarkIfNew(title string) bool {
	key := NormalizeTitle(title)
	if key == "" {
		return false
	}
	if _, ok := t.seen[key]; ok {
		return false
	}
	t.seen[key] = struct{}{}
	return true
}

// Len returns the number of distinct titles seen.
func (t *TitleSet) Len() int {
	return len(t.seen)
}
