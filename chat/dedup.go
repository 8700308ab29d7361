package chat

import lru "github.com/hashicorp/golang-lru/v2"

// DedupWindow remembers the most recent message ids. Once full, the oldest
// id is evicted first: ids are only ever checked and inserted, never read, so
// the LRU order is insertion order.
type DedupWindow struct {
	seen *lru.Cache[string, struct{}]
}

// NewDedupWindow returns a window holding up to size ids (100 when size <= 0).
func NewDedupWindow(size int) *DedupWindow {
	if size <= 0 {
		size = 100
	}
	// lru.New only fails for a non-positive size
	seen, _ := lru.New[string, struct{}](size)
	return &DedupWindow{seen: seen}
}

// Admit records id and reports whether it was new. Empty ids are always
// admitted and never recorded.
func (w *DedupWindow) Admit(id string) bool {
	if id == "" {
		return true
	}
	dup, _ := w.seen.ContainsOrAdd(id, struct{}{})
	return !dup
}

// Contains reports whether id is currently remembered. It does not refresh id.
func (w *DedupWindow) Contains(id string) bool {
	return w.seen.Contains(id)
}

// Len returns the number of remembered ids.
func (w *DedupWindow) Len() int {
	return w.seen.Len()
}
