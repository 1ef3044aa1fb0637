package match

import "sync"

// Window is a bounded rolling window of recently recognized words.
// Only final fragments extend it; partials are too unstable to keep.
// Thread-safe for concurrent append and read.
type Window struct {
	mu       sync.Mutex
	words    []string
	maxWords int
}

// NewWindow creates a rolling window holding at most maxWords words.
func NewWindow(maxWords int) *Window {
	if maxWords <= 0 {
		maxWords = 24
	}
	return &Window{maxWords: maxWords}
}

// Append adds the words of a final fragment, evicting the oldest words
// once the window is full.
func (w *Window) Append(text string) {
	toks := Tokens(text)
	if len(toks) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.words = append(w.words, toks...)
	if over := len(w.words) - w.maxWords; over > 0 {
		w.words = append([]string(nil), w.words[over:]...)
	}
}

// Words returns a copy of the current window contents.
func (w *Window) Words() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.words...)
}

// Len returns the number of words currently held.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.words)
}

// Reset clears the window. Called on slide transitions so stale words
// do not re-trigger matches against the new boundary.
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.words = w.words[:0]
}
