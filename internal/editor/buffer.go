package editor

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrNotFound is returned when a search string does not occur in the buffer.
var ErrNotFound = errors.New("text not found")

// Buffer is markdown text under edit, tracking the spans changed since the
// last ResetHighlights. Safe for concurrent use.
type Buffer struct {
	mu         sync.Mutex
	text       string
	highlights []HighlightRange
}

// NewBuffer creates a buffer holding text.
func NewBuffer(text string) *Buffer {
	return &Buffer{text: text}
}

// Text returns the current contents.
func (b *Buffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text
}

// Highlights returns the ranges edited since the last reset, in edit order.
func (b *Buffer) Highlights() []HighlightRange {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]HighlightRange, len(b.highlights))
	copy(out, b.highlights)
	return out
}

// ResetHighlights forgets recorded edits.
func (b *Buffer) ResetHighlights() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.highlights = nil
}

// Replace substitutes the first occurrence of search and returns the range
// now covered by replacement.
func (b *Buffer) Replace(search, replacement string) (HighlightRange, error) {
	if search == "" {
		return HighlightRange{}, fmt.Errorf("search text is empty")
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := strings.Index(b.text, search)
	if idx < 0 {
		return HighlightRange{}, fmt.Errorf("%w: %q", ErrNotFound, search)
	}
	return b.edit(idx, idx+len(search), replacement), nil
}

// Insert places text at a UTF-16 offset.
func (b *Buffer) Insert(offset int, text string) (HighlightRange, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx, err := byteOffset(b.text, offset)
	if err != nil {
		return HighlightRange{}, err
	}
	return b.edit(idx, idx, text), nil
}

// Append adds text at the end.
func (b *Buffer) Append(text string) HighlightRange {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.edit(len(b.text), len(b.text), text)
}

// SetText replaces the whole contents. Earlier highlights are dropped.
func (b *Buffer) SetText(text string) HighlightRange {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text = text
	r := HighlightRange{Start: 0, End: Len16(text)}
	b.highlights = []HighlightRange{r}
	return r
}

// edit replaces bytes [from, to) with text and records the new span.
// Recorded spans after the edit shift; spans overlapping it merge into it.
func (b *Buffer) edit(from, to int, text string) HighlightRange {
	start := Len16(b.text[:from])
	oldEnd := start + Len16(b.text[from:to])
	delta := Len16(text) - (oldEnd - start)

	r := HighlightRange{Start: start, End: start + Len16(text)}
	kept := b.highlights[:0]
	for _, h := range b.highlights {
		switch {
		case h.End <= start:
			kept = append(kept, h)
		case h.Start >= oldEnd:
			kept = append(kept, HighlightRange{Start: h.Start + delta, End: h.End + delta})
		default:
			r.Start = min(r.Start, h.Start)
			r.End = max(r.End, h.End+delta)
		}
	}
	b.highlights = append(kept, r)
	b.text = b.text[:from] + text + b.text[to:]
	return r
}
