package editor

import (
	"errors"
	"fmt"
)

// ErrInvalidViewMode is returned for view modes outside the supported set.
var ErrInvalidViewMode = errors.New("invalid view mode")

// ViewMode is the layout of the editing surface.
type ViewMode string

const (
	ViewEditor  ViewMode = "editor"
	ViewSplit   ViewMode = "split"
	ViewPreview ViewMode = "preview"
)

// ViewModes lists every supported view mode.
var ViewModes = []ViewMode{ViewEditor, ViewSplit, ViewPreview}

func (m ViewMode) Valid() bool {
	switch m {
	case ViewEditor, ViewSplit, ViewPreview:
		return true
	}
	return false
}

// ShowsSource reports whether the markdown source is visible in this mode.
func (m ViewMode) ShowsSource() bool {
	return m == ViewEditor || m == ViewSplit
}

// ShowsPreview reports whether the rendered preview is visible in this mode.
func (m ViewMode) ShowsPreview() bool {
	return m == ViewPreview || m == ViewSplit
}

// ParseViewMode converts s to a ViewMode.
func ParseViewMode(s string) (ViewMode, error) {
	m := ViewMode(s)
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidViewMode, s)
	}
	return m, nil
}

func (m *ViewMode) UnmarshalText(text []byte) error {
	parsed, err := ParseViewMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
