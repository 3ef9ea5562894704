package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// BaseSelection tells which image the next edit is applied to.
type BaseSelection string

const (
	BaseNone     BaseSelection = ""
	BaseOriginal BaseSelection = "ORIGINAL"
	BaseResult   BaseSelection = "RESULT"
)

// Submenu carries the sub-choice of the current state.
//
// Index is the photo index referenced either by the base selection or, in
// RESULT_MENU, by the result that was just delivered. Choice is the lettered
// detail option picked in a mode-detail state.
type Submenu struct {
	Base   BaseSelection `json:"base,omitempty"`
	Index  int           `json:"index,omitempty"`
	Choice string        `json:"choice,omitempty"`
}

// ResultMarker is the submenu stored with RESULT_MENU after a result for index is sent.
func ResultMarker(index int) Submenu {
	return Submenu{Index: index}
}

// IsZero reports whether nothing is selected.
func (s Submenu) IsZero() bool {
	return s.Base == BaseNone && s.Index == 0 && s.Choice == ""
}

// KeepBase drops everything except the base-image selection.
func (s Submenu) KeepBase() Submenu {
	if s.Base == BaseNone {
		return Submenu{}
	}
	return Submenu{Base: s.Base, Index: s.Index}
}

// WithChoice records a detail letter, preserving the base selection.
func (s Submenu) WithChoice(letter string) Submenu {
	out := s.KeepBase()
	out.Choice = strings.ToLower(strings.TrimSpace(letter))
	return out
}

// WithBase selects the base image for index.
func (s Submenu) WithBase(base BaseSelection, index int) Submenu {
	return Submenu{Base: base, Index: index}
}

// String renders the tag form, e.g. "BASE:RESULT;IDX:0007;a".
func (s Submenu) String() string {
	parts := make([]string, 0, 3)
	if s.Base != BaseNone {
		parts = append(parts, "BASE:"+string(s.Base))
	}
	if s.Index > 0 {
		parts = append(parts, fmt.Sprintf("IDX:%04d", s.Index))
	}
	if s.Choice != "" {
		parts = append(parts, s.Choice)
	}
	return strings.Join(parts, ";")
}

// ParseSubmenu reads the tag form produced by String. Unknown segments are ignored.
func ParseSubmenu(raw string) Submenu {
	var out Submenu
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		switch {
		case part == "":
		case strings.HasPrefix(part, "BASE:"):
			switch BaseSelection(strings.TrimPrefix(part, "BASE:")) {
			case BaseOriginal:
				out.Base = BaseOriginal
			case BaseResult:
				out.Base = BaseResult
			}
		case strings.HasPrefix(part, "IDX:"):
			if n, err := strconv.Atoi(strings.TrimPrefix(part, "IDX:")); err == nil && n > 0 {
				out.Index = n
			}
		case len(part) == 1:
			out.Choice = strings.ToLower(part)
		}
	}
	return out
}
