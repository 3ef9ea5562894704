package domain

import (
	"strings"
	"time"
)

// State is the conversational state of a user session.
type State string

const (
	StateTopMenu    State = "TOP_MENU"
	StateMenu       State = "MENU"
	StateRealism    State = "realism"
	StateStylize    State = "stylize"
	StateScene      State = "scene"
	StateResultMenu State = "RESULT_MENU"
)

// States lists every valid session state.
var States = []State{StateTopMenu, StateMenu, StateRealism, StateStylize, StateScene, StateResultMenu}

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	for _, known := range States {
		if s == known {
			return true
		}
	}
	return false
}

// IsDetail reports whether s is one of the mode-detail states.
func (s State) IsDetail() bool {
	return s == StateRealism || s == StateStylize || s == StateScene
}

// Mode is an edit category: 1 realism, 2 stylize, 3 scene.
type Mode int

const (
	ModeRealism Mode = 1
	ModeStylize Mode = 2
	ModeScene   Mode = 3
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m >= ModeRealism && m <= ModeScene
}

// State returns the detail state bound to the mode.
func (m Mode) State() State {
	switch m {
	case ModeRealism:
		return StateRealism
	case ModeStylize:
		return StateStylize
	case ModeScene:
		return StateScene
	default:
		return ""
	}
}

// String returns the category name.
func (m Mode) String() string {
	return string(m.State())
}

// ModeFromState maps a detail state back to its mode. ok is false for non-detail states.
func ModeFromState(s State) (Mode, bool) {
	switch s {
	case StateRealism:
		return ModeRealism, true
	case StateStylize:
		return ModeStylize, true
	case StateScene:
		return ModeScene, true
	default:
		return 0, false
	}
}

// ModeFromDigit parses "1", "2" or "3".
func ModeFromDigit(text string) (Mode, bool) {
	switch strings.TrimSpace(text) {
	case "1":
		return ModeRealism, true
	case "2":
		return ModeStylize, true
	case "3":
		return ModeScene, true
	default:
		return 0, false
	}
}

type User struct {
	ID        string    `json:"id"`
	PhotoSeq  int       `json:"photoSeq"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Session is the per-user conversation record.
type Session struct {
	UserID           string     `json:"userId"`
	State            State      `json:"state"`
	Submenu          Submenu    `json:"submenu"`
	PaginationOffset int        `json:"paginationOffset"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	LastTextAt       *time.Time `json:"lastTextAt,omitempty"`
}

// Photo is one uploaded original.
type Photo struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	IndexNumber int       `json:"indexNumber"`
	Path        string    `json:"path"`
	MimeType    string    `json:"mimeType"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Variant is one generated edit of a photo.
type Variant struct {
	ID         string    `json:"id"`
	PhotoID    string    `json:"photoId"`
	Mode       Mode      `json:"mode"`
	ResultPath string    `json:"resultPath"`
	Prompt     string    `json:"prompt"`
	CreatedAt  time.Time `json:"createdAt"`
}

// PromptLog is an audit record of a summarized edit request.
type PromptLog struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Category    string    `json:"category"`
	RawText     string    `json:"rawText"`
	Instruction string    `json:"instruction"`
	CreatedAt   time.Time `json:"createdAt"`
}

// MessageKind classifies inbound chat messages.
type MessageKind string

const (
	KindImage MessageKind = "image"
	KindText  MessageKind = "text"
	KindOther MessageKind = "other"
)

// InboundEvent is a normalized inbound chat message.
type InboundEvent struct {
	UserID      string
	MessageID   string
	Kind        MessageKind
	Text        string
	DownloadURL string
	MimeType    string
}
