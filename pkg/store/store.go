package store

import (
	"errors"
	"time"

	"selfiebot/pkg/domain"
)

// ErrInvalidState is returned when a session write carries an unknown state.
var ErrInvalidState = errors.New("invalid session state")

// Store defines persistence operations for sessions, photos, variants and prompt logs.
type Store interface {
	// sessions
	GetOrCreateSession(userID string) (domain.Session, error)
	GetSession(userID string) (domain.Session, bool, error)
	SetSession(userID string, state domain.State, submenu domain.Submenu) error
	SetPaginationOffset(userID string, offset int) error
	TouchLastText(userID string, at time.Time) error

	// photos
	NextPhotoIndex(userID string) (int, error)
	CreatePhoto(domain.Photo) (domain.Photo, error)
	GetPhotoByIndex(userID string, index int) (domain.Photo, bool, error)
	LatestPhoto(userID string) (domain.Photo, bool, error)

	// variants
	CreateVariant(domain.Variant) (domain.Variant, error)
	LatestVariant(photoID string) (domain.Variant, bool, error)

	// audit
	AppendPromptLog(domain.PromptLog) error

	// DeleteUserData removes the user with its session, photos, variants and prompt logs.
	DeleteUserData(userID string) error
}
