package jobs

import (
	"selfiebot/pkg/domain"
)

// Default stream names.
const (
	QueueImage    = "selfiebot:image"
	QueueReminder = "selfiebot:reminder"
	QueueFace     = "selfiebot:face"
)

// ImageJob asks a worker to edit the base image of photo IndexNumber.
type ImageJob struct {
	UserID      string      `json:"userId"`
	IndexNumber int         `json:"indexNumber"`
	Mode        domain.Mode `json:"mode"`
	BasePath    string      `json:"basePath"`
	Instruction string      `json:"instruction"`
}

// Base is the image an edit is applied to.
type Base struct {
	IndexNumber int
	Path        string
	FromVariant bool
}

// PhotoLookup is the part of the session store used to resolve a base image.
type PhotoLookup interface {
	GetPhotoByIndex(userID string, index int) (domain.Photo, bool, error)
	LatestPhoto(userID string) (domain.Photo, bool, error)
	LatestVariant(photoID string) (domain.Variant, bool, error)
}

// ResolveBase picks the base image for the next edit.
//
// Without a base selection the latest upload is used. Result(N) uses the newest
// variant of photo N, or its original when none exists yet. Original(N) always
// uses photo N's original. A selection pointing at a missing photo falls back to
// the latest upload. ok is false when the user has no photos at all.
func ResolveBase(st PhotoLookup, userID string, submenu domain.Submenu) (Base, bool, error) {
	if submenu.Base != domain.BaseNone && submenu.Index > 0 {
		photo, found, err := st.GetPhotoByIndex(userID, submenu.Index)
		if err != nil {
			return Base{}, false, err
		}
		if found {
			if submenu.Base == domain.BaseResult {
				v, ok, err := st.LatestVariant(photo.ID)
				if err != nil {
					return Base{}, false, err
				}
				if ok {
					return Base{IndexNumber: photo.IndexNumber, Path: v.ResultPath, FromVariant: true}, true, nil
				}
			}
			return Base{IndexNumber: photo.IndexNumber, Path: photo.Path}, true, nil
		}
	}
	latest, ok, err := st.LatestPhoto(userID)
	if err != nil || !ok {
		return Base{}, false, err
	}
	return Base{IndexNumber: latest.IndexNumber, Path: latest.Path}, true, nil
}
