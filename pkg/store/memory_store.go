package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"selfiebot/pkg/domain"
)

// MemoryStore keeps bot state in-process for tests and local runs.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]domain.User
	sessions map[string]domain.Session
	photos   map[string][]domain.Photo   // user ID -> photos
	variants map[string][]domain.Variant // photo ID -> variants in insertion order
	prompts  []domain.PromptLog
	now      func() time.Time
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]domain.User),
		sessions: make(map[string]domain.Session),
		photos:   make(map[string][]domain.Photo),
		variants: make(map[string][]domain.Variant),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryStore) ensureUserLocked(userID string) domain.User {
	u, ok := m.users[userID]
	if !ok {
		now := m.now()
		u = domain.User{ID: userID, CreatedAt: now, UpdatedAt: now}
		m.users[userID] = u
	}
	return u
}

// GetOrCreateSession returns the session, creating it in TOP_MENU when missing.
func (m *MemoryStore) GetOrCreateSession(userID string) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureUserLocked(userID)
	sess, ok := m.sessions[userID]
	if !ok {
		sess = domain.Session{UserID: userID, State: domain.StateTopMenu, UpdatedAt: m.now()}
		m.sessions[userID] = sess
	}
	return sess, nil
}

func (m *MemoryStore) GetSession(userID string) (domain.Session, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[userID]
	return sess, ok, nil
}

func (m *MemoryStore) SetSession(userID string, state domain.State, submenu domain.Submenu) error {
	if !state.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidState, state)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[userID]
	if !ok {
		return nil
	}
	sess.State = state
	sess.Submenu = submenu
	sess.UpdatedAt = m.now()
	m.sessions[userID] = sess
	return nil
}

func (m *MemoryStore) SetPaginationOffset(userID string, offset int) error {
	if offset < 0 {
		offset = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[userID]
	if !ok {
		return nil
	}
	sess.PaginationOffset = offset
	sess.UpdatedAt = m.now()
	m.sessions[userID] = sess
	return nil
}

func (m *MemoryStore) TouchLastText(userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[userID]
	if !ok {
		return nil
	}
	at = at.UTC()
	sess.LastTextAt = &at
	sess.UpdatedAt = at
	m.sessions[userID] = sess
	return nil
}

// NextPhotoIndex increments the per-user counter under the store lock.
func (m *MemoryStore) NextPhotoIndex(userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.ensureUserLocked(userID)
	u.PhotoSeq++
	u.UpdatedAt = m.now()
	m.users[userID] = u
	return u.PhotoSeq, nil
}

// CreatePhoto stores an original; an existing photo at the same index is replaced.
func (m *MemoryStore) CreatePhoto(p domain.Photo) (domain.Photo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureUserLocked(p.UserID)
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = m.now()
	}
	list := m.photos[p.UserID]
	for i, existing := range list {
		if existing.IndexNumber == p.IndexNumber {
			p.ID = existing.ID
			list[i] = p
			return p, nil
		}
	}
	m.photos[p.UserID] = append(list, p)
	return p, nil
}

func (m *MemoryStore) GetPhotoByIndex(userID string, index int) (domain.Photo, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.photos[userID] {
		if p.IndexNumber == index {
			return p, true, nil
		}
	}
	return domain.Photo{}, false, nil
}

func (m *MemoryStore) LatestPhoto(userID string) (domain.Photo, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var (
		latest domain.Photo
		found  bool
	)
	for _, p := range m.photos[userID] {
		if !found || p.IndexNumber > latest.IndexNumber {
			latest = p
			found = true
		}
	}
	return latest, found, nil
}

func (m *MemoryStore) CreateVariant(v domain.Variant) (domain.Variant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = m.now()
	}
	m.variants[v.PhotoID] = append(m.variants[v.PhotoID], v)
	return v, nil
}

// LatestVariant returns the newest variant; ties on CreatedAt go to the later insert.
func (m *MemoryStore) LatestVariant(photoID string) (domain.Variant, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.variants[photoID]
	if len(list) == 0 {
		return domain.Variant{}, false, nil
	}
	latest := list[0]
	for _, v := range list[1:] {
		if !v.CreatedAt.Before(latest.CreatedAt) {
			latest = v
		}
	}
	return latest, true, nil
}

func (m *MemoryStore) AppendPromptLog(entry domain.PromptLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = m.now()
	}
	m.prompts = append(m.prompts, entry)
	return nil
}

// PromptLogs returns the audit rows of a user, oldest first.
func (m *MemoryStore) PromptLogs(userID string) []domain.PromptLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.PromptLog, 0)
	for _, p := range m.prompts {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *MemoryStore) DeleteUserData(userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.photos[userID] {
		delete(m.variants, p.ID)
	}
	delete(m.photos, userID)
	delete(m.sessions, userID)
	delete(m.users, userID)
	kept := m.prompts[:0]
	for _, p := range m.prompts {
		if p.UserID != userID {
			kept = append(kept, p)
		}
	}
	m.prompts = kept
	return nil
}
