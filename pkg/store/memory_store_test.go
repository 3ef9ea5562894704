package store

import (
	"errors"
	"sync"
	"testing"
	"time"

	"selfiebot/pkg/domain"
)

var _ Store = (*MemoryStore)(nil)
var _ Store = (*GormStore)(nil)

func TestMemoryStoreSessionLifecycle(t *testing.T) {
	s := NewMemoryStore()
	sess, err := s.GetOrCreateSession("79990001122")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if sess.State != domain.StateTopMenu || !sess.Submenu.IsZero() {
		t.Fatalf("unexpected fresh session %+v", sess)
	}

	submenu := domain.Submenu{Base: domain.BaseResult, Index: 2, Choice: "a"}
	if err := s.SetSession("79990001122", domain.StateRealism, submenu); err != nil {
		t.Fatalf("set session: %v", err)
	}
	got, ok, err := s.GetSession("79990001122")
	if err != nil || !ok {
		t.Fatalf("get session: ok=%v err=%v", ok, err)
	}
	if got.State != domain.StateRealism || got.Submenu != submenu {
		t.Fatalf("unexpected session %+v", got)
	}

	if err := s.SetSession("79990001122", domain.State("BOGUS"), domain.Submenu{}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestMemoryStoreTouchLastTextBumpsUpdatedAt(t *testing.T) {
	s := NewMemoryStore()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.SetClock(func() time.Time { return base })
	if _, err := s.GetOrCreateSession("u1"); err != nil {
		t.Fatalf("create: %v", err)
	}
	at := base.Add(30 * time.Second)
	if err := s.TouchLastText("u1", at); err != nil {
		t.Fatalf("touch: %v", err)
	}
	sess, _, _ := s.GetSession("u1")
	if sess.LastTextAt == nil || !sess.LastTextAt.Equal(at) {
		t.Fatalf("last text not recorded: %+v", sess)
	}
	if !sess.UpdatedAt.Equal(at) {
		t.Fatalf("updatedAt = %v, want %v", sess.UpdatedAt, at)
	}
}

func TestMemoryStoreNextPhotoIndexConcurrent(t *testing.T) {
	s := NewMemoryStore()
	const n = 50
	seen := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			idx, err := s.NextPhotoIndex("u1")
			if err != nil {
				t.Errorf("next index: %v", err)
				return
			}
			seen <- idx
		}()
	}
	wg.Wait()
	close(seen)
	unique := make(map[int]bool)
	for idx := range seen {
		if unique[idx] {
			t.Fatalf("duplicate index %d", idx)
		}
		unique[idx] = true
	}
	for i := 1; i <= n; i++ {
		if !unique[i] {
			t.Fatalf("missing index %d", i)
		}
	}
}

func TestMemoryStorePhotosAndVariants(t *testing.T) {
	s := NewMemoryStore()
	p1, _ := s.CreatePhoto(domain.Photo{UserID: "u1", IndexNumber: 1, Path: "u1/0001.jpg", MimeType: "image/jpeg"})
	p2, _ := s.CreatePhoto(domain.Photo{UserID: "u1", IndexNumber: 2, Path: "u1/0002.png", MimeType: "image/png"})

	latest, ok, _ := s.LatestPhoto("u1")
	if !ok || latest.ID != p2.ID {
		t.Fatalf("latest photo = %+v, want index 2", latest)
	}
	got, ok, _ := s.GetPhotoByIndex("u1", 1)
	if !ok || got.ID != p1.ID {
		t.Fatalf("photo 1 not found")
	}
	if _, ok, _ := s.GetPhotoByIndex("u1", 9); ok {
		t.Fatalf("photo 9 should not exist")
	}

	if _, ok, _ := s.LatestVariant(p1.ID); ok {
		t.Fatalf("no variant expected yet")
	}
	at := time.Now().UTC()
	_, _ = s.CreateVariant(domain.Variant{PhotoID: p1.ID, Mode: domain.ModeRealism, ResultPath: "u1/0001_1.png", CreatedAt: at})
	_, _ = s.CreateVariant(domain.Variant{PhotoID: p1.ID, Mode: domain.ModeScene, ResultPath: "u1/0001_3.png", CreatedAt: at})
	v, ok, _ := s.LatestVariant(p1.ID)
	if !ok || v.Mode != domain.ModeScene {
		t.Fatalf("latest variant = %+v", v)
	}

	replaced, _ := s.CreatePhoto(domain.Photo{UserID: "u1", IndexNumber: 1, Path: "u1/0001.png", MimeType: "image/png"})
	if replaced.ID != p1.ID {
		t.Fatalf("upsert should keep photo id")
	}
}

func TestMemoryStoreDeleteUserData(t *testing.T) {
	s := NewMemoryStore()
	_, _ = s.GetOrCreateSession("u1")
	_, _ = s.GetOrCreateSession("u2")
	p, _ := s.CreatePhoto(domain.Photo{UserID: "u1", IndexNumber: 1, Path: "u1/0001.jpg"})
	_, _ = s.CreateVariant(domain.Variant{PhotoID: p.ID, Mode: domain.ModeStylize})
	_ = s.AppendPromptLog(domain.PromptLog{UserID: "u1", Category: "stylize", RawText: "anime", Instruction: "anime"})
	_ = s.AppendPromptLog(domain.PromptLog{UserID: "u2", Category: "scene", RawText: "rain", Instruction: "rain"})

	if err := s.DeleteUserData("u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := s.GetSession("u1"); ok {
		t.Fatalf("session should be gone")
	}
	if _, ok, _ := s.LatestPhoto("u1"); ok {
		t.Fatalf("photos should be gone")
	}
	if _, ok, _ := s.LatestVariant(p.ID); ok {
		t.Fatalf("variants should be gone")
	}
	if len(s.PromptLogs("u1")) != 0 || len(s.PromptLogs("u2")) != 1 {
		t.Fatalf("prompt logs not scoped correctly")
	}
	if idx, _ := s.NextPhotoIndex("u1"); idx != 1 {
		t.Fatalf("counter should restart after wipe, got %d", idx)
	}
}
