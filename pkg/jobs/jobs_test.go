package jobs

import (
	"context"
	"fmt"
	"testing"
	"time"

	"selfiebot/pkg/domain"
	"selfiebot/pkg/queue"
	"selfiebot/pkg/store"
)

func seedPhotos(t *testing.T) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore()
	for i := 1; i <= 2; i++ {
		idx, err := s.NextPhotoIndex("u1")
		if err != nil {
			t.Fatalf("next index: %v", err)
		}
		if _, err := s.CreatePhoto(domain.Photo{UserID: "u1", IndexNumber: idx, Path: fmt.Sprintf("u1/%04d.jpg", idx)}); err != nil {
			t.Fatalf("create photo: %v", err)
		}
	}
	return s
}

func TestResolveBase(t *testing.T) {
	s := seedPhotos(t)
	p1, _, _ := s.GetPhotoByIndex("u1", 1)
	if _, err := s.CreateVariant(domain.Variant{PhotoID: p1.ID, Mode: domain.ModeStylize, ResultPath: "u1/0001_2.png"}); err != nil {
		t.Fatalf("create variant: %v", err)
	}

	tests := []struct {
		name    string
		submenu domain.Submenu
		want    Base
	}{
		{name: "default latest upload", submenu: domain.Submenu{}, want: Base{IndexNumber: 2, Path: "u1/0002.jpg"}},
		{name: "choice only", submenu: domain.Submenu{Choice: "a"}, want: Base{IndexNumber: 2, Path: "u1/0002.jpg"}},
		{name: "result uses latest variant", submenu: domain.Submenu{Base: domain.BaseResult, Index: 1}, want: Base{IndexNumber: 1, Path: "u1/0001_2.png", FromVariant: true}},
		{name: "result without variant uses original", submenu: domain.Submenu{Base: domain.BaseResult, Index: 2}, want: Base{IndexNumber: 2, Path: "u1/0002.jpg"}},
		{name: "original ignores variants", submenu: domain.Submenu{Base: domain.BaseOriginal, Index: 1, Choice: "b"}, want: Base{IndexNumber: 1, Path: "u1/0001.jpg"}},
		{name: "missing index falls back", submenu: domain.Submenu{Base: domain.BaseOriginal, Index: 9}, want: Base{IndexNumber: 2, Path: "u1/0002.jpg"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok, err := ResolveBase(s, "u1", tc.submenu)
			if err != nil || !ok {
				t.Fatalf("resolve: ok=%v err=%v", ok, err)
			}
			if got != tc.want {
				t.Fatalf("ResolveBase() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestResolveBaseWithoutPhotos(t *testing.T) {
	if _, ok, err := ResolveBase(store.NewMemoryStore(), "nobody", domain.Submenu{}); ok || err != nil {
		t.Fatalf("expected no base, ok=%v err=%v", ok, err)
	}
}

func TestShouldRemind(t *testing.T) {
	scheduled := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := scheduled.Add(2 * time.Minute)
	job := ReminderJob{
		UserID:          "u1",
		Kind:            ReminderResultMenu,
		StateSnapshot:   domain.StateResultMenu,
		SubmenuSnapshot: "IDX:0001",
		ScheduledAt:     scheduled,
	}
	base := domain.Session{UserID: "u1", State: domain.StateResultMenu, Submenu: domain.ResultMarker(1), UpdatedAt: scheduled}
	ptr := func(t time.Time) *time.Time { return &t }

	tests := []struct {
		name string
		edit func(s *domain.Session)
		want bool
	}{
		{name: "untouched", edit: func(*domain.Session) {}, want: true},
		{name: "state changed", edit: func(s *domain.Session) { s.State = domain.StateMenu }, want: false},
		{name: "submenu changed", edit: func(s *domain.Session) { s.Submenu = domain.Submenu{Base: domain.BaseOriginal, Index: 1} }, want: false},
		{name: "update within slack", edit: func(s *domain.Session) { s.UpdatedAt = scheduled.Add(time.Second) }, want: true},
		{name: "update after slack", edit: func(s *domain.Session) { s.UpdatedAt = scheduled.Add(1500 * time.Millisecond) }, want: false},
		{name: "recent text", edit: func(s *domain.Session) { s.LastTextAt = ptr(now.Add(-5 * time.Second)) }, want: false},
		{name: "text at grace edge", edit: func(s *domain.Session) { s.LastTextAt = ptr(now.Add(-10 * time.Second)) }, want: false},
		{name: "old text", edit: func(s *domain.Session) { s.LastTextAt = ptr(scheduled.Add(-time.Minute)) }, want: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sess := base
			tc.edit(&sess)
			if got := ShouldRemind(sess, job, now); got != tc.want {
				t.Fatalf("ShouldRemind() = %v, want %v", got, tc.want)
			}
		})
	}
}

type recordingQueue struct {
	payloads []any
	at       []time.Time
}

func (q *recordingQueue) EnqueueAt(_ context.Context, payload any, at time.Time) (queue.JobStatus, error) {
	q.payloads = append(q.payloads, payload)
	q.at = append(q.at, at)
	return queue.JobStatus{ID: "job"}, nil
}

func TestRemindersSchedule(t *testing.T) {
	q := &recordingQueue{}
	r := NewReminders(q, 3*time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.SetClock(func() time.Time { return now })

	submenu := domain.Submenu{Base: domain.BaseResult, Index: 7, Choice: "a"}
	if err := r.Schedule(context.Background(), "u1", ReminderDesc, domain.StateStylize, submenu, "describe"); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if len(q.payloads) != 1 {
		t.Fatalf("expected one job, got %d", len(q.payloads))
	}
	job := q.payloads[0].(ReminderJob)
	if job.SubmenuSnapshot != "BASE:RESULT;IDX:0007;a" || job.StateSnapshot != domain.StateStylize || !job.ScheduledAt.Equal(now) {
		t.Fatalf("unexpected job %+v", job)
	}
	if !q.at[0].Equal(now.Add(3 * time.Minute)) {
		t.Fatalf("run at = %v", q.at[0])
	}
}

func TestRemindersDisabled(t *testing.T) {
	q := &recordingQueue{}
	if err := NewReminders(q, 0).Schedule(context.Background(), "u1", ReminderMenu, domain.StateMenu, domain.Submenu{}, "menu"); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	var nilReminders *Reminders
	if err := nilReminders.Schedule(context.Background(), "u1", ReminderMenu, domain.StateMenu, domain.Submenu{}, "menu"); err != nil {
		t.Fatalf("nil schedule: %v", err)
	}
	if len(q.payloads) != 0 {
		t.Fatalf("disabled reminders should not enqueue")
	}
}
