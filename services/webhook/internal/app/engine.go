package app

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"selfiebot/internal/util"
	"selfiebot/pkg/dedup"
	"selfiebot/pkg/domain"
	"selfiebot/pkg/events"
	"selfiebot/pkg/face"
	"selfiebot/pkg/jobs"
	"selfiebot/pkg/prompt"
	"selfiebot/pkg/storage"
)

// Handle processes one inbound chat event. Transitions are evaluated in a fixed
// priority order: images, global commands, top-menu bot choice, the no-photo
// guard, result-menu choices, keyword mapping, mode digits, detail letters and
// finally detail descriptions.
func (e *Engine) Handle(ctx context.Context, evt domain.InboundEvent) error {
	userID := strings.TrimSpace(evt.UserID)
	if userID == "" {
		return ErrMissingUser
	}
	logger := util.LoggerFromContext(ctx).With("user_id", userID)
	ctx = util.ContextWithLogger(ctx, logger)

	if e.isDuplicate(ctx, userID, evt.MessageID) {
		logger.Info("duplicate inbound message dropped", "message_id", evt.MessageID)
		return nil
	}
	ctx = withReplyTo(ctx, evt.MessageID)

	err := e.dispatch(ctx, userID, evt)
	var done committedError
	if err != nil && !errors.As(err, &done) {
		// nothing durable happened; let the provider's redelivery through
		e.release(ctx, userID, evt.MessageID)
	}
	return err
}

func (e *Engine) dispatch(ctx context.Context, userID string, evt domain.InboundEvent) error {
	sess, err := e.store.GetOrCreateSession(userID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	util.LoggerFromContext(ctx).Info("inbound event", "kind", evt.Kind, "state", sess.State, "submenu", sess.Submenu.String())

	switch evt.Kind {
	case domain.KindImage:
		return e.handleImage(ctx, sess, evt)
	case domain.KindText:
		return e.handleText(ctx, sess, evt.Text)
	default:
		return e.reply(ctx, userID, e.msgs.AskUpload)
	}
}

func (e *Engine) isDuplicate(ctx context.Context, userID, messageID string) bool {
	if e.dedup == nil || strings.TrimSpace(messageID) == "" {
		return false
	}
	seen, err := e.dedup.Mark(ctx, dedup.MessageKey(userID, messageID), e.dedupWindow)
	if err != nil {
		util.LoggerFromContext(ctx).Warn("inbound dedup unavailable", "err", err)
		return false
	}
	return seen
}

func (e *Engine) release(ctx context.Context, userID, messageID string) {
	if e.dedup == nil || strings.TrimSpace(messageID) == "" {
		return
	}
	if err := e.dedup.Forget(ctx, dedup.MessageKey(userID, messageID)); err != nil {
		util.LoggerFromContext(ctx).Warn("release inbound dedup key failed", "err", err)
	}
}

func (e *Engine) handleImage(ctx context.Context, sess domain.Session, evt domain.InboundEvent) error {
	logger := util.LoggerFromContext(ctx)
	userID := sess.UserID
	if strings.TrimSpace(evt.DownloadURL) == "" {
		logger.Warn("image message without download url")
		return e.reply(ctx, userID, e.msgs.DownloadFailed)
	}
	data, err := e.download.Download(ctx, evt.DownloadURL)
	if err != nil {
		logger.Error("image download failed", "err", err)
		return e.reply(ctx, userID, e.msgs.DownloadFailed)
	}
	if !face.FailClosed(ctx, e.faces, data) {
		logger.Warn("no human face detected")
		return e.reply(ctx, userID, e.msgs.NotHuman)
	}

	index, err := e.store.NextPhotoIndex(userID)
	if err != nil {
		return fmt.Errorf("next photo index: %w", err)
	}
	key, err := e.media.SaveOriginal(ctx, userID, index, storage.ExtensionForMIME(evt.MimeType), data)
	if err != nil {
		return fmt.Errorf("save original: %w", err)
	}
	if _, err := e.store.CreatePhoto(domain.Photo{
		UserID:      userID,
		IndexNumber: index,
		Path:        key,
		MimeType:    evt.MimeType,
	}); err != nil {
		return fmt.Errorf("create photo: %w", err)
	}
	logger.Info("original saved", "index", index, "key", key)
	return committed(e.transition(ctx, userID, domain.StateTopMenu, domain.Submenu{}, jobs.ReminderTopMenu, e.msgs.TopMenu))
}

func (e *Engine) handleText(ctx context.Context, sess domain.Session, raw string) error {
	userID := sess.UserID
	text := strings.TrimSpace(raw)
	t := strings.ToLower(text)
	if err := e.store.TouchLastText(userID, e.now()); err != nil {
		return fmt.Errorf("touch last text: %w", err)
	}

	switch t {
	case "menu":
		return e.transition(ctx, userID, domain.StateTopMenu, domain.Submenu{}, jobs.ReminderTopMenu, e.msgs.TopMenu)
	case "list":
		return e.sendGallery(ctx, userID, 0)
	case "+":
		return e.sendGallery(ctx, userID, sess.PaginationOffset)
	case "-", "delete", "del":
		return e.wipe(ctx, userID)
	}

	hasPhoto, err := e.hasPhoto(userID)
	if err != nil {
		return err
	}
	if t == "end" {
		if !hasPhoto {
			return e.reply(ctx, userID, e.msgs.AskUpload)
		}
		return e.transition(ctx, userID, domain.StateMenu, domain.Submenu{}, jobs.ReminderMenu, e.msgs.MainMenu)
	}

	digit, isDigit := domain.ModeFromDigit(t)
	if sess.State == domain.StateTopMenu && isDigit {
		if digit != domain.ModeRealism {
			return e.reply(ctx, userID, e.msgs.Redirects[t])
		}
		if !hasPhoto {
			return e.reply(ctx, userID, e.msgs.AskUpload)
		}
		return e.transition(ctx, userID, domain.StateMenu, domain.Submenu{}, jobs.ReminderMenu, e.msgs.MainMenu)
	}

	if !hasPhoto {
		return e.reply(ctx, userID, e.msgs.AskUpload)
	}

	if sess.State == domain.StateResultMenu && isDigit {
		return e.handleResultChoice(ctx, sess, digit)
	}

	if !isDigit && sess.State == domain.StateMenu {
		if mapped, ok := prompt.MapIntent(t); ok {
			util.LoggerFromContext(ctx).Info("text mapped to mode", "mode", mapped.String())
			digit, isDigit = mapped, true
		}
	}
	if isDigit {
		return e.transition(ctx, userID, digit.State(), sess.Submenu.KeepBase(), jobs.ReminderDetail, e.msgs.DetailMenu(digit))
	}

	if mode, ok := domain.ModeFromState(sess.State); ok {
		if prompt.IsChoiceLetter(t) {
			return e.handleChoice(ctx, sess, mode, t)
		}
		if text != "" {
			return e.requestEdit(ctx, sess, mode, text)
		}
	}

	return e.reply(ctx, userID, e.msgs.MainMenu)
}

func (e *Engine) handleResultChoice(ctx context.Context, sess domain.Session, choice domain.Mode) error {
	userID := sess.UserID
	index := sess.Submenu.Index
	if index <= 0 {
		latest, ok, err := e.store.LatestPhoto(userID)
		if err != nil {
			return fmt.Errorf("latest photo: %w", err)
		}
		if ok {
			index = latest.IndexNumber
		}
	}
	switch choice {
	case domain.ModeRealism:
		return e.transition(ctx, userID, domain.StateMenu, domain.Submenu{}.WithBase(domain.BaseResult, index), jobs.ReminderMenu, e.msgs.MainMenu)
	case domain.ModeStylize:
		return e.transition(ctx, userID, domain.StateMenu, domain.Submenu{}.WithBase(domain.BaseOriginal, index), jobs.ReminderMenu, e.msgs.MainMenu)
	default:
		if err := e.store.SetSession(userID, domain.StateMenu, domain.Submenu{}); err != nil {
			return fmt.Errorf("set session: %w", err)
		}
		return e.reply(ctx, userID, e.msgs.Finished)
	}
}

func (e *Engine) handleChoice(ctx context.Context, sess domain.Session, mode domain.Mode, letter string) error {
	userID := sess.UserID
	submenu := sess.Submenu.WithChoice(letter)
	if err := e.store.SetSession(userID, sess.State, submenu); err != nil {
		return fmt.Errorf("set session: %w", err)
	}
	if example := e.msgs.Example(mode, letter); example != "" {
		if err := e.reply(ctx, userID, example); err != nil {
			return err
		}
	}
	if err := e.reply(ctx, userID, e.msgs.AskOwnOption); err != nil {
		return err
	}
	e.schedule(ctx, userID, jobs.ReminderDesc, sess.State, submenu, e.msgs.AskOwnOption)
	return nil
}

// requestEdit turns a detail description into an image job.
func (e *Engine) requestEdit(ctx context.Context, sess domain.Session, mode domain.Mode, text string) error {
	logger := util.LoggerFromContext(ctx)
	userID := sess.UserID
	choice := sess.Submenu.Choice

	if (choice == "f" || choice == prompt.OwnOptionLetter(mode)) && !prompt.IsLatin(text) {
		return e.reply(ctx, userID, e.msgs.AskEnglish)
	}
	if e.moderator != nil {
		flagged, err := e.moderator.Flagged(ctx, text)
		if err != nil {
			logger.Error("moderation failed, treating as flagged", "err", err)
			flagged = true
		}
		if flagged {
			logger.Warn("edit request rejected by moderation")
			return e.reply(ctx, userID, e.msgs.Indecent)
		}
	}

	instruction := prompt.ApplyFacePolicy(e.summarizer.Summarize(ctx, mode, text, choice))
	if err := e.store.AppendPromptLog(domain.PromptLog{
		UserID:      userID,
		Category:    mode.String(),
		RawText:     text,
		Instruction: instruction,
	}); err != nil {
		logger.Error("append prompt log failed", "err", err)
	}

	base, ok, err := jobs.ResolveBase(e.store, userID, sess.Submenu)
	if err != nil {
		return fmt.Errorf("resolve base image: %w", err)
	}
	if !ok {
		return e.reply(ctx, userID, e.msgs.AskUpload)
	}
	job, err := e.images.Enqueue(ctx, jobs.ImageJob{
		UserID:      userID,
		IndexNumber: base.IndexNumber,
		Mode:        mode,
		BasePath:    base.Path,
		Instruction: instruction,
	})
	if err != nil {
		return fmt.Errorf("enqueue image job: %w", err)
	}
	logger.Info("image job enqueued", "job_id", job.ID, "index", base.IndexNumber, "mode", mode.String(), "from_variant", base.FromVariant)

	if err := e.store.SetSession(userID, domain.StateMenu, domain.Submenu{}); err != nil {
		return committed(fmt.Errorf("set session: %w", err))
	}
	return committed(e.reply(ctx, userID, e.msgs.Processing))
}

func (e *Engine) sendGallery(ctx context.Context, userID string, offset int) error {
	if offset < 0 {
		offset = 0
	}
	page, err := e.media.List(ctx, userID, offset, e.pageSize)
	if err != nil {
		return fmt.Errorf("list media: %w", err)
	}
	if page.Total == 0 {
		if err := e.store.SetPaginationOffset(userID, 0); err != nil {
			return fmt.Errorf("set pagination offset: %w", err)
		}
		return e.reply(ctx, userID, e.msgs.EmptyGallery)
	}
	for _, key := range page.Files {
		data, err := e.media.Read(ctx, key)
		if err != nil {
			return fmt.Errorf("read %s: %w", key, err)
		}
		if err := e.notify.SendImage(ctx, userID, path.Base(key), data, ""); err != nil {
			return fmt.Errorf("send gallery image: %w", err)
		}
	}
	next := offset + len(page.Files)
	if err := e.store.SetPaginationOffset(userID, next); err != nil {
		return fmt.Errorf("set pagination offset: %w", err)
	}
	return e.reply(ctx, userID, e.msgs.GalleryHint(next < page.Total, page.Total))
}

func (e *Engine) wipe(ctx context.Context, userID string) error {
	if err := e.wipeUser(ctx, userID); err != nil {
		return err
	}
	return e.reply(ctx, userID, e.msgs.Deleted)
}

func (e *Engine) wipeUser(ctx context.Context, userID string) error {
	if err := e.media.DeleteUser(ctx, userID); err != nil {
		return fmt.Errorf("delete media: %w", err)
	}
	if err := e.store.DeleteUserData(userID); err != nil {
		return fmt.Errorf("delete user data: %w", err)
	}
	util.LoggerFromContext(ctx).Warn("user data wiped")
	events.PublishOrLog(ctx, e.events, events.Event{Type: events.TypeUserWiped, UserID: userID, OccurredAt: e.now()})
	return nil
}

// transition stores the new state, shows its prompt and schedules a reminder for it.
func (e *Engine) transition(ctx context.Context, userID string, state domain.State, submenu domain.Submenu, kind jobs.ReminderKind, text string) error {
	if err := e.store.SetSession(userID, state, submenu); err != nil {
		return fmt.Errorf("set session: %w", err)
	}
	if err := e.reply(ctx, userID, text); err != nil {
		return err
	}
	e.schedule(ctx, userID, kind, state, submenu, text)
	return nil
}

func (e *Engine) schedule(ctx context.Context, userID string, kind jobs.ReminderKind, state domain.State, submenu domain.Submenu, text string) {
	if err := e.reminders.Schedule(ctx, userID, kind, state, submenu, text); err != nil {
		util.LoggerFromContext(ctx).Warn("schedule reminder failed", "kind", kind, "err", err)
	}
}

func (e *Engine) reply(ctx context.Context, userID, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if err := e.notify.SendText(ctx, userID, text); err != nil {
		return fmt.Errorf("send text: %w", err)
	}
	return nil
}

func (e *Engine) hasPhoto(userID string) (bool, error) {
	_, ok, err := e.store.LatestPhoto(userID)
	if err != nil {
		return false, fmt.Errorf("latest photo: %w", err)
	}
	return ok, nil
}
