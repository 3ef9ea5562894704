package app

import (
	"context"
	"time"

	"selfiebot/internal/util"
	"selfiebot/pkg/dedup"
)

// Notifier delivers messages to a chat user.
type Notifier interface {
	SendText(ctx context.Context, userID, message string) error
	SendImage(ctx context.Context, userID, filename string, data []byte, caption string) error
}

type replyToKey struct{}

// withReplyTo records the inbound message id being answered.
func withReplyTo(ctx context.Context, messageID string) context.Context {
	return context.WithValue(ctx, replyToKey{}, messageID)
}

func replyTo(ctx context.Context) string {
	id, _ := ctx.Value(replyToKey{}).(string)
	return id
}

// dedupNotifier drops a text identical to one already sent to the same user in
// answer to the same inbound message within the window. A failed send releases
// its key so a redelivery can retry it.
type dedupNotifier struct {
	next   Notifier
	cache  dedup.Cache
	window time.Duration
}

func newDedupNotifier(next Notifier, cache dedup.Cache, window time.Duration) Notifier {
	if cache == nil || window <= 0 {
		return next
	}
	return &dedupNotifier{next: next, cache: cache, window: window}
}

func (n *dedupNotifier) SendText(ctx context.Context, userID, message string) error {
	logger := util.LoggerFromContext(ctx)
	key := dedup.TextKey(userID, replyTo(ctx), message)
	seen, err := n.cache.Mark(ctx, key, n.window)
	if err != nil {
		logger.Warn("outbound dedup unavailable", "err", err)
	}
	if seen {
		logger.Debug("duplicate outbound text suppressed")
		return nil
	}
	if err := n.next.SendText(ctx, userID, message); err != nil {
		if ferr := n.cache.Forget(ctx, key); ferr != nil {
			logger.Warn("release outbound dedup key failed", "err", ferr)
		}
		return err
	}
	return nil
}

func (n *dedupNotifier) SendImage(ctx context.Context, userID, filename string, data []byte, caption string) error {
	return n.next.SendImage(ctx, userID, filename, data, caption)
}
